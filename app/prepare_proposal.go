package app

import (
	"context"

	abci "github.com/cometbft/cometbft/abci/types"
	cmttypes "github.com/cometbft/cometbft/types"

	apperr "github.com/astriaorg/astria-sequencer/app/errors"
	"github.com/astriaorg/astria-sequencer/pkg/actions"
	"github.com/astriaorg/astria-sequencer/pkg/address"
	"github.com/astriaorg/astria-sequencer/pkg/appconsts"
	"github.com/astriaorg/astria-sequencer/pkg/mempool"
	"github.com/astriaorg/astria-sequencer/pkg/sequencerblock"
	"github.com/astriaorg/astria-sequencer/pkg/transaction"
	"github.com/astriaorg/astria-sequencer/x/accounts"
)

// PrepareProposal builds the block this node proposes. The transactions
// CometBFT offers are ignored: the block is filled from the app mempool in
// builder queue order, executing each transaction so that only transactions
// that succeed are included. Transactions that fail are removed from the
// mempool; those whose nonce is ahead are left for a later block.
func (app *App) PrepareProposal(ctx context.Context, req *abci.RequestPrepareProposal) (*abci.ResponsePrepareProposal, error) {
	_, span := app.tracer.Start(ctx, "PrepareProposal")
	defer span.End()

	info := blockInfo{height: uint64(req.Height), time: req.Time, proposer: req.ProposerAddress}
	snap := app.store.LatestSnapshot()
	layout, err := app.layoutAt(snap, info.height)
	if err != nil {
		return nil, err
	}
	var eci []byte
	if layout.ExtendedCommitInfo {
		if eci, err = proposalCommitInfo(snap, req.LocalLastCommit); err != nil {
			return nil, err
		}
	}
	b, err := app.beginBlock(info, eci)
	if err != nil {
		return nil, err
	}

	queue, err := app.mempool.BuilderQueue(func(addr [address.Length]byte) (uint32, error) {
		return accounts.Nonce(snap, addr)
	})
	if err != nil {
		return nil, err
	}

	// The data items have a fixed size: their roots are always 32 bytes.
	items := sequencerblock.NewData(sequencerblock.Commitments{}, layout, b.changeHashes, eci, nil).Items
	used := cmttypes.ComputeProtoSizeForTxs(cmttypes.ToTxs(items))
	removed := map[transaction.ID]bool{}
	exclude := func(tx *mempool.Tx, reason string, err error) {
		app.metrics.PrepareProposalExcluded.WithLabelValues(reason).Inc()
		app.logger.Info(msgTxExcluded, "tx_id", tx.ID, "reason", reason, "err", err)
	}
	for _, tx := range queue {
		if removed[tx.ID] {
			continue
		}
		size := cmttypes.ComputeProtoSizeForTxs([]cmttypes.Tx{tx.Raw})
		if used+size > req.MaxTxBytes {
			exclude(tx, "block_full", nil)
			continue
		}
		if b.dataBytes+sequencedBytes(tx.Tx) > appconsts.MaxSequencedDataBytesPerBlock {
			exclude(tx, "sequenced_data_full", nil)
			continue
		}
		if _, err := b.execute(tx.Tx, tx.Raw); err != nil {
			if m, ok := apperr.AsNonceMismatch(err); ok && m.Ahead() {
				exclude(tx, "nonce_gap", err)
				continue
			}
			exclude(tx, "failed", err)
			for _, id := range app.mempool.RemoveTxInvalid(tx.ID, mempool.RemovalReason{
				Kind:   mempool.RemovalFailedPrepareProposal,
				Detail: err.Error(),
			}) {
				removed[id] = true
			}
			continue
		}
		used += size
	}

	eb := b.seal()
	app.mu.Lock()
	app.proposed = eb
	app.mu.Unlock()

	app.metrics.ProposalTransactions.Observe(float64(len(eb.data.Txs)))
	app.logger.Info("prepared proposal", "height", info.height, "txs", len(eb.data.Txs), "rollups", len(eb.groups))
	return &abci.ResponsePrepareProposal{Txs: eb.data.All()}, nil
}

// sequencedBytes is the rollup data tx carries.
func sequencedBytes(tx *transaction.Transaction) int {
	n := 0
	for _, a := range tx.Actions() {
		if sub, ok := a.(*actions.RollupDataSubmission); ok {
			n += len(sub.Data)
		}
	}
	return n
}
