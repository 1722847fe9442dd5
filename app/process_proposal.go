package app

import (
	"bytes"
	"context"
	"fmt"

	abci "github.com/cometbft/cometbft/abci/types"

	"github.com/astriaorg/astria-sequencer/pkg/appconsts"
	"github.com/astriaorg/astria-sequencer/pkg/sequencerblock"
)

const rejectedPropBlockLog = "Rejected proposal block:"

// ProcessProposal re-executes a proposed block and accepts it only if every
// transaction succeeds and the block data commits to exactly what the
// execution produced. A proposal this node prepared itself is accepted
// without running it again.
func (app *App) ProcessProposal(ctx context.Context, req *abci.RequestProcessProposal) (*abci.ResponseProcessProposal, error) {
	ctx, span := app.tracer.Start(ctx, "ProcessProposal")
	defer span.End()

	info := blockInfo{height: uint64(req.Height), time: req.Time, proposer: req.ProposerAddress}
	hash, err := blockHash(req.Hash)
	if err != nil {
		return nil, err
	}

	app.mu.Lock()
	proposed := app.proposed
	app.mu.Unlock()
	if proposed != nil && proposed.info.equal(info) && sameTxs(proposed.data.All(), req.Txs) &&
		proposed.delta.Snapshot() == app.store.LatestSnapshot() {
		app.metrics.ProcessProposalSkipped.Inc()
		app.cacheExecuted(proposed, hash)
		return &abci.ResponseProcessProposal{Status: abci.ResponseProcessProposal_ACCEPT}, nil
	}

	eb, err := app.executeProposal(ctx, info, req.Txs, req.ProposedLastCommit)
	if err != nil {
		app.metrics.ProcessProposalRejected.Inc()
		app.logger.Error(rejectedPropBlockLog, "height", info.height, "reason", err)
		return &abci.ResponseProcessProposal{Status: abci.ResponseProcessProposal_REJECT}, nil
	}
	app.cacheExecuted(eb, hash)
	return &abci.ResponseProcessProposal{Status: abci.ResponseProcessProposal_ACCEPT}, nil
}

// executeProposal validates the layout of the block data, then runs the
// block and checks its commitments.
func (app *App) executeProposal(ctx context.Context, info blockInfo, raw [][]byte, last abci.CommitInfo) (*executedBlock, error) {
	snap := app.store.LatestSnapshot()
	layout, err := app.layoutAt(snap, info.height)
	if err != nil {
		return nil, err
	}
	data, err := sequencerblock.ParseData(raw, layout)
	if err != nil {
		return nil, err
	}
	if layout.UpgradeChangeHashes {
		want, err := app.expectedChangeHashes(info.height)
		if err != nil {
			return nil, err
		}
		if !sameHashes(want, data.UpgradeChangeHashes) {
			return nil, fmt.Errorf("upgrade change hashes do not match the upgrade activating at height %d", info.height)
		}
	}
	if layout.ExtendedCommitInfo {
		if err := app.validateCommitInfo(ctx, snap, info.height, data.ExtendedCommitInfo, last); err != nil {
			return nil, fmt.Errorf("invalid extended commit info: %w", err)
		}
	}
	txs, err := decodeBlockTxs(data.Txs)
	if err != nil {
		return nil, err
	}

	b, err := app.beginBlock(info, data.ExtendedCommitInfo)
	if err != nil {
		return nil, err
	}
	for i, tx := range txs {
		if _, err := b.execute(tx, data.Txs[i]); err != nil {
			return nil, fmt.Errorf("transaction %d (%s) failed: %w", i, tx.ID(), err)
		}
	}
	if b.dataBytes > appconsts.MaxSequencedDataBytesPerBlock {
		return nil, fmt.Errorf("block carries %d bytes of sequenced data, at most %d are allowed", b.dataBytes, appconsts.MaxSequencedDataBytesPerBlock)
	}
	eb := b.seal()
	if eb.data.Commitments != data.Commitments {
		return nil, sequencerblock.ErrCommitmentMismatch
	}
	return eb, nil
}

// cacheExecuted keeps eb for the FinalizeBlock of the block with hash.
func (app *App) cacheExecuted(eb *executedBlock, hash [32]byte) {
	eb.hash = hash
	app.mu.Lock()
	app.executed = eb
	app.mu.Unlock()
}

func blockHash(b []byte) ([32]byte, error) {
	var h [32]byte
	if len(b) != len(h) {
		return h, fmt.Errorf("block hash must be 32 bytes, got %d", len(b))
	}
	copy(h[:], b)
	return h, nil
}

func sameTxs(a, b [][]byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !bytes.Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

func sameHashes(a, b [][32]byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
