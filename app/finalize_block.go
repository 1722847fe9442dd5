package app

import (
	"context"
	"fmt"
	"time"

	abci "github.com/cometbft/cometbft/abci/types"

	"github.com/astriaorg/astria-sequencer/pkg/sequencerblock"
	"github.com/astriaorg/astria-sequencer/pkg/transaction"
	"github.com/astriaorg/astria-sequencer/x/meta"
)

// FinalizeBlock executes the decided block. When the block is the one the
// last ProcessProposal accepted its execution is reused. Otherwise the block
// is executed here; unlike in ProcessProposal a failing transaction does not
// abort execution but is reported in its result.
func (app *App) FinalizeBlock(ctx context.Context, req *abci.RequestFinalizeBlock) (*abci.ResponseFinalizeBlock, error) {
	_, span := app.tracer.Start(ctx, "FinalizeBlock")
	defer span.End()
	start := time.Now()

	info := blockInfo{height: uint64(req.Height), time: req.Time, proposer: req.ProposerAddress}
	hash, err := blockHash(req.Hash)
	if err != nil {
		return nil, err
	}

	app.mu.Lock()
	eb := app.executed
	app.proposed, app.executed = nil, nil
	app.mu.Unlock()
	if eb == nil || eb.hash != hash || !eb.info.equal(info) || eb.delta.Snapshot() != app.store.LatestSnapshot() {
		app.logger.Debug("executing decided block", "height", info.height)
		if eb, err = app.executeDecided(info, req.Txs); err != nil {
			return nil, fmt.Errorf("executing block %d: %w", info.height, err)
		}
	}

	chainID, err := meta.ChainID(eb.delta)
	if err != nil {
		return nil, err
	}
	updates, appHash, err := app.endBlock(eb, hash, chainID)
	if err != nil {
		return nil, err
	}

	results := make([]*abci.ExecTxResult, 0, len(eb.data.Items)+len(eb.txResults))
	for range eb.data.Items {
		results = append(results, &abci.ExecTxResult{})
	}
	results = append(results, eb.txResults...)

	app.mu.Lock()
	app.finalized = &finalizedBlock{height: info.height, includedIDs: eb.includedIDs}
	app.mu.Unlock()

	app.metrics.FinalizeBlockDuration.Observe(time.Since(start).Seconds())
	app.logger.Info("finalized block", "height", info.height, "txs", len(eb.data.Txs), "app_hash", fmt.Sprintf("%X", appHash))
	return &abci.ResponseFinalizeBlock{
		TxResults:             results,
		ValidatorUpdates:      updates,
		ConsensusParamUpdates: eb.paramUpdates,
		AppHash:               appHash,
	}, nil
}

// executeDecided runs a block consensus already agreed on. Only a block that
// cannot be laid out is an error.
func (app *App) executeDecided(info blockInfo, raw [][]byte) (*executedBlock, error) {
	layout, err := app.layoutAt(app.store.LatestSnapshot(), info.height)
	if err != nil {
		return nil, err
	}
	data, err := sequencerblock.ParseData(raw, layout)
	if err != nil {
		return nil, err
	}
	b, err := app.beginBlock(info, data.ExtendedCommitInfo)
	if err != nil {
		return nil, err
	}
	for _, r := range data.Txs {
		tx, err := transaction.Decode(r)
		if err != nil {
			b.recordFailure(r, err)
			continue
		}
		if _, err := b.execute(tx, r); err != nil {
			b.recordFailure(r, err)
		}
	}
	eb := b.seal()
	// The data items are consensus data: keep the ones that were decided.
	eb.data.Items = data.Items
	return eb, nil
}
