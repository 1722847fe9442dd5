package app

import (
	"context"
	"fmt"
	"time"

	abci "github.com/cometbft/cometbft/abci/types"

	"github.com/astriaorg/astria-sequencer/pkg/address"
	"github.com/astriaorg/astria-sequencer/pkg/mempool"
	"github.com/astriaorg/astria-sequencer/pkg/storage"
	"github.com/astriaorg/astria-sequencer/x/accounts"
)

// Commit persists the state prepared by FinalizeBlock, then brings the
// mempool in line with it.
func (app *App) Commit(ctx context.Context, _ *abci.RequestCommit) (*abci.ResponseCommit, error) {
	_, span := app.tracer.Start(ctx, "Commit")
	defer span.End()

	app.mu.Lock()
	fb := app.finalized
	app.finalized = nil
	app.mu.Unlock()
	if fb == nil {
		return nil, fmt.Errorf("commit called without a finalized block")
	}

	version, hash, err := app.store.Commit()
	if err != nil {
		return nil, fmt.Errorf("committing height %d: %w", fb.height, err)
	}
	app.logger.Info("committed block", "height", fb.height, "version", version, "app_hash", fmt.Sprintf("%X", hash))

	app.mempool.MarkIncluded(fb.includedIDs, fb.height)
	if err := app.maintainMempool(); err != nil {
		app.logger.Error("mempool maintenance failed", "height", fb.height, "err", err)
	}
	app.committed.publish(fb.height)

	if u, ok := app.shutdownFor(fb.height + 1); ok {
		app.logger.Info("upgrade requires a restart", "upgrade", u.Name(), "activation_height", u.ActivationHeight())
		if app.onShutdown != nil {
			app.onShutdown(u.Name())
		}
	}
	return &abci.ResponseCommit{}, nil
}

// MaintainMempool runs mempool maintenance every interval until ctx is done.
// It catches transactions that expire while no blocks are committed.
func (app *App) MaintainMempool(ctx context.Context, interval time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if err := app.maintainMempool(); err != nil {
				app.logger.Error("mempool maintenance failed", "err", err)
			}
		}
	}
}

func (app *App) maintainMempool() error {
	start := time.Now()
	snap := app.store.LatestSnapshot()
	err := app.mempool.RunMaintenance(accountState{snap}, func(tx *mempool.Tx) (mempool.Cost, error) {
		return txCost(snap, tx.Tx)
	})
	app.metrics.MempoolMaintenanceSeconds.Observe(time.Since(start).Seconds())
	app.metrics.SetMempoolSizes(app.mempool.Sizes())
	return err
}

// accountState reads the accounts of a committed snapshot.
type accountState struct {
	r storage.Reader
}

func (s accountState) Nonce(addr [address.Length]byte) (uint32, error) {
	return accounts.Nonce(s.r, addr)
}

func (s accountState) Balances(addr [address.Length]byte) (mempool.Balances, error) {
	b, err := accounts.Balances(s.r, addr)
	return mempool.Balances(b), err
}
