package app

import (
	"fmt"

	cmtproto "github.com/cometbft/cometbft/proto/tendermint/types"
	"github.com/cosmos/gogoproto/proto"

	"github.com/astriaorg/astria-sequencer/pkg/storage"
	"github.com/astriaorg/astria-sequencer/pkg/upgrades"
	"github.com/astriaorg/astria-sequencer/x/meta"
	xpricefeed "github.com/astriaorg/astria-sequencer/x/pricefeed"
	xupgrades "github.com/astriaorg/astria-sequencer/x/upgrades"
)

// appliedUpgrade is the outcome of running an upgrade at its activation
// height.
type appliedUpgrade struct {
	changeHashes [][32]byte
	// params are the updated consensus params to hand to CometBFT.
	params *cmtproto.ConsensusParams
}

// applyUpgrade runs every change of u at height and records it in state.
func (app *App) applyUpgrade(d *storage.Delta, u upgrades.Upgrade, height uint64) (*appliedUpgrade, error) {
	hashes, err := xupgrades.ApplyUpgrade(d, u)
	if err != nil {
		return nil, fmt.Errorf("recording upgrade %s: %w", u.Name(), err)
	}

	stored, found, err := meta.ConsensusParams(d)
	if err != nil {
		return nil, err
	}
	params := &cmtproto.ConsensusParams{}
	if found {
		params = proto.Clone(stored).(*cmtproto.ConsensusParams)
	}
	params.Version = &cmtproto.VersionParams{App: u.AppVersion()}

	for _, c := range u.Changes() {
		switch c := c.(type) {
		case upgrades.PriceFeedChange:
			if err := xpricefeed.InitGenesis(d, c.Genesis); err != nil {
				return nil, fmt.Errorf("seeding price feed: %w", err)
			}
			params.Abci = &cmtproto.ABCIParams{VoteExtensionsEnableHeight: int64(height) + 1}
		case upgrades.ValidatorUpdateActionChange, upgrades.IbcAcknowledgementFailureChange:
			// Checked at execution time through the upgrade table.
		default:
			return nil, fmt.Errorf("upgrade %s: unknown change %s", u.Name(), c.Name())
		}
	}
	if err := meta.PutConsensusParams(d, params); err != nil {
		return nil, err
	}

	out := &appliedUpgrade{params: params, changeHashes: make([][32]byte, len(hashes))}
	for i, h := range hashes {
		out.changeHashes[i] = [32]byte(h)
	}
	app.metrics.UpgradesApplied.WithLabelValues(u.Name()).Inc()
	app.logger.Info("upgrade applied", "upgrade", u.Name(), "height", height, "app_version", u.AppVersion())
	return out, nil
}

// shutdownFor returns the upgrade activating at height that needs the node
// restarted first.
func (app *App) shutdownFor(height uint64) (upgrades.Upgrade, bool) {
	u, ok := app.upgrades.ActivatingAt(height)
	if !ok || !u.ShutdownRequired() {
		return nil, false
	}
	return u, true
}
