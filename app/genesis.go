package app

import (
	"context"
	"fmt"

	abci "github.com/cometbft/cometbft/abci/types"

	"github.com/astriaorg/astria-sequencer/pkg/genesis"
	"github.com/astriaorg/astria-sequencer/pkg/storage"
	"github.com/astriaorg/astria-sequencer/x/accounts"
	xaddress "github.com/astriaorg/astria-sequencer/x/address"
	"github.com/astriaorg/astria-sequencer/x/assets"
	"github.com/astriaorg/astria-sequencer/x/authority"
	"github.com/astriaorg/astria-sequencer/x/fees"
	"github.com/astriaorg/astria-sequencer/x/ibc"
	"github.com/astriaorg/astria-sequencer/x/meta"
	xpricefeed "github.com/astriaorg/astria-sequencer/x/pricefeed"
)

// InitChain writes the genesis app state and commits it as the first store
// version. CometBFT calls InitChain again if it crashed before the first
// block was committed, so a store that already holds genesis is returned as
// is.
func (app *App) InitChain(ctx context.Context, req *abci.RequestInitChain) (*abci.ResponseInitChain, error) {
	_, span := app.tracer.Start(ctx, "InitChain")
	defer span.End()

	if app.store.LatestVersion() > 0 {
		return app.replayInitChain(req)
	}

	g, err := genesis.Parse(req.AppStateBytes)
	if err != nil {
		return nil, err
	}
	d := storage.NewDelta(app.store.LatestSnapshot())
	vals, err := app.writeGenesis(d, req, g)
	if err != nil {
		return nil, fmt.Errorf("writing genesis state: %w", err)
	}
	version, _, err := app.store.CommitDelta(d)
	if err != nil {
		return nil, fmt.Errorf("committing genesis state: %w", err)
	}
	app.logger.Info("genesis committed", "chain_id", req.ChainId, "store_version", version, "validators", len(vals))
	app.restrictDebug(req.ChainId)

	resp := &abci.ResponseInitChain{AppHash: app.store.LatestSnapshot().AppHash()}
	if len(g.InitialValidators) > 0 {
		resp.Validators = validatorUpdates(vals)
	}
	return resp, nil
}

func (app *App) replayInitChain(req *abci.RequestInitChain) (*abci.ResponseInitChain, error) {
	snap := app.store.LatestSnapshot()
	chainID, err := meta.ChainID(snap)
	if err != nil {
		return nil, err
	}
	if chainID != req.ChainId {
		return nil, fmt.Errorf("store holds chain %q, genesis is for %q", chainID, req.ChainId)
	}
	app.logger.Info("genesis already committed", "chain_id", chainID)
	return &abci.ResponseInitChain{AppHash: snap.AppHash()}, nil
}

func (app *App) writeGenesis(d *storage.Delta, req *abci.RequestInitChain, g *genesis.GenesisState) ([]authority.Validator, error) {
	if err := meta.PutChainID(d, req.ChainId); err != nil {
		return nil, err
	}
	if err := meta.PutRevisionNumber(d, meta.RevisionFromChainID(req.ChainId)); err != nil {
		return nil, err
	}
	if err := meta.PutBlockTimestamp(d, req.Time); err != nil {
		return nil, err
	}
	if req.ConsensusParams != nil {
		if err := meta.PutConsensusParams(d, req.ConsensusParams); err != nil {
			return nil, err
		}
	}
	if err := meta.PutStorageVersion(d, uint64(max(req.InitialHeight-1, 0)), uint64(app.store.LatestVersion()+1)); err != nil {
		return nil, err
	}

	if err := xaddress.PutBasePrefix(d, g.AddressPrefixes.Base); err != nil {
		return nil, err
	}
	if err := xaddress.PutCompatPrefix(d, g.AddressPrefixes.Compat); err != nil {
		return nil, err
	}

	native, err := g.NativeAsset()
	if err != nil {
		return nil, err
	}
	if err := assets.PutNativeAsset(d, native); err != nil {
		return nil, err
	}
	if err := assets.PutDenom(d, native); err != nil {
		return nil, err
	}
	for _, fa := range g.AllowedFeeAssets {
		if trace, ok := fa.AsTrace(); ok {
			if err := assets.PutDenom(d, trace); err != nil {
				return nil, err
			}
		}
		if err := assets.PutFeeAsset(d, fa.ToIbcPrefixed()); err != nil {
			return nil, err
		}
	}
	for _, acct := range g.InitialAccounts {
		if err := accounts.PutBalance(d, acct.Address.Bytes(), native.ToIbcPrefixed(), acct.Balance); err != nil {
			return nil, err
		}
	}
	for kind, components := range g.Fees {
		if err := fees.PutComponents(d, kind, components); err != nil {
			return nil, err
		}
	}

	if err := authority.PutSudo(d, g.AuthoritySudo.Bytes()); err != nil {
		return nil, err
	}
	vals, err := genesisValidators(req, g)
	if err != nil {
		return nil, err
	}
	if err := authority.PutValidatorSet(d, vals); err != nil {
		return nil, err
	}

	if err := ibc.PutSudo(d, g.IbcSudo.Bytes()); err != nil {
		return nil, err
	}
	for _, r := range g.IbcRelayers {
		if err := ibc.PutRelayer(d, r.Bytes()); err != nil {
			return nil, err
		}
	}
	err = ibc.PutParams(d, ibc.Params{
		IbcEnabled:                    g.IbcParameters.IbcEnabled,
		InboundIcs20TransfersEnabled:  g.IbcParameters.InboundIcs20TransfersEnabled,
		OutboundIcs20TransfersEnabled: g.IbcParameters.OutboundIcs20TransfersEnabled,
	})
	if err != nil {
		return nil, err
	}

	if g.PriceFeed != nil {
		if err := xpricefeed.InitGenesis(d, *g.PriceFeed); err != nil {
			return nil, fmt.Errorf("price feed genesis: %w", err)
		}
	}
	return vals, nil
}

// genesisValidators prefers the validators listed in the app state and falls
// back to those of the CometBFT genesis.
func genesisValidators(req *abci.RequestInitChain, g *genesis.GenesisState) ([]authority.Validator, error) {
	var out []authority.Validator
	if len(g.InitialValidators) > 0 {
		for _, v := range g.InitialValidators {
			var pk [32]byte
			copy(pk[:], v.VerificationKey)
			out = append(out, authority.Validator{PubKey: pk, Power: v.Power, Name: v.Name})
		}
		return out, nil
	}
	for i, v := range req.Validators {
		raw := v.PubKey.GetEd25519()
		if len(raw) != 32 {
			return nil, fmt.Errorf("genesis validator %d: only ed25519 keys are supported", i)
		}
		if v.Power < 0 {
			return nil, fmt.Errorf("genesis validator %d: negative power", i)
		}
		var pk [32]byte
		copy(pk[:], raw)
		out = append(out, authority.Validator{PubKey: pk, Power: uint64(v.Power)})
	}
	if len(out) == 0 {
		return nil, authority.ErrEmptyValidatorSet
	}
	return out, nil
}

func validatorUpdates(vals []authority.Validator) []abci.ValidatorUpdate {
	out := make([]abci.ValidatorUpdate, len(vals))
	for i, v := range vals {
		out[i] = abci.Ed25519ValidatorUpdate(v.PubKey[:], int64(v.Power))
	}
	return out
}
