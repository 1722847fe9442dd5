package pricefeed

import (
	errorsmod "cosmossdk.io/errors"

	"github.com/astriaorg/astria-sequencer/pkg/pricefeed"
	"github.com/astriaorg/astria-sequencer/pkg/storage"
)

// InitGenesis writes the market map, its params and the seeded oracle pairs.
// It runs at chain start and again when the price feed upgrade activates.
func InitGenesis(w storage.Writer, g pricefeed.Genesis) error {
	for _, m := range g.MarketMap.MarketMap.Markets {
		if err := m.Validate(); err != nil {
			return errorsmod.Wrap(ErrInvalidGenesisPair, err.Error())
		}
	}
	if err := PutMarketMap(w, g.MarketMap.MarketMap); err != nil {
		return err
	}
	if err := PutMarketMapParams(w, g.MarketMap.Params); err != nil {
		return err
	}

	next := g.Oracle.NextID
	seen := make(map[pricefeed.CurrencyPairID]bool, len(g.Oracle.CurrencyPairs))
	for _, cp := range g.Oracle.CurrencyPairs {
		if err := cp.Pair.Validate(); err != nil {
			return errorsmod.Wrap(ErrInvalidGenesisPair, err.Error())
		}
		if seen[cp.ID] {
			return errorsmod.Wrapf(ErrInvalidGenesisPair, "duplicate id %d", cp.ID)
		}
		seen[cp.ID] = true
		if cp.ID >= next {
			next = cp.ID + 1
		}
		if err := PutPairState(w, cp.Pair, cp.CurrencyPairState); err != nil {
			return err
		}
	}
	if err := putNextPairID(w, next); err != nil {
		return err
	}
	return putNumPairs(w, uint64(len(g.Oracle.CurrencyPairs)))
}
