package pricefeed

import (
	errorsmod "cosmossdk.io/errors"

	"github.com/astriaorg/astria-sequencer/pkg/actions"
	"github.com/astriaorg/astria-sequencer/pkg/address"
	"github.com/astriaorg/astria-sequencer/pkg/pricefeed"
	"github.com/astriaorg/astria-sequencer/pkg/storage"
	xaddress "github.com/astriaorg/astria-sequencer/x/address"
	"github.com/astriaorg/astria-sequencer/x/authority"
	"github.com/astriaorg/astria-sequencer/x/meta"
)

// isAdmin reports whether signer is the sudo address or the market map admin.
func isAdmin(r storage.Reader, signer [address.Length]byte) (bool, pricefeed.MarketMapParams, error) {
	sudo, err := authority.Sudo(r)
	if err != nil {
		return false, pricefeed.MarketMapParams{}, err
	}
	prefix, err := xaddress.BasePrefix(r)
	if err != nil {
		return false, pricefeed.MarketMapParams{}, err
	}
	params, found, err := GetMarketMapParams(r, prefix)
	if err != nil {
		return false, params, err
	}
	if sudo == signer {
		return true, params, nil
	}
	return found && params.Admin.Bytes() == signer, params, nil
}

// ExecuteCurrencyPairsChange adds or removes oracle pairs. Added pairs start
// without a price and take the next id.
func ExecuteCurrencyPairsChange(w storage.Writer, a *actions.CurrencyPairsChange) error {
	tx, err := meta.CurrentTx(w)
	if err != nil {
		return err
	}
	ok, _, err := isAdmin(w, tx.Signer)
	if err != nil {
		return err
	}
	if !ok {
		return errorsmod.Wrap(ErrNotAuthorized, "currency pairs")
	}
	for _, p := range a.Pairs {
		if a.Op == actions.OpRemoval {
			err = removePair(w, p)
		} else {
			err = addPair(w, p)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// ExecuteMarketsChange creates, updates or removes markets. Removing a
// market that is not present is a no-op.
func ExecuteMarketsChange(w storage.Writer, a *actions.MarketsChange) error {
	tx, err := meta.CurrentTx(w)
	if err != nil {
		return err
	}
	admin, params, err := isAdmin(w, tx.Signer)
	if err != nil {
		return err
	}
	if !admin && !params.IsAuthority(tx.Signer) {
		return errorsmod.Wrap(ErrNotAuthorized, "markets")
	}
	mm, found, err := GetMarketMap(w)
	if err != nil {
		return err
	}
	if !found {
		return ErrMarketMapNotSet
	}
	for _, m := range a.Markets {
		i := mm.Find(m.Pair)
		switch a.Op {
		case actions.MarketsCreation:
			if i >= 0 {
				return errorsmod.Wrap(ErrMarketExists, m.Pair.String())
			}
			mm.Markets = append(mm.Markets, m)
		case actions.MarketsUpdate:
			if i < 0 {
				return errorsmod.Wrap(ErrUnknownMarket, m.Pair.String())
			}
			mm.Markets[i] = m
		case actions.MarketsRemoval:
			if i >= 0 {
				mm.Markets = append(mm.Markets[:i], mm.Markets[i+1:]...)
			}
		}
	}
	if err := PutMarketMap(w, mm); err != nil {
		return err
	}
	height, err := meta.BlockHeight(w)
	if err != nil {
		return err
	}
	return PutMarketMapLastUpdated(w, height)
}

// ExecuteUpdateMarketMapParams replaces the market map params.
func ExecuteUpdateMarketMapParams(w storage.Writer, a *actions.UpdateMarketMapParams) error {
	tx, err := meta.CurrentTx(w)
	if err != nil {
		return err
	}
	ok, _, err := isAdmin(w, tx.Signer)
	if err != nil {
		return err
	}
	if !ok {
		return errorsmod.Wrap(ErrNotAuthorized, "market map params")
	}
	if err := xaddress.EnsureBase(w, a.Params.Admin); err != nil {
		return errorsmod.Wrap(err, "admin")
	}
	for _, auth := range a.Params.MarketAuthorities {
		if err := xaddress.EnsureBase(w, auth); err != nil {
			return errorsmod.Wrap(err, "market authority")
		}
	}
	return PutMarketMapParams(w, a.Params)
}
