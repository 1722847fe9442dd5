package app

import (
	"errors"
	"fmt"

	errorsmod "cosmossdk.io/errors"
	abci "github.com/cometbft/cometbft/abci/types"

	apperr "github.com/astriaorg/astria-sequencer/app/errors"
	"github.com/astriaorg/astria-sequencer/pkg/actions"
	"github.com/astriaorg/astria-sequencer/pkg/amount"
	"github.com/astriaorg/astria-sequencer/pkg/asset"
	"github.com/astriaorg/astria-sequencer/pkg/mempool"
	"github.com/astriaorg/astria-sequencer/pkg/storage"
	"github.com/astriaorg/astria-sequencer/pkg/transaction"
	"github.com/astriaorg/astria-sequencer/pkg/upgrades"
	"github.com/astriaorg/astria-sequencer/x/accounts"
	"github.com/astriaorg/astria-sequencer/x/assets"
	"github.com/astriaorg/astria-sequencer/x/authority"
	"github.com/astriaorg/astria-sequencer/x/bridge"
	"github.com/astriaorg/astria-sequencer/x/fees"
	"github.com/astriaorg/astria-sequencer/x/ibc"
	"github.com/astriaorg/astria-sequencer/x/meta"
	xpricefeed "github.com/astriaorg/astria-sequencer/x/pricefeed"
)

var (
	bridgeKeeper   = bridge.NewKeeper()
	accountsKeeper = accounts.NewKeeper(bridgeKeeper)
)

// checkTxStateless runs the checks that do not depend on the signer's
// account: chain id, fee asset presence and the stateless checks of every
// action.
func checkTxStateless(tx *transaction.Transaction, chainID string) error {
	if err := tx.ValidateBasic(chainID); err != nil {
		if errors.Is(err, transaction.ErrChainIDMismatch) {
			return errorsmod.Wrap(apperr.ErrInvalidChainID, err.Error())
		}
		return errorsmod.Wrap(apperr.ErrInvalidParameter, err.Error())
	}
	return nil
}

// executeTx runs tx against d. Every write, including the nonce increment
// and the fees, goes through a nested delta that is only merged into d if
// all actions succeed. The returned events are those the actions emitted.
func (app *App) executeTx(d *storage.Delta, tx *transaction.Transaction, height uint64) ([]abci.Event, error) {
	chainID, err := meta.ChainID(d)
	if err != nil {
		return nil, err
	}
	if err := checkTxStateless(tx, chainID); err != nil {
		return nil, err
	}
	signer := tx.SignerBytes()
	nonce, err := accounts.Nonce(d, signer)
	if err != nil {
		return nil, err
	}
	if tx.Nonce() != nonce {
		return nil, &apperr.NonceMismatch{Expected: nonce, Got: tx.Nonce()}
	}

	nested := d.Nested()
	if err := accounts.IncrementNonce(nested, signer); err != nil {
		return nil, err
	}
	id := tx.ID()
	for i, a := range tx.Actions() {
		meta.PutTxContext(nested, meta.TxContext{Signer: signer, TxID: id, ActionIndex: uint64(i)})
		if err := app.executeAction(nested, a, tx.Body.FeeAsset, height); err != nil {
			return nil, fmt.Errorf("action %d (%s): %w", i, a.Kind(), err)
		}
	}
	meta.ClearTxContext(nested)

	isBridge, err := bridgeKeeper.IsBridgeAccount(nested, signer)
	if err != nil {
		return nil, err
	}
	if isBridge {
		if err := bridge.PutLastTxID(nested, signer, id); err != nil {
			return nil, err
		}
	}
	events := meta.TakeEvents(nested)
	nested.Apply()
	return events, nil
}

// executeAction checks a, charges its fee and runs it.
func (app *App) executeAction(w storage.Writer, a actions.Action, feeAsset asset.Denom, height uint64) error {
	if err := a.ValidateBasic(); err != nil {
		return errorsmod.Wrap(apperr.ErrInvalidParameter, err.Error())
	}
	variable, err := feeVariable(w, a)
	if err != nil {
		return err
	}
	if err := fees.Pay(w, a.Kind(), variable, feeAsset); err != nil {
		return err
	}

	switch a := a.(type) {
	case *actions.Transfer:
		return accountsKeeper.ExecuteTransfer(w, a)
	case *actions.RollupDataSubmission:
		// Sequenced data only costs fees; it is collected into the block by
		// the block builder.
		return nil
	case *actions.InitBridgeAccount:
		return bridgeKeeper.ExecuteInitBridgeAccount(w, a)
	case *actions.BridgeLock:
		return bridgeKeeper.ExecuteBridgeLock(w, a)
	case *actions.BridgeUnlock:
		return bridgeKeeper.ExecuteBridgeUnlock(w, a)
	case *actions.BridgeSudoChange:
		return bridgeKeeper.ExecuteBridgeSudoChange(w, a)
	case *actions.BridgeTransfer:
		return bridgeKeeper.ExecuteBridgeTransfer(w, a)
	case *actions.Ics20Withdrawal:
		return ibc.ExecuteIcs20Withdrawal(w, a)
	case *actions.IbcRelay:
		d, ok := w.(*storage.Delta)
		if !ok {
			return fmt.Errorf("ibc relay needs a delta, got %T", w)
		}
		return ibc.ExecuteIbcRelay(d, a, app.upgrades.ChangeActive(upgrades.IbcAcknowledgementFailureChangeName, height))
	case *actions.SudoAddressChange:
		return authority.ExecuteSudoAddressChange(w, a)
	case *actions.IbcSudoChange:
		return ibc.ExecuteIbcSudoChange(w, a)
	case *actions.ValidatorUpdate:
		return authority.ExecuteValidatorUpdate(w, a, app.upgrades.ChangeActive(upgrades.ValidatorUpdateActionChangeName, height))
	case *actions.IbcRelayerChange:
		return ibc.ExecuteIbcRelayerChange(w, a)
	case *actions.FeeAssetChange:
		return assets.ExecuteFeeAssetChange(w, a)
	case *actions.FeeChange:
		return fees.ExecuteFeeChange(w, a)
	case *actions.CurrencyPairsChange:
		return xpricefeed.ExecuteCurrencyPairsChange(w, a)
	case *actions.MarketsChange:
		return xpricefeed.ExecuteMarketsChange(w, a)
	case *actions.UpdateMarketMapParams:
		return xpricefeed.ExecuteUpdateMarketMapParams(w, a)
	}
	return fmt.Errorf("unhandled action %T", a)
}

// feeVariable is the quantity the fee multiplier of a applies to.
func feeVariable(r storage.Reader, a actions.Action) (uint64, error) {
	switch a := a.(type) {
	case *actions.RollupDataSubmission:
		return uint64(len(a.Data)), nil
	case *actions.BridgeLock:
		denom, err := assets.Resolve(r, a.Asset)
		if err != nil {
			return 0, err
		}
		return actions.DepositVariableLength(denom, a.DestinationChainAddress), nil
	case *actions.BridgeTransfer:
		id, err := bridge.Asset(r, a.BridgeAddress.Bytes())
		if err != nil {
			return 0, err
		}
		denom, err := assets.Resolve(r, asset.FromIbc(id))
		if err != nil {
			return 0, err
		}
		return actions.DepositVariableLength(denom, a.DestinationChainAddress), nil
	}
	return 0, nil
}

// txCost is what tx takes from its signer: the fees of every action plus
// the funds the actions move out of the signer's account. It is used to
// decide whether the signer can afford a transaction before it is executed.
func txCost(r storage.Reader, tx *transaction.Transaction) (mempool.Cost, error) {
	cost := mempool.Cost{}
	add := func(id asset.IbcPrefixed, amt amount.Amount) error {
		next, err := cost.Add(mempool.Cost{id: amt})
		if err != nil {
			return err
		}
		cost = next
		return nil
	}
	feeAsset := tx.Body.FeeAsset.ToIbcPrefixed()
	for _, a := range tx.Actions() {
		variable, err := feeVariable(r, a)
		if err != nil {
			return nil, err
		}
		fee, err := fees.Compute(r, a.Kind(), variable)
		if err != nil {
			return nil, err
		}
		if err := add(feeAsset, fee); err != nil {
			return nil, err
		}
		switch a := a.(type) {
		case *actions.Transfer:
			err = add(a.Asset.ToIbcPrefixed(), a.Amount)
		case *actions.BridgeLock:
			err = add(a.Asset.ToIbcPrefixed(), a.Amount)
		case *actions.Ics20Withdrawal:
			if a.BridgeAddress == nil {
				err = add(a.Denom.ToIbcPrefixed(), a.Amount)
			}
		}
		if err != nil {
			return nil, err
		}
	}
	return cost, nil
}
