package bridge

import (
	"strconv"

	errorsmod "cosmossdk.io/errors"
	abci "github.com/cometbft/cometbft/abci/types"

	"github.com/astriaorg/astria-sequencer/pkg/actions"
	"github.com/astriaorg/astria-sequencer/pkg/address"
	"github.com/astriaorg/astria-sequencer/pkg/amount"
	"github.com/astriaorg/astria-sequencer/pkg/asset"
	"github.com/astriaorg/astria-sequencer/pkg/sequencerblock"
	"github.com/astriaorg/astria-sequencer/pkg/storage"
	"github.com/astriaorg/astria-sequencer/x/accounts"
	xaddress "github.com/astriaorg/astria-sequencer/x/address"
	"github.com/astriaorg/astria-sequencer/x/assets"
	"github.com/astriaorg/astria-sequencer/x/meta"
)

// EventTypeDeposit is emitted for every deposit to a rollup.
const EventTypeDeposit = "tx.deposit"

// Keeper executes bridge actions and answers bridge membership queries for
// the other modules.
type Keeper struct{}

func NewKeeper() Keeper { return Keeper{} }

// IsBridgeAccount reports whether addr was initialized as a bridge account.
func (Keeper) IsBridgeAccount(r storage.Reader, addr [address.Length]byte) (bool, error) {
	_, found, err := RollupID(r, addr)
	return found, err
}

// ExecuteInitBridgeAccount turns the signer into a bridge account. Sudo and
// withdrawer default to the signer.
func (k Keeper) ExecuteInitBridgeAccount(w storage.Writer, a *actions.InitBridgeAccount) error {
	tx, err := meta.CurrentTx(w)
	if err != nil {
		return err
	}
	isBridge, err := k.IsBridgeAccount(w, tx.Signer)
	if err != nil {
		return err
	}
	if isBridge {
		return ErrAlreadyBridgeAccount
	}
	sudo, err := optionalAddress(w, a.SudoAddress, tx.Signer)
	if err != nil {
		return errorsmod.Wrap(err, "sudo address")
	}
	withdrawer, err := optionalAddress(w, a.WithdrawerAddress, tx.Signer)
	if err != nil {
		return errorsmod.Wrap(err, "withdrawer address")
	}
	if err := assets.EnsureKnown(w, a.Asset); err != nil {
		return err
	}
	if err := PutRollupID(w, tx.Signer, a.RollupID); err != nil {
		return err
	}
	if err := PutAsset(w, tx.Signer, a.Asset.ToIbcPrefixed()); err != nil {
		return err
	}
	if err := PutSudo(w, tx.Signer, sudo); err != nil {
		return err
	}
	return PutWithdrawer(w, tx.Signer, withdrawer)
}

func optionalAddress(r storage.Reader, a *address.Address, fallback [address.Length]byte) ([address.Length]byte, error) {
	if a == nil {
		return fallback, nil
	}
	if err := xaddress.EnsureBase(r, *a); err != nil {
		return [address.Length]byte{}, err
	}
	return a.Bytes(), nil
}

// ExecuteBridgeLock moves funds from the signer into the bridge account To
// and records a deposit for the bridge's rollup.
func (k Keeper) ExecuteBridgeLock(w storage.Writer, a *actions.BridgeLock) error {
	if err := xaddress.EnsureBase(w, a.To); err != nil {
		return err
	}
	bridgeAsset, err := Asset(w, a.To.Bytes())
	if err != nil {
		return err
	}
	if bridgeAsset != a.Asset.ToIbcPrefixed() {
		return errorsmod.Wrapf(ErrAssetMismatch, "got %s", a.Asset)
	}
	tx, err := meta.CurrentTx(w)
	if err != nil {
		return err
	}
	return k.lock(w, tx.Signer, a.To, a.Asset, a.Amount, a.DestinationChainAddress)
}

// lock debits from, credits the bridge and records the deposit.
func (k Keeper) lock(w storage.Writer, from [address.Length]byte, bridge address.Address, denom asset.Denom, amt amount.Amount, destination string) error {
	tx, err := meta.CurrentTx(w)
	if err != nil {
		return err
	}
	rollupID, found, err := RollupID(w, bridge.Bytes())
	if err != nil {
		return err
	}
	if !found {
		return errorsmod.Wrap(ErrNotBridgeAccount, bridge.String())
	}
	// Deposits always carry the trace prefixed form of the asset.
	depositAsset, err := assets.Resolve(w, denom)
	if err != nil {
		return err
	}
	id := denom.ToIbcPrefixed()
	if err := accounts.DecreaseBalance(w, from, id, amt); err != nil {
		return err
	}
	if err := accounts.IncreaseBalance(w, bridge.Bytes(), id, amt); err != nil {
		return err
	}
	d := &sequencerblock.Deposit{
		BridgeAddress:           bridge,
		RollupID:                rollupID,
		Amount:                  amt,
		Asset:                   depositAsset,
		DestinationChainAddress: destination,
		SourceTransactionID:     tx.TxID,
		SourceActionIndex:       tx.ActionIndex,
	}
	RecordDeposit(w, d)
	return nil
}

func depositEvent(d *sequencerblock.Deposit) abci.Event {
	return abci.Event{
		Type: EventTypeDeposit,
		Attributes: []abci.EventAttribute{
			{Key: "bridgeAddress", Value: d.BridgeAddress.String(), Index: true},
			{Key: "rollupId", Value: d.RollupID.Hex(), Index: true},
			{Key: "amount", Value: d.Amount.String(), Index: true},
			{Key: "asset", Value: d.Asset.String(), Index: true},
			{Key: "destinationChainAddress", Value: d.DestinationChainAddress, Index: true},
			{Key: "sourceTransactionId", Value: d.SourceTransactionID.Hex(), Index: true},
			{Key: "sourceActionIndex", Value: strconv.FormatUint(d.SourceActionIndex, 10), Index: true},
		},
	}
}

// checkWithdrawal verifies that the signer may withdraw from bridge and
// marks the withdrawal event as processed.
func checkWithdrawal(w storage.Writer, bridge address.Address, eventID string, rollupBlock uint64) error {
	tx, err := meta.CurrentTx(w)
	if err != nil {
		return err
	}
	if err := xaddress.EnsureBase(w, bridge); err != nil {
		return err
	}
	withdrawer, err := Withdrawer(w, bridge.Bytes())
	if err != nil {
		return err
	}
	if withdrawer != tx.Signer {
		return ErrNotWithdrawer
	}
	return CheckAndSetWithdrawalEvent(w, bridge.Bytes(), eventID, rollupBlock)
}

// ExecuteBridgeUnlock releases funds of a bridge account to To.
func (k Keeper) ExecuteBridgeUnlock(w storage.Writer, a *actions.BridgeUnlock) error {
	if err := xaddress.EnsureBase(w, a.To); err != nil {
		return err
	}
	if err := checkWithdrawal(w, a.BridgeAddress, a.RollupWithdrawalEventID, a.RollupBlockNumber); err != nil {
		return err
	}
	id, err := Asset(w, a.BridgeAddress.Bytes())
	if err != nil {
		return err
	}
	if err := accounts.DecreaseBalance(w, a.BridgeAddress.Bytes(), id, a.Amount); err != nil {
		return err
	}
	return accounts.IncreaseBalance(w, a.To.Bytes(), id, a.Amount)
}

// ExecuteBridgeTransfer moves funds between two bridge accounts holding the
// same asset, depositing them to the destination's rollup.
func (k Keeper) ExecuteBridgeTransfer(w storage.Writer, a *actions.BridgeTransfer) error {
	if err := xaddress.EnsureBase(w, a.To); err != nil {
		return err
	}
	if err := checkWithdrawal(w, a.BridgeAddress, a.RollupWithdrawalEventID, a.RollupBlockNumber); err != nil {
		return err
	}
	from, err := Asset(w, a.BridgeAddress.Bytes())
	if err != nil {
		return err
	}
	to, err := Asset(w, a.To.Bytes())
	if err != nil {
		return err
	}
	if from != to {
		return errorsmod.Wrap(ErrAssetMismatch, "bridge accounts must hold the same asset")
	}
	return k.lock(w, a.BridgeAddress.Bytes(), a.To, asset.FromIbc(from), a.Amount, a.DestinationChainAddress)
}

// ExecuteBridgeSudoChange replaces the sudo and/or withdrawer of a bridge
// account. Only the bridge's current sudo may do so.
func (k Keeper) ExecuteBridgeSudoChange(w storage.Writer, a *actions.BridgeSudoChange) error {
	tx, err := meta.CurrentTx(w)
	if err != nil {
		return err
	}
	if err := xaddress.EnsureBase(w, a.BridgeAddress); err != nil {
		return err
	}
	bridge := a.BridgeAddress.Bytes()
	sudo, err := Sudo(w, bridge)
	if err != nil {
		return err
	}
	if sudo != tx.Signer {
		return ErrNotBridgeSudo
	}
	if a.NewSudoAddress != nil {
		if err := xaddress.EnsureBase(w, *a.NewSudoAddress); err != nil {
			return err
		}
		if err := PutSudo(w, bridge, a.NewSudoAddress.Bytes()); err != nil {
			return err
		}
	}
	if a.NewWithdrawerAddress != nil {
		if err := xaddress.EnsureBase(w, *a.NewWithdrawerAddress); err != nil {
			return err
		}
		if err := PutWithdrawer(w, bridge, a.NewWithdrawerAddress.Bytes()); err != nil {
			return err
		}
	}
	return nil
}
