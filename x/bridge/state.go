// Package bridge owns bridge accounts: their rollup, asset, sudo and
// withdrawer addresses, processed withdrawal events and the deposits made
// during the block.
package bridge

import (
	"encoding/hex"

	errorsmod "cosmossdk.io/errors"

	"github.com/astriaorg/astria-sequencer/pkg/address"
	"github.com/astriaorg/astria-sequencer/pkg/asset"
	"github.com/astriaorg/astria-sequencer/pkg/rollup"
	"github.com/astriaorg/astria-sequencer/pkg/sequencerblock"
	"github.com/astriaorg/astria-sequencer/pkg/storage"
	"github.com/astriaorg/astria-sequencer/pkg/storedvalue"
	"github.com/astriaorg/astria-sequencer/pkg/transaction"
	"github.com/astriaorg/astria-sequencer/x/meta"
)

const ModuleName = "bridge"

// ephemeral
const depositsKey = "bridge/deposits"

var (
	ErrNotBridgeAccount     = errorsmod.Register(ModuleName, 2, "account is not a bridge account")
	ErrAlreadyBridgeAccount = errorsmod.Register(ModuleName, 3, "account is already a bridge account")
	ErrAssetMismatch        = errorsmod.Register(ModuleName, 4, "asset does not match the bridge account asset")
	ErrNotWithdrawer        = errorsmod.Register(ModuleName, 5, "signer is not the bridge withdrawer")
	ErrNotBridgeSudo        = errorsmod.Register(ModuleName, 6, "signer is not the bridge sudo address")
	ErrWithdrawalEventSeen  = errorsmod.Register(ModuleName, 7, "withdrawal event already processed")
	ErrEmptyWithdrawalEvent = errorsmod.Register(ModuleName, 8, "withdrawal event id must be set")
)

func accountPrefix(addr [address.Length]byte) string {
	return "bridge/" + hex.EncodeToString(addr[:]) + "/"
}

func rollupIDKey(addr [address.Length]byte) string { return accountPrefix(addr) + "rollup_id" }
func assetKey(addr [address.Length]byte) string { return accountPrefix(addr) + "asset" }
func sudoKey(addr [address.Length]byte) string { return accountPrefix(addr) + "sudo" }
func withdrawerKey(addr [address.Length]byte) string { return accountPrefix(addr) + "withdrawer" }
func lastTxIDKey(addr [address.Length]byte) string { return accountPrefix(addr) + "last_tx_id" }
func withdrawalEventKey(addr [address.Length]byte, id string) string {
	return accountPrefix(addr) + "withdrawal_event/" + id
}

// AccountInfo describes one bridge account.
type AccountInfo struct {
	RollupID   rollup.ID
	Asset      asset.IbcPrefixed
	Sudo       [address.Length]byte
	Withdrawer [address.Length]byte
}

func PutRollupID(w storage.Writer, addr [address.Length]byte, id rollup.ID) error {
	return storage.PutValue(w, rollupIDKey(addr), storedvalue.RollupID{Value: id})
}

// RollupID returns the rollup of addr; found is false for non-bridge accounts.
func RollupID(r storage.Reader, addr [address.Length]byte) (rollup.ID, bool, error) {
	v, found, err := storage.GetValue[storedvalue.RollupID](r, rollupIDKey(addr))
	return v.Value, found, err
}

func PutAsset(w storage.Writer, addr [address.Length]byte, id asset.IbcPrefixed) error {
	return storage.PutValue(w, assetKey(addr), storedvalue.IbcPrefixedDenom{Value: id})
}

func Asset(r storage.Reader, addr [address.Length]byte) (asset.IbcPrefixed, error) {
	v, found, err := storage.GetValue[storedvalue.IbcPrefixedDenom](r, assetKey(addr))
	if err != nil {
		return asset.IbcPrefixed{}, err
	}
	if !found {
		return asset.IbcPrefixed{}, errorsmod.Wrap(ErrNotBridgeAccount, hex.EncodeToString(addr[:]))
	}
	return v.Value, nil
}

func PutSudo(w storage.Writer, addr, sudo [address.Length]byte) error {
	return storage.PutValue(w, sudoKey(addr), storedvalue.AddressBytes{Value: sudo})
}

func Sudo(r storage.Reader, addr [address.Length]byte) ([address.Length]byte, error) {
	return addressAt(r, sudoKey(addr), addr)
}

func PutWithdrawer(w storage.Writer, addr, withdrawer [address.Length]byte) error {
	return storage.PutValue(w, withdrawerKey(addr), storedvalue.AddressBytes{Value: withdrawer})
}

func Withdrawer(r storage.Reader, addr [address.Length]byte) ([address.Length]byte, error) {
	return addressAt(r, withdrawerKey(addr), addr)
}

func addressAt(r storage.Reader, key string, addr [address.Length]byte) ([address.Length]byte, error) {
	v, found, err := storage.GetValue[storedvalue.AddressBytes](r, key)
	if err != nil {
		return [address.Length]byte{}, err
	}
	if !found {
		return [address.Length]byte{}, errorsmod.Wrap(ErrNotBridgeAccount, hex.EncodeToString(addr[:]))
	}
	return v.Value, nil
}

// Info returns the full description of a bridge account.
func Info(r storage.Reader, addr [address.Length]byte) (AccountInfo, bool, error) {
	id, found, err := RollupID(r, addr)
	if err != nil || !found {
		return AccountInfo{}, found, err
	}
	info := AccountInfo{RollupID: id}
	if info.Asset, err = Asset(r, addr); err != nil {
		return AccountInfo{}, false, err
	}
	if info.Sudo, err = Sudo(r, addr); err != nil {
		return AccountInfo{}, false, err
	}
	if info.Withdrawer, err = Withdrawer(r, addr); err != nil {
		return AccountInfo{}, false, err
	}
	return info, true, nil
}

// CheckAndSetWithdrawalEvent records that eventID was processed at
// rollupBlock, failing if it was processed before.
func CheckAndSetWithdrawalEvent(w storage.Writer, addr [address.Length]byte, eventID string, rollupBlock uint64) error {
	if eventID == "" {
		return ErrEmptyWithdrawalEvent
	}
	key := withdrawalEventKey(addr, eventID)
	prev, found, err := storage.GetValue[storedvalue.BlockHeight](w, key)
	if err != nil {
		return err
	}
	if found {
		return errorsmod.Wrapf(ErrWithdrawalEventSeen, "event %q at rollup block %d", eventID, prev.Value)
	}
	return storage.PutValue(w, key, storedvalue.BlockHeight{Value: rollupBlock})
}

func PutLastTxID(w storage.Writer, addr [address.Length]byte, id transaction.ID) error {
	return storage.PutValue(w, lastTxIDKey(addr), storedvalue.TransactionID{Value: id})
}

// LastTxID is the id of the last transaction signed by the bridge account.
func LastTxID(r storage.Reader, addr [address.Length]byte) (transaction.ID, bool, error) {
	v, found, err := storage.GetValue[storedvalue.TransactionID](r, lastTxIDKey(addr))
	return transaction.ID(v.Value), found, err
}

// RecordDeposit queues d for the block and emits its event.
func RecordDeposit(w storage.Writer, d *sequencerblock.Deposit) {
	prev, _ := storage.GetObject[[]*sequencerblock.Deposit](w, depositsKey)
	next := make([]*sequencerblock.Deposit, len(prev), len(prev)+1)
	copy(next, prev)
	w.PutObject(depositsKey, append(next, d))
	meta.EmitEvent(w, depositEvent(d))
}

// Deposits returns the deposits made so far in the block, in execution order.
func Deposits(r storage.Reader) []*sequencerblock.Deposit {
	d, _ := storage.GetObject[[]*sequencerblock.Deposit](r, depositsKey)
	return d
}

// TakeDeposits returns the block deposits in execution order and clears them.
func TakeDeposits(w storage.Writer) []*sequencerblock.Deposit {
	all := Deposits(w)
	w.DeleteObject(depositsKey)
	return all
}
