// Package accounts owns balances and nonces.
package accounts

import (
	"encoding/hex"
	"strings"

	errorsmod "cosmossdk.io/errors"

	"github.com/astriaorg/astria-sequencer/pkg/address"
	"github.com/astriaorg/astria-sequencer/pkg/amount"
	"github.com/astriaorg/astria-sequencer/pkg/asset"
	"github.com/astriaorg/astria-sequencer/pkg/storage"
	"github.com/astriaorg/astria-sequencer/pkg/storedvalue"
)

const ModuleName = "accounts"

var (
	ErrInsufficientFunds = errorsmod.Register(ModuleName, 2, "insufficient funds")
	ErrBalanceOverflow   = errorsmod.Register(ModuleName, 3, "balance overflow")
	ErrNonceOverflow     = errorsmod.Register(ModuleName, 4, "nonce overflow")
	ErrBridgeSender      = errorsmod.Register(ModuleName, 5, "bridge accounts must use bridge unlock to move funds")
)

func accountPrefix(addr [address.Length]byte) string {
	return "accounts/" + hex.EncodeToString(addr[:]) + "/"
}

func balancePrefix(addr [address.Length]byte) string { return accountPrefix(addr) + "balance/" }

func balanceKey(addr [address.Length]byte, id asset.IbcPrefixed) string {
	return balancePrefix(addr) + id.Hex()
}

func nonceKey(addr [address.Length]byte) string { return accountPrefix(addr) + "nonce" }

func Balance(r storage.Reader, addr [address.Length]byte, id asset.IbcPrefixed) (amount.Amount, error) {
	v, _, err := storage.GetValue[storedvalue.Balance](r, balanceKey(addr, id))
	return v.Value.Amount(), err
}

func PutBalance(w storage.Writer, addr [address.Length]byte, id asset.IbcPrefixed, a amount.Amount) error {
	return storage.PutValue(w, balanceKey(addr, id), storedvalue.Balance{Value: storedvalue.NewU128(a)})
}

// IncreaseBalance credits addr, failing instead of wrapping.
func IncreaseBalance(w storage.Writer, addr [address.Length]byte, id asset.IbcPrefixed, a amount.Amount) error {
	cur, err := Balance(w, addr, id)
	if err != nil {
		return err
	}
	next, err := cur.Add(a)
	if err != nil {
		return errorsmod.Wrapf(ErrBalanceOverflow, "crediting %s of %s", a, id)
	}
	return PutBalance(w, addr, id, next)
}

// DecreaseBalance debits addr, failing if the balance is too low.
func DecreaseBalance(w storage.Writer, addr [address.Length]byte, id asset.IbcPrefixed, a amount.Amount) error {
	cur, err := Balance(w, addr, id)
	if err != nil {
		return err
	}
	next, err := cur.Sub(a)
	if err != nil {
		return errorsmod.Wrapf(ErrInsufficientFunds, "have %s, need %s of %s", cur, a, id)
	}
	return PutBalance(w, addr, id, next)
}

// Balances returns every non-zero balance of addr.
func Balances(r storage.Reader, addr [address.Length]byte) (map[asset.IbcPrefixed]amount.Amount, error) {
	prefix := balancePrefix(addr)
	out := map[asset.IbcPrefixed]amount.Amount{}
	var decErr error
	err := r.Iterate(prefix, func(key string, value []byte) bool {
		id, err := asset.ParseIbcPrefixed("ibc/" + strings.TrimPrefix(key, prefix))
		if err != nil {
			decErr = err
			return false
		}
		v, err := storedvalue.Deserialize[storedvalue.Balance](value)
		if err != nil {
			decErr = err
			return false
		}
		if a := v.Value.Amount(); !a.IsZero() {
			out[id] = a
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, decErr
}

// Nonce is 0 for accounts that never sent a transaction.
func Nonce(r storage.Reader, addr [address.Length]byte) (uint32, error) {
	v, _, err := storage.GetValue[storedvalue.Nonce](r, nonceKey(addr))
	return v.Value, err
}

func PutNonce(w storage.Writer, addr [address.Length]byte, nonce uint32) error {
	return storage.PutValue(w, nonceKey(addr), storedvalue.Nonce{Value: nonce})
}

// IncrementNonce advances addr's nonce by one.
func IncrementNonce(w storage.Writer, addr [address.Length]byte) error {
	cur, err := Nonce(w, addr)
	if err != nil {
		return err
	}
	if cur == ^uint32(0) {
		return ErrNonceOverflow
	}
	return PutNonce(w, addr, cur+1)
}
