// Package address stores the bech32 prefixes of the chain and checks that
// addresses carried by actions use them.
package address

import (
	errorsmod "cosmossdk.io/errors"

	addr "github.com/astriaorg/astria-sequencer/pkg/address"
	"github.com/astriaorg/astria-sequencer/pkg/storage"
	"github.com/astriaorg/astria-sequencer/pkg/storedvalue"
)

const ModuleName = "address"

const (
	baseKey   = "address/prefixes/base"
	compatKey = "address/prefixes/ibc_compat"
)

var (
	ErrPrefixNotSet    = errorsmod.Register(ModuleName, 2, "address prefix not set")
	ErrIncorrectPrefix = errorsmod.Register(ModuleName, 3, "address has incorrect prefix")
)

func PutBasePrefix(w storage.Writer, prefix string) error {
	return storage.PutValue(w, baseKey, storedvalue.AddressPrefix{Value: prefix})
}

func PutCompatPrefix(w storage.Writer, prefix string) error {
	return storage.PutValue(w, compatKey, storedvalue.AddressPrefix{Value: prefix})
}

func BasePrefix(r storage.Reader) (string, error) { return prefix(r, baseKey) }

func CompatPrefix(r storage.Reader) (string, error) { return prefix(r, compatKey) }

func prefix(r storage.Reader, key string) (string, error) {
	v, found, err := storage.GetValue[storedvalue.AddressPrefix](r, key)
	if err != nil {
		return "", err
	}
	if !found {
		return "", errorsmod.Wrap(ErrPrefixNotSet, key)
	}
	return v.Value, nil
}

// EnsureBase checks a has the base prefix.
func EnsureBase(r storage.Reader, a addr.Address) error {
	base, err := BasePrefix(r)
	if err != nil {
		return err
	}
	if a.Prefix() != base {
		return errorsmod.Wrapf(ErrIncorrectPrefix, "expected %q, got %q", base, a.Prefix())
	}
	return nil
}

// EnsureBaseOrCompat accepts the base and the compat prefix, as used by
// addresses coming from other chains.
func EnsureBaseOrCompat(r storage.Reader, a addr.Address) error {
	base, err := BasePrefix(r)
	if err != nil {
		return err
	}
	if a.Prefix() == base {
		return nil
	}
	compat, err := CompatPrefix(r)
	if err != nil {
		return err
	}
	if a.Prefix() != compat {
		return errorsmod.Wrapf(ErrIncorrectPrefix, "expected %q or %q, got %q", base, compat, a.Prefix())
	}
	return nil
}

// FromBytes renders raw bytes with the base prefix.
func FromBytes(r storage.Reader, raw [addr.Length]byte) (addr.Address, error) {
	base, err := BasePrefix(r)
	if err != nil {
		return addr.Address{}, err
	}
	return addr.New(base, raw), nil
}
