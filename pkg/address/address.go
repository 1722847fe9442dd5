// Package address implements sequencer account addresses: 20 bytes derived
// from an ed25519 verification key, rendered as bech32m with a configurable
// human readable prefix. A bech32 (non-m) "compat" form exists for IBC
// counterparties that cannot parse bech32m; it is accepted on ingress only.
package address

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/cometbft/cometbft/crypto/ed25519"
)

// Length is the number of bytes in an address.
const Length = 20

var (
	ErrInvalidLength = fmt.Errorf("address must be %d bytes", Length)
	ErrEmptyPrefix   = errors.New("address prefix must not be empty")
)

// Address is a 20 byte account address together with the prefix it was
// parsed with or will be rendered with. Equality only considers the bytes.
type Address struct {
	prefix string
	bytes  [Length]byte
	compat bool
}

// New returns the bech32m address for raw with the given prefix.
func New(prefix string, raw [Length]byte) Address {
	return Address{prefix: prefix, bytes: raw}
}

// NewCompat returns the bech32 (compat) address for raw with the given prefix.
func NewCompat(prefix string, raw [Length]byte) Address {
	return Address{prefix: prefix, bytes: raw, compat: true}
}

// FromSlice copies b into an address. b must be exactly Length bytes long.
func FromSlice(prefix string, b []byte) (Address, error) {
	if len(b) != Length {
		return Address{}, ErrInvalidLength
	}
	var raw [Length]byte
	copy(raw[:], b)
	return New(prefix, raw), nil
}

// BytesFromVerificationKey derives the address bytes of an ed25519 key: the
// first 20 bytes of its SHA-256 digest.
func BytesFromVerificationKey(pub ed25519.PubKey) [Length]byte {
	sum := sha256.Sum256(pub)
	var raw [Length]byte
	copy(raw[:], sum[:Length])
	return raw
}

// FromVerificationKey returns the address of pub rendered with prefix.
func FromVerificationKey(prefix string, pub ed25519.PubKey) Address {
	return New(prefix, BytesFromVerificationKey(pub))
}

// Parse decodes a bech32m or bech32 address string.
func Parse(s string) (Address, error) {
	hrp, data, version, err := bech32.DecodeGeneric(s)
	if err != nil {
		return Address{}, fmt.Errorf("decoding address %q: %w", s, err)
	}
	if hrp == "" {
		return Address{}, ErrEmptyPrefix
	}
	converted, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("converting address bits: %w", err)
	}
	addr, err := FromSlice(hrp, converted)
	if err != nil {
		return Address{}, err
	}
	switch version {
	case bech32.VersionM:
	case bech32.Version0:
		addr.compat = true
	default:
		return Address{}, fmt.Errorf("unsupported bech32 variant for address %q", s)
	}
	return addr, nil
}

// MustParse is like Parse but panics. For tests and constants.
func MustParse(s string) Address {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Address) Prefix() string { return a.prefix }

func (a Address) Bytes() [Length]byte { return a.bytes }

// IsCompat reports whether the address uses the bech32 compat encoding.
func (a Address) IsCompat() bool { return a.compat }

// IsZero reports whether the address was never set.
func (a Address) IsZero() bool { return a.prefix == "" && a.bytes == [Length]byte{} }

func (a Address) Equal(other Address) bool { return bytes.Equal(a.bytes[:], other.bytes[:]) }

// Hex returns the lowercase hex of the raw bytes. Used in storage keys.
func (a Address) Hex() string { return hex.EncodeToString(a.bytes[:]) }

// WithPrefix re-renders the same bytes under another prefix.
func (a Address) WithPrefix(prefix string) Address {
	return Address{prefix: prefix, bytes: a.bytes, compat: a.compat}
}

// Encode renders the address as bech32m, or bech32 for compat addresses.
func (a Address) Encode() (string, error) {
	if a.prefix == "" {
		return "", ErrEmptyPrefix
	}
	conv, err := bech32.ConvertBits(a.bytes[:], 8, 5, true)
	if err != nil {
		return "", err
	}
	if a.compat {
		return bech32.Encode(a.prefix, conv)
	}
	return bech32.EncodeM(a.prefix, conv)
}

// String renders the address, falling back to hex if it has no prefix.
func (a Address) String() string {
	s, err := a.Encode()
	if err != nil {
		return a.Hex()
	}
	return s
}

func (a Address) MarshalText() ([]byte, error) {
	s, err := a.Encode()
	if err != nil {
		return nil, err
	}
	return []byte(s), nil
}

func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
