// Package amount implements the unsigned 128-bit quantities used for balances,
// fees and transfers. Every arithmetic operation is checked: results that do
// not fit in 128 bits are errors, never wrapped values.
package amount

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/holiman/uint256"
)

var (
	ErrOverflow  = errors.New("amount overflows 128 bits")
	ErrUnderflow = errors.New("amount underflows zero")
)

// Amount is an unsigned 128-bit integer. The zero value is 0.
type Amount struct {
	inner uint256.Int
}

// New returns an Amount holding v.
func New(v uint64) Amount {
	var a Amount
	a.inner.SetUint64(v)
	return a
}

// FromParts builds an Amount from its low and high 64-bit words.
func FromParts(lo, hi uint64) Amount {
	var a Amount
	a.inner[0] = lo
	a.inner[1] = hi
	return a
}

// Parse parses a base-10 string.
func Parse(s string) (Amount, error) {
	var a Amount
	if err := a.inner.SetFromDecimal(s); err != nil {
		return Amount{}, fmt.Errorf("parsing amount %q: %w", s, err)
	}
	if a.inner.BitLen() > 128 {
		return Amount{}, ErrOverflow
	}
	return a, nil
}

// MustParse is like Parse but panics on error. Only for tests and constants.
func MustParse(s string) Amount {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

// Parts returns the low and high 64-bit words.
func (a Amount) Parts() (lo, hi uint64) {
	return a.inner[0], a.inner[1]
}

func (a Amount) Add(b Amount) (Amount, error) {
	var out Amount
	if _, overflow := out.inner.AddOverflow(&a.inner, &b.inner); overflow || out.inner.BitLen() > 128 {
		return Amount{}, ErrOverflow
	}
	return out, nil
}

func (a Amount) Sub(b Amount) (Amount, error) {
	var out Amount
	if _, underflow := out.inner.SubOverflow(&a.inner, &b.inner); underflow {
		return Amount{}, ErrUnderflow
	}
	return out, nil
}

func (a Amount) Mul(b Amount) (Amount, error) {
	var out Amount
	if _, overflow := out.inner.MulOverflow(&a.inner, &b.inner); overflow || out.inner.BitLen() > 128 {
		return Amount{}, ErrOverflow
	}
	return out, nil
}

// SaturatingSub returns a-b, or zero if b > a.
func (a Amount) SaturatingSub(b Amount) Amount {
	out, err := a.Sub(b)
	if err != nil {
		return Amount{}
	}
	return out
}

func (a Amount) Cmp(b Amount) int { return a.inner.Cmp(&b.inner) }

func (a Amount) LT(b Amount) bool { return a.Cmp(b) < 0 }

func (a Amount) IsZero() bool { return a.inner.IsZero() }

func (a Amount) Equal(b Amount) bool { return a.inner.Eq(&b.inner) }

// IsUint64 reports whether the value fits in a uint64.
func (a Amount) IsUint64() bool { return a.inner.IsUint64() }

// Uint64 returns the low 64 bits.
func (a Amount) Uint64() uint64 { return a.inner.Uint64() }

func (a Amount) String() string { return a.inner.Dec() }

// LittleEndian returns the 16 byte little-endian encoding.
func (a Amount) LittleEndian() [16]byte {
	var out [16]byte
	lo, hi := a.Parts()
	for i := 0; i < 8; i++ {
		out[i] = byte(lo >> (8 * i))
		out[8+i] = byte(hi >> (8 * i))
	}
	return out
}

// FromLittleEndian decodes the encoding produced by LittleEndian.
func FromLittleEndian(b [16]byte) Amount {
	var lo, hi uint64
	for i := 0; i < 8; i++ {
		lo |= uint64(b[i]) << (8 * i)
		hi |= uint64(b[8+i]) << (8 * i)
	}
	return FromParts(lo, hi)
}

// MarshalJSON encodes the amount as a decimal string so values above 2^53
// survive JavaScript consumers.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

type partsJSON struct {
	Lo uint64 `json:"lo"`
	Hi uint64 `json:"hi"`
}

// UnmarshalJSON accepts a decimal string, a bare number, or a {"lo","hi"} object.
func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0:
		return errors.New("empty amount")
	case data[0] == '"':
		s, err := strconv.Unquote(string(data))
		if err != nil {
			return err
		}
		v, err := Parse(s)
		if err != nil {
			return err
		}
		*a = v
	case data[0] == '{':
		var p partsJSON
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		*a = FromParts(p.Lo, p.Hi)
	default:
		v, err := Parse(string(data))
		if err != nil {
			return err
		}
		*a = v
	}
	return nil
}
