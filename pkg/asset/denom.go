// Package asset models sequencer assets. An asset is either a trace prefixed
// denomination ("transfer/channel-0/utia") or its ibc prefixed digest
// ("ibc/<sha256 hex>"). Storage always keys on the ibc prefixed form; the
// trace form is kept for display and for ICS20 routing.
package asset

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const ibcPrefix = "ibc/"

var (
	ErrEmptyDenom     = errors.New("denom must not be empty")
	ErrInvalidTrace   = errors.New("trace prefixed denom must be a sequence of port/channel pairs followed by a base denom")
	ErrInvalidIbcHash = errors.New("ibc prefixed denom must hold 32 hex encoded bytes")
)

// IbcPrefixed is the SHA-256 digest of a trace prefixed denom.
type IbcPrefixed [32]byte

// Hex returns the lowercase hex digest. Used in storage keys.
func (d IbcPrefixed) Hex() string { return hex.EncodeToString(d[:]) }

func (d IbcPrefixed) String() string { return ibcPrefix + d.Hex() }

// ParseIbcPrefixed parses "ibc/<hex>".
func ParseIbcPrefixed(s string) (IbcPrefixed, error) {
	if !strings.HasPrefix(s, ibcPrefix) {
		return IbcPrefixed{}, ErrInvalidIbcHash
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(s, ibcPrefix))
	if err != nil || len(raw) != 32 {
		return IbcPrefixed{}, ErrInvalidIbcHash
	}
	var d IbcPrefixed
	copy(d[:], raw)
	return d, nil
}

// TracePrefixed is a denom with its full IBC path.
type TracePrefixed struct {
	// Trace holds alternating port and channel segments, outermost first.
	Trace     []string
	BaseDenom string
}

// String renders "port/channel/.../base".
func (t TracePrefixed) String() string {
	if len(t.Trace) == 0 {
		return t.BaseDenom
	}
	return strings.Join(t.Trace, "/") + "/" + t.BaseDenom
}

// ToIbcPrefixed hashes the full path.
func (t TracePrefixed) ToIbcPrefixed() IbcPrefixed {
	return sha256.Sum256([]byte(t.String()))
}

// HasLeadingPortAndChannel reports whether the outermost hop is port/channel.
func (t TracePrefixed) HasLeadingPortAndChannel(port, channel string) bool {
	return len(t.Trace) >= 2 && t.Trace[0] == port && t.Trace[1] == channel
}

// PopLeadingPortAndChannel returns the denom without its outermost hop.
func (t TracePrefixed) PopLeadingPortAndChannel() TracePrefixed {
	if len(t.Trace) < 2 {
		return t
	}
	return TracePrefixed{Trace: append([]string(nil), t.Trace[2:]...), BaseDenom: t.BaseDenom}
}

// PrependPortAndChannel returns the denom with a new outermost hop.
func (t TracePrefixed) PrependPortAndChannel(port, channel string) TracePrefixed {
	trace := make([]string, 0, len(t.Trace)+2)
	trace = append(trace, port, channel)
	trace = append(trace, t.Trace...)
	return TracePrefixed{Trace: trace, BaseDenom: t.BaseDenom}
}

// ParseTracePrefixed parses "port/channel/.../base".
func ParseTracePrefixed(s string) (TracePrefixed, error) {
	if s == "" {
		return TracePrefixed{}, ErrEmptyDenom
	}
	segments := strings.Split(s, "/")
	for _, seg := range segments {
		if seg == "" {
			return TracePrefixed{}, ErrInvalidTrace
		}
	}
	if (len(segments)-1)%2 != 0 {
		return TracePrefixed{}, ErrInvalidTrace
	}
	last := len(segments) - 1
	return TracePrefixed{Trace: segments[:last], BaseDenom: segments[last]}, nil
}

// Denom is either a trace prefixed or an ibc prefixed asset.
type Denom struct {
	trace *TracePrefixed
	ibc   IbcPrefixed
}

// FromTrace wraps a trace prefixed denom.
func FromTrace(t TracePrefixed) Denom {
	return Denom{trace: &t}
}

// FromIbc wraps an ibc prefixed denom.
func FromIbc(d IbcPrefixed) Denom {
	return Denom{ibc: d}
}

// Parse accepts both "ibc/<hex>" and trace prefixed strings.
func Parse(s string) (Denom, error) {
	if strings.HasPrefix(s, ibcPrefix) {
		d, err := ParseIbcPrefixed(s)
		if err != nil {
			return Denom{}, err
		}
		return FromIbc(d), nil
	}
	t, err := ParseTracePrefixed(s)
	if err != nil {
		return Denom{}, fmt.Errorf("parsing denom %q: %w", s, err)
	}
	return FromTrace(t), nil
}

// MustParse is like Parse but panics. For tests and constants.
func MustParse(s string) Denom {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// AsTrace returns the trace prefixed form if the denom carries one.
func (d Denom) AsTrace() (TracePrefixed, bool) {
	if d.trace == nil {
		return TracePrefixed{}, false
	}
	return *d.trace, true
}

// ToIbcPrefixed returns the storage form of the denom.
func (d Denom) ToIbcPrefixed() IbcPrefixed {
	if d.trace != nil {
		return d.trace.ToIbcPrefixed()
	}
	return d.ibc
}

// IsZero reports whether the denom was never set.
func (d Denom) IsZero() bool { return d.trace == nil && d.ibc == IbcPrefixed{} }

// Equal compares two denoms by their ibc prefixed form.
func (d Denom) Equal(other Denom) bool {
	return d.ToIbcPrefixed() == other.ToIbcPrefixed()
}

func (d Denom) String() string {
	if d.trace != nil {
		return d.trace.String()
	}
	return d.ibc.String()
}

func (d Denom) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Denom) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
