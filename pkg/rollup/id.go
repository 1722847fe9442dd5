// Package rollup holds the identifier of rollups whose data the sequencer
// orders.
package rollup

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// IDLength is the byte length of a rollup id.
const IDLength = 32

var ErrInvalidIDLength = errors.New("rollup id must be 32 bytes")

// ID identifies a rollup.
type ID [IDLength]byte

// IDFromName derives the conventional id of a rollup from its name.
func IDFromName(name string) ID {
	return sha256.Sum256([]byte(name))
}

// IDFromSlice copies b into an ID.
func IDFromSlice(b []byte) (ID, error) {
	if len(b) != IDLength {
		return ID{}, ErrInvalidIDLength
	}
	var id ID
	copy(id[:], b)
	return id, nil
}

func (id ID) Hex() string { return hex.EncodeToString(id[:]) }

func (id ID) String() string { return id.Hex() }

func (id ID) MarshalText() ([]byte, error) { return []byte(id.Hex()), nil }

func (id *ID) UnmarshalText(text []byte) error {
	raw, err := hex.DecodeString(string(text))
	if err != nil {
		return err
	}
	parsed, err := IDFromSlice(raw)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
