// Package storedvalue defines the single tagged union written under every
// consensus-visible key. The encoding is one tag byte followed by the Borsh
// encoding of the variant, so a value written by one component can never be
// decoded as another component's type.
package storedvalue

import (
	"errors"
	"fmt"

	"github.com/near/borsh-go"
)

// Tag identifies a variant. Values are part of the state format and must never
// be reordered.
type Tag uint8

const (
	TagUnit Tag = iota
	TagChainID
	TagRevisionNumber
	TagStorageVersion
	TagBlockHeight
	TagBlockTimestamp
	TagAddressPrefix
	TagAddressBytes
	TagBalance
	TagNonce
	TagFees
	TagTracePrefixedDenom
	TagIbcPrefixedDenom
	TagRollupID
	TagValidatorSet
	TagIbcParameters
	TagIbcClientState
	TagIbcConsensusState
	TagIbcChannel
	TagIbcPacketCommitment
	TagCount
	TagChangeInfo
	TagConsensusParams
	TagBlockHash
	TagSequencerBlock
	TagMarketMap
	TagMarketMapParams
	TagCurrencyPair
	TagCurrencyPairID
	TagCurrencyPairState
	TagTransactionID
	TagIbcAcknowledgement
)

var (
	// ErrTypeMismatch is returned when the stored tag differs from the
	// requested variant.
	ErrTypeMismatch = errors.New("stored value type mismatch")
	ErrEmpty        = errors.New("stored value is empty")
)

// Value is implemented by every variant in this package and nothing else.
type Value interface {
	Tag() Tag
}

// Serialize encodes v with its tag.
func Serialize(v Value) ([]byte, error) {
	payload, err := borsh.Serialize(v)
	if err != nil {
		return nil, fmt.Errorf("borsh encoding stored value with tag %d: %w", v.Tag(), err)
	}
	out := make([]byte, 0, len(payload)+1)
	out = append(out, byte(v.Tag()))
	return append(out, payload...), nil
}

// MustSerialize panics on error. Encoding the fixed variants in this package
// only fails on programmer error.
func MustSerialize(v Value) []byte {
	bz, err := Serialize(v)
	if err != nil {
		panic(err)
	}
	return bz
}

// Deserialize decodes bz into the variant T, failing with ErrTypeMismatch if
// bz holds another variant.
func Deserialize[T Value](bz []byte) (T, error) {
	var v T
	if len(bz) == 0 {
		return v, ErrEmpty
	}
	if Tag(bz[0]) != v.Tag() {
		return v, fmt.Errorf("%w: expected tag %d, found %d", ErrTypeMismatch, v.Tag(), bz[0])
	}
	if err := borsh.Deserialize(&v, bz[1:]); err != nil {
		return v, fmt.Errorf("borsh decoding stored value with tag %d: %w", v.Tag(), err)
	}
	return v, nil
}
