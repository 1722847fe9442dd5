// Package transaction implements the signed sequencer transaction: a body of
// actions sharing a nonce and fee asset, signed with ed25519 over the exact
// body bytes carried on the wire.
package transaction

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/cometbft/cometbft/crypto/ed25519"

	"github.com/astriaorg/astria-sequencer/pkg/actions"
	"github.com/astriaorg/astria-sequencer/pkg/address"
	"github.com/astriaorg/astria-sequencer/pkg/asset"
	"github.com/astriaorg/astria-sequencer/pkg/wire"
)

var (
	ErrInvalidSignature = errors.New("signature does not verify over the transaction body")
	ErrInvalidKey       = fmt.Errorf("verification key must be %d bytes", ed25519.PubKeySize)
	ErrMissingBody      = errors.New("transaction body is missing")
	ErrNoActions        = errors.New("transaction must contain at least one action")
	ErrChainIDMismatch  = errors.New("transaction chain id does not match the network")
	ErrMissingFeeAsset  = errors.New("transaction fee asset must be set")
)

// ID is the SHA-256 digest of an encoded signed transaction.
type ID [32]byte

// IDOf hashes raw transaction bytes.
func IDOf(raw []byte) ID { return sha256.Sum256(raw) }

func (id ID) Hex() string { return hex.EncodeToString(id[:]) }

func (id ID) String() string { return id.Hex() }

// Body is the signed part of a transaction.
type Body struct {
	ChainID  string
	Nonce    uint32
	FeeAsset asset.Denom
	Actions  []actions.Action
}

func (b *Body) MarshalWire(e *wire.Encoder) {
	e.String(1, b.ChainID)
	e.Uint32(2, b.Nonce)
	if !b.FeeAsset.IsZero() {
		e.String(3, b.FeeAsset.String())
	}
	for _, a := range b.Actions {
		e.Message(4, actions.Wrap(a))
	}
}

// Encode returns the canonical encoding of the body.
func (b *Body) Encode() []byte { return wire.Marshal(b) }

// DecodeBody decodes a body message.
func DecodeBody(bz []byte) (*Body, error) {
	b := &Body{}
	err := wire.Decode(bz, func(f wire.Field) (err error) {
		switch f.Num {
		case 1:
			b.ChainID, err = f.AsString()
		case 2:
			b.Nonce, err = f.AsUint32()
		case 3:
			var s string
			if s, err = f.AsString(); err != nil {
				return err
			}
			b.FeeAsset, err = asset.Parse(s)
		case 4:
			var raw []byte
			if raw, err = f.AsBytes(); err != nil {
				return err
			}
			var a actions.Action
			if a, err = actions.Unmarshal(raw); err != nil {
				return fmt.Errorf("action %d: %w", len(b.Actions), err)
			}
			b.Actions = append(b.Actions, a)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("decoding transaction body: %w", err)
	}
	return b, nil
}

// Sign signs the canonical encoding of b.
func (b *Body) Sign(key ed25519.PrivKey) (*Transaction, error) {
	raw := b.Encode()
	sig, err := key.Sign(raw)
	if err != nil {
		return nil, fmt.Errorf("signing transaction body: %w", err)
	}
	return &Transaction{
		Signature:       sig,
		VerificationKey: key.PubKey().(ed25519.PubKey),
		Body:            b,
		rawBody:         raw,
	}, nil
}

// Transaction is a signed body.
type Transaction struct {
	Signature       []byte
	VerificationKey ed25519.PubKey
	Body            *Body

	// rawBody is the body exactly as signed.
	rawBody []byte
	id      *ID
}

func (t *Transaction) MarshalWire(e *wire.Encoder) {
	e.Bytes(1, t.Signature)
	e.Bytes(2, t.VerificationKey)
	e.Bytes(3, t.RawBody())
}

// Encode returns the wire encoding of the signed transaction.
func (t *Transaction) Encode() []byte { return wire.Marshal(t) }

// RawBody returns the signed body bytes.
func (t *Transaction) RawBody() []byte {
	if t.rawBody == nil && t.Body != nil {
		t.rawBody = t.Body.Encode()
	}
	return t.rawBody
}

// ID returns the hash of the encoded transaction.
func (t *Transaction) ID() ID {
	if t.id == nil {
		id := IDOf(t.Encode())
		t.id = &id
	}
	return *t.id
}

// SignerBytes returns the address bytes derived from the verification key.
func (t *Transaction) SignerBytes() [address.Length]byte {
	return address.BytesFromVerificationKey(t.VerificationKey)
}

// Signer returns the signer address rendered under prefix.
func (t *Transaction) Signer(prefix string) address.Address {
	return address.New(prefix, t.SignerBytes())
}

// Nonce returns the body nonce.
func (t *Transaction) Nonce() uint32 { return t.Body.Nonce }

// Actions returns the body actions.
func (t *Transaction) Actions() []actions.Action { return t.Body.Actions }

// Group returns the action group of the transaction.
func (t *Transaction) Group() (actions.Group, error) { return actions.GroupOf(t.Body.Actions) }

// Verify checks the signature over the raw body.
func (t *Transaction) Verify() error {
	if len(t.VerificationKey) != ed25519.PubKeySize {
		return ErrInvalidKey
	}
	if !t.VerificationKey.VerifySignature(t.RawBody(), t.Signature) {
		return ErrInvalidSignature
	}
	return nil
}

// ValidateBasic runs every check that does not need state: chain id, fee
// asset, action groups and each action's own structural checks.
func (t *Transaction) ValidateBasic(chainID string) error {
	if t.Body == nil {
		return ErrMissingBody
	}
	if t.Body.ChainID != chainID {
		return fmt.Errorf("%w: got %q, want %q", ErrChainIDMismatch, t.Body.ChainID, chainID)
	}
	if t.Body.FeeAsset.IsZero() {
		return ErrMissingFeeAsset
	}
	if len(t.Body.Actions) == 0 {
		return ErrNoActions
	}
	if _, err := t.Group(); err != nil {
		return err
	}
	for i, a := range t.Body.Actions {
		if err := a.ValidateBasic(); err != nil {
			return fmt.Errorf("action %d (%s): %w", i, a.Kind(), err)
		}
	}
	return nil
}

// Decode parses raw transaction bytes and verifies the signature. The id is
// the hash of raw as received.
func Decode(raw []byte) (*Transaction, error) {
	t := &Transaction{}
	var haveBody bool
	err := wire.Decode(raw, func(f wire.Field) (err error) {
		switch f.Num {
		case 1:
			t.Signature, err = f.AsBytes()
		case 2:
			var key []byte
			if key, err = f.AsBytes(); err != nil {
				return err
			}
			t.VerificationKey = ed25519.PubKey(key)
		case 3:
			t.rawBody, err = f.AsBytes()
			haveBody = true
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("decoding transaction: %w", err)
	}
	if !haveBody {
		return nil, ErrMissingBody
	}
	if err := t.Verify(); err != nil {
		return nil, err
	}
	if t.Body, err = DecodeBody(t.rawBody); err != nil {
		return nil, err
	}
	id := IDOf(raw)
	t.id = &id
	return t, nil
}
