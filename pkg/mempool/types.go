package mempool

import (
	"errors"
	"fmt"
	"time"

	"github.com/astriaorg/astria-sequencer/pkg/actions"
	"github.com/astriaorg/astria-sequencer/pkg/address"
	"github.com/astriaorg/astria-sequencer/pkg/amount"
	"github.com/astriaorg/astria-sequencer/pkg/asset"
	"github.com/astriaorg/astria-sequencer/pkg/transaction"
)

var (
	ErrAlreadyPresent   = errors.New("transaction already exists in the mempool")
	ErrNonceTooLow      = errors.New("given nonce has already been used previously")
	ErrNonceTaken       = errors.New("given nonce already exists in the mempool")
	ErrAccountSizeLimit = errors.New("account has exceeded its parked transaction limit")
	ErrParkedSizeLimit  = errors.New("mempool has reached its parked transaction limit")
)

// Cost is what a transaction may debit from its signer, per asset.
type Cost map[asset.IbcPrefixed]amount.Amount

// Add returns the sum of c and other.
func (c Cost) Add(other Cost) (Cost, error) {
	out := make(Cost, len(c)+len(other))
	for k, v := range c {
		out[k] = v
	}
	for k, v := range other {
		sum, err := out[k].Add(v)
		if err != nil {
			return nil, fmt.Errorf("summing cost of %s: %w", k, err)
		}
		out[k] = sum
	}
	return out, nil
}

// CoveredBy reports whether balances hold at least c for every asset.
func (c Cost) CoveredBy(balances Balances) bool {
	for k, v := range c {
		if balances[k].LT(v) {
			return false
		}
	}
	return true
}

// Balances are an account's balances per asset.
type Balances map[asset.IbcPrefixed]amount.Amount

// Tx is a checked transaction held by the mempool.
type Tx struct {
	Tx        *transaction.Transaction
	Raw       []byte
	ID        transaction.ID
	Signer    [address.Length]byte
	Nonce     uint32
	Group     actions.Group
	Cost      Cost
	FirstSeen time.Time
}

// NewTx wraps a decoded, statelessly valid transaction.
func NewTx(tx *transaction.Transaction, raw []byte, cost Cost, now time.Time) (*Tx, error) {
	group, err := tx.Group()
	if err != nil {
		return nil, err
	}
	return &Tx{
		Tx:        tx,
		Raw:       raw,
		ID:        tx.ID(),
		Signer:    tx.SignerBytes(),
		Nonce:     tx.Nonce(),
		Group:     group,
		Cost:      cost,
		FirstSeen: now,
	}, nil
}

// Status is where an inserted transaction landed.
type Status uint8

const (
	StatusPending Status = iota + 1
	StatusParked
)

func (s Status) String() string {
	if s == StatusPending {
		return "pending"
	}
	return "parked"
}

// RemovalKind enumerates why a transaction left the mempool.
type RemovalKind uint8

const (
	RemovalExpired RemovalKind = iota + 1
	RemovalNonceStale
	RemovalLowerNonceInvalidated
	RemovalFailedPrepareProposal
	RemovalIncludedInBlock
	RemovalFailedRecost
)

// RemovalReason is remembered for removed transactions so CheckTx and
// clients can learn what happened to them.
type RemovalReason struct {
	Kind RemovalKind
	// Height is set for RemovalIncludedInBlock.
	Height uint64
	// Detail is the error for RemovalFailedPrepareProposal and
	// RemovalFailedRecost.
	Detail string
}

func (r RemovalReason) String() string {
	switch r.Kind {
	case RemovalExpired:
		return "transaction expired in the app's mempool"
	case RemovalNonceStale:
		return "transaction nonce is lower than the current nonce; it may have been included in a block"
	case RemovalLowerNonceInvalidated:
		return "transaction removed from the app's mempool due to a lower nonce being invalidated"
	case RemovalFailedPrepareProposal:
		return "transaction failed execution during prepare proposal: " + r.Detail
	case RemovalIncludedInBlock:
		return fmt.Sprintf("transaction included in block %d", r.Height)
	case RemovalFailedRecost:
		return "transaction cost could not be recomputed against the latest state: " + r.Detail
	}
	return "unknown removal reason"
}

// AccountState exposes the committed account data maintenance needs.
type AccountState interface {
	Nonce(addr [address.Length]byte) (uint32, error)
	Balances(addr [address.Length]byte) (Balances, error)
}
