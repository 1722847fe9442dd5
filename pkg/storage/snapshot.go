package storage

import (
	"crypto/sha256"
	"fmt"

	"github.com/cosmos/iavl"
	ics23 "github.com/cosmos/ics23/go"
)

// Reader is implemented by snapshots and deltas.
type Reader interface {
	// Get returns the value under key, or nil if absent.
	Get(key string) ([]byte, error)
	// GetObject returns an ephemeral object. Snapshots never hold objects.
	GetObject(key string) (any, bool)
	// Iterate calls fn for every key with the given prefix in ascending
	// order until fn returns false.
	Iterate(prefix string, fn func(key string, value []byte) bool) error
}

// Writer is a Reader that can stage writes. Only deltas implement it.
type Writer interface {
	Reader
	Put(key string, value []byte)
	Delete(key string)
	PutObject(key string, value any)
	DeleteObject(key string)
}

// Snapshot is a read-only view of a committed version.
type Snapshot struct {
	version int64
	tree    *iavl.ImmutableTree
}

var _ Reader = (*Snapshot)(nil)

func (s *Snapshot) Version() int64 { return s.version }

// RootHash returns the iavl root hash of the version.
func (s *Snapshot) RootHash() []byte {
	if s.tree == nil {
		return emptyRootHash()
	}
	return s.tree.Hash()
}

// AppHash returns the app hash committed for this version.
func (s *Snapshot) AppHash() []byte {
	return AppHash(s.RootHash())
}

func (s *Snapshot) Get(key string) ([]byte, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	if s.tree == nil {
		return nil, nil
	}
	v, err := s.tree.Get([]byte(key))
	if err != nil {
		return nil, fmt.Errorf("reading key %q at version %d: %w", key, s.version, err)
	}
	return v, nil
}

func (s *Snapshot) GetObject(string) (any, bool) { return nil, false }

func (s *Snapshot) Iterate(prefix string, fn func(key string, value []byte) bool) error {
	if s.tree == nil {
		return nil
	}
	start, end := prefixRange(prefix)
	s.tree.IterateRange(start, end, true, func(k, v []byte) bool {
		return !fn(string(k), v)
	})
	return nil
}

// GetWithProof returns the value under key together with an ICS23 existence
// or non-existence proof against RootHash.
func (s *Snapshot) GetWithProof(key string) ([]byte, *ics23.CommitmentProof, error) {
	if s.tree == nil {
		return nil, nil, fmt.Errorf("%w: no committed state", ErrVersionNotFound)
	}
	value, err := s.Get(key)
	if err != nil {
		return nil, nil, err
	}
	proof, err := s.tree.GetProof([]byte(key))
	if err != nil {
		return nil, nil, fmt.Errorf("building proof for key %q: %w", key, err)
	}
	return value, proof, nil
}

// VerifyProof checks a proof produced by GetWithProof. A nil value checks
// non-membership.
func VerifyProof(root []byte, key string, value []byte, proof *ics23.CommitmentProof) bool {
	if value == nil {
		return ics23.VerifyNonMembership(ics23.IavlSpec, root, proof, []byte(key))
	}
	return ics23.VerifyMembership(ics23.IavlSpec, root, proof, []byte(key), value)
}

func emptyRootHash() []byte {
	sum := sha256.Sum256(nil)
	return sum[:]
}

// prefixRange returns the [start, end) byte range covering prefix.
func prefixRange(prefix string) ([]byte, []byte) {
	if prefix == "" {
		return nil, nil
	}
	start := []byte(prefix)
	end := make([]byte, len(start))
	copy(end, start)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return start, end[:i+1]
		}
	}
	return start, nil
}
