// Package storage provides the versioned merkle store backing all consensus
// state. Committed versions are immutable iavl trees; all writes go through a
// Delta layered over a Snapshot and only reach the tree on commit.
package storage

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"sort"
	"sync"

	dbm "github.com/cosmos/cosmos-db"
	"github.com/cosmos/iavl"
	idb "github.com/cosmos/iavl/db"

	"github.com/astriaorg/astria-sequencer/pkg/appconsts"
)

var (
	ErrStaleDelta       = errors.New("delta is not based on the latest snapshot")
	ErrNotPrepared      = errors.New("no prepared commit")
	ErrVersionNotFound  = errors.New("version not found")
	ErrNestedCommit     = errors.New("only root deltas can be committed")
	ErrAlreadyPrepared  = errors.New("a commit is already prepared")
	ErrEmptyKey         = errors.New("key must not be empty")
	ErrMismatchedParent = errors.New("delta parent does not match")
)

// Storage owns the iavl tree. It is safe for concurrent use; readers only ever
// see immutable snapshots.
type Storage struct {
	mu     sync.RWMutex
	db     idb.DB
	tree   *iavl.MutableTree
	latest *Snapshot

	// prepared is the delta written into the working tree by PrepareCommit.
	prepared *Delta
}

// Open opens or creates a leveldb backed store under dir.
func Open(dir string, cacheSize int) (*Storage, error) {
	db, err := idb.NewDB("state", string(dbm.GoLevelDBBackend), dir)
	if err != nil {
		return nil, fmt.Errorf("opening leveldb for iavl: %w", err)
	}
	s, err := newStorage(db, cacheSize)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewMemory returns an in-memory store for tests.
func NewMemory() *Storage {
	s, err := newStorage(idb.NewMemDB(), 1000)
	if err != nil {
		panic(err)
	}
	return s
}

func newStorage(db idb.DB, cacheSize int) (*Storage, error) {
	tree := iavl.NewMutableTree(db, cacheSize, false, iavl.NewNopLogger())
	if _, err := tree.Load(); err != nil {
		return nil, fmt.Errorf("loading iavl tree: %w", err)
	}
	s := &Storage{db: db, tree: tree}
	snap, err := s.snapshotAt(tree.Version())
	if err != nil {
		return nil, err
	}
	s.latest = snap
	return s, nil
}

// SetInitialVersion makes the first committed version equal v rather than 1.
// It has no effect once a version has been saved.
func (s *Storage) SetInitialVersion(v uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tree.Version() == 0 && v > 1 {
		s.tree.SetInitialVersion(v)
	}
}

// LatestSnapshot returns the snapshot of the last committed version.
func (s *Storage) LatestSnapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

// LatestVersion returns the last committed version, 0 if nothing was committed.
func (s *Storage) LatestVersion() int64 {
	return s.LatestSnapshot().Version()
}

// SnapshotAt returns the snapshot of a committed version.
func (s *Storage) SnapshotAt(version int64) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotAt(version)
}

func (s *Storage) snapshotAt(version int64) (*Snapshot, error) {
	if version == 0 {
		return &Snapshot{version: 0}, nil
	}
	if !s.tree.VersionExists(version) {
		return nil, fmt.Errorf("%w: %d", ErrVersionNotFound, version)
	}
	imm, err := s.tree.GetImmutable(version)
	if err != nil {
		return nil, fmt.Errorf("loading immutable tree at version %d: %w", version, err)
	}
	return &Snapshot{version: version, tree: imm}, nil
}

// PrepareCommit writes d into the working tree and returns the resulting root
// hash without persisting anything. d must be a root delta over the latest
// snapshot. Calling PrepareCommit again discards the previously prepared delta.
func (s *Storage) PrepareCommit(d *Delta) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if d.parentDelta != nil {
		return nil, ErrNestedCommit
	}
	if d.snapshot != s.latest {
		return nil, ErrStaleDelta
	}
	if s.prepared != nil {
		s.tree.Rollback()
		s.prepared = nil
	}
	if err := s.writeToTree(d); err != nil {
		s.tree.Rollback()
		return nil, err
	}
	s.prepared = d
	return s.tree.WorkingHash(), nil
}

// Commit persists the prepared delta as a new version.
func (s *Storage) Commit() (int64, []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.prepared == nil {
		return 0, nil, ErrNotPrepared
	}
	hash, version, err := s.tree.SaveVersion()
	if err != nil {
		s.tree.Rollback()
		s.prepared = nil
		return 0, nil, fmt.Errorf("saving version: %w", err)
	}
	s.prepared = nil
	snap, err := s.snapshotAt(version)
	if err != nil {
		return 0, nil, err
	}
	s.latest = snap
	return version, hash, nil
}

// CommitDelta prepares and commits d in one step.
func (s *Storage) CommitDelta(d *Delta) (int64, []byte, error) {
	if _, err := s.PrepareCommit(d); err != nil {
		return 0, nil, err
	}
	return s.Commit()
}

// DiscardPrepared rolls back a prepared but uncommitted delta.
func (s *Storage) DiscardPrepared() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.prepared != nil {
		s.tree.Rollback()
		s.prepared = nil
	}
}

func (s *Storage) writeToTree(d *Delta) error {
	keys := make([]string, 0, len(d.writes))
	for k := range d.writes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := d.writes[k]
		if v == nil {
			if _, _, err := s.tree.Remove([]byte(k)); err != nil {
				return fmt.Errorf("removing key %q: %w", k, err)
			}
			continue
		}
		if _, err := s.tree.Set([]byte(k), *v); err != nil {
			return fmt.Errorf("setting key %q: %w", k, err)
		}
	}
	return nil
}

// Close releases the underlying database.
func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// AppHash binds a store root to the sequencer: SHA256("AstriaAppHash" || root).
func AppHash(root []byte) []byte {
	h := sha256.New()
	h.Write([]byte(appconsts.AppHashDomain))
	h.Write(root)
	return h.Sum(nil)
}
