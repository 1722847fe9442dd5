// Package mempool holds the app-side mempool. Each account has a pending
// container of transactions that are executable now, in nonce order starting
// at the account's current nonce, and a parked container of transactions that
// are not yet executable because of a nonce gap or an insufficient balance.
package mempool

import (
	"bytes"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"cosmossdk.io/log"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/astriaorg/astria-sequencer/pkg/address"
	"github.com/astriaorg/astria-sequencer/pkg/appconsts"
	"github.com/astriaorg/astria-sequencer/pkg/transaction"
)

// Config bounds the mempool.
type Config struct {
	MaxParkedTxs           int
	MaxParkedTxsPerAccount int
	TTL                    time.Duration
	RemovalCacheSize       int
}

// DefaultConfig returns the limits used by a node that does not override them.
func DefaultConfig() Config {
	return Config{
		MaxParkedTxs:           appconsts.DefaultMaxParkedTxs,
		MaxParkedTxsPerAccount: appconsts.MaxParkedTxsPerAccount,
		TTL:                    appconsts.TxTTL,
		RemovalCacheSize:       appconsts.RemovalCacheSize,
	}
}

type account struct {
	pending map[uint32]*Tx
	parked  map[uint32]*Tx
}

func newAccount() *account {
	return &account{pending: map[uint32]*Tx{}, parked: map[uint32]*Tx{}}
}

func (a *account) empty() bool { return len(a.pending) == 0 && len(a.parked) == 0 }

func (a *account) has(nonce uint32) bool {
	_, inPending := a.pending[nonce]
	_, inParked := a.parked[nonce]
	return inPending || inParked
}

// sorted returns every tx of the account in nonce order.
func (a *account) sorted() []*Tx {
	out := make([]*Tx, 0, len(a.pending)+len(a.parked))
	for _, tx := range a.pending {
		out = append(out, tx)
	}
	for _, tx := range a.parked {
		out = append(out, tx)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Nonce < out[j].Nonce })
	return out
}

// pendingCost sums the costs of the pending txs.
func (a *account) pendingCost() (Cost, error) {
	total := Cost{}
	for _, tx := range a.pending {
		var err error
		if total, err = total.Add(tx.Cost); err != nil {
			return nil, err
		}
	}
	return total, nil
}

// Mempool is safe for concurrent use.
type Mempool struct {
	mu       sync.Mutex
	cfg      Config
	logger   log.Logger
	accounts map[[address.Length]byte]*account
	ids      map[transaction.ID]*Tx
	parked   int
	removed  *lru.Cache[transaction.ID, RemovalReason]
	now      func() time.Time
}

// New returns an empty mempool.
func New(cfg Config, logger log.Logger) (*Mempool, error) {
	removed, err := lru.New[transaction.ID, RemovalReason](cfg.RemovalCacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating removal cache: %w", err)
	}
	return &Mempool{
		cfg:      cfg,
		logger:   logger.With("module", "mempool"),
		accounts: map[[address.Length]byte]*account{},
		ids:      map[transaction.ID]*Tx{},
		removed:  removed,
		now:      time.Now,
	}, nil
}

// SetClock replaces the clock used for expiry. Tests only.
func (m *Mempool) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Insert adds tx given the signer's current nonce and balances. It reports
// whether the tx landed in the pending or the parked container.
func (m *Mempool) Insert(tx *Tx, accountNonce uint32, balances Balances) (Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.ids[tx.ID]; ok {
		return 0, ErrAlreadyPresent
	}
	if tx.Nonce < accountNonce {
		return 0, ErrNonceTooLow
	}
	acct, ok := m.accounts[tx.Signer]
	if !ok {
		acct = newAccount()
	}
	if acct.has(tx.Nonce) {
		return 0, ErrNonceTaken
	}

	status, err := m.place(acct, tx, accountNonce, balances)
	if err != nil {
		return 0, err
	}
	m.accounts[tx.Signer] = acct
	m.ids[tx.ID] = tx
	if status == StatusPending {
		m.promote(acct, balances)
	}
	m.logger.Debug("inserted transaction", "tx_id", tx.ID, "nonce", tx.Nonce, "status", status)
	return status, nil
}

func (m *Mempool) place(acct *account, tx *Tx, accountNonce uint32, balances Balances) (Status, error) {
	next := accountNonce
	for {
		if _, ok := acct.pending[next]; !ok {
			break
		}
		next++
	}
	if tx.Nonce == next {
		cost, err := acct.pendingCost()
		if err != nil {
			return 0, err
		}
		if cost, err = cost.Add(tx.Cost); err != nil {
			return 0, err
		}
		if cost.CoveredBy(balances) {
			acct.pending[tx.Nonce] = tx
			return StatusPending, nil
		}
	}
	if len(acct.parked) >= m.cfg.MaxParkedTxsPerAccount {
		return 0, ErrAccountSizeLimit
	}
	if m.parked >= m.cfg.MaxParkedTxs {
		return 0, ErrParkedSizeLimit
	}
	acct.parked[tx.Nonce] = tx
	m.parked++
	return StatusParked, nil
}

// promote moves parked txs that continue the pending run into pending while
// the account can pay for them.
func (m *Mempool) promote(acct *account, balances Balances) {
	if len(acct.pending) == 0 {
		return
	}
	var highest uint32
	for nonce := range acct.pending {
		highest = max(highest, nonce)
	}
	cost, err := acct.pendingCost()
	if err != nil {
		return
	}
	for next := highest + 1; ; next++ {
		tx, ok := acct.parked[next]
		if !ok {
			return
		}
		withTx, err := cost.Add(tx.Cost)
		if err != nil || !withTx.CoveredBy(balances) {
			return
		}
		cost = withTx
		delete(acct.parked, next)
		m.parked--
		acct.pending[next] = tx
	}
}

// removeLocked drops tx from its account and records why.
func (m *Mempool) removeLocked(tx *Tx, reason RemovalReason) {
	acct, ok := m.accounts[tx.Signer]
	if ok {
		if _, parked := acct.parked[tx.Nonce]; parked {
			delete(acct.parked, tx.Nonce)
			m.parked--
		}
		delete(acct.pending, tx.Nonce)
		if acct.empty() {
			delete(m.accounts, tx.Signer)
		}
	}
	delete(m.ids, tx.ID)
	m.removed.Add(tx.ID, reason)
}

// RemoveTxInvalid removes tx and every tx of the same signer with a higher
// nonce, which can no longer execute.
func (m *Mempool) RemoveTxInvalid(id transaction.ID, reason RemovalReason) []transaction.ID {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, ok := m.ids[id]
	if !ok {
		return nil
	}
	removed := []transaction.ID{id}
	acct := m.accounts[tx.Signer]
	m.removeLocked(tx, reason)
	if acct == nil {
		return removed
	}
	for _, other := range acct.sorted() {
		if other.Nonce > tx.Nonce {
			m.removeLocked(other, RemovalReason{Kind: RemovalLowerNonceInvalidated})
			removed = append(removed, other.ID)
		}
	}
	return removed
}

// MarkIncluded removes the txs executed in the block at height.
func (m *Mempool) MarkIncluded(ids []transaction.ID, height uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range ids {
		if tx, ok := m.ids[id]; ok {
			m.removeLocked(tx, RemovalReason{Kind: RemovalIncludedInBlock, Height: height})
			continue
		}
		m.removed.Add(id, RemovalReason{Kind: RemovalIncludedInBlock, Height: height})
	}
}

// BuilderQueue returns the pending txs in proposal order: higher action
// group first, then smaller distance from the signer's current nonce, then
// earlier arrival, then tx id.
func (m *Mempool) BuilderQueue(nonceOf func([address.Length]byte) (uint32, error)) ([]*Tx, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	type entry struct {
		tx   *Tx
		diff uint32
	}
	entries := make([]entry, 0, len(m.ids))
	for signer, acct := range m.accounts {
		if len(acct.pending) == 0 {
			continue
		}
		current, err := nonceOf(signer)
		if err != nil {
			return nil, fmt.Errorf("reading nonce of %x: %w", signer, err)
		}
		for _, tx := range acct.pending {
			if tx.Nonce < current {
				continue
			}
			entries = append(entries, entry{tx: tx, diff: tx.Nonce - current})
		}
	}
	slices.SortFunc(entries, func(a, b entry) int {
		switch {
		case a.tx.Group != b.tx.Group:
			return int(b.tx.Group) - int(a.tx.Group)
		case a.diff != b.diff:
			if a.diff < b.diff {
				return -1
			}
			return 1
		case !a.tx.FirstSeen.Equal(b.tx.FirstSeen):
			return a.tx.FirstSeen.Compare(b.tx.FirstSeen)
		}
		return bytes.Compare(a.tx.ID[:], b.tx.ID[:])
	})
	out := make([]*Tx, len(entries))
	for i, e := range entries {
		out[i] = e.tx
	}
	return out, nil
}

// PendingNonce returns the nonce following the signer's highest pending tx.
func (m *Mempool) PendingNonce(signer [address.Length]byte) (uint32, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	acct, ok := m.accounts[signer]
	if !ok || len(acct.pending) == 0 {
		return 0, false
	}
	var highest uint32
	for nonce := range acct.pending {
		highest = max(highest, nonce)
	}
	return highest + 1, true
}

// RunMaintenance reconciles every account with committed state: stale and
// expired txs are dropped, and the containers are rebuilt so pending holds
// the affordable run starting at the current nonce. If recost is non-nil each
// tx's cost is recomputed first; a tx whose cost cannot be computed, e.g.
// because its action was disabled, is removed.
func (m *Mempool) RunMaintenance(state AccountState, recost func(*Tx) (Cost, error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for signer, acct := range m.accounts {
		nonce, err := state.Nonce(signer)
		if err != nil {
			return fmt.Errorf("reading nonce of %x: %w", signer, err)
		}
		balances, err := state.Balances(signer)
		if err != nil {
			return fmt.Errorf("reading balances of %x: %w", signer, err)
		}

		txs := acct.sorted()
		kept := txs[:0]
		for _, tx := range txs {
			switch {
			case tx.Nonce < nonce:
				m.removeLocked(tx, RemovalReason{Kind: RemovalNonceStale})
			case now.Sub(tx.FirstSeen) > m.cfg.TTL:
				m.removeLocked(tx, RemovalReason{Kind: RemovalExpired})
			default:
				if recost != nil {
					cost, err := recost(tx)
					if err != nil {
						m.logger.Info("removing transaction that can no longer be costed", "tx_id", tx.ID, "err", err)
						m.removeLocked(tx, RemovalReason{Kind: RemovalFailedRecost, Detail: err.Error()})
						continue
					}
					tx.Cost = cost
				}
				kept = append(kept, tx)
			}
		}
		if len(kept) == 0 {
			delete(m.accounts, signer)
			continue
		}
		m.rebuild(signer, kept, nonce, balances)
	}
	return nil
}

// rebuild lays out an account's txs, sorted by nonce, into fresh containers.
// Parked txs over the per-account cap are dropped.
func (m *Mempool) rebuild(signer [address.Length]byte, txs []*Tx, nonce uint32, balances Balances) {
	acct := m.accounts[signer]
	m.parked -= len(acct.parked)
	acct.pending = map[uint32]*Tx{}
	acct.parked = map[uint32]*Tx{}

	cost := Cost{}
	next := nonce
	inRun := true
	for _, tx := range txs {
		if inRun && tx.Nonce == next {
			withTx, err := cost.Add(tx.Cost)
			if err == nil && withTx.CoveredBy(balances) {
				cost = withTx
				acct.pending[tx.Nonce] = tx
				next++
				continue
			}
		}
		inRun = false
		if len(acct.parked) >= m.cfg.MaxParkedTxsPerAccount {
			delete(m.ids, tx.ID)
			m.removed.Add(tx.ID, RemovalReason{Kind: RemovalLowerNonceInvalidated})
			continue
		}
		acct.parked[tx.Nonce] = tx
		m.parked++
	}
	if acct.empty() {
		delete(m.accounts, signer)
	}
}

// CheckRemovedComet reports why a tx left the mempool, if it is remembered.
func (m *Mempool) CheckRemovedComet(id transaction.ID) (RemovalReason, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.removed.Get(id)
}

// Contains reports whether the tx is in either container.
func (m *Mempool) Contains(id transaction.ID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.ids[id]
	return ok
}

// Len returns the number of txs held.
func (m *Mempool) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ids)
}

// Sizes returns the number of pending and parked txs.
func (m *Mempool) Sizes() (pending, parked int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ids) - m.parked, m.parked
}
