package mempool_test

import (
	"errors"
	"testing"
	"time"

	"cosmossdk.io/log"
	"github.com/cometbft/cometbft/crypto/ed25519"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astriaorg/astria-sequencer/pkg/actions"
	"github.com/astriaorg/astria-sequencer/pkg/address"
	"github.com/astriaorg/astria-sequencer/pkg/amount"
	"github.com/astriaorg/astria-sequencer/pkg/asset"
	"github.com/astriaorg/astria-sequencer/pkg/mempool"
	"github.com/astriaorg/astria-sequencer/pkg/transaction"
)

var (
	nria  = asset.MustParse("nria")
	alice = ed25519.GenPrivKeyFromSecret([]byte("alice"))
	bob   = ed25519.GenPrivKeyFromSecret([]byte("bob"))
	t0    = time.Unix(1_700_000_000, 0)
)

func signer(key ed25519.PrivKey) [address.Length]byte {
	return address.BytesFromVerificationKey(key.PubKey().(ed25519.PubKey))
}

func cost(v uint64) mempool.Cost {
	return mempool.Cost{nria.ToIbcPrefixed(): amount.New(v)}
}

func balances(v uint64) mempool.Balances {
	return mempool.Balances{nria.ToIbcPrefixed(): amount.New(v)}
}

func newTx(t *testing.T, key ed25519.PrivKey, nonce uint32, act actions.Action, c uint64, seen time.Time) *mempool.Tx {
	t.Helper()
	body := &transaction.Body{ChainID: "test-1", Nonce: nonce, FeeAsset: nria, Actions: []actions.Action{act}}
	signed, err := body.Sign(key)
	require.NoError(t, err)
	tx, err := mempool.NewTx(signed, signed.Encode(), cost(c), seen)
	require.NoError(t, err)
	return tx
}

func transferTx(t *testing.T, key ed25519.PrivKey, nonce uint32) *mempool.Tx {
	t.Helper()
	act := &actions.Transfer{To: address.New("astria", [20]byte{9}), Amount: amount.New(1), Asset: nria}
	return newTx(t, key, nonce, act, 10, t0.Add(time.Duration(nonce)*time.Second))
}

func newMempool(t *testing.T) *mempool.Mempool {
	t.Helper()
	m, err := mempool.New(mempool.DefaultConfig(), log.NewNopLogger())
	require.NoError(t, err)
	m.SetClock(func() time.Time { return t0 })
	return m
}

type fakeState struct {
	nonces   map[[address.Length]byte]uint32
	balances map[[address.Length]byte]mempool.Balances
}

func (s fakeState) Nonce(addr [address.Length]byte) (uint32, error) { return s.nonces[addr], nil }

func (s fakeState) Balances(addr [address.Length]byte) (mempool.Balances, error) {
	return s.balances[addr], nil
}

func TestParkedBecomesPending(t *testing.T) {
	m := newMempool(t)
	a := transferTx(t, alice, 0)
	b := transferTx(t, alice, 1)

	status, err := m.Insert(b, 0, balances(1000))
	require.NoError(t, err)
	assert.Equal(t, mempool.StatusParked, status)

	status, err = m.Insert(a, 0, balances(1000))
	require.NoError(t, err)
	assert.Equal(t, mempool.StatusPending, status)

	pending, parked := m.Sizes()
	assert.Equal(t, 2, pending, "inserting the gap filler promotes the parked tx")
	assert.Equal(t, 0, parked)

	// a is included in a block; b must be next in line.
	m.MarkIncluded([]transaction.ID{a.ID}, 1)
	state := fakeState{
		nonces:   map[[address.Length]byte]uint32{signer(alice): 1},
		balances: map[[address.Length]byte]mempool.Balances{signer(alice): balances(1000)},
	}
	require.NoError(t, m.RunMaintenance(state, nil))

	queue, err := m.BuilderQueue(state.Nonce)
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, b.ID, queue[0].ID)

	reason, ok := m.CheckRemovedComet(a.ID)
	require.True(t, ok)
	assert.Equal(t, mempool.RemovalIncludedInBlock, reason.Kind)
	assert.EqualValues(t, 1, reason.Height)
}

func TestInsertErrors(t *testing.T) {
	m := newMempool(t)
	tx := transferTx(t, alice, 3)

	_, err := m.Insert(tx, 4, balances(1000))
	require.ErrorIs(t, err, mempool.ErrNonceTooLow)

	_, err = m.Insert(tx, 3, balances(1000))
	require.NoError(t, err)
	_, err = m.Insert(tx, 3, balances(1000))
	require.ErrorIs(t, err, mempool.ErrAlreadyPresent)

	other := newTx(t, alice, 3, &actions.Transfer{To: address.New("astria", [20]byte{8}), Amount: amount.New(2), Asset: nria}, 10, t0)
	_, err = m.Insert(other, 3, balances(1000))
	require.ErrorIs(t, err, mempool.ErrNonceTaken)
}

func TestInsufficientBalanceParks(t *testing.T) {
	m := newMempool(t)
	status, err := m.Insert(transferTx(t, alice, 0), 0, balances(5))
	require.NoError(t, err)
	assert.Equal(t, mempool.StatusParked, status)

	state := fakeState{
		nonces:   map[[address.Length]byte]uint32{},
		balances: map[[address.Length]byte]mempool.Balances{signer(alice): balances(100)},
	}
	require.NoError(t, m.RunMaintenance(state, nil))
	pending, parked := m.Sizes()
	assert.Equal(t, 1, pending)
	assert.Equal(t, 0, parked)
	next, ok := m.PendingNonce(signer(alice))
	require.True(t, ok)
	assert.EqualValues(t, 1, next)
}

func TestParkedLimits(t *testing.T) {
	cfg := mempool.DefaultConfig()
	cfg.MaxParkedTxsPerAccount = 2
	cfg.MaxParkedTxs = 3
	m, err := mempool.New(cfg, log.NewNopLogger())
	require.NoError(t, err)

	for nonce := uint32(1); nonce <= 2; nonce++ {
		_, err := m.Insert(transferTx(t, alice, nonce), 0, balances(1000))
		require.NoError(t, err)
	}
	_, err = m.Insert(transferTx(t, alice, 3), 0, balances(1000))
	require.ErrorIs(t, err, mempool.ErrAccountSizeLimit)

	_, err = m.Insert(transferTx(t, bob, 1), 0, balances(1000))
	require.NoError(t, err)
	_, err = m.Insert(transferTx(t, bob, 2), 0, balances(1000))
	require.ErrorIs(t, err, mempool.ErrParkedSizeLimit)
}

func TestRemoveTxInvalidDropsHigherNonces(t *testing.T) {
	m := newMempool(t)
	txs := make([]*mempool.Tx, 3)
	for i := range txs {
		txs[i] = transferTx(t, alice, uint32(i))
		_, err := m.Insert(txs[i], 0, balances(1000))
		require.NoError(t, err)
	}

	removed := m.RemoveTxInvalid(txs[1].ID, mempool.RemovalReason{Kind: mempool.RemovalFailedPrepareProposal, Detail: "boom"})
	assert.Equal(t, []transaction.ID{txs[1].ID, txs[2].ID}, removed)
	assert.Equal(t, 1, m.Len())

	reason, ok := m.CheckRemovedComet(txs[2].ID)
	require.True(t, ok)
	assert.Equal(t, mempool.RemovalLowerNonceInvalidated, reason.Kind)
	reason, ok = m.CheckRemovedComet(txs[1].ID)
	require.True(t, ok)
	assert.Contains(t, reason.String(), "boom")
}

func TestMaintenanceExpiresAndDropsStale(t *testing.T) {
	m := newMempool(t)
	stale := transferTx(t, alice, 0)
	fresh := transferTx(t, alice, 1)
	old := newTx(t, bob, 0, &actions.Transfer{To: address.New("astria", [20]byte{9}), Amount: amount.New(1), Asset: nria}, 1, t0.Add(-time.Hour))
	for _, tx := range []*mempool.Tx{stale, fresh, old} {
		_, err := m.Insert(tx, 0, balances(1000))
		require.NoError(t, err)
	}

	state := fakeState{
		nonces: map[[address.Length]byte]uint32{signer(alice): 1},
		balances: map[[address.Length]byte]mempool.Balances{
			signer(alice): balances(1000),
			signer(bob):   balances(1000),
		},
	}
	require.NoError(t, m.RunMaintenance(state, nil))
	assert.Equal(t, 1, m.Len())
	assert.True(t, m.Contains(fresh.ID))

	reason, _ := m.CheckRemovedComet(stale.ID)
	assert.Equal(t, mempool.RemovalNonceStale, reason.Kind)
	reason, _ = m.CheckRemovedComet(old.ID)
	assert.Equal(t, mempool.RemovalExpired, reason.Kind)
}

func TestMaintenanceRecostDemotes(t *testing.T) {
	m := newMempool(t)
	a := transferTx(t, alice, 0)
	b := transferTx(t, alice, 1)
	for _, tx := range []*mempool.Tx{a, b} {
		_, err := m.Insert(tx, 0, balances(25))
		require.NoError(t, err)
	}
	pending, _ := m.Sizes()
	require.Equal(t, 2, pending)

	state := fakeState{
		nonces:   map[[address.Length]byte]uint32{},
		balances: map[[address.Length]byte]mempool.Balances{signer(alice): balances(25)},
	}
	require.NoError(t, m.RunMaintenance(state, func(*mempool.Tx) (mempool.Cost, error) { return cost(20), nil }))
	pending, parked := m.Sizes()
	assert.Equal(t, 1, pending)
	assert.Equal(t, 1, parked)
}

func TestMaintenanceRemovesTxsThatCannotBeCosted(t *testing.T) {
	m := newMempool(t)
	a0 := transferTx(t, alice, 0)
	a1 := transferTx(t, alice, 1)
	b0 := transferTx(t, bob, 0)
	for _, tx := range []*mempool.Tx{a0, a1, b0} {
		_, err := m.Insert(tx, 0, balances(1000))
		require.NoError(t, err)
	}

	state := fakeState{
		nonces: map[[address.Length]byte]uint32{},
		balances: map[[address.Length]byte]mempool.Balances{
			signer(alice): balances(1000),
			signer(bob):   balances(1000),
		},
	}
	recosted := map[transaction.ID]bool{}
	recost := func(tx *mempool.Tx) (mempool.Cost, error) {
		if tx.ID == a0.ID {
			return nil, errors.New("fees for transfer are not set; the action is disabled")
		}
		recosted[tx.ID] = true
		return cost(20), nil
	}
	// repeated runs must not fail on the same tx
	for range 2 {
		require.NoError(t, m.RunMaintenance(state, recost))
	}

	assert.False(t, m.Contains(a0.ID))
	reason, ok := m.CheckRemovedComet(a0.ID)
	require.True(t, ok)
	assert.Equal(t, mempool.RemovalFailedRecost, reason.Kind)
	assert.Contains(t, reason.String(), "action is disabled")

	assert.True(t, recosted[b0.ID], "other accounts are still maintained")
	assert.True(t, recosted[a1.ID])
	pending, parked := m.Sizes()
	assert.Equal(t, 1, pending)
	assert.Equal(t, 1, parked, "alice's next tx waits for the gap to close")
}

func TestBuilderQueueOrdering(t *testing.T) {
	m := newMempool(t)
	sudo := newTx(t, bob, 0, &actions.FeeAssetChange{Op: actions.OpAddition, Asset: nria}, 0, t0.Add(time.Hour))
	a0 := transferTx(t, alice, 0)
	a1 := transferTx(t, alice, 1)
	for _, tx := range []*mempool.Tx{a1, a0, sudo} {
		_, err := m.Insert(tx, 0, balances(1000))
		require.NoError(t, err)
	}

	queue, err := m.BuilderQueue(func([address.Length]byte) (uint32, error) { return 0, nil })
	require.NoError(t, err)
	require.Len(t, queue, 3)
	assert.Equal(t, sudo.ID, queue[0].ID, "sudo group sorts first")
	assert.Equal(t, a0.ID, queue[1].ID)
	assert.Equal(t, a1.ID, queue[2].ID)
}
