package bridge_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astriaorg/astria-sequencer/pkg/actions"
	"github.com/astriaorg/astria-sequencer/pkg/address"
	"github.com/astriaorg/astria-sequencer/pkg/amount"
	"github.com/astriaorg/astria-sequencer/pkg/asset"
	"github.com/astriaorg/astria-sequencer/pkg/rollup"
	"github.com/astriaorg/astria-sequencer/pkg/storage"
	"github.com/astriaorg/astria-sequencer/pkg/transaction"
	"github.com/astriaorg/astria-sequencer/x/accounts"
	xaddress "github.com/astriaorg/astria-sequencer/x/address"
	"github.com/astriaorg/astria-sequencer/x/assets"
	"github.com/astriaorg/astria-sequencer/x/bridge"
	"github.com/astriaorg/astria-sequencer/x/meta"
)

var (
	nria     = asset.MustParse("nria")
	other    = asset.MustParse("other")
	alice    = address.New("astria", [20]byte{0xa})
	carol    = address.New("astria", [20]byte{0xc})
	bridgeBR = address.New("astria", [20]byte{0xbb})
	bridge2  = address.New("astria", [20]byte{0xb2})
	rollupA  = rollup.IDFromName("rollup-a")
	rollupB  = rollup.IDFromName("rollup-b")
)

func setup(t *testing.T) *storage.Delta {
	t.Helper()
	d := storage.NewDelta(storage.NewMemory().LatestSnapshot())
	require.NoError(t, xaddress.PutBasePrefix(d, "astria"))
	for _, denom := range []asset.Denom{nria, other} {
		trace, _ := denom.AsTrace()
		require.NoError(t, assets.PutDenom(d, trace))
	}
	require.NoError(t, accounts.PutBalance(d, alice.Bytes(), nria.ToIbcPrefixed(), amount.New(1000)))
	return d
}

func signAs(d *storage.Delta, signer address.Address, tx string) {
	meta.PutTxContext(d, meta.TxContext{Signer: signer.Bytes(), TxID: transaction.IDOf([]byte(tx))})
}

func initBridge(t *testing.T, d *storage.Delta, k bridge.Keeper, b address.Address, id rollup.ID, denom asset.Denom) {
	t.Helper()
	signAs(d, b, "init-"+b.Hex())
	require.NoError(t, k.ExecuteInitBridgeAccount(d, &actions.InitBridgeAccount{RollupID: id, Asset: denom}))
}

func TestInitBridgeAccount(t *testing.T) {
	d := setup(t)
	k := bridge.NewKeeper()
	initBridge(t, d, k, bridgeBR, rollupA, nria)

	ok, err := k.IsBridgeAccount(d, bridgeBR.Bytes())
	require.NoError(t, err)
	assert.True(t, ok)

	info, found, err := bridge.Info(d, bridgeBR.Bytes())
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, rollupA, info.RollupID)
	assert.Equal(t, nria.ToIbcPrefixed(), info.Asset)
	assert.Equal(t, bridgeBR.Bytes(), info.Sudo)
	assert.Equal(t, bridgeBR.Bytes(), info.Withdrawer)

	err = k.ExecuteInitBridgeAccount(d, &actions.InitBridgeAccount{RollupID: rollupA, Asset: nria})
	require.ErrorIs(t, err, bridge.ErrAlreadyBridgeAccount)
}

func TestInitBridgeAccountUnknownAsset(t *testing.T) {
	d := setup(t)
	signAs(d, bridgeBR, "init")
	err := bridge.NewKeeper().ExecuteInitBridgeAccount(d, &actions.InitBridgeAccount{RollupID: rollupA, Asset: asset.MustParse("unknown")})
	require.ErrorIs(t, err, assets.ErrUnknownDenom)
}

func TestLockThenUnlock(t *testing.T) {
	d := setup(t)
	k := bridge.NewKeeper()
	initBridge(t, d, k, bridgeBR, rollupA, nria)

	signAs(d, alice, "lock")
	require.NoError(t, k.ExecuteBridgeLock(d, &actions.BridgeLock{
		To: bridgeBR, Amount: amount.New(500), Asset: nria, DestinationChainAddress: "0xrollupuser",
	}))
	deposits := bridge.Deposits(d)
	require.Len(t, deposits, 1)
	assert.Equal(t, rollupA, deposits[0].RollupID)
	assert.Equal(t, "500", deposits[0].Amount.String())
	assert.Equal(t, "nria", deposits[0].Asset.String())
	assert.Equal(t, transaction.IDOf([]byte("lock")), deposits[0].SourceTransactionID)
	evs := meta.TakeEvents(d)
	require.Len(t, evs, 1)
	assert.Equal(t, bridge.EventTypeDeposit, evs[0].Type)

	signAs(d, bridgeBR, "unlock")
	unlock := &actions.BridgeUnlock{
		To: carol, Amount: amount.New(300), BridgeAddress: bridgeBR,
		RollupBlockNumber: 7, RollupWithdrawalEventID: "event-1",
	}
	require.NoError(t, k.ExecuteBridgeUnlock(d, unlock))

	br, err := accounts.Balance(d, bridgeBR.Bytes(), nria.ToIbcPrefixed())
	require.NoError(t, err)
	assert.Equal(t, "200", br.String())
	c, err := accounts.Balance(d, carol.Bytes(), nria.ToIbcPrefixed())
	require.NoError(t, err)
	assert.Equal(t, "300", c.String())

	err = k.ExecuteBridgeUnlock(d, unlock)
	require.ErrorIs(t, err, bridge.ErrWithdrawalEventSeen)

	assert.Len(t, bridge.TakeDeposits(d), 1)
	assert.Empty(t, bridge.Deposits(d))
}

func TestLockRejectsWrongAssetAndNonBridge(t *testing.T) {
	d := setup(t)
	k := bridge.NewKeeper()
	initBridge(t, d, k, bridgeBR, rollupA, nria)
	signAs(d, alice, "lock")

	err := k.ExecuteBridgeLock(d, &actions.BridgeLock{To: bridgeBR, Amount: amount.New(1), Asset: other})
	require.ErrorIs(t, err, bridge.ErrAssetMismatch)

	err = k.ExecuteBridgeLock(d, &actions.BridgeLock{To: carol, Amount: amount.New(1), Asset: nria})
	require.ErrorIs(t, err, bridge.ErrNotBridgeAccount)
}

func TestUnlockRequiresWithdrawer(t *testing.T) {
	d := setup(t)
	k := bridge.NewKeeper()
	initBridge(t, d, k, bridgeBR, rollupA, nria)

	signAs(d, alice, "unlock")
	err := k.ExecuteBridgeUnlock(d, &actions.BridgeUnlock{
		To: carol, Amount: amount.New(1), BridgeAddress: bridgeBR, RollupWithdrawalEventID: "e",
	})
	require.ErrorIs(t, err, bridge.ErrNotWithdrawer)
}

func TestBridgeTransfer(t *testing.T) {
	d := setup(t)
	k := bridge.NewKeeper()
	initBridge(t, d, k, bridgeBR, rollupA, nria)
	initBridge(t, d, k, bridge2, rollupB, nria)
	require.NoError(t, accounts.PutBalance(d, bridgeBR.Bytes(), nria.ToIbcPrefixed(), amount.New(100)))

	signAs(d, bridgeBR, "transfer")
	transfer := &actions.BridgeTransfer{
		To: bridge2, Amount: amount.New(40), BridgeAddress: bridgeBR,
		DestinationChainAddress: "dest", RollupBlockNumber: 1, RollupWithdrawalEventID: "w-1",
	}
	require.NoError(t, k.ExecuteBridgeTransfer(d, transfer))

	got, err := accounts.Balance(d, bridge2.Bytes(), nria.ToIbcPrefixed())
	require.NoError(t, err)
	assert.Equal(t, "40", got.String())
	deposits := bridge.Deposits(d)
	require.Len(t, deposits, 1)
	assert.Equal(t, rollupB, deposits[0].RollupID)
	assert.True(t, deposits[0].BridgeAddress.Equal(bridge2))

	require.ErrorIs(t, k.ExecuteBridgeTransfer(d, transfer), bridge.ErrWithdrawalEventSeen)
}

func TestBridgeTransferAssetMismatch(t *testing.T) {
	d := setup(t)
	k := bridge.NewKeeper()
	initBridge(t, d, k, bridgeBR, rollupA, nria)
	initBridge(t, d, k, bridge2, rollupB, other)

	signAs(d, bridgeBR, "transfer")
	err := k.ExecuteBridgeTransfer(d, &actions.BridgeTransfer{
		To: bridge2, Amount: amount.New(1), BridgeAddress: bridgeBR, RollupWithdrawalEventID: "w",
	})
	require.ErrorIs(t, err, bridge.ErrAssetMismatch)
}

func TestBridgeSudoChange(t *testing.T) {
	d := setup(t)
	k := bridge.NewKeeper()
	initBridge(t, d, k, bridgeBR, rollupA, nria)

	change := &actions.BridgeSudoChange{BridgeAddress: bridgeBR, NewSudoAddress: &alice, NewWithdrawerAddress: &carol}
	signAs(d, carol, "sudo")
	require.ErrorIs(t, k.ExecuteBridgeSudoChange(d, change), bridge.ErrNotBridgeSudo)

	signAs(d, bridgeBR, "sudo")
	require.NoError(t, k.ExecuteBridgeSudoChange(d, change))
	info, _, err := bridge.Info(d, bridgeBR.Bytes())
	require.NoError(t, err)
	assert.Equal(t, alice.Bytes(), info.Sudo)
	assert.Equal(t, carol.Bytes(), info.Withdrawer)
}

func TestLastTxID(t *testing.T) {
	d := setup(t)
	_, found, err := bridge.LastTxID(d, bridgeBR.Bytes())
	require.NoError(t, err)
	assert.False(t, found)

	id := transaction.IDOf([]byte("last"))
	require.NoError(t, bridge.PutLastTxID(d, bridgeBR.Bytes(), id))
	got, found, err := bridge.LastTxID(d, bridgeBR.Bytes())
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, id, got)
}
