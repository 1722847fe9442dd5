package actions_test

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astriaorg/astria-sequencer/pkg/actions"
	"github.com/astriaorg/astria-sequencer/pkg/address"
	"github.com/astriaorg/astria-sequencer/pkg/amount"
	"github.com/astriaorg/astria-sequencer/pkg/pricefeed"
	"github.com/astriaorg/astria-sequencer/pkg/rollup"
)

// TestGoldenEncodings pins the Action oneof bytes of every kind. The vectors
// were produced by an independent protobuf encoder, so a change in field
// numbers, omission of zero values or address rendering shows up here.
func TestGoldenEncodings(t *testing.T) {
	var rid rollup.ID
	var key [32]byte
	for i := range rid {
		rid[i] = 7
		key[i] = 9
	}
	testCases := []struct {
		action actions.Action
		want   string
	}{
		{
			&actions.Transfer{To: addr(1), Amount: amount.New(100), Asset: nria},
			"0a390a2d61737472696131717971737a716770717971737a716770717971737a716770717971737a716770776c6c6366" +
				"66120208641a046e726961",
		},
		{
			&actions.RollupDataSubmission{RollupID: rid, Data: []byte("hello")},
			"12290a200707070707070707070707070707070707070707070707070707070707070707120568656c6c6f",
		},
		{
			&actions.InitBridgeAccount{RollupID: rid, Asset: nria, SudoAddress: ptr(addr(2))},
			"5a570a20070707070707070707070707070707070707070707070707070707070707070712046e7269611a2d61737472" +
				"696131716770717971737a716770717971737a716770717971737a716770717971737a6c6d65617a6c",
		},
		{
			&actions.BridgeLock{To: addr(1), Amount: amount.New(5), Asset: nria, DestinationChainAddress: "0xabc"},
			"62400a2d61737472696131717971737a716770717971737a716770717971737a716770717971737a716770776c6c6366" +
				"66120208051a046e72696122053078616263",
		},
		{
			&actions.BridgeUnlock{
				To: addr(1), Amount: amount.New(5), BridgeAddress: addr(2), Memo: "memo",
				RollupBlockNumber: 7, RollupWithdrawalEventID: "event-1",
			},
			"6a730a2d61737472696131717971737a716770717971737a716770717971737a716770717971737a716770776c6c6366" +
				"66120208051a2d61737472696131716770717971737a716770717971737a716770717971737a716770717971737a6c6d" +
				"65617a6c22046d656d6f280732076576656e742d31",
		},
		{
			&actions.BridgeSudoChange{BridgeAddress: addr(2), NewWithdrawerAddress: ptr(addr(3))},
			"725e0a2d61737472696131716770717971737a716770717971737a716770717971737a716770717971737a6c6d65617a" +
				"6c1a2d617374726961317176707378716372717670737871637271767073787163727176707378716372377463756737",
		},
		{
			&actions.BridgeTransfer{
				To: addr(1), Amount: amount.New(5), BridgeAddress: addr(2), DestinationChainAddress: "0xabc",
				RollupBlockNumber: 7, RollupWithdrawalEventID: "event-1",
			},
			"7a740a2d61737472696131717971737a716770717971737a716770717971737a716770717971737a716770776c6c6366" +
				"66120208051a2d61737472696131716770717971737a716770717971737a716770717971737a716770717971737a6c6d" +
				"65617a6c22053078616263280732076576656e742d31",
		},
		{
			&actions.IbcRelay{Msg: &actions.ChannelOpenConfirm{
				PortID: "transfer", ChannelID: "channel-0", Proof: []byte{1, 2},
				ProofHeight: actions.IbcHeight{RevisionNumber: 1, RevisionHeight: 6},
			}},
			"aa01214a1f0a087472616e7366657212096368616e6e656c2d301a020102220408011006",
		},
		{
			&actions.Ics20Withdrawal{
				Amount: amount.New(9), Denom: nria, DestinationChainAddress: "cosmos1dest", ReturnAddress: addr(1),
				TimeoutHeight: actions.IbcHeight{RevisionNumber: 1, RevisionHeight: 100},
				TimeoutTime:   1000, SourceChannel: "channel-0", UseCompatAddress: true,
			},
			"b2015c0a02080912046e7269611a0b636f736d6f733164657374222d61737472696131717971737a716770717971737a" +
				"716770717971737a716770717971737a716770776c6c6366662a040801106430e8073a096368616e6e656c2d305001",
		},
		{
			&actions.SudoAddressChange{NewAddress: addr(4)},
			"92032f0a2d6173747269613171737a716770717971737a716770717971737a716770717971737a7167707179376d6c65" +
				"307a",
		},
		{
			&actions.ValidatorUpdate{VerificationKey: key, Power: 10, Name: "val"},
			"9a03290a200909090909090909090909090909090909090909090909090909090909090909100a1a0376616c",
		},
		{
			&actions.IbcRelayerChange{Op: actions.OpRemoval, Address: addr(5)},
			"a2032f122d6173747269613171357a733270673971357a733270673971357a733270673971357a73327067396c743763" +
				"3972",
		},
		{
			&actions.FeeAssetChange{Op: actions.OpAddition, Asset: nria},
			"aa03060a046e726961",
		},
		{
			&actions.FeeChange{Action: actions.KindTransfer, Components: actions.FeeComponents{
				Base: amount.New(12), Multiplier: amount.FromParts(0, 1),
			}},
			"ba03120a087472616e736665721202080c1a021001",
		},
		{
			&actions.IbcSudoChange{NewAddress: addr(6)},
			"c2032f0a2d61737472696131716372717670737871637271767073787163727176707378716372717670737877306361" +
				"7734",
		},
		{
			&actions.CurrencyPairsChange{Op: actions.OpRemoval, Pairs: []pricefeed.CurrencyPair{
				{Base: "BTC", Quote: "USD"}, {Base: "ETH", Quote: "USD"},
			}},
			"ba041412120a074254432f5553440a074554482f555344",
		},
		{
			&actions.MarketsChange{Op: actions.MarketsCreation, Markets: []pricefeed.Market{{
				Pair: pricefeed.CurrencyPair{Base: "BTC", Quote: "USD"}, Decimals: 8, MinProviderCount: 1, Enabled: true,
				Providers: []pricefeed.ProviderConfig{{Name: "binance", OffChainTicker: "BTCUSDT"}},
			}}},
			"c204270a250a230a074254432f55534410081801200132120a0762696e616e6365120742544355534454",
		},
		{
			&actions.UpdateMarketMapParams{Params: pricefeed.MarketMapParams{
				MarketAuthorities: []address.Address{addr(7)}, Admin: addr(8),
			}},
			"ca04600a5e0a2d617374726961317175727377706338717572737770633871757273777063387175727377706338306c" +
				"65757935122d6173747269613170717971737a716770717971737a716770717971737a716770717971737a7167713874" +
				"677164",
		},
	}
	seen := map[actions.Kind]bool{}
	for _, tc := range testCases {
		kind := tc.action.Kind()
		seen[kind] = true
		t.Run(kind.String(), func(t *testing.T) {
			want, err := hex.DecodeString(tc.want)
			require.NoError(t, err)
			assert.Equal(t, hex.EncodeToString(want), hex.EncodeToString(actions.Marshal(tc.action)))

			decoded, err := actions.Unmarshal(want)
			require.NoError(t, err)
			assert.Equal(t, kind, decoded.Kind())
			assert.Equal(t, want, actions.Marshal(decoded))
		})
	}
	for _, k := range actions.AllKinds() {
		assert.True(t, seen[k], "no golden vector for %s", k)
	}
}
