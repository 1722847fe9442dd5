package actions_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astriaorg/astria-sequencer/pkg/actions"
	"github.com/astriaorg/astria-sequencer/pkg/address"
	"github.com/astriaorg/astria-sequencer/pkg/amount"
	"github.com/astriaorg/astria-sequencer/pkg/appconsts"
	"github.com/astriaorg/astria-sequencer/pkg/asset"
	"github.com/astriaorg/astria-sequencer/pkg/pricefeed"
	"github.com/astriaorg/astria-sequencer/pkg/rollup"
)

func addr(b byte) address.Address {
	var raw [address.Length]byte
	for i := range raw {
		raw[i] = b
	}
	return address.New("astria", raw)
}

func ptr(a address.Address) *address.Address { return &a }

var nria = asset.MustParse("nria")

func allActions() []actions.Action {
	return []actions.Action{
		&actions.Transfer{To: addr(1), Amount: amount.New(100), Asset: nria},
		&actions.RollupDataSubmission{RollupID: rollup.IDFromName("test"), Data: []byte("hello")},
		&actions.InitBridgeAccount{RollupID: rollup.IDFromName("test"), Asset: nria, SudoAddress: ptr(addr(2))},
		&actions.BridgeLock{To: addr(1), Amount: amount.New(5), Asset: nria, DestinationChainAddress: "0xabc"},
		&actions.BridgeUnlock{
			To: addr(1), Amount: amount.New(5), BridgeAddress: addr(2), Memo: "memo",
			RollupBlockNumber: 7, RollupWithdrawalEventID: "event-1",
		},
		&actions.BridgeSudoChange{BridgeAddress: addr(2), NewWithdrawerAddress: ptr(addr(3))},
		&actions.BridgeTransfer{
			To: addr(1), Amount: amount.New(5), BridgeAddress: addr(2), DestinationChainAddress: "0xabc",
			RollupBlockNumber: 7, RollupWithdrawalEventID: "event-1",
		},
		&actions.Ics20Withdrawal{
			Amount: amount.New(9), Denom: asset.MustParse("transfer/channel-0/utia"),
			DestinationChainAddress: "celestia1xyz", ReturnAddress: addr(1),
			TimeoutHeight: actions.IbcHeight{RevisionNumber: 1, RevisionHeight: 100},
			TimeoutTime:   1_700_000_000_000_000_000, SourceChannel: "channel-0", UseCompatAddress: true,
		},
		&actions.IbcRelay{Msg: &actions.RecvPacket{
			Packet: actions.Packet{
				Sequence: 1, SourcePort: "transfer", SourceChannel: "channel-3",
				DestinationPort: "transfer", DestinationChannel: "channel-0",
				Data: []byte(`{"amount":"1"}`), TimeoutTimestamp: 10,
			},
			Proof:       []byte{1, 2, 3},
			ProofHeight: actions.IbcHeight{RevisionHeight: 4},
		}},
		&actions.SudoAddressChange{NewAddress: addr(3)},
		&actions.IbcSudoChange{NewAddress: addr(3)},
		&actions.ValidatorUpdate{VerificationKey: [32]byte{1}, Power: 10, Name: "val"},
		&actions.IbcRelayerChange{Op: actions.OpRemoval, Address: addr(1)},
		&actions.FeeAssetChange{Op: actions.OpAddition, Asset: nria},
		&actions.FeeChange{Action: actions.KindTransfer, Components: actions.FeeComponents{Base: amount.New(12)}},
		&actions.CurrencyPairsChange{Op: actions.OpAddition, Pairs: []pricefeed.CurrencyPair{{Base: "BTC", Quote: "USD"}}},
		&actions.MarketsChange{Op: actions.MarketsCreation, Markets: []pricefeed.Market{{
			Pair: pricefeed.CurrencyPair{Base: "ETH", Quote: "USD"}, Decimals: 6, MinProviderCount: 1, Enabled: true,
			Providers: []pricefeed.ProviderConfig{{Name: "binance", OffChainTicker: "ETHUSDT"}},
		}}},
		&actions.UpdateMarketMapParams{Params: pricefeed.MarketMapParams{
			MarketAuthorities: []address.Address{addr(1)}, Admin: addr(2),
		}},
	}
}

func TestEveryKindHasAnAction(t *testing.T) {
	seen := map[actions.Kind]bool{}
	for _, a := range allActions() {
		seen[a.Kind()] = true
	}
	for _, k := range actions.AllKinds() {
		assert.True(t, seen[k], "no test action for %s", k)
	}
}

func TestCanonicalEncoding(t *testing.T) {
	for _, a := range allActions() {
		t.Run(a.Kind().String(), func(t *testing.T) {
			require.NoError(t, a.ValidateBasic())
			encoded := actions.Marshal(a)
			decoded, err := actions.Unmarshal(encoded)
			require.NoError(t, err)
			assert.Equal(t, a.Kind(), decoded.Kind())
			assert.True(t, bytes.Equal(encoded, actions.Marshal(decoded)))
		})
	}
}

func TestUnmarshalRejectsUnknownAndEmpty(t *testing.T) {
	_, err := actions.Unmarshal(nil)
	require.ErrorIs(t, err, actions.ErrUnknownAction)

	// field 99, length 0
	_, err = actions.Unmarshal([]byte{0x9a, 0x06, 0x00})
	require.ErrorIs(t, err, actions.ErrUnknownAction)
}

func TestValidateBasic(t *testing.T) {
	testCases := []struct {
		name    string
		action  actions.Action
		wantErr error
	}{
		{
			name:    "zero transfer",
			action:  &actions.Transfer{To: addr(1), Asset: nria},
			wantErr: actions.ErrZeroAmount,
		},
		{
			name:    "transfer without recipient",
			action:  &actions.Transfer{Amount: amount.New(1), Asset: nria},
			wantErr: actions.ErrMissingAddress,
		},
		{
			name:    "empty rollup data",
			action:  &actions.RollupDataSubmission{RollupID: rollup.IDFromName("a")},
			wantErr: actions.ErrEmptyData,
		},
		{
			name: "rollup data over the block limit",
			action: &actions.RollupDataSubmission{
				RollupID: rollup.IDFromName("a"),
				Data:     make([]byte, appconsts.MaxSequencedDataBytesPerBlock+1),
			},
			wantErr: actions.ErrDataTooLarge,
		},
		{
			name:    "bridge transfer to itself",
			action:  &actions.BridgeTransfer{To: addr(2), BridgeAddress: addr(2), Amount: amount.New(1), DestinationChainAddress: "x", RollupBlockNumber: 1, RollupWithdrawalEventID: "e"},
			wantErr: actions.ErrSameBridgeAccount,
		},
		{
			name:    "unlock without event id",
			action:  &actions.BridgeUnlock{To: addr(1), BridgeAddress: addr(2), Amount: amount.New(1), RollupBlockNumber: 1},
			wantErr: actions.ErrMissingWithdrawalID,
		},
		{
			name: "withdrawal on a malformed channel",
			action: &actions.Ics20Withdrawal{
				Amount: amount.New(1), Denom: nria, DestinationChainAddress: "x", ReturnAddress: addr(1),
				TimeoutTime: 1, SourceChannel: "chan-0",
			},
			wantErr: actions.ErrInvalidChannel,
		},
		{
			name:    "validator name too long",
			action:  &actions.ValidatorUpdate{VerificationKey: [32]byte{1}, Name: string(make([]byte, actions.MaxValidatorNameLength+1))},
			wantErr: actions.ErrValidatorName,
		},
		{
			name:    "relayer change without op",
			action:  &actions.IbcRelayerChange{Address: addr(1)},
			wantErr: actions.ErrUnknownVariant,
		},
		{
			name:    "empty currency pairs",
			action:  &actions.CurrencyPairsChange{Op: actions.OpRemoval},
			wantErr: actions.ErrEmptyList,
		},
		{
			name:    "relay without message",
			action:  &actions.IbcRelay{},
			wantErr: actions.ErrMissingField,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.ErrorIs(t, tc.action.ValidateBasic(), tc.wantErr)
		})
	}
}

func TestGroupOf(t *testing.T) {
	transfer := &actions.Transfer{To: addr(1), Amount: amount.New(1), Asset: nria}
	data := &actions.RollupDataSubmission{Data: []byte{1}}
	sudo := &actions.SudoAddressChange{NewAddress: addr(1)}
	fee := &actions.FeeChange{Action: actions.KindTransfer}

	group, err := actions.GroupOf([]actions.Action{transfer, data})
	require.NoError(t, err)
	assert.Equal(t, actions.GroupBundleableGeneral, group)

	group, err = actions.GroupOf([]actions.Action{sudo})
	require.NoError(t, err)
	assert.Equal(t, actions.GroupUnbundleableSudo, group)

	_, err = actions.GroupOf([]actions.Action{transfer, fee})
	require.ErrorIs(t, err, actions.ErrMixedGroups)

	_, err = actions.GroupOf([]actions.Action{sudo, sudo})
	require.ErrorIs(t, err, actions.ErrUnbundleable)

	_, err = actions.GroupOf(nil)
	require.ErrorIs(t, err, actions.ErrEmptyList)

	assert.True(t, actions.GroupUnbundleableSudo > actions.GroupBundleableSudo)
	assert.True(t, actions.GroupBundleableSudo > actions.GroupUnbundleableGeneral)
}

func TestKindNames(t *testing.T) {
	for _, k := range actions.AllKinds() {
		parsed, err := actions.ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, parsed)
	}
	_, err := actions.ParseKind("nope")
	require.Error(t, err)
}
