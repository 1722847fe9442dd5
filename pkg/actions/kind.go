package actions

import "fmt"

// Kind enumerates the action variants. The string names key fee parameters
// in state and genesis.
type Kind uint8

const (
	KindTransfer Kind = iota + 1
	KindRollupDataSubmission
	KindInitBridgeAccount
	KindBridgeLock
	KindBridgeUnlock
	KindBridgeSudoChange
	KindBridgeTransfer
	KindIbcRelay
	KindIcs20Withdrawal
	KindSudoAddressChange
	KindValidatorUpdate
	KindIbcRelayerChange
	KindFeeAssetChange
	KindFeeChange
	KindIbcSudoChange
	KindCurrencyPairsChange
	KindMarketsChange
	KindUpdateMarketMapParams
)

var kindNames = map[Kind]string{
	KindTransfer:              "transfer",
	KindRollupDataSubmission:  "rollup_data_submission",
	KindInitBridgeAccount:     "init_bridge_account",
	KindBridgeLock:            "bridge_lock",
	KindBridgeUnlock:          "bridge_unlock",
	KindBridgeSudoChange:      "bridge_sudo_change",
	KindBridgeTransfer:        "bridge_transfer",
	KindIbcRelay:              "ibc_relay",
	KindIcs20Withdrawal:       "ics20_withdrawal",
	KindSudoAddressChange:     "sudo_address_change",
	KindValidatorUpdate:       "validator_update",
	KindIbcRelayerChange:      "ibc_relayer_change",
	KindFeeAssetChange:        "fee_asset_change",
	KindFeeChange:             "fee_change",
	KindIbcSudoChange:         "ibc_sudo_change",
	KindCurrencyPairsChange:   "currency_pairs_change",
	KindMarketsChange:         "markets_change",
	KindUpdateMarketMapParams: "update_market_map_params",
}

// AllKinds lists every kind in declaration order.
func AllKinds() []Kind {
	out := make([]Kind, 0, len(kindNames))
	for k := KindTransfer; k <= KindUpdateMarketMapParams; k++ {
		out = append(out, k)
	}
	return out
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", uint8(k))
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown action kind %q", s)
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Group orders transactions inside a block: higher groups execute first.
// Unbundleable groups require the action to be alone in its transaction.
type Group uint8

const (
	GroupBundleableGeneral Group = iota + 1
	GroupUnbundleableGeneral
	GroupBundleableSudo
	GroupUnbundleableSudo
)

func (g Group) String() string {
	switch g {
	case GroupBundleableGeneral:
		return "bundleable_general"
	case GroupUnbundleableGeneral:
		return "unbundleable_general"
	case GroupBundleableSudo:
		return "bundleable_sudo"
	case GroupUnbundleableSudo:
		return "unbundleable_sudo"
	}
	return "unknown"
}

// IsBundleable reports whether actions of the group may share a transaction.
func (g Group) IsBundleable() bool {
	return g == GroupBundleableGeneral || g == GroupBundleableSudo
}

// Group returns the group of the kind.
func (k Kind) Group() Group {
	switch k {
	case KindInitBridgeAccount, KindBridgeSudoChange:
		return GroupUnbundleableGeneral
	case KindValidatorUpdate, KindFeeChange, KindFeeAssetChange, KindIbcRelayerChange,
		KindCurrencyPairsChange, KindMarketsChange, KindUpdateMarketMapParams:
		return GroupBundleableSudo
	case KindSudoAddressChange, KindIbcSudoChange:
		return GroupUnbundleableSudo
	default:
		return GroupBundleableGeneral
	}
}
