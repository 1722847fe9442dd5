// Package actions defines the closed set of actions a sequencer transaction
// can carry, their stateless checks and their canonical protobuf encoding.
// Stateful execution lives with the module owning the touched state.
package actions

import (
	"errors"
	"fmt"

	"github.com/astriaorg/astria-sequencer/pkg/address"
	"github.com/astriaorg/astria-sequencer/pkg/amount"
	"github.com/astriaorg/astria-sequencer/pkg/appconsts"
	"github.com/astriaorg/astria-sequencer/pkg/asset"
	"github.com/astriaorg/astria-sequencer/pkg/pricefeed"
	"github.com/astriaorg/astria-sequencer/pkg/rollup"
	"github.com/astriaorg/astria-sequencer/pkg/wire"
)

// MaxValidatorNameLength bounds ValidatorUpdate.Name in bytes.
const MaxValidatorNameLength = 32

var (
	ErrZeroAmount          = errors.New("amount must not be zero")
	ErrEmptyData           = errors.New("rollup data must not be empty")
	ErrDataTooLarge        = errors.New("rollup data exceeds the per block limit")
	ErrMissingAddress      = errors.New("address must be set")
	ErrMissingAsset        = errors.New("asset must be set")
	ErrMissingField        = errors.New("required field is missing")
	ErrValidatorName       = fmt.Errorf("validator name must be at most %d bytes", MaxValidatorNameLength)
	ErrZeroTimeout         = errors.New("timeout time must not be zero")
	ErrInvalidChannel      = errors.New("channel id must be of the form channel-N")
	ErrEmptyList           = errors.New("list must not be empty")
	ErrSameBridgeAccount   = errors.New("source and destination bridge accounts must differ")
	ErrUnknownAction       = errors.New("unknown action")
	ErrUnknownVariant      = errors.New("unknown action variant")
	ErrZeroRollupBlock     = errors.New("rollup block number must not be zero")
	ErrMissingWithdrawalID = errors.New("rollup withdrawal event id must not be empty")
	ErrMixedGroups         = errors.New("actions of different groups cannot share a transaction")
	ErrUnbundleable        = errors.New("action must be the only action in its transaction")
)

// Action is one of the closed set of variants below.
type Action interface {
	wire.Marshaler
	Kind() Kind
	// ValidateBasic performs the structural checks that need no state.
	ValidateBasic() error

	isAction()
}

// FeeComponents are the per action fee parameters.
type FeeComponents struct {
	Base       amount.Amount `json:"base"`
	Multiplier amount.Amount `json:"multiplier"`
}

// Op selects between adding and removing an entry of a set.
type Op uint8

const (
	OpAddition Op = iota + 1
	OpRemoval
)

func (o Op) String() string {
	switch o {
	case OpAddition:
		return "addition"
	case OpRemoval:
		return "removal"
	}
	return "unknown"
}

func (o Op) validate() error {
	if o != OpAddition && o != OpRemoval {
		return fmt.Errorf("%w: op %d", ErrUnknownVariant, o)
	}
	return nil
}

func requireAddress(name string, a address.Address) error {
	if a.IsZero() {
		return fmt.Errorf("%w: %s", ErrMissingAddress, name)
	}
	return nil
}

func requireAmount(a amount.Amount) error {
	if a.IsZero() {
		return ErrZeroAmount
	}
	return nil
}

func requireAsset(name string, d asset.Denom) error {
	if d.IsZero() {
		return fmt.Errorf("%w: %s", ErrMissingAsset, name)
	}
	return nil
}

// Transfer moves funds between two accounts.
type Transfer struct {
	To     address.Address
	Amount amount.Amount
	Asset  asset.Denom
}

func (*Transfer) Kind() Kind { return KindTransfer }
func (*Transfer) isAction()  {}

func (a *Transfer) ValidateBasic() error {
	if err := requireAddress("to", a.To); err != nil {
		return err
	}
	if err := requireAsset("asset", a.Asset); err != nil {
		return err
	}
	return requireAmount(a.Amount)
}

// RollupDataSubmission sequences opaque data for a rollup.
type RollupDataSubmission struct {
	RollupID rollup.ID
	Data     []byte
}

func (*RollupDataSubmission) Kind() Kind { return KindRollupDataSubmission }
func (*RollupDataSubmission) isAction()  {}

func (a *RollupDataSubmission) ValidateBasic() error {
	if len(a.Data) == 0 {
		return ErrEmptyData
	}
	if len(a.Data) > appconsts.MaxSequencedDataBytesPerBlock {
		return fmt.Errorf("%w: %d > %d", ErrDataTooLarge, len(a.Data), appconsts.MaxSequencedDataBytesPerBlock)
	}
	return nil
}

// InitBridgeAccount turns the signer into a bridge account for a rollup.
// Sudo and withdrawer default to the signer.
type InitBridgeAccount struct {
	RollupID          rollup.ID
	Asset             asset.Denom
	SudoAddress       *address.Address
	WithdrawerAddress *address.Address
}

func (*InitBridgeAccount) Kind() Kind { return KindInitBridgeAccount }
func (*InitBridgeAccount) isAction()  {}

func (a *InitBridgeAccount) ValidateBasic() error {
	return requireAsset("asset", a.Asset)
}

// BridgeLock locks funds in a bridge account, minting a deposit for the
// account's rollup.
type BridgeLock struct {
	To                      address.Address
	Amount                  amount.Amount
	Asset                   asset.Denom
	DestinationChainAddress string
}

func (*BridgeLock) Kind() Kind { return KindBridgeLock }
func (*BridgeLock) isAction()  {}

func (a *BridgeLock) ValidateBasic() error {
	if err := requireAddress("to", a.To); err != nil {
		return err
	}
	if err := requireAsset("asset", a.Asset); err != nil {
		return err
	}
	if a.DestinationChainAddress == "" {
		return fmt.Errorf("%w: destination_chain_address", ErrMissingField)
	}
	return requireAmount(a.Amount)
}

// BridgeUnlock withdraws funds from a bridge account. Only the bridge's
// withdrawer may sign it.
type BridgeUnlock struct {
	To                      address.Address
	Amount                  amount.Amount
	BridgeAddress           address.Address
	Memo                    string
	RollupBlockNumber       uint64
	RollupWithdrawalEventID string
}

func (*BridgeUnlock) Kind() Kind { return KindBridgeUnlock }
func (*BridgeUnlock) isAction()  {}

func (a *BridgeUnlock) ValidateBasic() error {
	if err := requireAddress("to", a.To); err != nil {
		return err
	}
	if err := requireAddress("bridge_address", a.BridgeAddress); err != nil {
		return err
	}
	if a.RollupBlockNumber == 0 {
		return ErrZeroRollupBlock
	}
	if a.RollupWithdrawalEventID == "" {
		return ErrMissingWithdrawalID
	}
	return requireAmount(a.Amount)
}

// BridgeSudoChange rewrites the sudo and/or withdrawer of a bridge account.
type BridgeSudoChange struct {
	BridgeAddress        address.Address
	NewSudoAddress       *address.Address
	NewWithdrawerAddress *address.Address
}

func (*BridgeSudoChange) Kind() Kind { return KindBridgeSudoChange }
func (*BridgeSudoChange) isAction()  {}

func (a *BridgeSudoChange) ValidateBasic() error {
	return requireAddress("bridge_address", a.BridgeAddress)
}

// BridgeTransfer moves funds from one bridge account to another, emitting a
// deposit for the destination's rollup.
type BridgeTransfer struct {
	To                      address.Address
	Amount                  amount.Amount
	BridgeAddress           address.Address
	DestinationChainAddress string
	RollupBlockNumber       uint64
	RollupWithdrawalEventID string
}

func (*BridgeTransfer) Kind() Kind { return KindBridgeTransfer }
func (*BridgeTransfer) isAction()  {}

func (a *BridgeTransfer) ValidateBasic() error {
	if err := requireAddress("to", a.To); err != nil {
		return err
	}
	if err := requireAddress("bridge_address", a.BridgeAddress); err != nil {
		return err
	}
	if a.To.Equal(a.BridgeAddress) {
		return ErrSameBridgeAccount
	}
	if a.DestinationChainAddress == "" {
		return fmt.Errorf("%w: destination_chain_address", ErrMissingField)
	}
	if a.RollupBlockNumber == 0 {
		return ErrZeroRollupBlock
	}
	if a.RollupWithdrawalEventID == "" {
		return ErrMissingWithdrawalID
	}
	return requireAmount(a.Amount)
}

// Ics20Withdrawal sends funds to a counterparty chain over ICS20.
type Ics20Withdrawal struct {
	Amount                  amount.Amount
	Denom                   asset.Denom
	DestinationChainAddress string
	ReturnAddress           address.Address
	TimeoutHeight           IbcHeight
	// TimeoutTime is in unix nanoseconds.
	TimeoutTime      uint64
	SourceChannel    string
	Memo             string
	BridgeAddress    *address.Address
	UseCompatAddress bool
}

func (*Ics20Withdrawal) Kind() Kind { return KindIcs20Withdrawal }
func (*Ics20Withdrawal) isAction()  {}

func (a *Ics20Withdrawal) ValidateBasic() error {
	if err := requireAsset("denom", a.Denom); err != nil {
		return err
	}
	if err := requireAddress("return_address", a.ReturnAddress); err != nil {
		return err
	}
	if a.DestinationChainAddress == "" {
		return fmt.Errorf("%w: destination_chain_address", ErrMissingField)
	}
	if a.TimeoutTime == 0 {
		return ErrZeroTimeout
	}
	if !IsChannelID(a.SourceChannel) {
		return fmt.Errorf("%w: %q", ErrInvalidChannel, a.SourceChannel)
	}
	return requireAmount(a.Amount)
}

// SudoAddressChange replaces the authority sudo address.
type SudoAddressChange struct {
	NewAddress address.Address
}

func (*SudoAddressChange) Kind() Kind { return KindSudoAddressChange }
func (*SudoAddressChange) isAction()  {}

func (a *SudoAddressChange) ValidateBasic() error {
	return requireAddress("new_address", a.NewAddress)
}

// IbcSudoChange replaces the IBC sudo address.
type IbcSudoChange struct {
	NewAddress address.Address
}

func (*IbcSudoChange) Kind() Kind { return KindIbcSudoChange }
func (*IbcSudoChange) isAction()  {}

func (a *IbcSudoChange) ValidateBasic() error {
	return requireAddress("new_address", a.NewAddress)
}

// ValidatorUpdate stages a change to the validator set, applied at the end of
// the block. A power of zero removes the validator.
type ValidatorUpdate struct {
	VerificationKey [32]byte
	Power           uint32
	// Name may only be set once the validator update action upgrade is live.
	Name string
}

func (*ValidatorUpdate) Kind() Kind { return KindValidatorUpdate }
func (*ValidatorUpdate) isAction()  {}

func (a *ValidatorUpdate) ValidateBasic() error {
	if a.VerificationKey == [32]byte{} {
		return fmt.Errorf("%w: verification_key", ErrMissingField)
	}
	if len(a.Name) > MaxValidatorNameLength {
		return ErrValidatorName
	}
	return nil
}

// IbcRelayerChange adds or removes an address allowed to relay IBC messages.
type IbcRelayerChange struct {
	Op      Op
	Address address.Address
}

func (*IbcRelayerChange) Kind() Kind { return KindIbcRelayerChange }
func (*IbcRelayerChange) isAction()  {}

func (a *IbcRelayerChange) ValidateBasic() error {
	if err := a.Op.validate(); err != nil {
		return err
	}
	return requireAddress("address", a.Address)
}

// FeeAssetChange adds or removes an allowed fee asset.
type FeeAssetChange struct {
	Op    Op
	Asset asset.Denom
}

func (*FeeAssetChange) Kind() Kind { return KindFeeAssetChange }
func (*FeeAssetChange) isAction()  {}

func (a *FeeAssetChange) ValidateBasic() error {
	if err := a.Op.validate(); err != nil {
		return err
	}
	return requireAsset("asset", a.Asset)
}

// FeeChange rewrites the fee components of one action kind.
type FeeChange struct {
	Action     Kind
	Components FeeComponents
}

func (*FeeChange) Kind() Kind { return KindFeeChange }
func (*FeeChange) isAction()  {}

func (a *FeeChange) ValidateBasic() error {
	if _, ok := kindNames[a.Action]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAction, a.Action)
	}
	return nil
}

// CurrencyPairsChange adds or removes oracle currency pairs.
type CurrencyPairsChange struct {
	Op    Op
	Pairs []pricefeed.CurrencyPair
}

func (*CurrencyPairsChange) Kind() Kind { return KindCurrencyPairsChange }
func (*CurrencyPairsChange) isAction()  {}

func (a *CurrencyPairsChange) ValidateBasic() error {
	if err := a.Op.validate(); err != nil {
		return err
	}
	if len(a.Pairs) == 0 {
		return fmt.Errorf("%w: currency pairs", ErrEmptyList)
	}
	for _, p := range a.Pairs {
		if err := p.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// MarketsOp selects how MarketsChange treats its markets.
type MarketsOp uint8

const (
	MarketsCreation MarketsOp = iota + 1
	MarketsUpdate
	MarketsRemoval
)

func (o MarketsOp) String() string {
	switch o {
	case MarketsCreation:
		return "creation"
	case MarketsUpdate:
		return "update"
	case MarketsRemoval:
		return "removal"
	}
	return "unknown"
}

// MarketsChange creates, updates or removes market map entries.
type MarketsChange struct {
	Op      MarketsOp
	Markets []pricefeed.Market
}

func (*MarketsChange) Kind() Kind { return KindMarketsChange }
func (*MarketsChange) isAction()  {}

func (a *MarketsChange) ValidateBasic() error {
	if a.Op < MarketsCreation || a.Op > MarketsRemoval {
		return fmt.Errorf("%w: markets op %d", ErrUnknownVariant, a.Op)
	}
	if len(a.Markets) == 0 {
		return fmt.Errorf("%w: markets", ErrEmptyList)
	}
	for _, m := range a.Markets {
		if a.Op == MarketsRemoval {
			if err := m.Pair.Validate(); err != nil {
				return err
			}
			continue
		}
		if err := m.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// UpdateMarketMapParams replaces the market map admin and authorities.
type UpdateMarketMapParams struct {
	Params pricefeed.MarketMapParams
}

func (*UpdateMarketMapParams) Kind() Kind { return KindUpdateMarketMapParams }
func (*UpdateMarketMapParams) isAction()  {}

func (a *UpdateMarketMapParams) ValidateBasic() error {
	if err := requireAddress("admin", a.Params.Admin); err != nil {
		return err
	}
	if len(a.Params.MarketAuthorities) == 0 {
		return fmt.Errorf("%w: market authorities", ErrEmptyList)
	}
	for _, auth := range a.Params.MarketAuthorities {
		if err := requireAddress("market_authority", auth); err != nil {
			return err
		}
	}
	return nil
}

// GroupOf returns the group shared by all actions, failing if they mix groups
// or if an unbundleable action does not stand alone.
func GroupOf(acts []Action) (Group, error) {
	if len(acts) == 0 {
		return 0, fmt.Errorf("%w: actions", ErrEmptyList)
	}
	group := acts[0].Kind().Group()
	for _, a := range acts[1:] {
		if a.Kind().Group() != group {
			return 0, fmt.Errorf("%w: %s and %s", ErrMixedGroups, group, a.Kind().Group())
		}
	}
	if !group.IsBundleable() && len(acts) > 1 {
		return 0, fmt.Errorf("%w: %s", ErrUnbundleable, acts[0].Kind())
	}
	return group, nil
}

// DepositVariableLength is the size the fee multiplier applies to for
// actions that emit a deposit.
func DepositVariableLength(d asset.Denom, destination string) uint64 {
	return appconsts.DepositBaseFee + uint64(len(d.String())) + uint64(len(destination))
}
