package storedvalue

import "github.com/astriaorg/astria-sequencer/pkg/amount"

// U128 is a Borsh u128: two little-endian u64 words.
type U128 struct {
	Lo uint64
	Hi uint64
}

// I128 is a Borsh i128 in two's complement.
type I128 struct {
	Lo uint64
	Hi int64
}

type Unit struct{}

func (Unit) Tag() Tag { return TagUnit }

type ChainID struct{ Value string }

func (ChainID) Tag() Tag { return TagChainID }

type RevisionNumber struct{ Value uint64 }

func (RevisionNumber) Tag() Tag { return TagRevisionNumber }

type StorageVersion struct{ Value uint64 }

func (StorageVersion) Tag() Tag { return TagStorageVersion }

type BlockHeight struct{ Value uint64 }

func (BlockHeight) Tag() Tag { return TagBlockHeight }

type BlockTimestamp struct{ UnixNanos int64 }

func (BlockTimestamp) Tag() Tag { return TagBlockTimestamp }

type AddressPrefix struct{ Value string }

func (AddressPrefix) Tag() Tag { return TagAddressPrefix }

type AddressBytes struct{ Value [20]byte }

func (AddressBytes) Tag() Tag { return TagAddressBytes }

type Balance struct{ Value U128 }

func (Balance) Tag() Tag { return TagBalance }

type Nonce struct{ Value uint32 }

func (Nonce) Tag() Tag { return TagNonce }

type Fees struct {
	Base       U128
	Multiplier U128
}

func (Fees) Tag() Tag { return TagFees }

type TracePrefixedDenom struct {
	Trace     []string
	BaseDenom string
}

func (TracePrefixedDenom) Tag() Tag { return TagTracePrefixedDenom }

type IbcPrefixedDenom struct{ Value [32]byte }

func (IbcPrefixedDenom) Tag() Tag { return TagIbcPrefixedDenom }

type RollupID struct{ Value [32]byte }

func (RollupID) Tag() Tag { return TagRollupID }

type Validator struct {
	VerificationKey [32]byte
	Power           uint64
	Name            string
}

type ValidatorSet struct{ Validators []Validator }

func (ValidatorSet) Tag() Tag { return TagValidatorSet }

type IbcParameters struct {
	IbcEnabled                    bool
	InboundIcs20TransfersEnabled  bool
	OutboundIcs20TransfersEnabled bool
}

func (IbcParameters) Tag() Tag { return TagIbcParameters }

type IbcClientState struct {
	ChainID              string
	LatestRevisionNumber uint64
	LatestRevisionHeight uint64
	TrustingPeriodNanos  int64
	Frozen               bool
}

func (IbcClientState) Tag() Tag { return TagIbcClientState }

type IbcConsensusState struct {
	Root               []byte
	UnixNanos          int64
	NextValidatorsHash []byte
}

func (IbcConsensusState) Tag() Tag { return TagIbcConsensusState }

type IbcChannel struct {
	ClientID             string
	CounterpartyClientID string
	CounterpartyPort     string
	CounterpartyChannel  string
	State                uint8
}

func (IbcChannel) Tag() Tag { return TagIbcChannel }

type IbcPacketCommitment struct{ Value [32]byte }

func (IbcPacketCommitment) Tag() Tag { return TagIbcPacketCommitment }

type Count struct{ Value uint64 }

func (Count) Tag() Tag { return TagCount }

type ChangeInfo struct {
	ActivationHeight uint64
	AppVersion       uint64
	Hash             [32]byte
}

func (ChangeInfo) Tag() Tag { return TagChangeInfo }

// ConsensusParams holds the protobuf encoding of CometBFT consensus params.
type ConsensusParams struct{ Encoded []byte }

func (ConsensusParams) Tag() Tag { return TagConsensusParams }

type BlockHash struct{ Value [32]byte }

func (BlockHash) Tag() Tag { return TagBlockHash }

// SequencerBlock holds the protobuf encoding of a committed sequencer block.
type SequencerBlock struct{ Encoded []byte }

func (SequencerBlock) Tag() Tag { return TagSequencerBlock }

type ProviderConfig struct {
	Name           string
	OffChainTicker string
	Invert         bool
}

type Market struct {
	Base             string
	Quote            string
	Decimals         uint64
	MinProviderCount uint64
	Enabled          bool
	Metadata         string
	Providers        []ProviderConfig
}

type MarketMap struct{ Markets []Market }

func (MarketMap) Tag() Tag { return TagMarketMap }

type MarketMapParams struct {
	MarketAuthorities [][20]byte
	Admin             [20]byte
}

func (MarketMapParams) Tag() Tag { return TagMarketMapParams }

type CurrencyPair struct {
	Base  string
	Quote string
}

func (CurrencyPair) Tag() Tag { return TagCurrencyPair }

type CurrencyPairID struct{ Value uint64 }

func (CurrencyPairID) Tag() Tag { return TagCurrencyPairID }

type QuotePrice struct {
	Price              I128
	BlockTimestampNano int64
	BlockHeight        uint64
}

// CurrencyPairState carries the price presence as its own field: borsh-go
// decodes a None pointer into a zero value, so *QuotePrice cannot be used.
type CurrencyPairState struct {
	HasPrice bool
	Price    QuotePrice
	Nonce    uint64
	ID       uint64
}

func (CurrencyPairState) Tag() Tag { return TagCurrencyPairState }

type TransactionID struct{ Value [32]byte }

func (TransactionID) Tag() Tag { return TagTransactionID }

// IbcAcknowledgement holds the hash of a written acknowledgement.
type IbcAcknowledgement struct{ Hash [32]byte }

func (IbcAcknowledgement) Tag() Tag { return TagIbcAcknowledgement }

// NewU128 converts an amount to its stored form.
func NewU128(a amount.Amount) U128 {
	lo, hi := a.Parts()
	return U128{Lo: lo, Hi: hi}
}

// Amount converts the stored form back.
func (u U128) Amount() amount.Amount {
	return amount.FromParts(u.Lo, u.Hi)
}
