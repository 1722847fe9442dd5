package actions

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/astriaorg/astria-sequencer/pkg/wire"
)

const channelPrefix = "channel-"

// IsChannelID reports whether s is of the form channel-N.
func IsChannelID(s string) bool {
	n, ok := strings.CutPrefix(s, channelPrefix)
	if !ok || n == "" {
		return false
	}
	_, err := strconv.ParseUint(n, 10, 64)
	return err == nil
}

// IbcHeight is an IBC client height.
type IbcHeight struct {
	RevisionNumber uint64 `json:"revision_number"`
	RevisionHeight uint64 `json:"revision_height"`
}

func (h IbcHeight) IsZero() bool { return h.RevisionNumber == 0 && h.RevisionHeight == 0 }

// LT orders heights by revision, then height.
func (h IbcHeight) LT(other IbcHeight) bool {
	if h.RevisionNumber != other.RevisionNumber {
		return h.RevisionNumber < other.RevisionNumber
	}
	return h.RevisionHeight < other.RevisionHeight
}

func (h IbcHeight) String() string {
	return fmt.Sprintf("%d-%d", h.RevisionNumber, h.RevisionHeight)
}

// Packet is an IBC packet travelling between two channel ends.
type Packet struct {
	Sequence           uint64
	SourcePort         string
	SourceChannel      string
	DestinationPort    string
	DestinationChannel string
	Data               []byte
	TimeoutHeight      IbcHeight
	// TimeoutTimestamp is in unix nanoseconds.
	TimeoutTimestamp uint64
}

func (p *Packet) validate() error {
	if p.Sequence == 0 {
		return fmt.Errorf("%w: packet sequence", ErrMissingField)
	}
	if p.SourcePort == "" || p.DestinationPort == "" {
		return fmt.Errorf("%w: packet port", ErrMissingField)
	}
	if !IsChannelID(p.SourceChannel) || !IsChannelID(p.DestinationChannel) {
		return fmt.Errorf("%w: packet channels %q and %q", ErrInvalidChannel, p.SourceChannel, p.DestinationChannel)
	}
	if p.TimeoutHeight.IsZero() && p.TimeoutTimestamp == 0 {
		return fmt.Errorf("%w: packet timeout", ErrMissingField)
	}
	return nil
}

// IbcMsg is one of the relayed IBC messages.
type IbcMsg interface {
	wire.Marshaler
	validate() error
	isIbcMsg()
}

// CreateClient registers a light client for a counterparty chain. Header
// and ValidatorSet are the protobuf encodings of a CometBFT SignedHeader and
// the validator set that signed it; the header's commit must carry more than
// two thirds of that set's voting power.
type CreateClient struct {
	ChainID string
	// TrustingPeriod bounds how long a consensus state can be used to verify
	// newer headers.
	TrustingPeriod time.Duration
	Header         []byte
	ValidatorSet   []byte
}

// UpdateClient adds the consensus state of a newer counterparty header.
// TrustedValidators is the next validator set of the consensus state at
// TrustedHeight, the state the header is verified from.
type UpdateClient struct {
	ClientID          string
	Header            []byte
	ValidatorSet      []byte
	TrustedHeight     IbcHeight
	TrustedValidators []byte
}

// ChannelOpenInit starts a handshake from this chain.
// CounterpartyClientID is the counterparty's client of this chain.
type ChannelOpenInit struct {
	ClientID             string
	PortID               string
	CounterpartyPort     string
	CounterpartyClientID string
}

// ChannelOpenTry answers a handshake the counterparty started. Proof shows
// the counterparty channel in the init state.
type ChannelOpenTry struct {
	ClientID             string
	PortID               string
	CounterpartyPort     string
	CounterpartyChannel  string
	CounterpartyClientID string
	Proof                []byte
	ProofHeight          IbcHeight
}

// ChannelOpenAck opens a channel this chain initiated. Proof shows the
// counterparty channel in the try open state.
type ChannelOpenAck struct {
	PortID              string
	ChannelID           string
	CounterpartyChannel string
	Proof               []byte
	ProofHeight         IbcHeight
}

// ChannelOpenConfirm opens a channel this chain tried. Proof shows the
// counterparty channel open.
type ChannelOpenConfirm struct {
	PortID      string
	ChannelID   string
	Proof       []byte
	ProofHeight IbcHeight
}

// RecvPacket delivers a packet sent by the counterparty. Proof is an encoded
// ICS23 commitment proof of the packet commitment on the counterparty.
type RecvPacket struct {
	Packet      Packet
	Proof       []byte
	ProofHeight IbcHeight
}

// Acknowledgement delivers the counterparty's acknowledgement of a packet
// sent from here.
type Acknowledgement struct {
	Packet          Packet
	Acknowledgement []byte
	Proof           []byte
	ProofHeight     IbcHeight
}

// Timeout proves a packet sent from here was never received before its
// timeout.
type Timeout struct {
	Packet      Packet
	Proof       []byte
	ProofHeight IbcHeight
}

func (*CreateClient) isIbcMsg()       {}
func (*UpdateClient) isIbcMsg()       {}
func (*ChannelOpenInit) isIbcMsg()    {}
func (*ChannelOpenTry) isIbcMsg()     {}
func (*ChannelOpenAck) isIbcMsg()     {}
func (*ChannelOpenConfirm) isIbcMsg() {}
func (*RecvPacket) isIbcMsg()         {}
func (*Acknowledgement) isIbcMsg()    {}
func (*Timeout) isIbcMsg()            {}

func (m *CreateClient) validate() error {
	if m.ChainID == "" {
		return fmt.Errorf("%w: chain_id", ErrMissingField)
	}
	if m.TrustingPeriod <= 0 {
		return fmt.Errorf("%w: trusting_period", ErrMissingField)
	}
	return validateHeader(m.Header, m.ValidatorSet)
}

func (m *UpdateClient) validate() error {
	if m.ClientID == "" {
		return fmt.Errorf("%w: client_id", ErrMissingField)
	}
	if m.TrustedHeight.IsZero() {
		return fmt.Errorf("%w: trusted_height", ErrMissingField)
	}
	if len(m.TrustedValidators) == 0 {
		return fmt.Errorf("%w: trusted_validators", ErrMissingField)
	}
	return validateHeader(m.Header, m.ValidatorSet)
}

func validateHeader(header, vals []byte) error {
	if len(header) == 0 {
		return fmt.Errorf("%w: header", ErrMissingField)
	}
	if len(vals) == 0 {
		return fmt.Errorf("%w: validator_set", ErrMissingField)
	}
	return nil
}

func (m *ChannelOpenInit) validate() error {
	if m.ClientID == "" || m.PortID == "" || m.CounterpartyPort == "" || m.CounterpartyClientID == "" {
		return fmt.Errorf("%w: channel ends", ErrMissingField)
	}
	return nil
}

func (m *ChannelOpenTry) validate() error {
	if m.ClientID == "" || m.PortID == "" || m.CounterpartyPort == "" || m.CounterpartyClientID == "" {
		return fmt.Errorf("%w: channel ends", ErrMissingField)
	}
	if !IsChannelID(m.CounterpartyChannel) {
		return fmt.Errorf("%w: %q", ErrInvalidChannel, m.CounterpartyChannel)
	}
	return validateHandshakeProof(m.Proof, m.ProofHeight)
}

func (m *ChannelOpenAck) validate() error {
	if m.PortID == "" {
		return fmt.Errorf("%w: port_id", ErrMissingField)
	}
	if !IsChannelID(m.ChannelID) || !IsChannelID(m.CounterpartyChannel) {
		return fmt.Errorf("%w: %q and %q", ErrInvalidChannel, m.ChannelID, m.CounterpartyChannel)
	}
	return validateHandshakeProof(m.Proof, m.ProofHeight)
}

func (m *ChannelOpenConfirm) validate() error {
	if m.PortID == "" {
		return fmt.Errorf("%w: port_id", ErrMissingField)
	}
	if !IsChannelID(m.ChannelID) {
		return fmt.Errorf("%w: %q", ErrInvalidChannel, m.ChannelID)
	}
	return validateHandshakeProof(m.Proof, m.ProofHeight)
}

func validateHandshakeProof(proof []byte, h IbcHeight) error {
	if len(proof) == 0 {
		return fmt.Errorf("%w: proof", ErrMissingField)
	}
	if h.IsZero() {
		return fmt.Errorf("%w: proof_height", ErrMissingField)
	}
	return nil
}

func (m *RecvPacket) validate() error {
	return validateProven(&m.Packet, m.Proof, m.ProofHeight)
}

func (m *Acknowledgement) validate() error {
	if len(m.Acknowledgement) == 0 {
		return fmt.Errorf("%w: acknowledgement", ErrMissingField)
	}
	return validateProven(&m.Packet, m.Proof, m.ProofHeight)
}

func (m *Timeout) validate() error {
	return validateProven(&m.Packet, m.Proof, m.ProofHeight)
}

func validateProven(p *Packet, proof []byte, h IbcHeight) error {
	if err := p.validate(); err != nil {
		return err
	}
	if len(proof) == 0 {
		return fmt.Errorf("%w: proof", ErrMissingField)
	}
	if h.IsZero() {
		return fmt.Errorf("%w: proof_height", ErrMissingField)
	}
	return nil
}

// IbcRelay carries one IBC message. Only registered relayers may submit it.
type IbcRelay struct {
	Msg IbcMsg
}

func (*IbcRelay) Kind() Kind { return KindIbcRelay }
func (*IbcRelay) isAction()  {}

func (a *IbcRelay) ValidateBasic() error {
	if a.Msg == nil {
		return fmt.Errorf("%w: ibc message", ErrMissingField)
	}
	return a.Msg.validate()
}
