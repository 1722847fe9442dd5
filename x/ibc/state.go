// Package ibc implements the relayer gated IBC subset of the sequencer:
// CometBFT light clients of counterparty chains, ICS20 transfer channels
// opened through a proven handshake, packet commitments, receipts and
// acknowledgements, and per channel escrow balances.
package ibc

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	errorsmod "cosmossdk.io/errors"

	"github.com/astriaorg/astria-sequencer/pkg/actions"
	"github.com/astriaorg/astria-sequencer/pkg/address"
	"github.com/astriaorg/astria-sequencer/pkg/amount"
	"github.com/astriaorg/astria-sequencer/pkg/asset"
	"github.com/astriaorg/astria-sequencer/pkg/storage"
	"github.com/astriaorg/astria-sequencer/pkg/storedvalue"
)

const ModuleName = "ibc"

// TransferPort is the only port channels may be opened on.
const TransferPort = "transfer"

const clientIDPrefix = "07-tendermint-"

const (
	sudoKey          = "ibc/sudo"
	paramsKey        = "ibc/params"
	relayerPrefix    = "ibc/relayer/"
	nextClientKey    = "ibc/client/next_id"
	nextChannelKey   = "ibc/channel/next_id"
	commitmentPrefix = "ibc/commitments/"
	receiptPrefix    = "ibc/receipts/"
	ackPrefix        = "ibc/acks/"
	escrowPrefix     = "ibc/balance/"
)

var (
	ErrIbcSudoNotSet        = errorsmod.Register(ModuleName, 2, "ibc sudo address not set")
	ErrNotIbcSudo           = errorsmod.Register(ModuleName, 3, "signer is not the ibc sudo address")
	ErrNotRelayer           = errorsmod.Register(ModuleName, 4, "signer is not an ibc relayer")
	ErrIbcDisabled          = errorsmod.Register(ModuleName, 5, "ibc is disabled")
	ErrTransfersDisabled    = errorsmod.Register(ModuleName, 6, "ics20 transfers are disabled in this direction")
	ErrUnknownClient        = errorsmod.Register(ModuleName, 7, "unknown client")
	ErrClientFrozen         = errorsmod.Register(ModuleName, 8, "client is frozen")
	ErrUnknownConsensus     = errorsmod.Register(ModuleName, 9, "no consensus state at height")
	ErrUnknownChannel       = errorsmod.Register(ModuleName, 10, "unknown channel")
	ErrChannelClosed        = errorsmod.Register(ModuleName, 11, "channel is not open")
	ErrUnsupportedPort      = errorsmod.Register(ModuleName, 12, "unsupported port")
	ErrInvalidProof         = errorsmod.Register(ModuleName, 13, "invalid proof")
	ErrPacketTimedOut       = errorsmod.Register(ModuleName, 14, "packet timed out")
	ErrPacketNotTimedOut    = errorsmod.Register(ModuleName, 15, "packet has not timed out")
	ErrPacketReceived       = errorsmod.Register(ModuleName, 16, "packet already received")
	ErrCommitmentMismatch   = errorsmod.Register(ModuleName, 17, "packet commitment missing or different")
	ErrInvalidPacketData    = errorsmod.Register(ModuleName, 18, "invalid ics20 packet data")
	ErrInsufficientEscrow   = errorsmod.Register(ModuleName, 19, "insufficient escrow balance")
	ErrCounterpartyMismatch = errorsmod.Register(ModuleName, 20, "packet does not match channel counterparty")
	ErrBridgeSender         = errorsmod.Register(ModuleName, 21, "bridge accounts must set bridge_address to withdraw")
	ErrInvalidMemo          = errorsmod.Register(ModuleName, 22, "invalid memo")
	ErrInvalidHeader        = errorsmod.Register(ModuleName, 23, "invalid counterparty header")
	ErrHandshakeState       = errorsmod.Register(ModuleName, 24, "channel is not in the expected handshake state")
)

// Params gate the IBC features.
type Params struct {
	IbcEnabled                    bool `json:"ibc_enabled"`
	InboundIcs20TransfersEnabled  bool `json:"inbound_ics20_transfers_enabled"`
	OutboundIcs20TransfersEnabled bool `json:"outbound_ics20_transfers_enabled"`
}

// ClientState tracks a counterparty chain.
type ClientState struct {
	ChainID        string
	LatestHeight   actions.IbcHeight
	TrustingPeriod time.Duration
	Frozen         bool
}

// ConsensusState is what a verified counterparty header committed to.
type ConsensusState struct {
	Root []byte
	// Timestamp is in unix nanoseconds.
	Timestamp          uint64
	NextValidatorsHash []byte
}

// ChannelState is the handshake progress of a channel end.
type ChannelState uint8

const (
	ChannelInit ChannelState = iota + 1
	ChannelTryOpen
	ChannelOpen
)

func (s ChannelState) String() string {
	switch s {
	case ChannelInit:
		return "init"
	case ChannelTryOpen:
		return "try_open"
	case ChannelOpen:
		return "open"
	}
	return "unknown"
}

// Channel is the local end of a transfer channel. CounterpartyChannel is
// empty until the counterparty end exists.
type Channel struct {
	ClientID             string
	CounterpartyClientID string
	CounterpartyPort     string
	CounterpartyChannel  string
	State                ChannelState
}

func (c Channel) IsOpen() bool { return c.State == ChannelOpen }

func relayerKey(addr [address.Length]byte) string { return relayerPrefix + hex.EncodeToString(addr[:]) }

func clientStateKey(id string) string { return "ibc/client/" + id + "/state" }

func consensusKey(id string, h actions.IbcHeight) string {
	return "ibc/client/" + id + "/consensus/" + h.String()
}

// ChannelKey is where a channel end is stored. Handshake proofs are made
// against the same layout on the counterparty.
func ChannelKey(port, channel string) string { return "ibc/channel/" + port + "/" + channel }

func nextSequenceSendKey(port, channel string) string {
	return ChannelKey(port, channel) + "/next_sequence_send"
}

func packetPath(prefix, port, channel string, seq uint64) string {
	return prefix + port + "/" + channel + "/" + strconv.FormatUint(seq, 10)
}

// CommitmentKey is where the commitment of an outgoing packet is stored.
// Counterparties prove against the same layout.
func CommitmentKey(port, channel string, seq uint64) string {
	return packetPath(commitmentPrefix, port, channel, seq)
}

// ReceiptKey marks a received packet.
func ReceiptKey(port, channel string, seq uint64) string {
	return packetPath(receiptPrefix, port, channel, seq)
}

// AckKey holds the hash of the acknowledgement written for a received packet.
func AckKey(port, channel string, seq uint64) string {
	return packetPath(ackPrefix, port, channel, seq)
}

func escrowKey(channel string, id asset.IbcPrefixed) string {
	return escrowPrefix + channel + "/" + id.Hex()
}

func PutSudo(w storage.Writer, sudo [address.Length]byte) error {
	return storage.PutValue(w, sudoKey, storedvalue.AddressBytes{Value: sudo})
}

func Sudo(r storage.Reader) ([address.Length]byte, error) {
	v, found, err := storage.GetValue[storedvalue.AddressBytes](r, sudoKey)
	if err != nil {
		return [address.Length]byte{}, err
	}
	if !found {
		return [address.Length]byte{}, ErrIbcSudoNotSet
	}
	return v.Value, nil
}

func ensureSudo(r storage.Reader, signer [address.Length]byte) error {
	sudo, err := Sudo(r)
	if err != nil {
		return err
	}
	if sudo != signer {
		return ErrNotIbcSudo
	}
	return nil
}

func PutRelayer(w storage.Writer, addr [address.Length]byte) error {
	return storage.PutValue(w, relayerKey(addr), storedvalue.Unit{})
}

func DeleteRelayer(w storage.Writer, addr [address.Length]byte) { w.Delete(relayerKey(addr)) }

func IsRelayer(r storage.Reader, addr [address.Length]byte) (bool, error) {
	_, found, err := storage.GetValue[storedvalue.Unit](r, relayerKey(addr))
	return found, err
}

func PutParams(w storage.Writer, p Params) error {
	return storage.PutValue(w, paramsKey, storedvalue.IbcParameters{
		IbcEnabled:                    p.IbcEnabled,
		InboundIcs20TransfersEnabled:  p.InboundIcs20TransfersEnabled,
		OutboundIcs20TransfersEnabled: p.OutboundIcs20TransfersEnabled,
	})
}

// GetParams returns the zero Params, everything disabled, if none were set.
func GetParams(r storage.Reader) (Params, error) {
	v, _, err := storage.GetValue[storedvalue.IbcParameters](r, paramsKey)
	return Params{
		IbcEnabled:                    v.IbcEnabled,
		InboundIcs20TransfersEnabled:  v.InboundIcs20TransfersEnabled,
		OutboundIcs20TransfersEnabled: v.OutboundIcs20TransfersEnabled,
	}, err
}

// nextID returns the counter under key and advances it.
func nextID(w storage.Writer, key string) (uint64, error) {
	v, _, err := storage.GetValue[storedvalue.Count](w, key)
	if err != nil {
		return 0, err
	}
	return v.Value, storage.PutValue(w, key, storedvalue.Count{Value: v.Value + 1})
}

func PutClientState(w storage.Writer, id string, cs ClientState) error {
	return storage.PutValue(w, clientStateKey(id), storedvalue.IbcClientState{
		ChainID:              cs.ChainID,
		LatestRevisionNumber: cs.LatestHeight.RevisionNumber,
		LatestRevisionHeight: cs.LatestHeight.RevisionHeight,
		TrustingPeriodNanos:  int64(cs.TrustingPeriod),
		Frozen:               cs.Frozen,
	})
}

func GetClientState(r storage.Reader, id string) (ClientState, error) {
	v, found, err := storage.GetValue[storedvalue.IbcClientState](r, clientStateKey(id))
	if err != nil {
		return ClientState{}, err
	}
	if !found {
		return ClientState{}, errorsmod.Wrap(ErrUnknownClient, id)
	}
	return ClientState{
		ChainID: v.ChainID,
		LatestHeight: actions.IbcHeight{
			RevisionNumber: v.LatestRevisionNumber,
			RevisionHeight: v.LatestRevisionHeight,
		},
		TrustingPeriod: time.Duration(v.TrustingPeriodNanos),
		Frozen:         v.Frozen,
	}, nil
}

func PutConsensusState(w storage.Writer, id string, h actions.IbcHeight, cs ConsensusState) error {
	return storage.PutValue(w, consensusKey(id, h), storedvalue.IbcConsensusState{
		Root:               cs.Root,
		UnixNanos:          int64(cs.Timestamp),
		NextValidatorsHash: cs.NextValidatorsHash,
	})
}

func GetConsensusState(r storage.Reader, id string, h actions.IbcHeight) (ConsensusState, bool, error) {
	v, found, err := storage.GetValue[storedvalue.IbcConsensusState](r, consensusKey(id, h))
	if err != nil || !found {
		return ConsensusState{}, found, err
	}
	return ConsensusState{Root: v.Root, Timestamp: uint64(v.UnixNanos), NextValidatorsHash: v.NextValidatorsHash}, true, nil
}

func channelToStored(c Channel) storedvalue.IbcChannel {
	return storedvalue.IbcChannel{
		ClientID:             c.ClientID,
		CounterpartyClientID: c.CounterpartyClientID,
		CounterpartyPort:     c.CounterpartyPort,
		CounterpartyChannel:  c.CounterpartyChannel,
		State:                uint8(c.State),
	}
}

// ChannelValue is the stored form of a channel end that counterparties
// prove.
func ChannelValue(c Channel) []byte {
	return storedvalue.MustSerialize(channelToStored(c))
}

func PutChannel(w storage.Writer, port, channel string, c Channel) error {
	return storage.PutValue(w, ChannelKey(port, channel), channelToStored(c))
}

func GetChannel(r storage.Reader, port, channel string) (Channel, error) {
	v, found, err := storage.GetValue[storedvalue.IbcChannel](r, ChannelKey(port, channel))
	if err != nil {
		return Channel{}, err
	}
	if !found {
		return Channel{}, errorsmod.Wrapf(ErrUnknownChannel, "%s/%s", port, channel)
	}
	return Channel{
		ClientID:             v.ClientID,
		CounterpartyClientID: v.CounterpartyClientID,
		CounterpartyPort:     v.CounterpartyPort,
		CounterpartyChannel:  v.CounterpartyChannel,
		State:                ChannelState(v.State),
	}, nil
}

// openChannel returns the channel if it exists and is open.
func openChannel(r storage.Reader, port, channel string) (Channel, error) {
	c, err := GetChannel(r, port, channel)
	if err != nil {
		return Channel{}, err
	}
	if !c.IsOpen() {
		return Channel{}, errorsmod.Wrapf(ErrChannelClosed, "%s/%s", port, channel)
	}
	return c, nil
}

// NextSequenceSend returns the sequence the next outgoing packet gets.
// Sequences start at 1.
func NextSequenceSend(r storage.Reader, port, channel string) (uint64, error) {
	v, found, err := storage.GetValue[storedvalue.Count](r, nextSequenceSendKey(port, channel))
	if err != nil {
		return 0, err
	}
	if !found {
		return 1, nil
	}
	return v.Value, nil
}

func putNextSequenceSend(w storage.Writer, port, channel string, seq uint64) error {
	return storage.PutValue(w, nextSequenceSendKey(port, channel), storedvalue.Count{Value: seq})
}

func PutCommitment(w storage.Writer, port, channel string, seq uint64, c [32]byte) error {
	return storage.PutValue(w, CommitmentKey(port, channel, seq), storedvalue.IbcPacketCommitment{Value: c})
}

func GetCommitment(r storage.Reader, port, channel string, seq uint64) ([32]byte, bool, error) {
	v, found, err := storage.GetValue[storedvalue.IbcPacketCommitment](r, CommitmentKey(port, channel, seq))
	return v.Value, found, err
}

func HasReceipt(r storage.Reader, port, channel string, seq uint64) (bool, error) {
	_, found, err := storage.GetValue[storedvalue.Unit](r, ReceiptKey(port, channel, seq))
	return found, err
}

func putReceipt(w storage.Writer, port, channel string, seq uint64) error {
	return storage.PutValue(w, ReceiptKey(port, channel, seq), storedvalue.Unit{})
}

func PutAcknowledgement(w storage.Writer, port, channel string, seq uint64, ack []byte) error {
	return storage.PutValue(w, AckKey(port, channel, seq), storedvalue.IbcAcknowledgement{Hash: hashAck(ack)})
}

func GetAcknowledgementHash(r storage.Reader, port, channel string, seq uint64) ([32]byte, bool, error) {
	v, found, err := storage.GetValue[storedvalue.IbcAcknowledgement](r, AckKey(port, channel, seq))
	return v.Hash, found, err
}

// EscrowBalance is the amount of id escrowed on channel.
func EscrowBalance(r storage.Reader, channel string, id asset.IbcPrefixed) (amount.Amount, error) {
	v, _, err := storage.GetValue[storedvalue.Balance](r, escrowKey(channel, id))
	return v.Value.Amount(), err
}

func putEscrowBalance(w storage.Writer, channel string, id asset.IbcPrefixed, a amount.Amount) error {
	return storage.PutValue(w, escrowKey(channel, id), storedvalue.Balance{Value: storedvalue.NewU128(a)})
}

func increaseEscrow(w storage.Writer, channel string, id asset.IbcPrefixed, a amount.Amount) error {
	cur, err := EscrowBalance(w, channel, id)
	if err != nil {
		return err
	}
	next, err := cur.Add(a)
	if err != nil {
		return fmt.Errorf("escrow balance of %s on %s: %w", id, channel, err)
	}
	return putEscrowBalance(w, channel, id, next)
}

func decreaseEscrow(w storage.Writer, channel string, id asset.IbcPrefixed, a amount.Amount) error {
	cur, err := EscrowBalance(w, channel, id)
	if err != nil {
		return err
	}
	next, err := cur.Sub(a)
	if err != nil {
		return errorsmod.Wrapf(ErrInsufficientEscrow, "have %s, need %s of %s on %s", cur, a, id, channel)
	}
	return putEscrowBalance(w, channel, id, next)
}
