package ibc

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strconv"

	errorsmod "cosmossdk.io/errors"
	abci "github.com/cometbft/cometbft/abci/types"
	ics23 "github.com/cosmos/ics23/go"

	"github.com/astriaorg/astria-sequencer/pkg/actions"
	"github.com/astriaorg/astria-sequencer/pkg/address"
	"github.com/astriaorg/astria-sequencer/pkg/amount"
	"github.com/astriaorg/astria-sequencer/pkg/asset"
	"github.com/astriaorg/astria-sequencer/pkg/sequencerblock"
	"github.com/astriaorg/astria-sequencer/pkg/storage"
	"github.com/astriaorg/astria-sequencer/pkg/storedvalue"
	"github.com/astriaorg/astria-sequencer/x/accounts"
	xaddress "github.com/astriaorg/astria-sequencer/x/address"
	"github.com/astriaorg/astria-sequencer/x/assets"
	"github.com/astriaorg/astria-sequencer/x/bridge"
	"github.com/astriaorg/astria-sequencer/x/meta"
)

// ExecuteIbcRelay executes one relayed IBC message. Only relayers may
// submit them. deterministicAcks selects the fixed error text for failed
// receives.
func ExecuteIbcRelay(d *storage.Delta, a *actions.IbcRelay, deterministicAcks bool) error {
	tx, err := meta.CurrentTx(d)
	if err != nil {
		return err
	}
	ok, err := IsRelayer(d, tx.Signer)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotRelayer
	}
	params, err := GetParams(d)
	if err != nil {
		return err
	}
	if !params.IbcEnabled {
		return ErrIbcDisabled
	}
	switch msg := a.Msg.(type) {
	case *actions.CreateClient:
		return createClient(d, msg)
	case *actions.UpdateClient:
		return updateClient(d, msg)
	case *actions.ChannelOpenInit:
		return channelOpenInit(d, msg)
	case *actions.ChannelOpenTry:
		return channelOpenTry(d, msg)
	case *actions.ChannelOpenAck:
		return channelOpenAck(d, msg)
	case *actions.ChannelOpenConfirm:
		return channelOpenConfirm(d, msg)
	case *actions.RecvPacket:
		return recvPacket(d, msg, params, deterministicAcks)
	case *actions.Acknowledgement:
		return acknowledgePacket(d, msg)
	case *actions.Timeout:
		return timeoutPacket(d, msg)
	default:
		return fmt.Errorf("unsupported ibc message %T", msg)
	}
}

// createClient starts a light client from a header committed by its own
// validator set.
func createClient(w storage.Writer, m *actions.CreateClient) error {
	sh, err := decodeSignedHeader(m.Header)
	if err != nil {
		return err
	}
	vals, err := decodeValidatorSet(m.ValidatorSet)
	if err != nil {
		return err
	}
	now, err := meta.BlockTimestamp(w)
	if err != nil {
		return err
	}
	if err := verifyInitialHeader(m.ChainID, sh, vals, m.TrustingPeriod, now); err != nil {
		return err
	}
	n, err := nextID(w, nextClientKey)
	if err != nil {
		return err
	}
	id := clientIDPrefix + strconv.FormatUint(n, 10)
	height := heightOf(sh)
	cs := ClientState{ChainID: m.ChainID, LatestHeight: height, TrustingPeriod: m.TrustingPeriod}
	if err := PutClientState(w, id, cs); err != nil {
		return err
	}
	if err := PutConsensusState(w, id, height, consensusOf(sh)); err != nil {
		return err
	}
	meta.EmitEvent(w, clientEvent(EventTypeCreate, id, height))
	return nil
}

// updateClient verifies a header from a trusted consensus state and stores
// its consensus state. A second verified header with a different state at
// an already known height is misbehaviour and freezes the client.
func updateClient(w storage.Writer, m *actions.UpdateClient) error {
	cs, err := GetClientState(w, m.ClientID)
	if err != nil {
		return err
	}
	if cs.Frozen {
		return errorsmod.Wrap(ErrClientFrozen, m.ClientID)
	}
	trusted, found, err := GetConsensusState(w, m.ClientID, m.TrustedHeight)
	if err != nil {
		return err
	}
	if !found {
		return errorsmod.Wrapf(ErrUnknownConsensus, "client %s at %s", m.ClientID, m.TrustedHeight)
	}
	trustedVals, err := decodeValidatorSet(m.TrustedValidators)
	if err != nil {
		return err
	}
	sh, err := decodeSignedHeader(m.Header)
	if err != nil {
		return err
	}
	vals, err := decodeValidatorSet(m.ValidatorSet)
	if err != nil {
		return err
	}
	now, err := meta.BlockTimestamp(w)
	if err != nil {
		return err
	}
	if err := verifyHeader(cs, m.TrustedHeight, trusted, trustedVals, sh, vals, now); err != nil {
		return err
	}

	height := heightOf(sh)
	cons := consensusOf(sh)
	existing, found, err := GetConsensusState(w, m.ClientID, height)
	if err != nil {
		return err
	}
	if found {
		if bytes.Equal(existing.Root, cons.Root) && existing.Timestamp == cons.Timestamp &&
			bytes.Equal(existing.NextValidatorsHash, cons.NextValidatorsHash) {
			return nil
		}
		cs.Frozen = true
		meta.EmitEvent(w, clientEvent(EventTypeMisbehaviour, m.ClientID, height))
		return PutClientState(w, m.ClientID, cs)
	}
	if err := PutConsensusState(w, m.ClientID, height, cons); err != nil {
		return err
	}
	if cs.LatestHeight.LT(height) {
		cs.LatestHeight = height
		if err := PutClientState(w, m.ClientID, cs); err != nil {
			return err
		}
	}
	meta.EmitEvent(w, clientEvent(EventTypeUpdate, m.ClientID, height))
	return nil
}

func clientEvent(typ, id string, h actions.IbcHeight) abci.Event {
	return abci.Event{
		Type: typ,
		Attributes: []abci.EventAttribute{
			{Key: "client_id", Value: id, Index: true},
			{Key: "consensus_height", Value: h.String(), Index: true},
		},
	}
}

// verifyCounterparty checks a proof of key holding value, or of key being
// absent if value is nil, against the counterparty root at height.
func verifyCounterparty(r storage.Reader, clientID string, height actions.IbcHeight, proofBz []byte, key string, value []byte) (ConsensusState, error) {
	cs, err := GetClientState(r, clientID)
	if err != nil {
		return ConsensusState{}, err
	}
	if cs.Frozen {
		return ConsensusState{}, errorsmod.Wrap(ErrClientFrozen, clientID)
	}
	cons, found, err := GetConsensusState(r, clientID, height)
	if err != nil {
		return ConsensusState{}, err
	}
	if !found {
		return ConsensusState{}, errorsmod.Wrapf(ErrUnknownConsensus, "client %s at %s", clientID, height)
	}
	var proof ics23.CommitmentProof
	if err := proof.Unmarshal(proofBz); err != nil {
		return ConsensusState{}, errorsmod.Wrap(ErrInvalidProof, err.Error())
	}
	if !storage.VerifyProof(cons.Root, key, value, &proof) {
		return ConsensusState{}, errorsmod.Wrapf(ErrInvalidProof, "key %q", key)
	}
	return cons, nil
}

// CommitmentValue is the stored form of a packet commitment that
// counterparties prove.
func CommitmentValue(p *actions.Packet) []byte {
	return storedvalue.MustSerialize(storedvalue.IbcPacketCommitment{Value: PacketCommitment(p)})
}

// AckValue is the stored form of an acknowledgement that counterparties
// prove.
func AckValue(ack []byte) []byte {
	return storedvalue.MustSerialize(storedvalue.IbcAcknowledgement{Hash: hashAck(ack)})
}

// channelFor returns the local channel end of p, checking that the other
// end is the channel's counterparty. The local end is the source for
// packets sent from here and the destination otherwise.
func channelFor(r storage.Reader, p *actions.Packet, sentFromHere bool) (Channel, error) {
	localPort, localChan, remotePort, remoteChan := p.DestinationPort, p.DestinationChannel, p.SourcePort, p.SourceChannel
	if sentFromHere {
		localPort, localChan, remotePort, remoteChan = p.SourcePort, p.SourceChannel, p.DestinationPort, p.DestinationChannel
	}
	c, err := openChannel(r, localPort, localChan)
	if err != nil {
		return Channel{}, err
	}
	if c.CounterpartyPort != remotePort || c.CounterpartyChannel != remoteChan {
		return Channel{}, errorsmod.Wrapf(ErrCounterpartyMismatch, "%s/%s", remotePort, remoteChan)
	}
	return c, nil
}

func recvPacket(d *storage.Delta, m *actions.RecvPacket, params Params, deterministicAcks bool) error {
	p := &m.Packet
	c, err := channelFor(d, p, false)
	if err != nil {
		return err
	}
	if err := checkNotTimedOutHere(d, p); err != nil {
		return err
	}
	key := CommitmentKey(p.SourcePort, p.SourceChannel, p.Sequence)
	if _, err := verifyCounterparty(d, c.ClientID, m.ProofHeight, m.Proof, key, CommitmentValue(p)); err != nil {
		return err
	}
	received, err := HasReceipt(d, p.DestinationPort, p.DestinationChannel, p.Sequence)
	if err != nil {
		return err
	}
	if received {
		return errorsmod.Wrapf(ErrPacketReceived, "sequence %d", p.Sequence)
	}
	if err := putReceipt(d, p.DestinationPort, p.DestinationChannel, p.Sequence); err != nil {
		return err
	}

	ack := SuccessAck()
	transfer := d.Nested()
	if err := receiveTransfer(transfer, p, params); err != nil {
		msg := err.Error()
		if deterministicAcks {
			msg = DeterministicAckError
		}
		ack = ErrorAck(msg)
	} else {
		transfer.Apply()
	}
	ackBz := ack.Encode()
	if err := PutAcknowledgement(d, p.DestinationPort, p.DestinationChannel, p.Sequence, ackBz); err != nil {
		return err
	}
	meta.EmitEvent(d, packetEvent(EventTypeRecvPacket, p))
	ev := packetEvent(EventTypeWriteAck, p)
	ev.Attributes = append(ev.Attributes,
		abci.EventAttribute{Key: "packet_ack_hex", Value: hex.EncodeToString(ackBz), Index: true},
		abci.EventAttribute{Key: "success", Value: strconv.FormatBool(ack.Success()), Index: true},
	)
	meta.EmitEvent(d, ev)
	return nil
}

// checkNotTimedOutHere rejects packets whose timeout passed on this chain.
func checkNotTimedOutHere(r storage.Reader, p *actions.Packet) error {
	height, err := meta.BlockHeight(r)
	if err != nil {
		return err
	}
	revision, err := meta.RevisionNumber(r)
	if err != nil {
		return err
	}
	now, err := meta.BlockTimestamp(r)
	if err != nil {
		return err
	}
	here := actions.IbcHeight{RevisionNumber: revision, RevisionHeight: height}
	if !p.TimeoutHeight.IsZero() && !here.LT(p.TimeoutHeight) {
		return errorsmod.Wrapf(ErrPacketTimedOut, "height %s reached timeout height %s", here, p.TimeoutHeight)
	}
	if p.TimeoutTimestamp != 0 && uint64(now.UnixNano()) >= p.TimeoutTimestamp {
		return errorsmod.Wrapf(ErrPacketTimedOut, "time %d reached timeout %d", now.UnixNano(), p.TimeoutTimestamp)
	}
	return nil
}

// receiveTransfer credits the receiver of an inbound ICS20 packet. Tokens
// returning to this chain are released from escrow, all others are minted
// under a denom prefixed with the receiving channel end.
func receiveTransfer(w storage.Writer, p *actions.Packet, params Params) error {
	if !params.InboundIcs20TransfersEnabled {
		return errorsmod.Wrap(ErrTransfersDisabled, "inbound")
	}
	data, amt, err := decodePacketData(p.Data)
	if err != nil {
		return err
	}
	receiver, err := address.Parse(data.Receiver)
	if err != nil {
		return errorsmod.Wrap(ErrInvalidPacketData, err.Error())
	}
	if err := xaddress.EnsureBaseOrCompat(w, receiver); err != nil {
		return err
	}
	denom, err := asset.Parse(data.Denom)
	if err != nil {
		return errorsmod.Wrap(ErrInvalidPacketData, err.Error())
	}
	trace, ok := denom.AsTrace()
	if !ok {
		return errorsmod.Wrap(ErrInvalidPacketData, "denom must be trace prefixed")
	}

	var local asset.TracePrefixed
	if trace.HasLeadingPortAndChannel(p.SourcePort, p.SourceChannel) {
		local = trace.PopLeadingPortAndChannel()
		if err := decreaseEscrow(w, p.DestinationChannel, local.ToIbcPrefixed(), amt); err != nil {
			return err
		}
	} else {
		local = trace.PrependPortAndChannel(p.DestinationPort, p.DestinationChannel)
		if err := assets.PutDenom(w, local); err != nil {
			return err
		}
	}
	id := local.ToIbcPrefixed()

	rollupID, isBridge, err := bridge.RollupID(w, receiver.Bytes())
	if err != nil {
		return err
	}
	if isBridge {
		memo, err := parseDepositMemo(data.Memo)
		if err != nil {
			return err
		}
		bridgeAsset, err := bridge.Asset(w, receiver.Bytes())
		if err != nil {
			return err
		}
		if bridgeAsset != id {
			return errorsmod.Wrapf(bridge.ErrAssetMismatch, "got %s", local)
		}
		if err := depositTo(w, receiver.Bytes(), rollupID, amt, local, memo.RollupDepositAddress); err != nil {
			return err
		}
	}
	return accounts.IncreaseBalance(w, receiver.Bytes(), id, amt)
}

func depositTo(w storage.Writer, bridgeAddr [address.Length]byte, rollupID [32]byte, amt amount.Amount, denom asset.TracePrefixed, destination string) error {
	tx, err := meta.CurrentTx(w)
	if err != nil {
		return err
	}
	rendered, err := xaddress.FromBytes(w, bridgeAddr)
	if err != nil {
		return err
	}
	bridge.RecordDeposit(w, &sequencerblock.Deposit{
		BridgeAddress:           rendered,
		RollupID:                rollupID,
		Amount:                  amt,
		Asset:                   asset.FromTrace(denom),
		DestinationChainAddress: destination,
		SourceTransactionID:     tx.TxID,
		SourceActionIndex:       tx.ActionIndex,
	})
	return nil
}

// consumeCommitment checks the stored commitment of a packet sent from here
// and deletes it.
func consumeCommitment(w storage.Writer, p *actions.Packet) error {
	stored, found, err := GetCommitment(w, p.SourcePort, p.SourceChannel, p.Sequence)
	if err != nil {
		return err
	}
	if !found || stored != PacketCommitment(p) {
		return errorsmod.Wrapf(ErrCommitmentMismatch, "sequence %d", p.Sequence)
	}
	w.Delete(CommitmentKey(p.SourcePort, p.SourceChannel, p.Sequence))
	return nil
}

func acknowledgePacket(w storage.Writer, m *actions.Acknowledgement) error {
	p := &m.Packet
	c, err := channelFor(w, p, true)
	if err != nil {
		return err
	}
	ack, err := decodeAck(m.Acknowledgement)
	if err != nil {
		return err
	}
	key := AckKey(p.DestinationPort, p.DestinationChannel, p.Sequence)
	if _, err := verifyCounterparty(w, c.ClientID, m.ProofHeight, m.Proof, key, AckValue(m.Acknowledgement)); err != nil {
		return err
	}
	if err := consumeCommitment(w, p); err != nil {
		return err
	}
	if !ack.Success() {
		if err := refund(w, p); err != nil {
			return errorsmod.Wrap(err, "refunding failed transfer")
		}
	}
	ev := packetEvent(EventTypeAckPacket, p)
	ev.Attributes = append(ev.Attributes, abci.EventAttribute{Key: "success", Value: strconv.FormatBool(ack.Success()), Index: true})
	meta.EmitEvent(w, ev)
	return nil
}

func timeoutPacket(w storage.Writer, m *actions.Timeout) error {
	p := &m.Packet
	c, err := channelFor(w, p, true)
	if err != nil {
		return err
	}
	key := ReceiptKey(p.DestinationPort, p.DestinationChannel, p.Sequence)
	cons, err := verifyCounterparty(w, c.ClientID, m.ProofHeight, m.Proof, key, nil)
	if err != nil {
		return err
	}
	heightPassed := !p.TimeoutHeight.IsZero() && !m.ProofHeight.LT(p.TimeoutHeight)
	timePassed := p.TimeoutTimestamp != 0 && cons.Timestamp >= p.TimeoutTimestamp
	if !heightPassed && !timePassed {
		return errorsmod.Wrapf(ErrPacketNotTimedOut, "sequence %d at %s", p.Sequence, m.ProofHeight)
	}
	if err := consumeCommitment(w, p); err != nil {
		return err
	}
	if err := refund(w, p); err != nil {
		return errorsmod.Wrap(err, "refunding timed out transfer")
	}
	meta.EmitEvent(w, packetEvent(EventTypeTimeout, p))
	return nil
}

// refund returns the funds of a failed outgoing transfer to its sender.
// Bridge accounts get their funds back as a deposit to the rollup return
// address named in the withdrawal memo.
func refund(w storage.Writer, p *actions.Packet) error {
	data, amt, err := decodePacketData(p.Data)
	if err != nil {
		return err
	}
	sender, err := address.Parse(data.Sender)
	if err != nil {
		return errorsmod.Wrap(ErrInvalidPacketData, err.Error())
	}
	trace, err := asset.ParseTracePrefixed(data.Denom)
	if err != nil {
		return errorsmod.Wrap(ErrInvalidPacketData, err.Error())
	}
	id := trace.ToIbcPrefixed()
	if isSource(p.SourcePort, p.SourceChannel, trace) {
		if err := decreaseEscrow(w, p.SourceChannel, id, amt); err != nil {
			return err
		}
	}
	rollupID, isBridge, err := bridge.RollupID(w, sender.Bytes())
	if err != nil {
		return err
	}
	if isBridge {
		if memo, err := parseWithdrawalMemo(data.Memo); err == nil {
			if err := depositTo(w, sender.Bytes(), rollupID, amt, trace, memo.RollupReturnAddress); err != nil {
				return err
			}
		}
	}
	return accounts.IncreaseBalance(w, sender.Bytes(), id, amt)
}
