package ibc

import (
	"strconv"

	errorsmod "cosmossdk.io/errors"
	abci "github.com/cometbft/cometbft/abci/types"

	"github.com/astriaorg/astria-sequencer/pkg/actions"
	"github.com/astriaorg/astria-sequencer/pkg/address"
	"github.com/astriaorg/astria-sequencer/pkg/asset"
	"github.com/astriaorg/astria-sequencer/pkg/storage"
	"github.com/astriaorg/astria-sequencer/x/accounts"
	xaddress "github.com/astriaorg/astria-sequencer/x/address"
	"github.com/astriaorg/astria-sequencer/x/assets"
	"github.com/astriaorg/astria-sequencer/x/bridge"
	"github.com/astriaorg/astria-sequencer/x/meta"
)

const (
	EventTypeSendPacket = "send_packet"
	EventTypeRecvPacket = "recv_packet"
	EventTypeWriteAck   = "write_acknowledgement"
	EventTypeAckPacket  = "acknowledge_packet"
	EventTypeTimeout    = "timeout_packet"
	EventTypeCreate     = "create_client"
	EventTypeUpdate     = "update_client"

	EventTypeMisbehaviour    = "client_misbehaviour"
	EventTypeChanOpenInit    = "channel_open_init"
	EventTypeChanOpenTry     = "channel_open_try"
	EventTypeChanOpenAck     = "channel_open_ack"
	EventTypeChanOpenConfirm = "channel_open_confirm"
)

// ExecuteIbcRelayerChange adds or removes a relayer. Only the ibc sudo
// address may do so.
func ExecuteIbcRelayerChange(w storage.Writer, a *actions.IbcRelayerChange) error {
	tx, err := meta.CurrentTx(w)
	if err != nil {
		return err
	}
	if err := ensureSudo(w, tx.Signer); err != nil {
		return err
	}
	if err := xaddress.EnsureBase(w, a.Address); err != nil {
		return err
	}
	if a.Op == actions.OpRemoval {
		DeleteRelayer(w, a.Address.Bytes())
		return nil
	}
	return PutRelayer(w, a.Address.Bytes())
}

// ExecuteIbcSudoChange replaces the ibc sudo address.
func ExecuteIbcSudoChange(w storage.Writer, a *actions.IbcSudoChange) error {
	tx, err := meta.CurrentTx(w)
	if err != nil {
		return err
	}
	if err := ensureSudo(w, tx.Signer); err != nil {
		return err
	}
	if err := xaddress.EnsureBase(w, a.NewAddress); err != nil {
		return err
	}
	return PutSudo(w, a.NewAddress.Bytes())
}

// isSource reports whether this chain is the source of denom on the given
// channel end, that is the denom does not come back through it.
func isSource(port, channel string, denom asset.TracePrefixed) bool {
	return !denom.HasLeadingPortAndChannel(port, channel)
}

// ExecuteIcs20Withdrawal sends funds over an ICS20 channel. Funds of which
// this chain is the source are escrowed on the channel, all others are
// burned. The packet commitment is written for relayers to prove.
func ExecuteIcs20Withdrawal(w storage.Writer, a *actions.Ics20Withdrawal) error {
	tx, err := meta.CurrentTx(w)
	if err != nil {
		return err
	}
	params, err := GetParams(w)
	if err != nil {
		return err
	}
	if !params.IbcEnabled {
		return ErrIbcDisabled
	}
	if !params.OutboundIcs20TransfersEnabled {
		return errorsmod.Wrap(ErrTransfersDisabled, "outbound")
	}
	if err := xaddress.EnsureBase(w, a.ReturnAddress); err != nil {
		return errorsmod.Wrap(err, "return address")
	}

	from, err := withdrawalSource(w, a, tx.Signer)
	if err != nil {
		return err
	}

	channel, err := openChannel(w, TransferPort, a.SourceChannel)
	if err != nil {
		return err
	}
	if err := checkNotTimedOutOnCounterparty(w, channel.ClientID, a.TimeoutHeight, a.TimeoutTime); err != nil {
		return err
	}

	if err := assets.EnsureKnown(w, a.Denom); err != nil {
		return err
	}
	resolved, err := assets.Resolve(w, a.Denom)
	if err != nil {
		return err
	}
	trace, _ := resolved.AsTrace()
	id := a.Denom.ToIbcPrefixed()

	if err := accounts.DecreaseBalance(w, from, id, a.Amount); err != nil {
		return err
	}
	if isSource(TransferPort, a.SourceChannel, trace) {
		if err := increaseEscrow(w, a.SourceChannel, id, a.Amount); err != nil {
			return err
		}
	}

	sender := a.ReturnAddress
	if a.UseCompatAddress {
		compat, err := xaddress.CompatPrefix(w)
		if err != nil {
			return err
		}
		sender = address.NewCompat(compat, a.ReturnAddress.Bytes())
	}
	data := FungibleTokenPacketData{
		Denom:    trace.String(),
		Amount:   a.Amount.String(),
		Sender:   sender.String(),
		Receiver: a.DestinationChainAddress,
		Memo:     a.Memo,
	}
	seq, err := NextSequenceSend(w, TransferPort, a.SourceChannel)
	if err != nil {
		return err
	}
	packet := &actions.Packet{
		Sequence:           seq,
		SourcePort:         TransferPort,
		SourceChannel:      a.SourceChannel,
		DestinationPort:    channel.CounterpartyPort,
		DestinationChannel: channel.CounterpartyChannel,
		Data:               data.Encode(),
		TimeoutHeight:      a.TimeoutHeight,
		TimeoutTimestamp:   a.TimeoutTime,
	}
	if err := PutCommitment(w, TransferPort, a.SourceChannel, seq, PacketCommitment(packet)); err != nil {
		return err
	}
	if err := putNextSequenceSend(w, TransferPort, a.SourceChannel, seq+1); err != nil {
		return err
	}
	meta.EmitEvent(w, packetEvent(EventTypeSendPacket, packet))
	return nil
}

// withdrawalSource returns the account funds are withdrawn from. Bridge
// accounts withdraw through their withdrawer, and the rollup event is
// recorded so it cannot be replayed.
func withdrawalSource(w storage.Writer, a *actions.Ics20Withdrawal, signer [address.Length]byte) ([address.Length]byte, error) {
	if a.BridgeAddress == nil {
		_, isBridge, err := bridge.RollupID(w, signer)
		if err != nil {
			return signer, err
		}
		if isBridge {
			return signer, ErrBridgeSender
		}
		return signer, nil
	}
	b := *a.BridgeAddress
	if err := xaddress.EnsureBase(w, b); err != nil {
		return signer, errorsmod.Wrap(err, "bridge address")
	}
	withdrawer, err := bridge.Withdrawer(w, b.Bytes())
	if err != nil {
		return signer, err
	}
	if withdrawer != signer {
		return signer, bridge.ErrNotWithdrawer
	}
	memo, err := parseWithdrawalMemo(a.Memo)
	if err != nil {
		return signer, err
	}
	if err := bridge.CheckAndSetWithdrawalEvent(w, b.Bytes(), memo.RollupWithdrawalEventID, memo.RollupBlockNumber); err != nil {
		return signer, err
	}
	return b.Bytes(), nil
}

// checkNotTimedOutOnCounterparty rejects packets whose timeout already
// passed according to the latest known counterparty state.
func checkNotTimedOutOnCounterparty(r storage.Reader, clientID string, height actions.IbcHeight, timestamp uint64) error {
	cs, err := GetClientState(r, clientID)
	if err != nil {
		return err
	}
	if cs.Frozen {
		return errorsmod.Wrap(ErrClientFrozen, clientID)
	}
	if !height.IsZero() && !cs.LatestHeight.LT(height) {
		return errorsmod.Wrapf(ErrPacketTimedOut, "counterparty height %s reached timeout height %s", cs.LatestHeight, height)
	}
	cons, found, err := GetConsensusState(r, clientID, cs.LatestHeight)
	if err != nil {
		return err
	}
	if found && timestamp != 0 && cons.Timestamp >= timestamp {
		return errorsmod.Wrapf(ErrPacketTimedOut, "counterparty time %d reached timeout %d", cons.Timestamp, timestamp)
	}
	return nil
}

func packetEvent(typ string, p *actions.Packet) abci.Event {
	return abci.Event{
		Type: typ,
		Attributes: []abci.EventAttribute{
			{Key: "packet_sequence", Value: strconv.FormatUint(p.Sequence, 10), Index: true},
			{Key: "packet_src_port", Value: p.SourcePort, Index: true},
			{Key: "packet_src_channel", Value: p.SourceChannel, Index: true},
			{Key: "packet_dst_port", Value: p.DestinationPort, Index: true},
			{Key: "packet_dst_channel", Value: p.DestinationChannel, Index: true},
			{Key: "packet_timeout_height", Value: p.TimeoutHeight.String(), Index: true},
			{Key: "packet_timeout_timestamp", Value: strconv.FormatUint(p.TimeoutTimestamp, 10), Index: true},
		},
	}
}
