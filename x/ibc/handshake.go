package ibc

import (
	"strconv"

	errorsmod "cosmossdk.io/errors"
	abci "github.com/cometbft/cometbft/abci/types"

	"github.com/astriaorg/astria-sequencer/pkg/actions"
	"github.com/astriaorg/astria-sequencer/pkg/storage"
	"github.com/astriaorg/astria-sequencer/x/meta"
)

// The channel handshake follows ICS04 without connections: each step after
// init proves the counterparty end is in the state the step requires. The
// proven value is the counterparty's own channel end, so it names the
// counterparty's client of this chain as its client.

func ensureClientActive(r storage.Reader, clientID string) error {
	cs, err := GetClientState(r, clientID)
	if err != nil {
		return err
	}
	if cs.Frozen {
		return errorsmod.Wrap(ErrClientFrozen, clientID)
	}
	return nil
}

func newChannelID(w storage.Writer) (string, error) {
	n, err := nextID(w, nextChannelKey)
	if err != nil {
		return "", err
	}
	return "channel-" + strconv.FormatUint(n, 10), nil
}

// counterpartyEnd is the channel end the counterparty must hold for local
// channel c, seen from port/channel on this chain.
func counterpartyEnd(c Channel, port, channel string, state ChannelState) Channel {
	return Channel{
		ClientID:             c.CounterpartyClientID,
		CounterpartyClientID: c.ClientID,
		CounterpartyPort:     port,
		CounterpartyChannel:  channel,
		State:                state,
	}
}

func channelOpenInit(w storage.Writer, m *actions.ChannelOpenInit) error {
	if m.PortID != TransferPort {
		return errorsmod.Wrap(ErrUnsupportedPort, m.PortID)
	}
	if err := ensureClientActive(w, m.ClientID); err != nil {
		return err
	}
	id, err := newChannelID(w)
	if err != nil {
		return err
	}
	c := Channel{
		ClientID:             m.ClientID,
		CounterpartyClientID: m.CounterpartyClientID,
		CounterpartyPort:     m.CounterpartyPort,
		State:                ChannelInit,
	}
	if err := PutChannel(w, m.PortID, id, c); err != nil {
		return err
	}
	meta.EmitEvent(w, channelEvent(EventTypeChanOpenInit, m.PortID, id, c))
	return nil
}

func channelOpenTry(w storage.Writer, m *actions.ChannelOpenTry) error {
	if m.PortID != TransferPort {
		return errorsmod.Wrap(ErrUnsupportedPort, m.PortID)
	}
	c := Channel{
		ClientID:             m.ClientID,
		CounterpartyClientID: m.CounterpartyClientID,
		CounterpartyPort:     m.CounterpartyPort,
		CounterpartyChannel:  m.CounterpartyChannel,
		State:                ChannelTryOpen,
	}
	// the counterparty end does not know this chain's channel id yet
	want := counterpartyEnd(c, m.PortID, "", ChannelInit)
	key := ChannelKey(m.CounterpartyPort, m.CounterpartyChannel)
	if _, err := verifyCounterparty(w, m.ClientID, m.ProofHeight, m.Proof, key, ChannelValue(want)); err != nil {
		return err
	}
	id, err := newChannelID(w)
	if err != nil {
		return err
	}
	if err := PutChannel(w, m.PortID, id, c); err != nil {
		return err
	}
	meta.EmitEvent(w, channelEvent(EventTypeChanOpenTry, m.PortID, id, c))
	return nil
}

func channelOpenAck(w storage.Writer, m *actions.ChannelOpenAck) error {
	c, err := GetChannel(w, m.PortID, m.ChannelID)
	if err != nil {
		return err
	}
	if c.State != ChannelInit {
		return errorsmod.Wrapf(ErrHandshakeState, "%s/%s is %s, want %s", m.PortID, m.ChannelID, c.State, ChannelInit)
	}
	want := counterpartyEnd(c, m.PortID, m.ChannelID, ChannelTryOpen)
	key := ChannelKey(c.CounterpartyPort, m.CounterpartyChannel)
	if _, err := verifyCounterparty(w, c.ClientID, m.ProofHeight, m.Proof, key, ChannelValue(want)); err != nil {
		return err
	}
	c.CounterpartyChannel = m.CounterpartyChannel
	c.State = ChannelOpen
	if err := PutChannel(w, m.PortID, m.ChannelID, c); err != nil {
		return err
	}
	meta.EmitEvent(w, channelEvent(EventTypeChanOpenAck, m.PortID, m.ChannelID, c))
	return nil
}

func channelOpenConfirm(w storage.Writer, m *actions.ChannelOpenConfirm) error {
	c, err := GetChannel(w, m.PortID, m.ChannelID)
	if err != nil {
		return err
	}
	if c.State != ChannelTryOpen {
		return errorsmod.Wrapf(ErrHandshakeState, "%s/%s is %s, want %s", m.PortID, m.ChannelID, c.State, ChannelTryOpen)
	}
	want := counterpartyEnd(c, m.PortID, m.ChannelID, ChannelOpen)
	key := ChannelKey(c.CounterpartyPort, c.CounterpartyChannel)
	if _, err := verifyCounterparty(w, c.ClientID, m.ProofHeight, m.Proof, key, ChannelValue(want)); err != nil {
		return err
	}
	c.State = ChannelOpen
	if err := PutChannel(w, m.PortID, m.ChannelID, c); err != nil {
		return err
	}
	meta.EmitEvent(w, channelEvent(EventTypeChanOpenConfirm, m.PortID, m.ChannelID, c))
	return nil
}

func channelEvent(typ, port, channel string, c Channel) abci.Event {
	return abci.Event{
		Type: typ,
		Attributes: []abci.EventAttribute{
			{Key: "port_id", Value: port, Index: true},
			{Key: "channel_id", Value: channel, Index: true},
			{Key: "client_id", Value: c.ClientID, Index: true},
			{Key: "counterparty_port_id", Value: c.CounterpartyPort, Index: true},
			{Key: "counterparty_channel_id", Value: c.CounterpartyChannel, Index: true},
		},
	}
}
