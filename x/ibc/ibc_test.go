package ibc_test

import (
	"crypto/sha256"
	"strconv"
	"testing"
	"time"

	"github.com/cometbft/cometbft/crypto/ed25519"
	"github.com/cometbft/cometbft/crypto/tmhash"
	cmtproto "github.com/cometbft/cometbft/proto/tendermint/types"
	cmtversion "github.com/cometbft/cometbft/proto/tendermint/version"
	cmttypes "github.com/cometbft/cometbft/types"
	"github.com/cometbft/cometbft/version"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astriaorg/astria-sequencer/pkg/actions"
	"github.com/astriaorg/astria-sequencer/pkg/address"
	"github.com/astriaorg/astria-sequencer/pkg/amount"
	"github.com/astriaorg/astria-sequencer/pkg/asset"
	"github.com/astriaorg/astria-sequencer/pkg/storage"
	"github.com/astriaorg/astria-sequencer/pkg/storedvalue"
	"github.com/astriaorg/astria-sequencer/pkg/transaction"
	"github.com/astriaorg/astria-sequencer/x/accounts"
	xaddress "github.com/astriaorg/astria-sequencer/x/address"
	"github.com/astriaorg/astria-sequencer/x/assets"
	"github.com/astriaorg/astria-sequencer/x/ibc"
	"github.com/astriaorg/astria-sequencer/x/meta"
)

const (
	localChannel  = "channel-0"
	remoteChannel = "channel-7"
	clientID      = "07-tendermint-0"
)

var (
	nria    = asset.MustParse("nria")
	sudo    = address.New("astria", [20]byte{1})
	relayer = address.New("astria", [20]byte{2})
	alice   = address.New("astria", [20]byte{0xa})
	carol   = address.New("astria", [20]byte{0xc})
)

func setup(t *testing.T) *storage.Delta {
	t.Helper()
	d := storage.NewDelta(storage.NewMemory().LatestSnapshot())
	require.NoError(t, xaddress.PutBasePrefix(d, "astria"))
	require.NoError(t, xaddress.PutCompatPrefix(d, "astriacompat"))
	trace, _ := nria.AsTrace()
	require.NoError(t, assets.PutDenom(d, trace))
	require.NoError(t, accounts.PutBalance(d, alice.Bytes(), nria.ToIbcPrefixed(), amount.New(1000)))
	require.NoError(t, ibc.PutSudo(d, sudo.Bytes()))
	require.NoError(t, ibc.PutRelayer(d, relayer.Bytes()))
	require.NoError(t, ibc.PutParams(d, ibc.Params{
		IbcEnabled: true, InboundIcs20TransfersEnabled: true, OutboundIcs20TransfersEnabled: true,
	}))
	require.NoError(t, meta.PutBlockHeight(d, 10))
	require.NoError(t, meta.PutBlockTimestamp(d, time.Unix(1000, 0)))
	return d
}

func signAs(d *storage.Delta, signer address.Address) {
	meta.PutTxContext(d, meta.TxContext{Signer: signer.Bytes(), TxID: transaction.IDOf([]byte(signer.Hex()))})
}

func relay(t *testing.T, d *storage.Delta, msg actions.IbcMsg) error {
	t.Helper()
	signAs(d, relayer)
	return ibc.ExecuteIbcRelay(d, &actions.IbcRelay{Msg: msg}, true)
}

const (
	counterpartyChainID  = "cosmoshub-4"
	counterpartyClientID = "07-tendermint-9"
	trustingPeriod       = time.Hour
)

// withdrawalTimeout is after the counterparty time of the first headers and
// before that of height 60.
var withdrawalTimeout = uint64(time.Unix(950, 0).UnixNano())

// headerTime is the counterparty block time at height; this chain is at
// unix 1000.
func headerTime(height int64) time.Time { return time.Unix(900+height, 0).UTC() }

// chain is a counterparty whose store roots are committed in headers signed
// by its validators.
type chain struct {
	t       *testing.T
	keys    map[string]ed25519.PrivKey
	vals    *cmttypes.ValidatorSet
	store   *storage.Storage
	trusted actions.IbcHeight
}

func newChain(t *testing.T, seed string) *chain {
	t.Helper()
	c := &chain{t: t, keys: map[string]ed25519.PrivKey{}, store: storage.NewMemory()}
	var validators []*cmttypes.Validator
	for i := range 3 {
		key := ed25519.GenPrivKeyFromSecret([]byte(seed + strconv.Itoa(i)))
		c.keys[string(key.PubKey().Address())] = key
		validators = append(validators, cmttypes.NewValidator(key.PubKey(), 10))
	}
	c.vals = cmttypes.NewValidatorSet(validators)
	return c
}

// commit applies writes to the counterparty store.
func (c *chain) commit(writes func(w storage.Writer)) {
	d := storage.NewDelta(c.store.LatestSnapshot())
	require.NoError(c.t, storage.PutValue(d, "filler", storedvalue.Unit{}))
	writes(d)
	_, _, err := c.store.CommitDelta(d)
	require.NoError(c.t, err)
}

// prove returns an encoded proof of key, or of its absence, against the
// latest root.
func (c *chain) prove(key string) []byte {
	_, proof, err := c.store.LatestSnapshot().GetWithProof(key)
	require.NoError(c.t, err)
	bz, err := proof.Marshal()
	require.NoError(c.t, err)
	return bz
}

// signedHeader builds a header at height over root whose commit is signed
// by the first signers validators.
func (c *chain) signedHeader(height int64, at time.Time, root []byte, signers int) *cmttypes.SignedHeader {
	valsHash := c.vals.Hash()
	header := &cmttypes.Header{
		Version:            cmtversion.Consensus{Block: version.BlockProtocol},
		ChainID:            counterpartyChainID,
		Height:             height,
		Time:               at,
		ValidatorsHash:     valsHash,
		NextValidatorsHash: valsHash,
		AppHash:            root,
		ProposerAddress:    c.vals.Proposer.Address,
	}
	blockID := cmttypes.BlockID{
		Hash:          header.Hash(),
		PartSetHeader: cmttypes.PartSetHeader{Total: 1, Hash: tmhash.Sum([]byte("parts"))},
	}
	sigs := make([]cmttypes.CommitSig, len(c.vals.Validators))
	for i, val := range c.vals.Validators {
		sigs[i] = cmttypes.NewCommitSigAbsent()
		if i >= signers {
			continue
		}
		vote := &cmttypes.Vote{
			Type:             cmtproto.PrecommitType,
			Height:           height,
			BlockID:          blockID,
			Timestamp:        at,
			ValidatorAddress: val.Address,
			ValidatorIndex:   int32(i),
		}
		sig, err := c.keys[string(val.Address)].Sign(cmttypes.VoteSignBytes(counterpartyChainID, vote.ToProto()))
		require.NoError(c.t, err)
		sigs[i] = cmttypes.CommitSig{
			BlockIDFlag:      cmttypes.BlockIDFlagCommit,
			ValidatorAddress: val.Address,
			Timestamp:        at,
			Signature:        sig,
		}
	}
	return &cmttypes.SignedHeader{
		Header: header,
		Commit: &cmttypes.Commit{Height: height, BlockID: blockID, Signatures: sigs},
	}
}

func encodeHeader(t *testing.T, sh *cmttypes.SignedHeader) []byte {
	t.Helper()
	bz, err := sh.ToProto().Marshal()
	require.NoError(t, err)
	return bz
}

// header is a fully signed header at height over the latest root.
func (c *chain) header(height int64) []byte {
	return encodeHeader(c.t, c.signedHeader(height, headerTime(height), c.store.LatestSnapshot().RootHash(), len(c.vals.Validators)))
}

func (c *chain) valSet() []byte {
	pb, err := c.vals.ToProto()
	require.NoError(c.t, err)
	bz, err := pb.Marshal()
	require.NoError(c.t, err)
	return bz
}

func ibcHeight(height int64) actions.IbcHeight {
	return actions.IbcHeight{RevisionNumber: 4, RevisionHeight: uint64(height)}
}

// createClient starts the local client of c at height.
func (c *chain) createClient(t *testing.T, d *storage.Delta, height int64) {
	t.Helper()
	require.NoError(t, relay(t, d, &actions.CreateClient{
		ChainID: counterpartyChainID, TrustingPeriod: trustingPeriod, Header: c.header(height), ValidatorSet: c.valSet(),
	}))
	c.trusted = ibcHeight(height)
}

// update moves the local client of c to height over c's latest root.
func (c *chain) update(t *testing.T, d *storage.Delta, height int64) actions.IbcHeight {
	t.Helper()
	require.NoError(t, relay(t, d, &actions.UpdateClient{
		ClientID: clientID, Header: c.header(height), ValidatorSet: c.valSet(),
		TrustedHeight: c.trusted, TrustedValidators: c.valSet(),
	}))
	c.trusted = ibcHeight(height)
	return c.trusted
}

// remoteEnd is the counterparty's end of the transfer channel.
func remoteEnd(local string, state ibc.ChannelState) ibc.Channel {
	return ibc.Channel{
		ClientID:             counterpartyClientID,
		CounterpartyClientID: clientID,
		CounterpartyPort:     ibc.TransferPort,
		CounterpartyChannel:  local,
		State:                state,
	}
}

// connect creates the client of a new counterparty at height 5 and opens
// the transfer channel it initiated, confirming at height 6. writes go into
// the counterparty store before the height 6 commit.
func connect(t *testing.T, d *storage.Delta, writes func(w storage.Writer)) *chain {
	t.Helper()
	c := newChain(t, "counterparty")
	c.commit(func(w storage.Writer) {
		require.NoError(t, ibc.PutChannel(w, ibc.TransferPort, remoteChannel, remoteEnd("", ibc.ChannelInit)))
	})
	c.createClient(t, d, 5)
	require.NoError(t, relay(t, d, &actions.ChannelOpenTry{
		ClientID: clientID, PortID: ibc.TransferPort,
		CounterpartyPort: ibc.TransferPort, CounterpartyChannel: remoteChannel, CounterpartyClientID: counterpartyClientID,
		Proof: c.prove(ibc.ChannelKey(ibc.TransferPort, remoteChannel)), ProofHeight: ibcHeight(5),
	}))

	c.commit(func(w storage.Writer) {
		require.NoError(t, ibc.PutChannel(w, ibc.TransferPort, remoteChannel, remoteEnd(localChannel, ibc.ChannelOpen)))
		if writes != nil {
			writes(w)
		}
	})
	h6 := c.update(t, d, 6)
	require.NoError(t, relay(t, d, &actions.ChannelOpenConfirm{
		PortID: ibc.TransferPort, ChannelID: localChannel,
		Proof: c.prove(ibc.ChannelKey(ibc.TransferPort, remoteChannel)), ProofHeight: h6,
	}))
	return c
}

func withdrawalPacket(seq uint64, amt string) *actions.Packet {
	data := ibc.FungibleTokenPacketData{
		Denom: "nria", Amount: amt, Sender: alice.String(), Receiver: "cosmos1dest",
	}
	return &actions.Packet{
		Sequence:      seq,
		SourcePort:    ibc.TransferPort,
		SourceChannel: localChannel, DestinationPort: ibc.TransferPort, DestinationChannel: remoteChannel,
		Data:             data.Encode(),
		TimeoutTimestamp: withdrawalTimeout,
	}
}

func withdraw(t *testing.T, d *storage.Delta, amt uint64) {
	t.Helper()
	signAs(d, alice)
	require.NoError(t, ibc.ExecuteIcs20Withdrawal(d, &actions.Ics20Withdrawal{
		Amount: amount.New(amt), Denom: nria, DestinationChainAddress: "cosmos1dest",
		ReturnAddress: alice, TimeoutTime: withdrawalTimeout, SourceChannel: localChannel,
	}))
}

func TestRelayerAndSudoChange(t *testing.T) {
	d := setup(t)
	change := &actions.IbcRelayerChange{Op: actions.OpAddition, Address: carol}

	signAs(d, alice)
	require.ErrorIs(t, ibc.ExecuteIbcRelayerChange(d, change), ibc.ErrNotIbcSudo)

	signAs(d, sudo)
	require.NoError(t, ibc.ExecuteIbcRelayerChange(d, change))
	ok, err := ibc.IsRelayer(d, carol.Bytes())
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, ibc.ExecuteIbcRelayerChange(d, &actions.IbcRelayerChange{Op: actions.OpRemoval, Address: carol}))
	ok, err = ibc.IsRelayer(d, carol.Bytes())
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, ibc.ExecuteIbcSudoChange(d, &actions.IbcSudoChange{NewAddress: carol}))
	got, err := ibc.Sudo(d)
	require.NoError(t, err)
	assert.Equal(t, carol.Bytes(), got)
}

func TestRelayRequiresRelayer(t *testing.T) {
	d := setup(t)
	signAs(d, alice)
	err := ibc.ExecuteIbcRelay(d, &actions.IbcRelay{Msg: &actions.CreateClient{ChainID: "x"}}, true)
	require.ErrorIs(t, err, ibc.ErrNotRelayer)
}

func TestCreateClientVerifiesHeader(t *testing.T) {
	c := newChain(t, "counterparty")
	c.commit(func(storage.Writer) {})
	root := c.store.LatestSnapshot().RootHash()
	forger := newChain(t, "forger")

	tampered := c.signedHeader(5, headerTime(5), root, 3)
	tampered.AppHash = []byte("forged root")

	testCases := []struct {
		name    string
		chainID string
		header  []byte
		vals    []byte
	}{
		{"two of three signed", counterpartyChainID, encodeHeader(t, c.signedHeader(5, headerTime(5), root, 2)), c.valSet()},
		{"other chain id", "osmosis-1", c.header(5), c.valSet()},
		{"validator set not in header", counterpartyChainID, c.header(5), forger.valSet()},
		{"root changed after signing", counterpartyChainID, encodeHeader(t, tampered), c.valSet()},
		{"expired", counterpartyChainID, encodeHeader(t, c.signedHeader(5, time.Unix(1000, 0).Add(-2*trustingPeriod).UTC(), root, 3)), c.valSet()},
		{"from the future", counterpartyChainID, encodeHeader(t, c.signedHeader(5, time.Unix(1100, 0).UTC(), root, 3)), c.valSet()},
		{"not a header", counterpartyChainID, []byte("header"), c.valSet()},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			d := setup(t)
			err := relay(t, d, &actions.CreateClient{
				ChainID: tc.chainID, TrustingPeriod: trustingPeriod, Header: tc.header, ValidatorSet: tc.vals,
			})
			require.ErrorIs(t, err, ibc.ErrInvalidHeader)
			_, err = ibc.GetClientState(d, clientID)
			require.ErrorIs(t, err, ibc.ErrUnknownClient)
		})
	}

	d := setup(t)
	c.createClient(t, d, 5)
	cs, err := ibc.GetClientState(d, clientID)
	require.NoError(t, err)
	assert.Equal(t, ibcHeight(5), cs.LatestHeight)
	assert.Equal(t, trustingPeriod, cs.TrustingPeriod)
	cons, found, err := ibc.GetConsensusState(d, clientID, ibcHeight(5))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, root, cons.Root)
	assert.Equal(t, uint64(headerTime(5).UnixNano()), cons.Timestamp)
	assert.Equal(t, []byte(c.vals.Hash()), cons.NextValidatorsHash)
}

func TestUpdateClientRejectsUnverifiedHeaders(t *testing.T) {
	d := setup(t)
	c := newChain(t, "counterparty")
	c.commit(func(storage.Writer) {})
	c.createClient(t, d, 5)
	forger := newChain(t, "forger")
	forger.commit(func(w storage.Writer) {
		require.NoError(t, storage.PutValue(w, "forged", storedvalue.Unit{}))
	})

	testCases := []struct {
		name string
		msg  *actions.UpdateClient
		want error
	}{
		{
			"adjacent header from other validators",
			&actions.UpdateClient{ClientID: clientID, Header: forger.header(6), ValidatorSet: forger.valSet(), TrustedHeight: ibcHeight(5), TrustedValidators: c.valSet()},
			ibc.ErrInvalidHeader,
		},
		{
			"later header from other validators",
			&actions.UpdateClient{ClientID: clientID, Header: forger.header(9), ValidatorSet: forger.valSet(), TrustedHeight: ibcHeight(5), TrustedValidators: c.valSet()},
			ibc.ErrInvalidHeader,
		},
		{
			"trusted validators swapped",
			&actions.UpdateClient{ClientID: clientID, Header: forger.header(9), ValidatorSet: forger.valSet(), TrustedHeight: ibcHeight(5), TrustedValidators: forger.valSet()},
			ibc.ErrInvalidHeader,
		},
		{
			"unknown trusted height",
			&actions.UpdateClient{ClientID: clientID, Header: c.header(9), ValidatorSet: c.valSet(), TrustedHeight: ibcHeight(4), TrustedValidators: c.valSet()},
			ibc.ErrUnknownConsensus,
		},
		{
			"under two thirds signed",
			&actions.UpdateClient{
				ClientID: clientID, Header: encodeHeader(t, c.signedHeader(6, headerTime(6), c.store.LatestSnapshot().RootHash(), 2)),
				ValidatorSet: c.valSet(), TrustedHeight: ibcHeight(5), TrustedValidators: c.valSet(),
			},
			ibc.ErrInvalidHeader,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.ErrorIs(t, relay(t, d, tc.msg), tc.want)
		})
	}
	cs, err := ibc.GetClientState(d, clientID)
	require.NoError(t, err)
	assert.Equal(t, ibcHeight(5), cs.LatestHeight)
	assert.False(t, cs.Frozen)
}

func TestClientUpdateAndMisbehaviour(t *testing.T) {
	d := setup(t)
	c := newChain(t, "counterparty")
	c.commit(func(storage.Writer) {})
	c.createClient(t, d, 5)

	c.commit(func(w storage.Writer) {
		require.NoError(t, storage.PutValue(w, "six", storedvalue.Unit{}))
	})
	h6 := c.update(t, d, 6)
	cs, err := ibc.GetClientState(d, clientID)
	require.NoError(t, err)
	assert.Equal(t, h6, cs.LatestHeight)
	assert.False(t, cs.Frozen)

	// resubmitting the same header is a no-op
	c.trusted = ibcHeight(5)
	c.update(t, d, 6)

	// a second validly signed header at height 6 with another root
	c.commit(func(w storage.Writer) {
		require.NoError(t, storage.PutValue(w, "fork", storedvalue.Unit{}))
	})
	c.trusted = ibcHeight(5)
	c.update(t, d, 6)
	cs, err = ibc.GetClientState(d, clientID)
	require.NoError(t, err)
	assert.True(t, cs.Frozen)

	err = relay(t, d, &actions.UpdateClient{
		ClientID: clientID, Header: c.header(7), ValidatorSet: c.valSet(), TrustedHeight: h6, TrustedValidators: c.valSet(),
	})
	require.ErrorIs(t, err, ibc.ErrClientFrozen)
}

func TestChannelHandshakeFromCounterparty(t *testing.T) {
	d := setup(t)
	connect(t, d, nil)

	ch, err := ibc.GetChannel(d, ibc.TransferPort, localChannel)
	require.NoError(t, err)
	assert.Equal(t, ibc.Channel{
		ClientID:             clientID,
		CounterpartyClientID: counterpartyClientID,
		CounterpartyPort:     ibc.TransferPort,
		CounterpartyChannel:  remoteChannel,
		State:                ibc.ChannelOpen,
	}, ch)
}

func TestChannelOpenTryRequiresCounterpartyInit(t *testing.T) {
	d := setup(t)
	c := newChain(t, "counterparty")
	// the counterparty end is already open, not in init
	c.commit(func(w storage.Writer) {
		require.NoError(t, ibc.PutChannel(w, ibc.TransferPort, remoteChannel, remoteEnd("", ibc.ChannelOpen)))
	})
	c.createClient(t, d, 5)
	err := relay(t, d, &actions.ChannelOpenTry{
		ClientID: clientID, PortID: ibc.TransferPort,
		CounterpartyPort: ibc.TransferPort, CounterpartyChannel: remoteChannel, CounterpartyClientID: counterpartyClientID,
		Proof: c.prove(ibc.ChannelKey(ibc.TransferPort, remoteChannel)), ProofHeight: ibcHeight(5),
	})
	require.ErrorIs(t, err, ibc.ErrInvalidProof)
	_, err = ibc.GetChannel(d, ibc.TransferPort, localChannel)
	require.ErrorIs(t, err, ibc.ErrUnknownChannel)
}

func TestChannelHandshakeFromHere(t *testing.T) {
	d := setup(t)
	c := newChain(t, "counterparty")
	c.commit(func(storage.Writer) {})
	c.createClient(t, d, 5)

	require.NoError(t, relay(t, d, &actions.ChannelOpenInit{
		ClientID: clientID, PortID: ibc.TransferPort, CounterpartyPort: ibc.TransferPort, CounterpartyClientID: counterpartyClientID,
	}))
	ch, err := ibc.GetChannel(d, ibc.TransferPort, localChannel)
	require.NoError(t, err)
	assert.Equal(t, ibc.ChannelInit, ch.State)

	signAs(d, alice)
	err = ibc.ExecuteIcs20Withdrawal(d, &actions.Ics20Withdrawal{
		Amount: amount.New(1), Denom: nria, DestinationChainAddress: "cosmos1dest",
		ReturnAddress: alice, TimeoutTime: withdrawalTimeout, SourceChannel: localChannel,
	})
	require.ErrorIs(t, err, ibc.ErrChannelClosed)

	// an ack needs the counterparty in try open
	c.commit(func(w storage.Writer) {
		require.NoError(t, ibc.PutChannel(w, ibc.TransferPort, remoteChannel, remoteEnd(localChannel, ibc.ChannelInit)))
	})
	h6 := c.update(t, d, 6)
	ack := &actions.ChannelOpenAck{
		PortID: ibc.TransferPort, ChannelID: localChannel, CounterpartyChannel: remoteChannel,
		Proof: c.prove(ibc.ChannelKey(ibc.TransferPort, remoteChannel)), ProofHeight: h6,
	}
	require.ErrorIs(t, relay(t, d, ack), ibc.ErrInvalidProof)

	c.commit(func(w storage.Writer) {
		require.NoError(t, ibc.PutChannel(w, ibc.TransferPort, remoteChannel, remoteEnd(localChannel, ibc.ChannelTryOpen)))
	})
	ack.ProofHeight = c.update(t, d, 7)
	ack.Proof = c.prove(ibc.ChannelKey(ibc.TransferPort, remoteChannel))
	require.NoError(t, relay(t, d, ack))

	ch, err = ibc.GetChannel(d, ibc.TransferPort, localChannel)
	require.NoError(t, err)
	assert.Equal(t, ibc.ChannelOpen, ch.State)
	assert.Equal(t, remoteChannel, ch.CounterpartyChannel)

	require.ErrorIs(t, relay(t, d, ack), ibc.ErrHandshakeState)
}

func TestWithdrawalEscrowsAndCommits(t *testing.T) {
	d := setup(t)
	connect(t, d, nil)
	withdraw(t, d, 100)

	bal, err := accounts.Balance(d, alice.Bytes(), nria.ToIbcPrefixed())
	require.NoError(t, err)
	assert.Equal(t, "900", bal.String())
	escrow, err := ibc.EscrowBalance(d, localChannel, nria.ToIbcPrefixed())
	require.NoError(t, err)
	assert.Equal(t, "100", escrow.String())

	c, found, err := ibc.GetCommitment(d, ibc.TransferPort, localChannel, 1)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, ibc.PacketCommitment(withdrawalPacket(1, "100")), c)

	next, err := ibc.NextSequenceSend(d, ibc.TransferPort, localChannel)
	require.NoError(t, err)
	assert.EqualValues(t, 2, next)
}

func TestWithdrawalRejectsTimedOutAndDisabled(t *testing.T) {
	d := setup(t)
	connect(t, d, nil)
	signAs(d, alice)
	late := &actions.Ics20Withdrawal{
		Amount: amount.New(1), Denom: nria, DestinationChainAddress: "dest",
		ReturnAddress: alice, TimeoutTime: uint64(headerTime(6).UnixNano()), SourceChannel: localChannel,
	}
	require.ErrorIs(t, ibc.ExecuteIcs20Withdrawal(d, late), ibc.ErrPacketTimedOut)

	require.NoError(t, ibc.PutParams(d, ibc.Params{IbcEnabled: true}))
	late.TimeoutTime = withdrawalTimeout
	require.ErrorIs(t, ibc.ExecuteIcs20Withdrawal(d, late), ibc.ErrTransfersDisabled)
}

func TestPacketCommitmentLayout(t *testing.T) {
	p := &actions.Packet{
		Data:             []byte("data"),
		TimeoutHeight:    actions.IbcHeight{RevisionNumber: 1, RevisionHeight: 2},
		TimeoutTimestamp: 3,
	}
	dataHash := sha256.Sum256([]byte("data"))
	pre := []byte{0, 0, 0, 0, 0, 0, 0, 3, 0, 0, 0, 0, 0, 0, 0, 1, 0, 0, 0, 0, 0, 0, 0, 2}
	want := sha256.Sum256(append(pre, dataHash[:]...))
	assert.Equal(t, want, ibc.PacketCommitment(p))
}

func inboundPacket(receiver string) *actions.Packet {
	data := ibc.FungibleTokenPacketData{Denom: "uatom", Amount: "50", Sender: "cosmos1sender", Receiver: receiver}
	return &actions.Packet{
		Sequence:           1,
		SourcePort:         ibc.TransferPort,
		SourceChannel:      remoteChannel,
		DestinationPort:    ibc.TransferPort,
		DestinationChannel: localChannel,
		Data:               data.Encode(),
		TimeoutTimestamp:   uint64(time.Unix(2000, 0).UnixNano()),
	}
}

// sent connects with p committed on the counterparty and returns a proof of
// the commitment at height 6.
func sent(t *testing.T, d *storage.Delta, p *actions.Packet) []byte {
	t.Helper()
	c := connect(t, d, func(w storage.Writer) {
		require.NoError(t, ibc.PutCommitment(w, p.SourcePort, p.SourceChannel, p.Sequence, ibc.PacketCommitment(p)))
	})
	return c.prove(ibc.CommitmentKey(p.SourcePort, p.SourceChannel, p.Sequence))
}

func TestRecvPacketMintsVoucher(t *testing.T) {
	d := setup(t)
	p := inboundPacket(carol.String())
	proof := sent(t, d, p)

	require.NoError(t, relay(t, d, &actions.RecvPacket{Packet: *p, Proof: proof, ProofHeight: ibcHeight(6)}))

	voucher, err := asset.ParseTracePrefixed("transfer/channel-0/uatom")
	require.NoError(t, err)
	bal, err := accounts.Balance(d, carol.Bytes(), voucher.ToIbcPrefixed())
	require.NoError(t, err)
	assert.Equal(t, "50", bal.String())
	known, err := assets.HasDenom(d, asset.FromTrace(voucher))
	require.NoError(t, err)
	assert.True(t, known)

	ackHash, found, err := ibc.GetAcknowledgementHash(d, ibc.TransferPort, localChannel, 1)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, sha256.Sum256(ibc.SuccessAck().Encode()), ackHash)

	err = relay(t, d, &actions.RecvPacket{Packet: *p, Proof: proof, ProofHeight: ibcHeight(6)})
	require.ErrorIs(t, err, ibc.ErrPacketReceived)
}

func TestRecvPacketRejectsBadProof(t *testing.T) {
	d := setup(t)
	p := inboundPacket(carol.String())
	proof := sent(t, d, p)

	tampered := *p
	tampered.Data = inboundPacket(alice.String()).Data
	err := relay(t, d, &actions.RecvPacket{Packet: tampered, Proof: proof, ProofHeight: ibcHeight(6)})
	require.ErrorIs(t, err, ibc.ErrInvalidProof)

	// the proof is only valid against the root it was made for
	err = relay(t, d, &actions.RecvPacket{Packet: *p, Proof: proof, ProofHeight: ibcHeight(5)})
	require.ErrorIs(t, err, ibc.ErrInvalidProof)
}

func TestRecvPacketFailureWritesErrorAck(t *testing.T) {
	d := setup(t)
	p := inboundPacket("not-an-address")
	proof := sent(t, d, p)

	require.NoError(t, relay(t, d, &actions.RecvPacket{Packet: *p, Proof: proof, ProofHeight: ibcHeight(6)}))
	ackHash, found, err := ibc.GetAcknowledgementHash(d, ibc.TransferPort, localChannel, 1)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, sha256.Sum256(ibc.ErrorAck(ibc.DeterministicAckError).Encode()), ackHash)
}

func TestTimeoutRefundsEscrow(t *testing.T) {
	d := setup(t)
	p := withdrawalPacket(1, "100")
	c := connect(t, d, nil)
	withdraw(t, d, 100)

	// height 60 is past the packet's timeout and holds no receipt
	c.commit(func(storage.Writer) {})
	h60 := c.update(t, d, 60)
	proof := c.prove(ibc.ReceiptKey(p.DestinationPort, p.DestinationChannel, p.Sequence))
	require.NoError(t, relay(t, d, &actions.Timeout{Packet: *p, Proof: proof, ProofHeight: h60}))

	bal, err := accounts.Balance(d, alice.Bytes(), nria.ToIbcPrefixed())
	require.NoError(t, err)
	assert.Equal(t, "1000", bal.String())
	escrow, err := ibc.EscrowBalance(d, localChannel, nria.ToIbcPrefixed())
	require.NoError(t, err)
	assert.True(t, escrow.IsZero())
	_, found, err := ibc.GetCommitment(d, ibc.TransferPort, localChannel, 1)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestTimeoutBeforeDeadlineFails(t *testing.T) {
	d := setup(t)
	p := withdrawalPacket(1, "100")
	c := connect(t, d, nil)
	withdraw(t, d, 100)

	c.commit(func(storage.Writer) {})
	h30 := c.update(t, d, 30)
	proof := c.prove(ibc.ReceiptKey(p.DestinationPort, p.DestinationChannel, p.Sequence))
	err := relay(t, d, &actions.Timeout{Packet: *p, Proof: proof, ProofHeight: h30})
	require.ErrorIs(t, err, ibc.ErrPacketNotTimedOut)
}

func TestErrorAckRefunds(t *testing.T) {
	d := setup(t)
	p := withdrawalPacket(1, "100")
	ack := ibc.ErrorAck("failed").Encode()
	c := connect(t, d, nil)
	withdraw(t, d, 100)

	c.commit(func(w storage.Writer) {
		require.NoError(t, ibc.PutAcknowledgement(w, p.DestinationPort, p.DestinationChannel, p.Sequence, ack))
	})
	h7 := c.update(t, d, 7)
	proof := c.prove(ibc.AckKey(p.DestinationPort, p.DestinationChannel, p.Sequence))
	require.NoError(t, relay(t, d, &actions.Acknowledgement{Packet: *p, Acknowledgement: ack, Proof: proof, ProofHeight: h7}))

	bal, err := accounts.Balance(d, alice.Bytes(), nria.ToIbcPrefixed())
	require.NoError(t, err)
	assert.Equal(t, "1000", bal.String())
}
