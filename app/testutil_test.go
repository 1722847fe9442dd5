package app_test

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
	"testing"
	"time"

	abci "github.com/cometbft/cometbft/abci/types"
	"github.com/cometbft/cometbft/crypto/ed25519"
	cmtproto "github.com/cometbft/cometbft/proto/tendermint/types"
	"github.com/stretchr/testify/require"

	"github.com/astriaorg/astria-sequencer/app"
	"github.com/astriaorg/astria-sequencer/pkg/actions"
	"github.com/astriaorg/astria-sequencer/pkg/address"
	"github.com/astriaorg/astria-sequencer/pkg/amount"
	"github.com/astriaorg/astria-sequencer/pkg/asset"
	"github.com/astriaorg/astria-sequencer/pkg/storage"
	"github.com/astriaorg/astria-sequencer/pkg/transaction"
	"github.com/astriaorg/astria-sequencer/pkg/upgrades"
	"github.com/astriaorg/astria-sequencer/x/accounts"
)

const testChainID = "astria-test-1"

var (
	nria      = asset.MustParse("nria")
	genesisTS = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
)

// account is a funded test key.
type account struct {
	key  ed25519.PrivKey
	addr address.Address
}

func newAccount(name string) account {
	key := ed25519.GenPrivKeyFromSecret([]byte(name))
	return account{key: key, addr: address.FromVerificationKey("astria", key.PubKey().(ed25519.PubKey))}
}

var (
	alice      = newAccount("alice")
	bob        = newAccount("bob")
	carol      = newAccount("carol")
	bridgeAcc  = newAccount("bridge")
	withdrawer = newAccount("withdrawer")
	validator  = newAccount("validator")
	// sudo receives the block fees.
	sudo       = newAccount("sudo")
)

func encode(t *testing.T, a address.Address) string {
	t.Helper()
	s, err := a.Encode()
	require.NoError(t, err)
	return s
}

// appState is the genesis app state every test chain starts from.
func appState(t *testing.T) []byte {
	t.Helper()
	var accts []string
	for _, a := range []account{alice, bob, bridgeAcc, withdrawer} {
		accts = append(accts, fmt.Sprintf(`{"address": %q, "balance": "1000"}`, encode(t, a.addr)))
	}
	return []byte(`{
		"address_prefixes": {"base": "astria", "compat": "astriacompat"},
		"authority_sudo": "` + encode(t, sudo.addr) + `",
		"ibc_sudo": "` + encode(t, sudo.addr) + `",
		"ibc_relayers": ["` + encode(t, sudo.addr) + `"],
		"initial_validators": [{"verification_key": "` + strings.ToUpper(hex.EncodeToString(validator.key.PubKey().Bytes())) + `", "power": 10, "name": "val-0"}],
		"initial_accounts": [` + strings.Join(accts, ",") + `],
		"fees": {
			"transfer": {"base": "12", "multiplier": "0"},
			"rollup_data_submission": {"base": "32", "multiplier": "1"},
			"init_bridge_account": {"base": "48", "multiplier": "0"},
			"bridge_lock": {"base": "12", "multiplier": "0"},
			"bridge_unlock": {"base": "12", "multiplier": "0"},
			"validator_update": {"base": "0", "multiplier": "0"},
			"sudo_address_change": {"base": "0", "multiplier": "0"}
		},
		"allowed_fee_assets": ["nria"],
		"native_asset_base_denom": "nria",
		"ibc_parameters": {"ibc_enabled": true, "inbound_ics20_transfers_enabled": true, "outbound_ics20_transfers_enabled": true}
	}`)
}

// testApp drives an App through the ABCI calls CometBFT would make.
type testApp struct {
	*app.App
	t      *testing.T
	height int64
}

type testOption func(*app.Options)

func withUpgrades(u *upgrades.Upgrades) testOption {
	return func(o *app.Options) { o.Upgrades = u }
}

func newTestApp(t *testing.T, opts ...testOption) *testApp {
	t.Helper()
	o := app.Options{Storage: storage.NewMemory()}
	for _, opt := range opts {
		opt(&o)
	}
	a, err := app.New(o)
	require.NoError(t, err)
	_, err = a.InitChain(context.Background(), &abci.RequestInitChain{
		Time:            genesisTS,
		ChainId:         testChainID,
		InitialHeight:   1,
		AppStateBytes:   appState(t),
		ConsensusParams: &cmtproto.ConsensusParams{Version: &cmtproto.VersionParams{App: 1}},
	})
	require.NoError(t, err)
	return &testApp{App: a, t: t}
}

func blockTime(height int64) time.Time {
	return genesisTS.Add(time.Duration(height) * time.Second)
}

func hashOf(height int64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(height))
	h := sha256.Sum256(b[:])
	return h[:]
}

var proposer = validator.key.PubKey().Address()

// lastCommit is the single validator committing without an extension.
func lastCommit() (abci.ExtendedCommitInfo, abci.CommitInfo) {
	val := abci.Validator{Address: proposer, Power: 10}
	return abci.ExtendedCommitInfo{Votes: []abci.ExtendedVoteInfo{{Validator: val, BlockIdFlag: cmtproto.BlockIDFlagCommit}}},
		abci.CommitInfo{Votes: []abci.VoteInfo{{Validator: val, BlockIdFlag: cmtproto.BlockIDFlagCommit}}}
}

// prepare builds the next block from the mempool.
func (ta *testApp) prepare() [][]byte {
	ta.t.Helper()
	local, _ := lastCommit()
	resp, err := ta.PrepareProposal(context.Background(), &abci.RequestPrepareProposal{
		MaxTxBytes:      22_020_096,
		LocalLastCommit: local,
		Height:          ta.height + 1,
		Time:            blockTime(ta.height + 1),
		ProposerAddress: proposer,
	})
	require.NoError(ta.t, err)
	return resp.Txs
}

func (ta *testApp) process(txs [][]byte) abci.ResponseProcessProposal_ProposalStatus {
	ta.t.Helper()
	_, last := lastCommit()
	resp, err := ta.ProcessProposal(context.Background(), &abci.RequestProcessProposal{
		Txs:                txs,
		ProposedLastCommit: last,
		Hash:               hashOf(ta.height + 1),
		Height:             ta.height + 1,
		Time:               blockTime(ta.height + 1),
		ProposerAddress:    proposer,
	})
	require.NoError(ta.t, err)
	return resp.Status
}

// finalize finalizes and commits txs as the next block.
func (ta *testApp) finalize(txs [][]byte) *abci.ResponseFinalizeBlock {
	ta.t.Helper()
	resp, err := ta.FinalizeBlock(context.Background(), &abci.RequestFinalizeBlock{
		Txs:             txs,
		Hash:            hashOf(ta.height + 1),
		Height:          ta.height + 1,
		Time:            blockTime(ta.height + 1),
		ProposerAddress: proposer,
	})
	require.NoError(ta.t, err)
	_, err = ta.Commit(context.Background(), &abci.RequestCommit{})
	require.NoError(ta.t, err)
	ta.height++
	return resp
}

// nextBlock runs a full round with this node as proposer.
func (ta *testApp) nextBlock() ([][]byte, *abci.ResponseFinalizeBlock) {
	ta.t.Helper()
	txs := ta.prepare()
	require.Equal(ta.t, abci.ResponseProcessProposal_ACCEPT, ta.process(txs))
	return txs, ta.finalize(txs)
}

func (ta *testApp) checkTx(raw []byte) *abci.ResponseCheckTx {
	ta.t.Helper()
	resp, err := ta.CheckTx(context.Background(), &abci.RequestCheckTx{Tx: raw, Type: abci.CheckTxType_New})
	require.NoError(ta.t, err)
	return resp
}

func (ta *testApp) balance(a address.Address) amount.Amount {
	ta.t.Helper()
	bal, err := accounts.Balance(ta.Storage().LatestSnapshot(), a.Bytes(), nria.ToIbcPrefixed())
	require.NoError(ta.t, err)
	return bal
}

func (ta *testApp) nonce(a address.Address) uint32 {
	ta.t.Helper()
	n, err := accounts.Nonce(ta.Storage().LatestSnapshot(), a.Bytes())
	require.NoError(ta.t, err)
	return n
}

func signTx(t *testing.T, from account, nonce uint32, acts ...actions.Action) []byte {
	t.Helper()
	body := &transaction.Body{ChainID: testChainID, Nonce: nonce, FeeAsset: nria, Actions: acts}
	tx, err := body.Sign(from.key)
	require.NoError(t, err)
	return tx.Encode()
}

func transfer(to account, amt uint64) *actions.Transfer {
	return &actions.Transfer{To: to.addr, Amount: amount.New(amt), Asset: nria}
}

// dataItems is the number of data items ahead of the transactions in a
// block without upgrade or vote extension data.
const dataItems = 2
