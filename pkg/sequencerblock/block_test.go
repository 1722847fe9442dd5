package sequencerblock_test

import (
	"crypto/sha256"
	"testing"

	"github.com/cometbft/cometbft/crypto/merkle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astriaorg/astria-sequencer/pkg/address"
	"github.com/astriaorg/astria-sequencer/pkg/amount"
	"github.com/astriaorg/astria-sequencer/pkg/asset"
	"github.com/astriaorg/astria-sequencer/pkg/rollup"
	"github.com/astriaorg/astria-sequencer/pkg/sequencerblock"
	"github.com/astriaorg/astria-sequencer/pkg/transaction"
)

var (
	r1 = rollup.IDFromName("rollup-1")
	r2 = rollup.IDFromName("rollup-2")
)

func threeSubmissions() []sequencerblock.RollupGroup {
	data := sequencerblock.NewRollupData()
	data.Append(r1, []byte("tx1"))
	data.Append(r2, []byte("tx2"))
	data.Append(r1, []byte("tx3"))
	return data.Groups()
}

func buildBlock(t *testing.T, groups []sequencerblock.RollupGroup, layout sequencerblock.Layout) *sequencerblock.SequencerBlock {
	t.Helper()
	commitments := sequencerblock.ComputeCommitments(groups)
	data := sequencerblock.NewData(commitments, layout, [][32]byte{{7}}, []byte{1, 2, 3}, [][]byte{[]byte("user tx")})
	block, err := sequencerblock.New([32]byte{9}, sequencerblock.Header{ChainID: "test-1", Height: 5, Time: 1000}, data, groups)
	require.NoError(t, err)
	return block
}

func TestRollupCommitmentConstruction(t *testing.T) {
	groups := threeSubmissions()
	require.Len(t, groups, 2)
	assert.Equal(t, r1, groups[0].ID)
	assert.Equal(t, [][]byte{[]byte("tx1"), []byte("tx3")}, groups[0].Items)

	root1 := merkle.HashFromByteSlices([][]byte{[]byte("tx1"), []byte("tx3")})
	root2 := merkle.HashFromByteSlices([][]byte{[]byte("tx2")})
	leaf1 := sha256.Sum256(append(r1[:], root1...))
	leaf2 := sha256.Sum256(append(r2[:], root2...))
	want := merkle.HashFromByteSlices([][]byte{leaf1[:], leaf2[:]})

	commitments := sequencerblock.ComputeCommitments(groups)
	assert.Equal(t, want, commitments.RollupTransactionsRoot[:])
	assert.Equal(t, merkle.HashFromByteSlices([][]byte{r1[:], r2[:]}), commitments.RollupIDsRoot[:])
}

func TestFilteredBlockAuditPath(t *testing.T) {
	block := buildBlock(t, threeSubmissions(), sequencerblock.Layout{})
	require.NoError(t, block.Verify())

	filtered := block.Filter([]rollup.ID{r1})
	require.Len(t, filtered.RollupTransactions, 1)
	rt := filtered.RollupTransactions[0]
	assert.Equal(t, [][]byte{[]byte("tx1"), []byte("tx3")}, rt.Transactions)

	root := sequencerblock.RollupTxRoot(rt.Transactions)
	leaf := sequencerblock.RollupLeaf(r1, root)
	require.NoError(t, rt.Proof.Verify(block.Header.RollupTransactionsRoot[:], leaf))
	require.NoError(t, filtered.Verify())

	decoded, err := sequencerblock.DecodeFiltered(filtered.Encode())
	require.NoError(t, err)
	require.NoError(t, decoded.Verify())
	assert.Equal(t, []rollup.ID{r1, r2}, decoded.AllRollupIDs)
}

func TestTamperedRollupFailsVerification(t *testing.T) {
	block := buildBlock(t, threeSubmissions(), sequencerblock.Layout{})
	block.RollupTransactions[0].Transactions[0] = []byte("evil")
	require.ErrorIs(t, block.Verify(), sequencerblock.ErrInvalidProof)
}

func TestCommitmentMismatchIsRejected(t *testing.T) {
	groups := threeSubmissions()
	data := sequencerblock.NewData(sequencerblock.Commitments{}, sequencerblock.Layout{}, nil, nil, nil)
	_, err := sequencerblock.New([32]byte{}, sequencerblock.Header{}, data, groups)
	require.ErrorIs(t, err, sequencerblock.ErrCommitmentMismatch)
}

func TestBlockEncodingRoundTrip(t *testing.T) {
	layout := sequencerblock.Layout{UpgradeChangeHashes: true, ExtendedCommitInfo: true}
	block := buildBlock(t, threeSubmissions(), layout)

	decoded, err := sequencerblock.Decode(block.Encode())
	require.NoError(t, err)
	assert.Equal(t, block.Encode(), decoded.Encode())
	assert.Equal(t, block.Header, decoded.Header)
	assert.Equal(t, [][32]byte{{7}}, decoded.UpgradeChangeHashes)
	assert.Equal(t, []byte{1, 2, 3}, decoded.ExtendedCommitInfo)
	require.NoError(t, decoded.Verify())
}

func TestParseData(t *testing.T) {
	groups := threeSubmissions()
	commitments := sequencerblock.ComputeCommitments(groups)
	layout := sequencerblock.Layout{UpgradeChangeHashes: true, ExtendedCommitInfo: true}
	data := sequencerblock.NewData(commitments, layout, [][32]byte{{1}, {2}}, []byte("eci"), [][]byte{[]byte("a"), []byte("b")})

	parsed, err := sequencerblock.ParseData(data.All(), layout)
	require.NoError(t, err)
	assert.Equal(t, commitments, parsed.Commitments)
	assert.Equal(t, [][32]byte{{1}, {2}}, parsed.UpgradeChangeHashes)
	assert.Equal(t, []byte("eci"), parsed.ExtendedCommitInfo)
	assert.Equal(t, [][]byte{[]byte("a"), []byte("b")}, parsed.Txs)

	_, err = sequencerblock.ParseData(data.All()[:1], sequencerblock.Layout{})
	require.ErrorIs(t, err, sequencerblock.ErrMissingDataItem)

	_, err = sequencerblock.ParseData([][]byte{data.Items[1], data.Items[0]}, sequencerblock.Layout{})
	require.ErrorIs(t, err, sequencerblock.ErrInvalidDataItem)
}

func TestDepositItemRoundTrip(t *testing.T) {
	d := &sequencerblock.Deposit{
		BridgeAddress:           address.New("astria", [20]byte{4}),
		RollupID:                r1,
		Amount:                  amount.New(500),
		Asset:                   asset.MustParse("nria"),
		DestinationChainAddress: "0xdead",
		SourceTransactionID:     transaction.IDOf([]byte("tx")),
		SourceActionIndex:       2,
	}
	decoded, err := sequencerblock.DecodeDepositItem(sequencerblock.EncodeDepositItem(d))
	require.NoError(t, err)
	assert.True(t, d.BridgeAddress.Equal(decoded.BridgeAddress))
	assert.Equal(t, d.RollupID, decoded.RollupID)
	assert.True(t, d.Amount.Equal(decoded.Amount))
	assert.True(t, d.Asset.Equal(decoded.Asset))
	assert.Equal(t, d.DestinationChainAddress, decoded.DestinationChainAddress)
	assert.Equal(t, d.SourceTransactionID, decoded.SourceTransactionID)
	assert.EqualValues(t, 2, decoded.SourceActionIndex)
}
