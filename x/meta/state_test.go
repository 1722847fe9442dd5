package meta_test

import (
	"testing"
	"time"

	abci "github.com/cometbft/cometbft/abci/types"
	cmtproto "github.com/cometbft/cometbft/proto/tendermint/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astriaorg/astria-sequencer/pkg/storage"
	"github.com/astriaorg/astria-sequencer/x/meta"
)

func TestChainMetadata(t *testing.T) {
	d := storage.NewDelta(storage.NewMemory().LatestSnapshot())

	_, err := meta.ChainID(d)
	require.ErrorIs(t, err, meta.ErrNotSet)

	require.NoError(t, meta.PutChainID(d, "astria-1"))
	require.NoError(t, meta.PutBlockHeight(d, 7))
	now := time.Unix(10, 5).UTC()
	require.NoError(t, meta.PutBlockTimestamp(d, now))
	require.NoError(t, meta.PutStorageVersion(d, 7, 7))

	chainID, err := meta.ChainID(d)
	require.NoError(t, err)
	assert.Equal(t, "astria-1", chainID)
	height, err := meta.BlockHeight(d)
	require.NoError(t, err)
	assert.EqualValues(t, 7, height)
	ts, err := meta.BlockTimestamp(d)
	require.NoError(t, err)
	assert.Equal(t, now, ts)
	v, found, err := meta.StorageVersion(d, 7)
	require.NoError(t, err)
	require.True(t, found)
	assert.EqualValues(t, 7, v)
}

func TestConsensusParamsRoundTrip(t *testing.T) {
	d := storage.NewDelta(storage.NewMemory().LatestSnapshot())
	params := &cmtproto.ConsensusParams{
		Version: &cmtproto.VersionParams{App: 2},
		Abci:    &cmtproto.ABCIParams{VoteExtensionsEnableHeight: 101},
	}
	require.NoError(t, meta.PutConsensusParams(d, params))
	got, found, err := meta.ConsensusParams(d)
	require.NoError(t, err)
	require.True(t, found)
	assert.EqualValues(t, 2, got.Version.App)
	assert.EqualValues(t, 101, got.Abci.VoteExtensionsEnableHeight)
}

func TestEventsFollowDeltas(t *testing.T) {
	d := storage.NewDelta(storage.NewMemory().LatestSnapshot())
	meta.EmitEvent(d, abci.Event{Type: "kept"})

	failed := d.Nested()
	meta.EmitEvent(failed, abci.Event{Type: "dropped"})
	assert.Len(t, meta.TakeEvents(failed), 2)

	ok := d.Nested()
	meta.EmitEvent(ok, abci.Event{Type: "applied"})
	ok.Apply()

	evs := meta.TakeEvents(d)
	require.Len(t, evs, 2)
	assert.Equal(t, "kept", evs[0].Type)
	assert.Equal(t, "applied", evs[1].Type)
	assert.Empty(t, meta.TakeEvents(d))
}

func TestRevisionFromChainID(t *testing.T) {
	testCases := map[string]uint64{
		"astria":        0,
		"cosmoshub-4":   4,
		"dusk-11":       11,
		"osmosis-1-2":   2,
		"chain-":        0,
		"chain-04":      0,
		"chain-x":       0,
		"astria-test-1": 1,
	}
	for chainID, want := range testCases {
		assert.Equal(t, want, meta.RevisionFromChainID(chainID), chainID)
	}
}
