package upgrades_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astriaorg/astria-sequencer/pkg/pricefeed"
	"github.com/astriaorg/astria-sequencer/pkg/storage"
	"github.com/astriaorg/astria-sequencer/pkg/upgrades"
	xupgrades "github.com/astriaorg/astria-sequencer/x/upgrades"
)

func table(t *testing.T, height, version uint64) *upgrades.Upgrades {
	t.Helper()
	tbl, err := upgrades.New(upgrades.NewAspen(height, version, pricefeed.Genesis{}))
	require.NoError(t, err)
	return tbl
}

func TestApplyAndVerify(t *testing.T) {
	d := storage.NewDelta(storage.NewMemory().LatestSnapshot())
	tbl := table(t, 10, 2)

	// nothing activated yet
	require.NoError(t, xupgrades.VerifyHistory(d, tbl, 9))
	err := xupgrades.VerifyHistory(d, tbl, 10)
	require.ErrorIs(t, err, xupgrades.ErrChangeNotApplied)

	aspen, _ := tbl.Aspen()
	hashes, err := xupgrades.ApplyUpgrade(d, aspen)
	require.NoError(t, err)
	require.Len(t, hashes, 3)
	want, err := upgrades.Hash(aspen.PriceFeed)
	require.NoError(t, err)
	assert.Equal(t, want, hashes[0])

	require.NoError(t, xupgrades.VerifyHistory(d, tbl, 50))

	info, found, err := xupgrades.ChangeInfo(d, upgrades.AspenName, upgrades.PriceFeedChangeName)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, uint64(10), info.ActivationHeight)
	assert.Equal(t, want, info.Hash)

	applied, err := xupgrades.Applied(d)
	require.NoError(t, err)
	require.Len(t, applied, 3)
	assert.Equal(t, upgrades.AspenName, applied[0].Upgrade)
	assert.Equal(t, upgrades.IbcAcknowledgementFailureChangeName, applied[0].Change)
}

func TestVerifyRejectsRewrittenHistory(t *testing.T) {
	d := storage.NewDelta(storage.NewMemory().LatestSnapshot())
	applied := table(t, 10, 2)
	aspen, _ := applied.Aspen()
	_, err := xupgrades.ApplyUpgrade(d, aspen)
	require.NoError(t, err)

	err = xupgrades.VerifyHistory(d, table(t, 10, 3), 20)
	require.ErrorIs(t, err, xupgrades.ErrChangeMismatch)
}
