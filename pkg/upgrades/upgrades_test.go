package upgrades_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astriaorg/astria-sequencer/pkg/upgrades"
)

const aspenJSON = `{
	"aspen": {
		"base_info": {"activation_height": 100, "app_version": 2},
		"price_feed_change": {"genesis": {
			"market_map": {
				"market_map": {"markets": [{
					"currency_pair": {"base": "BTC", "quote": "USD"},
					"decimals": 8,
					"min_provider_count": 1,
					"enabled": true,
					"provider_configs": [{"name": "coinbase_api", "off_chain_ticker": "BTC-USD"}]
				}]},
				"params": {"market_authorities": [], "admin": "astria1qyqszqgpqyqszqgpqyqszqgpqyqszqgpwllcff"}
			},
			"oracle": {"currency_pair_genesis": [{"currency_pair": {"base": "BTC", "quote": "USD"}, "nonce": 0, "id": 0}], "next_id": 1}
		}},
		"validator_update_action_change": {},
		"ibc_acknowledgement_failure_change": {}
	}
}`

func TestParseAspen(t *testing.T) {
	table, err := upgrades.Parse([]byte(aspenJSON))
	require.NoError(t, err)
	require.Len(t, table.All(), 1)

	aspen, ok := table.Aspen()
	require.True(t, ok)
	assert.EqualValues(t, 100, aspen.ActivationHeight())
	assert.EqualValues(t, 2, aspen.AppVersion())
	assert.False(t, aspen.ShutdownRequired())

	names := []string{}
	for _, c := range aspen.Changes() {
		names = append(names, c.Name())
	}
	assert.Equal(t, []string{
		upgrades.PriceFeedChangeName,
		upgrades.ValidatorUpdateActionChangeName,
		upgrades.IbcAcknowledgementFailureChangeName,
	}, names)

	_, ok = table.ActivatingAt(99)
	assert.False(t, ok)
	up, ok := table.ActivatingAt(100)
	require.True(t, ok)
	assert.Equal(t, upgrades.AspenName, up.Name())

	assert.False(t, table.ChangeActive(upgrades.ValidatorUpdateActionChangeName, 99))
	assert.True(t, table.ChangeActive(upgrades.ValidatorUpdateActionChangeName, 100))
}

func TestChangeHashesAreDeterministic(t *testing.T) {
	first, err := upgrades.Parse([]byte(aspenJSON))
	require.NoError(t, err)
	second, err := upgrades.Parse([]byte(aspenJSON))
	require.NoError(t, err)

	a, _ := first.Aspen()
	b, _ := second.Aspen()
	seen := map[upgrades.ChangeHash]bool{}
	for i, c := range a.Changes() {
		ha, err := upgrades.Hash(c)
		require.NoError(t, err)
		hb, err := upgrades.Hash(b.Changes()[i])
		require.NoError(t, err)
		assert.Equal(t, ha, hb)
		seen[ha] = true
	}
	// the price feed change commits to its genesis, the others do not
	assert.Len(t, seen, 2)

	info, err := upgrades.Info(a.PriceFeed)
	require.NoError(t, err)
	assert.EqualValues(t, 100, info.ActivationHeight)
	assert.EqualValues(t, 2, info.AppVersion)
}

func TestGenesisChangesHash(t *testing.T) {
	table, err := upgrades.Parse([]byte(aspenJSON))
	require.NoError(t, err)
	a, _ := table.Aspen()
	before, err := upgrades.Hash(a.PriceFeed)
	require.NoError(t, err)

	a.PriceFeed.Genesis.Oracle.NextID = 7
	after, err := upgrades.Hash(a.PriceFeed)
	require.NoError(t, err)
	assert.NotEqual(t, before, after)
}

func TestParseRejectsInvalid(t *testing.T) {
	_, err := upgrades.Parse([]byte(`{"birch": {}}`))
	require.ErrorIs(t, err, upgrades.ErrUnknownUpgrade)

	_, err = upgrades.Parse([]byte(`{"aspen": {"base_info": {"activation_height": 1, "app_version": 2}}}`))
	require.ErrorIs(t, err, upgrades.ErrMissingField)

	_, err = upgrades.Parse([]byte(`{"aspen": {"base_info": {"activation_height": 0, "app_version": 2},
		"price_feed_change": {"genesis": {}}, "validator_update_action_change": {}, "ibc_acknowledgement_failure_change": {}}}`))
	require.ErrorIs(t, err, upgrades.ErrInvalidHeight)

	table, err := upgrades.Parse([]byte(`{}`))
	require.NoError(t, err)
	assert.Empty(t, table.All())
}
