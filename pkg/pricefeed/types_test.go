package pricefeed

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCurrencyPair(t *testing.T) {
	p, err := ParseCurrencyPair("BTC/USD")
	require.NoError(t, err)
	assert.Equal(t, CurrencyPair{Base: "BTC", Quote: "USD"}, p)

	for _, bad := range []string{"BTCUSD", "/USD", "BTC/", "A/B/C"} {
		_, err := ParseCurrencyPair(bad)
		require.ErrorIs(t, err, ErrInvalidCurrencyPair, bad)
	}
}

func TestPriceOrdering(t *testing.T) {
	neg := PriceFromInt64(-5)
	pos := PriceFromInt64(5)
	assert.Equal(t, -1, neg.Cmp(pos))
	assert.Equal(t, 1, pos.Cmp(neg))
	assert.Equal(t, 0, pos.Cmp(PriceFromInt64(5)))
	assert.Equal(t, "-5", neg.String())
}

func TestPriceFromBig(t *testing.T) {
	huge := new(big.Int).Lsh(big.NewInt(1), 100)
	p, err := PriceFromBig(huge)
	require.NoError(t, err)
	assert.Equal(t, huge.String(), p.String())

	tooBig := new(big.Int).Lsh(big.NewInt(1), 127)
	_, err = PriceFromBig(tooBig)
	require.ErrorIs(t, err, ErrPriceOutOfRange)

	neg, err := PriceFromBig(big.NewInt(-42))
	require.NoError(t, err)
	assert.Equal(t, PriceFromInt64(-42), neg)
}

func TestGenesisJSON(t *testing.T) {
	raw := `{
		"market_map": {"market_map": {"markets": []}, "params": {"market_authorities": [], "admin": "astria1qqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqq007erg"}},
		"oracle": {"currency_pair_genesis": [{"currency_pair": {"base": "BTC", "quote": "USD"}, "price": {"price": "6000000000", "block_timestamp": 1, "block_height": 1}, "nonce": 0, "id": 0}], "next_id": 1}
	}`
	var g Genesis
	require.NoError(t, json.Unmarshal([]byte(raw), &g))
	require.Len(t, g.Oracle.CurrencyPairs, 1)
	assert.Equal(t, "BTC/USD", g.Oracle.CurrencyPairs[0].Pair.String())
	require.NotNil(t, g.Oracle.CurrencyPairs[0].Price)
	assert.Equal(t, "6000000000", g.Oracle.CurrencyPairs[0].Price.Price.String())
	assert.Equal(t, CurrencyPairID(1), g.Oracle.NextID)
}
