package appconsts

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConsts(t *testing.T) {
	t.Run("TxTTL should be 4 minutes", func(t *testing.T) {
		require.Equal(t, 240.0, TxTTL.Seconds())
	})
	t.Run("sequenced data limit should fit in a max size tx", func(t *testing.T) {
		require.LessOrEqual(t, MaxTxSize, MaxSequencedDataBytesPerBlock)
	})
}

func TestIsPublicNetwork(t *testing.T) {
	require.True(t, IsPublicNetwork(MainnetChainID))
	require.True(t, IsPublicNetwork(DuskChainID))
	require.False(t, IsPublicNetwork("test"))
}
