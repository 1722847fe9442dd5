package address_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	addr "github.com/astriaorg/astria-sequencer/pkg/address"
	"github.com/astriaorg/astria-sequencer/pkg/storage"
	"github.com/astriaorg/astria-sequencer/x/address"
)

func TestPrefixChecks(t *testing.T) {
	d := storage.NewDelta(storage.NewMemory().LatestSnapshot())
	require.ErrorIs(t, address.EnsureBase(d, addr.New("astria", [20]byte{1})), address.ErrPrefixNotSet)

	require.NoError(t, address.PutBasePrefix(d, "astria"))
	require.NoError(t, address.PutCompatPrefix(d, "astriacompat"))

	require.NoError(t, address.EnsureBase(d, addr.New("astria", [20]byte{1})))
	require.ErrorIs(t, address.EnsureBase(d, addr.New("other", [20]byte{1})), address.ErrIncorrectPrefix)
	require.NoError(t, address.EnsureBaseOrCompat(d, addr.NewCompat("astriacompat", [20]byte{1})))
	require.ErrorIs(t, address.EnsureBaseOrCompat(d, addr.New("cosmos", [20]byte{1})), address.ErrIncorrectPrefix)

	a, err := address.FromBytes(d, [20]byte{2})
	require.NoError(t, err)
	require.Equal(t, "astria", a.Prefix())
}
