package amount

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddOverflow(t *testing.T) {
	maxAmount := FromParts(^uint64(0), ^uint64(0))
	_, err := maxAmount.Add(New(1))
	require.ErrorIs(t, err, ErrOverflow)

	sum, err := New(40).Add(New(2))
	require.NoError(t, err)
	assert.Equal(t, "42", sum.String())
}

func TestSubUnderflow(t *testing.T) {
	_, err := New(1).Sub(New(2))
	require.ErrorIs(t, err, ErrUnderflow)

	diff, err := New(1000).Sub(New(112))
	require.NoError(t, err)
	assert.True(t, diff.Equal(New(888)))
	assert.True(t, New(1).SaturatingSub(New(2)).IsZero())
}

func TestMulOverflow(t *testing.T) {
	big := FromParts(0, 1) // 2^64
	_, err := big.Mul(big)
	require.ErrorIs(t, err, ErrOverflow)

	p, err := New(7).Mul(New(6))
	require.NoError(t, err)
	assert.Equal(t, uint64(42), p.Uint64())
}

func TestParse(t *testing.T) {
	a, err := Parse("340282366920938463463374607431768211455")
	require.NoError(t, err)
	lo, hi := a.Parts()
	assert.Equal(t, ^uint64(0), lo)
	assert.Equal(t, ^uint64(0), hi)

	_, err = Parse("340282366920938463463374607431768211456")
	require.ErrorIs(t, err, ErrOverflow)
}

func TestLittleEndian(t *testing.T) {
	a := FromParts(0x0102030405060708, 0x1112131415161718)
	b := a.LittleEndian()
	assert.Equal(t, byte(0x08), b[0])
	assert.Equal(t, byte(0x11), b[15])
	assert.True(t, a.Equal(FromLittleEndian(b)))
}

func TestJSON(t *testing.T) {
	testCases := []struct {
		name  string
		input string
		want  Amount
	}{
		{"string", `"1000"`, New(1000)},
		{"number", `1000`, New(1000)},
		{"parts", `{"lo": 5, "hi": 1}`, FromParts(5, 1)},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var got Amount
			require.NoError(t, json.Unmarshal([]byte(tc.input), &got))
			assert.True(t, tc.want.Equal(got))
		})
	}

	bz, err := json.Marshal(New(12))
	require.NoError(t, err)
	assert.Equal(t, `"12"`, string(bz))
}
