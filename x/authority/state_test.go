package authority_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astriaorg/astria-sequencer/pkg/actions"
	addr "github.com/astriaorg/astria-sequencer/pkg/address"
	"github.com/astriaorg/astria-sequencer/pkg/storage"
	"github.com/astriaorg/astria-sequencer/x/address"
	"github.com/astriaorg/astria-sequencer/x/authority"
	"github.com/astriaorg/astria-sequencer/x/meta"
)

var sudo = [20]byte{1}

func setup(t *testing.T) *storage.Delta {
	t.Helper()
	d := storage.NewDelta(storage.NewMemory().LatestSnapshot())
	require.NoError(t, address.PutBasePrefix(d, "astria"))
	require.NoError(t, authority.PutSudo(d, sudo))
	require.NoError(t, authority.PutValidatorSet(d, []authority.Validator{
		{PubKey: [32]byte{2}, Power: 10},
		{PubKey: [32]byte{1}, Power: 5},
	}))
	meta.PutTxContext(d, meta.TxContext{Signer: sudo})
	return d
}

func TestSudoAddressChange(t *testing.T) {
	d := setup(t)
	next := addr.New("astria", [20]byte{9})
	require.NoError(t, authority.ExecuteSudoAddressChange(d, &actions.SudoAddressChange{NewAddress: next}))
	got, err := authority.Sudo(d)
	require.NoError(t, err)
	assert.Equal(t, next.Bytes(), got)

	// the old sudo lost its rights
	require.ErrorIs(t, authority.ExecuteSudoAddressChange(d, &actions.SudoAddressChange{NewAddress: next}), authority.ErrNotSudo)
}

func TestValidatorUpdates(t *testing.T) {
	d := setup(t)
	require.ErrorIs(t,
		authority.ExecuteValidatorUpdate(d, &actions.ValidatorUpdate{VerificationKey: [32]byte{3}, Power: 1, Name: "n"}, false),
		authority.ErrValidatorNamesDisabled)

	require.NoError(t, authority.ExecuteValidatorUpdate(d, &actions.ValidatorUpdate{VerificationKey: [32]byte{3}, Power: 1, Name: "n"}, true))
	require.NoError(t, authority.ExecuteValidatorUpdate(d, &actions.ValidatorUpdate{VerificationKey: [32]byte{1}, Power: 0}, true))
	require.ErrorIs(t,
		authority.ExecuteValidatorUpdate(d, &actions.ValidatorUpdate{VerificationKey: [32]byte{7}, Power: 0}, true),
		authority.ErrUnknownValidator)

	updates, err := authority.ApplyValidatorUpdates(d)
	require.NoError(t, err)
	require.Len(t, updates, 2)
	assert.EqualValues(t, 0, updates[0].Power)
	assert.EqualValues(t, 1, updates[1].Power)

	set, err := authority.ValidatorSet(d)
	require.NoError(t, err)
	require.Len(t, set, 2)
	assert.Equal(t, [32]byte{2}, set[0].PubKey)
	assert.Equal(t, "n", set[1].Name)
	assert.Empty(t, authority.PendingValidatorUpdates(d))
}

func TestCannotRemoveLastValidator(t *testing.T) {
	d := setup(t)
	require.NoError(t, authority.ExecuteValidatorUpdate(d, &actions.ValidatorUpdate{VerificationKey: [32]byte{1}, Power: 0}, false))
	require.ErrorIs(t,
		authority.ExecuteValidatorUpdate(d, &actions.ValidatorUpdate{VerificationKey: [32]byte{2}, Power: 0}, false),
		authority.ErrEmptyValidatorSet)
}
