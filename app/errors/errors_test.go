package errors_test

import (
	"errors"
	"fmt"
	"testing"

	errorsmod "cosmossdk.io/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperr "github.com/astriaorg/astria-sequencer/app/errors"
	"github.com/astriaorg/astria-sequencer/x/accounts"
	"github.com/astriaorg/astria-sequencer/x/bridge"
)

func TestKind(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		want *errorsmod.Error
	}{
		{"sequencer error", apperr.ErrInvalidChainID, apperr.ErrInvalidChainID},
		{"wrapped sequencer error", errorsmod.Wrap(apperr.ErrTxExceedsMaxSize, "256001 bytes"), apperr.ErrTxExceedsMaxSize},
		{"nonce mismatch", fmt.Errorf("checking nonce: %w", &apperr.NonceMismatch{Expected: 1, Got: 0}), apperr.ErrInvalidNonce},
		{"insufficient funds", errorsmod.Wrap(accounts.ErrInsufficientFunds, "paying fee"), apperr.ErrInsufficientFunds},
		{"module error", bridge.ErrNotWithdrawer, apperr.ErrInvalidParameter},
		{"plain error", errors.New("disk on fire"), apperr.ErrInternal},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, apperr.Kind(tc.err))
		})
	}
}

func TestABCIInfoHidesInternalErrors(t *testing.T) {
	space, code, log := apperr.ABCIInfo(errors.New("disk on fire"), false)
	assert.Equal(t, apperr.Codespace, space)
	assert.Equal(t, uint32(3), code)
	assert.Equal(t, "internal error", log)

	_, _, log = apperr.ABCIInfo(errors.New("disk on fire"), true)
	assert.Equal(t, "disk on fire", log)
}

func TestNonceMismatch(t *testing.T) {
	err := &apperr.NonceMismatch{Expected: 4, Got: 7}
	require.True(t, apperr.IsNonceMismatch(err))
	require.ErrorIs(t, err, apperr.ErrInvalidNonce)
	assert.True(t, err.Ahead())
	assert.False(t, (&apperr.NonceMismatch{Expected: 4, Got: 3}).Ahead())

	_, code, log := apperr.ABCIInfo(err, false)
	assert.Equal(t, apperr.ErrInvalidNonce.ABCICode(), code)
	assert.Equal(t, "invalid nonce: expected 4, got 7", log)

	m, ok := apperr.AsNonceMismatch(fmt.Errorf("executing: %w", err))
	require.True(t, ok)
	assert.Equal(t, uint32(4), m.Expected)
}

func TestCodesStayWithinTheSequencerSet(t *testing.T) {
	errs := []error{
		errorsmod.Wrap(apperr.ErrInvalidParameter, "removed from the app mempool: transaction expired"),
		errorsmod.Wrap(apperr.ErrUnknownPath, "foo"),
		bridge.ErrNotWithdrawer,
		errors.New("disk on fire"),
		&apperr.NonceMismatch{Expected: 1},
	}
	for _, err := range errs {
		space, code, _ := apperr.ABCIInfo(err, true)
		assert.Equal(t, apperr.Codespace, space)
		assert.True(t, code >= 1 && code <= 7, "code %d for %v", code, err)
	}
}
