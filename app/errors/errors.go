package errors

import (
	"errors"

	errorsmod "cosmossdk.io/errors"

	"github.com/astriaorg/astria-sequencer/x/accounts"
)

// Codespace is reported with every non zero code returned to CometBFT.
const Codespace = "sequencer"

// The codes are part of the client facing API and must not change.
var (
	ErrUnknownPath       = errorsmod.Register(Codespace, 1, "unknown path")
	ErrInvalidParameter  = errorsmod.Register(Codespace, 2, "invalid parameter")
	ErrInternal          = errorsmod.Register(Codespace, 3, "internal error")
	ErrInvalidNonce      = errorsmod.Register(Codespace, 4, "invalid nonce")
	ErrTxExceedsMaxSize  = errorsmod.Register(Codespace, 5, "transaction too large")
	ErrInsufficientFunds = errorsmod.Register(Codespace, 6, "insufficient funds")
	ErrInvalidChainID    = errorsmod.Register(Codespace, 7, "invalid chain id")
)

var sequencerErrors = []*errorsmod.Error{
	ErrUnknownPath,
	ErrInvalidParameter,
	ErrInternal,
	ErrInvalidNonce,
	ErrTxExceedsMaxSize,
	ErrInsufficientFunds,
	ErrInvalidChainID,
}

// Kind returns the sequencer error err is reported as. Sequencer errors are
// returned as is, a nonce mismatch is ErrInvalidNonce, running out of funds
// is ErrInsufficientFunds, any other registered module error is an invalid
// parameter and everything else is internal.
func Kind(err error) *errorsmod.Error {
	var nonce *NonceMismatch
	if errors.As(err, &nonce) {
		return ErrInvalidNonce
	}
	for _, e := range sequencerErrors {
		if errors.Is(err, e) {
			return e
		}
	}
	if errors.Is(err, accounts.ErrInsufficientFunds) {
		return ErrInsufficientFunds
	}
	var registered *errorsmod.Error
	if errors.As(err, &registered) {
		return ErrInvalidParameter
	}
	return ErrInternal
}

// ABCIInfo is errorsmod.ABCIInfo restricted to the sequencer codes. The log
// keeps the full error chain unless it is internal and debug is off.
func ABCIInfo(err error, debug bool) (codespace string, code uint32, log string) {
	if err == nil {
		return "", 0, ""
	}
	kind := Kind(err)
	if kind == ErrInternal && !debug {
		return Codespace, kind.ABCICode(), kind.Error()
	}
	return Codespace, kind.ABCICode(), err.Error()
}
