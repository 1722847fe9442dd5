package errors

import (
	"errors"
	"fmt"
)

// NonceMismatch is returned when a transaction's nonce differs from its
// signer's current nonce.
type NonceMismatch struct {
	Expected uint32
	Got      uint32
}

func (e *NonceMismatch) Error() string {
	return fmt.Sprintf("invalid nonce: expected %d, got %d", e.Expected, e.Got)
}

// Is lets errors.Is match a mismatch against ErrInvalidNonce.
func (e *NonceMismatch) Is(target error) bool { return target == ErrInvalidNonce }

// Ahead reports whether the transaction may become executable once the
// signer's earlier transactions are included.
func (e *NonceMismatch) Ahead() bool { return e.Got > e.Expected }

// IsNonceMismatch checks if the error is due to a nonce mismatch.
func IsNonceMismatch(err error) bool {
	var m *NonceMismatch
	return errors.As(err, &m)
}

// AsNonceMismatch returns the mismatch in err's chain.
func AsNonceMismatch(err error) (*NonceMismatch, bool) {
	var m *NonceMismatch
	ok := errors.As(err, &m)
	return m, ok
}
