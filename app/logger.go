package app

import (
	"cosmossdk.io/log"

	apperr "github.com/astriaorg/astria-sequencer/app/errors"
)

// msgTxExcluded is logged when a proposal leaves out a transaction.
const msgTxExcluded = "excluding transaction from proposal"

// TxErrorLoggerWrapper wraps a logger to change the log level of expected
// transaction failures. Transactions that are ahead of their signer's nonce
// are skipped by every proposal until the gap closes, so logging them at INFO
// floods the output.
type TxErrorLoggerWrapper struct {
	logger log.Logger
}

// NewTxErrorLoggerWrapper creates a new logger wrapper that downgrades transaction error logs.
func NewTxErrorLoggerWrapper(logger log.Logger) log.Logger {
	return &TxErrorLoggerWrapper{logger: logger}
}

// Info logs an info message, but downgrades nonce gap exclusions to debug level.
func (l *TxErrorLoggerWrapper) Info(msg string, keyvals ...interface{}) {
	if msg == msgTxExcluded && l.isNonceGap(keyvals...) {
		l.logger.Debug(msg, keyvals...)
		return
	}
	l.logger.Info(msg, keyvals...)
}

// isNonceGap checks if the logged error is a nonce that is ahead of the signer's.
func (l *TxErrorLoggerWrapper) isNonceGap(keyvals ...interface{}) bool {
	for i := 0; i < len(keyvals)-1; i += 2 {
		if key, ok := keyvals[i].(string); ok && key == "err" {
			if err, ok := keyvals[i+1].(error); ok {
				m, ok := apperr.AsNonceMismatch(err)
				return ok && m.Ahead()
			}
		}
	}
	return false
}

// Debug passes through to the underlying logger
func (l *TxErrorLoggerWrapper) Debug(msg string, keyvals ...interface{}) {
	l.logger.Debug(msg, keyvals...)
}

// Error passes through to the underlying logger
func (l *TxErrorLoggerWrapper) Error(msg string, keyvals ...interface{}) {
	l.logger.Error(msg, keyvals...)
}

// Warn passes through to the underlying logger
func (l *TxErrorLoggerWrapper) Warn(msg string, keyvals ...interface{}) {
	l.logger.Warn(msg, keyvals...)
}

// With passes through to the underlying logger
func (l *TxErrorLoggerWrapper) With(keyvals ...interface{}) log.Logger {
	return &TxErrorLoggerWrapper{logger: l.logger.With(keyvals...)}
}

// Impl returns the underlying logger implementation
func (l *TxErrorLoggerWrapper) Impl() any {
	return l.logger.Impl()
}
