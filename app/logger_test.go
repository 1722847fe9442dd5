package app

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"cosmossdk.io/log"
	"github.com/stretchr/testify/assert"

	apperr "github.com/astriaorg/astria-sequencer/app/errors"
)

func TestTxErrorLoggerWrapper(t *testing.T) {
	testCases := []struct {
		name        string
		msg         string
		err         error
		expectDebug bool
	}{
		{
			name:        "nonce ahead",
			msg:         msgTxExcluded,
			err:         &apperr.NonceMismatch{Expected: 1, Got: 3},
			expectDebug: true,
		},
		{
			name:        "wrapped nonce ahead",
			msg:         msgTxExcluded,
			err:         fmt.Errorf("executing: %w", &apperr.NonceMismatch{Expected: 1, Got: 3}),
			expectDebug: true,
		},
		{
			name: "stale nonce",
			msg:  msgTxExcluded,
			err:  &apperr.NonceMismatch{Expected: 3, Got: 1},
		},
		{
			name: "other failure",
			msg:  msgTxExcluded,
			err:  errors.New("insufficient funds"),
		},
		{
			name: "nonce ahead in another message",
			msg:  "check tx failed",
			err:  &apperr.NonceMismatch{Expected: 1, Got: 3},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewTxErrorLoggerWrapper(log.NewLogger(&buf, log.ColorOption(false))).With(log.ModuleKey, "app")
			logger.Info(tc.msg, "err", tc.err)

			output := buf.String()
			if tc.expectDebug {
				assert.Contains(t, output, "DBG")
				assert.NotContains(t, output, "INF")
			} else {
				assert.Contains(t, output, "INF")
			}
			assert.Contains(t, output, tc.msg)
			assert.Contains(t, output, "module=app")
		})
	}
}

func TestTxErrorLoggerWrapperPassesThrough(t *testing.T) {
	var buf bytes.Buffer
	logger := NewTxErrorLoggerWrapper(log.NewLogger(&buf, log.ColorOption(false)))

	logger.Debug("debug message")
	assert.Contains(t, buf.String(), "DBG")
	buf.Reset()
	logger.Warn("warn message")
	assert.Contains(t, buf.String(), "WRN")
	buf.Reset()
	logger.Error("error message")
	assert.Contains(t, buf.String(), "ERR")
}
