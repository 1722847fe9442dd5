package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"cosmossdk.io/log"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/rs/zerolog"
)

// newLogger builds the node logger from the log settings of cfg.
func newLogger(cfg Config) (log.Logger, error) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", FlagLogLevel, err)
	}
	var out io.Writer = os.Stderr
	if cfg.ForceStdout {
		out = os.Stdout
	}
	opts := []log.Option{log.LevelOption(level), log.TimeFormatOption(time.RFC3339Nano)}
	if cfg.LogFormat == "json" {
		opts = append(opts, log.OutputJSONOption())
	} else {
		opts = append(opts, log.ColorOption(false))
	}
	return log.NewLogger(out, opts...), nil
}

// cometLogger lets CometBFT services log through the node logger.
type cometLogger struct {
	log.Logger
}

var _ cmtlog.Logger = cometLogger{}

func (l cometLogger) With(keyvals ...interface{}) cmtlog.Logger {
	return cometLogger{l.Logger.With(keyvals...)}
}
