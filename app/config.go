package app

import (
	"time"

	"github.com/astriaorg/astria-sequencer/pkg/mempool"
)

// Config holds the node local knobs of the app. None of them affect
// consensus.
type Config struct {
	Mempool mempool.Config
	// OracleTimeout bounds the price query made while extending a vote.
	OracleTimeout time.Duration
	// Debug keeps the full error text of internal errors in CheckTx and
	// query responses.
	Debug bool
}

// DefaultConfig returns the config a node runs with unless overridden.
func DefaultConfig() Config {
	return Config{
		Mempool:       mempool.DefaultConfig(),
		OracleTimeout: time.Second,
	}
}
