package app

import (
	"context"

	"github.com/astriaorg/astria-sequencer/pkg/pricefeed"
)

// OracleClient returns the latest prices the node's price feed sidecar
// observed.
type OracleClient interface {
	Prices(ctx context.Context) (map[pricefeed.CurrencyPair]pricefeed.Price, error)
}
