// Package oracle queries the price feed oracle sidecar for the prices a
// validator extends its votes with.
package oracle

import (
	"context"
	"fmt"
	"sort"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/astriaorg/astria-sequencer/app/grpc/codec"
	"github.com/astriaorg/astria-sequencer/pkg/pricefeed"
	"github.com/astriaorg/astria-sequencer/pkg/wire"
)

// PricesMethod is the oracle's price query.
const PricesMethod = "/connect.oracle.v2.Oracle/Prices"

// PricesResponse maps currency pairs, as "BASE/QUOTE", to decimal prices.
type PricesResponse struct {
	Prices  map[string]string
	Version string
}

func (m *PricesResponse) MarshalWire(e *wire.Encoder) {
	keys := make([]string, 0, len(m.Prices))
	for k := range m.Prices {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		e.Message(1, priceEntry{key: k, value: m.Prices[k]})
	}
	e.String(3, m.Version)
}

func (m *PricesResponse) UnmarshalWire(b []byte) error {
	m.Prices = map[string]string{}
	return wire.Decode(b, func(f wire.Field) error {
		switch f.Num {
		case 1:
			raw, err := f.AsBytes()
			if err != nil {
				return err
			}
			var entry priceEntry
			if err := entry.unmarshal(raw); err != nil {
				return err
			}
			m.Prices[entry.key] = entry.value
		case 3:
			v, err := f.AsString()
			m.Version = v
			return err
		}
		return nil
	})
}

type priceEntry struct {
	key, value string
}

func (p priceEntry) MarshalWire(e *wire.Encoder) {
	e.String(1, p.key)
	e.String(2, p.value)
}

func (p *priceEntry) unmarshal(b []byte) error {
	return wire.Decode(b, func(f wire.Field) (err error) {
		switch f.Num {
		case 1:
			p.key, err = f.AsString()
		case 2:
			p.value, err = f.AsString()
		}
		return err
	})
}

// Client is a gRPC client of the oracle sidecar.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to the oracle at addr. The connection is established lazily.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to price feed oracle at %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Close() error { return c.conn.Close() }

// Prices returns the oracle's current prices. Pairs or prices that do not
// parse are skipped.
func (c *Client) Prices(ctx context.Context) (map[pricefeed.CurrencyPair]pricefeed.Price, error) {
	resp := &PricesResponse{}
	if err := c.conn.Invoke(ctx, PricesMethod, codec.Empty{}, resp, grpc.ForceCodec(codec.Codec{})); err != nil {
		return nil, fmt.Errorf("querying oracle prices: %w", err)
	}
	out := make(map[pricefeed.CurrencyPair]pricefeed.Price, len(resp.Prices))
	for k, v := range resp.Prices {
		pair, err := pricefeed.ParseCurrencyPair(k)
		if err != nil {
			continue
		}
		var p pricefeed.Price
		if err := p.UnmarshalText([]byte(v)); err != nil {
			continue
		}
		out[pair] = p
	}
	return out, nil
}
