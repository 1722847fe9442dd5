// Package pricefeed holds the market map and oracle types shared by the price
// feed actions, vote extensions and genesis.
package pricefeed

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/astriaorg/astria-sequencer/pkg/address"
)

var (
	ErrInvalidCurrencyPair = errors.New("currency pair must be formatted as BASE/QUOTE")
	ErrPriceOutOfRange     = errors.New("price does not fit in 128 bits")
)

// CurrencyPair is a base/quote pair such as BTC/USD.
type CurrencyPair struct {
	Base  string `json:"base"`
	Quote string `json:"quote"`
}

func (p CurrencyPair) String() string { return p.Base + "/" + p.Quote }

// Validate checks both halves are non-empty and free of separators.
func (p CurrencyPair) Validate() error {
	if p.Base == "" || p.Quote == "" || strings.Contains(p.Base, "/") || strings.Contains(p.Quote, "/") {
		return fmt.Errorf("%w: %q", ErrInvalidCurrencyPair, p.String())
	}
	return nil
}

// ParseCurrencyPair parses "BASE/QUOTE".
func ParseCurrencyPair(s string) (CurrencyPair, error) {
	base, quote, ok := strings.Cut(s, "/")
	p := CurrencyPair{Base: base, Quote: quote}
	if !ok {
		return CurrencyPair{}, fmt.Errorf("%w: %q", ErrInvalidCurrencyPair, s)
	}
	return p, p.Validate()
}

// CurrencyPairID is the stable numeric id assigned to a pair. Ids are never
// reused once the pair is removed.
type CurrencyPairID uint64

// Price is a signed 128-bit price in two's complement words.
type Price struct {
	Lo uint64
	Hi int64
}

// PriceFromInt64 widens v.
func PriceFromInt64(v int64) Price {
	p := Price{Lo: uint64(v)}
	if v < 0 {
		p.Hi = -1
	}
	return p
}

// PriceFromBig converts b, failing if it does not fit in 128 bits.
func PriceFromBig(b *big.Int) (Price, error) {
	if b.BitLen() > 127 {
		return Price{}, ErrPriceOutOfRange
	}
	mod := new(big.Int).Lsh(big.NewInt(1), 128)
	u := new(big.Int).Set(b)
	if u.Sign() < 0 {
		u.Add(u, mod)
	}
	lo := new(big.Int).And(u, new(big.Int).SetUint64(^uint64(0))).Uint64()
	hi := new(big.Int).Rsh(u, 64).Uint64()
	return Price{Lo: lo, Hi: int64(hi)}, nil
}

// Big returns the price as a big integer.
func (p Price) Big() *big.Int {
	hi := big.NewInt(p.Hi)
	hi.Lsh(hi, 64)
	return hi.Add(hi, new(big.Int).SetUint64(p.Lo))
}

// Cmp compares two prices as signed integers.
func (p Price) Cmp(other Price) int {
	switch {
	case p.Hi < other.Hi:
		return -1
	case p.Hi > other.Hi:
		return 1
	case p.Lo < other.Lo:
		return -1
	case p.Lo > other.Lo:
		return 1
	}
	return 0
}

func (p Price) String() string { return p.Big().String() }

func (p Price) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *Price) UnmarshalText(text []byte) error {
	b, ok := new(big.Int).SetString(string(text), 10)
	if !ok {
		return fmt.Errorf("invalid price %q", string(text))
	}
	parsed, err := PriceFromBig(b)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// QuotePrice is a price stamped with the block that recorded it.
type QuotePrice struct {
	Price              Price  `json:"price"`
	BlockTimestampNano int64  `json:"block_timestamp"`
	BlockHeight        uint64 `json:"block_height"`
}

// CurrencyPairState is the oracle's record for a pair. Nonce increments on
// every price write.
type CurrencyPairState struct {
	Price *QuotePrice    `json:"price,omitempty"`
	Nonce uint64         `json:"nonce"`
	ID    CurrencyPairID `json:"id"`
}

// ProviderConfig names an off-chain source for a market.
type ProviderConfig struct {
	Name           string `json:"name"`
	OffChainTicker string `json:"off_chain_ticker"`
	Invert         bool   `json:"invert,omitempty"`
}

// Market describes how a pair is priced.
type Market struct {
	Pair             CurrencyPair     `json:"currency_pair"`
	Decimals         uint64           `json:"decimals"`
	MinProviderCount uint64           `json:"min_provider_count"`
	Enabled          bool             `json:"enabled"`
	Metadata         string           `json:"metadata_json,omitempty"`
	Providers        []ProviderConfig `json:"provider_configs"`
}

// Validate checks the market is internally consistent.
func (m Market) Validate() error {
	if err := m.Pair.Validate(); err != nil {
		return err
	}
	if m.MinProviderCount > uint64(len(m.Providers)) {
		return fmt.Errorf("market %s requires %d providers but lists %d", m.Pair, m.MinProviderCount, len(m.Providers))
	}
	for _, p := range m.Providers {
		if p.Name == "" || p.OffChainTicker == "" {
			return fmt.Errorf("market %s has a provider without name or ticker", m.Pair)
		}
	}
	return nil
}

// MarketMap is the set of markets keyed by their pair, kept sorted by pair.
type MarketMap struct {
	Markets []Market `json:"markets"`
}

// Find returns the index of the market for pair or -1.
func (m MarketMap) Find(pair CurrencyPair) int {
	for i, market := range m.Markets {
		if market.Pair == pair {
			return i
		}
	}
	return -1
}

// MarketMapParams gates who may change the market map.
type MarketMapParams struct {
	MarketAuthorities []address.Address `json:"market_authorities"`
	Admin             address.Address   `json:"admin"`
}

// IsAuthority reports whether addr may change markets.
func (p MarketMapParams) IsAuthority(addr [address.Length]byte) bool {
	for _, a := range p.MarketAuthorities {
		if a.Bytes() == addr {
			return true
		}
	}
	return false
}

// CurrencyPairGenesis seeds one oracle pair.
type CurrencyPairGenesis struct {
	Pair CurrencyPair `json:"currency_pair"`
	CurrencyPairState
}

// OracleGenesis seeds the oracle.
type OracleGenesis struct {
	CurrencyPairs []CurrencyPairGenesis `json:"currency_pair_genesis"`
	NextID        CurrencyPairID        `json:"next_id"`
}

// MarketMapGenesis seeds the market map.
type MarketMapGenesis struct {
	MarketMap MarketMap       `json:"market_map"`
	Params    MarketMapParams `json:"params"`
}

// Genesis is the price feed section of the app genesis and of the
// price feed upgrade change.
type Genesis struct {
	MarketMap MarketMapGenesis `json:"market_map"`
	Oracle    OracleGenesis    `json:"oracle"`
}
