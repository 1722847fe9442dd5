package upgrades

import (
	"github.com/astriaorg/astria-sequencer/pkg/address"
	"github.com/astriaorg/astria-sequencer/pkg/pricefeed"
)

type borshProvider struct {
	Name           string
	OffChainTicker string
	Invert         bool
}

type borshMarket struct {
	Base             string
	Quote            string
	Decimals         uint64
	MinProviderCount uint64
	Enabled          bool
	Metadata         string
	Providers        []borshProvider
}

type borshPrice struct {
	Lo                 uint64
	Hi                 int64
	BlockTimestampNano int64
	BlockHeight        uint64
}

type borshPair struct {
	Base  string
	Quote string
	Price *borshPrice
	Nonce uint64
	ID    uint64
}

type borshGenesis struct {
	Markets     []borshMarket
	Authorities [][address.Length]byte
	Admin       [address.Length]byte
	Pairs       []borshPair
	NextID      uint64
}

func newBorshGenesis(g pricefeed.Genesis) borshGenesis {
	out := borshGenesis{
		Markets:     make([]borshMarket, 0, len(g.MarketMap.MarketMap.Markets)),
		Authorities: make([][address.Length]byte, 0, len(g.MarketMap.Params.MarketAuthorities)),
		Admin:       g.MarketMap.Params.Admin.Bytes(),
		Pairs:       make([]borshPair, 0, len(g.Oracle.CurrencyPairs)),
		NextID:      uint64(g.Oracle.NextID),
	}
	for _, m := range g.MarketMap.MarketMap.Markets {
		bm := borshMarket{
			Base:             m.Pair.Base,
			Quote:            m.Pair.Quote,
			Decimals:         m.Decimals,
			MinProviderCount: m.MinProviderCount,
			Enabled:          m.Enabled,
			Metadata:         m.Metadata,
			Providers:        make([]borshProvider, 0, len(m.Providers)),
		}
		for _, p := range m.Providers {
			bm.Providers = append(bm.Providers, borshProvider(p))
		}
		out.Markets = append(out.Markets, bm)
	}
	for _, a := range g.MarketMap.Params.MarketAuthorities {
		out.Authorities = append(out.Authorities, a.Bytes())
	}
	for _, p := range g.Oracle.CurrencyPairs {
		bp := borshPair{Base: p.Pair.Base, Quote: p.Pair.Quote, Nonce: p.Nonce, ID: uint64(p.ID)}
		if p.Price != nil {
			bp.Price = &borshPrice{
				Lo:                 p.Price.Price.Lo,
				Hi:                 p.Price.Price.Hi,
				BlockTimestampNano: p.Price.BlockTimestampNano,
				BlockHeight:        p.Price.BlockHeight,
			}
		}
		out.Pairs = append(out.Pairs, bp)
	}
	return out
}
