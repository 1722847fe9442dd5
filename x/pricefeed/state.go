// Package pricefeed owns the market map and the oracle. The market map says
// which pairs are priced and from where; the oracle holds the pair ids and the
// latest price of each pair, written from validator vote extensions.
package pricefeed

import (
	"sort"
	"strconv"
	"strings"

	errorsmod "cosmossdk.io/errors"

	"github.com/astriaorg/astria-sequencer/pkg/address"
	"github.com/astriaorg/astria-sequencer/pkg/pricefeed"
	"github.com/astriaorg/astria-sequencer/pkg/storage"
	"github.com/astriaorg/astria-sequencer/pkg/storedvalue"
)

const ModuleName = "price_feed"

const (
	marketMapKey            = "price_feed/market_map"
	marketMapParamsKey      = "price_feed/market_map/params"
	marketMapLastUpdatedKey = "price_feed/market_map/last_updated"

	pairStatePrefix = "price_feed/oracle/pair/"
	pairToIDPrefix  = "price_feed/oracle/pair_to_id/"
	idToPairPrefix  = "price_feed/oracle/id_to_pair/"
	nextIDKey       = "price_feed/oracle/next_id"
	numPairsKey     = "price_feed/oracle/num_pairs"
)

var (
	ErrNotAuthorized      = errorsmod.Register(ModuleName, 2, "signer may not change the price feed")
	ErrPairExists         = errorsmod.Register(ModuleName, 3, "currency pair already added")
	ErrUnknownPair        = errorsmod.Register(ModuleName, 4, "currency pair not found")
	ErrMarketMapNotSet    = errorsmod.Register(ModuleName, 5, "market map not found")
	ErrMarketExists       = errorsmod.Register(ModuleName, 6, "market already exists")
	ErrUnknownMarket      = errorsmod.Register(ModuleName, 7, "market not found in market map")
	ErrParamsNotSet       = errorsmod.Register(ModuleName, 8, "market map params not found")
	ErrInvalidExtension   = errorsmod.Register(ModuleName, 9, "invalid oracle vote extension")
	ErrCounterOverflow    = errorsmod.Register(ModuleName, 10, "currency pair counter overflow")
	ErrInvalidGenesisPair = errorsmod.Register(ModuleName, 11, "invalid currency pair genesis")
)

func pairStateKey(p pricefeed.CurrencyPair) string { return pairStatePrefix + p.String() + "/state" }
func pairToIDKey(p pricefeed.CurrencyPair) string  { return pairToIDPrefix + p.String() }
func idToPairKey(id pricefeed.CurrencyPairID) string {
	return idToPairPrefix + strconv.FormatUint(uint64(id), 10)
}

func marketToStored(m pricefeed.Market) storedvalue.Market {
	providers := make([]storedvalue.ProviderConfig, len(m.Providers))
	for i, p := range m.Providers {
		providers[i] = storedvalue.ProviderConfig{Name: p.Name, OffChainTicker: p.OffChainTicker, Invert: p.Invert}
	}
	return storedvalue.Market{
		Base:             m.Pair.Base,
		Quote:            m.Pair.Quote,
		Decimals:         m.Decimals,
		MinProviderCount: m.MinProviderCount,
		Enabled:          m.Enabled,
		Metadata:         m.Metadata,
		Providers:        providers,
	}
}

func marketFromStored(m storedvalue.Market) pricefeed.Market {
	providers := make([]pricefeed.ProviderConfig, len(m.Providers))
	for i, p := range m.Providers {
		providers[i] = pricefeed.ProviderConfig{Name: p.Name, OffChainTicker: p.OffChainTicker, Invert: p.Invert}
	}
	return pricefeed.Market{
		Pair:             pricefeed.CurrencyPair{Base: m.Base, Quote: m.Quote},
		Decimals:         m.Decimals,
		MinProviderCount: m.MinProviderCount,
		Enabled:          m.Enabled,
		Metadata:         m.Metadata,
		Providers:        providers,
	}
}

// PutMarketMap stores mm with its markets sorted by pair.
func PutMarketMap(w storage.Writer, mm pricefeed.MarketMap) error {
	markets := append([]pricefeed.Market(nil), mm.Markets...)
	sort.Slice(markets, func(i, j int) bool { return markets[i].Pair.String() < markets[j].Pair.String() })
	stored := storedvalue.MarketMap{Markets: make([]storedvalue.Market, len(markets))}
	for i, m := range markets {
		stored.Markets[i] = marketToStored(m)
	}
	return storage.PutValue(w, marketMapKey, stored)
}

func GetMarketMap(r storage.Reader) (pricefeed.MarketMap, bool, error) {
	stored, found, err := storage.GetValue[storedvalue.MarketMap](r, marketMapKey)
	if err != nil || !found {
		return pricefeed.MarketMap{}, found, err
	}
	mm := pricefeed.MarketMap{Markets: make([]pricefeed.Market, len(stored.Markets))}
	for i, m := range stored.Markets {
		mm.Markets[i] = marketFromStored(m)
	}
	return mm, true, nil
}

func PutMarketMapParams(w storage.Writer, p pricefeed.MarketMapParams) error {
	stored := storedvalue.MarketMapParams{
		MarketAuthorities: make([][20]byte, len(p.MarketAuthorities)),
		Admin:             p.Admin.Bytes(),
	}
	for i, a := range p.MarketAuthorities {
		stored.MarketAuthorities[i] = a.Bytes()
	}
	return storage.PutValue(w, marketMapParamsKey, stored)
}

// GetMarketMapParams returns the params with addresses rendered under the
// base prefix.
func GetMarketMapParams(r storage.Reader, prefix string) (pricefeed.MarketMapParams, bool, error) {
	stored, found, err := storage.GetValue[storedvalue.MarketMapParams](r, marketMapParamsKey)
	if err != nil || !found {
		return pricefeed.MarketMapParams{}, found, err
	}
	p := pricefeed.MarketMapParams{
		MarketAuthorities: make([]address.Address, len(stored.MarketAuthorities)),
		Admin:             address.New(prefix, stored.Admin),
	}
	for i, a := range stored.MarketAuthorities {
		p.MarketAuthorities[i] = address.New(prefix, a)
	}
	return p, true, nil
}

func PutMarketMapLastUpdated(w storage.Writer, height uint64) error {
	return storage.PutValue(w, marketMapLastUpdatedKey, storedvalue.BlockHeight{Value: height})
}

// MarketMapLastUpdated is the height of the last market map change, 0 if
// it never changed.
func MarketMapLastUpdated(r storage.Reader) (uint64, error) {
	v, _, err := storage.GetValue[storedvalue.BlockHeight](r, marketMapLastUpdatedKey)
	return v.Value, err
}

func getCount(r storage.Reader, key string) (uint64, error) {
	v, _, err := storage.GetValue[storedvalue.Count](r, key)
	return v.Value, err
}

func NextPairID(r storage.Reader) (pricefeed.CurrencyPairID, error) {
	n, err := getCount(r, nextIDKey)
	return pricefeed.CurrencyPairID(n), err
}

func putNextPairID(w storage.Writer, id pricefeed.CurrencyPairID) error {
	return storage.PutValue(w, nextIDKey, storedvalue.Count{Value: uint64(id)})
}

func NumPairs(r storage.Reader) (uint64, error) { return getCount(r, numPairsKey) }

func putNumPairs(w storage.Writer, n uint64) error {
	return storage.PutValue(w, numPairsKey, storedvalue.Count{Value: n})
}

// PairID returns the id of p and whether p is known.
func PairID(r storage.Reader, p pricefeed.CurrencyPair) (pricefeed.CurrencyPairID, bool, error) {
	v, found, err := storage.GetValue[storedvalue.CurrencyPairID](r, pairToIDKey(p))
	return pricefeed.CurrencyPairID(v.Value), found, err
}

// PairByID is the reverse of PairID.
func PairByID(r storage.Reader, id pricefeed.CurrencyPairID) (pricefeed.CurrencyPair, bool, error) {
	v, found, err := storage.GetValue[storedvalue.CurrencyPair](r, idToPairKey(id))
	return pricefeed.CurrencyPair{Base: v.Base, Quote: v.Quote}, found, err
}

func stateToStored(s pricefeed.CurrencyPairState) storedvalue.CurrencyPairState {
	stored := storedvalue.CurrencyPairState{Nonce: s.Nonce, ID: uint64(s.ID)}
	if s.Price != nil {
		stored.HasPrice = true
		stored.Price = storedvalue.QuotePrice{
			Price:              storedvalue.I128{Lo: s.Price.Price.Lo, Hi: s.Price.Price.Hi},
			BlockTimestampNano: s.Price.BlockTimestampNano,
			BlockHeight:        s.Price.BlockHeight,
		}
	}
	return stored
}

func stateFromStored(s storedvalue.CurrencyPairState) pricefeed.CurrencyPairState {
	out := pricefeed.CurrencyPairState{Nonce: s.Nonce, ID: pricefeed.CurrencyPairID(s.ID)}
	if s.HasPrice {
		out.Price = &pricefeed.QuotePrice{
			Price:              pricefeed.Price{Lo: s.Price.Price.Lo, Hi: s.Price.Price.Hi},
			BlockTimestampNano: s.Price.BlockTimestampNano,
			BlockHeight:        s.Price.BlockHeight,
		}
	}
	return out
}

// PutPairState writes the state of p and its id indexes.
func PutPairState(w storage.Writer, p pricefeed.CurrencyPair, s pricefeed.CurrencyPairState) error {
	if err := storage.PutValue(w, pairStateKey(p), stateToStored(s)); err != nil {
		return err
	}
	if err := storage.PutValue(w, pairToIDKey(p), storedvalue.CurrencyPairID{Value: uint64(s.ID)}); err != nil {
		return err
	}
	return storage.PutValue(w, idToPairKey(s.ID), storedvalue.CurrencyPair{Base: p.Base, Quote: p.Quote})
}

func PairState(r storage.Reader, p pricefeed.CurrencyPair) (pricefeed.CurrencyPairState, bool, error) {
	v, found, err := storage.GetValue[storedvalue.CurrencyPairState](r, pairStateKey(p))
	if err != nil || !found {
		return pricefeed.CurrencyPairState{}, found, err
	}
	return stateFromStored(v), true, nil
}

// addPair assigns the next id to p.
func addPair(w storage.Writer, p pricefeed.CurrencyPair) error {
	if _, found, err := PairID(w, p); err != nil {
		return err
	} else if found {
		return errorsmod.Wrap(ErrPairExists, p.String())
	}
	next, err := NextPairID(w)
	if err != nil {
		return err
	}
	num, err := NumPairs(w)
	if err != nil {
		return err
	}
	if next == ^pricefeed.CurrencyPairID(0) || num == ^uint64(0) {
		return ErrCounterOverflow
	}
	if err := PutPairState(w, p, pricefeed.CurrencyPairState{ID: next}); err != nil {
		return err
	}
	if err := putNextPairID(w, next+1); err != nil {
		return err
	}
	return putNumPairs(w, num+1)
}

// removePair drops p and its indexes. Its id is not reused.
func removePair(w storage.Writer, p pricefeed.CurrencyPair) error {
	id, found, err := PairID(w, p)
	if err != nil {
		return err
	}
	if !found {
		return errorsmod.Wrap(ErrUnknownPair, p.String())
	}
	num, err := NumPairs(w)
	if err != nil {
		return err
	}
	if num == 0 {
		return ErrCounterOverflow
	}
	w.Delete(pairToIDKey(p))
	w.Delete(idToPairKey(id))
	w.Delete(pairStateKey(p))
	return putNumPairs(w, num-1)
}

// PairWithID is a known pair and its id.
type PairWithID struct {
	Pair pricefeed.CurrencyPair
	ID   pricefeed.CurrencyPairID
}

// Pairs lists every known pair ordered by pair.
func Pairs(r storage.Reader) ([]PairWithID, error) {
	var (
		out    []PairWithID
		decErr error
	)
	err := r.Iterate(pairToIDPrefix, func(key string, value []byte) bool {
		pair, err := pricefeed.ParseCurrencyPair(strings.TrimPrefix(key, pairToIDPrefix))
		if err != nil {
			decErr = err
			return false
		}
		id, err := storedvalue.Deserialize[storedvalue.CurrencyPairID](value)
		if err != nil {
			decErr = err
			return false
		}
		out = append(out, PairWithID{Pair: pair, ID: pricefeed.CurrencyPairID(id.Value)})
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, decErr
}

// PutPrice records price for p and bumps the pair's nonce.
func PutPrice(w storage.Writer, p pricefeed.CurrencyPair, price pricefeed.QuotePrice) error {
	s, found, err := PairState(w, p)
	if err != nil {
		return err
	}
	if !found {
		return errorsmod.Wrap(ErrUnknownPair, p.String())
	}
	if s.Nonce == ^uint64(0) {
		return errorsmod.Wrap(ErrCounterOverflow, "nonce")
	}
	s.Price = &price
	s.Nonce++
	return PutPairState(w, p, s)
}
