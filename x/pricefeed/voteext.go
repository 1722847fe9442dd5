package pricefeed

import (
	"math/big"
	"sort"

	errorsmod "cosmossdk.io/errors"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/astriaorg/astria-sequencer/pkg/pricefeed"
	"github.com/astriaorg/astria-sequencer/pkg/storage"
	"github.com/astriaorg/astria-sequencer/pkg/wire"
	"github.com/astriaorg/astria-sequencer/x/meta"
)

const (
	fieldPrices   protowire.Number = 1
	fieldEntryKey protowire.Number = 1
	fieldEntryVal protowire.Number = 2

	// maxPriceBytes bounds the big endian magnitude of an extension price.
	maxPriceBytes = 16
)

// VoteExtension maps pair ids to the prices a validator observed. On the
// wire it is a protobuf map<uint64, bytes> holding big endian magnitudes.
type VoteExtension map[pricefeed.CurrencyPairID]pricefeed.Price

type priceEntry struct {
	id    pricefeed.CurrencyPairID
	price pricefeed.Price
}

func (p priceEntry) MarshalWire(e *wire.Encoder) {
	e.Uint64(fieldEntryKey, uint64(p.id))
	e.Bytes(fieldEntryVal, p.price.Big().Bytes())
}

// MarshalWire writes entries in ascending id order so equal extensions
// encode to equal bytes.
func (v VoteExtension) MarshalWire(e *wire.Encoder) {
	ids := make([]pricefeed.CurrencyPairID, 0, len(v))
	for id := range v {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		e.Message(fieldPrices, priceEntry{id: id, price: v[id]})
	}
}

func (v VoteExtension) Encode() []byte { return wire.Marshal(v) }

// DecodeVoteExtension parses bz. Negative or oversized prices and repeated
// ids are rejected.
func DecodeVoteExtension(bz []byte) (VoteExtension, error) {
	out := VoteExtension{}
	err := wire.Decode(bz, func(f wire.Field) error {
		if f.Num != fieldPrices {
			return nil
		}
		entry, err := f.AsBytes()
		if err != nil {
			return err
		}
		var (
			id  uint64
			raw []byte
		)
		err = wire.Decode(entry, func(inner wire.Field) error {
			var err error
			switch inner.Num {
			case fieldEntryKey:
				id, err = inner.AsUint64()
			case fieldEntryVal:
				raw, err = inner.AsBytes()
			}
			return err
		})
		if err != nil {
			return err
		}
		if len(raw) > maxPriceBytes {
			return errorsmod.Wrapf(ErrInvalidExtension, "price for id %d holds %d bytes", id, len(raw))
		}
		price, err := pricefeed.PriceFromBig(new(big.Int).SetBytes(raw))
		if err != nil {
			return errorsmod.Wrapf(ErrInvalidExtension, "price for id %d: %v", id, err)
		}
		if _, dup := out[pricefeed.CurrencyPairID(id)]; dup {
			return errorsmod.Wrapf(ErrInvalidExtension, "id %d repeated", id)
		}
		out[pricefeed.CurrencyPairID(id)] = price
		return nil
	})
	if err != nil {
		return nil, errorsmod.Wrap(ErrInvalidExtension, err.Error())
	}
	return out, nil
}

// ValidateVoteExtension checks bz decodes and carries at most one price per
// known pair.
func ValidateVoteExtension(r storage.Reader, bz []byte) error {
	ext, err := DecodeVoteExtension(bz)
	if err != nil {
		return err
	}
	num, err := NumPairs(r)
	if err != nil {
		return err
	}
	if uint64(len(ext)) > num {
		return errorsmod.Wrapf(ErrInvalidExtension, "%d prices for %d currency pairs", len(ext), num)
	}
	return nil
}

// BuildVoteExtension keys observed prices by pair id, dropping pairs the
// oracle does not track.
func BuildVoteExtension(r storage.Reader, observed map[pricefeed.CurrencyPair]pricefeed.Price) (VoteExtension, error) {
	ext := VoteExtension{}
	for pair, price := range observed {
		if price.Hi < 0 {
			continue
		}
		id, found, err := PairID(r, pair)
		if err != nil {
			return nil, err
		}
		if found {
			ext[id] = price
		}
	}
	return ext, nil
}

// Vote is one validator's extension weighted by its voting power.
type Vote struct {
	Power     int64
	Extension []byte
}

type weighted struct {
	price pricefeed.Price
	power int64
}

// AggregatePrices computes the stake weighted median of every pair reported
// by validators holding at least two thirds of the total power. Undecodable
// extensions count toward the total but report nothing.
func AggregatePrices(votes []Vote) map[pricefeed.CurrencyPairID]pricefeed.Price {
	var total int64
	reports := map[pricefeed.CurrencyPairID][]weighted{}
	for _, v := range votes {
		if v.Power <= 0 {
			continue
		}
		total += v.Power
		ext, err := DecodeVoteExtension(v.Extension)
		if err != nil {
			continue
		}
		for id, price := range ext {
			reports[id] = append(reports[id], weighted{price: price, power: v.Power})
		}
	}

	out := make(map[pricefeed.CurrencyPairID]pricefeed.Price, len(reports))
	for id, ws := range reports {
		var reported int64
		for _, w := range ws {
			reported += w.power
		}
		if reported*3 < total*2 {
			continue
		}
		out[id] = weightedMedian(ws, reported)
	}
	return out
}

// weightedMedian returns the lowest price at which the cumulative power
// reaches half of total.
func weightedMedian(ws []weighted, total int64) pricefeed.Price {
	sort.SliceStable(ws, func(i, j int) bool { return ws[i].price.Cmp(ws[j].price) < 0 })
	var acc int64
	for _, w := range ws {
		acc += w.power
		if acc*2 >= total {
			return w.price
		}
	}
	return ws[len(ws)-1].price
}

// ApplyPrices writes the aggregated prices stamped with the current block.
// Ids of pairs removed since the votes were cast are skipped.
func ApplyPrices(w storage.Writer, prices map[pricefeed.CurrencyPairID]pricefeed.Price) error {
	height, err := meta.BlockHeight(w)
	if err != nil {
		return err
	}
	ts, err := meta.BlockTimestamp(w)
	if err != nil {
		return err
	}
	ids := make([]pricefeed.CurrencyPairID, 0, len(prices))
	for id := range prices {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		pair, found, err := PairByID(w, id)
		if err != nil {
			return err
		}
		if !found {
			continue
		}
		quote := pricefeed.QuotePrice{Price: prices[id], BlockTimestampNano: ts.UnixNano(), BlockHeight: height}
		if err := PutPrice(w, pair, quote); err != nil {
			return err
		}
	}
	return nil
}
