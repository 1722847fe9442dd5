package sequencerblock

import (
	"fmt"

	"github.com/astriaorg/astria-sequencer/pkg/address"
	"github.com/astriaorg/astria-sequencer/pkg/amount"
	"github.com/astriaorg/astria-sequencer/pkg/asset"
	"github.com/astriaorg/astria-sequencer/pkg/rollup"
	"github.com/astriaorg/astria-sequencer/pkg/transaction"
	"github.com/astriaorg/astria-sequencer/pkg/wire"
)

// Deposit records funds locked in a bridge account for its rollup.
type Deposit struct {
	BridgeAddress           address.Address
	RollupID                rollup.ID
	Amount                  amount.Amount
	Asset                   asset.Denom
	DestinationChainAddress string
	SourceTransactionID     transaction.ID
	SourceActionIndex       uint64
}

func (d *Deposit) MarshalWire(e *wire.Encoder) {
	if !d.BridgeAddress.IsZero() {
		e.String(1, d.BridgeAddress.String())
	}
	e.Bytes(2, d.RollupID[:])
	e.Uint128(3, d.Amount)
	if !d.Asset.IsZero() {
		e.String(4, d.Asset.String())
	}
	e.String(5, d.DestinationChainAddress)
	e.Bytes(6, d.SourceTransactionID[:])
	e.Uint64(7, d.SourceActionIndex)
}

// depositItem is the RollupData oneof holding a deposit. It tells deposits
// apart from raw sequenced data in a rollup's item list.
type depositItem struct{ d *Deposit }

func (i depositItem) MarshalWire(e *wire.Encoder) { e.Message(2, i.d) }

// EncodeDepositItem returns the rollup item carrying d.
func EncodeDepositItem(d *Deposit) []byte { return wire.Marshal(depositItem{d}) }

// DecodeDepositItem is the inverse of EncodeDepositItem.
func DecodeDepositItem(b []byte) (*Deposit, error) {
	raw, err := singleField(b, 2)
	if err != nil {
		return nil, err
	}
	return decodeDeposit(raw)
}

func decodeDeposit(b []byte) (*Deposit, error) {
	d := &Deposit{}
	err := wire.Decode(b, func(f wire.Field) (err error) {
		switch f.Num {
		case 1:
			var s string
			if s, err = f.AsString(); err != nil {
				return err
			}
			d.BridgeAddress, err = address.Parse(s)
		case 2:
			var raw []byte
			if raw, err = f.AsBytes(); err != nil {
				return err
			}
			d.RollupID, err = rollup.IDFromSlice(raw)
		case 3:
			d.Amount, err = f.AsUint128()
		case 4:
			var s string
			if s, err = f.AsString(); err != nil {
				return err
			}
			d.Asset, err = asset.Parse(s)
		case 5:
			d.DestinationChainAddress, err = f.AsString()
		case 6:
			var raw []byte
			if raw, err = f.AsBytes(); err != nil {
				return err
			}
			if len(raw) != len(d.SourceTransactionID) {
				return fmt.Errorf("source transaction id must be 32 bytes")
			}
			copy(d.SourceTransactionID[:], raw)
		case 7:
			d.SourceActionIndex, err = f.AsUint64()
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("decoding deposit: %w", err)
	}
	return d, nil
}
