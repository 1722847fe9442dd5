package actions

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/astriaorg/astria-sequencer/pkg/address"
	"github.com/astriaorg/astria-sequencer/pkg/asset"
	"github.com/astriaorg/astria-sequencer/pkg/pricefeed"
	"github.com/astriaorg/astria-sequencer/pkg/rollup"
	"github.com/astriaorg/astria-sequencer/pkg/wire"
)

// kindFields maps each kind to its field number in the Action oneof.
var kindFields = map[Kind]protowire.Number{
	KindTransfer:              1,
	KindRollupDataSubmission:  2,
	KindInitBridgeAccount:     11,
	KindBridgeLock:            12,
	KindBridgeUnlock:          13,
	KindBridgeSudoChange:      14,
	KindBridgeTransfer:        15,
	KindIbcRelay:              21,
	KindIcs20Withdrawal:       22,
	KindSudoAddressChange:     50,
	KindValidatorUpdate:       51,
	KindIbcRelayerChange:      52,
	KindFeeAssetChange:        53,
	KindFeeChange:             55,
	KindIbcSudoChange:         56,
	KindCurrencyPairsChange:   71,
	KindMarketsChange:         72,
	KindUpdateMarketMapParams: 73,
}

var decoders = map[protowire.Number]func([]byte) (Action, error){
	1:  decodeTransfer,
	2:  decodeRollupDataSubmission,
	11: decodeInitBridgeAccount,
	12: decodeBridgeLock,
	13: decodeBridgeUnlock,
	14: decodeBridgeSudoChange,
	15: decodeBridgeTransfer,
	21: decodeIbcRelay,
	22: decodeIcs20Withdrawal,
	50: decodeSudoAddressChange,
	51: decodeValidatorUpdate,
	52: decodeIbcRelayerChange,
	53: decodeFeeAssetChange,
	55: decodeFeeChange,
	56: decodeIbcSudoChange,
	71: decodeCurrencyPairsChange,
	72: decodeMarketsChange,
	73: decodeUpdateMarketMapParams,
}

type envelope struct{ action Action }

func (e envelope) MarshalWire(enc *wire.Encoder) {
	enc.Message(kindFields[e.action.Kind()], e.action)
}

// Wrap returns the Action oneof message holding a.
func Wrap(a Action) wire.Marshaler { return envelope{a} }

// Marshal encodes a as an Action oneof message.
func Marshal(a Action) []byte { return wire.Marshal(envelope{a}) }

// Unmarshal decodes an Action oneof message. Exactly one variant must be set.
func Unmarshal(b []byte) (Action, error) {
	var out Action
	err := wire.Decode(b, func(f wire.Field) error {
		decode, ok := decoders[f.Num]
		if !ok {
			return fmt.Errorf("%w: field %d", ErrUnknownAction, f.Num)
		}
		if out != nil {
			return fmt.Errorf("%w: more than one variant set", ErrUnknownVariant)
		}
		if f.Type != protowire.BytesType {
			return wire.ErrUnexpectedWireType
		}
		var err error
		out, err = decode(f.Bytes)
		return err
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, fmt.Errorf("%w: no variant set", ErrUnknownAction)
	}
	return out, nil
}

func decodeAs(a Action, b []byte, fn func(wire.Field) error) (Action, error) {
	if err := wire.Decode(b, fn); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", a.Kind(), err)
	}
	return a, nil
}

func putAddress(e *wire.Encoder, num protowire.Number, a address.Address) {
	if !a.IsZero() {
		e.String(num, a.String())
	}
}

func putOptionalAddress(e *wire.Encoder, num protowire.Number, a *address.Address) {
	if a != nil {
		putAddress(e, num, *a)
	}
}

func putDenom(e *wire.Encoder, num protowire.Number, d asset.Denom) {
	if !d.IsZero() {
		e.String(num, d.String())
	}
}

func addressField(f wire.Field) (address.Address, error) {
	s, err := f.AsString()
	if err != nil {
		return address.Address{}, err
	}
	return address.Parse(s)
}

func optionalAddressField(f wire.Field) (*address.Address, error) {
	a, err := addressField(f)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func denomField(f wire.Field) (asset.Denom, error) {
	s, err := f.AsString()
	if err != nil {
		return asset.Denom{}, err
	}
	return asset.Parse(s)
}

func rollupField(f wire.Field) (rollup.ID, error) {
	b, err := f.AsBytes()
	if err != nil {
		return rollup.ID{}, err
	}
	return rollup.IDFromSlice(b)
}

func (a *Transfer) MarshalWire(e *wire.Encoder) {
	putAddress(e, 1, a.To)
	e.Uint128(2, a.Amount)
	putDenom(e, 3, a.Asset)
}

func decodeTransfer(b []byte) (Action, error) {
	a := &Transfer{}
	return decodeAs(a, b, func(f wire.Field) (err error) {
		switch f.Num {
		case 1:
			a.To, err = addressField(f)
		case 2:
			a.Amount, err = f.AsUint128()
		case 3:
			a.Asset, err = denomField(f)
		}
		return err
	})
}

func (a *RollupDataSubmission) MarshalWire(e *wire.Encoder) {
	e.Bytes(1, a.RollupID[:])
	e.Bytes(2, a.Data)
}

func decodeRollupDataSubmission(b []byte) (Action, error) {
	a := &RollupDataSubmission{}
	return decodeAs(a, b, func(f wire.Field) (err error) {
		switch f.Num {
		case 1:
			a.RollupID, err = rollupField(f)
		case 2:
			a.Data, err = f.AsBytes()
		}
		return err
	})
}

func (a *InitBridgeAccount) MarshalWire(e *wire.Encoder) {
	e.Bytes(1, a.RollupID[:])
	putDenom(e, 2, a.Asset)
	putOptionalAddress(e, 3, a.SudoAddress)
	putOptionalAddress(e, 4, a.WithdrawerAddress)
}

func decodeInitBridgeAccount(b []byte) (Action, error) {
	a := &InitBridgeAccount{}
	return decodeAs(a, b, func(f wire.Field) (err error) {
		switch f.Num {
		case 1:
			a.RollupID, err = rollupField(f)
		case 2:
			a.Asset, err = denomField(f)
		case 3:
			a.SudoAddress, err = optionalAddressField(f)
		case 4:
			a.WithdrawerAddress, err = optionalAddressField(f)
		}
		return err
	})
}

func (a *BridgeLock) MarshalWire(e *wire.Encoder) {
	putAddress(e, 1, a.To)
	e.Uint128(2, a.Amount)
	putDenom(e, 3, a.Asset)
	e.String(4, a.DestinationChainAddress)
}

func decodeBridgeLock(b []byte) (Action, error) {
	a := &BridgeLock{}
	return decodeAs(a, b, func(f wire.Field) (err error) {
		switch f.Num {
		case 1:
			a.To, err = addressField(f)
		case 2:
			a.Amount, err = f.AsUint128()
		case 3:
			a.Asset, err = denomField(f)
		case 4:
			a.DestinationChainAddress, err = f.AsString()
		}
		return err
	})
}

func (a *BridgeUnlock) MarshalWire(e *wire.Encoder) {
	putAddress(e, 1, a.To)
	e.Uint128(2, a.Amount)
	putAddress(e, 3, a.BridgeAddress)
	e.String(4, a.Memo)
	e.Uint64(5, a.RollupBlockNumber)
	e.String(6, a.RollupWithdrawalEventID)
}

func decodeBridgeUnlock(b []byte) (Action, error) {
	a := &BridgeUnlock{}
	return decodeAs(a, b, func(f wire.Field) (err error) {
		switch f.Num {
		case 1:
			a.To, err = addressField(f)
		case 2:
			a.Amount, err = f.AsUint128()
		case 3:
			a.BridgeAddress, err = addressField(f)
		case 4:
			a.Memo, err = f.AsString()
		case 5:
			a.RollupBlockNumber, err = f.AsUint64()
		case 6:
			a.RollupWithdrawalEventID, err = f.AsString()
		}
		return err
	})
}

func (a *BridgeSudoChange) MarshalWire(e *wire.Encoder) {
	putAddress(e, 1, a.BridgeAddress)
	putOptionalAddress(e, 2, a.NewSudoAddress)
	putOptionalAddress(e, 3, a.NewWithdrawerAddress)
}

func decodeBridgeSudoChange(b []byte) (Action, error) {
	a := &BridgeSudoChange{}
	return decodeAs(a, b, func(f wire.Field) (err error) {
		switch f.Num {
		case 1:
			a.BridgeAddress, err = addressField(f)
		case 2:
			a.NewSudoAddress, err = optionalAddressField(f)
		case 3:
			a.NewWithdrawerAddress, err = optionalAddressField(f)
		}
		return err
	})
}

func (a *BridgeTransfer) MarshalWire(e *wire.Encoder) {
	putAddress(e, 1, a.To)
	e.Uint128(2, a.Amount)
	putAddress(e, 3, a.BridgeAddress)
	e.String(4, a.DestinationChainAddress)
	e.Uint64(5, a.RollupBlockNumber)
	e.String(6, a.RollupWithdrawalEventID)
}

func decodeBridgeTransfer(b []byte) (Action, error) {
	a := &BridgeTransfer{}
	return decodeAs(a, b, func(f wire.Field) (err error) {
		switch f.Num {
		case 1:
			a.To, err = addressField(f)
		case 2:
			a.Amount, err = f.AsUint128()
		case 3:
			a.BridgeAddress, err = addressField(f)
		case 4:
			a.DestinationChainAddress, err = f.AsString()
		case 5:
			a.RollupBlockNumber, err = f.AsUint64()
		case 6:
			a.RollupWithdrawalEventID, err = f.AsString()
		}
		return err
	})
}

type heightMsg IbcHeight

func (h heightMsg) MarshalWire(e *wire.Encoder) {
	e.Uint64(1, h.RevisionNumber)
	e.Uint64(2, h.RevisionHeight)
}

func putHeight(e *wire.Encoder, num protowire.Number, h IbcHeight) {
	e.OptionalMessage(num, heightMsg(h), !h.IsZero())
}

func heightField(f wire.Field) (IbcHeight, error) {
	var h IbcHeight
	b, err := f.AsBytes()
	if err != nil {
		return h, err
	}
	err = wire.Decode(b, func(inner wire.Field) (err error) {
		switch inner.Num {
		case 1:
			h.RevisionNumber, err = inner.AsUint64()
		case 2:
			h.RevisionHeight, err = inner.AsUint64()
		}
		return err
	})
	return h, err
}

func (a *Ics20Withdrawal) MarshalWire(e *wire.Encoder) {
	e.Uint128(1, a.Amount)
	putDenom(e, 2, a.Denom)
	e.String(3, a.DestinationChainAddress)
	putAddress(e, 4, a.ReturnAddress)
	putHeight(e, 5, a.TimeoutHeight)
	e.Uint64(6, a.TimeoutTime)
	e.String(7, a.SourceChannel)
	e.String(8, a.Memo)
	putOptionalAddress(e, 9, a.BridgeAddress)
	e.Bool(10, a.UseCompatAddress)
}

func decodeIcs20Withdrawal(b []byte) (Action, error) {
	a := &Ics20Withdrawal{}
	return decodeAs(a, b, func(f wire.Field) (err error) {
		switch f.Num {
		case 1:
			a.Amount, err = f.AsUint128()
		case 2:
			a.Denom, err = denomField(f)
		case 3:
			a.DestinationChainAddress, err = f.AsString()
		case 4:
			a.ReturnAddress, err = addressField(f)
		case 5:
			a.TimeoutHeight, err = heightField(f)
		case 6:
			a.TimeoutTime, err = f.AsUint64()
		case 7:
			a.SourceChannel, err = f.AsString()
		case 8:
			a.Memo, err = f.AsString()
		case 9:
			a.BridgeAddress, err = optionalAddressField(f)
		case 10:
			a.UseCompatAddress, err = f.AsBool()
		}
		return err
	})
}

func (a *SudoAddressChange) MarshalWire(e *wire.Encoder) {
	putAddress(e, 1, a.NewAddress)
}

func decodeSudoAddressChange(b []byte) (Action, error) {
	a := &SudoAddressChange{}
	return decodeAs(a, b, func(f wire.Field) (err error) {
		if f.Num == 1 {
			a.NewAddress, err = addressField(f)
		}
		return err
	})
}

func (a *IbcSudoChange) MarshalWire(e *wire.Encoder) {
	putAddress(e, 1, a.NewAddress)
}

func decodeIbcSudoChange(b []byte) (Action, error) {
	a := &IbcSudoChange{}
	return decodeAs(a, b, func(f wire.Field) (err error) {
		if f.Num == 1 {
			a.NewAddress, err = addressField(f)
		}
		return err
	})
}

func (a *ValidatorUpdate) MarshalWire(e *wire.Encoder) {
	e.Bytes(1, a.VerificationKey[:])
	e.Uint32(2, a.Power)
	e.String(3, a.Name)
}

func decodeValidatorUpdate(b []byte) (Action, error) {
	a := &ValidatorUpdate{}
	return decodeAs(a, b, func(f wire.Field) (err error) {
		switch f.Num {
		case 1:
			var key []byte
			if key, err = f.AsBytes(); err != nil {
				return err
			}
			if len(key) != len(a.VerificationKey) {
				return fmt.Errorf("verification key must be %d bytes, got %d", len(a.VerificationKey), len(key))
			}
			copy(a.VerificationKey[:], key)
		case 2:
			a.Power, err = f.AsUint32()
		case 3:
			a.Name, err = f.AsString()
		}
		return err
	})
}

func (a *IbcRelayerChange) MarshalWire(e *wire.Encoder) {
	if a.Op == OpAddition || a.Op == OpRemoval {
		putAddress(e, protowire.Number(a.Op), a.Address)
	}
}

func decodeIbcRelayerChange(b []byte) (Action, error) {
	a := &IbcRelayerChange{}
	return decodeAs(a, b, func(f wire.Field) (err error) {
		switch f.Num {
		case 1, 2:
			a.Op = Op(f.Num)
			a.Address, err = addressField(f)
		}
		return err
	})
}

func (a *FeeAssetChange) MarshalWire(e *wire.Encoder) {
	if a.Op == OpAddition || a.Op == OpRemoval {
		putDenom(e, protowire.Number(a.Op), a.Asset)
	}
}

func decodeFeeAssetChange(b []byte) (Action, error) {
	a := &FeeAssetChange{}
	return decodeAs(a, b, func(f wire.Field) (err error) {
		switch f.Num {
		case 1, 2:
			a.Op = Op(f.Num)
			a.Asset, err = denomField(f)
		}
		return err
	})
}

func (a *FeeChange) MarshalWire(e *wire.Encoder) {
	if name, ok := kindNames[a.Action]; ok {
		e.String(1, name)
	}
	e.Uint128(2, a.Components.Base)
	e.Uint128(3, a.Components.Multiplier)
}

func decodeFeeChange(b []byte) (Action, error) {
	a := &FeeChange{}
	return decodeAs(a, b, func(f wire.Field) (err error) {
		switch f.Num {
		case 1:
			var name string
			if name, err = f.AsString(); err != nil {
				return err
			}
			a.Action, err = ParseKind(name)
		case 2:
			a.Components.Base, err = f.AsUint128()
		case 3:
			a.Components.Multiplier, err = f.AsUint128()
		}
		return err
	})
}

type pairList []pricefeed.CurrencyPair

func (l pairList) MarshalWire(e *wire.Encoder) {
	names := make([]string, len(l))
	for i, p := range l {
		names[i] = p.String()
	}
	e.RepeatedString(1, names)
}

func decodePairList(b []byte) (pairList, error) {
	var out pairList
	err := wire.Decode(b, func(f wire.Field) error {
		if f.Num != 1 {
			return nil
		}
		s, err := f.AsString()
		if err != nil {
			return err
		}
		p, err := pricefeed.ParseCurrencyPair(s)
		if err != nil {
			return err
		}
		out = append(out, p)
		return nil
	})
	return out, err
}

func (a *CurrencyPairsChange) MarshalWire(e *wire.Encoder) {
	if a.Op == OpAddition || a.Op == OpRemoval {
		e.Message(protowire.Number(a.Op), pairList(a.Pairs))
	}
}

func decodeCurrencyPairsChange(b []byte) (Action, error) {
	a := &CurrencyPairsChange{}
	return decodeAs(a, b, func(f wire.Field) error {
		switch f.Num {
		case 1, 2:
			if f.Type != protowire.BytesType {
				return wire.ErrUnexpectedWireType
			}
			pairs, err := decodePairList(f.Bytes)
			if err != nil {
				return err
			}
			a.Op = Op(f.Num)
			a.Pairs = pairs
		}
		return nil
	})
}

type providerMsg pricefeed.ProviderConfig

func (p providerMsg) MarshalWire(e *wire.Encoder) {
	e.String(1, p.Name)
	e.String(2, p.OffChainTicker)
	e.Bool(3, p.Invert)
}

type marketMsg pricefeed.Market

func (m marketMsg) MarshalWire(e *wire.Encoder) {
	e.String(1, m.Pair.String())
	e.Uint64(2, m.Decimals)
	e.Uint64(3, m.MinProviderCount)
	e.Bool(4, m.Enabled)
	e.String(5, m.Metadata)
	for _, p := range m.Providers {
		e.Message(6, providerMsg(p))
	}
}

func decodeMarket(b []byte) (pricefeed.Market, error) {
	var m pricefeed.Market
	err := wire.Decode(b, func(f wire.Field) (err error) {
		switch f.Num {
		case 1:
			var s string
			if s, err = f.AsString(); err != nil {
				return err
			}
			m.Pair, err = pricefeed.ParseCurrencyPair(s)
		case 2:
			m.Decimals, err = f.AsUint64()
		case 3:
			m.MinProviderCount, err = f.AsUint64()
		case 4:
			m.Enabled, err = f.AsBool()
		case 5:
			m.Metadata, err = f.AsString()
		case 6:
			var p pricefeed.ProviderConfig
			if p, err = decodeProvider(f); err != nil {
				return err
			}
			m.Providers = append(m.Providers, p)
		}
		return err
	})
	return m, err
}

func decodeProvider(f wire.Field) (pricefeed.ProviderConfig, error) {
	var p pricefeed.ProviderConfig
	b, err := f.AsBytes()
	if err != nil {
		return p, err
	}
	err = wire.Decode(b, func(inner wire.Field) (err error) {
		switch inner.Num {
		case 1:
			p.Name, err = inner.AsString()
		case 2:
			p.OffChainTicker, err = inner.AsString()
		case 3:
			p.Invert, err = inner.AsBool()
		}
		return err
	})
	return p, err
}

type marketList []pricefeed.Market

func (l marketList) MarshalWire(e *wire.Encoder) {
	for _, m := range l {
		e.Message(1, marketMsg(m))
	}
}

func (a *MarketsChange) MarshalWire(e *wire.Encoder) {
	if a.Op >= MarketsCreation && a.Op <= MarketsRemoval {
		e.Message(protowire.Number(a.Op), marketList(a.Markets))
	}
}

func decodeMarketsChange(b []byte) (Action, error) {
	a := &MarketsChange{}
	return decodeAs(a, b, func(f wire.Field) error {
		switch f.Num {
		case 1, 2, 3:
			if f.Type != protowire.BytesType {
				return wire.ErrUnexpectedWireType
			}
			var markets []pricefeed.Market
			err := wire.Decode(f.Bytes, func(inner wire.Field) error {
				if inner.Num != 1 {
					return nil
				}
				b, err := inner.AsBytes()
				if err != nil {
					return err
				}
				m, err := decodeMarket(b)
				if err != nil {
					return err
				}
				markets = append(markets, m)
				return nil
			})
			if err != nil {
				return err
			}
			a.Op = MarketsOp(f.Num)
			a.Markets = markets
		}
		return nil
	})
}

type paramsMsg pricefeed.MarketMapParams

func (p paramsMsg) MarshalWire(e *wire.Encoder) {
	for _, auth := range p.MarketAuthorities {
		putAddress(e, 1, auth)
	}
	putAddress(e, 2, p.Admin)
}

func (a *UpdateMarketMapParams) MarshalWire(e *wire.Encoder) {
	e.Message(1, paramsMsg(a.Params))
}

func decodeUpdateMarketMapParams(b []byte) (Action, error) {
	a := &UpdateMarketMapParams{}
	return decodeAs(a, b, func(f wire.Field) error {
		if f.Num != 1 {
			return nil
		}
		inner, err := f.AsBytes()
		if err != nil {
			return err
		}
		return wire.Decode(inner, func(pf wire.Field) error {
			if pf.Num != 1 && pf.Num != 2 {
				return nil
			}
			addr, err := addressField(pf)
			if err != nil {
				return err
			}
			if pf.Num == 1 {
				a.Params.MarketAuthorities = append(a.Params.MarketAuthorities, addr)
			} else {
				a.Params.Admin = addr
			}
			return nil
		})
	})
}

// IBC relay messages.

func (p *Packet) MarshalWire(e *wire.Encoder) {
	e.Uint64(1, p.Sequence)
	e.String(2, p.SourcePort)
	e.String(3, p.SourceChannel)
	e.String(4, p.DestinationPort)
	e.String(5, p.DestinationChannel)
	e.Bytes(6, p.Data)
	putHeight(e, 7, p.TimeoutHeight)
	e.Uint64(8, p.TimeoutTimestamp)
}

func packetField(f wire.Field) (Packet, error) {
	var p Packet
	b, err := f.AsBytes()
	if err != nil {
		return p, err
	}
	err = wire.Decode(b, func(inner wire.Field) (err error) {
		switch inner.Num {
		case 1:
			p.Sequence, err = inner.AsUint64()
		case 2:
			p.SourcePort, err = inner.AsString()
		case 3:
			p.SourceChannel, err = inner.AsString()
		case 4:
			p.DestinationPort, err = inner.AsString()
		case 5:
			p.DestinationChannel, err = inner.AsString()
		case 6:
			p.Data, err = inner.AsBytes()
		case 7:
			p.TimeoutHeight, err = heightField(inner)
		case 8:
			p.TimeoutTimestamp, err = inner.AsUint64()
		}
		return err
	})
	return p, err
}

func (m *CreateClient) MarshalWire(e *wire.Encoder) {
	e.String(1, m.ChainID)
	e.Int64(2, int64(m.TrustingPeriod))
	e.Bytes(3, m.Header)
	e.Bytes(4, m.ValidatorSet)
}

func (m *UpdateClient) MarshalWire(e *wire.Encoder) {
	e.String(1, m.ClientID)
	e.Bytes(2, m.Header)
	e.Bytes(3, m.ValidatorSet)
	putHeight(e, 4, m.TrustedHeight)
	e.Bytes(5, m.TrustedValidators)
}

func (m *ChannelOpenInit) MarshalWire(e *wire.Encoder) {
	e.String(1, m.ClientID)
	e.String(2, m.PortID)
	e.String(3, m.CounterpartyPort)
	e.String(4, m.CounterpartyClientID)
}

func (m *ChannelOpenTry) MarshalWire(e *wire.Encoder) {
	e.String(1, m.ClientID)
	e.String(2, m.PortID)
	e.String(3, m.CounterpartyPort)
	e.String(4, m.CounterpartyChannel)
	e.String(5, m.CounterpartyClientID)
	e.Bytes(6, m.Proof)
	putHeight(e, 7, m.ProofHeight)
}

func (m *ChannelOpenAck) MarshalWire(e *wire.Encoder) {
	e.String(1, m.PortID)
	e.String(2, m.ChannelID)
	e.String(3, m.CounterpartyChannel)
	e.Bytes(4, m.Proof)
	putHeight(e, 5, m.ProofHeight)
}

func (m *ChannelOpenConfirm) MarshalWire(e *wire.Encoder) {
	e.String(1, m.PortID)
	e.String(2, m.ChannelID)
	e.Bytes(3, m.Proof)
	putHeight(e, 4, m.ProofHeight)
}

func (m *RecvPacket) MarshalWire(e *wire.Encoder) {
	e.Message(1, &m.Packet)
	e.Bytes(2, m.Proof)
	putHeight(e, 3, m.ProofHeight)
}

func (m *Acknowledgement) MarshalWire(e *wire.Encoder) {
	e.Message(1, &m.Packet)
	e.Bytes(2, m.Acknowledgement)
	e.Bytes(3, m.Proof)
	putHeight(e, 4, m.ProofHeight)
}

func (m *Timeout) MarshalWire(e *wire.Encoder) {
	e.Message(1, &m.Packet)
	e.Bytes(2, m.Proof)
	putHeight(e, 3, m.ProofHeight)
}

func ibcMsgField(m IbcMsg) protowire.Number {
	switch m.(type) {
	case *CreateClient:
		return 1
	case *UpdateClient:
		return 2
	case *ChannelOpenInit:
		return 3
	case *RecvPacket:
		return 4
	case *Acknowledgement:
		return 5
	case *Timeout:
		return 6
	case *ChannelOpenTry:
		return 7
	case *ChannelOpenAck:
		return 8
	case *ChannelOpenConfirm:
		return 9
	}
	return 0
}

func (a *IbcRelay) MarshalWire(e *wire.Encoder) {
	if a.Msg != nil {
		e.Message(ibcMsgField(a.Msg), a.Msg)
	}
}

func decodeIbcRelay(b []byte) (Action, error) {
	a := &IbcRelay{}
	return decodeAs(a, b, func(f wire.Field) error {
		if a.Msg != nil {
			return fmt.Errorf("%w: more than one ibc message set", ErrUnknownVariant)
		}
		inner, err := f.AsBytes()
		if err != nil {
			return err
		}
		switch f.Num {
		case 1:
			m := &CreateClient{}
			a.Msg = m
			return wire.Decode(inner, func(g wire.Field) (err error) {
				switch g.Num {
				case 1:
					m.ChainID, err = g.AsString()
				case 2:
					var nanos int64
					nanos, err = g.AsInt64()
					m.TrustingPeriod = time.Duration(nanos)
				case 3:
					m.Header, err = g.AsBytes()
				case 4:
					m.ValidatorSet, err = g.AsBytes()
				}
				return err
			})
		case 2:
			m := &UpdateClient{}
			a.Msg = m
			return wire.Decode(inner, func(g wire.Field) (err error) {
				switch g.Num {
				case 1:
					m.ClientID, err = g.AsString()
				case 2:
					m.Header, err = g.AsBytes()
				case 3:
					m.ValidatorSet, err = g.AsBytes()
				case 4:
					m.TrustedHeight, err = heightField(g)
				case 5:
					m.TrustedValidators, err = g.AsBytes()
				}
				return err
			})
		case 3:
			m := &ChannelOpenInit{}
			a.Msg = m
			return wire.Decode(inner, func(g wire.Field) (err error) {
				switch g.Num {
				case 1:
					m.ClientID, err = g.AsString()
				case 2:
					m.PortID, err = g.AsString()
				case 3:
					m.CounterpartyPort, err = g.AsString()
				case 4:
					m.CounterpartyClientID, err = g.AsString()
				}
				return err
			})
		case 7:
			m := &ChannelOpenTry{}
			a.Msg = m
			return wire.Decode(inner, func(g wire.Field) (err error) {
				switch g.Num {
				case 1:
					m.ClientID, err = g.AsString()
				case 2:
					m.PortID, err = g.AsString()
				case 3:
					m.CounterpartyPort, err = g.AsString()
				case 4:
					m.CounterpartyChannel, err = g.AsString()
				case 5:
					m.CounterpartyClientID, err = g.AsString()
				case 6:
					m.Proof, err = g.AsBytes()
				case 7:
					m.ProofHeight, err = heightField(g)
				}
				return err
			})
		case 8:
			m := &ChannelOpenAck{}
			a.Msg = m
			return wire.Decode(inner, func(g wire.Field) (err error) {
				switch g.Num {
				case 1:
					m.PortID, err = g.AsString()
				case 2:
					m.ChannelID, err = g.AsString()
				case 3:
					m.CounterpartyChannel, err = g.AsString()
				case 4:
					m.Proof, err = g.AsBytes()
				case 5:
					m.ProofHeight, err = heightField(g)
				}
				return err
			})
		case 9:
			m := &ChannelOpenConfirm{}
			a.Msg = m
			return wire.Decode(inner, func(g wire.Field) (err error) {
				switch g.Num {
				case 1:
					m.PortID, err = g.AsString()
				case 2:
					m.ChannelID, err = g.AsString()
				case 3:
					m.Proof, err = g.AsBytes()
				case 4:
					m.ProofHeight, err = heightField(g)
				}
				return err
			})
		case 4:
			m := &RecvPacket{}
			a.Msg = m
			return wire.Decode(inner, func(g wire.Field) (err error) {
				switch g.Num {
				case 1:
					m.Packet, err = packetField(g)
				case 2:
					m.Proof, err = g.AsBytes()
				case 3:
					m.ProofHeight, err = heightField(g)
				}
				return err
			})
		case 5:
			m := &Acknowledgement{}
			a.Msg = m
			return wire.Decode(inner, func(g wire.Field) (err error) {
				switch g.Num {
				case 1:
					m.Packet, err = packetField(g)
				case 2:
					m.Acknowledgement, err = g.AsBytes()
				case 3:
					m.Proof, err = g.AsBytes()
				case 4:
					m.ProofHeight, err = heightField(g)
				}
				return err
			})
		case 6:
			m := &Timeout{}
			a.Msg = m
			return wire.Decode(inner, func(g wire.Field) (err error) {
				switch g.Num {
				case 1:
					m.Packet, err = packetField(g)
				case 2:
					m.Proof, err = g.AsBytes()
				case 3:
					m.ProofHeight, err = heightField(g)
				}
				return err
			})
		}
		return fmt.Errorf("%w: ibc message field %d", ErrUnknownVariant, f.Num)
	})
}
