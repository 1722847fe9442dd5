// Package wire holds the small deterministic protobuf encoder and field
// decoder shared by transactions, block data items and the gRPC messages.
// Messages are written field by field in ascending tag order and scalar
// fields holding their zero value are omitted, which makes the encoding
// canonical: decode followed by encode reproduces the input bytes.
package wire

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/astriaorg/astria-sequencer/pkg/amount"
)

var ErrUnexpectedWireType = errors.New("unexpected wire type")

// Marshaler is implemented by every hand encoded message.
type Marshaler interface {
	MarshalWire(e *Encoder)
}

// Encoder appends fields to a buffer.
type Encoder struct {
	buf []byte
}

// Marshal encodes m.
func Marshal(m Marshaler) []byte {
	var e Encoder
	m.MarshalWire(&e)
	if e.buf == nil {
		return []byte{}
	}
	return e.buf
}

func (e *Encoder) Data() []byte { return e.buf }

func (e *Encoder) Bytes(num protowire.Number, b []byte) {
	if len(b) == 0 {
		return
	}
	e.buf = protowire.AppendTag(e.buf, num, protowire.BytesType)
	e.buf = protowire.AppendBytes(e.buf, b)
}

// RepeatedBytes writes every element, including empty ones.
func (e *Encoder) RepeatedBytes(num protowire.Number, items [][]byte) {
	for _, b := range items {
		e.buf = protowire.AppendTag(e.buf, num, protowire.BytesType)
		e.buf = protowire.AppendBytes(e.buf, b)
	}
}

func (e *Encoder) String(num protowire.Number, s string) {
	if s == "" {
		return
	}
	e.buf = protowire.AppendTag(e.buf, num, protowire.BytesType)
	e.buf = protowire.AppendString(e.buf, s)
}

func (e *Encoder) RepeatedString(num protowire.Number, items []string) {
	for _, s := range items {
		e.buf = protowire.AppendTag(e.buf, num, protowire.BytesType)
		e.buf = protowire.AppendString(e.buf, s)
	}
}

func (e *Encoder) Uint64(num protowire.Number, v uint64) {
	if v == 0 {
		return
	}
	e.buf = protowire.AppendTag(e.buf, num, protowire.VarintType)
	e.buf = protowire.AppendVarint(e.buf, v)
}

func (e *Encoder) Uint32(num protowire.Number, v uint32) { e.Uint64(num, uint64(v)) }

func (e *Encoder) Int64(num protowire.Number, v int64) { e.Uint64(num, uint64(v)) }

func (e *Encoder) Bool(num protowire.Number, v bool) {
	if v {
		e.Uint64(num, 1)
	}
}

// Message always writes the field, even when m encodes to nothing, so oneof
// members keep their presence.
func (e *Encoder) Message(num protowire.Number, m Marshaler) {
	var inner Encoder
	m.MarshalWire(&inner)
	e.buf = protowire.AppendTag(e.buf, num, protowire.BytesType)
	e.buf = protowire.AppendBytes(e.buf, inner.buf)
}

// OptionalMessage skips nil messages.
func (e *Encoder) OptionalMessage(num protowire.Number, m Marshaler, present bool) {
	if present {
		e.Message(num, m)
	}
}

// Uint128 writes an amount as the {lo = 1, hi = 2} message.
func (e *Encoder) Uint128(num protowire.Number, a amount.Amount) {
	if a.IsZero() {
		return
	}
	e.Message(num, uint128(a))
}

type uint128 amount.Amount

func (u uint128) MarshalWire(e *Encoder) {
	lo, hi := amount.Amount(u).Parts()
	e.Uint64(1, lo)
	e.Uint64(2, hi)
}

// Field is one decoded field. Varint holds the value of varint fields and
// Bytes the payload of length delimited ones.
type Field struct {
	Num    protowire.Number
	Type   protowire.Type
	Varint uint64
	Bytes  []byte
}

func (f Field) expect(t protowire.Type) error {
	if f.Type != t {
		return fmt.Errorf("%w: field %d has type %d, want %d", ErrUnexpectedWireType, f.Num, f.Type, t)
	}
	return nil
}

func (f Field) AsBytes() ([]byte, error) {
	if err := f.expect(protowire.BytesType); err != nil {
		return nil, err
	}
	out := make([]byte, len(f.Bytes))
	copy(out, f.Bytes)
	return out, nil
}

func (f Field) AsString() (string, error) {
	if err := f.expect(protowire.BytesType); err != nil {
		return "", err
	}
	return string(f.Bytes), nil
}

func (f Field) AsUint64() (uint64, error) {
	if err := f.expect(protowire.VarintType); err != nil {
		return 0, err
	}
	return f.Varint, nil
}

func (f Field) AsUint32() (uint32, error) {
	v, err := f.AsUint64()
	if err != nil {
		return 0, err
	}
	if v > uint64(^uint32(0)) {
		return 0, fmt.Errorf("field %d overflows uint32", f.Num)
	}
	return uint32(v), nil
}

func (f Field) AsInt64() (int64, error) {
	v, err := f.AsUint64()
	return int64(v), err
}

func (f Field) AsBool() (bool, error) {
	v, err := f.AsUint64()
	return v != 0, err
}

// AsUint128 decodes the {lo, hi} message.
func (f Field) AsUint128() (amount.Amount, error) {
	if err := f.expect(protowire.BytesType); err != nil {
		return amount.Amount{}, err
	}
	var lo, hi uint64
	err := Decode(f.Bytes, func(inner Field) error {
		var err error
		switch inner.Num {
		case 1:
			lo, err = inner.AsUint64()
		case 2:
			hi, err = inner.AsUint64()
		}
		return err
	})
	if err != nil {
		return amount.Amount{}, err
	}
	return amount.FromParts(lo, hi), nil
}

// Decode walks every field of a message. Fixed32 and fixed64 fields are
// skipped since no message in this module uses them.
func Decode(b []byte, fn func(Field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		f := Field{Num: num, Type: typ}
		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			f.Varint = v
			b = b[n:]
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			f.Bytes = v
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
			continue
		}
		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}
