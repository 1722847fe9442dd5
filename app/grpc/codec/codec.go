// Package codec is the gRPC codec of the sequencer's services. Messages are
// protobuf on the wire but are mapped by hand with pkg/wire instead of
// generated code. Generated protobuf messages, such as those of the health
// service, are passed to the protobuf runtime.
package codec

import (
	"fmt"

	"google.golang.org/grpc/encoding"
	"google.golang.org/protobuf/proto"

	"github.com/astriaorg/astria-sequencer/pkg/wire"
)

// Name matches the content subtype of protobuf so that any protobuf client
// can talk to the services.
const Name = "proto"

// Unmarshaler is implemented by hand mapped messages.
type Unmarshaler interface {
	UnmarshalWire(b []byte) error
}

// Raw is a message that is already encoded, such as a stored sequencer
// block.
type Raw []byte

func (r Raw) MarshalWire(*wire.Encoder) {}

func (r *Raw) UnmarshalWire(b []byte) error {
	*r = append((*r)[:0], b...)
	return nil
}

// Empty is a message without fields.
type Empty struct{}

func (Empty) MarshalWire(*wire.Encoder) {}

func (*Empty) UnmarshalWire([]byte) error { return nil }

type Codec struct{}

var _ encoding.Codec = Codec{}

func (Codec) Marshal(v any) ([]byte, error) {
	switch m := v.(type) {
	case Raw:
		return m, nil
	case *Raw:
		return *m, nil
	case wire.Marshaler:
		return wire.Marshal(m), nil
	case proto.Message:
		return proto.Marshal(m)
	}
	return nil, fmt.Errorf("codec: cannot marshal %T", v)
}

func (Codec) Unmarshal(data []byte, v any) error {
	switch m := v.(type) {
	case Unmarshaler:
		return m.UnmarshalWire(data)
	case proto.Message:
		return proto.Unmarshal(data, m)
	}
	return fmt.Errorf("codec: cannot unmarshal into %T", v)
}

func (Codec) Name() string { return Name }
