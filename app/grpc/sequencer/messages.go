package sequencer

import (
	"github.com/astriaorg/astria-sequencer/pkg/wire"
)

type GetSequencerBlockRequest struct {
	Height uint64
}

func (m *GetSequencerBlockRequest) MarshalWire(e *wire.Encoder) { e.Uint64(1, m.Height) }

func (m *GetSequencerBlockRequest) UnmarshalWire(b []byte) error {
	return wire.Decode(b, func(f wire.Field) (err error) {
		if f.Num == 1 {
			m.Height, err = f.AsUint64()
		}
		return err
	})
}

type GetSequencerBlockByHashRequest struct {
	Hash []byte
}

func (m *GetSequencerBlockByHashRequest) MarshalWire(e *wire.Encoder) { e.Bytes(1, m.Hash) }

func (m *GetSequencerBlockByHashRequest) UnmarshalWire(b []byte) error {
	return wire.Decode(b, func(f wire.Field) (err error) {
		if f.Num == 1 {
			m.Hash, err = f.AsBytes()
		}
		return err
	})
}

type GetFilteredSequencerBlockRequest struct {
	Height    uint64
	RollupIDs [][]byte
}

func (m *GetFilteredSequencerBlockRequest) MarshalWire(e *wire.Encoder) {
	e.Uint64(1, m.Height)
	e.RepeatedBytes(2, m.RollupIDs)
}

func (m *GetFilteredSequencerBlockRequest) UnmarshalWire(b []byte) error {
	return wire.Decode(b, func(f wire.Field) error {
		switch f.Num {
		case 1:
			v, err := f.AsUint64()
			m.Height = v
			return err
		case 2:
			id, err := f.AsBytes()
			m.RollupIDs = append(m.RollupIDs, id)
			return err
		}
		return nil
	})
}

// Address is a bech32m encoded address.
type Address struct {
	Bech32m string
}

func (m *Address) MarshalWire(e *wire.Encoder) { e.String(2, m.Bech32m) }

func decodeAddress(b []byte) (Address, error) {
	var a Address
	err := wire.Decode(b, func(f wire.Field) (err error) {
		if f.Num == 2 {
			a.Bech32m, err = f.AsString()
		}
		return err
	})
	return a, err
}

type GetPendingNonceRequest struct {
	Address Address
}

func (m *GetPendingNonceRequest) MarshalWire(e *wire.Encoder) { e.Message(1, &m.Address) }

func (m *GetPendingNonceRequest) UnmarshalWire(b []byte) error {
	return wire.Decode(b, func(f wire.Field) (err error) {
		if f.Num == 1 {
			var raw []byte
			if raw, err = f.AsBytes(); err == nil {
				m.Address, err = decodeAddress(raw)
			}
		}
		return err
	})
}

type GetPendingNonceResponse struct {
	Inner uint32
}

func (m *GetPendingNonceResponse) MarshalWire(e *wire.Encoder) { e.Uint32(1, m.Inner) }

func (m *GetPendingNonceResponse) UnmarshalWire(b []byte) error {
	return wire.Decode(b, func(f wire.Field) (err error) {
		if f.Num == 1 {
			m.Inner, err = f.AsUint32()
		}
		return err
	})
}

type GetAllowedFeeAssetsResponse struct {
	Height    uint64
	FeeAssets []string
}

func (m *GetAllowedFeeAssetsResponse) MarshalWire(e *wire.Encoder) {
	e.Uint64(1, m.Height)
	e.RepeatedString(2, m.FeeAssets)
}

func (m *GetAllowedFeeAssetsResponse) UnmarshalWire(b []byte) error {
	return wire.Decode(b, func(f wire.Field) error {
		switch f.Num {
		case 1:
			v, err := f.AsUint64()
			m.Height = v
			return err
		case 2:
			s, err := f.AsString()
			m.FeeAssets = append(m.FeeAssets, s)
			return err
		}
		return nil
	})
}

type Validator struct {
	PubKey []byte
	Power  uint64
	Name   string
}

func (m *Validator) MarshalWire(e *wire.Encoder) {
	e.Bytes(1, m.PubKey)
	e.Uint64(2, m.Power)
	e.String(3, m.Name)
}

func decodeValidator(b []byte) (Validator, error) {
	var v Validator
	err := wire.Decode(b, func(f wire.Field) (err error) {
		switch f.Num {
		case 1:
			v.PubKey, err = f.AsBytes()
		case 2:
			v.Power, err = f.AsUint64()
		case 3:
			v.Name, err = f.AsString()
		}
		return err
	})
	return v, err
}

type GetValidatorSetResponse struct {
	Height     uint64
	Validators []Validator
}

func (m *GetValidatorSetResponse) MarshalWire(e *wire.Encoder) {
	e.Uint64(1, m.Height)
	for i := range m.Validators {
		e.Message(2, &m.Validators[i])
	}
}

func (m *GetValidatorSetResponse) UnmarshalWire(b []byte) error {
	return wire.Decode(b, func(f wire.Field) error {
		switch f.Num {
		case 1:
			v, err := f.AsUint64()
			m.Height = v
			return err
		case 2:
			raw, err := f.AsBytes()
			if err != nil {
				return err
			}
			v, err := decodeValidator(raw)
			m.Validators = append(m.Validators, v)
			return err
		}
		return nil
	})
}

// ChangeInfo describes one change of an upgrade.
type ChangeInfo struct {
	ActivationHeight uint64
	ChangeName       string
	AppVersion       uint64
	Hash             []byte
}

func (m *ChangeInfo) MarshalWire(e *wire.Encoder) {
	e.Uint64(1, m.ActivationHeight)
	e.String(2, m.ChangeName)
	e.Uint64(3, m.AppVersion)
	e.Bytes(4, m.Hash)
}

func decodeChangeInfo(b []byte) (ChangeInfo, error) {
	var c ChangeInfo
	err := wire.Decode(b, func(f wire.Field) (err error) {
		switch f.Num {
		case 1:
			c.ActivationHeight, err = f.AsUint64()
		case 2:
			c.ChangeName, err = f.AsString()
		case 3:
			c.AppVersion, err = f.AsUint64()
		case 4:
			c.Hash, err = f.AsBytes()
		}
		return err
	})
	return c, err
}

type GetUpgradesInfoResponse struct {
	Applied   []ChangeInfo
	Scheduled []ChangeInfo
}

func (m *GetUpgradesInfoResponse) MarshalWire(e *wire.Encoder) {
	for i := range m.Applied {
		e.Message(1, &m.Applied[i])
	}
	for i := range m.Scheduled {
		e.Message(2, &m.Scheduled[i])
	}
}

func (m *GetUpgradesInfoResponse) UnmarshalWire(b []byte) error {
	return wire.Decode(b, func(f wire.Field) error {
		raw, err := f.AsBytes()
		if err != nil {
			return err
		}
		c, err := decodeChangeInfo(raw)
		if err != nil {
			return err
		}
		switch f.Num {
		case 1:
			m.Applied = append(m.Applied, c)
		case 2:
			m.Scheduled = append(m.Scheduled, c)
		}
		return nil
	})
}

type StreamSequencerBlocksRequest struct {
	StartHeight uint64
}

func (m *StreamSequencerBlocksRequest) MarshalWire(e *wire.Encoder) { e.Uint64(1, m.StartHeight) }

func (m *StreamSequencerBlocksRequest) UnmarshalWire(b []byte) error {
	return wire.Decode(b, func(f wire.Field) (err error) {
		if f.Num == 1 {
			m.StartHeight, err = f.AsUint64()
		}
		return err
	})
}
