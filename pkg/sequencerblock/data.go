package sequencerblock

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/astriaorg/astria-sequencer/pkg/wire"
)

// Field numbers of the DataItem oneof.
const (
	itemRollupTransactionsRoot protowire.Number = 1
	itemRollupIDsRoot          protowire.Number = 2
	itemUpgradeChangeHashes    protowire.Number = 3
	itemExtendedCommitInfo     protowire.Number = 4
)

var (
	ErrMissingDataItem = errors.New("block data is missing a required data item")
	ErrInvalidDataItem = errors.New("invalid block data item")
)

type hashList [][32]byte

func (l hashList) MarshalWire(e *wire.Encoder) {
	items := make([][]byte, len(l))
	for i := range l {
		items[i] = l[i][:]
	}
	e.RepeatedBytes(1, items)
}

type itemFunc func(e *wire.Encoder)

func (f itemFunc) MarshalWire(e *wire.Encoder) { f(e) }

func encodeRoot(num protowire.Number, root [32]byte) []byte {
	return wire.Marshal(itemFunc(func(e *wire.Encoder) {
		e.Bytes(num, root[:])
	}))
}

// EncodeRollupTransactionsRoot returns the first data item of a block.
func EncodeRollupTransactionsRoot(root [32]byte) []byte {
	return encodeRoot(itemRollupTransactionsRoot, root)
}

// EncodeRollupIDsRoot returns the second data item of a block.
func EncodeRollupIDsRoot(root [32]byte) []byte {
	return encodeRoot(itemRollupIDsRoot, root)
}

// EncodeUpgradeChangeHashes returns the data item listing the upgrade
// changes applied in the block.
func EncodeUpgradeChangeHashes(hashes [][32]byte) []byte {
	return wire.Marshal(itemFunc(func(e *wire.Encoder) {
		e.Message(itemUpgradeChangeHashes, hashList(hashes))
	}))
}

// EncodeExtendedCommitInfo wraps an encoded ExtendedCommitInfo.
func EncodeExtendedCommitInfo(eci []byte) []byte {
	return wire.Marshal(itemFunc(func(e *wire.Encoder) {
		e.RepeatedBytes(itemExtendedCommitInfo, [][]byte{eci})
	}))
}

// Layout says which optional items a block at a given height must carry.
type Layout struct {
	UpgradeChangeHashes bool
	ExtendedCommitInfo  bool
}

// Data is the decoded data of a block.
type Data struct {
	Commitments
	UpgradeChangeHashes [][32]byte
	ExtendedCommitInfo  []byte
	// Txs are the user transactions following the data items.
	Txs [][]byte
	// Items holds the encoded data items in order.
	Items [][]byte
}

// All returns the data items followed by the transactions, as carried in the
// block.
func (d *Data) All() [][]byte {
	out := make([][]byte, 0, len(d.Items)+len(d.Txs))
	out = append(out, d.Items...)
	return append(out, d.Txs...)
}

// NewData lays out a block.
func NewData(c Commitments, layout Layout, changeHashes [][32]byte, eci []byte, txs [][]byte) *Data {
	d := &Data{
		Commitments: c,
		Txs:         txs,
		Items: [][]byte{
			EncodeRollupTransactionsRoot(c.RollupTransactionsRoot),
			EncodeRollupIDsRoot(c.RollupIDsRoot),
		},
	}
	if layout.UpgradeChangeHashes {
		d.UpgradeChangeHashes = changeHashes
		d.Items = append(d.Items, EncodeUpgradeChangeHashes(changeHashes))
	}
	if layout.ExtendedCommitInfo {
		d.ExtendedCommitInfo = eci
		d.Items = append(d.Items, EncodeExtendedCommitInfo(eci))
	}
	return d
}

// singleField decodes a message that must hold exactly the field num.
func singleField(b []byte, num protowire.Number) ([]byte, error) {
	var (
		out   []byte
		found bool
	)
	err := wire.Decode(b, func(f wire.Field) error {
		if f.Num != num || found {
			return fmt.Errorf("%w: unexpected field %d", ErrInvalidDataItem, f.Num)
		}
		found = true
		var err error
		out, err = f.AsBytes()
		return err
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: field %d not set", ErrInvalidDataItem, num)
	}
	return out, nil
}

func rootItem(b []byte, num protowire.Number) ([32]byte, error) {
	var root [32]byte
	raw, err := singleField(b, num)
	if err != nil {
		return root, err
	}
	if len(raw) != len(root) {
		return root, fmt.Errorf("%w: root must be 32 bytes", ErrInvalidDataItem)
	}
	copy(root[:], raw)
	return root, nil
}

// ParseData splits the block txs into data items and user transactions.
func ParseData(txs [][]byte, layout Layout) (*Data, error) {
	need := 2
	if layout.UpgradeChangeHashes {
		need++
	}
	if layout.ExtendedCommitInfo {
		need++
	}
	if len(txs) < need {
		return nil, fmt.Errorf("%w: have %d txs, need at least %d", ErrMissingDataItem, len(txs), need)
	}

	d := &Data{Items: txs[:need], Txs: txs[need:]}
	var err error
	if d.RollupTransactionsRoot, err = rootItem(txs[0], itemRollupTransactionsRoot); err != nil {
		return nil, fmt.Errorf("rollup transactions root: %w", err)
	}
	if d.RollupIDsRoot, err = rootItem(txs[1], itemRollupIDsRoot); err != nil {
		return nil, fmt.Errorf("rollup ids root: %w", err)
	}
	next := 2
	if layout.UpgradeChangeHashes {
		raw, err := singleField(txs[next], itemUpgradeChangeHashes)
		if err != nil {
			return nil, fmt.Errorf("upgrade change hashes: %w", err)
		}
		hashes := [][32]byte{}
		err = wire.Decode(raw, func(f wire.Field) error {
			b, err := f.AsBytes()
			if err != nil {
				return err
			}
			if len(b) != 32 {
				return fmt.Errorf("%w: change hash must be 32 bytes", ErrInvalidDataItem)
			}
			var h [32]byte
			copy(h[:], b)
			hashes = append(hashes, h)
			return nil
		})
		if err != nil {
			return nil, err
		}
		d.UpgradeChangeHashes = hashes
		next++
	}
	if layout.ExtendedCommitInfo {
		if d.ExtendedCommitInfo, err = singleField(txs[next], itemExtendedCommitInfo); err != nil {
			return nil, fmt.Errorf("extended commit info: %w", err)
		}
	}
	return d, nil
}
