package sequencerblock

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/cometbft/cometbft/crypto/merkle"
	"github.com/cometbft/cometbft/crypto/tmhash"
	cmttypes "github.com/cometbft/cometbft/types"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/astriaorg/astria-sequencer/pkg/rollup"
	"github.com/astriaorg/astria-sequencer/pkg/wire"
)

var (
	ErrCommitmentMismatch = errors.New("block data commitments do not match the rollup data")
	ErrInvalidProof       = errors.New("merkle proof does not verify")
)

// Header is the part of the CometBFT header a sequencer block carries.
type Header struct {
	ChainID string
	Height  uint64
	// Time is in unix nanoseconds.
	Time                   int64
	RollupTransactionsRoot [32]byte
	DataHash               [32]byte
	ProposerAddress        []byte
}

// RollupTransactions are the items of one rollup together with the audit
// path of the rollup's leaf in the rollup transactions tree.
type RollupTransactions struct {
	RollupID     rollup.ID
	Transactions [][]byte
	Proof        *merkle.Proof
}

// SequencerBlock is a committed block as seen by rollups.
type SequencerBlock struct {
	BlockHash          [32]byte
	Header             Header
	RollupTransactions []RollupTransactions
	RollupIDsRoot      [32]byte
	// RollupTransactionsProof proves the rollup transactions root item is in
	// the data hash; RollupIDsProof does the same for the rollup ids root.
	RollupTransactionsProof *merkle.Proof
	RollupIDsProof          *merkle.Proof
	UpgradeChangeHashes     [][32]byte
	ExtendedCommitInfo      []byte
}

// New assembles the sequencer block of a finalized block. header carries the
// CometBFT fields; the roots and data hash are filled from data.
func New(blockHash [32]byte, header Header, data *Data, groups []RollupGroup) (*SequencerBlock, error) {
	if ComputeCommitments(groups) != data.Commitments {
		return nil, ErrCommitmentMismatch
	}
	txs := cmttypes.ToTxs(data.All())
	copy(header.DataHash[:], txs.Hash())
	header.RollupTransactionsRoot = data.RollupTransactionsRoot

	rtProof := txs.Proof(0).Proof
	idsProof := txs.Proof(1).Proof
	proofs := rollupProofs(groups)
	rollups := make([]RollupTransactions, len(groups))
	for i, g := range groups {
		rollups[i] = RollupTransactions{RollupID: g.ID, Transactions: g.Items, Proof: proofs[i]}
	}
	return &SequencerBlock{
		BlockHash:               blockHash,
		Header:                  header,
		RollupTransactions:      rollups,
		RollupIDsRoot:           data.RollupIDsRoot,
		RollupTransactionsProof: &rtProof,
		RollupIDsProof:          &idsProof,
		UpgradeChangeHashes:     data.UpgradeChangeHashes,
		ExtendedCommitInfo:      data.ExtendedCommitInfo,
	}, nil
}

// RollupIDs lists the rollups of the block in order.
func (b *SequencerBlock) RollupIDs() []rollup.ID {
	ids := make([]rollup.ID, len(b.RollupTransactions))
	for i, rt := range b.RollupTransactions {
		ids[i] = rt.RollupID
	}
	return ids
}

func verifyItem(proof *merkle.Proof, dataHash [32]byte, item []byte) error {
	if proof == nil {
		return fmt.Errorf("%w: missing proof", ErrInvalidProof)
	}
	if err := proof.Verify(dataHash[:], tmhash.Sum(item)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProof, err)
	}
	return nil
}

func verifyRollups(root [32]byte, rollups []RollupTransactions) error {
	for _, rt := range rollups {
		if rt.Proof == nil {
			return fmt.Errorf("%w: rollup %s has no proof", ErrInvalidProof, rt.RollupID)
		}
		leaf := RollupLeaf(rt.RollupID, RollupTxRoot(rt.Transactions))
		if err := rt.Proof.Verify(root[:], leaf); err != nil {
			return fmt.Errorf("%w: rollup %s: %v", ErrInvalidProof, rt.RollupID, err)
		}
	}
	return nil
}

func verifyIDs(idsRoot, dataHash [32]byte, ids []rollup.ID, proof *merkle.Proof) error {
	leaves := make([][]byte, len(ids))
	for i := range ids {
		id := ids[i]
		leaves[i] = id[:]
	}
	if MerkleRoot(leaves) != idsRoot {
		return fmt.Errorf("%w: rollup ids do not match their root", ErrInvalidProof)
	}
	return verifyItem(proof, dataHash, EncodeRollupIDsRoot(idsRoot))
}

// Verify checks every proof of the block against its header.
func (b *SequencerBlock) Verify() error {
	root := b.Header.RollupTransactionsRoot
	if err := verifyItem(b.RollupTransactionsProof, b.Header.DataHash, EncodeRollupTransactionsRoot(root)); err != nil {
		return err
	}
	if err := verifyRollups(root, b.RollupTransactions); err != nil {
		return err
	}
	return verifyIDs(b.RollupIDsRoot, b.Header.DataHash, b.RollupIDs(), b.RollupIDsProof)
}

// FilteredSequencerBlock exposes only the selected rollups of a block along
// with what is needed to verify them against the header.
type FilteredSequencerBlock struct {
	BlockHash               [32]byte
	Header                  Header
	RollupTransactions      []RollupTransactions
	RollupTransactionsProof *merkle.Proof
	AllRollupIDs            []rollup.ID
	RollupIDsProof          *merkle.Proof
}

// Filter keeps the rollups in ids. Unknown ids are ignored.
func (b *SequencerBlock) Filter(ids []rollup.ID) *FilteredSequencerBlock {
	want := make(map[rollup.ID]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	var kept []RollupTransactions
	for _, rt := range b.RollupTransactions {
		if _, ok := want[rt.RollupID]; ok {
			kept = append(kept, rt)
		}
	}
	return &FilteredSequencerBlock{
		BlockHash:               b.BlockHash,
		Header:                  b.Header,
		RollupTransactions:      kept,
		RollupTransactionsProof: b.RollupTransactionsProof,
		AllRollupIDs:            b.RollupIDs(),
		RollupIDsProof:          b.RollupIDsProof,
	}
}

// Verify checks the kept rollups and the id list against the header.
func (f *FilteredSequencerBlock) Verify() error {
	root := f.Header.RollupTransactionsRoot
	if err := verifyItem(f.RollupTransactionsProof, f.Header.DataHash, EncodeRollupTransactionsRoot(root)); err != nil {
		return err
	}
	if err := verifyRollups(root, f.RollupTransactions); err != nil {
		return err
	}
	leaves := make([][]byte, len(f.AllRollupIDs))
	for i := range f.AllRollupIDs {
		id := f.AllRollupIDs[i]
		leaves[i] = id[:]
	}
	return verifyIDs(MerkleRoot(leaves), f.Header.DataHash, f.AllRollupIDs, f.RollupIDsProof)
}

// Encoding.

type proofMsg struct{ p *merkle.Proof }

func (m proofMsg) MarshalWire(e *wire.Encoder) {
	e.Int64(1, m.p.Total)
	e.Int64(2, m.p.Index)
	e.Bytes(3, m.p.LeafHash)
	e.RepeatedBytes(4, m.p.Aunts)
}

func putProof(e *wire.Encoder, num protowire.Number, p *merkle.Proof) {
	e.OptionalMessage(num, proofMsg{p}, p != nil)
}

func decodeProof(f wire.Field) (*merkle.Proof, error) {
	b, err := f.AsBytes()
	if err != nil {
		return nil, err
	}
	p := &merkle.Proof{}
	err = wire.Decode(b, func(g wire.Field) (err error) {
		switch g.Num {
		case 1:
			p.Total, err = g.AsInt64()
		case 2:
			p.Index, err = g.AsInt64()
		case 3:
			p.LeafHash, err = g.AsBytes()
		case 4:
			var aunt []byte
			if aunt, err = g.AsBytes(); err == nil {
				p.Aunts = append(p.Aunts, aunt)
			}
		}
		return err
	})
	return p, err
}

func (h *Header) MarshalWire(e *wire.Encoder) {
	e.String(1, h.ChainID)
	e.Uint64(2, h.Height)
	e.Int64(3, h.Time)
	e.Bytes(4, h.RollupTransactionsRoot[:])
	e.Bytes(5, h.DataHash[:])
	e.Bytes(6, h.ProposerAddress)
}

func decodeHeader(f wire.Field) (Header, error) {
	var h Header
	b, err := f.AsBytes()
	if err != nil {
		return h, err
	}
	err = wire.Decode(b, func(g wire.Field) (err error) {
		switch g.Num {
		case 1:
			h.ChainID, err = g.AsString()
		case 2:
			h.Height, err = g.AsUint64()
		case 3:
			h.Time, err = g.AsInt64()
		case 4:
			err = copyHash(g, &h.RollupTransactionsRoot)
		case 5:
			err = copyHash(g, &h.DataHash)
		case 6:
			h.ProposerAddress, err = g.AsBytes()
		}
		return err
	})
	return h, err
}

func copyHash(f wire.Field, dst *[32]byte) error {
	b, err := f.AsBytes()
	if err != nil {
		return err
	}
	if len(b) != len(dst) {
		return fmt.Errorf("field %d must be 32 bytes, got %d", f.Num, len(b))
	}
	copy(dst[:], b)
	return nil
}

func (rt *RollupTransactions) MarshalWire(e *wire.Encoder) {
	e.Bytes(1, rt.RollupID[:])
	e.RepeatedBytes(2, rt.Transactions)
	putProof(e, 3, rt.Proof)
}

func decodeRollupTransactions(f wire.Field) (RollupTransactions, error) {
	var rt RollupTransactions
	b, err := f.AsBytes()
	if err != nil {
		return rt, err
	}
	err = wire.Decode(b, func(g wire.Field) (err error) {
		switch g.Num {
		case 1:
			var raw []byte
			if raw, err = g.AsBytes(); err != nil {
				return err
			}
			rt.RollupID, err = rollup.IDFromSlice(raw)
		case 2:
			var tx []byte
			if tx, err = g.AsBytes(); err == nil {
				rt.Transactions = append(rt.Transactions, tx)
			}
		case 3:
			rt.Proof, err = decodeProof(g)
		}
		return err
	})
	return rt, err
}

func (b *SequencerBlock) MarshalWire(e *wire.Encoder) {
	e.Bytes(1, b.BlockHash[:])
	e.Message(2, &b.Header)
	for i := range b.RollupTransactions {
		e.Message(3, &b.RollupTransactions[i])
	}
	putProof(e, 4, b.RollupTransactionsProof)
	putProof(e, 5, b.RollupIDsProof)
	e.RepeatedBytes(6, hashesToSlices(b.UpgradeChangeHashes))
	e.Bytes(7, b.ExtendedCommitInfo)
	e.Bytes(8, b.RollupIDsRoot[:])
}

// Encode returns the wire encoding of the block.
func (b *SequencerBlock) Encode() []byte { return wire.Marshal(b) }

// Decode parses an encoded sequencer block.
func Decode(bz []byte) (*SequencerBlock, error) {
	b := &SequencerBlock{}
	err := wire.Decode(bz, func(f wire.Field) (err error) {
		switch f.Num {
		case 1:
			err = copyHash(f, &b.BlockHash)
		case 2:
			b.Header, err = decodeHeader(f)
		case 3:
			var rt RollupTransactions
			if rt, err = decodeRollupTransactions(f); err == nil {
				b.RollupTransactions = append(b.RollupTransactions, rt)
			}
		case 4:
			b.RollupTransactionsProof, err = decodeProof(f)
		case 5:
			b.RollupIDsProof, err = decodeProof(f)
		case 6:
			var h [32]byte
			if err = copyHash(f, &h); err == nil {
				b.UpgradeChangeHashes = append(b.UpgradeChangeHashes, h)
			}
		case 7:
			b.ExtendedCommitInfo, err = f.AsBytes()
		case 8:
			err = copyHash(f, &b.RollupIDsRoot)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("decoding sequencer block: %w", err)
	}
	return b, nil
}

func (f *FilteredSequencerBlock) MarshalWire(e *wire.Encoder) {
	e.Bytes(1, f.BlockHash[:])
	e.Message(2, &f.Header)
	for i := range f.RollupTransactions {
		e.Message(3, &f.RollupTransactions[i])
	}
	putProof(e, 4, f.RollupTransactionsProof)
	ids := make([][]byte, len(f.AllRollupIDs))
	for i := range f.AllRollupIDs {
		id := f.AllRollupIDs[i]
		ids[i] = id[:]
	}
	e.RepeatedBytes(5, ids)
	putProof(e, 6, f.RollupIDsProof)
}

// Encode returns the wire encoding of the filtered block.
func (f *FilteredSequencerBlock) Encode() []byte { return wire.Marshal(f) }

// DecodeFiltered parses an encoded filtered sequencer block.
func DecodeFiltered(bz []byte) (*FilteredSequencerBlock, error) {
	out := &FilteredSequencerBlock{}
	err := wire.Decode(bz, func(f wire.Field) (err error) {
		switch f.Num {
		case 1:
			err = copyHash(f, &out.BlockHash)
		case 2:
			out.Header, err = decodeHeader(f)
		case 3:
			var rt RollupTransactions
			if rt, err = decodeRollupTransactions(f); err == nil {
				out.RollupTransactions = append(out.RollupTransactions, rt)
			}
		case 4:
			out.RollupTransactionsProof, err = decodeProof(f)
		case 5:
			var raw []byte
			if raw, err = f.AsBytes(); err != nil {
				return err
			}
			var id rollup.ID
			if id, err = rollup.IDFromSlice(raw); err == nil {
				out.AllRollupIDs = append(out.AllRollupIDs, id)
			}
		case 6:
			out.RollupIDsProof, err = decodeProof(f)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("decoding filtered sequencer block: %w", err)
	}
	return out, nil
}

func hashesToSlices(hashes [][32]byte) [][]byte {
	out := make([][]byte, len(hashes))
	for i := range hashes {
		out[i] = bytes.Clone(hashes[i][:])
	}
	return out
}
