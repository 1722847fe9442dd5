// Package sequencerblock builds the commitments a sequencer block makes over
// rollup data, the data items prepended to every block, and the sequencer
// block and filtered block served to rollup conductors.
package sequencerblock

import (
	"crypto/sha256"

	"github.com/cometbft/cometbft/crypto/merkle"

	"github.com/astriaorg/astria-sequencer/pkg/rollup"
)

// RollupGroup holds the items sequenced for one rollup in block order.
type RollupGroup struct {
	ID    rollup.ID
	Items [][]byte
}

// RollupData accumulates rollup items, keeping rollups in the order they
// first appear in the block.
type RollupData struct {
	order []rollup.ID
	items map[rollup.ID][][]byte
}

func NewRollupData() *RollupData {
	return &RollupData{items: make(map[rollup.ID][][]byte)}
}

// Append adds item to the rollup's group.
func (d *RollupData) Append(id rollup.ID, item []byte) {
	if _, ok := d.items[id]; !ok {
		d.order = append(d.order, id)
	}
	d.items[id] = append(d.items[id], item)
}

// Len returns the number of rollups seen.
func (d *RollupData) Len() int { return len(d.order) }

// Groups returns the groups in first appearance order.
func (d *RollupData) Groups() []RollupGroup {
	out := make([]RollupGroup, len(d.order))
	for i, id := range d.order {
		out[i] = RollupGroup{ID: id, Items: d.items[id]}
	}
	return out
}

// Commitments are the two roots every block commits to.
type Commitments struct {
	RollupTransactionsRoot [32]byte
	RollupIDsRoot          [32]byte
}

// MerkleRoot is the RFC 6962 root over items.
func MerkleRoot(items [][]byte) [32]byte {
	var out [32]byte
	copy(out[:], merkle.HashFromByteSlices(items))
	return out
}

// RollupTxRoot is the root over a rollup's items.
func RollupTxRoot(items [][]byte) [32]byte { return MerkleRoot(items) }

// RollupLeaf is SHA256(rollup id || rollup tx root), the leaf committed for a
// rollup in the rollup transactions tree.
func RollupLeaf(id rollup.ID, txRoot [32]byte) []byte {
	h := sha256.New()
	h.Write(id[:])
	h.Write(txRoot[:])
	return h.Sum(nil)
}

func rollupLeaves(groups []RollupGroup) [][]byte {
	leaves := make([][]byte, len(groups))
	for i, g := range groups {
		leaves[i] = RollupLeaf(g.ID, RollupTxRoot(g.Items))
	}
	return leaves
}

func rollupIDLeaves(groups []RollupGroup) [][]byte {
	ids := make([][]byte, len(groups))
	for i, g := range groups {
		id := g.ID
		ids[i] = id[:]
	}
	return ids
}

// ComputeCommitments derives both roots from the grouped rollup data.
func ComputeCommitments(groups []RollupGroup) Commitments {
	return Commitments{
		RollupTransactionsRoot: MerkleRoot(rollupLeaves(groups)),
		RollupIDsRoot:          MerkleRoot(rollupIDLeaves(groups)),
	}
}

// rollupProofs returns the audit path of every rollup leaf.
func rollupProofs(groups []RollupGroup) []*merkle.Proof {
	_, proofs := merkle.ProofsFromByteSlices(rollupLeaves(groups))
	return proofs
}
