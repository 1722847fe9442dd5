// Package grpcstore keeps committed sequencer blocks so the read API can
// serve them by height or by block hash.
package grpcstore

import (
	"encoding/hex"
	"strconv"

	errorsmod "cosmossdk.io/errors"

	"github.com/astriaorg/astria-sequencer/pkg/sequencerblock"
	"github.com/astriaorg/astria-sequencer/pkg/storage"
	"github.com/astriaorg/astria-sequencer/pkg/storedvalue"
)

const ModuleName = "grpc"

var ErrBlockNotFound = errorsmod.Register(ModuleName, 2, "sequencer block not found")

func blockHashKey(height uint64) string {
	return "grpc/block_hash/" + strconv.FormatUint(height, 10)
}

func sequencerBlockKey(hash [32]byte) string {
	return "grpc/sequencer_block/" + hex.EncodeToString(hash[:])
}

// PutSequencerBlock indexes b under its height and hash. Blocks are written
// once, at the commit of their height.
func PutSequencerBlock(w storage.Writer, b *sequencerblock.SequencerBlock) error {
	if err := storage.PutValue(w, blockHashKey(b.Header.Height), storedvalue.BlockHash{Value: b.BlockHash}); err != nil {
		return err
	}
	return storage.PutValue(w, sequencerBlockKey(b.BlockHash), storedvalue.SequencerBlock{Encoded: b.Encode()})
}

// BlockHashByHeight returns the hash of the block at height.
func BlockHashByHeight(r storage.Reader, height uint64) ([32]byte, error) {
	v, found, err := storage.GetValue[storedvalue.BlockHash](r, blockHashKey(height))
	if err != nil {
		return [32]byte{}, err
	}
	if !found {
		return [32]byte{}, errorsmod.Wrapf(ErrBlockNotFound, "height %d", height)
	}
	return v.Value, nil
}

func SequencerBlockByHash(r storage.Reader, hash [32]byte) (*sequencerblock.SequencerBlock, error) {
	v, found, err := storage.GetValue[storedvalue.SequencerBlock](r, sequencerBlockKey(hash))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errorsmod.Wrapf(ErrBlockNotFound, "hash %x", hash)
	}
	b, err := sequencerblock.Decode(v.Encoded)
	if err != nil {
		return nil, errorsmod.Wrapf(err, "decoding block %x", hash)
	}
	return b, nil
}

func SequencerBlockByHeight(r storage.Reader, height uint64) (*sequencerblock.SequencerBlock, error) {
	hash, err := BlockHashByHeight(r, height)
	if err != nil {
		return nil, err
	}
	return SequencerBlockByHash(r, hash)
}
