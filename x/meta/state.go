// Package meta stores chain level data: chain id, revision, the current block
// height and time, consensus params and the storage version committed at each
// height. It also carries the per transaction context and the events emitted
// while executing a transaction.
package meta

import (
	"strconv"
	"strings"
	"time"

	errorsmod "cosmossdk.io/errors"
	cmtproto "github.com/cometbft/cometbft/proto/tendermint/types"
	gogoproto "github.com/cosmos/gogoproto/proto"

	"github.com/astriaorg/astria-sequencer/pkg/storage"
	"github.com/astriaorg/astria-sequencer/pkg/storedvalue"
)

var (
	ErrNotSet      = errorsmod.Register(ModuleName, 2, "chain metadata not set")
	ErrNoTxContext = errorsmod.Register(ModuleName, 3, "no transaction context in state")
)

func PutChainID(w storage.Writer, chainID string) error {
	return storage.PutValue(w, chainIDKey, storedvalue.ChainID{Value: chainID})
}

func ChainID(r storage.Reader) (string, error) {
	v, found, err := storage.GetValue[storedvalue.ChainID](r, chainIDKey)
	if err != nil {
		return "", err
	}
	if !found {
		return "", errorsmod.Wrap(ErrNotSet, "chain id")
	}
	return v.Value, nil
}

func PutRevisionNumber(w storage.Writer, n uint64) error {
	return storage.PutValue(w, revisionNumberKey, storedvalue.RevisionNumber{Value: n})
}

// RevisionFromChainID parses the IBC revision from chain ids of the form
// "name-N", defaulting to 0.
func RevisionFromChainID(chainID string) uint64 {
	i := strings.LastIndexByte(chainID, '-')
	if i < 0 || i == len(chainID)-1 {
		return 0
	}
	n, err := strconv.ParseUint(chainID[i+1:], 10, 64)
	if err != nil || chainID[i+1] == '0' {
		return 0
	}
	return n
}

// RevisionNumber defaults to 0.
func RevisionNumber(r storage.Reader) (uint64, error) {
	v, _, err := storage.GetValue[storedvalue.RevisionNumber](r, revisionNumberKey)
	return v.Value, err
}

func PutBlockHeight(w storage.Writer, height uint64) error {
	return storage.PutValue(w, blockHeightKey, storedvalue.BlockHeight{Value: height})
}

// BlockHeight is 0 before the first block.
func BlockHeight(r storage.Reader) (uint64, error) {
	v, _, err := storage.GetValue[storedvalue.BlockHeight](r, blockHeightKey)
	return v.Value, err
}

func PutBlockTimestamp(w storage.Writer, t time.Time) error {
	return storage.PutValue(w, blockTimestampKey, storedvalue.BlockTimestamp{UnixNanos: t.UnixNano()})
}

func BlockTimestamp(r storage.Reader) (time.Time, error) {
	v, found, err := storage.GetValue[storedvalue.BlockTimestamp](r, blockTimestampKey)
	if err != nil {
		return time.Time{}, err
	}
	if !found {
		return time.Time{}, errorsmod.Wrap(ErrNotSet, "block timestamp")
	}
	return time.Unix(0, v.UnixNanos).UTC(), nil
}

// PutStorageVersion records the store version holding the state after height.
func PutStorageVersion(w storage.Writer, height, version uint64) error {
	return storage.PutValue(w, storageVersionKey(height), storedvalue.StorageVersion{Value: version})
}

func StorageVersion(r storage.Reader, height uint64) (uint64, bool, error) {
	v, found, err := storage.GetValue[storedvalue.StorageVersion](r, storageVersionKey(height))
	return v.Value, found, err
}

func PutConsensusParams(w storage.Writer, params *cmtproto.ConsensusParams) error {
	bz, err := gogoproto.Marshal(params)
	if err != nil {
		return errorsmod.Wrap(err, "encoding consensus params")
	}
	return storage.PutValue(w, consensusParamsKey, storedvalue.ConsensusParams{Encoded: bz})
}

func ConsensusParams(r storage.Reader) (*cmtproto.ConsensusParams, bool, error) {
	v, found, err := storage.GetValue[storedvalue.ConsensusParams](r, consensusParamsKey)
	if err != nil || !found {
		return nil, found, err
	}
	params := &cmtproto.ConsensusParams{}
	if err := gogoproto.Unmarshal(v.Encoded, params); err != nil {
		return nil, false, errorsmod.Wrap(err, "decoding consensus params")
	}
	return params, true, nil
}
