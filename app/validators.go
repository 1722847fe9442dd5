package app

import (
	"context"
	"fmt"

	"github.com/cometbft/cometbft/crypto"
	"github.com/cometbft/cometbft/crypto/ed25519"
	rpchttp "github.com/cometbft/cometbft/rpc/client/http"

	"github.com/astriaorg/astria-sequencer/pkg/storage"
	"github.com/astriaorg/astria-sequencer/x/authority"
)

// ValidatorSource returns the keys of the validators that voted at a
// height, keyed by their CometBFT address.
type ValidatorSource interface {
	ValidatorsAt(ctx context.Context, height int64) (map[string]crypto.PubKey, error)
}

// StateValidators reads the validator set kept in state. Validator updates
// take effect in CometBFT two heights after the app returns them, so this
// source can lag behind a changing set; CometValidators does not.
type StateValidators struct {
	store *storage.Storage
}

func NewStateValidators(store *storage.Storage) StateValidators {
	return StateValidators{store: store}
}

func (s StateValidators) ValidatorsAt(context.Context, int64) (map[string]crypto.PubKey, error) {
	vals, err := authority.ValidatorSet(s.store.LatestSnapshot())
	if err != nil {
		return nil, err
	}
	out := make(map[string]crypto.PubKey, len(vals))
	for _, v := range vals {
		pk := ed25519.PubKey(append([]byte(nil), v.PubKey[:]...))
		out[string(pk.Address())] = pk
	}
	return out, nil
}

// CometValidators asks the CometBFT RPC for the validator set of a height.
type CometValidators struct {
	client *rpchttp.HTTP
}

// NewCometValidators connects to the CometBFT RPC at addr.
func NewCometValidators(addr string) (*CometValidators, error) {
	client, err := rpchttp.New(addr, "/websocket")
	if err != nil {
		return nil, fmt.Errorf("connecting to cometbft rpc at %s: %w", addr, err)
	}
	return &CometValidators{client: client}, nil
}

func (c *CometValidators) ValidatorsAt(ctx context.Context, height int64) (map[string]crypto.PubKey, error) {
	out := map[string]crypto.PubKey{}
	perPage := 100
	for page := 1; ; page++ {
		p := page
		res, err := c.client.Validators(ctx, &height, &p, &perPage)
		if err != nil {
			return nil, fmt.Errorf("fetching validators at height %d: %w", height, err)
		}
		for _, v := range res.Validators {
			out[string(v.Address)] = v.PubKey
		}
		if len(out) >= res.Total || len(res.Validators) == 0 {
			return out, nil
		}
	}
}
