package app

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"

	errorsmod "cosmossdk.io/errors"
	abci "github.com/cometbft/cometbft/abci/types"
	cmtcrypto "github.com/cometbft/cometbft/proto/tendermint/crypto"

	apperr "github.com/astriaorg/astria-sequencer/app/errors"
	"github.com/astriaorg/astria-sequencer/pkg/address"
	"github.com/astriaorg/astria-sequencer/pkg/amount"
	"github.com/astriaorg/astria-sequencer/pkg/asset"
	"github.com/astriaorg/astria-sequencer/pkg/rollup"
	"github.com/astriaorg/astria-sequencer/pkg/storage"
	"github.com/astriaorg/astria-sequencer/pkg/transaction"
	"github.com/astriaorg/astria-sequencer/x/accounts"
	xaddress "github.com/astriaorg/astria-sequencer/x/address"
	"github.com/astriaorg/astria-sequencer/x/assets"
	"github.com/astriaorg/astria-sequencer/x/bridge"
	"github.com/astriaorg/astria-sequencer/x/fees"
	"github.com/astriaorg/astria-sequencer/x/meta"
)

// ProofOpType names the ics23 proofs attached to store queries.
const ProofOpType = "ics23:iavl"

// AssetBalance is an account's balance of one asset.
type AssetBalance struct {
	Denom   string        `json:"denom"`
	Balance amount.Amount `json:"balance"`
}

// BridgeAccountInfo describes a bridge account.
type BridgeAccountInfo struct {
	RollupID          rollup.ID       `json:"rollup_id"`
	Asset             string          `json:"asset"`
	SudoAddress       address.Address `json:"sudo_address"`
	WithdrawerAddress address.Address `json:"withdrawer_address"`
}

// TransactionFee is the fee a transaction pays in one asset.
type TransactionFee struct {
	Asset string        `json:"asset"`
	Fee   amount.Amount `json:"fee"`
}

type queryHandler func(r storage.Reader, arg string, req *abci.RequestQuery) (any, error)

var queryRoutes = map[string]queryHandler{
	"accounts/balance":            queryBalance,
	"accounts/nonce":              queryNonce,
	"asset/denom":                 queryDenom,
	"fees/components":             queryFeeComponents,
	"bridge/account_info":         queryBridgeAccountInfo,
	"bridge/account_last_tx_hash": queryBridgeLastTxHash,
	"transaction/fee":             queryTransactionFee,
	"app/allowed_fee_assets":      queryAllowedFeeAssets,
	"app/native_asset":            queryNativeAsset,
}

// Query serves read requests against committed state. Height 0 reads the
// latest committed state. The raw path "store" returns the value stored under
// the key in req.Data, with an ics23 proof against the app hash when
// req.Prove is set.
func (app *App) Query(_ context.Context, req *abci.RequestQuery) (*abci.ResponseQuery, error) {
	snap, err := app.snapshotAtHeight(req.Height)
	if err != nil {
		return queryError(err, req.Height, app.cfg.Debug), nil
	}
	height, err := queryHeight(snap)
	if err != nil {
		return queryError(err, req.Height, app.cfg.Debug), nil
	}

	path := strings.Trim(req.Path, "/")
	if path == "store" {
		return app.queryStore(snap, height, req), nil
	}
	route, arg := path, ""
	handler, ok := queryRoutes[route]
	if !ok {
		if i := strings.LastIndexByte(path, '/'); i > 0 {
			route, arg = path[:i], path[i+1:]
			handler, ok = queryRoutes[route]
		}
	}
	if !ok {
		return queryError(errorsmod.Wrap(apperr.ErrUnknownPath, req.Path), height, app.cfg.Debug), nil
	}
	out, err := handler(snap, arg, req)
	if err != nil {
		return queryError(err, height, app.cfg.Debug), nil
	}
	bz, err := json.Marshal(out)
	if err != nil {
		return queryError(errorsmod.Wrap(apperr.ErrInternal, err.Error()), height, app.cfg.Debug), nil
	}
	return &abci.ResponseQuery{Key: []byte(path), Value: bz, Height: height}, nil
}

// snapshotAtHeight maps a block height to the store version holding the
// state committed at it.
func (app *App) snapshotAtHeight(height int64) (*storage.Snapshot, error) {
	latest := app.store.LatestSnapshot()
	if height == 0 {
		return latest, nil
	}
	if height < 0 {
		return nil, errorsmod.Wrapf(apperr.ErrInvalidParameter, "negative height %d", height)
	}
	version, found, err := meta.StorageVersion(latest, uint64(height))
	if err != nil {
		return nil, errorsmod.Wrap(apperr.ErrInternal, err.Error())
	}
	if !found {
		return nil, errorsmod.Wrapf(apperr.ErrInvalidParameter, "no state at height %d", height)
	}
	snap, err := app.store.SnapshotAt(int64(version))
	if err != nil {
		return nil, errorsmod.Wrapf(apperr.ErrInvalidParameter, "state at height %d: %s", height, err)
	}
	return snap, nil
}

func queryHeight(r storage.Reader) (int64, error) {
	h, err := meta.BlockHeight(r)
	if err != nil {
		return 0, errorsmod.Wrap(apperr.ErrInternal, err.Error())
	}
	return int64(h), nil
}

func (app *App) queryStore(snap *storage.Snapshot, height int64, req *abci.RequestQuery) *abci.ResponseQuery {
	key := string(req.Data)
	if !req.Prove {
		value, err := snap.Get(key)
		if err != nil {
			return queryError(errorsmod.Wrap(apperr.ErrInternal, err.Error()), height, app.cfg.Debug)
		}
		return &abci.ResponseQuery{Key: req.Data, Value: value, Height: height}
	}
	value, proof, err := snap.GetWithProof(key)
	if err != nil {
		return queryError(errorsmod.Wrap(apperr.ErrInternal, err.Error()), height, app.cfg.Debug)
	}
	bz, err := proof.Marshal()
	if err != nil {
		return queryError(errorsmod.Wrap(apperr.ErrInternal, err.Error()), height, app.cfg.Debug)
	}
	return &abci.ResponseQuery{
		Key:    req.Data,
		Value:  value,
		Height: height,
		ProofOps: &cmtcrypto.ProofOps{Ops: []cmtcrypto.ProofOp{
			{Type: ProofOpType, Key: req.Data, Data: bz},
		}},
	}
}

func queryError(err error, height int64, debug bool) *abci.ResponseQuery {
	space, code, log := apperr.ABCIInfo(err, debug)
	return &abci.ResponseQuery{Codespace: space, Code: code, Log: log, Height: height}
}

func parseQueryAddress(r storage.Reader, s string) ([address.Length]byte, error) {
	addr, err := address.Parse(s)
	if err != nil {
		return [address.Length]byte{}, errorsmod.Wrapf(apperr.ErrInvalidParameter, "address %q: %s", s, err)
	}
	if err := xaddress.EnsureBaseOrCompat(r, addr); err != nil {
		return [address.Length]byte{}, errorsmod.Wrap(apperr.ErrInvalidParameter, err.Error())
	}
	return addr.Bytes(), nil
}

// displayDenom prefers the trace form of id when it is known.
func displayDenom(r storage.Reader, id asset.IbcPrefixed) (string, error) {
	trace, found, err := assets.Denom(r, id)
	if err != nil {
		return "", err
	}
	if found {
		return trace.String(), nil
	}
	return id.String(), nil
}

func queryBalance(r storage.Reader, arg string, _ *abci.RequestQuery) (any, error) {
	addr, err := parseQueryAddress(r, arg)
	if err != nil {
		return nil, err
	}
	balances, err := accounts.Balances(r, addr)
	if err != nil {
		return nil, err
	}
	out := make([]AssetBalance, 0, len(balances))
	for id, bal := range balances {
		denom, err := displayDenom(r, id)
		if err != nil {
			return nil, err
		}
		out = append(out, AssetBalance{Denom: denom, Balance: bal})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Denom < out[j].Denom })
	return out, nil
}

func queryNonce(r storage.Reader, arg string, _ *abci.RequestQuery) (any, error) {
	addr, err := parseQueryAddress(r, arg)
	if err != nil {
		return nil, err
	}
	nonce, err := accounts.Nonce(r, addr)
	if err != nil {
		return nil, err
	}
	return struct {
		Nonce uint32 `json:"nonce"`
	}{nonce}, nil
}

func queryDenom(r storage.Reader, arg string, _ *abci.RequestQuery) (any, error) {
	id, err := asset.ParseIbcPrefixed(arg)
	if err != nil {
		raw, herr := hex.DecodeString(arg)
		if herr != nil || len(raw) != len(id) {
			return nil, errorsmod.Wrapf(apperr.ErrInvalidParameter, "asset id %q", arg)
		}
		copy(id[:], raw)
	}
	trace, found, err := assets.Denom(r, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errorsmod.Wrapf(apperr.ErrInvalidParameter, "unknown asset %s", id)
	}
	return struct {
		Denom string `json:"denom"`
	}{trace.String()}, nil
}

func queryFeeComponents(r storage.Reader, _ string, _ *abci.RequestQuery) (any, error) {
	all, err := fees.AllComponents(r)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(all))
	for k, c := range all {
		out[k.String()] = c
	}
	return out, nil
}

func queryBridgeAccountInfo(r storage.Reader, arg string, _ *abci.RequestQuery) (any, error) {
	addr, err := parseQueryAddress(r, arg)
	if err != nil {
		return nil, err
	}
	info, found, err := bridge.Info(r, addr)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errorsmod.Wrapf(apperr.ErrInvalidParameter, "%s is not a bridge account", arg)
	}
	prefix, err := xaddress.BasePrefix(r)
	if err != nil {
		return nil, err
	}
	denom, err := displayDenom(r, info.Asset)
	if err != nil {
		return nil, err
	}
	return BridgeAccountInfo{
		RollupID:          info.RollupID,
		Asset:             denom,
		SudoAddress:       address.New(prefix, info.Sudo),
		WithdrawerAddress: address.New(prefix, info.Withdrawer),
	}, nil
}

func queryBridgeLastTxHash(r storage.Reader, arg string, _ *abci.RequestQuery) (any, error) {
	addr, err := parseQueryAddress(r, arg)
	if err != nil {
		return nil, err
	}
	id, found, err := bridge.LastTxID(r, addr)
	if err != nil {
		return nil, err
	}
	out := struct {
		TxHash *string `json:"tx_hash"`
	}{}
	if found {
		h := id.Hex()
		out.TxHash = &h
	}
	return out, nil
}

// queryTransactionFee computes the fees the unsigned body in req.Data would
// pay, grouped by asset.
func queryTransactionFee(r storage.Reader, _ string, req *abci.RequestQuery) (any, error) {
	body, err := transaction.DecodeBody(req.Data)
	if err != nil {
		return nil, errorsmod.Wrapf(apperr.ErrInvalidParameter, "decoding transaction body: %s", err)
	}
	feeAsset, err := assets.Resolve(r, body.FeeAsset)
	if err != nil {
		return nil, errorsmod.Wrap(apperr.ErrInvalidParameter, err.Error())
	}
	total := amount.Amount{}
	for i, a := range body.Actions {
		variable, err := feeVariable(r, a)
		if err != nil {
			return nil, errorsmod.Wrapf(apperr.ErrInvalidParameter, "action %d: %s", i, err)
		}
		fee, err := fees.Compute(r, a.Kind(), variable)
		if err != nil {
			return nil, errorsmod.Wrapf(apperr.ErrInvalidParameter, "action %d: %s", i, err)
		}
		if total, err = total.Add(fee); err != nil {
			return nil, errorsmod.Wrap(apperr.ErrInvalidParameter, err.Error())
		}
	}
	return []TransactionFee{{Asset: feeAsset.String(), Fee: total}}, nil
}

func queryAllowedFeeAssets(r storage.Reader, _ string, _ *abci.RequestQuery) (any, error) {
	ids, err := assets.FeeAssets(r)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		denom, err := displayDenom(r, id)
		if err != nil {
			return nil, err
		}
		out = append(out, denom)
	}
	return out, nil
}

func queryNativeAsset(r storage.Reader, _ string, _ *abci.RequestQuery) (any, error) {
	native, err := assets.NativeAsset(r)
	if err != nil {
		return nil, err
	}
	return struct {
		Denom string `json:"denom"`
		ID    string `json:"id"`
	}{native.String(), native.ToIbcPrefixed().String()}, nil
}
