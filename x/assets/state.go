// Package assets stores the native asset, the denom records that map ibc
// prefixed ids back to their trace, and the assets allowed for paying fees.
package assets

import (
	"strings"

	errorsmod "cosmossdk.io/errors"

	"github.com/astriaorg/astria-sequencer/pkg/actions"
	"github.com/astriaorg/astria-sequencer/pkg/asset"
	"github.com/astriaorg/astria-sequencer/pkg/storage"
	"github.com/astriaorg/astria-sequencer/pkg/storedvalue"
	"github.com/astriaorg/astria-sequencer/x/authority"
	"github.com/astriaorg/astria-sequencer/x/meta"
)

const ModuleName = "assets"

const (
	nativeKey      = "assets/native"
	denomPrefix    = "assets/denom/"
	feeAssetPrefix = "assets/fee_asset/"
)

var (
	ErrNativeNotSet       = errorsmod.Register(ModuleName, 2, "native asset not set")
	ErrUnknownDenom       = errorsmod.Register(ModuleName, 3, "denom is not known")
	ErrLastFeeAsset       = errorsmod.Register(ModuleName, 4, "cannot remove the last allowed fee asset")
	ErrFeeAssetNotAllowed = errorsmod.Register(ModuleName, 5, "asset is not allowed for paying fees")
)

func denomKey(id asset.IbcPrefixed) string    { return denomPrefix + id.Hex() }
func feeAssetKey(id asset.IbcPrefixed) string { return feeAssetPrefix + id.Hex() }

func traceValue(t asset.TracePrefixed) storedvalue.TracePrefixedDenom {
	return storedvalue.TracePrefixedDenom{Trace: t.Trace, BaseDenom: t.BaseDenom}
}

func PutNativeAsset(w storage.Writer, t asset.TracePrefixed) error {
	return storage.PutValue(w, nativeKey, traceValue(t))
}

func NativeAsset(r storage.Reader) (asset.TracePrefixed, error) {
	v, found, err := storage.GetValue[storedvalue.TracePrefixedDenom](r, nativeKey)
	if err != nil {
		return asset.TracePrefixed{}, err
	}
	if !found {
		return asset.TracePrefixed{}, ErrNativeNotSet
	}
	return asset.TracePrefixed{Trace: v.Trace, BaseDenom: v.BaseDenom}, nil
}

// PutDenom records the trace of t under its ibc prefixed id.
func PutDenom(w storage.Writer, t asset.TracePrefixed) error {
	return storage.PutValue(w, denomKey(t.ToIbcPrefixed()), traceValue(t))
}

// Denom returns the trace recorded for id.
func Denom(r storage.Reader, id asset.IbcPrefixed) (asset.TracePrefixed, bool, error) {
	v, found, err := storage.GetValue[storedvalue.TracePrefixedDenom](r, denomKey(id))
	if err != nil || !found {
		return asset.TracePrefixed{}, found, err
	}
	return asset.TracePrefixed{Trace: v.Trace, BaseDenom: v.BaseDenom}, true, nil
}

// HasDenom reports whether d, in either form, has a record.
func HasDenom(r storage.Reader, d asset.Denom) (bool, error) {
	_, found, err := Denom(r, d.ToIbcPrefixed())
	return found, err
}

// EnsureKnown fails with ErrUnknownDenom if d has no record.
func EnsureKnown(r storage.Reader, d asset.Denom) error {
	found, err := HasDenom(r, d)
	if err != nil {
		return err
	}
	if !found {
		return errorsmod.Wrap(ErrUnknownDenom, d.String())
	}
	return nil
}

// Resolve maps an ibc prefixed denom to its trace when a record exists.
func Resolve(r storage.Reader, d asset.Denom) (asset.Denom, error) {
	if _, ok := d.AsTrace(); ok {
		return d, nil
	}
	t, found, err := Denom(r, d.ToIbcPrefixed())
	if err != nil {
		return asset.Denom{}, err
	}
	if !found {
		return d, nil
	}
	return asset.FromTrace(t), nil
}

func PutFeeAsset(w storage.Writer, id asset.IbcPrefixed) error {
	return storage.PutValue(w, feeAssetKey(id), storedvalue.Unit{})
}

func DeleteFeeAsset(w storage.Writer, id asset.IbcPrefixed) { w.Delete(feeAssetKey(id)) }

func IsFeeAsset(r storage.Reader, id asset.IbcPrefixed) (bool, error) {
	_, found, err := storage.GetValue[storedvalue.Unit](r, feeAssetKey(id))
	return found, err
}

// FeeAssets lists the allowed fee assets in key order.
func FeeAssets(r storage.Reader) ([]asset.IbcPrefixed, error) {
	var (
		out    []asset.IbcPrefixed
		decErr error
	)
	err := r.Iterate(feeAssetPrefix, func(key string, _ []byte) bool {
		id, err := asset.ParseIbcPrefixed("ibc/" + strings.TrimPrefix(key, feeAssetPrefix))
		if err != nil {
			decErr = err
			return false
		}
		out = append(out, id)
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, decErr
}

// ExecuteFeeAssetChange adds or removes an allowed fee asset. The last one
// cannot be removed.
func ExecuteFeeAssetChange(w storage.Writer, a *actions.FeeAssetChange) error {
	tx, err := meta.CurrentTx(w)
	if err != nil {
		return err
	}
	if err := authority.EnsureSudo(w, tx.Signer); err != nil {
		return err
	}
	id := a.Asset.ToIbcPrefixed()
	if a.Op == actions.OpAddition {
		if t, ok := a.Asset.AsTrace(); ok {
			if err := PutDenom(w, t); err != nil {
				return err
			}
		}
		return PutFeeAsset(w, id)
	}
	DeleteFeeAsset(w, id)
	remaining, err := FeeAssets(w)
	if err != nil {
		return err
	}
	if len(remaining) == 0 {
		return ErrLastFeeAsset
	}
	return nil
}
