package accounts

import (
	"github.com/astriaorg/astria-sequencer/pkg/actions"
	"github.com/astriaorg/astria-sequencer/pkg/address"
	"github.com/astriaorg/astria-sequencer/pkg/storage"
	xaddress "github.com/astriaorg/astria-sequencer/x/address"
	"github.com/astriaorg/astria-sequencer/x/assets"
	"github.com/astriaorg/astria-sequencer/x/meta"
)

// BridgeChecker reports whether an account is a bridge account.
type BridgeChecker interface {
	IsBridgeAccount(r storage.Reader, addr [address.Length]byte) (bool, error)
}

// Keeper executes transfers.
type Keeper struct {
	bridges BridgeChecker
}

func NewKeeper(bridges BridgeChecker) Keeper {
	return Keeper{bridges: bridges}
}

// ExecuteTransfer moves funds from the signer, which must not be a bridge
// account, to the recipient.
func (k Keeper) ExecuteTransfer(w storage.Writer, a *actions.Transfer) error {
	tx, err := meta.CurrentTx(w)
	if err != nil {
		return err
	}
	isBridge, err := k.bridges.IsBridgeAccount(w, tx.Signer)
	if err != nil {
		return err
	}
	if isBridge {
		return ErrBridgeSender
	}
	if err := xaddress.EnsureBase(w, a.To); err != nil {
		return err
	}
	if err := assets.EnsureKnown(w, a.Asset); err != nil {
		return err
	}
	id := a.Asset.ToIbcPrefixed()
	if err := DecreaseBalance(w, tx.Signer, id, a.Amount); err != nil {
		return err
	}
	return IncreaseBalance(w, a.To.Bytes(), id, a.Amount)
}
