// Package fees stores the fee components of every action kind, charges fees
// while actions execute and records the fees paid in the block.
package fees

import (
	"strconv"

	errorsmod "cosmossdk.io/errors"
	abci "github.com/cometbft/cometbft/abci/types"

	"github.com/astriaorg/astria-sequencer/pkg/actions"
	"github.com/astriaorg/astria-sequencer/pkg/amount"
	"github.com/astriaorg/astria-sequencer/pkg/asset"
	"github.com/astriaorg/astria-sequencer/pkg/storage"
	"github.com/astriaorg/astria-sequencer/pkg/storedvalue"
	"github.com/astriaorg/astria-sequencer/pkg/transaction"
	"github.com/astriaorg/astria-sequencer/x/accounts"
	"github.com/astriaorg/astria-sequencer/x/assets"
	"github.com/astriaorg/astria-sequencer/x/authority"
	"github.com/astriaorg/astria-sequencer/x/meta"
)

const ModuleName = "fees"

const (
	componentsPrefix = "fees/"

	// ephemeral
	blockFeesKey = "fees/block"
)

// EventTypeTxFees is emitted once per fee payment.
const EventTypeTxFees = "tx.fees"

var (
	ErrActionDisabled = errorsmod.Register(ModuleName, 2, "fees for action are not set; the action is disabled")
	ErrFeeOverflow    = errorsmod.Register(ModuleName, 3, "fee overflows")
)

func componentsKey(k actions.Kind) string { return componentsPrefix + k.String() }

// Fee is one payment recorded in the block.
type Fee struct {
	Asset               asset.Denom
	Amount              amount.Amount
	SourceTransactionID transaction.ID
	SourceActionIndex   uint64
}

func PutComponents(w storage.Writer, k actions.Kind, c actions.FeeComponents) error {
	return storage.PutValue(w, componentsKey(k), storedvalue.Fees{
		Base:       storedvalue.NewU128(c.Base),
		Multiplier: storedvalue.NewU128(c.Multiplier),
	})
}

func Components(r storage.Reader, k actions.Kind) (actions.FeeComponents, bool, error) {
	v, found, err := storage.GetValue[storedvalue.Fees](r, componentsKey(k))
	if err != nil || !found {
		return actions.FeeComponents{}, found, err
	}
	return actions.FeeComponents{Base: v.Base.Amount(), Multiplier: v.Multiplier.Amount()}, true, nil
}

// AllComponents returns the components of every enabled action kind.
func AllComponents(r storage.Reader) (map[actions.Kind]actions.FeeComponents, error) {
	out := map[actions.Kind]actions.FeeComponents{}
	for _, k := range actions.AllKinds() {
		c, found, err := Components(r, k)
		if err != nil {
			return nil, err
		}
		if found {
			out[k] = c
		}
	}
	return out, nil
}

// Compute returns base + multiplier * variable for kind.
func Compute(r storage.Reader, k actions.Kind, variable uint64) (amount.Amount, error) {
	c, found, err := Components(r, k)
	if err != nil {
		return amount.Amount{}, err
	}
	if !found {
		return amount.Amount{}, errorsmod.Wrap(ErrActionDisabled, k.String())
	}
	scaled, err := c.Multiplier.Mul(amount.New(variable))
	if err != nil {
		return amount.Amount{}, errorsmod.Wrap(ErrFeeOverflow, k.String())
	}
	total, err := c.Base.Add(scaled)
	if err != nil {
		return amount.Amount{}, errorsmod.Wrap(ErrFeeOverflow, k.String())
	}
	return total, nil
}

// Pay charges the fee of the executing action to its signer in feeAsset and
// records it in the block fees.
func Pay(w storage.Writer, k actions.Kind, variable uint64, feeAsset asset.Denom) error {
	tx, err := meta.CurrentTx(w)
	if err != nil {
		return err
	}
	fee, err := Compute(w, k, variable)
	if err != nil {
		return err
	}
	allowed, err := assets.IsFeeAsset(w, feeAsset.ToIbcPrefixed())
	if err != nil {
		return err
	}
	if !allowed {
		return errorsmod.Wrap(assets.ErrFeeAssetNotAllowed, feeAsset.String())
	}
	if fee.IsZero() {
		return nil
	}
	if err := accounts.DecreaseBalance(w, tx.Signer, feeAsset.ToIbcPrefixed(), fee); err != nil {
		return errorsmod.Wrap(err, "paying fee")
	}
	recordFee(w, Fee{Asset: feeAsset, Amount: fee, SourceTransactionID: tx.TxID, SourceActionIndex: tx.ActionIndex})
	meta.EmitEvent(w, abci.Event{
		Type: EventTypeTxFees,
		Attributes: []abci.EventAttribute{
			{Key: "asset", Value: feeAsset.String(), Index: true},
			{Key: "feeAmount", Value: fee.String(), Index: true},
			{Key: "sourceTransactionId", Value: tx.TxID.Hex(), Index: true},
			{Key: "sourceActionIndex", Value: strconv.FormatUint(tx.ActionIndex, 10), Index: true},
			{Key: "actionName", Value: k.String(), Index: true},
		},
	})
	return nil
}

func recordFee(w storage.Writer, f Fee) {
	prev, _ := storage.GetObject[[]Fee](w, blockFeesKey)
	next := make([]Fee, len(prev), len(prev)+1)
	copy(next, prev)
	w.PutObject(blockFeesKey, append(next, f))
}

// BlockFees returns the fees paid so far in the block.
func BlockFees(r storage.Reader) []Fee {
	fees, _ := storage.GetObject[[]Fee](r, blockFeesKey)
	return fees
}

// CreditBlockFees pays the summed block fees to the sudo address and clears
// them. Assets are credited in order of first payment.
func CreditBlockFees(w storage.Writer) error {
	paid := BlockFees(w)
	w.DeleteObject(blockFeesKey)
	if len(paid) == 0 {
		return nil
	}
	sudo, err := authority.Sudo(w)
	if err != nil {
		return err
	}
	var order []asset.IbcPrefixed
	totals := map[asset.IbcPrefixed]amount.Amount{}
	for _, f := range paid {
		id := f.Asset.ToIbcPrefixed()
		cur, ok := totals[id]
		if !ok {
			order = append(order, id)
		}
		sum, err := cur.Add(f.Amount)
		if err != nil {
			return errorsmod.Wrap(ErrFeeOverflow, "summing block fees")
		}
		totals[id] = sum
	}
	for _, id := range order {
		if err := accounts.IncreaseBalance(w, sudo, id, totals[id]); err != nil {
			return err
		}
	}
	return nil
}

// ExecuteFeeChange replaces the components of one action kind.
func ExecuteFeeChange(w storage.Writer, a *actions.FeeChange) error {
	tx, err := meta.CurrentTx(w)
	if err != nil {
		return err
	}
	if err := authority.EnsureSudo(w, tx.Signer); err != nil {
		return err
	}
	return PutComponents(w, a.Action, a.Components)
}
