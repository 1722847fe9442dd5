package authority

import (
	"github.com/astriaorg/astria-sequencer/pkg/actions"
	"github.com/astriaorg/astria-sequencer/pkg/storage"
	"github.com/astriaorg/astria-sequencer/x/address"
	"github.com/astriaorg/astria-sequencer/x/meta"
)

func ExecuteSudoAddressChange(w storage.Writer, a *actions.SudoAddressChange) error {
	tx, err := meta.CurrentTx(w)
	if err != nil {
		return err
	}
	if err := EnsureSudo(w, tx.Signer); err != nil {
		return err
	}
	if err := address.EnsureBase(w, a.NewAddress); err != nil {
		return err
	}
	return PutSudo(w, a.NewAddress.Bytes())
}

// ExecuteValidatorUpdate stages the update. Names are only accepted once
// namesEnabled.
func ExecuteValidatorUpdate(w storage.Writer, a *actions.ValidatorUpdate, namesEnabled bool) error {
	tx, err := meta.CurrentTx(w)
	if err != nil {
		return err
	}
	if err := EnsureSudo(w, tx.Signer); err != nil {
		return err
	}
	if a.Name != "" && !namesEnabled {
		return ErrValidatorNamesDisabled
	}
	update := Validator{PubKey: a.VerificationKey, Power: uint64(a.Power), Name: a.Name}

	// reject now rather than at the end of the block
	set, err := ValidatorSet(w)
	if err != nil {
		return err
	}
	staged := []Validator{update}
	for _, v := range PendingValidatorUpdates(w) {
		if v.PubKey != update.PubKey {
			staged = append(staged, v)
		}
	}
	if _, err := mergeUpdates(set, staged); err != nil {
		return err
	}
	StageValidatorUpdate(w, update)
	return nil
}
