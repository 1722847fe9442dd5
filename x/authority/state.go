// Package authority owns the sudo address and the validator set.
// Validator updates are staged during the block and applied at its end.
package authority

import (
	"bytes"
	"sort"

	errorsmod "cosmossdk.io/errors"
	abci "github.com/cometbft/cometbft/abci/types"

	"github.com/astriaorg/astria-sequencer/pkg/address"
	"github.com/astriaorg/astria-sequencer/pkg/storage"
	"github.com/astriaorg/astria-sequencer/pkg/storedvalue"
)

const ModuleName = "authority"

const (
	sudoKey         = "authority/sudo"
	validatorSetKey = "authority/validator_set"

	// ephemeral
	validatorUpdatesKey = "authority/validator_updates"
)

var (
	ErrSudoNotSet             = errorsmod.Register(ModuleName, 2, "sudo address not set")
	ErrNotSudo                = errorsmod.Register(ModuleName, 3, "signer is not the sudo address")
	ErrEmptyValidatorSet      = errorsmod.Register(ModuleName, 4, "validator set must not be empty")
	ErrUnknownValidator       = errorsmod.Register(ModuleName, 5, "validator is not in the set")
	ErrValidatorNamesDisabled = errorsmod.Register(ModuleName, 6, "validator names are not enabled")
)

// Validator is an entry of the validator set.
type Validator struct {
	PubKey [32]byte
	Power  uint64
	Name   string
}

func PutSudo(w storage.Writer, sudo [address.Length]byte) error {
	return storage.PutValue(w, sudoKey, storedvalue.AddressBytes{Value: sudo})
}

func Sudo(r storage.Reader) ([address.Length]byte, error) {
	v, found, err := storage.GetValue[storedvalue.AddressBytes](r, sudoKey)
	if err != nil {
		return [address.Length]byte{}, err
	}
	if !found {
		return [address.Length]byte{}, ErrSudoNotSet
	}
	return v.Value, nil
}

// EnsureSudo checks signer is the sudo address.
func EnsureSudo(r storage.Reader, signer [address.Length]byte) error {
	sudo, err := Sudo(r)
	if err != nil {
		return err
	}
	if sudo != signer {
		return ErrNotSudo
	}
	return nil
}

func sortValidators(vals []Validator) {
	sort.Slice(vals, func(i, j int) bool { return bytes.Compare(vals[i].PubKey[:], vals[j].PubKey[:]) < 0 })
}

// PutValidatorSet stores vals sorted by public key.
func PutValidatorSet(w storage.Writer, vals []Validator) error {
	sorted := append([]Validator(nil), vals...)
	sortValidators(sorted)
	set := storedvalue.ValidatorSet{Validators: make([]storedvalue.Validator, len(sorted))}
	for i, v := range sorted {
		set.Validators[i] = storedvalue.Validator{VerificationKey: v.PubKey, Power: v.Power, Name: v.Name}
	}
	return storage.PutValue(w, validatorSetKey, set)
}

func ValidatorSet(r storage.Reader) ([]Validator, error) {
	set, _, err := storage.GetValue[storedvalue.ValidatorSet](r, validatorSetKey)
	if err != nil {
		return nil, err
	}
	out := make([]Validator, len(set.Validators))
	for i, v := range set.Validators {
		out[i] = Validator{PubKey: v.VerificationKey, Power: v.Power, Name: v.Name}
	}
	return out, nil
}

// PendingValidatorUpdates returns the updates staged in this block, sorted
// by public key.
func PendingValidatorUpdates(r storage.Reader) []Validator {
	staged, _ := storage.GetObject[map[[32]byte]Validator](r, validatorUpdatesKey)
	out := make([]Validator, 0, len(staged))
	for _, v := range staged {
		out = append(out, v)
	}
	sortValidators(out)
	return out
}

// StageValidatorUpdate queues v. A later update for the same key replaces an
// earlier one.
func StageValidatorUpdate(w storage.Writer, v Validator) {
	prev, _ := storage.GetObject[map[[32]byte]Validator](w, validatorUpdatesKey)
	next := make(map[[32]byte]Validator, len(prev)+1)
	for k, val := range prev {
		next[k] = val
	}
	next[v.PubKey] = v
	w.PutObject(validatorUpdatesKey, next)
}

// mergeUpdates returns set with updates applied; zero power removes.
func mergeUpdates(set, updates []Validator) ([]Validator, error) {
	byKey := make(map[[32]byte]Validator, len(set))
	for _, v := range set {
		byKey[v.PubKey] = v
	}
	for _, u := range updates {
		if u.Power == 0 {
			if _, ok := byKey[u.PubKey]; !ok {
				return nil, errorsmod.Wrapf(ErrUnknownValidator, "%x", u.PubKey)
			}
			delete(byKey, u.PubKey)
			continue
		}
		byKey[u.PubKey] = u
	}
	if len(byKey) == 0 {
		return nil, ErrEmptyValidatorSet
	}
	out := make([]Validator, 0, len(byKey))
	for _, v := range byKey {
		out = append(out, v)
	}
	sortValidators(out)
	return out, nil
}

// ApplyValidatorUpdates folds the staged updates into the stored set and
// returns them in the form CometBFT expects.
func ApplyValidatorUpdates(w storage.Writer) ([]abci.ValidatorUpdate, error) {
	updates := PendingValidatorUpdates(w)
	w.DeleteObject(validatorUpdatesKey)
	if len(updates) == 0 {
		return nil, nil
	}
	set, err := ValidatorSet(w)
	if err != nil {
		return nil, err
	}
	merged, err := mergeUpdates(set, updates)
	if err != nil {
		return nil, err
	}
	if err := PutValidatorSet(w, merged); err != nil {
		return nil, err
	}
	out := make([]abci.ValidatorUpdate, len(updates))
	for i, u := range updates {
		out[i] = abci.Ed25519ValidatorUpdate(u.PubKey[:], int64(u.Power))
	}
	return out, nil
}
