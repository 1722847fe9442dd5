// Package upgrades records which upgrade changes a chain has applied and
// checks a node's upgrade table against that record on startup.
package upgrades

import (
	"strings"

	errorsmod "cosmossdk.io/errors"

	"github.com/astriaorg/astria-sequencer/pkg/storage"
	"github.com/astriaorg/astria-sequencer/pkg/storedvalue"
	"github.com/astriaorg/astria-sequencer/pkg/upgrades"
)

const ModuleName = "upgrades"

const keyPrefix = "upgrades/"

var (
	ErrChangeNotApplied = errorsmod.Register(ModuleName, 2, "upgrade change was not applied")
	ErrChangeMismatch   = errorsmod.Register(ModuleName, 3, "stored upgrade change differs from local")
)

func changeKey(upgrade, change string) string { return keyPrefix + upgrade + "/" + change }

// PutChangeInfo records that change of upgrade was applied.
func PutChangeInfo(w storage.Writer, upgrade string, change upgrades.Change) error {
	info, err := upgrades.Info(change)
	if err != nil {
		return err
	}
	return storage.PutValue(w, changeKey(upgrade, change.Name()), storedvalue.ChangeInfo{
		ActivationHeight: info.ActivationHeight,
		AppVersion:       info.AppVersion,
		Hash:             info.Hash,
	})
}

func ChangeInfo(r storage.Reader, upgrade, change string) (upgrades.ChangeInfo, bool, error) {
	v, found, err := storage.GetValue[storedvalue.ChangeInfo](r, changeKey(upgrade, change))
	if err != nil || !found {
		return upgrades.ChangeInfo{}, found, err
	}
	return upgrades.ChangeInfo{ActivationHeight: v.ActivationHeight, AppVersion: v.AppVersion, Hash: v.Hash}, true, nil
}

// AppliedChange is a stored change record.
type AppliedChange struct {
	Upgrade string
	Change  string
	Info    upgrades.ChangeInfo
}

// Applied lists every stored change record ordered by key.
func Applied(r storage.Reader) ([]AppliedChange, error) {
	var (
		out    []AppliedChange
		decErr error
	)
	err := r.Iterate(keyPrefix, func(key string, value []byte) bool {
		upgrade, change, _ := strings.Cut(strings.TrimPrefix(key, keyPrefix), "/")
		v, err := storedvalue.Deserialize[storedvalue.ChangeInfo](value)
		if err != nil {
			decErr = errorsmod.Wrap(err, key)
			return false
		}
		out = append(out, AppliedChange{
			Upgrade: upgrade,
			Change:  change,
			Info:    upgrades.ChangeInfo{ActivationHeight: v.ActivationHeight, AppVersion: v.AppVersion, Hash: v.Hash},
		})
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, decErr
}

// ApplyUpgrade records every change of u.
func ApplyUpgrade(w storage.Writer, u upgrades.Upgrade) ([]upgrades.ChangeHash, error) {
	hashes := make([]upgrades.ChangeHash, 0, len(u.Changes()))
	for _, c := range u.Changes() {
		if err := PutChangeInfo(w, u.Name(), c); err != nil {
			return nil, err
		}
		h, err := upgrades.Hash(c)
		if err != nil {
			return nil, err
		}
		hashes = append(hashes, h)
	}
	return hashes, nil
}

// VerifyHistory checks that every upgrade of table that activated at or
// before height was applied exactly as the table describes it. A node
// started with a table that rewrites history must not run.
func VerifyHistory(r storage.Reader, table *upgrades.Upgrades, height uint64) error {
	for _, u := range table.All() {
		if u.ActivationHeight() > height {
			continue
		}
		for _, c := range u.Changes() {
			stored, found, err := ChangeInfo(r, u.Name(), c.Name())
			if err != nil {
				return err
			}
			if !found {
				return errorsmod.Wrapf(ErrChangeNotApplied, "%s/%s at height %d", u.Name(), c.Name(), u.ActivationHeight())
			}
			local, err := upgrades.Info(c)
			if err != nil {
				return err
			}
			if stored != local {
				return errorsmod.Wrapf(ErrChangeMismatch, "%s/%s: stored %s, local %s", u.Name(), c.Name(), stored, local)
			}
		}
	}
	return nil
}
