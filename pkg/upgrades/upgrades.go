// Package upgrades describes the network upgrades a node knows how to apply.
// An upgrade activates at a fixed height and consists of named changes. Each
// change has a deterministic Borsh encoding whose SHA256 is recorded in the
// block that applies it, so observers can verify which variant ran.
package upgrades

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/near/borsh-go"

	"github.com/astriaorg/astria-sequencer/pkg/pricefeed"
)

const (
	AspenName = "aspen"

	PriceFeedChangeName                 = "price_feed_change"
	ValidatorUpdateActionChangeName     = "validator_update_action_change"
	IbcAcknowledgementFailureChangeName = "ibc_acknowledgement_failure_change"
)

var (
	ErrUnknownUpgrade   = errors.New("unknown upgrade")
	ErrMissingField     = errors.New("upgrade field not set")
	ErrDuplicateHeight  = errors.New("two upgrades share an activation height")
	ErrInvalidHeight    = errors.New("activation height must be non-zero")
	ErrAppVersionNotNew = errors.New("app versions must increase with activation height")
)

// ChangeHash is SHA256 of a change's Borsh encoding.
type ChangeHash [32]byte

func (h ChangeHash) String() string { return fmt.Sprintf("%x", h[:]) }

// ChangeInfo is what gets stored for every applied change.
type ChangeInfo struct {
	ActivationHeight uint64
	AppVersion       uint64
	Hash             ChangeHash
}

func (i ChangeInfo) String() string {
	return fmt.Sprintf("activation_height: %d, app_version: %d, change_hash: %s", i.ActivationHeight, i.AppVersion, i.Hash)
}

// Change is one step of an upgrade.
type Change interface {
	Name() string
	ActivationHeight() uint64
	AppVersion() uint64
	borshValue() any
}

// Hash returns the change hash of c.
func Hash(c Change) (ChangeHash, error) {
	bz, err := borsh.Serialize(c.borshValue())
	if err != nil {
		return ChangeHash{}, fmt.Errorf("borsh encoding change %s: %w", c.Name(), err)
	}
	return sha256.Sum256(bz), nil
}

// Info returns the stored form of c.
func Info(c Change) (ChangeInfo, error) {
	h, err := Hash(c)
	if err != nil {
		return ChangeInfo{}, err
	}
	return ChangeInfo{ActivationHeight: c.ActivationHeight(), AppVersion: c.AppVersion(), Hash: h}, nil
}

type base struct {
	activationHeight uint64
	appVersion       uint64
}

func (b base) ActivationHeight() uint64 { return b.activationHeight }
func (b base) AppVersion() uint64       { return b.appVersion }

// PriceFeedChange enables vote extensions from the block after activation
// and seeds the market map and oracle.
type PriceFeedChange struct {
	base
	Genesis pricefeed.Genesis
}

func (PriceFeedChange) Name() string { return PriceFeedChangeName }

func (c PriceFeedChange) borshValue() any {
	return struct {
		ActivationHeight uint64
		AppVersion       uint64
		Genesis          borshGenesis
	}{c.activationHeight, c.appVersion, newBorshGenesis(c.Genesis)}
}

// ValidatorUpdateActionChange allows naming validators in ValidatorUpdate.
type ValidatorUpdateActionChange struct{ base }

func (ValidatorUpdateActionChange) Name() string { return ValidatorUpdateActionChangeName }

func (c ValidatorUpdateActionChange) borshValue() any { return c.plain() }

// IbcAcknowledgementFailureChange makes failed ICS20 transfers acknowledge
// with a fixed error string.
type IbcAcknowledgementFailureChange struct{ base }

func (IbcAcknowledgementFailureChange) Name() string { return IbcAcknowledgementFailureChangeName }

func (c IbcAcknowledgementFailureChange) borshValue() any { return c.plain() }

func (b base) plain() any {
	return struct {
		ActivationHeight uint64
		AppVersion       uint64
	}{b.activationHeight, b.appVersion}
}

// Upgrade is a named set of changes activating at one height.
type Upgrade interface {
	Name() string
	ActivationHeight() uint64
	AppVersion() uint64
	// ShutdownRequired is set when the node must be restarted with a new
	// binary before the upgrade height.
	ShutdownRequired() bool
	Changes() []Change
}

// Aspen introduces the price feed, named validators and fixed ICS20 failure
// acknowledgements.
type Aspen struct {
	base
	shutdownRequired bool

	PriceFeed                 PriceFeedChange
	ValidatorUpdateAction     ValidatorUpdateActionChange
	IbcAcknowledgementFailure IbcAcknowledgementFailureChange
}

// NewAspen builds the aspen upgrade.
func NewAspen(activationHeight, appVersion uint64, genesis pricefeed.Genesis) *Aspen {
	b := base{activationHeight: activationHeight, appVersion: appVersion}
	return &Aspen{
		base:                      b,
		PriceFeed:                 PriceFeedChange{base: b, Genesis: genesis},
		ValidatorUpdateAction:     ValidatorUpdateActionChange{base: b},
		IbcAcknowledgementFailure: IbcAcknowledgementFailureChange{base: b},
	}
}

func (*Aspen) Name() string { return AspenName }

func (a *Aspen) ShutdownRequired() bool { return a.shutdownRequired }

func (a *Aspen) Changes() []Change {
	return []Change{a.PriceFeed, a.ValidatorUpdateAction, a.IbcAcknowledgementFailure}
}

// Upgrades is the table of known upgrades, ordered by activation height.
type Upgrades struct {
	list []Upgrade
}

// Empty returns a table without upgrades.
func Empty() *Upgrades { return &Upgrades{} }

// New builds a table, checking heights and app versions are consistent.
func New(list ...Upgrade) (*Upgrades, error) {
	sorted := append([]Upgrade(nil), list...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ActivationHeight() < sorted[j].ActivationHeight() })
	for i, u := range sorted {
		if u.ActivationHeight() == 0 {
			return nil, fmt.Errorf("%w: %s", ErrInvalidHeight, u.Name())
		}
		if i == 0 {
			continue
		}
		prev := sorted[i-1]
		if prev.ActivationHeight() == u.ActivationHeight() {
			return nil, fmt.Errorf("%w: %s and %s", ErrDuplicateHeight, prev.Name(), u.Name())
		}
		if prev.AppVersion() >= u.AppVersion() {
			return nil, fmt.Errorf("%w: %s has %d, %s has %d", ErrAppVersionNotNew, prev.Name(), prev.AppVersion(), u.Name(), u.AppVersion())
		}
	}
	return &Upgrades{list: sorted}, nil
}

// All returns the upgrades in activation order.
func (u *Upgrades) All() []Upgrade { return u.list }

// ActivatingAt returns the upgrade whose activation height is height.
func (u *Upgrades) ActivatingAt(height uint64) (Upgrade, bool) {
	for _, up := range u.list {
		if up.ActivationHeight() == height {
			return up, true
		}
	}
	return nil, false
}

// Aspen returns the aspen upgrade if scheduled.
func (u *Upgrades) Aspen() (*Aspen, bool) {
	for _, up := range u.list {
		if a, ok := up.(*Aspen); ok {
			return a, true
		}
	}
	return nil, false
}

// ChangeActive reports whether the named change has activated at or before
// height.
func (u *Upgrades) ChangeActive(name string, height uint64) bool {
	for _, up := range u.list {
		for _, c := range up.Changes() {
			if c.Name() == name && c.ActivationHeight() <= height {
				return true
			}
		}
	}
	return false
}

type baseInfoJSON struct {
	ActivationHeight uint64 `json:"activation_height"`
	AppVersion       uint64 `json:"app_version"`
}

type aspenJSON struct {
	BaseInfo         *baseInfoJSON `json:"base_info"`
	ShutdownRequired bool          `json:"shutdown_required"`
	PriceFeedChange  *struct {
		Genesis *pricefeed.Genesis `json:"genesis"`
	} `json:"price_feed_change"`
	ValidatorUpdateActionChange     *struct{} `json:"validator_update_action_change"`
	IbcAcknowledgementFailureChange *struct{} `json:"ibc_acknowledgement_failure_change"`
}

// Parse reads an upgrades file. Every known upgrade is an optional top level
// key; unknown keys are rejected.
func Parse(bz []byte) (*Upgrades, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(bz, &raw); err != nil {
		return nil, fmt.Errorf("decoding upgrades json: %w", err)
	}
	var list []Upgrade
	for name, msg := range raw {
		switch name {
		case AspenName:
			a, err := parseAspen(msg)
			if err != nil {
				return nil, fmt.Errorf("upgrade %s: %w", name, err)
			}
			list = append(list, a)
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownUpgrade, name)
		}
	}
	return New(list...)
}

func parseAspen(msg json.RawMessage) (*Aspen, error) {
	var raw aspenJSON
	if err := json.Unmarshal(msg, &raw); err != nil {
		return nil, err
	}
	switch {
	case raw.BaseInfo == nil:
		return nil, fmt.Errorf("%w: base_info", ErrMissingField)
	case raw.PriceFeedChange == nil:
		return nil, fmt.Errorf("%w: price_feed_change", ErrMissingField)
	case raw.PriceFeedChange.Genesis == nil:
		return nil, fmt.Errorf("%w: price_feed_change.genesis", ErrMissingField)
	case raw.ValidatorUpdateActionChange == nil:
		return nil, fmt.Errorf("%w: validator_update_action_change", ErrMissingField)
	case raw.IbcAcknowledgementFailureChange == nil:
		return nil, fmt.Errorf("%w: ibc_acknowledgement_failure_change", ErrMissingField)
	}
	for _, m := range raw.PriceFeedChange.Genesis.MarketMap.MarketMap.Markets {
		if err := m.Validate(); err != nil {
			return nil, err
		}
	}
	a := NewAspen(raw.BaseInfo.ActivationHeight, raw.BaseInfo.AppVersion, *raw.PriceFeedChange.Genesis)
	a.shutdownRequired = raw.ShutdownRequired
	return a, nil
}

// Load reads the upgrades file at path.
func Load(path string) (*Upgrades, error) {
	bz, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading upgrades file: %w", err)
	}
	return Parse(bz)
}
