// Package genesis defines the app state section of the CometBFT genesis file
// and the checks it must pass before InitChain writes it.
package genesis

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	cmtbytes "github.com/cometbft/cometbft/libs/bytes"

	"github.com/astriaorg/astria-sequencer/pkg/actions"
	"github.com/astriaorg/astria-sequencer/pkg/address"
	"github.com/astriaorg/astria-sequencer/pkg/amount"
	"github.com/astriaorg/astria-sequencer/pkg/asset"
	"github.com/astriaorg/astria-sequencer/pkg/pricefeed"
)

var (
	ErrMissingPrefix    = errors.New("address prefix must be set")
	ErrWrongPrefix      = errors.New("address does not use the base prefix")
	ErrNoFeeAssets      = errors.New("at least one fee asset must be allowed")
	ErrDuplicateAccount = errors.New("account listed twice")
	ErrInvalidValidator = errors.New("invalid validator")
)

// AddressPrefixes are the human readable parts of sequencer addresses.
// Compat is accepted from IBC counterparties that only speak bech32.
type AddressPrefixes struct {
	Base   string `json:"base"`
	Compat string `json:"compat"`
}

// Account is an initial balance in the native asset.
type Account struct {
	Address address.Address `json:"address"`
	Balance amount.Amount   `json:"balance"`
}

// Validator is an initial validator. When the app state lists none, the
// validators of the CometBFT genesis are used.
type Validator struct {
	VerificationKey cmtbytes.HexBytes `json:"verification_key"`
	Power           uint64            `json:"power"`
	Name            string            `json:"name,omitempty"`
}

// IbcParameters gate IBC.
type IbcParameters struct {
	IbcEnabled                    bool `json:"ibc_enabled"`
	InboundIcs20TransfersEnabled  bool `json:"inbound_ics20_transfers_enabled"`
	OutboundIcs20TransfersEnabled bool `json:"outbound_ics20_transfers_enabled"`
}

// GenesisState is the sequencer app state.
type GenesisState struct {
	AddressPrefixes      AddressPrefixes                        `json:"address_prefixes"`
	AuthoritySudo        address.Address                        `json:"authority_sudo"`
	IbcSudo              address.Address                        `json:"ibc_sudo"`
	IbcRelayers          []address.Address                      `json:"ibc_relayers"`
	InitialValidators    []Validator                            `json:"initial_validators"`
	InitialAccounts      []Account                              `json:"initial_accounts"`
	Fees                 map[actions.Kind]actions.FeeComponents `json:"fees"`
	AllowedFeeAssets     []asset.Denom                          `json:"allowed_fee_assets"`
	NativeAssetBaseDenom string                                 `json:"native_asset_base_denom"`
	IbcParameters        IbcParameters                          `json:"ibc_parameters"`
	PriceFeed            *pricefeed.Genesis                     `json:"price_feed,omitempty"`
}

// Parse decodes and validates app state bytes.
func Parse(bz []byte) (*GenesisState, error) {
	var g GenesisState
	if err := json.Unmarshal(bz, &g); err != nil {
		return nil, fmt.Errorf("decoding app state: %w", err)
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return &g, nil
}

// Load reads app state from a file holding only the app state object.
func Load(path string) (*GenesisState, error) {
	bz, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading genesis: %w", err)
	}
	return Parse(bz)
}

// NativeAsset parses the native asset denom.
func (g *GenesisState) NativeAsset() (asset.TracePrefixed, error) {
	return asset.ParseTracePrefixed(g.NativeAssetBaseDenom)
}

func (g *GenesisState) ensureBase(field string, a address.Address) error {
	if a.Prefix() != g.AddressPrefixes.Base || a.IsCompat() {
		return fmt.Errorf("%w: %s %s", ErrWrongPrefix, field, a)
	}
	return nil
}

// Validate runs the checks that need no state.
func (g *GenesisState) Validate() error {
	if g.AddressPrefixes.Base == "" || g.AddressPrefixes.Compat == "" {
		return ErrMissingPrefix
	}
	if _, err := g.NativeAsset(); err != nil {
		return fmt.Errorf("native asset: %w", err)
	}
	if err := g.ensureBase("authority_sudo", g.AuthoritySudo); err != nil {
		return err
	}
	if err := g.ensureBase("ibc_sudo", g.IbcSudo); err != nil {
		return err
	}
	for _, r := range g.IbcRelayers {
		if err := g.ensureBase("ibc_relayers", r); err != nil {
			return err
		}
	}
	seen := map[[address.Length]byte]bool{}
	for _, a := range g.InitialAccounts {
		if err := g.ensureBase("initial_accounts", a.Address); err != nil {
			return err
		}
		if seen[a.Address.Bytes()] {
			return fmt.Errorf("%w: %s", ErrDuplicateAccount, a.Address)
		}
		seen[a.Address.Bytes()] = true
	}
	for i, v := range g.InitialValidators {
		if len(v.VerificationKey) != 32 {
			return fmt.Errorf("%w %d: verification key must be 32 bytes", ErrInvalidValidator, i)
		}
		if len(v.Name) > actions.MaxValidatorNameLength {
			return fmt.Errorf("%w %d: %w", ErrInvalidValidator, i, actions.ErrValidatorName)
		}
	}
	if len(g.AllowedFeeAssets) == 0 {
		return ErrNoFeeAssets
	}
	if g.PriceFeed != nil {
		for _, m := range g.PriceFeed.MarketMap.MarketMap.Markets {
			if err := m.Validate(); err != nil {
				return fmt.Errorf("price feed: %w", err)
			}
		}
		if admin := g.PriceFeed.MarketMap.Params.Admin; !admin.IsZero() {
			if err := g.ensureBase("price_feed admin", admin); err != nil {
				return err
			}
		}
	}
	return nil
}
