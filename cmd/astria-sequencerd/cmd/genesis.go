package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/astriaorg/astria-sequencer/pkg/genesis"
	"github.com/astriaorg/astria-sequencer/pkg/upgrades"
)

// validateGenesisCommand checks an app state file without opening a store.
func validateGenesisCommand() *cobra.Command {
	v := newViper()
	cmd := &cobra.Command{
		Use:   "validate-genesis",
		Short: "Validate the app state of a genesis file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := v.BindPFlags(cmd.Flags()); err != nil {
				return err
			}
			path := v.GetString(FlagGenesisFilepath)
			if path == "" {
				return fmt.Errorf("%s must be set", FlagGenesisFilepath)
			}
			g, err := genesis.Load(path)
			if err != nil {
				return err
			}
			if err := g.Validate(); err != nil {
				return fmt.Errorf("invalid genesis %s: %w", path, err)
			}
			cmd.Printf("genesis for native asset %s is valid\n", g.NativeAssetBaseDenom)
			return nil
		},
	}
	cmd.Flags().String(FlagGenesisFilepath, "", "path of the app state json")
	return cmd
}

// upgradesCommand prints the changes of an upgrades file with their hashes,
// so operators can compare them before an activation height.
func upgradesCommand() *cobra.Command {
	v := newViper()
	cmd := &cobra.Command{
		Use:   "upgrades",
		Short: "Show the changes and hashes of an upgrades file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := v.BindPFlags(cmd.Flags()); err != nil {
				return err
			}
			path := v.GetString(FlagUpgradesFilepath)
			if path == "" {
				return fmt.Errorf("%s must be set", FlagUpgradesFilepath)
			}
			table, err := upgrades.Load(path)
			if err != nil {
				return err
			}
			for _, u := range table.All() {
				cmd.Printf("%s at height %d (shutdown required: %t)\n", u.Name(), u.ActivationHeight(), u.ShutdownRequired())
				for _, c := range u.Changes() {
					info, err := upgrades.Info(c)
					if err != nil {
						return err
					}
					cmd.Printf("  %s: %s\n", c.Name(), info)
				}
			}
			return nil
		},
	}
	cmd.Flags().String(FlagUpgradesFilepath, "", "path of the upgrades json file")
	return cmd
}
