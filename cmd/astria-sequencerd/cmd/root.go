package cmd

import (
	"github.com/spf13/cobra"

	"github.com/astriaorg/astria-sequencer/pkg/appconsts"
)

// NewRootCmd creates the root command of astria-sequencerd.
func NewRootCmd() *cobra.Command {
	rootCommand := &cobra.Command{
		Use:   appconsts.DefaultNodeName + "d",
		Short: "Astria sequencer ABCI application",
		PersistentPreRun: func(command *cobra.Command, _ []string) {
			command.SetOut(command.OutOrStdout())
			command.SetErr(command.ErrOrStderr())
		},
		SilenceUsage: true,
	}
	rootCommand.PersistentFlags().String(FlagConfig, "", "path of a TOML config file")

	rootCommand.AddCommand(
		startCommand(),
		validateGenesisCommand(),
		upgradesCommand(),
		configCommand(),
	)
	return rootCommand
}
