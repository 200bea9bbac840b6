// Package commands implements the manualqa command line interface.
package commands

import (
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	debug      bool
}

// NewRootCmd creates the root command with every subcommand attached.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "manualqa",
		Short: "Ask questions about your PDF manuals",
		Long: `manualqa indexes a directory of PDF manuals and answers questions about them.

Documents are split into overlapping token windows, embedded, and stored in a
local vector index. Questions retrieve the closest windows and a language model
answers from them, citing its sources.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file path (default ./config.yaml or ~/.manualqa/config.yaml)")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging")

	cmd.AddCommand(
		newServeCmd(opts),
		newIndexCmd(opts),
		newAddCmd(opts),
		newAskCmd(opts),
		newSearchCmd(opts),
		newStatusCmd(opts),
		newMCPCmd(opts),
		NewVersionCmd(),
	)
	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
