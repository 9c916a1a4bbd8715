package main

import (
	"github.com/spf13/cobra"

	"github.com/ernado/osc-babysitter/internal/config"
)

func ConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print sample configuration",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return config.Write(cmd.OutOrStdout(), config.Sample())
		},
	}

	return cmd
}
