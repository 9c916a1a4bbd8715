package main

import (
	"github.com/spf13/cobra"

	"github.com/ernado/osc-babysitter/internal/helper"
)

func (p *program) execCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exec <program> [args...]",
		Short: "Run a helper program",
		Long:  "Run an external helper program, reporting its failure.",
		Args:  usageArgs(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return helper.Run(cmd.Context(), helper.Command{
				Name:   args[0],
				Args:   args[1:],
				Stdin:  cmd.InOrStdin(),
				Stdout: cmd.OutOrStdout(),
				Stderr: cmd.ErrOrStderr(),
			})
		},
	}
	cmd.Flags().SetInterspersed(false)

	return cmd
}
