package main

import (
	"github.com/spf13/cobra"
)

func (p *program) apiCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "api <path>",
		Short: "Issue a GET request to the build service",
		Long:  "Issue a GET request to the build service API and print the response body.",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := p.client(cmd)
			if err != nil {
				return err
			}
			return client.Get(cmd.Context(), args[0], cmd.OutOrStdout())
		},
	}

	return cmd
}
