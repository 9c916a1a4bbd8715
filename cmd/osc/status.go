package main

import (
	"fmt"

	"github.com/go-faster/errors"
	"github.com/spf13/cobra"

	"github.com/ernado/osc-babysitter/internal/wc"
)

func (p *program) statusCommand() *cobra.Command {
	var remote bool
	cmd := &cobra.Command{
		Use:   "status [dir]",
		Short: "Show working copy information",
		Long:  "Show project, package and revision of a working copy.",
		Args:  usageArgs(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}

			w, err := wc.Open(p.fs, dir)
			if err != nil {
				return errors.Wrap(err, "open working copy")
			}

			out := cmd.OutOrStdout()
			if _, err := fmt.Fprintf(out, "project: %s\n", w.Project); err != nil {
				return errors.Wrap(err, "write")
			}
			if !w.IsPackage() {
				return nil
			}
			if _, err := fmt.Fprintf(out, "package: %s\nrevision: %s\n", w.Package, w.Rev); err != nil {
				return errors.Wrap(err, "write")
			}
			if !remote {
				return nil
			}

			client, err := p.client(cmd)
			if err != nil {
				return err
			}
			rev, err := client.Revision(cmd.Context(), w.Project, w.Package)
			if err != nil {
				return errors.Wrap(err, "get remote revision")
			}
			return w.CheckRevision(rev)
		},
	}
	cmd.Flags().BoolVar(&remote, "remote", false, "fail if the working copy is behind the server")

	return cmd
}
