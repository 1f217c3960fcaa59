package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify [owner]",
		Short: "Check object graph integrity, optionally for one owner",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := openWorkspace(".")
			if err != nil {
				return err
			}
			defer w.Close()

			owner := ""
			if len(args) == 1 {
				owner = args[0]
			}

			report, err := w.Engine.Verify(cmd.Context(), owner)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if report.Clean() {
				fmt.Fprintf(
					out,
					"ok: verified %d score(s), %d reachable object(s), %d orphan(s)\n",
					report.Scores,
					report.Reachable,
					len(report.Orphans),
				)
				return nil
			}

			for _, h := range report.Missing {
				fmt.Fprintf(out, "missing %s\n", h)
			}
			for _, h := range report.Corrupt {
				fmt.Fprintf(out, "corrupt %s\n", h)
			}
			return fmt.Errorf("verify: %d missing, %d corrupt object(s)", len(report.Missing), len(report.Corrupt))
		},
	}
}
