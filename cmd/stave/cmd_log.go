package main

import (
	"fmt"

	"github.com/crotchet/stave/pkg/score"
	"github.com/spf13/cobra"
)

func newLogCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "log <owner>/<name>",
		Short: "Show a score's version history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := openWorkspace(".")
			if err != nil {
				return err
			}
			defer w.Close()

			id, err := w.parseScoreID(args[0])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			head, err := w.Engine.Head(ctx, id)
			if err != nil {
				return err
			}

			// The index iterates oldest first; collect so the newest can
			// print first.
			var entries []score.VersionEntry
			for entry, err := range w.Engine.ListVersions(ctx, id) {
				if err != nil {
					return err
				}
				entries = append(entries, entry)
			}

			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "no versions yet")
				return nil
			}

			shown := 0
			for i := len(entries) - 1; i >= 0 && shown < limit; i-- {
				e := entries[i]
				line := fmt.Sprintf("v%d %s", e.Number, shortHash(e.Snapshot))
				if e.Number == head.Version {
					line += " (head)"
				}
				fmt.Fprintln(out, line)
				shown++
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of versions to show")

	return cmd
}
