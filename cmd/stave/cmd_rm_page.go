package main

import (
	"fmt"

	"github.com/crotchet/stave/pkg/score"
	"github.com/spf13/cobra"
)

func newRmPageCmd() *cobra.Command {
	var at int
	var parent string

	cmd := &cobra.Command{
		Use:   "rm-page <owner>/<name>",
		Short: "Delete the page at an index, shifting later pages left",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if at < 0 {
				return fmt.Errorf("page index is required (--at)")
			}

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
			parentHash, err := w.snapshotParent(ctx, id, parent)
			if err != nil {
				return err
			}

			res, err := w.Engine.Commit(ctx, id, parentHash, []score.Op{
				score.DeletePage{Index: at},
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "[%s v%d] %d pages, snapshot %s\n", id, res.Version, len(res.Pages), shortHash(res.Snapshot))
			return nil
		},
	}

	cmd.Flags().IntVar(&at, "at", -1, "0-based index of the page to delete")
	cmd.Flags().StringVar(&parent, "parent", "", "declared parent snapshot hash (default: current head)")

	return cmd
}
