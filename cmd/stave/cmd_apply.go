package main

import (
	"fmt"
	"os"

	"github.com/crotchet/stave/pkg/score"
	"github.com/spf13/cobra"
)

func newApplyCmd() *cobra.Command {
	var parent string

	cmd := &cobra.Command{
		Use:   "apply <owner>/<name> <ops-file>",
		Short: "Apply a JSON operation batch as one commit",
		Long: `Apply reads a JSON array of page operations and commits them atomically.

Each element is an object with an "op" kind (add_page, insert_page,
delete_page) and its arguments, for example:

  [{"op": "add_page", "image": "<ref>", "thumb": "<ref>", "number": "1"},
   {"op": "delete_page", "index": 0}]

Image and thumb values are stored as given; use refs printed by add-page.
Unknown kinds fail the batch unless ops.strict is false in stave.toml.`,
		Args: cobra.ExactArgs(2),
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

			data, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("read ops: %w", err)
			}
			ops, err := score.DecodeOps(data, w.Config.decodeMode())
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			parentHash, err := w.snapshotParent(ctx, id, parent)
			if err != nil {
				return err
			}

			res, err := w.Engine.Commit(ctx, id, parentHash, ops)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "[%s v%d] applied %d ops, %d pages, snapshot %s\n", id, res.Version, len(ops), len(res.Pages), shortHash(res.Snapshot))
			return nil
		},
	}

	cmd.Flags().StringVar(&parent, "parent", "", "declared parent snapshot hash (default: current head)")

	return cmd
}
