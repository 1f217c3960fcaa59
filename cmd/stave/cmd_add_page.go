package main

import (
	"fmt"

	"github.com/crotchet/stave/pkg/score"
	"github.com/spf13/cobra"
)

func newAddPageCmd() *cobra.Command {
	var number string
	var parent string

	cmd := &cobra.Command{
		Use:   "add-page <owner>/<name> <image-file> [thumb-file]",
		Short: "Append a page to a score",
		Args:  cobra.RangeArgs(2, 3),
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
			thumbPath := ""
			if len(args) == 3 {
				thumbPath = args[2]
			}
			image, thumb, err := storePageMedia(ctx, w.Blobs, args[1], thumbPath)
			if err != nil {
				return err
			}

			parentHash, err := w.snapshotParent(ctx, id, parent)
			if err != nil {
				return err
			}

			res, err := w.Engine.Commit(ctx, id, parentHash, []score.Op{
				score.AddPage{Image: string(image), Thumb: string(thumb), Number: number},
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "[%s v%d] %d pages, snapshot %s\n", id, res.Version, len(res.Pages), shortHash(res.Snapshot))
			return nil
		},
	}

	cmd.Flags().StringVar(&number, "number", "", "page number label")
	cmd.Flags().StringVar(&parent, "parent", "", "declared parent snapshot hash (default: current head)")

	return cmd
}
