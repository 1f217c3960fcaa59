package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list [owner]",
		Short: "List scores, optionally for one owner",
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

			ctx := cmd.Context()
			ids, err := w.Engine.ListScores(ctx, owner)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(ids) == 0 {
				fmt.Fprintln(out, "no scores")
				return nil
			}
			for _, id := range ids {
				head, err := w.Engine.Head(ctx, id)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s v%d\n", id, head.Version)
			}
			return nil
		},
	}
}
