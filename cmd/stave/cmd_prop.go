package main

import (
	"fmt"

	"github.com/crotchet/stave/pkg/score"
	"github.com/spf13/cobra"
)

func newPropCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prop <owner>/<name>",
		Short: "Show or update score properties",
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

			s, err := w.Engine.GetScore(cmd.Context(), id)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "property %s\n", s.Property)
			fmt.Fprintf(out, "Title:       %s\n", s.Title)
			fmt.Fprintf(out, "Description: %s\n", s.Description)
			return nil
		},
	}

	cmd.AddCommand(newPropSetCmd())

	return cmd
}

func newPropSetCmd() *cobra.Command {
	var title string
	var description string
	var parent string

	cmd := &cobra.Command{
		Use:   "set <owner>/<name>",
		Short: "Update title or description",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Only flags the user passed travel in the update; absent
			// fields keep their prior values.
			op := score.UpdateProperty{}
			if cmd.Flags().Changed("title") {
				op.Title = &title
			}
			if cmd.Flags().Changed("description") {
				op.Description = &description
			}
			if op.Title == nil && op.Description == nil {
				return fmt.Errorf("nothing to set (--title or --description)")
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
			parentHash, err := w.propertyParent(ctx, id, parent)
			if err != nil {
				return err
			}

			res, err := w.Engine.UpdateProperty(ctx, id, parentHash, op)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "[%s] property %s\n", id, shortHash(res.Property))
			return nil
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVar(&description, "description", "", "new description")
	cmd.Flags().StringVar(&parent, "parent", "", "declared parent property hash (default: current head)")

	return cmd
}
