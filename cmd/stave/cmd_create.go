package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCreateCmd() *cobra.Command {
	var title string
	var description string

	cmd := &cobra.Command{
		Use:   "create <owner>/<name>",
		Short: "Create a new empty score",
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

			s, err := w.Engine.Create(cmd.Context(), id, title, description)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "created %s at v%d\n", s.ID, s.Version)
			return nil
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "initial title")
	cmd.Flags().StringVar(&description, "description", "", "initial description")

	return cmd
}
