package main

import (
	"fmt"
	"os"

	"github.com/crotchet/stave/pkg/archive"
	"github.com/spf13/cobra"
)

func newExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <owner>/<name> <archive-file>",
		Short: "Write a score and its full history to an archive",
		Args:  cobra.ExactArgs(2),
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

			f, err := os.Create(args[1])
			if err != nil {
				return fmt.Errorf("create archive: %w", err)
			}
			if err := archive.Export(cmd.Context(), w.Objects, w.State, id, f); err != nil {
				f.Close()
				os.Remove(args[1])
				return err
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("close archive: %w", err)
			}

			info, err := os.Stat(args[1])
			if err != nil {
				return fmt.Errorf("stat archive: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %s to %s (%d bytes)\n", id, args[1], info.Size())
			return nil
		},
	}
}
