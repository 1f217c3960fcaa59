package main

import (
	"fmt"
	"os"

	"github.com/crotchet/stave/pkg/archive"
	"github.com/spf13/cobra"
)

func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <archive-file>",
		Short: "Install a score from an archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := openWorkspace(".")
			if err != nil {
				return err
			}
			defer w.Close()

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open archive: %w", err)
			}
			defer f.Close()

			res, err := archive.Import(cmd.Context(), w.Objects, w.State, f)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch res.Status {
			case archive.ImportUpToDate:
				fmt.Fprintf(out, "%s is up to date at v%d\n", res.Score, res.Head.Version)
			default:
				fmt.Fprintf(out, "%s %s at v%d (%d new objects)\n", res.Score, res.Status, res.Head.Version, res.Objects)
			}
			return nil
		},
	}
}
