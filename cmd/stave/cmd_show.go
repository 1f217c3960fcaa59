package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <owner>/<name> [version]",
		Short: "Show a score's pages and properties",
		Args:  cobra.RangeArgs(1, 2),
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

			label := "latest"
			if len(args) == 2 {
				label = args[1]
			}

			s, err := w.Engine.GetVersion(cmd.Context(), id, label)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "score %s v%d\n", s.ID, s.Version)
			fmt.Fprintf(out, "Snapshot: %s\n", fullHash(s.Snapshot))
			fmt.Fprintf(out, "Property: %s\n", fullHash(s.Property))
			fmt.Fprintf(out, "Title:    %s\n", s.Title)
			if s.Description != "" {
				fmt.Fprintf(out, "Desc:     %s\n", s.Description)
			}
			fmt.Fprintln(out)

			if len(s.Pages) == 0 {
				fmt.Fprintln(out, "no pages")
				return nil
			}
			fmt.Fprintln(out, "Pages:")
			for i, p := range s.Pages {
				num := p.Number
				if num == "" {
					num = "-"
				}
				fmt.Fprintf(out, "  %d: %s image=%s thumb=%s\n", i, num, shortRef(p.ImageRef), shortRef(p.ThumbRef))
			}
			return nil
		},
	}
}
