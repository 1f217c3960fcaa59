package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

func newInitCmd() *cobra.Command {
	var owner string
	var backend string

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Create an empty stave workspace",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) > 0 {
				path = args[0]
			}

			if backend != backendFS && backend != backendBadger {
				return fmt.Errorf("init: unknown backend %q (want %q or %q)", backend, backendFS, backendBadger)
			}

			abs, err := filepath.Abs(path)
			if err != nil {
				return fmt.Errorf("resolve path: %w", err)
			}

			// Ensure the target directory exists.
			if err := os.MkdirAll(abs, 0o755); err != nil {
				return fmt.Errorf("create directory: %w", err)
			}

			staveDir := filepath.Join(abs, staveDirName)
			if _, err := os.Stat(staveDir); err == nil {
				return fmt.Errorf("init: workspace already exists at %s", staveDir)
			}
			if err := os.MkdirAll(staveDir, 0o755); err != nil {
				return fmt.Errorf("init: mkdir %s: %w", staveDir, err)
			}
			if err := writeConfig(staveDir, defaultConfig(owner, backend)); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "initialized empty stave workspace in %s\n", staveDir+string(filepath.Separator))
			return nil
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "default owner for bare score names")
	cmd.Flags().StringVar(&backend, "backend", backendFS, "storage backend (fs or badger)")

	return cmd
}
