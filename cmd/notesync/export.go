package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/aretw0/notesync/pkg/export"
	"github.com/aretw0/notesync/pkg/view"
)

var exportAll bool

var exportCmd = &cobra.Command{
	Use:   "export <dir>",
	Short: "Write every note as Markdown with YAML frontmatter",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, snap, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		notes := snap.Notes
		if !exportAll {
			notes = view.Filter(notes, query)
		}

		count, err := export.WriteDir(args[0], notes)
		if err != nil {
			return err
		}
		slog.Debug("export finished", "dir", args[0], "count", count)
		fmt.Fprintf(cmd.OutOrStdout(), "exported %d notes to %s\n", count, args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().BoolVar(&exportAll, "all", false, "Export active and archived notes, ignoring filters")
	addQueryFlags(exportCmd)
}
