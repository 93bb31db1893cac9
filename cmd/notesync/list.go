package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aretw0/notesync/pkg/core"
	"github.com/aretw0/notesync/pkg/view"
)

var (
	listJSON bool
	query    view.Query
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List notes, pinned first then most recently updated",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, snap, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		notes := view.Filter(snap.Notes, query)
		if listJSON {
			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			return encoder.Encode(notes)
		}
		printNotes(cmd.OutOrStdout(), notes)
		return nil
	},
}

func printNotes(w io.Writer, notes []core.Note) {
	for _, n := range notes {
		marker := " "
		if n.Pinned {
			marker = "*"
		}
		title := n.Title
		if title == "" {
			title = firstLine(n.Content)
		}
		line := fmt.Sprintf("%s %s  %s", marker, n.ID, title)
		if len(n.Labels) > 0 {
			line += "  [" + strings.Join(n.Labels, ", ") + "]"
		}
		fmt.Fprintln(w, line)
	}
}

func firstLine(s string) string {
	s, _, _ = strings.Cut(strings.TrimSpace(s), "\n")
	return s
}

func addQueryFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&query.Text, "search", "s", "", "Case-insensitive text search")
	cmd.Flags().BoolVar(&query.Archived, "archived", false, "Show the archive instead of active notes")
	cmd.Flags().StringVarP(&query.Label, "label", "l", "", "Label glob, e.g. work/**")
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output in JSON format")
	addQueryFlags(listCmd)
}
