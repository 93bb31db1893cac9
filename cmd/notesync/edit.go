package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/notesync/pkg/core"
)

var (
	editTitle   string
	editContent string
	editLabels  []string
)

var editCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Update the title, content or labels of a note",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var patch core.Patch
		if cmd.Flags().Changed("title") {
			patch.Title = &editTitle
		}
		if cmd.Flags().Changed("content") {
			patch.Content = &editContent
		}
		if cmd.Flags().Changed("label") {
			patch.Labels = &editLabels
		}
		if patch == (core.Patch{}) {
			return fmt.Errorf("nothing to change: pass --title, --content or --label")
		}

		s, _, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		n, err := s.UpdateNote(cmd.Context(), args[0], patch)
		if err != nil {
			return err
		}
		if n.ID == "" {
			return fmt.Errorf("not authenticated, nothing written")
		}
		fmt.Fprintln(cmd.OutOrStdout(), n.ID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(editCmd)
	editCmd.Flags().StringVarP(&editTitle, "title", "t", "", "New title")
	editCmd.Flags().StringVarP(&editContent, "content", "m", "", "New content")
	editCmd.Flags().StringSliceVarP(&editLabels, "label", "l", nil, "Replace labels (repeatable)")
}
