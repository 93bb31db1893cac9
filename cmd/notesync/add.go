package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/notesync/pkg/core"
	"github.com/aretw0/notesync/pkg/export"
)

var (
	addFields core.Fields
	addColor  string
	addFile   string
)

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a note",
	Long: `Create a note from flags, or from a Markdown file with YAML frontmatter
(the format written by 'notesync export'). Flags override the file.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fields := addFields
		if addFile != "" {
			f, err := os.Open(addFile)
			if err != nil {
				return err
			}
			parsed, err := export.Parse(f)
			f.Close()
			if err != nil {
				return fmt.Errorf("%s: %w", addFile, err)
			}
			fields = merge(parsed.Fields, cmd)
		}
		if cmd.Flags().Changed("color") || fields.Color == "" {
			fields.Color = core.Color(addColor)
		}

		s, _, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		n, err := s.CreateNote(cmd.Context(), fields)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), n.ID)
		return nil
	},
}

// merge lays the flags the user actually set over base.
func merge(base core.Fields, cmd *cobra.Command) core.Fields {
	base.CreatedAt, base.UpdatedAt = 0, 0
	if cmd.Flags().Changed("title") {
		base.Title = addFields.Title
	}
	if cmd.Flags().Changed("content") {
		base.Content = addFields.Content
	}
	if cmd.Flags().Changed("pinned") {
		base.Pinned = addFields.Pinned
	}
	if cmd.Flags().Changed("label") {
		base.Labels = addFields.Labels
	}
	return base
}

func init() {
	rootCmd.AddCommand(addCmd)
	addCmd.Flags().StringVarP(&addFields.Title, "title", "t", "", "Note title")
	addCmd.Flags().StringVarP(&addFields.Content, "content", "m", "", "Note content")
	addCmd.Flags().BoolVar(&addFields.Pinned, "pinned", false, "Pin the note")
	addCmd.Flags().StringSliceVarP(&addFields.Labels, "label", "l", nil, "Labels (repeatable)")
	addCmd.Flags().StringVar(&addColor, "color", string(core.DefaultColor), "Palette color")
	addCmd.Flags().StringVarP(&addFile, "file", "f", "", "Import a Markdown file")
}
