package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/notesync"
	"github.com/aretw0/notesync/pkg/core"
)

// byID runs op on an existing note. Unknown ids are reported here because
// the session ignores them.
func byID(op func(ctx context.Context, s *notesync.Session, n core.Note) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		s, snap, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		n, err := find(snap, args[0])
		if err != nil {
			return err
		}
		return op(cmd.Context(), s, n)
	}
}

var rmCmd = &cobra.Command{
	Use:     "rm <id>",
	Aliases: []string{"delete"},
	Short:   "Delete a note",
	Args:    cobra.ExactArgs(1),
	RunE: byID(func(ctx context.Context, s *notesync.Session, n core.Note) error {
		return s.DeleteNote(ctx, n.ID)
	}),
}

var pinCmd = &cobra.Command{
	Use:   "pin <id>",
	Short: "Toggle the pinned flag of a note",
	Args:  cobra.ExactArgs(1),
	RunE: byID(func(ctx context.Context, s *notesync.Session, n core.Note) error {
		return s.TogglePin(ctx, n.ID)
	}),
}

var archiveCmd = &cobra.Command{
	Use:   "archive <id>",
	Short: "Toggle the archived flag of a note",
	Args:  cobra.ExactArgs(1),
	RunE: byID(func(ctx context.Context, s *notesync.Session, n core.Note) error {
		return s.ToggleArchive(ctx, n.ID)
	}),
}

var colorCmd = &cobra.Command{
	Use:   "color <id> <color>",
	Short: "Change the color of a note",
	Long:  fmt.Sprintf("Change the color of a note. Valid colors: %v", core.Palette),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := core.Color(args[1])
		if !c.Valid() {
			return fmt.Errorf("%w: %s", core.ErrInvalidColor, c)
		}
		return byID(func(ctx context.Context, s *notesync.Session, n core.Note) error {
			return s.ChangeColor(ctx, n.ID, c)
		})(cmd, args)
	},
}

func init() {
	rootCmd.AddCommand(rmCmd, pinCmd, archiveCmd, colorCmd)
}
