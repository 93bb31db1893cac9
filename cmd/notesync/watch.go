package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	nslifecycle "github.com/aretw0/notesync/pkg/adapters/lifecycle"
	"github.com/aretw0/notesync/pkg/core"
	"github.com/aretw0/notesync/pkg/view"
)

var watchJSON bool

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the collection and print every new snapshot",
	Long: `Follow the collection until interrupted. With the fs adapter, changes
written by other processes are picked up as well.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		s, _, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		source := nslifecycle.NewSource(s.Subscribe(ctx))
		g, ctx := errgroup.WithContext(ctx)

		g.Go(func() error {
			return source.Start(ctx)
		})
		g.Go(func() error {
			out := cmd.OutOrStdout()
			for ev := range source.Events() {
				snap, ok := ev.(core.Snapshot)
				if !ok {
					continue
				}
				notes := view.Filter(snap.Notes, query)
				if watchJSON {
					if err := json.NewEncoder(out).Encode(notes); err != nil {
						return err
					}
					continue
				}
				fmt.Fprintf(out, "-- %s\n", ev)
				printNotes(out, notes)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			return s.Close()
		})

		if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().BoolVar(&watchJSON, "json", false, "One JSON array per snapshot")
	addQueryFlags(watchCmd)
}
