package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	verbose    bool
	configPath string
	adapter    string
	storePath  string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "notesync",
	Short: "An encrypted notes mirror over a graph store",
	Long: `notesync keeps a local, ordered view of your encrypted notes.
Every note is encrypted with a key derived from your passphrase before it is
written to the store; NOTESYNC_PASSPHRASE (or identity.passphrase_env) must be set.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}

		opts := &slog.HandlerOptions{
			Level: level,
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, opts))
		slog.SetDefault(logger)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: notesync.yaml in the store root)")
	rootCmd.PersistentFlags().StringVar(&adapter, "adapter", "", "Store adapter: fs, sqlite or memory")
	rootCmd.PersistentFlags().StringVar(&storePath, "path", "", "Store path")
}
