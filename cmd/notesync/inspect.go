package main

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/aretw0/notesync"
	"github.com/aretw0/notesync/pkg/core"
	"github.com/aretw0/notesync/pkg/envelope"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [id]",
	Short: "Show session state, or how a stored value is classified",
	Long: `Without arguments, print the introspection state of a session (engine
phase, counts, store details) as JSON. With an id, print the raw stored value
of that note and how it is classified (encrypted, plain or unknown). No
passphrase is needed for the latter.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			return inspectValue(cmd, args[0])
		}

		s, _, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(s.State())
	},
}

func inspectValue(cmd *cobra.Command, id string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	stream, err := notesync.Open(cfg.Store.Path, notesync.WithAdapter(cfg.Store.Adapter))
	if err != nil {
		return err
	}
	if c, ok := stream.(interface{ Close() error }); ok {
		defer c.Close()
	}

	v, err := stream.Read(cmd.Context(), id)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if v.IsTombstone() {
		fmt.Fprintf(out, "%s: tombstone\n", id)
		return nil
	}

	env := envelope.Classify(v)
	fmt.Fprintf(out, "%s: %s\n", id, env.Kind)
	if env.Object != nil {
		members := make([]string, 0, len(env.Object))
		for k := range env.Object {
			members = append(members, k)
		}
		sort.Strings(members)
		fmt.Fprintf(out, "members: %v (resembles note: %t)\n", members, env.ResemblesNote())
	}
	fmt.Fprintf(out, "raw: %s\n", truncate(v, 120))
	return nil
}

func truncate(v core.Value, n int) string {
	if len(v) <= n {
		return string(v)
	}
	return string(v[:n]) + "..."
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}
