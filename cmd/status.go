package cmd

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"grimm.is/portguard/internal/agent"
	"grimm.is/portguard/internal/state"
)

func newStatusCmd(opts *globalOptions) *cobra.Command {
	var since uint64

	cmd := &cobra.Command{
		Use:   "status",
		Short: "List the ports recorded in the state database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := opts.load()
			if err != nil {
				return err
			}

			store, err := openState(cfg.StateDB)
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := agent.LoadRecords(store)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "State:   %s (version %d)\n", cfg.StateDB, store.CurrentVersion())
			fmt.Fprintf(out, "Ports:   %d\n\n", len(records))
			if cmd.Flags().Changed("since") {
				if err := printChanges(out, store, since); err != nil {
					return err
				}
			}
			if len(records) == 0 {
				return nil
			}

			ids := make([]string, 0, len(records))
			for id := range records {
				ids = append(ids, id)
			}
			sort.Strings(ids)

			fmt.Fprintf(out, "%-16s %-12s %-6s %s\n", "PORT", "DEVICE", "RULES", "SYNC")
			for _, id := range ids {
				rec := records[id]
				fmt.Fprintf(out, "%-16s %-12s %-6d %s\n", rec.ID, rec.Device, len(rec.Rules), rec.SyncID)
			}
			return nil
		},
	}

	cmd.Flags().Uint64Var(&since, "since", 0, "Also list port record changes after this state version")
	return cmd
}

func printChanges(w io.Writer, store state.Store, since uint64) error {
	changes, err := store.GetChangesSince(since)
	if err != nil {
		return fmt.Errorf("failed to read state changes: %w", err)
	}

	fmt.Fprintf(w, "Changes since version %d:\n", since)
	n := 0
	for _, c := range changes {
		if c.Bucket != agent.PortsBucket {
			continue
		}
		fmt.Fprintf(w, "  %-8d %-6s %-16s %s\n", c.Version, c.Type, c.Key, c.Timestamp.Format(time.RFC3339))
		n++
	}
	if n == 0 {
		fmt.Fprintln(w, "  none")
	}
	fmt.Fprintln(w)
	return nil
}
