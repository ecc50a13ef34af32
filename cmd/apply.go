package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"grimm.is/portguard/internal/agent"
	"grimm.is/portguard/internal/config"
	"grimm.is/portguard/internal/firewall"
	"grimm.is/portguard/internal/logging"
	"grimm.is/portguard/internal/secgroup"
	"grimm.is/portguard/internal/state"
)

func newApplyCmd(opts *globalOptions) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Synchronize every port once and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			if dryRun {
				records, err := renderRecords(ctx, cfg, logger)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Dry run, nothing applied:")
				return printRecords(cmd.OutOrStdout(), records, "text")
			}

			a, err := newApplier(cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.rec.Sync(ctx, cfg)
			printSummary(cmd.OutOrStdout(), res)
			return err
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Render the rules without applying them")
	return cmd
}

// applier bundles what a real sync needs: backend, state and reconciler.
type applier struct {
	backend firewall.Backend
	store   *state.SQLiteStore
	rec     *agent.Reconciler
}

func newApplier(cfg *config.Config, logger *logging.Logger) (*applier, error) {
	retry, err := agent.RetryFromConfig(cfg.Retry)
	if err != nil {
		return nil, err
	}

	store, err := openState(cfg.StateDB)
	if err != nil {
		return nil, err
	}

	// The backend goes last: opening nftables replaces the live table.
	backend, err := firewall.New(cfg.Provider.Backend, cfg.Provider.Table, logger)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to open %s backend: %w", cfg.Provider.Backend, err)
	}

	driver := secgroup.NewDriver(backend, nil, logger)
	rec, err := agent.NewReconciler(driver, agent.Options{
		Binder: backend,
		Store:  store,
		Retry:  retry,
		Logger: logger,
	})
	if err != nil {
		store.Close()
		return nil, err
	}
	return &applier{backend: backend, store: store, rec: rec}, nil
}

func (a *applier) Close() error {
	return a.store.Close()
}

func printSummary(w io.Writer, res *agent.SyncResult) {
	if res == nil {
		return
	}
	fmt.Fprintf(w, "sync %s: %d prepared, %d removed, %d failed in %s\n",
		res.ID, len(res.Prepared), len(res.Removed), len(res.Failed), res.Duration.Round(time.Millisecond))
	for _, c := range res.Changes {
		fmt.Fprintf(w, "  %-6s %s\n", c.Type, c.Key)
	}
}
