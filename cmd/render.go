package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"grimm.is/portguard/internal/agent"
	"grimm.is/portguard/internal/config"
	"grimm.is/portguard/internal/firewall"
	"grimm.is/portguard/internal/logging"
	"grimm.is/portguard/internal/secgroup"
)

func newRenderCmd(opts *globalOptions) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Print the ACL rules every port would get, without touching the kernel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			records, err := renderRecords(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			return printRecords(cmd.OutOrStdout(), records, format)
		},
	}

	cmd.Flags().StringVarP(&format, "output", "o", "text", "Output format (text, json)")
	return cmd
}

// renderRecords syncs cfg against an in-memory provider and returns what each
// port ended up with, sorted by port id.
func renderRecords(ctx context.Context, cfg *config.Config, logger *logging.Logger) ([]agent.PortRecord, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	mem := firewall.NewMemoryProvider()
	driver := secgroup.NewDriver(mem, nil, logger)

	retry := agent.DefaultRetryConfig()
	retry.MaxAttempts = 1
	rec, err := agent.NewReconciler(driver, agent.Options{Binder: mem, Retry: retry, Logger: logger})
	if err != nil {
		return nil, err
	}

	res, err := rec.Sync(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to render rules: %w", err)
	}

	ports := driver.Ports()
	records := make([]agent.PortRecord, 0, len(ports))
	for _, port := range ports {
		records = append(records, agent.NewPortRecord(port, res.ID, mem.Rules(port.ID)))
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	return records, nil
}

func printRecords(w io.Writer, records []agent.PortRecord, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	case "text", "":
		for i, rec := range records {
			if i > 0 {
				fmt.Fprintln(w)
			}
			fmt.Fprintf(w, "port %s (%s): %d rules\n", rec.ID, rec.Device, len(rec.Rules))
			for _, line := range rec.RuleLines() {
				fmt.Fprintf(w, "  %s\n", line)
			}
		}
		return nil
	}
	return fmt.Errorf("unknown output format %q", format)
}
