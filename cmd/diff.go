package cmd

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/spf13/cobra"

	"grimm.is/portguard/internal/agent"
)

// errDiffers makes `diff` exit non-zero when the applied state is stale.
var errDiffers = errors.New("applied rules differ from configuration")

func newDiffCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "diff",
		Short: "Compare the rules of the configuration with the last applied ones",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}

			rendered, err := renderRecords(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}

			store, err := openState(cfg.StateDB)
			if err != nil {
				return err
			}
			defer store.Close()

			applied, err := agent.LoadRecords(store)
			if err != nil {
				return err
			}

			return writeDiff(cmd.OutOrStdout(), applied, rendered)
		},
	}
}

// writeDiff prints a unified diff from the applied records to the rendered ones.
func writeDiff(w io.Writer, applied map[string]agent.PortRecord, rendered []agent.PortRecord) error {
	stored := make([]agent.PortRecord, 0, len(applied))
	for _, rec := range applied {
		stored = append(stored, rec)
	}
	sort.Slice(stored, func(i, j int) bool { return stored[i].ID < stored[j].ID })

	from := recordsText(stored)
	to := recordsText(rendered)
	if from == to {
		fmt.Fprintln(w, "No changes detected.")
		return nil
	}

	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(from),
		B:        difflib.SplitLines(to),
		FromFile: "Applied",
		ToFile:   "Configured",
		Context:  3,
	}
	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return err
	}
	fmt.Fprint(w, text)
	return errDiffers
}

func recordsText(records []agent.PortRecord) string {
	var b strings.Builder
	for _, rec := range records {
		fmt.Fprintf(&b, "port %s (%s)\n", rec.ID, rec.Device)
		for _, line := range rec.RuleLines() {
			fmt.Fprintf(&b, "  %s\n", line)
		}
	}
	return b.String()
}
