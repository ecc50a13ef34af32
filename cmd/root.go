// Package cmd implements the portguard command line.
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"grimm.is/portguard/internal/brand"
	"grimm.is/portguard/internal/config"
	"grimm.is/portguard/internal/logging"
	"grimm.is/portguard/internal/state"
)

// globalOptions holds the persistent flags shared by every subcommand.
type globalOptions struct {
	configFile string
	logLevel   string
	logJSON    bool
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:           brand.BinaryName,
		Short:         brand.Description,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&opts.configFile, "config", "c", brand.ConfigPath(), "Configuration file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides the config")
	root.PersistentFlags().BoolVar(&opts.logJSON, "log-json", false, "Log in JSON")

	root.AddCommand(
		newRenderCmd(opts),
		newApplyCmd(opts),
		newRunCmd(opts),
		newDiffCmd(opts),
		newStatusCmd(opts),
		newVersionCmd(),
	)
	return root
}

// load reads the configuration and builds the logger it asks for. Flags win
// over the config file.
func (o *globalOptions) load() (*config.Config, *logging.Logger, error) {
	cfg, err := config.Load(o.configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger, err := o.logger(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func (o *globalOptions) logger(cfg *config.Config) (*logging.Logger, error) {
	levelName := o.logLevel
	jsonOut := o.logJSON
	if cfg != nil {
		if levelName == "" {
			levelName = cfg.LogLevel
		}
		jsonOut = jsonOut || cfg.LogJSON
	}

	level, err := logging.ParseLevel(levelName)
	if err != nil {
		return nil, err
	}
	lc := logging.DefaultConfig()
	lc.Level = level
	lc.JSON = jsonOut

	logger := logging.New(lc)
	logging.SetDefault(logger)
	return logger, nil
}

// openState opens the state database, creating its directory if needed.
func openState(path string) (*state.SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}
	store, err := state.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open state %s: %w", path, err)
	}
	return store, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s)\n", brand.Name, brand.Version, brand.GitCommit)
		},
	}
}
