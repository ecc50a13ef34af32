package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"grimm.is/portguard/internal/config"
	"grimm.is/portguard/internal/health"
	"grimm.is/portguard/internal/logging"
	"grimm.is/portguard/internal/metrics"
)

func newRunCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Synchronize ports, serve metrics and health, and re-sync on SIGHUP",
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
			return runDaemon(ctx, opts.configFile, cfg, logger)
		},
	}
}

func runDaemon(ctx context.Context, configFile string, cfg *config.Config, logger *logging.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a, err := newApplier(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	tracker := &health.SyncTracker{}
	checker := health.NewChecker()
	checker.Register("sync", tracker.Check)
	checker.Register("state", health.StoreCheck(a.store))

	var srv *http.Server
	if cfg.MetricsListen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.Handle("/healthz", checker.Handler())
		mux.Handle("/readyz", checker.ReadinessHandler())
		mux.Handle("/livez", health.LivenessHandler())
		srv = &http.Server{
			Addr:              cfg.MetricsListen,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("serving metrics", "addr", cfg.MetricsListen)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	resync := func(c *config.Config) {
		res, err := a.rec.Sync(ctx, c)
		tracker.Record(res.ID, len(res.Prepared), len(res.Failed), err)
		if err != nil {
			logger.Error("sync finished with errors", "error", err)
		}
	}
	resync(cfg)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	for {
		select {
		case <-ctx.Done():
			return shutdown(srv)
		case sig := <-sigCh:
			switch sig {
			case syscall.SIGHUP:
				logger.Info("Received SIGHUP, reloading configuration...")
				next, err := config.Load(configFile)
				if err != nil {
					logger.Error("Failed to reload configuration", "error", err)
					continue
				}
				resync(next)

			case os.Interrupt, syscall.SIGTERM:
				logger.Info("Received signal, shutting down...", "signal", sig)
				return shutdown(srv)
			}
		}
	}
}

func shutdown(srv *http.Server) error {
	if srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
