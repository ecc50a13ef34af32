// Package agent reconciles the secgroup driver and the enforcement backend
// with a declarative configuration.
package agent

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"grimm.is/portguard/internal/clock"
	"grimm.is/portguard/internal/config"
	"grimm.is/portguard/internal/firewall"
	"grimm.is/portguard/internal/logging"
	"grimm.is/portguard/internal/metrics"
	"grimm.is/portguard/internal/secgroup"
	"grimm.is/portguard/internal/state"
)

// DefaultWorkers bounds how many ports are synced at once.
const DefaultWorkers = 8

// DeviceBinder attaches a port's rules to its network device and detaches them.
type DeviceBinder interface {
	BindDevice(ctx context.Context, portID, device string) error
	ReleasePort(ctx context.Context, portID string) error
}

// Options configures a Reconciler. Binder and Store are optional.
type Options struct {
	Binder  DeviceBinder
	Store   state.Store
	Retry   RetryConfig
	Workers int
	Logger  *logging.Logger
}

// Reconciler drives a Driver from a declarative configuration: every Sync
// makes the driver's ports and groups match the config.
type Reconciler struct {
	driver  *secgroup.Driver
	binder  DeviceBinder
	store   state.Store
	retry   RetryConfig
	workers int
	logger  *logging.Logger

	mu     sync.Mutex // one Sync at a time
	groups map[string]struct{}
}

// SyncResult summarizes one Sync. Changes lists the port records the sync
// wrote to the state store, oldest first.
type SyncResult struct {
	ID       string
	Prepared []string
	Removed  []string
	Failed   map[string]error
	Changes  []state.Change
	Duration time.Duration
}

// Err joins the per-port failures, sorted by port id.
func (r *SyncResult) Err() error {
	ids := make([]string, 0, len(r.Failed))
	for id := range r.Failed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	errs := make([]error, 0, len(ids))
	for _, id := range ids {
		errs = append(errs, fmt.Errorf("port %s: %w", id, r.Failed[id]))
	}
	return errors.Join(errs...)
}

// NewReconciler creates a Reconciler for driver.
func NewReconciler(driver *secgroup.Driver, opts Options) (*Reconciler, error) {
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = DefaultRetryConfig()
	}
	opts.Retry.PermanentErrors = append(opts.Retry.PermanentErrors, firewall.ErrUnsupportedProtocol)
	opts.Retry.OnRetry = func(int, error) {
		metrics.Get().PortRetries.Inc()
	}

	if opts.Store != nil {
		if err := opts.Store.EnsureBucket(PortsBucket); err != nil {
			return nil, fmt.Errorf("failed to prepare state bucket: %w", err)
		}
	}

	return &Reconciler{
		driver:  driver,
		binder:  opts.Binder,
		store:   opts.Store,
		retry:   opts.Retry,
		workers: opts.Workers,
		logger:  opts.Logger.WithComponent("agent"),
		groups:  make(map[string]struct{}),
	}, nil
}

// Sync replays the groups of cfg into the driver cache, tears down ports that
// left the config (or moved to another device) and prepares every declared
// port. Ports are handled independently; one failing port does not stop the
// others. The returned error joins every per-port failure.
func (r *Reconciler) Sync(ctx context.Context, cfg *config.Config) (*SyncResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := clock.Now()
	res := &SyncResult{ID: uuid.NewString(), Failed: make(map[string]error)}
	log := r.logger.WithFields(map[string]any{"sync": res.ID})
	log.Info("sync started", "groups", len(cfg.SecurityGroups), "ports", len(cfg.Ports))

	r.syncGroups(cfg, log)

	var since uint64
	if r.store != nil {
		since = r.store.CurrentVersion()
	}

	desired := make(map[string]secgroup.Port, len(cfg.Ports))
	for _, p := range cfg.PortDescriptions() {
		desired[p.ID] = p
	}

	var mu sync.Mutex
	record := func(list *[]string, id string, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			res.Failed[id] = err
			return
		}
		*list = append(*list, id)
	}

	// Teardown runs to completion before any port is prepared, so a device
	// handed from one port to another is never bound twice.
	stale, err := r.stalePorts(desired)
	if err != nil {
		log.Warn("failed to read stored ports", "error", err)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for _, port := range stale {
		g.Go(func() error {
			record(&res.Removed, port.ID, r.removePort(gctx, port))
			return nil
		})
	}
	_ = g.Wait()

	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for _, port := range desired {
		// A port whose teardown failed keeps its old binding until the
		// next sync releases it.
		if _, failed := res.Failed[port.ID]; failed {
			continue
		}
		g.Go(func() error {
			record(&res.Prepared, port.ID, r.preparePort(gctx, port, res.ID))
			return nil
		})
	}
	_ = g.Wait()

	sort.Strings(res.Prepared)
	sort.Strings(res.Removed)
	if r.store != nil {
		changes, err := r.store.GetChangesSince(since)
		if err != nil {
			log.Warn("failed to read state changes", "error", err)
		}
		for _, c := range changes {
			if c.Bucket == PortsBucket {
				res.Changes = append(res.Changes, c)
			}
		}
	}
	res.Duration = clock.Since(start)

	m := metrics.Get()
	m.SyncDuration.Observe(res.Duration.Seconds())
	outcome := "success"
	if len(res.Failed) > 0 {
		outcome = "failure"
	}
	m.SyncTotal.WithLabelValues(outcome).Inc()

	log.Audit("sync", "ports", map[string]any{
		"prepared": len(res.Prepared),
		"removed":  len(res.Removed),
		"failed":   len(res.Failed),
	})
	if err := ctx.Err(); err != nil {
		return res, err
	}
	return res, res.Err()
}

// syncGroups replaces every group in the cache and drops groups no longer declared.
func (r *Reconciler) syncGroups(cfg *config.Config, log *logging.Logger) {
	seen := make(map[string]struct{}, len(cfg.SecurityGroups))
	ids := make([]string, 0, len(cfg.SecurityGroups))
	for _, sg := range cfg.SecurityGroups {
		r.driver.SetGroupRules(sg.Name, sg.Rules())
		r.driver.SetGroupMembers(sg.Name, sg.Members())
		seen[sg.Name] = struct{}{}
		ids = append(ids, sg.Name)
	}
	for id := range r.groups {
		if _, ok := seen[id]; !ok {
			log.Debug("dropping security group", "group", id)
			r.driver.Cache().DeleteGroup(id)
			ids = append(ids, id)
		}
	}
	r.groups = seen
	r.driver.SecurityGroupUpdated("sync", ids, "")
}

// stalePorts returns the ports to tear down: registered ports missing from
// desired or declared on another device, plus ports only the state store
// still remembers.
func (r *Reconciler) stalePorts(desired map[string]secgroup.Port) ([]secgroup.Port, error) {
	var stale []secgroup.Port
	known := make(map[string]struct{})
	for device, port := range r.driver.Ports() {
		known[port.ID] = struct{}{}
		if want, ok := desired[port.ID]; !ok || want.Device != device {
			stale = append(stale, port)
		}
	}

	if r.store == nil {
		return stale, nil
	}
	ids, err := r.store.ListKeys(PortsBucket)
	if err != nil {
		return stale, err
	}
	for _, id := range ids {
		if _, ok := known[id]; ok {
			continue
		}
		if _, ok := desired[id]; ok {
			continue
		}
		var rec PortRecord
		_ = r.store.GetJSON(PortsBucket, id, &rec) // the device is only logged
		stale = append(stale, secgroup.Port{ID: id, Device: rec.Device})
	}
	return stale, nil
}

func (r *Reconciler) removePort(ctx context.Context, port secgroup.Port) error {
	if r.binder != nil {
		err := Retry(ctx, r.retry, func() error {
			return r.binder.ReleasePort(ctx, port.ID)
		})
		if err != nil {
			r.logger.Error("failed to release port", "port", port.ID, "device", port.Device, "error", err)
			return fmt.Errorf("release: %w", err)
		}
	}

	r.driver.Remove(port)

	if r.store != nil {
		if err := r.store.Delete(PortsBucket, port.ID); err != nil && !errors.Is(err, state.ErrNotFound) {
			r.logger.Warn("failed to forget port state", "port", port.ID, "error", err)
		}
	}
	return nil
}

func (r *Reconciler) preparePort(ctx context.Context, port secgroup.Port, syncID string) error {
	err := Retry(ctx, r.retry, func() error {
		return r.driver.Prepare(ctx, port)
	})
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}

	// Bind only once the baseline is in place so the device is never exposed
	// to an empty filter.
	if r.binder != nil {
		err := Retry(ctx, r.retry, func() error {
			return r.binder.BindDevice(ctx, port.ID, port.Device)
		})
		if err != nil {
			r.logger.Error("failed to bind device", "port", port.ID, "device", port.Device, "error", err)
			return fmt.Errorf("bind: %w", err)
		}
	}

	if r.store != nil {
		rec := NewPortRecord(port, syncID, r.driver.AppliedRules(port.ID))
		// Unchanged records keep the id of the sync that last changed them.
		var prev PortRecord
		if err := r.store.GetJSON(PortsBucket, port.ID, &prev); err == nil &&
			prev.Device == rec.Device && slices.Equal(prev.RuleLines(), rec.RuleLines()) {
			return nil
		}
		if err := r.store.SetJSON(PortsBucket, port.ID, rec); err != nil {
			r.logger.Warn("failed to persist port state", "port", port.ID, "error", err)
		}
	}
	return nil
}
