package secgroup

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"grimm.is/portguard/internal/logging"
	"grimm.is/portguard/internal/metrics"
)

var _ PortFilter = (*Driver)(nil)

// Driver keeps the ACL rules of each port in sync with its security groups
// and provider rules, sending only the difference to the Provider.
type Driver struct {
	provider Provider
	cache    *Cache
	selector *Selector
	gen      *Generator
	store    *portStore
	logger   *logging.Logger
}

// NewDriver creates a Driver applying rules through provider. A nil cache
// gets a fresh one; a nil logger uses the default logger.
func NewDriver(provider Provider, cache *Cache, logger *logging.Logger) *Driver {
	if cache == nil {
		cache = NewCache()
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Driver{
		provider: provider,
		cache:    cache,
		selector: NewSelector(cache),
		gen:      NewGenerator(),
		store:    newPortStore(),
		logger:   logger.WithComponent("secgroup"),
	}
}

// Cache returns the rule and membership cache the driver reads from.
func (d *Driver) Cache() *Cache {
	return d.cache
}

// SetGroupRules replaces the templates of a security group.
func (d *Driver) SetGroupRules(groupID string, rules []Rule) {
	d.logger.Debug("update rules of security group", "group", groupID, "rules", len(rules))
	d.cache.SetGroupRules(groupID, rules)
}

// SetGroupMembers replaces the membership of a security group.
func (d *Driver) SetGroupMembers(groupID string, members Members) {
	d.logger.Debug("update members of security group", "group", groupID)
	d.cache.SetGroupMembers(groupID, members)
}

// Prepare brings a port under management. A device seen for the first time
// gets the default-deny baseline, then its provider rules, then the rules of
// its security groups. A device already registered is handled as Update.
func (d *Driver) Prepare(ctx context.Context, port Port) error {
	if _, ok := d.store.lookup(port.Device); ok {
		return d.Update(ctx, port)
	}

	d.logger.Debug("creating default deny rules", "port", port.ID, "device", port.Device)
	e := d.store.pending(port.ID)

	if err := d.createRules(ctx, port.ID, e.applied, d.gen.GenerateDefaultDeny()); err != nil {
		return err
	}
	if err := d.createRules(ctx, port.ID, e.applied, d.gen.GenerateAll(port.ProviderRules)); err != nil {
		return err
	}

	groupRules := d.selector.SelectAll(port)
	if err := d.createRules(ctx, port.ID, e.applied, d.gen.GenerateAll(groupRules)); err != nil {
		return err
	}

	d.store.register(e, port, groupRules)
	metrics.Get().PortsTracked.Set(float64(d.store.count()))
	d.logger.Info("port filter prepared", "port", port.ID, "device", port.Device, "rules", e.applied.Len())
	return nil
}

// Update reconciles a registered port with its new description and the
// current cache contents. Unknown devices are ignored.
func (d *Driver) Update(ctx context.Context, port Port) error {
	e, ok := d.store.lookup(port.Device)
	if !ok {
		d.logger.Info("device not yet added", "port", port.ID, "device", port.Device)
		return nil
	}
	old := e.port

	groupRules := d.selector.SelectAll(port)

	removed := ruleDifference(e.groupRules, groupRules)
	removed = append(removed, ruleDifference(old.ProviderRules, port.ProviderRules)...)

	// A removed declaration may share its concrete rule with one that stays.
	// Additions are taken against what is applied, so rules lost to an
	// earlier failed call come back even when the description is unchanged.
	desired := NewRuleSet(d.gen.GenerateDefaultDeny()...)
	for _, r := range d.gen.GenerateAll(port.ProviderRules) {
		desired.Add(r)
	}
	for _, r := range d.gen.GenerateAll(groupRules) {
		desired.Add(r)
	}

	toRemove := NewRuleSet()
	for _, r := range d.gen.GenerateAll(removed) {
		if e.applied.Has(r) && !desired.Has(r) {
			toRemove.Add(r)
		}
	}
	toAdd := d.gen.ComputeAdditions(e.applied.Rules(), desired.Rules())

	d.logger.Info("updating port rules", "port", port.ID, "device", port.Device,
		"added", len(toAdd), "removed", toRemove.Len())

	if err := d.removeRules(ctx, old.ID, e.applied, toRemove.Rules()); err != nil {
		return err
	}
	if err := d.createRules(ctx, port.ID, e.applied, toAdd); err != nil {
		return err
	}

	d.store.register(e, port, groupRules)
	return nil
}

// Remove forgets a port and tells the provider to drop its per-port cache.
// Enforced rules are left to the provider's own teardown.
func (d *Driver) Remove(port Port) {
	left := d.store.remove(port)
	d.provider.InvalidateCache(port.ID)
	metrics.Get().PortsTracked.Set(float64(left))
	d.logger.Info("port filter removed", "port", port.ID, "device", port.Device)
}

// DeferApplyOn is accepted for interface compatibility; rules are never batched.
func (d *Driver) DeferApplyOn() {}

// DeferApplyOff is accepted for interface compatibility; rules are never batched.
func (d *Driver) DeferApplyOff() {}

// SecurityGroupUpdated is accepted but does not walk affected ports; they
// pick up cache changes on their next Prepare or Update.
func (d *Driver) SecurityGroupUpdated(kind string, groupIDs []string, deviceID string) {
	d.logger.Debug("security group updated", "kind", kind, "groups", groupIDs, "device", deviceID)
}

// Ports returns a snapshot of registered port descriptions keyed by device.
func (d *Driver) Ports() map[string]Port {
	return d.store.ports()
}

// AppliedRules returns the rules currently applied to a port, in application order.
func (d *Driver) AppliedRules(portID string) []ACLRule {
	return d.store.applied(portID)
}

// createRules sends the rules missing from applied and records them once the provider confirms.
func (d *Driver) createRules(ctx context.Context, portID string, applied *RuleSet, rules []ACLRule) error {
	add := d.gen.ComputeAdditions(applied.Rules(), rules)
	if len(add) == 0 {
		return nil
	}

	if err := d.provider.CreateRules(ctx, portID, add); err != nil {
		metrics.Get().ProviderErrors.WithLabelValues("create").Inc()
		d.logger.Error("failed to add rules", "port", portID, "rules", len(add), "error", err)
		return fmt.Errorf("failed to add %d rules to port %s: %w", len(add), portID, err)
	}

	for _, r := range add {
		applied.Add(r)
	}
	countByDirection(add, metrics.Get().RulesCreated)
	return nil
}

// removeRules deletes rules from the provider and forgets them once it confirms.
func (d *Driver) removeRules(ctx context.Context, portID string, applied *RuleSet, rules []ACLRule) error {
	if len(rules) == 0 {
		return nil
	}

	if err := d.provider.RemoveRules(ctx, portID, rules); err != nil {
		metrics.Get().ProviderErrors.WithLabelValues("remove").Inc()
		d.logger.Error("failed to remove rules", "port", portID, "rules", len(rules), "error", err)
		return fmt.Errorf("failed to remove %d rules from port %s: %w", len(rules), portID, err)
	}

	for _, r := range rules {
		applied.Remove(r)
	}
	countByDirection(rules, metrics.Get().RulesRemoved)
	return nil
}

func countByDirection(rules []ACLRule, vec *prometheus.CounterVec) {
	counts := make(map[ACLDirection]int, 2)
	for _, r := range rules {
		counts[r.Direction]++
	}
	for dir, n := range counts {
		vec.WithLabelValues(string(dir)).Add(float64(n))
	}
}
