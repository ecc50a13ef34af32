package firewall

import (
	"context"
	"sort"
	"sync"

	"grimm.is/portguard/internal/secgroup"
)

// MemoryProvider records rules in memory instead of enforcing them. It backs
// rendering and dry runs, and lets tests inject failures.
type MemoryProvider struct {
	mu       sync.Mutex
	rules    map[string]*secgroup.RuleSet
	devices  map[string]string
	failures map[string][]error

	// Invalidated lists the ports passed to InvalidateCache, in call order.
	Invalidated []string
}

// Operation names accepted by FailNext.
const (
	OpCreate  = "create"
	OpRemove  = "remove"
	OpBind    = "bind"
	OpRelease = "release"
)

// NewMemoryProvider returns an empty provider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		rules:    make(map[string]*secgroup.RuleSet),
		devices:  make(map[string]string),
		failures: make(map[string][]error),
	}
}

// FailNext makes the next call of op fail with err. Calls queue up.
func (m *MemoryProvider) FailNext(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[op] = append(m.failures[op], err)
}

func (m *MemoryProvider) CreateRules(ctx context.Context, portID string, rules []secgroup.ACLRule) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.popFailure(OpCreate); err != nil {
		return err
	}

	set, ok := m.rules[portID]
	if !ok {
		set = secgroup.NewRuleSet()
		m.rules[portID] = set
	}
	for _, r := range rules {
		set.Add(r)
	}
	return nil
}

func (m *MemoryProvider) RemoveRules(ctx context.Context, portID string, rules []secgroup.ACLRule) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.popFailure(OpRemove); err != nil {
		return err
	}

	if set, ok := m.rules[portID]; ok {
		for _, r := range rules {
			set.Remove(r)
		}
	}
	return nil
}

func (m *MemoryProvider) InvalidateCache(portID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Invalidated = append(m.Invalidated, portID)
}

func (m *MemoryProvider) BindDevice(ctx context.Context, portID, device string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.popFailure(OpBind); err != nil {
		return err
	}
	m.devices[portID] = device
	return nil
}

func (m *MemoryProvider) ReleasePort(ctx context.Context, portID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.popFailure(OpRelease); err != nil {
		return err
	}
	delete(m.rules, portID)
	delete(m.devices, portID)
	return nil
}

// Rules returns the rules recorded for a port, in application order.
func (m *MemoryProvider) Rules(portID string) []secgroup.ACLRule {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.rules[portID]
	if !ok {
		return nil
	}
	return set.Rules()
}

// Ports returns the sorted ids of ports holding rules.
func (m *MemoryProvider) Ports() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.rules))
	for id := range m.rules {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Device returns the device a port is bound to.
func (m *MemoryProvider) Device(portID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	dev, ok := m.devices[portID]
	return dev, ok
}

func (m *MemoryProvider) popFailure(op string) error {
	queue := m.failures[op]
	if len(queue) == 0 {
		return nil
	}
	m.failures[op] = queue[1:]
	return queue[0]
}
