package secgroup

import (
	"slices"
	"sort"
	"sync"

	"grimm.is/portguard/internal/metrics"
)

// Cache holds the rule templates and the membership of every security group.
// Entries are only ever replaced whole; one lock covers both maps so readers
// never observe a half-applied update.
type Cache struct {
	mu      sync.RWMutex
	rules   map[string][]Rule
	members map[string]Members
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{
		rules:   make(map[string][]Rule),
		members: make(map[string]Members),
	}
}

// SetGroupRules replaces the templates of a group.
func (c *Cache) SetGroupRules(groupID string, rules []Rule) {
	rules = slices.Clone(rules)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.rules[groupID] = rules
	c.updateGauge()
}

// SetGroupMembers replaces the membership of a group.
func (c *Cache) SetGroupMembers(groupID string, members Members) {
	members = members.clone()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.members[groupID] = members
	c.updateGauge()
}

// DeleteGroup drops both entries of a group.
func (c *Cache) DeleteGroup(groupID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.rules, groupID)
	delete(c.members, groupID)
	c.updateGauge()
}

// GroupRules returns a copy of the templates of a group; nil if unknown.
func (c *Cache) GroupRules(groupID string) []Rule {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.rules[groupID])
}

// GroupMembers returns a copy of the membership of a group; empty if unknown.
func (c *Cache) GroupMembers(groupID string) Members {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.members[groupID].clone()
}

// Groups returns the sorted ids of every group with templates or members.
func (c *Cache) Groups() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.groupIDs()
}

// view runs fn with both maps under the read lock. fn must not retain or mutate them.
func (c *Cache) view(fn func(rules map[string][]Rule, members map[string]Members)) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	fn(c.rules, c.members)
}

func (c *Cache) groupIDs() []string {
	ids := make([]string, 0, len(c.rules))
	for id := range c.rules {
		ids = append(ids, id)
	}
	for id := range c.members {
		if _, ok := c.rules[id]; !ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func (c *Cache) updateGauge() {
	metrics.Get().GroupsCached.Set(float64(len(c.groupIDs())))
}
