//go:build linux
// +build linux

package firewall

import (
	"strings"
	"sync"

	"github.com/google/nftables"
	"github.com/stretchr/testify/mock"
)

// MockNFTablesConn is a mock implementation of NFTablesConn for testing.
type MockNFTablesConn struct {
	mock.Mock
	mu sync.Mutex

	// In-memory state for tracking operations
	tables map[string]*nftables.Table
	chains map[string]*nftables.Chain
	rules  map[string][]*nftables.Rule
}

// NewMockNFTablesConn creates a new mock nftables connection.
func NewMockNFTablesConn() *MockNFTablesConn {
	return &MockNFTablesConn{
		tables: make(map[string]*nftables.Table),
		chains: make(map[string]*nftables.Chain),
		rules:  make(map[string][]*nftables.Rule),
	}
}

func (m *MockNFTablesConn) AddTable(t *nftables.Table) *nftables.Table {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Called(t)
	m.tables[t.Name] = t
	return t
}

func (m *MockNFTablesConn) DelTable(t *nftables.Table) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Called(t)
	delete(m.tables, t.Name)
	for key := range m.chains {
		if strings.HasPrefix(key, t.Name+"/") {
			delete(m.chains, key)
			delete(m.rules, key)
		}
	}
}

func (m *MockNFTablesConn) AddChain(c *nftables.Chain) *nftables.Chain {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Called(c)
	key := c.Table.Name + "/" + c.Name
	m.chains[key] = c
	return c
}

func (m *MockNFTablesConn) DelChain(c *nftables.Chain) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Called(c)
	key := c.Table.Name + "/" + c.Name
	delete(m.chains, key)
	delete(m.rules, key)
}

func (m *MockNFTablesConn) FlushChain(c *nftables.Chain) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Called(c)
	delete(m.rules, c.Table.Name+"/"+c.Name)
}

func (m *MockNFTablesConn) AddRule(r *nftables.Rule) *nftables.Rule {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Called(r)
	key := r.Table.Name + "/" + r.Chain.Name
	m.rules[key] = append(m.rules[key], r)
	return r
}

func (m *MockNFTablesConn) InsertRule(r *nftables.Rule) *nftables.Rule {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Called(r)
	key := r.Table.Name + "/" + r.Chain.Name
	// Insert at beginning
	m.rules[key] = append([]*nftables.Rule{r}, m.rules[key]...)
	return r
}

func (m *MockNFTablesConn) DelRule(r *nftables.Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	args := m.Called(r)
	if err := args.Error(0); err != nil {
		return err
	}
	key := r.Table.Name + "/" + r.Chain.Name
	rules := m.rules[key]
	for i, existing := range rules {
		if existing == r {
			m.rules[key] = append(rules[:i:i], rules[i+1:]...)
			break
		}
	}
	return nil
}

func (m *MockNFTablesConn) GetRules(t *nftables.Table, c *nftables.Chain) ([]*nftables.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	args := m.Called(t, c)
	if args.Get(0) != nil {
		return args.Get(0).([]*nftables.Rule), args.Error(1)
	}
	key := t.Name + "/" + c.Name
	return append([]*nftables.Rule(nil), m.rules[key]...), args.Error(1)
}

func (m *MockNFTablesConn) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	args := m.Called()
	return args.Error(0)
}

// Helper methods for test assertions

// GetChainCount returns the number of chains.
func (m *MockNFTablesConn) GetChainCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.chains)
}

// GetRuleCount returns the total number of rules.
func (m *MockNFTablesConn) GetRuleCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, rules := range m.rules {
		count += len(rules)
	}
	return count
}

// ChainRules returns the rules recorded for a chain, in order.
func (m *MockNFTablesConn) ChainRules(table, chain string) []*nftables.Rule {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*nftables.Rule(nil), m.rules[table+"/"+chain]...)
}
