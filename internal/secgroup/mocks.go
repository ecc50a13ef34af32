package secgroup

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"
)

// MockProvider is a mock implementation of Provider for testing.
// Every confirmed batch is also recorded so tests can inspect call order.
type MockProvider struct {
	mock.Mock
	mu sync.Mutex

	Created [][]ACLRule
	Removed [][]ACLRule
}

// NewMockProvider creates a new mock provider.
func NewMockProvider() *MockProvider {
	return &MockProvider{}
}

func (m *MockProvider) CreateRules(ctx context.Context, portID string, rules []ACLRule) error {
	args := m.Called(ctx, portID, rules)
	if err := args.Error(0); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Created = append(m.Created, append([]ACLRule(nil), rules...))
	return nil
}

func (m *MockProvider) RemoveRules(ctx context.Context, portID string, rules []ACLRule) error {
	args := m.Called(ctx, portID, rules)
	if err := args.Error(0); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Removed = append(m.Removed, append([]ACLRule(nil), rules...))
	return nil
}

func (m *MockProvider) InvalidateCache(portID string) {
	m.Called(portID)
}

// Reset forgets the recorded batches.
func (m *MockProvider) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Created = nil
	m.Removed = nil
}
