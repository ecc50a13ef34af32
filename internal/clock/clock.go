// Package clock provides a mockable time source.
// Production code calls the package-level Now; tests swap the source with Set.
package clock

import (
	"sync"
	"time"
)

// Clock is the interface for time operations.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
}

// RealClock provides the actual system time.
type RealClock struct{}

// Now returns the current system time.
func (c *RealClock) Now() time.Time {
	return time.Now()
}

// Since returns the time elapsed since t.
func (c *RealClock) Since(t time.Time) time.Duration {
	return time.Since(t)
}

// MockClock is a test clock with controllable time.
type MockClock struct {
	mu      sync.RWMutex
	current time.Time
}

// NewMockClock creates a mock clock set to the given time.
func NewMockClock(t time.Time) *MockClock {
	return &MockClock{current: t}
}

// Now returns the mock time.
func (c *MockClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// Since returns the duration since t.
func (c *MockClock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

// Set sets the mock time.
func (c *MockClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = t
}

// Advance advances the mock time by d.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
}

var (
	sourceMu sync.RWMutex
	source   Clock = &RealClock{}
)

// Set replaces the package-level time source and returns a func restoring the previous one.
func Set(c Clock) (restore func()) {
	sourceMu.Lock()
	prev := source
	source = c
	sourceMu.Unlock()
	return func() {
		sourceMu.Lock()
		source = prev
		sourceMu.Unlock()
	}
}

// Now returns the current time from the package-level source.
func Now() time.Time {
	sourceMu.RLock()
	defer sourceMu.RUnlock()
	return source.Now()
}

// Since returns the time elapsed since t according to the package-level source.
func Since(t time.Time) time.Duration {
	sourceMu.RLock()
	defer sourceMu.RUnlock()
	return source.Since(t)
}
