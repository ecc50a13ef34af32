package health

import (
	"context"
	"fmt"
	"sync"
)

// SyncTracker remembers the outcome of the latest sync.
type SyncTracker struct {
	mu       sync.Mutex
	synced   bool
	id       string
	prepared int
	failed   int
	err      error
}

// Record stores the outcome of a sync.
func (t *SyncTracker) Record(id string, prepared, failed int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.synced = true
	t.id = id
	t.prepared = prepared
	t.failed = failed
	t.err = err
}

// Check is unhealthy before the first sync and when no port could be
// prepared, degraded when some ports failed.
func (t *SyncTracker) Check(ctx context.Context) Check {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch {
	case !t.synced:
		return Check{Status: StatusUnhealthy, Message: "no sync yet"}
	case t.err != nil && t.prepared == 0:
		return Check{Status: StatusUnhealthy, Message: fmt.Sprintf("sync %s failed: %v", t.id, t.err)}
	case t.failed > 0:
		return Check{Status: StatusDegraded, Message: fmt.Sprintf("sync %s: %d ports failed", t.id, t.failed)}
	}
	return Check{Status: StatusHealthy, Message: fmt.Sprintf("sync %s: %d ports", t.id, t.prepared)}
}

// BucketLister is the part of the state store the store check needs.
type BucketLister interface {
	ListBuckets() ([]string, error)
}

// StoreCheck reports whether the state database answers queries.
func StoreCheck(store BucketLister) CheckFunc {
	return func(ctx context.Context) Check {
		if _, err := store.ListBuckets(); err != nil {
			return Check{Status: StatusDegraded, Message: fmt.Sprintf("state store: %v", err)}
		}
		return Check{Status: StatusHealthy, Message: "state store readable"}
	}
}
