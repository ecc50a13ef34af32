package state

import (
	"errors"
	"testing"
	"time"

	"grimm.is/portguard/internal/clock"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(DefaultOptions(":memory:"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// TestNewSQLiteStore tests store creation
func TestNewSQLiteStore(t *testing.T) {
	store := newTestStore(t)
	if store.CurrentVersion() != 0 {
		t.Errorf("expected version 0, got %d", store.CurrentVersion())
	}
}

// TestNewSQLiteStore_FileBackend tests that data survives reopening a file database
func TestNewSQLiteStore_FileBackend(t *testing.T) {
	path := t.TempDir() + "/state.db"

	store, err := Open(path)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	if err := store.CreateBucket("ports"); err != nil {
		t.Fatalf("failed to create bucket: %v", err)
	}
	if err := store.Set("ports", "p1", []byte("x")); err != nil {
		t.Fatalf("failed to set: %v", err)
	}
	store.Close()

	store2, err := Open(path)
	if err != nil {
		t.Fatalf("failed to reopen store: %v", err)
	}
	defer store2.Close()

	val, err := store2.Get("ports", "p1")
	if err != nil {
		t.Fatalf("failed to get after reopen: %v", err)
	}
	if string(val) != "x" {
		t.Errorf("expected x, got %s", val)
	}
	if store2.CurrentVersion() != 1 {
		t.Errorf("expected version 1 after reopen, got %d", store2.CurrentVersion())
	}
}

// TestBucketOperations tests bucket creation and listing
func TestBucketOperations(t *testing.T) {
	store := newTestStore(t)

	if err := store.CreateBucket("test"); err != nil {
		t.Fatalf("failed to create bucket: %v", err)
	}
	if err := store.CreateBucket("test"); !errors.Is(err, ErrBucketExists) {
		t.Errorf("expected ErrBucketExists, got %v", err)
	}
	if err := store.EnsureBucket("test"); err != nil {
		t.Errorf("EnsureBucket on existing bucket: %v", err)
	}
	if err := store.EnsureBucket("other"); err != nil {
		t.Errorf("EnsureBucket on new bucket: %v", err)
	}

	buckets, err := store.ListBuckets()
	if err != nil {
		t.Fatalf("failed to list buckets: %v", err)
	}
	if len(buckets) != 2 || buckets[0] != "other" || buckets[1] != "test" {
		t.Errorf("expected [other test], got %v", buckets)
	}
}

// TestKeyValueOperations tests Get/Set/Delete
func TestKeyValueOperations(t *testing.T) {
	store := newTestStore(t)
	store.CreateBucket("kv")

	if err := store.Set("kv", "key1", []byte("value1")); err != nil {
		t.Fatalf("failed to set: %v", err)
	}

	val, err := store.Get("kv", "key1")
	if err != nil {
		t.Fatalf("failed to get: %v", err)
	}
	if string(val) != "value1" {
		t.Errorf("expected value1, got %s", val)
	}

	if _, err := store.Get("kv", "nonexistent"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if err := store.Set("kv", "key1", []byte("updated")); err != nil {
		t.Fatalf("failed to update: %v", err)
	}
	val, _ = store.Get("kv", "key1")
	if string(val) != "updated" {
		t.Errorf("expected updated, got %s", val)
	}

	if err := store.Delete("kv", "key1"); err != nil {
		t.Fatalf("failed to delete: %v", err)
	}
	if _, err := store.Get("kv", "key1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := store.Delete("kv", "nonexistent"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSet_MissingBucket(t *testing.T) {
	store := newTestStore(t)

	if err := store.Set("nope", "k", []byte("v")); !errors.Is(err, ErrBucketMissing) {
		t.Errorf("expected ErrBucketMissing, got %v", err)
	}
	if store.CurrentVersion() != 0 {
		t.Errorf("failed write must not bump version, got %d", store.CurrentVersion())
	}
}

// TestGetWithMeta tests metadata retrieval with a pinned clock
func TestGetWithMeta(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store, err := NewSQLiteStore(Options{Path: ":memory:", Clock: clock.NewMockClock(at)})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer store.Close()

	store.CreateBucket("meta")
	store.Set("meta", "key1", []byte("value1"))

	entry, err := store.GetWithMeta("meta", "key1")
	if err != nil {
		t.Fatalf("failed to get with meta: %v", err)
	}
	if string(entry.Value) != "value1" {
		t.Errorf("wrong value: %s", entry.Value)
	}
	if entry.Version != 1 {
		t.Errorf("expected version 1, got %d", entry.Version)
	}
	if !entry.UpdatedAt.Equal(at) {
		t.Errorf("expected UpdatedAt %v, got %v", at, entry.UpdatedAt)
	}
}

// TestListOperations tests List and ListKeys
func TestListOperations(t *testing.T) {
	store := newTestStore(t)
	store.CreateBucket("list")
	store.CreateBucket("other")
	store.Set("list", "b", []byte("2"))
	store.Set("list", "a", []byte("1"))
	store.Set("list", "c", []byte("3"))
	store.Set("other", "z", []byte("9"))

	all, err := store.List("list")
	if err != nil {
		t.Fatalf("failed to list: %v", err)
	}
	if len(all) != 3 || string(all["b"]) != "2" {
		t.Errorf("unexpected list result: %v", all)
	}

	keys, err := store.ListKeys("list")
	if err != nil {
		t.Fatalf("failed to list keys: %v", err)
	}
	if len(keys) != 3 || keys[0] != "a" || keys[1] != "b" || keys[2] != "c" {
		t.Errorf("expected [a b c], got %v", keys)
	}
}

// TestJSONHelpers tests SetJSON and GetJSON
func TestJSONHelpers(t *testing.T) {
	store := newTestStore(t)
	store.CreateBucket("json")

	type record struct {
		Device string   `json:"device"`
		Rules  []string `json:"rules"`
	}
	in := record{Device: "tap0", Rules: []string{"in/allow/80"}}

	if err := store.SetJSON("json", "p1", in); err != nil {
		t.Fatalf("failed to set json: %v", err)
	}

	var out record
	if err := store.GetJSON("json", "p1", &out); err != nil {
		t.Fatalf("failed to get json: %v", err)
	}
	if out.Device != "tap0" || len(out.Rules) != 1 || out.Rules[0] != "in/allow/80" {
		t.Errorf("unexpected round trip: %+v", out)
	}
}

// TestChangeTracking tests the change log and version counter
func TestChangeTracking(t *testing.T) {
	store := newTestStore(t)
	store.CreateBucket("changes")

	store.Set("changes", "k1", []byte("a"))
	store.Set("changes", "k1", []byte("b"))
	store.Delete("changes", "k1")

	if store.CurrentVersion() != 3 {
		t.Errorf("expected version 3, got %d", store.CurrentVersion())
	}

	changes, err := store.GetChangesSince(0)
	if err != nil {
		t.Fatalf("failed to get changes: %v", err)
	}
	want := []ChangeType{ChangeInsert, ChangeUpdate, ChangeDelete}
	if len(changes) != len(want) {
		t.Fatalf("expected %d changes, got %d", len(want), len(changes))
	}
	for i, c := range changes {
		if c.Type != want[i] || c.Version != uint64(i+1) || c.Key != "k1" {
			t.Errorf("change %d: got %+v", i, c)
		}
	}

	later, _ := store.GetChangesSince(2)
	if len(later) != 1 || later[0].Type != ChangeDelete {
		t.Errorf("expected only the delete, got %+v", later)
	}
}

// TestClosedStore tests that operations fail after Close
func TestClosedStore(t *testing.T) {
	store, _ := NewSQLiteStore(DefaultOptions(":memory:"))
	store.CreateBucket("b")
	store.Close()

	if err := store.Set("b", "k", []byte("v")); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("Set: expected ErrStoreClosed, got %v", err)
	}
	if _, err := store.Get("b", "k"); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("Get: expected ErrStoreClosed, got %v", err)
	}
	if err := store.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
