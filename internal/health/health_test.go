package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/portguard/internal/clock"
)

func static(s Status) CheckFunc {
	return func(ctx context.Context) Check { return Check{Status: s} }
}

func TestChecker_WorstStatusWins(t *testing.T) {
	c := NewChecker()
	c.Register("a", static(StatusHealthy))
	c.Register("b", static(StatusDegraded))

	report := c.Check(context.Background())
	assert.Equal(t, StatusDegraded, report.Status)
	assert.Len(t, report.Checks, 2)
	assert.Equal(t, "b", report.Checks["b"].Name)

	c.Register("c", static(StatusUnhealthy))
	assert.Equal(t, StatusUnhealthy, c.Check(context.Background()).Status)
}

func TestChecker_CachesReport(t *testing.T) {
	mock := clock.NewMockClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	defer clock.Set(mock)()

	calls := 0
	c := NewChecker()
	c.Register("count", func(ctx context.Context) Check {
		calls++
		return Check{Status: StatusHealthy}
	})

	c.Check(context.Background())
	c.Check(context.Background())
	assert.Equal(t, 1, calls)

	mock.Advance(10 * time.Second)
	c.Check(context.Background())
	assert.Equal(t, 2, calls)
}

func TestSyncTracker(t *testing.T) {
	var tr SyncTracker
	ctx := context.Background()

	assert.Equal(t, StatusUnhealthy, tr.Check(ctx).Status)

	tr.Record("s1", 2, 0, nil)
	assert.Equal(t, StatusHealthy, tr.Check(ctx).Status)

	tr.Record("s2", 1, 1, errors.New("port p2: bind"))
	assert.Equal(t, StatusDegraded, tr.Check(ctx).Status)

	tr.Record("s3", 0, 2, errors.New("backend down"))
	check := tr.Check(ctx)
	assert.Equal(t, StatusUnhealthy, check.Status)
	assert.Contains(t, check.Message, "backend down")
}

type fakeStore struct{ err error }

func (f fakeStore) ListBuckets() ([]string, error) { return nil, f.err }

func TestStoreCheck(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, StatusHealthy, StoreCheck(fakeStore{})(ctx).Status)
	assert.Equal(t, StatusDegraded, StoreCheck(fakeStore{err: errors.New("closed")})(ctx).Status)
}

func TestHandlers(t *testing.T) {
	var tr SyncTracker
	c := NewChecker()
	c.Register("sync", tr.Check)

	rec := httptest.NewRecorder()
	c.Handler()(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var report Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, StatusUnhealthy, report.Status)

	rec = httptest.NewRecorder()
	c.ReadinessHandler()(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "NOT READY", rec.Body.String())

	// Fresh checker so the cached report is not reused
	tr.Record("s1", 1, 0, nil)
	c = NewChecker()
	c.Register("sync", tr.Check)
	rec = httptest.NewRecorder()
	c.ReadinessHandler()(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	LivenessHandler()(rec, httptest.NewRequest(http.MethodGet, "/livez", nil))
	assert.Equal(t, "OK", rec.Body.String())
}
