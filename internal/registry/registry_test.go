package registry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	gwerrors "github.com/threatwatch/gateway/internal/errors"
)

func healthyBackend(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func unhealthyBackend(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestResolve(t *testing.T) {
	r := New(map[string]string{"blacklist": "http://localhost:8002"})

	address, err := r.Resolve("blacklist")
	require.NoError(t, err)
	require.Equal(t, "http://localhost:8002", address)

	_, err = r.Resolve("nonexistent")
	require.Error(t, err)
	require.True(t, gwerrors.IsCode(err, gwerrors.CodeUnknownService))
}

func TestServicesStartUnhealthy(t *testing.T) {
	r := New(map[string]string{"blacklist": "http://localhost:8002"})
	require.False(t, r.IsHealthy("blacklist"))
	require.False(t, r.IsHealthy("nonexistent"))
}

func TestSweepMarksHealth(t *testing.T) {
	up := healthyBackend(t)
	down := unhealthyBackend(t)
	gone := httptest.NewServer(http.NotFoundHandler())
	goneAddr := gone.URL
	gone.Close()

	r := New(map[string]string{
		"blacklist":  up.URL,
		"analytics":  down.URL,
		"collection": goneAddr,
	})
	r.Sweep(context.Background())

	require.True(t, r.IsHealthy("blacklist"))
	require.False(t, r.IsHealthy("analytics"), "non-200 probe must mark unhealthy")
	require.False(t, r.IsHealthy("collection"), "connection failure must mark unhealthy")
}

func TestSweepRecovers(t *testing.T) {
	var healthy atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if healthy.Load() {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	r := New(map[string]string{"blacklist": srv.URL})

	r.Sweep(context.Background())
	require.False(t, r.IsHealthy("blacklist"))

	healthy.Store(true)
	r.Sweep(context.Background())
	require.True(t, r.IsHealthy("blacklist"))
}

func TestSnapshotIsCopy(t *testing.T) {
	up := healthyBackend(t)
	r := New(map[string]string{"blacklist": up.URL})
	r.Sweep(context.Background())

	snapshot := r.Snapshot()
	require.Len(t, snapshot, 1)
	require.True(t, snapshot["blacklist"].Healthy)
	require.Equal(t, up.URL, snapshot["blacklist"].Address)
	require.False(t, snapshot["blacklist"].LastChecked.IsZero())

	// Mutating the copy must not leak into the registry.
	snapshot["blacklist"] = ServiceStatus{Name: "blacklist", Healthy: false}
	require.True(t, r.IsHealthy("blacklist"))
}

func TestEnsureFreshWithinGraceDoesNothing(t *testing.T) {
	var probes atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		probes.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	r := New(map[string]string{"blacklist": srv.URL},
		WithGrace(30*time.Second),
		WithClock(func() time.Time { return now }),
	)

	r.Sweep(context.Background())
	require.Equal(t, int32(1), probes.Load())

	// A fresh snapshot suppresses re-probing entirely.
	for i := 0; i < 10; i++ {
		r.EnsureFresh(context.Background())
	}
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, int32(1), probes.Load())
}

func TestEnsureFreshResweepsAfterGrace(t *testing.T) {
	var probes atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		probes.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	r := New(map[string]string{"blacklist": srv.URL},
		WithGrace(30*time.Second),
		WithClock(func() time.Time { return now }),
	)

	r.Sweep(context.Background())
	require.Equal(t, int32(1), probes.Load())

	now = now.Add(31 * time.Second)
	r.EnsureFresh(context.Background())

	require.Eventually(t, func() bool {
		return probes.Load() == 2
	}, 2*time.Second, 10*time.Millisecond, "stale snapshot must trigger one background sweep")
}

func TestEnsureFreshSweepOutlivesRequestContext(t *testing.T) {
	var probes atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		probes.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	r := New(map[string]string{"blacklist": srv.URL},
		WithGrace(time.Second),
		WithClock(func() time.Time { return now }),
	)
	r.Sweep(context.Background())
	now = now.Add(2 * time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	r.EnsureFresh(ctx)
	cancel()

	require.Eventually(t, func() bool {
		return probes.Load() == 2
	}, 2*time.Second, 10*time.Millisecond)
	require.True(t, r.IsHealthy("blacklist"))
}

func TestProbeTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	r := New(map[string]string{"blacklist": srv.URL},
		WithProbeTimeout(20*time.Millisecond))
	r.Sweep(context.Background())

	require.False(t, r.IsHealthy("blacklist"), "slow probe must count as unhealthy")
}

func TestValidate(t *testing.T) {
	require.NoError(t, New(map[string]string{"blacklist": "http://localhost:8002"}).Validate())
	require.Error(t, New(map[string]string{"blacklist": ""}).Validate())
}
