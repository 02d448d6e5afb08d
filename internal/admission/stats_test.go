package admission

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryStatsStore(t *testing.T) {
	store := NewMemoryStatsStore()
	ctx := context.Background()
	at := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	events := []StatsEvent{
		{ClientID: "10.0.0.1", Tier: "anonymous", Allowed: true, Method: "GET", Path: "/api/v1/blacklist/active", At: at},
		{ClientID: "10.0.0.1", Tier: "anonymous", Allowed: true, Method: "GET", Path: "/api/v1/blacklist/active", At: at},
		{ClientID: "10.0.0.1", Tier: "anonymous", Allowed: false, Method: "GET", Path: "/api/v1/blacklist/active", At: at},
		{ClientID: "acme", Tier: "user", Allowed: true, Method: "POST", Path: "/api/v1/collection/trigger", At: at},
	}
	for _, ev := range events {
		require.NoError(t, store.Record(ctx, ev))
	}

	snapshot, err := store.Snapshot(ctx)
	require.NoError(t, err)

	require.Equal(t, Counters{Allowed: 3, Denied: 1}, snapshot.Total)
	require.Equal(t, Counters{Allowed: 2, Denied: 1}, snapshot.ByRoute["GET /api/v1/blacklist/active"])
	require.Equal(t, Counters{Allowed: 1}, snapshot.ByRoute["POST /api/v1/collection/trigger"])
}

func TestMemoryStatsStoreSnapshotIsCopy(t *testing.T) {
	store := NewMemoryStatsStore()
	ctx := context.Background()

	require.NoError(t, store.Record(ctx, StatsEvent{Allowed: true, Method: "GET", Path: "/health"}))

	snapshot, err := store.Snapshot(ctx)
	require.NoError(t, err)
	snapshot.ByRoute["GET /health"] = Counters{Allowed: 99}

	fresh, err := store.Snapshot(ctx)
	require.NoError(t, err)
	require.Equal(t, Counters{Allowed: 1}, fresh.ByRoute["GET /health"])
}
