package admission

import (
	"context"
	"sync"
	"time"
)

// StatsEvent records one admission decision. Recording is best-effort: the
// router must never fail a request because a stats write failed.
type StatsEvent struct {
	ClientID string
	Tier     string
	Allowed  bool

	Method string
	Path   string

	At time.Time
}

// StatsStore is the persistence strategy for admission statistics.
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
	Snapshot(ctx context.Context) (StatsSnapshot, error)
}

// Counters pairs accepted and rejected request counts.
type Counters struct {
	Allowed int64 `json:"allowed"`
	Denied  int64 `json:"denied"`
}

// StatsSnapshot is the aggregate view surfaced by the admin metrics endpoint.
type StatsSnapshot struct {
	Total   Counters            `json:"total"`
	ByRoute map[string]Counters `json:"by_route,omitempty"`
}

// MemoryStatsStore keeps admission statistics in process memory. It is the
// default backend; the Redis store is used when statistics must survive
// restarts or be shared with external tooling.
type MemoryStatsStore struct {
	mu      sync.Mutex
	total   Counters
	byRoute map[string]Counters
}

// NewMemoryStatsStore builds an empty in-memory stats store.
func NewMemoryStatsStore() *MemoryStatsStore {
	return &MemoryStatsStore{byRoute: make(map[string]Counters)}
}

// Record implements StatsStore.
func (s *MemoryStatsStore) Record(_ context.Context, ev StatsEvent) error {
	route := ev.Method + " " + ev.Path

	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.byRoute[route]
	if ev.Allowed {
		s.total.Allowed++
		c.Allowed++
	} else {
		s.total.Denied++
		c.Denied++
	}
	s.byRoute[route] = c
	return nil
}

// Snapshot implements StatsStore.
func (s *MemoryStatsStore) Snapshot(_ context.Context) (StatsSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byRoute := make(map[string]Counters, len(s.byRoute))
	for route, counters := range s.byRoute {
		byRoute[route] = counters
	}
	return StatsSnapshot{Total: s.total, ByRoute: byRoute}, nil
}
