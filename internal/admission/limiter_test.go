package admission

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/threatwatch/gateway/internal/auth"
)

func testPolicies() map[auth.Tier]TierPolicy {
	return map[auth.Tier]TierPolicy{
		auth.TierAnonymous: {Limit: 3, Window: time.Hour},
		auth.TierUser:      {Limit: 5, Window: time.Hour},
	}
}

func TestLimiterEnforcesLimit(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	l := NewLimiter(testPolicies(), WithClock(func() time.Time { return now }))

	for i := 0; i < 3; i++ {
		require.True(t, l.Allow("10.0.0.1", auth.TierAnonymous), "request %d", i+1)
	}
	require.False(t, l.Allow("10.0.0.1", auth.TierAnonymous), "request over limit")
}

func TestLimiterWindowSlides(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	l := NewLimiter(testPolicies(), WithClock(func() time.Time { return now }))

	// Stagger the admitted requests a minute apart.
	for i := 0; i < 3; i++ {
		require.True(t, l.Allow("10.0.0.1", auth.TierAnonymous))
		now = now.Add(time.Minute)
	}
	require.False(t, l.Allow("10.0.0.1", auth.TierAnonymous))

	// Just inside the window the oldest stamp still counts.
	now = now.Add(time.Hour - 4*time.Minute)
	require.False(t, l.Allow("10.0.0.1", auth.TierAnonymous))

	// Once the oldest stamp ages out, exactly one slot opens.
	now = now.Add(90 * time.Second)
	require.True(t, l.Allow("10.0.0.1", auth.TierAnonymous))
	require.False(t, l.Allow("10.0.0.1", auth.TierAnonymous))
}

func TestLimiterIsolatesClients(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	l := NewLimiter(testPolicies(), WithClock(func() time.Time { return now }))

	for i := 0; i < 3; i++ {
		require.True(t, l.Allow("10.0.0.1", auth.TierAnonymous))
	}
	require.False(t, l.Allow("10.0.0.1", auth.TierAnonymous))

	// Another client's window is untouched.
	require.True(t, l.Allow("10.0.0.2", auth.TierAnonymous))
}

func TestLimiterTiersHaveSeparatePolicies(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	l := NewLimiter(testPolicies(), WithClock(func() time.Time { return now }))

	for i := 0; i < 5; i++ {
		require.True(t, l.Allow("acme-scanner", auth.TierUser), "request %d", i+1)
	}
	require.False(t, l.Allow("acme-scanner", auth.TierUser))
}

func TestLimiterUnconfiguredTierAllows(t *testing.T) {
	l := NewLimiter(testPolicies())

	for i := 0; i < 100; i++ {
		require.True(t, l.Allow("root", auth.TierAdmin))
	}
}

func TestLimiterConcurrentSameClient(t *testing.T) {
	policies := map[auth.Tier]TierPolicy{
		auth.TierAnonymous: {Limit: 50, Window: time.Hour},
	}
	l := NewLimiter(policies)

	const attempts = 200
	var wg sync.WaitGroup
	allowed := make(chan bool, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			allowed <- l.Allow("10.0.0.1", auth.TierAnonymous)
		}()
	}
	wg.Wait()
	close(allowed)

	granted := 0
	for ok := range allowed {
		if ok {
			granted++
		}
	}
	require.Equal(t, 50, granted, "exactly the limit must be admitted under contention")
}

func TestLimiterCleanup(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	l := NewLimiter(testPolicies(),
		WithClock(func() time.Time { return now }),
		WithIdleTTL(time.Hour),
	)

	require.True(t, l.Allow("10.0.0.1", auth.TierAnonymous))
	require.True(t, l.Allow("10.0.0.2", auth.TierAnonymous))
	require.Equal(t, 2, l.Tracked())

	now = now.Add(30 * time.Minute)
	require.True(t, l.Allow("10.0.0.2", auth.TierAnonymous))

	now = now.Add(45 * time.Minute)
	l.Cleanup()

	// 10.0.0.1 has been idle past the TTL, 10.0.0.2 has not.
	require.Equal(t, 1, l.Tracked())
	require.True(t, l.Allow("10.0.0.2", auth.TierAnonymous))
}
