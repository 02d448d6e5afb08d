// Package admission implements per-client, per-tier sliding-window rate
// limiting. The limiter owns all RateWindow state; callers only see
// allow/deny decisions.
package admission

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/threatwatch/gateway/internal/auth"
)

// TierPolicy is the rate-limit tuple configured per tier.
type TierPolicy struct {
	Limit  int
	Window time.Duration
}

// window holds the sliding request timestamps for one client. Each window
// carries its own mutex so concurrent requests from different clients never
// serialize on each other; only the short map lookup takes the limiter lock.
type window struct {
	mu       sync.Mutex
	stamps   []time.Time
	lastSeen time.Time
}

// Limiter is the admission controller. It fails open: an internal error is
// logged and the request is allowed, because gateway availability takes
// priority over strict quota enforcement during a bug.
type Limiter struct {
	mu      sync.Mutex
	clients map[string]*window

	policies map[auth.Tier]TierPolicy
	clock    func() time.Time
	logger   *zap.Logger

	idleTTL time.Duration
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source, for tests.
func WithClock(clock func() time.Time) Option {
	return func(l *Limiter) { l.clock = clock }
}

// WithLogger sets the limiter's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Limiter) { l.logger = logger }
}

// WithIdleTTL overrides how long an inactive client's window is retained
// before the janitor drops it.
func WithIdleTTL(d time.Duration) Option {
	return func(l *Limiter) { l.idleTTL = d }
}

// NewLimiter builds a limiter with the given per-tier policies.
func NewLimiter(policies map[auth.Tier]TierPolicy, opts ...Option) *Limiter {
	l := &Limiter{
		clients:  make(map[string]*window),
		policies: policies,
		clock:    func() time.Time { return time.Now().UTC() },
		logger:   zap.NewNop(),
		idleTTL:  2 * time.Hour,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow decides whether one more request from clientID under tier fits the
// tier's sliding window. Timestamps older than the window are pruned, then
// the remaining count is compared against the limit; an accepted request
// appends now. The decision runs under the client's own lock so two
// concurrent requests from the same client cannot both pass a nearly full
// window.
func (l *Limiter) Allow(clientID string, tier auth.Tier) (allowed bool) {
	defer func() {
		if rec := recover(); rec != nil {
			l.logger.Error("admission check panicked, failing open",
				zap.Any("panic", rec),
				zap.String("client_id", clientID))
			allowed = true
		}
	}()

	policy, ok := l.policies[tier]
	if !ok || policy.Limit <= 0 || policy.Window <= 0 {
		// Unconfigured tier: fail open rather than guess a quota.
		l.logger.Warn("no admission policy for tier, allowing",
			zap.String("tier", string(tier)))
		return true
	}

	now := l.clock()
	w := l.get(clientID, now)

	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := now.Add(-policy.Window)
	kept := w.stamps[:0]
	for _, ts := range w.stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	w.stamps = kept

	if len(w.stamps) >= policy.Limit {
		return false
	}

	w.stamps = append(w.stamps, now)
	return true
}

// get returns the client's window, creating it lazily on first sight.
func (l *Limiter) get(clientID string, now time.Time) *window {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.clients[clientID]
	if !ok {
		w = &window{}
		l.clients[clientID] = w
	}
	w.lastSeen = now
	return w
}

// Cleanup drops windows idle for longer than the idle TTL.
func (l *Limiter) Cleanup() {
	cutoff := l.clock().Add(-l.idleTTL)

	l.mu.Lock()
	defer l.mu.Unlock()

	for id, w := range l.clients {
		if w.lastSeen.Before(cutoff) {
			delete(l.clients, id)
		}
	}
}

// StartJanitor periodically evicts idle client windows until ctx is done.
func (l *Limiter) StartJanitor(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}

	t := time.NewTicker(every)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				l.Cleanup()
			}
		}
	}()
}

// Tracked reports how many client windows are currently held.
func (l *Limiter) Tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}
