// Package registry holds the static mapping of logical service names to base
// addresses and maintains the healthy set through a periodic, parallel probe
// sweep. The registry exclusively owns per-service health state; readers only
// ever see complete snapshots.
package registry

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	gwerrors "github.com/threatwatch/gateway/internal/errors"
	"github.com/threatwatch/gateway/internal/observability"
)

// ServiceStatus is one service's entry in a registry snapshot.
type ServiceStatus struct {
	Name        string    `json:"name"`
	Address     string    `json:"address"`
	Healthy     bool      `json:"healthy"`
	LastChecked time.Time `json:"last_checked"`
}

// Registry performs service discovery and health monitoring over a static
// topology. Services are configured once at startup and never removed.
type Registry struct {
	services map[string]string

	mu        sync.RWMutex
	snapshot  map[string]ServiceStatus
	lastSweep time.Time

	sweeping atomic.Bool

	client       *http.Client
	probeTimeout time.Duration
	interval     time.Duration
	grace        time.Duration
	healthPath   string

	clock   func() time.Time
	logger  *zap.Logger
	metrics *observability.Metrics
}

// Option configures a Registry.
type Option func(*Registry)

// WithProbeTimeout bounds each individual health probe.
func WithProbeTimeout(d time.Duration) Option {
	return func(r *Registry) { r.probeTimeout = d }
}

// WithInterval sets the background sweep interval.
func WithInterval(d time.Duration) Option {
	return func(r *Registry) { r.interval = d }
}

// WithGrace sets how long a snapshot is reused before a request may
// re-trigger a sweep.
func WithGrace(d time.Duration) Option {
	return func(r *Registry) { r.grace = d }
}

// WithHealthPath overrides the probe path on each backend.
func WithHealthPath(path string) Option {
	return func(r *Registry) { r.healthPath = path }
}

// WithLogger sets the registry's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

// WithMetrics attaches the health gauge.
func WithMetrics(m *observability.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// WithHTTPClient overrides the probe client, for tests.
func WithHTTPClient(client *http.Client) Option {
	return func(r *Registry) { r.client = client }
}

// WithClock overrides the time source, for tests.
func WithClock(clock func() time.Time) Option {
	return func(r *Registry) { r.clock = clock }
}

// New builds a registry over the given name-to-address topology. All
// services start unhealthy until the first sweep completes.
func New(services map[string]string, opts ...Option) *Registry {
	r := &Registry{
		services:     make(map[string]string, len(services)),
		snapshot:     make(map[string]ServiceStatus, len(services)),
		client:       &http.Client{},
		probeTimeout: 3 * time.Second,
		interval:     15 * time.Second,
		grace:        30 * time.Second,
		healthPath:   "/health",
		clock:        func() time.Time { return time.Now().UTC() },
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}

	for name, address := range services {
		r.services[name] = address
		r.snapshot[name] = ServiceStatus{Name: name, Address: address}
	}
	return r
}

// Resolve returns the configured base address for a service, regardless of
// health; the proxy engine decides whether to reject on unhealthy. An
// unconfigured name yields UnknownService.
func (r *Registry) Resolve(name string) (string, error) {
	address, ok := r.services[name]
	if !ok {
		return "", gwerrors.NewUnknownService(name)
	}
	return address, nil
}

// IsHealthy reports the service's state in the latest snapshot. Unknown
// services are never healthy.
func (r *Registry) IsHealthy(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshot[name].Healthy
}

// Snapshot returns a copy of the latest per-service status view.
func (r *Registry) Snapshot() map[string]ServiceStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]ServiceStatus, len(r.snapshot))
	for name, status := range r.snapshot {
		out[name] = status
	}
	return out
}

// Sweep probes every configured service concurrently and installs the
// results as one atomic snapshot. A probe failure only shrinks the healthy
// set; it is never fatal to the gateway.
func (r *Registry) Sweep(ctx context.Context) {
	type result struct {
		name    string
		healthy bool
	}

	results := make(chan result, len(r.services))
	var wg sync.WaitGroup

	for name, address := range r.services {
		wg.Add(1)
		go func(name, address string) {
			defer wg.Done()
			results <- result{name: name, healthy: r.probe(ctx, name, address)}
		}(name, address)
	}
	wg.Wait()
	close(results)

	now := r.clock()
	next := make(map[string]ServiceStatus, len(r.services))
	for name, address := range r.services {
		next[name] = ServiceStatus{Name: name, Address: address, LastChecked: now}
	}
	for res := range results {
		status := next[res.name]
		status.Healthy = res.healthy
		next[res.name] = status
		r.metrics.SetServiceUp(res.name, res.healthy)
	}

	r.mu.Lock()
	r.snapshot = next
	r.lastSweep = now
	r.mu.Unlock()
}

// probe checks one service. Any failure (timeout, connection error,
// non-200) marks it unhealthy with the cause logged.
func (r *Registry) probe(ctx context.Context, name, address string) bool {
	probeCtx, cancel := context.WithTimeout(ctx, r.probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, address+r.healthPath, nil)
	if err != nil {
		r.logger.Warn("health probe request invalid",
			zap.String("service", name),
			zap.Error(err))
		return false
	}

	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.Warn("health probe failed",
			zap.String("service", name),
			zap.Error(err))
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		r.logger.Warn("health probe returned non-200",
			zap.String("service", name),
			zap.Int("status", resp.StatusCode))
		return false
	}
	return true
}

// EnsureFresh re-triggers a sweep in the background once the grace period
// has elapsed since the last one. The caller keeps reading the stale
// snapshot; it is never blocked on probe I/O.
func (r *Registry) EnsureFresh(ctx context.Context) {
	r.mu.RLock()
	stale := r.clock().Sub(r.lastSweep) > r.grace
	r.mu.RUnlock()

	if !stale {
		return
	}
	if !r.sweeping.CompareAndSwap(false, true) {
		return
	}

	// Detach from the request context: the sweep must outlive the request
	// that happened to notice staleness.
	sweepCtx := context.WithoutCancel(ctx)
	go func() {
		defer r.sweeping.Store(false)
		r.Sweep(sweepCtx)
	}()
}

// Run performs an initial sweep and then re-probes on a fixed interval until
// ctx is cancelled. The sweep cadence is independent of request traffic.
func (r *Registry) Run(ctx context.Context) {
	r.Sweep(ctx)

	t := time.NewTicker(r.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.Sweep(ctx)
		}
	}
}

// Validate checks that every configured service carries an address. Called
// once at startup; a bad topology is fatal there, not at request time.
func (r *Registry) Validate() error {
	for name, address := range r.services {
		if address == "" {
			return fmt.Errorf("service %s has no configured address", name)
		}
	}
	return nil
}
