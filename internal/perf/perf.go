// Package perf provides the caching, batching and latency tracking used by
// sync operations.
package perf

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/steveyegge/trackersync/internal/telemetry"
)

// Defaults.
const (
	DefaultCacheTTL   = 5 * time.Minute
	DefaultBatchSize  = 5
	DefaultBatchDelay = time.Second
	DefaultMaxMetrics = 100
)

// Optimizer owns a TTL cache and a bounded metric history. It is safe for
// concurrent use.
type Optimizer struct {
	log *slog.Logger

	mu      sync.Mutex
	cache   map[string]cacheEntry
	hits    int64
	misses  int64
	metrics []Metric
	next    int // ring write position once metrics is full

	ttl        time.Duration
	maxMetrics int
	batch      BatchOptions

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	duration  metric.Float64Histogram
	cacheHit  metric.Int64Counter
	cacheMiss metric.Int64Counter
}

type cacheEntry struct {
	value     any
	expiresAt time.Time
}

// Option configures an Optimizer.
type Option func(*Optimizer)

// WithCacheTTL sets the TTL used when Set is called without one.
func WithCacheTTL(ttl time.Duration) Option {
	return func(o *Optimizer) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

// WithBatchOptions sets the defaults BatchProcess uses for zero option fields.
func WithBatchOptions(opts BatchOptions) Option {
	return func(o *Optimizer) { o.batch = opts }
}

// WithMaxMetrics bounds the metric history.
func WithMaxMetrics(n int) Option {
	return func(o *Optimizer) {
		if n > 0 {
			o.maxMetrics = n
		}
	}
}

// WithClock replaces time.Now for cache expiry and metric timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Optimizer) { o.now = now }
}

// WithSleep replaces the inter-batch sleep.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(o *Optimizer) { o.sleep = sleep }
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(o *Optimizer) { o.log = log }
}

// New creates an Optimizer.
func New(opts ...Option) *Optimizer {
	o := &Optimizer{
		cache:      make(map[string]cacheEntry),
		ttl:        DefaultCacheTTL,
		maxMetrics: DefaultMaxMetrics,
		batch:      BatchOptions{Size: DefaultBatchSize, Delay: DefaultBatchDelay},
		now:        time.Now,
		sleep:      sleepCtx,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.log == nil {
		o.log = slog.Default()
	}

	m := telemetry.Meter("perf")
	o.duration, _ = m.Float64Histogram("trackersync.operation.duration",
		metric.WithDescription("Sync operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	o.cacheHit, _ = m.Int64Counter("trackersync.cache.hits",
		metric.WithDescription("Platform read cache hits"),
	)
	o.cacheMiss, _ = m.Int64Counter("trackersync.cache.misses",
		metric.WithDescription("Platform read cache misses"),
	)
	return o
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
