// Package retry wraps platform calls in classified exponential backoff.
//
// Transient failures (network, rate limit, 5xx, timeout) are retried with a
// deterministic doubling delay; unclassified failures fail fast.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/steveyegge/trackersync/internal/telemetry"
	"github.com/steveyegge/trackersync/internal/types"
)

// Default retry configuration.
const (
	DefaultMaxRetries        = 3
	DefaultInitialDelay      = time.Second
	DefaultMaxDelay          = 8 * time.Second
	DefaultBackoffMultiplier = 2.0
)

// Config controls retry behaviour.
type Config struct {
	MaxRetries        int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
}

// DefaultConfig returns 3 retries at 1s, 2s, 4s capped at 8s.
func DefaultConfig() Config {
	return Config{
		MaxRetries:        DefaultMaxRetries,
		InitialDelay:      DefaultInitialDelay,
		MaxDelay:          DefaultMaxDelay,
		BackoffMultiplier: DefaultBackoffMultiplier,
	}
}

// Delay returns the wait before retry n (1-based):
// min(InitialDelay × BackoffMultiplier^(n−1), MaxDelay).
func (c Config) Delay(n int) time.Duration {
	d := float64(c.InitialDelay)
	for i := 1; i < n; i++ {
		d *= c.BackoffMultiplier
		if d >= float64(c.MaxDelay) {
			return c.MaxDelay
		}
	}
	if time.Duration(d) > c.MaxDelay {
		return c.MaxDelay
	}
	return time.Duration(d)
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = def.InitialDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = def.MaxDelay
	}
	if c.MaxDelay < c.InitialDelay {
		c.MaxDelay = c.InitialDelay
	}
	if c.BackoffMultiplier < 1 {
		c.BackoffMultiplier = def.BackoffMultiplier
	}
	return c
}

// newBackOff builds a fresh, jitter-free backoff. BackOff implementations are
// stateful, so every Execute gets its own.
func (c Config) newBackOff(ctx context.Context) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.InitialDelay
	bo.MaxInterval = c.MaxDelay
	bo.Multiplier = c.BackoffMultiplier
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0
	bo.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(bo, uint64(c.MaxRetries)), ctx)
}

// Limiter is the rate limiter view the handler coordinates with.
type Limiter interface {
	// WaitIfNeeded pauses when the tool's quota is nearly exhausted.
	WaitIfNeeded(ctx context.Context, tool types.Tool, onWait func(time.Duration)) (bool, error)
	// Throttle marks the tool exhausted for the given duration.
	Throttle(tool types.Tool, wait time.Duration)
}

// Handler executes operations with retry.
type Handler struct {
	cfg     Config
	limiter Limiter
	tool    types.Tool
	log     *slog.Logger
	timer   func() backoff.Timer
}

// Option configures a Handler.
type Option func(*Handler)

// WithLimiter makes the handler consult l for tool before every attempt and
// report rate-limit wait hints back to it.
func WithLimiter(l Limiter, tool types.Tool) Option {
	return func(h *Handler) {
		h.limiter = l
		h.tool = tool
	}
}

// WithLogger sets the logger used for retry notifications.
func WithLogger(log *slog.Logger) Option {
	return func(h *Handler) { h.log = log }
}

// WithTimer replaces the backoff timer, e.g. with one that fires immediately in tests.
func WithTimer(newTimer func() backoff.Timer) Option {
	return func(h *Handler) { h.timer = newTimer }
}

// NewHandler creates a retry handler. Zero or invalid config fields take defaults.
func NewHandler(cfg Config, opts ...Option) *Handler {
	h := &Handler{cfg: cfg.withDefaults()}
	for _, opt := range opts {
		opt(h)
	}
	if h.log == nil {
		h.log = slog.Default()
	}
	return h
}

// Config returns the effective configuration.
func (h *Handler) Config() Config {
	return h.cfg
}

// Result is the outcome of Execute.
type Result[T any] struct {
	Success    bool
	Value      T
	Err        error
	Attempts   int
	TotalDelay time.Duration
	// Class is the classification of the last failure, empty on success.
	Class ErrorClass
}

// Execute runs op until it succeeds, fails with a non-retryable error, or
// exhausts the retry budget. The last original error is returned in Result.Err.
// A nil classifier uses Classify.
func Execute[T any](ctx context.Context, h *Handler, op func(ctx context.Context) (T, error), classifier Classifier) Result[T] {
	if classifier == nil {
		classifier = Classify
	}

	ctx, span := telemetry.Tracer("retry").Start(ctx, "retry.execute")
	defer span.End()

	var res Result[T]
	attempt := func() error {
		if h.limiter != nil {
			if _, err := h.limiter.WaitIfNeeded(ctx, h.tool, func(d time.Duration) {
				h.log.Info("rate limit nearly exhausted, pausing", "tool", h.tool, "pause", d)
			}); err != nil {
				return backoff.Permanent(err)
			}
		}

		res.Attempts++
		value, err := op(ctx)
		if err == nil {
			res.Value = value
			return nil
		}

		res.Class = classifier(err)
		if res.Class == ClassRateLimit && h.limiter != nil {
			if wait, ok := DetectRateLimitWait(err); ok {
				h.limiter.Throttle(h.tool, wait)
			}
		}
		if !res.Class.Retryable() {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, next time.Duration) {
		res.TotalDelay += next
		h.log.Debug("retrying after transient error",
			"attempt", res.Attempts, "class", res.Class, "delay", next, "error", err)
	}

	var timer backoff.Timer
	if h.timer != nil {
		timer = h.timer()
	}
	err := backoff.RetryNotifyWithTimer(attempt, h.cfg.newBackOff(ctx), notify, timer)

	span.SetAttributes(
		attribute.Int("retry.attempts", res.Attempts),
		attribute.Int64("retry.total_delay_ms", res.TotalDelay.Milliseconds()),
	)
	if err != nil {
		res.Err = err
		if res.Class == "" {
			// Never reached op, e.g. cancelled while paused by the limiter.
			res.Class = classifier(err)
		}
		span.SetAttributes(attribute.String("retry.class", string(res.Class)))
		span.SetStatus(codes.Error, err.Error())
		return res
	}
	res.Success = true
	res.Class = ""
	return res
}

// Do is Execute for operations without a result value.
func Do(ctx context.Context, h *Handler, op func(ctx context.Context) error, classifier Classifier) Result[struct{}] {
	return Execute(ctx, h, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	}, classifier)
}

// Message renders the user-facing error message for a failed result.
func (r Result[T]) Message(maxRetries int) string {
	if r.Success {
		return ""
	}
	exhausted := r.Class.Retryable() && r.Attempts > maxRetries
	return CreateErrorMessage(r.Class, r.Err, r.Attempts, exhausted)
}

// IsCanceled reports whether the result failed because ctx was cancelled.
func (r Result[T]) IsCanceled() bool {
	return errors.Is(r.Err, context.Canceled) || errors.Is(r.Err, context.DeadlineExceeded)
}
