package retry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/steveyegge/trackersync/internal/types"
)

// instantTimer fires immediately and records every requested delay.
type instantTimer struct {
	mu     sync.Mutex
	c      chan time.Time
	delays []time.Duration
}

func newInstantTimer() *instantTimer {
	return &instantTimer{c: make(chan time.Time, 1)}
}

func (t *instantTimer) Start(d time.Duration) {
	t.mu.Lock()
	t.delays = append(t.delays, d)
	t.mu.Unlock()
	t.c <- time.Now()
}

func (t *instantTimer) Stop()               {}
func (t *instantTimer) C() <-chan time.Time { return t.c }

func newTestHandler(cfg Config, timer *instantTimer, opts ...Option) *Handler {
	opts = append(opts, WithTimer(func() backoff.Timer { return timer }))
	return NewHandler(cfg, opts...)
}

func TestExecuteSuccessFirstAttempt(t *testing.T) {
	timer := newInstantTimer()
	h := newTestHandler(DefaultConfig(), timer)

	res := Execute(context.Background(), h, func(ctx context.Context) (string, error) {
		return "ok", nil
	}, nil)

	if !res.Success || res.Value != "ok" {
		t.Fatalf("result = %+v", res)
	}
	if res.Attempts != 1 || res.TotalDelay != 0 {
		t.Errorf("Attempts = %d, TotalDelay = %v, want 1, 0", res.Attempts, res.TotalDelay)
	}
}

func TestExecuteUnknownNotRetried(t *testing.T) {
	timer := newInstantTimer()
	h := newTestHandler(DefaultConfig(), timer)
	boom := errors.New("nil pointer in mapper")

	calls := 0
	res := Execute(context.Background(), h, func(ctx context.Context) (int, error) {
		calls++
		return 0, boom
	}, func(error) ErrorClass { return ClassUnknown })

	if res.Success {
		t.Fatal("expected failure")
	}
	if calls != 1 || res.Attempts != 1 {
		t.Errorf("calls = %d, Attempts = %d, want 1", calls, res.Attempts)
	}
	if !errors.Is(res.Err, boom) {
		t.Errorf("Err = %v, want original error", res.Err)
	}
	if res.TotalDelay != 0 || len(timer.delays) != 0 {
		t.Errorf("unexpected delay: %v %v", res.TotalDelay, timer.delays)
	}
}

func TestExecuteExhaustsRetries(t *testing.T) {
	timer := newInstantTimer()
	h := newTestHandler(DefaultConfig(), timer)

	var last error
	calls := 0
	res := Execute(context.Background(), h, func(ctx context.Context) (int, error) {
		calls++
		last = fmt.Errorf("ECONNREFUSED attempt %d", calls)
		return 0, last
	}, func(error) ErrorClass { return ClassNetwork })

	if res.Attempts != 4 {
		t.Errorf("Attempts = %d, want 4", res.Attempts)
	}
	if res.TotalDelay != 7*time.Second {
		t.Errorf("TotalDelay = %v, want 7s", res.TotalDelay)
	}
	if res.Err != last {
		t.Errorf("Err = %v, want last original error %v", res.Err, last)
	}
	if res.Class != ClassNetwork {
		t.Errorf("Class = %q", res.Class)
	}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	if fmt.Sprint(timer.delays) != fmt.Sprint(want) {
		t.Errorf("delays = %v, want %v", timer.delays, want)
	}
	if msg := res.Message(h.Config().MaxRetries); !strings.Contains(msg, "(failed after 4 attempts)") {
		t.Errorf("Message() = %q", msg)
	}
}

func TestExecuteDelayCappedAtMax(t *testing.T) {
	timer := newInstantTimer()
	cfg := DefaultConfig()
	cfg.MaxRetries = 5
	h := newTestHandler(cfg, timer)

	res := Execute(context.Background(), h, func(ctx context.Context) (int, error) {
		return 0, errors.New("503 service unavailable")
	}, nil)

	if res.Attempts != 6 {
		t.Errorf("Attempts = %d, want 6", res.Attempts)
	}
	// 1 + 2 + 4 + 8 + 8
	if res.TotalDelay != 23*time.Second {
		t.Errorf("TotalDelay = %v, want 23s", res.TotalDelay)
	}
}

func TestExecuteRecovers(t *testing.T) {
	timer := newInstantTimer()
	h := newTestHandler(DefaultConfig(), timer)

	calls := 0
	res := Execute(context.Background(), h, func(ctx context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("request timed out")
		}
		return 42, nil
	}, nil)

	if !res.Success || res.Value != 42 {
		t.Fatalf("result = %+v", res)
	}
	if res.Attempts != 3 || res.TotalDelay != 3*time.Second {
		t.Errorf("Attempts = %d, TotalDelay = %v, want 3, 3s", res.Attempts, res.TotalDelay)
	}
	if res.Class != "" {
		t.Errorf("Class = %q, want empty on success", res.Class)
	}
}

func TestExecuteHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := NewHandler(Config{MaxRetries: 3, InitialDelay: time.Hour, MaxDelay: time.Hour, BackoffMultiplier: 2})

	done := make(chan Result[int], 1)
	go func() {
		done <- Execute(ctx, h, func(ctx context.Context) (int, error) {
			return 0, errors.New("connection reset by peer")
		}, nil)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case res := <-done:
		if res.Success || !res.IsCanceled() {
			t.Errorf("result = %+v, want cancellation", res)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Execute did not return after cancel")
	}
}

type fakeLimiter struct {
	waits     int
	throttled map[types.Tool]time.Duration
}

func (f *fakeLimiter) WaitIfNeeded(ctx context.Context, tool types.Tool, onWait func(time.Duration)) (bool, error) {
	f.waits++
	return false, nil
}

func (f *fakeLimiter) Throttle(tool types.Tool, wait time.Duration) {
	if f.throttled == nil {
		f.throttled = make(map[types.Tool]time.Duration)
	}
	f.throttled[tool] = wait
}

func TestExecuteCoordinatesWithLimiter(t *testing.T) {
	timer := newInstantTimer()
	lim := &fakeLimiter{}
	h := newTestHandler(DefaultConfig(), timer, WithLimiter(lim, types.ToolJira))

	calls := 0
	res := Execute(context.Background(), h, func(ctx context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, errors.New("429 Too Many Requests: retry after 30 seconds")
		}
		return 1, nil
	}, nil)

	if !res.Success {
		t.Fatalf("result = %+v", res)
	}
	if lim.waits != 2 {
		t.Errorf("WaitIfNeeded called %d times, want once per attempt", lim.waits)
	}
	if got := lim.throttled[types.ToolJira]; got != 30*time.Second {
		t.Errorf("Throttle wait = %v, want 30s", got)
	}
}

func TestDo(t *testing.T) {
	h := newTestHandler(DefaultConfig(), newInstantTimer())
	res := Do(context.Background(), h, func(ctx context.Context) error { return nil }, nil)
	if !res.Success || res.Attempts != 1 {
		t.Errorf("Do() = %+v", res)
	}
}

func TestConfigDelay(t *testing.T) {
	cfg := DefaultConfig()
	tests := []struct {
		n    int
		want time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 8 * time.Second},
	}
	for _, tt := range tests {
		if got := cfg.Delay(tt.n); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.n, got, tt.want)
		}
	}
}

func TestNewHandlerDefaults(t *testing.T) {
	h := NewHandler(Config{})
	got := h.Config()
	if got.InitialDelay != time.Second || got.MaxDelay != 8*time.Second || got.BackoffMultiplier != 2 {
		t.Errorf("Config() = %+v", got)
	}
	if got.MaxRetries != 0 {
		t.Errorf("MaxRetries = %d, explicit zero should be kept", got.MaxRetries)
	}
}
