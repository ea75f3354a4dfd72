// Package ratelimit tracks per-platform API quotas and pauses callers before a
// quota is exhausted.
//
// GitHub reports live counters in response headers. JIRA and Azure DevOps do
// not, so their quota is a nominal estimate refreshed on every response and
// overridden by explicit Retry-After signals.
package ratelimit

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/steveyegge/trackersync/internal/types"
)

// Default thresholds.
const (
	DefaultWarningThreshold = 100
	DefaultPauseThreshold   = 10
	DefaultPauseDuration    = 60 * time.Second
)

// Nominal quotas used when a platform response carries no usable counters.
const (
	GitHubDefaultLimit = 5000
	GitHubResetWindow  = time.Hour
	JiraEstimatedLimit = 100
	ADOEstimatedLimit  = 200
	EstimatedWindow    = 60 * time.Second
)

// Capability says whether a platform's quota information is observed or assumed.
type Capability string

const (
	LiveRateLimit      Capability = "live"
	EstimatedRateLimit Capability = "estimated"
)

// CapabilityOf reports how quota information for tool is obtained.
func CapabilityOf(tool types.Tool) Capability {
	if tool == types.ToolGitHub {
		return LiveRateLimit
	}
	return EstimatedRateLimit
}

// Info is the last known quota state for a platform.
type Info struct {
	Tool      types.Tool `json:"tool" yaml:"tool"`
	Remaining int        `json:"remaining" yaml:"remaining"`
	Limit     int        `json:"limit" yaml:"limit"`
	ResetAt   time.Time  `json:"resetAt" yaml:"resetAt"`
	// Live is true when the numbers came from the platform rather than an estimate.
	Live bool `json:"live" yaml:"live"`
	// Throttled marks an explicit back-off (Retry-After or Throttle) that lifts at ResetAt.
	Throttled bool `json:"throttled,omitempty" yaml:"throttled,omitempty"`
}

// ResetIn returns the time until the quota resets, never negative.
func (i Info) ResetIn(now time.Time) time.Duration {
	if d := i.ResetAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// PercentUsed returns the share of the quota already consumed, 0-100.
func (i Info) PercentUsed() float64 {
	if i.Limit <= 0 {
		return 0
	}
	used := float64(i.Limit-i.Remaining) / float64(i.Limit) * 100
	if used < 0 {
		return 0
	}
	return used
}

// Config holds limiter thresholds.
type Config struct {
	// WarningThreshold: remaining below this triggers ShouldWarn.
	WarningThreshold int
	// PauseThreshold: remaining below this makes WaitIfNeeded pause.
	PauseThreshold int
	PauseDuration  time.Duration
}

// DefaultConfig returns warn at 100, pause at 10 for 60s.
func DefaultConfig() Config {
	return Config{
		WarningThreshold: DefaultWarningThreshold,
		PauseThreshold:   DefaultPauseThreshold,
		PauseDuration:    DefaultPauseDuration,
	}
}

// Limiter tracks quota state per platform. It is safe for concurrent use.
type Limiter struct {
	cfg Config
	log *slog.Logger

	mu   sync.Mutex
	info map[types.Tool]Info

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithSleep replaces the context-aware sleep used by WaitIfNeeded.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(l *Limiter) { l.sleep = sleep }
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(l *Limiter) { l.log = log }
}

// New creates a Limiter. Zero config fields take defaults.
func New(cfg Config, opts ...Option) *Limiter {
	def := DefaultConfig()
	if cfg.WarningThreshold <= 0 {
		cfg.WarningThreshold = def.WarningThreshold
	}
	if cfg.PauseThreshold <= 0 {
		cfg.PauseThreshold = def.PauseThreshold
	}
	if cfg.PauseDuration <= 0 {
		cfg.PauseDuration = def.PauseDuration
	}
	l := &Limiter{
		cfg:   cfg,
		info:  make(map[types.Tool]Info),
		now:   time.Now,
		sleep: sleepCtx,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.log == nil {
		l.log = slog.Default()
	}
	return l
}

// Config returns the effective thresholds.
func (l *Limiter) Config() Config {
	return l.cfg
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// CheckGitHubRateLimit records GitHub's x-ratelimit-* headers. Missing or
// invalid values fall back to a full 5000-request quota resetting in an hour.
func (l *Limiter) CheckGitHubRateLimit(h http.Header) Info {
	now := l.now()
	limit := headerInt(h, "X-RateLimit-Limit")
	if limit <= 0 {
		limit = GitHubDefaultLimit
	}
	remaining := headerInt(h, "X-RateLimit-Remaining")
	if remaining < 0 {
		remaining = limit
	}
	resetAt := now.Add(GitHubResetWindow)
	if epoch := headerInt(h, "X-RateLimit-Reset"); epoch > 0 {
		resetAt = time.Unix(int64(epoch), 0)
	}

	info := Info{Tool: types.ToolGitHub, Remaining: remaining, Limit: limit, ResetAt: resetAt, Live: true}
	l.store(info)
	return info
}

// CheckJiraRateLimit records an estimated JIRA quota. JIRA does not expose
// counters, so unless the response carries Retry-After the quota is assumed full.
func (l *Limiter) CheckJiraRateLimit(h http.Header) Info {
	return l.checkEstimated(types.ToolJira, JiraEstimatedLimit, h)
}

// CheckAdoRateLimit records an estimated Azure DevOps quota.
func (l *Limiter) CheckAdoRateLimit(h http.Header) Info {
	return l.checkEstimated(types.ToolADO, ADOEstimatedLimit, h)
}

func (l *Limiter) checkEstimated(tool types.Tool, limit int, h http.Header) Info {
	now := l.now()
	if wait := retryAfter(h, now); wait > 0 {
		info := Info{Tool: tool, Remaining: 0, Limit: limit, ResetAt: now.Add(wait), Throttled: true}
		l.store(info)
		return info
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	// A throttle in force outlives ordinary responses until it expires.
	if prev, ok := l.info[tool]; ok && prev.Throttled && prev.ResetAt.After(now) {
		return prev
	}
	info := Info{Tool: tool, Remaining: limit, Limit: limit, ResetAt: now.Add(EstimatedWindow)}
	l.info[tool] = info
	return info
}

// Observe records the headers of a platform response.
func (l *Limiter) Observe(tool types.Tool, h http.Header) Info {
	switch tool {
	case types.ToolGitHub:
		return l.CheckGitHubRateLimit(h)
	case types.ToolJira:
		return l.CheckJiraRateLimit(h)
	default:
		return l.CheckAdoRateLimit(h)
	}
}

// Capability reports whether tool's quota is live or estimated.
func (l *Limiter) Capability(tool types.Tool) Capability {
	return CapabilityOf(tool)
}

// Get returns the last known info for tool.
func (l *Limiter) Get(tool types.Tool) (Info, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	info, ok := l.info[tool]
	return info, ok
}

// All returns the known info for every platform, sorted by tool.
func (l *Limiter) All() []Info {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Info, 0, len(l.info))
	for _, info := range l.info {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tool < out[j].Tool })
	return out
}

// current returns the info for tool that thresholds apply to. Observed
// counters are taken as reported; an expired throttle no longer counts.
// Caller must hold l.mu.
func (l *Limiter) current(tool types.Tool, now time.Time) (Info, bool) {
	info, ok := l.info[tool]
	if !ok || (info.Throttled && !info.ResetAt.After(now)) {
		return Info{}, false
	}
	return info, true
}

// ShouldWarn reports whether tool's remaining quota is below the warning threshold.
func (l *Limiter) ShouldWarn(tool types.Tool) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	info, ok := l.current(tool, l.now())
	return ok && info.Remaining < l.cfg.WarningThreshold
}

// WaitIfNeeded pauses for PauseDuration when tool's remaining quota is below
// the pause threshold. A throttle pauses until it lifts instead.
// It returns true if it paused, and ctx.Err() if cancelled while paused.
func (l *Limiter) WaitIfNeeded(ctx context.Context, tool types.Tool, onWait func(time.Duration)) (bool, error) {
	l.mu.Lock()
	now := l.now()
	info, ok := l.current(tool, now)
	if !ok || info.Remaining >= l.cfg.PauseThreshold {
		l.mu.Unlock()
		return false, nil
	}
	wait := l.cfg.PauseDuration
	if info.Throttled {
		wait = info.ResetIn(now)
	}
	l.mu.Unlock()

	l.log.Warn("rate limit nearly exhausted, pausing",
		"tool", tool, "remaining", info.Remaining, "limit", info.Limit, "pause", wait)
	if onWait != nil {
		onWait(wait)
	}
	if err := l.sleep(ctx, wait); err != nil {
		return true, err
	}

	// Forget the stale snapshot; the next response refreshes it.
	l.mu.Lock()
	if cur, ok := l.info[tool]; ok && cur == info {
		delete(l.info, tool)
	}
	l.mu.Unlock()
	return true, nil
}

// Throttle marks tool exhausted for wait, typically after a 429 with a wait hint.
func (l *Limiter) Throttle(tool types.Tool, wait time.Duration) {
	if wait <= 0 {
		return
	}
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	info := l.info[tool]
	info.Tool = tool
	info.Remaining = 0
	if info.Limit == 0 {
		info.Limit = nominalLimit(tool)
	}
	resetAt := now.Add(wait)
	if info.Throttled && info.ResetAt.After(resetAt) {
		resetAt = info.ResetAt
	}
	info.ResetAt = resetAt
	info.Throttled = true
	l.info[tool] = info
	l.log.Debug("platform throttled", "tool", tool, "until", info.ResetAt)
}

// WaitForReset sleeps until tool's recorded reset time, if one is pending.
func (l *Limiter) WaitForReset(ctx context.Context, tool types.Tool) error {
	now := l.now()
	l.mu.Lock()
	info, ok := l.current(tool, now)
	l.mu.Unlock()
	if !ok {
		return nil
	}
	wait := info.ResetIn(now)
	if wait <= 0 {
		return nil
	}
	l.log.Info("waiting for rate limit reset", "tool", tool, "wait", wait.Round(time.Second))
	return l.sleep(ctx, wait)
}

// Reset forgets all recorded quota state.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.info = make(map[types.Tool]Info)
}

func (l *Limiter) store(info Info) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.info[info.Tool] = info
}

func nominalLimit(tool types.Tool) int {
	switch tool {
	case types.ToolGitHub:
		return GitHubDefaultLimit
	case types.ToolJira:
		return JiraEstimatedLimit
	default:
		return ADOEstimatedLimit
	}
}

// headerInt parses an integer header, returning -1 when absent or invalid.
func headerInt(h http.Header, key string) int {
	if h == nil {
		return -1
	}
	v := strings.TrimSpace(h.Get(key))
	if v == "" {
		return -1
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return -1
	}
	return n
}

func retryAfter(h http.Header, now time.Time) time.Duration {
	if h == nil {
		return 0
	}
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil && t.After(now) {
		return t.Sub(now)
	}
	return 0
}
