package ratelimit

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/steveyegge/trackersync/internal/types"
)

// TimeRange is a preset span of history to sync.
type TimeRange string

const (
	Range1W  TimeRange = "1W"
	Range2W  TimeRange = "2W"
	Range1M  TimeRange = "1M"
	Range3M  TimeRange = "3M"
	Range6M  TimeRange = "6M"
	Range1Y  TimeRange = "1Y"
	RangeAll TimeRange = "ALL"
)

// itemsPerRange is the typical number of work items created in each range.
var itemsPerRange = map[TimeRange]int{
	Range1W:  50,
	Range2W:  100,
	Range1M:  200,
	Range3M:  600,
	Range6M:  1200,
	Range1Y:  2400,
	RangeAll: 5000,
}

// TimeRanges returns the presets in ascending order.
func TimeRanges() []TimeRange {
	return []TimeRange{Range1W, Range2W, Range1M, Range3M, Range6M, Range1Y, RangeAll}
}

const (
	// apiCallMultiplier covers pagination and metadata requests per item.
	apiCallMultiplier = 1.5
	itemsPerMinute    = 100
)

// Impact grades how much of a platform quota a sync would consume.
type Impact string

const (
	ImpactLow      Impact = "low"
	ImpactMedium   Impact = "medium"
	ImpactHigh     Impact = "high"
	ImpactCritical Impact = "critical"
)

// ProviderLimit is a platform's nominal quota and the API-call thresholds
// separating impact levels.
type ProviderLimit struct {
	Limit  int
	Window time.Duration
	Low    int
	Medium int
	High   int
}

// ProviderLimits holds the nominal quota of each platform.
var ProviderLimits = map[types.Tool]ProviderLimit{
	types.ToolGitHub: {Limit: 5000, Window: time.Hour, Low: 250, Medium: 1000, High: 2500},
	types.ToolJira:   {Limit: 100, Window: time.Minute, Low: 25, Medium: 50, High: 75},
	types.ToolADO:    {Limit: 200, Window: 5 * time.Minute, Low: 50, Medium: 100, High: 150},
}

// Estimate is the projected cost of syncing a time range.
type Estimate struct {
	Tool            types.Tool `json:"tool" yaml:"tool"`
	Range           TimeRange  `json:"range" yaml:"range"`
	Items           int        `json:"items" yaml:"items"`
	APICalls        int        `json:"apiCalls" yaml:"apiCalls"`
	DurationMinutes int        `json:"durationMinutes" yaml:"durationMinutes"`
	Impact          Impact     `json:"impact" yaml:"impact"`
}

// EstimateSync projects items, API calls, duration and quota impact for
// syncing rng on tool. factor scales the item count; values <= 0 mean 1.
func EstimateSync(tool types.Tool, rng TimeRange, factor float64) (Estimate, error) {
	base, ok := itemsPerRange[rng]
	if !ok {
		return Estimate{}, fmt.Errorf("unknown time range %q (valid: %v)", rng, TimeRanges())
	}
	limits, ok := ProviderLimits[tool]
	if !ok {
		return Estimate{}, fmt.Errorf("unsupported tool %q", tool)
	}
	if factor <= 0 {
		factor = 1
	}

	items := int(math.Ceil(float64(base) * factor))
	calls := int(math.Ceil(float64(items) * apiCallMultiplier))
	return Estimate{
		Tool:            tool,
		Range:           rng,
		Items:           items,
		APICalls:        calls,
		DurationMinutes: int(math.Ceil(float64(items) / itemsPerMinute)),
		Impact:          impactOf(limits, calls),
	}, nil
}

func impactOf(l ProviderLimit, calls int) Impact {
	switch {
	case calls < l.Low:
		return ImpactLow
	case calls < l.Medium:
		return ImpactMedium
	case calls < l.High:
		return ImpactHigh
	}
	return ImpactCritical
}

// Validation is the verdict on whether a sync can safely proceed.
type Validation struct {
	Safe     bool     `json:"safe" yaml:"safe"`
	Warnings []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Blockers []string `json:"blockers,omitempty" yaml:"blockers,omitempty"`
}

// ValidateSync checks an estimate against the platform quota and, when
// known, the current quota state.
func ValidateSync(est Estimate, current *Info) Validation {
	var v Validation
	limits := ProviderLimits[est.Tool]

	switch est.Impact {
	case ImpactHigh:
		pct := 0
		if limits.Limit > 0 {
			pct = int(math.Round(float64(est.APICalls) / float64(limits.Limit) * 100))
		}
		v.Warnings = append(v.Warnings, fmt.Sprintf(
			"High rate limit impact: %d API calls (will use %d%% of %s rate limit)", est.APICalls, pct, est.Tool))
	case ImpactCritical:
		v.Blockers = append(v.Blockers, fmt.Sprintf(
			"CRITICAL rate limit impact: %d API calls exceeds safe threshold for %s", est.APICalls, est.Tool))
	}

	if est.DurationMinutes > 10 {
		v.Warnings = append(v.Warnings, fmt.Sprintf("Long sync duration: ~%d minutes", est.DurationMinutes))
	}

	if current != nil {
		resetAt := current.ResetAt.UTC().Format(time.RFC3339)
		if used := current.PercentUsed(); used > 80 {
			v.Warnings = append(v.Warnings, fmt.Sprintf(
				"Rate limit already %d%% used. Consider waiting until reset at %s", int(math.Round(used)), resetAt))
		}
		after := current.Remaining - est.APICalls
		switch {
		case after < 0:
			v.Blockers = append(v.Blockers, fmt.Sprintf(
				"Not enough rate limit remaining. Need %d calls, only %d remaining. Reset at %s",
				est.APICalls, current.Remaining, resetAt))
		case float64(after) < float64(current.Limit)*0.1:
			pct := 0
			if current.Limit > 0 {
				pct = int(math.Round(float64(after) / float64(current.Limit) * 100))
			}
			v.Warnings = append(v.Warnings, fmt.Sprintf(
				"After sync, only %d requests remaining (%d%%)", after, pct))
		}
	}

	v.Safe = len(v.Blockers) == 0
	return v
}

// ValidateSync checks est against the limiter's current view of the platform quota.
func (l *Limiter) ValidateSync(est Estimate) Validation {
	info, ok := l.Get(est.Tool)
	if !ok {
		return ValidateSync(est, nil)
	}
	return ValidateSync(est, &info)
}

// CalculateBackoff returns 2^attempt seconds, capped at max (default 5 minutes).
func CalculateBackoff(attempt int, max time.Duration) time.Duration {
	if max <= 0 {
		max = 5 * time.Minute
	}
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= 30 {
		return max
	}
	d := time.Duration(1<<uint(attempt)) * time.Second
	if d > max {
		return max
	}
	return d
}

var impactIcon = map[Impact]string{
	ImpactLow:      "⚡",
	ImpactMedium:   "⚠️ ",
	ImpactHigh:     "⚠️ ",
	ImpactCritical: "❌",
}

// FormatEstimate renders an estimate on one line.
func FormatEstimate(est Estimate) string {
	return fmt.Sprintf("%d items | %d API calls | %s %d min | Rate: %s",
		est.Items, est.APICalls, impactIcon[est.Impact], est.DurationMinutes, strings.ToUpper(string(est.Impact)))
}

// FormatInfo renders quota state on one line.
func FormatInfo(info Info, now time.Time) string {
	available := int(math.Round(100 - info.PercentUsed()))
	minutes := int(math.Ceil(info.ResetIn(now).Minutes()))
	kind := ""
	if !info.Live {
		kind = " (estimated)"
	}
	return fmt.Sprintf("%d/%d (%d%% available) | Resets in %d min%s",
		info.Remaining, info.Limit, available, minutes, kind)
}
