package ratelimit

import (
	"strings"
	"testing"
	"time"

	"github.com/steveyegge/trackersync/internal/types"
)

func TestEstimateSync(t *testing.T) {
	tests := []struct {
		tool     types.Tool
		rng      TimeRange
		factor   float64
		items    int
		calls    int
		minutes  int
		wantRisk Impact
	}{
		{types.ToolGitHub, Range1W, 1, 50, 75, 1, ImpactLow},
		{types.ToolGitHub, Range1M, 1, 200, 300, 2, ImpactMedium},
		{types.ToolGitHub, Range1M, 2, 400, 600, 4, ImpactMedium},
		{types.ToolGitHub, Range6M, 1, 1200, 1800, 12, ImpactHigh},
		{types.ToolGitHub, RangeAll, 1, 5000, 7500, 50, ImpactCritical},
		{types.ToolJira, Range1W, 0.2, 10, 15, 1, ImpactLow},
		{types.ToolJira, Range1W, 0.5, 25, 38, 1, ImpactMedium},
		{types.ToolJira, Range1M, 0.5, 100, 150, 1, ImpactCritical},
		{types.ToolADO, Range2W, 0, 100, 150, 1, ImpactCritical},
		{types.ToolADO, Range1W, 0.5, 25, 38, 1, ImpactLow},
	}
	for _, tt := range tests {
		t.Run(string(tt.tool)+"/"+string(tt.rng), func(t *testing.T) {
			est, err := EstimateSync(tt.tool, tt.rng, tt.factor)
			if err != nil {
				t.Fatal(err)
			}
			if est.Items != tt.items || est.APICalls != tt.calls || est.DurationMinutes != tt.minutes {
				t.Errorf("estimate = %+v, want items=%d calls=%d minutes=%d", est, tt.items, tt.calls, tt.minutes)
			}
			if est.Impact != tt.wantRisk {
				t.Errorf("Impact = %q, want %q", est.Impact, tt.wantRisk)
			}
		})
	}

	if _, err := EstimateSync(types.ToolGitHub, "5Y", 1); err == nil {
		t.Error("expected error for unknown range")
	}
}

func TestValidateSync(t *testing.T) {
	reset := time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC)

	t.Run("critical blocks", func(t *testing.T) {
		est, _ := EstimateSync(types.ToolGitHub, RangeAll, 1)
		v := ValidateSync(est, nil)
		if v.Safe || len(v.Blockers) != 1 || !strings.Contains(v.Blockers[0], "CRITICAL") {
			t.Errorf("validation = %+v", v)
		}
	})

	t.Run("high impact and long duration warn", func(t *testing.T) {
		est, _ := EstimateSync(types.ToolGitHub, Range6M, 1)
		v := ValidateSync(est, nil)
		if !v.Safe || len(v.Warnings) != 2 {
			t.Fatalf("validation = %+v", v)
		}
		if !strings.Contains(v.Warnings[0], "36% of github") {
			t.Errorf("warning = %q", v.Warnings[0])
		}
	})

	t.Run("not enough remaining", func(t *testing.T) {
		est, _ := EstimateSync(types.ToolGitHub, Range1M, 1)
		v := ValidateSync(est, &Info{Tool: types.ToolGitHub, Remaining: 100, Limit: 5000, ResetAt: reset})
		if v.Safe {
			t.Fatal("expected blocker")
		}
		if !strings.Contains(v.Blockers[0], "Need 300 calls, only 100 remaining") {
			t.Errorf("blocker = %q", v.Blockers[0])
		}
		if !strings.Contains(v.Warnings[0], "98% used") {
			t.Errorf("warning = %q", v.Warnings[0])
		}
	})

	t.Run("little left after sync", func(t *testing.T) {
		est, _ := EstimateSync(types.ToolGitHub, Range1M, 1)
		v := ValidateSync(est, &Info{Tool: types.ToolGitHub, Remaining: 700, Limit: 5000, ResetAt: reset})
		if !v.Safe {
			t.Fatalf("unexpected blockers: %v", v.Blockers)
		}
		if len(v.Warnings) != 2 || !strings.Contains(v.Warnings[1], "only 400 requests remaining (8%)") {
			t.Errorf("warnings = %v", v.Warnings)
		}
	})

	t.Run("limiter view", func(t *testing.T) {
		l, _, _ := newTestLimiter()
		est, _ := EstimateSync(types.ToolJira, Range1W, 0.2)
		if v := l.ValidateSync(est); !v.Safe || len(v.Warnings) != 0 {
			t.Errorf("validation = %+v", v)
		}
		l.Throttle(types.ToolJira, time.Minute)
		if v := l.ValidateSync(est); v.Safe {
			t.Error("throttled platform should block")
		}
	})
}

func TestCalculateBackoff(t *testing.T) {
	tests := []struct {
		attempt int
		max     time.Duration
		want    time.Duration
	}{
		{0, 0, time.Second},
		{3, 0, 8 * time.Second},
		{10, 0, 5 * time.Minute},
		{4, 10 * time.Second, 10 * time.Second},
		{64, 0, 5 * time.Minute},
	}
	for _, tt := range tests {
		if got := CalculateBackoff(tt.attempt, tt.max); got != tt.want {
			t.Errorf("CalculateBackoff(%d, %v) = %v, want %v", tt.attempt, tt.max, got, tt.want)
		}
	}
}

func TestFormat(t *testing.T) {
	est, _ := EstimateSync(types.ToolGitHub, Range1W, 1)
	if got := FormatEstimate(est); got != "50 items | 75 API calls | ⚡ 1 min | Rate: LOW" {
		t.Errorf("FormatEstimate() = %q", got)
	}

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	info := Info{Remaining: 4000, Limit: 5000, ResetAt: now.Add(90 * time.Second), Live: true}
	if got := FormatInfo(info, now); got != "4000/5000 (80% available) | Resets in 2 min" {
		t.Errorf("FormatInfo() = %q", got)
	}
	info.Live = false
	if got := FormatInfo(info, now); !strings.HasSuffix(got, "(estimated)") {
		t.Errorf("FormatInfo() = %q", got)
	}
}
