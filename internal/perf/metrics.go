package perf

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Operation names a tracked sync operation.
type Operation string

const (
	OpStatusSync        Operation = "status-sync"
	OpConflictDetection Operation = "conflict-detection"
	OpBulkSync          Operation = "bulk-sync"
)

// Latency targets per operation. The bulk-sync target is for 10 items.
var Targets = map[Operation]time.Duration{
	OpStatusSync:        2 * time.Second,
	OpConflictDetection: time.Second,
	OpBulkSync:          5 * time.Second,
}

// bulkTargetItems is the batch size the bulk-sync target is defined for.
const bulkTargetItems = 10

// Metric is one timed operation sample.
type Metric struct {
	Operation   Operation     `json:"operation"`
	Duration    time.Duration `json:"duration"`
	ItemCount   int           `json:"itemCount,omitempty"`
	CacheHits   int           `json:"cacheHits,omitempty"`
	CacheMisses int           `json:"cacheMisses,omitempty"`
	RecordedAt  time.Time     `json:"recordedAt"`
}

// normalized returns the sample duration scaled to the target's unit of work.
func (m Metric) normalized() time.Duration {
	if m.Operation == OpBulkSync && m.ItemCount > 0 {
		return time.Duration(int64(m.Duration) * bulkTargetItems / int64(m.ItemCount))
	}
	return m.Duration
}

// RecordMetric appends a sample, discarding the oldest beyond the history bound.
func (o *Optimizer) RecordMetric(m Metric) {
	if m.RecordedAt.IsZero() {
		m.RecordedAt = o.now()
	}
	o.mu.Lock()
	if len(o.metrics) < o.maxMetrics {
		o.metrics = append(o.metrics, m)
	} else {
		o.metrics[o.next] = m
		o.next = (o.next + 1) % o.maxMetrics
	}
	o.mu.Unlock()

	if o.duration != nil {
		o.duration.Record(context.Background(), float64(m.Duration.Microseconds())/1000,
			metric.WithAttributes(
				attribute.String("trackersync.operation", string(m.Operation)),
				attribute.Int("trackersync.items", m.ItemCount),
			))
	}
}

// Track times fn and records it as op, with the cache reads fn made.
// Concurrent callers share the cache counters, so their samples may include
// each other's reads.
func (o *Optimizer) Track(op Operation, items int, fn func() error) error {
	before := o.CacheStats()
	_, d, err := MeasureTime(func() (struct{}, error) { return struct{}{}, fn() })
	hits, misses := o.CacheStats().Since(before)
	o.RecordMetric(Metric{Operation: op, Duration: d, ItemCount: items, CacheHits: hits, CacheMisses: misses})
	return err
}

// Metrics returns the recorded samples for op, oldest first. An empty op
// returns every sample.
func (o *Optimizer) Metrics(op Operation) []Metric {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := len(o.metrics)
	out := make([]Metric, 0, n)
	for i := 0; i < n; i++ {
		m := o.metrics[(o.next+i)%n]
		if op == "" || m.Operation == op {
			out = append(out, m)
		}
	}
	return out
}

// AverageDuration returns the mean duration of op's samples, 0 with none.
func (o *Optimizer) AverageDuration(op Operation) time.Duration {
	samples := o.Metrics(op)
	if len(samples) == 0 {
		return 0
	}
	var total time.Duration
	for _, m := range samples {
		total += m.Duration
	}
	return total / time.Duration(len(samples))
}

// ClearMetrics drops the metric history.
func (o *Optimizer) ClearMetrics() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.metrics = nil
	o.next = 0
}

// TargetResult compares one operation's average latency with its target.
type TargetResult struct {
	Operation Operation     `json:"operation"`
	Target    time.Duration `json:"target"`
	Average   time.Duration `json:"average"`
	Samples   int           `json:"samples"`
	Met       bool          `json:"met"`
}

// TargetReport is the outcome of CheckTargets.
type TargetReport struct {
	AllMet  bool           `json:"allMet"`
	Results []TargetResult `json:"results"`
}

// String renders one line per operation.
func (r TargetReport) String() string {
	var b strings.Builder
	for _, res := range r.Results {
		mark := "✅"
		if !res.Met {
			mark = "❌"
		}
		fmt.Fprintf(&b, "%s %s: avg %s (target %s, %d samples)\n",
			mark, res.Operation, res.Average.Round(time.Millisecond), res.Target, res.Samples)
	}
	return b.String()
}

// CheckTargets compares average latencies with Targets. Bulk samples are
// scaled to a 10-item equivalent. An operation without samples counts as met.
func (o *Optimizer) CheckTargets() TargetReport {
	report := TargetReport{AllMet: true}
	for _, op := range []Operation{OpStatusSync, OpConflictDetection, OpBulkSync} {
		samples := o.Metrics(op)
		res := TargetResult{Operation: op, Target: Targets[op], Samples: len(samples), Met: true}
		if len(samples) > 0 {
			var total time.Duration
			for _, m := range samples {
				total += m.normalized()
			}
			res.Average = total / time.Duration(len(samples))
			res.Met = res.Average < res.Target
		}
		if !res.Met {
			report.AllMet = false
		}
		report.Results = append(report.Results, res)
	}
	return report
}
