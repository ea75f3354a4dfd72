package statussync

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/steveyegge/trackersync/internal/retry"
	"github.com/steveyegge/trackersync/internal/telemetry"
	"github.com/steveyegge/trackersync/internal/tracker"
	"github.com/steveyegge/trackersync/internal/types"
)

// InstrumentedPlatform wraps a Platform with OTel spans and
// trackersync.platform.* metrics. Use WrapPlatform to create one.
type InstrumentedPlatform struct {
	inner  Platform
	tracer trace.Tracer
	calls  metric.Int64Counter
	dur    metric.Float64Histogram
	errs   metric.Int64Counter
}

// WrapPlatform returns p decorated with instrumentation, or p itself when
// telemetry is off.
func WrapPlatform(p Platform) Platform {
	if !telemetry.Enabled() {
		return p
	}
	return newInstrumentedPlatform(p)
}

func newInstrumentedPlatform(p Platform) *InstrumentedPlatform {
	m := telemetry.Meter("platform")
	calls, _ := m.Int64Counter("trackersync.platform.calls",
		metric.WithDescription("Platform API calls made by status sync"),
	)
	dur, _ := m.Float64Histogram("trackersync.platform.call.duration",
		metric.WithDescription("Platform API call duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	errs, _ := m.Int64Counter("trackersync.platform.errors",
		metric.WithDescription("Failed platform API calls by error class"),
	)
	return &InstrumentedPlatform{
		inner:  p,
		tracer: telemetry.Tracer("platform"),
		calls:  calls,
		dur:    dur,
		errs:   errs,
	}
}

func (p *InstrumentedPlatform) Tool() types.Tool { return p.inner.Tool() }

func (p *InstrumentedPlatform) FetchStatus(ctx context.Context, id string) (Remote, http.Header, error) {
	ctx, span, start := p.op(ctx, "fetch", id)
	remote, header, err := p.inner.FetchStatus(ctx, id)
	if err == nil {
		span.SetAttributes(attribute.String("trackersync.remote.state", remote.State))
	}
	p.done(ctx, span, start, "fetch", err)
	return remote, header, err
}

func (p *InstrumentedPlatform) UpdateStatus(ctx context.Context, id string, status tracker.ExternalStatus) (http.Header, error) {
	ctx, span, start := p.op(ctx, "update", id)
	span.SetAttributes(attribute.String("trackersync.external.status", status.String()))
	header, err := p.inner.UpdateStatus(ctx, id, status)
	p.done(ctx, span, start, "update", err)
	return header, err
}

func (p *InstrumentedPlatform) op(ctx context.Context, name, id string) (context.Context, trace.Span, time.Time) {
	attrs := p.attrs(name)
	ctx, span := p.tracer.Start(ctx, "platform."+name,
		trace.WithAttributes(append(attrs, attribute.String("trackersync.external.id", id))...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	p.calls.Add(ctx, 1, metric.WithAttributes(attrs...))
	return ctx, span, time.Now()
}

func (p *InstrumentedPlatform) done(ctx context.Context, span trace.Span, start time.Time, name string, err error) {
	attrs := p.attrs(name)
	p.dur.Record(ctx, float64(time.Since(start).Microseconds())/1000, metric.WithAttributes(attrs...))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		class := attribute.String("trackersync.error.class", string(retry.Classify(err)))
		p.errs.Add(ctx, 1, metric.WithAttributes(append(attrs, class)...))
	}
	span.End()
}

func (p *InstrumentedPlatform) attrs(name string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("trackersync.tool", string(p.inner.Tool())),
		attribute.String("trackersync.platform.op", name),
	}
}
