// Package telemetry wires OpenTelemetry for trackersync.
//
// Telemetry is off by default. Init then installs no-op providers and spans
// and instruments cost nothing.
//
// # Configuration
//
//	TRACKERSYNC_OTEL_ENABLED=true     enable telemetry (default: off)
//	TRACKERSYNC_OTEL_STDOUT=true      pretty-print spans and metrics to stderr
//	OTEL_EXPORTER_OTLP_ENDPOINT=...   OTLP/HTTP metrics endpoint (e.g. localhost:4318)
//	OTEL_SERVICE_NAME=...             override the service name
//
// Spans only go to stderr. Metrics go to stderr, to an OTLP/HTTP collector,
// or both.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/sdk/resource"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const instrumentationScope = "github.com/steveyegge/trackersync"

// Default export intervals.
const (
	DefaultStdoutInterval = 15 * time.Second
	DefaultOTLPInterval   = 30 * time.Second
)

// Settings selects the exporters Init installs.
type Settings struct {
	Enabled     bool
	ServiceName string
	Version     string

	// Stdout writes spans and metrics to Output.
	Stdout bool
	Output io.Writer

	// MetricsEndpoint is an OTLP/HTTP collector address. Empty disables OTLP.
	MetricsEndpoint string
	MetricInterval  time.Duration
}

// SettingsFromEnv reads Settings from the process environment.
func SettingsFromEnv(serviceName, version string) Settings {
	s := Settings{
		Enabled:     envBool("TRACKERSYNC_OTEL_ENABLED"),
		ServiceName: firstNonEmpty(os.Getenv("OTEL_SERVICE_NAME"), serviceName),
		Version:     version,
		Stdout:      envBool("TRACKERSYNC_OTEL_STDOUT"),
		MetricsEndpoint: firstNonEmpty(
			os.Getenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT"),
			os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		),
	}
	return s
}

var (
	mu          sync.Mutex
	active      bool
	shutdownFns []func(context.Context) error
)

// Enabled reports whether Init installed exporting providers.
func Enabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return active
}

// Init installs global tracer and meter providers for s. A disabled s
// installs no-op providers.
func Init(ctx context.Context, s Settings) error {
	if !s.Enabled {
		mu.Lock()
		active = false
		mu.Unlock()
		otel.SetTracerProvider(tracenoop.NewTracerProvider())
		otel.SetMeterProvider(metricnoop.NewMeterProvider())
		return nil
	}
	if s.Output == nil {
		s.Output = os.Stderr
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(firstNonEmpty(s.ServiceName, "trackersync")),
			semconv.ServiceVersionKey.String(s.Version),
		),
		resource.WithHost(),
	)
	if err != nil {
		return fmt.Errorf("telemetry: resource: %w", err)
	}

	tp, err := buildTraceProvider(res, s)
	if err != nil {
		return fmt.Errorf("telemetry: trace provider: %w", err)
	}
	mp, err := buildMetricProvider(ctx, res, s)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return fmt.Errorf("telemetry: metric provider: %w", err)
	}

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	mu.Lock()
	active = true
	shutdownFns = append(shutdownFns, tp.Shutdown, mp.Shutdown)
	mu.Unlock()
	return nil
}

func buildTraceProvider(res *resource.Resource, s Settings) (*sdktrace.TracerProvider, error) {
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	}
	// Without a metrics collector, stdout is the only place spans can go.
	if s.Stdout || s.MetricsEndpoint == "" {
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint(), stdouttrace.WithWriter(s.Output))
		if err != nil {
			return nil, err
		}
		opts = append(opts, sdktrace.WithBatcher(exp))
	}
	return sdktrace.NewTracerProvider(opts...), nil
}

func buildMetricProvider(ctx context.Context, res *resource.Resource, s Settings) (*sdkmetric.MeterProvider, error) {
	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}

	if s.Stdout {
		exp, err := stdoutmetric.New(stdoutmetric.WithWriter(s.Output))
		if err != nil {
			return nil, err
		}
		opts = append(opts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(interval(s.MetricInterval, DefaultStdoutInterval))),
		))
	}

	if s.MetricsEndpoint != "" {
		exp, err := buildOTLPMetricExporter(ctx, s.MetricsEndpoint)
		if err != nil {
			return nil, fmt.Errorf("otlp metric exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(interval(s.MetricInterval, DefaultOTLPInterval))),
		))
	}

	return sdkmetric.NewMeterProvider(opts...), nil
}

// Tracer returns a tracer scoped under the module path.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(scope(name))
}

// Meter returns a meter scoped under the module path.
func Meter(name string) metric.Meter {
	return otel.Meter(scope(name))
}

func scope(name string) string {
	if name == "" {
		return instrumentationScope
	}
	return instrumentationScope + "/" + name
}

// Shutdown flushes and stops the providers installed by Init.
func Shutdown(ctx context.Context) error {
	mu.Lock()
	fns := shutdownFns
	shutdownFns = nil
	active = false
	mu.Unlock()

	var errs []error
	for _, fn := range fns {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func interval(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

func envBool(key string) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	return err == nil && v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
