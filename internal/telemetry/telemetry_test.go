package telemetry

import (
	"bytes"
	"context"
	"testing"
)

func TestInitDisabledInstallsNoop(t *testing.T) {
	if err := Init(context.Background(), Settings{}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	if Enabled() {
		t.Error("Enabled() = true after disabled Init")
	}
	_, span := Tracer("").Start(context.Background(), "noop")
	if span.SpanContext().IsValid() {
		t.Error("expected a no-op span when telemetry is disabled")
	}
	span.End()
	if err := Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestInitStdout(t *testing.T) {
	var buf bytes.Buffer
	err := Init(context.Background(), Settings{Enabled: true, ServiceName: "trackersync-test", Stdout: true, Output: &buf})
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	t.Cleanup(func() { _ = Init(context.Background(), Settings{}) })
	if !Enabled() {
		t.Error("Enabled() = false after Init")
	}

	_, span := Tracer("test").Start(context.Background(), "sync.item")
	if !span.SpanContext().IsValid() {
		t.Error("expected a recording span when telemetry is enabled")
	}
	span.End()

	if err := Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if !bytes.Contains(buf.Bytes(), []byte("sync.item")) {
		t.Errorf("span not exported to stdout writer:\n%s", buf.String())
	}
}

func TestSettingsFromEnv(t *testing.T) {
	t.Setenv("TRACKERSYNC_OTEL_ENABLED", "1")
	t.Setenv("TRACKERSYNC_OTEL_STDOUT", "false")
	t.Setenv("OTEL_SERVICE_NAME", "")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318")
	t.Setenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT", "")

	s := SettingsFromEnv("trackersync", "v1")
	if !s.Enabled || s.Stdout {
		t.Errorf("Enabled/Stdout = %v/%v, want true/false", s.Enabled, s.Stdout)
	}
	if s.ServiceName != "trackersync" || s.Version != "v1" {
		t.Errorf("service = %s@%s", s.ServiceName, s.Version)
	}
	if s.MetricsEndpoint != "localhost:4318" {
		t.Errorf("MetricsEndpoint = %q", s.MetricsEndpoint)
	}

	t.Setenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT", "http://collector:4318/v1/metrics")
	t.Setenv("OTEL_SERVICE_NAME", "custom")
	s = SettingsFromEnv("trackersync", "v1")
	if s.MetricsEndpoint != "http://collector:4318/v1/metrics" {
		t.Errorf("metrics-specific endpoint not preferred: %q", s.MetricsEndpoint)
	}
	if s.ServiceName != "custom" {
		t.Errorf("ServiceName = %q, want custom", s.ServiceName)
	}
}

func TestScope(t *testing.T) {
	if got := scope(""); got != instrumentationScope {
		t.Errorf("scope(\"\") = %q", got)
	}
	if got := scope("perf"); got != instrumentationScope+"/perf" {
		t.Errorf("scope(perf) = %q", got)
	}
}
