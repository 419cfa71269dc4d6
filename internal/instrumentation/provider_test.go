package instrumentation

import (
	"context"
	"testing"
	"time"
)

func TestNewProvider_Disabled(t *testing.T) {
	ctx := context.Background()
	provider, err := NewProvider(ctx, Config{Enabled: false})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if provider.Enabled() {
		t.Error("expected provider to be disabled")
	}
	if provider.Metrics() == nil {
		t.Fatal("disabled provider should still return a metrics recorder")
	}
	if provider.PrometheusHandler() != nil {
		t.Error("disabled provider should not expose a prometheus handler")
	}

	// Recording into the no-op meter must not panic.
	provider.Metrics().RecordToolCall(ctx, "kubernetes_get", StatusSuccess, time.Millisecond)

	if err := provider.Shutdown(ctx); err != nil {
		t.Errorf("expected clean shutdown, got %v", err)
	}
}

func TestNewProvider_InvalidConfig(t *testing.T) {
	_, err := NewProvider(context.Background(), Config{
		Enabled:         true,
		MetricsExporter: "carrier-pigeon",
	})
	if err == nil {
		t.Fatal("expected an error for an unknown metrics exporter")
	}
}

func TestNewProvider_StdoutTracing(t *testing.T) {
	ctx := context.Background()
	provider, err := NewProvider(ctx, Config{
		ServiceName:       "test",
		Enabled:           true,
		MetricsExporter:   ExporterPrometheus,
		TracingExporter:   ExporterStdout,
		TraceSamplingRate: 1,
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	defer func() { _ = provider.Shutdown(ctx) }()

	if !provider.Enabled() {
		t.Error("expected provider to be enabled")
	}
	if provider.tracerProvider == nil {
		t.Error("expected a tracer provider for the stdout exporter")
	}
}

func TestProvider_NilSafe(t *testing.T) {
	var provider *Provider

	if provider.Enabled() {
		t.Error("nil provider must report disabled")
	}
	if provider.Metrics() != nil {
		t.Error("nil provider must return nil metrics")
	}
	if err := provider.Shutdown(context.Background()); err != nil {
		t.Errorf("nil provider shutdown should be a no-op, got %v", err)
	}

	// A nil *Metrics records nothing.
	provider.Metrics().RecordK8sRetry(context.Background(), OperationGet, "throttled")
}
