package instrumentation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

// recordSpans installs an in-memory tracer provider for the test.
func recordSpans(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))

	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(previous)
		_ = tp.Shutdown(context.Background())
	})
	return exporter
}

func onlySpan(t *testing.T, exporter *tracetest.InMemoryExporter) tracetest.SpanStub {
	t.Helper()
	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	return spans[0]
}

func attrMap(attrs []attribute.KeyValue) map[string]string {
	m := make(map[string]string, len(attrs))
	for _, a := range attrs {
		m[string(a.Key)] = a.Value.Emit()
	}
	return m
}

func TestStartToolSpan(t *testing.T) {
	exporter := recordSpans(t)

	_, span := StartToolSpan(context.Background(), "list_all_clusters", "7", "hive-cluster")
	span.End()

	got := onlySpan(t, exporter)
	assert.Equal(t, "tool.list_all_clusters", got.Name)
	assert.Equal(t, trace.SpanKindServer, got.SpanKind)
	assert.Equal(t, map[string]string{
		SpanAttrTool:        "list_all_clusters",
		SpanAttrCallID:      "7",
		SpanAttrKubeContext: "hive-cluster",
	}, attrMap(got.Attributes))
}

func TestStartClusterSpan(t *testing.T) {
	tests := []struct {
		name         string
		resourceType string
		namespace    string
		want         map[string]string
	}{
		{
			name:         "namespaced resource",
			resourceType: "clusterclaims",
			namespace:    "rhoai",
			want: map[string]string{
				SpanAttrOperation:    OperationList,
				SpanAttrKubeContext:  "hive-cluster",
				SpanAttrResourceType: "clusterclaims",
				SpanAttrNamespace:    "rhoai",
			},
		},
		{
			name: "empty fields are dropped",
			want: map[string]string{
				SpanAttrOperation:   OperationList,
				SpanAttrKubeContext: "hive-cluster",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exporter := recordSpans(t)

			_, span := StartClusterSpan(context.Background(), "hive-cluster", OperationList, tt.resourceType, tt.namespace)
			span.End()

			got := onlySpan(t, exporter)
			assert.Equal(t, "k8s.list", got.Name)
			assert.Equal(t, trace.SpanKindClient, got.SpanKind)
			assert.Equal(t, tt.want, attrMap(got.Attributes))
		})
	}
}

func TestStartCredentialSpan(t *testing.T) {
	exporter := recordSpans(t)

	_, span := StartCredentialSpan(context.Background(), "hive-cluster")
	span.End()

	got := onlySpan(t, exporter)
	assert.Equal(t, "credentials.resolve", got.Name)
	assert.Equal(t, "hive-cluster", attrMap(got.Attributes)[SpanAttrKubeContext])
}

func TestRecordResult(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		exporter := recordSpans(t)
		_, span := StartCredentialSpan(context.Background(), "hive-cluster")
		RecordResult(span, nil, Attempts(1))
		span.End()

		got := onlySpan(t, exporter)
		assert.Equal(t, codes.Ok, got.Status.Code)
		assert.Equal(t, "1", attrMap(got.Attributes)[SpanAttrAttempts])
		assert.Empty(t, got.Events)
	})

	t.Run("error", func(t *testing.T) {
		exporter := recordSpans(t)
		_, span := StartClusterSpan(context.Background(), "hive-cluster", OperationGet, "pods", "rhoai")
		RecordResult(span, errors.New("cluster unavailable"), Attempts(4))
		span.End()

		got := onlySpan(t, exporter)
		assert.Equal(t, codes.Error, got.Status.Code)
		assert.Equal(t, "cluster unavailable", got.Status.Description)
		assert.Equal(t, "4", attrMap(got.Attributes)[SpanAttrAttempts])
		require.Len(t, got.Events, 1)
		assert.Equal(t, "exception", got.Events[0].Name)
	})
}

func TestSpansNestUnderTheToolCall(t *testing.T) {
	exporter := recordSpans(t)

	ctx, tool := StartToolSpan(context.Background(), "get_cluster_details", "1", "")
	_, cluster := StartClusterSpan(ctx, "hive-cluster", OperationGet, "clusterdeployments", "bvt")
	cluster.End()
	tool.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)
	assert.Equal(t, spans[1].SpanContext.SpanID(), spans[0].Parent.SpanID())
	assert.Equal(t, spans[1].SpanContext.TraceID(), spans[0].SpanContext.TraceID())
}
