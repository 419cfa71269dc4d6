package instrumentation

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope of every span mcp-hive starts.
const TracerName = "github.com/giantswarm/mcp-hive"

// Span attribute keys.
const (
	SpanAttrKubeContext  = "mcp.kube_context"
	SpanAttrTool         = "mcp.tool"
	SpanAttrCallID       = "mcp.call_id"
	SpanAttrOutcome      = "mcp.outcome"
	SpanAttrAttempts     = "mcp.attempts"
	SpanAttrNamespace    = "k8s.namespace"
	SpanAttrResourceType = "k8s.resource_type"
	SpanAttrOperation    = "k8s.operation"
)

// Span names.
const (
	spanTool       = "tool."
	spanCluster    = "k8s."
	spanCredential = "credentials.resolve"
)

// StartToolSpan starts the server span of one tool call.
func StartToolSpan(ctx context.Context, tool, callID, kubeContext string) (context.Context, trace.Span) {
	return start(ctx, spanTool+tool, trace.SpanKindServer,
		attribute.String(SpanAttrTool, tool),
		optional(SpanAttrCallID, callID),
		optional(SpanAttrKubeContext, kubeContext))
}

// StartClusterSpan starts the client span of one cluster operation,
// covering every retry attempt.
func StartClusterSpan(ctx context.Context, kubeContext, operation, resourceType, namespace string) (context.Context, trace.Span) {
	return start(ctx, spanCluster+operation, trace.SpanKindClient,
		attribute.String(SpanAttrOperation, operation),
		optional(SpanAttrKubeContext, kubeContext),
		optional(SpanAttrResourceType, resourceType),
		optional(SpanAttrNamespace, namespace))
}

// StartCredentialSpan starts the span of resolving the credential of a
// kubeconfig context.
func StartCredentialSpan(ctx context.Context, kubeContext string) (context.Context, trace.Span) {
	return start(ctx, spanCredential, trace.SpanKindClient,
		attribute.String(SpanAttrKubeContext, kubeContext))
}

// RecordResult sets the span status from err and adds attrs. It does not
// end the span.
func RecordResult(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}

// Attempts is the attribute for the number of attempts an operation took.
func Attempts(n int) attribute.KeyValue {
	return attribute.Int(SpanAttrAttempts, n)
}

func start(ctx context.Context, name string, kind trace.SpanKind, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	set := attrs[:0]
	for _, a := range attrs {
		if a.Valid() {
			set = append(set, a)
		}
	}
	return otel.GetTracerProvider().Tracer(TracerName).Start(ctx, name,
		trace.WithAttributes(set...),
		trace.WithSpanKind(kind))
}

// optional is an invalid attribute, dropped by start, when value is empty.
func optional(key, value string) attribute.KeyValue {
	if value == "" {
		return attribute.KeyValue{}
	}
	return attribute.String(key, value)
}
