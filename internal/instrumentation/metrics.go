package instrumentation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys.
const (
	attrMethod       = "method"
	attrPath         = "path"
	attrStatus       = "status"
	attrOperation    = "operation"
	attrResourceType = "resource_type"
	attrNamespace    = "namespace"
	attrResult       = "result"
	attrTool         = "tool"
	attrOutcome      = "outcome"
	attrTransport    = "transport"
	attrErrorClass   = "error_class"
)

var durationBuckets = []float64{0.001, 0.01, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0}

// Metrics records the server's counters and histograms. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram

	activeSessions   metric.Int64UpDownCounter
	toolCallsTotal   metric.Int64Counter
	toolCallDuration metric.Float64Histogram

	k8sOperationsTotal   metric.Int64Counter
	k8sOperationDuration metric.Float64Histogram
	k8sRetriesTotal      metric.Int64Counter

	credentialResolutionsTotal   metric.Int64Counter
	credentialResolutionDuration metric.Float64Histogram

	detailedLabels bool
}

type counterDef struct {
	dst              *metric.Int64Counter
	name, desc, unit string
}

type histogramDef struct {
	dst        *metric.Float64Histogram
	name, desc string
}

// NewMetrics creates every instrument on meter. detailedLabels adds the
// namespace and resource_type labels to Kubernetes operation metrics.
func NewMetrics(meter metric.Meter, detailedLabels bool) (*Metrics, error) {
	m := &Metrics{detailedLabels: detailedLabels}

	counters := []counterDef{
		{&m.httpRequestsTotal, "http_requests_total", "Total number of HTTP requests", "{request}"},
		{&m.toolCallsTotal, "mcp_tool_calls_total", "Total number of MCP tool calls by tool and outcome", "{call}"},
		{&m.k8sOperationsTotal, "kubernetes_operations_total", "Total number of Kubernetes operations", "{operation}"},
		{&m.k8sRetriesTotal, "kubernetes_operation_retries_total", "Total number of retried Kubernetes operations by error class", "{retry}"},
		{&m.credentialResolutionsTotal, "credential_resolutions_total", "Total number of credential resolutions by result", "{resolution}"},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc), metric.WithUnit(c.unit))
		if err != nil {
			return nil, fmt.Errorf("failed to create %s counter: %w", c.name, err)
		}
		*c.dst = counter
	}

	histograms := []histogramDef{
		{&m.httpRequestDuration, "http_request_duration_seconds", "HTTP request duration in seconds"},
		{&m.toolCallDuration, "mcp_tool_call_duration_seconds", "MCP tool call duration in seconds"},
		{&m.k8sOperationDuration, "kubernetes_operation_duration_seconds", "Kubernetes operation duration in seconds"},
		{&m.credentialResolutionDuration, "credential_resolution_duration_seconds", "Credential resolution duration in seconds"},
	}
	for _, h := range histograms {
		histogram, err := meter.Float64Histogram(h.name,
			metric.WithDescription(h.desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(durationBuckets...))
		if err != nil {
			return nil, fmt.Errorf("failed to create %s histogram: %w", h.name, err)
		}
		*h.dst = histogram
	}

	sessions, err := meter.Int64UpDownCounter("mcp_active_sessions",
		metric.WithDescription("Number of open MCP sessions"),
		metric.WithUnit("{session}"))
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp_active_sessions gauge: %w", err)
	}
	m.activeSessions = sessions

	return m, nil
}

// RecordHTTPRequest records one HTTP request. route must come from a bounded
// set; see middleware.Routes.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, route string, statusCode int, duration time.Duration) {
	if m == nil || m.httpRequestsTotal == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String(attrMethod, method),
		attribute.String(attrPath, route),
		attribute.String(attrStatus, strconv.Itoa(statusCode)),
	)

	m.httpRequestsTotal.Add(ctx, 1, attrs)
	m.httpRequestDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordToolCall records a dispatched tool call. outcome is "success" or an
// error envelope kind.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, outcome string, duration time.Duration) {
	if m == nil || m.toolCallsTotal == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String(attrTool, tool),
		attribute.String(attrOutcome, outcome),
	)

	m.toolCallsTotal.Add(ctx, 1, attrs)
	m.toolCallDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordK8sOperation records a Kubernetes operation with operation type, resource type,
// namespace, status, and duration.
//
// Only operation and status are recorded unless detailed labels are enabled;
// namespace and resource_type can explode cardinality on large clusters.
func (m *Metrics) RecordK8sOperation(ctx context.Context, operation, resourceType, namespace, status string, duration time.Duration) {
	if m == nil || m.k8sOperationsTotal == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status),
	}

	if m.detailedLabels {
		attrs = append(attrs,
			attribute.String(attrResourceType, resourceType),
			attribute.String(attrNamespace, namespace),
		)
	}

	m.k8sOperationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.k8sOperationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordK8sRetry records one retry of a Kubernetes operation after an error
// of the given class.
func (m *Metrics) RecordK8sRetry(ctx context.Context, operation, errorClass string) {
	if m == nil || m.k8sRetriesTotal == nil {
		return
	}

	m.k8sRetriesTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrOperation, operation),
		attribute.String(attrErrorClass, errorClass),
	))
}

// RecordCredentialResolution records a credential resolution.
// Result should be one of: "resolved", "cached", "failed".
func (m *Metrics) RecordCredentialResolution(ctx context.Context, result string, duration time.Duration) {
	if m == nil || m.credentialResolutionsTotal == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String(attrResult, result))
	m.credentialResolutionsTotal.Add(ctx, 1, attrs)
	m.credentialResolutionDuration.Record(ctx, duration.Seconds(), attrs)
}

// IncrementActiveSessions increments the open session gauge.
func (m *Metrics) IncrementActiveSessions(ctx context.Context, transport string) {
	if m == nil || m.activeSessions == nil {
		return
	}

	m.activeSessions.Add(ctx, 1, metric.WithAttributes(attribute.String(attrTransport, transport)))
}

// DecrementActiveSessions decrements the open session gauge.
func (m *Metrics) DecrementActiveSessions(ctx context.Context, transport string) {
	if m == nil || m.activeSessions == nil {
		return
	}

	m.activeSessions.Add(ctx, -1, metric.WithAttributes(attribute.String(attrTransport, transport)))
}
