// Package instrumentation provides OpenTelemetry metrics and tracing for
// mcp-hive.
//
// # Metrics
//
// Server/HTTP metrics:
//   - http_requests_total: HTTP requests by method, path and status
//   - http_request_duration_seconds: HTTP request durations
//   - mcp_active_sessions: open MCP sessions by transport
//
// Tool metrics:
//   - mcp_tool_calls_total: dispatched tool calls by tool and outcome
//   - mcp_tool_call_duration_seconds: tool call durations
//
// Kubernetes metrics:
//   - kubernetes_operations_total: operations by operation and status
//   - kubernetes_operation_duration_seconds: operation durations
//   - kubernetes_operation_retries_total: retries by operation and error class
//
// Credential metrics:
//   - credential_resolutions_total: resolutions by result (resolved, cached, failed)
//   - credential_resolution_duration_seconds: resolution durations
//
// Namespace and resource_type labels are only attached to Kubernetes
// operation metrics when DetailedLabels is set.
//
// # Tracing
//
// Spans are created for tool invocations (tool.<name>), Kubernetes API calls
// (k8s.<operation>) and credential resolution (credentials.resolve).
//
// # Configuration
//
// Instrumentation is configured via environment variables:
//   - INSTRUMENTATION_ENABLED: enable metrics and tracing (default: false)
//   - METRICS_EXPORTER: prometheus, otlp or stdout (default: prometheus)
//   - TRACING_EXPORTER: otlp, stdout or none (default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint for traces and metrics
//   - OTEL_EXPORTER_OTLP_INSECURE: use plain HTTP for OTLP
//   - OTEL_TRACES_SAMPLER_ARG: sampling rate (0.0 to 1.0, default: 0.1)
//   - OTEL_SERVICE_NAME: service name (default: mcp-hive)
//
// The stdout exporters write to stderr so they never interleave with the
// stdio transport.
//
// # Example Usage
//
//	provider, err := instrumentation.NewProvider(ctx, instrumentation.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	provider.Metrics().RecordToolCall(ctx, "list_all_clusters", "success", elapsed)
package instrumentation
