package pod

import (
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/giantswarm/mcp-hive/internal/server"
	"github.com/giantswarm/mcp-hive/internal/tools"
)

// maxFollowSeconds bounds how long kubernetes_logs follows a stream.
const maxFollowSeconds = 300

// RegisterPodTools registers the pod tools with reg.
func RegisterPodTools(reg *tools.Registry, _ *server.ServerContext) error {
	return reg.Register(tools.Descriptor{
		Tool: mcp.NewTool("kubernetes_logs",
			mcp.WithDescription(`Get logs from a pod container.

When the client sends a progress token, every log line is also streamed as a progress notification while it is read. The final result holds the collected output, capped at 1 MiB.`),
			mcp.WithReadOnlyHintAnnotation(true),
			mcp.WithString("namespace",
				mcp.Description("Namespace of the pod. Uses 'default' if not specified."),
			),
			mcp.WithString("podName",
				mcp.Required(),
				mcp.Description("Name of the pod to get logs from"),
			),
			mcp.WithString("containerName",
				mcp.Description("Name of the container (optional for single-container pods)"),
			),
			mcp.WithNumber("tailLines",
				mcp.Description("Number of lines from the end of the log to show (default: all)"),
				mcp.Min(0),
			),
			mcp.WithBoolean("previous",
				mcp.Description("Get logs of the previous container instance (default: false)"),
			),
			mcp.WithBoolean("timestamps",
				mcp.Description("Prefix every line with its timestamp (default: false)"),
			),
			mcp.WithNumber("followSeconds",
				mcp.Description("Keep following the log for this many seconds (default: 0, do not follow)"),
				mcp.Min(0),
				mcp.Max(maxFollowSeconds),
			),
			tools.KubeContextParam(),
		),
		Handler:   handleLogs,
		Streaming: true,
	})
}
