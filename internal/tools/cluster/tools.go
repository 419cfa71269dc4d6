package cluster

import (
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/giantswarm/mcp-hive/internal/server"
	"github.com/giantswarm/mcp-hive/internal/tools"
)

// RegisterClusterTools registers the cluster discovery tools with reg.
func RegisterClusterTools(reg *tools.Registry, _ *server.ServerContext) error {
	return reg.Register(tools.Descriptor{
		Tool: mcp.NewTool("kubernetes_api_resources",
			mcp.WithDescription("List the resource types the cluster serves. Use the names returned here as 'kind' for the other resource tools."),
			mcp.WithReadOnlyHintAnnotation(true),
			mcp.WithString("apiGroup",
				mcp.Description("Only resources of this API group (e.g. 'hive.openshift.io', or 'core' for the legacy group)"),
			),
			mcp.WithBoolean("namespaced",
				mcp.Description("Only namespaced resources (default: false)"),
			),
			mcp.WithString("verbs",
				mcp.Description("Only resources that support all of these comma-separated verbs (e.g. 'list,patch')"),
			),
			tools.KubeContextParam(),
		),
		Handler: handleGetAPIResources,
	})
}
