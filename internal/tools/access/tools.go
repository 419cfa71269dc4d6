// Package access provides the can_i tool, which asks the API server whether
// the server's credential may perform an action before it is attempted.
package access

import (
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/giantswarm/mcp-hive/internal/server"
	"github.com/giantswarm/mcp-hive/internal/tools"
)

// RegisterAccessTools registers can_i with reg.
func RegisterAccessTools(reg *tools.Registry, _ *server.ServerContext) error {
	return reg.Register(tools.Descriptor{
		Tool: mcp.NewTool("can_i",
			mcp.WithDescription("Check whether the server's credential may perform an action on a Kubernetes resource. Use this before hibernating clusters or changing resources to get clear feedback about permissions."),
			mcp.WithReadOnlyHintAnnotation(true),
			mcp.WithString("verb",
				mcp.Required(),
				mcp.Description("The action to check (get, list, watch, create, update, patch, delete)"),
			),
			mcp.WithString("resource",
				mcp.Required(),
				mcp.Description("The resource to check (e.g. pods, clusterdeployments)"),
			),
			mcp.WithString("apiGroup",
				mcp.Description("API group of the resource (empty for core resources, 'hive.openshift.io' for Hive)"),
			),
			mcp.WithString("namespace",
				mcp.Description("Namespace to check in (empty for cluster-scoped resources or all namespaces)"),
			),
			mcp.WithString("name",
				mcp.Description("A specific resource name, for fine-grained checks"),
			),
			mcp.WithString("subresource",
				mcp.Description("Subresource to check (e.g. 'log' for pods)"),
			),
			tools.KubeContextParam(),
		),
		Handler: handleCanI,
	})
}
