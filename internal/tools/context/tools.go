package contexttools

import (
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/giantswarm/mcp-hive/internal/server"
	"github.com/giantswarm/mcp-hive/internal/tools"
)

// RegisterContextTools registers the kubeconfig context tools with reg.
func RegisterContextTools(reg *tools.Registry, _ *server.ServerContext) error {
	descriptors := []tools.Descriptor{
		{
			Tool: mcp.NewTool("kubectl_context_list",
				mcp.WithDescription("List the kubeconfig contexts the server can use, with the credential state of each one that was used. Pass a context name as 'kubeContext' to any resource tool to target it."),
				mcp.WithReadOnlyHintAnnotation(true),
			),
			Handler: handleListContexts,
		},
		{
			Tool: mcp.NewTool("kubectl_context_get_current",
				mcp.WithDescription("Get the context used when a tool call does not name one."),
				mcp.WithReadOnlyHintAnnotation(true),
			),
			Handler: handleGetCurrentContext,
		},
	}

	for _, desc := range descriptors {
		if err := reg.Register(desc); err != nil {
			return err
		}
	}
	return nil
}
