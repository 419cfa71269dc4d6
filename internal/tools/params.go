package tools

import (
	mcp "github.com/mark3labs/mcp-go/mcp"
)

// ParamKubeContext is the argument that selects a kube context.
const ParamKubeContext = "kubeContext"

// KubeContextParam returns the optional kubeContext parameter shared by all
// cluster tools.
//
//	tool := mcp.NewTool("kubernetes_get",
//		mcp.WithDescription("..."),
//		tools.KubeContextParam(),
//	)
func KubeContextParam() mcp.ToolOption {
	return mcp.WithString(ParamKubeContext,
		mcp.Description("Kubernetes context to use (optional, uses the context the server was started with if not specified)"),
	)
}
