package contexttools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/giantswarm/mcp-hive/internal/k8s"
	"github.com/giantswarm/mcp-hive/internal/server"
	"github.com/giantswarm/mcp-hive/internal/tools"
)

// contextInfo is one kubeconfig context and its credential state.
type contextInfo struct {
	k8s.ContextStatus
	Current bool `json:"current"`
}

type contextList struct {
	Current  string        `json:"current"`
	Contexts []contextInfo `json:"contexts"`
}

func contextInfos(client k8s.Client) []contextInfo {
	statuses := make(map[string]k8s.ContextStatus)
	for _, s := range client.ContextStatuses() {
		statuses[s.Name] = s
	}

	current := client.DefaultContext()
	names := client.Contexts()
	infos := make([]contextInfo, 0, len(names))
	for _, name := range names {
		status, ok := statuses[name]
		if !ok {
			status = k8s.ContextStatus{Name: name}
		}
		infos = append(infos, contextInfo{ContextStatus: status, Current: name == current})
	}
	return infos
}

func handleListContexts(_ context.Context, _ *tools.Call, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	client := sc.K8sClient()
	return tools.JSONResult(contextList{
		Current:  client.DefaultContext(),
		Contexts: contextInfos(client),
	})
}

func handleGetCurrentContext(_ context.Context, _ *tools.Call, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	for _, info := range contextInfos(sc.K8sClient()) {
		if info.Current {
			return tools.JSONResult(info)
		}
	}
	return nil, tools.Errorf(tools.KindNotFound, "context %q is not in the kubeconfig", sc.K8sClient().DefaultContext())
}
