package access

import (
	"context"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/giantswarm/mcp-hive/internal/k8s"
	"github.com/giantswarm/mcp-hive/internal/server"
	"github.com/giantswarm/mcp-hive/internal/tools"
)

// canIResponse is the result of can_i.
type canIResponse struct {
	k8s.AccessResult
	Context string          `json:"context"`
	Check   k8s.AccessCheck `json:"check"`
}

func handleCanI(ctx context.Context, call *tools.Call, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	verb, err := call.RequiredString("verb")
	if err != nil {
		return nil, err
	}
	resource, err := call.RequiredString("resource")
	if err != nil {
		return nil, err
	}

	check := k8s.AccessCheck{
		Verb:        strings.ToLower(verb),
		Resource:    strings.ToLower(resource),
		APIGroup:    strings.TrimSpace(call.String("apiGroup")),
		Namespace:   strings.TrimSpace(call.String("namespace")),
		Name:        strings.TrimSpace(call.String("name")),
		Subresource: strings.TrimSpace(call.String("subresource")),
	}
	if err := check.Validate(); err != nil {
		return nil, tools.InvalidArgument("%v", err)
	}

	result, err := sc.K8sClient().CheckAccess(ctx, call.KubeContext(), check)
	if err != nil {
		return nil, err
	}

	kubeContext := call.KubeContext()
	if kubeContext == "" {
		kubeContext = sc.K8sClient().DefaultContext()
	}
	return tools.JSONResult(canIResponse{AccessResult: *result, Context: kubeContext, Check: check})
}
