package cluster

import (
	"context"
	"slices"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/giantswarm/mcp-hive/internal/k8s"
	"github.com/giantswarm/mcp-hive/internal/server"
	"github.com/giantswarm/mcp-hive/internal/tools"
)

type apiResourceList struct {
	Resources []k8s.APIResource `json:"resources"`
	Count     int               `json:"count"`
}

func handleGetAPIResources(ctx context.Context, call *tools.Call, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	resources, err := sc.K8sClient().APIResources(ctx, call.KubeContext(), strings.TrimSpace(call.String("apiGroup")))
	if err != nil {
		return nil, err
	}

	namespacedOnly := call.Bool("namespaced", false)
	verbs := splitVerbs(call.String("verbs"))
	resources = slices.DeleteFunc(resources, func(r k8s.APIResource) bool {
		if namespacedOnly && !r.Namespaced {
			return true
		}
		for _, verb := range verbs {
			if !slices.Contains(r.Verbs, verb) {
				return true
			}
		}
		return false
	})

	return tools.JSONResult(apiResourceList{Resources: resources, Count: len(resources)})
}

func splitVerbs(s string) []string {
	var verbs []string
	for _, verb := range strings.Split(s, ",") {
		if verb = strings.ToLower(strings.TrimSpace(verb)); verb != "" {
			verbs = append(verbs, verb)
		}
	}
	return verbs
}
