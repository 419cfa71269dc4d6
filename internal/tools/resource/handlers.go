package resource

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/yaml"

	"github.com/giantswarm/mcp-hive/internal/k8s"
	"github.com/giantswarm/mcp-hive/internal/server"
	"github.com/giantswarm/mcp-hive/internal/tools"
	"github.com/giantswarm/mcp-hive/internal/tools/output"
)

const (
	patchTypeMerge     = "merge"
	patchTypeJSON      = "json"
	patchTypeStrategic = "strategic"
)

var patchTypes = map[string]types.PatchType{
	patchTypeMerge:     types.MergePatchType,
	patchTypeJSON:      types.JSONPatchType,
	patchTypeStrategic: types.StrategicMergePatchType,
}

// listResponse is the result of kubernetes_list.
type listResponse struct {
	Items    []map[string]any `json:"items"`
	Count    int              `json:"count"`
	Continue string           `json:"continue"`
}

// eventsResponse is the result of kubernetes_events.
type eventsResponse struct {
	Events []map[string]any `json:"events"`
	Count  int              `json:"count"`
}

// namespaceArg returns the namespace argument, defaulting to "default" the
// way kubectl does. The API server ignores it for cluster-scoped kinds.
func namespaceArg(call *tools.Call) string {
	if ns := strings.TrimSpace(call.String("namespace")); ns != "" {
		return ns
	}
	return metav1.NamespaceDefault
}

// refArgs reads the kind, apiGroup and namespace arguments.
func refArgs(call *tools.Call) (k8s.ResourceRef, error) {
	kind, err := call.RequiredString("kind")
	if err != nil {
		return k8s.ResourceRef{}, err
	}
	return k8s.ResourceRef{
		Kind:      kind,
		APIGroup:  strings.TrimSpace(call.String("apiGroup")),
		Namespace: namespaceArg(call),
	}, nil
}

func handleList(ctx context.Context, call *tools.Call, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	ref, err := refArgs(call)
	if err != nil {
		return nil, err
	}
	limit, err := call.Int("limit", 0)
	if err != nil {
		return nil, err
	}
	filter, err := filterArg(call)
	if err != nil {
		return nil, err
	}

	list, err := sc.K8sClient().List(ctx, call.KubeContext(), ref, k8s.ListOptions{
		LabelSelector: call.String("labelSelector"),
		FieldSelector: call.String("fieldSelector"),
		AllNamespaces: call.Bool("allNamespaces", false),
		Limit:         limit,
		Continue:      call.String("continue"),
	})
	if err != nil {
		return nil, err
	}

	items, err := filter.Apply(list.Items)
	if err != nil {
		return nil, tools.InvalidArgument("invalid filter: %v", err)
	}

	return tools.JSONResult(listResponse{
		Items:    output.SanitizeList(items),
		Count:    len(items),
		Continue: list.Continue,
	})
}

func filterArg(call *tools.Call) (Filter, error) {
	raw, ok := call.Arguments["filter"]
	if !ok || raw == nil {
		return nil, nil
	}
	criteria, ok := raw.(map[string]any)
	if !ok {
		return nil, tools.InvalidArgument("filter must be an object")
	}
	filter := Filter(criteria)
	if err := filter.Validate(); err != nil {
		return nil, tools.InvalidArgument("invalid filter: %v", err)
	}
	return filter, nil
}

func handleGet(ctx context.Context, call *tools.Call, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	ref, err := refArgs(call)
	if err != nil {
		return nil, err
	}
	name, err := call.RequiredString("name")
	if err != nil {
		return nil, err
	}

	obj, err := sc.K8sClient().Get(ctx, call.KubeContext(), ref, name)
	if err != nil {
		return nil, err
	}
	return tools.JSONResult(output.SanitizeObject(obj))
}

func handleCreate(ctx context.Context, call *tools.Call, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	manifest, err := call.RequiredString("manifest")
	if err != nil {
		return nil, err
	}
	obj, err := decodeManifest(manifest)
	if err != nil {
		return nil, err
	}

	created, err := sc.K8sClient().Create(ctx, call.KubeContext(), strings.TrimSpace(call.String("namespace")), obj)
	if err != nil {
		return nil, err
	}
	return tools.JSONResult(output.SanitizeObject(created))
}

// decodeManifest parses a single YAML or JSON object.
func decodeManifest(manifest string) (*unstructured.Unstructured, error) {
	var content map[string]any
	if err := yaml.Unmarshal([]byte(manifest), &content); err != nil {
		return nil, tools.InvalidArgument("manifest is not valid YAML or JSON: %v", err)
	}
	if len(content) == 0 {
		return nil, tools.InvalidArgument("manifest is empty")
	}

	obj := &unstructured.Unstructured{Object: content}
	switch {
	case obj.GetAPIVersion() == "":
		return nil, tools.InvalidArgument("manifest has no apiVersion")
	case obj.GetKind() == "":
		return nil, tools.InvalidArgument("manifest has no kind")
	case obj.GetName() == "" && obj.GetGenerateName() == "":
		return nil, tools.InvalidArgument("manifest has no metadata.name")
	}
	return obj, nil
}

func handlePatch(ctx context.Context, call *tools.Call, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	ref, err := refArgs(call)
	if err != nil {
		return nil, err
	}
	name, err := call.RequiredString("name")
	if err != nil {
		return nil, err
	}
	patch, err := call.RequiredString("patch")
	if err != nil {
		return nil, err
	}
	if !json.Valid([]byte(patch)) {
		return nil, tools.InvalidArgument("patch must be a JSON document")
	}

	typeName := call.String("patchType")
	if typeName == "" {
		typeName = patchTypeMerge
	}
	patchType, ok := patchTypes[typeName]
	if !ok {
		return nil, tools.InvalidArgument("unsupported patchType %q", typeName)
	}

	patched, err := sc.K8sClient().Patch(ctx, call.KubeContext(), ref, name, patchType, []byte(patch))
	if err != nil {
		return nil, err
	}
	return tools.JSONResult(output.SanitizeObject(patched))
}

func handleDelete(ctx context.Context, call *tools.Call, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	ref, err := refArgs(call)
	if err != nil {
		return nil, err
	}
	name, err := call.RequiredString("name")
	if err != nil {
		return nil, err
	}

	if err := sc.K8sClient().Delete(ctx, call.KubeContext(), ref, name); err != nil {
		return nil, err
	}

	msg := fmt.Sprintf("Deleted %s %q in namespace %q", ref.Kind, name, ref.Namespace)
	if sc.Config().DryRun {
		msg += " (dry run, nothing was removed)"
	}
	return mcp.NewToolResultText(msg), nil
}

func handleEvents(ctx context.Context, call *tools.Call, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	limit, err := call.Int("limit", 0)
	if err != nil {
		return nil, err
	}

	events, err := sc.K8sClient().Events(ctx, call.KubeContext(), namespaceArg(call), k8s.EventOptions{
		InvolvedObjectName: call.String("involvedObjectName"),
		InvolvedObjectKind: call.String("involvedObjectKind"),
		Limit:              int(limit),
	})
	if err != nil {
		return nil, err
	}

	items := make([]map[string]any, 0, len(events))
	for i := range events {
		obj, err := runtime.DefaultUnstructuredConverter.ToUnstructured(&events[i])
		if err != nil {
			return nil, err
		}
		items = append(items, output.Sanitize(obj))
	}
	return tools.JSONResult(eventsResponse{Events: items, Count: len(items)})
}
