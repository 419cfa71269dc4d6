package resource

import (
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/giantswarm/mcp-hive/internal/server"
	"github.com/giantswarm/mcp-hive/internal/tools"
)

const namespaceDescription = `Namespace for namespaced resources. Uses 'default' if not specified.
For cluster-scoped resources (nodes, namespaces, clusterroles) it is ignored.`

const dryRunNote = `

The server runs in dry-run mode: the API server validates the request but nothing is persisted.`

// RegisterResourceTools registers the generic resource tools with reg.
func RegisterResourceTools(reg *tools.Registry, sc *server.ServerContext) error {
	mutationNote := ""
	if sc.Config().DryRun {
		mutationNote = dryRunNote
	}

	descriptors := []tools.Descriptor{
		{
			Tool: mcp.NewTool("kubernetes_list",
				mcp.WithDescription(`List Kubernetes resources of one kind.

Items come back in the order the API server returns them. Use 'limit' and the returned 'continue' token to page through large lists.

Examples:
- List pods in the default namespace: {"kind": "pods"}
- List all ClusterClaims: {"kind": "clusterclaims", "namespace": "rhoai"}
- List hibernating ClusterDeployments: {"kind": "clusterdeployments", "allNamespaces": true, "filter": {"spec.powerState": "Hibernating"}}`),
				mcp.WithReadOnlyHintAnnotation(true),
				mcp.WithString("kind",
					mcp.Required(),
					mcp.Description("Kind or resource name to list (e.g. pods, deployments, clusterdeployments)"),
				),
				mcp.WithString("apiGroup",
					mcp.Description("Optional API group for the kind (e.g. 'apps', 'hive.openshift.io' or 'apps/v1')"),
				),
				mcp.WithString("namespace", mcp.Description(namespaceDescription)),
				mcp.WithBoolean("allNamespaces",
					mcp.Description("List namespaced resources across all namespaces (default: false)"),
				),
				mcp.WithString("labelSelector",
					mcp.Description("Server-side label selector (e.g. 'app=web,env=prod')"),
				),
				mcp.WithString("fieldSelector",
					mcp.Description("Server-side field selector (e.g. 'status.phase=Running')"),
				),
				mcp.WithObject("filter",
					mcp.Description(`Client-side filter for fields the API server cannot select on. Keys are dotted paths, '[*]' matches any list element. Example: {"status.conditions[*].type": "Hibernating"}`),
				),
				mcp.WithNumber("limit",
					mcp.Description("Maximum number of items to return per page (default: all)"),
					mcp.Min(0),
				),
				mcp.WithString("continue",
					mcp.Description("Continue token from a previous paginated request"),
				),
				tools.KubeContextParam(),
			),
			Handler: handleList,
		},
		{
			Tool: mcp.NewTool("kubernetes_get",
				mcp.WithDescription("Get a single Kubernetes resource by kind and name."),
				mcp.WithReadOnlyHintAnnotation(true),
				mcp.WithString("kind",
					mcp.Required(),
					mcp.Description("Kind or resource name (e.g. pod, deployment, clusterclaim)"),
				),
				mcp.WithString("name", mcp.Required(), mcp.Description("Name of the resource")),
				mcp.WithString("apiGroup", mcp.Description("Optional API group for the kind")),
				mcp.WithString("namespace", mcp.Description(namespaceDescription)),
				tools.KubeContextParam(),
			),
			Handler: handleGet,
		},
		{
			Tool: mcp.NewTool("kubernetes_create",
				mcp.WithDescription("Create a Kubernetes resource from a YAML or JSON manifest. Fails with a conflict if the resource already exists."+mutationNote),
				mcp.WithDestructiveHintAnnotation(false),
				mcp.WithString("manifest",
					mcp.Required(),
					mcp.Description("Resource manifest as YAML or JSON. It must set apiVersion, kind and metadata.name."),
				),
				mcp.WithString("namespace",
					mcp.Description("Namespace to create the resource in. Overrides metadata.namespace of the manifest."),
				),
				tools.KubeContextParam(),
			),
			Handler:   handleCreate,
			Mutating:  true,
			Operation: "create",
		},
		{
			Tool: mcp.NewTool("kubernetes_patch",
				mcp.WithDescription("Patch a Kubernetes resource."+mutationNote),
				mcp.WithString("kind", mcp.Required(), mcp.Description("Kind or resource name")),
				mcp.WithString("name", mcp.Required(), mcp.Description("Name of the resource")),
				mcp.WithString("apiGroup", mcp.Description("Optional API group for the kind")),
				mcp.WithString("namespace", mcp.Description(namespaceDescription)),
				mcp.WithString("patch",
					mcp.Required(),
					mcp.Description(`Patch document as JSON, e.g. {"spec":{"powerState":"Hibernating"}} or a JSON patch array`),
				),
				mcp.WithString("patchType",
					mcp.Description("Patch strategy (default: merge). Strategic merge only works for built-in kinds."),
					mcp.Enum(patchTypeMerge, patchTypeJSON, patchTypeStrategic),
				),
				tools.KubeContextParam(),
			),
			Handler:   handlePatch,
			Mutating:  true,
			Operation: "patch",
		},
		{
			Tool: mcp.NewTool("kubernetes_delete",
				mcp.WithDescription("Delete a Kubernetes resource."+mutationNote),
				mcp.WithDestructiveHintAnnotation(true),
				mcp.WithString("kind", mcp.Required(), mcp.Description("Kind or resource name")),
				mcp.WithString("name", mcp.Required(), mcp.Description("Name of the resource")),
				mcp.WithString("apiGroup", mcp.Description("Optional API group for the kind")),
				mcp.WithString("namespace", mcp.Description(namespaceDescription)),
				tools.KubeContextParam(),
			),
			Handler:   handleDelete,
			Mutating:  true,
			Operation: "delete",
		},
		{
			Tool: mcp.NewTool("kubernetes_events",
				mcp.WithDescription("List events in a namespace, oldest first. Filter by the object the events are about."),
				mcp.WithReadOnlyHintAnnotation(true),
				mcp.WithString("namespace", mcp.Description("Namespace to read events from. Uses 'default' if not specified.")),
				mcp.WithString("involvedObjectName", mcp.Description("Only events about the object with this name")),
				mcp.WithString("involvedObjectKind", mcp.Description("Only events about objects of this kind (e.g. Pod)")),
				mcp.WithNumber("limit",
					mcp.Description("Return only the most recent N events (default: all)"),
					mcp.Min(0),
				),
				tools.KubeContextParam(),
			),
			Handler: handleEvents,
		},
	}

	for _, desc := range descriptors {
		if err := reg.Register(desc); err != nil {
			return err
		}
	}
	return nil
}
