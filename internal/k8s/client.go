package k8s

import (
	"context"
	"io"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/types"
)

// Client defines the cluster operations available to MCP tools. Every
// operation takes a kube context; an empty one means the context the server
// was started with.
type Client interface {
	// Invoke runs op against a connection for kubeContext whose credential
	// is outside its refresh margin. A rejected credential is refreshed and
	// op retried once; throttling and unavailability are retried with
	// backoff. Failures are returned as *ClusterError.
	Invoke(ctx context.Context, kubeContext string, op Operation) error

	// Resource Management Operations
	ResourceManager

	// Pod Operations
	PodManager

	// Cluster Operations
	ClusterManager
}

// Operation is one unit of work against a cluster. Run may be called more
// than once when the operation is retried.
type Operation struct {
	Name         string
	ResourceType string
	Namespace    string
	ResourceName string
	Run          func(ctx context.Context, conn *Connection) error
}

// ResourceRef identifies a kind and, for namespaced kinds, a namespace.
type ResourceRef struct {
	Kind      string
	APIGroup  string
	Namespace string
}

// ResourceManager handles Kubernetes resource operations.
type ResourceManager interface {
	// Get retrieves a specific resource by name.
	Get(ctx context.Context, kubeContext string, ref ResourceRef, name string) (*unstructured.Unstructured, error)

	// List retrieves resources in server order with pagination support.
	List(ctx context.Context, kubeContext string, ref ResourceRef, opts ListOptions) (*ListResult, error)

	// Create creates obj. A non-empty namespace overrides the one in obj.
	Create(ctx context.Context, kubeContext, namespace string, obj *unstructured.Unstructured) (*unstructured.Unstructured, error)

	// Patch updates specific fields of a resource.
	Patch(ctx context.Context, kubeContext string, ref ResourceRef, name string, patchType types.PatchType, data []byte) (*unstructured.Unstructured, error)

	// Delete removes a resource by name.
	Delete(ctx context.Context, kubeContext string, ref ResourceRef, name string) error
}

// PodManager handles pod-specific operations.
type PodManager interface {
	// Logs opens a log stream for a pod container. The caller closes it.
	Logs(ctx context.Context, kubeContext, namespace, podName string, opts LogOptions) (io.ReadCloser, error)

	// Events lists events in namespace, oldest first.
	Events(ctx context.Context, kubeContext, namespace string, opts EventOptions) ([]corev1.Event, error)
}

// ClusterManager handles cluster-level operations.
type ClusterManager interface {
	// ServerVersion returns the API server's git version.
	ServerVersion(ctx context.Context, kubeContext string) (string, error)

	// APIResources lists the resource types the API server serves,
	// optionally limited to one API group, sorted by group and name.
	APIResources(ctx context.Context, kubeContext, apiGroup string) ([]APIResource, error)

	// CheckAccess asks the API server whether the context's credential may
	// perform the action described by check.
	CheckAccess(ctx context.Context, kubeContext string, check AccessCheck) (*AccessResult, error)

	// DefaultContext returns the context used for an empty kubeContext.
	DefaultContext() string

	// DryRun reports whether mutations are sent as server-side dry runs.
	DryRun() bool

	// Contexts returns the names of the kubeconfig's contexts, sorted.
	Contexts() []string

	// ContextStatuses reports every context used so far, sorted by name.
	ContextStatuses() []ContextStatus
}

// APIResource is one resource type served by the API server.
type APIResource struct {
	Name       string   `json:"name"`
	Kind       string   `json:"kind"`
	Group      string   `json:"group"`
	Version    string   `json:"version"`
	Namespaced bool     `json:"namespaced"`
	ShortNames []string `json:"shortNames,omitempty"`
	Verbs      []string `json:"verbs"`
}

// ListOptions provides configuration for list operations.
type ListOptions struct {
	LabelSelector string `json:"labelSelector,omitempty"`
	FieldSelector string `json:"fieldSelector,omitempty"`
	AllNamespaces bool   `json:"allNamespaces,omitempty"`

	// Pagination options
	Limit    int64  `json:"limit,omitempty"`    // Maximum number of items to return (0 = no limit)
	Continue string `json:"continue,omitempty"` // Continue token from previous request
}

// ListResult is one page of a list. Items is never nil.
type ListResult struct {
	Items           []unstructured.Unstructured `json:"items"`
	Count           int                         `json:"count"`
	Continue        string                      `json:"continue,omitempty"`
	ResourceVersion string                      `json:"resourceVersion,omitempty"`
}

// LogOptions configures log retrieval.
type LogOptions struct {
	Container    string `json:"container,omitempty"`
	Follow       bool   `json:"follow,omitempty"`
	Previous     bool   `json:"previous,omitempty"`
	Timestamps   bool   `json:"timestamps,omitempty"`
	TailLines    *int64 `json:"tailLines,omitempty"`
	SinceSeconds *int64 `json:"sinceSeconds,omitempty"`
	LimitBytes   *int64 `json:"limitBytes,omitempty"`
}

// EventOptions filters events.
type EventOptions struct {
	InvolvedObjectName string `json:"involvedObjectName,omitempty"`
	InvolvedObjectKind string `json:"involvedObjectKind,omitempty"`

	// Limit keeps only the most recent events (0 = all).
	Limit int `json:"limit,omitempty"`
}
