package k8s

import (
	"context"
	"fmt"
	"io"
	"slices"
	"sort"
	"strings"
	"time"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/fields"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/discovery"
	"k8s.io/client-go/dynamic"
)

// Typed operations built on Invoke. Each Run closure resolves the resource
// against the connection it is given, so a retried or re-authenticated
// attempt starts from scratch.

func resourceInterface(conn *Connection, gvr schema.GroupVersionResource, namespaced bool, namespace string) dynamic.ResourceInterface {
	if namespaced && namespace != "" {
		return conn.Dynamic.Resource(gvr).Namespace(namespace)
	}
	return conn.Dynamic.Resource(gvr)
}

func (c *kubernetesClient) dryRunOption() []string {
	if c.config.DryRun {
		return []string{metav1.DryRunAll}
	}
	return nil
}

// Get implements ResourceManager.
func (c *kubernetesClient) Get(ctx context.Context, kubeContext string, ref ResourceRef, name string) (*unstructured.Unstructured, error) {
	var out *unstructured.Unstructured
	err := c.Invoke(ctx, kubeContext, Operation{
		Name:         OpGet,
		ResourceType: ref.Kind,
		Namespace:    ref.Namespace,
		ResourceName: name,
		Run: func(ctx context.Context, conn *Connection) error {
			gvr, namespaced, err := resolveResourceType(ctx, conn.Discovery, ref.Kind, ref.APIGroup)
			if err != nil {
				return err
			}
			obj, err := resourceInterface(conn, gvr, namespaced, ref.Namespace).Get(ctx, name, metav1.GetOptions{})
			if err != nil {
				return err
			}
			out = obj
			return nil
		},
	})
	return out, err
}

// List implements ResourceManager.
func (c *kubernetesClient) List(ctx context.Context, kubeContext string, ref ResourceRef, opts ListOptions) (*ListResult, error) {
	var out *ListResult
	err := c.Invoke(ctx, kubeContext, Operation{
		Name:         OpList,
		ResourceType: ref.Kind,
		Namespace:    ref.Namespace,
		Run: func(ctx context.Context, conn *Connection) error {
			gvr, namespaced, err := resolveResourceType(ctx, conn.Discovery, ref.Kind, ref.APIGroup)
			if err != nil {
				return err
			}

			listOpts := metav1.ListOptions{
				LabelSelector: opts.LabelSelector,
				FieldSelector: opts.FieldSelector,
				Limit:         opts.Limit,
				Continue:      opts.Continue,
			}
			namespace := ref.Namespace
			if opts.AllNamespaces {
				namespace = ""
			}

			list, err := resourceInterface(conn, gvr, namespaced, namespace).List(ctx, listOpts)
			if err != nil {
				return err
			}

			items := list.Items
			if items == nil {
				items = []unstructured.Unstructured{}
			}
			out = &ListResult{
				Items:           items,
				Count:           len(items),
				Continue:        list.GetContinue(),
				ResourceVersion: list.GetResourceVersion(),
			}
			return nil
		},
	})
	return out, err
}

// Create implements ResourceManager.
func (c *kubernetesClient) Create(ctx context.Context, kubeContext, namespace string, obj *unstructured.Unstructured) (*unstructured.Unstructured, error) {
	var out *unstructured.Unstructured
	err := c.Invoke(ctx, kubeContext, Operation{
		Name:         OpCreate,
		ResourceType: obj.GetKind(),
		Namespace:    namespace,
		ResourceName: obj.GetName(),
		Run: func(ctx context.Context, conn *Connection) error {
			gvr, namespaced, err := resolveObject(ctx, conn, obj)
			if err != nil {
				return err
			}

			toCreate := obj.DeepCopy()
			if namespaced {
				ns := namespace
				if ns == "" {
					ns = toCreate.GetNamespace()
				}
				if ns == "" {
					ns = metav1.NamespaceDefault
				}
				toCreate.SetNamespace(ns)
			} else {
				toCreate.SetNamespace("")
			}

			created, err := resourceInterface(conn, gvr, namespaced, toCreate.GetNamespace()).
				Create(ctx, toCreate, metav1.CreateOptions{DryRun: c.dryRunOption()})
			if err != nil {
				return err
			}
			out = created
			return nil
		},
	})
	return out, err
}

// Patch implements ResourceManager.
func (c *kubernetesClient) Patch(ctx context.Context, kubeContext string, ref ResourceRef, name string, patchType types.PatchType, data []byte) (*unstructured.Unstructured, error) {
	var out *unstructured.Unstructured
	err := c.Invoke(ctx, kubeContext, Operation{
		Name:         OpPatch,
		ResourceType: ref.Kind,
		Namespace:    ref.Namespace,
		ResourceName: name,
		Run: func(ctx context.Context, conn *Connection) error {
			gvr, namespaced, err := resolveResourceType(ctx, conn.Discovery, ref.Kind, ref.APIGroup)
			if err != nil {
				return err
			}
			patched, err := resourceInterface(conn, gvr, namespaced, ref.Namespace).
				Patch(ctx, name, patchType, data, metav1.PatchOptions{DryRun: c.dryRunOption()})
			if err != nil {
				return err
			}
			out = patched
			return nil
		},
	})
	return out, err
}

// Delete implements ResourceManager.
func (c *kubernetesClient) Delete(ctx context.Context, kubeContext string, ref ResourceRef, name string) error {
	return c.Invoke(ctx, kubeContext, Operation{
		Name:         OpDelete,
		ResourceType: ref.Kind,
		Namespace:    ref.Namespace,
		ResourceName: name,
		Run: func(ctx context.Context, conn *Connection) error {
			gvr, namespaced, err := resolveResourceType(ctx, conn.Discovery, ref.Kind, ref.APIGroup)
			if err != nil {
				return err
			}
			return resourceInterface(conn, gvr, namespaced, ref.Namespace).
				Delete(ctx, name, metav1.DeleteOptions{DryRun: c.dryRunOption()})
		},
	})
}

// Logs implements PodManager.
func (c *kubernetesClient) Logs(ctx context.Context, kubeContext, namespace, podName string, opts LogOptions) (io.ReadCloser, error) {
	var stream io.ReadCloser
	err := c.Invoke(ctx, kubeContext, Operation{
		Name:         OpLogs,
		ResourceType: "pods",
		Namespace:    namespace,
		ResourceName: podName,
		Run: func(ctx context.Context, conn *Connection) error {
			req := conn.Clientset.CoreV1().Pods(namespace).GetLogs(podName, &corev1.PodLogOptions{
				Container:    opts.Container,
				Follow:       opts.Follow,
				Previous:     opts.Previous,
				Timestamps:   opts.Timestamps,
				TailLines:    opts.TailLines,
				SinceSeconds: opts.SinceSeconds,
				LimitBytes:   opts.LimitBytes,
			})
			s, err := req.Stream(ctx)
			if err != nil {
				return err
			}
			stream = s
			return nil
		},
	})
	return stream, err
}

// Events implements PodManager.
func (c *kubernetesClient) Events(ctx context.Context, kubeContext, namespace string, opts EventOptions) ([]corev1.Event, error) {
	selector := fields.Set{}
	if opts.InvolvedObjectName != "" {
		selector["involvedObject.name"] = opts.InvolvedObjectName
	}
	if opts.InvolvedObjectKind != "" {
		selector["involvedObject.kind"] = opts.InvolvedObjectKind
	}

	var events []corev1.Event
	err := c.Invoke(ctx, kubeContext, Operation{
		Name:         OpEvents,
		ResourceType: "events",
		Namespace:    namespace,
		Run: func(ctx context.Context, conn *Connection) error {
			list, err := conn.Clientset.CoreV1().Events(namespace).List(ctx, metav1.ListOptions{
				FieldSelector: selector.AsSelector().String(),
			})
			if err != nil {
				return err
			}
			events = list.Items
			return nil
		},
	})
	if err != nil {
		return nil, err
	}

	// Not every server honours involvedObject field selectors.
	events = slices.DeleteFunc(events, func(e corev1.Event) bool {
		if opts.InvolvedObjectName != "" && e.InvolvedObject.Name != opts.InvolvedObjectName {
			return true
		}
		return opts.InvolvedObjectKind != "" && !strings.EqualFold(e.InvolvedObject.Kind, opts.InvolvedObjectKind)
	})
	slices.SortStableFunc(events, func(a, b corev1.Event) int {
		return eventTime(a).Compare(eventTime(b))
	})
	if opts.Limit > 0 && len(events) > opts.Limit {
		events = events[len(events)-opts.Limit:]
	}
	if events == nil {
		events = []corev1.Event{}
	}
	return events, nil
}

// eventTime returns the most recent timestamp an event carries.
func eventTime(e corev1.Event) time.Time {
	switch {
	case !e.LastTimestamp.IsZero():
		return e.LastTimestamp.Time
	case !e.EventTime.IsZero():
		return e.EventTime.Time
	case !e.FirstTimestamp.IsZero():
		return e.FirstTimestamp.Time
	default:
		return e.CreationTimestamp.Time
	}
}

// ServerVersion implements ClusterManager.
func (c *kubernetesClient) ServerVersion(ctx context.Context, kubeContext string) (string, error) {
	var version string
	err := c.Invoke(ctx, kubeContext, Operation{
		Name: OpServerVersion,
		Run: func(ctx context.Context, conn *Connection) error {
			info, err := conn.Discovery.ServerVersion()
			if err != nil {
				return err
			}
			version = info.GitVersion
			return nil
		},
	})
	return version, err
}

// APIResources implements ClusterManager.
func (c *kubernetesClient) APIResources(ctx context.Context, kubeContext, apiGroup string) ([]APIResource, error) {
	var out []APIResource
	err := c.Invoke(ctx, kubeContext, Operation{
		Name:         OpAPIResources,
		ResourceType: apiGroup,
		Run: func(ctx context.Context, conn *Connection) error {
			_, lists, err := conn.Discovery.ServerGroupsAndResources()
			if err != nil && !(discovery.IsGroupDiscoveryFailedError(err) && len(lists) > 0) {
				return err
			}
			out = apiResources(lists, apiGroup)
			return nil
		},
	})
	return out, err
}

// apiResources flattens discovery lists, dropping subresources. An empty
// group matches every group; use "core" for the legacy group.
func apiResources(lists []*metav1.APIResourceList, group string) []APIResource {
	out := []APIResource{}
	for _, list := range lists {
		if list == nil {
			continue
		}
		gv, err := schema.ParseGroupVersion(list.GroupVersion)
		if err != nil {
			continue
		}
		if group != "" && !strings.EqualFold(gv.Group, group) && !(gv.Group == "" && strings.EqualFold(group, "core")) {
			continue
		}
		for _, r := range list.APIResources {
			if strings.Contains(r.Name, "/") {
				continue
			}
			out = append(out, APIResource{
				Name:       r.Name,
				Kind:       r.Kind,
				Group:      gv.Group,
				Version:    gv.Version,
				Namespaced: r.Namespaced,
				ShortNames: r.ShortNames,
				Verbs:      r.Verbs,
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Group != out[j].Group {
			return out[i].Group < out[j].Group
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// resolveObject finds the resource for a manifest from its apiVersion and
// kind: builtin kinds first, then the connection's RESTMapper, then a
// discovery search by kind.
func resolveObject(ctx context.Context, conn *Connection, obj *unstructured.Unstructured) (schema.GroupVersionResource, bool, error) {
	gvk := obj.GroupVersionKind()
	if gvk.Kind == "" || gvk.Version == "" {
		return schema.GroupVersionResource{}, false, fmt.Errorf("%w: manifest needs apiVersion and kind", ErrUnknownResourceType)
	}

	if gvr, ok := builtinResources[strings.ToLower(gvk.Kind)]; ok && gvr.Group == gvk.Group {
		return gvk.GroupVersion().WithResource(gvr.Resource), !clusterScopedResources[gvr.Resource], nil
	}

	if conn.Mapper != nil {
		mapping, err := conn.Mapper.RESTMapping(gvk.GroupKind(), gvk.Version)
		if err == nil {
			return mapping.Resource, mapping.Scope.Name() == meta.RESTScopeNameNamespace, nil
		}
	}

	group := gvk.Group
	if group == "" {
		group = "core"
	}
	return resolveResourceType(ctx, conn.Discovery, gvk.Kind, group+"/"+gvk.Version)
}
