package k8s

import (
	"context"
	"fmt"
	"strings"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/discovery"
)

// Hive resources served under hive.openshift.io/v1.
var (
	ClusterClaimsGVR      = schema.GroupVersionResource{Group: "hive.openshift.io", Version: "v1", Resource: "clusterclaims"}
	ClusterDeploymentsGVR = schema.GroupVersionResource{Group: "hive.openshift.io", Version: "v1", Resource: "clusterdeployments"}
	ClusterPoolsGVR       = schema.GroupVersionResource{Group: "hive.openshift.io", Version: "v1", Resource: "clusterpools"}
)

// builtinResources maps the names, singulars and short names of well known
// kinds to their resources so the common cases never hit discovery.
var builtinResources = map[string]schema.GroupVersionResource{
	// Core/v1 resources
	"pods":                   {Group: "", Version: "v1", Resource: "pods"},
	"pod":                    {Group: "", Version: "v1", Resource: "pods"},
	"po":                     {Group: "", Version: "v1", Resource: "pods"},
	"services":               {Group: "", Version: "v1", Resource: "services"},
	"service":                {Group: "", Version: "v1", Resource: "services"},
	"svc":                    {Group: "", Version: "v1", Resource: "services"},
	"nodes":                  {Group: "", Version: "v1", Resource: "nodes"},
	"node":                   {Group: "", Version: "v1", Resource: "nodes"},
	"namespaces":             {Group: "", Version: "v1", Resource: "namespaces"},
	"namespace":              {Group: "", Version: "v1", Resource: "namespaces"},
	"ns":                     {Group: "", Version: "v1", Resource: "namespaces"},
	"configmaps":             {Group: "", Version: "v1", Resource: "configmaps"},
	"configmap":              {Group: "", Version: "v1", Resource: "configmaps"},
	"cm":                     {Group: "", Version: "v1", Resource: "configmaps"},
	"secrets":                {Group: "", Version: "v1", Resource: "secrets"},
	"secret":                 {Group: "", Version: "v1", Resource: "secrets"},
	"events":                 {Group: "", Version: "v1", Resource: "events"},
	"event":                  {Group: "", Version: "v1", Resource: "events"},
	"ev":                     {Group: "", Version: "v1", Resource: "events"},
	"persistentvolumes":      {Group: "", Version: "v1", Resource: "persistentvolumes"},
	"persistentvolume":       {Group: "", Version: "v1", Resource: "persistentvolumes"},
	"pv":                     {Group: "", Version: "v1", Resource: "persistentvolumes"},
	"persistentvolumeclaims": {Group: "", Version: "v1", Resource: "persistentvolumeclaims"},
	"persistentvolumeclaim":  {Group: "", Version: "v1", Resource: "persistentvolumeclaims"},
	"pvc":                    {Group: "", Version: "v1", Resource: "persistentvolumeclaims"},
	"serviceaccounts":        {Group: "", Version: "v1", Resource: "serviceaccounts"},
	"serviceaccount":         {Group: "", Version: "v1", Resource: "serviceaccounts"},
	"sa":                     {Group: "", Version: "v1", Resource: "serviceaccounts"},

	// Apps/v1 resources
	"deployments":  {Group: "apps", Version: "v1", Resource: "deployments"},
	"deployment":   {Group: "apps", Version: "v1", Resource: "deployments"},
	"deploy":       {Group: "apps", Version: "v1", Resource: "deployments"},
	"replicasets":  {Group: "apps", Version: "v1", Resource: "replicasets"},
	"replicaset":   {Group: "apps", Version: "v1", Resource: "replicasets"},
	"rs":           {Group: "apps", Version: "v1", Resource: "replicasets"},
	"statefulsets": {Group: "apps", Version: "v1", Resource: "statefulsets"},
	"statefulset":  {Group: "apps", Version: "v1", Resource: "statefulsets"},
	"sts":          {Group: "apps", Version: "v1", Resource: "statefulsets"},

	// Batch resources
	"jobs":     {Group: "batch", Version: "v1", Resource: "jobs"},
	"job":      {Group: "batch", Version: "v1", Resource: "jobs"},
	"cronjobs": {Group: "batch", Version: "v1", Resource: "cronjobs"},
	"cronjob":  {Group: "batch", Version: "v1", Resource: "cronjobs"},
	"cj":       {Group: "batch", Version: "v1", Resource: "cronjobs"},

	// Hive resources
	"clusterclaims":      ClusterClaimsGVR,
	"clusterclaim":       ClusterClaimsGVR,
	"clusterdeployments": ClusterDeploymentsGVR,
	"clusterdeployment":  ClusterDeploymentsGVR,
	"cd":                 ClusterDeploymentsGVR,
	"clusterpools":       ClusterPoolsGVR,
	"clusterpool":        ClusterPoolsGVR,
	"cp":                 ClusterPoolsGVR,
}

// clusterScopedResources lists the cluster-scoped resources the builtin map
// and Hive can return.
var clusterScopedResources = map[string]bool{
	"nodes":                     true,
	"namespaces":                true,
	"persistentvolumes":         true,
	"clusterroles":              true,
	"clusterrolebindings":       true,
	"storageclasses":            true,
	"customresourcedefinitions": true,
	"clusterimagesets":          true,
}

// groupsMatch treats "core" and "" as the same group.
func groupsMatch(requested, actual string) bool {
	if requested == actual {
		return true
	}
	return (requested == "core" && actual == "") || (requested == "" && actual == "core")
}

// parseAPIGroup splits "group" or "group/version" (e.g. "apps" or "apps/v1").
func parseAPIGroup(apiGroup string) (group, preferredVersion string) {
	apiGroup = strings.ToLower(apiGroup)
	if apiGroup == "" {
		return "", ""
	}
	parts := strings.SplitN(apiGroup, "/", 2)
	group = parts[0]
	if len(parts) == 2 {
		preferredVersion = parts[1]
	}
	return group, preferredVersion
}

// resolveResourceType maps a kind (name, singular, short name or Kind) and
// an optional API group hint onto a resource. Builtin kinds are answered
// locally; anything else goes through discovery.
func resolveResourceType(ctx context.Context, disc discovery.DiscoveryInterface, kind, apiGroup string) (schema.GroupVersionResource, bool, error) {
	kind = strings.ToLower(kind)
	requestedGroup, preferredVersion := parseAPIGroup(apiGroup)

	if gvr, ok := builtinResources[kind]; ok {
		if requestedGroup == "" || groupsMatch(requestedGroup, gvr.Group) {
			return gvr, !clusterScopedResources[gvr.Resource], nil
		}
	}

	if disc == nil {
		return schema.GroupVersionResource{}, false, fmt.Errorf("%w: %s", ErrUnknownResourceType, kind)
	}

	ctx, cancel := context.WithTimeout(ctx, DiscoveryTimeout)
	defer cancel()

	type discoveryResult struct {
		lists []*metav1.APIResourceList
	}
	resultCh := make(chan discoveryResult, 1)
	go func() {
		// Partial results are still useful when some groups fail.
		lists, _ := discovery.ServerPreferredResources(disc)
		resultCh <- discoveryResult{lists: lists}
	}()

	var lists []*metav1.APIResourceList
	select {
	case res := <-resultCh:
		lists = res.lists
	case <-ctx.Done():
		return schema.GroupVersionResource{}, false, fmt.Errorf("API discovery did not finish: %w", ctx.Err())
	}

	search := func(preferVersion string) (schema.GroupVersionResource, bool, bool) {
		for _, list := range lists {
			if list == nil {
				continue
			}
			gv, err := schema.ParseGroupVersion(list.GroupVersion)
			if err != nil {
				continue
			}
			if requestedGroup != "" && !groupsMatch(requestedGroup, gv.Group) {
				continue
			}
			if preferVersion != "" && gv.Version != preferVersion {
				continue
			}
			for _, res := range list.APIResources {
				// Skip subresources such as pods/log.
				if strings.Contains(res.Name, "/") {
					continue
				}
				if matchesResource(res, kind) {
					return gv.WithResource(res.Name), res.Namespaced, true
				}
			}
		}
		return schema.GroupVersionResource{}, false, false
	}

	if preferredVersion != "" {
		if gvr, namespaced, found := search(preferredVersion); found {
			return gvr, namespaced, nil
		}
	}
	if gvr, namespaced, found := search(""); found {
		return gvr, namespaced, nil
	}
	return schema.GroupVersionResource{}, false, fmt.Errorf("%w: %s", ErrUnknownResourceType, kind)
}

func matchesResource(res metav1.APIResource, kind string) bool {
	if strings.ToLower(res.Name) == kind ||
		strings.ToLower(res.Kind) == kind ||
		strings.ToLower(res.SingularName) == kind {
		return true
	}
	for _, short := range res.ShortNames {
		if strings.ToLower(short) == kind {
			return true
		}
	}
	return false
}
