package hive

import (
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/types"
)

const ownerLabel = "team.example.com/owner"

func claimObj(name, clusterNamespace, pool string) *unstructured.Unstructured {
	spec := map[string]interface{}{}
	if clusterNamespace != "" {
		spec["namespace"] = clusterNamespace
	}
	if pool != "" {
		spec["clusterPoolName"] = pool
	}
	obj := &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "hive.openshift.io/v1",
		"kind":       "ClusterClaim",
		"metadata": map[string]interface{}{
			"name":      name,
			"namespace": DefaultNamespace,
		},
		"spec": spec,
	}}
	return obj
}

func withSubjects(obj *unstructured.Unstructured, names ...string) *unstructured.Unstructured {
	subjects := make([]interface{}, 0, len(names))
	for _, n := range names {
		subjects = append(subjects, map[string]interface{}{"kind": "User", "name": n})
	}
	_ = unstructured.SetNestedSlice(obj.Object, subjects, "spec", "subjects")
	return obj
}

func withClaimReason(obj *unstructured.Unstructured, reason string) *unstructured.Unstructured {
	_ = unstructured.SetNestedSlice(obj.Object, []interface{}{
		map[string]interface{}{"type": "Pending", "status": "False", "reason": reason},
	}, "status", "conditions")
	return obj
}

func cond(condType, status string) map[string]interface{} {
	return map[string]interface{}{"type": condType, "status": status}
}

type deploymentOpts struct {
	platform, region, version string
	powerState                string
	apiURL                    string
	specPlatform              string
	labels                    map[string]string
	conditions                []map[string]interface{}
}

func deploymentObj(namespace, name string, opts deploymentOpts) *unstructured.Unstructured {
	obj := &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "hive.openshift.io/v1",
		"kind":       "ClusterDeployment",
		"metadata": map[string]interface{}{
			"name":      name,
			"namespace": namespace,
		},
		"spec":   map[string]interface{}{},
		"status": map[string]interface{}{},
	}}
	obj.SetUID(types.UID("uid-" + name))

	labels := map[string]string{}
	for k, v := range opts.labels {
		labels[k] = v
	}
	if opts.platform != "" {
		labels[LabelPlatform] = opts.platform
	}
	if opts.region != "" {
		labels[LabelRegion] = opts.region
	}
	if opts.version != "" {
		labels[LabelVersion] = opts.version
	}
	if len(labels) > 0 {
		obj.SetLabels(labels)
	}

	if opts.powerState != "" {
		_ = unstructured.SetNestedField(obj.Object, opts.powerState, "spec", "powerState")
	}
	if opts.specPlatform != "" {
		_ = unstructured.SetNestedMap(obj.Object, map[string]interface{}{opts.specPlatform: map[string]interface{}{}}, "spec", "platform")
	}
	if opts.apiURL != "" {
		_ = unstructured.SetNestedField(obj.Object, opts.apiURL, "status", "apiURL")
		_ = unstructured.SetNestedField(obj.Object, "infra-"+name, "status", "infraID")
	}
	if len(opts.conditions) > 0 {
		conditions := make([]interface{}, 0, len(opts.conditions))
		for _, c := range opts.conditions {
			conditions = append(conditions, c)
		}
		_ = unstructured.SetNestedSlice(obj.Object, conditions, "status", "conditions")
	}
	return obj
}
