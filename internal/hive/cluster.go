package hive

import (
	"net/url"
	"sort"
	"strings"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

// Labels Hive puts on ClusterDeployments.
const (
	LabelPlatform = "hive.openshift.io/cluster-platform"
	LabelRegion   = "hive.openshift.io/cluster-region"
	LabelVersion  = "hive.openshift.io/version"
)

// Placeholder values shown when a field cannot be determined.
const (
	Unknown       = "unknown"
	UnknownState  = "Unknown"
	NotAvailable  = "N/A"
	PoollessPool  = "N/A (IBM - no pool)"
	PoollessClaim = "N/A (IBM)"
)

// Power states accepted by ClusterDeployment.spec.powerState.
const (
	PowerStateRunning     = "Running"
	PowerStateHibernating = "Hibernating"
)

// conditionStates maps the ClusterDeployment condition types that decide a
// cluster's state when True.
var conditionStates = map[string]string{
	"Hibernating":      "Hibernating",
	"Ready":            "Running",
	"ProvisionStopped": "ProvisionStopped",
	"Resuming":         "Resuming",
}

// Cluster is one managed cluster as seen through its ClusterClaim and
// ClusterDeployment. Deployment derived fields are empty when the claim
// has no deployment yet.
type Cluster struct {
	Name             string `json:"name"`
	Pool             string `json:"pool"`
	Namespace        string `json:"namespace"`
	ClusterNamespace string `json:"cluster_namespace"`
	Pending          string `json:"pending"`
	Owner            string `json:"owner"`

	Platform   string `json:"platform,omitempty"`
	Region     string `json:"region,omitempty"`
	Version    string `json:"version,omitempty"`
	State      string `json:"state,omitempty"`
	PowerState string `json:"power_state,omitempty"`
	APIURL     string `json:"api_url,omitempty"`
	ConsoleURL string `json:"console_url,omitempty"`
	InfraID    string `json:"infra_id,omitempty"`
	ClusterID  string `json:"cluster_id,omitempty"`

	Claim      *unstructured.Unstructured `json:"claim,omitempty"`
	Deployment *unstructured.Unstructured `json:"deployment,omitempty"`
}

// HasDeployment reports whether the cluster's ClusterDeployment was found.
func (c Cluster) HasDeployment() bool {
	return c.Deployment != nil
}

// claimNamespace returns the namespace Hive provisioned the claimed
// cluster into, or "".
func claimNamespace(claim *unstructured.Unstructured) string {
	ns, _, _ := unstructured.NestedString(claim.Object, "spec", "namespace")
	return ns
}

// fromClaim builds a Cluster from a claim and, if found, the deployment in
// the claim's cluster namespace.
func fromClaim(claim, deployment *unstructured.Unstructured, hiveNamespace, ownerKey string) Cluster {
	pool, _, _ := unstructured.NestedString(claim.Object, "spec", "clusterPoolName")
	c := Cluster{
		Name:             orDefault(claim.GetName(), Unknown),
		Pool:             orDefault(pool, NotAvailable),
		Namespace:        hiveNamespace,
		ClusterNamespace: orDefault(claimNamespace(claim), NotAvailable),
		Pending:          pendingReason(claim),
		Owner:            resolveOwner(ownerKey, claim, deployment),
		Claim:            claim,
	}
	if deployment != nil {
		c.applyDeployment(deployment, deployment.GetLabels()[LabelPlatform])
	}
	return c
}

// fromPoolless builds a Cluster from a ClusterDeployment that lives in the
// Hive namespace without a pool or claim.
func fromPoolless(deployment *unstructured.Unstructured, ownerKey string) Cluster {
	ns := orDefault(deployment.GetNamespace(), "rhoai")
	c := Cluster{
		Name:             orDefault(deployment.GetName(), Unknown),
		Pool:             PoollessPool,
		Namespace:        ns,
		ClusterNamespace: ns,
		Pending:          PoollessClaim,
		Owner:            resolveOwner(ownerKey, nil, deployment),
	}

	platform := deployment.GetLabels()[LabelPlatform]
	if platform == "" {
		platform = firstPlatformKey(deployment)
	}
	c.applyDeployment(deployment, platform)
	return c
}

func (c *Cluster) applyDeployment(deployment *unstructured.Unstructured, platform string) {
	labels := deployment.GetLabels()
	powerState, _, _ := unstructured.NestedString(deployment.Object, "spec", "powerState")
	powerState = orDefault(powerState, UnknownState)
	apiURL, _, _ := unstructured.NestedString(deployment.Object, "status", "apiURL")
	infraID, _, _ := unstructured.NestedString(deployment.Object, "status", "infraID")

	c.Platform = orDefault(platform, Unknown)
	c.Region = orDefault(labels[LabelRegion], Unknown)
	c.Version = orDefault(labels[LabelVersion], Unknown)
	c.PowerState = powerState
	c.State = deriveState(deployment, powerState)
	c.APIURL = orDefault(apiURL, NotAvailable)
	c.ConsoleURL = consoleURL(apiURL)
	c.InfraID = orDefault(infraID, NotAvailable)
	c.ClusterID = orDefault(string(deployment.GetUID()), NotAvailable)
	c.Deployment = deployment
}

// pendingReason is the reason of the claim's first condition.
func pendingReason(claim *unstructured.Unstructured) string {
	conditions, _, _ := unstructured.NestedSlice(claim.Object, "status", "conditions")
	if len(conditions) == 0 {
		return UnknownState
	}
	first, ok := conditions[0].(map[string]interface{})
	if !ok {
		return UnknownState
	}
	reason, _ := first["reason"].(string)
	return orDefault(reason, UnknownState)
}

// deriveState walks the deployment's conditions in order; the first known
// condition that is True decides. Otherwise the requested power state is
// reported.
func deriveState(deployment *unstructured.Unstructured, powerState string) string {
	conditions, _, _ := unstructured.NestedSlice(deployment.Object, "status", "conditions")
	for _, raw := range conditions {
		cond, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		condType, _ := cond["type"].(string)
		status, _ := cond["status"].(string)
		if state, known := conditionStates[condType]; known && status == "True" {
			return state
		}
	}
	return powerState
}

// consoleURL derives the web console address from the API URL:
// https://api.<domain>:6443 becomes https://console-openshift-console.apps.<domain>.
func consoleURL(apiURL string) string {
	if apiURL == "" || apiURL == NotAvailable {
		return NotAvailable
	}
	u, err := url.Parse(apiURL)
	if err != nil || u.Hostname() == "" {
		return NotAvailable
	}
	_, domain, found := strings.Cut(u.Hostname(), ".")
	if !found || domain == "" {
		return NotAvailable
	}
	return "https://console-openshift-console.apps." + domain
}

// firstPlatformKey returns the first key of spec.platform (aws, ibmcloud,
// gcp, ...) in sorted order.
func firstPlatformKey(deployment *unstructured.Unstructured) string {
	platform, _, _ := unstructured.NestedMap(deployment.Object, "spec", "platform")
	if len(platform) == 0 {
		return Unknown
	}
	keys := make([]string, 0, len(platform))
	for k := range platform {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys[0]
}

// resolveOwner looks for the owner in the ownerKey label (claim, then
// deployment), then in the annotation of the same key, then in the claim's
// first subject.
func resolveOwner(ownerKey string, claim, deployment *unstructured.Unstructured) string {
	objects := make([]*unstructured.Unstructured, 0, 2)
	for _, obj := range []*unstructured.Unstructured{claim, deployment} {
		if obj != nil {
			objects = append(objects, obj)
		}
	}

	if ownerKey != "" {
		for _, obj := range objects {
			if owner := obj.GetLabels()[ownerKey]; owner != "" {
				return owner
			}
		}
		for _, obj := range objects {
			if owner := obj.GetAnnotations()[ownerKey]; owner != "" {
				return owner
			}
		}
	}

	if claim != nil {
		subjects, _, _ := unstructured.NestedSlice(claim.Object, "spec", "subjects")
		for _, raw := range subjects {
			subject, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}
			if name, _ := subject["name"].(string); name != "" {
				return name
			}
		}
	}
	return Unknown
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
