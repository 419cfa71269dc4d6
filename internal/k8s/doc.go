// Package k8s is the cluster client used by every tool.
//
// A Client is built from a kubeconfig and a credentials.Provider. Each kube
// context gets a ClusterContext that holds the most recent credential and a
// Connection (dynamic client, typed clientset and discovery) authenticated
// with it. Connections are built lazily on first use and rebuilt whenever
// the credential is refreshed.
//
// All operations go through Invoke, which:
//
//   - refreshes a credential that is inside its refresh margin before use
//   - refreshes once more and retries when the API server rejects it
//   - retries throttled and unavailable responses with backoff
//   - classifies the final failure into an ErrorClass wrapped in a ClusterError
//
// Resource kinds are resolved through discovery, so kinds, plurals, short
// names and an optional API group ("clusterdeployments.hive.openshift.io")
// are all accepted:
//
//	obj, err := client.Get(ctx, "", k8s.ResourceRef{
//		Kind:      "clusterdeployment",
//		APIGroup:  "hive.openshift.io",
//		Namespace: "cluster-a",
//	}, "cluster-a")
//
// When the client is created with DryRun set, Create, Patch and Delete are
// sent as server-side dry runs.
package k8s
