// Package hive reads the fleet of OpenShift clusters managed by a Hive hub.
//
// Clusters come in two shapes. Pooled clusters are claimed through a
// ClusterClaim in the Hive namespace, and their ClusterDeployment lives in
// a per-cluster namespace named by the claim. Poolless clusters (IBM style)
// have their ClusterDeployment directly in the Hive namespace.
//
// Inventory lists and finds clusters and changes their power state through
// the k8s.Client, so every read and write gets the client's credential
// refresh and retry behaviour. The report functions render the fleet as the
// text tables and statistics returned to MCP clients.
package hive
