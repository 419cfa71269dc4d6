// Package hive provides the MCP tools that report on and operate the
// clusters a Hive instance manages.
package hive

import (
	"github.com/mark3labs/mcp-go/mcp"

	fleet "github.com/giantswarm/mcp-hive/internal/hive"
	"github.com/giantswarm/mcp-hive/internal/server"
	"github.com/giantswarm/mcp-hive/internal/tools"
)

// RegisterHiveTools registers the Hive fleet tools with reg.
func RegisterHiveTools(reg *tools.Registry, sc *server.ServerContext) error {
	namespace := sc.Inventory().Namespace()
	powerNote := ""
	if sc.Config().DryRun {
		powerNote = " The server runs in dry-run mode: the change is validated but not persisted."
	}

	descriptors := []tools.Descriptor{
		{
			Tool: mcp.NewTool("list_all_clusters",
				mcp.WithDescription("List the clusters managed by Hive as a table sorted by name. Claims in the '"+namespace+"' namespace and the ClusterDeployments that live there directly are included. All filters are case-insensitive substring matches and are combined."),
				mcp.WithReadOnlyHintAnnotation(true),
				mcp.WithString("platform_filter", mcp.Description("Only clusters whose platform contains this (e.g. aws, gcp, ibmcloud)")),
				mcp.WithString("name_filter", mcp.Description("Only clusters whose name contains this")),
				mcp.WithString("state_filter", mcp.Description("Only clusters whose state contains this (e.g. Running, Hibernating)")),
				mcp.WithString("region_filter", mcp.Description("Only clusters whose region contains this")),
				mcp.WithString("owner_filter", mcp.Description("Only clusters whose owner contains this")),
				mcp.WithBoolean("include_details", mcp.Description("Show API and console URLs instead of the pool (default: false)")),
				tools.KubeContextParam(),
			),
			Handler: handleListClusters,
		},
		{
			Tool: mcp.NewTool("get_cluster_details",
				mcp.WithDescription("Get everything known about one cluster, including its raw ClusterClaim and ClusterDeployment. The name may be the claim name, the claim name without its '-claim' suffix, the cluster namespace or a poolless ClusterDeployment name."),
				mcp.WithReadOnlyHintAnnotation(true),
				mcp.WithString("cluster_name", mcp.Required(), mcp.Description("Name of the cluster")),
				tools.KubeContextParam(),
			),
			Handler: handleClusterDetails,
		},
		{
			Tool: mcp.NewTool("get_cluster_count_by_platform",
				mcp.WithDescription("Count clusters per platform, broken down by state."),
				mcp.WithReadOnlyHintAnnotation(true),
				tools.KubeContextParam(),
			),
			Handler: handleCountByPlatform,
		},
		{
			Tool: mcp.NewTool("get_cluster_count_by_state",
				mcp.WithDescription("Group clusters by state and list their names."),
				mcp.WithReadOnlyHintAnnotation(true),
				tools.KubeContextParam(),
			),
			Handler: handleCountByState,
		},
		{
			Tool: mcp.NewTool("get_cluster_owners",
				mcp.WithDescription("List the owners of clusters with how many clusters each holds, most clusters first."),
				mcp.WithReadOnlyHintAnnotation(true),
				tools.KubeContextParam(),
			),
			Handler: handleOwners,
		},
		{
			Tool: mcp.NewTool("test_hive_connection",
				mcp.WithDescription("Check that the Hive cluster is reachable with the current credentials. Reports the number of ClusterClaims, the API server version and when the credential expires."),
				mcp.WithReadOnlyHintAnnotation(true),
				tools.KubeContextParam(),
			),
			Handler: handleTestConnection,
		},
		{
			Tool: mcp.NewTool("set_cluster_power_state",
				mcp.WithDescription("Hibernate or resume a cluster by setting the power state of its ClusterDeployment."+powerNote),
				mcp.WithDestructiveHintAnnotation(false),
				mcp.WithString("cluster_name", mcp.Required(), mcp.Description("Name of the cluster")),
				mcp.WithString("power_state",
					mcp.Required(),
					mcp.Description("Desired power state"),
					mcp.Enum(fleet.PowerStateRunning, fleet.PowerStateHibernating),
				),
				tools.KubeContextParam(),
			),
			Handler:   handleSetPowerState,
			Mutating:  true,
			Operation: "power state",
		},
	}

	for _, desc := range descriptors {
		if err := reg.Register(desc); err != nil {
			return err
		}
	}
	return nil
}
