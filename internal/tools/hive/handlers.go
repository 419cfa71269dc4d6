package hive

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	fleet "github.com/giantswarm/mcp-hive/internal/hive"
	"github.com/giantswarm/mcp-hive/internal/server"
	"github.com/giantswarm/mcp-hive/internal/tools"
	"github.com/giantswarm/mcp-hive/internal/tools/output"
)

// clusterDetails is a cluster with its raw objects sanitized for output.
type clusterDetails struct {
	fleet.Cluster
	Claim      map[string]any `json:"claim,omitempty"`
	Deployment map[string]any `json:"deployment,omitempty"`
}

func newClusterDetails(c *fleet.Cluster) clusterDetails {
	return clusterDetails{
		Cluster:    *c,
		Claim:      output.SanitizeObject(c.Claim),
		Deployment: output.SanitizeObject(c.Deployment),
	}
}

// inventoryError maps inventory sentinel errors onto tool errors. Cluster
// errors pass through unchanged.
func inventoryError(err error) error {
	switch {
	case errors.Is(err, fleet.ErrClusterNotFound):
		return &tools.ToolError{Kind: tools.KindNotFound, Message: err.Error(), Err: err}
	case errors.Is(err, fleet.ErrInvalidPowerState):
		return &tools.ToolError{Kind: tools.KindInvalidArguments, Message: err.Error(), Err: err}
	case errors.Is(err, fleet.ErrNoDeployment):
		return &tools.ToolError{Kind: tools.KindInvalid, Message: err.Error(), Err: err}
	default:
		return err
	}
}

func handleListClusters(ctx context.Context, call *tools.Call, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	clusters, err := sc.Inventory().Clusters(ctx, call.KubeContext())
	if err != nil {
		return nil, err
	}

	filter := fleet.Filter{
		Platform: strings.TrimSpace(call.String("platform_filter")),
		Name:     strings.TrimSpace(call.String("name_filter")),
		State:    strings.TrimSpace(call.String("state_filter")),
		Region:   strings.TrimSpace(call.String("region_filter")),
		Owner:    strings.TrimSpace(call.String("owner_filter")),
	}
	table := fleet.FormatTable(filter.Apply(clusters), call.Bool("include_details", false))
	text, _ := output.CapText(table, output.MaxResultBytes)
	return mcp.NewToolResultText(text), nil
}

func handleClusterDetails(ctx context.Context, call *tools.Call, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	name, err := call.RequiredString("cluster_name")
	if err != nil {
		return nil, err
	}

	cluster, err := sc.Inventory().Find(ctx, call.KubeContext(), name)
	if err != nil {
		return nil, inventoryError(err)
	}
	return tools.JSONResult(newClusterDetails(cluster))
}

func handleCountByPlatform(ctx context.Context, call *tools.Call, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	clusters, err := sc.Inventory().Clusters(ctx, call.KubeContext())
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(fleet.PlatformStatistics(clusters)), nil
}

func handleCountByState(ctx context.Context, call *tools.Call, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	clusters, err := sc.Inventory().Clusters(ctx, call.KubeContext())
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(fleet.StateStatistics(clusters)), nil
}

func handleOwners(ctx context.Context, call *tools.Call, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	clusters, err := sc.Inventory().Clusters(ctx, call.KubeContext())
	if err != nil {
		return nil, err
	}
	return tools.JSONResult(fleet.Owners(clusters))
}

func handleTestConnection(ctx context.Context, call *tools.Call, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	report, err := sc.Inventory().Probe(ctx, call.KubeContext())
	if err != nil {
		return nil, err
	}

	expires := "unknown"
	if !report.ExpiresAt.IsZero() {
		expires = report.ExpiresAt.UTC().Format(time.RFC3339)
	}
	lines := []string{
		fmt.Sprintf("Successfully connected to the Hive cluster (context %s)", report.Context),
		fmt.Sprintf("Namespace: %s", report.Namespace),
		fmt.Sprintf("ClusterClaims: %d", report.Claims),
		fmt.Sprintf("API server version: %s", report.ServerVersion),
		fmt.Sprintf("Credential expires: %s", expires),
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func handleSetPowerState(ctx context.Context, call *tools.Call, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	name, err := call.RequiredString("cluster_name")
	if err != nil {
		return nil, err
	}
	state, err := call.RequiredString("power_state")
	if err != nil {
		return nil, err
	}

	cluster, err := sc.Inventory().SetPowerState(ctx, call.KubeContext(), name, state)
	if err != nil {
		return nil, inventoryError(err)
	}

	verb := "Resuming"
	if cluster.PowerState == fleet.PowerStateHibernating {
		verb = "Hibernating"
	}
	msg := fmt.Sprintf("%s cluster %s: power state set to %s", verb, cluster.Name, cluster.PowerState)
	if sc.Config().DryRun {
		msg += " (dry run, nothing was changed)"
	}
	return mcp.NewToolResultText(msg), nil
}
