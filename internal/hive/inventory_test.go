package hive

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/version"
	clienttesting "k8s.io/client-go/testing"

	credtestdata "github.com/giantswarm/mcp-hive/internal/credentials/testdata"
	"github.com/giantswarm/mcp-hive/internal/k8s"
	k8stestdata "github.com/giantswarm/mcp-hive/internal/k8s/testdata"
)

func fleet() []runtime.Object {
	return []runtime.Object{
		withClaimReason(withSubjects(claimObj("bvt-aws-claim", "bvt-aws-x7k2p", "aws-pool"), "John_Smith"), "ClusterClaimed"),
		claimObj("dev-gcp", "dev-gcp-abc12", "gcp-pool"),
		claimObj("pending-claim", "pending-ns", "aws-pool"),
		claimObj("unassigned", "", "aws-pool"),

		deploymentObj("bvt-aws-x7k2p", "bvt-aws-x7k2p", deploymentOpts{
			platform: "aws", region: "us-east-1", version: "4.16.3", powerState: "Running",
			apiURL:     "https://api.bvt-aws.rh-ods.com:6443",
			conditions: []map[string]interface{}{cond("Ready", "True")},
		}),
		deploymentObj("dev-gcp-abc12", "dev-gcp-abc12", deploymentOpts{
			platform: "gcp", region: "us-central1", version: "4.15.9", powerState: "Hibernating",
			labels:     map[string]string{ownerLabel: "Jane_Doe"},
			conditions: []map[string]interface{}{cond("Hibernating", "True")},
		}),
		deploymentObj(DefaultNamespace, "ibm-dev", deploymentOpts{
			region: "us-south", powerState: "Running", specPlatform: "ibmcloud",
		}),
	}
}

type inventoryFixture struct {
	inventory *Inventory
	factory   *k8stestdata.FakeConnectionFactory
	client    k8s.Client
}

func newInventoryFixture(t *testing.T, objects []runtime.Object) inventoryFixture {
	t.Helper()
	factory := k8stestdata.NewFakeConnectionFactory(objects)
	client, err := k8s.NewClient(k8s.ClientConfig{
		Kubeconfig: k8stestdata.Kubeconfig("hive-cluster"),
		Provider:   credtestdata.NewFakeProvider(time.Hour),
		Factory:    factory,
	})
	require.NoError(t, err)
	return inventoryFixture{
		inventory: NewInventory(client, Config{OwnerKey: ownerLabel, Concurrency: 2}),
		factory:   factory,
		client:    client,
	}
}

func byName(clusters []Cluster) map[string]Cluster {
	out := make(map[string]Cluster, len(clusters))
	for _, c := range clusters {
		out[c.Name] = c
	}
	return out
}

func TestInventory_Clusters(t *testing.T) {
	f := newInventoryFixture(t, fleet())

	clusters, err := f.inventory.Clusters(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, clusters, 4, "the claim without a cluster namespace is skipped")

	all := byName(clusters)

	bvt := all["bvt-aws-claim"]
	assert.Equal(t, "aws", bvt.Platform)
	assert.Equal(t, "Running", bvt.State)
	assert.Equal(t, "John_Smith", bvt.Owner)
	assert.Equal(t, "ClusterClaimed", bvt.Pending)
	assert.Equal(t, "https://console-openshift-console.apps.bvt-aws.rh-ods.com", bvt.ConsoleURL)

	gcp := all["dev-gcp"]
	assert.Equal(t, "Hibernating", gcp.State)
	assert.Equal(t, "Jane_Doe", gcp.Owner)

	pending := all["pending-claim"]
	assert.False(t, pending.HasDeployment())

	ibm := all["ibm-dev"]
	assert.Equal(t, PoollessPool, ibm.Pool)
	assert.Equal(t, "ibmcloud", ibm.Platform)
	assert.Equal(t, "Running", ibm.State)

	// Poolless deployments come after the claimed clusters.
	assert.Equal(t, "ibm-dev", clusters[len(clusters)-1].Name)
}

func TestInventory_Clusters_UnreadableNamespace(t *testing.T) {
	f := newInventoryFixture(t, fleet())
	f.factory.Dynamic.PrependReactor("list", "clusterdeployments", func(action clienttesting.Action) (bool, runtime.Object, error) {
		if action.GetNamespace() == "dev-gcp-abc12" {
			return true, nil, apierrors.NewForbidden(k8s.ClusterDeploymentsGVR.GroupResource(), "", errors.New("denied"))
		}
		return false, nil, nil
	})

	clusters, err := f.inventory.Clusters(context.Background(), "")
	require.NoError(t, err)

	gcp := byName(clusters)["dev-gcp"]
	assert.Equal(t, "dev-gcp", gcp.Name)
	assert.False(t, gcp.HasDeployment())
}

func TestInventory_Clusters_ClaimsUnavailable(t *testing.T) {
	f := newInventoryFixture(t, fleet())
	f.factory.Dynamic.PrependReactor("list", "clusterclaims", func(clienttesting.Action) (bool, runtime.Object, error) {
		return true, nil, apierrors.NewServiceUnavailable("hub down")
	})

	_, err := f.inventory.Clusters(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, k8s.ClassUnavailable, k8s.ClassOf(err))
}

func TestInventory_Find(t *testing.T) {
	f := newInventoryFixture(t, fleet())

	tests := []struct {
		search        string
		expected      string
		hasDeployment bool
	}{
		{search: "bvt-aws-claim", expected: "bvt-aws-claim", hasDeployment: true},
		{search: "bvt-aws", expected: "bvt-aws-claim", hasDeployment: true},
		{search: "  BVT ", expected: "bvt-aws-claim", hasDeployment: true},
		{search: "dev-gcp-abc12", expected: "dev-gcp", hasDeployment: true},
		{search: "pending", expected: "pending-claim", hasDeployment: false},
		{search: "ibm", expected: "ibm-dev", hasDeployment: true},
		{search: "ibm-dev", expected: "ibm-dev", hasDeployment: true},
	}

	for _, tt := range tests {
		t.Run(tt.search, func(t *testing.T) {
			c, err := f.inventory.Find(context.Background(), "", tt.search)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, c.Name)
			assert.Equal(t, tt.hasDeployment, c.HasDeployment())
		})
	}

	for _, missing := range []string{"nothing", "", "unassigned"} {
		_, err := f.inventory.Find(context.Background(), "", missing)
		assert.ErrorIs(t, err, ErrClusterNotFound, missing)
	}
}

func TestInventory_SetPowerState(t *testing.T) {
	f := newInventoryFixture(t, fleet())
	ctx := context.Background()

	c, err := f.inventory.SetPowerState(ctx, "", "bvt-aws", "hibernating")
	require.NoError(t, err)
	assert.Equal(t, "bvt-aws-claim", c.Name)
	assert.Equal(t, PowerStateHibernating, c.PowerState)

	stored, err := f.client.Get(ctx, "", k8s.ResourceRef{Kind: "clusterdeployments", APIGroup: "hive.openshift.io", Namespace: "bvt-aws-x7k2p"}, "bvt-aws-x7k2p")
	require.NoError(t, err)
	powerState, _, _ := unstructured.NestedString(stored.Object, "spec", "powerState")
	assert.Equal(t, PowerStateHibernating, powerState)

	ibm, err := f.inventory.SetPowerState(ctx, "", "ibm-dev", "Hibernating")
	require.NoError(t, err)
	assert.Equal(t, PoollessPool, ibm.Pool)
	assert.Equal(t, PowerStateHibernating, ibm.State, "without conditions the requested state shows")

	_, err = f.inventory.SetPowerState(ctx, "", "bvt-aws", "paused")
	assert.ErrorIs(t, err, ErrInvalidPowerState)

	_, err = f.inventory.SetPowerState(ctx, "", "pending", "Running")
	assert.ErrorIs(t, err, ErrNoDeployment)

	_, err = f.inventory.SetPowerState(ctx, "", "nothing", "Running")
	assert.ErrorIs(t, err, ErrClusterNotFound)
}

func TestInventory_Probe(t *testing.T) {
	f := newInventoryFixture(t, fleet())
	f.factory.ServerVersion = &version.Info{GitVersion: "v1.29.8+openshift"}

	report, err := f.inventory.Probe(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "hive-cluster", report.Context)
	assert.Equal(t, DefaultNamespace, report.Namespace)
	assert.Equal(t, 4, report.Claims)
	assert.Equal(t, "v1.29.8+openshift", report.ServerVersion)
	assert.False(t, report.ExpiresAt.IsZero())
}
