package hive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/types"

	"github.com/giantswarm/mcp-hive/internal/k8s"
	"github.com/giantswarm/mcp-hive/internal/logging"
)

const (
	// DefaultNamespace is where ClusterClaims and poolless
	// ClusterDeployments live.
	DefaultNamespace = "rhoai"

	// DefaultConcurrency bounds the parallel ClusterDeployment lookups of a
	// fleet listing.
	DefaultConcurrency = 8

	hiveGroup = "hive.openshift.io"
)

var (
	// ErrClusterNotFound is returned when no claim, cluster namespace or
	// poolless deployment matches a name.
	ErrClusterNotFound = errors.New("cluster not found")

	// ErrNoDeployment is returned when a claimed cluster has no
	// ClusterDeployment to act on yet.
	ErrNoDeployment = errors.New("cluster has no ClusterDeployment")

	// ErrInvalidPowerState is returned for power states other than Running
	// and Hibernating.
	ErrInvalidPowerState = errors.New("power state must be Running or Hibernating")
)

// Config configures an Inventory.
type Config struct {
	// Namespace holding ClusterClaims and poolless ClusterDeployments.
	Namespace string

	// OwnerKey is the label (or annotation) naming a cluster's owner. When
	// empty, owners come from the claim's subjects only.
	OwnerKey string

	// Concurrency bounds parallel deployment lookups.
	Concurrency int

	Logger *slog.Logger
}

// Inventory reads the Hive fleet through the cluster client.
type Inventory struct {
	client      k8s.Client
	namespace   string
	ownerKey    string
	concurrency int
	logger      *slog.Logger
}

// NewInventory returns an Inventory using client.
func NewInventory(client k8s.Client, cfg Config) *Inventory {
	if cfg.Namespace == "" {
		cfg.Namespace = DefaultNamespace
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Inventory{
		client:      client,
		namespace:   cfg.Namespace,
		ownerKey:    cfg.OwnerKey,
		concurrency: cfg.Concurrency,
		logger:      cfg.Logger,
	}
}

// Namespace returns the Hive namespace the inventory reads.
func (i *Inventory) Namespace() string {
	return i.namespace
}

func (i *Inventory) claims(ctx context.Context, kubeContext string) ([]unstructured.Unstructured, error) {
	result, err := i.client.List(ctx, kubeContext,
		k8s.ResourceRef{Kind: "clusterclaims", APIGroup: hiveGroup, Namespace: i.namespace}, k8s.ListOptions{})
	if err != nil {
		return nil, err
	}
	return result.Items, nil
}

func (i *Inventory) deployments(ctx context.Context, kubeContext, namespace string) ([]unstructured.Unstructured, error) {
	result, err := i.client.List(ctx, kubeContext,
		k8s.ResourceRef{Kind: "clusterdeployments", APIGroup: hiveGroup, Namespace: namespace}, k8s.ListOptions{})
	if err != nil {
		return nil, err
	}
	return result.Items, nil
}

// firstDeployment returns the ClusterDeployment of a cluster namespace.
// Hive creates exactly one per namespace; a namespace that is gone or not
// readable yields nil.
func (i *Inventory) firstDeployment(ctx context.Context, kubeContext, namespace string) (*unstructured.Unstructured, error) {
	items, err := i.deployments(ctx, kubeContext, namespace)
	if err != nil {
		switch k8s.ClassOf(err) {
		case k8s.ClassNotFound, k8s.ClassForbidden:
			i.logger.Debug("cluster namespace not readable",
				logging.Namespace(namespace), logging.SanitizedErr(err))
			return nil, nil
		}
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

// Clusters returns every claimed cluster with a cluster namespace followed
// by every poolless deployment.
func (i *Inventory) Clusters(ctx context.Context, kubeContext string) ([]Cluster, error) {
	var claims, poolless []unstructured.Unstructured

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		claims, err = i.claims(gctx, kubeContext)
		return err
	})
	g.Go(func() error {
		var err error
		poolless, err = i.deployments(gctx, kubeContext, i.namespace)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	claimed := make([]*Cluster, len(claims))
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(i.concurrency)
	for idx := range claims {
		claim := &claims[idx]
		ns := claimNamespace(claim)
		if ns == "" {
			continue
		}
		g.Go(func() error {
			deployment, err := i.firstDeployment(gctx, kubeContext, ns)
			if err != nil {
				return fmt.Errorf("reading deployment of claim %q: %w", claim.GetName(), err)
			}
			c := fromClaim(claim, deployment, i.namespace, i.ownerKey)
			claimed[idx] = &c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	clusters := make([]Cluster, 0, len(claims)+len(poolless))
	for _, c := range claimed {
		if c != nil {
			clusters = append(clusters, *c)
		}
	}
	for idx := range poolless {
		clusters = append(clusters, fromPoolless(&poolless[idx], i.ownerKey))
	}

	i.logger.Debug("hive inventory listed",
		slog.Int("claims", len(claims)),
		slog.Int("poolless", len(poolless)),
		slog.Int("clusters", len(clusters)))
	return clusters, nil
}

// Find looks a cluster up by name. Claim names match exactly, with a
// "-claim" suffix or as a "<name>-" prefix; then cluster namespaces match
// exactly or by prefix; then poolless deployment names do. Matching is case
// insensitive.
func (i *Inventory) Find(ctx context.Context, kubeContext, name string) (*Cluster, error) {
	search := strings.ToLower(strings.TrimSpace(name))
	if search == "" {
		return nil, fmt.Errorf("%w: empty name", ErrClusterNotFound)
	}
	prefix := search + "-"

	claims, err := i.claims(ctx, kubeContext)
	if err != nil {
		return nil, err
	}

	for idx := range claims {
		claim := &claims[idx]
		claimName := strings.ToLower(claim.GetName())
		if claimName != search && claimName != search+"-claim" && !strings.HasPrefix(claimName, prefix) {
			continue
		}
		ns := claimNamespace(claim)
		if ns == "" {
			continue
		}
		deployment, err := i.firstDeployment(ctx, kubeContext, ns)
		if err != nil {
			return nil, err
		}
		c := fromClaim(claim, deployment, i.namespace, i.ownerKey)
		return &c, nil
	}

	for idx := range claims {
		claim := &claims[idx]
		ns := strings.ToLower(claimNamespace(claim))
		if ns == "" || (ns != search && !strings.HasPrefix(ns, prefix)) {
			continue
		}
		deployment, err := i.firstDeployment(ctx, kubeContext, claimNamespace(claim))
		if err != nil {
			return nil, err
		}
		if deployment == nil {
			continue
		}
		c := fromClaim(claim, deployment, i.namespace, i.ownerKey)
		return &c, nil
	}

	poolless, err := i.deployments(ctx, kubeContext, i.namespace)
	if err != nil {
		return nil, err
	}
	for idx := range poolless {
		deployment := &poolless[idx]
		deploymentName := strings.ToLower(deployment.GetName())
		if deploymentName == search || strings.HasPrefix(deploymentName, prefix) {
			c := fromPoolless(deployment, i.ownerKey)
			return &c, nil
		}
	}

	return nil, fmt.Errorf("%w: %q", ErrClusterNotFound, name)
}

// NormalizePowerState maps a case-insensitive power state onto the value
// Hive expects.
func NormalizePowerState(state string) (string, error) {
	switch {
	case strings.EqualFold(state, PowerStateRunning):
		return PowerStateRunning, nil
	case strings.EqualFold(state, PowerStateHibernating):
		return PowerStateHibernating, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPowerState, state)
	}
}

// SetPowerState hibernates or resumes a cluster by merge-patching its
// ClusterDeployment's spec.powerState, and returns the cluster as patched.
func (i *Inventory) SetPowerState(ctx context.Context, kubeContext, name, state string) (*Cluster, error) {
	powerState, err := NormalizePowerState(state)
	if err != nil {
		return nil, err
	}

	c, err := i.Find(ctx, kubeContext, name)
	if err != nil {
		return nil, err
	}
	if c.Deployment == nil {
		return nil, fmt.Errorf("%w: %q", ErrNoDeployment, c.Name)
	}

	patch, err := json.Marshal(map[string]interface{}{
		"spec": map[string]interface{}{"powerState": powerState},
	})
	if err != nil {
		return nil, err
	}

	ref := k8s.ResourceRef{Kind: "clusterdeployments", APIGroup: hiveGroup, Namespace: c.Deployment.GetNamespace()}
	patched, err := i.client.Patch(ctx, kubeContext, ref, c.Deployment.GetName(), types.MergePatchType, patch)
	if err != nil {
		return nil, err
	}

	i.logger.Info("cluster power state changed",
		slog.String("cluster", c.Name),
		slog.String("power_state", powerState),
		slog.Bool("dry_run", i.client.DryRun()))

	var updated Cluster
	if c.Claim != nil {
		updated = fromClaim(c.Claim, patched, i.namespace, i.ownerKey)
	} else {
		updated = fromPoolless(patched, i.ownerKey)
	}
	return &updated, nil
}

// ConnectionReport summarizes a successful round trip to the Hive cluster.
type ConnectionReport struct {
	Context       string    `json:"context"`
	Namespace     string    `json:"namespace"`
	Claims        int       `json:"claims"`
	ServerVersion string    `json:"serverVersion"`
	ExpiresAt     time.Time `json:"credentialExpiresAt,omitempty"`
}

// Probe lists the claims and reads the server version.
func (i *Inventory) Probe(ctx context.Context, kubeContext string) (*ConnectionReport, error) {
	if kubeContext == "" {
		kubeContext = i.client.DefaultContext()
	}

	claims, err := i.claims(ctx, kubeContext)
	if err != nil {
		return nil, err
	}
	version, err := i.client.ServerVersion(ctx, kubeContext)
	if err != nil {
		return nil, err
	}

	report := &ConnectionReport{
		Context:       kubeContext,
		Namespace:     i.namespace,
		Claims:        len(claims),
		ServerVersion: version,
	}
	for _, status := range i.client.ContextStatuses() {
		if status.Name == kubeContext {
			report.ExpiresAt = status.ExpiresAt
		}
	}
	return report, nil
}
