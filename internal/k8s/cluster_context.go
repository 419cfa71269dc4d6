package k8s

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/client-go/rest"

	"github.com/giantswarm/mcp-hive/internal/credentials"
	"github.com/giantswarm/mcp-hive/internal/logging"
)

// ClusterContext is the connection state for one kubeconfig context: the
// control-plane endpoint, the credential currently in use and the clients
// built from it.
//
// Reads are lock free. Refreshes are serialized per context; a caller that
// arrives while a refresh is in flight waits for it and uses its result.
type ClusterContext struct {
	name           string
	kubeconfigPath string
	endpoint       string
	base           *rest.Config

	provider credentials.Provider
	factory  ConnectionFactory
	margin   time.Duration
	now      func() time.Time
	logger   *slog.Logger

	state   atomic.Pointer[contextState]
	refresh chan struct{}
}

type contextState struct {
	cred        *credentials.Credential
	conn        *Connection
	refreshedAt time.Time
}

// ContextStatus is a point-in-time view of a ClusterContext.
type ContextStatus struct {
	Name        string    `json:"name"`
	Connected   bool      `json:"connected"`
	Fresh       bool      `json:"fresh"`
	ExpiresAt   time.Time `json:"expiresAt,omitempty"`
	RefreshedAt time.Time `json:"refreshedAt,omitempty"`
}

// invalidator is implemented by providers that cache, such as
// credentials.Resolver.
type invalidator interface {
	Invalidate(contextName string)
}

func newClusterContext(name, kubeconfigPath string, base *rest.Config, provider credentials.Provider,
	factory ConnectionFactory, margin time.Duration, now func() time.Time, logger *slog.Logger) *ClusterContext {

	return &ClusterContext{
		name:           name,
		kubeconfigPath: kubeconfigPath,
		endpoint:       base.Host,
		base:           base,
		provider:       provider,
		factory:        factory,
		margin:         margin,
		now:            now,
		logger:         logging.WithKubeContext(logger, name),
		refresh:        make(chan struct{}, 1),
	}
}

// Name returns the kubeconfig context name.
func (c *ClusterContext) Name() string {
	return c.name
}

// Status reports the state of the context's credential.
func (c *ClusterContext) Status() ContextStatus {
	status := ContextStatus{Name: c.name}
	st := c.state.Load()
	if st == nil {
		return status
	}
	status.Connected = true
	status.Fresh = st.cred.Valid(c.now(), c.margin)
	status.ExpiresAt = st.cred.ExpiresAt
	status.RefreshedAt = st.refreshedAt
	return status
}

// usable returns the current state if its credential is outside the refresh
// margin and it is not the state the caller saw rejected.
func (c *ClusterContext) usable(rejected *contextState) *contextState {
	st := c.state.Load()
	if st == nil || st == rejected {
		return nil
	}
	if !st.cred.Valid(c.now(), c.margin) {
		return nil
	}
	return st
}

// ensureFresh returns a state whose credential is valid for at least the
// refresh margin, resolving a new credential if needed. A non-nil rejected
// state forces a refresh unless another caller already replaced it.
func (c *ClusterContext) ensureFresh(ctx context.Context, rejected *contextState) (*contextState, error) {
	if st := c.usable(rejected); st != nil {
		return st, nil
	}

	select {
	case c.refresh <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-c.refresh }()

	if st := c.usable(rejected); st != nil {
		return st, nil
	}

	forced := rejected != nil
	if forced {
		if inv, ok := c.provider.(invalidator); ok {
			inv.Invalidate(c.name)
		}
	}

	cred, err := c.provider.Resolve(ctx, c.name)
	if err != nil {
		return nil, err
	}
	conn, err := c.factory.NewConnection(c.base, cred)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to context %q: %w", c.name, err)
	}

	st := &contextState{cred: cred, conn: conn, refreshedAt: c.now()}
	c.state.Store(st)

	if !cred.Valid(c.now(), c.margin) {
		c.logger.Warn("resolved credential expires within the refresh margin",
			slog.Time("expires_at", cred.ExpiresAt),
			slog.Duration("margin", c.margin))
	}
	c.logger.Info("cluster credential refreshed",
		slog.Bool("forced", forced),
		slog.Any("credential", cred),
		logging.Host(c.endpoint))
	return st, nil
}

// do runs fn against a fresh connection. If the API server rejects the
// credential and no forced refresh has happened yet in this invocation, the
// credential is refreshed once and fn runs again.
func (c *ClusterContext) do(ctx context.Context, forced *bool, fn func(context.Context, *Connection) error) error {
	st, err := c.ensureFresh(ctx, nil)
	if err != nil {
		return err
	}

	err = fn(ctx, st.conn)
	if err == nil || *forced || !apierrors.IsUnauthorized(err) {
		return err
	}

	*forced = true
	c.logger.Info("cluster rejected credential, forcing refresh")

	st, err = c.ensureFresh(ctx, st)
	if err != nil {
		return err
	}
	return fn(ctx, st.conn)
}
