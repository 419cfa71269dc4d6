package server

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/giantswarm/mcp-hive/internal/hive"
	"github.com/giantswarm/mcp-hive/internal/instrumentation"
	"github.com/giantswarm/mcp-hive/internal/k8s"
	"github.com/giantswarm/mcp-hive/internal/mcp/session"
)

// ServerContext carries what tool handlers and the HTTP transports share:
// the cluster client, the Hive inventory, sessions, instrumentation and
// Config. It lives as long as the server.
type ServerContext struct {
	k8sClient k8s.Client
	inventory *hive.Inventory
	logger    *slog.Logger
	config    *Config

	sessions                *session.Tracker
	instrumentationProvider *instrumentation.Provider

	ctx    context.Context
	cancel context.CancelFunc

	shutdownOnce sync.Once
	closed       atomic.Bool
}

// NewServerContext applies opts in order. A k8s client is required; the
// Hive inventory is built over it unless WithInventory supplies one.
func NewServerContext(ctx context.Context, opts ...Option) (*ServerContext, error) {
	ctx, cancel := context.WithCancel(ctx)
	sc := &ServerContext{
		ctx:    ctx,
		cancel: cancel,
		logger: slog.Default(),
		config: NewDefaultConfig(),
	}

	for _, opt := range opts {
		if err := opt(sc); err != nil {
			cancel()
			return nil, err
		}
	}
	if sc.k8sClient == nil {
		cancel()
		return nil, ErrMissingK8sClient
	}
	if err := sc.config.Validate(); err != nil {
		cancel()
		return nil, err
	}

	if sc.inventory == nil {
		sc.inventory = hive.NewInventory(sc.k8sClient, hive.Config{
			Namespace: sc.config.HiveNamespace,
			OwnerKey:  sc.config.OwnerLabel,
			Logger:    sc.logger,
		})
	}
	return sc, nil
}

func (sc *ServerContext) K8sClient() k8s.Client      { return sc.k8sClient }
func (sc *ServerContext) Inventory() *hive.Inventory { return sc.inventory }
func (sc *ServerContext) Logger() *slog.Logger       { return sc.logger }

// Config returns a copy of the configuration.
func (sc *ServerContext) Config() Config { return *sc.config }

// Sessions is nil when no tracker was configured.
func (sc *ServerContext) Sessions() *session.Tracker { return sc.sessions }

// InstrumentationProvider may be nil.
func (sc *ServerContext) InstrumentationProvider() *instrumentation.Provider {
	return sc.instrumentationProvider
}

// Metrics is nil, and records nothing, without a provider.
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	return sc.instrumentationProvider.Metrics()
}

// Context is cancelled by Shutdown.
func (sc *ServerContext) Context() context.Context { return sc.ctx }

// Shutdown closes every tracked session, which cancels their in-flight
// calls, and cancels Context. Calls after the first do nothing.
func (sc *ServerContext) Shutdown() error {
	sc.shutdownOnce.Do(func() {
		closed := 0
		if sc.sessions != nil {
			for _, s := range sc.sessions.Sessions() {
				sc.sessions.Close(s.ID)
				closed++
			}
		}
		sc.cancel()
		sc.closed.Store(true)
		sc.logger.Info("server context shut down", slog.Int("sessions_closed", closed))
	})
	return nil
}

// IsShutdown reports whether Shutdown has run.
func (sc *ServerContext) IsShutdown() bool {
	return sc.closed.Load()
}
