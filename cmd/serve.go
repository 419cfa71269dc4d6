package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	clientcmdapi "k8s.io/client-go/tools/clientcmd/api"

	"github.com/giantswarm/mcp-hive/internal/credentials"
	"github.com/giantswarm/mcp-hive/internal/instrumentation"
	"github.com/giantswarm/mcp-hive/internal/k8s"
	"github.com/giantswarm/mcp-hive/internal/logging"
	"github.com/giantswarm/mcp-hive/internal/mcp/session"
	"github.com/giantswarm/mcp-hive/internal/server"
	"github.com/giantswarm/mcp-hive/internal/tools"
	"github.com/giantswarm/mcp-hive/internal/tools/access"
	"github.com/giantswarm/mcp-hive/internal/tools/cluster"
	contexttools "github.com/giantswarm/mcp-hive/internal/tools/context"
	hivetools "github.com/giantswarm/mcp-hive/internal/tools/hive"
	"github.com/giantswarm/mcp-hive/internal/tools/pod"
	"github.com/giantswarm/mcp-hive/internal/tools/resource"
)

// toolFamilies are registered in this order; tools/list follows it.
var toolFamilies = []struct {
	name     string
	register func(*tools.Registry, *server.ServerContext) error
}{
	{"hive", hivetools.RegisterHiveTools},
	{"resource", resource.RegisterResourceTools},
	{"pod", pod.RegisterPodTools},
	{"context", contexttools.RegisterContextTools},
	{"cluster", cluster.RegisterClusterTools},
	{"access", access.RegisterAccessTools},
}

// newServeCmd creates the Cobra command for starting the MCP server.
func newServeCmd() *cobra.Command {
	flags := &serveFlags{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP Hive server",
		Long: `Start the MCP Hive server to provide tools for monitoring and managing
OpenShift Hive clusters via the Model Context Protocol.

Supports multiple transport types:
  - stdio: Standard input/output (default)
  - sse: Server-Sent Events over HTTP
  - streamable-http: Streamable HTTP transport

Cluster access uses the Hive kubeconfig. Credentials come from the
kubeconfig user of each context, or from --credential-command, which must
print a client.authentication.k8s.io/v1 ExecCredential. They are refreshed
before they expire and never written to logs.

Every flag with an environment fallback uses the variable only when the
flag is not given on the command line.

Mutating tools (create, patch, delete and power state changes) are refused
while --non-destructive is set, unless --dry-run is also set.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := flags.resolve(cmd, os.Getenv)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), config)
		},
	}

	flags.register(cmd)
	return cmd
}

// runServe contains the main server logic with support for multiple transports
func runServe(ctx context.Context, config ServeConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// stdout carries protocol frames on stdio, so logs always go to stderr.
	logger, err := logging.New(os.Stderr, logging.Options{Level: config.LogLevel, Format: config.LogFormat})
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	// Setup graceful shutdown - listen for both SIGINT and SIGTERM
	shutdownCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Initialize OpenTelemetry instrumentation provider
	instrumentationConfig := instrumentation.DefaultConfig()
	instrumentationConfig.ServiceVersion = rootCmd.Version
	instrumentationProvider, err := instrumentation.NewProvider(shutdownCtx, instrumentationConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		if shutdownErr := instrumentationProvider.Shutdown(context.Background()); shutdownErr != nil {
			logger.Warn("error during instrumentation shutdown", logging.Err(shutdownErr))
		}
	}()
	if instrumentationProvider.Enabled() {
		metrics, tracing := instrumentationProvider.Exporters()
		logger.Info("OpenTelemetry instrumentation enabled",
			slog.String("metrics", metrics), slog.String("tracing", tracing))
	}
	metrics := instrumentationProvider.Metrics()

	serverContext, err := newServerContext(shutdownCtx, config, logger, instrumentationProvider, metrics)
	if err != nil {
		return err
	}
	defer func() {
		if err := serverContext.Shutdown(); err != nil {
			logger.Warn("error during server context shutdown", logging.Err(err))
		}
	}()

	mcpSrv, err := newMCPServer(serverContext, rootCmd.Version)
	if err != nil {
		return err
	}

	logger.Info("starting MCP Hive server",
		slog.String("transport", config.Transport),
		logging.KubeContext(serverContext.K8sClient().DefaultContext()),
		slog.Bool("non_destructive", config.NonDestructiveMode),
		slog.Bool("dry_run", config.DryRun))

	// Start the appropriate server based on transport type
	switch config.Transport {
	case transportStdio:
		return runStdioServer(shutdownCtx, mcpSrv, logger)
	case transportSSE:
		return runSSEServer(shutdownCtx, mcpSrv, config, serverContext)
	case transportStreamableHTTP:
		return runStreamableHTTPServer(shutdownCtx, mcpSrv, config, serverContext)
	default:
		return fmt.Errorf("unsupported transport type: %s (supported: stdio, sse, streamable-http)", config.Transport)
	}
}

// newServerContext loads the kubeconfig and wires the credential resolver,
// the cluster client and the session tracker into a ServerContext.
func newServerContext(ctx context.Context, config ServeConfig, logger *slog.Logger, provider *instrumentation.Provider, metrics *instrumentation.Metrics) (*server.ServerContext, error) {
	kubeconfig, err := k8s.LoadKubeconfig(config.Kubeconfig)
	if err != nil {
		return nil, err
	}

	resolver, err := newCredentialResolver(config, kubeconfig, logger, metrics)
	if err != nil {
		return nil, err
	}

	k8sClient, err := k8s.NewClient(k8s.ClientConfig{
		KubeconfigPath: config.Kubeconfig,
		Kubeconfig:     kubeconfig,
		Context:        config.Context,
		Provider:       resolver,
		RefreshMargin:  config.RefreshMargin,
		Retry:          config.Retry,
		DryRun:         config.DryRun,
		QPSLimit:       config.QPSLimit,
		BurstLimit:     config.BurstLimit,
		Timeout:        config.RequestTimeout,
		Logger:         logger,
		Metrics:        metrics,
	})
	if err != nil {
		return nil, err
	}

	tracker := session.NewTracker(session.Config{
		Transport: config.Transport,
		Logger:    logger,
		Metrics:   metrics,
	})

	serverContext, err := server.NewServerContext(ctx,
		server.WithConfig(config.serverConfig(rootCmd.Version)),
		server.WithK8sClient(k8sClient),
		server.WithLogger(logger),
		server.WithSessionTracker(tracker),
		server.WithInstrumentationProvider(provider),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create server context: %w", err)
	}
	return serverContext, nil
}

// newCredentialResolver puts the kubeconfig users, or the configured
// command, behind a Resolver.
func newCredentialResolver(config ServeConfig, kubeconfig *clientcmdapi.Config, logger *slog.Logger, metrics *instrumentation.Metrics) (*credentials.Resolver, error) {
	var cache *credentials.FileCache
	if config.CredentialCacheDir != "" {
		var err error
		if cache, err = credentials.NewFileCache(config.CredentialCacheDir); err != nil {
			return nil, err
		}
	}

	return credentials.NewResolver(credentials.ResolverConfig{
		Provider: credentials.NewKubeconfigProvider(kubeconfig, credentials.KubeconfigOptions{
			CommandTemplate: config.CredentialCommand,
		}),
		Cache:   cache,
		Retry:   config.Retry,
		Margin:  config.RefreshMargin,
		Logger:  logger.With(slog.String("component", "credentials")),
		Metrics: metrics,
	}), nil
}

// newMCPServer creates the protocol server with every tool family
// registered behind one dispatcher.
func newMCPServer(sc *server.ServerContext, version string) (*mcpserver.MCPServer, error) {
	registry := tools.NewRegistry()
	for _, family := range toolFamilies {
		if err := family.register(registry, sc); err != nil {
			return nil, fmt.Errorf("failed to register %s tools: %w", family.name, err)
		}
	}
	dispatcher := tools.NewDispatcher(registry, sc)

	var hooks *mcpserver.Hooks
	tracker := sc.Sessions()
	if tracker != nil {
		hooks = tracker.Hooks()
	}
	opts := append([]mcpserver.ServerOption{
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithRecovery(),
	}, dispatcher.ServerOptions(hooks)...)

	mcpSrv := mcpserver.NewMCPServer(sc.Config().ServerName, version, opts...)
	if tracker != nil {
		tracker.Install(mcpSrv)
	}
	dispatcher.Install(mcpSrv)

	sc.Logger().Debug("tools registered", slog.Int("count", registry.Len()))
	return mcpSrv, nil
}
