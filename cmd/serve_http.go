package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/giantswarm/mcp-hive/internal/instrumentation"
	"github.com/giantswarm/mcp-hive/internal/logging"
	"github.com/giantswarm/mcp-hive/internal/server"
	"github.com/giantswarm/mcp-hive/internal/server/middleware"
)

const (
	// shutdownTimeout bounds the graceful stop of the HTTP listeners.
	shutdownTimeout = 30 * time.Second

	// maxRequestBytes caps a single protocol message body.
	maxRequestBytes = 4 << 20
)

// httpServe is one running HTTP transport.
type httpServe struct {
	name     string
	config   ServeConfig
	sc       *server.ServerContext
	mux      *http.ServeMux
	server   *http.Server
	shutdown func(context.Context) error
}

func newHTTPServe(name string, config ServeConfig, sc *server.ServerContext) *httpServe {
	mux := http.NewServeMux()
	s := &httpServe{
		name:   name,
		config: config,
		sc:     sc,
		mux:    mux,
		server: &http.Server{
			Handler:           httpHandler(mux, config, sc.InstrumentationProvider()),
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
	}
	s.shutdown = s.server.Shutdown
	return s
}

// httpHandler wraps mux with the middleware shared by both HTTP transports.
func httpHandler(mux http.Handler, config ServeConfig, provider *instrumentation.Provider) http.Handler {
	handler := mux
	handler = middleware.MaxRequestSize(maxRequestBytes)(handler)
	handler = middleware.CORS(config.AllowedOrigins)(handler)
	handler = middleware.SecurityHeaders(middleware.SecurityHeadersConfig{})(handler)
	handler = middleware.HTTPMetrics(provider, metricRoutes(config))(handler)
	return handler
}

// metricRoutes are the path labels request metrics are recorded under.
func metricRoutes(config ServeConfig) middleware.Routes {
	routes := middleware.Routes{config.HTTPEndpoint, config.SSEEndpoint, config.MessageEndpoint}
	for path := range reservedPaths {
		routes = append(routes, path)
	}
	return routes
}

// runStreamableHTTPServer runs the server with Streamable HTTP transport
func runStreamableHTTPServer(ctx context.Context, mcpSrv *mcpserver.MCPServer, config ServeConfig, sc *server.ServerContext) error {
	s := newHTTPServe(transportStreamableHTTP, config, sc)

	mcpHandler := mcpserver.NewStreamableHTTPServer(mcpSrv,
		mcpserver.WithEndpointPath(config.HTTPEndpoint),
		mcpserver.WithStateLess(config.Stateless),
		mcpserver.WithStreamableHTTPServer(s.server),
	)
	s.mux.Handle(config.HTTPEndpoint, mcpHandler)
	s.shutdown = mcpHandler.Shutdown

	return s.run(ctx, slog.String("endpoint", config.HTTPEndpoint), slog.Bool("stateless", config.Stateless))
}

// run binds the address, serves until ctx is done and shuts down gracefully.
// The address is bound before serving so a port in use fails startup.
func (s *httpServe) run(ctx context.Context, attrs ...any) error {
	logger := s.sc.Logger()

	listener, err := net.Listen("tcp", s.config.HTTPAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.HTTPAddr, err)
	}

	healthChecker := server.NewHealthChecker(s.sc)
	healthChecker.RegisterHealthEndpoints(s.mux)

	// Start metrics server if enabled
	var metricsServer *server.MetricsServer
	if provider := s.sc.InstrumentationProvider(); s.config.MetricsAddr != "" && provider != nil && provider.Enabled() {
		metricsServer, err = startMetricsServer(s.config.MetricsAddr, provider, logger)
		if err != nil {
			_ = listener.Close()
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	logger.Info(s.name+" server starting", append([]any{
		slog.String("addr", listener.Addr().String()),
		slog.Any("health_endpoints", []string{server.LivenessPath, server.ReadinessPath, server.DetailedHealthPath}),
	}, attrs...)...)

	// Start server in goroutine
	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverDone <- err
		}
	}()

	// Wait for either shutdown signal or server completion
	var result error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, stopping HTTP server")
		healthChecker.SetReady(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := s.sc.Shutdown(); err != nil {
			logger.Warn("error during server context shutdown", logging.Err(err))
		}
		if err := s.shutdown(shutdownCtx); err != nil {
			result = fmt.Errorf("error shutting down HTTP server: %w", err)
		}
	case err := <-serverDone:
		if err != nil {
			result = fmt.Errorf("HTTP server stopped with error: %w", err)
		}
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("error shutting down metrics server", logging.Err(err))
		}
	}

	if result == nil {
		logger.Info("HTTP server gracefully stopped")
	}
	return result
}

// startMetricsServer starts the dedicated metrics server on a separate port.
// The address is bound before returning.
func startMetricsServer(addr string, provider *instrumentation.Provider, logger *slog.Logger) (*server.MetricsServer, error) {
	metricsServer, err := server.NewMetricsServer(server.MetricsServerConfig{
		Addr:                    addr,
		InstrumentationProvider: provider,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics server: %w", err)
	}
	if err := metricsServer.Listen(); err != nil {
		return nil, err
	}

	// Start metrics server in background
	go func() {
		if err := metricsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", logging.Err(err))
		}
	}()

	logger.Info("metrics server started", slog.String("addr", addr), slog.String("endpoint", "/metrics"))
	return metricsServer, nil
}
