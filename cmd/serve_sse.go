package cmd

import (
	"context"
	"log/slog"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/giantswarm/mcp-hive/internal/server"
)

// runSSEServer runs the server with SSE transport
func runSSEServer(ctx context.Context, mcpSrv *mcpserver.MCPServer, config ServeConfig, sc *server.ServerContext) error {
	s := newHTTPServe(transportSSE, config, sc)

	// The SSE server routes both endpoints itself. Handing it our
	// http.Server lets its Shutdown close open event streams first.
	sseServer := mcpserver.NewSSEServer(mcpSrv,
		mcpserver.WithSSEEndpoint(config.SSEEndpoint),
		mcpserver.WithMessageEndpoint(config.MessageEndpoint),
		mcpserver.WithKeepAlive(true),
		mcpserver.WithHTTPServer(s.server),
	)
	s.mux.Handle(config.SSEEndpoint, sseServer)
	s.mux.Handle(config.MessageEndpoint, sseServer)
	s.shutdown = sseServer.Shutdown

	return s.run(ctx,
		slog.String("sse_endpoint", config.SSEEndpoint),
		slog.String("message_endpoint", config.MessageEndpoint))
}
