// Package server holds the ServerContext shared by tool handlers and the
// HTTP infrastructure around the MCP transports.
//
// A ServerContext carries the cluster client, the hive inventory, the
// session tracker, the instrumentation provider and the server Config.
// Dependencies are injected with functional options:
//
//	sc, err := server.NewServerContext(ctx,
//		server.WithK8sClient(client),
//		server.WithLogger(logger),
//		server.WithNonDestructiveMode(true),
//		server.WithToolTimeout(30*time.Second),
//	)
//	if err != nil {
//		return err
//	}
//	defer sc.Shutdown()
//
// Shutdown cancels every in-flight call and closes all tracked sessions.
//
// HealthChecker serves /healthz, /readyz and /healthz/detailed. The detailed
// endpoint reports credential freshness for every kube context used so far.
// MetricsServer exposes Prometheus metrics on a separate listener.
package server
