package cmd

import (
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/giantswarm/mcp-hive/internal/hive"
	"github.com/giantswarm/mcp-hive/internal/k8s"
	"github.com/giantswarm/mcp-hive/internal/logging"
	"github.com/giantswarm/mcp-hive/internal/retry"
	"github.com/giantswarm/mcp-hive/internal/server"
	"github.com/giantswarm/mcp-hive/internal/server/middleware"
)

// Transport type constants for the MCP server.
const (
	transportStdio          = "stdio"
	transportSSE            = "sse"
	transportStreamableHTTP = "streamable-http"
)

const (
	defaultKubeconfig = "/root/.kube/hive.yaml"
	defaultHTTPHost   = "0.0.0.0"
	defaultHTTPPort   = "8000"
)

// reservedPaths are mounted on every HTTP transport.
var reservedPaths = map[string]bool{
	server.LivenessPath:       true,
	server.ReadinessPath:      true,
	server.DetailedHealthPath: true,
}

// envValueTrue is the string value used to enable boolean environment variables.
const envValueTrue = "true"

// ServeConfig holds all configuration for the serve command. It is resolved
// once at startup and passed by value afterwards.
type ServeConfig struct {
	// Transport settings
	Transport       string
	HTTPAddr        string
	SSEEndpoint     string
	MessageEndpoint string
	HTTPEndpoint    string
	Stateless       bool
	AllowedOrigins  []string
	MetricsAddr     string

	// Cluster settings
	Kubeconfig     string
	Context        string
	QPSLimit       float32
	BurstLimit     int
	RequestTimeout time.Duration

	// Credentials
	CredentialCommand  string
	CredentialCacheDir string
	RefreshMargin      time.Duration
	Retry              retry.Policy

	// Hive settings
	HiveNamespace string
	OwnerLabel    string

	// Safety
	NonDestructiveMode bool
	DryRun             bool
	ToolTimeout        time.Duration

	// Logging
	LogLevel  string
	LogFormat string
	DebugMode bool
}

// envGetter reads one environment variable. os.Getenv in production.
type envGetter func(key string) string

// serveFlags are the raw flag values bound by newServeCmd.
type serveFlags struct {
	transport       string
	httpAddr        string
	sseEndpoint     string
	messageEndpoint string
	httpEndpoint    string
	stateless       bool
	allowedOrigins  string
	metricsAddr     string

	kubeconfig     string
	kubeContext    string
	qpsLimit       float32
	burstLimit     int
	requestTimeout time.Duration

	credentialCommand  string
	credentialCacheDir string
	refreshMargin      time.Duration
	retryAttempts      int
	retryBackoff       time.Duration
	retryMaxBackoff    time.Duration

	hiveNamespace string
	ownerLabel    string

	nonDestructive bool
	dryRun         bool
	toolTimeout    time.Duration

	logLevel  string
	logFormat string
	debug     bool
}

func (f *serveFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()

	// Transport flags
	flags.StringVar(&f.transport, "transport", transportStdio, "Transport type: stdio, sse, or streamable-http (env MCP_TRANSPORT)")
	flags.StringVar(&f.httpAddr, "http-addr", net.JoinHostPort(defaultHTTPHost, defaultHTTPPort), "HTTP server address for sse and streamable-http (env HOST/PORT or UVICORN_HOST/UVICORN_PORT)")
	flags.StringVar(&f.sseEndpoint, "sse-endpoint", "/sse", "SSE endpoint path (for sse transport)")
	flags.StringVar(&f.messageEndpoint, "message-endpoint", "/message", "Message endpoint path (for sse transport)")
	flags.StringVar(&f.httpEndpoint, "http-endpoint", "/mcp", "HTTP endpoint path (for streamable-http transport)")
	flags.BoolVar(&f.stateless, "stateless", false, "Serve streamable-http without sessions; every request gets an ephemeral session")
	flags.StringVar(&f.allowedOrigins, "allowed-origins", "", "Comma-separated CORS origins allowed on HTTP transports (env ALLOWED_ORIGINS)")
	flags.StringVar(&f.metricsAddr, "metrics-addr", "", "Serve /metrics on this separate address when instrumentation is enabled (env METRICS_ADDR)")

	// Cluster flags
	flags.StringVar(&f.kubeconfig, "kubeconfig", defaultKubeconfig, "Path to the Hive kubeconfig (env HIVE_KUBECONFIG, then KUBECONFIG)")
	flags.StringVar(&f.kubeContext, "context", k8s.DefaultContext, "Kubeconfig context used when a call names none (env HIVE_CONTEXT)")
	flags.Float32Var(&f.qpsLimit, "qps-limit", k8s.DefaultQPSLimit, "QPS limit for Kubernetes API calls")
	flags.IntVar(&f.burstLimit, "burst-limit", k8s.DefaultBurstLimit, "Burst limit for Kubernetes API calls")
	flags.DurationVar(&f.requestTimeout, "request-timeout", k8s.DefaultTimeout, "Timeout of a single Kubernetes API request")

	// Credential flags
	flags.StringVar(&f.credentialCommand, "credential-command", "", "Authentication command run instead of the kubeconfig exec stanza; {context} is replaced by the context name (env HIVE_CREDENTIAL_COMMAND)")
	flags.StringVar(&f.credentialCacheDir, "credential-cache-dir", "", "Directory where credentials are cached across restarts (env HIVE_CREDENTIAL_CACHE_DIR)")
	flags.DurationVar(&f.refreshMargin, "refresh-margin", k8s.DefaultRefreshMargin, "Replace credentials this long before they expire")
	flags.IntVar(&f.retryAttempts, "retry-attempts", retry.DefaultAttempts, "Attempts for retryable cluster and credential failures")
	flags.DurationVar(&f.retryBackoff, "retry-backoff", retry.DefaultInitialBackoff, "Initial retry backoff")
	flags.DurationVar(&f.retryMaxBackoff, "retry-max-backoff", retry.DefaultMaxBackoff, "Maximum retry backoff")

	// Hive flags
	flags.StringVar(&f.hiveNamespace, "hive-namespace", hive.DefaultNamespace, "Namespace holding the ClusterClaims (env HIVE_NAMESPACE)")
	flags.StringVar(&f.ownerLabel, "owner-label", "", "Label or annotation key naming a cluster's owner (env HIVE_OWNER_LABEL)")

	// Safety flags
	flags.BoolVar(&f.nonDestructive, "non-destructive", true, "Refuse mutating tools unless --dry-run is set")
	flags.BoolVar(&f.dryRun, "dry-run", false, "Send every mutation as a server-side dry run")
	flags.DurationVar(&f.toolTimeout, "tool-timeout", server.DefaultToolTimeout, "Execution budget of a tool call (env TOOL_TIMEOUT)")

	// Logging flags
	flags.StringVar(&f.logLevel, "log-level", "info", "Log level: debug, info, warn or error (env LOG_LEVEL)")
	flags.StringVar(&f.logFormat, "log-format", logging.FormatText, "Log format: text or json (env LOG_FORMAT)")
	flags.BoolVar(&f.debug, "debug", false, "Enable debug logging (same as --log-level debug)")
}

// resolve builds the ServeConfig. A flag set on the command line wins over
// its environment variable, which wins over the flag default.
func (f *serveFlags) resolve(cmd *cobra.Command, getenv envGetter) (ServeConfig, error) {
	changed := cmd.Flags().Changed
	str := func(flag string, value *string, keys ...string) {
		if changed(flag) {
			return
		}
		for _, key := range keys {
			if v := strings.TrimSpace(getenv(key)); v != "" {
				*value = v
				return
			}
		}
	}

	str("transport", &f.transport, "MCP_TRANSPORT")
	str("kubeconfig", &f.kubeconfig, "HIVE_KUBECONFIG", "KUBECONFIG")
	str("context", &f.kubeContext, "HIVE_CONTEXT")
	str("credential-command", &f.credentialCommand, "HIVE_CREDENTIAL_COMMAND")
	str("credential-cache-dir", &f.credentialCacheDir, "HIVE_CREDENTIAL_CACHE_DIR")
	str("hive-namespace", &f.hiveNamespace, "HIVE_NAMESPACE")
	str("owner-label", &f.ownerLabel, "HIVE_OWNER_LABEL")
	str("allowed-origins", &f.allowedOrigins, "ALLOWED_ORIGINS")
	str("log-level", &f.logLevel, "LOG_LEVEL")
	str("log-format", &f.logFormat, "LOG_FORMAT")
	str("metrics-addr", &f.metricsAddr, "METRICS_ADDR")

	if !changed("http-addr") {
		f.httpAddr = httpAddrFromEnv(f.httpAddr, getenv)
	}
	if !changed("tool-timeout") {
		if d, ok := parseDurationEnv(getenv("TOOL_TIMEOUT"), "TOOL_TIMEOUT"); ok {
			f.toolTimeout = d
		}
	}
	if !changed("stateless") && getenv("MCP_STATELESS") == envValueTrue {
		f.stateless = true
	}

	origins, err := middleware.ValidateAllowedOrigins(f.allowedOrigins)
	if err != nil {
		return ServeConfig{}, fmt.Errorf("invalid allowed origins: %w", err)
	}

	logLevel := f.logLevel
	if f.debug {
		logLevel = "debug"
	}

	config := ServeConfig{
		Transport:          strings.ToLower(f.transport),
		HTTPAddr:           f.httpAddr,
		SSEEndpoint:        f.sseEndpoint,
		MessageEndpoint:    f.messageEndpoint,
		HTTPEndpoint:       f.httpEndpoint,
		Stateless:          f.stateless,
		AllowedOrigins:     origins,
		MetricsAddr:        f.metricsAddr,
		Kubeconfig:         f.kubeconfig,
		Context:            f.kubeContext,
		QPSLimit:           f.qpsLimit,
		BurstLimit:         f.burstLimit,
		RequestTimeout:     f.requestTimeout,
		CredentialCommand:  f.credentialCommand,
		CredentialCacheDir: f.credentialCacheDir,
		RefreshMargin:      f.refreshMargin,
		Retry: retry.Policy{
			Attempts:       f.retryAttempts,
			InitialBackoff: f.retryBackoff,
			MaxBackoff:     f.retryMaxBackoff,
			Factor:         retry.DefaultFactor,
		},
		HiveNamespace:      f.hiveNamespace,
		OwnerLabel:         f.ownerLabel,
		NonDestructiveMode: f.nonDestructive,
		DryRun:             f.dryRun,
		ToolTimeout:        f.toolTimeout,
		LogLevel:           logLevel,
		LogFormat:          f.logFormat,
		DebugMode:          f.debug,
	}
	return config, config.Validate()
}

// Validate rejects configurations the server cannot start with.
func (c ServeConfig) Validate() error {
	switch c.Transport {
	case transportStdio:
	case transportSSE, transportStreamableHTTP:
		if _, _, err := net.SplitHostPort(c.HTTPAddr); err != nil {
			return fmt.Errorf("invalid HTTP address %q: %w", c.HTTPAddr, err)
		}
	default:
		return fmt.Errorf("unsupported transport type: %s (supported: %s, %s, %s)",
			c.Transport, transportStdio, transportSSE, transportStreamableHTTP)
	}

	for flag, path := range map[string]string{
		"sse-endpoint":     c.SSEEndpoint,
		"message-endpoint": c.MessageEndpoint,
		"http-endpoint":    c.HTTPEndpoint,
	} {
		if !strings.HasPrefix(path, "/") {
			return fmt.Errorf("--%s must start with '/', got %q", flag, path)
		}
		if reservedPaths[path] {
			return fmt.Errorf("--%s cannot be %s, it is served by the health checker", flag, path)
		}
	}

	if c.Transport == transportSSE && c.SSEEndpoint == c.MessageEndpoint {
		return fmt.Errorf("--sse-endpoint and --message-endpoint must differ")
	}
	if c.MetricsAddr != "" {
		if _, _, err := net.SplitHostPort(c.MetricsAddr); err != nil {
			return fmt.Errorf("invalid metrics address %q: %w", c.MetricsAddr, err)
		}
	}
	if c.ToolTimeout <= 0 {
		return fmt.Errorf("--tool-timeout must be positive, got %s", c.ToolTimeout)
	}
	if c.Retry.Attempts < 1 {
		return fmt.Errorf("--retry-attempts must be at least 1, got %d", c.Retry.Attempts)
	}
	if c.HiveNamespace == "" {
		return fmt.Errorf("--hive-namespace must not be empty")
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	switch strings.ToLower(c.LogFormat) {
	case logging.FormatText, logging.FormatJSON:
	default:
		return fmt.Errorf("unknown log format %q (supported: %s, %s)", c.LogFormat, logging.FormatText, logging.FormatJSON)
	}
	return nil
}

// serverConfig is the part of the configuration tool handlers see.
func (c ServeConfig) serverConfig(version string) *server.Config {
	return &server.Config{
		ServerName:         "mcp-hive",
		Version:            version,
		Transport:          c.Transport,
		HiveNamespace:      c.HiveNamespace,
		OwnerLabel:         c.OwnerLabel,
		NonDestructiveMode: c.NonDestructiveMode,
		DryRun:             c.DryRun,
		ToolTimeout:        c.ToolTimeout,
	}
}

// httpAddrFromEnv applies HOST/PORT, falling back to UVICORN_HOST and
// UVICORN_PORT, to the host and port of addr.
func httpAddrFromEnv(addr string, getenv envGetter) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		host, port = defaultHTTPHost, defaultHTTPPort
	}

	pick := func(keys ...string) string {
		for _, key := range keys {
			if v := strings.TrimSpace(getenv(key)); v != "" {
				return v
			}
		}
		return ""
	}
	if h := pick("HOST", "UVICORN_HOST"); h != "" {
		host = h
	}
	if p := pick("PORT", "UVICORN_PORT"); p != "" {
		if _, ok := parseIntEnv(p, "PORT"); ok {
			port = p
		}
	}
	return net.JoinHostPort(host, port)
}

// parseDurationEnv parses a duration from an environment variable value.
// Returns the parsed duration and true if successful, or zero and false if parsing fails.
// Logs a warning if the value is present but invalid.
func parseDurationEnv(value, envName string) (time.Duration, bool) {
	if value == "" {
		return 0, false
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		slog.Warn("ignoring invalid duration", slog.String("env", envName), slog.String("value", value), logging.Err(err))
		return 0, false
	}
	return d, true
}

// parseIntEnv parses an integer from an environment variable value.
func parseIntEnv(value, envName string) (int, bool) {
	if value == "" {
		return 0, false
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		slog.Warn("ignoring invalid integer", slog.String("env", envName), slog.String("value", value), logging.Err(err))
		return 0, false
	}
	return n, true
}
