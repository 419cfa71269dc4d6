package server

import (
	"errors"
	"log/slog"
	"time"

	"github.com/giantswarm/mcp-hive/internal/hive"
	"github.com/giantswarm/mcp-hive/internal/instrumentation"
	"github.com/giantswarm/mcp-hive/internal/k8s"
	"github.com/giantswarm/mcp-hive/internal/mcp/session"
)

// Option is a functional option for configuring ServerContext.
type Option func(*ServerContext) error

// WithK8sClient sets the Kubernetes client for the ServerContext.
func WithK8sClient(client k8s.Client) Option {
	return func(sc *ServerContext) error {
		if client == nil {
			return ErrMissingK8sClient
		}
		sc.k8sClient = client
		return nil
	}
}

// WithInventory sets the Hive inventory. Without it one is built from the
// k8s client and the Hive settings of the configuration.
func WithInventory(inventory *hive.Inventory) Option {
	return func(sc *ServerContext) error {
		sc.inventory = inventory
		return nil
	}
}

// WithLogger sets the logger for the ServerContext.
func WithLogger(logger *slog.Logger) Option {
	return func(sc *ServerContext) error {
		if logger == nil {
			return ErrMissingLogger
		}
		sc.logger = logger
		return nil
	}
}

// WithConfig sets the configuration for the ServerContext.
func WithConfig(config *Config) Option {
	return func(sc *ServerContext) error {
		if config == nil {
			return ErrMissingConfig
		}
		clone := *config
		sc.config = &clone
		return nil
	}
}

// WithServerName sets the name reported in the initialize response.
func WithServerName(name string) Option {
	return func(sc *ServerContext) error {
		sc.config.ServerName = name
		return nil
	}
}

// WithHiveNamespace sets the namespace holding the ClusterClaims.
func WithHiveNamespace(namespace string) Option {
	return func(sc *ServerContext) error {
		if namespace == "" {
			return ErrMissingNamespace
		}
		sc.config.HiveNamespace = namespace
		return nil
	}
}

// WithNonDestructiveMode enables or disables non-destructive mode.
func WithNonDestructiveMode(enabled bool) Option {
	return func(sc *ServerContext) error {
		sc.config.NonDestructiveMode = enabled
		return nil
	}
}

// WithDryRun enables or disables dry-run mode.
func WithDryRun(enabled bool) Option {
	return func(sc *ServerContext) error {
		sc.config.DryRun = enabled
		return nil
	}
}

// WithToolTimeout sets the execution budget of a tool call.
func WithToolTimeout(timeout time.Duration) Option {
	return func(sc *ServerContext) error {
		if timeout <= 0 {
			return ErrInvalidToolTimeout
		}
		sc.config.ToolTimeout = timeout
		return nil
	}
}

// WithSessionTracker sets the tracker of protocol sessions and calls.
func WithSessionTracker(tracker *session.Tracker) Option {
	return func(sc *ServerContext) error {
		sc.sessions = tracker
		return nil
	}
}

// WithInstrumentationProvider enables metrics and tracing.
func WithInstrumentationProvider(provider *instrumentation.Provider) Option {
	return func(sc *ServerContext) error {
		sc.instrumentationProvider = provider
		return nil
	}
}

// Errors returned by NewServerContext.
var (
	ErrMissingK8sClient   = errors.New("kubernetes client is required")
	ErrMissingLogger      = errors.New("logger is required")
	ErrMissingConfig      = errors.New("configuration is required")
	ErrInvalidToolTimeout = errors.New("tool timeout must be positive")
	ErrMissingNamespace   = errors.New("hive namespace is required")
)
