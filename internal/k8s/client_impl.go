package k8s

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"k8s.io/client-go/tools/clientcmd"
	clientcmdapi "k8s.io/client-go/tools/clientcmd/api"

	"github.com/giantswarm/mcp-hive/internal/credentials"
	"github.com/giantswarm/mcp-hive/internal/instrumentation"
	"github.com/giantswarm/mcp-hive/internal/logging"
	"github.com/giantswarm/mcp-hive/internal/retry"
)

// kubernetesClient implements the Client interface using client-go. It
// keeps one ClusterContext per context name ever requested.
type kubernetesClient struct {
	config         ClientConfig
	kubeconfig     *clientcmdapi.Config
	defaultContext string

	mu       sync.Mutex
	contexts map[string]*ClusterContext

	logger  *slog.Logger
	metrics *instrumentation.Metrics
}

var _ Client = (*kubernetesClient)(nil)

// ClientConfig holds configuration for the Kubernetes client.
type ClientConfig struct {
	// Kubeconfig settings. A non-nil Kubeconfig is used as is and
	// KubeconfigPath is only recorded.
	KubeconfigPath string
	Kubeconfig     *clientcmdapi.Config
	Context        string

	// Provider resolves credentials for contexts. Required.
	Provider credentials.Provider

	// Factory builds clients for a credential. Defaults to
	// RESTConnectionFactory with the performance settings below.
	Factory ConnectionFactory

	// RefreshMargin is how long before expiry a credential is replaced.
	RefreshMargin time.Duration

	// Retry bounds retries of throttled and unavailable operations.
	Retry retry.Policy

	// DryRun sends every mutation as a server-side dry run.
	DryRun bool

	// Performance settings
	QPSLimit   float32
	BurstLimit int
	Timeout    time.Duration

	Logger  *slog.Logger
	Metrics *instrumentation.Metrics
	Now     func() time.Time
}

// LoadKubeconfig reads the kubeconfig at path. An empty path uses the
// client-go default loading rules.
func LoadKubeconfig(path string) (*clientcmdapi.Config, error) {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, path[2:])
	}

	loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, &ConfigurationError{Field: "kubeconfig", Reason: "file is not readable", Err: err}
		}
		loadingRules.ExplicitPath = path
	}

	config := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(loadingRules, &clientcmd.ConfigOverrides{})
	rawConfig, err := config.RawConfig()
	if err != nil {
		return nil, &ConfigurationError{Field: "kubeconfig", Reason: "failed to parse", Err: err}
	}
	return &rawConfig, nil
}

// NewClient creates a new Kubernetes client. The kubeconfig and the default
// context are validated here so configuration problems surface at startup
// as *ConfigurationError.
func NewClient(config ClientConfig) (*kubernetesClient, error) {
	if config.Provider == nil {
		return nil, errors.New("credential provider is required")
	}
	if config.Factory == nil {
		config.Factory = RESTConnectionFactory{
			QPS:     config.QPSLimit,
			Burst:   config.BurstLimit,
			Timeout: config.Timeout,
		}
	}
	if config.RefreshMargin <= 0 {
		config.RefreshMargin = DefaultRefreshMargin
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	kubeconfig := config.Kubeconfig
	if kubeconfig == nil {
		var err error
		if kubeconfig, err = LoadKubeconfig(config.KubeconfigPath); err != nil {
			return nil, err
		}
	}

	defaultContext := config.Context
	if defaultContext == "" {
		defaultContext = kubeconfig.CurrentContext
	}
	if defaultContext == "" {
		return nil, &ConfigurationError{Field: "context", Reason: "no context given and the kubeconfig has no current-context"}
	}

	client := &kubernetesClient{
		config:         config,
		kubeconfig:     kubeconfig,
		defaultContext: defaultContext,
		contexts:       make(map[string]*ClusterContext),
		logger:         config.Logger,
		metrics:        config.Metrics,
	}

	if _, err := client.clusterContext(defaultContext); err != nil {
		return nil, &ConfigurationError{Field: "context", Reason: fmt.Sprintf("context %q is not usable", defaultContext), Err: err}
	}

	client.logger.Info("Using kubeconfig authentication", logging.KubeContext(defaultContext))
	return client, nil
}

// clusterContext returns the ClusterContext for name, creating it on first use.
func (c *kubernetesClient) clusterContext(name string) (*ClusterContext, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cc, ok := c.contexts[name]; ok {
		return cc, nil
	}
	if _, ok := c.kubeconfig.Contexts[name]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrContextNotFound, name)
	}

	base, err := clientcmd.NewNonInteractiveClientConfig(*c.kubeconfig, name, &clientcmd.ConfigOverrides{}, nil).ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to create rest config for context %q: %w", name, err)
	}

	cc := newClusterContext(name, c.config.KubeconfigPath, base, c.config.Provider, c.config.Factory,
		c.config.RefreshMargin, c.config.Now, c.logger)
	c.contexts[name] = cc
	return cc, nil
}

// Invoke implements Client.
func (c *kubernetesClient) Invoke(ctx context.Context, kubeContext string, op Operation) error {
	if kubeContext == "" {
		kubeContext = c.defaultContext
	}

	start := time.Now()
	ctx, span := instrumentation.StartClusterSpan(ctx, kubeContext, op.Name, op.ResourceType, op.Namespace)
	defer span.End()

	logger := logging.WithOperation(logging.WithKubeContext(c.logger, kubeContext), op.Name)

	attempts := 0
	cc, err := c.clusterContext(kubeContext)
	if err == nil {
		policy := c.config.Retry
		policy.OnRetry = func(attempt int, delay time.Duration, err error) {
			class := Classify(err)
			c.metrics.RecordK8sRetry(ctx, op.Name, string(class))
			logger.Warn("cluster operation failed, retrying",
				logging.Attempt(attempt),
				slog.String("error_class", string(class)),
				slog.Duration("backoff", delay),
				logging.SanitizedErr(err))
		}
		retryable := func(err error) bool {
			return ctx.Err() == nil && Classify(err).Retryable()
		}

		forced := false
		err = retry.Do(ctx, policy, retryable, func(ctx context.Context, attempt int) error {
			attempts = attempt
			return cc.do(ctx, &forced, op.Run)
		})
	}

	duration := time.Since(start)
	if err != nil {
		clusterErr := c.newClusterError(ctx, kubeContext, op, attempts, err)
		c.metrics.RecordK8sOperation(ctx, op.Name, op.ResourceType, op.Namespace, instrumentation.StatusError, duration)
		instrumentation.RecordResult(span, clusterErr, instrumentation.Attempts(attempts))
		logger.Debug("cluster operation failed",
			logging.ResourceType(op.ResourceType),
			logging.Namespace(op.Namespace),
			slog.String("error_class", string(clusterErr.Class)),
			logging.Attempt(attempts),
			logging.Duration(duration),
			logging.SanitizedErr(clusterErr.Err))
		return clusterErr
	}

	c.metrics.RecordK8sOperation(ctx, op.Name, op.ResourceType, op.Namespace, instrumentation.StatusSuccess, duration)
	instrumentation.RecordResult(span, nil, instrumentation.Attempts(attempts))
	logger.Debug("cluster operation completed",
		logging.ResourceType(op.ResourceType),
		logging.Namespace(op.Namespace),
		logging.Attempt(attempts),
		logging.Duration(duration))
	return nil
}

func (c *kubernetesClient) newClusterError(ctx context.Context, kubeContext string, op Operation, attempts int, err error) *ClusterError {
	var exhausted *retry.ExhaustedError
	if errors.As(err, &exhausted) {
		err = exhausted.Err
	}

	class := Classify(err)
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		class = ClassTimeout
	case errors.Is(ctx.Err(), context.Canceled):
		class = ClassCancelled
	}

	return &ClusterError{
		Class:        class,
		Operation:    op.Name,
		Context:      kubeContext,
		ResourceType: op.ResourceType,
		Name:         op.ResourceName,
		Attempts:     attempts,
		Err:          err,
	}
}

// DefaultContext implements ClusterManager.
func (c *kubernetesClient) DefaultContext() string {
	return c.defaultContext
}

// DryRun implements ClusterManager.
func (c *kubernetesClient) DryRun() bool {
	return c.config.DryRun
}

// Contexts implements ClusterManager.
func (c *kubernetesClient) Contexts() []string {
	names := make([]string, 0, len(c.kubeconfig.Contexts))
	for name := range c.kubeconfig.Contexts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ContextStatuses implements ClusterManager.
func (c *kubernetesClient) ContextStatuses() []ContextStatus {
	c.mu.Lock()
	contexts := make([]*ClusterContext, 0, len(c.contexts))
	for _, cc := range c.contexts {
		contexts = append(contexts, cc)
	}
	c.mu.Unlock()

	statuses := make([]ContextStatus, 0, len(contexts))
	for _, cc := range contexts {
		statuses = append(statuses, cc.Status())
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Name < statuses[j].Name })
	return statuses
}
