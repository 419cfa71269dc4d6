package k8s

import "time"

const (
	// Default performance settings
	DefaultQPSLimit   = 20.0
	DefaultBurstLimit = 30
	DefaultTimeout    = 30 * time.Second

	// DiscoveryTimeout bounds API discovery when a kind is not built in.
	DiscoveryTimeout = 30 * time.Second

	// DefaultRefreshMargin is how long before expiry a credential is
	// refreshed proactively.
	DefaultRefreshMargin = 2 * time.Minute

	// DefaultContext is the kubeconfig context used when none is configured.
	DefaultContext = "hive-cluster"
)

// Operation names used in logs, spans and metrics.
const (
	OpGet           = "get"
	OpList          = "list"
	OpCreate        = "create"
	OpPatch         = "patch"
	OpDelete        = "delete"
	OpLogs          = "logs"
	OpEvents        = "events"
	OpServerVersion = "server_version"
	OpAPIResources  = "api_resources"
	OpAccessReview  = "access_review"
)
