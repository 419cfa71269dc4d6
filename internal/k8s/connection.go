package k8s

import (
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"k8s.io/apimachinery/pkg/api/meta"
	"k8s.io/client-go/discovery"
	"k8s.io/client-go/discovery/cached/memory"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/restmapper"

	"github.com/giantswarm/mcp-hive/internal/credentials"
)

// Connection bundles the clients built for one credential. A connection is
// replaced, never mutated, when its credential is refreshed.
type Connection struct {
	Dynamic   dynamic.Interface
	Clientset kubernetes.Interface
	Discovery discovery.DiscoveryInterface

	// Mapper is used for kinds that are neither builtin nor found by name.
	// It may be nil.
	Mapper meta.RESTMapper

	Host string
}

// ConnectionFactory builds a Connection from the context's base REST config
// and a freshly resolved credential.
type ConnectionFactory interface {
	NewConnection(base *rest.Config, cred *credentials.Credential) (*Connection, error)
}

// RESTConnectionFactory builds real client-go clients.
type RESTConnectionFactory struct {
	QPS     float32
	Burst   int
	Timeout time.Duration
}

// NewConnection implements ConnectionFactory.
func (f RESTConnectionFactory) NewConnection(base *rest.Config, cred *credentials.Credential) (*Connection, error) {
	cfg := AuthenticatedConfig(base, cred)
	cfg.QPS = f.QPS
	cfg.Burst = f.Burst
	cfg.Timeout = f.Timeout
	if cfg.QPS == 0 {
		cfg.QPS = DefaultQPSLimit
	}
	if cfg.Burst == 0 {
		cfg.Burst = DefaultBurstLimit
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	clientset, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create clientset: %w", err)
	}
	dynamicClient, err := dynamic.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create dynamic client: %w", err)
	}

	cached := memory.NewMemCacheClient(clientset.Discovery())
	return &Connection{
		Dynamic:   dynamicClient,
		Clientset: clientset,
		Discovery: cached,
		Mapper:    restmapper.NewDeferredDiscoveryRESTMapper(cached),
		Host:      cfg.Host,
	}, nil
}

// AuthenticatedConfig returns a copy of base that authenticates with cred
// only. Any authentication configured in the kubeconfig itself, including
// exec plugins, is stripped so client-go never runs the plugin on its own.
func AuthenticatedConfig(base *rest.Config, cred *credentials.Credential) *rest.Config {
	cfg := rest.CopyConfig(base)
	cfg.BearerToken = ""
	cfg.BearerTokenFile = ""
	cfg.Username = ""
	cfg.Password = ""
	cfg.ExecProvider = nil
	cfg.AuthProvider = nil
	cfg.TLSClientConfig.CertFile = ""
	cfg.TLSClientConfig.KeyFile = ""
	cfg.TLSClientConfig.CertData = nil
	cfg.TLSClientConfig.KeyData = nil

	if len(cred.ClientCertificateData) > 0 {
		cfg.TLSClientConfig.CertData = cred.ClientCertificateData
		cfg.TLSClientConfig.KeyData = cred.ClientKeyData
	}
	if cred.Token != "" {
		source := oauth2.StaticTokenSource(cred.OAuth2Token())
		cfg.Wrap(func(rt http.RoundTripper) http.RoundTripper {
			return &oauth2.Transport{Source: source, Base: rt}
		})
	}
	return cfg
}
