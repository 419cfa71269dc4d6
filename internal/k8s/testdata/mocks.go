// Package testdata provides fake cluster connections for tests of packages
// that use the k8s client.
package testdata

import (
	"sync"

	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/version"
	fakediscovery "k8s.io/client-go/discovery/fake"
	dynamicfake "k8s.io/client-go/dynamic/fake"
	kubefake "k8s.io/client-go/kubernetes/fake"
	"k8s.io/client-go/rest"
	clientcmdapi "k8s.io/client-go/tools/clientcmd/api"

	"github.com/giantswarm/mcp-hive/internal/credentials"
	"github.com/giantswarm/mcp-hive/internal/k8s"
)

var _ k8s.ConnectionFactory = (*FakeConnectionFactory)(nil)

// ListKinds registers the list kinds the fake dynamic client needs for the
// resources the server works with.
var ListKinds = map[schema.GroupVersionResource]string{
	{Group: "", Version: "v1", Resource: "pods"}:              "PodList",
	{Group: "", Version: "v1", Resource: "configmaps"}:        "ConfigMapList",
	{Group: "", Version: "v1", Resource: "secrets"}:           "SecretList",
	{Group: "", Version: "v1", Resource: "services"}:          "ServiceList",
	{Group: "", Version: "v1", Resource: "namespaces"}:        "NamespaceList",
	{Group: "", Version: "v1", Resource: "events"}:            "EventList",
	{Group: "apps", Version: "v1", Resource: "deployments"}:   "DeploymentList",
	k8s.ClusterClaimsGVR:                                      "ClusterClaimList",
	k8s.ClusterDeploymentsGVR:                                 "ClusterDeploymentList",
	k8s.ClusterPoolsGVR:                                       "ClusterPoolList",
}

// FakeConnectionFactory hands out connections backed by one shared fake
// dynamic client and one shared fake clientset, so state survives
// credential refreshes the way a real cluster's would.
type FakeConnectionFactory struct {
	Dynamic   *dynamicfake.FakeDynamicClient
	Clientset *kubefake.Clientset

	// ServerVersion is what discovery reports, if set.
	ServerVersion *version.Info

	mu     sync.Mutex
	creds  []*credentials.Credential
	byConn map[*k8s.Connection]*credentials.Credential
}

// NewFakeConnectionFactory seeds the dynamic client with dynamicObjects
// (typically *unstructured.Unstructured) and the clientset with
// typedObjects.
func NewFakeConnectionFactory(dynamicObjects []runtime.Object, typedObjects ...runtime.Object) *FakeConnectionFactory {
	return &FakeConnectionFactory{
		Dynamic:   dynamicfake.NewSimpleDynamicClientWithCustomListKinds(runtime.NewScheme(), ListKinds, dynamicObjects...),
		Clientset: kubefake.NewSimpleClientset(typedObjects...),
		byConn:    make(map[*k8s.Connection]*credentials.Credential),
	}
}

// NewConnection implements k8s.ConnectionFactory.
func (f *FakeConnectionFactory) NewConnection(base *rest.Config, cred *credentials.Credential) (*k8s.Connection, error) {
	conn := &k8s.Connection{
		Dynamic:   f.Dynamic,
		Clientset: f.Clientset,
		Discovery: &fakediscovery.FakeDiscovery{Fake: &f.Clientset.Fake, FakedServerVersion: f.ServerVersion},
		Host:      base.Host,
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.creds = append(f.creds, cred)
	f.byConn[conn] = cred
	return conn, nil
}

// Connections returns how many connections were built.
func (f *FakeConnectionFactory) Connections() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.creds)
}

// CredentialFor returns the credential conn was built with.
func (f *FakeConnectionFactory) CredentialFor(conn *k8s.Connection) *credentials.Credential {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byConn[conn]
}

// Actions returns the number of requests both fake clients received.
func (f *FakeConnectionFactory) Actions() int {
	return len(f.Dynamic.Actions()) + len(f.Clientset.Actions())
}

// Kubeconfig returns an in-memory kubeconfig with one context per name,
// each pointing at its own cluster and a token user.
func Kubeconfig(contexts ...string) *clientcmdapi.Config {
	cfg := clientcmdapi.NewConfig()
	for _, name := range contexts {
		cfg.Clusters[name] = &clientcmdapi.Cluster{Server: "https://api." + name + ".example.com:6443"}
		cfg.AuthInfos[name] = &clientcmdapi.AuthInfo{Token: "kubeconfig-token"}
		cfg.Contexts[name] = &clientcmdapi.Context{Cluster: name, AuthInfo: name}
	}
	if len(contexts) > 0 {
		cfg.CurrentContext = contexts[0]
	}
	return cfg
}
