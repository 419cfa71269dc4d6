// Package testdata provides a server context over fake cluster connections
// and a recording notifier for tool tests.
package testdata

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/runtime"

	credtestdata "github.com/giantswarm/mcp-hive/internal/credentials/testdata"
	"github.com/giantswarm/mcp-hive/internal/k8s"
	k8stestdata "github.com/giantswarm/mcp-hive/internal/k8s/testdata"
	"github.com/giantswarm/mcp-hive/internal/mcp/session"
	"github.com/giantswarm/mcp-hive/internal/server"
)

// DefaultContext is the kube context fixtures are started with.
const DefaultContext = "hive-cluster"

// FixtureConfig configures NewFixture.
type FixtureConfig struct {
	// Objects seed the fake dynamic client.
	Objects []runtime.Object
	// Typed objects seed the fake clientset (pods, events).
	Typed []runtime.Object
	// DryRun makes the cluster client send mutations as dry runs.
	DryRun bool
	// Options are applied to the server context after the defaults.
	Options []server.Option
}

// Fixture is a ServerContext wired to fake cluster connections.
type Fixture struct {
	Factory  *k8stestdata.FakeConnectionFactory
	Provider *credtestdata.FakeProvider
	Client   k8s.Client
	Sessions *session.Tracker
	Server   *server.ServerContext
}

// NewFixture builds a fixture. The context is shut down when the test ends.
func NewFixture(t testing.TB, cfg FixtureConfig) *Fixture {
	t.Helper()

	factory := k8stestdata.NewFakeConnectionFactory(cfg.Objects, cfg.Typed...)
	provider := credtestdata.NewFakeProvider(time.Hour)
	client, err := k8s.NewClient(k8s.ClientConfig{
		Kubeconfig: k8stestdata.Kubeconfig(DefaultContext, "other-cluster"),
		Provider:   provider,
		Factory:    factory,
		DryRun:     cfg.DryRun,
	})
	require.NoError(t, err)

	tracker := session.NewTracker(session.Config{Transport: "stdio"})
	opts := append([]server.Option{
		server.WithK8sClient(client),
		server.WithSessionTracker(tracker),
		server.WithDryRun(cfg.DryRun),
	}, cfg.Options...)

	sc, err := server.NewServerContext(context.Background(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sc.Shutdown() })

	return &Fixture{
		Factory:  factory,
		Provider: provider,
		Client:   client,
		Sessions: tracker,
		Server:   sc,
	}
}

// Notification is one notification captured by RecordingNotifier.
type Notification struct {
	Method string
	Params map[string]any
}

// RecordingNotifier records notifications instead of sending them.
type RecordingNotifier struct {
	mu   sync.Mutex
	sent []Notification
	Err  error
}

// SendNotificationToClient records the notification.
func (n *RecordingNotifier) SendNotificationToClient(_ context.Context, method string, params map[string]any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Err != nil {
		return n.Err
	}
	n.sent = append(n.sent, Notification{Method: method, Params: params})
	return nil
}

// Sent returns the recorded notifications in order.
func (n *RecordingNotifier) Sent() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notification(nil), n.sent...)
}

// Messages returns the message field of every recorded notification.
func (n *RecordingNotifier) Messages() []string {
	var out []string
	for _, s := range n.Sent() {
		if msg, ok := s.Params["message"].(string); ok {
			out = append(out, msg)
		}
	}
	return out
}
