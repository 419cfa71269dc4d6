package resource

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"

	"github.com/giantswarm/mcp-hive/internal/server"
	"github.com/giantswarm/mcp-hive/internal/tools"
	"github.com/giantswarm/mcp-hive/internal/tools/output"
	"github.com/giantswarm/mcp-hive/internal/tools/testdata"
)

func newDispatcher(t *testing.T, cfg testdata.FixtureConfig) *tools.Dispatcher {
	t.Helper()
	fixture := testdata.NewFixture(t, cfg)
	reg := tools.NewRegistry()
	require.NoError(t, RegisterResourceTools(reg, fixture.Server))
	return tools.NewDispatcher(reg, fixture.Server)
}

func dispatch(d *tools.Dispatcher, tool string, args map[string]any) *mcp.CallToolResult {
	return d.Dispatch(context.Background(), &tools.Call{Tool: tool, Arguments: args})
}

func text(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, result)
	for _, c := range result.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	t.Fatal("result has no text content")
	return ""
}

func decode[T any](t *testing.T, result *mcp.CallToolResult) T {
	t.Helper()
	require.False(t, result.IsError, text(t, result))
	var out T
	require.NoError(t, json.Unmarshal([]byte(text(t, result)), &out))
	return out
}

func requireKind(t *testing.T, result *mcp.CallToolResult, kind string) tools.Envelope {
	t.Helper()
	env, ok := tools.DecodeEnvelope(result)
	require.True(t, ok, "expected an error envelope, got %q", text(t, result))
	assert.Equal(t, kind, env.Kind)
	return env
}

func newObject(apiVersion, kind, namespace, name string, labels map[string]string) *unstructured.Unstructured {
	obj := &unstructured.Unstructured{}
	obj.SetAPIVersion(apiVersion)
	obj.SetKind(kind)
	obj.SetNamespace(namespace)
	obj.SetName(name)
	obj.SetLabels(labels)
	return obj
}

func podObjects() []runtime.Object {
	return []runtime.Object{
		newObject("v1", "Pod", "default", "api-0", map[string]string{"app": "api"}),
		newObject("v1", "Pod", "rhoai", "hive-controllers-0", map[string]string{"app": "hive"}),
		newObject("v1", "Pod", "rhoai", "hive-clustersync-0", map[string]string{"app": "hive", "role": "sync"}),
	}
}

type listResult struct {
	Items    []map[string]any `json:"items"`
	Count    int              `json:"count"`
	Continue string           `json:"continue"`
}

func listedNames(res listResult) []string {
	out := make([]string, 0, len(res.Items))
	for _, item := range res.Items {
		out = append(out, (&unstructured.Unstructured{Object: item}).GetName())
	}
	return out
}

func TestRegisterResourceTools(t *testing.T) {
	fixture := testdata.NewFixture(t, testdata.FixtureConfig{})
	reg := tools.NewRegistry()
	require.NoError(t, RegisterResourceTools(reg, fixture.Server))

	mutating := map[string]bool{}
	for _, desc := range reg.Describe() {
		mutating[desc.Name()] = desc.Mutating
	}
	assert.Equal(t, map[string]bool{
		"kubernetes_list":   false,
		"kubernetes_get":    false,
		"kubernetes_create": true,
		"kubernetes_patch":  true,
		"kubernetes_delete": true,
		"kubernetes_events": false,
	}, mutating)

	assert.Error(t, RegisterResourceTools(reg, fixture.Server), "registering twice fails")
}

func TestRegisterResourceTools_DryRunNote(t *testing.T) {
	fixture := testdata.NewFixture(t, testdata.FixtureConfig{DryRun: true})
	reg := tools.NewRegistry()
	require.NoError(t, RegisterResourceTools(reg, fixture.Server))

	desc, err := reg.Resolve("kubernetes_delete")
	require.NoError(t, err)
	assert.Contains(t, desc.Tool.Description, "dry-run mode")

	desc, err = reg.Resolve("kubernetes_list")
	require.NoError(t, err)
	assert.NotContains(t, desc.Tool.Description, "dry-run mode")
}

func TestHandleList(t *testing.T) {
	d := newDispatcher(t, testdata.FixtureConfig{Objects: podObjects()})

	tests := []struct {
		name     string
		args     map[string]any
		expected []string
	}{
		{name: "default namespace", args: map[string]any{"kind": "pods"}, expected: []string{"api-0"}},
		{name: "namespace", args: map[string]any{"kind": "pods", "namespace": "rhoai"}, expected: []string{"hive-controllers-0", "hive-clustersync-0"}},
		{name: "all namespaces", args: map[string]any{"kind": "pods", "allNamespaces": true}, expected: []string{"api-0", "hive-controllers-0", "hive-clustersync-0"}},
		{name: "label selector", args: map[string]any{"kind": "pods", "namespace": "rhoai", "labelSelector": "role=sync"}, expected: []string{"hive-clustersync-0"}},
		{
			name:     "client-side filter",
			args:     map[string]any{"kind": "pods", "allNamespaces": true, "filter": map[string]any{"metadata.labels.app": "hive"}},
			expected: []string{"hive-controllers-0", "hive-clustersync-0"},
		},
		{name: "empty", args: map[string]any{"kind": "configmaps", "namespace": "rhoai"}, expected: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := decode[listResult](t, dispatch(d, "kubernetes_list", tt.args))
			assert.ElementsMatch(t, tt.expected, listedNames(res))
			assert.Equal(t, len(tt.expected), res.Count)
			require.NotNil(t, res.Items)
		})
	}
}

func TestHandleList_EmptyItemsEncodeAsArray(t *testing.T) {
	d := newDispatcher(t, testdata.FixtureConfig{})

	result := dispatch(d, "kubernetes_list", map[string]any{"kind": "configmaps"})
	require.False(t, result.IsError)
	assert.Contains(t, text(t, result), `"items": []`)
}

func TestHandleList_Errors(t *testing.T) {
	d := newDispatcher(t, testdata.FixtureConfig{Objects: podObjects()})

	tests := []struct {
		name string
		args map[string]any
		kind string
	}{
		{name: "missing kind", args: map[string]any{}, kind: tools.KindInvalidArguments},
		{name: "blank kind", args: map[string]any{"kind": "  "}, kind: tools.KindInvalidArguments},
		{name: "negative limit", args: map[string]any{"kind": "pods", "limit": float64(-1)}, kind: tools.KindInvalidArguments},
		{name: "bad filter path", args: map[string]any{"kind": "pods", "filter": map[string]any{"spec..x": "y"}}, kind: tools.KindInvalidArguments},
		{name: "unknown kind", args: map[string]any{"kind": "widgets"}, kind: tools.KindInvalid},
		{name: "unknown context", args: map[string]any{"kind": "pods", "kubeContext": "nowhere"}, kind: tools.KindInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			requireKind(t, dispatch(d, "kubernetes_list", tt.args), tt.kind)
		})
	}
}

func TestHandleGet_SanitizesOutput(t *testing.T) {
	secret := newObject("v1", "Secret", "rhoai", "pull-secret", nil)
	secret.SetAnnotations(map[string]string{output.LastAppliedAnnotation: `{"data":{"token":"c2VjcmV0"}}`})
	secret.SetManagedFields([]metav1.ManagedFieldsEntry{{Manager: "kubectl", Operation: metav1.ManagedFieldsOperationApply}})
	require.NoError(t, unstructured.SetNestedStringMap(secret.Object, map[string]string{"token": "c2VjcmV0"}, "data"))

	d := newDispatcher(t, testdata.FixtureConfig{Objects: []runtime.Object{secret}})

	result := dispatch(d, "kubernetes_get", map[string]any{"kind": "secret", "name": "pull-secret", "namespace": "rhoai"})
	got := decode[map[string]any](t, result)

	data, found, err := unstructured.NestedStringMap(got, "data")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, map[string]string{"token": output.RedactedValue}, data)

	_, found, _ = unstructured.NestedFieldNoCopy(got, "metadata", "managedFields")
	assert.False(t, found)
	assert.NotContains(t, text(t, result), "c2VjcmV0")
}

func TestHandleGet_NotFound(t *testing.T) {
	d := newDispatcher(t, testdata.FixtureConfig{})

	env := requireKind(t, dispatch(d, "kubernetes_get", map[string]any{"kind": "pods", "name": "missing"}), tools.KindNotFound)
	assert.NotEmpty(t, env.Message)
}

func TestMalformedArgumentsNeverReachTheCluster(t *testing.T) {
	fixture := testdata.NewFixture(t, testdata.FixtureConfig{
		Objects: podObjects(),
		Options: []server.Option{server.WithNonDestructiveMode(false)},
	})
	reg := tools.NewRegistry()
	require.NoError(t, RegisterResourceTools(reg, fixture.Server))
	d := tools.NewDispatcher(reg, fixture.Server)

	tests := []struct {
		tool string
		args map[string]any
	}{
		{tool: "kubernetes_get", args: map[string]any{"kind": "pods", "name": 3.0}},
		{tool: "kubernetes_list", args: map[string]any{"kind": "pods", "limit": "ten"}},
		{tool: "kubernetes_delete", args: map[string]any{"kind": true, "name": "api-0"}},
		{tool: "kubernetes_patch", args: map[string]any{"kind": "pods", "name": "api-0", "patch": "{}", "patchType": "apply"}},
	}

	for _, tt := range tests {
		t.Run(tt.tool, func(t *testing.T) {
			requireKind(t, dispatch(d, tt.tool, tt.args), tools.KindInvalidArguments)
		})
	}
	assert.Equal(t, 0, fixture.Factory.Actions())
}

const configMapYAML = `
apiVersion: v1
kind: ConfigMap
metadata:
  name: hive-settings
  namespace: rhoai
data:
  owner_label: owner
`

func TestHandleCreate(t *testing.T) {
	d := newDispatcher(t, testdata.FixtureConfig{Options: []server.Option{server.WithNonDestructiveMode(false)}})

	created := decode[map[string]any](t, dispatch(d, "kubernetes_create", map[string]any{"manifest": configMapYAML}))
	obj := &unstructured.Unstructured{Object: created}
	assert.Equal(t, "hive-settings", obj.GetName())
	assert.Equal(t, "rhoai", obj.GetNamespace())

	requireKind(t, dispatch(d, "kubernetes_create", map[string]any{"manifest": configMapYAML}), tools.KindConflict)

	override := decode[map[string]any](t, dispatch(d, "kubernetes_create", map[string]any{
		"manifest":  `{"apiVersion":"v1","kind":"ConfigMap","metadata":{"name":"hive-settings"}}`,
		"namespace": "other",
	}))
	assert.Equal(t, "other", (&unstructured.Unstructured{Object: override}).GetNamespace())
}

func TestHandleCreate_InvalidManifest(t *testing.T) {
	d := newDispatcher(t, testdata.FixtureConfig{Options: []server.Option{server.WithNonDestructiveMode(false)}})

	tests := []struct {
		name     string
		manifest string
	}{
		{name: "not yaml", manifest: "kind: [unterminated"},
		{name: "empty", manifest: "---"},
		{name: "scalar", manifest: "just text"},
		{name: "no apiVersion", manifest: "kind: ConfigMap\nmetadata:\n  name: x"},
		{name: "no kind", manifest: "apiVersion: v1\nmetadata:\n  name: x"},
		{name: "no name", manifest: "apiVersion: v1\nkind: ConfigMap"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			requireKind(t, dispatch(d, "kubernetes_create", map[string]any{"manifest": tt.manifest}), tools.KindInvalidArguments)
		})
	}
}

func TestMutatingTools_NonDestructive(t *testing.T) {
	d := newDispatcher(t, testdata.FixtureConfig{})

	tests := []struct {
		tool string
		args map[string]any
	}{
		{tool: "kubernetes_create", args: map[string]any{"manifest": configMapYAML}},
		{tool: "kubernetes_patch", args: map[string]any{"kind": "configmaps", "name": "x", "patch": "{}"}},
		{tool: "kubernetes_delete", args: map[string]any{"kind": "configmaps", "name": "x"}},
	}

	for _, tt := range tests {
		t.Run(tt.tool, func(t *testing.T) {
			requireKind(t, dispatch(d, tt.tool, tt.args), tools.KindNotPermitted)
		})
	}
}

func TestHandlePatchAndDelete(t *testing.T) {
	cm := newObject("v1", "ConfigMap", "rhoai", "hive-settings", nil)
	d := newDispatcher(t, testdata.FixtureConfig{
		Objects: []runtime.Object{cm},
		Options: []server.Option{server.WithNonDestructiveMode(false)},
	})
	target := map[string]any{"kind": "configmaps", "name": "hive-settings", "namespace": "rhoai"}
	with := func(extra map[string]any) map[string]any {
		args := map[string]any{}
		for k, v := range target {
			args[k] = v
		}
		for k, v := range extra {
			args[k] = v
		}
		return args
	}

	patched := decode[map[string]any](t, dispatch(d, "kubernetes_patch", with(map[string]any{
		"patch": `{"metadata":{"labels":{"team":"rhoai"}}}`,
	})))
	assert.Equal(t, "rhoai", (&unstructured.Unstructured{Object: patched}).GetLabels()["team"])

	requireKind(t, dispatch(d, "kubernetes_patch", with(map[string]any{"patch": "{not json"})), tools.KindInvalidArguments)
	requireKind(t, dispatch(d, "kubernetes_patch", with(map[string]any{"patch": "{}", "patchType": "apply"})), tools.KindInvalidArguments)

	result := dispatch(d, "kubernetes_delete", target)
	require.False(t, result.IsError, text(t, result))
	assert.Contains(t, text(t, result), "hive-settings")

	requireKind(t, dispatch(d, "kubernetes_get", target), tools.KindNotFound)
	requireKind(t, dispatch(d, "kubernetes_delete", target), tools.KindNotFound)
}

func TestHandleEvents(t *testing.T) {
	base := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	event := func(name, object string, offset time.Duration) runtime.Object {
		return &corev1.Event{
			ObjectMeta:     metav1.ObjectMeta{Namespace: "rhoai", Name: name},
			InvolvedObject: corev1.ObjectReference{Kind: "ClusterDeployment", Name: object, Namespace: "rhoai"},
			Reason:         "Hibernating",
			LastTimestamp:  metav1.NewTime(base.Add(offset)),
		}
	}
	d := newDispatcher(t, testdata.FixtureConfig{Typed: []runtime.Object{
		event("e2", "ai-dev", 2*time.Minute),
		event("e1", "ai-dev", time.Minute),
		event("e3", "ai-test", 3*time.Minute),
	}})

	type eventList struct {
		Events []corev1.Event `json:"events"`
		Count  int            `json:"count"`
	}
	eventNames := func(l eventList) []string {
		out := []string{}
		for _, e := range l.Events {
			out = append(out, e.Name)
		}
		return out
	}

	all := decode[eventList](t, dispatch(d, "kubernetes_events", map[string]any{"namespace": "rhoai"}))
	assert.Equal(t, []string{"e1", "e2", "e3"}, eventNames(all))
	assert.Equal(t, 3, all.Count)

	filtered := decode[eventList](t, dispatch(d, "kubernetes_events", map[string]any{
		"namespace": "rhoai", "involvedObjectName": "ai-dev", "limit": float64(1),
	}))
	assert.Equal(t, []string{"e2"}, eventNames(filtered))

	none := decode[eventList](t, dispatch(d, "kubernetes_events", map[string]any{}))
	assert.Empty(t, none.Events)
	assert.Equal(t, 0, none.Count)
}
