package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/mcp-hive/internal/server"
)

func okHandler(context.Context, *Call, *server.ServerContext) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText("ok"), nil
}

func getTool() mcp.Tool {
	return mcp.NewTool("kubernetes_get",
		mcp.WithString("kind", mcp.Required()),
		mcp.WithString("name", mcp.Required()),
		mcp.WithNumber("limit"),
		mcp.WithBoolean("allNamespaces"),
		mcp.WithString("patchType", mcp.Enum("merge", "json", "strategic")),
		KubeContextParam(),
	)
}

func TestRegistry_RegisterAndDescribe(t *testing.T) {
	reg := NewRegistry()
	names := []string{"list_all_clusters", "kubernetes_get", "get_cluster_owners"}
	for _, name := range names {
		require.NoError(t, reg.Register(Descriptor{Tool: mcp.NewTool(name), Handler: okHandler}))
	}

	var described []string
	for _, d := range reg.Describe() {
		described = append(described, d.Name())
	}
	assert.Equal(t, names, described, "registration order is preserved")
	assert.Equal(t, 3, reg.Len())

	desc, err := reg.Resolve("kubernetes_get")
	require.NoError(t, err)
	assert.Equal(t, "kubernetes_get", desc.Name())
}

func TestRegistry_RegisterErrors(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(Descriptor{Tool: mcp.NewTool("dup"), Handler: okHandler}))

	tests := []struct {
		name     string
		desc     Descriptor
		expected error
	}{
		{name: "duplicate", desc: Descriptor{Tool: mcp.NewTool("dup"), Handler: okHandler}, expected: ErrDuplicateTool},
		{name: "empty name", desc: Descriptor{Tool: mcp.Tool{}, Handler: okHandler}, expected: ErrInvalidDescriptor},
		{name: "nil handler", desc: Descriptor{Tool: mcp.NewTool("nohandler")}, expected: ErrInvalidDescriptor},
		{
			name: "uncompilable schema",
			desc: Descriptor{
				Tool:    mcp.NewToolWithRawSchema("broken", "", json.RawMessage(`{"type": 12}`)),
				Handler: okHandler,
			},
			expected: ErrInvalidDescriptor,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, reg.Register(tt.desc), tt.expected)
		})
	}
}

func TestRegistry_Seal(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(Descriptor{Tool: mcp.NewTool("a"), Handler: okHandler}))
	reg.Seal()

	assert.True(t, reg.Sealed())
	assert.ErrorIs(t, reg.Register(Descriptor{Tool: mcp.NewTool("b"), Handler: okHandler}), ErrRegistrySealed)
	assert.Equal(t, 1, reg.Len())
}

func TestRegistry_ResolveUnknown(t *testing.T) {
	_, err := NewRegistry().Resolve("nope")

	var unknown *UnknownToolError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "nope", unknown.Name)
}

func TestRegistry_Validate(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(Descriptor{Tool: getTool(), Handler: okHandler}))
	require.NoError(t, reg.Register(Descriptor{Tool: mcp.NewTool("noargs"), Handler: okHandler}))

	tests := []struct {
		name    string
		tool    string
		args    map[string]any
		wantErr bool
	}{
		{name: "valid", tool: "kubernetes_get", args: map[string]any{"kind": "pod", "name": "web"}},
		{name: "valid with optionals", tool: "kubernetes_get", args: map[string]any{
			"kind": "pod", "name": "web", "limit": float64(5), "allNamespaces": true, "patchType": "json", "kubeContext": "other",
		}},
		{name: "missing required", tool: "kubernetes_get", args: map[string]any{"kind": "pod"}, wantErr: true},
		{name: "nil args with required", tool: "kubernetes_get", args: nil, wantErr: true},
		{name: "wrong type", tool: "kubernetes_get", args: map[string]any{"kind": "pod", "name": 3.0}, wantErr: true},
		{name: "bool as string", tool: "kubernetes_get", args: map[string]any{"kind": "pod", "name": "web", "allNamespaces": "yes"}, wantErr: true},
		{name: "enum violation", tool: "kubernetes_get", args: map[string]any{"kind": "pod", "name": "web", "patchType": "apply"}, wantErr: true},
		{name: "no args needed", tool: "noargs", args: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := reg.Validate(tt.tool, tt.args)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var validation *ValidationError
			require.ErrorAs(t, err, &validation)
			assert.Equal(t, tt.tool, validation.Tool)
			assert.NotEmpty(t, validation.Reason)
		})
	}

	var unknown *UnknownToolError
	assert.ErrorAs(t, reg.Validate("missing", nil), &unknown)
}
