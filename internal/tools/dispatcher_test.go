package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/mcp-hive/internal/credentials"
	"github.com/giantswarm/mcp-hive/internal/k8s"
	"github.com/giantswarm/mcp-hive/internal/server"
	"github.com/giantswarm/mcp-hive/internal/tools/testdata"
)

var _ Notifier = (*testdata.RecordingNotifier)(nil)

type dispatchFixture struct {
	*testdata.Fixture
	registry   *Registry
	dispatcher *Dispatcher
	notifier   *testdata.RecordingNotifier
	logs       *bytes.Buffer
}

func newDispatchFixture(t *testing.T, opts ...server.Option) *dispatchFixture {
	t.Helper()
	logs := &bytes.Buffer{}
	logger := slog.New(slog.NewJSONHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	fx := testdata.NewFixture(t, testdata.FixtureConfig{
		Options: append([]server.Option{server.WithLogger(logger)}, opts...),
	})
	reg := NewRegistry()
	d := NewDispatcher(reg, fx.Server)
	notifier := &testdata.RecordingNotifier{}
	d.SetNotifier(notifier)
	return &dispatchFixture{Fixture: fx, registry: reg, dispatcher: d, notifier: notifier, logs: logs}
}

func (f *dispatchFixture) register(t *testing.T, desc Descriptor) {
	t.Helper()
	require.NoError(t, f.registry.Register(desc))
}

func (f *dispatchFixture) logLines(t *testing.T) []map[string]any {
	t.Helper()
	var lines []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(f.logs.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		if entry["msg"] == "tool call" {
			lines = append(lines, entry)
		}
	}
	return lines
}

func requireEnvelope(t *testing.T, result *mcp.CallToolResult) Envelope {
	t.Helper()
	env, ok := DecodeEnvelope(result)
	require.True(t, ok, "expected an error envelope, got %+v", result)
	return env
}

func handlerReturning(err error) Handler {
	return func(context.Context, *Call, *server.ServerContext) (*mcp.CallToolResult, error) {
		return nil, err
	}
}

func TestDispatch_Success(t *testing.T) {
	f := newDispatchFixture(t)
	f.register(t, Descriptor{Tool: getTool(), Handler: func(_ context.Context, call *Call, _ *server.ServerContext) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultText(call.String("kind") + "/" + call.String("name")), nil
	}})

	result := f.dispatcher.Dispatch(context.Background(), &Call{
		ID:        "1",
		Tool:      "kubernetes_get",
		SessionID: "s1",
		Arguments: map[string]any{"kind": "pod", "name": "web"},
	})

	assert.False(t, result.IsError)
	assert.Equal(t, "pod/web", resultText(result))

	lines := f.logLines(t)
	require.Len(t, lines, 1, "exactly one log line per dispatch")
	assert.Equal(t, "kubernetes_get", lines[0]["tool"])
	assert.Equal(t, "1", lines[0]["call_id"])
	assert.Equal(t, "s1", lines[0]["session"])
	assert.Equal(t, OutcomeSuccess, lines[0]["outcome"])
	assert.Contains(t, lines[0], "duration")
}

func TestDispatch_ErrorKinds(t *testing.T) {
	tests := []struct {
		name     string
		desc     *Descriptor
		tool     string
		args     map[string]any
		wantKind string
	}{
		{
			name:     "unknown tool",
			tool:     "does_not_exist",
			wantKind: KindUnknownTool,
		},
		{
			name:     "missing required argument",
			desc:     &Descriptor{Tool: getTool(), Handler: okHandler},
			tool:     "kubernetes_get",
			args:     map[string]any{"kind": "pod"},
			wantKind: KindInvalidArguments,
		},
		{
			name:     "cluster not found",
			desc:     &Descriptor{Tool: mcp.NewTool("t"), Handler: handlerReturning(&k8s.ClusterError{Class: k8s.ClassNotFound, Operation: "get"})},
			tool:     "t",
			wantKind: KindNotFound,
		},
		{
			name:     "credential failure",
			desc:     &Descriptor{Tool: mcp.NewTool("t"), Handler: handlerReturning(&credentials.AuthError{Context: "hive-cluster", Reason: "login required"})},
			tool:     "t",
			wantKind: KindAuth,
		},
		{
			name:     "tool error",
			desc:     &Descriptor{Tool: mcp.NewTool("t"), Handler: handlerReturning(InvalidArgument("power_state must be Running or Hibernating"))},
			tool:     "t",
			wantKind: KindInvalidArguments,
		},
		{
			name:     "unclassified error",
			desc:     &Descriptor{Tool: mcp.NewTool("t"), Handler: handlerReturning(errors.New("boom"))},
			tool:     "t",
			wantKind: KindInternal,
		},
		{
			name: "nil result",
			desc: &Descriptor{Tool: mcp.NewTool("t"), Handler: func(context.Context, *Call, *server.ServerContext) (*mcp.CallToolResult, error) {
				return nil, nil
			}},
			tool:     "t",
			wantKind: KindInternal,
		},
		{
			name: "plain error result",
			desc: &Descriptor{Tool: mcp.NewTool("t"), Handler: func(context.Context, *Call, *server.ServerContext) (*mcp.CallToolResult, error) {
				return mcp.NewToolResultError("something broke"), nil
			}},
			tool:     "t",
			wantKind: KindInternal,
		},
		{
			name: "panic",
			desc: &Descriptor{Tool: mcp.NewTool("t"), Handler: func(context.Context, *Call, *server.ServerContext) (*mcp.CallToolResult, error) {
				panic("nil map")
			}},
			tool:     "t",
			wantKind: KindInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newDispatchFixture(t)
			if tt.desc != nil {
				f.register(t, *tt.desc)
			}

			result := f.dispatcher.Dispatch(context.Background(), &Call{ID: "1", Tool: tt.tool, Arguments: tt.args})
			env := requireEnvelope(t, result)
			assert.Equal(t, tt.wantKind, env.Kind)

			lines := f.logLines(t)
			require.Len(t, lines, 1)
			assert.Equal(t, tt.wantKind, lines[0]["outcome"])
			assert.Equal(t, 0, f.Sessions.Active(), "ephemeral sessions close with their call")
		})
	}
}

func TestDispatch_PanicDoesNotLeakDetails(t *testing.T) {
	f := newDispatchFixture(t)
	f.register(t, Descriptor{Tool: mcp.NewTool("t"), Handler: func(context.Context, *Call, *server.ServerContext) (*mcp.CallToolResult, error) {
		panic("token=abc123")
	}})

	env := requireEnvelope(t, f.dispatcher.Dispatch(context.Background(), &Call{Tool: "t"}))
	assert.Equal(t, KindInternal, env.Kind)
	assert.NotContains(t, env.Message+env.Detail, "abc123")
}

func TestDispatch_Timeout(t *testing.T) {
	f := newDispatchFixture(t, server.WithToolTimeout(50*time.Millisecond))
	f.register(t, Descriptor{Tool: mcp.NewTool("slow"), Handler: func(ctx context.Context, _ *Call, _ *server.ServerContext) (*mcp.CallToolResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}})

	start := time.Now()
	env := requireEnvelope(t, f.dispatcher.Dispatch(context.Background(), &Call{ID: "1", Tool: "slow"}))
	assert.Equal(t, KindTimeout, env.Kind)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestDispatch_TimeoutWithStuckHandler(t *testing.T) {
	f := newDispatchFixture(t, server.WithToolTimeout(50*time.Millisecond))
	release := make(chan struct{})
	defer close(release)
	f.register(t, Descriptor{Tool: mcp.NewTool("stuck"), Handler: func(context.Context, *Call, *server.ServerContext) (*mcp.CallToolResult, error) {
		<-release
		return mcp.NewToolResultText("late"), nil
	}})

	env := requireEnvelope(t, f.dispatcher.Dispatch(context.Background(), &Call{ID: "1", Tool: "stuck"}))
	assert.Equal(t, KindTimeout, env.Kind)
}

func TestDispatch_Cancellation(t *testing.T) {
	f := newDispatchFixture(t)
	started := make(chan struct{})
	f.register(t, Descriptor{Tool: mcp.NewTool("wait"), Handler: func(ctx context.Context, _ *Call, _ *server.ServerContext) (*mcp.CallToolResult, error) {
		close(started)
		<-ctx.Done()
		return mcp.NewToolResultText("finished anyway"), nil
	}})
	f.Sessions.Open("s1")

	done := make(chan *mcp.CallToolResult, 1)
	go func() {
		done <- f.dispatcher.Dispatch(context.Background(), &Call{ID: "7", Tool: "wait", SessionID: "s1"})
	}()

	<-started
	require.True(t, f.Sessions.Cancel("s1", "7"))

	select {
	case result := <-done:
		env := requireEnvelope(t, result)
		assert.Equal(t, KindCancelled, env.Kind)
	case <-time.After(5 * time.Second):
		t.Fatal("cancelled call did not return")
	}

	s, ok := f.Sessions.Get("s1")
	require.True(t, ok)
	assert.Equal(t, 0, s.InFlight)
}

func TestDispatch_DuplicateCallID(t *testing.T) {
	f := newDispatchFixture(t)
	started := make(chan struct{})
	release := make(chan struct{})
	f.register(t, Descriptor{Tool: mcp.NewTool("wait"), Handler: func(context.Context, *Call, *server.ServerContext) (*mcp.CallToolResult, error) {
		close(started)
		<-release
		return mcp.NewToolResultText("first"), nil
	}})
	f.Sessions.Open("s1")

	done := make(chan *mcp.CallToolResult, 1)
	go func() {
		done <- f.dispatcher.Dispatch(context.Background(), &Call{ID: "1", Tool: "wait", SessionID: "s1"})
	}()
	<-started

	env := requireEnvelope(t, f.dispatcher.Dispatch(context.Background(), &Call{ID: "1", Tool: "wait", SessionID: "s1"}))
	assert.Equal(t, KindInvalid, env.Kind)

	close(release)
	first := <-done
	assert.False(t, first.IsError)
	assert.Equal(t, "first", resultText(first))
}

func TestDispatch_ClosedSession(t *testing.T) {
	f := newDispatchFixture(t)
	f.register(t, Descriptor{Tool: mcp.NewTool("t"), Handler: okHandler})
	f.Sessions.Open("gone")
	f.Sessions.Close("gone")

	env := requireEnvelope(t, f.dispatcher.Dispatch(context.Background(), &Call{ID: "1", Tool: "t", SessionID: "gone"}))
	assert.Equal(t, KindCancelled, env.Kind)
}

func TestDispatch_MutatingGuard(t *testing.T) {
	tests := []struct {
		name           string
		opts           []server.Option
		wantKind       string
		wantHandlerRun bool
	}{
		{name: "non-destructive refuses", opts: nil, wantKind: KindNotPermitted},
		{name: "dry-run allows", opts: []server.Option{server.WithDryRun(true)}, wantHandlerRun: true},
		{name: "destructive allows", opts: []server.Option{server.WithNonDestructiveMode(false)}, wantHandlerRun: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newDispatchFixture(t, tt.opts...)
			var ran atomic.Bool
			f.register(t, Descriptor{
				Tool:      mcp.NewTool("kubernetes_delete"),
				Mutating:  true,
				Operation: "delete",
				Handler: func(context.Context, *Call, *server.ServerContext) (*mcp.CallToolResult, error) {
					ran.Store(true)
					return mcp.NewToolResultText("deleted"), nil
				},
			})

			result := f.dispatcher.Dispatch(context.Background(), &Call{Tool: "kubernetes_delete"})
			assert.Equal(t, tt.wantHandlerRun, ran.Load())
			if tt.wantKind == "" {
				assert.False(t, result.IsError)
				return
			}
			env := requireEnvelope(t, result)
			assert.Equal(t, tt.wantKind, env.Kind)
			assert.Contains(t, env.Message, "Delete operations are not allowed")
		})
	}
}

func TestDispatch_Progress(t *testing.T) {
	f := newDispatchFixture(t)
	var finished *Call
	f.register(t, Descriptor{Tool: mcp.NewTool("stream"), Streaming: true, Handler: func(ctx context.Context, call *Call, _ *server.ServerContext) (*mcp.CallToolResult, error) {
		finished = call
		for _, line := range []string{"one", "two"} {
			if err := call.Progress(ctx, line); err != nil {
				return nil, err
			}
		}
		return mcp.NewToolResultText("one\ntwo"), nil
	}})

	result := f.dispatcher.Dispatch(context.Background(), &Call{ID: "1", Tool: "stream", ProgressToken: "tok"})
	require.False(t, result.IsError)

	sent := f.notifier.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, MethodProgress, sent[0].Method)
	assert.Equal(t, "tok", sent[0].Params["progressToken"])
	assert.Equal(t, 1, sent[0].Params["progress"])
	assert.Equal(t, 2, sent[1].Params["progress"])
	assert.Equal(t, []string{"one", "two"}, f.notifier.Messages())

	require.NotNil(t, finished)
	assert.ErrorIs(t, finished.Progress(context.Background(), "late"), ErrCallFinished, "no chunks after the result")
	assert.Len(t, f.notifier.Sent(), 2)
}

func TestDispatch_ProgressWithoutToken(t *testing.T) {
	f := newDispatchFixture(t)
	f.register(t, Descriptor{Tool: mcp.NewTool("stream"), Handler: func(ctx context.Context, call *Call, _ *server.ServerContext) (*mcp.CallToolResult, error) {
		assert.False(t, call.CanStream())
		require.NoError(t, call.Progress(ctx, "ignored"))
		return mcp.NewToolResultText("ok"), nil
	}})

	f.dispatcher.Dispatch(context.Background(), &Call{Tool: "stream"})
	assert.Empty(t, f.notifier.Sent())
}

func TestDispatch_SynthesizesCallID(t *testing.T) {
	f := newDispatchFixture(t)
	var seen string
	f.register(t, Descriptor{Tool: mcp.NewTool("t"), Handler: func(_ context.Context, call *Call, _ *server.ServerContext) (*mcp.CallToolResult, error) {
		seen = call.ID
		return mcp.NewToolResultText("ok"), nil
	}})

	f.dispatcher.Dispatch(context.Background(), &Call{Tool: "t"})
	assert.NotEmpty(t, seen)
}

func TestDispatcher_Install(t *testing.T) {
	f := newDispatchFixture(t)
	f.register(t, Descriptor{Tool: getTool(), Handler: func(_ context.Context, call *Call, _ *server.ServerContext) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultText("got " + call.String("name")), nil
	}})
	f.register(t, Descriptor{Tool: mcp.NewTool("list_all_clusters"), Handler: okHandler})

	srv := mcpserver.NewMCPServer("test", "0.0.1",
		append([]mcpserver.ServerOption{mcpserver.WithToolCapabilities(false)}, f.dispatcher.ServerOptions(nil)...)...)
	f.dispatcher.Install(srv)
	assert.True(t, f.registry.Sealed())

	listResp := handle(t, srv, map[string]any{"jsonrpc": "2.0", "id": 1, "method": "tools/list"})
	var list struct {
		Result struct {
			Tools []struct {
				Name string `json:"name"`
			} `json:"tools"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(listResp, &list))
	var names []string
	for _, tool := range list.Result.Tools {
		names = append(names, tool.Name)
	}
	assert.Equal(t, []string{"kubernetes_get", "list_all_clusters"}, names, "registration order, unrouted tool hidden")

	callResp := handle(t, srv, map[string]any{
		"jsonrpc": "2.0",
		"id":      2,
		"method":  "tools/call",
		"params":  map[string]any{"name": "kubernetes_get", "arguments": map[string]any{"kind": "pod"}},
	})
	var call struct {
		Result struct {
			IsError bool `json:"isError"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(callResp, &call))
	assert.True(t, call.Result.IsError)
	assert.Contains(t, string(callResp), KindInvalidArguments)
}

func TestDispatcher_UnknownToolOverProtocol(t *testing.T) {
	f := newDispatchFixture(t)
	f.register(t, Descriptor{Tool: getTool(), Handler: okHandler})

	hooks := f.Sessions.Hooks()
	srv := mcpserver.NewMCPServer("test", "0.0.1",
		append([]mcpserver.ServerOption{mcpserver.WithToolCapabilities(false)}, f.dispatcher.ServerOptions(hooks)...)...)
	f.Sessions.Install(srv)
	f.dispatcher.Install(srv)

	resp := handle(t, srv, map[string]any{
		"jsonrpc": "2.0",
		"id":      7,
		"method":  "tools/call",
		"params":  map[string]any{"name": "does_not_exist", "arguments": map[string]any{}},
	})
	var decoded struct {
		Result *mcp.CallToolResult `json:"result"`
		Error  json.RawMessage     `json:"error"`
	}
	require.NoError(t, json.Unmarshal(resp, &decoded))
	require.Empty(t, decoded.Error, "unknown tools are not protocol errors")
	require.NotNil(t, decoded.Result)

	env := requireEnvelope(t, decoded.Result)
	assert.Equal(t, KindUnknownTool, env.Kind)
	assert.Contains(t, env.Message, "does_not_exist")

	lines := f.logLines(t)
	require.Len(t, lines, 1)
	assert.Equal(t, "does_not_exist", lines[0]["tool"])
	assert.Equal(t, "7", lines[0]["call_id"])
	assert.Equal(t, KindUnknownTool, lines[0]["outcome"])
}

func handle(t *testing.T, srv *mcpserver.MCPServer, msg map[string]any) []byte {
	t.Helper()
	raw, err := json.Marshal(msg)
	require.NoError(t, err)
	resp := srv.HandleMessage(context.Background(), raw)
	out, err := json.Marshal(resp)
	require.NoError(t, err)
	return out
}
