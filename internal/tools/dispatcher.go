package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel/attribute"

	"github.com/giantswarm/mcp-hive/internal/instrumentation"
	"github.com/giantswarm/mcp-hive/internal/logging"
	"github.com/giantswarm/mcp-hive/internal/mcp/session"
	"github.com/giantswarm/mcp-hive/internal/server"
)

// OutcomeSuccess is the outcome logged for calls that returned a result.
const OutcomeSuccess = "success"

const (
	// unknownToolLabel replaces unregistered tool names in metric labels.
	unknownToolLabel = "unknown"

	// unroutedTool is the hidden tool that calls to unregistered names are
	// rewritten to before the protocol server looks them up.
	unroutedTool = "_unrouted"

	// MetaRequestedTool is the _meta field holding the tool name a client
	// asked for when the call was rewritten to the unrouted tool.
	MetaRequestedTool = "io.giantswarm.mcp-hive/requested-tool"
)

type handlerResult struct {
	result *mcp.CallToolResult
	err    error
}

// Dispatcher runs tool calls: it resolves the tool, validates arguments,
// enforces the non-destructive guard, bounds the handler by the tool
// timeout and maps failures onto error envelopes.
type Dispatcher struct {
	registry *Registry
	sc       *server.ServerContext
	notifier Notifier
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher for the tools in registry.
func NewDispatcher(registry *Registry, sc *server.ServerContext) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		sc:       sc,
		logger:   sc.Logger(),
	}
}

// SetNotifier sets where progress notifications are sent.
func (d *Dispatcher) SetNotifier(n Notifier) {
	d.notifier = n
}

// Install seals the registry and adds every tool to s in registration
// order. Calls received by s are routed through Dispatch. Unregistered
// names only reach Dispatch when s was built with ServerOptions.
func (d *Dispatcher) Install(s *mcpserver.MCPServer) {
	d.registry.Seal()
	d.notifier = s
	for _, desc := range d.registry.Describe() {
		s.AddTool(desc.Tool, d.toolHandler(desc.Name()))
	}
	s.AddTool(mcp.NewTool(unroutedTool), d.unroutedHandler)
}

// ServerOptions returns the options the protocol server needs for Install
// to work as intended. tools/list shows the registered tools in
// registration order, and calls to unregistered names produce an
// unknown_tool envelope instead of a protocol error. hooks may be nil; the
// tools/call hook is added to it and it is installed with WithHooks.
func (d *Dispatcher) ServerOptions(hooks *mcpserver.Hooks) []mcpserver.ServerOption {
	if hooks == nil {
		hooks = &mcpserver.Hooks{}
	}
	hooks.AddBeforeCallTool(func(_ context.Context, _ any, req *mcp.CallToolRequest) {
		if _, err := d.registry.Resolve(req.Params.Name); err == nil {
			return
		}
		if req.Params.Meta == nil {
			req.Params.Meta = &mcp.Meta{}
		}
		if req.Params.Meta.AdditionalFields == nil {
			req.Params.Meta.AdditionalFields = make(map[string]any)
		}
		req.Params.Meta.AdditionalFields[MetaRequestedTool] = req.Params.Name
		req.Params.Name = unroutedTool
	})
	return []mcpserver.ServerOption{
		mcpserver.WithHooks(hooks),
		mcpserver.WithToolFilter(d.listedTools),
	}
}

// listedTools orders tools by registration and drops anything that is not
// registered, such as the unrouted tool.
func (d *Dispatcher) listedTools(_ context.Context, listed []mcp.Tool) []mcp.Tool {
	byName := make(map[string]mcp.Tool, len(listed))
	for _, tool := range listed {
		byName[tool.Name] = tool
	}
	out := make([]mcp.Tool, 0, len(listed))
	for _, desc := range d.registry.Describe() {
		if tool, ok := byName[desc.Name()]; ok {
			out = append(out, tool)
		}
	}
	return out
}

// unroutedHandler dispatches a call whose tool name was not registered
// under the name the client asked for.
func (d *Dispatcher) unroutedHandler(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := unroutedTool
	if req.Params.Meta != nil {
		if requested, ok := req.Params.Meta.AdditionalFields[MetaRequestedTool].(string); ok {
			name = requested
		}
	}
	return d.toolHandler(name)(ctx, req)
}

func (d *Dispatcher) toolHandler(name string) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		call := &Call{
			ID:        session.CallIDFromRequest(req),
			Tool:      name,
			Arguments: req.GetArguments(),
			SessionID: session.SessionID(ctx),
		}
		if req.Params.Meta != nil {
			call.ProgressToken = req.Params.Meta.ProgressToken
		}
		return d.Dispatch(ctx, call), nil
	}
}

// Dispatch runs call and always returns a result. Failures are error
// results carrying an Envelope. Exactly one log line is written per call.
func (d *Dispatcher) Dispatch(ctx context.Context, call *Call) *mcp.CallToolResult {
	start := time.Now()
	if call.ID == "" {
		call.ID = uuid.NewString()
	}

	ctx, span := instrumentation.StartToolSpan(ctx, call.Tool, call.ID, call.KubeContext())
	defer span.End()

	result, known := d.dispatch(ctx, call)

	outcome := OutcomeSuccess
	if env, ok := DecodeEnvelope(result); ok {
		outcome = env.Kind
	}
	duration := time.Since(start)

	level := slog.LevelInfo
	var spanErr error
	switch outcome {
	case OutcomeSuccess:
	case KindInternal:
		level = slog.LevelError
		spanErr = errors.New(outcome)
	default:
		level = slog.LevelWarn
		spanErr = errors.New(outcome)
	}
	instrumentation.RecordResult(span, spanErr, attribute.String(instrumentation.SpanAttrOutcome, outcome))

	d.logger.LogAttrs(ctx, level, "tool call",
		logging.Tool(call.Tool),
		logging.CallID(call.ID),
		logging.Session(call.SessionID),
		logging.Duration(duration),
		logging.Outcome(outcome),
	)

	label := call.Tool
	if !known {
		label = unknownToolLabel
	}
	d.sc.Metrics().RecordToolCall(ctx, label, outcome, duration)

	return result
}

// dispatch returns the call's result and whether the tool was registered.
func (d *Dispatcher) dispatch(ctx context.Context, call *Call) (*mcp.CallToolResult, bool) {
	desc, err := d.registry.Resolve(call.Tool)
	if err != nil {
		return ErrorResult(EnvelopeFor(err)), false
	}

	ctx, cancel := context.WithTimeout(ctx, d.sc.Config().ToolTimeout)
	defer cancel()

	handle, err := d.begin(call, cancel)
	if err != nil {
		return ErrorResult(EnvelopeFor(err)), true
	}
	call.handle = handle
	call.notifier = d.notifier

	if err := d.registry.Validate(call.Tool, call.Arguments); err != nil {
		return d.complete(handle, ErrorResult(EnvelopeFor(err))), true
	}
	if desc.Mutating {
		if err := CheckMutatingOperation(d.sc, desc.Operation); err != nil {
			return d.complete(handle, ErrorResult(EnvelopeFor(err))), true
		}
	}

	done := make(chan handlerResult, 1)
	go d.run(ctx, desc, call, done)

	var result *mcp.CallToolResult
	select {
	case hr := <-done:
		result = d.resultFor(ctx, hr)
	case <-ctx.Done():
		result = ErrorResult(contextEnvelope(ctx))
	}
	return d.complete(handle, result), true
}

func (d *Dispatcher) begin(call *Call, cancel context.CancelFunc) (*session.Call, error) {
	tracker := d.sc.Sessions()
	if tracker == nil {
		return nil, nil
	}
	handle, err := tracker.Begin(call.SessionID, call.ID, cancel)
	switch {
	case errors.Is(err, session.ErrDuplicateCall):
		return nil, &ToolError{Kind: KindInvalid, Message: fmt.Sprintf("call %s is already in flight", call.ID), Err: err}
	case errors.Is(err, session.ErrSessionClosed):
		return nil, &ToolError{Kind: KindCancelled, Message: "the session was closed", Err: err}
	case err != nil:
		return nil, err
	}
	if call.SessionID == "" {
		call.SessionID = handle.SessionID
	}
	return handle, nil
}

func (d *Dispatcher) run(ctx context.Context, desc Descriptor, call *Call, done chan<- handlerResult) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("tool handler panicked",
				logging.Tool(call.Tool),
				logging.CallID(call.ID),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			done <- handlerResult{err: Errorf(KindInternal, "the tool failed unexpectedly")}
		}
	}()
	result, err := desc.Handler(ctx, call, d.sc)
	done <- handlerResult{result: result, err: err}
}

func (d *Dispatcher) resultFor(ctx context.Context, hr handlerResult) *mcp.CallToolResult {
	if hr.err != nil {
		if ctx.Err() != nil {
			return ErrorResult(contextEnvelope(ctx))
		}
		return ErrorResult(EnvelopeFor(hr.err))
	}
	if hr.result == nil {
		return ErrorResult(newEnvelope(KindInternal, "the tool returned no result"))
	}
	if hr.result.IsError {
		if _, ok := DecodeEnvelope(hr.result); !ok {
			return ErrorResult(newEnvelope(KindInternal, logging.Redact(resultText(hr.result))))
		}
	}
	return hr.result
}

// complete delivers result unless the call was cancelled first, in which
// case the client gets a cancelled envelope instead.
func (d *Dispatcher) complete(handle *session.Call, result *mcp.CallToolResult) *mcp.CallToolResult {
	if handle == nil || handle.Complete() {
		return result
	}
	return ErrorResult(newEnvelope(KindCancelled, ""))
}

func contextEnvelope(ctx context.Context) Envelope {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return newEnvelope(KindTimeout, "")
	}
	return newEnvelope(KindCancelled, "")
}

func resultText(result *mcp.CallToolResult) string {
	for _, c := range result.Content {
		if text, ok := c.(mcp.TextContent); ok {
			return text.Text
		}
	}
	return ""
}
