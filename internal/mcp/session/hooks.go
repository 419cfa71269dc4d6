package session

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/giantswarm/mcp-hive/internal/logging"
)

const (
	// MethodCancelled is the notification a client sends to abandon a call.
	MethodCancelled = "notifications/cancelled"

	// MetaCallID is the _meta field the tools/call hook stamps with the
	// JSON-RPC request id, so tool handlers can find their own call.
	MetaCallID = "io.giantswarm.mcp-hive/call-id"
)

// SessionID returns the id of the client session carried by ctx, or "" when
// there is none.
func SessionID(ctx context.Context) string {
	if s := mcpserver.ClientSessionFromContext(ctx); s != nil {
		return s.SessionID()
	}
	return ""
}

// CallKey normalises a JSON-RPC request id. Ids decoded by mcp-go and ids
// read from a notification's params compare equal after normalisation.
func CallKey(id any) string {
	if v, ok := id.(interface{ Value() any }); ok {
		id = v.Value()
	}
	switch v := id.(type) {
	case nil:
		return ""
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

// CallIDFromRequest returns the id stamped by the tools/call hook.
func CallIDFromRequest(req mcp.CallToolRequest) string {
	if req.Params.Meta == nil || req.Params.Meta.AdditionalFields == nil {
		return ""
	}
	id, _ := req.Params.Meta.AdditionalFields[MetaCallID].(string)
	return id
}

// Hooks returns mcp-go lifecycle hooks that drive the tracker.
func (t *Tracker) Hooks() *mcpserver.Hooks {
	hooks := &mcpserver.Hooks{}

	hooks.AddOnRegisterSession(func(ctx context.Context, s mcpserver.ClientSession) {
		t.Open(s.SessionID())
	})
	hooks.AddOnUnregisterSession(func(ctx context.Context, s mcpserver.ClientSession) {
		t.Close(s.SessionID())
	})
	hooks.AddBeforeInitialize(func(ctx context.Context, id any, req *mcp.InitializeRequest) {
		if err := t.Negotiate(SessionID(ctx), req); err != nil {
			t.logger.Debug("unexpected initialize", logging.Session(SessionID(ctx)), logging.Err(err))
		}
	})
	hooks.AddAfterInitialize(func(ctx context.Context, id any, req *mcp.InitializeRequest, result *mcp.InitializeResult) {
		if err := t.Ready(SessionID(ctx), result); err != nil {
			t.logger.Debug("unexpected initialize result", logging.Session(SessionID(ctx)), logging.Err(err))
		}
	})
	hooks.AddBeforeCallTool(func(ctx context.Context, id any, req *mcp.CallToolRequest) {
		if req.Params.Meta == nil {
			req.Params.Meta = &mcp.Meta{}
		}
		if req.Params.Meta.AdditionalFields == nil {
			req.Params.Meta.AdditionalFields = make(map[string]any)
		}
		req.Params.Meta.AdditionalFields[MetaCallID] = CallKey(id)
	})
	return hooks
}

// Install registers the cancellation notification handler on s.
func (t *Tracker) Install(s *mcpserver.MCPServer) {
	s.AddNotificationHandler(MethodCancelled, t.handleCancelled)
}

func (t *Tracker) handleCancelled(ctx context.Context, n mcp.JSONRPCNotification) {
	callID := CallKey(n.Params.AdditionalFields["requestId"])
	if callID == "" {
		return
	}
	sessionID := SessionID(ctx)
	reason, _ := n.Params.AdditionalFields["reason"].(string)

	cancelled := t.Cancel(sessionID, callID)
	t.logger.Info("cancellation requested",
		logging.Session(sessionID),
		logging.CallID(callID),
		slog.String("reason", reason),
		slog.Bool("in_flight", cancelled))
}
