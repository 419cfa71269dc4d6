package tools

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/giantswarm/mcp-hive/internal/mcp/session"
)

// MethodProgress is the notification that carries streamed output.
const MethodProgress = "notifications/progress"

// ErrCallFinished is returned by Progress once the call has completed or
// been cancelled.
var ErrCallFinished = errors.New("call already finished")

// Notifier sends a notification to the client session carried by ctx.
// *server.MCPServer from mcp-go implements it.
type Notifier interface {
	SendNotificationToClient(ctx context.Context, method string, params map[string]any) error
}

// Call is one tool invocation as seen by a handler.
type Call struct {
	ID            string
	Tool          string
	Arguments     map[string]any
	SessionID     string
	ProgressToken mcp.ProgressToken

	handle   *session.Call
	notifier Notifier
	sent     int
}

// CanStream reports whether progress notifications reach the client.
func (c *Call) CanStream() bool {
	return c.ProgressToken != nil && c.notifier != nil
}

// Progress streams message to the client as a progress notification. It is
// a no-op without a progress token, and fails with ErrCallFinished once the
// result was delivered or the call was cancelled.
func (c *Call) Progress(ctx context.Context, message string) error {
	if !c.CanStream() {
		return nil
	}
	if c.handle != nil && !c.handle.Stream() {
		return ErrCallFinished
	}
	c.sent++
	return c.notifier.SendNotificationToClient(ctx, MethodProgress, map[string]any{
		"progressToken": c.ProgressToken,
		"progress":      c.sent,
		"message":       message,
	})
}

// String returns a string argument, or "" when it is absent.
func (c *Call) String(key string) string {
	v, _ := c.Arguments[key].(string)
	return v
}

// RequiredString returns a non-empty string argument.
func (c *Call) RequiredString(key string) (string, error) {
	v := strings.TrimSpace(c.String(key))
	if v == "" {
		return "", InvalidArgument("%s is required", key)
	}
	return v, nil
}

// Bool returns a boolean argument, or def when it is absent.
func (c *Call) Bool(key string, def bool) bool {
	switch v := c.Arguments[key].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// Int returns an integral argument, or def when it is absent. Fractional
// numbers are rejected.
func (c *Call) Int(key string, def int64) (int64, error) {
	raw, ok := c.Arguments[key]
	if !ok || raw == nil {
		return def, nil
	}
	switch v := raw.(type) {
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) {
			return 0, InvalidArgument("%s must be an integer", key)
		}
		return int64(v), nil
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, InvalidArgument("%s must be an integer", key)
		}
		return n, nil
	default:
		return 0, InvalidArgument("%s must be an integer", key)
	}
}

// KubeContext returns the kubeContext argument; "" selects the context the
// server was started with.
func (c *Call) KubeContext() string {
	return strings.TrimSpace(c.String(ParamKubeContext))
}
