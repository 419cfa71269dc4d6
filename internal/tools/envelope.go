package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/giantswarm/mcp-hive/internal/k8s"
	"github.com/giantswarm/mcp-hive/internal/logging"
)

// Envelope kinds. Every error result a client receives carries exactly one.
const (
	KindUnknownTool      = "unknown_tool"
	KindInvalidArguments = "invalid_arguments"
	KindTimeout          = "timeout"
	KindCancelled        = "cancelled"
	KindNotFound         = "not_found"
	KindForbidden        = "forbidden"
	KindConflict         = "conflict"
	KindThrottled        = "throttled"
	KindUnavailable      = "unavailable"
	KindInvalid          = "invalid"
	KindAuth             = "auth"
	KindNotPermitted     = "not_permitted"
	KindInternal         = "internal"
)

// kindMessages are the generic messages shown when an error carries no
// message of its own.
var kindMessages = map[string]string{
	KindUnknownTool:      "unknown tool",
	KindInvalidArguments: "invalid arguments",
	KindTimeout:          "the tool call exceeded its time budget",
	KindCancelled:        "the tool call was cancelled",
	KindNotFound:         "the requested resource was not found",
	KindForbidden:        "access to the resource is forbidden",
	KindConflict:         "the resource conflicts with an existing one",
	KindThrottled:        "the cluster is throttling requests",
	KindUnavailable:      "the cluster is unavailable",
	KindInvalid:          "the cluster rejected the request as invalid",
	KindAuth:             "authentication to the cluster failed",
	KindNotPermitted:     "the operation is not permitted",
	KindInternal:         "internal error",
}

// Envelope is the JSON body of an error result.
type Envelope struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// ToolError is returned by handlers that want to choose the envelope kind.
type ToolError struct {
	Kind    string
	Message string
	Err     error
}

func (e *ToolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// Errorf returns a ToolError of the given kind.
func Errorf(kind, format string, args ...any) *ToolError {
	return &ToolError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// InvalidArgument reports a semantic problem with an argument that passed
// schema validation.
func InvalidArgument(format string, args ...any) *ToolError {
	return Errorf(KindInvalidArguments, format, args...)
}

// EnvelopeFor maps err onto the error taxonomy. Details are redacted.
func EnvelopeFor(err error) Envelope {
	var toolErr *ToolError
	var unknownErr *UnknownToolError
	var validationErr *ValidationError

	switch {
	case errors.As(err, &toolErr):
		env := newEnvelope(toolErr.Kind, toolErr.Message)
		if toolErr.Err != nil {
			env.Detail = logging.Redact(toolErr.Err.Error())
		}
		return env
	case errors.As(err, &unknownErr):
		return newEnvelope(KindUnknownTool, unknownErr.Error())
	case errors.As(err, &validationErr):
		env := newEnvelope(KindInvalidArguments, "arguments do not match the tool's input schema")
		env.Detail = logging.Redact(validationErr.Reason)
		return env
	case errors.Is(err, context.DeadlineExceeded) && k8s.ClassOf(err) == k8s.ClassInternal:
		return newEnvelope(KindTimeout, "")
	}

	kind := kindForClass(k8s.Classify(err))
	env := newEnvelope(kind, "")
	if kind != KindInternal {
		env.Detail = logging.Redact(err.Error())
	}
	return env
}

func kindForClass(class k8s.ErrorClass) string {
	switch class {
	case k8s.ClassNotFound:
		return KindNotFound
	case k8s.ClassForbidden:
		return KindForbidden
	case k8s.ClassConflict:
		return KindConflict
	case k8s.ClassThrottled:
		return KindThrottled
	case k8s.ClassUnavailable:
		return KindUnavailable
	case k8s.ClassInvalid:
		return KindInvalid
	case k8s.ClassAuth:
		return KindAuth
	case k8s.ClassCancelled:
		return KindCancelled
	case k8s.ClassTimeout:
		return KindTimeout
	default:
		return KindInternal
	}
}

func newEnvelope(kind, message string) Envelope {
	if _, ok := kindMessages[kind]; !ok {
		kind = KindInternal
	}
	if message == "" {
		message = kindMessages[kind]
	}
	return Envelope{Kind: kind, Message: message}
}

// ErrorResult wraps env in an error result.
func ErrorResult(env Envelope) *mcp.CallToolResult {
	data, err := json.Marshal(env)
	if err != nil {
		return mcp.NewToolResultError(env.Message)
	}
	return mcp.NewToolResultError(string(data))
}

// JSONResult returns v as an indented JSON text result.
func JSONResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

// DecodeEnvelope extracts the envelope from an error result.
func DecodeEnvelope(result *mcp.CallToolResult) (Envelope, bool) {
	if result == nil || !result.IsError || len(result.Content) == 0 {
		return Envelope{}, false
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		return Envelope{}, false
	}
	var env Envelope
	if err := json.Unmarshal([]byte(text.Text), &env); err != nil || env.Kind == "" {
		return Envelope{}, false
	}
	return env, true
}
