package logging

import (
	"log/slog"
	"time"
)

// Attribute keys shared by every log line.
const (
	KeyOperation    = "operation"
	KeyNamespace    = "namespace"
	KeyResourceType = "resource_type"
	KeyKubeContext  = "kube_context"
	KeyTool         = "tool"
	KeyCallID       = "call_id"
	KeySession      = "session"
	KeyOutcome      = "outcome"
	KeyDuration     = "duration"
	KeyError        = "error"
	KeyHost         = "host"
	KeyAttempt      = "attempt"
)

// noSession stands in for the session of calls made outside any session.
const noSession = "<none>"

// WithOperation scopes logger to one cluster operation.
func WithOperation(logger *slog.Logger, operation string) *slog.Logger {
	return logger.With(slog.String(KeyOperation, operation))
}

// WithKubeContext scopes logger to one kubeconfig context.
func WithKubeContext(logger *slog.Logger, contextName string) *slog.Logger {
	return logger.With(KubeContext(contextName))
}

func KubeContext(name string) slog.Attr { return slog.String(KeyKubeContext, name) }
func Namespace(ns string) slog.Attr { return slog.String(KeyNamespace, ns) }
func ResourceType(rt string) slog.Attr { return slog.String(KeyResourceType, rt) }
func Tool(name string) slog.Attr { return slog.String(KeyTool, name) }
func CallID(id string) slog.Attr { return slog.String(KeyCallID, id) }
func Outcome(outcome string) slog.Attr { return slog.String(KeyOutcome, outcome) }
func Duration(d time.Duration) slog.Attr { return slog.Duration(KeyDuration, d) }
func Attempt(n int) slog.Attr { return slog.Int(KeyAttempt, n) }

// Session is the protocol session id, or "<none>".
func Session(id string) slog.Attr {
	if id == "" {
		id = noSession
	}
	return slog.String(KeySession, id)
}

// Err logs err verbatim. An absent error logs as an empty string.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}

// SanitizedErr logs err with IP addresses redacted. Use it for errors that
// may carry API server addresses.
func SanitizedErr(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, Redact(err.Error()))
}

// Host logs an API server host or URL with IP addresses redacted.
func Host(host string) slog.Attr {
	return slog.String(KeyHost, SanitizeHost(host))
}
