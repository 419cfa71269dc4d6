package credentials

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidContext is returned when the kubeconfig has no such context.
	ErrInvalidContext = errors.New("invalid kubeconfig context")

	// ErrPermissionDenied is returned when the identity provider refuses to
	// issue a credential.
	ErrPermissionDenied = errors.New("permission denied by identity provider")

	// ErrMalformedOutput is returned when the authentication tool prints
	// something other than an ExecCredential.
	ErrMalformedOutput = errors.New("malformed credential output")

	// ErrNoCredential is returned when the context's user carries neither an
	// exec plugin nor static credentials.
	ErrNoCredential = errors.New("no credential configured")

	// ErrPluginFailed is returned for authentication tool failures that match
	// no known pattern.
	ErrPluginFailed = errors.New("authentication tool failed")

	// ErrPluginUnavailable is returned for failures that are expected to clear
	// on their own, such as an identity provider timing out.
	ErrPluginUnavailable = errors.New("identity provider unavailable")
)

// AuthError reports a failed credential resolution. Its message is safe to
// show to MCP clients: it never contains credential material.
type AuthError struct {
	Context   string
	Reason    string
	Transient bool
	Attempts  int
	Err       error
}

func (e *AuthError) Error() string {
	msg := fmt.Sprintf("resolving credential for context %q: %s", e.Context, e.Reason)
	if e.Attempts > 1 {
		msg = fmt.Sprintf("%s (after %d attempts)", msg, e.Attempts)
	}
	return msg
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is an AuthError worth retrying.
func IsTransient(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr) && authErr.Transient
}
