package k8s

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"syscall"

	apierrors "k8s.io/apimachinery/pkg/api/errors"

	"github.com/giantswarm/mcp-hive/internal/credentials"
)

var (
	// ErrContextNotFound is returned when a kubeconfig has no context with
	// the requested name.
	ErrContextNotFound = errors.New("kube context not found")

	// ErrUnknownResourceType is returned when a kind cannot be mapped to an
	// API resource.
	ErrUnknownResourceType = errors.New("unknown resource type")
)

// ErrorClass groups cluster failures by how a caller should react to them.
type ErrorClass string

const (
	ClassNotFound    ErrorClass = "not_found"
	ClassForbidden   ErrorClass = "forbidden"
	ClassConflict    ErrorClass = "conflict"
	ClassThrottled   ErrorClass = "throttled"
	ClassUnavailable ErrorClass = "unavailable"
	ClassInvalid     ErrorClass = "invalid"
	ClassAuth        ErrorClass = "auth"
	ClassCancelled   ErrorClass = "cancelled"
	ClassTimeout     ErrorClass = "timeout"
	ClassInternal    ErrorClass = "internal"
)

// Retryable reports whether an operation failing with this class is worth
// repeating after a backoff.
func (c ErrorClass) Retryable() bool {
	return c == ClassThrottled || c == ClassUnavailable
}

// ClusterError is returned by every Client operation that fails.
type ClusterError struct {
	Class        ErrorClass
	Operation    string
	Context      string
	ResourceType string
	Name         string
	Attempts     int
	Err          error
}

func (e *ClusterError) Error() string {
	target := e.ResourceType
	if e.Name != "" {
		target = fmt.Sprintf("%s %q", e.ResourceType, e.Name)
	}
	msg := e.Operation
	if target != "" {
		msg = fmt.Sprintf("%s %s", e.Operation, target)
	}
	msg = fmt.Sprintf("%s failed (%s)", msg, e.Class)
	if e.Attempts > 1 {
		msg = fmt.Sprintf("%s after %d attempts", msg, e.Attempts)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *ClusterError) Unwrap() error {
	return e.Err
}

// ClassOf returns the class of err, or ClassInternal when err is not a
// ClusterError.
func ClassOf(err error) ErrorClass {
	var clusterErr *ClusterError
	if errors.As(err, &clusterErr) {
		return clusterErr.Class
	}
	return ClassInternal
}

// Classify maps an error returned by client-go or the credential layer onto
// an ErrorClass.
func Classify(err error) ErrorClass {
	var authErr *credentials.AuthError
	var clusterErr *ClusterError

	switch {
	case err == nil:
		return ""
	case errors.As(err, &clusterErr):
		return clusterErr.Class
	case errors.As(err, &authErr):
		return ClassAuth
	case errors.Is(err, ErrContextNotFound), errors.Is(err, ErrUnknownResourceType), errors.Is(err, ErrInvalidAccessCheck):
		return ClassInvalid
	case apierrors.IsNotFound(err):
		return ClassNotFound
	case apierrors.IsForbidden(err):
		return ClassForbidden
	case apierrors.IsConflict(err), apierrors.IsAlreadyExists(err):
		return ClassConflict
	case apierrors.IsTooManyRequests(err):
		return ClassThrottled
	case apierrors.IsUnauthorized(err):
		return ClassAuth
	case apierrors.IsInvalid(err), apierrors.IsBadRequest(err), apierrors.IsMethodNotSupported(err),
		apierrors.IsNotAcceptable(err), apierrors.IsUnsupportedMediaType(err),
		apierrors.IsRequestEntityTooLargeError(err), apierrors.IsGone(err), apierrors.IsResourceExpired(err):
		return ClassInvalid
	case apierrors.IsServiceUnavailable(err), apierrors.IsServerTimeout(err), apierrors.IsTimeout(err),
		apierrors.IsUnexpectedServerError(err), apierrors.IsInternalError(err):
		return ClassUnavailable
	case errors.Is(err, context.Canceled):
		return ClassCancelled
	case isNetworkError(err):
		return ClassUnavailable
	default:
		return ClassInternal
	}
}

func isNetworkError(err error) bool {
	var netErr net.Error
	var urlErr *url.Error
	var opErr *net.OpError
	return errors.As(err, &netErr) ||
		errors.As(err, &urlErr) ||
		errors.As(err, &opErr) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, context.DeadlineExceeded)
}

// ConfigurationError reports a startup problem with the kubeconfig or the
// selected context. It is never returned once serving has begun.
type ConfigurationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid %s: %s: %v", e.Field, e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}
