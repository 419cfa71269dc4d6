package credentials

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/giantswarm/mcp-hive/internal/instrumentation"
	"github.com/giantswarm/mcp-hive/internal/logging"
	"github.com/giantswarm/mcp-hive/internal/retry"
)

// DefaultResolveTimeout bounds one coalesced resolution including retries.
const DefaultResolveTimeout = 2 * time.Minute

// ResolverConfig configures a Resolver.
type ResolverConfig struct {
	Provider Provider

	// Cache is optional.
	Cache *FileCache

	// Retry bounds the retries of transient failures.
	Retry retry.Policy

	// Margin is how long before expiry a cached credential stops being served.
	Margin time.Duration

	// Timeout bounds one resolution, including its retries.
	Timeout time.Duration

	Logger  *slog.Logger
	Metrics *instrumentation.Metrics
	Now     func() time.Time
}

// Resolver is a Provider that retries, coalesces and caches another Provider.
type Resolver struct {
	provider Provider
	cache    *FileCache
	policy   retry.Policy
	margin   time.Duration
	timeout  time.Duration
	logger   *slog.Logger
	metrics  *instrumentation.Metrics
	now      func() time.Time

	group singleflight.Group
}

var _ Provider = (*Resolver)(nil)

// NewResolver returns a Resolver over cfg.Provider.
func NewResolver(cfg ResolverConfig) *Resolver {
	r := &Resolver{
		provider: cfg.Provider,
		cache:    cfg.Cache,
		policy:   cfg.Retry,
		margin:   cfg.Margin,
		timeout:  cfg.Timeout,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		now:      cfg.Now,
	}
	if r.timeout <= 0 {
		r.timeout = DefaultResolveTimeout
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// Resolve returns a credential for contextName. Concurrent calls for the same
// context share one resolution. The shared resolution is detached from the
// caller's cancellation so one impatient caller cannot fail the others; a
// cancelled caller stops waiting and gets its context error.
func (r *Resolver) Resolve(ctx context.Context, contextName string) (*Credential, error) {
	start := time.Now()
	if cred := r.cached(contextName); cred != nil {
		r.metrics.RecordCredentialResolution(ctx, instrumentation.CredentialResultCached, time.Since(start))
		return cred, nil
	}

	ch := r.group.DoChan(contextName, func() (interface{}, error) {
		resolveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()
		return r.resolve(resolveCtx, contextName)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Credential), nil
	}
}

// Invalidate drops any cached credential for contextName so the next Resolve
// runs the provider.
func (r *Resolver) Invalidate(contextName string) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Remove(contextName); err != nil {
		r.logger.Warn("failed to invalidate cached credential",
			logging.KubeContext(contextName), logging.Err(err))
	}
}

func (r *Resolver) cached(contextName string) *Credential {
	if r.cache == nil {
		return nil
	}
	cred, err := r.cache.Load(contextName)
	if err != nil {
		r.logger.Debug("ignoring unreadable credential cache",
			logging.KubeContext(contextName), logging.Err(err))
		return nil
	}
	if !cred.Valid(r.now(), r.margin) {
		return nil
	}
	return cred
}

func (r *Resolver) resolve(ctx context.Context, contextName string) (*Credential, error) {
	ctx, span := instrumentation.StartCredentialSpan(ctx, contextName)
	defer span.End()

	logger := logging.WithKubeContext(r.logger, contextName)
	start := time.Now()

	policy := r.policy
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		logger.Warn("credential resolution failed, retrying",
			logging.Attempt(attempt),
			slog.Duration("backoff", delay),
			logging.SanitizedErr(err))
	}

	var cred *Credential
	attempts := 0
	err := retry.Do(ctx, policy, IsTransient, func(ctx context.Context, attempt int) error {
		attempts = attempt
		c, err := r.provider.Resolve(ctx, contextName)
		if err != nil {
			return err
		}
		cred = c
		return nil
	})
	if err == nil && cred.Empty() {
		err = &AuthError{Context: contextName, Reason: "provider returned an empty credential", Err: ErrNoCredential}
	}
	if err != nil {
		authErr := toAuthError(contextName, err, attempts)
		r.metrics.RecordCredentialResolution(ctx, instrumentation.CredentialResultFailed, time.Since(start))
		instrumentation.RecordResult(span, authErr, instrumentation.Attempts(attempts))
		logger.Error("credential resolution failed",
			logging.Attempt(attempts),
			logging.Duration(time.Since(start)),
			logging.SanitizedErr(authErr))
		return nil, authErr
	}

	if r.cache != nil && cred.Source == SourceExec && !cred.ExpiresAt.IsZero() {
		if err := r.cache.Store(contextName, cred); err != nil {
			logger.Warn("failed to cache credential", logging.Err(err))
		}
	}

	r.metrics.RecordCredentialResolution(ctx, instrumentation.CredentialResultResolved, time.Since(start))
	instrumentation.RecordResult(span, nil, instrumentation.Attempts(attempts))
	logger.Debug("credential resolved",
		slog.Any("credential", cred),
		logging.Attempt(attempts),
		logging.Duration(time.Since(start)))
	return cred, nil
}

// toAuthError normalises whatever the retry loop returned into an AuthError
// carrying the number of attempts made.
func toAuthError(contextName string, err error, attempts int) *AuthError {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		out := *authErr
		out.Attempts = attempts
		return &out
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &AuthError{
			Context:   contextName,
			Reason:    "credential resolution did not finish in time",
			Transient: true,
			Attempts:  attempts,
			Err:       err,
		}
	}
	return &AuthError{
		Context:  contextName,
		Reason:   "credential provider failed",
		Attempts: attempts,
		Err:      err,
	}
}
