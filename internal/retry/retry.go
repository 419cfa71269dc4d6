// Package retry runs operations under a bounded exponential backoff.
package retry

import (
	"context"
	"fmt"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"
)

// Defaults used when a Policy field is left zero.
const (
	DefaultAttempts       = 4
	DefaultInitialBackoff = 250 * time.Millisecond
	DefaultMaxBackoff     = 5 * time.Second
	DefaultFactor         = 2.0
)

// Policy bounds a retry loop. Attempts counts the first call, so a policy
// with Attempts 4 sleeps at most three times.
type Policy struct {
	Attempts       int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Factor         float64

	// OnRetry, if set, is called before each sleep with the number of the
	// attempt that just failed.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// DefaultPolicy returns the policy used by the credential resolver and the
// cluster client when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{
		Attempts:       DefaultAttempts,
		InitialBackoff: DefaultInitialBackoff,
		MaxBackoff:     DefaultMaxBackoff,
		Factor:         DefaultFactor,
	}
}

func (p Policy) withDefaults() Policy {
	if p.Attempts < 1 {
		p.Attempts = 1
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = DefaultInitialBackoff
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = DefaultMaxBackoff
	}
	if p.Factor < 1 {
		p.Factor = DefaultFactor
	}
	return p
}

// MaxTotalDelay returns the sum of all sleeps the policy can take.
func (p Policy) MaxTotalDelay() time.Duration {
	p = p.withDefaults()
	backoff := p.backoff()
	var total time.Duration
	for i := 1; i < p.Attempts; i++ {
		total += backoff.Step()
	}
	return total
}

func (p Policy) backoff() wait.Backoff {
	return wait.Backoff{
		Duration: p.InitialBackoff,
		Factor:   p.Factor,
		Steps:    p.Attempts,
		Cap:      p.MaxBackoff,
	}
}

// ExhaustedError is returned when every attempt failed with a retryable error.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("giving up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Do calls op until it succeeds, returns an error retryable rejects, or the
// policy runs out of attempts. A cancelled ctx stops the loop while it sleeps
// and the context error is returned wrapped around the last failure.
func Do(ctx context.Context, p Policy, retryable func(error) bool, op func(ctx context.Context, attempt int) error) error {
	p = p.withDefaults()
	backoff := p.backoff()

	for attempt := 1; ; attempt++ {
		err := op(ctx, attempt)
		if err == nil {
			return nil
		}
		if retryable == nil || !retryable(err) {
			return err
		}
		if attempt >= p.Attempts {
			return &ExhaustedError{Attempts: attempt, Err: err}
		}

		delay := backoff.Step()
		if p.OnRetry != nil {
			p.OnRetry(attempt, delay, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w (last error: %v)", ctx.Err(), err)
		case <-timer.C:
		}
	}
}
