package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTransient = errors.New("transient")

func isTransient(err error) bool { return errors.Is(err, errTransient) }

func fastPolicy(attempts int) Policy {
	return Policy{
		Attempts:       attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     4 * time.Millisecond,
		Factor:         2,
	}
}

func TestDo(t *testing.T) {
	permanent := errors.New("permanent")

	tests := []struct {
		name        string
		failures    []error
		attempts    int
		wantCalls   int
		wantErr     error
		wantExhaust bool
	}{
		{
			name:      "first call succeeds",
			attempts:  3,
			wantCalls: 1,
		},
		{
			name:      "succeeds after transient failures",
			failures:  []error{errTransient, errTransient},
			attempts:  3,
			wantCalls: 3,
		},
		{
			name:      "permanent error is not retried",
			failures:  []error{permanent},
			attempts:  5,
			wantCalls: 1,
			wantErr:   permanent,
		},
		{
			name:        "gives up after the configured attempts",
			failures:    []error{errTransient, errTransient, errTransient, errTransient},
			attempts:    3,
			wantCalls:   3,
			wantErr:     errTransient,
			wantExhaust: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := Do(context.Background(), fastPolicy(tt.attempts), isTransient, func(ctx context.Context, attempt int) error {
				calls++
				assert.Equal(t, calls, attempt)
				if calls <= len(tt.failures) {
					return tt.failures[calls-1]
				}
				return nil
			})

			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)

			var exhausted *ExhaustedError
			assert.Equal(t, tt.wantExhaust, errors.As(err, &exhausted))
			if tt.wantExhaust {
				assert.Equal(t, tt.attempts, exhausted.Attempts)
			}
		})
	}
}

func TestDo_BackoffScheduleIsCapped(t *testing.T) {
	var delays []time.Duration
	policy := Policy{
		Attempts:       5,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     3 * time.Millisecond,
		Factor:         2,
		OnRetry: func(attempt int, delay time.Duration, err error) {
			delays = append(delays, delay)
		},
	}

	err := Do(context.Background(), policy, isTransient, func(context.Context, int) error {
		return errTransient
	})
	require.Error(t, err)

	assert.Equal(t, []time.Duration{
		time.Millisecond,
		2 * time.Millisecond,
		3 * time.Millisecond,
		3 * time.Millisecond,
	}, delays)
	assert.Equal(t, 9*time.Millisecond, policy.MaxTotalDelay())
}

func TestDo_ContextCancelledWhileWaiting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := Policy{Attempts: 3, InitialBackoff: time.Hour, MaxBackoff: time.Hour}

	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- Do(ctx, policy, isTransient, func(context.Context, int) error {
			calls++
			return errTransient
		})
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	case <-time.After(time.Second):
		t.Fatal("Do did not return after cancellation")
	}
}

func TestPolicy_Defaults(t *testing.T) {
	p := Policy{}.withDefaults()
	assert.Equal(t, 1, p.Attempts)
	assert.Equal(t, DefaultInitialBackoff, p.InitialBackoff)
	assert.Equal(t, DefaultMaxBackoff, p.MaxBackoff)
	assert.Equal(t, DefaultFactor, p.Factor)

	assert.Equal(t, DefaultAttempts, DefaultPolicy().Attempts)
}
