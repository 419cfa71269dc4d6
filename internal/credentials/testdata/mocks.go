// Package testdata provides fake credential providers for tests of packages
// that consume credentials.
package testdata

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/giantswarm/mcp-hive/internal/credentials"
)

var _ credentials.Provider = (*FakeProvider)(nil)

// FakeProvider hands out numbered tokens. Each resolution returns
// "token-<n>" valid for TTL. Errors queued with FailNext are returned first.
type FakeProvider struct {
	TTL time.Duration
	Now func() time.Time

	calls atomic.Int32

	mu       sync.Mutex
	failures []error
	contexts []string
}

// NewFakeProvider returns a provider whose tokens live for ttl. A zero ttl
// yields non-expiring credentials.
func NewFakeProvider(ttl time.Duration) *FakeProvider {
	return &FakeProvider{TTL: ttl}
}

// FailNext queues errors to return from the next resolutions, in order.
func (f *FakeProvider) FailNext(errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, errs...)
}

// Calls returns the number of Resolve calls so far.
func (f *FakeProvider) Calls() int {
	return int(f.calls.Load())
}

// Contexts returns the context names Resolve was called with.
func (f *FakeProvider) Contexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.contexts...)
}

// Resolve implements credentials.Provider.
func (f *FakeProvider) Resolve(ctx context.Context, contextName string) (*credentials.Credential, error) {
	n := f.calls.Add(1)

	f.mu.Lock()
	f.contexts = append(f.contexts, contextName)
	if len(f.failures) > 0 {
		err := f.failures[0]
		f.failures = f.failures[1:]
		f.mu.Unlock()
		return nil, err
	}
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cred := &credentials.Credential{
		Token:  TokenFor(int(n)),
		Source: credentials.SourceExec,
	}
	if f.TTL > 0 {
		now := time.Now
		if f.Now != nil {
			now = f.Now
		}
		cred.ExpiresAt = now().Add(f.TTL)
	}
	return cred, nil
}

// TokenFor returns the token FakeProvider hands out on its n-th call.
func TokenFor(n int) string {
	return "token-" + strconv.Itoa(n)
}

