package credentials

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/oauth2"

	"github.com/giantswarm/mcp-hive/internal/logging"
)

// Credential sources.
const (
	SourceExec   = "exec"
	SourceStatic = "static"
	SourceCache  = "cache"
)

// Credential is a bearer token and/or client certificate usable against a
// cluster API server. A zero ExpiresAt means the credential does not expire.
type Credential struct {
	Token                 string
	ClientCertificateData []byte
	ClientKeyData         []byte
	ExpiresAt             time.Time
	Source                string
}

// Empty reports whether the credential carries no usable material.
func (c *Credential) Empty() bool {
	return c == nil || (c.Token == "" && len(c.ClientCertificateData) == 0)
}

// Valid reports whether the credential can still be used at now, keeping
// margin in reserve before its expiry.
func (c *Credential) Valid(now time.Time, margin time.Duration) bool {
	if c.Empty() {
		return false
	}
	if c.ExpiresAt.IsZero() {
		return true
	}
	return now.Add(margin).Before(c.ExpiresAt)
}

// OAuth2Token returns the bearer token in the form oauth2 transports expect.
func (c *Credential) OAuth2Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken: c.Token,
		TokenType:   "Bearer",
		Expiry:      c.ExpiresAt,
	}
}

// LogValue implements slog.LogValuer without exposing credential material.
func (c *Credential) LogValue() slog.Value {
	if c == nil {
		return slog.StringValue("<nil>")
	}
	attrs := []slog.Attr{
		slog.String("source", c.Source),
		slog.String("token", logging.SanitizeToken(c.Token)),
		slog.Bool("client_cert", len(c.ClientCertificateData) > 0),
	}
	if !c.ExpiresAt.IsZero() {
		attrs = append(attrs, slog.Time("expires_at", c.ExpiresAt))
	}
	return slog.GroupValue(attrs...)
}

// String implements fmt.Stringer without exposing credential material.
func (c *Credential) String() string {
	if c == nil {
		return "<nil>"
	}
	expiry := "never"
	if !c.ExpiresAt.IsZero() {
		expiry = c.ExpiresAt.UTC().Format(time.RFC3339)
	}
	return fmt.Sprintf("Credential{source=%s token=%s client_cert=%t expires=%s}",
		c.Source, logging.SanitizeToken(c.Token), len(c.ClientCertificateData) > 0, expiry)
}

// Provider resolves the credential for a kubeconfig context.
type Provider interface {
	Resolve(ctx context.Context, contextName string) (*Credential, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, contextName string) (*Credential, error)

// Resolve calls f.
func (f ProviderFunc) Resolve(ctx context.Context, contextName string) (*Credential, error) {
	return f(ctx, contextName)
}
