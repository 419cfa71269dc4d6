// Package credentials resolves short-lived cluster credentials for
// kubeconfig contexts.
//
// A Provider turns a context name into a Credential. KubeconfigProvider reads
// the user stanza the context points at and either runs its exec plugin (or a
// configured override command) as an opaque subprocess speaking the
// client-go ExecCredential contract, or returns the static token or client
// certificate it carries.
//
// Resolver wraps any Provider with:
//   - bounded exponential-backoff retry of transient failures
//   - immediate AuthError for non-transient failures
//   - coalescing of concurrent resolutions for the same context
//   - an optional on-disk cache of unexpired credentials
//
// Credential material is never logged; Credential renders redacted through
// slog.LogValuer and fmt.Stringer.
package credentials
