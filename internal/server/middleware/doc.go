// Package middleware wraps the HTTP transports: request size limits, CORS,
// API security headers and per-route request metrics.
package middleware
