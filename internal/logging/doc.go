// Package logging provides structured logging utilities for mcp-hive.
//
// It centralizes the attribute vocabulary used with log/slog so that every
// component (credential resolution, cluster calls, tool dispatch) logs with
// the same keys.
//
// # Usage Patterns
//
//	logger := logging.WithKubeContext(slog.Default(), "hive-cluster")
//	logger.Info("listing resources",
//	    logging.Namespace("rhoai"),
//	    logging.ResourceType("clusterclaims"))
//
// Sanitize sensitive data before logging:
//
//	logger.Warn("cluster call failed", logging.SanitizedErr(err))
//
// # Security Considerations
//
//   - API server URLs and dial errors have IP addresses redacted
//   - Tokens are only ever logged as a length indicator
//   - Credentials render as a redacted value through slog.LogValuer
package logging
