// Package cmd provides the command-line interface for mcp-hive.
//
// This package implements a Cobra-based CLI with multiple subcommands:
//   - serve: Starts the MCP server (default behavior when no subcommand is provided)
//   - version: Displays the application version
//   - self-update: Updates the binary to the latest version from GitHub releases
//
// Command Structure:
//
//	mcp-hive [flags]                 # Starts the MCP server (default)
//	mcp-hive serve [flags]           # Explicitly starts the MCP server
//	mcp-hive version                 # Shows version information
//	mcp-hive self-update             # Updates to latest release
//
// Transport Configuration Examples:
//
//	mcp-hive serve --transport stdio
//	mcp-hive serve --transport sse --http-addr :8080 --sse-endpoint /sse
//	mcp-hive serve --transport streamable-http --http-addr 0.0.0.0:8000 --stateless
//
// Configuration is resolved once at startup. A flag given on the command
// line wins over its environment variable, which wins over the flag
// default. Invalid configuration, an unreadable kubeconfig, an unknown
// context or a port already in use all fail the command with exit status 1.
package cmd
