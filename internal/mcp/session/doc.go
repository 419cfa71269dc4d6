// Package session tracks MCP protocol sessions and the tool calls running
// in them.
//
// mcp-go owns framing and the capability handshake. The Tracker observes it
// through lifecycle hooks and keeps the state machine
//
//	Uninitialized → Negotiating → Ready → Closed
//
// for every session, plus a Call per in-flight tool call. A Call is the
// single point where a result is allowed out: Complete succeeds once, and
// never after a notifications/cancelled message or a session close
// cancelled the call.
package session
