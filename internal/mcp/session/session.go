package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
)

// State is the lifecycle state of a protocol session.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateNegotiating   State = "negotiating"
	StateReady         State = "ready"
	StateClosed        State = "closed"
)

// CallState is the state of one tool call within a session.
type CallState string

const (
	CallDispatching CallState = "dispatching"
	CallStreaming   CallState = "streaming"
	CallCompleted   CallState = "completed"
	CallCancelled   CallState = "cancelled"
)

var (
	// ErrDuplicateCall is returned by Begin when the session already has a
	// call in flight with the same id.
	ErrDuplicateCall = errors.New("call id already in flight")

	// ErrSessionClosed is returned when a call arrives on a closed session.
	ErrSessionClosed = errors.New("session closed")

	// ErrInvalidTransition is returned when a session is moved to a state it
	// cannot reach from its current one.
	ErrInvalidTransition = errors.New("invalid session state transition")
)

// Session is a snapshot of a tracked protocol session.
type Session struct {
	ID              string                 `json:"id"`
	Transport       string                 `json:"transport"`
	State           State                  `json:"state"`
	Ephemeral       bool                   `json:"ephemeral,omitempty"`
	ProtocolVersion string                 `json:"protocolVersion,omitempty"`
	ClientInfo      mcp.Implementation     `json:"clientInfo"`
	Capabilities    mcp.ClientCapabilities `json:"capabilities"`
	OpenedAt        time.Time              `json:"openedAt"`
	InFlight        int                    `json:"inFlight"`
}

// Call tracks one in-flight tool call. Its result may be delivered at most
// once: Complete succeeds for the first caller only, and never after the
// call was cancelled.
type Call struct {
	ID        string
	SessionID string
	StartedAt time.Time

	mu      sync.Mutex
	state   CallState
	cancel  context.CancelFunc
	release func()
}

// State returns the current state of the call.
func (c *Call) State() CallState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Stream moves the call into the streaming state. It returns false once the
// call is completed or cancelled, in which case no partial result may be
// sent.
func (c *Call) Stream() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case CallDispatching, CallStreaming:
		c.state = CallStreaming
		return true
	default:
		return false
	}
}

// Complete marks the call as finished and releases its id. It returns true
// only if the result may be delivered.
func (c *Call) Complete() bool {
	c.mu.Lock()
	prev := c.state
	if prev != CallCompleted && prev != CallCancelled {
		c.state = CallCompleted
	}
	release := c.release
	c.release = nil
	c.mu.Unlock()

	if release != nil {
		release()
	}
	return prev == CallDispatching || prev == CallStreaming
}

// Cancel cancels the call's context. It returns false if the call had
// already completed.
func (c *Call) Cancel() bool {
	c.mu.Lock()
	if c.state == CallCompleted || c.state == CallCancelled {
		c.mu.Unlock()
		return c.state == CallCancelled
	}
	c.state = CallCancelled
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return true
}

// Cancelled reports whether the call was cancelled before completing.
func (c *Call) Cancelled() bool {
	return c.State() == CallCancelled
}
