package session

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/giantswarm/mcp-hive/internal/instrumentation"
	"github.com/giantswarm/mcp-hive/internal/logging"
)

// EphemeralPrefix starts the id of sessions synthesized for calls that
// arrive without one, as on the stateless HTTP transport.
const EphemeralPrefix = "ephemeral-"

// closedRetention is how long a closed session id keeps rejecting calls.
const closedRetention = 10 * time.Minute

// Config configures a Tracker.
type Config struct {
	// Transport is recorded on every session, e.g. "stdio".
	Transport string
	Logger    *slog.Logger
	Metrics   *instrumentation.Metrics
	Now       func() time.Time
}

type tracked struct {
	info  Session
	calls map[string]*Call
}

// Tracker follows protocol sessions through
// Uninitialized → Negotiating → Ready → Closed and the tool calls running
// in each of them. It is safe for concurrent use.
type Tracker struct {
	transport string
	logger    *slog.Logger
	metrics   *instrumentation.Metrics
	now       func() time.Time

	mu       sync.Mutex
	sessions map[string]*tracked
	closed   map[string]time.Time
}

// NewTracker creates an empty Tracker.
func NewTracker(cfg Config) *Tracker {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Tracker{
		transport: cfg.Transport,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		now:       cfg.Now,
		sessions:  make(map[string]*tracked),
		closed:    make(map[string]time.Time),
	}
}

// Open starts tracking a session in the Uninitialized state. Opening a
// session that is already tracked returns its current snapshot.
func (t *Tracker) Open(id string) Session {
	t.mu.Lock()
	s, created := t.openLocked(id, StateUninitialized)
	snapshot := s.snapshot()
	t.mu.Unlock()

	if created {
		t.logger.Debug("session opened", logging.Session(id))
	}
	return snapshot
}

func (t *Tracker) openLocked(id string, state State) (*tracked, bool) {
	if s, ok := t.sessions[id]; ok {
		return s, false
	}
	now := t.now()
	for closedID, at := range t.closed {
		if now.Sub(at) > closedRetention {
			delete(t.closed, closedID)
		}
	}
	delete(t.closed, id)
	s := &tracked{
		info: Session{
			ID:        id,
			Transport: t.transport,
			State:     state,
			OpenedAt:  now,
		},
		calls: make(map[string]*Call),
	}
	t.sessions[id] = s
	t.metrics.IncrementActiveSessions(context.Background(), t.transport)
	return s, true
}

// Negotiate records the client's initialize request and moves the session
// to Negotiating. Unknown sessions are opened first.
func (t *Tracker) Negotiate(id string, req *mcp.InitializeRequest) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, _ := t.openLocked(id, StateUninitialized)
	if s.info.State != StateUninitialized {
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, s.info.State, StateNegotiating)
	}
	s.info.State = StateNegotiating
	if req != nil {
		s.info.ClientInfo = req.Params.ClientInfo
		s.info.Capabilities = req.Params.Capabilities
		s.info.ProtocolVersion = req.Params.ProtocolVersion
	}
	return nil
}

// Ready completes the handshake. The negotiated protocol version replaces
// the one the client asked for.
func (t *Tracker) Ready(id string, result *mcp.InitializeResult) error {
	t.mu.Lock()
	s, ok := t.sessions[id]
	if !ok || s.info.State != StateNegotiating {
		state := StateUninitialized
		if ok {
			state = s.info.State
		}
		t.mu.Unlock()
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, state, StateReady)
	}
	s.info.State = StateReady
	if result != nil && result.ProtocolVersion != "" {
		s.info.ProtocolVersion = result.ProtocolVersion
	}
	info := s.info
	t.mu.Unlock()

	t.logger.Info("session ready",
		logging.Session(id),
		slog.String("client", info.ClientInfo.Name),
		slog.String("client_version", info.ClientInfo.Version),
		slog.String("protocol_version", info.ProtocolVersion))
	return nil
}

// Close ends a session and cancels every call still running in it. Closing
// an unknown session is a no-op.
func (t *Tracker) Close(id string) {
	t.mu.Lock()
	s, ok := t.sessions[id]
	if !ok {
		t.mu.Unlock()
		return
	}
	delete(t.sessions, id)
	t.closed[id] = t.now()
	s.info.State = StateClosed
	calls := make([]*Call, 0, len(s.calls))
	for _, c := range s.calls {
		calls = append(calls, c)
	}
	t.mu.Unlock()

	for _, c := range calls {
		c.Cancel()
	}
	t.metrics.DecrementActiveSessions(context.Background(), t.transport)
	t.logger.Debug("session closed", logging.Session(id), slog.Int("cancelled_calls", len(calls)))
}

// Get returns a snapshot of a tracked session.
func (t *Tracker) Get(id string) (Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[id]
	if !ok {
		return Session{}, false
	}
	return s.snapshot(), true
}

// Active returns the number of open sessions.
func (t *Tracker) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

// Sessions returns snapshots of all open sessions, oldest first.
func (t *Tracker) Sessions() []Session {
	t.mu.Lock()
	out := make([]Session, 0, len(t.sessions))
	for _, s := range t.sessions {
		out = append(out, s.snapshot())
	}
	t.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].OpenedAt.Equal(out[j].OpenedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].OpenedAt.Before(out[j].OpenedAt)
	})
	return out
}

// Begin registers a call so it can be cancelled by id. cancel is invoked
// when the call or its session is cancelled.
//
// A call without a session id runs in an ephemeral session that closes
// when the call completes. A call on a session the tracker has not seen is
// adopted as Ready, since some transports never announce their sessions.
func (t *Tracker) Begin(sessionID, callID string, cancel context.CancelFunc) (*Call, error) {
	ephemeral := sessionID == ""
	if ephemeral {
		sessionID = EphemeralPrefix + uuid.NewString()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.closed[sessionID]; ok {
		return nil, ErrSessionClosed
	}
	s, _ := t.openLocked(sessionID, StateReady)
	if ephemeral {
		s.info.Ephemeral = true
	}
	if _, ok := s.calls[callID]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateCall, callID)
	}

	c := &Call{
		ID:        callID,
		SessionID: sessionID,
		StartedAt: t.now(),
		state:     CallDispatching,
		cancel:    cancel,
	}
	c.release = func() { t.release(sessionID, c) }
	s.calls[callID] = c
	return c, nil
}

func (t *Tracker) release(sessionID string, c *Call) {
	t.mu.Lock()
	s, ok := t.sessions[sessionID]
	if ok && s.calls[c.ID] == c {
		delete(s.calls, c.ID)
	}
	closeEphemeral := ok && s.info.Ephemeral && len(s.calls) == 0
	t.mu.Unlock()

	if closeEphemeral {
		t.Close(sessionID)
	}
}

// Cancel cancels an in-flight call. With an empty session id the call id is
// looked up across all sessions and cancelled only if it is unambiguous.
func (t *Tracker) Cancel(sessionID, callID string) bool {
	t.mu.Lock()
	var target *Call
	if sessionID != "" {
		if s, ok := t.sessions[sessionID]; ok {
			target = s.calls[callID]
		}
	} else {
		matches := 0
		for _, s := range t.sessions {
			if c, ok := s.calls[callID]; ok {
				target = c
				matches++
			}
		}
		if matches != 1 {
			target = nil
		}
	}
	t.mu.Unlock()

	if target == nil {
		return false
	}
	return target.Cancel()
}

func (s *tracked) snapshot() Session {
	info := s.info
	info.InFlight = len(s.calls)
	return info
}
