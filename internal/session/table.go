package session

import (
	"context"
	"sync"
	"time"

	enclave "github.com/jonwraymond/enclavejs"
)

// Table is the broker's session registry: it hands out new Sessions, looks
// them up for cancellation, and drops them once Run reaches a terminal
// state (§4.8: "remove the session from the table").
type Table struct {
	mu            sync.Mutex
	sessions      map[enclave.SessionID]*Session
	maxConcurrent int
}

// NewTable constructs an empty Table. maxConcurrent <= 0 means unlimited
// (§4.10's broker-global maxConcurrentSessions).
func NewTable(maxConcurrent int) *Table {
	return &Table{sessions: make(map[enclave.SessionID]*Session), maxConcurrent: maxConcurrent}
}

// errTooManySessions is returned by Start when maxConcurrentSessions is
// already at capacity.
var errTooManySessions = enclave.NewSessionError(enclave.ErrCodeExecutionError, "maxConcurrentSessions exceeded", nil)

// Start registers a new session and runs it synchronously to completion,
// removing it from the table before returning. Callers that want streaming
// behavior should invoke this from its own goroutine and consume events via
// emit as they arrive.
func (t *Table) Start(ctx context.Context, id enclave.SessionID, gateway enclave.ToolGateway, req enclave.ExecuteRequest, emit Emitter, heartbeatInterval time.Duration) (enclave.ExecuteResult, error) {
	t.mu.Lock()
	if t.maxConcurrent > 0 && len(t.sessions) >= t.maxConcurrent {
		t.mu.Unlock()
		return enclave.ExecuteResult{}, errTooManySessions
	}
	sess := New(id, gateway, emit)
	t.sessions[id] = sess
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		delete(t.sessions, id)
		t.mu.Unlock()
	}()

	return sess.Run(ctx, req, heartbeatInterval), nil
}

// Cancel looks up a live session by id and cancels it. Reports false if no
// such session exists (already completed, or never existed).
func (t *Table) Cancel(id enclave.SessionID, reason string) bool {
	t.mu.Lock()
	sess, ok := t.sessions[id]
	t.mu.Unlock()
	if !ok {
		return false
	}
	sess.Cancel(reason)
	return true
}

// Get returns the live session for id, if any.
func (t *Table) Get(id enclave.SessionID) (*Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	sess, ok := t.sessions[id]
	return sess, ok
}

// Len reports the number of currently live sessions.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}
