// Package session implements the Session Orchestrator state machine: it
// owns seq assignment, drives Guard → Transform → Sandbox for one
// execution, and guarantees exactly one terminal final event.
package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	enclave "github.com/jonwraymond/enclavejs"
	"github.com/jonwraymond/enclavejs/internal/bridge"
	"github.com/jonwraymond/enclavejs/internal/guard"
	"github.com/jonwraymond/enclavejs/internal/sandbox"
	"github.com/jonwraymond/enclavejs/internal/transform"
)

// State is one node of the §4.8 session state machine.
type State string

const (
	StateStarting       State = "starting"
	StateRunning        State = "running"
	StateWaitingForTool State = "waiting_for_tool"
	StateCompleted      State = "completed"
	StateCancelled      State = "cancelled"
	StateFailed         State = "failed"
)

// terminal reports whether s is one of the three states §4.8 allows no
// further transition out of.
func (s State) terminal() bool {
	switch s {
	case StateCompleted, StateCancelled, StateFailed:
		return true
	default:
		return false
	}
}

// allowedFrom enforces the §4.8 transition table. Any non-terminal state may
// move to Cancelled or Failed; terminal states accept nothing further.
func allowedFrom(from, to State) bool {
	if from.terminal() {
		return false
	}
	if to == StateCancelled || to == StateFailed {
		return true
	}
	switch from {
	case StateStarting:
		return to == StateRunning
	case StateRunning:
		return to == StateWaitingForTool || to == StateCompleted
	case StateWaitingForTool:
		return to == StateRunning
	default:
		return false
	}
}

// Emitter delivers one StreamEvent onto the wire. The orchestrator calls it
// synchronously and in seq order; callers wanting NDJSON framing should wire
// it to an ndjson.Encoder, optionally via a cryptostream.Endpoint.
type Emitter func(enclave.StreamEvent)

// Session drives a single execution from Starting to a terminal state.
type Session struct {
	id      enclave.SessionID
	emit    Emitter
	gateway enclave.ToolGateway

	mu    sync.Mutex
	state State

	seq uint64 // atomic

	cancelFn context.CancelFunc

	records   []enclave.ToolCallRecord
	recordsMu sync.Mutex
}

// New constructs a Session in the Starting state. The caller must call
// Run exactly once.
func New(id enclave.SessionID, gateway enclave.ToolGateway, emit Emitter) *Session {
	return &Session{id: id, gateway: gateway, emit: emit, state: StateStarting}
}

// State reports the session's current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) transition(to State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !allowedFrom(s.state, to) {
		return fmt.Errorf("session %s: illegal transition %s -> %s", s.id, s.state, to)
	}
	s.state = to
	return nil
}

func (s *Session) nextSeq() uint64 {
	return atomic.AddUint64(&s.seq, 1)
}

func (s *Session) emitEvent(typ enclave.EventType, payload any) {
	s.emit(enclave.StreamEvent{
		ProtocolVersion: enclave.ProtocolVersion,
		SessionID:       s.id,
		Seq:             s.nextSeq(),
		Type:            typ,
		Payload:         payload,
	})
}

// Run executes req to completion, emitting session_init immediately, then
// the full stream of tool_call/tool_result_applied/heartbeat events as they
// occur, and exactly one final event before returning. req.Gateway is
// ignored in favor of the Gateway passed to New, since sessions own a
// single fixed tool surface for their lifetime.
func (s *Session) Run(ctx context.Context, req enclave.ExecuteRequest, heartbeatInterval time.Duration) enclave.ExecuteResult {
	start := time.Now()
	ctx, cancel := context.WithCancel(ctx)
	s.cancelFn = cancel
	defer cancel()

	expires := start.Add(limitsSessionTTL(req.Limits.WithDefaults()))
	s.emitEvent(enclave.EventSessionInit, enclave.SessionInitPayload{
		ExpiresAt: expires,
	})

	if err := s.transition(StateRunning); err != nil {
		return s.fail(start, enclave.NewSessionError(enclave.ErrCodeExecutionError, err.Error(), nil))
	}

	stopHeartbeat := s.startHeartbeat(ctx, heartbeatInterval)
	defer stopHeartbeat()

	if err := req.Validate(); err != nil {
		return s.fail(start, enclave.NewSessionError(enclave.ErrCodeExecutionError, err.Error(), nil))
	}

	preset := presetForProfile(req.Profile)
	gres, err := guard.Validate(req.Code, preset)
	if err != nil {
		return s.fail(start, enclave.NewSessionError(enclave.ErrCodeParseError, err.Error(), err))
	}
	if !gres.OK {
		issue := gres.Issues[0]
		return s.fail(start, enclave.NewSessionError(issue.Code, issue.Message, nil))
	}

	transformed, err := transform.Transform(req.Code)
	if err != nil {
		return s.fail(start, enclave.NewSessionError(enclave.ErrCodeExecutionError, err.Error(), err))
	}

	limits := req.Limits.WithDefaults()
	runCtx := ctx
	if req.Timeout > 0 {
		var tcancel context.CancelFunc
		runCtx, tcancel = context.WithTimeout(ctx, req.Timeout)
		defer tcancel()
	}

	sink := &orchestratorSink{session: s, gateway: s.gateway, ctx: runCtx}
	br := bridge.New(sink, limits.MaxToolCalls, 0)
	sink.bridge = br

	sb := sandbox.New()
	result, err := sb.Run(runCtx, transformed.Source, sandbox.Config{
		Preset:  preset,
		Limits:  limits,
		Bridge:  br,
		Console: &orchestratorConsole{session: s},
	})
	if err != nil {
		return s.fail(start, enclave.NewSessionError(enclave.ErrCodeExecutionError, err.Error(), err))
	}
	if !result.Success {
		if ctx.Err() != nil {
			return s.cancelled(start, result)
		}
		return s.fail(start, result.Err)
	}

	_ = s.transition(StateCompleted)
	stats := enclave.FinalStats{
		DurationMs:    time.Since(start).Milliseconds(),
		ToolCallCount: len(s.snapshotRecords()),
		StdoutBytes:   int(result.Stats.ConsoleBytes),
	}
	s.emitEvent(enclave.EventFinal, enclave.FinalPayload{OK: true, Result: result.Value, Stats: stats})

	return enclave.ExecuteResult{
		Value:     result.Value,
		ToolCalls: s.snapshotRecords(),
		Duration:  time.Since(start),
		Backend:   enclave.BackendInfo{Kind: sandbox.BackendKindGoja},
		LimitsEnforced: enclave.LimitsEnforced{
			Timeout: true, ToolCalls: true, Iterations: true, Console: true,
		},
		Stats: stats,
	}
}

// Cancel cancels the session's context, which unblocks anything awaiting a
// tool result; Run then ends in Cancelled unless execution had already
// finished. reason is not recorded: the final event always carries the
// message "session cancelled".
func (s *Session) Cancel(reason string) {
	if s.cancelFn != nil {
		s.cancelFn()
	}
	_ = reason
}

func (s *Session) fail(start time.Time, serr *enclave.SessionError) enclave.ExecuteResult {
	_ = s.transition(StateFailed)
	stats := enclave.FinalStats{DurationMs: time.Since(start).Milliseconds(), ToolCallCount: len(s.snapshotRecords())}
	var ep *enclave.ErrorPayload
	if serr != nil {
		ep = &enclave.ErrorPayload{Code: serr.Code, Message: serr.Message}
	}
	s.emitEvent(enclave.EventFinal, enclave.FinalPayload{OK: false, Error: ep, Stats: stats})
	return enclave.ExecuteResult{Stats: stats}
}

func (s *Session) cancelled(start time.Time, result sandbox.RunResult) enclave.ExecuteResult {
	_ = s.transition(StateCancelled)
	stats := enclave.FinalStats{DurationMs: time.Since(start).Milliseconds(), ToolCallCount: len(s.snapshotRecords())}
	ep := &enclave.ErrorPayload{Code: enclave.ErrCodeCancelled, Message: "session cancelled"}
	s.emitEvent(enclave.EventFinal, enclave.FinalPayload{OK: false, Error: ep, Stats: stats})
	return enclave.ExecuteResult{Stats: stats}
}

func (s *Session) startHeartbeat(ctx context.Context, interval time.Duration) func() {
	if interval <= 0 {
		return func() {}
	}
	stop := make(chan struct{})
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				s.emitEvent(enclave.EventHeartbeat, enclave.HeartbeatPayload{})
			case <-ctx.Done():
				return
			case <-stop:
				return
			}
		}
	}()
	return func() { close(stop) }
}

func (s *Session) snapshotRecords() []enclave.ToolCallRecord {
	s.recordsMu.Lock()
	defer s.recordsMu.Unlock()
	out := make([]enclave.ToolCallRecord, len(s.records))
	copy(out, s.records)
	return out
}

func (s *Session) appendRecord(rec enclave.ToolCallRecord) {
	s.recordsMu.Lock()
	s.records = append(s.records, rec)
	s.recordsMu.Unlock()
}

// presetForProfile mirrors internal/sandbox's mapping (kept here too since
// the orchestrator composes Guard/Transform/Sandbox directly rather than
// going through sandbox.Backend, to get access to per-event emission).
func presetForProfile(p enclave.SecurityProfile) guard.Preset {
	switch p {
	case enclave.ProfileDev:
		return guard.PresetPermissive
	default:
		return guard.PresetSecure
	}
}

// limitsSessionTTL reads SessionTTLMs as a time.Duration.
func limitsSessionTTL(l enclave.Limits) time.Duration {
	return time.Duration(l.SessionTTLMs) * time.Millisecond
}
