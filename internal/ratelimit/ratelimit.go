// Package ratelimit paces and admission-controls two distinct resources:
// per-session tool call pacing and the broker-global maxConcurrentSessions
// cap.
package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	enclave "github.com/jonwraymond/enclavejs"
)

// ToolCallPacer smooths bursts of __safe_callTool invocations within one
// session: a token bucket sized so maxToolCalls can be spent across
// sessionTtlMs without bursting all of them in the first millisecond. The
// hard ceiling itself is still enforced by internal/bridge's own counter;
// this only shapes the traffic leading up to it.
type ToolCallPacer struct {
	limiter *rate.Limiter
}

// NewToolCallPacer builds a pacer from a session's resolved limits. A
// maxToolCalls of zero or a sessionTTL of zero disables pacing (Wait always
// returns immediately).
func NewToolCallPacer(limits enclave.Limits) *ToolCallPacer {
	if limits.MaxToolCalls <= 0 || limits.SessionTTLMs <= 0 {
		return &ToolCallPacer{limiter: rate.NewLimiter(rate.Inf, 0)}
	}
	window := time.Duration(limits.SessionTTLMs) * time.Millisecond
	perSecond := float64(limits.MaxToolCalls) / window.Seconds()
	burst := limits.MaxToolCalls
	if burst < 1 {
		burst = 1
	}
	return &ToolCallPacer{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Wait blocks until a token is available or ctx is cancelled.
func (p *ToolCallPacer) Wait(ctx context.Context) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return enclave.NewSessionError(enclave.ErrCodeToolCallLimit, "tool call rate exceeded", err)
	}
	return nil
}

// SessionAdmitter enforces the broker-global maxConcurrentSessions cap
// (§4.10) as a counting semaphore. A rate.Limiter models throughput, not
// concurrency, so a buffered channel is the idiomatic fit here.
type SessionAdmitter struct {
	slot chan struct{}
	max  int
}

// NewSessionAdmitter builds an admitter. maxConcurrent <= 0 means unlimited.
func NewSessionAdmitter(maxConcurrent int) *SessionAdmitter {
	if maxConcurrent <= 0 {
		return &SessionAdmitter{max: 0}
	}
	return &SessionAdmitter{slot: make(chan struct{}, maxConcurrent), max: maxConcurrent}
}

// TryAcquire reserves a slot without blocking. Reports false if the broker
// is already at maxConcurrentSessions.
func (a *SessionAdmitter) TryAcquire() bool {
	if a.max == 0 {
		return true
	}
	select {
	case a.slot <- struct{}{}:
		return true
	default:
		return false
	}
}

// Release frees a slot previously obtained via TryAcquire. No-op when
// unlimited.
func (a *SessionAdmitter) Release() {
	if a.max == 0 {
		return
	}
	select {
	case <-a.slot:
	default:
	}
}

// InUse reports the number of currently held slots.
func (a *SessionAdmitter) InUse() int {
	if a.max == 0 {
		return 0
	}
	return len(a.slot)
}
