// Package bridge implements the Tool Bridge: the mediated path every
// callTool invocation from sandboxed code must take.
package bridge

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	enclave "github.com/jonwraymond/enclavejs"
	"github.com/jonwraymond/enclavejs/internal/serialize"
)

// Sink receives bridge-observable events so the owning session can emit
// them onto the wire with its own seq assignment — the orchestrator is the
// sole assigner of seq (§4.8), so the bridge never stamps one itself.
type Sink interface {
	ToolCall(callID enclave.CallID, toolName string, args map[string]interface{})
	ToolResultApplied(callID enclave.CallID)
}

// Result is what a pending call resolves or rejects with.
type Result struct {
	Value any
	Err   *enclave.SessionError
}

type pending struct {
	resultCh chan Result
}

// Bridge mediates callTool from sandboxed code to the broker's tool
// gateway. One Bridge exists per session: purging pending resolvers for a
// dead session (§4.4) is simply discarding that session's Bridge, so a
// CallID never needs to carry or be parsed for a session prefix.
type Bridge struct {
	mu             sync.Mutex
	pending        map[enclave.CallID]*pending
	sink           Sink
	maxCalls       int
	callCount      int64
	maxResultBytes int64
}

// New constructs a Bridge. maxCalls <= 0 means unlimited; maxResultBytes
// <= 0 selects serialize.DefaultMaxToolResultBytes.
func New(sink Sink, maxCalls int, maxResultBytes int64) *Bridge {
	return &Bridge{
		pending:        make(map[enclave.CallID]*pending),
		sink:           sink,
		maxCalls:       maxCalls,
		maxResultBytes: maxResultBytes,
	}
}

// Call is invoked by the sandbox's __safe_callTool host function. goja
// runs single-threaded, but blocking the calling goroutine here is safe:
// nothing else touches this VM while it's suspended awaiting a promise, so
// a synchronous channel receive is enough to implement the await without
// needing real concurrency inside the VM.
func (b *Bridge) Call(ctx context.Context, name string, args map[string]interface{}) (any, error) {
	if name == "" {
		return nil, enclave.NewSessionError(enclave.ErrCodeExecutionError, "tool name must be a non-empty string", nil)
	}
	if args == nil {
		args = map[string]interface{}{}
	}

	n := atomic.AddInt64(&b.callCount, 1)
	if b.maxCalls > 0 && int(n) > b.maxCalls {
		return nil, enclave.NewSessionError(enclave.ErrCodeToolCallLimit,
			fmt.Sprintf("tool call limit exceeded: %d", b.maxCalls), nil)
	}

	cleanArgs, err := serialize.Sanitize(args)
	if err != nil {
		return nil, enclave.NewSessionError(enclave.ErrCodeExecutionError, "tool arguments could not be sanitized", err)
	}
	sanitizedArgs, _ := cleanArgs.(map[string]interface{})
	if sanitizedArgs == nil {
		sanitizedArgs = map[string]interface{}{}
	}

	callID := enclave.NewCallID()
	p := &pending{resultCh: make(chan Result, 1)}

	b.mu.Lock()
	b.pending[callID] = p
	b.mu.Unlock()

	b.sink.ToolCall(callID, name, sanitizedArgs)

	select {
	case res := <-p.resultCh:
		b.mu.Lock()
		delete(b.pending, callID)
		b.mu.Unlock()
		b.sink.ToolResultApplied(callID)
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Value, nil
	case <-ctx.Done():
		b.mu.Lock()
		delete(b.pending, callID)
		b.mu.Unlock()
		return nil, enclave.NewSessionError(enclave.ErrCodeCancelled, "execution aborted", ctx.Err())
	}
}

// Resolve delivers a successful tool_result for callID. Reports false if
// callID has no pending call (unknown, already resolved, or timed out).
func (b *Bridge) Resolve(callID enclave.CallID, value any) bool {
	clean, err := serialize.SanitizeOrRef(value, b.maxResultBytes)
	if err != nil {
		return b.Reject(callID, enclave.ErrCodeExecutionError, err.Error())
	}
	return b.deliver(callID, Result{Value: clean})
}

// Reject delivers a failed tool_result for callID.
func (b *Bridge) Reject(callID enclave.CallID, code enclave.ErrorCode, message string) bool {
	return b.deliver(callID, Result{Err: enclave.NewSessionError(code, message, nil)})
}

func (b *Bridge) deliver(callID enclave.CallID, res Result) bool {
	b.mu.Lock()
	p, ok := b.pending[callID]
	b.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case p.resultCh <- res:
		return true
	default:
		// At-most-one pending resolution per callId (§4.4).
		return false
	}
}

// Abort rejects every pending call with a cancellation error. Idempotent:
// calling it again once the pending map is empty is a no-op.
func (b *Bridge) Abort() {
	b.mu.Lock()
	pendings := make([]*pending, 0, len(b.pending))
	for id, p := range b.pending {
		pendings = append(pendings, p)
		delete(b.pending, id)
	}
	b.mu.Unlock()
	for _, p := range pendings {
		select {
		case p.resultCh <- Result{Err: enclave.NewSessionError(enclave.ErrCodeCancelled, "execution aborted", nil)}:
		default:
		}
	}
}

// PendingCount reports outstanding calls.
func (b *Bridge) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}
