package session

import (
	"context"
	"time"

	enclave "github.com/jonwraymond/enclavejs"
	"github.com/jonwraymond/enclavejs/internal/bridge"
)

// orchestratorSink bridges the Tool Bridge's callback-shaped Sink to a
// Session: it performs the actual tool execution against the session's
// fixed ToolGateway and emits tool_call/tool_result_applied wire events
// with orchestrator-assigned seq, mirroring Running ⇄ WaitingForTool.
type orchestratorSink struct {
	session *Session
	gateway enclave.ToolGateway
	bridge  *bridge.Bridge
	ctx     context.Context
}

var _ bridge.Sink = (*orchestratorSink)(nil)

func (o *orchestratorSink) ToolCall(callID enclave.CallID, name string, args map[string]interface{}) {
	_ = o.session.transition(StateWaitingForTool)
	o.session.emitEvent(enclave.EventToolCall, enclave.ToolCallPayload{
		CallID:   callID,
		ToolName: name,
		Args:     args,
	})

	go func() {
		start := time.Now()
		res, err := o.gateway.RunTool(o.ctx, name, args)
		o.session.appendRecord(enclave.ToolCallRecord{ToolID: name, Duration: time.Since(start)})
		if err != nil {
			o.bridge.Reject(callID, enclave.ErrCodeExecutionError, err.Error())
			return
		}
		o.bridge.Resolve(callID, res.Structured)
	}()
}

func (o *orchestratorSink) ToolResultApplied(callID enclave.CallID) {
	_ = o.session.transition(StateRunning)
	o.session.emitEvent(enclave.EventToolResultApplied, enclave.ToolResultAppliedPayload{CallID: callID})
}

// orchestratorConsole bridges sandbox.ConsoleSink into log wire events.
type orchestratorConsole struct {
	session *Session
}

func (c *orchestratorConsole) Console(level enclave.LogLevel, message string) {
	c.session.emitEvent(enclave.EventLog, enclave.LogPayload{Level: level, Message: message})
}
