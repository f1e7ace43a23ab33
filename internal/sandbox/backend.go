package sandbox

import (
	"context"
	"sync"
	"time"

	enclave "github.com/jonwraymond/enclavejs"
	"github.com/jonwraymond/enclavejs/internal/bridge"
	"github.com/jonwraymond/enclavejs/internal/guard"
	"github.com/jonwraymond/enclavejs/internal/transform"
)

// BackendKindGoja identifies this in-process goja-backed backend, the only
// enclave.Backend implementation in this module.
const BackendKindGoja enclave.BackendKind = "sandbox_goja"

// Backend adapts Sandbox+Guard+Transform into the enclave.Backend
// contract, so the JS sandbox can be selected through enclave.Runtime like
// any other enclave.Backend.
type Backend struct {
	sandbox *Sandbox
}

// NewBackend constructs a goja-backed enclave.Backend.
func NewBackend() *Backend {
	return &Backend{sandbox: New()}
}

func (b *Backend) Kind() enclave.BackendKind { return BackendKindGoja }

// Execute runs req.Code through Guard, Transform, and Sandbox in sequence,
// mapping the security profile onto a guard preset per DESIGN.md's
// profile-to-preset decision.
func (b *Backend) Execute(ctx context.Context, req enclave.ExecuteRequest) (enclave.ExecuteResult, error) {
	if err := req.Validate(); err != nil {
		return enclave.ExecuteResult{}, err
	}

	preset := presetForProfile(req.Profile)
	gres, err := guard.Validate(req.Code, preset)
	if err != nil {
		return enclave.ExecuteResult{}, enclave.NewSessionError(enclave.ErrCodeExecutionError, err.Error(), err)
	}
	if !gres.OK {
		issue := gres.Issues[0]
		return enclave.ExecuteResult{}, enclave.NewSessionError(issue.Code, issue.Message, nil)
	}

	transformed, err := transform.Transform(req.Code)
	if err != nil {
		return enclave.ExecuteResult{}, enclave.NewSessionError(enclave.ErrCodeExecutionError, err.Error(), err)
	}

	runCtx := ctx
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	limits := req.Limits.WithDefaults()

	var mu sync.Mutex
	var records []enclave.ToolCallRecord
	sink := &gatewaySink{ctx: runCtx, gateway: req.Gateway, records: &records, mu: &mu}
	br := bridge.New(sink, limits.MaxToolCalls, 0)
	sink.bridge = br

	cfg := Config{Preset: preset, Limits: limits, Bridge: br}
	result, err := b.sandbox.Run(runCtx, transformed.Source, cfg)
	if err != nil {
		return enclave.ExecuteResult{}, err
	}

	out := enclave.ExecuteResult{
		Value:     result.Value,
		ToolCalls: records,
		Duration:  time.Duration(result.Stats.DurationMs) * time.Millisecond,
		Backend:   enclave.BackendInfo{Kind: b.Kind()},
		LimitsEnforced: enclave.LimitsEnforced{
			Timeout:    true,
			ToolCalls:  true,
			Iterations: true,
			Console:    true,
		},
		Stats: enclave.FinalStats{
			DurationMs:    result.Stats.DurationMs,
			ToolCallCount: len(records),
			StdoutBytes:   int(result.Stats.ConsoleBytes),
		},
	}
	if !result.Success {
		if result.Err != nil {
			return out, result.Err
		}
		return out, enclave.NewSessionError(enclave.ErrCodeExecutionError, "execution failed", nil)
	}
	return out, nil
}

// presetForProfile maps SecurityProfile onto a Guard preset (DESIGN.md):
// dev is relaxed for local iteration, standard/hardened both enforce the
// mediated-access dialect. Hardened gets no stricter guard, caps or
// encryption than standard, here or at the session layer.
func presetForProfile(p enclave.SecurityProfile) guard.Preset {
	switch p {
	case enclave.ProfileDev:
		return guard.PresetPermissive
	case enclave.ProfileHardened:
		return guard.PresetSecure
	default:
		return guard.PresetSecure
	}
}

// gatewaySink bridges the Tool Bridge's callback-shaped Sink interface to
// the synchronous, non-streaming enclave.ToolGateway used by direct
// (non-broker) execution paths.
type gatewaySink struct {
	ctx     context.Context
	gateway enclave.ToolGateway
	bridge  *bridge.Bridge
	records *[]enclave.ToolCallRecord
	mu      *sync.Mutex
}

func (g *gatewaySink) ToolCall(callID enclave.CallID, name string, args map[string]interface{}) {
	go func() {
		start := time.Now()
		res, err := g.gateway.RunTool(g.ctx, name, args)
		g.mu.Lock()
		*g.records = append(*g.records, enclave.ToolCallRecord{
			ToolID:   name,
			Duration: time.Since(start),
		})
		g.mu.Unlock()
		if err != nil {
			g.bridge.Reject(callID, enclave.ErrCodeExecutionError, err.Error())
			return
		}
		g.bridge.Resolve(callID, res.Structured)
	}()
}

func (g *gatewaySink) ToolResultApplied(enclave.CallID) {}
