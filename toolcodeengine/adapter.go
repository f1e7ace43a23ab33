// Package toolcodeengine provides an adapter that implements toolcode.Engine
// using enclave.Runtime for execution.
package toolcodeengine

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonwraymond/toolcode"
	enclave "github.com/jonwraymond/enclavejs"
)

// Config configures an Engine.
type Config struct {
	// Runtime is the enclave.Runtime to use for execution.
	Runtime enclave.Runtime

	// Profile is the security profile to use for execution.
	Profile enclave.SecurityProfile
}

// Engine implements toolcode.Engine using a enclave.Runtime backend.
type Engine struct {
	runtime enclave.Runtime
	profile enclave.SecurityProfile
}

// New creates a new Engine with the given configuration.
func New(cfg Config) *Engine {
	if cfg.Runtime == nil {
		// Fail fast rather than panic later on Execute.
		panic("toolcodeengine: runtime is required")
	}

	profile := cfg.Profile
	if profile == "" {
		profile = enclave.ProfileStandard
	}

	return &Engine{
		runtime: cfg.Runtime,
		profile: profile,
	}
}

// Execute implements toolcode.Engine by delegating to the underlying runtime.
func (e *Engine) Execute(ctx context.Context, params toolcode.ExecuteParams, tools toolcode.Tools) (toolcode.ExecuteResult, error) {
	if e.runtime == nil {
		return toolcode.ExecuteResult{}, enclave.ErrRuntimeUnavailable
	}

	// Wrap Tools into a ToolGateway
	gateway := WrapTools(tools)

	// Map toolcode.ExecuteParams to enclave.ExecuteRequest
	req := enclave.ExecuteRequest{
		Language: params.Language,
		Code:     params.Code,
		Timeout:  params.Timeout,
		Limits: enclave.Limits{
			MaxToolCalls: params.MaxToolCalls,
		},
		Profile: e.profile,
		Gateway: gateway,
	}

	// Execute via the runtime
	result, err := e.runtime.Execute(ctx, req)

	// Map errors
	if err != nil {
		return mapResult(result), mapError(err)
	}

	return mapResult(result), nil
}

// mapResult converts enclave.ExecuteResult to toolcode.ExecuteResult.
func mapResult(r enclave.ExecuteResult) toolcode.ExecuteResult {
	toolCalls := make([]toolcode.ToolCallRecord, len(r.ToolCalls))
	for i, tc := range r.ToolCalls {
		toolCalls[i] = toolcode.ToolCallRecord{
			ToolID:      tc.ToolID,
			BackendKind: tc.BackendKind,
			DurationMs:  tc.Duration.Milliseconds(),
			ErrorOp:     tc.ErrorOp,
		}
	}

	return toolcode.ExecuteResult{
		Value:      r.Value,
		Stdout:     r.Stdout,
		Stderr:     r.Stderr,
		ToolCalls:  toolCalls,
		DurationMs: r.Duration.Milliseconds(),
	}
}

// mapError converts enclave errors to toolcode errors.
func mapError(err error) error {
	if err == nil {
		return nil
	}

	// Map timeout and resource limit errors to ErrLimitExceeded
	if errors.Is(err, enclave.ErrTimeout) {
		return fmt.Errorf("%w: %v", toolcode.ErrLimitExceeded, err)
	}
	if errors.Is(err, enclave.ErrResourceLimit) {
		return fmt.Errorf("%w: %v", toolcode.ErrLimitExceeded, err)
	}

	// Map sandbox violation to ErrCodeExecution
	if errors.Is(err, enclave.ErrSandboxViolation) {
		return fmt.Errorf("%w: %v", toolcode.ErrCodeExecution, err)
	}

	// Return other errors as-is
	return err
}
