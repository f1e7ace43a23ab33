package enclave

import (
	"context"
	"fmt"
	"time"

	"github.com/jonwraymond/tooldocs"
	"github.com/jonwraymond/toolindex"
	"github.com/jonwraymond/toolrun"
)

// SecurityProfile determines the security level for execution.
// Higher security profiles impose more restrictions but provide better isolation.
type SecurityProfile string

const (
	// ProfileDev is development mode with minimal restrictions.
	// internal/sandbox's backend and internal/session run it in goja under
	// the guard's PERMISSIVE preset.
	ProfileDev SecurityProfile = "dev"

	// ProfileStandard provides standard isolation.
	// internal/sandbox's backend and internal/session run it in goja under
	// the guard's SECURE preset with the iteration, tool-call and console
	// caps from Limits.
	ProfileStandard SecurityProfile = "standard"

	// ProfileHardened names the strictest profile. internal/sandbox's
	// backend and internal/session treat it exactly like ProfileStandard
	// (SECURE preset, same limits); no seccomp, syscall filtering or
	// stricter limits are applied in this module.
	ProfileHardened SecurityProfile = "hardened"
)

// IsValid returns true if the SecurityProfile is a known valid value.
func (p SecurityProfile) IsValid() bool {
	switch p {
	case ProfileDev, ProfileStandard, ProfileHardened:
		return true
	default:
		return false
	}
}

// BackendKind identifies the type of execution backend. Only
// internal/sandbox's BackendKindGoja ("sandbox_goja") has an implementation
// in this module; BackendUnsafeHost and the rest name mechanisms an
// external, out-of-process runner could identify itself as when it dials
// back in over gateway/proxy for tool-call mediation (see DESIGN.md) —
// the mechanism itself is intentionally not shipped here.
type BackendKind string

const (
	// BackendUnsafeHost runs code directly on the host.
	// WARNING: No isolation - use only for trusted code in development.
	BackendUnsafeHost BackendKind = "unsafe_host"

	// BackendDocker runs code in Docker containers.
	// Good default isolation with cgroups, read-only rootfs, user remapping, and seccomp.
	BackendDocker BackendKind = "docker"

	// BackendContainerd runs code via containerd directly.
	// Similar to Docker but more infrastructure-native for servers/agents.
	BackendContainerd BackendKind = "containerd"

	// BackendKubernetes executes snippets in short-lived pods/jobs.
	// Isolation depends on configured runtime class; best for scheduling and multi-tenant controls.
	BackendKubernetes BackendKind = "kubernetes"

	// BackendGVisor runs code with gVisor (runsc) for stronger isolation.
	// Appropriate for untrusted multi-tenant execution.
	BackendGVisor BackendKind = "gvisor"

	// BackendKata runs code in Kata Containers for VM-level isolation.
	// Stronger isolation than plain containers.
	BackendKata BackendKind = "kata"

	// BackendFirecracker runs code in Firecracker microVMs.
	// Strongest isolation; higher complexity and operational cost.
	BackendFirecracker BackendKind = "firecracker"

	// BackendWASM runs code compiled to WebAssembly.
	// Strong in-process isolation; requires constrained SDK surface.
	BackendWASM BackendKind = "wasm"

	// BackendTemporal treats snippet execution as a Temporal workflow/activity.
	// Useful for long-running or resumable executions.
	// Note: Temporal is orchestration, not isolation - must compose with sandbox backends.
	BackendTemporal BackendKind = "temporal"

	// BackendRemote executes code on a remote runtime service.
	// Generic target for dedicated runtime services, batch systems, or job runners.
	BackendRemote BackendKind = "remote"
)

// Limits specifies resource limits for execution.
// Zero values represent "unlimited" for that resource, except for the
// fields WithDefaults fills (MaxToolCalls, MaxIterations, SessionTTLMs,
// ToolTimeoutMs, MaxStdoutBytes); both execution paths in this module
// (internal/sandbox's backend and internal/session) apply WithDefaults.
type Limits struct {
	// MaxToolCalls limits the number of tool invocations.
	// Zero means the default (50) applies.
	MaxToolCalls int

	// MaxChainSteps limits the number of steps in a tool chain.
	// Zero means unlimited.
	MaxChainSteps int

	// CPUQuotaMillis limits CPU time in milliseconds.
	// Zero means unlimited.
	CPUQuotaMillis int64

	// MemoryBytes limits memory usage in bytes.
	// Zero means unlimited.
	MemoryBytes int64

	// PidsMax limits the number of processes/threads.
	// Zero means unlimited.
	PidsMax int64

	// DiskBytes limits disk usage in bytes.
	// Zero means unlimited.
	DiskBytes int64

	// MaxIterations limits loop-statement iterations across the whole
	// execution (§4.2/§4.3 transform+sandbox). Zero means the sandbox's
	// built-in default (10000) applies.
	MaxIterations int64

	// SessionTTLMs bounds the total lifetime of a session (§4.10).
	// Zero means the orchestrator's default (60000ms) applies.
	SessionTTLMs int64

	// ToolTimeoutMs is the per-tool-invocation limit (§4.10). WithDefaults
	// fills 30000ms for zero, but neither the bridge nor the sandbox reads
	// it: a tool invocation is bounded only by the execution's context.
	ToolTimeoutMs int64

	// MaxStdoutBytes is the cumulative stdout limit (§4.10). WithDefaults
	// fills 256KiB for zero, but the sandbox does not read it: console
	// output is capped only by MaxConsoleCalls and MaxConsoleOutputBytes.
	MaxStdoutBytes int64

	// MaxConsoleCalls caps the number of console.* invocations (§4.3).
	// Zero means unlimited.
	MaxConsoleCalls int

	// MaxConsoleOutputBytes caps cumulative console output bytes (§4.3).
	// Zero means unlimited.
	MaxConsoleOutputBytes int64
}

// Validate checks that all limit values are valid (non-negative).
func (l Limits) Validate() error {
	if l.MaxToolCalls < 0 {
		return fmt.Errorf("%w: MaxToolCalls cannot be negative", ErrInvalidLimits)
	}
	if l.MaxChainSteps < 0 {
		return fmt.Errorf("%w: MaxChainSteps cannot be negative", ErrInvalidLimits)
	}
	if l.CPUQuotaMillis < 0 {
		return fmt.Errorf("%w: CPUQuotaMillis cannot be negative", ErrInvalidLimits)
	}
	if l.MemoryBytes < 0 {
		return fmt.Errorf("%w: MemoryBytes cannot be negative", ErrInvalidLimits)
	}
	if l.PidsMax < 0 {
		return fmt.Errorf("%w: PidsMax cannot be negative", ErrInvalidLimits)
	}
	if l.DiskBytes < 0 {
		return fmt.Errorf("%w: DiskBytes cannot be negative", ErrInvalidLimits)
	}
	if l.MaxIterations < 0 {
		return fmt.Errorf("%w: MaxIterations cannot be negative", ErrInvalidLimits)
	}
	if l.SessionTTLMs < 0 {
		return fmt.Errorf("%w: SessionTTLMs cannot be negative", ErrInvalidLimits)
	}
	if l.ToolTimeoutMs < 0 {
		return fmt.Errorf("%w: ToolTimeoutMs cannot be negative", ErrInvalidLimits)
	}
	if l.MaxStdoutBytes < 0 {
		return fmt.Errorf("%w: MaxStdoutBytes cannot be negative", ErrInvalidLimits)
	}
	if l.MaxConsoleCalls < 0 {
		return fmt.Errorf("%w: MaxConsoleCalls cannot be negative", ErrInvalidLimits)
	}
	if l.MaxConsoleOutputBytes < 0 {
		return fmt.Errorf("%w: MaxConsoleOutputBytes cannot be negative", ErrInvalidLimits)
	}
	return nil
}

// DefaultLimits returns the limits applied when a caller leaves a field
// at its zero value.
func DefaultLimits() Limits {
	return Limits{
		MaxToolCalls:          50,
		MaxIterations:         10000,
		SessionTTLMs:          60_000,
		ToolTimeoutMs:         30_000,
		MaxStdoutBytes:        256 * 1024,
		MaxConsoleCalls:       0,
		MaxConsoleOutputBytes: 0,
	}
}

// WithDefaults returns a copy of l with every zero-valued field replaced by
// DefaultLimits' value for that field.
func (l Limits) WithDefaults() Limits {
	d := DefaultLimits()
	if l.MaxToolCalls == 0 {
		l.MaxToolCalls = d.MaxToolCalls
	}
	if l.MaxIterations == 0 {
		l.MaxIterations = d.MaxIterations
	}
	if l.SessionTTLMs == 0 {
		l.SessionTTLMs = d.SessionTTLMs
	}
	if l.ToolTimeoutMs == 0 {
		l.ToolTimeoutMs = d.ToolTimeoutMs
	}
	if l.MaxStdoutBytes == 0 {
		l.MaxStdoutBytes = d.MaxStdoutBytes
	}
	return l
}

// ExecuteRequest specifies the parameters for code execution.
type ExecuteRequest struct {
	// Language specifies the programming language of the code.
	// If empty, the backend's default language is used.
	Language string

	// Code is the source code to execute.
	// Required.
	Code string

	// Timeout specifies the maximum duration for execution.
	// If zero, the backend's default timeout is used.
	Timeout time.Duration

	// Limits specifies resource limits for execution.
	Limits Limits

	// Profile specifies the security profile to use.
	// If empty, the runtime's default profile is used.
	Profile SecurityProfile

	// Gateway is the tool gateway exposed to the executed code.
	// Required.
	Gateway ToolGateway

	// Metadata contains arbitrary metadata for the execution.
	Metadata map[string]any
}

// Validate checks that the request is valid.
func (r ExecuteRequest) Validate() error {
	if r.Gateway == nil {
		return ErrMissingGateway
	}
	if r.Code == "" {
		return ErrMissingCode
	}
	if err := r.Limits.Validate(); err != nil {
		return err
	}
	return nil
}

// EffectiveLanguage returns Language, defaulting to "javascript" — the only
// language the guard/transform/sandbox trio understands (§1).
func (r ExecuteRequest) EffectiveLanguage() string {
	if r.Language == "" {
		return "javascript"
	}
	return r.Language
}

// ExecuteResult contains the outcome of code execution.
type ExecuteResult struct {
	// Value is the final result of the code execution.
	// For the goja sandbox this is the value the program returns.
	Value any

	// Stdout contains any output written to stdout.
	Stdout string

	// Stderr contains any output written to stderr.
	Stderr string

	// ToolCalls records all tool invocations made during execution.
	ToolCalls []ToolCallRecord

	// Duration is the total execution time.
	Duration time.Duration

	// Backend contains information about the backend that executed the code.
	Backend BackendInfo

	// LimitsEnforced reports which limits the backend was able to enforce.
	// Backends that cannot enforce a given limit should set that field to false.
	// This allows callers to know when limits degraded gracefully.
	LimitsEnforced LimitsEnforced

	// Stats mirrors the final.stats wire payload (§3) for callers that don't
	// go through the NDJSON stream (e.g. the toolcodeengine adapter).
	Stats FinalStats
}

// LimitsEnforced reports which resource limits were actually enforced by the backend.
// Backends that cannot enforce a limit should set that field to false.
type LimitsEnforced struct {
	// Timeout indicates whether the timeout was enforced.
	Timeout bool

	// ToolCalls indicates whether tool call limits were enforced.
	ToolCalls bool

	// ChainSteps indicates whether chain step limits were enforced.
	ChainSteps bool

	// Memory indicates whether memory limits were enforced.
	Memory bool

	// CPU indicates whether CPU limits were enforced.
	CPU bool

	// Pids indicates whether process limits were enforced.
	Pids bool

	// Disk indicates whether disk limits were enforced.
	Disk bool

	// Iterations indicates whether the loop-iteration cap was enforced.
	Iterations bool

	// Console indicates whether console call/byte caps were enforced.
	Console bool
}

// ToolCallRecord captures information about a single tool invocation.
type ToolCallRecord struct {
	// ToolID is the canonical identifier of the tool that was called.
	ToolID string

	// BackendKind indicates which backend executed the tool.
	BackendKind string

	// Duration is the execution time for this tool call.
	Duration time.Duration

	// ErrorOp indicates the operation that failed, if any.
	ErrorOp string
}

// BackendInfo contains information about the execution backend.
type BackendInfo struct {
	// Kind identifies the type of backend.
	Kind BackendKind

	// Details contains backend-specific information.
	Details map[string]any
}

// ToolGateway is the interface for tool operations exposed to sandboxed code.
// It provides a proxy for tool discovery and execution while maintaining
// the trust boundary between the sandbox and the host.
type ToolGateway interface {
	// SearchTools searches for tools matching the query.
	SearchTools(ctx context.Context, query string, limit int) ([]toolindex.Summary, error)

	// ListNamespaces returns all available tool namespaces.
	ListNamespaces(ctx context.Context) ([]string, error)

	// DescribeTool returns documentation for a tool at the specified detail level.
	DescribeTool(ctx context.Context, id string, level tooldocs.DetailLevel) (tooldocs.ToolDoc, error)

	// ListToolExamples returns up to max usage examples for a tool.
	ListToolExamples(ctx context.Context, id string, max int) ([]tooldocs.ToolExample, error)

	// RunTool executes a single tool and returns the result.
	RunTool(ctx context.Context, id string, args map[string]any) (toolrun.RunResult, error)

	// RunChain executes a sequence of tool calls.
	RunChain(ctx context.Context, steps []toolrun.ChainStep) (toolrun.RunResult, []toolrun.StepResult, error)
}
