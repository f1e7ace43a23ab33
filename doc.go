// Package enclave provides execution runtime and isolation boundaries for
// code-oriented orchestration. It sits underneath toolcode and provides:
//
//   - Backend-agnostic runtime interface for executing code in sandboxed environments
//   - Pluggable sandbox backends (from unsafe development mode to hardened isolation)
//   - Clean trust boundary for running untrusted code that can still call tools
//   - ToolGateway abstraction for exposing tool discovery and execution to sandboxes
//
// The runtime enforces security through SecurityProfiles that determine which
// backends are allowed and what resource limits apply. The ToolGateway provides
// a proxy interface for sandboxed code to discover and execute tools without
// direct access to host resources.
//
// # Architecture
//
// The main types are:
//
//   - Runtime: Main execution interface that routes requests to backends
//   - Backend: Sandbox implementation (see Backend Kinds below)
//   - ToolGateway: Interface for tool operations exposed to sandboxed code
//   - ExecuteRequest/ExecuteResult: Request/response types for execution
//
// # Security Profiles
//
// Three security profiles are supported:
//
//   - ProfileDev: Development mode with minimal restrictions
//   - ProfileStandard: Standard isolation
//   - ProfileHardened: The strictest profile
//
// internal/sandbox's backend and internal/session map ProfileDev to the
// guard's PERMISSIVE preset and both ProfileStandard and ProfileHardened to
// its SECURE preset; ProfileHardened adds no further restrictions there.
//
// # Backend Kinds
//
// One execution backend is implemented in this module:
//
//   - sandbox.BackendKindGoja ("sandbox_goja"): Guard+Transform+Sandbox
//     execution in an in-process goja.Runtime (internal/sandbox)
//
// BackendKind also names BackendUnsafeHost (direct host execution, which
// DefaultRuntime refuses for profiles listed in DenyUnsafeProfiles) and
// isolation mechanisms (Docker, containerd,
// Kubernetes, gVisor, Kata, Firecracker, WASM, Temporal, a generic remote
// runner) that this module does not ship implementations of; an external,
// out-of-process runner identifying as one of these can still mediate
// tool calls back through gateway/proxy (see DESIGN.md).
//
// # Security Requirements
//
// All non-unsafe backends MUST:
//
//  1. Run as non-root
//  2. Enforce timeouts and cancellation
//  3. Enforce tool call and chain step limits
//  4. Deny host filesystem access by default
//  5. Deny network egress by default
//  6. Provide resource controls where available
//  7. Treat tool schemas/docs/annotations as untrusted input
//
// Backends that cannot enforce a given limit must report that clearly
// via the LimitsEnforced field in ExecuteResult.
package enclave
