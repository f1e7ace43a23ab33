package enclave

import "fmt"

// ErrorCode is a machine-readable error classification carried in StreamEvents
// and broker HTTP responses. It is the tagged-sum-type replacement for the
// dynamic error-class hierarchy the source platform used (see DESIGN.md).
type ErrorCode string

const (
	// Validation errors (Guard, §4.1/§7).
	ErrCodeForbiddenIdentifier ErrorCode = "AST_FORBIDDEN_IDENTIFIER"
	ErrCodeForbiddenMember     ErrorCode = "AST_FORBIDDEN_MEMBER"
	ErrCodeDynamicCode         ErrorCode = "AST_DYNAMIC_CODE"
	ErrCodeLoopNotAllowed      ErrorCode = "AST_LOOP_NOT_ALLOWED"
	ErrCodePrescanRejected     ErrorCode = "AST_PRESCAN_REJECTED"
	ErrCodeParseError          ErrorCode = "AST_PARSE_ERROR"

	// Runtime errors (Sandbox/Bridge, §4.3/§4.4/§7).
	ErrCodeExecutionError ErrorCode = "EXECUTION_ERROR"
	ErrCodeTimeout        ErrorCode = "TIMEOUT"
	ErrCodeIterationLimit ErrorCode = "ITERATION_LIMIT"
	ErrCodeToolCallLimit  ErrorCode = "TOOL_CALL_LIMIT"
	ErrCodeConsoleLimit   ErrorCode = "CONSOLE_LIMIT"
	ErrCodeCancelled      ErrorCode = "CANCELLED"

	// Protocol errors (NDJSON/session, §4.6/§4.8/§7).
	ErrCodeUnknownSession           ErrorCode = "UNKNOWN_SESSION"
	ErrCodeUnknownCall              ErrorCode = "UNKNOWN_CALL"
	ErrCodeProtocolVersionMismatch  ErrorCode = "PROTOCOL_VERSION_MISMATCH"
	ErrCodeSchemaInvalid            ErrorCode = "SCHEMA_INVALID"
	ErrCodeReplayUnavailable        ErrorCode = "REPLAY_UNAVAILABLE"

	// Crypto errors (§4.7).
	ErrCodeHandshakeFailed            ErrorCode = "HandshakeFailed"
	ErrCodeKeyDerivationFailed        ErrorCode = "KeyDerivationFailed"
	ErrCodeDecryptionFailed           ErrorCode = "DecryptionFailed"
	ErrCodeNonceReuse                 ErrorCode = "NonceReuse"
	ErrCodeKeyExpired                 ErrorCode = "KeyExpired"
	ErrCodeUnsupportedAlgorithm       ErrorCode = "UnsupportedAlgorithm"
	ErrCodeInvalidPublicKey           ErrorCode = "InvalidPublicKey"
	ErrCodeSignatureVerificationFailed ErrorCode = "SignatureVerificationFailed"
)

// SessionError is the shared {code, message, cause?} error shape carried in
// error events, final.error, and broker 4xx bodies. It plays the same role
// RuntimeError plays for backend errors, but keyed by the wire-level
// ErrorCode rather than a BackendKind.
type SessionError struct {
	// Code is the machine-readable classification.
	Code ErrorCode

	// Message is a human-readable description, sanitized per §7 before
	// leaving the process (stack traces stripped, paths removed).
	Message string

	// Cause is the underlying error, if any. Not serialized on the wire.
	Cause error
}

func (e *SessionError) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *SessionError) Unwrap() error { return e.Cause }

// NewSessionError constructs a SessionError, wrapping cause if non-nil.
func NewSessionError(code ErrorCode, message string, cause error) *SessionError {
	return &SessionError{Code: code, Message: message, Cause: cause}
}
