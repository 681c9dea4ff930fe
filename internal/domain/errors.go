package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Every control-channel failure maps to exactly one of these.

var (
	// ErrBackendUnavailable: no devices or backend init failure. Fatal at
	// launch, never retried.
	ErrBackendUnavailable = errors.New("device backend unavailable")

	// ErrAllocationFailed: insufficient memory at claim time. Recoverable —
	// retried on a later tick or with a reduced size.
	ErrAllocationFailed = errors.New("device memory allocation failed")

	// ErrBackendTimeout: a backend query/compute call exceeded its bound.
	// Device-level fault only.
	ErrBackendTimeout = errors.New("device backend call timed out")

	// ErrInvalidConfig: out-of-range fields in a start/restart request.
	// Rejected before any state mutation.
	ErrInvalidConfig = errors.New("invalid hold config")

	// ErrProtocol: malformed control request. Connection closed, no state
	// change.
	ErrProtocol = errors.New("malformed control request")

	// ErrShuttingDown: command received after shutdown was accepted.
	ErrShuttingDown = errors.New("server is shutting down")
)

// Wire error codes, stable across releases. The CLI surfaces them verbatim.
const (
	CodeBackendUnavailable = "backend_unavailable"
	CodeAllocationFailed   = "allocation_failed"
	CodeBackendTimeout     = "backend_timeout"
	CodeInvalidConfig      = "invalid_config"
	CodeProtocol           = "protocol_error"
	CodeShuttingDown       = "shutting_down"
	CodeInternal           = "internal"
)

// ErrorCode maps an error to its wire code.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrBackendUnavailable):
		return CodeBackendUnavailable
	case errors.Is(err, ErrAllocationFailed):
		return CodeAllocationFailed
	case errors.Is(err, ErrBackendTimeout):
		return CodeBackendTimeout
	case errors.Is(err, ErrInvalidConfig):
		return CodeInvalidConfig
	case errors.Is(err, ErrProtocol):
		return CodeProtocol
	case errors.Is(err, ErrShuttingDown):
		return CodeShuttingDown
	default:
		return CodeInternal
	}
}
