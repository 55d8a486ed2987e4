package capture

import "errors"

// Sentinel errors returned by [Engine] operations. Callers match them with
// [errors.Is]; the engine wraps them with operation context before returning
// or emitting them.
var (
	// ErrPermission means the microphone could not be acquired at all:
	// denied, absent or unopenable. Fatal to StartRecording.
	ErrPermission = errors.New("microphone unavailable")

	// ErrOverconstrained means the requested device constraint could not be
	// satisfied. The engine recovers by retrying once against the default
	// input, so the sentinel surfaces only through diagnostic events.
	ErrOverconstrained = errors.New("device constraint not satisfiable")

	// ErrCapabilityFallback means the realtime callback path is unsupported
	// or failed and the engine switched to polling. Diagnostic only.
	ErrCapabilityFallback = errors.New("realtime capture unavailable")

	// ErrEmptyRecording means a take was stopped before any samples arrived.
	ErrEmptyRecording = errors.New("recording captured no samples")

	// ErrInvalidState means the operation is not legal in the session's
	// current state.
	ErrInvalidState = errors.New("invalid state transition")
)
