package parachute

import "errors"

// Sentinel errors for common failure modes.
var (
	// ErrValidation indicates a request or turn failed validation.
	ErrValidation = errors.New("validation error")

	// ErrTurnInProgress indicates a turn was started for a session that
	// already has a client-initiated turn in flight.
	ErrTurnInProgress = errors.New("turn already in progress for session")

	// ErrStreamClosed indicates an operation on a closed stream.
	ErrStreamClosed = errors.New("stream closed")

	// ErrNotFound indicates the server has nothing for the requested session.
	ErrNotFound = errors.New("not found")
)
