package messages

import "errors"

var (
	// ErrBusy means the pool or a bounded queue is at capacity. Recoverable; the UI
	// gets a transient status.
	ErrBusy = errors.New("busy, please retry")

	// ErrProtocol marks a Result whose token is unknown, stale or already consumed.
	// It is logged and discarded, never fatal.
	ErrProtocol = errors.New("protocol error")

	// ErrChannelClosed is the orderly shutdown signal of a queue or the UI host.
	ErrChannelClosed = errors.New("channel closed")

	// ErrOperationFailure wraps a failed blocking call; it reaches the UI as ShowError.
	ErrOperationFailure = errors.New("operation failed")

	// ErrPoolFault marks a panic contained inside a worker slot.
	ErrPoolFault = errors.New("worker slot fault")

	// ErrTimeout marks an operation superseded by its deadline.
	ErrTimeout = errors.New("operation timed out")

	// ErrSuperseded marks an operation replaced by a newer one of the same kind.
	ErrSuperseded = errors.New("operation superseded")

	// ErrTokenPreassigned rejects requests whose producer set a token itself.
	ErrTokenPreassigned = errors.New("request token must be assigned by the orchestrator")
)
