package resumable

import "errors"

var (
	// ErrCompleted is returned when resuming an instance that already ran
	// to completion.
	ErrCompleted = errors.New("resumable: instance already completed")

	// ErrReentrant is returned when resuming an instance from within one of
	// its own turns.
	ErrReentrant = errors.New("resumable: instance is already running")

	// ErrUnmappedState is returned when an instance is entered with a state
	// that the dispatch of its procedure does not recognize. It indicates a
	// bug in the lowering, or a corrupted snapshot.
	ErrUnmappedState = errors.New("resumable: unmapped state")

	// ErrMalformed is returned when a procedure cannot be executed: a jump
	// to an undeclared label, a bad slot, or an exception escaping the
	// procedure body.
	ErrMalformed = errors.New("resumable: malformed procedure")

	// ErrNotSuspended is returned when snapshotting an instance which is
	// not suspended.
	ErrNotSuspended = errors.New("resumable: instance is not suspended")
)
