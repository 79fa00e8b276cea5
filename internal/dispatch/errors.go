package dispatch

import "errors"

var (
	// ErrSchedulingTimeout is returned by Claim when no bucket could be
	// obtained within the retry policy. The condition is recoverable.
	ErrSchedulingTimeout = errors.New("dispatch: scheduling timeout")

	// ErrClosed is returned once the dispatcher is closed and drained.
	ErrClosed = errors.New("dispatch: closed")

	// ErrSortBlockInconsistent is returned when a SortBlock snapshot violates
	// start <= read <= fill <= stop.
	ErrSortBlockInconsistent = errors.New("dispatch: inconsistent sort block")

	// ErrAborted is returned to a worker whose reader went away.
	ErrAborted = errors.New("dispatch: sort block aborted")
)
