package termsort

import (
	"errors"

	"github.com/hupe1980/termsort/internal/buffer"
	"github.com/hupe1980/termsort/internal/checkpoint"
	"github.com/hupe1980/termsort/internal/dispatch"
	"github.com/hupe1980/termsort/internal/engine"
	"github.com/hupe1980/termsort/internal/merge"
	"github.com/hupe1980/termsort/internal/patch"
	"github.com/hupe1980/termsort/resource"
	"github.com/hupe1980/termsort/term"
)

var (
	// ErrTooLarge is returned by Push for a term longer than the maximum
	// term size. The sorter stays usable.
	ErrTooLarge = engine.ErrTooLarge

	// ErrMalformed is returned by Push for a term with broken framing.
	ErrMalformed = term.ErrMalformed

	// ErrPatchExhaustion is returned when the buffers are too small to merge
	// the file patches down to the fan-in.
	ErrPatchExhaustion = engine.ErrPatchExhaustion

	// ErrCorruptPatch is returned when a patch fails to decode or verify.
	ErrCorruptPatch = patch.ErrCorrupt

	// ErrFailed is returned by every call after a fatal error.
	ErrFailed = engine.ErrFailed

	// ErrClosed is returned after Close.
	ErrClosed = engine.ErrClosed

	// ErrStreamOpen is returned while the output of the previous Finish is
	// still being read.
	ErrStreamOpen = engine.ErrStreamOpen

	// ErrInvalidConfig is returned for inconsistent buffer sizes.
	ErrInvalidConfig = engine.ErrInvalidConfig

	// ErrMemoryLimitExceeded is returned when the buffers can never fit the
	// memory limit of the resource controller.
	ErrMemoryLimitExceeded = resource.ErrMemoryLimitExceeded

	// ErrSchedulingTimeout is reported when a worker found no bucket within
	// the retry policy. Workers retry it on their own.
	ErrSchedulingTimeout = dispatch.ErrSchedulingTimeout

	// ErrSortBlockInconsistent is returned when a worker's output marks are
	// out of order.
	ErrSortBlockInconsistent = dispatch.ErrSortBlockInconsistent

	// ErrNoCheckpointStore is returned by Checkpoint without WithCheckpointStore.
	ErrNoCheckpointStore = errors.New("termsort: no checkpoint store configured")

	// ErrCheckpointNotFound is returned by Resume when the store holds no
	// checkpoint.
	ErrCheckpointNotFound = checkpoint.ErrNotFound
)

// TooLargeError reports the size of a rejected term.
type TooLargeError = buffer.TooLargeError

// PatchExhaustionError carries the numbers needed to retune the buffers.
type PatchExhaustionError = merge.PatchExhaustionError
