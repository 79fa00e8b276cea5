package engine

import (
	"errors"

	"github.com/hupe1980/termsort/internal/buffer"
	"github.com/hupe1980/termsort/internal/merge"
)

var (
	// ErrClosed is returned by operations on a closed SortContext.
	ErrClosed = errors.New("sort context closed")

	// ErrInvalidConfig is returned when a Config is inconsistent.
	ErrInvalidConfig = errors.New("invalid sort configuration")

	// ErrFailed is returned by every call after a fatal error. The fatal
	// error is wrapped alongside.
	ErrFailed = errors.New("sort context failed")

	// ErrStreamOpen is returned when the previous output stream of the
	// context has not been closed yet.
	ErrStreamOpen = errors.New("output stream still open")

	// ErrTooLarge is returned by Push for terms above MaxTermSize.
	ErrTooLarge = buffer.ErrTooLarge

	// ErrPatchExhaustion is returned when no merge stage can make progress.
	ErrPatchExhaustion = merge.ErrPatchExhaustion
)
