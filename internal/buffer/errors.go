package buffer

import (
	"errors"
	"fmt"
)

var (
	// ErrTooLarge is returned for a term that exceeds the maximum term size.
	ErrTooLarge = errors.New("term too large")
	// ErrFull is returned by Manager.Absorb when the run does not fit.
	ErrFull = errors.New("buffer: full")
)

// TooLargeError reports the size of a rejected term.
type TooLargeError struct {
	Cells int
	Max   int
}

func (e *TooLargeError) Error() string {
	return fmt.Sprintf("term too large: %d cells, maximum %d", e.Cells, e.Max)
}

// Is matches ErrTooLarge.
func (e *TooLargeError) Is(target error) bool { return target == ErrTooLarge }
