package merge

import (
	"errors"
	"fmt"
)

// ErrPatchExhaustion is returned when the patch list cannot be reduced
// because the buffers do not allow a fan-in of at least two.
var ErrPatchExhaustion = errors.New("patch count exhaustion")

// PatchExhaustionError carries the numbers needed to retune the buffers.
type PatchExhaustionError struct {
	Patches     int
	Limit       int
	FanIn       int
	MaxFpatches int
	BufferBytes int64
	ReadBuffer  int
}

func (e *PatchExhaustionError) Error() string {
	return fmt.Sprintf("patch count exhaustion: %d patches pending, limit %d, fan-in %d (max file patches %d, %d buffer bytes / %d bytes per read buffer)",
		e.Patches, e.Limit, e.FanIn, e.MaxFpatches, e.BufferBytes, e.ReadBuffer)
}

// Is matches ErrPatchExhaustion.
func (e *PatchExhaustionError) Is(target error) bool { return target == ErrPatchExhaustion }
