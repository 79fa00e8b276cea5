package conv

import (
	"errors"
	"fmt"
	"math"
)

// ErrOverflow is returned when a value does not fit the target type.
var ErrOverflow = errors.New("integer overflow")

func overflow[T any](v T, target string) error {
	return fmt.Errorf("%w: %v does not fit %s", ErrOverflow, v, target)
}

// IntToUint32 converts a non-negative int to uint32.
func IntToUint32(v int) (uint32, error) {
	if v < 0 || uint64(v) > math.MaxUint32 {
		return 0, overflow(v, "uint32")
	}
	return uint32(v), nil
}

// IntToInt32 converts an int to int32, the width of a term cell.
func IntToInt32(v int) (int32, error) {
	if v < math.MinInt32 || v > math.MaxInt32 {
		return 0, overflow(v, "int32")
	}
	return int32(v), nil
}

// Uint32ToInt converts uint32 to int.
func Uint32ToInt(v uint32) (int, error) {
	if uint64(v) > uint64(math.MaxInt) {
		return 0, overflow(v, "int")
	}
	return int(v), nil
}

// Int64ToUint64 converts a non-negative offset or size to uint64.
func Int64ToUint64(v int64) (uint64, error) {
	if v < 0 {
		return 0, overflow(v, "uint64")
	}
	return uint64(v), nil
}

// Uint64ToInt64 converts a decoded offset or size back to int64.
func Uint64ToInt64(v uint64) (int64, error) {
	if v > math.MaxInt64 {
		return 0, overflow(v, "int64")
	}
	return int64(v), nil
}
