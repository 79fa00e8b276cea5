package checkpoint

import "errors"

var (
	// ErrIncompatibleVersion is returned when the manifest version is not supported.
	ErrIncompatibleVersion = errors.New("checkpoint: incompatible manifest version")

	// ErrNotFound is returned when the store holds no checkpoint.
	ErrNotFound = errors.New("checkpoint: not found")

	// ErrCorrupt is returned when a manifest fails to decode.
	ErrCorrupt = errors.New("checkpoint: corrupt manifest")
)
