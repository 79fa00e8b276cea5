package filehandle

import (
	"errors"
	"io"
)

var (
	// ErrClosed is returned by operations on a closed handle.
	ErrClosed = errors.New("filehandle: closed")
	// ErrRegionBusy is returned when a handle already has an open region.
	ErrRegionBusy = errors.New("filehandle: region already open")
	// ErrRegionDone is returned by writes to a committed or aborted region.
	ErrRegionDone = errors.New("filehandle: region finished")
)

// Storage is a byte space that patches are written to and read from.
type Storage interface {
	io.ReaderAt
	// NewRegion opens an append region at the end of the storage.
	NewRegion() (Region, error)
	// Reset discards all content. Offsets handed out before are invalid.
	Reset() error
	// Size returns the number of committed bytes.
	Size() int64
	// Name identifies the storage in logs.
	Name() string
}

// Region is an in-progress append.
type Region interface {
	io.Writer
	// Commit makes the written bytes addressable and returns their range.
	Commit() (off, n int64, err error)
	// Abort discards the written bytes. Aborting a finished region is a no-op.
	Abort()
}

// Stats describes the state of a handle.
type Stats struct {
	Name     string
	Open     bool  // backing file exists
	Size     int64 // committed bytes
	Position int64 // end of the cache or active region
	Blocks   int   // cache flushes written to disk
	Dirty    bool  // cache holds bytes not yet on disk
}
