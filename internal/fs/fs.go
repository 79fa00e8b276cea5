package fs

import (
	"fmt"
	"io"
	"os"
)

// File is an open scratch file. Patches are appended with Write or WriteAt
// and read back with ReadAt.
type File interface {
	io.ReadWriteCloser
	io.ReaderAt
	io.WriterAt
	Sync() error
	Truncate(size int64) error
	Name() string
}

// FileSystem is the part of the OS the sort touches.
type FileSystem interface {
	OpenFile(name string, flag int, perm os.FileMode) (File, error)
	Remove(name string) error
	MkdirAll(path string, perm os.FileMode) error
}

// LocalFS implements FileSystem with the os package.
type LocalFS struct{}

func (LocalFS) OpenFile(name string, flag int, perm os.FileMode) (File, error) {
	return os.OpenFile(name, flag, perm)
}

func (LocalFS) Remove(name string) error { return os.Remove(name) }

func (LocalFS) MkdirAll(path string, perm os.FileMode) error { return os.MkdirAll(path, perm) }

// Default is the local file system.
var Default FileSystem = LocalFS{}

// CreateScratch creates dir if needed and opens name, which must not
// exist yet, for reading and writing by the owner only.
func CreateScratch(fsys FileSystem, dir, name string) (File, error) {
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	f, err := fsys.OpenFile(name, os.O_CREATE|os.O_RDWR|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create scratch file: %w", err)
	}

	return f, nil
}

// Fd returns the descriptor of f when it is backed by an *os.File.
func Fd(f File) (uintptr, bool) {
	type fder interface{ Fd() uintptr }
	for {
		switch v := f.(type) {
		case fder:
			return v.Fd(), true
		case interface{ Unwrap() File }:
			f = v.Unwrap()
		default:
			return 0, false
		}
	}
}
