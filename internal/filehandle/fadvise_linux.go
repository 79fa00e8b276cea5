//go:build linux

package filehandle

import (
	"golang.org/x/sys/unix"

	"github.com/hupe1980/termsort/internal/fs"
)

// adviseSequential tells the kernel that patches are read front to back.
// Best effort: errors are ignored.
func adviseSequential(f fs.File) {
	if fd, ok := fs.Fd(f); ok {
		_ = unix.Fadvise(int(fd), 0, 0, unix.FADV_SEQUENTIAL)
	}
}

// fallocate reserves disk space without changing the file size so that
// the size stays the committed end.
func fallocate(f fs.File, off, n int64) error {
	fd, ok := fs.Fd(f)
	if !ok {
		return nil
	}

	return unix.Fallocate(int(fd), unix.FALLOC_FL_KEEP_SIZE, off, n)
}
