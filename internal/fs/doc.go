// Package fs provides file system abstractions for scratch files and fault
// injection.
//
//   - [File]: an open scratch file with positional reads and writes
//   - [FileSystem]: open, remove, rename, stat, mkdir
//
// Production code uses fs.Default ([LocalFS]). Tests inject [FaultyFS] to
// simulate write, sync, truncate or close failures:
//
//	ffs := fs.NewFaultyFS(nil)
//	ffs.SetLimit(1024) // fail after 1KB written
//
// Operations take no context.Context. Local file system calls are not
// interruptible at the syscall level; cancellation is checked between patches
// by the callers.
package fs
