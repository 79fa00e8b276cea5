//go:build !linux

package filehandle

import "github.com/hupe1980/termsort/internal/fs"

func adviseSequential(fs.File) {}

func fallocate(fs.File, int64, int64) error { return nil }
