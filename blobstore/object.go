package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

// ErrInvalidRange is returned for reads at a negative offset.
var ErrInvalidRange = errors.New("blobstore: invalid range")

// ObjectKey joins a store prefix and a blob name into an object key.
func ObjectKey(prefix, name string) string {
	if prefix == "" {
		return name
	}

	return path.Join(prefix, name)
}

// BlobName maps an object key back to the blob name under prefix. It
// reports false for keys outside the prefix and for the prefix itself.
func BlobName(prefix, key string) (string, bool) {
	p := strings.TrimSuffix(prefix, "/")
	if p == "" {
		return key, key != ""
	}
	rest, ok := strings.CutPrefix(key, p+"/")
	if !ok || rest == "" {
		return "", false
	}

	return rest, true
}

// ClampRange returns the exclusive end of a read of n bytes at off in a
// blob of size bytes. A read starting at or after the end returns io.EOF
// unless n is zero.
func ClampRange(size, off, n int64) (int64, error) {
	if off < 0 || n < 0 {
		return 0, fmt.Errorf("%w: offset %d length %d", ErrInvalidRange, off, n)
	}
	if n == 0 {
		return off, nil
	}
	if off >= size {
		return 0, io.EOF
	}

	return min(off+n, size), nil
}

// byteBlob serves reads from a byte slice. release runs once on Close.
type byteBlob struct {
	data    []byte
	release func() error
}

func (b *byteBlob) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	end, err := ClampRange(int64(len(b.data)), off, int64(len(p)))
	if err != nil {
		return 0, err
	}
	n := copy(p, b.data[off:end])
	if n < len(p) {
		return n, io.EOF
	}

	return n, nil
}

func (b *byteBlob) ReadRange(ctx context.Context, off, length int64) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if off == int64(len(b.data)) {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}
	end, err := ClampRange(int64(len(b.data)), off, length)
	if err != nil {
		return nil, err
	}

	return io.NopCloser(bytes.NewReader(b.data[off:end])), nil
}

func (b *byteBlob) Size() int64 { return int64(len(b.data)) }

func (b *byteBlob) Bytes() ([]byte, error) { return b.data, nil }

func (b *byteBlob) Close() error {
	release := b.release
	b.data, b.release = nil, nil
	if release == nil {
		return nil
	}

	return release()
}
