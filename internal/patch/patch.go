// Package patch reads and writes sorted runs of terms on scratch storage.
//
// A patch is a contiguous byte range holding the encoded terms of one sorted
// run followed by a sentinel cell, optionally wrapped in the codec block
// envelope. Its checksum covers the bytes as stored.
package patch

import (
	"errors"
	"fmt"
	"io"

	"github.com/cespare/xxhash/v2"

	"github.com/hupe1980/termsort/internal/codec"
	"github.com/hupe1980/termsort/internal/filehandle"
)

// ErrCorrupt is returned when a patch fails to decode or verify.
var ErrCorrupt = errors.New("patch: corrupt")

// Patch locates one sorted run.
type Patch struct {
	Store    int // index into the owner's storage table
	Offset   int64
	Size     int64 // stored bytes
	Terms    int64
	Cells    int64 // uncompressed cells, sentinel excluded
	Codec    codec.Type
	Checksum uint64 // xxhash64 of the stored bytes
}

func (p Patch) String() string {
	return fmt.Sprintf("patch{store=%d off=%d size=%d terms=%d codec=%s}", p.Store, p.Offset, p.Size, p.Terms, p.Codec)
}

// Section returns the stored bytes of p.
func Section(st io.ReaderAt, p Patch) *io.SectionReader {
	return io.NewSectionReader(st, p.Offset, p.Size)
}

// CopyTo copies the stored bytes of p from src into a fresh region of dst and
// returns the relocated patch. The copy is verified against p.Checksum before
// the region is committed.
func CopyTo(dst filehandle.Storage, store int, src io.Reader, p Patch) (Patch, error) {
	r, err := dst.NewRegion()
	if err != nil {
		return Patch{}, err
	}
	digest := xxhash.New()
	n, err := io.Copy(io.MultiWriter(r, digest), io.LimitReader(src, p.Size))
	if err == nil && n != p.Size {
		err = fmt.Errorf("%w: short copy %d of %d bytes", ErrCorrupt, n, p.Size)
	}
	if err == nil && digest.Sum64() != p.Checksum {
		err = fmt.Errorf("%w: %s: checksum mismatch on copy", ErrCorrupt, p)
	}
	if err != nil {
		r.Abort()
		return Patch{}, err
	}
	off, _, err := r.Commit()
	if err != nil {
		return Patch{}, err
	}
	p.Store, p.Offset = store, off

	return p, nil
}
