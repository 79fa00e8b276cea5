package patch

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/cespare/xxhash/v2"

	"github.com/hupe1980/termsort/internal/codec"
	"github.com/hupe1980/termsort/term"
)

// MaxTermCells bounds the length cell accepted when decoding.
const MaxTermCells = 1 << 24

// Reader streams the terms of one patch with bounded buffering.
type Reader struct {
	p      Patch
	src    *io.SectionReader
	digest *xxhash.Digest
	br     *bufio.Reader
	hdr    [term.CellSize]byte
	raw    []byte
	cur    term.Term
	terms  int64
	done   bool
}

// NewReader reads p from st using a read buffer of bufSize bytes.
func NewReader(st io.ReaderAt, p Patch, bufSize int) *Reader {
	src := Section(st, p)
	digest := xxhash.New()
	dec := codec.NewReader(io.TeeReader(src, digest), p.Codec)

	return &Reader{
		p:      p,
		src:    src,
		digest: digest,
		br:     bufio.NewReaderSize(dec, max(bufSize, 4096)),
	}
}

// Patch returns the patch being read.
func (r *Reader) Patch() Patch { return r.p }

// Next returns the next term, or io.EOF after the sentinel once the checksum
// has been verified. The term is valid until the following call.
func (r *Reader) Next() (term.Term, error) {
	if r.done {
		return nil, io.EOF
	}
	if _, err := io.ReadFull(r.br, r.hdr[:]); err != nil {
		return nil, r.corrupt(err)
	}
	n, _ := term.PeekLen(r.hdr[:])
	if n == 0 {
		return nil, r.finish()
	}
	if n < term.MinLen || n > MaxTermCells {
		return nil, fmt.Errorf("%w: %s: term length %d", ErrCorrupt, r.p, n)
	}
	size := n * term.CellSize
	if cap(r.raw) < size {
		r.raw = make([]byte, size)
	}
	r.raw = r.raw[:size]
	copy(r.raw, r.hdr[:])
	if _, err := io.ReadFull(r.br, r.raw[term.CellSize:]); err != nil {
		return nil, r.corrupt(err)
	}
	t, _, err := term.Decode(r.cur, r.raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCorrupt, r.p, err)
	}
	r.cur = t
	r.terms++

	return t, nil
}

func (r *Reader) finish() error {
	r.done = true
	// Hash whatever the decoder did not need to reach the sentinel.
	if _, err := io.Copy(r.digest, r.src); err != nil {
		return fmt.Errorf("patch: %s: %w", r.p, err)
	}
	if got := r.digest.Sum64(); got != r.p.Checksum {
		return fmt.Errorf("%w: %s: checksum %016x, want %016x", ErrCorrupt, r.p, got, r.p.Checksum)
	}
	if r.terms != r.p.Terms {
		return fmt.Errorf("%w: %s: read %d terms, want %d", ErrCorrupt, r.p, r.terms, r.p.Terms)
	}

	return io.EOF
}

func (r *Reader) corrupt(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %s: missing sentinel", ErrCorrupt, r.p)
	}
	if errors.Is(err, codec.ErrCorrupt) {
		return fmt.Errorf("%w: %s: %w", ErrCorrupt, r.p, err)
	}

	return fmt.Errorf("patch: read %s: %w", r.p, err)
}
