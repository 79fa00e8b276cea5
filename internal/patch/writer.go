package patch

import (
	"context"
	"io"

	"github.com/cespare/xxhash/v2"

	"github.com/hupe1980/termsort/internal/codec"
	"github.com/hupe1980/termsort/internal/filehandle"
	"github.com/hupe1980/termsort/resource"
	"github.com/hupe1980/termsort/term"
)

const flushThreshold = 64 << 10

// WriterOptions configure a Writer.
type WriterOptions struct {
	Store     int
	Codec     codec.Type
	BlockSize int
	Resources *resource.Controller
}

// Writer serializes one sorted run into a storage region. Nothing becomes
// addressable until Close succeeds.
type Writer struct {
	region filehandle.Region
	digest *xxhash.Digest
	enc    *codec.Writer
	opts   WriterOptions
	buf    []byte
	terms  int64
	cells  int64
	err    error
	done   bool
}

// NewWriter opens a region on st.
func NewWriter(ctx context.Context, st filehandle.Storage, opts WriterOptions) (*Writer, error) {
	region, err := st.NewRegion()
	if err != nil {
		return nil, err
	}
	digest := xxhash.New()
	var out io.Writer = region
	if opts.Resources != nil {
		out = resource.NewRateLimitedWriter(ctx, region, opts.Resources)
	}

	return &Writer{
		region: region,
		digest: digest,
		enc:    codec.NewWriter(io.MultiWriter(out, digest), opts.Codec, opts.BlockSize),
		opts:   opts,
		buf:    make([]byte, 0, flushThreshold+term.CellSize*term.MinLen),
	}, nil
}

// Write appends t. Terms must arrive in the order of the run.
func (w *Writer) Write(t term.Term) error {
	if w.err != nil {
		return w.err
	}
	w.buf = term.AppendBytes(w.buf, t)
	w.terms++
	w.cells += int64(len(t))
	if len(w.buf) >= flushThreshold {
		return w.flush()
	}

	return nil
}

func (w *Writer) flush() error {
	if _, err := w.enc.Write(w.buf); err != nil {
		w.err = err
		return err
	}
	w.buf = w.buf[:0]

	return nil
}

// Terms returns the number of terms written so far.
func (w *Writer) Terms() int64 { return w.terms }

// Close writes the sentinel and commits the region. On error the region is
// aborted.
func (w *Writer) Close() (Patch, error) {
	if w.done {
		return Patch{}, filehandle.ErrRegionDone
	}
	w.done = true
	w.buf = term.AppendSentinel(w.buf)
	if err := w.flush(); err != nil {
		w.region.Abort()
		return Patch{}, err
	}
	if err := w.enc.Close(); err != nil {
		w.region.Abort()
		return Patch{}, err
	}
	off, n, err := w.region.Commit()
	if err != nil {
		return Patch{}, err
	}

	return Patch{
		Store:    w.opts.Store,
		Offset:   off,
		Size:     n,
		Terms:    w.terms,
		Cells:    w.cells,
		Codec:    w.opts.Codec,
		Checksum: w.digest.Sum64(),
	}, nil
}

// Abort discards everything written. Safe to call after Close.
func (w *Writer) Abort() {
	if w.done {
		return
	}
	w.done = true
	w.region.Abort()
}
