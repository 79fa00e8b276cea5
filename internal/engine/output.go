package engine

import (
	"bytes"
	"context"
	"errors"
	"io"
	"iter"

	"github.com/edsrzf/mmap-go"

	"github.com/hupe1980/termsort/internal/codec"
	"github.com/hupe1980/termsort/internal/filehandle"
	"github.com/hupe1980/termsort/internal/merge"
	"github.com/hupe1980/termsort/internal/patch"
	"github.com/hupe1980/termsort/term"
)

// Materialize finishes the run like Finish, but writes the merged result as
// one patch to a file of its own. The returned Output can be read any number
// of times and outlives the run; the context is ready for the next run.
func (sc *SortContext) Materialize(ctx context.Context) (*Output, error) {
	if err := sc.ready(); err != nil {
		return nil, err
	}
	sc.begin()

	m, err := sc.finalMerger(ctx)
	if err != nil {
		return nil, err
	}

	h := filehandle.New(filehandle.Options{
		FS:        sc.cfg.FS,
		Dir:       sc.cfg.TempDir,
		Prefix:    "termsort-output",
		CacheSize: sc.cfg.IOBufferSize,
		Logger:    sc.log,
	})
	counted := &countingSource{src: m}
	p, err := merge.WritePatch(ctx, h, sc.writerOptions(0), counted)
	if err != nil {
		_ = h.Close()
		return nil, sc.fail(err)
	}
	sc.stats.TermsLeft, sc.stats.CellsLeft = counted.terms, counted.cells
	sc.log.Debug("output materialized", "patch", p.String())

	out := &Output{h: h, p: p, readBuffer: sc.cfg.IOBufferSize}
	if p.Codec == codec.None {
		mm, err := h.Map()
		if err != nil {
			_ = h.Close()
			return nil, sc.fail(err)
		}
		out.mm = mm
	}

	if err := sc.complete(); err != nil {
		return nil, errors.Join(err, out.Close())
	}

	return out, nil
}

type countingSource struct {
	src          merge.Source
	terms, cells int64
}

func (c *countingSource) Next() (term.Term, error) {
	t, err := c.src.Next()
	if err == nil {
		c.terms++
		c.cells += int64(len(t))
	}

	return t, err
}

// Output is a materialized, restartable sort result.
type Output struct {
	h          *filehandle.Handle
	p          patch.Patch
	mm         mmap.MMap
	readBuffer int
}

// Len returns the number of terms.
func (o *Output) Len() int64 { return o.p.Terms }

// Size returns the stored size in bytes.
func (o *Output) Size() int64 { return o.p.Size }

// Mapped reports whether reads are served from a memory map.
func (o *Output) Mapped() bool { return o.mm != nil }

func (o *Output) reader() *patch.Reader {
	var st io.ReaderAt = o.h
	if o.mm != nil {
		st = bytes.NewReader(o.mm)
	}

	return patch.NewReader(st, o.p, o.readBuffer)
}

// Terms iterates over the result from the beginning. Yielded terms are valid
// until the next iteration step.
func (o *Output) Terms() iter.Seq2[term.Term, error] {
	return func(yield func(term.Term, error) bool) {
		r := o.reader()
		for {
			t, err := r.Next()
			if err == io.EOF {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(t, nil) {
				return
			}
		}
	}
}

// Close unmaps and removes the output file.
func (o *Output) Close() error {
	var err error
	if o.mm != nil {
		err = o.mm.Unmap()
		o.mm = nil
	}

	return errors.Join(err, o.h.Close())
}
