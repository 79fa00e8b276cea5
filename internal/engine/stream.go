package engine

import (
	"context"
	"errors"
	"io"
	"iter"
	"time"

	"github.com/hupe1980/termsort/internal/merge"
	"github.com/hupe1980/termsort/term"
)

const cancelCheckInterval = 4096

// Finish ends the input of the current run and returns its sorted, merged
// terms. Patches beyond the merge fan-in are reduced first; the remaining
// patches and the in-memory runs are merged lazily while the stream is read.
//
// When the stream reaches its end the run is complete: patches are deleted
// and the context is ready for the next run. A stream closed early, or
// stopped by ctx, leaves the run intact so Finish may be called again.
func (sc *SortContext) Finish(ctx context.Context) (*Stream, error) {
	if err := sc.ready(); err != nil {
		return nil, err
	}
	sc.begin()

	m, err := sc.finalMerger(ctx)
	if err != nil {
		return nil, err
	}
	s := &Stream{sc: sc, ctx: ctx, m: m}
	sc.stream = s

	return s, nil
}

func (sc *SortContext) finalMerger(ctx context.Context) (*merge.Merger, error) {
	sc.stats.TermsLeft, sc.stats.CellsLeft = 0, 0
	if err := sc.stager.Reduce(ctx, &sc.patches, max(sc.stager.FanIn(), 1), &sc.stats.StageLevel); err != nil {
		return nil, sc.fail(err)
	}

	srcs := make([]merge.Source, 0, 1+sc.large.Runs()+len(sc.patches))
	if run := sc.small.Run(); len(run) > 0 {
		srcs = append(srcs, merge.NewSliceSource(run))
	}
	for _, r := range sc.large.Readers() {
		srcs = append(srcs, r)
	}
	srcs = append(srcs, sc.stager.Open(sc.patches)...)

	m, err := merge.NewMerger(sc.cfg.Comparator, srcs)
	if err != nil {
		return nil, sc.fail(err)
	}
	sc.log.Debug("final merge started",
		"memory_runs", len(srcs)-len(sc.patches), "patches", len(sc.patches))

	return m, nil
}

// complete ends a fully consumed run.
func (sc *SortContext) complete() error {
	stats := sc.Stats()
	elapsed := time.Since(sc.start)
	sc.log.Info("sort finished", "stats", stats, "duration", elapsed)
	sc.cfg.Observer.RecordFinish(stats, elapsed, nil)

	return sc.fail(sc.clear())
}

// Stream is the lazy, forward-only output of a run.
type Stream struct {
	sc   *SortContext
	ctx  context.Context
	m    *merge.Merger
	cur  term.Term
	err  error
	n    int
	done bool
}

// Next advances to the next term. It returns false at the end of the
// stream or on error; see Err.
func (s *Stream) Next() bool {
	if s.done {
		return false
	}
	s.n++
	if s.n%cancelCheckInterval == 0 {
		if err := s.ctx.Err(); err != nil {
			s.stop(err)
			return false
		}
	}

	t, err := s.m.Next()
	if err == io.EOF {
		s.cur = nil
		s.done = true
		s.sc.stream = nil
		s.err = s.sc.complete()
		return false
	}
	if err != nil {
		s.stop(s.sc.fail(err))
		return false
	}
	s.cur = t
	s.sc.stats.TermsLeft++
	s.sc.stats.CellsLeft += int64(len(t))

	return true
}

func (s *Stream) stop(err error) {
	s.err = err
	s.detach()
}

// detach releases the context without completing the run.
func (s *Stream) detach() {
	s.cur = nil
	s.done = true
	if s.sc.stream == s {
		s.sc.stream = nil
	}
}

// Term returns the current term. It is valid until the next call to Next.
func (s *Stream) Term() term.Term { return s.cur }

// Err returns the error that stopped the stream, if any.
func (s *Stream) Err() error { return s.err }

// Close releases the stream. Closing before the end keeps the run so it can
// be finished again.
func (s *Stream) Close() error {
	if !s.done {
		s.detach()
	}
	if errors.Is(s.err, context.Canceled) || errors.Is(s.err, context.DeadlineExceeded) {
		return nil
	}

	return s.err
}

// All returns an iterator over the remaining terms. Yielded terms are valid
// until the next iteration step. The stream is closed when the loop ends.
func (s *Stream) All() iter.Seq2[term.Term, error] {
	return func(yield func(term.Term, error) bool) {
		defer s.Close()
		for s.Next() {
			if !yield(s.cur, nil) {
				return
			}
		}
		if s.err != nil {
			yield(nil, s.err)
		}
	}
}
