package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/termsort/internal/buffer"
	"github.com/hupe1980/termsort/internal/engine"
	"github.com/hupe1980/termsort/internal/filehandle"
	"github.com/hupe1980/termsort/internal/merge"
	"github.com/hupe1980/termsort/term"
)

// Generator expands one input term into the terms to be sorted.
type Generator interface {
	Generate(ctx context.Context, in term.Term, emit func(term.Term) error) error
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, in term.Term, emit func(term.Term) error) error

// Generate implements Generator.
func (f GeneratorFunc) Generate(ctx context.Context, in term.Term, emit func(term.Term) error) error {
	return f(ctx, in, emit)
}

// Identity sorts the input terms themselves.
var Identity = GeneratorFunc(func(_ context.Context, in term.Term, emit func(term.Term) error) error {
	return emit(in)
})

// PoolConfig configures a Pool.
type PoolConfig struct {
	Workers    int // default 1
	BucketSize int // input terms per assignment, default 1024
	BlockCells int // output buffer cells per worker, default 64Ki

	Dispatch  Config
	Engine    engine.Config // per worker; Spill and Logger are set by the pool
	Generator Generator     // default Identity
	Logger    *slog.Logger
}

func (c PoolConfig) withDefaults() PoolConfig {
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.BucketSize <= 0 {
		c.BucketSize = 1024
	}
	if c.BlockCells <= 0 {
		c.BlockCells = 1 << 16
	}
	if c.Dispatch.Buckets <= 0 {
		c.Dispatch.Buckets = 2 * c.Workers
	}
	if c.Generator == nil {
		c.Generator = Identity
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	if c.Dispatch.Logger == nil {
		c.Dispatch.Logger = c.Logger
	}

	return c
}

// Pool runs a sort on several workers.
type Pool struct {
	cfg PoolConfig
}

// NewPool validates cfg.
func NewPool(cfg PoolConfig) (*Pool, error) {
	if err := cfg.Engine.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	if cfg.BlockCells < cfg.Engine.MaxTermSize {
		return nil, fmt.Errorf("%w: BlockCells %d smaller than MaxTermSize %d",
			engine.ErrInvalidConfig, cfg.BlockCells, cfg.Engine.MaxTermSize)
	}

	return &Pool{cfg: cfg}, nil
}

// RunStats describes a parallel run.
type RunStats struct {
	Total    engine.Stats
	Workers  []engine.Stats
	Dispatch Stats
}

// Run is one parallel sort in progress. Push and Finish are called by a
// single goroutine, the master.
type Run struct {
	p      *Pool
	log    *slog.Logger
	d      *Dispatcher
	sb     *SortBlock
	shared *filehandle.Shared
	g      *errgroup.Group
	gctx   context.Context
	cancel context.CancelFunc

	chunk []term.Term

	mu      sync.Mutex // guards workers
	workers []engine.Stats
	start   time.Time
	waited  bool
	werr    error
}

// Start launches the workers.
func (p *Pool) Start(ctx context.Context) (*Run, error) {
	cfg := p.cfg
	ctx, cancel := context.WithCancel(ctx)
	r := &Run{
		p:   p,
		log: cfg.Logger,
		d:   New(cfg.Dispatch),
		sb:  NewSortBlock(cfg.Workers, cfg.BlockCells),
		shared: filehandle.NewShared(filehandle.Options{
			FS:        cfg.Engine.FS,
			Dir:       cfg.Engine.TempDir,
			Prefix:    "termsort-shared",
			CacheSize: cfg.Engine.IOBufferSize,
			Logger:    cfg.Logger,
		}),
		cancel:  cancel,
		chunk:   make([]term.Term, 0, cfg.BucketSize),
		workers: make([]engine.Stats, cfg.Workers),
		start:   time.Now(),
	}
	r.g, r.gctx = errgroup.WithContext(ctx)
	for i := range cfg.Workers {
		r.g.Go(func() error { return r.work(r.gctx, i) })
	}
	r.log.Debug("parallel sort started", "workers", cfg.Workers, "buckets", cfg.Dispatch.Buckets)

	return r, nil
}

// Push adds an input term. Terms are handed out in ranges of BucketSize.
// A term longer than MaxTermSize is rejected with a *buffer.TooLargeError
// before it reaches a worker.
func (r *Run) Push(ctx context.Context, t term.Term) error {
	if err := term.Validate(t); err != nil {
		return err
	}
	t = term.Canonical(t)
	if limit := r.p.cfg.Engine.MaxTermSize; len(t) > limit {
		return &buffer.TooLargeError{Cells: len(t), Max: limit}
	}
	r.chunk = append(r.chunk, t.Clone())
	if len(r.chunk) < r.p.cfg.BucketSize {
		return nil
	}

	return r.assign(ctx)
}

func (r *Run) assign(ctx context.Context) error {
	if len(r.chunk) == 0 {
		return nil
	}
	ctx, stop := context.WithCancel(ctx)
	defer stop()
	defer context.AfterFunc(r.gctx, stop)()

	if _, err := r.d.Assign(ctx, r.chunk); err != nil {
		if r.gctx.Err() != nil {
			return r.wait()
		}
		return err
	}
	r.chunk = r.chunk[:0]

	return nil
}

// Finish hands out the remaining input and returns the merged output of
// all workers.
func (r *Run) Finish(ctx context.Context) (*Stream, error) {
	if err := r.assign(ctx); err != nil {
		return nil, err
	}
	r.d.Close()

	m, err := merge.NewMerger(r.p.cfg.Engine.Comparator, r.sb.Sources())
	if err != nil {
		return nil, r.failed(err)
	}

	return &Stream{r: r, ctx: ctx, m: m}, nil
}

// Abort stops the workers and discards their output.
func (r *Run) Abort() error {
	r.sb.Abort()
	r.cancel()
	err := r.wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrAborted) {
		return nil
	}

	return err
}

// Stats returns the per-worker statistics. It is complete once the output
// has been read to the end; before that a worker still running reports
// zero values.
func (r *Run) Stats() RunStats {
	r.mu.Lock()
	workers := slices.Clone(r.workers)
	r.mu.Unlock()

	s := RunStats{Workers: workers, Dispatch: r.d.Stats()}
	for _, w := range workers {
		s.Total.Add(w)
	}

	return s
}

// wait joins the workers once and releases the shared scratch file.
func (r *Run) wait() error {
	if r.waited {
		return r.werr
	}
	r.waited = true
	r.werr = r.g.Wait()
	r.cancel()
	if err := r.shared.Close(); err != nil && r.werr == nil {
		r.werr = err
	}

	return r.werr
}

// failed prefers the worker error behind an abort.
func (r *Run) failed(err error) error {
	if errors.Is(err, ErrAborted) {
		r.cancel()
		if werr := r.wait(); werr != nil {
			return werr
		}
	}

	return err
}

func (r *Run) work(ctx context.Context, id int) (err error) {
	w := r.sb.Writer(id)
	defer func() {
		if err != nil {
			r.sb.Abort()
		}
		w.Close(err)
	}()

	cfg := r.p.cfg.Engine
	cfg.Spill = r.shared.View()
	cfg.Logger = r.log.With("worker", id)
	sc, err := engine.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, sc.Close()) }()

claim:
	for {
		b, err := r.d.Claim(ctx)
		switch {
		case errors.Is(err, ErrSchedulingTimeout):
			continue
		case errors.Is(err, ErrClosed):
			break claim
		case err != nil:
			return err
		}
		if err := r.process(ctx, sc, b); err != nil {
			return err
		}
		r.d.Complete(b)
	}

	s, err := sc.Finish(ctx)
	if err != nil {
		return err
	}
	for t, err := range s.All() {
		if err != nil {
			return err
		}
		if err := w.Write(t); err != nil {
			return err
		}
	}
	r.mu.Lock()
	r.workers[id] = sc.Stats()
	r.mu.Unlock()

	return nil
}

func (r *Run) process(ctx context.Context, sc *engine.SortContext, b *ThreadBucket) error {
	rc := r.p.cfg.Engine.Resources
	if err := rc.AcquireWorker(ctx); err != nil {
		return err
	}
	defer rc.ReleaseWorker()

	var derived int64
	emit := func(t term.Term) error {
		derived++
		return sc.Push(ctx, t)
	}
	for t, ok := b.Next(); ok; t, ok = b.Next() {
		if err := r.p.cfg.Generator.Generate(ctx, t, emit); err != nil {
			return err
		}
	}
	b.AddDerived(derived)

	return nil
}

// Stream is the merged output of a parallel run.
type Stream struct {
	r    *Run
	ctx  context.Context
	m    *merge.Merger
	cur  term.Term
	err  error
	n    int64
	done bool
}

// Next advances to the next term.
func (s *Stream) Next() bool {
	if s.done {
		return false
	}
	if s.n%4096 == 0 {
		if err := s.ctx.Err(); err != nil {
			s.finish(err)
			return false
		}
	}

	t, err := s.m.Next()
	if err == io.EOF {
		s.finish(s.r.wait())
		if s.err == nil {
			st := s.r.Stats()
			s.r.log.Info("parallel sort finished",
				"workers", len(st.Workers), "terms_left", s.n, "steals", st.Dispatch.Steals,
				"stats", st.Total, "duration", time.Since(s.r.start))
		}
		return false
	}
	if err != nil {
		s.finish(s.r.failed(err))
		return false
	}
	s.cur = t
	s.n++

	return true
}

func (s *Stream) finish(err error) {
	s.err = err
	s.cur = nil
	s.done = true
	if err != nil {
		_ = s.r.Abort()
	}
}

// Term returns the current term, valid until the next call to Next.
func (s *Stream) Term() term.Term { return s.cur }

// Len returns the number of terms read so far.
func (s *Stream) Len() int64 { return s.n }

// Err returns the error that stopped the stream.
func (s *Stream) Err() error { return s.err }

// Close stops the workers if the stream was not read to the end.
func (s *Stream) Close() error {
	if !s.done {
		s.done = true
		return s.r.Abort()
	}
	if errors.Is(s.err, context.Canceled) {
		return nil
	}

	return s.err
}

// All iterates over the remaining terms and closes the stream.
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
