package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/termsort/internal/buffer"
	"github.com/hupe1980/termsort/internal/filehandle"
	"github.com/hupe1980/termsort/internal/merge"
	"github.com/hupe1980/termsort/internal/patch"
	"github.com/hupe1980/termsort/term"
)

// Store indices of a SortContext.
const (
	storeSpill = iota
	storeStageA
	storeStageB
)

// SortContext is one sort instance. It is not safe for concurrent use.
type SortContext struct {
	cfg Config
	log *slog.Logger
	id  string

	small *buffer.Collector
	large *buffer.Manager

	stores []filehandle.Storage
	owned  []*filehandle.Handle
	stager merge.Stager

	patches []patch.Patch
	stats   Stats
	start   time.Time
	memory  int64

	stream *Stream
	fresh  bool // the next Push starts a new run
	failed error
	closed bool
}

// New allocates the buffers of a sort instance. The buffer memory is
// reserved with cfg.Resources, waiting for it if necessary.
func New(ctx context.Context, cfg Config) (*SortContext, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	mem := cfg.memoryBytes()
	if err := cfg.Resources.AcquireMemory(ctx, mem); err != nil {
		return nil, fmt.Errorf("engine: reserve %d bytes of buffer memory: %w", mem, err)
	}

	id := uuid.NewString()
	sc := &SortContext{
		cfg: cfg,
		log: cfg.Logger.With("sort", id[:8], "kind", cfg.Kind.String()),
		id:  id,
		small: buffer.NewCollector(buffer.CollectorConfig{
			Size:        cfg.SmallSize,
			Extension:   cfg.SmallExtension,
			MaxTerms:    cfg.TermsInSmall,
			MaxTermSize: cfg.MaxTermSize,
			Comparator:  cfg.Comparator,
		}),
		large:  buffer.NewManager(cfg.LargeSize, cfg.MaxPatches),
		memory: mem,
		fresh:  true,
	}

	spill := cfg.Spill
	if spill == nil {
		spill = sc.newHandle("spill")
	}
	sc.stores = []filehandle.Storage{spill, sc.newHandle("stage1"), sc.newHandle("stage2")}
	sc.stager = merge.Stager{
		Stores:      sc.stores,
		Outputs:     [2]int{storeStageA, storeStageB},
		Comparator:  cfg.Comparator,
		MaxFpatches: cfg.MaxFpatches,
		BufferBytes: int64(cfg.LargeSize) * term.CellSize,
		ReadBuffer:  cfg.IOBufferSize,
		Writer:      sc.writerOptions(storeSpill),
		Logger:      sc.log,
		OnPass:      sc.onPass,
	}

	return sc, nil
}

func (sc *SortContext) newHandle(role string) *filehandle.Handle {
	h := filehandle.New(filehandle.Options{
		FS:        sc.cfg.FS,
		Dir:       sc.cfg.TempDir,
		Prefix:    "termsort-" + role,
		CacheSize: sc.cfg.IOBufferSize,
		Logger:    sc.log,
	})
	sc.owned = append(sc.owned, h)

	return h
}

func (sc *SortContext) writerOptions(store int) patch.WriterOptions {
	return patch.WriterOptions{
		Store:     store,
		Codec:     sc.cfg.Compression,
		BlockSize: sc.cfg.CompressionBlockSize,
		Resources: sc.cfg.Resources,
	}
}

func (sc *SortContext) onPass(info merge.PassInfo) {
	sc.stats.Stages++
	sc.stats.StageLevel = info.Level
	sc.stats.SizeInFile[info.Store] += info.BytesOut
	sc.cfg.Observer.RecordStage(info.Level, info.Inputs, info.Outputs, info.BytesOut, info.Duration)
}

// ID identifies the context in logs and checkpoints.
func (sc *SortContext) ID() string { return sc.id }

// Kind returns the sort kind the context was configured with.
func (sc *SortContext) Kind() Kind { return sc.cfg.Kind }

// Comparator returns the canonical order of the context.
func (sc *SortContext) Comparator() term.Comparator { return sc.cfg.Comparator }

// Stats returns the statistics of the current or last run.
func (sc *SortContext) Stats() Stats {
	s := sc.stats
	s.Patches = len(sc.patches)

	return s
}

// Patches returns a copy of the file patch list.
func (sc *SortContext) Patches() []patch.Patch {
	return append([]patch.Patch(nil), sc.patches...)
}

// ready reports why the context cannot take a new operation.
func (sc *SortContext) ready() error {
	switch {
	case sc.closed:
		return ErrClosed
	case sc.failed != nil:
		return fmt.Errorf("%w: %w", ErrFailed, sc.failed)
	case sc.stream != nil:
		return ErrStreamOpen
	}

	return nil
}

func (sc *SortContext) begin() {
	if !sc.fresh {
		return
	}
	sc.fresh = false
	sc.stats = Stats{}
	sc.start = time.Now()
}

// fail marks the context failed unless err is a cancellation, which leaves
// the context usable.
func (sc *SortContext) fail(err error) error {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if sc.failed == nil {
		sc.failed = err
		sc.log.Error("sort failed", "error", err, "stats", sc.Stats())
		sc.cfg.Observer.RecordFinish(sc.Stats(), time.Since(sc.start), err)
	}

	return err
}

// Push adds one term, reducing its coefficient to lowest terms. A term
// longer than MaxTermSize is rejected with a *buffer.TooLargeError and
// leaves the context unchanged. A failed spill
// is fatal: the error is returned and every later call reports ErrFailed.
func (sc *SortContext) Push(ctx context.Context, t term.Term) error {
	if err := sc.ready(); err != nil {
		return err
	}
	if err := term.Validate(t); err != nil {
		return err
	}
	t = term.Canonical(t)
	sc.begin()

	for {
		res, err := sc.small.Accept(t)
		if err != nil {
			return err
		}
		switch res {
		case buffer.Full:
			if err := sc.flushSmall(ctx); err != nil {
				return sc.fail(err)
			}
			continue
		case buffer.Merged:
			sc.stats.Merged++
		case buffer.Cancelled:
			sc.stats.Cancelled++
		case buffer.Dropped:
			sc.stats.Dropped++
		}
		sc.stats.GenTerms++
		sc.stats.GenCells += int64(len(t))

		return nil
	}
}

// flushSmall promotes the small buffer run and resets the collector.
func (sc *SortContext) flushSmall(ctx context.Context) error {
	if run := sc.small.Run(); len(run) > 0 {
		if err := sc.promote(ctx, run); err != nil {
			return err
		}
		sc.stats.SmallFlushes++
	}
	sc.small.Reset()
	if sc.large.Full() {
		if err := sc.flushLarge(ctx); err != nil {
			return err
		}
	}

	return sc.stage(ctx)
}

// promote moves a run into the large buffer, or writes it as a patch when
// the promotion policy says so or it cannot fit even an empty large buffer.
func (sc *SortContext) promote(ctx context.Context, run buffer.Run) error {
	cells := run.Cells()
	if !sc.direct(cells) {
		if !sc.large.Fits(cells) {
			if err := sc.flushLarge(ctx); err != nil {
				return err
			}
		}
		if sc.large.Fits(cells) {
			return sc.large.Absorb(run)
		}
	}

	p, err := merge.WritePatch(ctx, sc.stores[storeSpill], sc.writerOptions(storeSpill), merge.NewSliceSource(run))
	if err != nil {
		return err
	}
	sc.stats.DirectPatches++
	sc.addPatch(p)

	return nil
}

func (sc *SortContext) direct(cells int) bool {
	f := sc.cfg.DirectPatchFraction

	return f > 0 && float64(cells+1) >= f*float64(sc.large.Capacity())
}

// flushLarge merges the runs of the large buffer into one file patch.
func (sc *SortContext) flushLarge(ctx context.Context) error {
	if sc.large.Runs() == 0 {
		return nil
	}
	readers := sc.large.Readers()
	srcs := make([]merge.Source, len(readers))
	for i, r := range readers {
		srcs[i] = r
	}
	m, err := merge.NewMerger(sc.cfg.Comparator, srcs)
	if err != nil {
		return err
	}
	p, err := merge.WritePatch(ctx, sc.stores[storeSpill], sc.writerOptions(storeSpill), m)
	if err != nil {
		return err
	}
	sc.large.Reset()
	sc.stats.LargeFlushes++
	sc.addPatch(p)

	return nil
}

func (sc *SortContext) addPatch(p patch.Patch) {
	sc.patches = append(sc.patches, p)
	sc.stats.SizeInFile[storeSpill] += p.Size
	sc.log.Debug("patch written", "patch", p.String(), "patches", len(sc.patches))
	sc.cfg.Observer.RecordSpill(p.Size, p.Terms)
}

// stage runs a staged merge once the file patch list is full.
func (sc *SortContext) stage(ctx context.Context) error {
	if len(sc.patches) < sc.cfg.MaxFpatches {
		return nil
	}

	return sc.stager.Reduce(ctx, &sc.patches, sc.cfg.MaxFpatches-1, &sc.stats.StageLevel)
}

// Flush moves everything held in memory to file patches.
func (sc *SortContext) Flush(ctx context.Context) error {
	if err := sc.ready(); err != nil {
		return err
	}
	if err := sc.flushSmall(ctx); err != nil {
		return sc.fail(err)
	}
	if err := sc.flushLarge(ctx); err != nil {
		return sc.fail(err)
	}

	return sc.fail(sc.stage(ctx))
}

// Reset discards the current run. Buffers and scratch files are kept for
// the next run.
func (sc *SortContext) Reset() error {
	if sc.closed {
		return ErrClosed
	}
	if sc.stream != nil {
		sc.stream.detach()
	}

	return sc.clear()
}

func (sc *SortContext) clear() error {
	sc.small.Reset()
	sc.large.Reset()
	sc.patches = nil
	sc.fresh = true

	var errs []error
	for _, st := range sc.stores {
		if st.Size() > 0 {
			errs = append(errs, st.Reset())
		}
	}

	return errors.Join(errs...)
}

// Close releases the buffers, removes the scratch files and returns the
// reserved memory. Close is idempotent.
func (sc *SortContext) Close() error {
	if sc.closed {
		return nil
	}
	if sc.stream != nil {
		sc.stream.detach()
	}
	sc.closed = true

	var errs []error
	for _, h := range sc.owned {
		errs = append(errs, h.Close())
	}
	if sc.cfg.Spill != nil {
		errs = append(errs, sc.cfg.Spill.Reset())
	}
	sc.cfg.Resources.ReleaseMemory(sc.memory)
	sc.patches = nil

	return errors.Join(errs...)
}
