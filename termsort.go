package termsort

import (
	"context"
	"time"

	"github.com/hupe1980/termsort/internal/checkpoint"
	"github.com/hupe1980/termsort/internal/engine"
	"github.com/hupe1980/termsort/term"
)

// Stats reports the counters of a run.
type Stats = engine.Stats

// Stream is the lazy sorted output of a run.
type Stream = engine.Stream

// Output is a materialized sort result that can be read repeatedly.
type Output = engine.Output

// CheckpointInfo describes a stored checkpoint.
type CheckpointInfo struct {
	Version   uint64
	CreatedAt time.Time
	Patches   int
	Terms     int64
	Bytes     int64
}

func checkpointInfo(m *checkpoint.Manifest) CheckpointInfo {
	return CheckpointInfo{
		Version:   m.ID,
		CreatedAt: m.CreatedAt,
		Patches:   len(m.Patches),
		Terms:     m.Terms(),
		Bytes:     m.Bytes(),
	}
}

// Sorter collects terms and returns them sorted, with equal keys combined
// and zero sums removed. Input that does not fit the buffers is spilled to
// scratch files and merged back in stages.
//
// A Sorter is not safe for concurrent use; see ParallelSorter.
type Sorter struct {
	sc    *engine.SortContext
	opts  options
	store *checkpoint.Store
}

// New creates a Sorter.
//
// Example:
//
//	sorter, _ := termsort.New(ctx, termsort.WithKind(termsort.KindFunction))
//	defer sorter.Close()
//	_ = sorter.Push(ctx, term.MustParse("1 2 : 3/4"))
//	out, _ := sorter.Finish(ctx)
//	for t, err := range out.All() { ... }
func New(ctx context.Context, optFns ...Option) (*Sorter, error) {
	o := applyOptions(optFns)
	sc, err := engine.New(ctx, o.config())
	if err != nil {
		return nil, err
	}

	return newSorter(sc, o), nil
}

func newSorter(sc *engine.SortContext, o options) *Sorter {
	s := &Sorter{sc: sc, opts: o}
	if o.checkpoints != nil {
		s.store = checkpoint.NewStore(o.checkpoints)
	}

	return s
}

// Resume creates a Sorter from the latest checkpoint of the configured
// checkpoint store. The options must select the kind the checkpoint was
// taken with.
func Resume(ctx context.Context, optFns ...Option) (*Sorter, error) {
	o := applyOptions(optFns)
	if o.checkpoints == nil {
		return nil, ErrNoCheckpointStore
	}
	store := checkpoint.NewStore(o.checkpoints)
	sc, err := engine.Resume(ctx, o.config(), store)
	if err != nil {
		o.logger.LogResume(ctx, 0, err)
		return nil, err
	}
	s := newSorter(sc, o)
	o.logger.LogResume(ctx, sc.Stats().Patches, nil)

	return s, nil
}

// ID identifies the sorter in logs and checkpoints.
func (s *Sorter) ID() string { return s.sc.ID() }

// Push adds a term.
func (s *Sorter) Push(ctx context.Context, t term.Term) error {
	return s.sc.Push(ctx, t)
}

// Flush writes everything held in memory to scratch files.
func (s *Sorter) Flush(ctx context.Context) error {
	return s.sc.Flush(ctx)
}

// Finish returns the sorted terms pushed since the last completed run.
// Reading the stream to its end completes the run.
func (s *Sorter) Finish(ctx context.Context) (*Stream, error) {
	return s.sc.Finish(ctx)
}

// Materialize completes the run into a result that can be read any number
// of times. The caller closes the Output.
func (s *Sorter) Materialize(ctx context.Context) (*Output, error) {
	return s.sc.Materialize(ctx)
}

// Checkpoint stores the state of the run in the checkpoint store so that
// Resume can continue it after a restart.
func (s *Sorter) Checkpoint(ctx context.Context) (CheckpointInfo, error) {
	if s.store == nil {
		return CheckpointInfo{}, ErrNoCheckpointStore
	}
	start := time.Now()
	m, err := s.sc.Checkpoint(ctx, s.store)
	d := time.Since(start)
	if err != nil {
		s.opts.metricsCollector.RecordCheckpoint(0, d, err)
		s.opts.logger.LogCheckpoint(ctx, 0, 0, d, err)
		return CheckpointInfo{}, err
	}
	info := checkpointInfo(m)
	s.opts.metricsCollector.RecordCheckpoint(info.Bytes, d, nil)
	s.opts.logger.LogCheckpoint(ctx, info.Version, info.Bytes, d, nil)

	return info, nil
}

// Checkpoints lists the stored checkpoint versions, oldest first.
func (s *Sorter) Checkpoints(ctx context.Context) ([]uint64, error) {
	if s.store == nil {
		return nil, ErrNoCheckpointStore
	}

	return s.store.ListVersions(ctx)
}

// DeleteCheckpoint removes a stored checkpoint version.
func (s *Sorter) DeleteCheckpoint(ctx context.Context, version uint64) error {
	if s.store == nil {
		return ErrNoCheckpointStore
	}

	return s.store.DeleteVersion(ctx, version)
}

// Stats returns the counters of the current or last run.
func (s *Sorter) Stats() Stats { return s.sc.Stats() }

// Reset discards the current run.
func (s *Sorter) Reset() error { return s.sc.Reset() }

// Close removes the scratch files and releases the buffers.
func (s *Sorter) Close() error { return s.sc.Close() }

// Nested manages sorters for nested sort levels, reusing the buffers of a
// level until Clear.
type Nested struct {
	stack *engine.Stack
}

// NewNested returns an empty nesting stack. Every level is configured with
// optFns; the kind comes from Open.
func NewNested(optFns ...Option) *Nested {
	o := applyOptions(optFns)

	return &Nested{stack: engine.NewStack(func(k Kind) engine.Config {
		lo := o
		lo.kind = k
		return lo.config()
	})}
}

// Open enters a new level of the given kind. The returned Sorter belongs to
// the stack and is released by Clear.
func (n *Nested) Open(ctx context.Context, kind Kind) (*Sorter, error) {
	sc, err := n.stack.Open(ctx, kind)
	if err != nil {
		return nil, err
	}

	return &Sorter{sc: sc}, nil
}

// End leaves the innermost level and returns its sorted output.
func (n *Nested) End(ctx context.Context) (*Stream, error) { return n.stack.End(ctx) }

// Depth returns the number of open levels.
func (n *Nested) Depth() int { return n.stack.Depth() }

// Clear releases every level.
func (n *Nested) Clear() error { return n.stack.Clear() }
