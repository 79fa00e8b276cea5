package termsort

import (
	"context"
	"runtime"

	"github.com/hupe1980/termsort/internal/dispatch"
	"github.com/hupe1980/termsort/term"
)

// ParallelStats reports per-worker and dispatch counters of a parallel run.
type ParallelStats = dispatch.RunStats

// ParallelStream is the merged output of all workers.
type ParallelStream = dispatch.Stream

// ParallelSorter spreads the input over several workers. Each worker sorts
// its share with its own buffers and spills into a scratch file shared by
// all workers; the outputs are merged when the stream is read.
//
// Push and Finish must be called from one goroutine. A ParallelSorter
// performs a single run.
type ParallelSorter struct {
	run *dispatch.Run
}

// NewParallel starts the workers.
func NewParallel(ctx context.Context, optFns ...Option) (*ParallelSorter, error) {
	o := applyOptions(optFns)
	if o.workers <= 0 {
		o.workers = runtime.GOMAXPROCS(0)
	}
	log := o.logger.WithKind(o.kind).WithWorkers(o.workers)
	o.logger = log

	p, err := dispatch.NewPool(dispatch.PoolConfig{
		Workers:    o.workers,
		BucketSize: o.bucketSize,
		BlockCells: o.blockCells,
		Dispatch:   dispatch.Config{Retry: o.retry},
		Engine:     o.config(),
		Generator:  o.generator,
		Logger:     log.Logger,
	})
	if err != nil {
		log.LogParallelStart(ctx, o.workers, o.bucketSize, err)
		return nil, err
	}
	run, err := p.Start(ctx)
	log.LogParallelStart(ctx, o.workers, o.bucketSize, err)
	if err != nil {
		return nil, err
	}

	return &ParallelSorter{run: run}, nil
}

// Push adds an input term.
func (p *ParallelSorter) Push(ctx context.Context, t term.Term) error {
	return p.run.Push(ctx, t)
}

// Finish hands out the remaining input and returns the merged output.
func (p *ParallelSorter) Finish(ctx context.Context) (*ParallelStream, error) {
	return p.run.Finish(ctx)
}

// Stats returns the counters; they are complete once the stream was read
// to its end.
func (p *ParallelSorter) Stats() ParallelStats {
	return p.run.Stats()
}

// Abort stops the workers and removes the scratch files.
func (p *ParallelSorter) Abort() error { return p.run.Abort() }
