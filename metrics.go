package termsort

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems; the prom
// package provides a Prometheus implementation.
//
// Implementations used with a ParallelSorter are called from several
// workers at once.
type MetricsCollector interface {
	// RecordSpill is called after a run was written to a file patch.
	RecordSpill(bytes, terms int64)

	// RecordStage is called after each staged merge pass.
	RecordStage(level, inputs, outputs int, bytes int64, duration time.Duration)

	// RecordFinish is called when a run completes or fails.
	RecordFinish(stats Stats, duration time.Duration, err error)

	// RecordCheckpoint is called after each checkpoint attempt.
	RecordCheckpoint(bytes int64, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordSpill(int64, int64)                        {}
func (NoopMetricsCollector) RecordStage(int, int, int, int64, time.Duration) {}
func (NoopMetricsCollector) RecordFinish(Stats, time.Duration, error)        {}
func (NoopMetricsCollector) RecordCheckpoint(int64, time.Duration, error)    {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	SpillCount       atomic.Int64
	SpillBytes       atomic.Int64
	SpillTerms       atomic.Int64
	StageCount       atomic.Int64
	StageBytes       atomic.Int64
	StageTotalNanos  atomic.Int64
	MaxStageLevel    atomic.Int64
	FinishCount      atomic.Int64
	FinishErrors     atomic.Int64
	FinishTotalNanos atomic.Int64
	TermsOut         atomic.Int64
	CheckpointCount  atomic.Int64
	CheckpointErrors atomic.Int64
	CheckpointBytes  atomic.Int64
}

// RecordSpill implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSpill(bytes, terms int64) {
	b.SpillCount.Add(1)
	b.SpillBytes.Add(bytes)
	b.SpillTerms.Add(terms)
}

// RecordStage implements MetricsCollector.
func (b *BasicMetricsCollector) RecordStage(level, _, _ int, bytes int64, duration time.Duration) {
	b.StageCount.Add(1)
	b.StageBytes.Add(bytes)
	b.StageTotalNanos.Add(duration.Nanoseconds())
	for {
		cur := b.MaxStageLevel.Load()
		if int64(level) <= cur || b.MaxStageLevel.CompareAndSwap(cur, int64(level)) {
			return
		}
	}
}

// RecordFinish implements MetricsCollector.
func (b *BasicMetricsCollector) RecordFinish(stats Stats, duration time.Duration, err error) {
	b.FinishCount.Add(1)
	b.FinishTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.FinishErrors.Add(1)
		return
	}
	b.TermsOut.Add(stats.TermsLeft)
}

// RecordCheckpoint implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCheckpoint(bytes int64, _ time.Duration, err error) {
	b.CheckpointCount.Add(1)
	if err != nil {
		b.CheckpointErrors.Add(1)
		return
	}
	b.CheckpointBytes.Add(bytes)
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		SpillCount:       b.SpillCount.Load(),
		SpillBytes:       b.SpillBytes.Load(),
		SpillTerms:       b.SpillTerms.Load(),
		StageCount:       b.StageCount.Load(),
		StageBytes:       b.StageBytes.Load(),
		StageAvgNanos:    avg(b.StageTotalNanos.Load(), b.StageCount.Load()),
		MaxStageLevel:    b.MaxStageLevel.Load(),
		FinishCount:      b.FinishCount.Load(),
		FinishErrors:     b.FinishErrors.Load(),
		FinishAvgNanos:   avg(b.FinishTotalNanos.Load(), b.FinishCount.Load()),
		TermsOut:         b.TermsOut.Load(),
		CheckpointCount:  b.CheckpointCount.Load(),
		CheckpointErrors: b.CheckpointErrors.Load(),
		CheckpointBytes:  b.CheckpointBytes.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	SpillCount       int64
	SpillBytes       int64
	SpillTerms       int64
	StageCount       int64
	StageBytes       int64
	StageAvgNanos    int64
	MaxStageLevel    int64
	FinishCount      int64
	FinishErrors     int64
	FinishAvgNanos   int64
	TermsOut         int64
	CheckpointCount  int64
	CheckpointErrors int64
	CheckpointBytes  int64
}
