package engine

import "time"

// Observer receives sort events. Implementations must be safe for
// concurrent use when shared between worker contexts.
type Observer interface {
	// RecordSpill is called for every patch written from memory.
	RecordSpill(bytes, terms int64)

	// RecordStage is called after a staged merge pass.
	RecordStage(level, inputs, outputs int, bytes int64, duration time.Duration)

	// RecordFinish is called when a run ends, err is nil on success.
	RecordFinish(stats Stats, duration time.Duration, err error)
}

// NoopObserver discards all events.
type NoopObserver struct{}

func (NoopObserver) RecordSpill(int64, int64)                        {}
func (NoopObserver) RecordStage(int, int, int, int64, time.Duration) {}
func (NoopObserver) RecordFinish(Stats, time.Duration, error)        {}
