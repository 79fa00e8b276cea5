package engine

import (
	"log/slog"

	"github.com/hupe1980/termsort/internal/checkpoint"
)

// Stats describes one run of a SortContext.
type Stats struct {
	GenTerms  int64 // terms pushed
	GenCells  int64
	Merged    int64 // pushes combined with an equal key in the small buffer
	Cancelled int64 // keys removed because their sum was zero
	Dropped   int64 // pushes with a zero coefficient

	TermsLeft int64 // terms emitted by the final merge
	CellsLeft int64

	SmallFlushes  int64
	LargeFlushes  int64
	DirectPatches int64 // small runs written straight to file

	Patches    int // file patches currently held
	Stages     int64
	StageLevel int

	// SizeInFile is the number of bytes written to the spill store and to
	// each of the two stage stores.
	SizeInFile [3]int64
}

// Spilled reports whether the run touched scratch storage.
func (s Stats) Spilled() bool { return s.SizeInFile[0] > 0 }

// LogValue implements slog.LogValuer.
func (s Stats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int64("generated_terms", s.GenTerms),
		slog.Int64("generated_cells", s.GenCells),
		slog.Int64("terms_left", s.TermsLeft),
		slog.Int64("cells_left", s.CellsLeft),
		slog.Int64("merged", s.Merged),
		slog.Int64("cancelled", s.Cancelled),
		slog.Int64("small_flushes", s.SmallFlushes),
		slog.Int64("large_flushes", s.LargeFlushes),
		slog.Int("patches", s.Patches),
		slog.Int64("stages", s.Stages),
		slog.Int("stage_level", s.StageLevel),
		slog.Int64("bytes_spilled", s.SizeInFile[0]),
		slog.Int64("bytes_staged", s.SizeInFile[1]+s.SizeInFile[2]),
	)
}

func (s Stats) counters() checkpoint.Counters {
	return checkpoint.Counters{
		GenTerms:      s.GenTerms,
		GenCells:      s.GenCells,
		Merged:        s.Merged,
		Cancelled:     s.Cancelled,
		Dropped:       s.Dropped,
		SmallFlushes:  s.SmallFlushes,
		LargeFlushes:  s.LargeFlushes,
		DirectPatches: s.DirectPatches,
		Stages:        s.Stages,
	}
}

func (s *Stats) restore(c checkpoint.Counters, level int) {
	s.GenTerms, s.GenCells = c.GenTerms, c.GenCells
	s.Merged, s.Cancelled, s.Dropped = c.Merged, c.Cancelled, c.Dropped
	s.SmallFlushes, s.LargeFlushes, s.DirectPatches = c.SmallFlushes, c.LargeFlushes, c.DirectPatches
	s.Stages, s.StageLevel = c.Stages, level
}

// Add accumulates o into s. Used to aggregate worker contexts.
func (s *Stats) Add(o Stats) {
	s.GenTerms += o.GenTerms
	s.GenCells += o.GenCells
	s.Merged += o.Merged
	s.Cancelled += o.Cancelled
	s.Dropped += o.Dropped
	s.TermsLeft += o.TermsLeft
	s.CellsLeft += o.CellsLeft
	s.SmallFlushes += o.SmallFlushes
	s.LargeFlushes += o.LargeFlushes
	s.DirectPatches += o.DirectPatches
	s.Patches += o.Patches
	s.Stages += o.Stages
	s.StageLevel = max(s.StageLevel, o.StageLevel)
	for i := range s.SizeInFile {
		s.SizeInFile[i] += o.SizeInFile[i]
	}
}
