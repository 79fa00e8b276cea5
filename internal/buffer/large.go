package buffer

import (
	"io"

	"github.com/hupe1980/termsort/term"
)

type span struct {
	start, end int
	terms      int
}

// Manager is the large buffer. It holds sorted runs back to back, each
// terminated by a sentinel cell.
type Manager struct {
	arena   []term.Cell
	fill    int
	runs    []span
	maxRuns int
}

// NewManager allocates a large buffer of size cells holding at most maxRuns
// runs.
func NewManager(size, maxRuns int) *Manager {
	return &Manager{
		arena:   make([]term.Cell, size),
		runs:    make([]span, 0, maxRuns),
		maxRuns: maxRuns,
	}
}

// Capacity returns the size of the buffer in cells.
func (m *Manager) Capacity() int { return len(m.arena) }

// Fits reports whether a run of the given number of cells can be absorbed.
func (m *Manager) Fits(cells int) bool {
	return len(m.runs) < m.maxRuns && m.fill+cells+1 <= len(m.arena)
}

// Absorb copies run into the buffer.
func (m *Manager) Absorb(run Run) error {
	cells := run.Cells()
	if !m.Fits(cells) {
		return ErrFull
	}
	start := m.fill
	for _, t := range run {
		m.fill += copy(m.arena[m.fill:], t)
	}
	m.arena[m.fill] = 0
	m.fill++
	m.runs = append(m.runs, span{start: start, end: m.fill, terms: len(run)})

	return nil
}

// Runs returns the number of runs held.
func (m *Manager) Runs() int { return len(m.runs) }

// Full reports whether no further run can be absorbed.
func (m *Manager) Full() bool { return len(m.runs) >= m.maxRuns }

// Cells returns the number of cells in use, sentinels included.
func (m *Manager) Cells() int { return m.fill }

// Terms returns the number of terms held.
func (m *Manager) Terms() int {
	n := 0
	for _, s := range m.runs {
		n += s.terms
	}

	return n
}

// Readers returns one reader per held run. They alias the buffer and are
// valid until Reset.
func (m *Manager) Readers() []*RunReader {
	out := make([]*RunReader, len(m.runs))
	for i, s := range m.runs {
		out[i] = &RunReader{cells: m.arena[s.start:s.end]}
	}

	return out
}

// Reset empties the buffer.
func (m *Manager) Reset() {
	m.fill = 0
	m.runs = m.runs[:0]
}

// RunReader walks a sentinel terminated run of cells.
type RunReader struct {
	cells []term.Cell
	pos   int
}

// NewRunReader reads terms from cells until the sentinel or the end.
func NewRunReader(cells []term.Cell) *RunReader {
	return &RunReader{cells: cells}
}

// Next returns the next term or io.EOF.
func (r *RunReader) Next() (term.Term, error) {
	if r.pos >= len(r.cells) {
		return nil, io.EOF
	}
	n := int(r.cells[r.pos])
	if n == 0 {
		r.pos = len(r.cells)
		return nil, io.EOF
	}
	t := term.Term(r.cells[r.pos : r.pos+n])
	r.pos += n

	return t, nil
}
