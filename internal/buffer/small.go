package buffer

import (
	"github.com/hupe1980/termsort/term"
)

// Result describes what Accept did with a term.
type Result int

const (
	// Accepted means the term was stored under a new key.
	Accepted Result = iota
	// Merged means the term was added to an existing key.
	Merged
	// Cancelled means the sum with an existing key was zero and the key
	// was removed.
	Cancelled
	// Dropped means the term had a zero coefficient.
	Dropped
	// Full means nothing was stored; the caller must emit the run, Reset and
	// retry.
	Full
)

// CollectorConfig sizes a Collector. Sizes are in cells.
type CollectorConfig struct {
	Size        int // main region
	Extension   int // overflow region for merged terms that grew
	MaxTerms    int // pointer table capacity
	MaxTermSize int
	Comparator  term.Comparator
}

// Collector is the small buffer.
type Collector struct {
	cmp     term.Comparator
	arena   []term.Cell
	top     int // end of the main region
	fill    int // next free cell in the main region
	efill   int // next free cell in the extension
	ptrs    []int32
	maxPtrs int
	maxTerm int
	scratch term.Term
}

// NewCollector allocates a Collector.
func NewCollector(cfg CollectorConfig) *Collector {
	if cfg.Comparator == nil {
		cfg.Comparator = term.Ascending{}
	}

	return &Collector{
		cmp:     cfg.Comparator,
		arena:   make([]term.Cell, cfg.Size+cfg.Extension),
		top:     cfg.Size,
		efill:   cfg.Size,
		ptrs:    make([]int32, 0, cfg.MaxTerms),
		maxPtrs: cfg.MaxTerms,
		maxTerm: cfg.MaxTermSize,
	}
}

func (c *Collector) at(p int32) term.Term {
	n := int32(c.arena[p])
	return term.Term(c.arena[p : p+n])
}

// search returns the position of t in the pointer table and whether an
// equal key is stored there.
func (c *Collector) search(t term.Term) (int, bool) {
	lo, hi := 0, len(c.ptrs)
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		switch r := c.cmp.Compare(c.at(c.ptrs[mid]), t); {
		case r < 0:
			lo = mid + 1
		case r > 0:
			hi = mid
		default:
			return mid, true
		}
	}

	return lo, false
}

// Accept stores t, merging it with an equal key if present. A term larger
// than the maximum term size is rejected with a *TooLargeError.
func (c *Collector) Accept(t term.Term) (Result, error) {
	if len(t) > c.maxTerm {
		return Full, &TooLargeError{Cells: len(t), Max: c.maxTerm}
	}
	if t.IsZero() {
		return Dropped, nil
	}

	i, found := c.search(t)
	if found {
		return c.merge(i, t), nil
	}

	if len(c.ptrs) >= c.maxPtrs || c.fill+len(t) > c.top {
		return Full, nil
	}
	p := int32(c.fill)
	c.fill += copy(c.arena[c.fill:], t)
	c.ptrs = append(c.ptrs, 0)
	copy(c.ptrs[i+1:], c.ptrs[i:])
	c.ptrs[i] = p

	return Accepted, nil
}

func (c *Collector) merge(i int, t term.Term) Result {
	old := c.at(c.ptrs[i])
	sum := term.Sum(c.scratch, old, t)
	if sum == nil {
		c.ptrs = append(c.ptrs[:i], c.ptrs[i+1:]...)
		return Cancelled
	}
	c.scratch = sum[:0]

	if len(sum) <= len(old) {
		copy(old, sum)
		return Merged
	}
	if c.efill+len(sum) > len(c.arena) {
		return Full
	}
	c.ptrs[i] = int32(c.efill)
	c.efill += copy(c.arena[c.efill:], sum)

	return Merged
}

// Len returns the number of distinct keys held.
func (c *Collector) Len() int { return len(c.ptrs) }

// Run returns the held terms in order. The terms alias the collector and are
// valid until Reset.
func (c *Collector) Run() Run {
	out := make(Run, len(c.ptrs))
	for i, p := range c.ptrs {
		out[i] = c.at(p)
	}

	return out
}

// Reset empties the collector without releasing memory.
func (c *Collector) Reset() {
	c.fill = 0
	c.efill = c.top
	c.ptrs = c.ptrs[:0]
}

// Run is a sorted sequence of terms with distinct keys.
type Run []term.Term

// Cells returns the total number of cells in the run.
func (r Run) Cells() int {
	n := 0
	for _, t := range r {
		n += len(t)
	}

	return n
}
