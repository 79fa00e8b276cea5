package dispatch

import (
	"fmt"
	"slices"
	"sync"

	"github.com/hupe1980/termsort/term"
)

// Status is the state of a ThreadBucket.
type Status int

const (
	StatusFree Status = iota
	StatusFilling
	StatusReady
	StatusMerging
	StatusDone
)

func (s Status) String() string {
	switch s {
	case StatusFree:
		return "free"
	case StatusFilling:
		return "filling"
	case StatusReady:
		return "ready"
	case StatusMerging:
		return "merging"
	case StatusDone:
		return "done"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// ThreadBucket is a range of input terms processed by one worker. The
// worker takes terms from the front while a thief may cut off the back, so
// both ends are guarded.
type ThreadBucket struct {
	mu     sync.Mutex
	slot   int
	seq    uint32
	root   uint32 // seq of the assignment this range was split from
	status Status
	terms  []term.Term
	next   int // first unprocessed term
	stop   int // end of the range owned by this bucket

	primary int64
	derived int64
}

// Seq identifies the range the bucket currently holds.
func (b *ThreadBucket) Seq() uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.seq
}

// Status returns the current state.
func (b *ThreadBucket) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.status
}

// Next returns the next unprocessed term and counts it as primary.
func (b *ThreadBucket) Next() (term.Term, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.status != StatusMerging || b.next >= b.stop {
		return nil, false
	}
	t := b.terms[b.next]
	b.next++
	b.primary++

	return t, true
}

// AddDerived counts terms generated from the primary ones.
func (b *ThreadBucket) AddDerived(n int64) {
	b.mu.Lock()
	b.derived += n
	b.mu.Unlock()
}

// Counts returns the primary and derived term counts.
func (b *ThreadBucket) Counts() (primary, derived int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.primary, b.derived
}

func (b *ThreadBucket) remaining() int {
	return b.stop - b.next
}

// fill loads a range. The bucket must be free.
func (b *ThreadBucket) fill(seq, root uint32, terms []term.Term) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status = StatusFilling
	b.seq, b.root = seq, root
	b.terms = append(b.terms[:0], terms...)
	b.next, b.stop = 0, len(b.terms)
	b.primary, b.derived = 0, 0
	b.status = StatusReady
}

// split cuts off the upper half of the unprocessed range.
func (b *ThreadBucket) split(minSplit int) ([]term.Term, uint32, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := b.remaining()
	if b.status != StatusMerging || n < max(minSplit, 2) {
		return nil, 0, false
	}
	mid := b.next + n/2
	upper := slices.Clone(b.terms[mid:b.stop])
	b.stop = mid

	return upper, b.root, true
}

func (b *ThreadBucket) release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status = StatusFree
	clear(b.terms)
	b.terms = b.terms[:0]
	b.next, b.stop = 0, 0
}
