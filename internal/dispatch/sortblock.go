package dispatch

import (
	"fmt"
	"io"
	"sync"

	"github.com/hupe1980/termsort/internal/merge"
	"github.com/hupe1980/termsort/term"
)

// block is the output buffer of one worker. The worker appends at fill and
// never touches [read, fill); the master reads [read, fill) and only moves
// read. The buffer wraps once the master has caught up with fill.
type block struct {
	buf   []term.Cell
	start int
	fill  int
	stop  int
	read  int // master's consumption mark

	final bool
	err   error
}

// SortBlock is the guarded set of worker output buffers the master merges
// from. The guard is held only to snapshot or move the marks.
type SortBlock struct {
	mu      sync.Mutex
	cond    *sync.Cond
	blocks  []*block
	aborted bool
}

// NewSortBlock allocates one buffer of cells cells per worker.
func NewSortBlock(workers, cells int) *SortBlock {
	sb := &SortBlock{blocks: make([]*block, workers)}
	sb.cond = sync.NewCond(&sb.mu)
	for i := range sb.blocks {
		sb.blocks[i] = &block{buf: make([]term.Cell, cells), stop: cells}
	}

	return sb
}

// Writer returns the worker side of block i.
func (sb *SortBlock) Writer(i int) *BlockWriter {
	return &BlockWriter{sb: sb, b: sb.blocks[i]}
}

// Source returns the master side of block i.
func (sb *SortBlock) Source(i int) merge.Source {
	return &blockSource{sb: sb, b: sb.blocks[i], id: i}
}

// Sources returns a source per worker.
func (sb *SortBlock) Sources() []merge.Source {
	out := make([]merge.Source, len(sb.blocks))
	for i := range out {
		out[i] = sb.Source(i)
	}

	return out
}

// Abort wakes every blocked writer with ErrAborted.
func (sb *SortBlock) Abort() {
	sb.mu.Lock()
	sb.aborted = true
	sb.mu.Unlock()
	sb.cond.Broadcast()
}

// BlockWriter appends a worker's sorted terms.
type BlockWriter struct {
	sb *SortBlock
	b  *block
}

// Write appends t, waiting for the master to drain the buffer when it is
// full.
func (w *BlockWriter) Write(t term.Term) error {
	sb, b := w.sb, w.b
	sb.mu.Lock()
	for {
		if sb.aborted {
			sb.mu.Unlock()
			return ErrAborted
		}
		if b.fill+len(t) <= b.stop {
			break
		}
		if b.read == b.fill {
			b.start, b.fill, b.read = 0, 0, 0
			if len(t) > b.stop {
				b.buf = make([]term.Cell, len(t))
				b.stop = len(t)
			}
			continue
		}
		sb.cond.Wait()
	}
	off := b.fill
	sb.mu.Unlock()

	// [off, off+len(t)) lies beyond fill, which the master does not read.
	copy(b.buf[off:], t)

	sb.mu.Lock()
	b.fill = off + len(t)
	sb.mu.Unlock()
	sb.cond.Broadcast()

	return nil
}

// Close publishes the end of the worker's output. A non-nil err is passed
// to the master.
func (w *BlockWriter) Close(err error) {
	w.sb.mu.Lock()
	w.b.final = true
	w.b.err = err
	w.sb.mu.Unlock()
	w.sb.cond.Broadcast()
}

type blockSource struct {
	sb  *SortBlock
	b   *block
	id  int
	cur term.Term
}

// snapshot waits for output and returns the marks.
func (s *blockSource) snapshot() (buf []term.Cell, start, fill, stop, read int, err error) {
	sb, b := s.sb, s.b
	sb.mu.Lock()
	defer sb.mu.Unlock()
	for b.read == b.fill && !b.final && !sb.aborted {
		sb.cond.Wait()
	}
	if sb.aborted {
		return nil, 0, 0, 0, 0, ErrAborted
	}

	return b.buf, b.start, b.fill, b.stop, b.read, nil
}

// Next copies the next term out of the worker's buffer.
func (s *blockSource) Next() (term.Term, error) {
	buf, start, fill, stop, read, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	if start > read || read > fill || fill > stop || stop > len(buf) {
		return nil, fmt.Errorf("%w: worker %d start=%d read=%d fill=%d stop=%d",
			ErrSortBlockInconsistent, s.id, start, read, fill, stop)
	}
	if read == fill {
		s.sb.mu.Lock()
		err := s.b.err
		s.sb.mu.Unlock()
		if err != nil {
			return nil, err
		}
		return nil, io.EOF
	}

	n := int(buf[read])
	if n < term.MinLen || read+n > fill {
		return nil, fmt.Errorf("%w: worker %d term of %d cells at %d, fill %d",
			ErrSortBlockInconsistent, s.id, n, read, fill)
	}
	s.cur = append(s.cur[:0], buf[read:read+n]...)

	s.sb.mu.Lock()
	s.b.read = read + n
	s.sb.mu.Unlock()
	s.sb.cond.Broadcast()

	return s.cur, nil
}
