package filehandle

import (
	"fmt"
	"sync"

	"github.com/hupe1980/termsort/internal/fs"
)

// Shared is a scratch file written concurrently by several workers. The
// cursor is the only state guarded by the mutex; payload writes happen
// outside it at reserved offsets.
type Shared struct {
	opts Options

	mu     sync.Mutex
	name   string
	file   fs.File
	size   int64
	views  int
	closed bool
}

// NewShared returns a shared file. No file is created until the first commit.
func NewShared(opts Options) *Shared {
	return &Shared{opts: opts.withDefaults()}
}

// View returns a worker-private window onto the shared file.
func (s *Shared) View() *View {
	s.mu.Lock()
	s.views++
	id := s.views
	s.mu.Unlock()

	return &View{s: s, name: fmt.Sprintf("%s/view-%d", s.opts.Prefix, id)}
}

// Size returns the number of bytes reserved so far.
func (s *Shared) Size() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.size
}

// Stats returns a snapshot of the shared file state.
func (s *Shared) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{Name: s.name, Open: s.file != nil, Size: s.size, Position: s.size}
}

// reserve claims n bytes at the end of the file.
func (s *Shared) reserve(n int64) (fs.File, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, 0, ErrClosed
	}
	if s.file == nil {
		name := s.opts.path()
		f, err := fs.CreateScratch(s.opts.FS, s.opts.Dir, name)
		if err != nil {
			return nil, 0, fmt.Errorf("filehandle: %s: %w", name, err)
		}
		s.file, s.name = f, name
		s.opts.Logger.Debug("shared scratch file created", "file", name)
	}
	off := s.size
	s.size += n

	return s.file, off, nil
}

func (s *Shared) current() (fs.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	return s.file, nil
}

// Close releases the file and removes it from disk.
func (s *Shared) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	if rerr := s.opts.FS.Remove(s.name); rerr != nil && err == nil {
		err = rerr
	}
	s.file = nil

	return err
}

// View is one worker's window onto a Shared file. It implements Storage.
// Reset only forgets the view's own bookkeeping; space in the shared file is
// reclaimed when the file is closed.
type View struct {
	s    *Shared
	name string

	mu      sync.Mutex
	buf     []byte
	active  bool
	written int64
}

// Name implements Storage.
func (v *View) Name() string { return v.name }

// Size returns the bytes this view has committed.
func (v *View) Size() int64 {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.written
}

// ReadAt implements io.ReaderAt.
func (v *View) ReadAt(p []byte, off int64) (int, error) {
	f, err := v.s.current()
	if err != nil {
		return 0, err
	}
	size := v.s.Size()
	if f == nil {
		size = 0
	}

	return readAt(p, off, size, func(p []byte, off int64) (int, error) {
		return f.ReadAt(p, off)
	})
}

// NewRegion implements Storage.
func (v *View) NewRegion() (Region, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.active {
		return nil, ErrRegionBusy
	}
	v.active = true
	v.buf = v.buf[:0]

	return &viewRegion{v: v}, nil
}

// Reset implements Storage.
func (v *View) Reset() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.written = 0

	return nil
}

type viewRegion struct {
	v    *View
	done bool
}

func (r *viewRegion) Write(p []byte) (int, error) {
	if r.done {
		return 0, ErrRegionDone
	}
	r.v.buf = append(r.v.buf, p...)

	return len(p), nil
}

func (r *viewRegion) Commit() (int64, int64, error) {
	if r.done {
		return 0, 0, ErrRegionDone
	}
	v := r.v
	defer r.finish()

	n := int64(len(v.buf))
	f, off, err := v.s.reserve(n)
	if err != nil {
		return 0, 0, err
	}
	// A failed write leaves a hole that no patch references.
	if _, err := f.WriteAt(v.buf, off); err != nil {
		return 0, 0, fmt.Errorf("filehandle: write %s: %w", v.s.name, err)
	}
	v.mu.Lock()
	v.written += n
	v.mu.Unlock()

	return off, n, nil
}

func (r *viewRegion) Abort() {
	if r.done {
		return
	}
	r.finish()
}

func (r *viewRegion) finish() {
	r.done = true
	r.v.mu.Lock()
	r.v.active = false
	// Keep the buffer capacity for the next patch unless it grew huge.
	if cap(r.v.buf) > 64<<20 {
		r.v.buf = nil
	} else {
		r.v.buf = r.v.buf[:0]
	}
	r.v.mu.Unlock()
}
