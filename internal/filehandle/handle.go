package filehandle

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/edsrzf/mmap-go"
	"github.com/google/uuid"

	"github.com/hupe1980/termsort/internal/fs"
)

// DefaultCacheSize is the write cache size used when none is configured.
const DefaultCacheSize = 1 << 20

// Options configure a Handle or Shared file.
type Options struct {
	FS        fs.FileSystem
	Dir       string
	Prefix    string
	CacheSize int
	Logger    *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.FS == nil {
		o.FS = fs.Default
	}
	if o.Dir == "" {
		o.Dir = os.TempDir()
	}
	if o.Prefix == "" {
		o.Prefix = "termsort"
	}
	if o.CacheSize <= 0 {
		o.CacheSize = DefaultCacheSize
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}

	return o
}

func (o Options) path() string {
	return filepath.Join(o.Dir, fmt.Sprintf("%s-%s.tmp", o.Prefix, uuid.NewString()))
}

// Handle is a lazily created scratch file with a write-back cache.
// The zero position is the start of the file; bytes [cacheOff, size) live in
// the cache, everything before cacheOff is on disk.
type Handle struct {
	opts Options

	mu       sync.Mutex
	name     string
	file     fs.File // nil until the cache first overflows
	cache    []byte
	cacheOff int64
	size     int64 // committed end
	blocks   int
	region   *handleRegion
	reserve  int64
	advised  bool
	closed   bool
}

// New returns a handle. No file is created until it is needed.
func New(opts Options) *Handle {
	opts = opts.withDefaults()

	return &Handle{
		opts:  opts,
		cache: make([]byte, 0, opts.CacheSize),
	}
}

// Name returns the file path, or the prefix if no file exists yet.
func (h *Handle) Name() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.name == "" {
		return h.opts.Prefix
	}

	return h.name
}

// Size returns the committed size.
func (h *Handle) Size() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.size
}

// Stats returns a snapshot of the handle state.
func (h *Handle) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	pos := h.cacheOff + int64(len(h.cache))

	return Stats{
		Name:     h.name,
		Open:     h.file != nil,
		Size:     h.size,
		Position: pos,
		Blocks:   h.blocks,
		Dirty:    len(h.cache) > 0,
	}
}

// Reserve hints that about n more bytes will be written. On Linux the space
// is preallocated when the file is created or already open.
func (h *Handle) Reserve(n int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reserve = n
	if h.file != nil {
		h.preallocate()
	}
}

func (h *Handle) preallocate() {
	if h.reserve <= 0 {
		return
	}
	if err := fallocate(h.file, h.size, h.reserve); err != nil {
		h.opts.Logger.Debug("preallocation failed", "file", h.name, "bytes", h.reserve, "error", err)
	}
	h.reserve = 0
}

func (h *Handle) open() error {
	if h.file != nil {
		return nil
	}
	name := h.opts.path()
	f, err := fs.CreateScratch(h.opts.FS, h.opts.Dir, name)
	if err != nil {
		return fmt.Errorf("filehandle: %s: %w", name, err)
	}
	h.file, h.name = f, name
	h.opts.Logger.Debug("scratch file created", "file", name)
	h.preallocate()

	return nil
}

// flushLocked writes the cache to disk.
func (h *Handle) flushLocked() error {
	if len(h.cache) == 0 {
		return nil
	}
	if err := h.open(); err != nil {
		return err
	}
	if _, err := h.file.WriteAt(h.cache, h.cacheOff); err != nil {
		return fmt.Errorf("filehandle: write %s: %w", h.name, err)
	}
	h.cacheOff += int64(len(h.cache))
	h.cache = h.cache[:0]
	h.blocks++
	h.advised = false

	return nil
}

// appendLocked adds p to the cache, flushing whenever it fills up.
func (h *Handle) appendLocked(p []byte) error {
	for len(p) > 0 {
		space := cap(h.cache) - len(h.cache)
		if space == 0 {
			if err := h.flushLocked(); err != nil {
				return err
			}
			space = cap(h.cache)
		}
		n := min(space, len(p))
		h.cache = append(h.cache, p[:n]...)
		p = p[n:]
	}

	return nil
}

// Sync writes the cache to disk, creating the file if necessary.
func (h *Handle) Sync() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}
	if err := h.flushLocked(); err != nil {
		return err
	}
	if h.file == nil {
		return nil
	}

	return h.file.Sync()
}

// ReadAt reads committed bytes, from disk or from the cache.
func (h *Handle) ReadAt(p []byte, off int64) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0, ErrClosed
	}

	return readAt(p, off, h.size, func(p []byte, off int64) (int, error) {
		if off >= h.cacheOff {
			return copy(p, h.cache[off-h.cacheOff:]), nil
		}
		if !h.advised {
			adviseSequential(h.file)
			h.advised = true
		}
		n := int(min(int64(len(p)), h.cacheOff-off))

		return h.file.ReadAt(p[:n], off)
	})
}

// NewRegion implements Storage.
func (h *Handle) NewRegion() (Region, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrClosed
	}
	if h.region != nil {
		return nil, ErrRegionBusy
	}
	h.region = &handleRegion{h: h, start: h.size}

	return h.region, nil
}

// Reset truncates the file and empties the cache.
func (h *Handle) Reset() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}
	h.cache = h.cache[:0]
	h.cacheOff, h.size, h.blocks = 0, 0, 0
	h.region = nil
	if h.file == nil {
		return nil
	}
	if err := h.file.Truncate(0); err != nil {
		return fmt.Errorf("filehandle: truncate %s: %w", h.name, err)
	}

	return nil
}

// Map flushes the handle and maps the file read-only. The caller must Unmap
// the result before Reset or Close. Storage that never reached the disk
// returns a nil map.
func (h *Handle) Map() (mmap.MMap, error) {
	if err := h.Sync(); err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.file == nil || h.size == 0 {
		return nil, nil
	}
	osf, ok := h.file.(*os.File)
	if !ok {
		return nil, nil
	}
	m, err := mmap.MapRegion(osf, int(h.size), mmap.RDONLY, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("filehandle: map %s: %w", h.name, err)
	}

	return m, nil
}

// Close releases the file and removes it from disk.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	h.cache = nil
	if h.file == nil {
		return nil
	}
	err := h.file.Close()
	if rerr := h.opts.FS.Remove(h.name); rerr != nil && err == nil {
		err = rerr
	}
	h.file = nil

	return err
}

type handleRegion struct {
	h     *Handle
	start int64
	n     int64
	done  bool
	err   error
}

func (r *handleRegion) Write(p []byte) (int, error) {
	h := r.h
	h.mu.Lock()
	defer h.mu.Unlock()
	if r.done || h.region != r {
		return 0, ErrRegionDone
	}
	if r.err != nil {
		return 0, r.err
	}
	if err := h.appendLocked(p); err != nil {
		r.err = err
		return 0, err
	}
	r.n += int64(len(p))

	return len(p), nil
}

func (r *handleRegion) Commit() (int64, int64, error) {
	h := r.h
	h.mu.Lock()
	defer h.mu.Unlock()
	if r.done || h.region != r {
		return 0, 0, ErrRegionDone
	}
	if r.err != nil {
		h.abortLocked(r)
		return 0, 0, r.err
	}
	r.done = true
	h.region = nil
	h.size = r.start + r.n

	return r.start, r.n, nil
}

func (r *handleRegion) Abort() {
	h := r.h
	h.mu.Lock()
	defer h.mu.Unlock()
	if r.done || h.region != r {
		return
	}
	h.abortLocked(r)
}

// abortLocked rolls the write position back to the region start. Bytes that
// already reached the disk stay there and are overwritten by the next region.
func (h *Handle) abortLocked(r *handleRegion) {
	r.done = true
	h.region = nil
	if r.start >= h.cacheOff {
		h.cache = h.cache[:r.start-h.cacheOff]
		return
	}
	h.cache = h.cache[:0]
	h.cacheOff = r.start
}

// readAt serves a positional read of committed bytes [0, size) using fill for
// the contiguous pieces.
func readAt(p []byte, off, size int64, fill func(p []byte, off int64) (int, error)) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("filehandle: negative offset %d", off)
	}
	if off >= size {
		return 0, io.EOF
	}
	want := len(p)
	if rem := size - off; int64(want) > rem {
		p = p[:rem]
	}
	total := 0
	for total < len(p) {
		n, err := fill(p[total:], off+int64(total))
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, io.ErrUnexpectedEOF
		}
	}
	if total < want {
		return total, io.EOF
	}

	return total, nil
}
