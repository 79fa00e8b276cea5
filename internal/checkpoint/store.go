package checkpoint

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/termsort/blobstore"
	"github.com/hupe1980/termsort/internal/patch"
)

// Store manages versioned checkpoints on a blob store.
type Store struct {
	store blobstore.BlobStore
	mu    sync.Mutex
}

// NewStore creates a checkpoint store.
func NewStore(store blobstore.BlobStore) *Store {
	return &Store{store: store}
}

func manifestName(id uint64) string { return fmt.Sprintf("%s-%06d.bin", ManifestPrefix, id) }

func dataName(id uint64) string { return fmt.Sprintf("%s-%06d.bin", DataPrefix, id) }

// parseID extracts the version from a MANIFEST-NNNNNN.bin name.
func parseID(name string) (uint64, bool) {
	base := path.Base(name)
	if !strings.HasPrefix(base, ManifestPrefix+"-") || path.Ext(base) != ".bin" {
		return 0, false
	}
	id, err := strconv.ParseUint(strings.TrimSuffix(strings.TrimPrefix(base, ManifestPrefix+"-"), ".bin"), 10, 64)
	if err != nil {
		return 0, false
	}

	return id, true
}

// nextID returns one past the highest manifest version present.
func (s *Store) nextID(ctx context.Context) (uint64, error) {
	files, err := s.store.List(ctx, ManifestPrefix)
	if err != nil {
		return 0, err
	}
	var last uint64
	for _, f := range files {
		if id, ok := parseID(f); ok && id > last {
			last = id
		}
	}

	return last + 1, nil
}

// Begin starts a new checkpoint. Patches are streamed into its data blob
// with Add; nothing is visible to Load until Commit.
func (s *Store) Begin(ctx context.Context) (*Writer, error) {
	s.mu.Lock()
	id, err := s.nextID(ctx)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	blob, err := s.store.Create(ctx, dataName(id))
	if err != nil {
		return nil, fmt.Errorf("checkpoint: create %s: %w", dataName(id), err)
	}

	return &Writer{s: s, id: id, blob: blob}, nil
}

// Load loads the current manifest.
func (s *Store) Load(ctx context.Context) (*Manifest, error) {
	return s.LoadVersion(ctx, 0)
}

// LoadVersion loads a specific version. 0 means latest.
func (s *Store) LoadVersion(ctx context.Context, id uint64) (*Manifest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := manifestName(id)
	if id == 0 {
		content, err := blobstore.ReadAll(ctx, s.store, CurrentFileName)
		if err != nil {
			if errors.Is(err, blobstore.ErrNotFound) {
				return nil, ErrNotFound
			}
			return nil, err
		}
		name = strings.TrimSpace(string(content))
	}

	data, err := blobstore.ReadAll(ctx, s.store, name)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("checkpoint: open %s: %w", name, err)
	}

	return ReadBinary(bytes.NewReader(data))
}

// ListVersions returns the versions present, oldest first.
func (s *Store) ListVersions(ctx context.Context) ([]uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	files, err := s.store.List(ctx, ManifestPrefix)
	if err != nil {
		return nil, err
	}
	var ids []uint64
	for _, f := range files {
		if id, ok := parseID(f); ok {
			ids = append(ids, id)
		}
	}

	return ids, nil
}

// OpenData opens the data blob of m.
func (s *Store) OpenData(ctx context.Context, m *Manifest) (blobstore.Blob, error) {
	return s.store.Open(ctx, m.Data)
}

// DeleteVersion removes the manifest and the data blob of a version.
func (s *Store) DeleteVersion(ctx context.Context, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return errors.Join(
		s.store.Delete(ctx, manifestName(id)),
		s.store.Delete(ctx, dataName(id)),
	)
}

// Writer streams one checkpoint.
type Writer struct {
	s       *Store
	id      uint64
	blob    blobstore.WritableBlob
	off     int64
	patches []patch.Patch
	done    bool
}

// ID returns the version being written.
func (w *Writer) ID() uint64 { return w.id }

// Add appends the stored bytes of p, read from src, to the data blob.
func (w *Writer) Add(src io.Reader, p patch.Patch) error {
	n, err := io.Copy(w.blob, io.LimitReader(src, p.Size))
	w.off += n
	if err != nil {
		return fmt.Errorf("checkpoint: copy %s: %w", p, err)
	}
	if n != p.Size {
		return fmt.Errorf("checkpoint: short copy of %s: %d bytes", p, n)
	}
	p.Store, p.Offset = 0, w.off-n
	w.patches = append(w.patches, p)

	return nil
}

// Commit finishes the data blob and publishes m as the current checkpoint.
// ID, CreatedAt, Data and Patches of m are filled in.
func (w *Writer) Commit(ctx context.Context, m *Manifest) error {
	if w.done {
		return errors.New("checkpoint: writer finished")
	}
	w.done = true
	if err := w.blob.Close(); err != nil {
		_ = w.s.store.Delete(ctx, dataName(w.id))
		return fmt.Errorf("checkpoint: close %s: %w", dataName(w.id), err)
	}

	m.Version = CurrentVersion
	m.ID = w.id
	m.CreatedAt = time.Now()
	m.Data = dataName(w.id)
	m.Patches = w.patches

	var buf bytes.Buffer
	if err := m.WriteBinary(&buf); err != nil {
		return err
	}

	w.s.mu.Lock()
	defer w.s.mu.Unlock()

	if err := w.s.store.Put(ctx, manifestName(w.id), buf.Bytes()); err != nil {
		return err
	}

	return w.s.store.Put(ctx, CurrentFileName, []byte(manifestName(w.id)))
}

// Abort discards the data written so far.
func (w *Writer) Abort(ctx context.Context) error {
	if w.done {
		return nil
	}
	w.done = true

	return errors.Join(blobstore.Abort(w.blob), w.s.store.Delete(ctx, dataName(w.id)))
}
