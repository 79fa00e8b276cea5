package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/termsort/internal/checkpoint"
	"github.com/hupe1980/termsort/internal/patch"
	"github.com/hupe1980/termsort/resource"
)

// Checkpoint moves the in-memory runs to file patches and copies the patch
// list to store. Uploads count against the IO limit of cfg.Resources. The
// context stays usable; a failed upload leaves it untouched.
func (sc *SortContext) Checkpoint(ctx context.Context, store *checkpoint.Store) (*checkpoint.Manifest, error) {
	if err := sc.Flush(ctx); err != nil {
		return nil, err
	}

	w, err := store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range sc.patches {
		src := resource.NewRateLimitedReader(ctx, patch.Section(sc.stores[p.Store], p), sc.cfg.Resources)
		if err := w.Add(src, p); err != nil {
			return nil, errors.Join(err, w.Abort(ctx))
		}
	}

	m := &checkpoint.Manifest{
		Instance: sc.id,
		Kind:     int(sc.cfg.Kind),
		Level:    sc.stats.StageLevel,
		Counters: sc.stats.counters(),
	}
	if err := w.Commit(ctx, m); err != nil {
		return nil, err
	}
	sc.log.Info("checkpoint written",
		"version", m.ID, "patches", len(m.Patches), "terms", m.Terms(), "bytes", m.Bytes())

	return m, nil
}

// Resume creates a context from the latest checkpoint in store. Merging
// continues from the recorded patch list; completed stages are not redone.
func Resume(ctx context.Context, cfg Config, store *checkpoint.Store) (*SortContext, error) {
	m, err := store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if Kind(m.Kind) != cfg.Kind {
		return nil, fmt.Errorf("%w: checkpoint of a %s sort resumed as %s", ErrInvalidConfig, Kind(m.Kind), cfg.Kind)
	}

	sc, err := New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := sc.restore(ctx, store, m); err != nil {
		return nil, errors.Join(err, sc.Close())
	}

	return sc, nil
}

func (sc *SortContext) restore(ctx context.Context, store *checkpoint.Store, m *checkpoint.Manifest) error {
	blob, err := store.OpenData(ctx, m)
	if err != nil {
		return err
	}
	defer blob.Close()

	sc.begin()
	for _, p := range m.Patches {
		rc, err := blob.ReadRange(ctx, p.Offset, p.Size)
		if err != nil {
			return err
		}
		src := resource.NewRateLimitedReader(ctx, rc, sc.cfg.Resources)
		moved, err := patch.CopyTo(sc.stores[storeSpill], storeSpill, src, p)
		_ = rc.Close()
		if err != nil {
			return err
		}
		sc.patches = append(sc.patches, moved)
		sc.stats.SizeInFile[storeSpill] += moved.Size
	}
	sc.stats.restore(m.Counters, m.Level)
	sc.log.Info("checkpoint restored",
		"version", m.ID, "from", m.Instance, "patches", len(sc.patches), "terms", m.Terms())

	return sc.stage(ctx)
}
