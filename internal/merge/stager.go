package merge

import (
	"context"
	"log/slog"
	"time"

	"github.com/hupe1980/termsort/internal/filehandle"
	"github.com/hupe1980/termsort/internal/patch"
	"github.com/hupe1980/termsort/term"
)

const cancelCheckInterval = 4096

// PassInfo describes one completed reduction pass.
type PassInfo struct {
	Level    int
	Store    int // output store
	Inputs   int
	Outputs  int
	BytesIn  int64
	BytesOut int64
	Terms    int64
	Duration time.Duration
}

// Stager reduces a patch list by merging groups of patches into new patches.
// Stores is indexed by patch.Patch.Store. Outputs names the two store indices
// that passes alternate between.
type Stager struct {
	Stores      []filehandle.Storage
	Outputs     [2]int
	Comparator  term.Comparator
	MaxFpatches int
	BufferBytes int64
	ReadBuffer  int
	Writer      patch.WriterOptions
	Logger      *slog.Logger
	OnPass      func(PassInfo)
}

// FanIn returns how many patches one merge may read at once.
func (s *Stager) FanIn() int {
	fan := s.MaxFpatches
	if s.ReadBuffer > 0 {
		fan = min(fan, int(s.BufferBytes/int64(s.ReadBuffer)))
	}

	return fan
}

func (s *Stager) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}

	return s.Logger
}

// Open returns a source per patch.
func (s *Stager) Open(patches []patch.Patch) []Source {
	out := make([]Source, len(patches))
	for i, p := range patches {
		out[i] = patch.NewReader(s.Stores[p.Store], p, s.ReadBuffer)
	}

	return out
}

// Reduce runs passes until at most limit patches remain. *list is updated
// after every merged group, so on error or cancellation it names exactly the
// patches that still hold the data, each of them complete. level is
// incremented per pass.
func (s *Stager) Reduce(ctx context.Context, list *[]patch.Patch, limit int, level *int) error {
	for len(*list) > limit {
		fan := s.FanIn()
		if fan < 2 {
			return &PatchExhaustionError{
				Patches:     len(*list),
				Limit:       limit,
				FanIn:       fan,
				MaxFpatches: s.MaxFpatches,
				BufferBytes: s.BufferBytes,
				ReadBuffer:  s.ReadBuffer,
			}
		}
		*level++
		if err := s.pass(ctx, list, fan, *level); err != nil {
			return err
		}
	}

	return nil
}

func (s *Stager) pass(ctx context.Context, list *[]patch.Patch, fan, level int) error {
	start := time.Now()
	out := s.pickOutput(*list)
	info := PassInfo{Level: level, Store: out, Inputs: len(*list)}

	// Inputs are consumed from the front, outputs appended at the back.
	pending := len(*list)
	for pending > 0 {
		n := min(fan, pending)
		group := append([]patch.Patch(nil), (*list)[:n]...)
		p, err := s.MergeGroup(ctx, group, out)
		if err != nil {
			return err
		}
		rest := append((*list)[:0:0], (*list)[n:]...)
		*list = append(rest, p)
		pending -= n
		info.Outputs++
		info.BytesOut += p.Size
		info.Terms += p.Terms
		for _, g := range group {
			info.BytesIn += g.Size
		}
	}

	if err := s.resetUnreferenced(*list, out); err != nil {
		return err
	}
	info.Duration = time.Since(start)
	s.logger().Info("merge stage finished",
		"level", level, "inputs", info.Inputs, "outputs", info.Outputs,
		"bytes_in", info.BytesIn, "bytes_out", info.BytesOut, "duration", info.Duration)
	if s.OnPass != nil {
		s.OnPass(info)
	}

	return nil
}

// pickOutput prefers a stage store that no pending patch lives in.
func (s *Stager) pickOutput(list []patch.Patch) int {
	for _, o := range s.Outputs {
		if !referenced(list, o) {
			return o
		}
	}

	return s.Outputs[0]
}

func referenced(list []patch.Patch, store int) bool {
	for _, p := range list {
		if p.Store == store {
			return true
		}
	}

	return false
}

func (s *Stager) resetUnreferenced(list []patch.Patch, keep int) error {
	for i, st := range s.Stores {
		if i == keep || st == nil || referenced(list, i) || st.Size() == 0 {
			continue
		}
		if err := st.Reset(); err != nil {
			return err
		}
	}

	return nil
}

// MergeGroup merges patches into one new patch on store out.
func (s *Stager) MergeGroup(ctx context.Context, group []patch.Patch, out int) (patch.Patch, error) {
	var total int64
	for _, p := range group {
		total += p.Size
	}
	if r, ok := s.Stores[out].(interface{ Reserve(int64) }); ok {
		r.Reserve(total)
	}

	m, err := NewMerger(s.Comparator, s.Open(group))
	if err != nil {
		return patch.Patch{}, err
	}
	opts := s.Writer
	opts.Store = out

	p, err := WritePatch(ctx, s.Stores[out], opts, m)
	if err != nil {
		return patch.Patch{}, err
	}
	s.logger().Debug("patches merged", "inputs", len(group), "patch", p.String())

	return p, nil
}

// WritePatch drains src into a new patch on st. The patch is either fully
// written and committed or not written at all.
func WritePatch(ctx context.Context, st filehandle.Storage, opts patch.WriterOptions, src Source) (patch.Patch, error) {
	w, err := patch.NewWriter(ctx, st, opts)
	if err != nil {
		return patch.Patch{}, err
	}
	n := 0
	err = Drain(src, func(t term.Term) error {
		n++
		if n%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		return w.Write(t)
	})
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		w.Abort()
		return patch.Patch{}, err
	}

	return w.Close()
}
