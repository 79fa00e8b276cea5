package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/termsort/blobstore"
	"github.com/hupe1980/termsort/internal/checkpoint"
	"github.com/hupe1980/termsort/internal/codec"
	"github.com/hupe1980/termsort/internal/filehandle"
	"github.com/hupe1980/termsort/internal/fs"
	"github.com/hupe1980/termsort/internal/merge"
	"github.com/hupe1980/termsort/internal/patch"
	"github.com/hupe1980/termsort/resource"
	"github.com/hupe1980/termsort/term"
	"github.com/hupe1980/termsort/testutil"
)

// tinyConfig forces spills and staged merges after a handful of terms.
func tinyConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig(KindMain)
	cfg.SmallSize = 60
	cfg.SmallExtension = 12
	cfg.TermsInSmall = 10
	cfg.LargeSize = 130
	cfg.MaxPatches = 2
	cfg.MaxFpatches = 3
	cfg.MaxTermSize = 16
	cfg.IOBufferSize = 64
	cfg.TempDir = t.TempDir()

	return cfg
}

func roomyConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig(KindFunction)
	cfg.TempDir = t.TempDir()

	return cfg
}

func newContext(t *testing.T, cfg Config) *SortContext {
	t.Helper()
	sc, err := New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sc.Close() })

	return sc
}

func pushAll(t *testing.T, sc *SortContext, terms []term.Term) {
	t.Helper()
	for _, tm := range terms {
		require.NoError(t, sc.Push(context.Background(), tm))
	}
}

func drain(t *testing.T, s *Stream) []string {
	t.Helper()
	var out []string
	for tm, err := range s.All() {
		require.NoError(t, err)
		out = append(out, tm.String())
	}

	return out
}

func sortAll(t *testing.T, cfg Config, terms []term.Term) ([]string, Stats) {
	t.Helper()
	sc := newContext(t, cfg)
	pushAll(t, sc, terms)
	s, err := sc.Finish(context.Background())
	require.NoError(t, err)

	return drain(t, s), sc.Stats()
}

func scenario() []term.Term {
	const a, b, c = 1, 2, 3
	return []term.Term{
		term.New([]term.Cell{a}, 3),
		term.New([]term.Cell{b}, 1),
		term.New([]term.Cell{a}, -3),
		term.New([]term.Cell{c}, 2),
		term.New([]term.Cell{b}, 1),
	}
}

func TestScenario(t *testing.T) {
	spilling := tinyConfig(t)
	spilling.SmallSize = 15 // three 5-cell terms
	spilling.MaxTermSize = 8
	spilling.TermsInSmall = 3
	spilling.DirectPatchFraction = 0.01

	configs := map[string]Config{
		"roomy":    roomyConfig(t),
		"tiny":     tinyConfig(t),
		"spilling": spilling,
	}
	for name, cfg := range configs {
		t.Run(name, func(t *testing.T) {
			got, stats := sortAll(t, cfg, scenario())
			assert.Equal(t, []string{"2 : +2", "3 : +2"}, got)
			assert.Equal(t, int64(5), stats.GenTerms)
			assert.Equal(t, int64(2), stats.TermsLeft)
		})
	}

	_, stats := sortAll(t, spilling, scenario())
	assert.True(t, stats.Spilled())
	assert.Positive(t, stats.DirectPatches)
}

func TestSpillTransparency(t *testing.T) {
	rng := testutil.NewRNG(7)
	terms := rng.Terms(4000, testutil.TermShape{Keys: 300, Rational: true, Skew: 1.1})
	want := testutil.Strings(testutil.Reference(term.Ascending{}, terms))

	roomy, stats := sortAll(t, roomyConfig(t), terms)
	assert.Equal(t, want, roomy)
	assert.False(t, stats.Spilled())

	for _, c := range []codec.Type{codec.None, codec.LZ4, codec.ZSTD, codec.S2} {
		t.Run(c.String(), func(t *testing.T) {
			cfg := tinyConfig(t)
			cfg.Compression = c
			cfg.CompressionBlockSize = 128
			got, stats := sortAll(t, cfg, terms)
			assert.Equal(t, want, got)
			assert.True(t, stats.Spilled())
			assert.Positive(t, stats.Stages)
			assert.Positive(t, stats.StageLevel)
			assert.Positive(t, stats.SizeInFile[storeStageA]+stats.SizeInFile[storeStageB])
		})
	}

	t.Run("direct patches", func(t *testing.T) {
		cfg := tinyConfig(t)
		cfg.DirectPatchFraction = 0.25
		got, stats := sortAll(t, cfg, terms)
		assert.Equal(t, want, got)
		assert.Positive(t, stats.DirectPatches)
	})
}

func TestDescendingAndVariableOrder(t *testing.T) {
	rng := testutil.NewRNG(11)
	terms := rng.Terms(1500, testutil.TermShape{Keys: 120, KeyLen: 3})

	for name, cmp := range map[string]term.Comparator{
		"descending": term.Descending{},
		"variables":  term.NewVariableOrder(5, 3, 1, 0, 2, 4),
	} {
		t.Run(name, func(t *testing.T) {
			cfg := tinyConfig(t)
			cfg.MaxTermSize = 20
			cfg.Comparator = cmp
			got, _ := sortAll(t, cfg, terms)
			assert.Equal(t, testutil.Strings(testutil.Reference(cmp, terms)), got)
		})
	}
}

func TestPartitionInvariance(t *testing.T) {
	rng := testutil.NewRNG(3)
	terms := rng.Terms(2000, testutil.TermShape{Keys: 150})
	want := testutil.Strings(testutil.Reference(term.Ascending{}, terms))

	var merged []term.Term
	for _, part := range rng.Partition(terms, 4) {
		sc := newContext(t, tinyConfig(t))
		pushAll(t, sc, part)
		s, err := sc.Finish(context.Background())
		require.NoError(t, err)
		for tm, err := range s.All() {
			require.NoError(t, err)
			merged = append(merged, tm.Clone())
		}
	}
	rng.Shuffle(merged)

	got, _ := sortAll(t, tinyConfig(t), merged)
	assert.Equal(t, want, got)

	again, _ := sortAll(t, tinyConfig(t), append(mustParse(t, got), mustParse(t, got)...))
	assert.Len(t, again, len(got))
}

func mustParse(t *testing.T, ss []string) []term.Term {
	t.Helper()
	out := make([]term.Term, len(ss))
	for i, s := range ss {
		tm, err := term.Parse(s)
		require.NoError(t, err)
		out[i] = tm
	}

	return out
}

func TestIdempotence(t *testing.T) {
	rng := testutil.NewRNG(5)
	first, _ := sortAll(t, tinyConfig(t), rng.Terms(800, testutil.TermShape{Keys: 90}))

	second, stats := sortAll(t, tinyConfig(t), mustParse(t, first))
	assert.Equal(t, first, second)
	assert.Zero(t, stats.Merged)
	assert.Zero(t, stats.Cancelled)
}

func TestPush_Rejections(t *testing.T) {
	sc := newContext(t, tinyConfig(t))
	ctx := context.Background()

	big := term.New(make([]term.Cell, 20), 1)
	err := sc.Push(ctx, big)
	assert.ErrorIs(t, err, ErrTooLarge)

	err = sc.Push(ctx, term.Term{2, 0})
	assert.ErrorIs(t, err, term.ErrMalformed)

	require.NoError(t, sc.Push(ctx, term.MustParse("1 : 1")))
	require.NoError(t, sc.Push(ctx, term.MustParse("2 : 0")))
	s, err := sc.Finish(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"1 : +1"}, drain(t, s))
	assert.Equal(t, int64(1), sc.Stats().Dropped)
}

func TestPush_ReducesCoefficients(t *testing.T) {
	unreduced := term.Term{5, 1, 2, 2, 3}
	plus, minus := term.New([]term.Cell{1}, 1), term.New([]term.Cell{1}, -1)
	orders := [][]term.Term{
		{unreduced, plus, minus},
		{plus, minus, unreduced},
		{plus, unreduced, minus},
		{minus, unreduced, plus},
		{unreduced},
	}
	want := []term.Term{term.New([]term.Cell{1}, 1)}

	for i, in := range orders {
		for _, cfg := range []Config{tinyConfig(t), roomyConfig(t)} {
			sc := newContext(t, cfg)
			pushAll(t, sc, in)
			s, err := sc.Finish(context.Background())
			require.NoError(t, err)
			var got []term.Term
			for tm, err := range s.All() {
				require.NoError(t, err)
				got = append(got, tm.Clone())
			}
			assert.Equal(t, want, got, "order %d", i)
		}
	}
}

func TestDiskFailureIsFatal(t *testing.T) {
	ffs := fs.NewFaultyFS(nil)
	ffs.AddRule("spill", fs.Fault{FailAfterBytes: 1500})

	cfg := tinyConfig(t)
	cfg.FS = ffs
	sc := newContext(t, cfg)

	rng := testutil.NewRNG(9)
	var err error
	for _, tm := range rng.Terms(5000, testutil.TermShape{Keys: 1000}) {
		if err = sc.Push(context.Background(), tm); err != nil {
			break
		}
	}
	require.ErrorIs(t, err, fs.ErrInjected)

	err = sc.Push(context.Background(), term.MustParse("1 : 1"))
	assert.ErrorIs(t, err, ErrFailed)
	assert.ErrorIs(t, err, fs.ErrInjected)
	_, err = sc.Finish(context.Background())
	assert.ErrorIs(t, err, ErrFailed)

	// Every listed patch is complete and verifies.
	for _, p := range sc.Patches() {
		r := patch.NewReader(sc.stores[p.Store], p, 64)
		require.NoError(t, merge.Drain(r, func(term.Term) error { return nil }), p.String())
	}
}

func TestPatchExhaustion(t *testing.T) {
	cfg := tinyConfig(t)
	cfg.LargeSize = 20 // 80 bytes of buffer hold a single 64 byte read buffer
	sc := newContext(t, cfg)

	rng := testutil.NewRNG(1)
	var err error
	for _, tm := range rng.Terms(2000, testutil.TermShape{Keys: 1000}) {
		if err = sc.Push(context.Background(), tm); err != nil {
			break
		}
	}
	require.ErrorIs(t, err, ErrPatchExhaustion)

	var pe *merge.PatchExhaustionError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 1, pe.FanIn)
	assert.Equal(t, int64(80), pe.BufferBytes)
	assert.Equal(t, 64, pe.ReadBuffer)
}

func TestCancellationIsRecoverable(t *testing.T) {
	rng := testutil.NewRNG(21)
	terms := rng.Terms(1500, testutil.TermShape{Keys: 400})
	sc := newContext(t, tinyConfig(t))

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	interrupted := 0
	for i, tm := range terms {
		ctx := context.Background()
		if i%7 == 0 {
			ctx = cancelled
		}
		if err := sc.Push(ctx, tm); err != nil {
			require.ErrorIs(t, err, context.Canceled)
			interrupted++
			require.NoError(t, sc.Push(context.Background(), tm))
		}
	}
	assert.Positive(t, interrupted)

	s, err := sc.Finish(context.Background())
	require.NoError(t, err)
	assert.Equal(t, testutil.Strings(testutil.Reference(term.Ascending{}, terms)), drain(t, s))
}

func TestStream_CloseEarlyKeepsRun(t *testing.T) {
	rng := testutil.NewRNG(4)
	terms := rng.Terms(1000, testutil.TermShape{Keys: 200})
	want := testutil.Strings(testutil.Reference(term.Ascending{}, terms))
	sc := newContext(t, tinyConfig(t))
	pushAll(t, sc, terms)

	s, err := sc.Finish(context.Background())
	require.NoError(t, err)
	for range 3 {
		require.True(t, s.Next())
	}
	_, err = sc.Finish(context.Background())
	assert.ErrorIs(t, err, ErrStreamOpen)
	assert.ErrorIs(t, sc.Push(context.Background(), terms[0]), ErrStreamOpen)
	require.NoError(t, s.Close())
	assert.False(t, s.Next())

	s, err = sc.Finish(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want, drain(t, s))
	assert.Equal(t, int64(len(want)), sc.Stats().TermsLeft)
	assert.Zero(t, sc.Stats().Patches)

	// The context is ready for another run.
	pushAll(t, sc, scenario())
	s, err = sc.Finish(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"2 : +2", "3 : +2"}, drain(t, s))
	assert.Equal(t, int64(5), sc.Stats().GenTerms)
}

func TestMaterialize(t *testing.T) {
	rng := testutil.NewRNG(8)
	terms := rng.Terms(1200, testutil.TermShape{Keys: 250, Rational: true})
	want := testutil.Strings(testutil.Reference(term.Ascending{}, terms))

	for _, c := range []codec.Type{codec.None, codec.ZSTD} {
		t.Run(c.String(), func(t *testing.T) {
			cfg := tinyConfig(t)
			cfg.Compression = c
			sc := newContext(t, cfg)
			pushAll(t, sc, terms)

			out, err := sc.Materialize(context.Background())
			require.NoError(t, err)
			defer out.Close()
			assert.Equal(t, c == codec.None, out.Mapped())
			assert.Equal(t, int64(len(want)), out.Len())

			for range 2 {
				var got []string
				for tm, err := range out.Terms() {
					require.NoError(t, err)
					got = append(got, tm.String())
				}
				assert.Equal(t, want, got)
			}
			assert.Zero(t, sc.Stats().Patches)
		})
	}
}

func TestMemoryReservation(t *testing.T) {
	cfg := tinyConfig(t)
	rc := resource.NewController(resource.Config{MemoryLimitBytes: cfg.memoryBytes()})
	cfg.Resources = rc

	sc, err := New(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, cfg.memoryBytes(), rc.MemoryUsage())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = New(ctx, cfg)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, sc.Close())
	assert.Zero(t, rc.MemoryUsage())
	assert.ErrorIs(t, sc.Push(context.Background(), term.MustParse("1 : 1")), ErrClosed)

	huge := DefaultConfig(KindMain)
	huge.Resources = rc
	_, err = New(context.Background(), huge)
	assert.ErrorIs(t, err, resource.ErrMemoryLimitExceeded)
}

func TestMemoryReservation_SharedSpill(t *testing.T) {
	cfg := tinyConfig(t)
	cfg.Compression = codec.LZ4
	private := cfg.memoryBytes()

	shared := filehandle.NewShared(filehandle.Options{Dir: cfg.TempDir, Prefix: "shared"})
	defer shared.Close()
	cfg.Spill = shared.View()
	rc := resource.NewController(resource.Config{})
	cfg.Resources = rc

	sc := newContext(t, cfg)
	assert.Equal(t, private+cfg.spillPatchBytes(), rc.MemoryUsage())
	assert.Greater(t, cfg.spillPatchBytes(), int64(cfg.LargeSize)*term.CellSize)

	terms := testutil.NewRNG(12).Terms(600, testutil.TermShape{Keys: 300})
	pushAll(t, sc, terms)
	s, err := sc.Finish(context.Background())
	require.NoError(t, err)
	assert.Equal(t, testutil.Strings(testutil.Reference(term.Ascending{}, terms)), drain(t, s))
	assert.True(t, sc.Stats().Spilled())

	require.NoError(t, sc.Close())
	assert.Zero(t, rc.MemoryUsage())
}

func TestConfigValidate(t *testing.T) {
	for _, k := range []Kind{KindMain, KindFunction, KindSub} {
		assert.NoError(t, DefaultConfig(k).Validate(), k.String())
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"term below minimum", func(c *Config) { c.MaxTermSize = 3 }},
		{"small below term", func(c *Config) { c.SmallSize = c.MaxTermSize - 1 }},
		{"no pointers", func(c *Config) { c.TermsInSmall = 0 }},
		{"large below term", func(c *Config) { c.LargeSize = c.MaxTermSize }},
		{"no patches", func(c *Config) { c.MaxPatches = 0 }},
		{"single file patch", func(c *Config) { c.MaxFpatches = 1 }},
		{"fraction", func(c *Config) { c.DirectPatchFraction = 1.5 }},
		{"io buffer", func(c *Config) { c.IOBufferSize = 8 }},
		{"codec", func(c *Config) { c.Compression = codec.Type(99) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig(KindMain)
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}

	k, err := ParseKind("fun")
	require.NoError(t, err)
	assert.Equal(t, KindFunction, k)
	_, err = ParseKind("other")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

type recordingObserver struct {
	spills, stages, finishes int
	lastErr                  error
	last                     Stats
}

func (r *recordingObserver) RecordSpill(int64, int64) { r.spills++ }

func (r *recordingObserver) RecordStage(int, int, int, int64, time.Duration) { r.stages++ }

func (r *recordingObserver) RecordFinish(s Stats, _ time.Duration, err error) {
	r.finishes++
	r.last, r.lastErr = s, err
}

func TestObserver(t *testing.T) {
	obs := &recordingObserver{}
	cfg := tinyConfig(t)
	cfg.Observer = obs

	rng := testutil.NewRNG(2)
	got, stats := sortAll(t, cfg, rng.Terms(1000, testutil.TermShape{Keys: 300}))
	assert.NotEmpty(t, got)
	assert.Positive(t, obs.spills)
	assert.Equal(t, int(stats.Stages), obs.stages)
	assert.Equal(t, 1, obs.finishes)
	assert.NoError(t, obs.lastErr)
	assert.Equal(t, stats.TermsLeft, obs.last.TermsLeft)
}

func TestFlushAndReset(t *testing.T) {
	sc := newContext(t, tinyConfig(t))
	pushAll(t, sc, scenario())
	require.NoError(t, sc.Flush(context.Background()))
	assert.Equal(t, 1, sc.Stats().Patches)
	assert.True(t, sc.Stats().Spilled())

	require.NoError(t, sc.Reset())
	assert.Zero(t, sc.Stats().Patches)
	assert.Zero(t, sc.stores[storeSpill].Size())

	s, err := sc.Finish(context.Background())
	require.NoError(t, err)
	assert.Empty(t, drain(t, s))
	assert.NoError(t, s.Err())
}

func TestCheckpointResume(t *testing.T) {
	rng := testutil.NewRNG(13)
	terms := rng.Terms(3000, testutil.TermShape{Keys: 500, Rational: true})
	first, second := terms[:1700], terms[1700:]
	ctx := context.Background()
	store := checkpoint.NewStore(blobstore.NewMemoryStore())

	cfg := tinyConfig(t)
	cfg.Compression = codec.S2
	sc := newContext(t, cfg)
	pushAll(t, sc, first)
	m, err := sc.Checkpoint(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, sc.ID(), m.Instance)
	assert.Len(t, m.Patches, sc.Stats().Patches)
	assert.Equal(t, int64(len(first)), m.Counters.GenTerms)
	require.NoError(t, sc.Close())

	_, err = Resume(ctx, DefaultConfig(KindSub), store)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	resumed, err := Resume(ctx, tinyConfig(t), store)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resumed.Close() })
	assert.NotEqual(t, m.Instance, resumed.ID())
	assert.GreaterOrEqual(t, resumed.Stats().StageLevel, m.Level)

	pushAll(t, resumed, second)
	s, err := resumed.Finish(ctx)
	require.NoError(t, err)
	assert.Equal(t, testutil.Strings(testutil.Reference(term.Ascending{}, terms)), drain(t, s))
	assert.Equal(t, int64(len(terms)), resumed.Stats().GenTerms)

	versions, err := store.ListVersions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uint64{m.ID}, versions)
}

func TestStack(t *testing.T) {
	dir := t.TempDir()
	st := NewStack(func(k Kind) Config {
		cfg := DefaultConfig(k)
		cfg.TempDir = dir
		return cfg
	})
	defer st.Clear()
	ctx := context.Background()

	outer, err := st.Open(ctx, KindMain)
	require.NoError(t, err)
	inner, err := st.Open(ctx, KindFunction)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Depth())
	assert.Same(t, inner, st.Current())

	require.NoError(t, inner.Push(ctx, term.MustParse("7 : 1")))
	require.NoError(t, inner.Push(ctx, term.MustParse("7 : 1/2")))
	s, err := st.End(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"7 : +3/2"}, drain(t, s))
	assert.Same(t, outer, st.Current())

	again, err := st.Open(ctx, KindFunction)
	require.NoError(t, err)
	assert.Same(t, inner, again)
	_, err = st.End(ctx)
	require.NoError(t, err)

	other, err := st.Open(ctx, KindSub)
	require.NoError(t, err)
	assert.NotSame(t, inner, other)
	assert.ErrorIs(t, inner.Push(ctx, term.MustParse("1 : 1")), ErrClosed)

	require.NoError(t, st.Clear())
	assert.Zero(t, st.Depth())
	assert.Nil(t, st.Current())
	_, err = st.End(ctx)
	assert.Error(t, err)
}

func TestStack_ReplacedLevelClosesDeeperLevels(t *testing.T) {
	dir := t.TempDir()
	rc := resource.NewController(resource.Config{})
	st := NewStack(func(k Kind) Config {
		cfg := DefaultConfig(k)
		cfg.TempDir = dir
		cfg.Resources = rc
		return cfg
	})
	ctx := context.Background()

	_, err := st.Open(ctx, KindMain)
	require.NoError(t, err)
	sub, err := st.Open(ctx, KindSub)
	require.NoError(t, err)
	_, err = st.End(ctx)
	require.NoError(t, err)
	_, err = st.End(ctx)
	require.NoError(t, err)

	_, err = st.Open(ctx, KindFunction)
	require.NoError(t, err)
	assert.ErrorIs(t, sub.Push(ctx, term.MustParse("1 : 1")), ErrClosed)
	assert.Equal(t, DefaultConfig(KindFunction).memoryBytes(), rc.MemoryUsage())
	_, err = st.End(ctx)
	require.NoError(t, err)

	require.NoError(t, st.Clear())
	assert.Zero(t, rc.MemoryUsage())
}
