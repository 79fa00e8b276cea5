package prom

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/termsort"
	"github.com/hupe1980/termsort/testutil"
)

func gather(t *testing.T, reg *prometheus.Registry) map[string][]*dto.Metric {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	out := make(map[string][]*dto.Metric, len(families))
	for _, f := range families {
		out[f.GetName()] = f.GetMetric()
	}
	return out
}

func TestCollector_Records(t *testing.T) {
	c := New("test")
	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(c))

	c.RecordSpill(100, 10)
	c.RecordSpill(50, 5)
	c.RecordStage(1, 3, 1, 120, time.Millisecond)
	c.RecordStage(12, 3, 1, 80, time.Millisecond)
	c.RecordFinish(termsort.Stats{TermsLeft: 7}, time.Second, nil)
	c.RecordFinish(termsort.Stats{}, time.Second, errors.New("disk"))
	c.RecordCheckpoint(300, time.Millisecond, nil)

	m := gather(t, reg)
	assert.InDelta(t, 2, m["test_sort_spills_total"][0].GetCounter().GetValue(), 0)
	assert.InDelta(t, 150, m["test_sort_spill_bytes_total"][0].GetCounter().GetValue(), 0)
	assert.Len(t, m["test_sort_stage_passes_total"], 2)
	assert.InDelta(t, 200, m["test_sort_stage_bytes_total"][0].GetCounter().GetValue(), 0)
	assert.Len(t, m["test_sort_runs_total"], 2)
	assert.InDelta(t, 7, m["test_sort_output_terms_total"][0].GetCounter().GetValue(), 0)
	assert.InDelta(t, 300, m["test_checkpoint_bytes_total"][0].GetCounter().GetValue(), 0)
	assert.Equal(t, uint64(2), m["test_sort_stage_duration_seconds"][0].GetHistogram().GetSampleCount())
}

func TestCollector_WithSorter(t *testing.T) {
	c := New("termsort")
	ctx := context.Background()
	s, err := termsort.New(ctx,
		termsort.WithSmallBuffer(60, 12, 10),
		termsort.WithLargeBuffer(130, 2),
		termsort.WithMaxFilePatches(3),
		termsort.WithMaxTermSize(16),
		termsort.WithIOBufferSize(64),
		termsort.WithTempDir(t.TempDir()),
		termsort.WithMetricsCollector(c),
	)
	require.NoError(t, err)
	defer s.Close()

	for _, tm := range testutil.NewRNG(3).Terms(800, testutil.TermShape{Keys: 400}) {
		require.NoError(t, s.Push(ctx, tm))
	}
	out, err := s.Finish(ctx)
	require.NoError(t, err)
	var n int64
	for _, err := range out.All() {
		require.NoError(t, err)
		n++
	}

	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(c))
	m := gather(t, reg)
	assert.Positive(t, m["termsort_sort_spills_total"][0].GetCounter().GetValue())
	assert.InDelta(t, float64(n), m["termsort_sort_output_terms_total"][0].GetCounter().GetValue(), 0)
}
