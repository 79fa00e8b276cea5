// Package prom exports termsort metrics to Prometheus.
package prom

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/termsort"
)

var _ termsort.MetricsCollector = (*Collector)(nil)

// Collector is a termsort.MetricsCollector backed by Prometheus metrics.
// Register it with a prometheus.Registerer.
type Collector struct {
	spills      prometheus.Counter
	spillBytes  prometheus.Counter
	spillTerms  prometheus.Counter
	stages      *prometheus.CounterVec
	stageBytes  prometheus.Counter
	stageTime   prometheus.Histogram
	finishes    *prometheus.CounterVec
	finishTime  prometheus.Histogram
	termsOut    prometheus.Counter
	checkpoints *prometheus.CounterVec
	ckptBytes   prometheus.Counter
}

// New returns a collector with metrics under namespace.
func New(namespace string) *Collector {
	return &Collector{
		spills: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sort",
			Name:      "spills_total",
			Help:      "Runs written to file patches.",
		}),
		spillBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sort",
			Name:      "spill_bytes_total",
		}),
		spillTerms: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sort",
			Name:      "spill_terms_total",
		}),
		stages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sort",
			Name:      "stage_passes_total",
			Help:      "Staged merge passes by level.",
		}, []string{"level"}),
		stageBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sort",
			Name:      "stage_bytes_total",
		}),
		stageTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sort",
			Name:      "stage_duration_seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
		finishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sort",
			Name:      "runs_total",
			Help:      "Completed runs by result.",
		}, []string{"result"}),
		finishTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sort",
			Name:      "run_duration_seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 12),
		}),
		termsOut: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sort",
			Name:      "output_terms_total",
		}),
		checkpoints: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "checkpoint",
			Name:      "total",
		}, []string{"result"}),
		ckptBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "checkpoint",
			Name:      "bytes_total",
		}),
	}
}

func (c *Collector) metrics() []prometheus.Collector {
	return []prometheus.Collector{
		c.spills, c.spillBytes, c.spillTerms,
		c.stages, c.stageBytes, c.stageTime,
		c.finishes, c.finishTime, c.termsOut,
		c.checkpoints, c.ckptBytes,
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, m := range c.metrics() {
		m.Describe(ch)
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, m := range c.metrics() {
		m.Collect(ch)
	}
}

// RecordSpill implements termsort.MetricsCollector.
func (c *Collector) RecordSpill(bytes, terms int64) {
	c.spills.Inc()
	c.spillBytes.Add(float64(bytes))
	c.spillTerms.Add(float64(terms))
}

// RecordStage implements termsort.MetricsCollector.
func (c *Collector) RecordStage(level, _, _ int, bytes int64, d time.Duration) {
	c.stages.WithLabelValues(levelLabel(level)).Inc()
	c.stageBytes.Add(float64(bytes))
	c.stageTime.Observe(d.Seconds())
}

// RecordFinish implements termsort.MetricsCollector.
func (c *Collector) RecordFinish(stats termsort.Stats, d time.Duration, err error) {
	c.finishes.WithLabelValues(result(err)).Inc()
	c.finishTime.Observe(d.Seconds())
	if err == nil {
		c.termsOut.Add(float64(stats.TermsLeft))
	}
}

// RecordCheckpoint implements termsort.MetricsCollector.
func (c *Collector) RecordCheckpoint(bytes int64, _ time.Duration, err error) {
	c.checkpoints.WithLabelValues(result(err)).Inc()
	if err == nil {
		c.ckptBytes.Add(float64(bytes))
	}
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// levelLabel keeps the label set small; deep levels share one value.
func levelLabel(level int) string {
	switch {
	case level <= 0:
		return "0"
	case level < 8:
		return strconv.Itoa(level)
	default:
		return "8+"
	}
}
