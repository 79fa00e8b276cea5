package termsort

import (
	"log/slog"
	"time"

	"github.com/hupe1980/termsort/blobstore"
	"github.com/hupe1980/termsort/internal/codec"
	"github.com/hupe1980/termsort/internal/dispatch"
	"github.com/hupe1980/termsort/internal/engine"
	"github.com/hupe1980/termsort/resource"
	"github.com/hupe1980/termsort/term"
)

// Kind selects the buffer profile of a sort.
type Kind = engine.Kind

const (
	KindMain     = engine.KindMain
	KindFunction = engine.KindFunction
	KindSub      = engine.KindSub
)

// Compression is the codec applied to file patches.
type Compression = codec.Type

const (
	CompressionNone = codec.None
	CompressionLZ4  = codec.LZ4
	CompressionZSTD = codec.ZSTD
	CompressionS2   = codec.S2
)

// Generator expands an input term of a ParallelSorter into the terms to sort.
type Generator = dispatch.Generator

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc = dispatch.GeneratorFunc

type options struct {
	kind             Kind
	tune             []func(*engine.Config)
	metricsCollector MetricsCollector
	logger           *Logger
	checkpoints      blobstore.BlobStore

	workers    int
	bucketSize int
	blockCells int
	generator  Generator
	retry      dispatch.RetryPolicy
}

// Option configures a Sorter or ParallelSorter.
type Option func(*options)

// WithKind selects the default buffer sizes. Options that set sizes
// explicitly override the profile.
func WithKind(k Kind) Option {
	return func(o *options) {
		o.kind = k
	}
}

// WithSmallBuffer sizes the small buffer: cells for terms, extension cells
// for merged terms that grow, and the maximum number of terms.
func WithSmallBuffer(cells, extension, maxTerms int) Option {
	return tune(func(c *engine.Config) {
		c.SmallSize, c.SmallExtension, c.TermsInSmall = cells, extension, maxTerms
	})
}

// WithLargeBuffer sizes the large buffer in cells and the number of runs it
// holds before they are merged into a file patch.
func WithLargeBuffer(cells, maxPatches int) Option {
	return tune(func(c *engine.Config) {
		c.LargeSize, c.MaxPatches = cells, maxPatches
	})
}

// WithMaxFilePatches sets how many file patches accumulate before a staged
// merge. It also caps the merge fan-in.
func WithMaxFilePatches(n int) Option {
	return tune(func(c *engine.Config) { c.MaxFpatches = n })
}

// WithMaxTermSize sets the largest accepted term in cells.
func WithMaxTermSize(cells int) Option {
	return tune(func(c *engine.Config) { c.MaxTermSize = cells })
}

// WithCompression sets the patch codec. blockSize 0 keeps the default.
func WithCompression(c Compression, blockSize int) Option {
	return tune(func(cfg *engine.Config) {
		cfg.Compression, cfg.CompressionBlockSize = c, blockSize
	})
}

// WithComparator sets the canonical order. The default is term.Ascending.
func WithComparator(cmp term.Comparator) Option {
	return tune(func(c *engine.Config) { c.Comparator = cmp })
}

// WithDirectPatchFraction writes small-buffer runs of at least fraction of
// the large buffer straight to a file patch.
func WithDirectPatchFraction(fraction float64) Option {
	return tune(func(c *engine.Config) { c.DirectPatchFraction = fraction })
}

// WithIOBufferSize sets the scratch file cache and the read buffer per
// merged patch, in bytes.
func WithIOBufferSize(bytes int) Option {
	return tune(func(c *engine.Config) { c.IOBufferSize = bytes })
}

// WithTempDir sets the directory for scratch files.
func WithTempDir(dir string) Option {
	return tune(func(c *engine.Config) { c.TempDir = dir })
}

// WithResources shares memory, worker and IO limits between sorters.
func WithResources(rc *resource.Controller) Option {
	return tune(func(c *engine.Config) { c.Resources = rc })
}

// WithCheckpointStore enables Checkpoint and Resume on store.
//
// Example:
//
//	store := blobstore.NewLocalStore("/var/lib/termsort")
//	sorter, _ := termsort.New(ctx, termsort.WithCheckpointStore(store))
func WithCheckpointStore(store blobstore.BlobStore) Option {
	return func(o *options) {
		o.checkpoints = store
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &termsort.BasicMetricsCollector{}
//	sorter, _ := termsort.New(ctx, termsort.WithMetricsCollector(metrics))
//	// ... push and finish ...
//	stats := metrics.GetStats()
//	fmt.Printf("Spills: %d, Stages: %d\n", stats.SpillCount, stats.StageCount)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := termsort.NewJSONLogger(slog.LevelInfo)
//	sorter, _ := termsort.New(ctx, termsort.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithWorkers sets the number of workers of a ParallelSorter.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// WithBucketSize sets how many input terms a ParallelSorter hands to a
// worker at once.
func WithBucketSize(n int) Option {
	return func(o *options) {
		o.bucketSize = n
	}
}

// WithBlockCells sizes the output buffer of each parallel worker in cells.
func WithBlockCells(n int) Option {
	return func(o *options) {
		o.blockCells = n
	}
}

// WithGenerator sets the function a ParallelSorter applies to every input
// term. The default sorts the input terms themselves.
func WithGenerator(g Generator) Option {
	return func(o *options) {
		o.generator = g
	}
}

// WithClaimRetry bounds how long an idle worker waits for a bucket before
// it tries to steal one.
func WithClaimRetry(attempts int, wait time.Duration) Option {
	return func(o *options) {
		o.retry = dispatch.RetryPolicy{Attempts: attempts, Wait: wait}
	}
}

func tune(fn func(*engine.Config)) Option {
	return func(o *options) {
		o.tune = append(o.tune, fn)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		kind:             KindMain,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}

// config builds the engine configuration.
func (o options) config() engine.Config {
	cfg := engine.DefaultConfig(o.kind)
	for _, fn := range o.tune {
		fn(&cfg)
	}
	cfg.Logger = o.logger.Logger
	cfg.Observer = o.metricsCollector

	return cfg
}
