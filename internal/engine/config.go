package engine

import (
	"fmt"
	"log/slog"

	"github.com/hupe1980/termsort/internal/codec"
	"github.com/hupe1980/termsort/internal/filehandle"
	"github.com/hupe1980/termsort/internal/fs"
	"github.com/hupe1980/termsort/resource"
	"github.com/hupe1980/termsort/term"
)

// Config configures a SortContext. Buffer sizes are in cells.
type Config struct {
	Kind Kind

	SmallSize      int // small buffer
	SmallExtension int // room for merged terms that outgrow their slot
	TermsInSmall   int // pointer table capacity
	LargeSize      int // large buffer
	MaxPatches     int // runs held by the large buffer
	MaxFpatches    int // file patches before a staged merge, and the merge fan-in cap
	MaxTermSize    int

	Compression          codec.Type
	CompressionBlockSize int

	Comparator term.Comparator

	// DirectPatchFraction is the promotion policy for small-buffer runs.
	// A run of at least this fraction of the large buffer is written straight
	// to a file patch instead of being absorbed. 0 promotes directly only
	// runs that cannot fit the large buffer at all.
	DirectPatchFraction float64

	// IOBufferSize is the scratch file cache size and the read buffer per
	// patch during merges, in bytes.
	IOBufferSize int

	TempDir string
	FS      fs.FileSystem

	// Spill, when set, receives spill patches instead of a private scratch
	// file. Workers pass a view of a shared file here.
	Spill filehandle.Storage

	Resources *resource.Controller
	Logger    *slog.Logger
	Observer  Observer
}

// DefaultConfig returns the buffer profile of a sort kind.
func DefaultConfig(kind Kind) Config {
	cfg := Config{
		Kind:                 kind,
		SmallSize:            1 << 20,
		SmallExtension:       1 << 18,
		TermsInSmall:         1 << 17,
		LargeSize:            1 << 23,
		MaxPatches:           64,
		MaxFpatches:          128,
		MaxTermSize:          1 << 14,
		Compression:          codec.None,
		CompressionBlockSize: codec.DefaultBlockSize,
		Comparator:           term.Ascending{},
		IOBufferSize:         256 << 10,
	}

	switch kind {
	case KindFunction:
		cfg.SmallSize >>= 4
		cfg.SmallExtension >>= 4
		cfg.TermsInSmall >>= 4
		cfg.LargeSize >>= 5
		cfg.MaxPatches = 16
		cfg.MaxFpatches = 32
		cfg.MaxTermSize >>= 2
		cfg.IOBufferSize = 64 << 10
	case KindSub:
		cfg.SmallSize >>= 2
		cfg.SmallExtension >>= 2
		cfg.TermsInSmall >>= 2
		cfg.LargeSize >>= 3
		cfg.MaxPatches = 32
		cfg.MaxFpatches = 64
		cfg.IOBufferSize = 128 << 10
	}

	return cfg
}

// Validate checks the sizes for consistency.
func (c Config) Validate() error {
	switch {
	case c.MaxTermSize < term.MinLen:
		return fmt.Errorf("%w: MaxTermSize %d below the minimum term length %d", ErrInvalidConfig, c.MaxTermSize, term.MinLen)
	case c.SmallSize < c.MaxTermSize:
		return fmt.Errorf("%w: SmallSize %d smaller than MaxTermSize %d", ErrInvalidConfig, c.SmallSize, c.MaxTermSize)
	case c.SmallExtension < 0:
		return fmt.Errorf("%w: negative SmallExtension", ErrInvalidConfig)
	case c.TermsInSmall < 1:
		return fmt.Errorf("%w: TermsInSmall must be positive", ErrInvalidConfig)
	case c.LargeSize <= c.MaxTermSize:
		return fmt.Errorf("%w: LargeSize %d not larger than MaxTermSize %d", ErrInvalidConfig, c.LargeSize, c.MaxTermSize)
	case c.MaxPatches < 1:
		return fmt.Errorf("%w: MaxPatches must be positive", ErrInvalidConfig)
	case c.MaxFpatches < 2:
		return fmt.Errorf("%w: MaxFpatches %d below 2", ErrInvalidConfig, c.MaxFpatches)
	case c.DirectPatchFraction < 0 || c.DirectPatchFraction > 1:
		return fmt.Errorf("%w: DirectPatchFraction %v outside [0, 1]", ErrInvalidConfig, c.DirectPatchFraction)
	case c.IOBufferSize < term.CellSize*term.MinLen:
		return fmt.Errorf("%w: IOBufferSize %d too small", ErrInvalidConfig, c.IOBufferSize)
	case !c.Compression.Valid():
		return fmt.Errorf("%w: unknown compression %d", ErrInvalidConfig, c.Compression)
	case c.CompressionBlockSize < 0:
		return fmt.Errorf("%w: negative CompressionBlockSize", ErrInvalidConfig)
	}

	return nil
}

func (c Config) withDefaults() Config {
	if c.Comparator == nil {
		c.Comparator = term.Ascending{}
	}
	if c.CompressionBlockSize == 0 {
		c.CompressionBlockSize = codec.DefaultBlockSize
	}
	if c.FS == nil {
		c.FS = fs.Default
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	if c.Observer == nil {
		c.Observer = NoopObserver{}
	}

	return c
}

// memoryBytes is the buffer memory a context reserves. A shared spill
// view holds a whole patch in memory until it commits, so that patch is
// counted too.
func (c Config) memoryBytes() int64 {
	cells := int64(c.SmallSize) + int64(c.SmallExtension) + int64(c.LargeSize)
	n := cells*term.CellSize + int64(c.TermsInSmall)*4 + 3*int64(c.IOBufferSize)
	if c.Spill != nil {
		n += c.spillPatchBytes()
	}

	return n
}

// spillPatchBytes bounds the encoded size of one spill patch: the larger of
// a small buffer run and a full large buffer, plus the sentinel.
func (c Config) spillPatchBytes() int64 {
	cells := max(int64(c.SmallSize)+int64(c.SmallExtension), int64(c.LargeSize)) + 1
	return codec.MaxEncodedLen(cells*term.CellSize, c.Compression, c.CompressionBlockSize)
}
