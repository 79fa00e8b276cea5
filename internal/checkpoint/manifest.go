package checkpoint

import (
	"time"

	"github.com/hupe1980/termsort/internal/patch"
)

const (
	ManifestPrefix  = "MANIFEST"
	DataPrefix      = "PATCHES"
	CurrentFileName = "CURRENT"
	// CurrentVersion is the version of the manifest format.
	CurrentVersion = 1
)

// Counters carries the running statistics of the checkpointed sort.
type Counters struct {
	GenTerms      int64
	GenCells      int64
	Merged        int64
	Cancelled     int64
	Dropped       int64
	SmallFlushes  int64
	LargeFlushes  int64
	DirectPatches int64
	Stages        int64
}

// Manifest describes one checkpoint.
type Manifest struct {
	Version   int
	ID        uint64
	CreatedAt time.Time
	Instance  string
	Kind      int
	Level     int
	Counters  Counters
	Data      string
	// Patches are located in the Data blob; Store is unused.
	Patches []patch.Patch
}

// Terms returns the number of terms held by the checkpoint.
func (m *Manifest) Terms() int64 {
	var n int64
	for _, p := range m.Patches {
		n += p.Terms
	}

	return n
}

// Bytes returns the size of the data blob.
func (m *Manifest) Bytes() int64 {
	var n int64
	for _, p := range m.Patches {
		n += p.Size
	}

	return n
}
