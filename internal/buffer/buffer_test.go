package buffer

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/termsort/term"
)

func newCollector(size, ext, maxTerms int) *Collector {
	return NewCollector(CollectorConfig{
		Size:        size,
		Extension:   ext,
		MaxTerms:    maxTerms,
		MaxTermSize: 16,
	})
}

func strs(r Run) []string {
	out := make([]string, len(r))
	for i, t := range r {
		out[i] = t.String()
	}

	return out
}

func TestCollector_MergeAndCancel(t *testing.T) {
	c := newCollector(100, 20, 10)

	// A:+3, B:+1, A:-3, C:+2, B:+1
	steps := []struct {
		in   string
		want Result
	}{
		{"1 : 3", Accepted},
		{"2 : 1", Accepted},
		{"1 : -3", Cancelled},
		{"3 : 2", Accepted},
		{"2 : 1", Merged},
	}
	for _, s := range steps {
		got, err := c.Accept(term.MustParse(s.in))
		require.NoError(t, err)
		assert.Equal(t, s.want, got, s.in)
	}

	assert.Equal(t, []string{"2 : +2", "3 : +2"}, strs(c.Run()))
}

func TestCollector_SortsByComparator(t *testing.T) {
	c := NewCollector(CollectorConfig{
		Size: 100, MaxTerms: 10, MaxTermSize: 16,
		Comparator: term.Descending{},
	})
	for _, s := range []string{"1 : 1", "3 : 1", "2 : 1", "3 1 : 1"} {
		_, err := c.Accept(term.MustParse(s))
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"3 1 : +1", "3 : +1", "2 : +1", "1 : +1"}, strs(c.Run()))
}

func TestCollector_Full(t *testing.T) {
	// Room for two 5-cell terms in the main region.
	c := newCollector(10, 0, 10)
	for _, s := range []string{"1 : 1", "2 : 1"} {
		r, err := c.Accept(term.MustParse(s))
		require.NoError(t, err)
		require.Equal(t, Accepted, r)
	}
	r, err := c.Accept(term.MustParse("3 : 1"))
	require.NoError(t, err)
	assert.Equal(t, Full, r)

	// Merging into an existing key still works when the sum fits in place.
	r, err = c.Accept(term.MustParse("1 : 5"))
	require.NoError(t, err)
	assert.Equal(t, Merged, r)

	c.Reset()
	assert.Zero(t, c.Len())
	r, err = c.Accept(term.MustParse("3 : 1"))
	require.NoError(t, err)
	assert.Equal(t, Accepted, r)
}

func TestCollector_PointerLimit(t *testing.T) {
	c := newCollector(100, 0, 1)
	_, err := c.Accept(term.MustParse("1 : 1"))
	require.NoError(t, err)
	r, err := c.Accept(term.MustParse("2 : 1"))
	require.NoError(t, err)
	assert.Equal(t, Full, r)
}

func TestCollector_GrowsIntoExtension(t *testing.T) {
	c := newCollector(5, 7, 10)
	_, err := c.Accept(term.New([]term.Cell{1}, 1<<32-1))
	require.NoError(t, err)

	// The sum needs two limbs, so it moves to the extension.
	r, err := c.Accept(term.New([]term.Cell{1}, 1))
	require.NoError(t, err)
	assert.Equal(t, Merged, r)
	require.Equal(t, 1, c.Len())
	assert.Equal(t, "1 : +4294967296", c.Run()[0].String())

	// A three limb sum no longer fits anywhere.
	r, err = c.Accept(term.MustParse("1 : 18446744073709551616"))
	require.NoError(t, err)
	assert.Equal(t, Full, r)
}

func TestCollector_TooLargeAndZero(t *testing.T) {
	c := newCollector(100, 0, 10)

	big := term.New(make([]term.Cell, 20), 1)
	_, err := c.Accept(big)
	var tl *TooLargeError
	require.ErrorAs(t, err, &tl)
	assert.ErrorIs(t, err, ErrTooLarge)
	assert.Equal(t, 24, tl.Cells)
	assert.Equal(t, 16, tl.Max)

	r, err := c.Accept(term.MustParse("1 : 0"))
	require.NoError(t, err)
	assert.Equal(t, Dropped, r)
	assert.Zero(t, c.Len())
}

func TestManager(t *testing.T) {
	m := NewManager(30, 2)
	run1 := Run{term.MustParse("1 : 1"), term.MustParse("2 : 1")}
	run2 := Run{term.MustParse("1 : 4")}

	assert.True(t, m.Fits(run1.Cells()))
	require.NoError(t, m.Absorb(run1))
	require.NoError(t, m.Absorb(run2))
	assert.True(t, m.Full())
	assert.ErrorIs(t, m.Absorb(run2), ErrFull)
	assert.Equal(t, 3, m.Terms())
	assert.Equal(t, 17, m.Cells())

	readers := m.Readers()
	require.Len(t, readers, 2)
	var got []string
	for {
		tm, err := readers[0].Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, tm.String())
	}
	assert.Equal(t, []string{"1 : +1", "2 : +1"}, got)

	m.Reset()
	assert.Zero(t, m.Runs())
	assert.False(t, m.Fits(30), "sentinel needs a cell")
	assert.True(t, m.Fits(29))
}
