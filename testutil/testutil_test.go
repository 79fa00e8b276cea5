package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/termsort/term"
)

func TestTerms(t *testing.T) {
	rng := NewRNG(1)
	terms := rng.Terms(1000, TermShape{Keys: 20, KeyLen: 3, Rational: true})

	require.Len(t, terms, 1000)
	for _, tm := range terms {
		require.NoError(t, term.Validate(tm))
		assert.Len(t, tm.Key(), 3)
	}
}

func TestReset(t *testing.T) {
	rng := NewRNG(42)
	a := rng.Terms(50, TermShape{})
	rng.Reset()
	b := rng.Terms(50, TermShape{})

	assert.Equal(t, a, b)
	assert.Equal(t, int64(42), rng.Seed())
}

func TestReference(t *testing.T) {
	in := []term.Term{
		term.MustParse("1 : 3"),
		term.MustParse("2 : 1"),
		term.MustParse("1 : -3"),
		term.MustParse("3 : 2"),
		term.MustParse("2 : 1"),
	}

	got := Reference(term.Ascending{}, in)
	assert.Equal(t, []string{"2 : +2", "3 : +2"}, Strings(got))
}

func TestPartition(t *testing.T) {
	rng := NewRNG(7)
	terms := rng.Terms(300, TermShape{Skew: 1.2})
	parts := rng.Partition(terms, 4)

	total := 0
	for _, p := range parts {
		total += len(p)
	}
	assert.Equal(t, 300, total)
	assert.Less(t, rng.Zipf(10, 1.5), 10)
}
