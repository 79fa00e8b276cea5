package testutil

import (
	"math"
	"math/big"
	"math/rand"
	"slices"
	"sync"

	"github.com/hupe1980/termsort/term"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// TermShape controls generated terms.
type TermShape struct {
	Keys     int     // distinct keys to draw from
	KeyLen   int     // cells per key
	MaxCoef  int64   // coefficients are drawn from [-MaxCoef, MaxCoef]; default 5
	Rational bool    // use denominators in [1, 4]
	Skew     float64 // Zipf exponent for key popularity; 0 draws uniformly
}

func (s TermShape) withDefaults() TermShape {
	if s.Keys <= 0 {
		s.Keys = 100
	}
	if s.KeyLen <= 0 {
		s.KeyLen = 2
	}
	if s.MaxCoef <= 0 {
		s.MaxCoef = 5
	}

	return s
}

// key derives a deterministic key for index k.
func key(k, n int) []term.Cell {
	out := make([]term.Cell, n)
	for i := n - 1; i >= 0; i-- {
		out[i] = term.Cell(k % 17)
		k /= 17
	}
	out[0] += term.Cell(k * 17)

	return out
}

// Terms generates n random terms. Many keys repeat, and some coefficients
// cancel, so merging is exercised.
func (r *RNG) Terms(n int, shape TermShape) []term.Term {
	shape = shape.withDefaults()
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]term.Term, n)
	for i := range out {
		var k int
		if shape.Skew > 0 {
			k = r.zipfLocked(shape.Keys, shape.Skew)
		} else {
			k = r.rand.Intn(shape.Keys)
		}
		c := r.rand.Int63n(2*shape.MaxCoef+1) - shape.MaxCoef
		if !shape.Rational {
			out[i] = term.New(key(k, shape.KeyLen), c)
			continue
		}
		q := big.NewRat(c, r.rand.Int63n(4)+1)
		out[i] = term.WithRat(nil, key(k, shape.KeyLen), q)
	}

	return out
}

// Shuffle permutes terms in place.
func (r *RNG) Shuffle(terms []term.Term) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Shuffle(len(terms), func(i, j int) { terms[i], terms[j] = terms[j], terms[i] })
}

// Partition splits terms into k random subsets.
func (r *RNG) Partition(terms []term.Term, k int) [][]term.Term {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]term.Term, k)
	for _, t := range terms {
		i := r.rand.Intn(k)
		out[i] = append(out[i], t)
	}

	return out
}

// Zipf returns a Zipfian-distributed value in [0, n).
func (r *RNG) Zipf(n int, s float64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.zipfLocked(n, s)
}

func (r *RNG) zipfLocked(n int, s float64) int {
	if n <= 1 {
		return 0
	}

	var hns float64
	for i := 1; i <= n; i++ {
		hns += 1.0 / math.Pow(float64(i), s)
	}

	u := r.rand.Float64() * hns
	var cumulative float64
	for k := 1; k <= n; k++ {
		cumulative += 1.0 / math.Pow(float64(k), s)
		if u <= cumulative {
			return k - 1
		}
	}

	return n - 1
}

// Reference computes the expected sort output: one term per distinct key in
// comparator order, coefficients summed, zero sums dropped.
func Reference(cmp term.Comparator, terms []term.Term) []term.Term {
	type acc struct {
		first term.Term
		sum   *big.Rat
	}
	byKey := make(map[string]*acc)
	for _, t := range terms {
		k := string(term.AppendBytes(nil, term.Term(t.Key())))
		a, ok := byKey[k]
		if !ok {
			a = &acc{first: t, sum: new(big.Rat)}
			byKey[k] = a
		}
		a.sum.Add(a.sum, term.Rat(t))
	}

	out := make([]term.Term, 0, len(byKey))
	for _, a := range byKey {
		if a.sum.Sign() == 0 {
			continue
		}
		out = append(out, term.WithRat(nil, a.first.Key(), a.sum))
	}
	slices.SortFunc(out, cmp.Compare)

	return out
}

// Strings formats terms for readable assertion diffs.
func Strings(terms []term.Term) []string {
	out := make([]string, len(terms))
	for i, t := range terms {
		out[i] = t.String()
	}

	return out
}
