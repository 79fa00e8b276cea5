package merge

import (
	"io"

	"github.com/hupe1980/termsort/term"
)

// Merger combines sorted sources into one sorted stream. Terms with equal
// keys are summed and zero sums are dropped, so the output has strictly
// increasing keys. A Merger is itself a Source.
type Merger struct {
	srcs  []Source
	heads []term.Term
	tree  *loserTree
	cmp   term.Comparator
	acc   term.Term
	alt   term.Term
	err   error
	in    int64
	out   int64
}

// NewMerger primes every source and builds the tree.
func NewMerger(cmp term.Comparator, srcs []Source) (*Merger, error) {
	if cmp == nil {
		cmp = term.Ascending{}
	}
	m := &Merger{srcs: srcs, heads: make([]term.Term, len(srcs)), cmp: cmp}
	for i, s := range srcs {
		t, err := s.Next()
		if err != nil && err != io.EOF {
			return nil, err
		}
		m.heads[i] = t
		if t != nil {
			m.in++
		}
	}
	m.tree = newLoserTree(cmp, m.heads)

	return m, nil
}

func (m *Merger) advance(i int) error {
	t, err := m.srcs[i].Next()
	switch {
	case err == io.EOF:
		m.heads[i] = nil
	case err != nil:
		return err
	default:
		m.heads[i] = t
		m.in++
	}
	m.tree.fix(i)

	return nil
}

// Next returns the next merged term. It is valid until the following call.
func (m *Merger) Next() (term.Term, error) {
	if m.err != nil {
		return nil, m.err
	}
	for len(m.srcs) > 0 {
		w := m.tree.winner()
		if m.heads[w] == nil {
			return nil, io.EOF
		}
		m.acc = append(m.acc[:0], m.heads[w]...)
		if err := m.advance(w); err != nil {
			m.err = err
			return nil, err
		}

		for {
			w = m.tree.winner()
			h := m.heads[w]
			if h == nil || m.cmp.Compare(m.acc, h) != 0 {
				break
			}
			sum := term.Sum(m.alt, m.acc, h)
			if sum == nil {
				sum = term.Zero(m.alt, m.acc.Key())
			}
			m.acc, m.alt = sum, m.acc[:0]
			if err := m.advance(w); err != nil {
				m.err = err
				return nil, err
			}
		}

		if !m.acc.IsZero() {
			m.out++
			return m.acc, nil
		}
	}

	return nil, io.EOF
}

// Counts returns the number of input terms consumed and output terms produced.
func (m *Merger) Counts() (in, out int64) { return m.in, m.out }
