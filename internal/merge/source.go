// Package merge implements the k-way merge of sorted term streams and the
// staged reduction of patch lists.
package merge

import (
	"io"

	"github.com/hupe1980/termsort/term"
)

// Source yields terms in comparator order and io.EOF at the end. A returned
// term is valid until the next call to Next.
type Source interface {
	Next() (term.Term, error)
}

// SliceSource adapts a slice of terms.
type SliceSource struct {
	terms []term.Term
	i     int
}

// NewSliceSource returns a source over terms, which must already be sorted.
func NewSliceSource(terms []term.Term) *SliceSource {
	return &SliceSource{terms: terms}
}

// Next implements Source.
func (s *SliceSource) Next() (term.Term, error) {
	if s.i >= len(s.terms) {
		return nil, io.EOF
	}
	t := s.terms[s.i]
	s.i++

	return t, nil
}

// Drain calls fn for every term of src.
func Drain(src Source, fn func(term.Term) error) error {
	for {
		t, err := src.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(t); err != nil {
			return err
		}
	}
}
