// Package term defines the flat cell record used by every stage of the sort.
//
// A Term is a slice of Cells. The first cell holds the total length of the term
// in cells; a zero length is the sentinel that terminates buffers and patches.
// The coefficient sits at the tail of the record:
//
//	[len, key..., num_0..num_{n-1}, den_0..den_{n-1}, ncoef]
//
// ncoef is ±(2n+1). Its sign is the sign of the coefficient and its magnitude is
// the number of cells the coefficient occupies including ncoef itself. Limbs are
// unsigned 32 bit words stored least significant first.
package term

import "fmt"

// Cell is the unit of storage for terms, buffers and patches.
type Cell int32

// Term is a single record. It aliases whatever buffer it was read from unless
// it was explicitly copied with Clone.
type Term []Cell

// MinLen is the length of the smallest valid term: empty key, one limb each.
const MinLen = 4

// Len returns the declared length, or 0 for an empty slice.
func (t Term) Len() int {
	if len(t) == 0 {
		return 0
	}

	return int(t[0])
}

// coefLen is the number of trailing cells taken by the coefficient.
func (t Term) coefLen() int {
	nc := t[len(t)-1]
	if nc < 0 {
		return int(-nc)
	}

	return int(nc)
}

// Key returns the non-coefficient cells. The slice aliases t.
func (t Term) Key() []Cell {
	return t[1 : len(t)-t.coefLen()]
}

// Sign returns -1, 0 or +1.
func (t Term) Sign() int {
	if t.IsZero() {
		return 0
	}
	if t[len(t)-1] < 0 {
		return -1
	}

	return 1
}

// Limbs returns the numerator and denominator limbs. Both alias t.
func (t Term) Limbs() (num, den []Cell) {
	c := t.coefLen()
	n := (c - 1) / 2
	base := len(t) - c

	return t[base : base+n], t[base+n : base+2*n]
}

// IsZero reports whether the coefficient is zero.
func (t Term) IsZero() bool {
	num, _ := t.Limbs()
	for _, l := range num {
		if l != 0 {
			return false
		}
	}

	return true
}

// Clone returns a copy of t that does not alias the source buffer.
func (t Term) Clone() Term {
	if t == nil {
		return nil
	}
	out := make(Term, len(t))
	copy(out, t)

	return out
}

// Validate checks the framing of t.
func Validate(t Term) error {
	if len(t) < MinLen {
		return fmt.Errorf("%w: length %d below minimum %d", ErrMalformed, len(t), MinLen)
	}
	if int(t[0]) != len(t) {
		return fmt.Errorf("%w: header says %d cells, have %d", ErrMalformed, t[0], len(t))
	}
	c := t.coefLen()
	if c < 3 || c%2 == 0 || c > len(t)-1 {
		return fmt.Errorf("%w: coefficient length %d", ErrMalformed, t[len(t)-1])
	}
	_, den := t.Limbs()
	for _, l := range den {
		if l != 0 {
			return nil
		}
	}

	return fmt.Errorf("%w: zero denominator", ErrMalformed)
}

// New builds a term from a key and an integer coefficient.
func New(key []Cell, coef int64) Term {
	mag := uint64(coef)
	if coef < 0 {
		mag = uint64(-coef)
	}
	var num []uint32
	if hi := uint32(mag >> 32); hi != 0 {
		num = []uint32{uint32(mag), hi}
	} else {
		num = []uint32{uint32(mag)}
	}
	den := make([]uint32, len(num))
	den[0] = 1

	return build(nil, key, num, den, coef < 0)
}

// build appends a term to dst. num and den must have the same length.
func build(dst Term, key []Cell, num, den []uint32, neg bool) Term {
	n := len(num)
	total := 1 + len(key) + 2*n + 1
	dst = append(dst[:0], Cell(total))
	dst = append(dst, key...)
	for _, l := range num {
		dst = append(dst, Cell(l))
	}
	for _, l := range den {
		dst = append(dst, Cell(l))
	}
	nc := Cell(2*n + 1)
	if neg {
		nc = -nc
	}

	return append(dst, nc)
}
