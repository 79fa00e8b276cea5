package term

import (
	"encoding/binary"
	"math/big"
)

// Sum adds the coefficients of a and b, which must have equal keys, and writes
// the result into dst using the key of a. It returns nil when the sum is zero.
func Sum(dst Term, a, b Term) Term {
	if sa, ok := smallInt(a); ok {
		if sb, ok := smallInt(b); ok {
			s := sa + sb
			if s == 0 {
				return nil
			}
			return appendInt(dst, a.Key(), s)
		}
	}

	r := Rat(a)
	r.Add(r, Rat(b))
	if r.Sign() == 0 {
		return nil
	}

	return WithRat(dst, a.Key(), r)
}

// smallInt returns the coefficient when it is an integer of one limb.
func smallInt(t Term) (int64, bool) {
	if t.coefLen() != 3 {
		return 0, false
	}
	n := len(t)
	if t[n-2] != 1 {
		return 0, false
	}
	v := int64(uint32(t[n-3]))
	if t[n-1] < 0 {
		v = -v
	}

	return v, true
}

func appendInt(dst Term, key []Cell, v int64) Term {
	neg := v < 0
	mag := uint64(v)
	if neg {
		mag = uint64(-v)
	}
	if hi := uint32(mag >> 32); hi != 0 {
		return build(dst, key, []uint32{uint32(mag), hi}, []uint32{1, 0}, neg)
	}

	return build(dst, key, []uint32{uint32(mag)}, []uint32{1}, neg)
}

// Zero writes a term with the given key and a zero coefficient into dst.
func Zero(dst Term, key []Cell) Term {
	return build(dst, key, []uint32{0}, []uint32{1}, false)
}

// Rat returns the coefficient of t as a new rational.
func Rat(t Term) *big.Rat {
	num, den := t.Limbs()
	n := limbsToInt(new(big.Int), num)
	if t[len(t)-1] < 0 {
		n.Neg(n)
	}
	d := limbsToInt(new(big.Int), den)

	return new(big.Rat).SetFrac(n, d)
}

// WithRat writes a term with the given key and coefficient into dst.
func WithRat(dst Term, key []Cell, r *big.Rat) Term {
	num := intToLimbs(r.Num())
	den := intToLimbs(r.Denom())
	for len(num) < len(den) {
		num = append(num, 0)
	}
	for len(den) < len(num) {
		den = append(den, 0)
	}

	return build(dst, key, num, den, r.Sign() < 0)
}

func limbsToInt(z *big.Int, limbs []Cell) *big.Int {
	buf := make([]byte, 4*len(limbs))
	for i, l := range limbs {
		binary.BigEndian.PutUint32(buf[4*(len(limbs)-1-i):], uint32(l))
	}

	return z.SetBytes(buf)
}

func intToLimbs(x *big.Int) []uint32 {
	b := x.Bytes()
	n := max((len(b)+3)/4, 1)
	out := make([]uint32, n)
	for i := range b {
		out[i/4] |= uint32(b[len(b)-1-i]) << (8 * (i % 4))
	}

	return out
}

// Canonical returns t if its coefficient is in lowest terms without padding
// limbs, and a reduced copy otherwise. A zero coefficient is returned as is.
func Canonical(t Term) Term {
	if t.IsZero() || reduced(t) {
		return t
	}

	return WithRat(nil, t.Key(), Rat(t))
}

func reduced(t Term) bool {
	num, den := t.Limbs()
	n := len(num)
	if num[n-1] == 0 && den[n-1] == 0 {
		return false
	}
	if n == 1 {
		a, b := uint32(num[0]), uint32(den[0])
		for b != 0 {
			a, b = b, a%b
		}
		return a == 1
	}
	a := limbsToInt(new(big.Int), num)
	b := limbsToInt(new(big.Int), den)

	return new(big.Int).GCD(nil, nil, a, b).Cmp(big.NewInt(1)) == 0
}
