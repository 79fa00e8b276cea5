package term

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// String formats t as "k1 k2 ... : p/q". Integer coefficients omit "/1".
func (t Term) String() string {
	if len(t) == 0 {
		return "<sentinel>"
	}
	var sb strings.Builder
	for i, c := range t.Key() {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(strconv.FormatInt(int64(c), 10))
	}
	sb.WriteString(" : ")
	r := Rat(t)
	if r.Sign() >= 0 {
		sb.WriteByte('+')
	}
	sb.WriteString(r.RatString())

	return sb.String()
}

// Parse reads the form produced by String. The coefficient may be any value
// accepted by big.Rat.SetString.
func Parse(s string) (Term, error) {
	keyPart, coefPart, ok := strings.Cut(s, ":")
	if !ok {
		return nil, fmt.Errorf("%w: missing ':' in %q", ErrMalformed, s)
	}
	fields := strings.Fields(keyPart)
	key := make([]Cell, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseInt(f, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: key cell %q: %w", ErrMalformed, f, err)
		}
		key = append(key, Cell(v))
	}
	r, ok := new(big.Rat).SetString(strings.TrimPrefix(strings.TrimSpace(coefPart), "+"))
	if !ok {
		return nil, fmt.Errorf("%w: coefficient %q", ErrMalformed, coefPart)
	}

	return WithRat(nil, key, r), nil
}

// MustParse is like Parse but panics on error.
func MustParse(s string) Term {
	t, err := Parse(s)
	if err != nil {
		panic(err)
	}

	return t
}
