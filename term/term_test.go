package term

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Layout(t *testing.T) {
	tm := New([]Cell{7, 9}, -3)

	require.NoError(t, Validate(tm))
	assert.Equal(t, 6, tm.Len())
	assert.Equal(t, []Cell{7, 9}, tm.Key())
	assert.Equal(t, -1, tm.Sign())

	num, den := tm.Limbs()
	assert.Equal(t, []Cell{3}, num)
	assert.Equal(t, []Cell{1}, den)
}

func TestNew_TwoLimbs(t *testing.T) {
	tm := New([]Cell{1}, 1<<40)
	require.NoError(t, Validate(tm))

	num, den := tm.Limbs()
	assert.Len(t, num, 2)
	assert.Len(t, den, 2)
	assert.Equal(t, 0, big.NewRat(1<<40, 1).Cmp(Rat(tm)))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		t    Term
	}{
		{"short", Term{3, 1, 3}},
		{"bad header", Term{9, 1, 1, 1, 3}},
		{"even coef", Term{5, 1, 1, 1, 2}},
		{"coef too long", Term{4, 1, 1, 5}},
		{"zero denominator", Term{4, 1, 0, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, Validate(tt.t), ErrMalformed)
		})
	}
}

func TestSum(t *testing.T) {
	a := MustParse("1 : +3")
	b := MustParse("1 : -3")
	assert.Nil(t, Sum(nil, a, b))

	c := Sum(nil, a, MustParse("1 : +4"))
	require.NotNil(t, c)
	assert.Equal(t, "1 : +7", c.String())
}

func TestSum_Rational(t *testing.T) {
	a := MustParse("2 3 : 1/3")
	b := MustParse("2 3 : 1/6")

	s := Sum(nil, a, b)
	require.NoError(t, Validate(s))
	assert.Equal(t, "2 3 : +1/2", s.String())

	z := Sum(nil, s, MustParse("2 3 : -1/2"))
	assert.Nil(t, z)
}

func TestSum_OverflowsSingleLimb(t *testing.T) {
	a := New([]Cell{5}, 1<<32-1)
	s := Sum(nil, a, a)

	require.NoError(t, Validate(s))
	assert.Equal(t, 0, big.NewRat(2*(1<<32-1), 1).Cmp(Rat(s)))
}

func TestSum_BigNumbers(t *testing.T) {
	a := MustParse("1 : 123456789012345678901234567890/7")
	b := MustParse("1 : -123456789012345678901234567890/7")
	assert.Nil(t, Sum(nil, a, b))

	c := Sum(nil, a, a)
	want, _ := new(big.Rat).SetString("246913578024691357802469135780/7")
	assert.Equal(t, 0, want.Cmp(Rat(c)))
}

func TestZeroCoefficient(t *testing.T) {
	z := MustParse("4 : 0")
	require.NoError(t, Validate(z))
	assert.True(t, z.IsZero())
	assert.Equal(t, 0, z.Sign())
}

func TestCanonical(t *testing.T) {
	tests := []struct {
		name string
		in   Term
		want Term
	}{
		{"reduced", New([]Cell{1}, 7), New([]Cell{1}, 7)},
		{"two limbs reduced", New([]Cell{1}, 1<<40), New([]Cell{1}, 1<<40)},
		{"common factor", Term{5, 1, 2, 2, 3}, Term{5, 1, 1, 1, 3}},
		{"negative fraction", Term{5, 1, 4, 6, -3}, Term{5, 1, 2, 3, -3}},
		{"padding limbs", Term{7, 1, 3, 0, 1, 0, 5}, Term{5, 1, 3, 1, 3}},
		{"multi-limb factor", Term{7, 1, 0, 2, 0, 2, 5}, Term{5, 1, 1, 1, 3}},
		{"zero", Term{5, 1, 0, 4, 3}, Term{5, 1, 0, 4, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, Validate(tt.in))
			got := Canonical(tt.in)
			require.NoError(t, Validate(got))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParse_Errors(t *testing.T) {
	for _, s := range []string{"1 2 3", "x : 1", "1 : abc", "1 : 1/0"} {
		_, err := Parse(s)
		assert.ErrorIs(t, err, ErrMalformed, s)
	}
}

func TestEncodeDecode(t *testing.T) {
	in := []Term{MustParse("1 2 : +3"), MustParse(": -1/2"), MustParse("9 : 5")}

	var buf []byte
	for _, tm := range in {
		buf = AppendBytes(buf, tm)
	}
	buf = AppendSentinel(buf)

	var out []Term
	for {
		tm, n, err := Decode(nil, buf)
		require.NoError(t, err)
		buf = buf[n:]
		if tm == nil {
			break
		}
		out = append(out, tm)
	}
	assert.Equal(t, in, out)
	assert.Empty(t, buf)
}

func TestDecode_Truncated(t *testing.T) {
	buf := AppendBytes(nil, MustParse("1 2 : 3"))
	_, _, err := Decode(nil, buf[:len(buf)-4])
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestComparators(t *testing.T) {
	a := MustParse("1 2 : 1")
	b := MustParse("1 3 : 1")
	p := MustParse("1 : 1")

	assert.Equal(t, -1, Ascending{}.Compare(a, b))
	assert.Equal(t, -1, Ascending{}.Compare(p, a))
	assert.Equal(t, 0, Ascending{}.Compare(a, MustParse("1 2 : -7")))
	assert.Equal(t, 1, Descending{}.Compare(a, b))

	vo := NewVariableOrder(3, 2)
	assert.Equal(t, 1, vo.Compare(a, b))
	assert.Equal(t, -1, vo.Compare(MustParse("3 : 1"), MustParse("1 : 1")))
	assert.Equal(t, -1, vo.Compare(MustParse("1 : 1"), MustParse("4 : 1")))

	f := CompareFunc(func(x, y Term) int { return Ascending{}.Compare(y, x) })
	assert.Equal(t, 1, f.Compare(a, b))

	assert.True(t, EqualKeys(a, MustParse("1 2 : 5")))
	assert.False(t, EqualKeys(a, b))
}
