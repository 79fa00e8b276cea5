//go:build amd64 || arm64

package conv

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntToUint32(t *testing.T) {
	got, err := IntToUint32(123)
	require.NoError(t, err)
	assert.Equal(t, uint32(123), got)

	_, err = IntToUint32(-1)
	assert.ErrorIs(t, err, ErrOverflow)

	_, err = IntToUint32(math.MaxUint32 + 1)
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestIntToInt32(t *testing.T) {
	tests := []struct {
		in   int
		want int32
		ok   bool
	}{
		{0, 0, true},
		{-5, -5, true},
		{math.MaxInt32, math.MaxInt32, true},
		{math.MinInt32, math.MinInt32, true},
		{math.MaxInt32 + 1, 0, false},
		{math.MinInt32 - 1, 0, false},
	}
	for _, tt := range tests {
		got, err := IntToInt32(tt.in)
		if !tt.ok {
			assert.ErrorIs(t, err, ErrOverflow, "%d", tt.in)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestUint32ToInt(t *testing.T) {
	got, err := Uint32ToInt(math.MaxUint32)
	require.NoError(t, err)
	assert.Equal(t, math.MaxUint32, got)
}

func TestOffsets(t *testing.T) {
	u, err := Int64ToUint64(1 << 40)
	require.NoError(t, err)
	assert.Equal(t, uint64(1<<40), u)

	_, err = Int64ToUint64(-1)
	assert.ErrorIs(t, err, ErrOverflow)

	v, err := Uint64ToInt64(math.MaxInt64)
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), v)

	_, err = Uint64ToInt64(math.MaxInt64 + 1)
	assert.ErrorIs(t, err, ErrOverflow)
	assert.Contains(t, err.Error(), "int64")
}
