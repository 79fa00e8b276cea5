package codec

import (
	"bytes"
	"io"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample(n int, compressible bool) []byte {
	rng := rand.New(rand.NewPCG(1, 2))
	out := make([]byte, n)
	for i := range out {
		if compressible {
			out[i] = byte(i % 7)
		} else {
			out[i] = byte(rng.IntN(256))
		}
	}

	return out
}

func TestRoundTrip(t *testing.T) {
	for _, typ := range []Type{None, LZ4, ZSTD, S2} {
		for _, compressible := range []bool{true, false} {
			t.Run(typ.String(), func(t *testing.T) {
				data := sample(100_000, compressible)

				var buf bytes.Buffer
				w := NewWriter(&buf, typ, 4096)
				_, err := w.Write(data[:10])
				require.NoError(t, err)
				_, err = w.Write(data[10:])
				require.NoError(t, err)
				require.NoError(t, w.Close())
				assert.Equal(t, int64(buf.Len()), w.Written())

				if typ != None && compressible {
					assert.Less(t, buf.Len(), len(data))
				}

				got, err := io.ReadAll(NewReader(&buf, typ))
				require.NoError(t, err)
				assert.Equal(t, data, got)
			})
		}
	}
}

func TestMaxEncodedLen(t *testing.T) {
	data := sample(50_001, false)
	for _, typ := range []Type{None, LZ4, ZSTD, S2} {
		t.Run(typ.String(), func(t *testing.T) {
			var buf bytes.Buffer
			w := NewWriter(&buf, typ, 4096)
			_, err := w.Write(data)
			require.NoError(t, err)
			require.NoError(t, w.Close())
			assert.LessOrEqual(t, int64(buf.Len()), MaxEncodedLen(int64(len(data)), typ, 4096))
		})
	}

	assert.Equal(t, int64(100), MaxEncodedLen(100, None, 4096))
	assert.Equal(t, int64(4096+blockHeaderSize), MaxEncodedLen(4096, LZ4, 4096))
	assert.Equal(t, int64(4097+2*blockHeaderSize), MaxEncodedLen(4097, ZSTD, 4096))
	assert.Zero(t, MaxEncodedLen(0, S2, 4096))
}

func TestReader_Corrupt(t *testing.T) {
	for _, typ := range []Type{LZ4, ZSTD, S2} {
		t.Run(typ.String(), func(t *testing.T) {
			var buf bytes.Buffer
			w := NewWriter(&buf, typ, 1024)
			_, err := w.Write(sample(8192, true))
			require.NoError(t, err)
			require.NoError(t, w.Close())

			b := buf.Bytes()
			for i := blockHeaderSize; i < blockHeaderSize+16 && i < len(b); i++ {
				b[i] ^= 0xFF
			}

			_, err = io.ReadAll(NewReader(bytes.NewReader(b), typ))
			assert.ErrorIs(t, err, ErrCorrupt)
		})
	}
}

func TestReader_Truncated(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, ZSTD, 1024)
	_, err := w.Write(sample(4096, true))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	_, err = io.ReadAll(NewReader(bytes.NewReader(buf.Bytes()[:buf.Len()-3]), ZSTD))
	assert.ErrorIs(t, err, ErrCorrupt)

	_, err = io.ReadAll(NewReader(bytes.NewReader(buf.Bytes()[:5]), ZSTD))
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestParseType(t *testing.T) {
	for _, typ := range []Type{None, LZ4, ZSTD, S2} {
		got, err := ParseType(typ.String())
		require.NoError(t, err)
		assert.Equal(t, typ, got)
		assert.True(t, got.Valid())
	}

	_, err := ParseType("brotli")
	assert.Error(t, err)
	assert.False(t, Type(9).Valid())
}
