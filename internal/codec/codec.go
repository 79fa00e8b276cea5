// Package codec implements the block compression envelope used for patches.
//
// A compressed stream is a sequence of blocks:
//
//	[UncompressedSize uint32][CompressedSize uint32][Data...]
//
// CompressedSize 0 means the block is stored as is because compression did not
// pay off. Type None writes the payload without any framing.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Type identifies a compression algorithm.
type Type uint8

const (
	// None stores patches uncompressed.
	None Type = 0
	// LZ4 is fast block compression.
	LZ4 Type = 1
	// ZSTD trades speed for a better ratio.
	ZSTD Type = 2
	// S2 is a Snappy-compatible extension with high throughput.
	S2 Type = 3
)

// DefaultBlockSize is used when a writer is created with a non-positive size.
const DefaultBlockSize = 256 * 1024

const (
	blockHeaderSize = 8
	maxBlockSize    = 64 << 20
)

// ErrCorrupt is returned when a block cannot be decoded.
var ErrCorrupt = errors.New("codec: corrupt block")

func (t Type) String() string {
	switch t {
	case None:
		return "none"
	case LZ4:
		return "lz4"
	case ZSTD:
		return "zstd"
	case S2:
		return "s2"
	default:
		return fmt.Sprintf("codec(%d)", uint8(t))
	}
}

// ParseType parses the names produced by String.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return None, nil
	case "lz4":
		return LZ4, nil
	case "zstd":
		return ZSTD, nil
	case "s2":
		return S2, nil
	}

	return None, fmt.Errorf("codec: unknown type %q", s)
}

// Valid reports whether t names a known algorithm.
func (t Type) Valid() bool { return t <= S2 }

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))

	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)

	return dec
}

// appendBlock compresses data and appends a framed block to dst.
func appendBlock(dst, data []byte, t Type) ([]byte, error) {
	var compressed []byte
	switch t {
	case LZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, err
		}
		compressed = buf[:n]
	case ZSTD:
		enc := getZstdEncoder()
		compressed = enc.EncodeAll(data, nil)
		zstdEncoderPool.Put(enc)
	case S2:
		compressed = s2.Encode(nil, data)
	default:
		return nil, fmt.Errorf("codec: cannot frame type %s", t)
	}

	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(data)))
	// Store raw when the ratio is worse than 0.9.
	if len(compressed) == 0 || float64(len(compressed)) > float64(len(data))*0.9 {
		dst = binary.LittleEndian.AppendUint32(dst, 0)
		return append(dst, data...), nil
	}
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(compressed)))

	return append(dst, compressed...), nil
}

// MaxEncodedLen bounds the framed size of n bytes written through a Writer
// of type t with the given block size.
func MaxEncodedLen(n int64, t Type, blockSize int) int64 {
	if t == None || n <= 0 {
		return max(n, 0)
	}
	if blockSize <= 0 || blockSize > maxBlockSize {
		blockSize = DefaultBlockSize
	}
	blocks := (n + int64(blockSize) - 1) / int64(blockSize)

	return n + blocks*blockHeaderSize
}

// decodeBlock decompresses payload into dst, which must have the
// uncompressed length.
func decodeBlock(dst, payload []byte, t Type) error {
	switch t {
	case LZ4:
		n, err := lz4.UncompressBlock(payload, dst)
		if err != nil {
			return fmt.Errorf("%w: lz4: %w", ErrCorrupt, err)
		}
		if n != len(dst) {
			return fmt.Errorf("%w: lz4 size mismatch", ErrCorrupt)
		}
	case ZSTD:
		dec := getZstdDecoder()
		defer zstdDecoderPool.Put(dec)
		out, err := dec.DecodeAll(payload, dst[:0])
		if err != nil {
			return fmt.Errorf("%w: zstd: %w", ErrCorrupt, err)
		}
		if len(out) != len(dst) {
			return fmt.Errorf("%w: zstd size mismatch", ErrCorrupt)
		}
	case S2:
		n, err := s2.DecodedLen(payload)
		if err != nil {
			return fmt.Errorf("%w: s2: %w", ErrCorrupt, err)
		}
		if n != len(dst) {
			return fmt.Errorf("%w: s2 size mismatch", ErrCorrupt)
		}
		if _, err := s2.Decode(dst, payload); err != nil {
			return fmt.Errorf("%w: s2: %w", ErrCorrupt, err)
		}
	default:
		return fmt.Errorf("%w: unknown type %d", ErrCorrupt, uint8(t))
	}

	return nil
}
