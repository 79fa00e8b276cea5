package term

import (
	"encoding/binary"
	"fmt"
)

// CellSize is the encoded size of one cell in bytes.
const CellSize = 4

// AppendBytes appends the little-endian encoding of t to dst.
func AppendBytes(dst []byte, t Term) []byte {
	for _, c := range t {
		dst = binary.LittleEndian.AppendUint32(dst, uint32(c))
	}

	return dst
}

// AppendSentinel appends an encoded zero length cell.
func AppendSentinel(dst []byte) []byte {
	return binary.LittleEndian.AppendUint32(dst, 0)
}

// PeekLen decodes the length cell at the start of b.
func PeekLen(b []byte) (int, error) {
	if len(b) < CellSize {
		return 0, fmt.Errorf("%w: truncated length cell", ErrMalformed)
	}

	return int(int32(binary.LittleEndian.Uint32(b))), nil
}

// Decode decodes one term from b into dst. A sentinel yields a nil term and
// consumes one cell.
func Decode(dst Term, b []byte) (Term, int, error) {
	n, err := PeekLen(b)
	if err != nil {
		return nil, 0, err
	}
	if n == 0 {
		return nil, CellSize, nil
	}
	if n < MinLen || n*CellSize > len(b) {
		return nil, 0, fmt.Errorf("%w: length %d with %d bytes left", ErrMalformed, n, len(b))
	}
	dst = dst[:0]
	for i := range n {
		dst = append(dst, Cell(int32(binary.LittleEndian.Uint32(b[i*CellSize:]))))
	}

	return dst, n * CellSize, nil
}
