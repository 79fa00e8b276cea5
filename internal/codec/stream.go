package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Writer frames and compresses everything written to it. Close flushes the
// last block but does not close the underlying writer.
type Writer struct {
	w         io.Writer
	t         Type
	blockSize int
	buf       []byte
	frame     []byte
	written   int64
}

// NewWriter returns a writer for t. For None the data is passed through.
func NewWriter(w io.Writer, t Type, blockSize int) *Writer {
	if blockSize <= 0 || blockSize > maxBlockSize {
		blockSize = DefaultBlockSize
	}

	return &Writer{w: w, t: t, blockSize: blockSize}
}

// Write implements io.Writer.
func (c *Writer) Write(p []byte) (int, error) {
	if c.t == None {
		n, err := c.w.Write(p)
		c.written += int64(n)
		return n, err
	}

	total := 0
	for len(p) > 0 {
		space := c.blockSize - len(c.buf)
		if space == 0 {
			if err := c.flushBlock(); err != nil {
				return total, err
			}
			space = c.blockSize
		}
		n := min(space, len(p))
		c.buf = append(c.buf, p[:n]...)
		total += n
		p = p[n:]
	}

	return total, nil
}

func (c *Writer) flushBlock() error {
	if len(c.buf) == 0 {
		return nil
	}
	var err error
	c.frame, err = appendBlock(c.frame[:0], c.buf, c.t)
	if err != nil {
		return err
	}
	n, err := c.w.Write(c.frame)
	c.written += int64(n)
	if err != nil {
		return err
	}
	c.buf = c.buf[:0]

	return nil
}

// Close writes any buffered data.
func (c *Writer) Close() error {
	if c.t == None {
		return nil
	}

	return c.flushBlock()
}

// Written returns the number of encoded bytes passed to the underlying writer.
func (c *Writer) Written() int64 { return c.written }

// Reader decodes a stream produced by Writer.
type Reader struct {
	r     io.Reader
	t     Type
	hdr   [blockHeaderSize]byte
	comp  []byte
	block []byte
	pos   int
}

// NewReader returns a reader for t. For None the data is passed through.
func NewReader(r io.Reader, t Type) io.Reader {
	if t == None {
		return r
	}

	return &Reader{r: r, t: t}
}

// Read implements io.Reader.
func (c *Reader) Read(p []byte) (int, error) {
	for c.pos == len(c.block) {
		if err := c.next(); err != nil {
			return 0, err
		}
	}
	n := copy(p, c.block[c.pos:])
	c.pos += n

	return n, nil
}

func (c *Reader) next() error {
	if _, err := io.ReadFull(c.r, c.hdr[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%w: truncated block header", ErrCorrupt)
		}
		return err
	}
	raw := int(binary.LittleEndian.Uint32(c.hdr[0:]))
	comp := int(binary.LittleEndian.Uint32(c.hdr[4:]))
	if raw > maxBlockSize || comp > maxBlockSize {
		return fmt.Errorf("%w: block header %d/%d out of range", ErrCorrupt, raw, comp)
	}

	c.block = grow(c.block, raw)
	c.pos = 0
	if comp == 0 {
		if _, err := io.ReadFull(c.r, c.block); err != nil {
			return fmt.Errorf("%w: truncated raw block: %w", ErrCorrupt, err)
		}
		return nil
	}

	c.comp = grow(c.comp, comp)
	if _, err := io.ReadFull(c.r, c.comp); err != nil {
		return fmt.Errorf("%w: truncated block: %w", ErrCorrupt, err)
	}

	return decodeBlock(c.block, c.comp, c.t)
}

func grow(b []byte, n int) []byte {
	if cap(b) < n {
		return make([]byte, n)
	}

	return b[:n]
}
