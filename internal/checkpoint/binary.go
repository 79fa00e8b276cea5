package checkpoint

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/hupe1980/termsort/internal/codec"
	"github.com/hupe1980/termsort/internal/conv"
	"github.com/hupe1980/termsort/internal/hash"
	"github.com/hupe1980/termsort/internal/patch"
)

const (
	binaryMagic      = 0x54534f52 // "TSOR"
	binaryVersion    = 1
	headerSize       = 16
	patchEntrySize   = 8*4 + 1 + 8
	maxManifestBytes = 1 << 30
)

// WriteBinary writes the manifest in binary format. See the package
// documentation for the layout.
func (m *Manifest) WriteBinary(w io.Writer) error {
	pb := newPayloadBuffer(make([]byte, 0, 128+len(m.Patches)*patchEntrySize))

	pb.writeUint64(m.ID)
	pb.writeUint64(uint64(m.CreatedAt.UnixNano()))
	pb.writeString(m.Instance)
	pb.writeInt(m.Kind)
	pb.writeInt(m.Level)
	for _, c := range m.Counters.fields() {
		pb.writeInt64(*c)
	}
	pb.writeString(m.Data)
	pb.writeInt(len(m.Patches))

	for _, p := range m.Patches {
		pb.writeInt64(p.Offset)
		pb.writeInt64(p.Size)
		pb.writeInt64(p.Terms)
		pb.writeInt64(p.Cells)
		pb.buf = append(pb.buf, byte(p.Codec))
		pb.writeUint64(p.Checksum)
	}

	if pb.err != nil {
		return pb.err
	}

	payload := pb.buf
	length, err := conv.IntToUint32(len(payload))
	if err != nil {
		return err
	}

	header := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(header[0:4], binaryMagic)
	binary.LittleEndian.PutUint32(header[4:8], binaryVersion)
	binary.LittleEndian.PutUint32(header[8:12], hash.CRC32C(payload))
	binary.LittleEndian.PutUint32(header[12:16], length)

	if _, err := w.Write(header); err != nil {
		return err
	}
	_, err = w.Write(payload)

	return err
}

// ReadBinary reads a manifest written by WriteBinary.
func ReadBinary(r io.Reader) (*Manifest, error) {
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("%w: header: %w", ErrCorrupt, err)
	}

	if magic := binary.LittleEndian.Uint32(header[0:4]); magic != binaryMagic {
		return nil, fmt.Errorf("%w: invalid magic %x", ErrCorrupt, magic)
	}
	version := binary.LittleEndian.Uint32(header[4:8])
	if version != binaryVersion {
		return nil, fmt.Errorf("%w: %d", ErrIncompatibleVersion, version)
	}
	checksum := binary.LittleEndian.Uint32(header[8:12])
	length := binary.LittleEndian.Uint32(header[12:16])
	if length > maxManifestBytes {
		return nil, fmt.Errorf("%w: payload of %d bytes", ErrCorrupt, length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("%w: payload: %w", ErrCorrupt, err)
	}
	if hash.CRC32C(payload) != checksum {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}

	pb := newPayloadBuffer(payload)
	m := &Manifest{Version: int(version)}

	m.ID = pb.readUint64()
	m.CreatedAt = time.Unix(0, int64(pb.readUint64()))
	m.Instance = pb.readString()
	m.Kind = pb.readInt()
	m.Level = pb.readInt()
	for _, c := range m.Counters.fields() {
		*c = pb.readInt64()
	}
	m.Data = pb.readString()

	n := pb.readInt()
	if pb.err == nil && n*patchEntrySize > len(payload)-pb.pos {
		pb.err = io.ErrUnexpectedEOF
	}
	if pb.err == nil {
		m.Patches = make([]patch.Patch, n)
	}
	for i := range m.Patches {
		p := &m.Patches[i]
		p.Offset = pb.readInt64()
		p.Size = pb.readInt64()
		p.Terms = pb.readInt64()
		p.Cells = pb.readInt64()
		p.Codec = codec.Type(pb.readByte())
		p.Checksum = pb.readUint64()
		if pb.err == nil && !p.Codec.Valid() {
			pb.err = fmt.Errorf("unknown codec %d", p.Codec)
		}
	}

	if pb.err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, pb.err)
	}

	return m, nil
}

func (c *Counters) fields() []*int64 {
	return []*int64{
		&c.GenTerms, &c.GenCells, &c.Merged, &c.Cancelled, &c.Dropped,
		&c.SmallFlushes, &c.LargeFlushes, &c.DirectPatches, &c.Stages,
	}
}

type payloadBuffer struct {
	buf []byte
	pos int
	err error
}

func newPayloadBuffer(b []byte) *payloadBuffer {
	return &payloadBuffer{buf: b}
}

func (p *payloadBuffer) writeUint64(v uint64) {
	if p.err != nil {
		return
	}
	p.buf = binary.LittleEndian.AppendUint64(p.buf, v)
}

func (p *payloadBuffer) writeInt64(v int64) {
	if p.err != nil {
		return
	}
	u, err := conv.Int64ToUint64(v)
	if err != nil {
		p.err = err
		return
	}
	p.writeUint64(u)
}

func (p *payloadBuffer) writeInt(v int) {
	if p.err != nil {
		return
	}
	u, err := conv.IntToUint32(v)
	if err != nil {
		p.err = err
		return
	}
	p.buf = binary.LittleEndian.AppendUint32(p.buf, u)
}

func (p *payloadBuffer) writeString(s string) {
	if p.err != nil {
		return
	}
	if len(s) > 65535 {
		p.err = fmt.Errorf("string too long: %d", len(s))
		return
	}
	p.buf = binary.LittleEndian.AppendUint16(p.buf, uint16(len(s)))
	p.buf = append(p.buf, s...)
}

func (p *payloadBuffer) need(n int) bool {
	if p.err != nil {
		return false
	}
	if p.pos+n > len(p.buf) {
		p.err = io.ErrUnexpectedEOF
		return false
	}
	return true
}

func (p *payloadBuffer) readByte() byte {
	if !p.need(1) {
		return 0
	}
	v := p.buf[p.pos]
	p.pos++
	return v
}

func (p *payloadBuffer) readUint64() uint64 {
	if !p.need(8) {
		return 0
	}
	v := binary.LittleEndian.Uint64(p.buf[p.pos:])
	p.pos += 8
	return v
}

func (p *payloadBuffer) readInt64() int64 {
	u := p.readUint64()
	if p.err != nil {
		return 0
	}
	v, err := conv.Uint64ToInt64(u)
	if err != nil {
		p.err = err
	}
	return v
}

func (p *payloadBuffer) readInt() int {
	if !p.need(4) {
		return 0
	}
	u := binary.LittleEndian.Uint32(p.buf[p.pos:])
	p.pos += 4
	v, err := conv.Uint32ToInt(u)
	if err != nil {
		p.err = err
	}
	return v
}

func (p *payloadBuffer) readString() string {
	if !p.need(2) {
		return ""
	}
	l := int(binary.LittleEndian.Uint16(p.buf[p.pos:]))
	p.pos += 2
	if !p.need(l) {
		return ""
	}
	s := string(p.buf[p.pos : p.pos+l])
	p.pos += l
	return s
}
