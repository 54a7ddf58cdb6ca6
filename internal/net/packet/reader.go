package packet

import (
	"encoding/binary"

	"golang.org/x/text/encoding/unicode"
)

// Reader reads packet fields from a decoded payload.
// Byte 0 is always the opcode.
type Reader struct {
	data      []byte
	off       int
	truncated bool
}

func NewReader(data []byte) *Reader {
	return &Reader{data: data, off: 1} // skip opcode byte
}

func (r *Reader) Opcode() byte {
	if len(r.data) == 0 {
		return 0
	}
	return r.data[0]
}

// Truncated reports whether any read ran past the end of the payload.
// The dispatcher treats this as a framing error and drops the frame.
func (r *Reader) Truncated() bool {
	return r.truncated
}

// ReadByte reads 1 unsigned byte.
func (r *Reader) ReadByte() byte {
	if r.off >= len(r.data) {
		r.truncated = true
		return 0
	}
	v := r.data[r.off]
	r.off++
	return v
}

// ReadBool reads 1 byte as a boolean (non-zero = true).
func (r *Reader) ReadBool() bool {
	return r.ReadByte() != 0
}

// ReadShort reads 2 bytes as little-endian uint16.
func (r *Reader) ReadShort() uint16 {
	if r.off+2 > len(r.data) {
		r.truncated = true
		r.off = len(r.data)
		return 0
	}
	v := binary.LittleEndian.Uint16(r.data[r.off:])
	r.off += 2
	return v
}

// ReadInt reads 4 bytes as little-endian int32.
func (r *Reader) ReadInt() int32 {
	if r.off+4 > len(r.data) {
		r.truncated = true
		r.off = len(r.data)
		return 0
	}
	v := int32(binary.LittleEndian.Uint32(r.data[r.off:]))
	r.off += 4
	return v
}

// ReadLong reads 8 bytes as little-endian int64.
func (r *Reader) ReadLong() int64 {
	if r.off+8 > len(r.data) {
		r.truncated = true
		r.off = len(r.data)
		return 0
	}
	v := int64(binary.LittleEndian.Uint64(r.data[r.off:]))
	r.off += 8
	return v
}

// ReadUnicodeString reads a uint16 character count followed by that many
// UTF-16LE code units and returns UTF-8.
func (r *Reader) ReadUnicodeString() string {
	n := int(r.ReadShort())
	if n == 0 {
		return ""
	}
	if r.off+n*2 > len(r.data) {
		r.truncated = true
		r.off = len(r.data)
		return ""
	}
	raw := r.data[r.off : r.off+n*2]
	r.off += n * 2
	return utf16leToUTF8(raw)
}

// utf16leToUTF8 converts UTF-16LE bytes to a UTF-8 string.
func utf16leToUTF8(raw []byte) string {
	decoded, err := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder().Bytes(raw)
	if err != nil {
		return string(raw) // fallback to raw bytes
	}
	return string(decoded)
}

// ReadBytes reads n raw bytes.
func (r *Reader) ReadBytes(n int) []byte {
	if r.off+n > len(r.data) {
		r.truncated = true
		remaining := r.data[r.off:]
		r.off = len(r.data)
		return remaining
	}
	b := make([]byte, n)
	copy(b, r.data[r.off:r.off+n])
	r.off += n
	return b
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.data) - r.off
}
