package packet

import (
	"encoding/binary"

	"golang.org/x/text/encoding/unicode"
)

// Writer builds a server packet. All multi-byte writes are little-endian.
type Writer struct {
	buf []byte
}

func NewWriter() *Writer {
	return &Writer{buf: make([]byte, 0, 64)}
}

func NewWriterWithOpcode(opcode byte) *Writer {
	w := &Writer{buf: make([]byte, 0, 64)}
	w.WriteByte(opcode)
	return w
}

// WriteByte writes 1 byte.
func (w *Writer) WriteByte(v byte) {
	w.buf = append(w.buf, v)
}

// WriteBool writes 1 byte: 1 for true, 0 for false.
func (w *Writer) WriteBool(v bool) {
	if v {
		w.buf = append(w.buf, 1)
	} else {
		w.buf = append(w.buf, 0)
	}
}

// WriteShort writes 2 bytes little-endian.
func (w *Writer) WriteShort(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// WriteInt writes 4 bytes little-endian (signed or unsigned via cast).
func (w *Writer) WriteInt(v int32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(v))
	w.buf = append(w.buf, b[:]...)
}

// WriteLong writes 8 bytes little-endian.
func (w *Writer) WriteLong(v int64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	w.buf = append(w.buf, b[:]...)
}

// WriteUnicodeString writes a uint16 character count followed by the string
// as UTF-16LE code units.
func (w *Writer) WriteUnicodeString(s string) {
	if len(s) == 0 {
		w.WriteShort(0)
		return
	}
	encoded, err := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder().Bytes([]byte(s))
	if err != nil {
		// Fallback: write raw bytes (works for pure ASCII widened to UTF-16)
		w.WriteShort(uint16(len(s)))
		for i := 0; i < len(s); i++ {
			w.buf = append(w.buf, s[i], 0)
		}
		return
	}
	w.WriteShort(uint16(len(encoded) / 2))
	w.buf = append(w.buf, encoded...)
}

// WriteBytes writes raw bytes.
func (w *Writer) WriteBytes(b []byte) {
	w.buf = append(w.buf, b...)
}

// Bytes returns the packet content.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Len returns the current length.
func (w *Writer) Len() int {
	return len(w.buf)
}
