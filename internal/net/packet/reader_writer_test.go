package packet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterReaderRoundTrip(t *testing.T) {
	w := NewWriterWithOpcode(0x3E)
	w.WriteByte(0x0F)
	w.WriteBool(true)
	w.WriteShort(0xBEEF)
	w.WriteInt(-123456)
	w.WriteLong(1<<40 + 7)
	w.WriteUnicodeString("Sky Fortress")
	w.WriteUnicodeString("")
	w.WriteBytes([]byte{1, 2, 3})

	r := NewReader(w.Bytes())
	assert.Equal(t, byte(0x3E), r.Opcode())
	assert.Equal(t, byte(0x0F), r.ReadByte())
	assert.True(t, r.ReadBool())
	assert.Equal(t, uint16(0xBEEF), r.ReadShort())
	assert.Equal(t, int32(-123456), r.ReadInt())
	assert.Equal(t, int64(1<<40+7), r.ReadLong())
	assert.Equal(t, "Sky Fortress", r.ReadUnicodeString())
	assert.Equal(t, "", r.ReadUnicodeString())
	assert.Equal(t, []byte{1, 2, 3}, r.ReadBytes(3))
	assert.Equal(t, 0, r.Remaining())
	assert.False(t, r.Truncated())
}

func TestWriterUnicodeCJK(t *testing.T) {
	w := NewWriterWithOpcode(0x01)
	w.WriteUnicodeString("公會戰隊")

	r := NewReader(w.Bytes())
	assert.Equal(t, "公會戰隊", r.ReadUnicodeString())
	assert.False(t, r.Truncated())
}

func TestReaderTruncatedIsSticky(t *testing.T) {
	w := NewWriterWithOpcode(0x01)
	w.WriteShort(5)

	r := NewReader(w.Bytes())
	r.ReadShort()
	require.False(t, r.Truncated())

	// Run past the end: zero values, flag set, and it stays set.
	assert.Equal(t, int64(0), r.ReadLong())
	assert.True(t, r.Truncated())
	assert.Equal(t, int32(0), r.ReadInt())
	assert.Equal(t, "", r.ReadUnicodeString())
	assert.True(t, r.Truncated())
}

func TestReaderTruncatedString(t *testing.T) {
	w := NewWriterWithOpcode(0x01)
	w.WriteShort(100) // claims 100 chars, none follow

	r := NewReader(w.Bytes())
	assert.Equal(t, "", r.ReadUnicodeString())
	assert.True(t, r.Truncated())
}
