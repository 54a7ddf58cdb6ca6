package packet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func frame(opcode byte, rest ...byte) []byte {
	return append([]byte{opcode}, rest...)
}

func TestRegistryDuplicateOpcodePanics(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	reg.Register(0x10, []SessionState{StateInWorld}, func(any, *Reader) {})
	assert.Panics(t, func() {
		reg.Register(0x10, []SessionState{StateInWorld}, func(any, *Reader) {})
	})
}

func TestRegistryUnknownOpcodeIsDropped(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	err := reg.Dispatch(nil, StateInWorld, frame(0x77))
	assert.NoError(t, err)
}

func TestRegistryStateGating(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	called := false
	reg.Register(0x10, []SessionState{StateInWorld}, func(any, *Reader) { called = true })

	err := reg.Dispatch(nil, StateHandshake, frame(0x10))
	assert.Error(t, err)
	assert.False(t, called)

	err = reg.Dispatch(nil, StateInWorld, frame(0x10))
	require.NoError(t, err)
	assert.True(t, called)
}

func TestRegistryHandlerPanicRecovered(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	reg.Register(0x10, []SessionState{StateInWorld}, func(any, *Reader) {
		panic("boom")
	})
	err := reg.Dispatch(nil, StateInWorld, frame(0x10))
	assert.Error(t, err)
}

func TestModeTableDispatch(t *testing.T) {
	tbl := NewModeTable("guild", zap.NewNop())
	var got byte
	tbl.On(0x0F, func(_ any, r *Reader) { got = 0x0F })
	tbl.On(0x6E, func(_ any, r *Reader) { got = 0x6E })

	r := NewReader(frame(0x3E, 0x6E))
	tbl.Dispatch(nil, r)
	assert.Equal(t, byte(0x6E), got)
}

func TestModeTableDuplicateModePanics(t *testing.T) {
	tbl := NewModeTable("guild", zap.NewNop())
	tbl.On(0x01, func(any, *Reader) {})
	assert.Panics(t, func() {
		tbl.On(0x01, func(any, *Reader) {})
	})
}

func TestModeTableUnknownModeIsDropped(t *testing.T) {
	tbl := NewModeTable("guild", zap.NewNop())
	called := false
	tbl.On(0x01, func(any, *Reader) { called = true })

	tbl.Dispatch(nil, NewReader(frame(0x3E, 0x99)))
	assert.False(t, called)
}
