package net

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte{0x3E, 0x0F, 1, 2, 3}

	require.NoError(t, WriteFrame(&buf, payload))
	assert.Equal(t, len(payload)+2, buf.Len())

	got, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestReadFrameRejectsEmptyPayload(t *testing.T) {
	// Length 2 means a header with nothing behind it.
	_, err := ReadFrame(bytes.NewReader([]byte{0x02, 0x00}))
	assert.Error(t, err)
}

func TestReadFrameShortPayload(t *testing.T) {
	// Header promises 8 bytes of payload, only 3 arrive.
	_, err := ReadFrame(bytes.NewReader([]byte{0x0A, 0x00, 1, 2, 3}))
	assert.Error(t, err)
}
