package rftransport

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	body := []byte{0x01, 0x02, 0x03, 0x04, 0x05}

	var buf bytes.Buffer
	require.NoError(t, WritePacket(&buf, body))

	got, err := ReadPacket(&buf)
	require.NoError(t, err)
	assert.Equal(t, body, got)
}

func TestRoundTripEmptyBody(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WritePacket(&buf, nil))

	got, err := ReadPacket(&buf)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestReadPacketShortLength(t *testing.T) {
	_, err := ReadPacket(bytes.NewReader([]byte{0x01}))
	assert.Error(t, err)
}
