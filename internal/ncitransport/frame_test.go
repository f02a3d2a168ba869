package ncitransport

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildPacket(gid, oid byte, payloadLen int) []byte {
	p := make([]byte, 3+payloadLen)
	p[0] = (byte(MTCommand) << mtShift) | (gid & gidMask)
	p[1] = oid
	p[2] = byte(payloadLen)
	for i := 0; i < payloadLen; i++ {
		p[3+i] = byte(i)
	}
	return p
}

func TestRoundTripSmallPacket(t *testing.T) {
	packet := buildPacket(0x01, 0x02, 10)

	var buf bytes.Buffer
	require.NoError(t, WritePacket(&buf, packet))

	r := NewReader(&buf)
	got, err := r.ReadPacket()
	require.NoError(t, err)
	assert.Equal(t, packet, got)
}

func TestRoundTripSegmentedPacket(t *testing.T) {
	// 600-byte payload forces 3 segments (255 + 255 + 90).
	packet := buildPacket(0x03, 0x10, 600)

	var buf bytes.Buffer
	require.NoError(t, WritePacket(&buf, packet))

	r := NewReader(&buf)
	got, err := r.ReadPacket()
	require.NoError(t, err)
	assert.Equal(t, packet, got)
}

func TestRoundTripEmptyPayload(t *testing.T) {
	packet := buildPacket(0x00, 0x00, 0)

	var buf bytes.Buffer
	require.NoError(t, WritePacket(&buf, packet))

	r := NewReader(&buf)
	got, err := r.ReadPacket()
	require.NoError(t, err)
	assert.Equal(t, packet, got)
}

func TestReadPacketShortHeaderIsFatal(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte{0x01, 0x02}))
	_, err := r.ReadPacket()
	assert.Error(t, err)
}

func TestSegmentationUsesAtMost255BytePayloads(t *testing.T) {
	packet := buildPacket(0x01, 0x02, 300)

	var buf bytes.Buffer
	require.NoError(t, WritePacket(&buf, packet))

	// First segment header must be marked Incomplete with length 255.
	firstHeader := buf.Bytes()[:3]
	h, err := ParseHeader(firstHeader)
	require.NoError(t, err)
	assert.Equal(t, Incomplete, h.PBF)
	assert.Equal(t, uint8(255), h.Length)
}
