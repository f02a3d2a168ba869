package controller

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/casimir-nfc/casimir/internal/events"
	"github.com/casimir-nfc/casimir/internal/nci"
	"github.com/casimir-nfc/casimir/internal/nciparam"
	"github.com/casimir-nfc/casimir/internal/ncitransport"
	"github.com/casimir-nfc/casimir/internal/rf"
)

type testHarness struct {
	t      *testing.T
	client net.Conn
	reader *ncitransport.Reader
	rfIn   chan rf.Packet
	rfOut  chan rf.Packet
	cancel context.CancelFunc
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()
	serverConn, clientConn := net.Pipe()
	rfIn := make(chan rf.Packet, 16)
	rfOut := make(chan rf.Packet, 16)

	c := New(1, serverConn, rfIn, rfOut, events.NoopSink{}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	go c.Run(ctx)
	t.Cleanup(func() {
		cancel()
		clientConn.Close()
	})

	return &testHarness{
		t:      t,
		client: clientConn,
		reader: ncitransport.NewReader(clientConn),
		rfIn:   rfIn,
		rfOut:  rfOut,
		cancel: cancel,
	}
}

func (h *testHarness) sendCmd(gid nci.GID, oid nci.OID, payload []byte) {
	h.t.Helper()
	packet := nci.BuildControlPacket(ncitransport.MTCommand, gid, oid, payload)
	require.NoError(h.t, ncitransport.WritePacket(h.client, packet))
}

func (h *testHarness) recv() nci.ParsedPacket {
	h.t.Helper()
	raw, err := h.reader.ReadPacket()
	require.NoError(h.t, err)
	parsed, err := nci.ParsePacket(raw)
	require.NoError(h.t, err)
	return parsed
}

func (h *testHarness) recvRF(t *testing.T) rf.Packet {
	t.Helper()
	select {
	case pkt := <-h.rfOut:
		return pkt
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for RF egress packet")
		return rf.Packet{}
	}
}

func TestCoreResetRoundTrip(t *testing.T) {
	h := newTestHarness(t)

	h.sendCmd(nci.GIDCore, nci.OIDCoreReset, []byte{byte(nci.ResetConfig)})

	rsp := h.recv()
	assert.Equal(t, ncitransport.MTResponse, rsp.Header.MT)
	assert.Equal(t, uint8(nci.StatusOk), rsp.Payload[0])

	ntf := h.recv()
	assert.Equal(t, ncitransport.MTNotification, ntf.Header.MT)
	assert.Equal(t, uint8(nci.TriggerResetCommand), ntf.Payload[0])
	assert.Equal(t, uint8(nci.ConfigReset), ntf.Payload[1])
	assert.Equal(t, uint8(NCIVersion), ntf.Payload[2])
	assert.Equal(t, uint8(ManufacturerID), ntf.Payload[3])
	assert.Equal(t, uint8(26), ntf.Payload[4])
	assert.Len(t, ntf.Payload[5:], 26)
}

func TestConfigSetGet(t *testing.T) {
	h := newTestHarness(t)

	setPayload := []byte{1, byte(nciparam.TotalDuration), 2, 0x34, 0x12}
	h.sendCmd(nci.GIDCore, nci.OIDCoreSetConfig, setPayload)
	rsp := h.recv()
	assert.Equal(t, uint8(nci.StatusOk), rsp.Payload[0])
	assert.Equal(t, uint8(0), rsp.Payload[1])

	getPayload := []byte{1, byte(nciparam.TotalDuration)}
	h.sendCmd(nci.GIDCore, nci.OIDCoreGetConfig, getPayload)
	getRsp := h.recv()
	assert.Equal(t, uint8(nci.StatusOk), getRsp.Payload[0])
	assert.Equal(t, uint8(1), getRsp.Payload[1])
	assert.Equal(t, byte(nciparam.TotalDuration), getRsp.Payload[2])
	assert.Equal(t, uint8(2), getRsp.Payload[3])
	assert.Equal(t, []byte{0x34, 0x12}, getRsp.Payload[4:6])
}

func TestDiscoverySinglePeerActivation(t *testing.T) {
	h := newTestHarness(t)

	discoverPayload := []byte{1, uint8(rf.NfcAPassivePollMode), 0x01}
	h.sendCmd(nci.GIDRF, nci.OIDRfDiscover, discoverPayload)
	rsp := h.recv()
	require.Equal(t, uint8(nci.StatusOk), rsp.Payload[0])

	pollCmd := h.recvRF(t)
	assert.Equal(t, rf.KindPollCommand, pollCmd.Kind)
	assert.Equal(t, rf.Broadcast, pollCmd.Receiver)

	pollingLoopNtf := h.recv()
	assert.Equal(t, uint8(nci.GIDProprietary), uint8(pollingLoopNtf.Header.GIDOrConnID))

	const peerID = 42
	h.rfIn <- rf.Packet{
		Sender:   peerID,
		Receiver: 1,
		Kind:     rf.KindNfcAPollResponse,
		Body: rf.EncodeNfcAPollResponse(rf.NfcAPollResponse{
			IntProtocol: 0b01,
			NFCID1:      []byte{0x08, 0xBA, 0x07, 0x63},
		}),
	}

	selectCmd := h.recvRF(t)
	assert.Equal(t, rf.KindT4atSelectCommand, selectCmd.Kind)
	assert.Equal(t, uint16(peerID), selectCmd.Receiver)

	h.rfIn <- rf.Packet{
		Sender:   peerID,
		Receiver: 1,
		Kind:     rf.KindT4atSelectResponse,
		Body:     rf.EncodeT4atSelectResponse(rf.T4atSelectResponse{RatsResponse: []byte{0x78, 0x80, 0x70, 0x02}}),
	}

	activated := h.recv()
	assert.Equal(t, uint8(nci.GIDRF), uint8(activated.Header.GIDOrConnID))
	assert.Equal(t, uint8(nci.OIDRfIntfActivated), activated.Header.OID)
	assert.Equal(t, uint8(1), activated.Payload[0])               // rf_discovery_id
	assert.Equal(t, uint8(nci.RFInterfaceIsoDep), activated.Payload[1]) // interface
}

func TestDiscoveryTwoPeersWaitForHostSelect(t *testing.T) {
	h := newTestHarness(t)

	discoverPayload := []byte{1, uint8(rf.NfcAPassivePollMode), 0x01}
	h.sendCmd(nci.GIDRF, nci.OIDRfDiscover, discoverPayload)
	_ = h.recv() // RF_DISCOVER_RSP
	_ = h.recvRF(t) // poll command broadcast
	_ = h.recv() // polling loop ntf

	h.rfIn <- rf.Packet{Sender: 10, Receiver: 1, Kind: rf.KindNfcAPollResponse,
		Body: rf.EncodeNfcAPollResponse(rf.NfcAPollResponse{IntProtocol: 0b01, NFCID1: []byte{0x01, 0x02, 0x03, 0x04}})}
	h.rfIn <- rf.Packet{Sender: 11, Receiver: 1, Kind: rf.KindNfcAPollResponse,
		Body: rf.EncodeNfcAPollResponse(rf.NfcAPollResponse{IntProtocol: 0b01, NFCID1: []byte{0x05, 0x06, 0x07, 0x08}})}

	first := h.recv()
	assert.Equal(t, uint8(nci.OIDRfDiscover), first.Header.OID)
	assert.Equal(t, ncitransport.MTNotification, first.Header.MT)
	assert.Equal(t, uint8(nci.MoreNotification), first.Payload[len(first.Payload)-1])

	second := h.recv()
	assert.Equal(t, uint8(nci.LastNotification), second.Payload[len(second.Payload)-1])
}

func TestDeactivateToIdle(t *testing.T) {
	h := newTestHarness(t)

	h.sendCmd(nci.GIDRF, nci.OIDRfDiscover, []byte{1, uint8(rf.NfcAPassivePollMode), 0x01})
	_ = h.recv()
	_ = h.recvRF(t)
	_ = h.recv()

	const peerID = 7
	h.rfIn <- rf.Packet{Sender: peerID, Receiver: 1, Kind: rf.KindNfcAPollResponse,
		Body: rf.EncodeNfcAPollResponse(rf.NfcAPollResponse{IntProtocol: 0b01, NFCID1: []byte{0x08, 0xBA, 0x07, 0x63}})}
	_ = h.recvRF(t) // select command
	h.rfIn <- rf.Packet{Sender: peerID, Receiver: 1, Kind: rf.KindT4atSelectResponse,
		Body: rf.EncodeT4atSelectResponse(rf.T4atSelectResponse{RatsResponse: []byte{0x78, 0x80, 0x70, 0x02}})}
	_ = h.recv() // RF_INTF_ACTIVATED_NTF

	h.sendCmd(nci.GIDRF, nci.OIDRfDeactivate, []byte{byte(rf.DeactToIdleMode)})

	rsp := h.recv()
	assert.Equal(t, uint8(nci.StatusOk), rsp.Payload[0])

	ntf := h.recv()
	assert.Equal(t, uint8(nci.OIDRfDeactivate), ntf.Header.OID)
	assert.Equal(t, ncitransport.MTNotification, ntf.Header.MT)
	assert.Equal(t, byte(rf.DeactToIdleMode), ntf.Payload[0])

	deactivateNotif := h.recvRF(t)
	assert.Equal(t, rf.KindDeactivateNotif, deactivateNotif.Kind)
	assert.Equal(t, uint16(peerID), deactivateNotif.Receiver)
	decoded, err := rf.DecodeDeactivateNotification(deactivateNotif.Body)
	require.NoError(t, err)
	assert.Equal(t, rf.ReasonEndpointRequest, decoded.Reason)
}
