package controller

import (
	"bytes"

	"go.uber.org/zap"

	"github.com/casimir-nfc/casimir/internal/nci"
	"github.com/casimir-nfc/casimir/internal/ncitransport"
	"github.com/casimir-nfc/casimir/internal/rf"
)

// --- NCI data packets from the DH (spec.md §4.4.5) ---

func (c *Controller) handleDataPacket(connID uint8, payload []byte) error {
	switch connID {
	case ConnStaticRF:
		return c.handleStaticRFData(payload)
	case ConnStaticHCI:
		return c.handleStaticHCIData(payload)
	default:
		if _, ok := c.State.Connection(connID); !ok {
			c.log.Warn("data packet on unknown connection", zap.Uint8("conn_id", connID))
			return nil
		}
		c.log.Warn("data path for dynamic connections is not modeled", zap.Uint8("conn_id", connID))
		return nil
	}
}

func (c *Controller) handleStaticRFData(payload []byte) error {
	st := c.State.RfState
	if st.Kind != RfPollActive && st.Kind != RfListenActive {
		c.log.Warn("static RF data received outside an active RF state")
		return nil
	}

	switch st.RFInterface {
	case nci.RFInterfaceFrame:
		c.handleFrameData(payload)
	case nci.RFInterfaceIsoDep:
		c.sendRF(st.PeerID, rf.KindData, rf.EncodeData(rf.Data{Payload: payload}))
	default:
		c.log.Warn("static RF data on unsupported interface", zap.Uint8("rf_interface", uint8(st.RFInterface)))
	}

	c.writeNCI(nci.BuildControlPacket(ncitransport.MTNotification, nci.GIDCore, nci.OIDCoreConnCredits,
		nci.CoreConnCreditsNtf{ConnID: ConnStaticRF, Credits: 1}.Encode()))
	return nil
}

// Frame-interface ISO-DEP command prefixes spec.md §4.4.5 names.
const (
	ratsPrefix     byte = 0xE0
	deselectPrefix byte = 0xC2
	slpReqPrefix   byte = 0x50
)

// handleFrameData implements spec.md §4.4.5's Frame-interface handling.
// RATS replays the captured activation parameters regardless of the
// byte that follows the 0xE0 prefix — an ambiguity in the source
// material the spec explicitly leaves unresolved (spec.md §9).
func (c *Controller) handleFrameData(payload []byte) {
	if len(payload) == 0 {
		return
	}
	switch payload[0] {
	case ratsPrefix:
		c.sendRF(c.State.RfState.PeerID, rf.KindData, rf.EncodeData(rf.Data{Payload: c.State.RfActivationParameters}))
	case deselectPrefix:
		c.log.Warn("dropping DESELECT on Frame interface")
	case slpReqPrefix:
		c.log.Warn("dropping SLP_REQ on Frame interface")
	default:
		c.sendRF(c.State.RfState.PeerID, rf.KindData, rf.EncodeData(rf.Data{Payload: payload}))
	}
}

// Canned HCI command prefixes spec.md §4.4.5 names for the static HCI
// connection, with their canned replies. Values are self-consistent
// stand-ins for an ETSI HCI admin-pipe exchange; no real DH parses
// these beyond noting a reply arrived on conn 1.
var (
	hciAnyOpenPipe     = []byte{0x80, 0x03}
	hciAnyGetParam1    = []byte{0x80, 0x01, 0x01}
	hciAnyGetParam4    = []byte{0x80, 0x01, 0x04}
	hciAnySetParam     = []byte{0x80, 0x02}
	hciAdmClearAllPipe = []byte{0x81, 0x14}
)

func cannedHCIReply(payload []byte) []byte {
	switch {
	case bytes.HasPrefix(payload, hciAnyOpenPipe):
		return []byte{0x80, 0x83, 0x00}
	case bytes.HasPrefix(payload, hciAnyGetParam1):
		return []byte{0x80, 0x81, 0x00, 0x00}
	case bytes.HasPrefix(payload, hciAnyGetParam4):
		return []byte{0x80, 0x81, 0x00, 0x00, 0x00, 0x00}
	case bytes.HasPrefix(payload, hciAnySetParam):
		return []byte{0x80, 0x82, 0x00}
	case bytes.HasPrefix(payload, hciAdmClearAllPipe):
		return []byte{0x81, 0x94, 0x00}
	default:
		return nil
	}
}

func (c *Controller) handleStaticHCIData(payload []byte) error {
	if reply := cannedHCIReply(payload); reply != nil {
		c.writeNCI(nci.BuildDataPacket(ConnStaticHCI, reply))
	} else {
		c.log.Warn("unrecognized HCI command prefix on static HCI connection")
	}

	c.writeNCI(nci.BuildControlPacket(ncitransport.MTNotification, nci.GIDCore, nci.OIDCoreConnCredits,
		nci.CoreConnCreditsNtf{ConnID: ConnStaticHCI, Credits: 1}.Encode()))
	return nil
}

// --- RF ingress from the scene (spec.md §4.4.1, §4.4.6) ---

func (c *Controller) handleRFPacket(pkt rf.Packet) {
	switch pkt.Kind {
	case rf.KindPollCommand:
		c.handleIncomingPollCommand(pkt)
	case rf.KindNfcAPollResponse:
		c.handleIncomingPollResponse(pkt)
	case rf.KindT4atSelectCommand:
		c.handleIncomingSelectCommand(pkt)
	case rf.KindT4atSelectResponse:
		c.handleIncomingSelectResponse(pkt)
	case rf.KindDeactivateNotif:
		c.handleIncomingDeactivateNotification(pkt)
	case rf.KindData:
		c.handleIncomingData(pkt)
	default:
		c.log.Warn("unknown RF packet kind", zap.Uint8("kind", uint8(pkt.Kind)))
	}
}

func (c *Controller) hasListenEntry(tech rf.Technology) bool {
	for _, e := range c.State.DiscoverConfiguration {
		if t, ok := listenTechnology(e.TechAndMode); ok && t == tech {
			return true
		}
	}
	return false
}

func protocolFromIntProtocol(v uint8) rf.Protocol {
	switch v & 0x03 {
	case 0b00:
		return rf.ProtocolT2T
	case 0b01:
		return rf.ProtocolIsoDep
	case 0b10:
		return rf.ProtocolNfcDep
	default:
		return rf.ProtocolUndetermined
	}
}

// handleIncomingPollCommand implements the listen-mode side of
// discovery (spec.md §4.4.1, §4.4.6): observing a peer's poll command
// always yields a polling-loop notification, but a listen-mode poll
// response is withheld entirely while Passive Observe Mode is enabled
// (invariant I5).
func (c *Controller) handleIncomingPollCommand(pkt rf.Packet) {
	if c.State.RfState.Kind != RfDiscovery {
		return
	}
	cmd, err := rf.DecodePollCommand(pkt.Body)
	if err != nil {
		c.log.Warn("malformed RF poll command", zap.Error(err))
		return
	}

	c.emitPollingLoopFrame(cmd.Technology)

	if c.State.PassiveObserveMode == PassiveObserveEnabled {
		return
	}
	if !c.hasListenEntry(cmd.Technology) {
		return
	}

	resp := rf.NfcAPollResponse{IntProtocol: 0b01, NFCID1: c.nfcid1()}
	c.sendRF(pkt.Sender, rf.KindNfcAPollResponse, rf.EncodeNfcAPollResponse(resp))
}

func (c *Controller) handleIncomingPollResponse(pkt rf.Packet) {
	if c.State.RfState.Kind != RfDiscovery {
		return
	}
	resp, err := rf.DecodeNfcAPollResponse(pkt.Body)
	if err != nil {
		c.log.Warn("malformed RF poll response", zap.Error(err))
		return
	}

	c.State.AddPollResponse(RfPollResponse{
		ID:                        pkt.Sender,
		RFProtocol:                uint8(protocolFromIntProtocol(resp.IntProtocol)),
		RFTechnology:              rf.NfcAPassivePollMode,
		RFTechSpecificParameters: resp.NFCID1,
	})
}

// defaultRatsResponse is this controller's own canned RATS response
// when acting as a listen-mode target (spec.md §8 scenario 3 uses the
// same bytes for the symmetric poll-mode case).
var defaultRatsResponse = []byte{0x78, 0x80, 0x70, 0x02}

func (c *Controller) handleIncomingSelectCommand(pkt rf.Packet) {
	st := c.State.RfState
	switch st.Kind {
	case RfDiscovery:
		iface := c.State.selectInterface(uint8(rf.ProtocolIsoDep), false)
		c.sendRF(pkt.Sender, rf.KindT4atSelectResponse,
			rf.EncodeT4atSelectResponse(rf.T4atSelectResponse{RatsResponse: defaultRatsResponse}))
		c.State.RfActivationParameters = defaultRatsResponse
		c.State.RfState = RfState{
			Kind:          RfListenActive,
			PeerID:        pkt.Sender,
			RFDiscoveryID: 1,
			RFInterface:   iface,
			RFTechnology:  rf.NfcAPassivePollMode,
			RFProtocol:    uint8(rf.ProtocolIsoDep),
		}
		c.emitIntfActivatedNtf()

	case RfListenSleep:
		if st.PeerID != pkt.Sender {
			return
		}
		c.State.RfState = RfState{
			Kind:          RfListenActive,
			PeerID:        st.PeerID,
			RFDiscoveryID: st.RFDiscoveryID,
			RFInterface:   st.RFInterface,
			RFTechnology:  st.RFTechnology,
			RFProtocol:    st.RFProtocol,
		}

	default:
	}
}

func (c *Controller) handleIncomingSelectResponse(pkt rf.Packet) {
	st := c.State.RfState
	if st.Kind != RfWaitForSelectResponse || st.PeerID != pkt.Sender {
		return
	}
	resp, err := rf.DecodeT4atSelectResponse(pkt.Body)
	if err != nil {
		c.log.Warn("malformed RF select response", zap.Error(err))
		return
	}

	c.State.RfActivationParameters = resp.RatsResponse
	c.State.RfState = RfState{
		Kind:          RfPollActive,
		PeerID:        st.PeerID,
		RFDiscoveryID: st.RFDiscoveryID,
		RFInterface:   st.RFInterface,
		RFTechnology:  st.RFTechnology,
		RFProtocol:    st.RFProtocol,
	}
	c.emitIntfActivatedNtf()
}

func (c *Controller) handleIncomingDeactivateNotification(pkt rf.Packet) {
	st := c.State.RfState
	switch st.Kind {
	case RfPollActive, RfListenActive, RfWaitForSelectResponse, RfListenSleep:
	default:
		return
	}
	if st.PeerID != pkt.Sender {
		return
	}

	notif, err := rf.DecodeDeactivateNotification(pkt.Body)
	if err != nil {
		c.log.Warn("malformed RF deactivate notification", zap.Error(err))
		return
	}

	switch notif.Type {
	case rf.DeactToIdleMode:
		c.State.RfState = RfState{Kind: RfIdle}
	case rf.DeactToSleepMode, rf.DeactToSleepAfMode:
		c.State.RfState = RfState{Kind: RfListenSleep, PeerID: pkt.Sender}
	case rf.DeactToDiscovery:
		c.State.RfState = RfState{Kind: RfDiscovery}
	default:
		c.State.RfState = RfState{Kind: RfIdle}
	}

	c.writeNCI(nci.BuildControlPacket(ncitransport.MTNotification, nci.GIDRF, nci.OIDRfDeactivate,
		nci.RfDeactivateNtf{Type: uint8(notif.Type), Reason: uint8(notif.Reason)}.Encode()))
}

func (c *Controller) handleIncomingData(pkt rf.Packet) {
	st := c.State.RfState
	if (st.Kind != RfPollActive && st.Kind != RfListenActive) || st.PeerID != pkt.Sender {
		return
	}
	data, err := rf.DecodeData(pkt.Body)
	if err != nil {
		c.log.Warn("malformed RF data frame", zap.Error(err))
		return
	}
	c.writeNCI(nci.BuildDataPacket(ConnStaticRF, data.Payload))
}
