package controller

import (
	"bytes"
	"time"

	"go.uber.org/zap"

	"github.com/casimir-nfc/casimir/internal/nci"
	"github.com/casimir-nfc/casimir/internal/nciparam"
	"github.com/casimir-nfc/casimir/internal/ncitransport"
	"github.com/casimir-nfc/casimir/internal/rf"
)

// TechAndMode bit layout: bit 7 selects listen mode, bits 1..0 select
// the technology within that mode (spec.md §4.4.3/§4.4.4).
const modeListenBit uint8 = 0x80

const (
	techModeListenA uint8 = modeListenBit | uint8(rf.NfcAPassivePollMode)
	techModeListenB uint8 = modeListenBit | uint8(rf.NfcBPassivePollMode)
	techModeListenF uint8 = modeListenBit | uint8(rf.NfcFPassivePollMode)
)

func pollTechnology(techAndMode uint8) (rf.Technology, bool) {
	if techAndMode&modeListenBit != 0 {
		return 0, false
	}
	switch techAndMode {
	case uint8(rf.NfcAPassivePollMode), uint8(rf.NfcBPassivePollMode), uint8(rf.NfcFPassivePollMode), uint8(rf.NfcVPassivePollMode):
		return rf.Technology(techAndMode), true
	default:
		return 0, false
	}
}

func listenTechnology(techAndMode uint8) (rf.Technology, bool) {
	if techAndMode&modeListenBit == 0 {
		return 0, false
	}
	tech := techAndMode &^ modeListenBit
	switch tech {
	case uint8(rf.NfcAPassivePollMode), uint8(rf.NfcBPassivePollMode), uint8(rf.NfcFPassivePollMode):
		return rf.Technology(tech), true
	default:
		return 0, false
	}
}

func pollingFrameType(tech rf.Technology) (nci.PollingLoopFrameType, bool) {
	switch tech {
	case rf.NfcAPassivePollMode:
		return nci.PollingFrameReqa, true
	case rf.NfcBPassivePollMode:
		return nci.PollingFrameReqb, true
	case rf.NfcFPassivePollMode:
		return nci.PollingFrameReqf, true
	case rf.NfcVPassivePollMode:
		return nci.PollingFrameReqv, true
	default:
		return 0, false
	}
}

// runDiscoveryTick implements spec.md §4.4.3 steps 1-2: clear the
// current poll window and broadcast one RF POLL_COMMAND per
// passive-poll discover_configuration entry, then arm the 200ms
// response window.
func (c *Controller) runDiscoveryTick() {
	if c.State.RfState.Kind != RfDiscovery {
		return
	}

	c.State.RfPollResponses = nil
	for _, entry := range c.State.DiscoverConfiguration {
		tech, ok := pollTechnology(entry.TechAndMode)
		if !ok {
			continue
		}
		c.sendRF(rf.Broadcast, rf.KindPollCommand, rf.EncodePollCommand(rf.PollCommand{Technology: tech}))
		c.emitPollingLoopFrame(tech)
	}

	if c.windowTimer != nil {
		c.windowTimer.Stop()
	}
	c.windowTimer = time.NewTimer(discoveryWindow)
}

// closeDiscoveryWindow implements spec.md §4.4.3 steps 4-6: evaluate
// what arrived during the window and branch on the candidate count.
func (c *Controller) closeDiscoveryWindow() {
	c.windowTimer = nil
	if c.State.RfState.Kind != RfDiscovery {
		return
	}

	switch len(c.State.RfPollResponses) {
	case 0:
		return
	case 1:
		c.selectSinglePeer(c.State.RfPollResponses[0])
	default:
		c.enterWaitForHostSelect()
	}
}

func (c *Controller) selectSinglePeer(p RfPollResponse) {
	iface := c.State.selectInterface(p.RFProtocol, true)
	c.State.RfState = RfState{
		Kind:          RfWaitForSelectResponse,
		PeerID:        p.ID,
		RFDiscoveryID: 1,
		RFInterface:   iface,
		RFTechnology:  p.RFTechnology,
		RFProtocol:    p.RFProtocol,
	}
	c.sendProtocolSelect(p.ID, iface, p.RFProtocol)
}

func (c *Controller) enterWaitForHostSelect() {
	for i, p := range c.State.RfPollResponses {
		tag := nci.MoreNotification
		if i == len(c.State.RfPollResponses)-1 {
			tag = nci.LastNotification
		}
		ntf := nci.RfDiscoverNtf{
			RFDiscoveryID:        uint8(i + 1),
			RFProtocol:           p.RFProtocol,
			TechAndMode:          uint8(p.RFTechnology),
			RFTechSpecificParams: p.RFTechSpecificParameters,
			NotificationTag:      tag,
		}
		c.writeNCI(nci.BuildControlPacket(ncitransport.MTNotification, nci.GIDRF, nci.OIDRfDiscover, ntf.Encode()))
	}
	c.State.RfState = RfState{Kind: RfWaitForHostSelect}
}

// sendProtocolSelect emits the protocol-appropriate SELECT frame to
// peer over RF (spec.md §4.4.1/§4.4.4). Only the ISO-DEP/Frame family
// is modeled; an unmapped interface is logged and dropped.
func (c *Controller) sendProtocolSelect(peer uint16, iface nci.RFInterface, protocol uint8) {
	switch iface {
	case nci.RFInterfaceIsoDep, nci.RFInterfaceFrame:
		c.sendRF(peer, rf.KindT4atSelectCommand, rf.EncodeT4atSelectCommand(rf.T4atSelectCommand{Param: 0x00}))
	default:
		c.log.Warn("no protocol SELECT encoding for interface", zap.Uint8("rf_interface", uint8(iface)))
	}
}

// selectInterface implements spec.md §4.4.4: the first discover_map
// entry matching protocol and enabling pollMode's direction wins;
// otherwise the [NCI] §6.2 default for the protocol.
func (s *State) selectInterface(protocol uint8, pollMode bool) nci.RFInterface {
	const (
		modeBitPoll   = 1 << 0
		modeBitListen = 1 << 1
	)
	want := uint8(modeBitListen)
	if pollMode {
		want = modeBitPoll
	}

	for _, m := range s.DiscoverMap {
		if m.RFProtocol == protocol && m.ModeMask&want != 0 {
			return m.RFInterface
		}
	}

	switch rf.Protocol(protocol) {
	case rf.ProtocolIsoDep:
		return nci.RFInterfaceIsoDep
	case rf.ProtocolNfcDep:
		return nci.RFInterfaceNfcDep
	case rf.ProtocolNdef:
		if pollMode {
			return nci.RFInterfaceNdef
		}
		return nci.RFInterfaceFrame
	default:
		return nci.RFInterfaceFrame
	}
}

// emitIntfActivatedNtf sends RF_INTF_ACTIVATED_NTF for the controller's
// current rf_state, per spec.md §4.4.1's PollActive/ListenActive entry
// side effects.
func (c *Controller) emitIntfActivatedNtf() {
	st := c.State.RfState
	ntf := nci.RfIntfActivatedNtf{
		RFDiscoveryID:        st.RFDiscoveryID,
		RFInterface:          st.RFInterface,
		RFProtocol:           st.RFProtocol,
		TechAndMode:          uint8(st.RFTechnology),
		MaxDataPayload:       255,
		InitialCredits:       1,
		RFTechSpecificParams: nil,
		ActivationParams:     c.State.RfActivationParameters,
	}
	c.writeNCI(nci.BuildControlPacket(ncitransport.MTNotification, nci.GIDRF, nci.OIDRfIntfActivated, ntf.Encode()))
}

// emitPollingLoopFrame implements spec.md §4.4.6: every poll command
// observed in Discovery — whether this controller transmitted it or a
// peer's poll command was received — yields one ANDROID_POLLING_LOOP_NTF
// frame, unconditional of Passive Observe Mode.
func (c *Controller) emitPollingLoopFrame(tech rf.Technology) {
	frameType, ok := pollingFrameType(tech)
	if !ok {
		return
	}
	elapsed := time.Since(c.State.StartTime)
	ntf := nci.AndroidPollingLoopNtf{
		Frames: []nci.PollingLoopFrame{{
			Type:        frameType,
			TimestampMs: uint32(elapsed.Milliseconds()),
			Gain:        2,
		}},
	}
	c.writeNCI(nci.BuildControlPacket(ncitransport.MTNotification, nci.GIDProprietary, nci.OIDAndroidPollingLoopNtf, ntf.Encode()))
}

var (
	defaultNFCID1      = []byte{0x08, 0x00, 0x00, 0x00}
	pseudoRandomNFCID1 = []byte{0x08, 0xBA, 0x07, 0x63}
)

// nfcid1 implements spec.md §4.4.7: substitute the fixed pseudo-random
// value when LA_NFCID1 is still the default; otherwise return the
// configured value verbatim. The source material flags this
// substitution as a hard-coded stand-in for what should be an actually
// pseudo-random, seed-reproducible value — left as-is here since
// nothing in this spec constrains the NFCID1 beyond its first byte.
func (c *Controller) nfcid1() []byte {
	v, _ := c.State.Config.Get(nciparam.LaNfcid1)
	if bytes.Equal(v, defaultNFCID1) {
		return append([]byte(nil), pseudoRandomNFCID1...)
	}
	return v
}
