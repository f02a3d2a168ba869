package controller

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/casimir-nfc/casimir/internal/nci"
	"github.com/casimir-nfc/casimir/internal/nciparam"
	"github.com/casimir-nfc/casimir/internal/ncitransport"
	"github.com/casimir-nfc/casimir/internal/rf"
)

// handleNCIPacket parses one whole logical NCI packet from the DH and
// routes it. A recognized GID with an unrecognized OID is a
// diagnostic-only event (spec.md §4.4.2); an unrecognized GID entirely
// is unimplemented and fatal to the connection (spec.md §7).
func (c *Controller) handleNCIPacket(raw []byte) error {
	parsed, err := nci.ParsePacket(raw)
	if err != nil {
		return fmt.Errorf("controller: parse nci packet: %w", err)
	}

	if parsed.Header.MT == ncitransport.MTData {
		return c.handleDataPacket(parsed.Header.GIDOrConnID, parsed.Payload)
	}
	if parsed.Header.MT != ncitransport.MTCommand {
		c.log.Warn("ignoring non-command control packet", zap.Uint8("mt", uint8(parsed.Header.MT)))
		return nil
	}

	gid := nci.GID(parsed.Header.GIDOrConnID)
	oid := nci.OID(parsed.Header.OID)

	switch gid {
	case nci.GIDCore:
		return c.dispatchCore(oid, parsed.Payload)
	case nci.GIDRF:
		return c.dispatchRF(oid, parsed.Payload)
	case nci.GIDNFCEE:
		return c.dispatchNFCEE(oid, parsed.Payload)
	case nci.GIDProprietary:
		return c.dispatchProprietary(oid, parsed.Payload)
	default:
		c.log.Error("unimplemented GID, closing connection", zap.Uint8("gid", uint8(gid)), zap.Uint8("oid", uint8(oid)))
		return fmt.Errorf("controller: unimplemented gid 0x%x", uint8(gid))
	}
}

func (c *Controller) dispatchCore(oid nci.OID, payload []byte) error {
	switch oid {
	case nci.OIDCoreReset:
		return c.handleCoreReset(payload)
	case nci.OIDCoreInit:
		return c.handleCoreInit()
	case nci.OIDCoreSetConfig:
		return c.handleCoreSetConfig(payload)
	case nci.OIDCoreGetConfig:
		return c.handleCoreGetConfig(payload)
	case nci.OIDCoreConnCreate:
		return c.handleCoreConnCreate(payload)
	case nci.OIDCoreConnClose:
		return c.handleCoreConnClose(payload)
	default:
		c.log.Warn("unknown CORE OID", zap.Uint8("oid", uint8(oid)))
		return nil
	}
}

func (c *Controller) handleCoreReset(payload []byte) error {
	cmd, err := nci.ParseCoreResetCmd(payload)
	if err != nil {
		return err
	}

	c.State.ResetVolatile()
	configStatus := nci.ConfigKept
	if cmd.ResetType == nci.ResetConfig {
		c.State.Config.ResetToDefaults()
		configStatus = nci.ConfigReset
	}

	c.writeNCI(nci.BuildControlPacket(ncitransport.MTResponse, nci.GIDCore, nci.OIDCoreReset,
		nci.CoreResetRsp{Status: nci.StatusOk}.Encode()))

	ntf := nci.CoreResetNtf{
		Trigger:              nci.TriggerResetCommand,
		ConfigStatus:         configStatus,
		NciVersion:           NCIVersion,
		ManufacturerID:       ManufacturerID,
		ManufacturerSpecific: ManufacturerSpecific,
	}
	c.writeNCI(nci.BuildControlPacket(ncitransport.MTNotification, nci.GIDCore, nci.OIDCoreReset, ntf.Encode()))
	return nil
}

func (c *Controller) handleCoreInit() error {
	rsp := nci.DefaultCoreInitRsp()
	c.writeNCI(nci.BuildControlPacket(ncitransport.MTResponse, nci.GIDCore, nci.OIDCoreInit, rsp.Encode()))
	return nil
}

func (c *Controller) handleCoreSetConfig(payload []byte) error {
	params, err := nci.ParseConfigParams(payload)
	if err != nil {
		return err
	}

	pairs := make(map[nciparam.ID][]byte, len(params))
	for _, p := range params {
		pairs[nciparam.ID(p.ID)] = p.Value
	}
	invalid := c.State.Config.SetAll(pairs)

	status := nci.StatusOk
	invalidIDs := make([]uint8, 0, len(invalid))
	if len(invalid) > 0 {
		status = nci.StatusInvalidParam
		for _, id := range invalid {
			invalidIDs = append(invalidIDs, uint8(id))
		}
	}

	rsp := nci.CoreSetConfigRsp{Status: status, InvalidIDs: invalidIDs}
	c.writeNCI(nci.BuildControlPacket(ncitransport.MTResponse, nci.GIDCore, nci.OIDCoreSetConfig, rsp.Encode()))
	return nil
}

func (c *Controller) handleCoreGetConfig(payload []byte) error {
	ids, err := nci.ParseConfigIDs(payload)
	if err != nil {
		return err
	}

	paramIDs := make([]nciparam.ID, len(ids))
	for i, id := range ids {
		paramIDs[i] = nciparam.ID(id)
	}
	values, missing := c.State.Config.GetAll(paramIDs)

	status := nci.StatusOk
	if len(missing) > 0 {
		status = nci.StatusInvalidParam
	}

	params := make([]nci.ConfigParam, 0, len(paramIDs))
	for _, id := range paramIDs {
		params = append(params, nci.ConfigParam{ID: uint8(id), Value: values[id]})
	}

	rsp := nci.CoreGetConfigRsp{Status: status, Params: params}
	c.writeNCI(nci.BuildControlPacket(ncitransport.MTResponse, nci.GIDCore, nci.OIDCoreGetConfig, rsp.Encode()))
	return nil
}

func (c *Controller) handleCoreConnCreate(payload []byte) error {
	cmd, err := nci.ParseCoreConnCreateCmd(payload)
	if err != nil {
		return err
	}

	var status nci.Status
	var connID uint8
	switch {
	case cmd.DestType != nci.DestRemoteNfcEndpoint:
		status = nci.StatusRejected
	default:
		id, ok := c.State.AllocateConnection(LogicalConnection{
			RFDiscoveryID:  cmd.RFDiscoveryID,
			RFProtocolType: cmd.RFProtocolType,
		})
		if ok {
			status, connID = nci.StatusOk, id
		} else {
			status = nci.StatusRejected
		}
	}

	rsp := nci.CoreConnCreateRsp{Status: status, MaxDataPayload: 255, InitialCredits: 1, ConnID: connID}
	c.writeNCI(nci.BuildControlPacket(ncitransport.MTResponse, nci.GIDCore, nci.OIDCoreConnCreate, rsp.Encode()))
	return nil
}

func (c *Controller) handleCoreConnClose(payload []byte) error {
	cmd, err := nci.ParseCoreConnCloseCmd(payload)
	if err != nil {
		return err
	}

	status := nci.StatusRejected
	if c.State.CloseConnection(cmd.ConnID) {
		status = nci.StatusOk
	}

	c.writeNCI(nci.BuildControlPacket(ncitransport.MTResponse, nci.GIDCore, nci.OIDCoreConnClose,
		nci.CoreConnCloseRsp{Status: status}.Encode()))
	return nil
}

func (c *Controller) dispatchRF(oid nci.OID, payload []byte) error {
	switch oid {
	case nci.OIDRfDiscoverMap:
		return c.handleRfDiscoverMap(payload)
	case nci.OIDRfDiscover:
		return c.handleRfDiscover(payload)
	case nci.OIDRfDiscoverSelect:
		return c.handleRfDiscoverSelect(payload)
	case nci.OIDRfDeactivate:
		return c.handleRfDeactivate(payload)
	default:
		c.log.Warn("unknown RF OID", zap.Uint8("oid", uint8(oid)))
		return nil
	}
}

func (c *Controller) handleRfDiscoverMap(payload []byte) error {
	entries, err := nci.ParseRfDiscoverMapCmd(payload)
	if err != nil {
		return err
	}
	c.State.DiscoverMap = entries
	c.writeNCI(nci.BuildControlPacket(ncitransport.MTResponse, nci.GIDRF, nci.OIDRfDiscoverMap,
		nci.RfDiscoverMapRsp{Status: nci.StatusOk}.Encode()))
	return nil
}

func (c *Controller) handleRfDiscover(payload []byte) error {
	entries, err := nci.ParseRfDiscoverCmd(payload)
	if err != nil {
		return err
	}

	status := nci.StatusSemanticError
	if c.State.RfState.Kind == RfIdle {
		status = nci.StatusOk
		c.State.DiscoverConfiguration = entries
		c.State.RfState = RfState{Kind: RfDiscovery}
	}

	c.writeNCI(nci.BuildControlPacket(ncitransport.MTResponse, nci.GIDRF, nci.OIDRfDiscover,
		nci.RfDiscoverRsp{Status: status}.Encode()))
	return nil
}

func (c *Controller) handleRfDiscoverSelect(payload []byte) error {
	cmd, err := nci.ParseRfDiscoverSelectCmd(payload)
	if err != nil {
		return err
	}

	status := nci.StatusSemanticError
	if c.State.RfState.Kind == RfWaitForHostSelect {
		idx := int(cmd.RFDiscoveryID) - 1
		switch {
		case idx < 0 || idx >= len(c.State.RfPollResponses):
			status = nci.StatusInvalidParam
		case c.State.RfPollResponses[idx].RFProtocol != cmd.RFProtocol:
			status = nci.StatusInvalidParam
		default:
			status = nci.StatusOk
		}
	}

	c.writeNCI(nci.BuildControlPacket(ncitransport.MTResponse, nci.GIDRF, nci.OIDRfDiscoverSelect,
		nci.RfDiscoverSelectRsp{Status: status}.Encode()))

	if status == nci.StatusOk {
		p := c.State.RfPollResponses[cmd.RFDiscoveryID-1]
		c.State.RfState = RfState{
			Kind:          RfWaitForSelectResponse,
			PeerID:        p.ID,
			RFDiscoveryID: cmd.RFDiscoveryID,
			RFInterface:   cmd.RFInterface,
			RFTechnology:  p.RFTechnology,
			RFProtocol:    p.RFProtocol,
		}
		c.sendProtocolSelect(p.ID, cmd.RFInterface, p.RFProtocol)
	}
	return nil
}

func (c *Controller) handleRfDeactivate(payload []byte) error {
	cmd, err := nci.ParseRfDeactivateCmd(payload)
	if err != nil {
		return err
	}

	kind := c.State.RfState.Kind
	if kind != RfPollActive && kind != RfListenActive {
		c.writeNCI(nci.BuildControlPacket(ncitransport.MTResponse, nci.GIDRF, nci.OIDRfDeactivate,
			nci.RfDeactivateRsp{Status: nci.StatusSemanticError}.Encode()))
		return nil
	}

	prev := c.State.RfState
	dtype := rf.DeactivationType(cmd.Type)

	// Tie-break rule (spec.md §4.4.1): commit the transition before the
	// RF deactivate frame goes out, so a select response racing in for
	// the departing peer lands after rf_state has already moved on.
	switch dtype {
	case rf.DeactToIdleMode:
		c.State.RfState = RfState{Kind: RfIdle}
	case rf.DeactToSleepMode, rf.DeactToSleepAfMode:
		if kind == RfPollActive {
			c.State.RfState = RfState{Kind: RfWaitForHostSelect}
		} else {
			c.State.RfState = RfState{Kind: RfListenSleep, PeerID: prev.PeerID}
		}
	case rf.DeactToDiscovery:
		c.State.RfState = RfState{Kind: RfDiscovery}
	default:
		c.writeNCI(nci.BuildControlPacket(ncitransport.MTResponse, nci.GIDRF, nci.OIDRfDeactivate,
			nci.RfDeactivateRsp{Status: nci.StatusSemanticError}.Encode()))
		return nil
	}

	c.writeNCI(nci.BuildControlPacket(ncitransport.MTResponse, nci.GIDRF, nci.OIDRfDeactivate,
		nci.RfDeactivateRsp{Status: nci.StatusOk}.Encode()))
	c.writeNCI(nci.BuildControlPacket(ncitransport.MTNotification, nci.GIDRF, nci.OIDRfDeactivate,
		nci.RfDeactivateNtf{Type: cmd.Type, Reason: uint8(rf.ReasonDhRequest)}.Encode()))

	c.sendRF(prev.PeerID, rf.KindDeactivateNotif, rf.EncodeDeactivateNotification(rf.DeactivateNotification{
		Reason:     rf.ReasonEndpointRequest,
		Type:       dtype,
		Technology: prev.RFTechnology,
		Protocol:   rf.Protocol(prev.RFProtocol),
	}))
	return nil
}

const (
	nfceeHCIID         uint8 = 0x86
	nfceeStatusDisabled uint8 = 0x01
	nfceeHostInfoEntry uint8 = 0xC0
)

// cannedHCIProbeData is the HCI probe frame emitted on the static HCI
// connection when the NFCEE is enabled, standing in for the real
// silicon's ETSI HCI admin-pipe handshake.
var cannedHCIProbeData = []byte{0x81, 0x03, 0x00}

func (c *Controller) dispatchNFCEE(oid nci.OID, payload []byte) error {
	switch oid {
	case nci.OIDNfceeDiscover:
		return c.handleNfceeDiscover()
	case nci.OIDNfceeModeSet:
		return c.handleNfceeModeSet(payload)
	default:
		c.log.Warn("unknown NFCEE OID", zap.Uint8("oid", uint8(oid)))
		return nil
	}
}

func (c *Controller) handleNfceeDiscover() error {
	rsp := nci.NfceeDiscoverRsp{
		Status:      nci.StatusOk,
		NfceeID:     nfceeHCIID,
		EeStatus:    nfceeStatusDisabled,
		InfoEntries: []byte{nfceeHostInfoEntry},
	}
	c.writeNCI(nci.BuildControlPacket(ncitransport.MTResponse, nci.GIDNFCEE, nci.OIDNfceeDiscover, rsp.Encode()))
	return nil
}

func (c *Controller) handleNfceeModeSet(payload []byte) error {
	cmd, err := nci.ParseNfceeModeSetCmd(payload)
	if err != nil {
		return err
	}

	enable := cmd.Mode != 0
	if enable {
		c.State.NfceeState = NfceeEnabled
	} else {
		c.State.NfceeState = NfceeDisabled
	}

	c.writeNCI(nci.BuildControlPacket(ncitransport.MTResponse, nci.GIDNFCEE, nci.OIDNfceeModeSet,
		nci.NfceeModeSetRsp{Status: nci.StatusOk}.Encode()))

	if !enable {
		return nil
	}

	c.writeNCI(nci.BuildDataPacket(ConnStaticHCI, cannedHCIProbeData))

	ntf := nci.RfNfceeDiscoveryReqNtf{
		Entries: []nci.NfceeDiscoveryReqEntry{
			{Type: 0x01, NfceeID: nfceeHCIID, Protocol: uint8(rf.ProtocolT3T), TechAndMode: techModeListenF},
			{Type: 0x01, NfceeID: nfceeHCIID, Protocol: uint8(rf.ProtocolIsoDep), TechAndMode: techModeListenA},
			{Type: 0x01, NfceeID: nfceeHCIID, Protocol: uint8(rf.ProtocolIsoDep), TechAndMode: techModeListenB},
		},
	}
	c.writeNCI(nci.BuildControlPacket(ncitransport.MTNotification, nci.GIDRF, nci.OIDRfNfceeDiscoveryReq, ntf.Encode()))
	return nil
}

func (c *Controller) dispatchProprietary(oid nci.OID, payload []byte) error {
	switch oid {
	case nci.OIDAndroidGetCaps:
		rsp := nci.AndroidGetCapsRsp{Status: nci.StatusOk, PassiveObserveMode: true, PollingFrameNotif: true}
		c.writeNCI(nci.BuildControlPacket(ncitransport.MTResponse, nci.GIDProprietary, nci.OIDAndroidGetCaps, rsp.Encode()))
		return nil

	case nci.OIDAndroidPassiveObserveMode:
		cmd, err := nci.ParseAndroidPassiveObserveModeCmd(payload)
		if err != nil {
			return err
		}
		if cmd.Enable {
			c.State.PassiveObserveMode = PassiveObserveEnabled
		} else {
			c.State.PassiveObserveMode = PassiveObserveDisabled
		}
		c.writeNCI(nci.BuildControlPacket(ncitransport.MTResponse, nci.GIDProprietary, nci.OIDAndroidPassiveObserveMode,
			nci.AndroidPassiveObserveModeRsp{Status: nci.StatusOk}.Encode()))
		return nil

	case nci.OIDAndroidQueryPassiveObserveMode:
		rsp := nci.AndroidQueryPassiveObserveModeRsp{
			Status: nci.StatusOk,
			Enable: c.State.PassiveObserveMode == PassiveObserveEnabled,
		}
		c.writeNCI(nci.BuildControlPacket(ncitransport.MTResponse, nci.GIDProprietary, nci.OIDAndroidQueryPassiveObserveMode,
			rsp.Encode()))
		return nil

	default:
		c.log.Warn("unknown proprietary OID", zap.Uint8("oid", uint8(oid)))
		return nil
	}
}
