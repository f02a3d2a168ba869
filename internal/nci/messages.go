package nci

import (
	"encoding/binary"
	"fmt"
)

// --- CORE_RESET ---

type CoreResetCmd struct {
	ResetType ResetType
}

func ParseCoreResetCmd(b []byte) (CoreResetCmd, error) {
	if len(b) < 1 {
		return CoreResetCmd{}, fmt.Errorf("nci: CORE_RESET_CMD too short")
	}
	return CoreResetCmd{ResetType: ResetType(b[0])}, nil
}

type CoreResetRsp struct {
	Status Status
}

func (m CoreResetRsp) Encode() []byte { return []byte{byte(m.Status)} }

type CoreResetNtf struct {
	Trigger              ResetTrigger
	ConfigStatus         ConfigStatus
	NciVersion           uint8
	ManufacturerID       uint8
	ManufacturerSpecific []byte
}

func (m CoreResetNtf) Encode() []byte {
	out := []byte{byte(m.Trigger), byte(m.ConfigStatus), m.NciVersion, m.ManufacturerID, byte(len(m.ManufacturerSpecific))}
	return append(out, m.ManufacturerSpecific...)
}

// --- CORE_INIT ---

// CoreInitRsp advertises the static feature vector spec.md §4.4.2
// names: HCI enabled, active-communication enabled, routing modes
// enabled, off-states partial, plus the supported RF interfaces and
// resource limits.
type CoreInitRsp struct {
	Status               Status
	Features             uint32
	RFInterfaces         []RFInterface
	MaxLogicalConnections uint8
	MaxRoutingTableSize   uint16
	MaxCtrlPayload        uint8
	MaxDataPayload        uint8
	NumberOfCredits       uint8
	MaxNfcvRfFrameSize    uint16
}

const (
	FeatureHCI              uint32 = 1 << 0
	FeatureActiveComm       uint32 = 1 << 1
	FeatureRoutingModes     uint32 = 1 << 2
	FeatureOffStatesPartial uint32 = 1 << 3
)

// DefaultCoreInitRsp returns the fixed feature/limit vector spec.md
// §4.4.2 requires for CORE_INIT_CMD.
func DefaultCoreInitRsp() CoreInitRsp {
	return CoreInitRsp{
		Status:                StatusOk,
		Features:              FeatureHCI | FeatureActiveComm | FeatureRoutingModes | FeatureOffStatesPartial,
		RFInterfaces:          []RFInterface{RFInterfaceFrame, RFInterfaceIsoDep, RFInterfaceNfcDep, RFInterfaceNfceeDirect},
		MaxLogicalConnections: 2,
		MaxRoutingTableSize:   512,
		MaxCtrlPayload:        255,
		MaxDataPayload:        255,
		NumberOfCredits:       1,
		MaxNfcvRfFrameSize:    512,
	}
}

func (m CoreInitRsp) Encode() []byte {
	out := []byte{byte(m.Status)}
	feat := make([]byte, 4)
	binary.LittleEndian.PutUint32(feat, m.Features)
	out = append(out, feat...)
	out = append(out, byte(len(m.RFInterfaces)))
	for _, i := range m.RFInterfaces {
		out = append(out, byte(i))
	}
	out = append(out, m.MaxLogicalConnections)
	rts := make([]byte, 2)
	binary.LittleEndian.PutUint16(rts, m.MaxRoutingTableSize)
	out = append(out, rts...)
	out = append(out, m.MaxCtrlPayload, m.MaxDataPayload, m.NumberOfCredits)
	nfcv := make([]byte, 2)
	binary.LittleEndian.PutUint16(nfcv, m.MaxNfcvRfFrameSize)
	return append(out, nfcv...)
}

// --- CORE_SET_CONFIG / CORE_GET_CONFIG ---

type ConfigParam struct {
	ID    uint8
	Value []byte
}

func ParseConfigParams(b []byte) ([]ConfigParam, error) {
	if len(b) < 1 {
		return nil, fmt.Errorf("nci: config param list too short")
	}
	n := int(b[0])
	offset := 1
	out := make([]ConfigParam, 0, n)
	for i := 0; i < n; i++ {
		if offset+2 > len(b) {
			return nil, fmt.Errorf("nci: config param %d truncated", i)
		}
		id := b[offset]
		l := int(b[offset+1])
		offset += 2
		if offset+l > len(b) {
			return nil, fmt.Errorf("nci: config param %d value truncated", i)
		}
		out = append(out, ConfigParam{ID: id, Value: append([]byte(nil), b[offset:offset+l]...)})
		offset += l
	}
	return out, nil
}

func ParseConfigIDs(b []byte) ([]uint8, error) {
	if len(b) < 1 {
		return nil, fmt.Errorf("nci: config id list too short")
	}
	n := int(b[0])
	if len(b) < 1+n {
		return nil, fmt.Errorf("nci: config id list truncated")
	}
	return append([]uint8(nil), b[1:1+n]...), nil
}

type CoreSetConfigRsp struct {
	Status     Status
	InvalidIDs []uint8
}

func (m CoreSetConfigRsp) Encode() []byte {
	out := []byte{byte(m.Status), byte(len(m.InvalidIDs))}
	return append(out, m.InvalidIDs...)
}

type CoreGetConfigRsp struct {
	Status Status
	Params []ConfigParam
}

func (m CoreGetConfigRsp) Encode() []byte {
	out := []byte{byte(m.Status), byte(len(m.Params))}
	for _, p := range m.Params {
		out = append(out, p.ID, byte(len(p.Value)))
		out = append(out, p.Value...)
	}
	return out
}

// --- CORE_CONN_CREATE / CORE_CONN_CLOSE / CORE_CONN_CREDITS_NTF ---

type CoreConnCreateCmd struct {
	DestType        DestinationType
	RFDiscoveryID   uint8
	RFProtocolType  uint8
}

func ParseCoreConnCreateCmd(b []byte) (CoreConnCreateCmd, error) {
	if len(b) < 4 {
		return CoreConnCreateCmd{}, fmt.Errorf("nci: CORE_CONN_CREATE_CMD too short")
	}
	// byte0=dest type, byte1=param length, byte2..=params (rf_discovery_id, rf_protocol)
	paramLen := int(b[1])
	if len(b) < 2+paramLen || paramLen < 2 {
		return CoreConnCreateCmd{}, fmt.Errorf("nci: CORE_CONN_CREATE_CMD params truncated")
	}
	return CoreConnCreateCmd{
		DestType:       DestinationType(b[0]),
		RFDiscoveryID:  b[2],
		RFProtocolType: b[3],
	}, nil
}

type CoreConnCreateRsp struct {
	Status         Status
	MaxDataPayload uint8
	InitialCredits uint8
	ConnID         uint8
}

func (m CoreConnCreateRsp) Encode() []byte {
	return []byte{byte(m.Status), m.MaxDataPayload, m.InitialCredits, m.ConnID}
}

type CoreConnCloseCmd struct {
	ConnID uint8
}

func ParseCoreConnCloseCmd(b []byte) (CoreConnCloseCmd, error) {
	if len(b) < 1 {
		return CoreConnCloseCmd{}, fmt.Errorf("nci: CORE_CONN_CLOSE_CMD too short")
	}
	return CoreConnCloseCmd{ConnID: b[0]}, nil
}

type CoreConnCloseRsp struct {
	Status Status
}

func (m CoreConnCloseRsp) Encode() []byte { return []byte{byte(m.Status)} }

type CoreConnCreditsNtf struct {
	ConnID  uint8
	Credits uint8
}

func (m CoreConnCreditsNtf) Encode() []byte {
	return []byte{1, m.ConnID, m.Credits}
}

// --- RF_DISCOVER_MAP ---

type MappingEntry struct {
	RFProtocol uint8
	ModeMask   uint8 // bit0=poll, bit1=listen
	RFInterface RFInterface
}

func ParseRfDiscoverMapCmd(b []byte) ([]MappingEntry, error) {
	if len(b) < 1 {
		return nil, fmt.Errorf("nci: RF_DISCOVER_MAP_CMD too short")
	}
	n := int(b[0])
	if len(b) < 1+3*n {
		return nil, fmt.Errorf("nci: RF_DISCOVER_MAP_CMD truncated")
	}
	out := make([]MappingEntry, 0, n)
	off := 1
	for i := 0; i < n; i++ {
		out = append(out, MappingEntry{RFProtocol: b[off], ModeMask: b[off+1], RFInterface: RFInterface(b[off+2])})
		off += 3
	}
	return out, nil
}

type RfDiscoverMapRsp struct{ Status Status }

func (m RfDiscoverMapRsp) Encode() []byte { return []byte{byte(m.Status)} }

// --- RF_DISCOVER ---

type DiscoverConfigEntry struct {
	TechAndMode uint8
	Frequency   uint8
}

func ParseRfDiscoverCmd(b []byte) ([]DiscoverConfigEntry, error) {
	if len(b) < 1 {
		return nil, fmt.Errorf("nci: RF_DISCOVER_CMD too short")
	}
	n := int(b[0])
	if len(b) < 1+2*n {
		return nil, fmt.Errorf("nci: RF_DISCOVER_CMD truncated")
	}
	out := make([]DiscoverConfigEntry, 0, n)
	off := 1
	for i := 0; i < n; i++ {
		out = append(out, DiscoverConfigEntry{TechAndMode: b[off], Frequency: b[off+1]})
		off += 2
	}
	return out, nil
}

type RfDiscoverRsp struct{ Status Status }

func (m RfDiscoverRsp) Encode() []byte { return []byte{byte(m.Status)} }

type RfDiscoverNtf struct {
	RFDiscoveryID       uint8
	RFProtocol          uint8
	TechAndMode         uint8
	RFTechSpecificParams []byte
	NotificationTag     NotificationTag
}

func (m RfDiscoverNtf) Encode() []byte {
	out := []byte{m.RFDiscoveryID, m.RFProtocol, m.TechAndMode, byte(len(m.RFTechSpecificParams))}
	out = append(out, m.RFTechSpecificParams...)
	return append(out, byte(m.NotificationTag))
}

// --- RF_DISCOVER_SELECT ---

type RfDiscoverSelectCmd struct {
	RFDiscoveryID uint8
	RFProtocol    uint8
	RFInterface   RFInterface
}

func ParseRfDiscoverSelectCmd(b []byte) (RfDiscoverSelectCmd, error) {
	if len(b) < 3 {
		return RfDiscoverSelectCmd{}, fmt.Errorf("nci: RF_DISCOVER_SELECT_CMD too short")
	}
	return RfDiscoverSelectCmd{RFDiscoveryID: b[0], RFProtocol: b[1], RFInterface: RFInterface(b[2])}, nil
}

type RfDiscoverSelectRsp struct{ Status Status }

func (m RfDiscoverSelectRsp) Encode() []byte { return []byte{byte(m.Status)} }

// --- RF_INTF_ACTIVATED_NTF ---

type RfIntfActivatedNtf struct {
	RFDiscoveryID        uint8
	RFInterface          RFInterface
	RFProtocol           uint8
	TechAndMode          uint8
	MaxDataPayload        uint8
	InitialCredits        uint8
	RFTechSpecificParams []byte
	ActivationParams     []byte
}

func (m RfIntfActivatedNtf) Encode() []byte {
	out := []byte{m.RFDiscoveryID, byte(m.RFInterface), m.RFProtocol, m.TechAndMode, m.MaxDataPayload, m.InitialCredits,
		byte(len(m.RFTechSpecificParams))}
	out = append(out, m.RFTechSpecificParams...)
	out = append(out, byte(len(m.ActivationParams)))
	return append(out, m.ActivationParams...)
}

// --- RF_DEACTIVATE ---

type RfDeactivateCmd struct {
	Type uint8
}

func ParseRfDeactivateCmd(b []byte) (RfDeactivateCmd, error) {
	if len(b) < 1 {
		return RfDeactivateCmd{}, fmt.Errorf("nci: RF_DEACTIVATE_CMD too short")
	}
	return RfDeactivateCmd{Type: b[0]}, nil
}

type RfDeactivateRsp struct{ Status Status }

func (m RfDeactivateRsp) Encode() []byte { return []byte{byte(m.Status)} }

type RfDeactivateNtf struct {
	Type   uint8
	Reason uint8
}

func (m RfDeactivateNtf) Encode() []byte { return []byte{m.Type, m.Reason} }

// --- NFCEE_DISCOVER / NFCEE_MODE_SET ---

type NfceeDiscoverRsp struct {
	Status      Status
	NfceeID     uint8
	EeStatus    uint8
	InfoEntries []byte
}

func (m NfceeDiscoverRsp) Encode() []byte {
	out := []byte{byte(m.Status), 1, m.NfceeID, m.EeStatus, byte(len(m.InfoEntries))}
	return append(out, m.InfoEntries...)
}

type NfceeModeSetCmd struct {
	NfceeID uint8
	Mode    uint8 // 0=disable, 1=enable
}

func ParseNfceeModeSetCmd(b []byte) (NfceeModeSetCmd, error) {
	if len(b) < 2 {
		return NfceeModeSetCmd{}, fmt.Errorf("nci: NFCEE_MODE_SET_CMD too short")
	}
	return NfceeModeSetCmd{NfceeID: b[0], Mode: b[1]}, nil
}

type NfceeModeSetRsp struct{ Status Status }

func (m NfceeModeSetRsp) Encode() []byte { return []byte{byte(m.Status)} }

type NfceeDiscoveryReqEntry struct {
	Type        uint8
	NfceeID     uint8
	Protocol    uint8
	TechAndMode uint8
}

type RfNfceeDiscoveryReqNtf struct {
	Entries []NfceeDiscoveryReqEntry
}

func (m RfNfceeDiscoveryReqNtf) Encode() []byte {
	out := []byte{byte(len(m.Entries))}
	for _, e := range m.Entries {
		out = append(out, e.Type, e.NfceeID, e.Protocol, e.TechAndMode)
	}
	return out
}

// --- Android proprietary ---

type AndroidGetCapsRsp struct {
	Status               Status
	PassiveObserveMode   bool
	PollingFrameNotif    bool
}

func (m AndroidGetCapsRsp) Encode() []byte {
	flags := uint8(0)
	if m.PassiveObserveMode {
		flags |= 1
	}
	if m.PollingFrameNotif {
		flags |= 2
	}
	return []byte{byte(m.Status), flags}
}

type AndroidPassiveObserveModeCmd struct {
	Enable bool
}

func ParseAndroidPassiveObserveModeCmd(b []byte) (AndroidPassiveObserveModeCmd, error) {
	if len(b) < 1 {
		return AndroidPassiveObserveModeCmd{}, fmt.Errorf("nci: PASSIVE_OBSERVE_MODE too short")
	}
	return AndroidPassiveObserveModeCmd{Enable: b[0] != 0}, nil
}

type AndroidPassiveObserveModeRsp struct{ Status Status }

func (m AndroidPassiveObserveModeRsp) Encode() []byte { return []byte{byte(m.Status)} }

type AndroidQueryPassiveObserveModeRsp struct {
	Status Status
	Enable bool
}

func (m AndroidQueryPassiveObserveModeRsp) Encode() []byte {
	e := byte(0)
	if m.Enable {
		e = 1
	}
	return []byte{byte(m.Status), e}
}

// PollingLoopFrameType mirrors spec.md §4.4.6's polling-frame types.
type PollingLoopFrameType uint8

const (
	PollingFrameReqa PollingLoopFrameType = 0x00
	PollingFrameReqb PollingLoopFrameType = 0x01
	PollingFrameReqf PollingLoopFrameType = 0x02
	PollingFrameReqv PollingLoopFrameType = 0x03
)

type PollingLoopFrame struct {
	Type      PollingLoopFrameType
	TimestampMs uint32
	Gain      uint8
}

type AndroidPollingLoopNtf struct {
	Frames []PollingLoopFrame
}

func (m AndroidPollingLoopNtf) Encode() []byte {
	out := []byte{byte(len(m.Frames))}
	for _, f := range m.Frames {
		out = append(out, byte(f.Type))
		ts := make([]byte, 4)
		binary.BigEndian.PutUint32(ts, f.TimestampMs)
		out = append(out, ts...)
		out = append(out, f.Gain)
	}
	return out
}
