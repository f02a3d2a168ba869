// Package controller implements the NFCC state engine (spec.md §4.4 /
// C4): the per-device NCI dispatcher, the RF Discovery state machine,
// the logical connection table, and the RF-event handlers.
package controller

import (
	"time"

	"github.com/casimir-nfc/casimir/internal/nci"
	"github.com/casimir-nfc/casimir/internal/nciparam"
	"github.com/casimir-nfc/casimir/internal/rf"
)

// MaxLogicalConnections is CORE_INIT_RSP's MAX_LOGICAL_CONNECTIONS
// limit on dynamically created connections (spec.md §4.4.2). Dynamic
// connection ids are dense starting at 2, per invariant I2.
const MaxLogicalConnections = 2

// Static logical connection ids, per spec.md §3's data model.
const (
	ConnStaticRF  uint8 = 0
	ConnStaticHCI uint8 = 1
	connDynamicBase uint8 = 2
)

// LogicalConnection is the sole modeled variant: RemoteNfcEndpoint
// (spec.md §3).
type LogicalConnection struct {
	RFDiscoveryID uint8
	RFProtocolType uint8
}

// NfceeState mirrors spec.md §3's NFCEE toggle.
type NfceeState int

const (
	NfceeDisabled NfceeState = iota
	NfceeEnabled
)

// PassiveObserveMode mirrors spec.md §3's Android toggle.
type PassiveObserveMode int

const (
	PassiveObserveDisabled PassiveObserveMode = iota
	PassiveObserveEnabled
)

// RfStateKind discriminates the RF Discovery state machine's variants
// (spec.md §4.4.1).
type RfStateKind int

const (
	RfIdle RfStateKind = iota
	RfDiscovery
	RfWaitForSelectResponse
	RfPollActive
	RfListenActive
	RfListenSleep
	RfWaitForHostSelect
)

func (k RfStateKind) String() string {
	switch k {
	case RfIdle:
		return "Idle"
	case RfDiscovery:
		return "Discovery"
	case RfWaitForSelectResponse:
		return "WaitForSelectResponse"
	case RfPollActive:
		return "PollActive"
	case RfListenActive:
		return "ListenActive"
	case RfListenSleep:
		return "ListenSleep"
	case RfWaitForHostSelect:
		return "WaitForHostSelect"
	default:
		return "Unknown"
	}
}

// RfState is the RF Discovery automaton's current state. It is
// represented as one struct with a Kind discriminant — spec.md §9's
// "tagged variants, not inheritance" without the boilerplate of a
// seven-way interface split. WaitForSelectResponse, PollActive and
// ListenActive use all of (PeerID, RFDiscoveryID, RFInterface,
// RFTechnology, RFProtocol); ListenSleep sets only PeerID; Idle,
// Discovery and WaitForHostSelect leave every field zero.
type RfState struct {
	Kind          RfStateKind
	PeerID        uint16
	RFDiscoveryID uint8
	RFInterface   nci.RFInterface
	RFTechnology  rf.Technology
	RFProtocol    uint8
}

// RfPollResponse is one poll-mode peer discovered in the current poll
// window (spec.md §3).
type RfPollResponse struct {
	ID                        uint16
	RFProtocol                uint8
	RFTechnology              rf.Technology
	RFTechSpecificParameters []byte
}

// Equal reports full-value equality, used to de-duplicate poll
// responses on insertion (spec.md §3).
func (a RfPollResponse) Equal(b RfPollResponse) bool {
	if a.ID != b.ID || a.RFProtocol != b.RFProtocol || a.RFTechnology != b.RFTechnology {
		return false
	}
	if len(a.RFTechSpecificParameters) != len(b.RFTechSpecificParameters) {
		return false
	}
	for i := range a.RFTechSpecificParameters {
		if a.RFTechSpecificParameters[i] != b.RFTechSpecificParameters[i] {
			return false
		}
	}
	return true
}

// State is the per-controller state spec.md §3 names. Each Controller
// owns its State exclusively; no other goroutine may read or write it
// (spec.md §5).
type State struct {
	Config *nciparam.Store

	dynamicConns [MaxLogicalConnections]*LogicalConnection

	DiscoverConfiguration []nci.DiscoverConfigEntry
	DiscoverMap           []nci.MappingEntry

	RfState               RfState
	RfPollResponses       []RfPollResponse
	RfActivationParameters []byte

	NfceeState         NfceeState
	PassiveObserveMode PassiveObserveMode

	StartTime time.Time
}

// NewState returns a freshly reset State, equivalent to the effect of
// CORE_RESET_CMD(ResetType=ResetConfig).
func NewState() *State {
	s := &State{
		Config:    nciparam.NewStore(),
		StartTime: time.Now(),
	}
	s.ResetVolatile()
	return s
}

// ResetVolatile clears connections, discover map/configuration, poll
// responses, and returns rf_state to Idle — the side effects
// CORE_RESET_CMD always performs, regardless of reset type (spec.md
// §4.4.2).
func (s *State) ResetVolatile() {
	s.dynamicConns = [MaxLogicalConnections]*LogicalConnection{}
	s.DiscoverConfiguration = nil
	s.DiscoverMap = nil
	s.RfPollResponses = nil
	s.RfActivationParameters = nil
	s.RfState = RfState{Kind: RfIdle}
}

// AllocateConnection assigns the lowest free dynamic slot, returning
// its ConnID (dense starting at 2, invariant I2). It enforces that the
// (RFDiscoveryID, RFProtocolType) pair is unique across all dynamic
// slots.
func (s *State) AllocateConnection(conn LogicalConnection) (connID uint8, ok bool) {
	for _, c := range s.dynamicConns {
		if c != nil && c.RFDiscoveryID == conn.RFDiscoveryID && c.RFProtocolType == conn.RFProtocolType {
			return 0, false
		}
	}
	for i, c := range s.dynamicConns {
		if c == nil {
			cp := conn
			s.dynamicConns[i] = &cp
			return connDynamicBase + uint8(i), true
		}
	}
	return 0, false
}

// CloseConnection frees a dynamic slot. Static connection ids (0, 1)
// and unallocated slots are rejected, per CORE_CONN_CLOSE_CMD's
// contract.
func (s *State) CloseConnection(connID uint8) bool {
	if connID < connDynamicBase {
		return false
	}
	idx := int(connID - connDynamicBase)
	if idx < 0 || idx >= len(s.dynamicConns) || s.dynamicConns[idx] == nil {
		return false
	}
	s.dynamicConns[idx] = nil
	return true
}

// Connection looks up a dynamic connection by ConnID.
func (s *State) Connection(connID uint8) (LogicalConnection, bool) {
	if connID < connDynamicBase {
		return LogicalConnection{}, false
	}
	idx := int(connID - connDynamicBase)
	if idx < 0 || idx >= len(s.dynamicConns) || s.dynamicConns[idx] == nil {
		return LogicalConnection{}, false
	}
	return *s.dynamicConns[idx], true
}

// AddPollResponse appends r unless an equal response is already
// present in the current poll window (spec.md §3).
func (s *State) AddPollResponse(r RfPollResponse) {
	for _, existing := range s.RfPollResponses {
		if existing.Equal(r) {
			return
		}
	}
	s.RfPollResponses = append(s.RfPollResponses, r)
}
