package scene

import "github.com/casimir-nfc/casimir/internal/rf"

// DeviceKind discriminates an NCI-speaking peer from a raw RF peer
// (spec.md §4.6).
type DeviceKind int

const (
	KindNci DeviceKind = iota
	KindRf
)

func (k DeviceKind) String() string {
	if k == KindRf {
		return "rf"
	}
	return "nci"
}

// Device is the scene's view of one connected peer. in is the
// scene-owned delivery channel for packets routed to this device; a
// Go channel already unifies the NCI adapter and RF adapter backends
// spec.md §4.6 describes, so no further RFChannel abstraction is
// needed on top of it.
type Device struct {
	ID       uint16
	Position uint32
	Kind     DeviceKind

	in chan<- rf.Packet
}
