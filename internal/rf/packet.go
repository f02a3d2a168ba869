// Package rf defines the RF packet header and the RF message bodies
// the controller state engine and scene need to implement spec.md's
// RF Discovery automaton and peer routing. The generated RF packet
// codec itself is, per spec.md §1, an assumed-external collaborator;
// this package is the concrete (hand-rolled) stand-in for it, scoped
// to exactly the messages spec.md names.
package rf

import (
	"encoding/binary"
	"fmt"
)

// Broadcast is the RF receiver value meaning "every device at the
// sender's position".
const Broadcast uint16 = 0xFFFF

// Kind discriminates the RF message bodies this emulator exchanges.
type Kind uint8

const (
	KindPollCommand          Kind = 1
	KindNfcAPollResponse     Kind = 2
	KindT4atSelectCommand    Kind = 3
	KindT4atSelectResponse   Kind = 4
	KindDeactivateNotif      Kind = 5
	KindData                 Kind = 6
)

// Technology mirrors the RF technology discriminant used throughout
// [NCI] §5 and §7.
type Technology uint8

const (
	NfcAPassivePollMode Technology = 0x00
	NfcBPassivePollMode Technology = 0x01
	NfcFPassivePollMode Technology = 0x02
	NfcVPassivePollMode Technology = 0x03
)

// Protocol mirrors the RF protocol discriminant of [NCI] §7.1.
type Protocol uint8

const (
	ProtocolUndetermined Protocol = 0x00
	ProtocolT1T          Protocol = 0x01
	ProtocolT2T          Protocol = 0x02
	ProtocolT3T          Protocol = 0x03
	ProtocolIsoDep       Protocol = 0x04
	ProtocolNfcDep       Protocol = 0x05
	ProtocolT5T          Protocol = 0x06
	ProtocolNdef         Protocol = 0x07
)

// DeactivationType mirrors RF_DEACTIVATE_CMD/NTF's type field.
type DeactivationType uint8

const (
	DeactToIdleMode   DeactivationType = 0x00
	DeactToSleepMode  DeactivationType = 0x01
	DeactToSleepAfMode DeactivationType = 0x02
	DeactToDiscovery  DeactivationType = 0x03
)

// DeactivationReason mirrors RF_DEACTIVATE_NTF/DEACTIVATE_NOTIFICATION's
// reason field.
type DeactivationReason uint8

const (
	ReasonDhRequest       DeactivationReason = 0x00
	ReasonEndpointRequest DeactivationReason = 0x01
	ReasonRfLinkLoss      DeactivationReason = 0x02
)

// Packet is a full RF frame: the sender/receiver header spec.md §6
// defines, plus one typed body.
type Packet struct {
	Sender   uint16
	Receiver uint16
	Kind     Kind
	Body     []byte
}

// PollCommand is broadcast by a controller in Discovery for every
// passive-poll entry in its discover configuration (spec.md §4.4.3).
type PollCommand struct {
	Technology Technology
}

// NfcAPollResponse is a poll-mode peer's answer to a PollCommand.
type NfcAPollResponse struct {
	IntProtocol uint8 // 2-bit protocol indicator per [NCI] §7
	NFCID1      []byte
}

// T4atSelectCommand is the ISO-DEP SELECT sent to a chosen poll-mode
// peer, or received by a listen-mode controller.
type T4atSelectCommand struct {
	Param byte
}

// T4atSelectResponse carries the RATS response bytes, captured into
// the controller's rf_activation_parameters (spec.md §3).
type T4atSelectResponse struct {
	RatsResponse []byte
}

// DeactivateNotification is the RF-level deactivation frame exchanged
// between peers and synthesized by the scene on disconnect (spec.md
// §3 Lifecycle, §4.5).
type DeactivateNotification struct {
	Reason     DeactivationReason
	Type       DeactivationType
	Technology Technology
	Protocol   Protocol
}

// Data carries raw NCI-bridged payload bytes over the RF medium, used
// by the Frame RF interface over ISO-DEP (spec.md §4.4.5).
type Data struct {
	Payload []byte
}

// EncodeHeader writes the 4-byte sender/receiver header.
func EncodeHeader(sender, receiver uint16) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint16(b[0:2], sender)
	binary.LittleEndian.PutUint16(b[2:4], receiver)
	return b
}

// DecodeHeader reads the 4-byte sender/receiver header.
func DecodeHeader(b []byte) (sender, receiver uint16, err error) {
	if len(b) < 4 {
		return 0, 0, fmt.Errorf("rf: header too short: %d bytes", len(b))
	}
	return binary.LittleEndian.Uint16(b[0:2]), binary.LittleEndian.Uint16(b[2:4]), nil
}

// Marshal encodes a full Packet: header, kind byte, then the body.
func (p Packet) Marshal() []byte {
	out := EncodeHeader(p.Sender, p.Receiver)
	out = append(out, byte(p.Kind))
	out = append(out, p.Body...)
	return out
}

// Unmarshal decodes a full Packet from wire bytes.
func Unmarshal(b []byte) (Packet, error) {
	if len(b) < 5 {
		return Packet{}, fmt.Errorf("rf: packet too short: %d bytes", len(b))
	}
	sender, receiver, err := DecodeHeader(b)
	if err != nil {
		return Packet{}, err
	}
	return Packet{
		Sender:   sender,
		Receiver: receiver,
		Kind:     Kind(b[4]),
		Body:     append([]byte(nil), b[5:]...),
	}, nil
}

// EncodePollCommand serializes a PollCommand body.
func EncodePollCommand(m PollCommand) []byte { return []byte{byte(m.Technology)} }

// DecodePollCommand parses a PollCommand body.
func DecodePollCommand(b []byte) (PollCommand, error) {
	if len(b) < 1 {
		return PollCommand{}, fmt.Errorf("rf: poll command body too short")
	}
	return PollCommand{Technology: Technology(b[0])}, nil
}

// EncodeNfcAPollResponse serializes an NfcAPollResponse body.
func EncodeNfcAPollResponse(m NfcAPollResponse) []byte {
	out := []byte{m.IntProtocol, byte(len(m.NFCID1))}
	return append(out, m.NFCID1...)
}

// DecodeNfcAPollResponse parses an NfcAPollResponse body.
func DecodeNfcAPollResponse(b []byte) (NfcAPollResponse, error) {
	if len(b) < 2 {
		return NfcAPollResponse{}, fmt.Errorf("rf: poll response body too short")
	}
	n := int(b[1])
	if len(b) < 2+n {
		return NfcAPollResponse{}, fmt.Errorf("rf: poll response nfcid1 truncated")
	}
	return NfcAPollResponse{IntProtocol: b[0], NFCID1: append([]byte(nil), b[2:2+n]...)}, nil
}

// EncodeT4atSelectCommand serializes a T4atSelectCommand body.
func EncodeT4atSelectCommand(m T4atSelectCommand) []byte { return []byte{m.Param} }

// DecodeT4atSelectCommand parses a T4atSelectCommand body.
func DecodeT4atSelectCommand(b []byte) (T4atSelectCommand, error) {
	if len(b) < 1 {
		return T4atSelectCommand{}, fmt.Errorf("rf: select command body too short")
	}
	return T4atSelectCommand{Param: b[0]}, nil
}

// EncodeT4atSelectResponse serializes a T4atSelectResponse body.
func EncodeT4atSelectResponse(m T4atSelectResponse) []byte {
	return append([]byte{}, m.RatsResponse...)
}

// DecodeT4atSelectResponse parses a T4atSelectResponse body.
func DecodeT4atSelectResponse(b []byte) (T4atSelectResponse, error) {
	return T4atSelectResponse{RatsResponse: append([]byte(nil), b...)}, nil
}

// EncodeDeactivateNotification serializes a DeactivateNotification body.
func EncodeDeactivateNotification(m DeactivateNotification) []byte {
	return []byte{byte(m.Reason), byte(m.Type), byte(m.Technology), byte(m.Protocol)}
}

// DecodeDeactivateNotification parses a DeactivateNotification body.
func DecodeDeactivateNotification(b []byte) (DeactivateNotification, error) {
	if len(b) < 4 {
		return DeactivateNotification{}, fmt.Errorf("rf: deactivate notification body too short")
	}
	return DeactivateNotification{
		Reason:     DeactivationReason(b[0]),
		Type:       DeactivationType(b[1]),
		Technology: Technology(b[2]),
		Protocol:   Protocol(b[3]),
	}, nil
}

// EncodeData serializes a Data body.
func EncodeData(m Data) []byte { return append([]byte{}, m.Payload...) }

// DecodeData parses a Data body.
func DecodeData(b []byte) (Data, error) { return Data{Payload: append([]byte(nil), b...)}, nil }
