package nci

import "github.com/casimir-nfc/casimir/internal/ncitransport"

// BuildControlPacket assembles a whole logical NCI control packet
// (header + payload) ready for ncitransport.WritePacket, which
// performs the ≤255-byte segmentation.
func BuildControlPacket(mt ncitransport.MT, gid GID, oid OID, payload []byte) []byte {
	length := len(payload)
	if length > 255 {
		length = 255
	}
	h := ncitransport.Header{
		MT:          mt,
		PBF:         ncitransport.CompleteOrFinal,
		GIDOrConnID: uint8(gid),
		OID:         uint8(oid),
		Length:      uint8(length),
	}
	out := h.Bytes()
	return append(out, payload...)
}

// BuildDataPacket assembles a whole logical NCI data packet for the
// given logical connection id.
func BuildDataPacket(connID uint8, payload []byte) []byte {
	length := len(payload)
	if length > 255 {
		length = 255
	}
	h := ncitransport.Header{
		MT:          ncitransport.MTData,
		PBF:         ncitransport.CompleteOrFinal,
		GIDOrConnID: connID,
		OID:         0,
		Length:      uint8(length),
	}
	out := h.Bytes()
	return append(out, payload...)
}

// ParsedPacket is a decoded whole logical NCI packet.
type ParsedPacket struct {
	Header  ncitransport.Header
	Payload []byte
}

// ParsePacket splits a whole logical NCI packet (as returned by
// ncitransport.Reader.ReadPacket) into its header and payload.
func ParsePacket(b []byte) (ParsedPacket, error) {
	h, err := ncitransport.ParseHeader(b[:3])
	if err != nil {
		return ParsedPacket{}, err
	}
	return ParsedPacket{Header: h, Payload: b[3:]}, nil
}
