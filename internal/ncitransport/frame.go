// Package ncitransport implements the NCI transport framer (spec.md
// §4.1 / C1): segmentation on write and reassembly on read of NCI
// packets over a byte stream, per [NCI] §3.4.
package ncitransport

import (
	"bufio"
	"fmt"
	"io"
)

// mtMask, pbfMask and gidMask carve up header byte 0: MT occupies bits
// 7..5, PBF is bit 4 (mask 0x10), and GID/ConnID occupy bits 3..0.
const (
	mtShift  = 5
	mtMask   = 0x07
	pbfMask  = 0x10
	gidMask  = 0x0F
	maxChunk = 255
)

// PBF is the NCI packet boundary flag.
type PBF uint8

const (
	CompleteOrFinal PBF = 0
	Incomplete      PBF = 1
)

// MT is the NCI message type carried in header byte 0.
type MT uint8

const (
	MTData         MT = 0x00
	MTCommand      MT = 0x01
	MTResponse     MT = 0x02
	MTNotification MT = 0x03
)

// Header is the common 3-byte NCI packet header. For control packets,
// GIDOrConnID holds GID and OID holds the opcode; for data packets,
// GIDOrConnID holds the logical connection id and OID is RFU.
type Header struct {
	MT          MT
	PBF         PBF
	GIDOrConnID uint8
	OID         uint8
	Length      uint8
}

// ParseHeader decodes a 3-byte NCI header.
func ParseHeader(b []byte) (Header, error) {
	if len(b) != 3 {
		return Header{}, fmt.Errorf("nci header must be 3 bytes, got %d", len(b))
	}
	h := Header{
		MT:          MT((b[0] >> mtShift) & mtMask),
		GIDOrConnID: b[0] & gidMask,
		OID:         b[1],
		Length:      b[2],
	}
	if b[0]&pbfMask != 0 {
		h.PBF = Incomplete
	}
	return h, nil
}

// Bytes encodes the header back to its 3-byte wire form.
func (h Header) Bytes() []byte {
	b0 := byte(h.MT&mtMask) << mtShift
	if h.PBF == Incomplete {
		b0 |= pbfMask
	}
	b0 |= h.GIDOrConnID & gidMask
	return []byte{b0, h.OID, h.Length}
}

// Reader reassembles whole logical NCI packets from a segmented byte
// stream, per spec.md §4.1 Read.
type Reader struct {
	r *bufio.Reader
}

// NewReader wraps r for NCI packet reassembly.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// ReadPacket reads one whole logical NCI packet: header + payload,
// looping over PBF=Incomplete segments and returning on
// PBF=CompleteOrFinal. The returned header's GID/OID or ConnID is the
// last segment's, since [NCI] requires it to be identical across
// segments of one logical packet.
func (r *Reader) ReadPacket() ([]byte, error) {
	var header Header
	var payload []byte

	for {
		hdrBytes := make([]byte, 3)
		if _, err := io.ReadFull(r.r, hdrBytes); err != nil {
			return nil, fmt.Errorf("nci: short read on header: %w", err)
		}
		h, err := ParseHeader(hdrBytes)
		if err != nil {
			return nil, fmt.Errorf("nci: header parse: %w", err)
		}
		header = h

		seg := make([]byte, h.Length)
		if h.Length > 0 {
			if _, err := io.ReadFull(r.r, seg); err != nil {
				return nil, fmt.Errorf("nci: short read on payload: %w", err)
			}
		}
		payload = append(payload, seg...)

		if h.PBF == CompleteOrFinal {
			break
		}
	}

	out := make([]byte, 0, 3+len(payload))
	finalHdr := header
	finalHdr.PBF = CompleteOrFinal
	finalHdr.Length = uint8(len(payload))
	out = append(out, finalHdr.Bytes()...)
	out = append(out, payload...)
	return out, nil
}

// WritePacket segments a whole logical NCI packet into ≤255-byte
// chunks and writes each as its own segment, per spec.md §4.1 Write.
// The header's MT/GID/OID (or MT/ConnID) is preserved across segments;
// only PBF and Length vary.
func WritePacket(w io.Writer, packet []byte) error {
	if len(packet) < 3 {
		return fmt.Errorf("nci: packet too short: %d bytes", len(packet))
	}
	header, err := ParseHeader(packet[:3])
	if err != nil {
		return fmt.Errorf("nci: header parse on write: %w", err)
	}
	payload := packet[3:]

	offset := 0
	for {
		end := offset + maxChunk
		if end > len(payload) {
			end = len(payload)
		}
		chunk := payload[offset:end]
		more := end < len(payload)

		seg := header
		seg.Length = uint8(len(chunk))
		if more {
			seg.PBF = Incomplete
		} else {
			seg.PBF = CompleteOrFinal
		}

		if _, err := w.Write(seg.Bytes()); err != nil {
			return fmt.Errorf("nci: write header: %w", err)
		}
		if len(chunk) > 0 {
			if _, err := w.Write(chunk); err != nil {
				return fmt.Errorf("nci: write payload: %w", err)
			}
		}

		offset = end
		if !more {
			return nil
		}
	}
}
