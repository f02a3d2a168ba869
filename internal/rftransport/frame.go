// Package rftransport implements the RF transport framer (spec.md
// §4.2 / C2): trivial 16-bit little-endian length-prefixed framing for
// RF packets over a byte stream.
package rftransport

import (
	"encoding/binary"
	"fmt"
	"io"
)

// ReadPacket reads one length-prefixed RF packet.
func ReadPacket(r io.Reader) ([]byte, error) {
	var lenBuf [2]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, fmt.Errorf("rf transport: short read on length: %w", err)
	}
	n := binary.LittleEndian.Uint16(lenBuf[:])
	body := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, body); err != nil {
			return nil, fmt.Errorf("rf transport: short read on body: %w", err)
		}
	}
	return body, nil
}

// WritePacket writes one length-prefixed RF packet.
func WritePacket(w io.Writer, body []byte) error {
	var lenBuf [2]byte
	binary.LittleEndian.PutUint16(lenBuf[:], uint16(len(body)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("rf transport: write length: %w", err)
	}
	if len(body) > 0 {
		if _, err := w.Write(body); err != nil {
			return fmt.Errorf("rf transport: write body: %w", err)
		}
	}
	return nil
}
