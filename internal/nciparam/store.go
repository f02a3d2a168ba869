// Package nciparam implements the NCI configuration parameter store
// (spec.md §4.3 / C3): a typed getter/setter for the parameter IDs
// defined in [NCI] §6, with read-only and unknown-ID rejection and the
// §6.1 Table 46 defaults.
package nciparam

import (
	"encoding/binary"
	"fmt"
)

// ID identifies an NCI configuration parameter, per [NCI] Tables 46-65.
type ID uint8

// The subset of [NCI] §6 parameter IDs this emulator models explicitly.
// Every other ID in the 0x00-0xA2 range is Unknown and rejected by both
// Get and Set, matching real NFCC behavior for RFU IDs.
const (
	TotalDuration    ID = 0x00
	ConDevicesLimit  ID = 0x01
	PaBailOut        ID = 0x08
	PaDevicesLimit   ID = 0x09
	PbAfiA           ID = 0x10
	LaBitFrameSdd    ID = 0x16
	LaPlatformConfig ID = 0x17
	LaSelInfo        ID = 0x18
	LaNfcid1         ID = 0x19
	LbSensbInfo      ID = 0x20
	LbNfcid0         ID = 0x21
	LfT3tFlags2      ID = 0x30
	LfProtocolType   ID = 0x31
	LfT3tPmm         ID = 0x32
	LfT3tMax         ID = 0x33 // read-only
	LiARatsTb1       ID = 0x50
	LiARatsTc1       ID = 0x51
	RfFieldInfo      ID = 0x80
	RfNfceeAction    ID = 0x81
)

// kind describes a parameter's wire encoding, which controls how many
// bytes Get returns and how Set validates an incoming value.
type kind int

const (
	kindU8 kind = iota
	kindU16
	kindU32
	kindBytes
)

type descriptor struct {
	kind       kind
	len        int // required length for kindBytes; ignored otherwise
	readOnly   bool
	defaultVal []byte
}

// defaults mirrors [NCI] §6.1 Table 46. Values are the parameter's
// canonical little-endian encoding (u8 as 1 byte, u16/u32 LE, byte
// sequences verbatim).
var defaults = map[ID]descriptor{
	TotalDuration:    {kind: kindU16, defaultVal: le16(1000)},
	ConDevicesLimit:  {kind: kindU8, defaultVal: []byte{0xFF}},
	PaBailOut:        {kind: kindU8, defaultVal: []byte{0x00}},
	PaDevicesLimit:   {kind: kindU8, defaultVal: []byte{255}},
	PbAfiA:           {kind: kindU8, defaultVal: []byte{0x00}},
	LaBitFrameSdd:    {kind: kindU8, defaultVal: []byte{0x00}},
	LaPlatformConfig: {kind: kindU8, defaultVal: []byte{0x0C}},
	LaSelInfo:        {kind: kindU8, defaultVal: []byte{0x60}},
	LaNfcid1:         {kind: kindBytes, len: 4, defaultVal: []byte{0x08, 0x00, 0x00, 0x00}},
	LbSensbInfo:      {kind: kindU8, defaultVal: []byte{0x01}},
	LbNfcid0:         {kind: kindBytes, len: 4, defaultVal: []byte{0x00, 0x00, 0x00, 0x00}},
	LfT3tFlags2:      {kind: kindU8, defaultVal: []byte{0x00}},
	LfProtocolType:   {kind: kindU8, defaultVal: []byte{0x02}},
	LfT3tPmm:         {kind: kindBytes, len: 8, defaultVal: []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}},
	LfT3tMax:         {kind: kindU8, readOnly: true, defaultVal: []byte{0x01}},
	LiARatsTb1:       {kind: kindU8, defaultVal: []byte{0x70}},
	LiARatsTc1:       {kind: kindU8, defaultVal: []byte{0x02}},
	RfFieldInfo:      {kind: kindU8, defaultVal: []byte{0x01}},
	RfNfceeAction:    {kind: kindU8, defaultVal: []byte{0x01}},
}

func le16(v uint16) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, v)
	return b
}

// ErrUnknownParam is returned by Get and Set for an ID outside the
// modeled set.
type ErrUnknownParam struct{ ID ID }

func (e *ErrUnknownParam) Error() string { return fmt.Sprintf("unknown config parameter 0x%02x", uint8(e.ID)) }

// ErrReadOnlyParam is returned by Set for a read-only ID such as
// LF_T3T_MAX.
type ErrReadOnlyParam struct{ ID ID }

func (e *ErrReadOnlyParam) Error() string {
	return fmt.Sprintf("config parameter 0x%02x is read-only", uint8(e.ID))
}

// ErrInvalidLength is returned by Set when the supplied value's length
// does not match the parameter's wire encoding.
type ErrInvalidLength struct {
	ID       ID
	Got      int
	Expected int
}

func (e *ErrInvalidLength) Error() string {
	return fmt.Sprintf("config parameter 0x%02x expects %d bytes, got %d", uint8(e.ID), e.Expected, e.Got)
}

// Store is the per-controller configuration parameter table.
type Store struct {
	values map[ID][]byte
}

// NewStore returns a Store with every modeled parameter set to its
// [NCI] §6.1 default.
func NewStore() *Store {
	s := &Store{values: make(map[ID][]byte, len(defaults))}
	s.ResetToDefaults()
	return s
}

// ResetToDefaults restores every parameter to its Table 46 default,
// the effect of CORE_RESET_CMD(ResetType=ResetConfig).
func (s *Store) ResetToDefaults() {
	for id, d := range defaults {
		v := make([]byte, len(d.defaultVal))
		copy(v, d.defaultVal)
		s.values[id] = v
	}
}

func expectedLen(id ID, d descriptor) int {
	switch d.kind {
	case kindU8:
		return 1
	case kindU16:
		return 2
	case kindU32:
		return 4
	default:
		return d.len
	}
}

// Get returns the parameter's canonical little-endian encoding.
func (s *Store) Get(id ID) ([]byte, error) {
	d, ok := defaults[id]
	if !ok {
		return nil, &ErrUnknownParam{ID: id}
	}
	v, ok := s.values[id]
	if !ok {
		v = d.defaultVal
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

// Set decodes value using the parameter's canonical encoding and
// commits it. It rejects unknown and read-only IDs and length
// mismatches without partially applying the change.
func (s *Store) Set(id ID, value []byte) error {
	d, ok := defaults[id]
	if !ok {
		return &ErrUnknownParam{ID: id}
	}
	if d.readOnly {
		return &ErrReadOnlyParam{ID: id}
	}
	want := expectedLen(id, d)
	if len(value) != want {
		return &ErrInvalidLength{ID: id, Got: len(value), Expected: want}
	}
	v := make([]byte, len(value))
	copy(v, value)
	s.values[id] = v
	return nil
}

// SetResult is the outcome of applying one parameter in a
// CORE_SET_CONFIG_CMD batch.
type SetResult struct {
	ID    ID
	Valid bool
}

// SetAll applies every (id, value) pair, committing all valid entries
// even when some are invalid, per CORE_SET_CONFIG_CMD's contract.
// It returns the set of IDs that were rejected.
func (s *Store) SetAll(pairs map[ID][]byte) []ID {
	var invalid []ID
	for id, v := range pairs {
		if err := s.Set(id, v); err != nil {
			invalid = append(invalid, id)
		}
	}
	return invalid
}

// GetAll reads every requested ID, reporting which ones are unknown
// (missing, with a zero-length value) per CORE_GET_CONFIG_CMD's
// contract.
func (s *Store) GetAll(ids []ID) (values map[ID][]byte, missing []ID) {
	values = make(map[ID][]byte, len(ids))
	for _, id := range ids {
		v, err := s.Get(id)
		if err != nil {
			values[id] = []byte{}
			missing = append(missing, id)
			continue
		}
		values[id] = v
	}
	return values, missing
}
