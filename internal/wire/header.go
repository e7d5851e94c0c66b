// Package wire implements the uTP v1 packet wire format: header layout,
// the extension linked list, and marshal/unmarshal to and from bytes.
package wire

import (
	"encoding/binary"
	"fmt"
)

// Type is a uTP packet type, carried in the high nibble of byte 0.
type Type uint8

const (
	TypeData  Type = 0
	TypeFin   Type = 1
	TypeState Type = 2
	TypeReset Type = 3
	TypeSyn   Type = 4
)

func (t Type) String() string {
	switch t {
	case TypeData:
		return "DATA"
	case TypeFin:
		return "FIN"
	case TypeState:
		return "STATE"
	case TypeReset:
		return "RESET"
	case TypeSyn:
		return "SYN"
	default:
		return "UNKNOWN"
	}
}

const (
	// Version is the only uTP protocol version this codec understands.
	Version uint8 = 1

	// HeaderSize is the fixed portion of the header, before any extensions.
	HeaderSize = 20

	// ExtensionNone marks the end of the extension chain.
	ExtensionNone uint8 = 0

	// ExtensionFEC is a non-standard extension carrying a forward-error-
	// correction shard descriptor (see internal/fec). Receivers that don't
	// understand it skip it like any other unknown extension.
	ExtensionFEC uint8 = 1

	// ExtensionSelectiveAck mirrors the de-facto BEP-29 extension: an
	// 8-byte (or longer) bitmask of packets received beyond ack_nr+2. This
	// engine parses and forwards it but does not require it for baseline
	// correctness (spec Non-goals: "No selective-ACK extension handling is
	// required for correctness of the baseline").
	ExtensionSelectiveAck uint8 = 2
)

// Extension is one link of the header's extension chain: (next, len, bytes).
type Extension struct {
	Type  uint8
	Bytes []byte
}

// Header is the fixed part of a uTP packet.
type Header struct {
	Type                Type
	ConnID              uint16
	TimestampMicros     uint32
	TimestampDiffMicros uint32
	WndSize             uint32
	SeqNr               uint16
	AckNr               uint16
	Extensions          []Extension
}

// Packet is a fully parsed uTP datagram.
type Packet struct {
	Header  Header
	Payload []byte
}

// Size returns the on-wire size of the header including its extension chain.
func (h *Header) Size() int {
	n := HeaderSize
	for _, e := range h.Extensions {
		n += 2 + len(e.Bytes)
	}
	return n
}

// Marshal serializes header and payload into a single uTP datagram.
func Marshal(p *Packet) ([]byte, error) {
	h := &p.Header
	if len(h.Extensions) > 0 {
		for _, e := range h.Extensions {
			if e.Type == ExtensionNone {
				return nil, fmt.Errorf("wire: extension type 0 is reserved for end-of-chain")
			}
			if len(e.Bytes) > 0xff {
				return nil, fmt.Errorf("wire: extension payload too large: %d bytes", len(e.Bytes))
			}
		}
	}

	buf := make([]byte, h.Size()+len(p.Payload))

	firstExt := ExtensionNone
	if len(h.Extensions) > 0 {
		firstExt = h.Extensions[0].Type
	}

	buf[0] = (Version & 0x0f) | (uint8(h.Type) << 4)
	buf[1] = firstExt
	binary.BigEndian.PutUint16(buf[2:4], h.ConnID)
	binary.BigEndian.PutUint32(buf[4:8], h.TimestampMicros)
	binary.BigEndian.PutUint32(buf[8:12], h.TimestampDiffMicros)
	binary.BigEndian.PutUint32(buf[12:16], h.WndSize)
	binary.BigEndian.PutUint16(buf[16:18], h.SeqNr)
	binary.BigEndian.PutUint16(buf[18:20], h.AckNr)

	off := HeaderSize
	for i, e := range h.Extensions {
		next := ExtensionNone
		if i+1 < len(h.Extensions) {
			next = h.Extensions[i+1].Type
		}
		buf[off] = next
		buf[off+1] = uint8(len(e.Bytes))
		copy(buf[off+2:], e.Bytes)
		off += 2 + len(e.Bytes)
	}

	copy(buf[off:], p.Payload)
	return buf, nil
}

// Unmarshal parses a uTP datagram. Unknown extension types are kept in the
// chain (so a caller can inspect them) but never rejected — §6: "Unknown
// extensions are skipped."
func Unmarshal(data []byte) (*Packet, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("wire: packet too small: need at least %d bytes, got %d", HeaderSize, len(data))
	}

	version := data[0] & 0x0f
	if version != Version {
		return nil, fmt.Errorf("wire: unsupported version: expected %d, got %d", Version, version)
	}

	h := Header{
		Type:                Type(data[0] >> 4),
		ConnID:              binary.BigEndian.Uint16(data[2:4]),
		TimestampMicros:     binary.BigEndian.Uint32(data[4:8]),
		TimestampDiffMicros: binary.BigEndian.Uint32(data[8:12]),
		WndSize:             binary.BigEndian.Uint32(data[12:16]),
		SeqNr:               binary.BigEndian.Uint16(data[16:18]),
		AckNr:               binary.BigEndian.Uint16(data[18:20]),
	}

	off := HeaderSize
	nextType := data[1]
	for nextType != ExtensionNone {
		if off+2 > len(data) {
			return nil, fmt.Errorf("wire: truncated extension header at offset %d", off)
		}
		followingType := data[off]
		length := int(data[off+1])
		off += 2
		if off+length > len(data) {
			return nil, fmt.Errorf("wire: truncated extension payload at offset %d", off)
		}
		ext := Extension{Type: nextType, Bytes: append([]byte(nil), data[off:off+length]...)}
		h.Extensions = append(h.Extensions, ext)
		off += length
		nextType = followingType
	}

	var payload []byte
	if off < len(data) {
		payload = append([]byte(nil), data[off:]...)
	}

	return &Packet{Header: h, Payload: payload}, nil
}

// FindExtension returns the first extension of the given type, if present.
func (h *Header) FindExtension(t uint8) (Extension, bool) {
	for _, e := range h.Extensions {
		if e.Type == t {
			return e, true
		}
	}
	return Extension{}, false
}
