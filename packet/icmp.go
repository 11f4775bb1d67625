package packet

import "encoding/binary"

// ICMPHeaderLen is the fixed length of the common ICMP header per RFC 792:
// type, code, checksum and a 4-byte type-specific field.
const ICMPHeaderLen = 8

// ICMP message types this codec names explicitly; any other value in Type
// is preserved verbatim.
const (
	ICMPTypeEchoReply   uint8 = 0
	ICMPTypeEchoRequest uint8 = 8
)

// ICMPHeader is the common ICMP header. RestOfHeader holds the 4
// type-specific bytes (e.g. identifier+sequence for echo request/reply)
// uninterpreted; Identifier/Sequence decode that field for the echo
// messages, the only variant this library gives named accessors.
type ICMPHeader struct {
	Type         uint8
	Code         uint8
	Checksum     uint16
	RestOfHeader uint32
}

// Identifier and Sequence interpret RestOfHeader for echo request/reply
// messages; the result is meaningless for other message types.
func (h ICMPHeader) Identifier() uint16 { return uint16(h.RestOfHeader >> 16) }
func (h ICMPHeader) Sequence() uint16   { return uint16(h.RestOfHeader) }

// ParseICMP reads an ICMP header from the start of b.
func ParseICMP(b []byte) (ICMPHeader, error) {
	if len(b) < ICMPHeaderLen {
		return ICMPHeader{}, ErrPacketTooShort
	}
	return ICMPHeader{
		Type:         b[0],
		Code:         b[1],
		Checksum:     binary.BigEndian.Uint16(b[2:4]),
		RestOfHeader: binary.BigEndian.Uint32(b[4:8]),
	}, nil
}

// Write serializes h into the start of b.
func (h ICMPHeader) Write(b []byte) error {
	if len(b) < ICMPHeaderLen {
		return ErrPacketTooShort
	}
	b[0] = h.Type
	b[1] = h.Code
	binary.BigEndian.PutUint16(b[2:4], h.Checksum)
	binary.BigEndian.PutUint32(b[4:8], h.RestOfHeader)
	return nil
}
