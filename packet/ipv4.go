package packet

import "encoding/binary"

// IPv4MinHeaderLen is the minimum IHL of 5 32-bit words per RFC 791.
const IPv4MinHeaderLen = 20

// IPv4 protocol numbers used by the higher-layer accessors.
const (
	IPProtocolICMP uint8 = 1
	IPProtocolTCP  uint8 = 6
	IPProtocolUDP  uint8 = 17
)

// IPv4Header is an IPv4 header per RFC 791, with the version/IHL and
// DSCP/ECN bit-packed octets already unpacked into separate fields.
type IPv4Header struct {
	Version        uint8
	IHL            uint8 // header length in 32-bit words, >= 5
	DSCP           uint8
	ECN            uint8
	TotalLength    uint16
	Identification uint16
	Flags          uint8 // 3 bits
	FragmentOffset uint16
	TTL            uint8
	Protocol       uint8
	Checksum       uint16
	Src            [4]byte
	Dst            [4]byte
}

// HeaderLength returns the header length in bytes (IHL * 4). Options, if
// present, occupy bytes between HeaderLength() and TotalLength.
func (h IPv4Header) HeaderLength() int { return int(h.IHL) * 4 }

// ParseIPv4 reads an IPv4 header from the start of b. Fails with
// ErrPacketTooShort if b cannot hold either the fixed 20-byte header or the
// full header including options as declared by IHL.
func ParseIPv4(b []byte) (IPv4Header, error) {
	if len(b) < IPv4MinHeaderLen {
		return IPv4Header{}, ErrPacketTooShort
	}
	var h IPv4Header
	h.Version = b[0] >> 4
	h.IHL = b[0] & 0x0f
	if len(b) < h.HeaderLength() {
		return IPv4Header{}, ErrPacketTooShort
	}
	h.DSCP = b[1] >> 2
	h.ECN = b[1] & 0x03
	h.TotalLength = binary.BigEndian.Uint16(b[2:4])
	h.Identification = binary.BigEndian.Uint16(b[4:6])
	flagsFrag := binary.BigEndian.Uint16(b[6:8])
	h.Flags = uint8(flagsFrag >> 13)
	h.FragmentOffset = flagsFrag & 0x1fff
	h.TTL = b[8]
	h.Protocol = b[9]
	h.Checksum = binary.BigEndian.Uint16(b[10:12])
	copy(h.Src[:], b[12:16])
	copy(h.Dst[:], b[16:20])
	return h, nil
}

// Write serializes h into the start of b, using h.IHL to determine header
// length (the caller is responsible for any option bytes beyond byte 20).
// The checksum field is written as h.Checksum verbatim; use
// ComputeIPv4Checksum to fill it in beforehand.
func (h IPv4Header) Write(b []byte) error {
	n := h.HeaderLength()
	if n < IPv4MinHeaderLen || len(b) < n {
		return ErrPacketTooShort
	}
	b[0] = (h.Version << 4) | (h.IHL & 0x0f)
	b[1] = (h.DSCP << 2) | (h.ECN & 0x03)
	binary.BigEndian.PutUint16(b[2:4], h.TotalLength)
	binary.BigEndian.PutUint16(b[4:6], h.Identification)
	binary.BigEndian.PutUint16(b[6:8], (uint16(h.Flags&0x07)<<13)|(h.FragmentOffset&0x1fff))
	b[8] = h.TTL
	b[9] = h.Protocol
	binary.BigEndian.PutUint16(b[10:12], h.Checksum)
	copy(b[12:16], h.Src[:])
	copy(b[16:20], h.Dst[:])
	return nil
}

// ComputeIPv4Checksum computes the header checksum over the whole of
// header, which must hold exactly the serialized header (options
// included), with the checksum field treated as zero regardless of its
// current contents.
func ComputeIPv4Checksum(header []byte) uint16 {
	buf := make([]byte, len(header))
	copy(buf, header)
	buf[10], buf[11] = 0, 0
	return Checksum(buf)
}
