package packet

import "encoding/binary"

// EthernetHeaderLen is the fixed length of an untagged Ethernet II header.
const EthernetHeaderLen = 14

// EtherType values recognized by higher layers.
const (
	EtherTypeIPv4 uint16 = 0x0800
	EtherTypeARP  uint16 = 0x0806
)

// EthernetHeader is an Ethernet II frame header: two 6-byte MAC addresses
// and a 2-byte EtherType, per RFC 894 framing.
type EthernetHeader struct {
	Dst       [6]byte
	Src       [6]byte
	EtherType uint16
}

// ParseEthernet reads an Ethernet header from the start of b.
func ParseEthernet(b []byte) (EthernetHeader, error) {
	if len(b) < EthernetHeaderLen {
		return EthernetHeader{}, ErrPacketTooShort
	}
	var h EthernetHeader
	copy(h.Dst[:], b[0:6])
	copy(h.Src[:], b[6:12])
	h.EtherType = binary.BigEndian.Uint16(b[12:14])
	return h, nil
}

// Write serializes h into the start of b.
func (h EthernetHeader) Write(b []byte) error {
	if len(b) < EthernetHeaderLen {
		return ErrPacketTooShort
	}
	copy(b[0:6], h.Dst[:])
	copy(b[6:12], h.Src[:])
	binary.BigEndian.PutUint16(b[12:14], h.EtherType)
	return nil
}
