package packet

import "encoding/binary"

// UDPHeaderLen is the fixed length of a UDP header per RFC 768.
const UDPHeaderLen = 8

// UDPHeader is a UDP header per RFC 768.
type UDPHeader struct {
	SrcPort  uint16
	DstPort  uint16
	Length   uint16 // header + payload
	Checksum uint16
}

// ParseUDP reads a UDP header from the start of b.
func ParseUDP(b []byte) (UDPHeader, error) {
	if len(b) < UDPHeaderLen {
		return UDPHeader{}, ErrPacketTooShort
	}
	return UDPHeader{
		SrcPort:  binary.BigEndian.Uint16(b[0:2]),
		DstPort:  binary.BigEndian.Uint16(b[2:4]),
		Length:   binary.BigEndian.Uint16(b[4:6]),
		Checksum: binary.BigEndian.Uint16(b[6:8]),
	}, nil
}

// Write serializes h into the start of b.
func (h UDPHeader) Write(b []byte) error {
	if len(b) < UDPHeaderLen {
		return ErrPacketTooShort
	}
	binary.BigEndian.PutUint16(b[0:2], h.SrcPort)
	binary.BigEndian.PutUint16(b[2:4], h.DstPort)
	binary.BigEndian.PutUint16(b[4:6], h.Length)
	binary.BigEndian.PutUint16(b[6:8], h.Checksum)
	return nil
}
