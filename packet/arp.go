package packet

import "encoding/binary"

// ARPHeaderLen is the fixed length of an ARP message for Ethernet/IPv4, per
// RFC 826 with the address-length fields fixed at 6 and 4 bytes.
const ARPHeaderLen = 28

// ARP operation codes.
const (
	ARPOpRequest uint16 = 1
	ARPOpReply   uint16 = 2
)

// ARPHeader is an ARP message for the Ethernet/IPv4 address family
// combination, per RFC 826.
type ARPHeader struct {
	HardwareType       uint16
	ProtocolType       uint16
	HardwareAddrLen    uint8
	ProtocolAddrLen    uint8
	Operation          uint16
	SenderHardwareAddr [6]byte
	SenderProtocolAddr [4]byte
	TargetHardwareAddr [6]byte
	TargetProtocolAddr [4]byte
}

// ParseARP reads an ARP message from the start of b.
func ParseARP(b []byte) (ARPHeader, error) {
	if len(b) < ARPHeaderLen {
		return ARPHeader{}, ErrPacketTooShort
	}
	var h ARPHeader
	h.HardwareType = binary.BigEndian.Uint16(b[0:2])
	h.ProtocolType = binary.BigEndian.Uint16(b[2:4])
	h.HardwareAddrLen = b[4]
	h.ProtocolAddrLen = b[5]
	h.Operation = binary.BigEndian.Uint16(b[6:8])
	copy(h.SenderHardwareAddr[:], b[8:14])
	copy(h.SenderProtocolAddr[:], b[14:18])
	copy(h.TargetHardwareAddr[:], b[18:24])
	copy(h.TargetProtocolAddr[:], b[24:28])
	return h, nil
}

// Write serializes h into the start of b.
func (h ARPHeader) Write(b []byte) error {
	if len(b) < ARPHeaderLen {
		return ErrPacketTooShort
	}
	binary.BigEndian.PutUint16(b[0:2], h.HardwareType)
	binary.BigEndian.PutUint16(b[2:4], h.ProtocolType)
	b[4] = h.HardwareAddrLen
	b[5] = h.ProtocolAddrLen
	binary.BigEndian.PutUint16(b[6:8], h.Operation)
	copy(b[8:14], h.SenderHardwareAddr[:])
	copy(b[14:18], h.SenderProtocolAddr[:])
	copy(b[18:24], h.TargetHardwareAddr[:])
	copy(b[24:28], h.TargetProtocolAddr[:])
	return nil
}
