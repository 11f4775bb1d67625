package packet

import "encoding/binary"

// TCPMinHeaderLen is the minimum data offset of 5 32-bit words per RFC 793.
const TCPMinHeaderLen = 20

// TCPFlags holds the six original control bits plus the two ECN-related
// bits added since, all packed into TCP header byte 13.
type TCPFlags struct {
	FIN bool
	SYN bool
	RST bool
	PSH bool
	ACK bool
	URG bool
	ECE bool
	CWR bool
}

func (f TCPFlags) pack() uint8 {
	var b uint8
	if f.FIN {
		b |= 1 << 0
	}
	if f.SYN {
		b |= 1 << 1
	}
	if f.RST {
		b |= 1 << 2
	}
	if f.PSH {
		b |= 1 << 3
	}
	if f.ACK {
		b |= 1 << 4
	}
	if f.URG {
		b |= 1 << 5
	}
	if f.ECE {
		b |= 1 << 6
	}
	if f.CWR {
		b |= 1 << 7
	}
	return b
}

func unpackTCPFlags(b uint8) TCPFlags {
	return TCPFlags{
		FIN: b&(1<<0) != 0,
		SYN: b&(1<<1) != 0,
		RST: b&(1<<2) != 0,
		PSH: b&(1<<3) != 0,
		ACK: b&(1<<4) != 0,
		URG: b&(1<<5) != 0,
		ECE: b&(1<<6) != 0,
		CWR: b&(1<<7) != 0,
	}
}

// TCPHeader is a TCP header per RFC 793, with the data-offset/reserved
// octet and the flags octet unpacked into separate fields.
type TCPHeader struct {
	SrcPort    uint16
	DstPort    uint16
	SeqNum     uint32
	AckNum     uint32
	DataOffset uint8 // in 32-bit words, >= 5
	Reserved   uint8 // 4 bits
	Flags      TCPFlags
	Window     uint16
	Checksum   uint16
	UrgentPtr  uint16
}

// HeaderLength returns the header length in bytes (DataOffset * 4).
func (h TCPHeader) HeaderLength() int { return int(h.DataOffset) * 4 }

// ParseTCP reads a TCP header from the start of b.
func ParseTCP(b []byte) (TCPHeader, error) {
	if len(b) < TCPMinHeaderLen {
		return TCPHeader{}, ErrPacketTooShort
	}
	var h TCPHeader
	h.SrcPort = binary.BigEndian.Uint16(b[0:2])
	h.DstPort = binary.BigEndian.Uint16(b[2:4])
	h.SeqNum = binary.BigEndian.Uint32(b[4:8])
	h.AckNum = binary.BigEndian.Uint32(b[8:12])
	h.DataOffset = b[12] >> 4
	h.Reserved = b[12] & 0x0f
	if len(b) < h.HeaderLength() {
		return TCPHeader{}, ErrPacketTooShort
	}
	h.Flags = unpackTCPFlags(b[13])
	h.Window = binary.BigEndian.Uint16(b[14:16])
	h.Checksum = binary.BigEndian.Uint16(b[16:18])
	h.UrgentPtr = binary.BigEndian.Uint16(b[18:20])
	return h, nil
}

// Write serializes h into the start of b.
func (h TCPHeader) Write(b []byte) error {
	n := h.HeaderLength()
	if n < TCPMinHeaderLen || len(b) < n {
		return ErrPacketTooShort
	}
	binary.BigEndian.PutUint16(b[0:2], h.SrcPort)
	binary.BigEndian.PutUint16(b[2:4], h.DstPort)
	binary.BigEndian.PutUint32(b[4:8], h.SeqNum)
	binary.BigEndian.PutUint32(b[8:12], h.AckNum)
	b[12] = (h.DataOffset << 4) | (h.Reserved & 0x0f)
	b[13] = h.Flags.pack()
	binary.BigEndian.PutUint16(b[14:16], h.Window)
	binary.BigEndian.PutUint16(b[16:18], h.Checksum)
	binary.BigEndian.PutUint16(b[18:20], h.UrgentPtr)
	return nil
}
