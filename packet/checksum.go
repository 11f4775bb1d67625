package packet

import "encoding/binary"

// Checksum computes the 16-bit one's-complement sum over b per RFC 791/793,
// folding carries back until the high 16 bits are zero and returning the
// bitwise complement. Grounded on the teacher's inline ipChecksum helper in
// cmd/bench, generalized into a package-level function shared by every
// checksummed header.
func Checksum(b []byte) uint16 {
	var sum uint32
	for len(b) > 1 {
		sum += uint32(binary.BigEndian.Uint16(b))
		b = b[2:]
	}
	if len(b) > 0 {
		sum += uint32(b[0]) << 8
	}
	for sum>>16 != 0 {
		sum = (sum & 0xffff) + (sum >> 16)
	}
	return ^uint16(sum)
}
