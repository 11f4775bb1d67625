package packet

import (
	"bytes"
	"testing"
	"time"
)

func TestEthernetRoundTrip(t *testing.T) {
	h := EthernetHeader{
		Dst:       [6]byte{0x11, 0x22, 0x33, 0x44, 0x55, 0x66},
		Src:       [6]byte{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff},
		EtherType: EtherTypeIPv4,
	}
	buf := make([]byte, EthernetHeaderLen)
	if err := h.Write(buf); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := ParseEthernet(buf)
	if err != nil {
		t.Fatalf("ParseEthernet: %v", err)
	}
	if got != h {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, h)
	}
}

func TestEthernetTooShort(t *testing.T) {
	if _, err := ParseEthernet(make([]byte, 13)); err != ErrPacketTooShort {
		t.Fatalf("got %v, want ErrPacketTooShort", err)
	}
}

func TestIPv4RoundTrip(t *testing.T) {
	h := IPv4Header{
		Version: 4, IHL: 5, DSCP: 0, ECN: 0,
		TotalLength: 60, Identification: 0x1c46,
		Flags: 2, FragmentOffset: 0,
		TTL: 64, Protocol: IPProtocolTCP,
		Src: [4]byte{192, 168, 0, 1},
		Dst: [4]byte{192, 168, 0, 199},
	}
	buf := make([]byte, h.HeaderLength())
	if err := h.Write(buf); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := ParseIPv4(buf)
	if err != nil {
		t.Fatalf("ParseIPv4: %v", err)
	}
	if got != h {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, h)
	}
}

func TestIPv4TooShort(t *testing.T) {
	if _, err := ParseIPv4(make([]byte, 19)); err != ErrPacketTooShort {
		t.Fatalf("got %v, want ErrPacketTooShort", err)
	}
}

// TestIPv4ChecksumScenario checks the known-good checksum value for the
// 20-byte IPv4 header: 45 00 00 3C 1C 46 40 00 40 06 00 00 C0 A8 00 01 C0 A8
// 00 C7. Sum of the ten big-endian 16-bit words is 0x263A0, which folds to
// 0x63A2; the one's complement is 0x9C5D.
func TestIPv4ChecksumScenario(t *testing.T) {
	header := []byte{
		0x45, 0x00, 0x00, 0x3C, 0x1C, 0x46, 0x40, 0x00,
		0x40, 0x06, 0x00, 0x00, 0xC0, 0xA8, 0x00, 0x01,
		0xC0, 0xA8, 0x00, 0xC7,
	}
	got := ComputeIPv4Checksum(header)
	want := uint16(0x9C5D)
	if got != want {
		t.Fatalf("checksum = 0x%04X, want 0x%04X", got, want)
	}
	// ComputeIPv4Checksum must not mutate its input.
	if header[10] != 0x00 || header[11] != 0x00 {
		t.Fatalf("input header mutated")
	}
}

func TestTCPFlagsRoundTrip(t *testing.T) {
	flags := TCPFlags{SYN: true, ACK: true, ECE: true}
	if got := unpackTCPFlags(flags.pack()); got != flags {
		t.Fatalf("flags round trip mismatch: got %+v, want %+v", got, flags)
	}
}

func TestTCPRoundTrip(t *testing.T) {
	h := TCPHeader{
		SrcPort: 1234, DstPort: 80,
		SeqNum: 100, AckNum: 200,
		DataOffset: 5, Reserved: 0,
		Flags:     TCPFlags{SYN: true, ACK: true},
		Window:    65535,
		Checksum:  0xdead,
		UrgentPtr: 0,
	}
	buf := make([]byte, h.HeaderLength())
	if err := h.Write(buf); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := ParseTCP(buf)
	if err != nil {
		t.Fatalf("ParseTCP: %v", err)
	}
	if got != h {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, h)
	}
}

func TestTCPTooShort(t *testing.T) {
	if _, err := ParseTCP(make([]byte, 19)); err != ErrPacketTooShort {
		t.Fatalf("got %v, want ErrPacketTooShort", err)
	}
}

func TestTCPOptionsLengthEnforced(t *testing.T) {
	buf := make([]byte, 20)
	buf[12] = 6 << 4 // DataOffset=6, i.e. 24 bytes, longer than buf
	if _, err := ParseTCP(buf); err != ErrPacketTooShort {
		t.Fatalf("got %v, want ErrPacketTooShort", err)
	}
}

func TestUDPRoundTrip(t *testing.T) {
	h := UDPHeader{SrcPort: 53, DstPort: 12345, Length: 16, Checksum: 0xbeef}
	buf := make([]byte, UDPHeaderLen)
	if err := h.Write(buf); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := ParseUDP(buf)
	if err != nil {
		t.Fatalf("ParseUDP: %v", err)
	}
	if got != h {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, h)
	}
}

func TestUDPTooShort(t *testing.T) {
	if _, err := ParseUDP(make([]byte, 7)); err != ErrPacketTooShort {
		t.Fatalf("got %v, want ErrPacketTooShort", err)
	}
}

func TestICMPRoundTrip(t *testing.T) {
	h := ICMPHeader{Type: ICMPTypeEchoRequest, Code: 0, Checksum: 0x1234, RestOfHeader: (7 << 16) | 3}
	buf := make([]byte, ICMPHeaderLen)
	if err := h.Write(buf); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := ParseICMP(buf)
	if err != nil {
		t.Fatalf("ParseICMP: %v", err)
	}
	if got != h {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, h)
	}
	if got.Identifier() != 7 || got.Sequence() != 3 {
		t.Fatalf("Identifier/Sequence = %d/%d, want 7/3", got.Identifier(), got.Sequence())
	}
}

func TestICMPTooShort(t *testing.T) {
	if _, err := ParseICMP(make([]byte, 7)); err != ErrPacketTooShort {
		t.Fatalf("got %v, want ErrPacketTooShort", err)
	}
}

func TestARPRoundTrip(t *testing.T) {
	h := ARPHeader{
		HardwareType: 1, ProtocolType: EtherTypeIPv4,
		HardwareAddrLen: 6, ProtocolAddrLen: 4,
		Operation:          ARPOpRequest,
		SenderHardwareAddr: [6]byte{1, 2, 3, 4, 5, 6},
		SenderProtocolAddr: [4]byte{192, 168, 0, 1},
		TargetHardwareAddr: [6]byte{0, 0, 0, 0, 0, 0},
		TargetProtocolAddr: [4]byte{192, 168, 0, 2},
	}
	buf := make([]byte, ARPHeaderLen)
	if err := h.Write(buf); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := ParseARP(buf)
	if err != nil {
		t.Fatalf("ParseARP: %v", err)
	}
	if got != h {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, h)
	}
}

func TestARPTooShort(t *testing.T) {
	if _, err := ParseARP(make([]byte, 27)); err != ErrPacketTooShort {
		t.Fatalf("got %v, want ErrPacketTooShort", err)
	}
}

func TestChecksumKnownValue(t *testing.T) {
	// all-zero 20-byte buffer sums to zero, complement is 0xFFFF.
	if got := Checksum(make([]byte, 20)); got != 0xFFFF {
		t.Fatalf("checksum of zero buffer = 0x%04X, want 0xFFFF", got)
	}
}

func TestChecksumOddLength(t *testing.T) {
	a := Checksum([]byte{0x00, 0x01, 0xff})
	b := Checksum([]byte{0x00, 0x01, 0xff, 0x00})
	if a != b {
		t.Fatalf("odd-length padding mismatch: %04x vs %04x", a, b)
	}
}

func buildIPv4TCPFrame(t *testing.T, payload []byte) []byte {
	t.Helper()
	eth := EthernetHeader{EtherType: EtherTypeIPv4}
	ip := IPv4Header{
		Version: 4, IHL: 5,
		TotalLength: uint16(IPv4MinHeaderLen + TCPMinHeaderLen + len(payload)),
		TTL:         64, Protocol: IPProtocolTCP,
		Src: [4]byte{10, 0, 0, 1}, Dst: [4]byte{10, 0, 0, 2},
	}
	tcp := TCPHeader{SrcPort: 1111, DstPort: 2222, DataOffset: 5, Flags: TCPFlags{SYN: true}}

	buf := make([]byte, EthernetHeaderLen+ip.HeaderLength()+tcp.HeaderLength()+len(payload))
	if err := eth.Write(buf); err != nil {
		t.Fatalf("eth.Write: %v", err)
	}
	if err := ip.Write(buf[EthernetHeaderLen:]); err != nil {
		t.Fatalf("ip.Write: %v", err)
	}
	if err := tcp.Write(buf[EthernetHeaderLen+ip.HeaderLength():]); err != nil {
		t.Fatalf("tcp.Write: %v", err)
	}
	copy(buf[EthernetHeaderLen+ip.HeaderLength()+tcp.HeaderLength():], payload)
	return buf
}

func TestViewLayeredAccessors(t *testing.T) {
	payload := []byte("hello")
	buf := buildIPv4TCPFrame(t, payload)
	v := NewView(buf, 0x1000, Origin{Ifindex: 2, QueueID: 0}, time.Now())

	eth, err := v.Ethernet()
	if err != nil {
		t.Fatalf("Ethernet: %v", err)
	}
	if eth.EtherType != EtherTypeIPv4 {
		t.Fatalf("EtherType = 0x%04x, want IPv4", eth.EtherType)
	}

	ip, err := v.IPv4()
	if err != nil {
		t.Fatalf("IPv4: %v", err)
	}
	if ip.Protocol != IPProtocolTCP {
		t.Fatalf("Protocol = %d, want TCP", ip.Protocol)
	}

	tcp, err := v.TCP()
	if err != nil {
		t.Fatalf("TCP: %v", err)
	}
	if tcp.SrcPort != 1111 || tcp.DstPort != 2222 {
		t.Fatalf("ports = %d/%d, want 1111/2222", tcp.SrcPort, tcp.DstPort)
	}

	if !bytes.Equal(v.PayloadData(), payload) {
		t.Fatalf("PayloadData = %q, want %q", v.PayloadData(), payload)
	}
}

func TestViewModifyInvalidatesDependents(t *testing.T) {
	buf := buildIPv4TCPFrame(t, []byte("x"))
	v := NewView(buf, 0, Origin{}, time.Now())

	if _, err := v.TCP(); err != nil {
		t.Fatalf("TCP: %v", err)
	}

	// Rewriting the EtherType (inside the Ethernet footprint) must
	// invalidate the downstream IPv4 and TCP caches too.
	newEtherType := make([]byte, 2)
	newEtherType[0], newEtherType[1] = 0x08, 0x06 // ARP
	if err := v.Modify(12, newEtherType); err != nil {
		t.Fatalf("Modify: %v", err)
	}
	if v.ipv4Valid || v.tcpValid {
		t.Fatalf("Modify did not invalidate dependent caches")
	}

	// The 41 bytes after the Ethernet header hold a full 28-byte ARP
	// message, so the ARP accessor resolves against the rewritten frame.
	if _, err := v.ARP(); err != nil {
		t.Fatalf("ARP after EtherType rewrite: %v", err)
	}
}

func TestViewModifyOutsideFootprintPreservesCache(t *testing.T) {
	payload := []byte("hello")
	buf := buildIPv4TCPFrame(t, payload)
	v := NewView(buf, 0, Origin{}, time.Now())

	if _, err := v.TCP(); err != nil {
		t.Fatalf("TCP: %v", err)
	}
	payloadOff := len(buf) - len(payload)
	if err := v.Modify(payloadOff, []byte("HELLO")); err != nil {
		t.Fatalf("Modify: %v", err)
	}
	if !v.tcpValid {
		t.Fatalf("Modify outside TCP footprint invalidated TCP cache")
	}
	if !bytes.Equal(v.PayloadData(), []byte("HELLO")) {
		t.Fatalf("PayloadData = %q, want HELLO", v.PayloadData())
	}
}

func TestViewModifyOutOfBounds(t *testing.T) {
	buf := buildIPv4TCPFrame(t, nil)
	v := NewView(buf, 0, Origin{}, time.Now())
	if err := v.Modify(len(buf)-1, []byte{1, 2, 3}); err != ErrModificationOutOfBounds {
		t.Fatalf("got %v, want ErrModificationOutOfBounds", err)
	}
}
