package packet

import "time"

// Origin identifies where a View's frame was received.
type Origin struct {
	Ifindex int
	QueueID uint32
}

// View is a mutable, zero-copy reference into a UMEM frame, with lazily
// parsed and memoized protocol headers. Grounded on the teacher's
// afxdp.Frame{Buf, Addr} plus the ad hoc Packet type in processor.go,
// generalized into the layered accessor set spec.md §4.B names.
//
// A View's lifetime is scoped to one pipeline pass: once the worker that
// produced it returns the backing frame to the Fill ring, the buffer may be
// reused by the kernel and the View must not be read again.
type View struct {
	buf       []byte
	addr      uint64
	origin    Origin
	timestamp time.Time

	// parsedEnd is the byte offset immediately after the deepest
	// successfully parsed header; PayloadData starts here.
	parsedEnd int

	ethValid bool
	eth      EthernetHeader

	ipv4Valid bool
	ipv4Off   int
	ipv4      IPv4Header

	l4Off int

	tcpValid bool
	tcp      TCPHeader

	udpValid bool
	udp      UDPHeader

	icmpValid bool
	icmp      ICMPHeader

	arpValid bool
	arpOff   int
	arp      ARPHeader
}

// NewView wraps buf (already sized to the descriptor's length) as a packet
// view originating from (ifindex, queueID) at addr in UMEM.
func NewView(buf []byte, addr uint64, origin Origin, timestamp time.Time) *View {
	return &View{buf: buf, addr: addr, origin: origin, timestamp: timestamp}
}

// Len returns the frame length in bytes.
func (v *View) Len() int { return len(v.buf) }

// Raw returns the full frame contents. Callers should treat the returned
// slice as read-only; use Modify to mutate.
func (v *View) Raw() []byte { return v.buf }

// Payload returns the full frame contents as a mutable slice, for
// processors that write in place without going through Modify's cache
// invalidation (they are then responsible for invalidating stale caches
// themselves via Modify, or by not re-reading memoized headers).
func (v *View) Payload() []byte { return v.buf }

// Addr is the originating UMEM frame address.
func (v *View) Addr() uint64 { return v.addr }

// Origin identifies which (interface, queue) this frame arrived on.
func (v *View) Origin() Origin { return v.origin }

// Timestamp is the time the worker observed this frame, if recorded.
func (v *View) Timestamp() time.Time { return v.timestamp }

// Ethernet parses (or returns the cached) Ethernet header at offset 0.
func (v *View) Ethernet() (*EthernetHeader, error) {
	if !v.ethValid {
		h, err := ParseEthernet(v.buf)
		if err != nil {
			return nil, err
		}
		v.eth = h
		v.ethValid = true
		if v.parsedEnd < EthernetHeaderLen {
			v.parsedEnd = EthernetHeaderLen
		}
	}
	return &v.eth, nil
}

// IPv4 resolves Ethernet first, then parses (or returns the cached) IPv4
// header immediately following it.
func (v *View) IPv4() (*IPv4Header, error) {
	if !v.ipv4Valid {
		if _, err := v.Ethernet(); err != nil {
			return nil, err
		}
		h, err := ParseIPv4(v.buf[EthernetHeaderLen:])
		if err != nil {
			return nil, err
		}
		v.ipv4 = h
		v.ipv4Off = EthernetHeaderLen
		v.ipv4Valid = true
		end := v.ipv4Off + h.HeaderLength()
		if v.parsedEnd < end {
			v.parsedEnd = end
		}
	}
	return &v.ipv4, nil
}

// TCP resolves IPv4 (and transitively Ethernet) first, then parses the TCP
// header following the IPv4 header.
func (v *View) TCP() (*TCPHeader, error) {
	if !v.tcpValid {
		ip, err := v.IPv4()
		if err != nil {
			return nil, err
		}
		off := v.ipv4Off + ip.HeaderLength()
		h, err := ParseTCP(v.buf[off:])
		if err != nil {
			return nil, err
		}
		v.tcp = h
		v.l4Off = off
		v.tcpValid = true
		end := off + h.HeaderLength()
		if v.parsedEnd < end {
			v.parsedEnd = end
		}
	}
	return &v.tcp, nil
}

// UDP resolves IPv4 first, then parses the UDP header following it.
func (v *View) UDP() (*UDPHeader, error) {
	if !v.udpValid {
		ip, err := v.IPv4()
		if err != nil {
			return nil, err
		}
		off := v.ipv4Off + ip.HeaderLength()
		h, err := ParseUDP(v.buf[off:])
		if err != nil {
			return nil, err
		}
		v.udp = h
		v.l4Off = off
		v.udpValid = true
		end := off + UDPHeaderLen
		if v.parsedEnd < end {
			v.parsedEnd = end
		}
	}
	return &v.udp, nil
}

// ICMP resolves IPv4 first, then parses the ICMP header following it.
func (v *View) ICMP() (*ICMPHeader, error) {
	if !v.icmpValid {
		ip, err := v.IPv4()
		if err != nil {
			return nil, err
		}
		off := v.ipv4Off + ip.HeaderLength()
		h, err := ParseICMP(v.buf[off:])
		if err != nil {
			return nil, err
		}
		v.icmp = h
		v.l4Off = off
		v.icmpValid = true
		end := off + ICMPHeaderLen
		if v.parsedEnd < end {
			v.parsedEnd = end
		}
	}
	return &v.icmp, nil
}

// ARP resolves Ethernet first, then parses the ARP message following it.
func (v *View) ARP() (*ARPHeader, error) {
	if !v.arpValid {
		if _, err := v.Ethernet(); err != nil {
			return nil, err
		}
		h, err := ParseARP(v.buf[EthernetHeaderLen:])
		if err != nil {
			return nil, err
		}
		v.arp = h
		v.arpOff = EthernetHeaderLen
		v.arpValid = true
		end := v.arpOff + ARPHeaderLen
		if v.parsedEnd < end {
			v.parsedEnd = end
		}
	}
	return &v.arp, nil
}

// PayloadData returns the bytes following the deepest header resolved so
// far by an accessor call. Calling it before any accessor returns the
// whole frame.
func (v *View) PayloadData() []byte { return v.buf[v.parsedEnd:] }

func intersects(aStart, aEnd, bStart, bEnd int) bool {
	return aStart < bEnd && bStart < aEnd
}

// Modify overwrites v.buf[offset:offset+len(data)] with data, invalidating
// every cached header whose footprint intersects the modified range —
// along with, per the parse dependency order (Ethernet -> IPv4 ->
// TCP/UDP/ICMP, Ethernet -> ARP), every header that depends on it.
func (v *View) Modify(offset int, data []byte) error {
	if offset < 0 || offset+len(data) > len(v.buf) {
		return ErrModificationOutOfBounds
	}
	copy(v.buf[offset:], data)
	end := offset + len(data)

	if v.ethValid && intersects(0, EthernetHeaderLen, offset, end) {
		v.ethValid = false
	}
	if !v.ethValid {
		v.ipv4Valid = false
		v.arpValid = false
	}
	if v.ipv4Valid && intersects(v.ipv4Off, v.ipv4Off+v.ipv4.HeaderLength(), offset, end) {
		v.ipv4Valid = false
	}
	if !v.ipv4Valid {
		v.tcpValid = false
		v.udpValid = false
		v.icmpValid = false
	}
	if v.tcpValid && intersects(v.l4Off, v.l4Off+v.tcp.HeaderLength(), offset, end) {
		v.tcpValid = false
	}
	if v.udpValid && intersects(v.l4Off, v.l4Off+UDPHeaderLen, offset, end) {
		v.udpValid = false
	}
	if v.icmpValid && intersects(v.l4Off, v.l4Off+ICMPHeaderLen, offset, end) {
		v.icmpValid = false
	}
	if v.arpValid && intersects(v.arpOff, v.arpOff+ARPHeaderLen, offset, end) {
		v.arpValid = false
	}

	v.recomputeParsedEnd()
	return nil
}

func (v *View) recomputeParsedEnd() {
	end := 0
	if v.ethValid && end < EthernetHeaderLen {
		end = EthernetHeaderLen
	}
	if v.ipv4Valid {
		if e := v.ipv4Off + v.ipv4.HeaderLength(); e > end {
			end = e
		}
	}
	if v.tcpValid {
		if e := v.l4Off + v.tcp.HeaderLength(); e > end {
			end = e
		}
	}
	if v.udpValid {
		if e := v.l4Off + UDPHeaderLen; e > end {
			end = e
		}
	}
	if v.icmpValid {
		if e := v.l4Off + ICMPHeaderLen; e > end {
			end = e
		}
	}
	if v.arpValid {
		if e := v.arpOff + ARPHeaderLen; e > end {
			end = e
		}
	}
	v.parsedEnd = end
}
