//go:build linux

// Command send is the external traffic generator spec.md §1 assumes for
// tests: it injects Ethernet/IPv4/UDP frames from outside the AF_XDP path
// entirely, via an AF_PACKET raw socket, so it never touches the xsk/redirect
// packages under test. Adapted from the teacher's cmd/send/main.go, rebuilt
// on the packet codec package instead of the original's ad hoc byte packing.
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"

	"github.com/kbypass/xdpflow/packet"
	"github.com/kbypass/xdpflow/ratelimit"
)

func must(err error) {
	if err != nil {
		panic(err)
	}
}

// minUDPFrameSize is the smallest frame buildUDPFrame can write: Ethernet +
// IPv4 + UDP headers plus a 4-byte sequence number. Callers must size their
// buffer to at least this before calling buildUDPFrame.
const minUDPFrameSize = packet.EthernetHeaderLen + packet.IPv4MinHeaderLen + packet.UDPHeaderLen + 4

// buildUDPFrame writes an Ethernet/IPv4/UDP frame into buf and returns its
// length. payload carries a 4-byte sequence number followed by zero padding
// up to pktSize. buf must be at least minUDPFrameSize long.
func buildUDPFrame(buf []byte, srcMAC, dstMAC net.HardwareAddr, srcIP, dstIP net.IP, srcPort, dstPort uint16, seq uint32, pktSize int) int {
	if pktSize < minUDPFrameSize {
		pktSize = minUDPFrameSize
	}

	eth := packet.EthernetHeader{EtherType: packet.EtherTypeIPv4}
	copy(eth.Dst[:], dstMAC)
	copy(eth.Src[:], srcMAC)
	must(eth.Write(buf))

	ipStart := packet.EthernetHeaderLen
	udpStart := ipStart + packet.IPv4MinHeaderLen
	payloadLen := pktSize - udpStart - packet.UDPHeaderLen

	ip := packet.IPv4Header{
		Version:  4,
		IHL:      packet.IPv4MinHeaderLen / 4,
		TTL:      64,
		Protocol: packet.IPProtocolUDP,
		TotalLength: uint16(packet.IPv4MinHeaderLen +
			packet.UDPHeaderLen + payloadLen),
	}
	copy(ip.Src[:], srcIP.To4())
	copy(ip.Dst[:], dstIP.To4())
	must(ip.Write(buf[ipStart:]))
	ip.Checksum = packet.ComputeIPv4Checksum(buf[ipStart : ipStart+packet.IPv4MinHeaderLen])
	binary.BigEndian.PutUint16(buf[ipStart+10:], ip.Checksum)

	udp := packet.UDPHeader{
		SrcPort: srcPort,
		DstPort: dstPort,
		Length:  uint16(packet.UDPHeaderLen + payloadLen),
	}
	must(udp.Write(buf[udpStart:]))

	binary.BigEndian.PutUint32(buf[udpStart+packet.UDPHeaderLen:], seq)

	return pktSize
}

func main() {
	fIface := flag.String("i", "", "Interface")
	fDestMACStr := flag.String("d", "", "Destination MAC")
	fSrcIPStr := flag.String("s", "", "Source IP")
	fDestIPStr := flag.String("D", "", "Destination IP")
	fPort := flag.Int("p", 0, "Destination port")
	fCount := flag.Uint64("n", 0, "Packets to send")
	fPktSize := flag.Int("l", 1360, "Packet size")
	fPPS := flag.Uint64("r", 0, "Rate limit, packets per second (0 = unlimited)")
	flag.Parse()

	iface, err := net.InterfaceByName(*fIface)
	must(err)
	var srcMAC net.HardwareAddr = iface.HardwareAddr

	dstMAC, err := net.ParseMAC(*fDestMACStr)
	must(err)
	srcIP := net.ParseIP(*fSrcIPStr).To4()
	dstIP := net.ParseIP(*fDestIPStr).To4()

	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, int(htons(unix.ETH_P_ALL)))
	must(err)
	defer unix.Close(fd)

	addr := unix.SockaddrLinklayer{
		Protocol: htons(unix.ETH_P_IP),
		Ifindex:  iface.Index,
	}
	must(unix.Bind(fd, &addr))

	fmt.Fprintf(os.Stderr,
		"AF_PACKET TX:\niface=%s dst_mac=%s src_ip=%s dst_ip=%s dst_port=%d count=%d\n",
		*fIface, dstMAC, srcIP, dstIP, *fPort, *fCount,
	)

	throttle := ratelimit.New(*fPPS)
	bufSize := *fPktSize
	if bufSize < minUDPFrameSize {
		bufSize = minUDPFrameSize
	}
	buf := make([]byte, bufSize)

	var seq uint32
	var sent, bytes uint64
	start := time.Now()

	for sent < *fCount {
		n := buildUDPFrame(buf, srcMAC, dstMAC, srcIP, dstIP, 0, uint16(*fPort), seq, *fPktSize)
		if err := unix.Sendto(fd, buf[:n], 0, &addr); err != nil {
			fmt.Fprintf(os.Stderr, "sendto: %v\n", err)
			os.Exit(1)
		}
		seq++
		sent++
		bytes += uint64(n)
		throttle.ThrottleN(1)
	}

	elapsed := time.Since(start)
	pps := float64(sent) / elapsed.Seconds()

	fmt.Fprintf(os.Stderr,
		"finished: sent=%s bytes=%s | duration=%s | rate=%s pps\n",
		humanize.Comma(int64(sent)),
		humanize.Bytes(bytes),
		elapsed,
		humanize.Comma(int64(pps)),
	)
}

func htons(v uint16) uint16 {
	return (v << 8) | (v >> 8)
}
