//go:build linux

// Command bench measures raw AF_XDP throughput between an egress queue and
// an ingress queue, bypassing the pipeline entirely — the one place spec.md's
// component boundaries call for throughput measurement below the
// processing layer. Adapted from the teacher's cmd/bench/main.go, retargeted
// at the renamed xsk package and the stats collector instead of the
// teacher's private Stats struct.
package main

import (
	"context"
	"encoding/binary"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"

	"github.com/kbypass/xdpflow/packet"
	"github.com/kbypass/xdpflow/stats"
	"github.com/kbypass/xdpflow/xsk"
)

type Config struct {
	Egress struct {
		Interface string `yaml:"interface"`
		Zerocopy  bool   `yaml:"zerocopy"`
		Queue     uint32 `yaml:"queue"`
		DestMAC   string `yaml:"dest-mac"`
		SrcIP     string `yaml:"src-ip"`
		DstIP     string `yaml:"dst-ip"`
		SrcPort   int    `yaml:"src-port"`
		DstPort   int    `yaml:"dst-port"`
		BatchSize uint32 `yaml:"batch-size"`
	} `yaml:"egress"`

	Ingress struct {
		Interface string `yaml:"interface"`
		Zerocopy  bool   `yaml:"zerocopy"`
		Queue     uint32 `yaml:"queue"`
		BatchSize uint32 `yaml:"batch-size"`
	} `yaml:"ingress"`

	MTU   uint64 `yaml:"mtu"`
	Count uint64 `yaml:"count"`
}

func loadConfig() (*Config, error) {
	fConfig := flag.String("config", "bench.yaml", "path to config YAML file")
	fIfaceE := flag.String("ie", "", "egress interface")
	fIfaceI := flag.String("ii", "", "ingress interface")
	fPreferZC := flag.Bool("z", false, "zerocopy")
	fDestMAC := flag.String("d", "", "dest mac")
	fSrcIP := flag.String("s", "", "src ip")
	fDstIP := flag.String("D", "", "dst ip")
	fPort := flag.Int("p", 0, "dst udp port")
	fCount := flag.Uint64("n", 0, "packet count")
	fPktSize := flag.Uint("l", 1500, "pkt size")
	fQueue := flag.Uint("q", 0, "egress queue id")
	flag.Parse()

	b, err := os.ReadFile(*fConfig)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	var conf Config
	if err := yaml.Unmarshal(b, &conf); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}

	if *fIfaceE != "" {
		conf.Egress.Interface = *fIfaceE
	}
	if *fIfaceI != "" {
		conf.Ingress.Interface = *fIfaceI
	}
	if *fPreferZC {
		conf.Egress.Zerocopy, conf.Ingress.Zerocopy = true, true
	}
	if *fDestMAC != "" {
		conf.Egress.DestMAC = *fDestMAC
	}
	if *fSrcIP != "" {
		conf.Egress.SrcIP = *fSrcIP
	}
	if *fDstIP != "" {
		conf.Egress.DstIP = *fDstIP
	}
	if *fPort != 0 {
		conf.Egress.DstPort = *fPort
	}
	if *fQueue != 0 {
		conf.Egress.Queue = uint32(*fQueue)
	}
	if *fPktSize != 1500 {
		conf.MTU = uint64(*fPktSize)
	}
	if *fCount != 0 {
		conf.Count = *fCount
	}

	if conf.Egress.Interface == "" {
		return nil, errors.New("egress.interface must be set (or use -ie)")
	}
	if conf.Ingress.Interface == "" {
		return nil, errors.New("ingress.interface must be set (or use -ii)")
	}
	if conf.Egress.DestMAC == "" {
		return nil, errors.New("egress.dest-mac must be set")
	}
	if _, err := net.ParseMAC(conf.Egress.DestMAC); err != nil {
		return nil, fmt.Errorf("invalid egress.dest-mac %q: %w", conf.Egress.DestMAC, err)
	}
	if net.ParseIP(conf.Egress.SrcIP) == nil {
		return nil, fmt.Errorf("invalid egress.src-ip %q", conf.Egress.SrcIP)
	}
	if net.ParseIP(conf.Egress.DstIP) == nil {
		return nil, fmt.Errorf("invalid egress.dst-ip %q", conf.Egress.DstIP)
	}
	if conf.Egress.DstPort <= 0 || conf.Egress.DstPort > 65535 {
		return nil, errors.New("egress.dst-port must be between 1-65535")
	}
	if conf.Egress.SrcPort <= 0 || conf.Egress.SrcPort > 65535 {
		return nil, errors.New("egress.src-port must be between 1-65535")
	}
	if conf.Count == 0 {
		return nil, errors.New("count must be > 0")
	}
	if conf.MTU < 64 || conf.MTU > 1500 {
		return nil, errors.New("unsupported mtu")
	}
	if conf.Egress.BatchSize == 0 {
		conf.Egress.BatchSize = xsk.DefaultBatchSize
	}
	if conf.Ingress.BatchSize == 0 {
		conf.Ingress.BatchSize = xsk.DefaultBatchSize
	}

	return &conf, nil
}

func fatalIf(err error, msgf string, a ...any) {
	if err != nil {
		fmt.Fprintf(os.Stderr, msgf+": %v\n", append(a, err)...)
		os.Exit(1)
	}
}

func buildUDPFrame(buf []byte, srcMAC, dstMAC net.HardwareAddr, srcIP, dstIP net.IP, srcPort, dstPort uint16, seq uint32, pktSize int) int {
	const minSize = packet.EthernetHeaderLen + packet.IPv4MinHeaderLen + packet.UDPHeaderLen + 4
	if pktSize < minSize {
		pktSize = minSize
	}

	eth := packet.EthernetHeader{EtherType: packet.EtherTypeIPv4}
	copy(eth.Dst[:], dstMAC)
	copy(eth.Src[:], srcMAC)
	_ = eth.Write(buf)

	ipStart := packet.EthernetHeaderLen
	udpStart := ipStart + packet.IPv4MinHeaderLen
	payloadLen := pktSize - udpStart - packet.UDPHeaderLen

	ip := packet.IPv4Header{
		Version:     4,
		IHL:         packet.IPv4MinHeaderLen / 4,
		TTL:         64,
		Protocol:    packet.IPProtocolUDP,
		TotalLength: uint16(packet.IPv4MinHeaderLen + packet.UDPHeaderLen + payloadLen),
	}
	copy(ip.Src[:], srcIP.To4())
	copy(ip.Dst[:], dstIP.To4())
	_ = ip.Write(buf[ipStart:])
	ip.Checksum = packet.ComputeIPv4Checksum(buf[ipStart : ipStart+packet.IPv4MinHeaderLen])
	binary.BigEndian.PutUint16(buf[ipStart+10:], ip.Checksum)

	udp := packet.UDPHeader{SrcPort: srcPort, DstPort: dstPort, Length: uint16(packet.UDPHeaderLen + payloadLen)}
	_ = udp.Write(buf[udpStart:])
	binary.BigEndian.PutUint32(buf[udpStart+packet.UDPHeaderLen:], seq)

	return pktSize
}

func runReceiver(ctx context.Context, sock *xsk.Socket, collector *stats.Collector, batchSize uint32) {
	buf := make([]xsk.Frame, batchSize)
	for ctx.Err() == nil {
		frames := sock.ReceiveBatch(buf)
		if len(frames) == 0 {
			fatalIf(sock.Wait(1), "RX wait")
			continue
		}
		var rxBytes uint64
		for _, fr := range frames {
			rxBytes += uint64(len(fr.Buf))
		}
		collector.AddPacketsReceived(uint64(len(frames)))
		collector.AddBytesReceived(rxBytes)
		for _, fr := range frames {
			sock.Release(xsk.Frame{Addr: fr.Addr})
		}
	}
}

func runSender(sock *xsk.Socket, conf *Config, collector *stats.Collector) uint64 {
	srcMAC, err := net.InterfaceByName(conf.Egress.Interface)
	fatalIf(err, "resolving egress interface")
	dstMAC, err := net.ParseMAC(conf.Egress.DestMAC)
	fatalIf(err, "parse dst mac")
	srcIP := net.ParseIP(conf.Egress.SrcIP).To4()
	dstIP := net.ParseIP(conf.Egress.DstIP).To4()
	pktSize := int(conf.MTU)

	var seq uint32
	var sent, completed uint64

	for sent < conf.Count {
		for {
			if sock.TxFree() > 0 && sock.FreeFrames() > 0 {
				break
			}
			if c := sock.PollCompletions(conf.Egress.BatchSize); c > 0 {
				completed += uint64(c)
			} else {
				fatalIf(sock.Wait(1), "TX wait")
			}
		}

		f := sock.NextFrame()
		n := buildUDPFrame(f.Buf, srcMAC.HardwareAddr, dstMAC, srcIP, dstIP,
			uint16(conf.Egress.SrcPort), uint16(conf.Egress.DstPort), seq, pktSize)
		fatalIf(sock.Submit(f.Addr, uint32(n)), "submit")
		fatalIf(sock.FlushTx(), "flush tx")

		seq++
		sent++
		collector.AddPacketsTransmitted(1)
		collector.AddBytesTransmitted(uint64(n))

		if c := sock.PollCompletions(1); c > 0 {
			completed += uint64(c)
		}
	}

	for completed < sent {
		if c := sock.PollCompletions(conf.Egress.BatchSize); c > 0 {
			completed += uint64(c)
		} else {
			fatalIf(sock.Wait(1), "final TX wait")
		}
	}
	return sent
}

func main() {
	conf, err := loadConfig()
	fatalIf(err, "reading config")

	fmt.Fprintf(os.Stderr, "FINAL CONFIG:\n")
	b, err := yaml.Marshal(conf)
	fatalIf(err, "encoding final YAML config")
	_, _ = os.Stderr.Write(b)
	fmt.Fprintln(os.Stderr)

	egressIface, err := net.InterfaceByName(conf.Egress.Interface)
	fatalIf(err, "egress iface")
	ingressIface, err := net.InterfaceByName(conf.Ingress.Interface)
	fatalIf(err, "ingress iface")

	egressSock, err := xsk.Open(egressIface.Index, conf.Egress.Queue, xsk.Options{
		TxRingNumDescs: xsk.DefaultTxRingNumDescs,
		BatchSize:      conf.Egress.BatchSize,
		PreferZerocopy: conf.Egress.Zerocopy,
	})
	fatalIf(err, "opening egress socket")
	defer egressSock.Close()

	ingressSock, err := xsk.Open(ingressIface.Index, conf.Ingress.Queue, xsk.Options{
		RxRingNumDescs: xsk.DefaultRxRingNumDescs,
		BatchSize:      conf.Ingress.BatchSize,
		PreferZerocopy: conf.Ingress.Zerocopy,
	})
	fatalIf(err, "opening ingress socket")
	defer ingressSock.Close()

	collector := stats.New()

	ctxRecv, cancelRecv := context.WithCancel(context.Background())
	defer cancelRecv()
	go runReceiver(ctxRecv, ingressSock, collector, conf.Ingress.BatchSize)

	stop := make(chan struct{})
	go func() {
		t := time.NewTicker(time.Second)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				s := collector.Snapshot()
				fmt.Printf("TX=%d RX=%d TX-PPS=%.0f RX-PPS=%.0f\n",
					s.PacketsTransmitted, s.PacketsReceived,
					s.TxPacketsPerSecond(), s.RxPacketsPerSecond())
			}
		}
	}()

	time.Sleep(300 * time.Millisecond) // let the receiver spin up

	sent := runSender(egressSock, conf, collector)

	time.Sleep(300 * time.Millisecond) // let in-flight packets arrive at RX
	cancelRecv()
	close(stop)

	snap := collector.Snapshot()
	drops := sent - snap.PacketsReceived

	p := message.NewPrinter(language.English)
	p.Print("\nFINAL REPORT\n")
	p.Printf(" Elapsed:           %.3f s\n", snap.Elapsed.Seconds())
	p.Printf(" TX:                %d packets\n", snap.PacketsTransmitted)
	p.Printf(" RX:                %d packets\n", snap.PacketsReceived)
	p.Printf(" TX Avg PPS:        %.0f\n", snap.TxPacketsPerSecond())
	p.Printf(" RX Avg PPS:        %.0f\n", snap.RxPacketsPerSecond())
	p.Printf(" TX Avg rate:       %.1f Mbps\n", snap.TxBytesPerSecond()*8/1e6)
	p.Printf(" RX Avg rate:       %.1f Mbps\n", snap.RxBytesPerSecond()*8/1e6)
	p.Printf(" Dropped:           %d (%.4f%%)\n", drops, float64(drops)/float64(sent)*100)
}
