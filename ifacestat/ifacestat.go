// Package ifacestat reads the kernel's physical-layer interface counters via
// ethtool, for comparison against the software counters the pipeline and
// stats collector derive from AF_XDP ring traffic. A router or bench run
// that reports software rx/tx equal to the NIC's own tx_packets_phy/
// rx_packets_phy delta over the same interval is evidence no frames were
// silently dropped between the wire and userspace.
package ifacestat

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os/exec"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// Counter identifies one of the four ethtool counters this package tracks.
type Counter int

const (
	TxPackets Counter = iota
	TxBytes
	RxPackets
	RxBytes
)

func (c Counter) String() string {
	switch c {
	case TxPackets:
		return "tx_packets_phy"
	case TxBytes:
		return "tx_bytes_phy"
	case RxPackets:
		return "rx_packets_phy"
	case RxBytes:
		return "rx_bytes_phy"
	}
	return ""
}

// IfaceStats holds the requested counters for one interface.
type IfaceStats map[Counter]uint64

// PacketsPerSecond and BytesPerSecond turn a delta snapshot (the result of
// Stats.Since) into rates, matching the elapsed window a router or bench run
// measured its software counters over. Division by zero elapsed seconds
// yields 0, not NaN or Inf, mirroring stats.Snapshot's rate derivation.
func (s IfaceStats) PacketsPerSecond(rx bool, elapsed time.Duration) float64 {
	if rx {
		return ratePerSecond(s[RxPackets], elapsed)
	}
	return ratePerSecond(s[TxPackets], elapsed)
}

func (s IfaceStats) BytesPerSecond(rx bool, elapsed time.Duration) float64 {
	if rx {
		return ratePerSecond(s[RxBytes], elapsed)
	}
	return ratePerSecond(s[TxBytes], elapsed)
}

func ratePerSecond(count uint64, elapsed time.Duration) float64 {
	secs := elapsed.Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(count) / secs
}

// Stats maps interface name to its counters, for interfaces compared side
// by side such as a router's two legs.
type Stats map[string]IfaceStats

// Snapshot runs ethtool -S on all interfaces and returns their counters as
// Stats.
func Snapshot(ifaces []string, counters ...Counter) (Stats, error) {
	s := make(Stats)
	for _, iface := range ifaces {
		vals, err := readIface(iface, counters)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", iface, err)
		}
		s[iface] = vals
	}
	return s, nil
}

// Since computes s(now) - old.
func (s Stats) Since(old Stats) Stats {
	out := make(Stats)
	for ifc, now := range s {
		prev := old[ifc]
		diff := make(IfaceStats, len(now))
		for ctr, v := range now {
			diff[ctr] = v - prev[ctr]
		}
		out[ifc] = diff
	}
	return out
}

func readIface(name string, counters []Counter) (IfaceStats, error) {
	out, err := exec.Command("ethtool", "-S", name).Output()
	if err != nil {
		return nil, err
	}

	// convert counters -> lookup table
	want := make(map[string]Counter, len(counters))
	for _, c := range counters {
		want[c.String()] = c
	}

	found := make(IfaceStats, len(counters))

	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		parts := strings.Fields(line)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSuffix(parts[0], ":")
		ctr, ok := want[key]
		if !ok {
			continue
		}

		var v uint64
		if _, err := fmt.Sscan(parts[1], &v); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		found[ctr] = v
	}

	// ensure all counters exist
	for _, ctr := range counters {
		if _, ok := found[ctr]; !ok {
			found[ctr] = 0
		}
	}

	return found, nil
}

// Print reports a delta Stats (typically after.Since(before)) alongside the
// per-second rates implied by elapsed, the wall-clock duration the snapshots
// bracketed. A zero elapsed prints raw counters with no rate line.
func Print(w io.Writer, s Stats, elapsed time.Duration, aliases map[string]string) error {
	ifaces := make([]string, 0, len(s))
	for iface := range s {
		ifaces = append(ifaces, iface)
	}
	slices.Sort(ifaces)

	for _, iface := range ifaces {
		stats := s[iface]

		txPkts := stats[TxPackets]
		txBytes := stats[TxBytes]
		rxPkts := stats[RxPackets]
		rxBytes := stats[RxBytes]

		if alias, ok := aliases[iface]; ok {
			fmt.Fprintf(w, "%s (%s):\n", iface, alias)
		} else {
			fmt.Fprintf(w, "%s :\n", iface)
		}

		fmt.Fprintf(w, "  TX   %-12d  ≈ %-8s (%s)\n",
			txPkts, humanize.Bytes(txBytes), humanize.Comma(int64(txBytes)),
		)
		fmt.Fprintf(w, "  RX   %-12d  ≈ %-8s (%s)\n",
			rxPkts, humanize.Bytes(rxBytes), humanize.Comma(int64(rxBytes)),
		)

		if elapsed > 0 {
			fmt.Fprintf(w, "  TX/s %-12.0f ≈ %-8s/s\n",
				stats.PacketsPerSecond(false, elapsed),
				humanize.Bytes(uint64(stats.BytesPerSecond(false, elapsed))),
			)
			fmt.Fprintf(w, "  RX/s %-12.0f ≈ %-8s/s\n",
				stats.PacketsPerSecond(true, elapsed),
				humanize.Bytes(uint64(stats.BytesPerSecond(true, elapsed))),
			)
		}
	}

	return nil
}
