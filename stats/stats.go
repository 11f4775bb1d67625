// Package stats implements the process-wide atomic statistics collector
// (component C): raw counters plus rates derived from elapsed wall time.
package stats

import (
	"sync/atomic"
	"time"
)

// Collector holds one 64-bit atomic counter for each tracked quantity plus
// a monotonic start timestamp. Grounded on the teacher's cmd/bench Stats
// struct (atomic.Uint64/atomic.Int64 counters bumped from the receive/send
// hot loops), generalized to the counter set spec.md §4.C names.
type Collector struct {
	start time.Time

	packetsReceived    atomic.Uint64
	packetsTransmitted atomic.Uint64
	packetsDropped     atomic.Uint64
	packetsPassed      atomic.Uint64
	bytesReceived      atomic.Uint64
	bytesTransmitted   atomic.Uint64
	errors             atomic.Uint64
}

// New returns a Collector with its start timestamp set to now.
func New() *Collector {
	return &Collector{start: time.Now()}
}

// AddPacketsReceived and its siblings perform relaxed atomic additions,
// matching the "no consistency across counters" contract spec.md §4.C and
// §8 invariant 8 describe. n may be any non-negative delta, typically 1 for
// per-packet bookkeeping or a batch size when accounted in bulk.
func (c *Collector) AddPacketsReceived(n uint64)    { c.packetsReceived.Add(n) }
func (c *Collector) AddPacketsTransmitted(n uint64) { c.packetsTransmitted.Add(n) }
func (c *Collector) AddPacketsDropped(n uint64)     { c.packetsDropped.Add(n) }
func (c *Collector) AddPacketsPassed(n uint64)      { c.packetsPassed.Add(n) }
func (c *Collector) AddBytesReceived(n uint64)      { c.bytesReceived.Add(n) }
func (c *Collector) AddBytesTransmitted(n uint64)   { c.bytesTransmitted.Add(n) }
func (c *Collector) AddErrors(n uint64)             { c.errors.Add(n) }

// Snapshot is a point-in-time, non-atomic-as-a-whole read of every counter.
// Fields are read independently with relaxed ordering; callers must not
// assume PacketsReceived == PacketsDropped+PacketsPassed+PacketsTransmitted
// for a given Snapshot, since concurrent workers may update the counters
// between reads.
type Snapshot struct {
	PacketsReceived    uint64
	PacketsTransmitted uint64
	PacketsDropped     uint64
	PacketsPassed      uint64
	BytesReceived      uint64
	BytesTransmitted   uint64
	Errors             uint64
	Elapsed            time.Duration
}

// Snapshot reads every counter and computes Elapsed since the collector was
// created.
func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		PacketsReceived:    c.packetsReceived.Load(),
		PacketsTransmitted: c.packetsTransmitted.Load(),
		PacketsDropped:     c.packetsDropped.Load(),
		PacketsPassed:      c.packetsPassed.Load(),
		BytesReceived:      c.bytesReceived.Load(),
		BytesTransmitted:   c.bytesTransmitted.Load(),
		Errors:             c.errors.Load(),
		Elapsed:            time.Since(c.start),
	}
}

// RxPacketsPerSecond and its siblings are rates derived over Elapsed. They
// return 0 rather than dividing by zero when Elapsed rounds down to 0.
func (s Snapshot) RxPacketsPerSecond() float64 { return ratePerSecond(s.PacketsReceived, s.Elapsed) }
func (s Snapshot) TxPacketsPerSecond() float64 {
	return ratePerSecond(s.PacketsTransmitted, s.Elapsed)
}
func (s Snapshot) RxBytesPerSecond() float64 { return ratePerSecond(s.BytesReceived, s.Elapsed) }
func (s Snapshot) TxBytesPerSecond() float64 { return ratePerSecond(s.BytesTransmitted, s.Elapsed) }

func ratePerSecond(count uint64, elapsed time.Duration) float64 {
	seconds := elapsed.Seconds()
	if seconds <= 0 {
		return 0
	}
	return float64(count) / seconds
}
