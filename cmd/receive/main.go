//go:build linux

// Command receive runs a single-socket capture loop on one (interface,
// queue) pair until num-packets packets are seen or the user interrupts,
// per spec.md §6's "receive" CLI contract. Adapted from the teacher's
// cmd/recv/main.go, rebuilt on service+pipeline instead of the teacher's
// raw xsk-only receive loop.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/kbypass/xdpflow/packet"
	"github.com/kbypass/xdpflow/pipeline"
	"github.com/kbypass/xdpflow/service"
	"github.com/kbypass/xdpflow/xsk"
)

// countingProcessor passes every packet through untouched, closing done
// once it has seen limit packets (limit == 0 means unbounded).
type countingProcessor struct {
	limit    uint64
	received atomic.Uint64
	done     chan struct{}
	once     sync.Once
}

func (c *countingProcessor) Process(*packet.View) pipeline.Result {
	n := c.received.Add(1)
	if c.limit > 0 && n >= c.limit {
		c.once.Do(func() { close(c.done) })
	}
	return pipeline.Result{Action: pipeline.Pass()}
}

func main() {
	fIface := flag.String("interface", "", "interface name")
	fQueue := flag.Uint("queue", 0, "queue id")
	fNumPackets := flag.Uint64("num-packets", 0, "stop after this many packets (0 = unbounded)")
	fZeroCopy := flag.Bool("zerocopy", false, "prefer XDP_ZEROCOPY")
	flag.Parse()

	if *fIface == "" {
		fmt.Fprintln(os.Stderr, "missing -interface")
		os.Exit(1)
	}

	done := make(chan struct{})
	counter := &countingProcessor{limit: *fNumPackets, done: done}

	pl := pipeline.New(pipeline.Config{MaxStages: 1, StopOnDrop: true})
	if err := pl.AddStage(counter); err != nil {
		fmt.Fprintf(os.Stderr, "adding pipeline stage: %v\n", err)
		os.Exit(1)
	}

	cfg := service.Config{
		Interfaces: []service.InterfaceQueues{
			{Name: *fIface, Queues: []uint32{uint32(*fQueue)}},
		},
		SocketOptions: xsk.Options{
			RxRingNumDescs: xsk.DefaultRxRingNumDescs,
			PreferZerocopy: *fZeroCopy,
		},
		CollectStats: true,
	}

	svc, err := service.New(cfg, pl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "initializing service: %v\n", err)
		os.Exit(1)
	}
	defer svc.Close()

	if err := svc.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "starting service: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case <-done:
	case <-ctx.Done():
	}

	svc.Stop()

	snap := svc.Stats().Snapshot()
	fmt.Printf(
		"received=%d dropped=%d passed=%d errors=%d elapsed=%s\n",
		snap.PacketsReceived, snap.PacketsDropped, snap.PacketsPassed, snap.Errors, snap.Elapsed,
	)
}
