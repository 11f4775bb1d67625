package service

import (
	"log/slog"
	"runtime"
	"time"

	"github.com/kbypass/xdpflow/packet"
	"github.com/kbypass/xdpflow/pipeline"
	"github.com/kbypass/xdpflow/xsk"
)

// runWorker is the per-socket loop of spec.md §4.I. Grounded on the
// teacher's per-worker goroutine body in RunProcessor (processor.go):
// runtime.LockOSThread for the socket's lifetime, a poll-then-drain loop,
// and cross-socket forwarding serialized by a per-target mutex.
//
// Step 4's "pipeline error" outcome from spec.md §4.I has no analogue
// here: pipeline.Processor.Process returns a Result, not an error, so
// pipeline execution cannot fail at the worker layer by construction.
// Recirculate is likewise never observed here — Pipeline.ProcessBatch
// resolves it internally before returning, so the worker-layer "treat as
// Pass" fallback spec.md §4.I describes is satisfied by the pipeline never
// surfacing the action in the first place.
func runWorker(svc *Service, rec *socketRecord) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	batchSize := svc.cfg.BatchSize
	pollTimeoutMS := svc.cfg.PollTimeoutMS

	frames := make([]xsk.Frame, batchSize)
	views := make([]*packet.View, 0, batchSize)
	results := make([]pipeline.Result, batchSize)

	for {
		select {
		case <-svc.stopCh:
			return
		default:
		}

		if err := rec.sock.Wait(pollTimeoutMS); err != nil {
			svc.stats.AddErrors(1)
			continue
		}

		drained := rec.sock.ReceiveBatch(frames)
		if len(drained) == 0 {
			continue
		}

		now := time.Now()
		views = views[:0]
		var rxBytes uint64
		for _, f := range drained {
			views = append(views, packet.NewView(f.Buf, f.Addr, packet.Origin{
				Ifindex: rec.ifindex,
				QueueID: rec.queueID,
			}, now))
			rxBytes += uint64(len(f.Buf))
		}
		if svc.cfg.CollectStats {
			svc.stats.AddPacketsReceived(uint64(len(drained)))
			svc.stats.AddBytesReceived(rxBytes)
		}

		survived := svc.pipe.ProcessBatch(views, results[:len(views)])

		// ProcessBatch never returns a survivor whose action is Drop (a
		// dropped entry is, by definition, compacted out), so every
		// surviving entry here is either Pass or Transmit.
		for i := 0; i < survived; i++ {
			switch results[i].Action.Kind {
			case pipeline.ActionTransmit:
				svc.transmit(views[i], results[i].Action)
			default:
				if svc.cfg.CollectStats {
					svc.stats.AddPacketsPassed(1)
				}
			}
		}
		if svc.cfg.CollectStats {
			svc.stats.AddPacketsDropped(uint64(len(views) - survived))
		}

		rec.txMu.Lock()
		rec.sock.PollCompletions(batchSize)
		rec.txMu.Unlock()

		for _, f := range drained {
			rec.sock.Release(xsk.Frame{Addr: f.Addr})
		}
	}
}

// transmit copies view's bytes into a fresh frame on the target socket and
// submits it, serialized by the target's txMu since a socket's TX ring may
// be written only by its own owning thread or, for forwarded traffic, under
// this lock — mirroring the teacher's forward()/flushPending() txLock.
func (svc *Service) transmit(view *packet.View, action pipeline.Action) {
	target, ok := svc.byTarget[targetKey{ifindex: action.Ifindex, queueID: action.QueueID}]
	if !ok {
		svc.stats.AddErrors(1)
		return
	}

	target.txMu.Lock()
	defer target.txMu.Unlock()

	frame := target.sock.NextFrame()
	if len(frame.Buf) == 0 {
		svc.stats.AddErrors(1)
		return
	}
	n := copy(frame.Buf, view.Raw())
	if err := target.sock.Submit(frame.Addr, uint32(n)); err != nil {
		slog.Warn("submitting forwarded frame failed", "err", err)
		svc.stats.AddErrors(1)
		return
	}
	if err := target.sock.FlushTx(); err != nil {
		slog.Warn("flushing forwarded frame failed", "err", err)
		svc.stats.AddErrors(1)
		return
	}
	if svc.cfg.CollectStats {
		svc.stats.AddPacketsTransmitted(1)
		svc.stats.AddBytesTransmitted(uint64(n))
	}
}
