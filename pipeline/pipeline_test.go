package pipeline

import (
	"testing"
	"time"

	"github.com/kbypass/xdpflow/packet"
)

// funcProcessor adapts a plain function to Processor, for tests that don't
// need private state.
type funcProcessor struct {
	fn func(pkt *packet.View) Result
}

func (f funcProcessor) Process(pkt *packet.View) Result { return f.fn(pkt) }

func newTestView(tag byte) *packet.View {
	buf := make([]byte, 14)
	buf[0] = tag
	return packet.NewView(buf, 0, packet.Origin{}, time.Time{})
}

func TestAddStageRejectsBeyondMaxStages(t *testing.T) {
	p := New(Config{MaxStages: 1})
	if err := p.AddStage(funcProcessor{fn: func(*packet.View) Result { return Result{Action: Pass()} }}); err != nil {
		t.Fatalf("first AddStage: %v", err)
	}
	if err := p.AddStage(funcProcessor{fn: func(*packet.View) Result { return Result{Action: Pass()} }}); err != ErrTooManyStages {
		t.Fatalf("got %v, want ErrTooManyStages", err)
	}
}

func TestAddStageInvokesInit(t *testing.T) {
	initCalled := false
	proc := &lifecycleProcessor{
		initFn: func() error { initCalled = true; return nil },
	}
	p := New(Config{MaxStages: 4})
	if err := p.AddStage(proc); err != nil {
		t.Fatalf("AddStage: %v", err)
	}
	if !initCalled {
		t.Fatalf("Init was not called")
	}
}

type lifecycleProcessor struct {
	initFn     func() error
	teardownFn func() error
}

func (l *lifecycleProcessor) Process(*packet.View) Result { return Result{Action: Pass()} }
func (l *lifecycleProcessor) Init() error {
	if l.initFn != nil {
		return l.initFn()
	}
	return nil
}
func (l *lifecycleProcessor) Teardown() error {
	if l.teardownFn != nil {
		return l.teardownFn()
	}
	return nil
}

func TestTeardownCallsEveryStage(t *testing.T) {
	var order []int
	p := New(Config{MaxStages: 4})
	for i := 0; i < 3; i++ {
		i := i
		_ = p.AddStage(&lifecycleProcessor{
			teardownFn: func() error { order = append(order, i); return nil },
		})
	}
	if err := p.Teardown(); err != nil {
		t.Fatalf("Teardown: %v", err)
	}
	if len(order) != 3 || order[0] != 0 || order[1] != 1 || order[2] != 2 {
		t.Fatalf("teardown order = %v, want [0 1 2]", order)
	}
}

func TestProcessPassThrough(t *testing.T) {
	p := New(Config{MaxStages: 2, StopOnDrop: true})
	_ = p.AddStage(funcProcessor{fn: func(*packet.View) Result { return Result{Action: Pass()} }})
	_ = p.AddStage(funcProcessor{fn: func(*packet.View) Result { return Result{Action: Pass()} }})
	r := p.Process(newTestView(0))
	if r.Action.Kind != ActionPass {
		t.Fatalf("got %v, want Pass", r.Action.Kind)
	}
}

func TestProcessStopOnDrop(t *testing.T) {
	secondCalled := false
	p := New(Config{MaxStages: 2, StopOnDrop: true})
	_ = p.AddStage(funcProcessor{fn: func(*packet.View) Result { return Result{Action: Drop()} }})
	_ = p.AddStage(funcProcessor{fn: func(*packet.View) Result { secondCalled = true; return Result{Action: Pass()} }})
	r := p.Process(newTestView(0))
	if r.Action.Kind != ActionDrop {
		t.Fatalf("got %v, want Drop", r.Action.Kind)
	}
	if secondCalled {
		t.Fatalf("stage after stop-on-drop Drop was still called")
	}
}

func TestProcessContinuesPastDropWithoutStopOnDrop(t *testing.T) {
	p := New(Config{MaxStages: 2, StopOnDrop: false})
	_ = p.AddStage(funcProcessor{fn: func(*packet.View) Result { return Result{Action: Drop()} }})
	_ = p.AddStage(funcProcessor{fn: func(*packet.View) Result { return Result{Action: Pass()} }})
	r := p.Process(newTestView(0))
	if r.Action.Kind != ActionPass {
		t.Fatalf("got %v, want Pass (later stage should overwrite the Drop)", r.Action.Kind)
	}
}

func TestProcessTransmitTerminatesImmediately(t *testing.T) {
	secondCalled := false
	p := New(Config{MaxStages: 2})
	_ = p.AddStage(funcProcessor{fn: func(*packet.View) Result { return Result{Action: Transmit(7, 0)} }})
	_ = p.AddStage(funcProcessor{fn: func(*packet.View) Result { secondCalled = true; return Result{Action: Pass()} }})
	r := p.Process(newTestView(0))
	if r.Action.Kind != ActionTransmit || r.Action.Ifindex != 7 {
		t.Fatalf("got %+v, want Transmit{Ifindex:7}", r.Action)
	}
	if secondCalled {
		t.Fatalf("stage after Transmit was still called")
	}
}

func TestProcessRecirculateBound(t *testing.T) {
	calls := 0
	p := New(Config{MaxStages: 3})
	_ = p.AddStage(funcProcessor{fn: func(*packet.View) Result {
		calls++
		return Result{Action: Recirculate()}
	}})
	r := p.Process(newTestView(0))
	if r.Action.Kind != ActionDrop {
		t.Fatalf("got %v, want Drop once the recirculation bound is exceeded", r.Action.Kind)
	}
	// hops must be capped at MaxStages before coercion to Drop.
	if calls > 4 {
		t.Fatalf("stage called %d times, recirculation bound not enforced", calls)
	}
}

// TestPipelineCompactionScenario is spec.md §8 scenario 6: pipeline
// [counter, filter-drop-even, forwarder] over an 8-packet batch; the filter
// drops even indices; the forwarder must observe the odd indices in order
// and the pipeline reports 4 survivors.
func TestPipelineCompactionScenario(t *testing.T) {
	const batchSize = 8

	var counterHits int
	counter := funcProcessor{fn: func(*packet.View) Result {
		counterHits++
		return Result{Action: Pass()}
	}}

	filter := funcProcessor{fn: func(pkt *packet.View) Result {
		idx := int(pkt.Raw()[0])
		if idx%2 == 0 {
			return Result{Action: Drop()}
		}
		return Result{Action: Pass()}
	}}

	var forwarderSeen []int
	forwarder := funcProcessor{fn: func(pkt *packet.View) Result {
		forwarderSeen = append(forwarderSeen, int(pkt.Raw()[0]))
		return Result{Action: Transmit(1, 0)}
	}}

	p := New(Config{MaxStages: 3, StopOnDrop: true})
	for _, stage := range []Processor{counter, filter, forwarder} {
		if err := p.AddStage(stage); err != nil {
			t.Fatalf("AddStage: %v", err)
		}
	}

	pkts := make([]*packet.View, batchSize)
	for i := 0; i < batchSize; i++ {
		pkts[i] = newTestView(byte(i))
	}
	results := make([]Result, batchSize)

	survived := p.ProcessBatch(pkts, results)

	if survived != 4 {
		t.Fatalf("survived = %d, want 4", survived)
	}
	if counterHits != batchSize {
		t.Fatalf("counter saw %d packets, want %d", counterHits, batchSize)
	}
	wantSeen := []int{1, 3, 5, 7}
	if len(forwarderSeen) != len(wantSeen) {
		t.Fatalf("forwarder saw %v, want %v", forwarderSeen, wantSeen)
	}
	for i, v := range wantSeen {
		if forwarderSeen[i] != v {
			t.Fatalf("forwarder saw %v, want %v", forwarderSeen, wantSeen)
		}
	}

	drops, transmits := 0, 0
	for i := 0; i < survived; i++ {
		if pkts[i].Raw()[0]%2 != 1 {
			t.Fatalf("survivor %d has even tag %d", i, pkts[i].Raw()[0])
		}
		if results[i].Action.Kind != ActionTransmit {
			t.Fatalf("survivor %d result = %v, want Transmit", i, results[i].Action.Kind)
		}
		transmits++
	}
	drops = batchSize - survived
	if drops != 4 || transmits != 4 {
		t.Fatalf("drops=%d transmits=%d, want 4/4", drops, transmits)
	}
}

func TestProcessBatchFallsBackToProcessWithoutBatchProcessor(t *testing.T) {
	p := New(Config{MaxStages: 1})
	_ = p.AddStage(funcProcessor{fn: func(pkt *packet.View) Result {
		if pkt.Raw()[0] == 0 {
			return Result{Action: Drop()}
		}
		return Result{Action: Pass()}
	}})
	pkts := []*packet.View{newTestView(0), newTestView(1), newTestView(2)}
	results := make([]Result, 3)
	survived := p.ProcessBatch(pkts, results)
	if survived != 2 {
		t.Fatalf("survived = %d, want 2", survived)
	}
}

type batchOnlyProcessor struct{}

func (batchOnlyProcessor) Process(pkt *packet.View) Result {
	if pkt.Raw()[0]%2 == 0 {
		return Result{Action: Drop()}
	}
	return Result{Action: Pass()}
}

func (batchOnlyProcessor) ProcessBatch(pkts []*packet.View, results []Result) int {
	for i, pkt := range pkts {
		if pkt.Raw()[0]%2 == 0 {
			results[i] = Result{Action: Drop()}
		} else {
			results[i] = Result{Action: Pass()}
		}
	}
	return len(pkts)
}

func TestProcessBatchUsesBatchProcessorCapability(t *testing.T) {
	p := New(Config{MaxStages: 1, StopOnDrop: true})
	_ = p.AddStage(batchOnlyProcessor{})
	pkts := []*packet.View{newTestView(0), newTestView(1), newTestView(2), newTestView(3)}
	results := make([]Result, 4)
	survived := p.ProcessBatch(pkts, results)
	if survived != 2 {
		t.Fatalf("survived = %d, want 2", survived)
	}
}
