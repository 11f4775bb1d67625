package pipeline

import "github.com/kbypass/xdpflow/packet"

// ActionKind tags the disposition a processor chose for a packet.
type ActionKind int

const (
	// ActionPass moves the packet on to the next stage, or, at the final
	// stage, ends the walk with Pass as the overall result.
	ActionPass ActionKind = iota
	// ActionDrop discards the packet. Whether it terminates the walk
	// immediately depends on the pipeline's StopOnDrop policy.
	ActionDrop
	// ActionTransmit terminates the walk and names an (interface, queue)
	// to transmit the frame on.
	ActionTransmit
	// ActionRecirculate restarts the walk from the first stage on the
	// same packet, subject to a bounded re-entry count.
	ActionRecirculate
)

func (k ActionKind) String() string {
	switch k {
	case ActionPass:
		return "pass"
	case ActionDrop:
		return "drop"
	case ActionTransmit:
		return "transmit"
	case ActionRecirculate:
		return "recirculate"
	default:
		return "unknown"
	}
}

// Action is the tagged disposition a processor or the pipeline returns for
// a packet. Ifindex/QueueID are only meaningful when Kind is
// ActionTransmit.
type Action struct {
	Kind    ActionKind
	Ifindex int
	QueueID uint32
}

// Pass, Drop and Recirculate are the zero-argument action constructors;
// Transmit takes the target (interface, queue).
func Pass() Action        { return Action{Kind: ActionPass} }
func Drop() Action        { return Action{Kind: ActionDrop} }
func Recirculate() Action { return Action{Kind: ActionRecirculate} }
func Transmit(ifindex int, queueID uint32) Action {
	return Action{Kind: ActionTransmit, Ifindex: ifindex, QueueID: queueID}
}

// Result is what a processor returns for one packet: the chosen action and
// whether the processor mutated the packet's bytes.
type Result struct {
	Action   Action
	Modified bool
}

// Processor is the mandatory capability every pipeline stage implements.
// Grounded on the teacher's RunProcessor callback shape in processor.go,
// lifted into the capability-interface shape spec.md §9 names in place of
// the source's function-pointer-plus-context wrapper.
type Processor interface {
	Process(pkt *packet.View) Result
}

// BatchProcessor is an optional capability: a stage implementing it gets
// its ProcessBatch called directly on the pipeline's active prefix instead
// of the pipeline falling back to iterating Process. n is the number of
// leading entries in results the stage actually wrote; the pipeline falls
// back to Process for any remaining tail entries.
type BatchProcessor interface {
	ProcessBatch(pkts []*packet.View, results []Result) (n int)
}

// Initializer is an optional capability: AddStage calls Init exactly once,
// at add-time.
type Initializer interface {
	Init() error
}

// Teardowner is an optional capability: Pipeline.Teardown calls Teardown
// exactly once per stage, in stage order.
type Teardowner interface {
	Teardown() error
}
