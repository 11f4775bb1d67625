package pipeline

import (
	"errors"

	"github.com/kbypass/xdpflow/packet"
)

// Config holds the pipeline's fixed policy set.
type Config struct {
	// StopOnDrop: if true, a Drop from any stage terminates the walk
	// immediately; if false, the packet keeps flowing and a later
	// stage's result overwrites the Drop.
	StopOnDrop bool
	// AllowModification governs whether stages are permitted to call
	// packet.View.Modify; the pipeline itself does not enforce this
	// (there is no sandboxing mechanism to intercept writes), it is
	// surfaced to processors that choose to honor it.
	AllowModification bool
	// MaxStages bounds both the stage count and the Recirculate re-entry
	// count.
	MaxStages int
}

// Pipeline is an ordered, mutable list of processors (component H).
// New relative to the teacher, which dispatched to a single callback; built
// in the teacher's plain-slice, explicit-bookkeeping idiom rather than
// introducing a generic middleware framework.
type Pipeline struct {
	cfg    Config
	stages []Processor
}

// New constructs an empty pipeline under cfg. A zero MaxStages is treated
// as "no stages ever fit"; callers should set a positive value.
func New(cfg Config) *Pipeline {
	return &Pipeline{cfg: cfg}
}

// AddStage appends proc at the tail and invokes its Init, if it implements
// Initializer. Rejects with ErrTooManyStages once len(stages) == MaxStages.
func (p *Pipeline) AddStage(proc Processor) error {
	if len(p.stages) >= p.cfg.MaxStages {
		return ErrTooManyStages
	}
	if init, ok := proc.(Initializer); ok {
		if err := init.Init(); err != nil {
			return err
		}
	}
	p.stages = append(p.stages, proc)
	return nil
}

// Len reports the current stage count.
func (p *Pipeline) Len() int { return len(p.stages) }

// AllowModification reports the pipeline's configured modification policy.
func (p *Pipeline) AllowModification() bool { return p.cfg.AllowModification }

// Process walks pkt through every stage per spec.md §4.H: Pass advances,
// Drop terminates only under StopOnDrop, Transmit terminates immediately,
// Recirculate restarts from stage 0 up to MaxStages times before being
// coerced to Drop.
func (p *Pipeline) Process(pkt *packet.View) Result {
	result := Result{Action: Pass()}
	hops := 0
	i := 0
	for i < len(p.stages) {
		r := p.stages[i].Process(pkt)
		result = r
		switch r.Action.Kind {
		case ActionPass:
			i++
		case ActionDrop:
			if p.cfg.StopOnDrop {
				return result
			}
			i++
		case ActionTransmit:
			return result
		case ActionRecirculate:
			hops++
			if hops > p.cfg.MaxStages {
				return Result{Action: Drop()}
			}
			i = 0
		default:
			i++
		}
	}
	return result
}

// ProcessBatch runs the batch fast path described in spec.md §4.H.
// Every entry starts as Pass; each stage runs against the packets still
// active (those that haven't Transmit-terminated or been terminally
// dropped); Recirculate falls back to a bounded single-packet Process call
// for that one packet, since restarting one entry mid-batch to stage 0
// cannot be expressed as a stage-batch call. Survivors are compacted to the
// front of pkts/results in their original relative order and the surviving
// count is returned.
func (p *Pipeline) ProcessBatch(pkts []*packet.View, results []Result) int {
	n := len(pkts)
	if n == 0 {
		return 0
	}

	orig := make([]*packet.View, n)
	copy(orig, pkts[:n])

	final := make([]Result, n)
	for i := range final {
		final[i] = Result{Action: Pass()}
	}

	active := make([]int, n)
	for i := range active {
		active[i] = i
	}

	for _, stage := range p.stages {
		if len(active) == 0 {
			break
		}
		stagePkts := make([]*packet.View, len(active))
		for j, idx := range active {
			stagePkts[j] = orig[idx]
		}
		stageResults := make([]Result, len(active))
		runStageBatch(stage, stagePkts, stageResults)

		next := active[:0]
		for j, idx := range active {
			r := stageResults[j]
			final[idx] = r
			switch r.Action.Kind {
			case ActionDrop:
				if !p.cfg.StopOnDrop {
					next = append(next, idx)
				}
			case ActionTransmit:
				// terminated, but a survivor: not re-added to next.
			case ActionRecirculate:
				final[idx] = p.recirculateOne(orig[idx])
			default: // ActionPass
				next = append(next, idx)
			}
		}
		active = next
	}

	// An entry's final recorded action determines survival: Drop excludes
	// it whether it was terminated early by StopOnDrop or simply never
	// overwritten by a later stage; every other action is a survivor.
	survived := 0
	for idx := 0; idx < n; idx++ {
		if final[idx].Action.Kind == ActionDrop {
			continue
		}
		pkts[survived] = orig[idx]
		results[survived] = final[idx]
		survived++
	}
	return survived
}

// recirculateOne resumes a single packet's walk from stage 0, honoring the
// same MaxStages re-entry bound as Process. It is only reached from
// ProcessBatch, so hops starts at 1 to account for the Recirculate result
// that triggered it.
func (p *Pipeline) recirculateOne(pkt *packet.View) Result {
	result := Result{Action: Pass()}
	hops := 1
	i := 0
	for i < len(p.stages) {
		r := p.stages[i].Process(pkt)
		result = r
		switch r.Action.Kind {
		case ActionPass:
			i++
		case ActionDrop:
			if p.cfg.StopOnDrop {
				return result
			}
			i++
		case ActionTransmit:
			return result
		case ActionRecirculate:
			hops++
			if hops > p.cfg.MaxStages {
				return Result{Action: Drop()}
			}
			i = 0
		default:
			i++
		}
	}
	return result
}

func runStageBatch(stage Processor, pkts []*packet.View, results []Result) {
	if bp, ok := stage.(BatchProcessor); ok {
		n := bp.ProcessBatch(pkts, results)
		for i := n; i < len(pkts); i++ {
			results[i] = stage.Process(pkts[i])
		}
		return
	}
	for i, pkt := range pkts {
		results[i] = stage.Process(pkt)
	}
}

// Teardown calls Teardown on every stage that implements Teardowner, in
// stage order, joining every returned error.
func (p *Pipeline) Teardown() error {
	var errs []error
	for _, stage := range p.stages {
		if td, ok := stage.(Teardowner); ok {
			if err := td.Teardown(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
