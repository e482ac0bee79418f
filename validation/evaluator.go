package validation

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/vm"

	"github.com/blndgs/oprules/entity"
	"github.com/blndgs/oprules/trace"
)

// State is the lifecycle of an Evaluator.
type State uint8

const (
	StatePending State = iota
	StateScanning
	StateDecided
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateScanning:
		return "scanning"
	default:
		return "decided"
	}
}

// cancelCheckInterval is the number of events replayed between two checks of
// the context.
const cancelCheckInterval = 1024

const noPhase = -1

// frame is a call frame of the trace. storage is the account whose storage
// the frame runs on, which differs from the code address under DELEGATECALL
// and CALLCODE.
type frame struct {
	storage common.Address
	phase   int
}

// Evaluator replays one trace against the entities of one operation. It is
// single use: once decided it keeps its verdict.
type Evaluator struct {
	rules    *Rules
	policy   *Policy
	set      *entity.Set
	entities []entity.Entity

	state      State
	frames     []frame
	creates    []int
	violations []Violation
	verdict    Verdict
}

func NewEvaluator(rules *Rules, set *entity.Set) *Evaluator {
	entities := set.All()
	return &Evaluator{
		rules:    rules,
		policy:   NewPolicy(rules),
		set:      set,
		entities: entities,
		creates:  make([]int, len(entities)),
	}
}

// State returns the current state of the evaluator.
func (e *Evaluator) State() State {
	return e.state
}

// Violations returns the violations found so far.
func (e *Evaluator) Violations() []Violation {
	return append([]Violation(nil), e.violations...)
}

// Evaluate replays tr and decides. paymasterContext is the context returned
// by the paymaster's validation, if any. If ctx is done before the evaluator
// decides, the partial state is discarded and ctx.Err() is returned.
func (e *Evaluator) Evaluate(ctx context.Context, tr *trace.Trace, paymasterContext []byte) (Verdict, error) {
	if e.state != StatePending {
		return e.verdict, ErrEvaluatorUsed
	}
	e.state = StateScanning

	classifier := NewClassifier(e.rules, e.set, tr)
	for i := 0; i < tr.Len(); i++ {
		if i%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				e.reset()
				return Verdict{}, err
			}
		}
		ev := tr.At(i)
		e.step(i, &ev, classifier)
	}

	if len(paymasterContext) > 0 {
		if pm, ok := e.set.Get(entity.Paymaster); ok {
			e.violations = append(e.violations, Violation{
				Kind:    ViolationPaymasterContext,
				Entity:  pm,
				Address: pm.Address,
				Detail:  fmt.Sprintf("context of %d bytes", len(paymasterContext)),
				Index:   -1,
			})
		}
	}

	e.verdict = e.decide()
	e.state = StateDecided
	return e.verdict, nil
}

func (e *Evaluator) reset() {
	e.state = StatePending
	e.frames = e.frames[:0]
	e.violations = nil
	for i := range e.creates {
		e.creates[i] = 0
	}
}

func (e *Evaluator) step(i int, ev *trace.Event, classifier *Classifier) {
	switch ev.Kind {
	case trace.KindEnter:
		e.truncate(ev.Depth - 1)
		parent, hasParent := e.top()
		if hasParent && e.policed(parent) {
			if d := e.policy.CheckFrame(ev); d != Allow {
				e.opcodeViolation(i, ev, parent.phase, d)
			}
		}
		phase := noPhase
		if hasParent {
			phase = parent.phase
		}
		if e.rules.opensPhase(ev.From) {
			if idx := e.indexOf(ev.Target); idx != noPhase {
				phase = idx
			}
		}
		e.frames = append(e.frames, frame{storage: ev.Address, phase: phase})

	case trace.KindExit:
		e.truncate(ev.Depth - 1)

	case trace.KindOpcode:
		fr, ok := e.frameAt(ev.Depth)
		if !ok || !e.policed(fr) {
			return
		}
		d := e.policy.Check(ev.Op, ev.Target, ev.TargetCodeSize, e.phase(fr.phase))
		if d != Allow {
			e.opcodeViolation(i, ev, fr.phase, d)
			return
		}
		if ev.Op == vm.CREATE2 {
			e.creates[fr.phase]++
		}

	case trace.KindStorage:
		fr, ok := e.frameAt(ev.Depth)
		if !ok || !e.policed(fr) {
			return
		}
		phase := e.entities[fr.phase]
		access := classifier.Classify(ev.Address, ev.Slot, phase)
		slot := ev.Slot
		switch {
		case access.Class == ClassExternal:
			e.violations = append(e.violations, Violation{
				Kind:    ViolationExternalStorage,
				Entity:  phase,
				Op:      ev.Op,
				Address: ev.Address,
				Slot:    &slot,
				Detail:  fmt.Sprintf("%s of %s slot %s", ev.Op, ev.Address.Hex(), slot.Hex()),
				Index:   i,
			})
		case access.Needs != nil:
			e.violations = append(e.violations, Violation{
				Kind:    ViolationStakedStorage,
				Entity:  *access.Needs,
				Op:      ev.Op,
				Address: ev.Address,
				Slot:    &slot,
				Detail:  fmt.Sprintf("%s of %s storage of %s slot %s", ev.Op, access.Class, ev.Address.Hex(), slot.Hex()),
				Index:   i,
			})
		}
	}
}

func (e *Evaluator) opcodeViolation(i int, ev *trace.Event, phase int, d Decision) {
	v := Violation{
		Kind:    ViolationBannedOpcode,
		Entity:  e.entities[phase],
		Op:      ev.Op,
		Address: ev.Address,
		Index:   i,
	}
	switch {
	case ev.Kind == trace.KindEnter && ev.HasValue():
		v.Detail = fmt.Sprintf("%s with value to %s", ev.Op, ev.Target.Hex())
	case ev.Kind == trace.KindEnter:
		v.Detail = fmt.Sprintf("%s to %s with input %x", ev.Op, ev.Target.Hex(), ev.Input)
	case ev.Target != (common.Address{}):
		v.Detail = fmt.Sprintf("%s on %s", ev.Op, ev.Target.Hex())
	default:
		v.Detail = ev.Op.String()
	}
	if d == DenyConditional {
		v.Kind = ViolationOpcodeContext
	}
	e.violations = append(e.violations, v)
}

// decide reports the first opcode violation, otherwise the first violation
// of an unstaked entity.
func (e *Evaluator) decide() Verdict {
	var stake *Violation
	for i := range e.violations {
		v := &e.violations[i]
		if !v.Kind.Waivable() {
			return rejectWith(ReasonBannedOpcode, *v, e.Violations())
		}
		if stake == nil && !v.Entity.Staked {
			stake = v
		}
	}
	if stake != nil {
		return rejectWith(ReasonUnstakedEntityStorage, *stake, e.Violations())
	}
	return admit()
}

func (e *Evaluator) phase(idx int) Phase {
	return Phase{
		Entity:         e.entities[idx],
		Sender:         e.set.Sender().Address,
		SenderDeployed: e.set.SenderDeployed(),
		Creates:        e.creates[idx],
	}
}

// policed reports whether the frame runs on behalf of an entity and is not
// the EntryPoint acting on its own storage. EntryPoint code delegated to by
// an entity runs on the entity's storage and is policed.
func (e *Evaluator) policed(fr frame) bool {
	return fr.phase != noPhase && fr.storage != e.rules.EntryPoint
}

func (e *Evaluator) indexOf(addr common.Address) int {
	for i, ent := range e.entities {
		if ent.Address == addr {
			return i
		}
	}
	return noPhase
}

func (e *Evaluator) truncate(n int) {
	if n < 0 {
		n = 0
	}
	if len(e.frames) > n {
		e.frames = e.frames[:n]
	}
}

func (e *Evaluator) top() (frame, bool) {
	if len(e.frames) == 0 {
		return frame{}, false
	}
	return e.frames[len(e.frames)-1], true
}

// frameAt returns the frame events at depth belong to. Depth is 1-based.
func (e *Evaluator) frameAt(depth int) (frame, bool) {
	if depth >= 1 && depth <= len(e.frames) {
		return e.frames[depth-1], true
	}
	return e.top()
}
