package validation

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/vm"

	"github.com/blndgs/oprules/entity"
	"github.com/blndgs/oprules/trace"
)

// Decision is the outcome of an opcode check.
type Decision uint8

const (
	Allow Decision = iota
	// DenyAlways is an opcode or frame that is never allowed during
	// validation.
	DenyAlways
	// DenyConditional is an opcode that is not allowed on its target.
	DenyConditional
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case DenyAlways:
		return "deny-always"
	default:
		return "deny-conditional"
	}
}

// bannedOpcodes read environment state that can change between simulation
// and inclusion. GAS reaches the policy only when it is not followed by a call.
var bannedOpcodes = map[vm.OpCode]struct{}{
	vm.GASPRICE:     {},
	vm.GASLIMIT:     {},
	vm.DIFFICULTY:   {},
	vm.TIMESTAMP:    {},
	vm.BASEFEE:      {},
	vm.BLOCKHASH:    {},
	vm.NUMBER:       {},
	vm.SELFBALANCE:  {},
	vm.BALANCE:      {},
	vm.ORIGIN:       {},
	vm.GAS:          {},
	vm.CREATE:       {},
	vm.COINBASE:     {},
	vm.SELFDESTRUCT: {},
	vm.BLOBHASH:     {},
	vm.BLOBBASEFEE:  {},
	vm.INVALID:      {},
}

// Phase is the context an opcode executes in.
type Phase struct {
	Entity         entity.Entity
	Sender         common.Address
	SenderDeployed bool
	// Creates is the number of CREATE2 already executed in the phase.
	Creates int
}

// constructing reports whether target is the sender while it is being
// deployed by this operation.
func (p Phase) constructing(target common.Address) bool {
	return !p.SenderDeployed && target == p.Sender
}

// Policy decides on opcodes and call frames executed by entities.
type Policy struct {
	rules *Rules
}

func NewPolicy(rules *Rules) *Policy {
	return &Policy{rules: rules}
}

// Check decides on op, executed during phase. For call and EXTCODE* opcodes,
// target is the accessed address and codeSize its code size.
func (p *Policy) Check(op vm.OpCode, target common.Address, codeSize int, phase Phase) Decision {
	if _, ok := bannedOpcodes[op]; ok {
		return DenyAlways
	}

	switch {
	case op == vm.CREATE2:
		if phase.Entity.Role == entity.Factory && !phase.SenderDeployed && phase.Creates == 0 {
			return Allow
		}
		return DenyAlways

	case isCall(op):
		if codeSize > 0 || p.rules.isPrecompile(target) || phase.constructing(target) {
			return Allow
		}
		return DenyConditional

	case isEXT(op):
		if target == p.rules.EntryPoint {
			return DenyConditional
		}
		if codeSize > 0 || phase.constructing(target) {
			return Allow
		}
		return DenyConditional
	}
	return Allow
}

// CheckFrame decides on a call frame opened by an entity. Value may only be
// sent to the EntryPoint, and only through an allowed method.
func (p *Policy) CheckFrame(ev *trace.Event) Decision {
	if ev.Kind != trace.KindEnter {
		return Allow
	}
	if (ev.Op == vm.CALL || ev.Op == vm.CALLCODE) && ev.HasValue() && ev.Target != p.rules.EntryPoint {
		return DenyAlways
	}
	if ev.Target == p.rules.EntryPoint && len(ev.Input) > 0 {
		if sel, ok := ev.Selector(); !ok || !p.rules.allowsSelector(sel) {
			return DenyConditional
		}
	}
	return Allow
}

func isEXT(op vm.OpCode) bool {
	return op == vm.EXTCODEHASH ||
		op == vm.EXTCODESIZE ||
		op == vm.EXTCODECOPY
}

func isCall(op vm.OpCode) bool {
	return op == vm.CALL ||
		op == vm.CALLCODE ||
		op == vm.DELEGATECALL ||
		op == vm.STATICCALL
}
