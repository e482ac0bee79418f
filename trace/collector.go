package trace

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/holiman/uint256"
)

const (
	// maxPreimageSize bounds the KECCAK256 input kept per event. Mapping and
	// struct keys are far smaller.
	maxPreimageSize = 1024
	// maxInputSize keeps the selector and first argument of a frame's input.
	maxInputSize = 4 + 32
)

// CodeSizeFunc returns the size of the code deployed at an address in the
// state the simulation runs on.
type CodeSizeFunc func(addr common.Address) int

// Collector records the events of a single simulation. It is not safe for
// concurrent use, matching the single-threaded EVM that drives it.
type Collector struct {
	codeSize   CodeSizeFunc
	ignored    map[vm.OpCode]struct{}
	events     []Event
	pendingGas *Event
}

// NewCollector returns a Collector that resolves the code size of accessed
// addresses with codeSize.
func NewCollector(codeSize CodeSizeFunc) *Collector {
	return &Collector{
		codeSize: codeSize,
		ignored:  defaultIgnoredOpcodes(),
	}
}

// Hooks returns the go-ethereum tracing hooks feeding the collector.
func (c *Collector) Hooks() *tracing.Hooks {
	return &tracing.Hooks{
		OnEnter:  c.OnEnter,
		OnExit:   c.OnExit,
		OnOpcode: c.OnOpcode,
	}
}

// Trace returns the events collected so far.
func (c *Collector) Trace() *Trace {
	c.flushGas(false)
	return New(c.events...)
}

// OnEnter is called when the EVM enters a new scope (via call, create or
// selfdestruct).
func (c *Collector) OnEnter(depth int, typ byte, from common.Address, to common.Address, input []byte, gas uint64, value *big.Int) {
	c.flushGas(false)

	op := vm.OpCode(typ)
	storage := to
	if op == vm.DELEGATECALL || op == vm.CALLCODE {
		storage = from
	}
	ev := Event{
		Kind:           KindEnter,
		Op:             op,
		Depth:          depth + 1,
		Address:        storage,
		From:           from,
		Target:         to,
		TargetCodeSize: c.sizeOf(to),
		Input:          common.CopyBytes(input[:min(len(input), maxInputSize)]),
	}
	if value != nil {
		ev.Value = new(big.Int).Set(value)
	}
	c.events = append(c.events, ev)
}

// OnExit is called when the EVM exits a scope, even if the scope didn't
// execute any code.
func (c *Collector) OnExit(depth int, output []byte, gasUsed uint64, err error, reverted bool) {
	c.flushGas(false)
	c.events = append(c.events, Event{
		Kind:     KindExit,
		Depth:    depth + 1,
		Reverted: reverted,
	})
}

// OnOpcode is called before every opcode.
func (c *Collector) OnOpcode(pc uint64, op byte, gas, cost uint64, scope tracing.OpContext, rData []byte, depth int, err error) {
	opcode := vm.OpCode(op)
	// GAS immediately followed by a call only forwards gas.
	c.flushGas(isCall(opcode))

	stack := scope.StackData()
	ev := Event{
		Kind:    KindOpcode,
		Op:      opcode,
		Depth:   depth,
		Address: scope.Address(),
	}

	switch {
	case opcode == vm.GAS:
		c.pendingGas = &ev
		return

	case isStorage(opcode):
		if len(stack) < 1 {
			return
		}
		ev.Kind = KindStorage
		ev.Slot = common.Hash(peepStack(stack, 0).Bytes32())

	case opcode == vm.KECCAK256:
		if len(stack) < 2 {
			return
		}
		offset, size := peepStack(stack, 0), peepStack(stack, 1)
		if !size.IsUint64() || size.Uint64() > maxPreimageSize {
			return
		}
		ev.Kind = KindKeccak
		ev.Preimage = memoryCopyPadded(scope.MemoryData(), offset, size.Uint64())

	case isEXT(opcode) || isCall(opcode):
		n := 0
		if isCall(opcode) {
			n = 1
		}
		if len(stack) <= n {
			return
		}
		ev.Target = common.Address(peepStack(stack, n).Bytes20())
		ev.TargetCodeSize = c.sizeOf(ev.Target)

	default:
		if _, ok := c.ignored[opcode]; ok {
			return
		}
	}
	c.events = append(c.events, ev)
}

func (c *Collector) flushGas(drop bool) {
	if c.pendingGas == nil {
		return
	}
	if !drop {
		c.events = append(c.events, *c.pendingGas)
	}
	c.pendingGas = nil
}

func (c *Collector) sizeOf(addr common.Address) int {
	if c.codeSize == nil {
		return 0
	}
	return c.codeSize(addr)
}

func memoryCopyPadded(mem []byte, offset *uint256.Int, size uint64) []byte {
	out := make([]byte, size)
	if !offset.IsUint64() || offset.Uint64() >= uint64(len(mem)) {
		return out
	}
	start := offset.Uint64()
	end := min(start+size, uint64(len(mem)))
	copy(out, mem[start:end])
	return out
}

func peepStack(stackData []uint256.Int, n int) *uint256.Int {
	return &stackData[len(stackData)-n-1]
}

func isStorage(opcode vm.OpCode) bool {
	return opcode == vm.SLOAD ||
		opcode == vm.SSTORE ||
		opcode == vm.TLOAD ||
		opcode == vm.TSTORE
}

func isEXT(opcode vm.OpCode) bool {
	return opcode == vm.EXTCODEHASH ||
		opcode == vm.EXTCODESIZE ||
		opcode == vm.EXTCODECOPY
}

func isCall(opcode vm.OpCode) bool {
	return opcode == vm.CALL ||
		opcode == vm.CALLCODE ||
		opcode == vm.DELEGATECALL ||
		opcode == vm.STATICCALL
}

// defaultIgnoredOpcodes are pure stack and arithmetic opcodes that no rule
// looks at.
func defaultIgnoredOpcodes() map[vm.OpCode]struct{} {
	ignored := make(map[vm.OpCode]struct{}, 128)
	for op := vm.PUSH0; op <= vm.SWAP16; op++ {
		ignored[op] = struct{}{}
	}
	for _, op := range []vm.OpCode{
		vm.POP, vm.ADD, vm.SUB, vm.MUL,
		vm.DIV, vm.EQ, vm.LT, vm.GT,
		vm.SLT, vm.SGT, vm.SHL, vm.SHR,
		vm.AND, vm.OR, vm.NOT, vm.ISZERO,
		vm.JUMP, vm.JUMPI, vm.JUMPDEST,
		vm.MLOAD, vm.MSTORE, vm.MSTORE8,
	} {
		ignored[op] = struct{}{}
	}
	return ignored
}
