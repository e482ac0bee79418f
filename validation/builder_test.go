package validation

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/blndgs/oprules/trace"
)

var (
	entryPoint    = EntryPointV06
	senderCreator = SenderCreatorV06

	senderAddr     = common.HexToAddress("0x0A7199a96fdf0252E09F76545c1eF2be3692F46b")
	factoryAddr    = common.HexToAddress("0x9406Cc6185a346906296840746125a0E44976454")
	paymasterAddr  = common.HexToAddress("0xde0B295669a9FD93d5F28D9Ec85E40f4cb697BAe")
	aggregatorAddr = common.HexToAddress("0x1111111111111111111111111111111111111111")
	tokenAddr      = common.HexToAddress("0x2222222222222222222222222222222222222222")
	undeployedAddr = common.HexToAddress("0x3333333333333333333333333333333333333333")
	ecrecoverAddr  = common.BytesToAddress([]byte{0x01})

	balanceOfSelector = []byte{0x70, 0xa0, 0x82, 0x31}
)

// traceBuilder writes synthetic traces the way the collector records them:
// an Enter and the events of its frame share the same depth.
type traceBuilder struct {
	code     map[common.Address]int
	events   []trace.Event
	contexts []common.Address
}

func newTraceBuilder(code map[common.Address]int) *traceBuilder {
	return &traceBuilder{code: code}
}

func (b *traceBuilder) depth() int {
	return len(b.contexts)
}

func (b *traceBuilder) ctx() common.Address {
	if len(b.contexts) == 0 {
		return entryPoint
	}
	return b.contexts[len(b.contexts)-1]
}

func (b *traceBuilder) enterFrame(op vm.OpCode, from, to common.Address, value *big.Int, input []byte) *traceBuilder {
	storage := to
	if op == vm.DELEGATECALL || op == vm.CALLCODE {
		storage = from
	}
	b.contexts = append(b.contexts, storage)
	b.events = append(b.events, trace.Event{
		Kind:           trace.KindEnter,
		Op:             op,
		Depth:          b.depth(),
		Address:        storage,
		From:           from,
		Target:         to,
		TargetCodeSize: b.code[to],
		Value:          value,
		Input:          input,
	})
	return b
}

// enter opens a CALL frame from the current context without emitting the
// CALL opcode, as for calls made by the EntryPoint.
func (b *traceBuilder) enter(from, to common.Address) *traceBuilder {
	return b.enterFrame(vm.CALL, from, to, nil, nil)
}

// call emits a call opcode in the current context and opens its frame.
func (b *traceBuilder) call(op vm.OpCode, to common.Address) *traceBuilder {
	return b.callWith(op, to, nil, nil)
}

func (b *traceBuilder) callWith(op vm.OpCode, to common.Address, value *big.Int, input []byte) *traceBuilder {
	from := b.ctx()
	b.access(op, to)
	return b.enterFrame(op, from, to, value, input)
}

func (b *traceBuilder) exit() *traceBuilder {
	b.events = append(b.events, trace.Event{Kind: trace.KindExit, Depth: b.depth()})
	b.contexts = b.contexts[:len(b.contexts)-1]
	return b
}

func (b *traceBuilder) op(op vm.OpCode) *traceBuilder {
	b.events = append(b.events, trace.Event{Kind: trace.KindOpcode, Op: op, Depth: b.depth(), Address: b.ctx()})
	return b
}

// access emits a call or EXTCODE* opcode on target.
func (b *traceBuilder) access(op vm.OpCode, target common.Address) *traceBuilder {
	b.events = append(b.events, trace.Event{
		Kind:           trace.KindOpcode,
		Op:             op,
		Depth:          b.depth(),
		Address:        b.ctx(),
		Target:         target,
		TargetCodeSize: b.code[target],
	})
	return b
}

func (b *traceBuilder) storage(op vm.OpCode, slot common.Hash) *traceBuilder {
	b.events = append(b.events, trace.Event{Kind: trace.KindStorage, Op: op, Depth: b.depth(), Address: b.ctx(), Slot: slot})
	return b
}

func (b *traceBuilder) sload(slot common.Hash) *traceBuilder {
	return b.storage(vm.SLOAD, slot)
}

func (b *traceBuilder) sstore(slot common.Hash) *traceBuilder {
	return b.storage(vm.SSTORE, slot)
}

// mapping reads the entry of key in the mapping at position pos, the way
// solidity computes it: keccak(key . pos) + offset.
func (b *traceBuilder) mapping(key common.Address, pos, offset uint64) *traceBuilder {
	preimage := append(common.LeftPadBytes(key.Bytes(), 32), common.BigToHash(new(big.Int).SetUint64(pos)).Bytes()...)
	b.events = append(b.events, trace.Event{
		Kind:     trace.KindKeccak,
		Op:       vm.KECCAK256,
		Depth:    b.depth(),
		Address:  b.ctx(),
		Preimage: preimage,
	})
	slot := new(big.Int).SetBytes(crypto.Keccak256(preimage))
	slot.Add(slot, new(big.Int).SetUint64(offset))
	return b.sload(common.BigToHash(slot))
}

func (b *traceBuilder) build() *trace.Trace {
	return trace.New(b.events...)
}

func slot(n int64) common.Hash {
	return common.BigToHash(big.NewInt(n))
}
