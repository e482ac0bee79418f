// Package trace defines the ordered events observed while a UserOperation is
// simulated, and a Collector that records them from go-ethereum tracing hooks.
package trace

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/goccy/go-json"
)

// Kind tells which fields of an Event are meaningful.
type Kind uint8

const (
	// KindEnter opens a call frame: From calls Target with Value and Input.
	KindEnter Kind = iota
	// KindExit closes the innermost frame at Depth.
	KindExit
	// KindOpcode is an opcode executed in Address. Call and EXTCODE* opcodes
	// carry the accessed Target and its code size.
	KindOpcode
	// KindStorage is an SLOAD, SSTORE, TLOAD or TSTORE of Slot in the storage
	// of Address.
	KindStorage
	// KindKeccak is a KECCAK256 over Preimage.
	KindKeccak
)

var kindNames = [...]string{
	KindEnter:   "enter",
	KindExit:    "exit",
	KindOpcode:  "opcode",
	KindStorage: "storage",
	KindKeccak:  "keccak",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

func (k Kind) MarshalText() ([]byte, error) {
	if int(k) >= len(kindNames) {
		return nil, fmt.Errorf("unknown event kind %d", uint8(k))
	}
	return []byte(kindNames[k]), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	for i, name := range kindNames {
		if name == string(text) {
			*k = Kind(i)
			return nil
		}
	}
	return fmt.Errorf("unknown event kind %q", text)
}

// Event is one observation of the simulated execution. Depth is the depth of
// the frame the event belongs to, starting at 1 for the outermost frame, so
// that an Enter event and the opcodes it runs share the same depth.
type Event struct {
	Kind  Kind
	Op    vm.OpCode
	Depth int

	// Address is the storage context the event executes in.
	Address common.Address

	// From is the caller of an Enter event.
	From common.Address
	// Target is the callee of an Enter event or the address accessed by a
	// call or EXTCODE* opcode.
	Target common.Address
	// TargetCodeSize is the code size of Target at the time of access.
	TargetCodeSize int

	Slot     common.Hash
	Value    *big.Int
	Input    []byte
	Preimage []byte
	Reverted bool
}

// Selector returns the first four bytes of the input of an Enter event.
func (e *Event) Selector() ([4]byte, bool) {
	var sel [4]byte
	if len(e.Input) < len(sel) {
		return sel, false
	}
	copy(sel[:], e.Input)
	return sel, true
}

// HasValue reports whether the event transfers a nonzero amount of wei.
func (e *Event) HasValue() bool {
	return e.Value != nil && e.Value.Sign() > 0
}

func (e Event) String() string {
	switch e.Kind {
	case KindEnter:
		return fmt.Sprintf("%d %s %s -> %s", e.Depth, e.Op, e.From.Hex(), e.Target.Hex())
	case KindExit:
		return fmt.Sprintf("%d exit reverted=%t", e.Depth, e.Reverted)
	case KindStorage:
		return fmt.Sprintf("%d %s %s[%s]", e.Depth, e.Op, e.Address.Hex(), e.Slot.Hex())
	case KindKeccak:
		return fmt.Sprintf("%d KECCAK256 %s", e.Depth, hexutil.Encode(e.Preimage))
	default:
		if e.Target != (common.Address{}) {
			return fmt.Sprintf("%d %s %s on %s", e.Depth, e.Op, e.Address.Hex(), e.Target.Hex())
		}
		return fmt.Sprintf("%d %s %s", e.Depth, e.Op, e.Address.Hex())
	}
}

type eventJSON struct {
	Kind           Kind            `json:"kind"`
	Op             string          `json:"op,omitempty"`
	Depth          int             `json:"depth"`
	Address        *common.Address `json:"address,omitempty"`
	From           *common.Address `json:"from,omitempty"`
	Target         *common.Address `json:"target,omitempty"`
	TargetCodeSize int             `json:"targetCodeSize,omitempty"`
	Slot           *common.Hash    `json:"slot,omitempty"`
	Value          *hexutil.Big    `json:"value,omitempty"`
	Input          hexutil.Bytes   `json:"input,omitempty"`
	Preimage       hexutil.Bytes   `json:"preimage,omitempty"`
	Reverted       bool            `json:"reverted,omitempty"`
}

func optAddress(a common.Address) *common.Address {
	if a == (common.Address{}) {
		return nil
	}
	return &a
}

func (e Event) MarshalJSON() ([]byte, error) {
	enc := eventJSON{
		Kind:           e.Kind,
		Depth:          e.Depth,
		Address:        optAddress(e.Address),
		From:           optAddress(e.From),
		Target:         optAddress(e.Target),
		TargetCodeSize: e.TargetCodeSize,
		Value:          (*hexutil.Big)(e.Value),
		Input:          e.Input,
		Preimage:       e.Preimage,
		Reverted:       e.Reverted,
	}
	if e.Kind != KindExit && e.Kind != KindKeccak {
		enc.Op = e.Op.String()
	}
	if e.Kind == KindStorage {
		slot := e.Slot
		enc.Slot = &slot
	}
	return json.Marshal(&enc)
}

func (e *Event) UnmarshalJSON(data []byte) error {
	var dec eventJSON
	if err := json.Unmarshal(data, &dec); err != nil {
		return err
	}
	*e = Event{
		Kind:           dec.Kind,
		Depth:          dec.Depth,
		TargetCodeSize: dec.TargetCodeSize,
		Input:          nilIfEmpty(dec.Input),
		Preimage:       nilIfEmpty(dec.Preimage),
		Reverted:       dec.Reverted,
	}
	switch dec.Kind {
	case KindExit:
	case KindKeccak:
		e.Op = vm.KECCAK256
	default:
		op := vm.StringToOp(dec.Op)
		if op == 0 && dec.Op != vm.STOP.String() {
			return fmt.Errorf("unknown opcode %q", dec.Op)
		}
		e.Op = op
	}
	if dec.Address != nil {
		e.Address = *dec.Address
	}
	if dec.From != nil {
		e.From = *dec.From
	}
	if dec.Target != nil {
		e.Target = *dec.Target
	}
	if dec.Slot != nil {
		e.Slot = *dec.Slot
	}
	if dec.Value != nil {
		e.Value = (*big.Int)(dec.Value)
	}
	return nil
}

// nilIfEmpty keeps absent and empty byte fields equal to what was encoded,
// since both are omitted.
func nilIfEmpty(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}
