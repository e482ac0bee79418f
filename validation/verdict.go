package validation

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/vm"

	"github.com/blndgs/oprules/entity"
)

// Reason is the stable rejection code of a Verdict.
type Reason uint8

const (
	ReasonNone Reason = iota
	ReasonMalformedOperation
	ReasonSimulationFailure
	ReasonUnstakedEntityStorage
	ReasonBannedOpcode
)

var reasonNames = [...]string{
	ReasonNone:                  "none",
	ReasonMalformedOperation:    "malformed-operation",
	ReasonSimulationFailure:     "simulation-failure",
	ReasonUnstakedEntityStorage: "unstaked-entity-storage",
	ReasonBannedOpcode:          "banned-opcode",
}

func (r Reason) String() string {
	if int(r) < len(reasonNames) {
		return reasonNames[r]
	}
	return fmt.Sprintf("reason(%d)", uint8(r))
}

func (r Reason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *Reason) UnmarshalText(text []byte) error {
	for i, name := range reasonNames {
		if name == string(text) {
			*r = Reason(i)
			return nil
		}
	}
	return fmt.Errorf("unknown reason %q", text)
}

// JSON-RPC error codes of the bundler API.
const (
	RPCCodeInvalidParams      = -32602
	RPCCodeSimulationFailed   = -32500
	RPCCodeBannedOpcode       = -32502
	RPCCodeInvalidEntityStake = -32504
)

// RPCCode maps the reason to the JSON-RPC error code reported to clients.
func (r Reason) RPCCode() int {
	switch r {
	case ReasonMalformedOperation:
		return RPCCodeInvalidParams
	case ReasonSimulationFailure:
		return RPCCodeSimulationFailed
	case ReasonUnstakedEntityStorage:
		return RPCCodeInvalidEntityStake
	case ReasonBannedOpcode:
		return RPCCodeBannedOpcode
	default:
		return 0
	}
}

// ViolationKind classifies a single rule breach found in a trace.
type ViolationKind uint8

const (
	// ViolationBannedOpcode is an opcode that is never allowed.
	ViolationBannedOpcode ViolationKind = iota
	// ViolationOpcodeContext is an opcode that is not allowed on its target,
	// such as a call to an address without code.
	ViolationOpcodeContext
	// ViolationExternalStorage is an access to storage not associated with
	// any entity of the operation.
	ViolationExternalStorage
	// ViolationStakedStorage is an access allowed only if the entity it is
	// attributed to is staked.
	ViolationStakedStorage
	// ViolationPaymasterContext is a non-empty context returned by the
	// paymaster, allowed only if the paymaster is staked.
	ViolationPaymasterContext
)

var violationNames = [...]string{
	ViolationBannedOpcode:     "banned-opcode",
	ViolationOpcodeContext:    "invalid-opcode-context",
	ViolationExternalStorage:  "external-storage",
	ViolationStakedStorage:    "stake-required-storage",
	ViolationPaymasterContext: "paymaster-context",
}

func (k ViolationKind) String() string {
	if int(k) < len(violationNames) {
		return violationNames[k]
	}
	return fmt.Sprintf("violation(%d)", uint8(k))
}

func (k ViolationKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Waivable reports whether the stake of the responsible entity waives the
// violation. Opcode violations never are.
func (k ViolationKind) Waivable() bool {
	return k == ViolationStakedStorage || k == ViolationPaymasterContext
}

// Violation is one rule breach. Index is the position of the offending event
// in the trace, or -1 when it does not come from an event.
type Violation struct {
	Kind    ViolationKind  `json:"kind"`
	Entity  entity.Entity  `json:"entity"`
	Op      vm.OpCode      `json:"-"`
	Address common.Address `json:"address"`
	Slot    *common.Hash   `json:"slot,omitempty"`
	Detail  string         `json:"detail"`
	Index   int            `json:"index"`
}

func (v Violation) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", v.Entity.Role, v.Kind)
	if v.Detail != "" {
		fmt.Fprintf(&b, " (%s)", v.Detail)
	}
	return b.String()
}

// Verdict is the terminal outcome of a validation pass.
type Verdict struct {
	Admit      bool           `json:"admit"`
	Reason     Reason         `json:"reason"`
	Entity     *entity.Entity `json:"entity,omitempty"`
	Detail     string         `json:"detail,omitempty"`
	Violations []Violation    `json:"violations,omitempty"`
}

func admit() Verdict {
	return Verdict{Admit: true, Reason: ReasonNone}
}

func reject(reason Reason, detail string) Verdict {
	return Verdict{Reason: reason, Detail: detail}
}

func rejectWith(reason Reason, v Violation, all []Violation) Verdict {
	e := v.Entity
	return Verdict{
		Reason:     reason,
		Entity:     &e,
		Detail:     v.String(),
		Violations: all,
	}
}

// Message is a human readable description suitable for an RPC error.
func (v Verdict) Message() string {
	if v.Admit {
		return "admitted"
	}
	if v.Detail == "" {
		return v.Reason.String()
	}
	return fmt.Sprintf("%s: %s", v.Reason, v.Detail)
}
