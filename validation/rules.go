// Package validation replays the trace of a simulated UserOperation and
// decides whether the operation may enter the mempool.
//
// Every storage access is classified relative to the entity whose validation
// phase is executing, and every sensitive opcode is checked against a fixed
// policy. Violations are collected over the whole trace; opcode violations
// are never waived, storage violations are waived by the stake of the entity
// they are attributed to.
package validation

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/vm"
)

var (
	// EntryPointV06 is the canonical v0.6 EntryPoint deployment.
	EntryPointV06 = common.HexToAddress("0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789")
	// SenderCreatorV06 is the helper the v0.6 EntryPoint deploys senders with.
	SenderCreatorV06 = common.HexToAddress("0x7fc98430eAEdbb6070B35B39D798725049088348")

	// depositToSelector is depositTo(address).
	depositToSelector = [4]byte{0xb7, 0x60, 0xfa, 0xf9}
)

// Rules describes the chain-specific collaborators of the engine.
type Rules struct {
	// EntryPoint is the only contract entities may send value to, and whose
	// own storage and code are not policed.
	EntryPoint common.Address
	// SenderCreator calls the factory on behalf of the EntryPoint.
	SenderCreator common.Address
	// Precompiles may be called even though they have no code.
	Precompiles []common.Address
	// EntryPointSelectors are the EntryPoint methods entities may call. A call
	// with empty calldata is always allowed.
	EntryPointSelectors [][4]byte
}

// DefaultRules returns the rules of the v0.6 EntryPoint on a Cancun chain.
func DefaultRules() Rules {
	return Rules{
		EntryPoint:          EntryPointV06,
		SenderCreator:       SenderCreatorV06,
		Precompiles:         append([]common.Address(nil), vm.PrecompiledAddressesCancun...),
		EntryPointSelectors: [][4]byte{depositToSelector},
	}
}

func (r *Rules) isPrecompile(addr common.Address) bool {
	for _, p := range r.Precompiles {
		if p == addr {
			return true
		}
	}
	return false
}

func (r *Rules) allowsSelector(sel [4]byte) bool {
	for _, s := range r.EntryPointSelectors {
		if s == sel {
			return true
		}
	}
	return false
}

// opensPhase reports whether a frame entered from caller starts the
// validation phase of the callee.
func (r *Rules) opensPhase(caller common.Address) bool {
	return caller == r.EntryPoint || (caller == r.SenderCreator && r.SenderCreator != (common.Address{}))
}
