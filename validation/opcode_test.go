package validation

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/stretchr/testify/require"

	"github.com/blndgs/oprules/entity"
	"github.com/blndgs/oprules/trace"
)

func TestPolicy_Check(t *testing.T) {
	rules := DefaultRules()
	policy := NewPolicy(&rules)

	senderPhase := Phase{Entity: entity.Entity{Role: entity.Sender, Address: senderAddr}, Sender: senderAddr, SenderDeployed: true}
	factoryPhase := Phase{Entity: entity.Entity{Role: entity.Factory, Address: factoryAddr}, Sender: senderAddr}

	tests := []struct {
		name     string
		op       vm.OpCode
		target   common.Address
		codeSize int
		phase    Phase
		want     Decision
	}{
		{"timestamp", vm.TIMESTAMP, common.Address{}, 0, senderPhase, DenyAlways},
		{"gas", vm.GAS, common.Address{}, 0, senderPhase, DenyAlways},
		{"selfdestruct", vm.SELFDESTRUCT, common.Address{}, 0, senderPhase, DenyAlways},
		{"blobhash", vm.BLOBHASH, common.Address{}, 0, senderPhase, DenyAlways},
		{"balance of deployed", vm.BALANCE, tokenAddr, 100, senderPhase, DenyAlways},
		{"caller", vm.CALLER, common.Address{}, 0, senderPhase, Allow},
		{"sload", vm.SLOAD, common.Address{}, 0, senderPhase, Allow},
		{"call deployed", vm.CALL, tokenAddr, 100, senderPhase, Allow},
		{"call undeployed", vm.CALL, undeployedAddr, 0, senderPhase, DenyConditional},
		{"delegatecall undeployed", vm.DELEGATECALL, undeployedAddr, 0, senderPhase, DenyConditional},
		{"staticcall precompile", vm.STATICCALL, ecrecoverAddr, 0, senderPhase, Allow},
		{"staticcall point evaluation", vm.STATICCALL, common.BytesToAddress([]byte{0x0a}), 0, senderPhase, Allow},
		{"call constructing sender", vm.CALL, senderAddr, 0, factoryPhase, Allow},
		{"call deployed sender without code", vm.CALL, senderAddr, 0, senderPhase, DenyConditional},
		{"extcodesize deployed", vm.EXTCODESIZE, tokenAddr, 100, senderPhase, Allow},
		{"extcodesize undeployed", vm.EXTCODESIZE, undeployedAddr, 0, senderPhase, DenyConditional},
		{"extcodehash entry point", vm.EXTCODEHASH, entryPoint, 23000, senderPhase, DenyConditional},
		{"extcodecopy constructing sender", vm.EXTCODECOPY, senderAddr, 0, factoryPhase, Allow},
		{"create2 by factory", vm.CREATE2, common.Address{}, 0, factoryPhase, Allow},
		{"create2 by sender", vm.CREATE2, common.Address{}, 0, senderPhase, DenyAlways},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, policy.Check(tt.op, tt.target, tt.codeSize, tt.phase))
		})
	}

	second := factoryPhase
	second.Creates = 1
	require.Equal(t, DenyAlways, policy.Check(vm.CREATE2, common.Address{}, 0, second))
}

func TestPolicy_CheckFrame(t *testing.T) {
	rules := DefaultRules()
	policy := NewPolicy(&rules)

	depositTo := append(depositToSelector[:], common.LeftPadBytes(senderAddr.Bytes(), 32)...)

	tests := []struct {
		name string
		ev   trace.Event
		want Decision
	}{
		{"plain call", trace.Event{Kind: trace.KindEnter, Op: vm.CALL, Target: tokenAddr}, Allow},
		{"zero value", trace.Event{Kind: trace.KindEnter, Op: vm.CALL, Target: tokenAddr, Value: new(big.Int)}, Allow},
		{"value to contract", trace.Event{Kind: trace.KindEnter, Op: vm.CALL, Target: tokenAddr, Value: big.NewInt(1)}, DenyAlways},
		{"value to entry point", trace.Event{Kind: trace.KindEnter, Op: vm.CALL, Target: entryPoint, Value: big.NewInt(1)}, Allow},
		{"depositTo", trace.Event{Kind: trace.KindEnter, Op: vm.CALL, Target: entryPoint, Value: big.NewInt(1), Input: depositTo}, Allow},
		{"balanceOf", trace.Event{Kind: trace.KindEnter, Op: vm.STATICCALL, Target: entryPoint, Input: balanceOfSelector}, DenyConditional},
		{"short input", trace.Event{Kind: trace.KindEnter, Op: vm.CALL, Target: entryPoint, Input: []byte{0xb7}}, DenyConditional},
		{"not an enter", trace.Event{Kind: trace.KindOpcode, Op: vm.CALL, Target: tokenAddr, Value: big.NewInt(1)}, Allow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, policy.CheckFrame(&tt.ev))
		})
	}
}

func TestDecision_String(t *testing.T) {
	require.Equal(t, "allow", Allow.String())
	require.Equal(t, "deny-always", DenyAlways.String())
	require.Equal(t, "deny-conditional", DenyConditional.String())
}
