package validation

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/blndgs/oprules/entity"
)

func keyedSlot(key common.Address, pos, offset int64) common.Hash {
	preimage := append(common.LeftPadBytes(key.Bytes(), 32), common.BigToHash(big.NewInt(pos)).Bytes()...)
	s := new(big.Int).SetBytes(crypto.Keccak256(preimage))
	return common.BigToHash(s.Add(s, big.NewInt(offset)))
}

func TestSlotIndex_Associated(t *testing.T) {
	b := newTraceBuilder(nil).enter(entryPoint, tokenAddr).mapping(senderAddr, 4, 0)
	// A preimage that does not start with an address word is ignored.
	b.events = append(b.events, b.events[len(b.events)-2])
	b.events[len(b.events)-1].Preimage = append([]byte{0xff}, make([]byte, 63)...)
	idx := indexPreimages(b.build())

	tests := []struct {
		name string
		slot common.Hash
		addr common.Address
		want bool
	}{
		{"address word", common.BytesToHash(senderAddr.Bytes()), senderAddr, true},
		{"address left-aligned", common.BytesToHash(common.RightPadBytes(senderAddr.Bytes(), 32)), senderAddr, false},
		{"mapping entry", keyedSlot(senderAddr, 4, 0), senderAddr, true},
		{"struct member", keyedSlot(senderAddr, 4, 1), senderAddr, true},
		{"last member", keyedSlot(senderAddr, 4, associatedSlotRange), senderAddr, true},
		{"past range", keyedSlot(senderAddr, 4, associatedSlotRange+1), senderAddr, false},
		{"below base", keyedSlot(senderAddr, 4, -1), senderAddr, false},
		{"other key", keyedSlot(paymasterAddr, 4, 0), paymasterAddr, false},
		{"other mapping", keyedSlot(senderAddr, 5, 0), senderAddr, false},
		{"plain slot", slot(3), senderAddr, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, idx.associated(tt.slot, tt.addr))
		})
	}
	require.Len(t, idx, 1)
}

func TestClassifier_Classify(t *testing.T) {
	rules := DefaultRules()
	sender := entity.Entity{Role: entity.Sender, Address: senderAddr}
	factory := entity.Entity{Role: entity.Factory, Address: factoryAddr}
	paymaster := entity.Entity{Role: entity.Paymaster, Address: paymasterAddr}

	tr := newTraceBuilder(nil).
		enter(entryPoint, tokenAddr).
		mapping(senderAddr, 0, 0).
		mapping(paymasterAddr, 0, 0).
		mapping(factoryAddr, 0, 0).
		exit().
		build()

	undeployed, err := entity.NewSet(false, sender, factory, paymaster)
	require.NoError(t, err)
	deployed, err := entity.NewSet(true, sender, paymaster)
	require.NoError(t, err)

	tests := []struct {
		name    string
		set     *entity.Set
		storage common.Address
		slot    common.Hash
		phase   entity.Entity
		class   StorageClass
		needs   *entity.Role
	}{
		{"entry point", deployed, entryPoint, slot(1), paymaster, ClassUnpoliced, nil},
		{"sender own", deployed, senderAddr, slot(1), sender, ClassSelf, nil},
		{"sender storage in paymaster phase", deployed, senderAddr, slot(1), paymaster, ClassSelf, nil},
		{"sender storage in factory phase", undeployed, senderAddr, slot(1), factory, ClassSelf, nil},
		{"paymaster own", deployed, paymasterAddr, slot(1), paymaster, ClassSelf, rolePtr(entity.Paymaster)},
		{"factory own", undeployed, factoryAddr, slot(1), factory, ClassSelf, rolePtr(entity.Factory)},
		{"sender keyed, deployed", deployed, tokenAddr, keyedSlot(senderAddr, 0, 0), paymaster, ClassAssociated, nil},
		{"sender keyed, undeployed", undeployed, tokenAddr, keyedSlot(senderAddr, 0, 0), paymaster, ClassAssociated, rolePtr(entity.Factory)},
		{"sender keyed in sender phase, undeployed", undeployed, tokenAddr, keyedSlot(senderAddr, 0, 0), sender, ClassAssociated, rolePtr(entity.Factory)},
		{"paymaster keyed", deployed, tokenAddr, keyedSlot(paymasterAddr, 0, 0), paymaster, ClassAssociated, rolePtr(entity.Paymaster)},
		{"paymaster keyed in sender phase", deployed, tokenAddr, keyedSlot(paymasterAddr, 0, 0), sender, ClassExternal, nil},
		{"factory keyed in paymaster phase", undeployed, tokenAddr, keyedSlot(factoryAddr, 0, 0), paymaster, ClassExternal, nil},
		{"unrelated", deployed, tokenAddr, slot(2), sender, ClassExternal, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			access := NewClassifier(&rules, tt.set, tr).Classify(tt.storage, tt.slot, tt.phase)
			require.Equal(t, tt.class, access.Class)
			if tt.needs == nil {
				require.Nil(t, access.Needs)
				require.Equal(t, tt.class != ClassExternal, access.Allowed())
				return
			}
			require.NotNil(t, access.Needs)
			require.Equal(t, *tt.needs, access.Needs.Role)
			require.False(t, access.Allowed())
		})
	}
}

func rolePtr(r entity.Role) *entity.Role {
	return &r
}
