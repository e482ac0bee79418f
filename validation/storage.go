package validation

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/blndgs/oprules/entity"
	"github.com/blndgs/oprules/trace"
)

// StorageClass is the relation between a storage access and the entity whose
// phase performs it.
type StorageClass uint8

const (
	// ClassUnpoliced is storage of the EntryPoint, which guards its own state.
	ClassUnpoliced StorageClass = iota
	// ClassSelf is storage of the entity itself, or of the sender.
	ClassSelf
	// ClassAssociated is a slot of a foreign contract keyed by an entity
	// address.
	ClassAssociated
	// ClassExternal is any other storage.
	ClassExternal
)

func (c StorageClass) String() string {
	switch c {
	case ClassUnpoliced:
		return "unpoliced"
	case ClassSelf:
		return "self"
	case ClassAssociated:
		return "associated"
	default:
		return "external"
	}
}

// Access is the classification of one storage access.
type Access struct {
	Class StorageClass
	// Needs is the entity whose stake the access requires. It is nil when the
	// access is unconditionally allowed, or never allowed.
	Needs *entity.Entity
}

// Allowed reports whether the access is allowed given the stake status
// recorded in the entity set.
func (a Access) Allowed() bool {
	return a.Class != ClassExternal && (a.Needs == nil || a.Needs.Staked)
}

// associatedSlotRange is how far past a keccak-derived base a slot is still
// considered keyed by the same address, covering struct members.
const associatedSlotRange = 128

// slotIndex maps an address to the keccak bases of the slots keyed by it.
type slotIndex map[common.Address][]uint256.Int

// indexPreimages collects every keccak preimage of the trace whose first word
// is a left-padded address.
func indexPreimages(tr *trace.Trace) slotIndex {
	idx := make(slotIndex)
	for i := 0; i < tr.Len(); i++ {
		ev := tr.At(i)
		if ev.Kind != trace.KindKeccak || len(ev.Preimage) < common.HashLength {
			continue
		}
		if !isAddressWord(ev.Preimage[:common.HashLength]) {
			continue
		}
		addr := common.BytesToAddress(ev.Preimage[common.HashLength-common.AddressLength : common.HashLength])
		var base uint256.Int
		base.SetBytes(crypto.Keccak256(ev.Preimage))
		idx[addr] = append(idx[addr], base)
	}
	return idx
}

func isAddressWord(word []byte) bool {
	for _, b := range word[:common.HashLength-common.AddressLength] {
		if b != 0 {
			return false
		}
	}
	return true
}

// associated reports whether slot is keyed by addr: either the slot is the
// address itself, or it lies within associatedSlotRange of keccak(addr || x).
func (idx slotIndex) associated(slot common.Hash, addr common.Address) bool {
	if slot == common.BytesToHash(addr.Bytes()) {
		return true
	}
	var s, diff uint256.Int
	s.SetBytes(slot[:])
	for i := range idx[addr] {
		base := &idx[addr][i]
		if s.Lt(base) {
			continue
		}
		if diff.Sub(&s, base).LtUint64(associatedSlotRange + 1) {
			return true
		}
	}
	return false
}

// Classifier classifies the storage accesses of one trace.
type Classifier struct {
	rules *Rules
	set   *entity.Set
	slots slotIndex
}

// NewClassifier indexes the keccak preimages of tr. Associations are known
// for the whole trace, regardless of where the hash was computed.
func NewClassifier(rules *Rules, set *entity.Set, tr *trace.Trace) *Classifier {
	return &Classifier{rules: rules, set: set, slots: indexPreimages(tr)}
}

// Classify classifies an access to slot in the storage of storage, performed
// during the validation phase of phase.
func (c *Classifier) Classify(storage common.Address, slot common.Hash, phase entity.Entity) Access {
	sender := c.set.Sender()

	switch {
	case storage == c.rules.EntryPoint:
		return Access{Class: ClassUnpoliced}

	case storage == sender.Address:
		// Includes the sender's constructor writing its own storage.
		return Access{Class: ClassSelf}

	case storage == phase.Address:
		return needs(ClassSelf, phase)

	case c.slots.associated(slot, sender.Address):
		if c.set.SenderDeployed() {
			return Access{Class: ClassAssociated}
		}
		factory, ok := c.set.Get(entity.Factory)
		if !ok {
			return Access{Class: ClassExternal}
		}
		return needs(ClassAssociated, factory)

	case phase.Role != entity.Sender && c.slots.associated(slot, phase.Address):
		return needs(ClassAssociated, phase)

	default:
		return Access{Class: ClassExternal}
	}
}

func needs(class StorageClass, e entity.Entity) Access {
	return Access{Class: class, Needs: &e}
}
