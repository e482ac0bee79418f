// Package entity resolves the role-bearing addresses that take part in the
// validation of a UserOperation and reads their stake once per pass.
package entity

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	model "github.com/blndgs/oprules"
)

// Role is the part an address plays in a UserOperation.
type Role uint8

const (
	Sender Role = iota
	Factory
	Paymaster
	Aggregator
)

func (r Role) String() string {
	switch r {
	case Sender:
		return "sender"
	case Factory:
		return "factory"
	case Paymaster:
		return "paymaster"
	case Aggregator:
		return "aggregator"
	default:
		return fmt.Sprintf("role(%d)", uint8(r))
	}
}

func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(text []byte) error {
	switch string(text) {
	case "sender":
		*r = Sender
	case "factory":
		*r = Factory
	case "paymaster":
		*r = Paymaster
	case "aggregator":
		*r = Aggregator
	default:
		return fmt.Errorf("unknown entity role %q", text)
	}
	return nil
}

// Entity is a single participant of a UserOperation.
type Entity struct {
	Role    Role           `json:"role"`
	Address common.Address `json:"address"`
	Staked  bool           `json:"staked"`
	Stake   StakeInfo      `json:"stake"`
}

func (e Entity) String() string {
	return fmt.Sprintf("%s %s", e.Role, e.Address.Hex())
}

// Set is the ordered list of entities of one UserOperation: the sender first,
// followed by factory, paymaster and aggregator when present.
type Set struct {
	entities       []Entity
	senderDeployed bool
}

// Resolve derives the entities of op and reads their stake from ledger. A zero
// aggregator address means the operation is not aggregated.
func Resolve(op *model.UserOperation, aggregator common.Address, ledger StakeLedger, policy StakePolicy) (*Set, error) {
	if op.HasInitCode() && len(op.InitCode) < common.AddressLength {
		return nil, model.ErrMalformedInitCode
	}
	if op.HasPaymaster() && len(op.PaymasterAndData) < common.AddressLength {
		return nil, model.ErrMalformedPaymasterAndData
	}

	candidates := []struct {
		role    Role
		address common.Address
		present bool
	}{
		{Sender, op.Sender, true},
		{Factory, op.GetFactory(), op.HasInitCode()},
		{Paymaster, op.GetPaymaster(), op.HasPaymaster()},
		{Aggregator, aggregator, aggregator != (common.Address{})},
	}

	set := &Set{
		entities:       make([]Entity, 0, len(candidates)),
		senderDeployed: !op.HasInitCode(),
	}
	for _, c := range candidates {
		if !c.present {
			continue
		}
		info, err := ledger.StakeOf(c.address)
		if err != nil {
			return nil, fmt.Errorf("failed to read stake of %s %s: %w", c.role, c.address.Hex(), err)
		}
		set.entities = append(set.entities, Entity{
			Role:    c.role,
			Address: c.address,
			Staked:  policy.IsStaked(info),
			Stake:   info,
		})
	}
	return set, nil
}

// NewSet builds a Set from already resolved entities. The first entity must be
// the sender.
func NewSet(senderDeployed bool, entities ...Entity) (*Set, error) {
	if len(entities) == 0 || entities[0].Role != Sender {
		return nil, fmt.Errorf("entity set must start with the sender")
	}
	seen := make(map[Role]bool, len(entities))
	for _, e := range entities {
		if seen[e.Role] {
			return nil, fmt.Errorf("duplicate %s entity", e.Role)
		}
		seen[e.Role] = true
	}
	if !senderDeployed && !seen[Factory] {
		return nil, fmt.Errorf("undeployed sender requires a factory")
	}
	return &Set{entities: append([]Entity(nil), entities...), senderDeployed: senderDeployed}, nil
}

// Sender returns the sender entity, which always exists.
func (s *Set) Sender() Entity {
	return s.entities[0]
}

// SenderDeployed reports whether the sender has code before validation, that
// is whether the operation carries no initCode.
func (s *Set) SenderDeployed() bool {
	return s.senderDeployed
}

// Get returns the entity with the given role.
func (s *Set) Get(role Role) (Entity, bool) {
	for _, e := range s.entities {
		if e.Role == role {
			return e, true
		}
	}
	return Entity{}, false
}

// ByAddress returns the first entity, in role order, whose address is addr.
func (s *Set) ByAddress(addr common.Address) (Entity, bool) {
	for _, e := range s.entities {
		if e.Address == addr {
			return e, true
		}
	}
	return Entity{}, false
}

// All returns a copy of the entities in role order.
func (s *Set) All() []Entity {
	return append([]Entity(nil), s.entities...)
}

// Len returns the number of entities.
func (s *Set) Len() int {
	return len(s.entities)
}
