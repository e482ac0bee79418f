package entity

//go:generate mockgen -source ledger.go -destination ledger_mock.go -package entity

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru/v2"
)

// StakeInfo is the deposit ledger entry of an address, as reported by the
// EntryPoint's getDepositInfo.
type StakeInfo struct {
	Staked          bool     `json:"staked"`
	Deposit         *big.Int `json:"deposit"`
	Stake           *big.Int `json:"stake"`
	UnstakeDelaySec uint32   `json:"unstakeDelaySec"`
}

// StakeLedger is a read-only view of the deposit ledger. Implementations must
// answer from one consistent state for the duration of a validation pass.
type StakeLedger interface {
	StakeOf(addr common.Address) (StakeInfo, error)
}

// StakePolicy holds the minimum stake requirements an entity has to meet to be
// considered staked.
type StakePolicy struct {
	MinStake           *big.Int
	MinUnstakeDelaySec uint32
}

// IsStaked reports whether info satisfies the policy.
func (p StakePolicy) IsStaked(info StakeInfo) bool {
	if !info.Staked {
		return false
	}
	if info.UnstakeDelaySec < p.MinUnstakeDelaySec {
		return false
	}
	if p.MinStake != nil && p.MinStake.Sign() > 0 {
		return info.Stake != nil && info.Stake.Cmp(p.MinStake) >= 0
	}
	return true
}

// MapLedger is an in-memory StakeLedger. Unknown addresses have no stake.
type MapLedger map[common.Address]StakeInfo

func (m MapLedger) StakeOf(addr common.Address) (StakeInfo, error) {
	return m[addr], nil
}

// CachedLedger memoizes lookups of an underlying ledger. A CachedLedger must
// not outlive the state snapshot the underlying ledger reads from.
type CachedLedger struct {
	inner StakeLedger
	cache *lru.Cache[common.Address, StakeInfo]
}

func NewCachedLedger(inner StakeLedger, size int) (*CachedLedger, error) {
	cache, err := lru.New[common.Address, StakeInfo](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create stake cache: %w", err)
	}
	return &CachedLedger{inner: inner, cache: cache}, nil
}

func (l *CachedLedger) StakeOf(addr common.Address) (StakeInfo, error) {
	if info, ok := l.cache.Get(addr); ok {
		return info, nil
	}
	info, err := l.inner.StakeOf(addr)
	if err != nil {
		return StakeInfo{}, err
	}
	l.cache.Add(addr, info)
	return info, nil
}
