package entity

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	model "github.com/blndgs/oprules"
)

var (
	senderAddr     = common.HexToAddress("0x0A7199a96fdf0252E09F76545c1eF2be3692F46b")
	factoryAddr    = common.HexToAddress("0x9406Cc6185a346906296840746125a0E44976454")
	paymasterAddr  = common.HexToAddress("0xde0B295669a9FD93d5F28D9Ec85E40f4cb697BAe")
	aggregatorAddr = common.HexToAddress("0x1111111111111111111111111111111111111111")
)

func stakedInfo() StakeInfo {
	return StakeInfo{
		Staked:          true,
		Deposit:         big.NewInt(1e18),
		Stake:           big.NewInt(1e18),
		UnstakeDelaySec: 86400,
	}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name       string
		op         *model.UserOperation
		aggregator common.Address
		wantRoles  []Role
		wantErr    error
	}{
		{
			name:      "sender only",
			op:        &model.UserOperation{Sender: senderAddr},
			wantRoles: []Role{Sender},
		},
		{
			name: "sender with factory",
			op: &model.UserOperation{
				Sender:   senderAddr,
				InitCode: append(factoryAddr.Bytes(), 0x01, 0x02),
			},
			wantRoles: []Role{Sender, Factory},
		},
		{
			name: "all entities",
			op: &model.UserOperation{
				Sender:           senderAddr,
				InitCode:         factoryAddr.Bytes(),
				PaymasterAndData: append(paymasterAddr.Bytes(), 0xff),
			},
			aggregator: aggregatorAddr,
			wantRoles:  []Role{Sender, Factory, Paymaster, Aggregator},
		},
		{
			name:    "short initCode",
			op:      &model.UserOperation{Sender: senderAddr, InitCode: []byte{0x01}},
			wantErr: model.ErrMalformedInitCode,
		},
		{
			name:    "short paymasterAndData",
			op:      &model.UserOperation{Sender: senderAddr, PaymasterAndData: make([]byte, 19)},
			wantErr: model.ErrMalformedPaymasterAndData,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set, err := Resolve(tt.op, tt.aggregator, MapLedger{}, StakePolicy{})
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)

			roles := make([]Role, 0, set.Len())
			for _, e := range set.All() {
				roles = append(roles, e.Role)
			}
			require.Equal(t, tt.wantRoles, roles)
			require.Equal(t, senderAddr, set.Sender().Address)
			require.Equal(t, !tt.op.HasInitCode(), set.SenderDeployed())
		})
	}
}

func TestResolve_StakeFlags(t *testing.T) {
	op := &model.UserOperation{
		Sender:           senderAddr,
		InitCode:         factoryAddr.Bytes(),
		PaymasterAndData: paymasterAddr.Bytes(),
	}
	ledger := MapLedger{
		paymasterAddr: stakedInfo(),
		factoryAddr:   {Staked: true, Stake: big.NewInt(10), UnstakeDelaySec: 86400},
	}
	policy := StakePolicy{MinStake: big.NewInt(100), MinUnstakeDelaySec: 3600}

	set, err := Resolve(op, common.Address{}, ledger, policy)
	require.NoError(t, err)

	pm, ok := set.Get(Paymaster)
	require.True(t, ok)
	require.True(t, pm.Staked)

	f, ok := set.Get(Factory)
	require.True(t, ok)
	require.False(t, f.Staked, "stake below the minimum")

	require.False(t, set.Sender().Staked)

	_, ok = set.Get(Aggregator)
	require.False(t, ok)
}

func TestResolve_LedgerReadOncePerEntity(t *testing.T) {
	ctrl := gomock.NewController(t)
	ledger := NewMockStakeLedger(ctrl)

	ledger.EXPECT().StakeOf(senderAddr).Return(StakeInfo{}, nil).Times(1)
	ledger.EXPECT().StakeOf(paymasterAddr).Return(stakedInfo(), nil).Times(1)

	op := &model.UserOperation{Sender: senderAddr, PaymasterAndData: paymasterAddr.Bytes()}
	set, err := Resolve(op, common.Address{}, ledger, StakePolicy{})
	require.NoError(t, err)
	require.Equal(t, 2, set.Len())
}

func TestResolve_LedgerError(t *testing.T) {
	ctrl := gomock.NewController(t)
	ledger := NewMockStakeLedger(ctrl)
	boom := errors.New("state unavailable")
	ledger.EXPECT().StakeOf(senderAddr).Return(StakeInfo{}, boom)

	_, err := Resolve(&model.UserOperation{Sender: senderAddr}, common.Address{}, ledger, StakePolicy{})
	require.ErrorIs(t, err, boom)
	require.Contains(t, err.Error(), "sender")
}

func TestSet_ByAddress(t *testing.T) {
	set, err := NewSet(false,
		Entity{Role: Sender, Address: senderAddr},
		Entity{Role: Factory, Address: factoryAddr, Staked: true},
	)
	require.NoError(t, err)

	e, ok := set.ByAddress(factoryAddr)
	require.True(t, ok)
	require.Equal(t, Factory, e.Role)
	require.True(t, e.Staked)

	_, ok = set.ByAddress(paymasterAddr)
	require.False(t, ok)

	// All returns a copy.
	all := set.All()
	all[0].Staked = true
	require.False(t, set.Sender().Staked)
}

func TestNewSet_Errors(t *testing.T) {
	tests := []struct {
		name     string
		deployed bool
		entities []Entity
	}{
		{name: "empty", deployed: true},
		{name: "sender not first", deployed: true, entities: []Entity{{Role: Paymaster}, {Role: Sender}}},
		{name: "duplicate role", deployed: true, entities: []Entity{{Role: Sender}, {Role: Paymaster}, {Role: Paymaster}}},
		{name: "undeployed without factory", deployed: false, entities: []Entity{{Role: Sender}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSet(tt.deployed, tt.entities...)
			require.Error(t, err)
		})
	}
}

func TestRole_Text(t *testing.T) {
	for _, r := range []Role{Sender, Factory, Paymaster, Aggregator} {
		text, err := r.MarshalText()
		require.NoError(t, err)

		var got Role
		require.NoError(t, got.UnmarshalText(text))
		require.Equal(t, r, got)
	}

	var r Role
	require.Error(t, r.UnmarshalText([]byte("bundler")))
	require.Equal(t, "role(9)", Role(9).String())

	b, err := json.Marshal(Entity{Role: Paymaster, Address: paymasterAddr})
	require.NoError(t, err)
	require.Contains(t, string(b), `"role":"paymaster"`)
}
