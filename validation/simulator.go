package validation

//go:generate mockgen -source simulator.go -destination simulator_mock.go -package validation

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	model "github.com/blndgs/oprules"
	"github.com/blndgs/oprules/entity"
	"github.com/blndgs/oprules/trace"
)

var (
	ErrMalformedOperation = errors.New("malformed user operation")
	ErrSimulationFailure  = errors.New("simulation failed")
	ErrExecutionReverted  = errors.New("execution reverted")
	ErrSimulationTimeout  = errors.New("simulation timed out")
	ErrEvaluatorUsed      = errors.New("evaluator already decided")
)

// StateView is the read-only chain state a validation pass runs against. It
// must answer from the same block for the whole pass.
type StateView interface {
	entity.StakeLedger
	CodeSize(addr common.Address) int
}

// SimulationResult is the output of simulating the validation of an
// operation.
type SimulationResult struct {
	Trace            *trace.Trace   `json:"trace"`
	GasUsed          uint64         `json:"gasUsed"`
	Aggregator       common.Address `json:"aggregator"`
	PaymasterContext hexutil.Bytes  `json:"paymasterContext,omitempty"`
}

// Simulator runs the validation of an operation on view and returns its
// complete trace. Failures wrap ErrExecutionReverted or ErrSimulationTimeout.
type Simulator interface {
	Simulate(ctx context.Context, op *model.UserOperation, view StateView) (*SimulationResult, error)
}

// StaticSimulator returns a recorded result for every operation.
type StaticSimulator struct {
	Result *SimulationResult
	Err    error
}

func (s *StaticSimulator) Simulate(ctx context.Context, _ *model.UserOperation, _ StateView) (*SimulationResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Err != nil {
		return nil, s.Err
	}
	if s.Result == nil {
		return &SimulationResult{Trace: trace.New()}, nil
	}
	return s.Result, nil
}

// StaticView is a StateView over fixed stakes and code sizes.
type StaticView struct {
	Stakes entity.MapLedger       `json:"stakes"`
	Code   map[common.Address]int `json:"code"`
}

func (v *StaticView) StakeOf(addr common.Address) (entity.StakeInfo, error) {
	return v.Stakes.StakeOf(addr)
}

func (v *StaticView) CodeSize(addr common.Address) int {
	return v.Code[addr]
}

// cachedView memoizes stake reads of a view shared by a batch.
type cachedView struct {
	StateView
	ledger *entity.CachedLedger
}

func (v *cachedView) StakeOf(addr common.Address) (entity.StakeInfo, error) {
	return v.ledger.StakeOf(addr)
}
