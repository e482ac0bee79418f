package validation

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/ethereum/go-ethereum/metrics"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	model "github.com/blndgs/oprules"
	"github.com/blndgs/oprules/entity"
)

var validateTimer = metrics.NewRegisteredTimer("oprules/validate", nil)

const defaultStakeCacheSize = 256

// Validator runs validation passes. It holds no per-operation state and is
// safe for concurrent use.
type Validator struct {
	rules          Rules
	stakePolicy    entity.StakePolicy
	sim            Simulator
	workers        int
	stakeCacheSize int
	logger         zerolog.Logger
}

// Option configures a Validator.
type Option func(*Validator)

// WithWorkers bounds the number of concurrent passes of ValidateBatch.
func WithWorkers(n int) Option {
	return func(v *Validator) {
		if n > 0 {
			v.workers = n
		}
	}
}

// WithStakeCacheSize sets the number of stake entries cached per batch.
func WithStakeCacheSize(n int) Option {
	return func(v *Validator) {
		if n > 0 {
			v.stakeCacheSize = n
		}
	}
}

func NewValidator(rules Rules, stakePolicy entity.StakePolicy, sim Simulator, logger zerolog.Logger, opts ...Option) *Validator {
	logger = logger.With().Str("component", "userop-rules").Logger()

	v := &Validator{
		rules:          rules,
		stakePolicy:    stakePolicy,
		sim:            sim,
		workers:        runtime.GOMAXPROCS(0),
		stakeCacheSize: defaultStakeCacheSize,
		logger:         logger,
	}
	for _, opt := range opts {
		opt(v)
	}

	logger.Info().
		Str("entryPoint", rules.EntryPoint.Hex()).
		Str("senderCreator", rules.SenderCreator.Hex()).
		Int("precompiles", len(rules.Precompiles)).
		Str("minStake", model.FormatAmount(stakePolicy.MinStake)).
		Uint32("minUnstakeDelaySec", stakePolicy.MinUnstakeDelaySec).
		Msg("validation rules configured")

	return v
}

// Validate simulates op on view and decides whether it may enter the
// mempool. Every failure of the operation is reported as a rejecting
// Verdict; an error is returned only when ctx is done or the stake ledger
// cannot be read.
func (v *Validator) Validate(ctx context.Context, op *model.UserOperation, view StateView) (Verdict, error) {
	start := time.Now()
	defer validateTimer.UpdateSince(start)

	logger := v.logger.With().Str("sender", op.Sender.Hex()).Logger()

	if err := op.ValidateFields(); err != nil {
		verdict := reject(ReasonMalformedOperation, fmt.Errorf("%w: %w", ErrMalformedOperation, err).Error())
		v.record(logger, verdict)
		return verdict, nil
	}

	res, err := v.sim.Simulate(ctx, op, view)
	if err == nil && res == nil {
		err = errors.New("no result")
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Verdict{}, ctxErr
		}
		verdict := reject(ReasonSimulationFailure, fmt.Errorf("%w: %w", ErrSimulationFailure, err).Error())
		v.record(logger, verdict)
		return verdict, nil
	}

	set, err := entity.Resolve(op, res.Aggregator, view, v.stakePolicy)
	if err != nil {
		if isMalformed(err) {
			verdict := reject(ReasonMalformedOperation, fmt.Errorf("%w: %w", ErrMalformedOperation, err).Error())
			v.record(logger, verdict)
			return verdict, nil
		}
		return Verdict{}, err
	}

	verdict, err := NewEvaluator(&v.rules, set).Evaluate(ctx, res.Trace, res.PaymasterContext)
	if err != nil {
		return Verdict{}, err
	}

	logger.Debug().
		Int("events", res.Trace.Len()).
		Uint64("gasUsed", res.GasUsed).
		Int("entities", set.Len()).
		Msg("trace evaluated")
	v.record(logger, verdict)
	return verdict, nil
}

// ValidateBatch validates ops concurrently against one view. Stake reads are
// shared by the passes of the batch. The result is in the order of ops.
func (v *Validator) ValidateBatch(ctx context.Context, ops []*model.UserOperation, view StateView) ([]Verdict, error) {
	ledger, err := entity.NewCachedLedger(view, v.stakeCacheSize)
	if err != nil {
		return nil, err
	}
	shared := &cachedView{StateView: view, ledger: ledger}

	verdicts := make([]Verdict, len(ops))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.workers)
	for i, op := range ops {
		g.Go(func() error {
			verdict, err := v.Validate(gctx, op, shared)
			if err != nil {
				return fmt.Errorf("op %d: %w", i, err)
			}
			verdicts[i] = verdict
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return verdicts, nil
}

func (v *Validator) record(logger zerolog.Logger, verdict Verdict) {
	if verdict.Admit {
		metrics.GetOrRegisterCounter("oprules/verdicts/admitted", nil).Inc(1)
		logger.Info().Msg("user operation admitted")
		return
	}
	metrics.GetOrRegisterCounter("oprules/verdicts/rejected/"+verdict.Reason.String(), nil).Inc(1)

	e := logger.Info().
		Str("reason", verdict.Reason.String()).
		Int("code", verdict.Reason.RPCCode()).
		Int("violations", len(verdict.Violations)).
		Str("detail", verdict.Detail)
	if verdict.Entity != nil {
		e = e.Str("entity", verdict.Entity.Role.String()).
			Str("entityAddress", verdict.Entity.Address.Hex())
	}
	e.Msg("user operation rejected")
}

func isMalformed(err error) bool {
	return errors.Is(err, model.ErrMalformedInitCode) ||
		errors.Is(err, model.ErrMalformedPaymasterAndData) ||
		errors.Is(err, model.ErrNoSender)
}
