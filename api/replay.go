package api

import (
	"context"
	"errors"
	"fmt"
	"sync"

	model "github.com/blndgs/oprules"
	"github.com/blndgs/oprules/trace"
	"github.com/blndgs/oprules/validation"
)

var errNotRecorded = errors.New("no simulation recorded for operation")

type recording struct {
	result *validation.SimulationResult
	revert string
}

// replaySimulator serves the simulation results submitted with requests in
// flight. Results are keyed by the decoded operation, which is private to
// its request.
type replaySimulator struct {
	mu         sync.RWMutex
	recordings map[*model.UserOperation]recording
}

func newReplaySimulator() *replaySimulator {
	return &replaySimulator{recordings: make(map[*model.UserOperation]recording)}
}

// record registers the simulation of op until release is called.
func (s *replaySimulator) record(op *model.UserOperation, result *validation.SimulationResult, revert string) (release func()) {
	s.mu.Lock()
	s.recordings[op] = recording{result: result, revert: revert}
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.recordings, op)
		s.mu.Unlock()
	}
}

func (s *replaySimulator) Simulate(ctx context.Context, op *model.UserOperation, _ validation.StateView) (*validation.SimulationResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	rec, ok := s.recordings[op]
	s.mu.RUnlock()

	switch {
	case !ok:
		return nil, errNotRecorded
	case rec.revert != "":
		return nil, fmt.Errorf("%w: %s", validation.ErrExecutionReverted, rec.revert)
	case rec.result == nil:
		return &validation.SimulationResult{Trace: trace.New()}, nil
	}
	return rec.result, nil
}
