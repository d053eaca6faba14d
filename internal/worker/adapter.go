package worker

import (
	"context"
	"time"

	"github.com/shortsmith/api/internal/model"
)

// Adapter drives one kind of generator. The supervisor calls Start once,
// polls IsTerminal until it reports a terminal state and, on success,
// asks for the artifact with MaterializeResult.
type Adapter interface {
	Kind() model.Provider
	Start(ctx context.Context, job *model.Job) (*Run, error)
	IsTerminal(ctx context.Context, run *Run) (RunState, error)
	MaterializeResult(ctx context.Context, run *Run) (string, error)
	PollInterval() time.Duration
}

// Run is the adapter-owned handle of a started generation.
type Run struct {
	JobID     string
	StartedAt time.Time

	// managed API
	remoteID     string
	generationID string
	pollErrors   int

	// delegated process
	proc *procRun
}

// RunState is what the supervisor learns from one poll.
type RunState struct {
	// Started is true once the generator showed any sign of life.
	Started  bool
	Terminal bool
	// Failure is set on terminal failures.
	Failure string
}

func (s RunState) succeeded() bool {
	return s.Terminal && s.Failure == ""
}
