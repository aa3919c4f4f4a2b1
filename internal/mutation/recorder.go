package mutation

import (
	"context"
	"time"

	"github.com/roach88/qsync/internal/fault"
	"github.com/roach88/qsync/internal/ir"
)

// Record is the journal entry written when a run begins.
type Record struct {
	RunID     string
	Mutation  string
	RowID     string
	Input     []byte // canonical JSON where possible
	Seq       int64
	StartedAt time.Time
}

// Outcome is the journal entry written when a run settles.
type Outcome struct {
	RunID       string
	Status      Status
	ErrKind     string
	ErrMessage  string
	Invalidated []ir.Key
	FinishedAt  time.Time
}

// Recorder persists runs. Recording failures are logged and never change
// a run's outcome.
type Recorder interface {
	RecordRun(ctx context.Context, rec Record) error
	RecordOutcome(ctx context.Context, out Outcome) error
}

func (e *Executor) recordStart(ctx context.Context, runID, name, row string, seq int64, input any) {
	if e.recorder == nil {
		return
	}
	rec := Record{
		RunID:     runID,
		Mutation:  name,
		RowID:     row,
		Input:     canonicalInput(input),
		Seq:       seq,
		StartedAt: e.wall.Now(),
	}
	if err := e.recorder.RecordRun(context.WithoutCancel(ctx), rec); err != nil {
		e.logger.Warn("journal run", "mutation", name, "run", runID, "error", err)
	}
}

func (e *Executor) recordOutcome(ctx context.Context, runID string, status Status, ferr *fault.Error, marked []ir.Key, at time.Time) {
	if e.recorder == nil {
		return
	}
	out := Outcome{
		RunID:       runID,
		Status:      status,
		Invalidated: marked,
		FinishedAt:  at,
	}
	if ferr != nil {
		out.ErrKind = string(ferr.Kind)
		out.ErrMessage = ferr.Message
	}
	if err := e.recorder.RecordOutcome(context.WithoutCancel(ctx), out); err != nil {
		e.logger.Warn("journal outcome", "run", runID, "error", err)
	}
}
