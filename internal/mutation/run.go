package mutation

import (
	"context"
	"sync"
	"time"

	"github.com/roach88/qsync/internal/fault"
	"github.com/roach88/qsync/internal/ir"
)

// Status is the lifecycle state of a run.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Settled reports whether s is a terminal status.
func (s Status) Settled() bool {
	return s == StatusSuccess || s == StatusError
}

// Run is one invocation of a mutation. Its accessors are safe to call from
// any goroutine; after Done closes the run no longer changes.
type Run[Out any] struct {
	id       string
	name     string
	rowID    string
	seq      int64
	started  time.Time
	done     chan struct{}
	doneOnce sync.Once

	mu          sync.Mutex
	status      Status
	data        Out
	err         *fault.Error
	invalidated []ir.Key
	finished    time.Time
}

func newRun[Out any](id, name, rowID string, seq int64, started time.Time) *Run[Out] {
	return &Run[Out]{
		id:      id,
		name:    name,
		rowID:   rowID,
		seq:     seq,
		started: started,
		status:  StatusIdle,
		done:    make(chan struct{}),
	}
}

func (r *Run[Out]) ID() string           { return r.id }
func (r *Run[Out]) Name() string         { return r.name }
func (r *Run[Out]) RowID() string        { return r.rowID }
func (r *Run[Out]) Seq() int64           { return r.seq }
func (r *Run[Out]) StartedAt() time.Time { return r.started }

// Done is closed when the run settles.
func (r *Run[Out]) Done() <-chan struct{} { return r.done }

// Status returns the current status.
func (r *Run[Out]) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Data returns the effect's result. It is the zero value unless the run
// succeeded.
func (r *Run[Out]) Data() Out {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.data
}

// Err returns the captured failure, or nil.
func (r *Run[Out]) Err() *fault.Error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Invalidated returns the keys this run marked stale.
func (r *Run[Out]) Invalidated() []ir.Key {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ir.Key, len(r.invalidated))
	copy(out, r.invalidated)
	return out
}

// FinishedAt returns the settle time, zero while pending.
func (r *Run[Out]) FinishedAt() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finished
}

// Wait blocks until the run settles or ctx ends, then returns the result.
// A nil *fault.Error is returned as a nil error.
func (r *Run[Out]) Wait(ctx context.Context) (Out, error) {
	select {
	case <-r.done:
	case <-ctx.Done():
		var zero Out
		return zero, ctx.Err()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.data, r.err
	}
	return r.data, nil
}

func (r *Run[Out]) setPending() {
	r.mu.Lock()
	r.status = StatusPending
	r.mu.Unlock()
}

func (r *Run[Out]) succeed(data Out, invalidated []ir.Key, at time.Time) {
	r.mu.Lock()
	r.status = StatusSuccess
	r.data = data
	r.invalidated = invalidated
	r.finished = at
	r.mu.Unlock()
	r.doneOnce.Do(func() { close(r.done) })
}

func (r *Run[Out]) fail(err *fault.Error, at time.Time) {
	r.mu.Lock()
	r.status = StatusError
	r.err = err
	r.finished = at
	r.mu.Unlock()
	r.doneOnce.Do(func() { close(r.done) })
}
