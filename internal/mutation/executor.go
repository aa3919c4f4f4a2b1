package mutation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/roach88/qsync/internal/clock"
	"github.com/roach88/qsync/internal/fault"
	"github.com/roach88/qsync/internal/ir"
)

// Applier applies invalidation patterns. *invalidate.Router implements it.
type Applier interface {
	Apply(patterns []ir.Key) []ir.Key
}

// Executor runs mutations and tracks per-row status.
//
// Thread-safety: Executor is safe for concurrent use. Runs are independent;
// the executor never serializes effects.
type Executor struct {
	router   Applier
	clock    *clock.Logical
	wall     clock.Wall
	ids      IDGenerator
	recorder Recorder
	logger   *slog.Logger

	mu       sync.Mutex
	registry map[rowKey]*rowState
}

type rowKey struct {
	mutation string
	row      string
}

type rowState struct {
	pending int
	last    Status
	seq     int64
}

// Option configures an Executor.
type Option func(*Executor)

// WithClock shares a logical clock, typically the query store's.
func WithClock(c *clock.Logical) Option {
	return func(e *Executor) { e.clock = c }
}

// WithWall sets the clock used for run timestamps.
func WithWall(w clock.Wall) Option {
	return func(e *Executor) { e.wall = w }
}

// WithIDGenerator overrides UUIDv7 run IDs.
func WithIDGenerator(g IDGenerator) Option {
	return func(e *Executor) { e.ids = g }
}

// WithRecorder journals every run.
func WithRecorder(r Recorder) Option {
	return func(e *Executor) { e.recorder = r }
}

// WithLogger sets the executor logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// NewExecutor creates an executor that invalidates through router.
func NewExecutor(router Applier, opts ...Option) *Executor {
	e := &Executor{
		router:   router,
		clock:    clock.NewLogical(),
		wall:     clock.System{},
		ids:      UUIDv7Generator{},
		logger:   slog.Default(),
		registry: make(map[rowKey]*rowState),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs m synchronously. On success the declared invalidations have
// been applied by the time Execute returns. Failures are captured in the
// run, never returned or panicked.
func Execute[In, Out any](ctx context.Context, ex *Executor, m Mutation[In, Out], input In) *Run[Out] {
	run, ok := begin(ctx, ex, m, input)
	if ok {
		settle(ctx, ex, m, input, run)
	}
	return run
}

// Start runs m on its own goroutine and returns the run at once, pending
// (or already failed when validation rejected the input).
func Start[In, Out any](ctx context.Context, ex *Executor, m Mutation[In, Out], input In) *Run[Out] {
	run, ok := begin(ctx, ex, m, input)
	if ok {
		go settle(ctx, ex, m, input, run)
	}
	return run
}

// begin stamps the run, validates input and marks it pending. It reports
// false when the run already settled.
func begin[In, Out any](ctx context.Context, ex *Executor, m Mutation[In, Out], input In) (*Run[Out], bool) {
	rowID := m.rowID(input)
	run := newRun[Out](ex.ids.Generate(), m.Name, rowID, ex.clock.Next(), ex.wall.Now())
	ex.recordStart(ctx, run.id, m.Name, rowID, run.seq, m.journalInput(input))

	var verr *fault.Error
	switch {
	case m.Effect == nil:
		verr = fault.New(fault.KindInternal, "mutation "+m.Name+" has no effect")
	case m.Validate != nil:
		if err := m.Validate(input); err != nil {
			verr = asValidation(err)
		}
	}
	if verr != nil {
		run.fail(verr, ex.wall.Now())
		ex.finishRow(m.Name, rowID, run.seq, StatusError, false)
		ex.recordOutcome(ctx, run.id, StatusError, verr, nil, run.FinishedAt())
		ex.logger.Info("mutation rejected", "mutation", m.Name, "row", rowID, "seq", run.seq, "error", verr.Message)
		return run, false
	}

	run.setPending()
	ex.markPending(m.Name, rowID)
	ex.logger.Debug("mutation start", "mutation", m.Name, "row", rowID, "seq", run.seq)
	return run, true
}

func settle[In, Out any](ctx context.Context, ex *Executor, m Mutation[In, Out], input In, run *Run[Out]) {
	out, err := m.Effect(ctx, input)
	if err != nil {
		ferr := fault.Classify(err)
		run.fail(ferr, ex.wall.Now())
		ex.finishRow(m.Name, run.rowID, run.seq, StatusError, true)
		ex.recordOutcome(ctx, run.id, StatusError, ferr, nil, run.FinishedAt())
		ex.logger.Info("mutation failed", "mutation", m.Name, "row", run.rowID, "seq", run.seq,
			"kind", string(ferr.Kind), "error", ferr.Message)
		return
	}

	var marked []ir.Key
	if ex.router != nil {
		marked = ex.router.Apply(m.Invalidates)
	}
	run.succeed(out, marked, ex.wall.Now())
	ex.finishRow(m.Name, run.rowID, run.seq, StatusSuccess, true)
	ex.recordOutcome(ctx, run.id, StatusSuccess, nil, marked, run.FinishedAt())
	ex.logger.Info("mutation succeeded", "mutation", m.Name, "row", run.rowID, "seq", run.seq,
		"invalidated", len(marked))
}

func asValidation(err error) *fault.Error {
	var fe *fault.Error
	if errors.As(err, &fe) && fe.Kind == fault.KindValidation {
		return fe
	}
	return fault.Wrap(fault.KindValidation, err.Error(), err)
}

// Status reports the state of the most recent run of mutation for row.
// A row with any run still in flight reports pending.
func (e *Executor) Status(mutation, row string) Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.registry[rowKey{mutation, row}]
	if !ok {
		return StatusIdle
	}
	if st.pending > 0 {
		return StatusPending
	}
	return st.last
}

// Pending returns the sorted row ids with a run of mutation in flight.
func (e *Executor) Pending(mutation string) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var rows []string
	for k, st := range e.registry {
		if k.mutation == mutation && st.pending > 0 {
			rows = append(rows, k.row)
		}
	}
	sort.Strings(rows)
	return rows
}

// Reset forgets settled rows of mutation, returning them to idle.
func (e *Executor) Reset(mutation string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for k, st := range e.registry {
		if k.mutation == mutation && st.pending == 0 {
			delete(e.registry, k)
		}
	}
}

func (e *Executor) markPending(mutation, row string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	k := rowKey{mutation, row}
	st, ok := e.registry[k]
	if !ok {
		st = &rowState{last: StatusIdle}
		e.registry[k] = st
	}
	st.pending++
}

// finishRow records a settled run. The latest-started run wins the row's
// last status so an older slow run cannot overwrite a newer result.
func (e *Executor) finishRow(mutation, row string, seq int64, status Status, wasPending bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	k := rowKey{mutation, row}
	st, ok := e.registry[k]
	if !ok {
		st = &rowState{last: StatusIdle}
		e.registry[k] = st
	}
	if wasPending && st.pending > 0 {
		st.pending--
	}
	if seq >= st.seq {
		st.seq = seq
		st.last = status
	}
}

// canonicalInput encodes input as canonical JSON when it is representable,
// falling back to plain JSON (floats, nulls).
func canonicalInput(input any) []byte {
	raw, err := json.Marshal(input)
	if err != nil {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return raw
	}
	canon, err := ir.MarshalCanonical(v)
	if err != nil {
		return raw
	}
	return canon
}
