package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/roach88/qsync/internal/api"
	"github.com/roach88/qsync/internal/backend"
	"github.com/roach88/qsync/internal/cache"
	"github.com/roach88/qsync/internal/clock"
	"github.com/roach88/qsync/internal/console"
	"github.com/roach88/qsync/internal/invalidate"
	"github.com/roach88/qsync/internal/ir"
	"github.com/roach88/qsync/internal/journal"
	"github.com/roach88/qsync/internal/logging"
	"github.com/roach88/qsync/internal/mutation"
	"github.com/roach88/qsync/internal/session"
	"github.com/roach88/qsync/internal/testutil"
)

// settleTimeout bounds the wait for in-flight fetches after each step.
const settleTimeout = 2 * time.Second

// Harness executes one scenario. It is not reusable.
type Harness struct {
	ctx     context.Context
	console *console.Console
	router  *invalidate.Router
	server  *backend.Server
	http    *httptest.Server
	journal *journal.Journal
	wall    *testutil.ManualWall

	mu      sync.Mutex
	seq     int64
	trace   []TraceEvent
	pending []TraceEvent
	last    map[string]cache.Snapshot // subscribed query -> last notified
	unsubs  map[string]func()
}

// Run executes scenario against a fresh backend and store.
//
// Step expectation and assertion failures are reported in the result; the
// error is reserved for scenarios that cannot run at all (unknown query or
// mutation, a store that never settles).
func Run(scenario *Scenario) (*Result, error) {
	h, err := newHarness()
	if err != nil {
		return nil, err
	}
	defer h.close()

	result := NewResult()
	for i, st := range scenario.Steps {
		if err := h.step(fmt.Sprintf("steps[%d]", i), st, result); err != nil {
			return nil, err
		}
	}

	if err := h.collect(result); err != nil {
		return nil, err
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func newHarness() (*Harness, error) {
	quiet := logging.Discard()
	wall := testutil.NewManualWall()

	srv := backend.New(
		backend.WithIDs(mutation.NewSequentialGenerator("new").Generate),
		backend.WithWall(wall),
		backend.WithLogger(quiet),
	)
	hs := httptest.NewServer(srv)

	sess := session.NewMemory(session.WithWall(wall))
	ctx := context.Background()
	if err := sess.Save(ctx, session.Session{
		Token: "dev-token",
		Admin: session.Admin{ID: "a1", Username: "root"},
	}); err != nil {
		hs.Close()
		return nil, err
	}
	client, err := api.New(hs.URL,
		api.WithTokenSource(sess),
		api.WithRequestIDs(mutation.NewSequentialGenerator("req").Generate),
		api.WithLogger(quiet))
	if err != nil {
		hs.Close()
		return nil, err
	}

	j, err := journal.Open(":memory:", journal.WithLogger(quiet))
	if err != nil {
		hs.Close()
		return nil, fmt.Errorf("failed to create in-memory journal: %w", err)
	}

	seq := clock.NewLogical()
	store := cache.New(cache.WithWall(wall), cache.WithClock(seq), cache.WithLogger(quiet))
	router := invalidate.New(store, invalidate.WithLogger(quiet))
	exec := mutation.NewExecutor(router,
		mutation.WithClock(seq),
		mutation.WithWall(wall),
		mutation.WithIDGenerator(mutation.NewSequentialGenerator("run")),
		mutation.WithRecorder(j),
		mutation.WithLogger(quiet))

	c, err := console.New(store, exec, client,
		console.WithSession(sess),
		console.WithWall(wall),
		console.WithLogger(quiet))
	if err != nil {
		store.Close()
		j.Close()
		hs.Close()
		return nil, err
	}

	return &Harness{
		ctx:     ctx,
		console: c,
		router:  router,
		server:  srv,
		http:    hs,
		journal: j,
		wall:    wall,
		last:    make(map[string]cache.Snapshot),
		unsubs:  make(map[string]func()),
	}, nil
}

func (h *Harness) close() {
	h.mu.Lock()
	unsubs := h.unsubs
	h.unsubs = nil
	h.mu.Unlock()
	for _, u := range unsubs {
		u()
	}
	h.console.Store().Close()
	h.http.Close()
	h.journal.Close()
}

func (h *Harness) step(where string, st Step, r *Result) error {
	switch {
	case st.Get != "":
		snap, err := h.console.Get(st.Get)
		if err != nil {
			return fmt.Errorf("%s: %w", where, err)
		}
		h.check(where, st.Expect, h.record(snapshotEvent(EventGet, st.Get, snap)), r)

	case st.Fetch != "":
		snap, err := h.console.Fetch(h.ctx, st.Fetch)
		if err != nil {
			return fmt.Errorf("%s: %w", where, err)
		}
		h.check(where, st.Expect, h.record(snapshotEvent(EventFetch, st.Fetch, snap)), r)

	case st.Subscribe != "":
		if err := h.subscribe(st.Subscribe); err != nil {
			return fmt.Errorf("%s: %w", where, err)
		}

	case st.Unsubscribe != "":
		h.mu.Lock()
		unsub, ok := h.unsubs[st.Unsubscribe]
		delete(h.unsubs, st.Unsubscribe)
		delete(h.last, st.Unsubscribe)
		h.mu.Unlock()
		if !ok {
			return fmt.Errorf("%s: %s is not subscribed", where, st.Unsubscribe)
		}
		unsub()

	case st.Invalidate != "":
		pattern, err := ir.ParseKey(st.Invalidate)
		if err != nil {
			return fmt.Errorf("%s: %w", where, err)
		}
		marked := h.router.Apply([]ir.Key{pattern})
		h.record(TraceEvent{Type: EventInvalidate, Key: pattern.String(), Marked: keyNames(marked)})

	case st.Mutate != "":
		out, err := h.console.RunByName(h.ctx, st.Mutate, st.Arg)
		if err != nil {
			return fmt.Errorf("%s: %w", where, err)
		}
		h.check(where, st.Expect, h.record(outcomeEvent(out, true)), r)

	case len(st.Parallel) > 0:
		outs := make([]console.Outcome, len(st.Parallel))
		errs := make([]error, len(st.Parallel))
		var wg sync.WaitGroup
		for i, sub := range st.Parallel {
			i, sub := i, sub
			wg.Add(1)
			go func() {
				defer wg.Done()
				outs[i], errs[i] = h.console.RunByName(h.ctx, sub.Mutate, sub.Arg)
			}()
		}
		wg.Wait()
		for i, sub := range st.Parallel {
			if errs[i] != nil {
				return fmt.Errorf("%s.parallel[%d]: %w", where, i, errs[i])
			}
			h.check(fmt.Sprintf("%s.parallel[%d]", where, i), sub.Expect, h.record(outcomeEvent(outs[i], false)), r)
		}

	case st.FailNext != nil:
		h.server.FailNext(st.FailNext.Path, st.FailNext.Status)

	case st.Advance != "":
		d, err := time.ParseDuration(st.Advance)
		if err != nil {
			return fmt.Errorf("%s: %w", where, err)
		}
		h.wall.Advance(d)
	}

	if err := h.settle(); err != nil {
		return fmt.Errorf("%s: %w", where, err)
	}
	h.flush()
	return nil
}

func (h *Harness) subscribe(name string) error {
	q, ok := h.console.Lookup(name)
	if !ok {
		return fmt.Errorf("unknown query %q", name)
	}
	h.mu.Lock()
	_, dup := h.unsubs[name]
	h.mu.Unlock()
	if dup {
		return fmt.Errorf("%s is already subscribed", name)
	}

	unsub, err := h.console.Subscribe(name, func(s cache.Snapshot) {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, live := h.last[name]; !live {
			return
		}
		h.last[name] = s
		h.pending = append(h.pending, snapshotEvent(EventNotify, name, s))
	})
	if err != nil {
		return err
	}
	base, _ := h.console.Store().Peek(q.Key)

	h.mu.Lock()
	h.last[name] = base
	h.unsubs[name] = unsub
	h.mu.Unlock()
	return nil
}

// settle waits until no fetch is in flight and every subscriber has been
// told the settled state of its key.
func (h *Harness) settle() error {
	deadline := time.Now().Add(settleTimeout)
	for !h.settled() {
		if time.Now().After(deadline) {
			return fmt.Errorf("store did not settle within %s", settleTimeout)
		}
		time.Sleep(time.Millisecond)
	}
	return nil
}

func (h *Harness) settled() bool {
	store := h.console.Store()
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, k := range store.Keys() {
		snap, ok := store.Peek(k)
		if !ok {
			continue
		}
		if snap.Fetching {
			return false
		}
		if last, sub := h.last[k.String()]; sub {
			if last.FetchCount != snap.FetchCount || last.Status != snap.Status || last.Invalidated != snap.Invalidated {
				return false
			}
		}
	}
	return true
}

// flush appends the buffered notifications, grouped by key. Per-key order
// is delivery order.
func (h *Harness) flush() {
	h.mu.Lock()
	defer h.mu.Unlock()
	sort.SliceStable(h.pending, func(i, j int) bool { return h.pending[i].Key < h.pending[j].Key })
	for _, ev := range h.pending {
		h.appendLocked(ev)
	}
	h.pending = nil
}

func (h *Harness) record(ev TraceEvent) TraceEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.appendLocked(ev)
}

func (h *Harness) appendLocked(ev TraceEvent) TraceEvent {
	h.seq++
	ev.Seq = h.seq
	h.trace = append(h.trace, ev)
	return ev
}

func (h *Harness) check(where string, exp *Expect, ev TraceEvent, r *Result) {
	if exp == nil {
		return
	}
	if exp.Status != "" && exp.Status != ev.Status {
		r.AddError(fmt.Sprintf("%s: expected status %s, got %s", where, exp.Status, ev.Status))
	}
	if exp.IDs != nil && !slices.Equal(exp.IDs, ev.IDs) {
		r.AddError(fmt.Sprintf("%s: expected ids %v, got %v", where, exp.IDs, ev.IDs))
	}
	if exp.ErrorKind != "" && exp.ErrorKind != ev.Error {
		r.AddError(fmt.Sprintf("%s: expected error %s, got %q", where, exp.ErrorKind, ev.Error))
	}
	if exp.HTTPStatus != 0 && exp.HTTPStatus != ev.HTTPStatus {
		r.AddError(fmt.Sprintf("%s: expected http status %d, got %d", where, exp.HTTPStatus, ev.HTTPStatus))
	}
}

func (h *Harness) collect(r *Result) error {
	h.mu.Lock()
	r.Trace = append([]TraceEvent{}, h.trace...)
	h.mu.Unlock()

	store := h.console.Store()
	for _, q := range h.console.Queries() {
		snap, ok := store.Peek(q.Key)
		if !ok {
			continue
		}
		r.State[q.Name] = QueryState{
			Status:  string(snap.Status),
			IDs:     dataIDs(snap),
			Fetches: snap.FetchCount,
			Stale:   snap.Invalidated,
		}
	}

	entries, err := h.journal.Runs(h.ctx)
	if err != nil {
		return fmt.Errorf("read journal: %w", err)
	}
	for _, e := range entries {
		r.JournalRuns[e.Mutation]++
	}
	return nil
}

func snapshotEvent(typ, name string, s cache.Snapshot) TraceEvent {
	ev := TraceEvent{
		Type:    typ,
		Key:     name,
		Status:  string(s.Status),
		IDs:     dataIDs(s),
		Fetches: s.FetchCount,
		Stale:   s.Invalidated,
	}
	if s.Err != nil {
		ev.Error = string(s.Err.Kind)
		ev.HTTPStatus = s.Err.Status
	}
	return ev
}

func outcomeEvent(out console.Outcome, withMarked bool) TraceEvent {
	ev := TraceEvent{
		Type:     EventMutate,
		Mutation: out.Mutation,
		Row:      out.RowID,
		Status:   string(out.Status),
	}
	if withMarked {
		ev.Marked = keyNames(out.Invalidated)
	}
	if out.Err != nil {
		ev.Error = string(out.Err.Kind)
		ev.HTTPStatus = out.Err.Status
	}
	return ev
}

func keyNames(keys []ir.Key) []string {
	if len(keys) == 0 {
		return nil
	}
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.String()
	}
	return out
}

// dataIDs returns the _id of every record when the snapshot holds a list,
// an empty slice for an empty list, and nil otherwise.
func dataIDs(s cache.Snapshot) []string {
	if !s.HasData {
		return nil
	}
	raw, err := json.Marshal(s.Data)
	if err != nil {
		return nil
	}
	var records []struct {
		ID string `json:"_id"`
	}
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil
	}
	ids := make([]string, len(records))
	for i, rec := range records {
		ids[i] = rec.ID
	}
	return ids
}
