package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/qsync/internal/clock"
	"github.com/roach88/qsync/internal/fault"
	"github.com/roach88/qsync/internal/ir"
)

// Store is the process-wide query cache.
//
// Create one with New at application start and pass it explicitly to every
// consumer. All methods are safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
	order   []*entry // insertion order, for deterministic invalidation
	closed  bool
	nextSub int64

	ctx    context.Context // parent of every fetch; cancelled by Close
	cancel context.CancelFunc

	notify *notifier
	seq    *clock.Logical
	wall   clock.Wall
	logger *slog.Logger

	defaultStaleAfter time.Duration
}

// New creates an empty store.
func New(opts ...Option) *Store {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		entries:           make(map[string]*entry),
		ctx:               ctx,
		cancel:            cancel,
		notify:            &notifier{},
		seq:               clock.NewLogical(),
		wall:              clock.System{},
		logger:            slog.Default(),
		defaultStaleAfter: DefaultStaleAfter,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the current snapshot of key and, if the entry is missing,
// stale, invalidated or forced, starts a background fetch. A Get that finds
// a fetch in flight attaches to it instead of starting another.
//
// fetcher may be nil to reuse the fetcher registered by an earlier call.
// The returned snapshot already reflects a fetch started by this call.
func (s *Store) Get(key ir.Key, fetcher Fetcher, opts ...QueryOption) Snapshot {
	snap, _ := s.get(key, fetcher, opts)
	return snap
}

// Fetch is Get followed by a wait for the in-flight fetch, if any. It
// returns the settled snapshot. The error is non-nil only when ctx ends
// before the fetch settles; fetch failures are reported in the snapshot.
func (s *Store) Fetch(ctx context.Context, key ir.Key, fetcher Fetcher, opts ...QueryOption) (Snapshot, error) {
	snap, f := s.get(key, fetcher, opts)
	if f == nil {
		return snap, nil
	}
	select {
	case <-f.done:
		return f.snap, nil
	case <-ctx.Done():
		return snap, ctx.Err()
	}
}

func (s *Store) get(key ir.Key, fetcher Fetcher, opts []QueryOption) (Snapshot, *flight) {
	o := s.resolve(opts)

	s.mu.Lock()
	e := s.entryLocked(key)
	if fetcher != nil {
		e.fetcher = fetcher
	}
	e.opts = o

	if !s.closed && o.enabled && e.fetcher != nil && e.flight == nil &&
		(o.force || e.stale(s.wall.Now())) {
		s.startFetchLocked(e)
	}
	if o.refetchInterval > 0 && !s.closed {
		s.ensurePollerLocked(e)
	} else if e.poller != nil {
		e.poller.stop()
		e.poller = nil
	}

	snap := e.snapshot()
	f := e.flight
	s.mu.Unlock()

	s.notify.drain()
	return snap, f
}

// Peek returns the snapshot of key without creating an entry or fetching.
func (s *Store) Peek(key ir.Key) (Snapshot, bool) {
	id, err := key.Canonical()
	if err != nil {
		return Snapshot{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return Snapshot{}, false
	}
	return e.snapshot(), true
}

// Keys returns the keys of every entry in insertion order.
func (s *Store) Keys() []ir.Key {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]ir.Key, len(s.order))
	for i, e := range s.order {
		keys[i] = e.key.Clone()
	}
	return keys
}

// Invalidate marks every entry matching pattern (exact or prefix) stale and
// returns the keys that were newly marked. Data is kept. Entries that have
// subscribers and a registered fetcher refetch immediately; the rest
// refetch on their next Get.
//
// Entries that are already stale are skipped, so repeating an invalidation
// has the same effect as issuing it once.
func (s *Store) Invalidate(pattern ir.Key) []ir.Key {
	var marked []ir.Key

	s.mu.Lock()
	for _, e := range s.order {
		if !e.key.HasPrefix(pattern) || e.invalidated {
			continue
		}
		e.invalidated = true
		e.invalidatedSeq = s.seq.Next()
		marked = append(marked, e.key.Clone())

		if !s.closed && e.flight == nil && len(e.subs) > 0 && e.fetcher != nil && e.opts.enabled {
			s.startFetchLocked(e)
		}
	}
	s.mu.Unlock()

	s.notify.drain()

	if len(marked) > 0 {
		s.logger.Debug("invalidated", "pattern", pattern.String(), "keys", len(marked))
	}
	return marked
}

// Refetch forces a fetch of every entry matching pattern that has a
// registered fetcher, waits for all of them, and returns their settled
// snapshots in insertion order. Entries already loading are awaited, not
// restarted.
func (s *Store) Refetch(ctx context.Context, pattern ir.Key) ([]Snapshot, error) {
	s.mu.Lock()
	var flights []*flight
	for _, e := range s.order {
		if !e.key.HasPrefix(pattern) || e.fetcher == nil || !e.opts.enabled {
			continue
		}
		if e.flight == nil && !s.closed {
			s.startFetchLocked(e)
		}
		if e.flight != nil {
			flights = append(flights, e.flight)
		}
	}
	s.mu.Unlock()
	s.notify.drain()

	snaps := make([]Snapshot, len(flights))
	g, gctx := errgroup.WithContext(ctx)
	for i, f := range flights {
		i, f := i, f
		g.Go(func() error {
			select {
			case <-f.done:
				snaps[i] = f.snap
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return snaps, nil
}

// Subscribe registers fn for every status or data transition of key and
// returns a function that removes it. Listeners run in subscription order.
// Subscribing does not fetch; pair it with Get.
func (s *Store) Subscribe(key ir.Key, fn Listener) (unsubscribe func()) {
	s.mu.Lock()
	e := s.entryLocked(key)
	s.nextSub++
	id := s.nextSub
	e.subs = append(e.subs, subscriber{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, sub := range e.subs {
				if sub.id == id {
					e.subs = append(e.subs[:i:i], e.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Remove drops an entry and stops its poller. A fetch in flight for it
// still settles for waiters but its result is discarded.
func (s *Store) Remove(key ir.Key) bool {
	id, err := key.Canonical()
	if err != nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return false
	}
	delete(s.entries, id)
	for i, o := range s.order {
		if o == e {
			s.order = append(s.order[:i:i], s.order[i+1:]...)
			break
		}
	}
	if e.poller != nil {
		e.poller.stop()
		e.poller = nil
	}
	return true
}

// Close cancels in-flight fetches, stops pollers and refuses new fetches.
// Cached data stays readable.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for _, e := range s.order {
		if e.poller != nil {
			e.poller.stop()
			e.poller = nil
		}
	}
	s.mu.Unlock()
	s.cancel()
}

// entryLocked returns the entry for key, creating an idle one if needed.
// Keys that cannot be canonicalized are a programming error.
func (s *Store) entryLocked(key ir.Key) *entry {
	id := key.MustCanonical()
	if e, ok := s.entries[id]; ok {
		return e
	}
	e := &entry{
		key:    key.Clone(),
		id:     id,
		status: StatusIdle,
		opts:   s.resolve(nil),
	}
	s.entries[id] = e
	s.order = append(s.order, e)
	return e
}

// startFetchLocked moves e to loading and launches its fetcher.
func (s *Store) startFetchLocked(e *entry) {
	f := &flight{seq: s.seq.Next(), done: make(chan struct{})}
	e.flight = f
	e.status = StatusLoading
	e.err = nil
	e.fetchCount++
	s.enqueueLocked(e)

	s.logger.Debug("fetch start", "key", e.key.String(), "seq", f.seq)
	go s.runFetch(e, f, e.fetcher, e.opts)
}

func (s *Store) runFetch(e *entry, f *flight, fetcher Fetcher, o queryOptions) {
	data, err := s.callWithRetry(fetcher, o)

	s.mu.Lock()
	e.flight = nil
	if s.entries[e.id] == e {
		if err == nil {
			e.data = data
			e.hasData = true
			e.status = StatusSuccess
			e.fetchedAt = s.wall.Now()
			if e.invalidated && e.invalidatedSeq < f.seq {
				e.invalidated = false
			}
		} else {
			e.status = StatusError
			e.err = fault.Classify(err)
			e.failureCount++
		}
		s.enqueueLocked(e)
	}
	f.snap = e.snapshot()

	// An invalidation landed after this fetch began: its data may predate
	// the write, so refetch once for the subscribers.
	if s.entries[e.id] == e && !s.closed && e.invalidated && e.invalidatedSeq > f.seq &&
		len(e.subs) > 0 && e.fetcher != nil && e.opts.enabled {
		s.startFetchLocked(e)
	}
	close(f.done)
	s.mu.Unlock()

	if err != nil {
		s.logger.Debug("fetch failed", "key", e.key.String(), "seq", f.seq, "error", err)
	} else {
		s.logger.Debug("fetch done", "key", e.key.String(), "seq", f.seq)
	}
	s.notify.drain()
}

// callWithRetry runs fetcher under the store context, retrying retryable
// failures with exponential backoff.
func (s *Store) callWithRetry(fetcher Fetcher, o queryOptions) (any, error) {
	delay := o.retryBase
	for attempt := 0; ; attempt++ {
		data, err := fetcher(s.ctx)
		if err == nil || attempt >= o.retries || !fault.Retryable(err) {
			return data, err
		}
		t := time.NewTimer(delay)
		select {
		case <-t.C:
		case <-s.ctx.Done():
			t.Stop()
			return nil, err
		}
		delay *= 2
	}
}

// enqueueLocked queues a notification of e's current state. Called with
// s.mu held so per-key order matches transition order.
func (s *Store) enqueueLocked(e *entry) {
	if len(e.subs) == 0 {
		return
	}
	fns := make([]Listener, len(e.subs))
	for i, sub := range e.subs {
		fns[i] = sub.fn
	}
	s.notify.enqueue(notification{listeners: fns, snap: e.snapshot()})
}
