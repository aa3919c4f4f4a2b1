package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/qsync/internal/fault"
	"github.com/roach88/qsync/internal/ir"
	"github.com/roach88/qsync/internal/testutil"
)

const waitFor = 2 * time.Second

func newTestStore(t *testing.T) (*Store, *testutil.ManualWall) {
	t.Helper()
	wall := testutil.NewManualWall()
	s := New(WithWall(wall))
	t.Cleanup(s.Close)
	return s, wall
}

// recorder collects the statuses delivered to a listener.
type recorder struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (r *recorder) listen(s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
}

func (r *recorder) statuses() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Status, len(r.snaps))
	for i, s := range r.snaps {
		out[i] = s.Status
	}
	return out
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snaps)
}

func settled(s *Store, key ir.Key) func() bool {
	return func() bool {
		snap, ok := s.Peek(key)
		return ok && !snap.Fetching && snap.Status != StatusLoading
	}
}

func TestGet_MissingKeyStartsFetch(t *testing.T) {
	s, _ := newTestStore(t)
	f := testutil.Constant([]string{"cardiology"})
	key := ir.K("specialities")

	snap := s.Get(key, f.Fetch)
	assert.Equal(t, StatusLoading, snap.Status)
	assert.True(t, snap.Fetching)
	assert.False(t, snap.HasData)

	snap, err := s.Fetch(context.Background(), key, f.Fetch)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, snap.Status)
	assert.Equal(t, []string{"cardiology"}, snap.Data)
	assert.Equal(t, testutil.Epoch, snap.FetchedAt)
	assert.Equal(t, int64(1), f.Calls())
}

func TestGet_ConcurrentReadersShareOneFetch(t *testing.T) {
	s, _ := newTestStore(t)
	f := testutil.Constant("payload")
	f.Gate()
	key := ir.K("doctors", "pending")

	var wg sync.WaitGroup
	results := make([]Snapshot, 10)
	for i := range results {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			snap, err := s.Fetch(context.Background(), key, f.Fetch)
			assert.NoError(t, err)
			results[i] = snap
		}()
	}

	require.Eventually(t, func() bool { return f.Calls() == 1 }, waitFor, time.Millisecond)
	f.Release()
	wg.Wait()

	assert.Equal(t, int64(1), f.Calls())
	for _, r := range results {
		assert.Equal(t, StatusSuccess, r.Status)
		assert.Equal(t, "payload", r.Data)
	}
}

func TestGet_FreshEntryIsServedFromCache(t *testing.T) {
	s, wall := newTestStore(t)
	f := testutil.Constant(1)
	key := ir.K("patients")

	_, err := s.Fetch(context.Background(), key, f.Fetch)
	require.NoError(t, err)

	wall.Advance(DefaultStaleAfter)
	snap := s.Get(key, f.Fetch)
	assert.Equal(t, StatusSuccess, snap.Status)
	assert.False(t, snap.Fetching)
	assert.Equal(t, int64(1), f.Calls())

	wall.Advance(time.Second)
	snap, err = s.Fetch(context.Background(), key, f.Fetch)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, snap.Status)
	assert.Equal(t, int64(2), f.Calls())
}

func TestGet_ForceBypassesFreshness(t *testing.T) {
	s, wall := newTestStore(t)
	f := testutil.Constant(1)
	key := ir.K("dashboard")

	for i := 0; i < 3; i++ {
		_, err := s.Fetch(context.Background(), key, f.Fetch, StaleAfter(0))
		require.NoError(t, err)
	}
	assert.Equal(t, int64(1), f.Calls(), "no time has passed on the manual wall")

	_, err := s.Fetch(context.Background(), key, f.Fetch, Force())
	require.NoError(t, err)
	assert.Equal(t, int64(2), f.Calls())

	wall.Advance(time.Millisecond)
	_, err = s.Fetch(context.Background(), key, f.Fetch, StaleAfter(0))
	require.NoError(t, err)
	assert.Equal(t, int64(3), f.Calls())
}

func TestGet_DisabledDoesNotFetch(t *testing.T) {
	s, _ := newTestStore(t)
	f := testutil.Constant(1)
	key := ir.K("admins")

	snap := s.Get(key, f.Fetch, Enabled(false))
	assert.Equal(t, StatusIdle, snap.Status)
	assert.Equal(t, int64(0), f.Calls())
}

func TestGet_NilFetcherReusesRegistered(t *testing.T) {
	s, _ := newTestStore(t)
	f := testutil.Constant("x")
	key := ir.K("banners")

	_, err := s.Fetch(context.Background(), key, f.Fetch)
	require.NoError(t, err)
	s.Invalidate(key)

	snap, err := s.Fetch(context.Background(), key, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, snap.Status)
	assert.Equal(t, int64(2), f.Calls())
}

func TestFetch_FailedRefreshKeepsLastData(t *testing.T) {
	s, _ := newTestStore(t)
	f := testutil.Constant([]string{"d1", "d2"})
	key := ir.K("doctors", "approved")

	_, err := s.Fetch(context.Background(), key, f.Fetch)
	require.NoError(t, err)

	f.SetResult(func(int64) (any, error) { return nil, fault.Server(500, "database unavailable") })
	s.Invalidate(key)

	snap, err := s.Fetch(context.Background(), key, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusError, snap.Status)
	require.NotNil(t, snap.Err)
	assert.Equal(t, fault.KindServer, snap.Err.Kind)
	assert.Equal(t, 500, snap.Err.Status)
	assert.True(t, snap.HasData)
	assert.Equal(t, []string{"d1", "d2"}, snap.Data)
	assert.True(t, snap.Invalidated, "a failed refresh leaves the entry stale")
	assert.Equal(t, 1, snap.FailureCount)
}

func TestFetch_RetriesRetryableFailures(t *testing.T) {
	s, _ := newTestStore(t)
	f := testutil.NewFetcher(func(n int64) (any, error) {
		if n < 3 {
			return nil, fault.Server(503, "busy")
		}
		return "ok", nil
	})

	snap, err := s.Fetch(context.Background(), ir.K("feedbacks"), f.Fetch, Retry(3, time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, snap.Status)
	assert.Equal(t, int64(3), f.Calls())
}

func TestFetch_DoesNotRetryClientErrors(t *testing.T) {
	s, _ := newTestStore(t)
	f := testutil.NewFetcher(func(int64) (any, error) { return nil, fault.Server(404, "not found") })

	snap, err := s.Fetch(context.Background(), ir.K("feedbacks"), f.Fetch, Retry(3, time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, StatusError, snap.Status)
	assert.Equal(t, int64(1), f.Calls())
}

func TestFetch_ContextEndsWait(t *testing.T) {
	s, _ := newTestStore(t)
	f := testutil.Constant(1)
	f.Gate()
	defer f.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	snap, err := s.Fetch(ctx, ir.K("payouts", "pending"), f.Fetch)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, StatusLoading, snap.Status)
}

func TestInvalidate_KeepsDataAndForcesRefetch(t *testing.T) {
	s, _ := newTestStore(t)
	f := testutil.NewFetcher(func(n int64) (any, error) { return n, nil })
	key := ir.K("specialities")

	_, err := s.Fetch(context.Background(), key, f.Fetch)
	require.NoError(t, err)

	marked := s.Invalidate(ir.K("specialities"))
	require.Len(t, marked, 1)
	assert.True(t, marked[0].Equal(key))

	snap, ok := s.Peek(key)
	require.True(t, ok)
	assert.True(t, snap.Invalidated)
	assert.Equal(t, int64(1), snap.Data, "invalidation does not clear data")
	assert.Equal(t, int64(1), f.Calls(), "no subscribers, so no immediate refetch")

	snap, err = s.Fetch(context.Background(), key, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), snap.Data)
	assert.False(t, snap.Invalidated)
}

func TestInvalidate_Idempotent(t *testing.T) {
	s, _ := newTestStore(t)
	f := testutil.Constant(1)
	key := ir.K("patients")

	_, err := s.Fetch(context.Background(), key, f.Fetch)
	require.NoError(t, err)

	assert.Len(t, s.Invalidate(key), 1)
	assert.Empty(t, s.Invalidate(key))

	_, err = s.Fetch(context.Background(), key, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), f.Calls())
}

func TestInvalidate_PrefixAndSiblings(t *testing.T) {
	s, _ := newTestStore(t)
	keys := []ir.Key{
		ir.K("doctors", "pending"),
		ir.K("doctors", "approved"),
		ir.K("doctors", "all"),
		ir.K("patients"),
		ir.K("dashboard"),
	}
	for _, k := range keys {
		_, err := s.Fetch(context.Background(), k, testutil.Constant(1).Fetch)
		require.NoError(t, err)
	}

	marked := s.Invalidate(ir.K("doctors", "pending"))
	require.Len(t, marked, 1)
	assert.Equal(t, "doctors/pending", marked[0].String())

	marked = s.Invalidate(ir.K("doctors"))
	var names []string
	for _, k := range marked {
		names = append(names, k.String())
	}
	assert.Equal(t, []string{"doctors/approved", "doctors/all"}, names)

	snap, _ := s.Peek(ir.K("patients"))
	assert.False(t, snap.Invalidated)
	snap, _ = s.Peek(ir.K("dashboard"))
	assert.False(t, snap.Invalidated)
}

func TestInvalidate_UnknownPatternIsNoop(t *testing.T) {
	s, _ := newTestStore(t)
	assert.Empty(t, s.Invalidate(ir.K("nothing")))
	assert.Empty(t, s.Keys())
}

func TestInvalidate_SubscribedEntryRefetchesImmediately(t *testing.T) {
	s, _ := newTestStore(t)
	f := testutil.NewFetcher(func(n int64) (any, error) { return n, nil })
	key := ir.K("specialities")

	var rec recorder
	unsub := s.Subscribe(key, rec.listen)
	defer unsub()

	_, err := s.Fetch(context.Background(), key, f.Fetch)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return rec.len() == 2 }, waitFor, time.Millisecond)

	s.Invalidate(key)
	require.Eventually(t, func() bool { return rec.len() == 4 }, waitFor, time.Millisecond)

	assert.Equal(t, []Status{StatusLoading, StatusSuccess, StatusLoading, StatusSuccess}, rec.statuses())
	assert.Equal(t, int64(2), f.Calls())

	snap, _ := s.Peek(key)
	assert.Equal(t, int64(2), snap.Data)
	assert.False(t, snap.Invalidated)
}

func TestInvalidate_DuringFlightTriggersOneTrailingRefetch(t *testing.T) {
	s, _ := newTestStore(t)
	f := testutil.NewFetcher(func(n int64) (any, error) { return n, nil })
	key := ir.K("doctors", "all")

	unsub := s.Subscribe(key, func(Snapshot) {})
	defer unsub()

	f.Gate()
	s.Get(key, f.Fetch)
	require.Eventually(t, func() bool { return f.Calls() == 1 }, waitFor, time.Millisecond)

	// Two writes land while the first read is in flight.
	assert.Len(t, s.Invalidate(ir.K("doctors")), 1)
	assert.Empty(t, s.Invalidate(ir.K("doctors")))
	f.Release()

	require.Eventually(t, func() bool {
		snap, _ := s.Peek(key)
		return snap.Status == StatusSuccess && snap.Data == int64(2) && !snap.Fetching
	}, waitFor, time.Millisecond)
	assert.Equal(t, int64(2), f.Calls())

	snap, _ := s.Peek(key)
	assert.False(t, snap.Invalidated)
}

func TestInvalidate_ConcurrentWritesCoalesce(t *testing.T) {
	s, _ := newTestStore(t)
	f := testutil.Constant("list")
	key := ir.K("doctors", "pending")

	unsub := s.Subscribe(key, func(Snapshot) {})
	defer unsub()

	_, err := s.Fetch(context.Background(), key, f.Fetch)
	require.NoError(t, err)

	f.Gate()
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Invalidate(ir.K("doctors"))
		}()
	}
	wg.Wait()
	f.Release()

	require.Eventually(t, settled(s, key), waitFor, time.Millisecond)
	assert.Equal(t, int64(2), f.Calls(), "one initial fetch plus one refetch")
}

func TestSubscribe_ListenerMayCallStore(t *testing.T) {
	s, _ := newTestStore(t)
	key := ir.K("banners")
	other := ir.K("dashboard")

	var rec recorder
	s.Subscribe(other, rec.listen)
	s.Subscribe(key, func(snap Snapshot) {
		if snap.Status == StatusSuccess {
			s.Get(other, testutil.Constant("nested").Fetch)
		}
	})

	_, err := s.Fetch(context.Background(), key, testutil.Constant("b").Fetch)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return rec.len() == 2 }, waitFor, time.Millisecond)
	assert.Equal(t, []Status{StatusLoading, StatusSuccess}, rec.statuses())
}

func TestSubscribe_ListenersCalledInSubscriptionOrder(t *testing.T) {
	s, _ := newTestStore(t)
	key := ir.K("doctors", "pending")

	var mu sync.Mutex
	var calls []string
	for _, name := range []string{"A", "B", "C"} {
		name := name
		s.Subscribe(key, func(snap Snapshot) {
			mu.Lock()
			defer mu.Unlock()
			calls = append(calls, name+":"+string(snap.Status))
		})
	}

	_, err := s.Fetch(context.Background(), key, testutil.Constant([]string{"d1"}).Fetch)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(calls) == 6
	}, waitFor, time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		"A:" + string(StatusLoading), "B:" + string(StatusLoading), "C:" + string(StatusLoading),
		"A:" + string(StatusSuccess), "B:" + string(StatusSuccess), "C:" + string(StatusSuccess),
	}, calls)
}

func TestNotifier_PanickingListenerDoesNotStallQueue(t *testing.T) {
	var n notifier
	var got []Status
	record := func(snap Snapshot) { got = append(got, snap.Status) }

	n.enqueue(notification{
		listeners: []Listener{func(Snapshot) { panic("listener failed") }},
		snap:      Snapshot{Status: StatusLoading},
	})
	n.enqueue(notification{listeners: []Listener{record}, snap: Snapshot{Status: StatusLoading}})
	assert.Panics(t, n.drain)

	n.enqueue(notification{listeners: []Listener{record}, snap: Snapshot{Status: StatusSuccess}})
	n.drain()
	assert.Equal(t, []Status{StatusLoading, StatusSuccess}, got)
}

func TestSubscribe_Unsubscribe(t *testing.T) {
	s, _ := newTestStore(t)
	key := ir.K("admins")

	var rec recorder
	unsub := s.Subscribe(key, rec.listen)
	unsub()
	unsub()

	_, err := s.Fetch(context.Background(), key, testutil.Constant(1).Fetch)
	require.NoError(t, err)
	assert.Equal(t, 0, rec.len())
}

func TestRefetch_WaitsForMatchingEntries(t *testing.T) {
	s, _ := newTestStore(t)
	pending := testutil.Constant("p")
	approved := testutil.Constant("a")

	_, err := s.Fetch(context.Background(), ir.K("doctors", "pending"), pending.Fetch)
	require.NoError(t, err)
	_, err = s.Fetch(context.Background(), ir.K("doctors", "approved"), approved.Fetch)
	require.NoError(t, err)
	_, err = s.Fetch(context.Background(), ir.K("patients"), testutil.Constant(1).Fetch)
	require.NoError(t, err)

	snaps, err := s.Refetch(context.Background(), ir.K("doctors"))
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, "p", snaps[0].Data)
	assert.Equal(t, "a", snaps[1].Data)
	assert.Equal(t, int64(2), pending.Calls())
	assert.Equal(t, int64(2), approved.Calls())
}

func TestRemove(t *testing.T) {
	s, _ := newTestStore(t)
	key := ir.K("feedbacks")

	_, err := s.Fetch(context.Background(), key, testutil.Constant(1).Fetch)
	require.NoError(t, err)

	assert.True(t, s.Remove(key))
	assert.False(t, s.Remove(key))
	_, ok := s.Peek(key)
	assert.False(t, ok)
}

func TestClose_CancelsInFlightFetch(t *testing.T) {
	s := New()
	f := testutil.Constant(1)
	f.Gate()
	defer f.Release()
	key := ir.K("dashboard")

	s.Get(key, f.Fetch)
	require.Eventually(t, func() bool { return f.Calls() == 1 }, waitFor, time.Millisecond)
	s.Close()

	require.Eventually(t, settled(s, key), waitFor, time.Millisecond)
	snap, _ := s.Peek(key)
	assert.Equal(t, StatusError, snap.Status)
	assert.Equal(t, fault.KindCanceled, snap.Err.Kind)

	// No new fetches after Close.
	s.Get(key, f.Fetch, Force())
	assert.Equal(t, int64(1), f.Calls())
}

func TestRefetchInterval_Polls(t *testing.T) {
	s, _ := newTestStore(t)
	f := testutil.Constant("stats")
	key := ir.K("dashboard")

	s.Get(key, f.Fetch, RefetchInterval(5*time.Millisecond))
	require.Eventually(t, func() bool { return f.Calls() >= 3 }, waitFor, time.Millisecond)

	s.Remove(key)
	calls := f.Calls()
	time.Sleep(30 * time.Millisecond)
	assert.LessOrEqual(t, f.Calls(), calls+1)
}
