package cache

import (
	"time"

	"github.com/roach88/qsync/internal/fault"
	"github.com/roach88/qsync/internal/ir"
)

// Status is the lifecycle state of a query entry.
type Status string

const (
	// StatusIdle means the entry exists but no fetch has started.
	StatusIdle Status = "idle"
	// StatusLoading means a fetch is in flight.
	StatusLoading Status = "loading"
	// StatusSuccess means the last fetch succeeded.
	StatusSuccess Status = "success"
	// StatusError means the last fetch failed.
	StatusError Status = "error"
)

// Snapshot is a read-only view of one entry at one instant.
//
// Data is shared with the store and with every other snapshot of the same
// fetch result; treat it as immutable.
type Snapshot struct {
	Key    ir.Key
	Status Status

	// Data is the last successful result. HasData distinguishes a nil result
	// from "never fetched".
	Data    any
	HasData bool

	// Err is the last failure, cleared when a new fetch starts.
	Err *fault.Error

	FetchedAt  time.Time
	StaleAfter time.Duration

	// Invalidated is true between an invalidation and the completion of a
	// fetch that started after it.
	Invalidated bool
	Fetching    bool

	FetchCount   int
	FailureCount int
}

// IsStale reports whether the snapshot is due for refresh at now.
func (s Snapshot) IsStale(now time.Time) bool {
	return s.Invalidated || s.FetchedAt.IsZero() || now.Sub(s.FetchedAt) > s.StaleAfter
}

// Listener receives snapshots of one key.
type Listener func(Snapshot)

type subscriber struct {
	id int64
	fn Listener
}

// flight is one in-flight fetch.
type flight struct {
	seq  int64
	done chan struct{}
	snap Snapshot // settled snapshot, written before done closes
}

// entry is owned by the Store and guarded by Store.mu.
type entry struct {
	key ir.Key
	id  string

	status    Status
	data      any
	hasData   bool
	err       *fault.Error
	fetchedAt time.Time

	invalidated    bool
	invalidatedSeq int64

	fetcher Fetcher
	opts    queryOptions
	flight  *flight
	subs    []subscriber
	poller  *poller

	fetchCount   int
	failureCount int
}

func (e *entry) snapshot() Snapshot {
	return Snapshot{
		Key:          e.key.Clone(),
		Status:       e.status,
		Data:         e.data,
		HasData:      e.hasData,
		Err:          e.err,
		FetchedAt:    e.fetchedAt,
		StaleAfter:   e.opts.staleAfter,
		Invalidated:  e.invalidated,
		Fetching:     e.flight != nil,
		FetchCount:   e.fetchCount,
		FailureCount: e.failureCount,
	}
}

func (e *entry) stale(now time.Time) bool {
	return e.invalidated || !e.hasData || now.Sub(e.fetchedAt) > e.opts.staleAfter
}
