package testutil

import (
	"context"
	"sync"
	"sync/atomic"
)

// Fetcher is a controllable read for cache tests.
//
// Each call increments Calls. When gated, calls block until Release (or
// the context ends), so a test can hold a fetch in flight while it issues
// concurrent reads or invalidations.
//
// Thread-safety: Fetcher is safe for concurrent use.
type Fetcher struct {
	calls atomic.Int64

	mu     sync.Mutex
	gate   chan struct{}
	result func(call int64) (any, error)
}

// NewFetcher returns a fetcher whose n-th call returns result(n).
func NewFetcher(result func(call int64) (any, error)) *Fetcher {
	return &Fetcher{result: result}
}

// Constant returns a fetcher that always returns v.
func Constant(v any) *Fetcher {
	return NewFetcher(func(int64) (any, error) { return v, nil })
}

// Gate makes subsequent calls block until Release.
func (f *Fetcher) Gate() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = make(chan struct{})
}

// Release unblocks every call waiting on the current gate and removes it.
func (f *Fetcher) Release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gate != nil {
		close(f.gate)
		f.gate = nil
	}
}

// SetResult replaces the result function for later calls.
func (f *Fetcher) SetResult(result func(call int64) (any, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.result = result
}

// Calls reports how many times Fetch has been invoked.
func (f *Fetcher) Calls() int64 {
	return f.calls.Load()
}

// Fetch has the signature of cache.Fetcher.
func (f *Fetcher) Fetch(ctx context.Context) (any, error) {
	n := f.calls.Add(1)

	f.mu.Lock()
	gate := f.gate
	result := f.result
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return result(n)
}
