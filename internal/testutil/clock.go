package testutil

import (
	"sync"
	"time"
)

// Epoch is the starting instant of every ManualWall.
var Epoch = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

// ManualWall is a wall clock that only moves when told to.
//
// Staleness tests advance it past the stale window instead of sleeping.
//
// Thread-safety: All methods are safe for concurrent use.
type ManualWall struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualWall creates a clock reading Epoch.
func NewManualWall() *ManualWall {
	return &ManualWall{now: Epoch}
}

// Now returns the current reading.
func (w *ManualWall) Now() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.now
}

// Advance moves the clock forward by d.
func (w *ManualWall) Advance(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.now = w.now.Add(d)
}

// Set moves the clock to t.
func (w *ManualWall) Set(t time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.now = t
}
