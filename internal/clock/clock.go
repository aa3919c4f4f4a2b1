// Package clock provides the logical sequence clock and the wall-time source
// used by the query store and the mutation executor.
package clock

import (
	"sync/atomic"
	"time"
)

// Logical is a monotonic sequence counter.
//
// Invalidations, fetch starts and mutation runs are all stamped from one
// Logical so "did this fetch begin after that invalidation" is a plain
// integer comparison, immune to wall-clock skew.
//
// Thread-safety: Logical is safe for concurrent use.
type Logical struct {
	seq atomic.Int64
}

// NewLogical creates a clock starting at 0. The first Next() returns 1.
func NewLogical() *Logical {
	return &Logical{}
}

// NewLogicalAt creates a clock starting at a specific sequence number.
// Used to resume numbering from the last journal entry.
func NewLogicalAt(start int64) *Logical {
	c := &Logical{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number.
func (c *Logical) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Logical) Current() int64 {
	return c.seq.Load()
}

// Wall supplies the current time. Staleness is measured against it.
type Wall interface {
	Now() time.Time
}

// System is the real wall clock.
type System struct{}

// Now returns time.Now().
func (System) Now() time.Time { return time.Now() }

// WallFunc adapts a function to the Wall interface.
type WallFunc func() time.Time

// Now calls f.
func (f WallFunc) Now() time.Time { return f() }
