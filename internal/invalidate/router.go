// Package invalidate routes a mutation's declared invalidation patterns to
// the query store.
package invalidate

import (
	"log/slog"

	"github.com/roach88/qsync/internal/ir"
)

// Invalidator marks cached entries matching pattern as stale and returns
// the keys it newly marked. *cache.Store implements it.
type Invalidator interface {
	Invalidate(pattern ir.Key) []ir.Key
}

// Router applies invalidation patterns. It holds no state of its own; the
// same Router may be shared by every mutation.
type Router struct {
	target Invalidator
	logger *slog.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the router logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) { r.logger = l }
}

// New creates a router that invalidates through target.
func New(target Invalidator, opts ...Option) *Router {
	r := &Router{target: target, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Apply invalidates each pattern in declaration order and returns the union
// of the keys marked, first-marked first.
//
// The store treats an already-invalidated entry as a no-op, so overlapping
// patterns (["doctors"] and ["doctors","pending"]) mark each key once and
// the order of patterns has no observable effect on the store.
func (r *Router) Apply(patterns []ir.Key) []ir.Key {
	if len(patterns) == 0 {
		return nil
	}

	var marked []ir.Key
	seen := make(map[string]bool)
	for _, p := range patterns {
		for _, k := range r.target.Invalidate(p) {
			id, err := k.Canonical()
			if err != nil || seen[id] {
				continue
			}
			seen[id] = true
			marked = append(marked, k)
		}
	}

	r.logger.Debug("invalidation applied", "patterns", len(patterns), "marked", len(marked))
	return marked
}
