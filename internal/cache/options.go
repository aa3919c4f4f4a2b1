package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/roach88/qsync/internal/clock"
)

// DefaultStaleAfter is how long a successful result stays fresh.
const DefaultStaleAfter = 5 * time.Minute

// Fetcher performs one read. It is treated as an opaque asynchronous
// operation; the store never inspects the result.
type Fetcher func(ctx context.Context) (any, error)

// queryOptions are the per-call settings of Get and Fetch.
type queryOptions struct {
	staleAfter      time.Duration
	refetchInterval time.Duration
	enabled         bool
	force           bool
	retries         int
	retryBase       time.Duration
}

// QueryOption configures a Get or Fetch call.
type QueryOption func(*queryOptions)

// StaleAfter sets the entry's time-to-live. With zero, any elapsed time
// makes the entry stale.
func StaleAfter(d time.Duration) QueryOption {
	return func(o *queryOptions) { o.staleAfter = d }
}

// RefetchInterval polls the key every d while the store is open.
// Zero disables polling.
func RefetchInterval(d time.Duration) QueryOption {
	return func(o *queryOptions) { o.refetchInterval = d }
}

// Enabled gates fetching. A disabled Get only returns the current snapshot.
func Enabled(enabled bool) QueryOption {
	return func(o *queryOptions) { o.enabled = enabled }
}

// Force fetches even when the entry is fresh (unless one is in flight).
func Force() QueryOption {
	return func(o *queryOptions) { o.force = true }
}

// Retry retries retryable failures up to n times, waiting base, 2*base,
// 4*base... between attempts.
func Retry(n int, base time.Duration) QueryOption {
	return func(o *queryOptions) {
		o.retries = n
		o.retryBase = base
	}
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithWall sets the wall clock used for staleness.
func WithWall(w clock.Wall) Option {
	return func(s *Store) { s.wall = w }
}

// WithDefaultStaleAfter overrides DefaultStaleAfter for calls that do not
// pass StaleAfter.
func WithDefaultStaleAfter(d time.Duration) Option {
	return func(s *Store) { s.defaultStaleAfter = d }
}

// WithClock shares a logical clock with other components.
func WithClock(c *clock.Logical) Option {
	return func(s *Store) { s.seq = c }
}

func (s *Store) resolve(opts []QueryOption) queryOptions {
	o := queryOptions{
		staleAfter: s.defaultStaleAfter,
		enabled:    true,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
