// Package cache implements the query store: the client-side cache that
// holds the last-known-good result of every named read.
//
// ARCHITECTURE:
//
// The Store is the single owner of cached entries. Callers never touch an
// entry directly; they receive Snapshot values and drive the store through
// Get, Fetch, Invalidate and Subscribe.
//
// Fetch flow:
//  1. Get(key) returns the current snapshot synchronously
//  2. If the entry is missing, stale, invalidated or forced, a fetch starts
//     on its own goroutine; the entry moves to loading
//  3. A second Get while loading attaches to the in-flight fetch
//  4. On completion the entry moves to success or error and subscribers
//     are notified in subscription order
//
// INVARIANTS:
//
//   - At most one fetch per key is in flight.
//   - Data is only replaced by a successful fetch. A failed refresh keeps the
//     previous data and sets status=error (stale-while-revalidate).
//   - Invalidating an entry that is already invalidated is a no-op; marking
//     stale is not additive. Concurrent mutations that invalidate the same key
//     therefore produce a single refetch.
//   - An invalidation that arrives while an older fetch is running schedules
//     exactly one trailing refetch, so the entry never settles on data read
//     before the invalidating write.
//   - Notifications for one key are delivered FIFO, outside the store lock.
//     A callback may call back into the store; nested transitions are queued
//     behind the current delivery rather than recursing.
package cache
