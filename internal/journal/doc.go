// Package journal provides SQLite-backed durable storage for mutation runs
// and persisted admin sessions.
//
// The journal is append-only for runs:
//   - runs: one row per mutation invocation (input stored as canonical JSON)
//   - outcomes: at most one row per run, written when it settles
//   - sessions: the signed-in admin for the persistent token scope
//
// All run queries order by seq ASC, id ASC COLLATE BINARY so listings are
// identical across reopen. Timestamps are informational only; ordering
// never depends on wall time.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package journal
