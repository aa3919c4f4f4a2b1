// Package mutation runs write operations against the backend and, on
// success, invalidates the queries they affect.
//
// A Mutation declares its effect and the key patterns it invalidates. Each
// call to Execute or Start produces an independent Run; runs are never
// shared, so two rows being deleted at once each carry their own status.
//
// Run lifecycle:
//
//	idle -> pending -> success   (invalidations applied before settling)
//	                -> error     (no invalidation)
//	idle -> error                (validation rejected the input)
//
// The Executor keeps a registry keyed by (mutation name, row id) so a list
// view can ask "is this row being deleted" without sharing a single
// boolean across rows.
package mutation
