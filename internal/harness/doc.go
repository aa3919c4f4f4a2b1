// Package harness runs YAML scenarios of console reads and writes against
// the in-memory backend and records what the query store did.
//
// # Scenario Format
//
//	name: approve_refreshes_doctor_lists
//	description: "Approving a doctor refreshes both doctor lists"
//	steps:
//	  - fetch: doctors/pending
//	    expect: { status: success, ids: [d2, d3] }
//	  - subscribe: doctors/pending
//	  - mutate: approve-doctor
//	    arg: d2
//	    expect: { status: success }
//	  - fail_next: { path: /api/patient, status: 503 }
//	  - parallel:
//	      - { mutate: approve-doctor, arg: d3 }
//	      - { mutate: delete-doctor, arg: d1 }
//	  - invalidate: doctors
//	  - advance: 6m
//	assertions:
//	  - type: final_state
//	    query: doctors/pending
//	    expect: { status: success, ids: [d3], fetches: 2 }
//	  - type: trace_count
//	    event: notify
//	    key: doctors/pending
//	    count: 2
//
// Step kinds: get, fetch, subscribe, unsubscribe, invalidate, mutate,
// parallel (mutate steps only), fail_next and advance.
//
// # Assertion Types
//
//   - trace_contains: an event of the given type (and key or mutation) exists
//   - trace_order: labels ("mutate:approve-doctor", "notify:doctors/pending")
//     appear in order, not necessarily adjacent
//   - trace_count: exactly N events of a type (and key or mutation)
//   - final_state: status, ids, fetch count or staleness of a query at the end
//   - journal_count: the mutation journal holds N runs of a mutation
//
// # Determinism
//
// Each scenario gets a fresh backend, store, executor and in-memory
// journal, a manual wall clock and sequential run ids. After every step the
// harness waits until no fetch is in flight and every subscriber has seen
// the settled state, then appends the notifications the step caused,
// grouped by key. Parallel mutate steps are recorded in declaration order
// without the keys each one marked, since which run marks a shared key
// first is a race.
package harness
