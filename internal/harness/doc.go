// Package harness runs scripted queue scenarios end to end.
//
// A scenario drives a real syncqueue.Queue over a real SQLite store and a
// scripted remote, toggles connectivity through a netmon.Monitor, and
// checks what the remote received.
//
// # Scenario Format
//
// Scenarios are YAML files, decoded strictly so typos are errors:
//
//	name: offline_then_reconnect
//	description: "Reports queued offline are delivered once, in order"
//	online: false
//	steps:
//	  - action: enqueue
//	    id: r1
//	    type: Flooding
//	    description: "knee-deep water"
//	  - action: flush
//	    expect: { synced: 0, failed: 1 }
//	  - action: online
//	assertions:
//	  - type: submitted_order
//	    ids: [r1]
//	  - type: queue_len
//	    count: 0
//
// # Steps
//
//   - enqueue: queue a report with id, type and description
//   - online, offline: set connectivity; going online triggers a flush
//   - flush: flush explicitly, optionally checking synced and failed counts
//   - fail_next: make the next count submits fail with reason
//     (network, rejected or unknown)
//   - restart: close the queue and store, reopen both and reload
//   - retry, discard: act on the entry with id
//
// # Assertion Types
//
//   - submitted_order: the remote accepted exactly ids, in this order
//   - status: entry id has status (pending, failed, synced); synced means
//     delivered and no longer queued
//   - submit_count: the remote saw count submit attempts, for id if set
//   - queue_len: count entries remain queued
//
// # Deterministic Testing
//
// Scenarios run with a fake clock, flush concurrency 1 and backoff
// disabled, so the trace of a scenario is identical across runs and can be
// compared against a golden file.
package harness
