// Package store provides the SQLite-backed local durable store.
//
// The store is a flat key→document mapping. Each logical entity owns one key
// and is responsible for its own internal consistency:
//
//   - "queue": the incident report queue (array of queue entries)
//   - "checklist": the preparedness checklist (array of items)
//
// # Guarantees
//
//   - Set is durable before it returns: every write is an autocommit
//     statement under synchronous=FULL.
//   - Per-key last write wins. Writers are serialized through a single
//     connection; there are no cross-key transactions.
//   - A failed Set leaves the previously committed document untouched.
//   - Every failure is reported as a fault.KindStorage error.
//
// # Database Configuration
//
//   - WAL mode: readers never block the writer
//   - synchronous=FULL: a returned Set survives power loss
//   - busy_timeout=5000: wait for locks up to 5 seconds
//
// The schema version is tracked in PRAGMA user_version. Opening a database
// written by a newer build fails instead of silently misreading it.
package store
