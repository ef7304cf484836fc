// Package store provides SQLite-backed contact record storage.
//
// The same schema serves the privileged store, the nonprivileged mirror and
// the reconciliation state database:
//   - records: live records plus tombstones of deleted ones
//   - changes: an append-only change log with per-change detail-type masks
//   - anchors: per-source synchronization anchors
//   - oob: out-of-band blobs scoped per sync source
//
// # Write Semantics
//
// Batched saves and removals are all-or-nothing. A failing batch rolls back
// and reports a *contact.BatchError: contact.ErrNotExist at the indices of
// missing records and contact.ErrLocked at every other index. Saving a
// record whose details did not change is a no-op and logs no change.
//
// The timestamp detail is never stored; Fetch synthesizes it from the
// created/modified columns.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
