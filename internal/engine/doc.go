// Package engine implements the change-event coalescer that drives
// reconciliation passes.
//
// ARCHITECTURE:
//
// Single-Writer Event Loop:
// Store notifications are enqueued from any goroutine and processed by
// Engine.Run in one goroutine. The loop owns a single pending timer and is
// the only caller of the driver's Sync, so passes never overlap.
//
// Scheduling:
//   - a data change (privileged added/changed/removed, or nonprivileged
//     changes when import is enabled) restarts the timer with SyncDelay
//   - a presence change restarts it with PresenceSyncDelay unless a data
//     change is already pending
//   - a sync request only queues source names; they are triggered after
//     the next pass completes
//
// A notification that arrives while a pass runs only affects the next pass.
// Once started, a pass runs to completion or abort even when the Run
// context is cancelled.
package engine
