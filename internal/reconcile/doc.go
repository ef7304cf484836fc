// Package reconcile keeps a privileged contact store and its nonprivileged
// mirror consistent.
//
// One call to Driver.Sync runs one pass:
//
//	Idle → PreparingSync → ImportPass → ExportPass → Finalizing → Idle
//
// Any unrecoverable error moves the pass to Aborted. An aborted pass persists
// nothing: anchors and the mapping/shadow tables are written only in
// Finalizing, so the next pass simply repeats the same anchor range.
//
// The import pass (nonprivileged → privileged) runs only when enabled. It
// reverses avatar substitutions made by earlier exports, restores the
// aggregate sync target and strips data that is meaningful only in the
// originating store. The export pass (privileged → nonprivileged) hides
// privileged avatar paths behind hard-linked siblings, normalizes detail URIs
// and strips provenance before writing.
//
// A Driver holds only collaborators and options. Everything a pass mutates
// (identifier mapping, avatar shadow table, anchors, report) lives in a pass
// value owned by a single Sync call; concurrent calls are rejected with
// ErrPassInProgress.
package reconcile
