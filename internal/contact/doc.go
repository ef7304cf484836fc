// Package contact defines the record model shared by both contact stores and
// the reconciliation engine.
//
// A Record is an identifier plus an unordered collection of Details. Each
// Detail carries a type tag from a closed vocabulary (see DetailType), a set
// of named field values, an optional detail URI and the URIs of the details it
// links to.
//
// Every DetailType is classified as exactly one of:
//   - Ignorable: store-computed or structural details that never take part in
//     change comparison (sync target, timestamp, display label, ...)
//   - PresenceRelated: presence, online accounts and origin metadata, the only
//     kinds a presence-only change may touch
//   - Content: everything else
//
// The classification is an exhaustive switch so that a new detail kind cannot
// be added without deciding which class it belongs to.
package contact
