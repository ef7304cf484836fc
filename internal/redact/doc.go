// Package redact holds the transforms applied to a record as it crosses
// between the privileged and nonprivileged stores: detail URI namespace
// rewriting, provenance and timestamp stripping, and avatar path
// virtualization.
//
// All functions operate on a record the caller owns; none of them touch a
// store.
package redact
