// Package syncstate holds the per-source reconciliation state that lives
// outside the record model: the identifier mapping between the privileged
// and nonprivileged stores, the avatar path shadow table, and the digests
// of content the export pass last wrote to the nonprivileged store.
//
// The tables are loaded once per pass from out-of-band storage, mutated in
// memory, and written back only when dirty. Each is persisted as a single
// CBOR blob using Core Deterministic Encoding, so identical tables always
// produce identical bytes.
package syncstate
