// Package harness runs reconciliation scenarios as executable contract
// tests.
//
// A scenario writes records into in-memory privileged and nonprivileged
// stores, runs passes through the real driver, and checks the outcome.
//
// # Scenario Format
//
// Scenarios are YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	import: true
//	steps:
//	  - save:
//	      side: privileged
//	      ref: ada
//	      details:
//	        - type: name
//	          fields: { first: Ada, last: Lovelace }
//	  - fail: { store: nonprivileged, op: Save, error: fault }
//	  - sync:
//	      expect:
//	        state: aborted
//	        aborted_in: export-pass
//	  - sync:
//	      expect:
//	        export: { added: 1 }
//	        pairs: 2
//	  - remove: { side: nonprivileged, ref: ada }
//	assertions:
//	  - type: record_count
//	    side: nonprivileged
//	    count: 2
//	  - type: record_detail
//	    side: nonprivileged
//	    ref: ada
//	    detail: name
//	    field: first
//	    value: Ada
//
// A ref names one logical contact across both stores. Saving an unknown ref
// creates a record; after every pass, refs are resolved through the
// identifier mapping so that a ref created on one side can be addressed on
// the other. The ref "self" is the self record of either side.
//
// # Assertion Types
//
//   - record_count: number of live records on a side, self record included
//   - pair_count: number of identifier pairs
//   - record_detail: a ref's first detail of a type has a field value
//   - detail_absent: a ref carries no detail of a type
//   - record_missing: a ref has no live record on a side
//
// # Deterministic Testing
//
// Stores run on a step clock and passes get fixed ids, so traces are
// identical across runs and can be compared against golden files.
// Store-allocated ids never appear in traces; refs stand in for them.
package harness
