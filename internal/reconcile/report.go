package reconcile

import (
	"time"

	"github.com/matthewvogt/contactsd/internal/contact"
)

// Direction is the flow of a decision.
type Direction string

const (
	DirectionImport Direction = "import"
	DirectionExport Direction = "export"
)

// Op is what a decision does to the receiving store.
type Op string

const (
	OpAdd      Op = "add"
	OpModify   Op = "modify"
	OpRemove   Op = "remove"
	OpPresence Op = "presence"
	OpSelf     Op = "self"
	OpRecreate Op = "recreate"
)

// Decision is one planned write. The id the receiving store has yet to
// allocate is empty, so identical inputs always plan identical decisions.
type Decision struct {
	Direction     Direction  `json:"direction"`
	Op            Op         `json:"op"`
	Privileged    contact.ID `json:"privileged,omitempty"`
	Nonprivileged contact.ID `json:"nonprivileged,omitempty"`
}

// Counts tallies the writes applied in one direction.
type Counts struct {
	Added     int `json:"added"`
	Modified  int `json:"modified"`
	Removed   int `json:"removed"`
	Presence  int `json:"presence"`
	Self      int `json:"self"`
	Recreated int `json:"recreated"`
	Skipped   int `json:"skipped"`
}

// Writes returns the number of records written to the receiving store.
func (c Counts) Writes() int {
	return c.Added + c.Modified + c.Removed + c.Presence + c.Self
}

// Report describes one pass. A report is returned even when the pass
// aborts; its Decisions then list what had been planned.
type Report struct {
	PassID    string         `json:"pass_id"`
	Source    string         `json:"source"`
	Started   time.Time      `json:"started"`
	Finished  time.Time      `json:"finished"`
	State     State          `json:"state"`
	Import    Counts         `json:"import"`
	Export    Counts         `json:"export"`
	Decisions []Decision     `json:"decisions"`
	Persisted []string       `json:"persisted,omitempty"`
	Anchor    contact.Anchor `json:"anchor"`
	Pairs     int            `json:"pairs"`
}

// Writes returns the records written to both stores.
func (r *Report) Writes() int {
	return r.Import.Writes() + r.Export.Writes()
}

// Aborted reports whether the pass ended in StateAborted.
func (r *Report) Aborted() bool {
	return r.State == StateAborted
}

func (r *Report) plan(d Decision) {
	r.Decisions = append(r.Decisions, d)
}
