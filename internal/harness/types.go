package harness

// TraceEvent is one executed step. Records are named by ref, never by
// store-allocated id.
type TraceEvent struct {
	Seq       int      `json:"seq"`
	Step      string   `json:"step"`
	Side      string   `json:"side,omitempty"`
	Ref       string   `json:"ref,omitempty"`
	Fault     string   `json:"fault,omitempty"`
	State     string   `json:"state,omitempty"`
	AbortedIn string   `json:"aborted_in,omitempty"`
	Decisions []string `json:"decisions,omitempty"`
	Pairs     int      `json:"pairs,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall success: every sync expectation and
	// assertion held.
	Pass bool `json:"pass"`

	// Trace contains one event per step, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends ev with the next sequence number.
func (r *Result) AddTrace(ev TraceEvent) {
	ev.Seq = len(r.Trace) + 1
	r.Trace = append(r.Trace, ev)
}
