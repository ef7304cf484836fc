package reconcile

import (
	"errors"
	"fmt"
)

// ErrPassInProgress is returned by Sync while another pass is running.
var ErrPassInProgress = errors.New("reconciliation pass already in progress")

// PassError reports the state and operation at which a pass aborted.
type PassError struct {
	// State is the state the pass was in when it failed.
	State State

	// Op names the failing store operation, e.g. "export save".
	Op string

	Err error
}

func (e *PassError) Error() string {
	return fmt.Sprintf("pass aborted in %s: %s: %v", e.State, e.Op, e.Err)
}

func (e *PassError) Unwrap() error { return e.Err }

// IsAborted reports whether err is a pass abort.
func IsAborted(err error) bool {
	var pe *PassError
	return errors.As(err, &pe)
}

// AbortedIn reports whether err is a pass abort raised in state s.
func AbortedIn(err error, s State) bool {
	var pe *PassError
	if errors.As(err, &pe) {
		return pe.State == s
	}
	return false
}

func abort(s State, op string, err error) *PassError {
	return &PassError{State: s, Op: op, Err: err}
}
