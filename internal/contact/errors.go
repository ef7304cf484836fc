package contact

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrNotExist reports a record id that is not (or no longer) present.
	ErrNotExist = errors.New("record does not exist")

	// ErrLocked reports a batch entry that was not applied because a sibling
	// entry in the same batch failed.
	ErrLocked = errors.New("batch locked by sibling failure")
)

// BatchError carries per-index failures of a batched save or remove.
// Indices refer to the slice passed to the failing call.
type BatchError struct {
	Op     string
	Errors map[int]error
}

func (e *BatchError) Error() string {
	indices := e.Indices()
	parts := make([]string, 0, len(indices))
	for _, i := range indices {
		parts = append(parts, fmt.Sprintf("%d: %v", i, e.Errors[i]))
	}
	return fmt.Sprintf("%s: %d failed (%s)", e.Op, len(indices), strings.Join(parts, "; "))
}

// Indices returns the failing indices in ascending order.
func (e *BatchError) Indices() []int {
	out := make([]int, 0, len(e.Errors))
	for i := range e.Errors {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

// Only reports whether every per-index error matches one of targets.
func (e *BatchError) Only(targets ...error) bool {
	for _, err := range e.Errors {
		matched := false
		for _, target := range targets {
			if errors.Is(err, target) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

// AsBatchError unwraps err into a *BatchError.
func AsBatchError(err error) (*BatchError, bool) {
	var be *BatchError
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}
