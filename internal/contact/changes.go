package contact

import "time"

// ChangeSet is the privileged store's answer to "what changed since t".
// Next is the anchor to use for the following query.
type ChangeSet struct {
	Added    []Record
	Modified []Record
	Deleted  []ID
	Next     time.Time
}

// Empty reports whether the set carries no changes.
func (c ChangeSet) Empty() bool {
	return len(c.Added) == 0 && len(c.Modified) == 0 && len(c.Deleted) == 0
}

// Anchor holds the per-direction synchronization boundaries of one sync
// source. Zero times mean "from the beginning".
type Anchor struct {
	Remote time.Time `json:"remote" yaml:"remote"`
	Local  time.Time `json:"local" yaml:"local"`
}
