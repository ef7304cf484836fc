package contact

// ID identifies a record within one store. The empty ID is unset.
type ID string

// IsZero reports whether the id is unset.
func (id ID) IsZero() bool { return id == "" }

func (id ID) String() string { return string(id) }

// Record is a contact: an id plus an unordered set of details.
type Record struct {
	ID      ID       `json:"id,omitempty" yaml:"id,omitempty"`
	Details []Detail `json:"details" yaml:"details"`
}

// Clone returns a deep copy of r. Records handed between stores and the
// engine are always cloned before being modified.
func (r Record) Clone() Record {
	out := Record{ID: r.ID}
	if r.Details != nil {
		out.Details = make([]Detail, len(r.Details))
		for i, d := range r.Details {
			out.Details[i] = d.Clone()
		}
	}
	return out
}

// DetailsOf returns the details of type t in record order.
func (r Record) DetailsOf(t DetailType) []Detail {
	var out []Detail
	for _, d := range r.Details {
		if d.Type == t {
			out = append(out, d)
		}
	}
	return out
}

// First returns the first detail of type t.
func (r Record) First(t DetailType) (Detail, bool) {
	for _, d := range r.Details {
		if d.Type == t {
			return d, true
		}
	}
	return Detail{}, false
}

// Has reports whether r carries at least one detail of type t.
func (r Record) Has(t DetailType) bool {
	_, ok := r.First(t)
	return ok
}

// Types returns the distinct detail types of r in first-seen order.
func (r Record) Types() []DetailType {
	var seen TypeMask
	var out []DetailType
	for _, d := range r.Details {
		if seen.Has(d.Type) {
			continue
		}
		seen |= MaskOf(d.Type)
		out = append(out, d.Type)
	}
	return out
}

// SetDetail replaces the first detail of the same type, or appends d when
// there is none. Use it for singular detail kinds.
func (r *Record) SetDetail(d Detail) {
	for i := range r.Details {
		if r.Details[i].Type == d.Type {
			r.Details[i] = d
			return
		}
	}
	r.Details = append(r.Details, d)
}

// RemoveType drops every detail of type t and returns how many were removed.
func (r *Record) RemoveType(t DetailType) int {
	kept := r.Details[:0]
	removed := 0
	for _, d := range r.Details {
		if d.Type == t {
			removed++
			continue
		}
		kept = append(kept, d)
	}
	r.Details = kept
	return removed
}

// SyncTarget returns the record's sync target, or "" when it has none.
func (r Record) SyncTarget() string {
	d, _ := r.First(TypeSyncTarget)
	return d.Value(FieldSyncTarget)
}

// SetSyncTarget sets (or adds) the sync-target detail.
func (r *Record) SetSyncTarget(target string) {
	d, ok := r.First(TypeSyncTarget)
	if ok {
		d = d.Clone()
	} else {
		d = Detail{Type: TypeSyncTarget}
	}
	d.Set(FieldSyncTarget, target)
	r.SetDetail(d)
}

// ChangedTypes returns the types whose details differ between old and new.
// Details of one type are compared as a multiset under Detail.Equal.
func ChangedTypes(old, new Record) TypeMask {
	var changed TypeMask
	for _, t := range AllDetailTypes() {
		if !sameDetails(old.DetailsOf(t), new.DetailsOf(t)) {
			changed |= MaskOf(t)
		}
	}
	return changed
}

func sameDetails(a, b []Detail) bool {
	if len(a) != len(b) {
		return false
	}
	used := make([]bool, len(b))
	for _, da := range a {
		found := false
		for j, db := range b {
			if !used[j] && da.Equal(db) {
				used[j] = true
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
