package reconcile

import "github.com/matthewvogt/contactsd/internal/contact"

// PresenceOnly reports whether new differs from old only in ignorable and
// presence-related details. Detail URIs and linked URIs are not compared.
//
// For every content type the two records must carry the same number of
// details, and each old detail must match a distinct new detail by value.
// A content type that only the new record carries is a change as well.
func PresenceOnly(old, new contact.Record) bool {
	var seen contact.TypeMask
	for _, d := range old.Details {
		t := d.Type
		if seen.Has(t) {
			continue
		}
		seen |= contact.MaskOf(t)
		if contact.Classify(t) != contact.ClassContent {
			continue
		}
		if !matchValues(old.DetailsOf(t), new.DetailsOf(t)) {
			return false
		}
	}
	for _, d := range new.Details {
		if !seen.Has(d.Type) && contact.Classify(d.Type) == contact.ClassContent {
			return false
		}
	}
	return true
}

// matchValues pairs each old detail with an unconsumed new detail of equal
// value. O(n²) in details per type, which stays in the tens.
func matchValues(old, new []contact.Detail) bool {
	if len(old) != len(new) {
		return false
	}
	consumed := make([]bool, len(new))
	for _, od := range old {
		matched := false
		for j, nd := range new {
			if consumed[j] || !od.EqualValues(nd) {
				continue
			}
			consumed[j] = true
			matched = true
			break
		}
		if !matched {
			return false
		}
	}
	return true
}
