package redact

import "github.com/matthewvogt/contactsd/internal/contact"

// StripProvenance removes the provenance field from every detail. Provenance
// values are only meaningful inside the store that produced them.
func StripProvenance(r *contact.Record) bool {
	changed := false
	for i := range r.Details {
		if r.Details[i].HasValue(contact.FieldProvenance) {
			d := r.Details[i].Clone()
			d.Unset(contact.FieldProvenance)
			r.Details[i] = d
			changed = true
		}
	}
	return changed
}

// StripTimestamp removes the store-managed timestamp detail; the receiving
// store computes its own.
func StripTimestamp(r *contact.Record) bool {
	return r.RemoveType(contact.TypeTimestamp) > 0
}

// StripGUID removes externally supplied unique identifiers.
func StripGUID(r *contact.Record) bool {
	return r.RemoveType(contact.TypeGUID) > 0
}
