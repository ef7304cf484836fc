package contact

import (
	"slices"

	"golang.org/x/text/unicode/norm"
)

// Well-known field names.
const (
	FieldSyncTarget    = "syncTarget"
	FieldImageURL      = "imageUrl"
	FieldProvenance    = "provenance"
	FieldGUID          = "guid"
	FieldCreated       = "created"
	FieldModified      = "modified"
	FieldNickname      = "nickname"
	FieldDisplayName   = "displayName"
	FieldPresenceState = "presenceState"
	FieldAccountURI    = "accountUri"
)

// SyncTargetAggregate marks locally merged records, the scope of
// reconciliation in both stores.
const SyncTargetAggregate = "aggregate"

// Detail is one typed piece of a contact record.
type Detail struct {
	Type       DetailType        `json:"type" yaml:"type"`
	Fields     map[string]string `json:"fields,omitempty" yaml:"fields,omitempty"`
	URI        string            `json:"uri,omitempty" yaml:"uri,omitempty"`
	LinkedURIs []string          `json:"linked_uris,omitempty" yaml:"linked_uris,omitempty"`
}

// NewDetail builds a detail from alternating field name/value pairs.
func NewDetail(t DetailType, kv ...string) Detail {
	d := Detail{Type: t}
	for i := 0; i+1 < len(kv); i += 2 {
		d.Set(kv[i], kv[i+1])
	}
	return d
}

// Clone returns a deep copy of d.
func (d Detail) Clone() Detail {
	out := Detail{Type: d.Type, URI: d.URI}
	if d.Fields != nil {
		out.Fields = make(map[string]string, len(d.Fields))
		for k, v := range d.Fields {
			out.Fields[k] = v
		}
	}
	if d.LinkedURIs != nil {
		out.LinkedURIs = slices.Clone(d.LinkedURIs)
	}
	return out
}

// Value returns the named field, or "" when absent.
func (d Detail) Value(name string) string {
	return d.Fields[name]
}

// HasValue reports whether the named field is present.
func (d Detail) HasValue(name string) bool {
	_, ok := d.Fields[name]
	return ok
}

// Set assigns a field value.
func (d *Detail) Set(name, value string) {
	if d.Fields == nil {
		d.Fields = make(map[string]string)
	}
	d.Fields[name] = value
}

// Unset removes a field and reports whether it was present.
func (d *Detail) Unset(name string) bool {
	if _, ok := d.Fields[name]; !ok {
		return false
	}
	delete(d.Fields, name)
	if len(d.Fields) == 0 {
		d.Fields = nil
	}
	return true
}

// EqualValues compares type and field values, ignoring the detail URI and
// linked URIs. Values are compared in Unicode NFC form.
func (d Detail) EqualValues(other Detail) bool {
	if d.Type != other.Type || len(d.Fields) != len(other.Fields) {
		return false
	}
	for k, v := range d.Fields {
		ov, ok := other.Fields[k]
		if !ok {
			return false
		}
		if v != ov && norm.NFC.String(v) != norm.NFC.String(ov) {
			return false
		}
	}
	return true
}

// Equal compares values, the detail URI and the linked URIs.
func (d Detail) Equal(other Detail) bool {
	return d.URI == other.URI &&
		slices.Equal(d.LinkedURIs, other.LinkedURIs) &&
		d.EqualValues(other)
}
