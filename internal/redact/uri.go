package redact

import (
	"strings"

	"github.com/matthewvogt/contactsd/internal/contact"
)

// MangleURI rewrites a detail URI coming from the nonprivileged store into
// the privileged aggregate namespace. URIs of the legacy form
// "aggregate-<id>:<suffix>" lose their embedded id.
func MangleURI(uri string) string {
	return unifyAggregateURI(uri)
}

// DemangleURI rewrites a privileged detail URI for export. The embedded
// legacy id is dropped so that no privileged identifier reaches the
// nonprivileged store. Applying it twice is a no-op.
func DemangleURI(uri string) string {
	return unifyAggregateURI(uri)
}

func unifyAggregateURI(uri string) string {
	if !strings.HasPrefix(uri, contact.SyncTargetAggregate) {
		return uri
	}
	idx := strings.IndexByte(uri, ':')
	if idx == -1 {
		return uri
	}
	return contact.SyncTargetAggregate + uri[idx:]
}

// MangleDetailURIs applies MangleURI to every detail URI and linked URI of
// r and reports whether anything changed.
func MangleDetailURIs(r *contact.Record) bool {
	return rewriteDetailURIs(r, MangleURI)
}

// DemangleDetailURIs applies DemangleURI to every detail URI and linked URI
// of r and reports whether anything changed.
func DemangleDetailURIs(r *contact.Record) bool {
	return rewriteDetailURIs(r, DemangleURI)
}

func rewriteDetailURIs(r *contact.Record, rewrite func(string) string) bool {
	changed := false
	for i := range r.Details {
		d := &r.Details[i]
		if d.URI == "" && len(d.LinkedURIs) == 0 {
			continue
		}
		modified := false
		if d.URI != "" {
			if u := rewrite(d.URI); u != d.URI {
				d.URI = u
				modified = true
			}
		}
		for j, linked := range d.LinkedURIs {
			if linked == "" {
				continue
			}
			if u := rewrite(linked); u != linked {
				if !modified {
					// Copy before writing so the caller's slice is never aliased.
					d.LinkedURIs = append([]string(nil), d.LinkedURIs...)
				}
				d.LinkedURIs[j] = u
				modified = true
			}
		}
		changed = changed || modified
	}
	return changed
}
