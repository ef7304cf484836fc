package syncstate

import (
	"bytes"
	"fmt"
	"slices"

	"github.com/zeebo/blake3"

	"github.com/matthewvogt/contactsd/internal/contact"
)

// Digest fingerprints the stored content of a record.
type Digest [32]byte

// digestDetail is the canonical form of one detail. Empty maps and slices
// encode like missing ones so a stored record digests the same as the
// record that was saved.
type digestDetail struct {
	Type   string            `cbor:"1,keyasint"`
	Fields map[string]string `cbor:"2,keyasint,omitempty"`
	URI    string            `cbor:"3,keyasint,omitempty"`
	Linked []string          `cbor:"4,keyasint,omitempty"`
}

// DigestOf fingerprints the details of r, ignoring their order and the
// store-managed timestamp detail.
func DigestOf(r contact.Record) (Digest, error) {
	encoded := make([][]byte, 0, len(r.Details))
	for _, d := range r.Details {
		if d.Type == contact.TypeTimestamp {
			continue
		}
		data, err := marshal(digestDetail{
			Type:   d.Type.String(),
			Fields: d.Fields,
			URI:    d.URI,
			Linked: d.LinkedURIs,
		})
		if err != nil {
			return Digest{}, fmt.Errorf("digest record %s: %w", r.ID, err)
		}
		encoded = append(encoded, data)
	}
	slices.SortFunc(encoded, bytes.Compare)

	h := blake3.New()
	for _, data := range encoded {
		h.Write(data)
	}
	var out Digest
	copy(out[:], h.Sum(nil))
	return out, nil
}

// ExportEchoes remembers, per nonprivileged id, the digest of the content
// last exported to it. The import pass uses it to tell the export's own
// writes apart from edits made in the nonprivileged store.
type ExportEchoes struct {
	entries map[contact.ID]Digest
	dirty   bool
}

// NewExportEchoes returns an empty, clean table.
func NewExportEchoes() *ExportEchoes {
	return &ExportEchoes{entries: make(map[contact.ID]Digest)}
}

func (e *ExportEchoes) Len() int    { return len(e.entries) }
func (e *ExportEchoes) Dirty() bool { return e.dirty }

// Record notes that d was written to n.
func (e *ExportEchoes) Record(n contact.ID, d Digest) {
	if cur, ok := e.entries[n]; ok && cur == d {
		return
	}
	e.entries[n] = d
	e.dirty = true
}

// Consume drops the entry for n and reports whether it matched d.
func (e *ExportEchoes) Consume(n contact.ID, d Digest) bool {
	cur, ok := e.entries[n]
	if !ok {
		return false
	}
	delete(e.entries, n)
	e.dirty = true
	return cur == d
}

// RecordRemoval notes that n was removed. No content digests to the zero
// value, so removals and writes never match each other.
func (e *ExportEchoes) RecordRemoval(n contact.ID) {
	e.Record(n, Digest{})
}

// ConsumeRemoval drops the entry for n and reports whether it recorded a
// removal.
func (e *ExportEchoes) ConsumeRemoval(n contact.ID) bool {
	return e.Consume(n, Digest{})
}

// Forget drops the entry for n.
func (e *ExportEchoes) Forget(n contact.ID) {
	if _, ok := e.entries[n]; !ok {
		return
	}
	delete(e.entries, n)
	e.dirty = true
}

// Clear drops every entry.
func (e *ExportEchoes) Clear() {
	if len(e.entries) == 0 {
		return
	}
	clear(e.entries)
	e.dirty = true
}

func (e *ExportEchoes) MarshalBinary() ([]byte, error) {
	table := make(map[string][]byte, len(e.entries))
	for n, d := range e.entries {
		table[string(n)] = d[:]
	}
	data, err := marshal(table)
	if err != nil {
		return nil, fmt.Errorf("encode export echoes: %w", err)
	}
	return data, nil
}

// DecodeExportEchoes rebuilds a table from its persisted form. An empty
// blob yields an empty table.
func DecodeExportEchoes(data []byte) (*ExportEchoes, error) {
	e := NewExportEchoes()
	if len(data) == 0 {
		return e, nil
	}
	var table map[string][]byte
	if err := unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("decode export echoes: %w", err)
	}
	for n, raw := range table {
		if len(raw) != len(Digest{}) {
			return nil, fmt.Errorf("decode export echoes: digest for %s has %d bytes", n, len(raw))
		}
		var d Digest
		copy(d[:], raw)
		e.entries[contact.ID(n)] = d
	}
	return e, nil
}
