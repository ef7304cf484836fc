package syncstate

import (
	"fmt"
	"maps"
	"sort"

	"github.com/matthewvogt/contactsd/internal/contact"
)

// AvatarShadow records, per privileged id, the avatar URL substitutions made
// on export: substituted URL → original URL.
type AvatarShadow struct {
	entries map[contact.ID]map[string]string
	dirty   bool
}

// NewAvatarShadow returns an empty, clean table.
func NewAvatarShadow() *AvatarShadow {
	return &AvatarShadow{entries: make(map[contact.ID]map[string]string)}
}

func (s *AvatarShadow) Len() int    { return len(s.entries) }
func (s *AvatarShadow) Dirty() bool { return s.dirty }

// Lookup returns the substitutions recorded for p. The returned map must not
// be modified.
func (s *AvatarShadow) Lookup(p contact.ID) map[string]string {
	return s.entries[p]
}

// Set replaces the substitutions for p. An empty map drops the entry.
func (s *AvatarShadow) Set(p contact.ID, changes map[string]string) {
	if len(changes) == 0 {
		s.Drop(p)
		return
	}
	if cur, ok := s.entries[p]; ok && maps.Equal(cur, changes) {
		return
	}
	s.entries[p] = maps.Clone(changes)
	s.dirty = true
}

// Drop removes the entry for p, reporting whether one existed.
func (s *AvatarShadow) Drop(p contact.ID) bool {
	if _, ok := s.entries[p]; !ok {
		return false
	}
	delete(s.entries, p)
	s.dirty = true
	return true
}

// IDs returns the privileged ids with entries, sorted.
func (s *AvatarShadow) IDs() []contact.ID {
	out := make([]contact.ID, 0, len(s.entries))
	for p := range s.entries {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s *AvatarShadow) MarshalBinary() ([]byte, error) {
	table := make(map[string]map[string]string, len(s.entries))
	for p, changes := range s.entries {
		table[string(p)] = changes
	}
	data, err := marshal(table)
	if err != nil {
		return nil, fmt.Errorf("encode avatar shadow: %w", err)
	}
	return data, nil
}

// DecodeAvatarShadow rebuilds a table from its persisted form. An empty blob
// yields an empty table.
func DecodeAvatarShadow(data []byte) (*AvatarShadow, error) {
	s := NewAvatarShadow()
	if len(data) == 0 {
		return s, nil
	}
	var table map[string]map[string]string
	if err := unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("decode avatar shadow: %w", err)
	}
	for p, changes := range table {
		if len(changes) == 0 {
			continue
		}
		s.entries[contact.ID(p)] = changes
	}
	return s, nil
}
