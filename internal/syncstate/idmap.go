package syncstate

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/matthewvogt/contactsd/internal/contact"
)

// Pair is one privileged/nonprivileged identifier pairing.
type Pair struct {
	Privileged    contact.ID `json:"privileged"`
	Nonprivileged contact.ID `json:"nonprivileged"`
}

// IDMap is a partial bijection between nonprivileged and privileged record
// ids. The reverse index is derived and never persisted.
//
// IDMap is not safe for concurrent use; a pass owns it exclusively.
type IDMap struct {
	toPrivileged    map[contact.ID]contact.ID
	toNonprivileged map[contact.ID]contact.ID
	dirty           bool
	logger          *slog.Logger
}

// NewIDMap returns an empty, clean mapping.
func NewIDMap(logger *slog.Logger) *IDMap {
	if logger == nil {
		logger = slog.Default()
	}
	return &IDMap{
		toPrivileged:    make(map[contact.ID]contact.ID),
		toNonprivileged: make(map[contact.ID]contact.ID),
		logger:          logger,
	}
}

// Len returns the number of pairs.
func (m *IDMap) Len() int { return len(m.toPrivileged) }

// Dirty reports whether the mapping changed since it was loaded.
func (m *IDMap) Dirty() bool { return m.dirty }

// Privileged resolves a nonprivileged id.
func (m *IDMap) Privileged(n contact.ID) (contact.ID, bool) {
	p, ok := m.toPrivileged[n]
	return p, ok
}

// Nonprivileged resolves a privileged id.
func (m *IDMap) Nonprivileged(p contact.ID) (contact.ID, bool) {
	n, ok := m.toNonprivileged[p]
	return n, ok
}

// Register pairs p with n. Any existing pairing of either id is evicted
// first so the mapping stays a bijection. Registering an existing pair is a
// no-op and does not mark the mapping dirty.
func (m *IDMap) Register(p, n contact.ID) {
	if p.IsZero() || n.IsZero() {
		m.logger.Warn("refusing to register incomplete id pair",
			"privileged", p,
			"nonprivileged", n,
		)
		return
	}
	if cur, ok := m.toPrivileged[n]; ok && cur == p {
		return
	}
	if oldP, ok := m.toPrivileged[n]; ok {
		delete(m.toNonprivileged, oldP)
		m.logger.Debug("evicting stale pairing", "privileged", oldP, "nonprivileged", n)
	}
	if oldN, ok := m.toNonprivileged[p]; ok {
		delete(m.toPrivileged, oldN)
		m.logger.Debug("evicting stale pairing", "privileged", p, "nonprivileged", oldN)
	}
	m.toPrivileged[n] = p
	m.toNonprivileged[p] = n
	m.dirty = true
}

// Deregister removes every pairing involving p or n. A mismatch, where p and
// n were not paired with each other, is logged and both entries are still
// removed.
func (m *IDMap) Deregister(p, n contact.ID) bool {
	removed := false
	if cur, ok := m.toPrivileged[n]; ok {
		if cur != p {
			m.logger.Warn("deregistering mismatched pairing",
				"privileged", p,
				"nonprivileged", n,
				"mapped_privileged", cur,
			)
		}
		delete(m.toPrivileged, n)
		delete(m.toNonprivileged, cur)
		removed = true
	}
	if cur, ok := m.toNonprivileged[p]; ok {
		if cur != n {
			m.logger.Warn("deregistering mismatched pairing",
				"privileged", p,
				"nonprivileged", n,
				"mapped_nonprivileged", cur,
			)
		}
		delete(m.toNonprivileged, p)
		delete(m.toPrivileged, cur)
		removed = true
	}
	if removed {
		m.dirty = true
	}
	return removed
}

// SeedSelf pairs the two self records with each other, evicting any pairing
// that conflicts. On first run it is the only entry. It reports whether the
// mapping changed.
func (m *IDMap) SeedSelf(p, n contact.ID) bool {
	if p.IsZero() || n.IsZero() {
		return false
	}
	if cur, ok := m.toPrivileged[n]; ok && cur == p {
		return false
	}
	m.Register(p, n)
	return true
}

// Pairs returns all pairs ordered by privileged id.
func (m *IDMap) Pairs() []Pair {
	out := make([]Pair, 0, len(m.toPrivileged))
	for n, p := range m.toPrivileged {
		out = append(out, Pair{Privileged: p, Nonprivileged: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Privileged < out[j].Privileged })
	return out
}

// MarshalBinary encodes the nonprivileged → privileged table.
func (m *IDMap) MarshalBinary() ([]byte, error) {
	table := make(map[string]string, len(m.toPrivileged))
	for n, p := range m.toPrivileged {
		table[string(n)] = string(p)
	}
	data, err := marshal(table)
	if err != nil {
		return nil, fmt.Errorf("encode id map: %w", err)
	}
	return data, nil
}

// DecodeIDMap rebuilds a mapping from its persisted form. An empty blob
// yields an empty mapping. Entries that would break the bijection are
// dropped in key order and the mapping is marked dirty so the repaired form
// is written back.
func DecodeIDMap(data []byte, logger *slog.Logger) (*IDMap, error) {
	m := NewIDMap(logger)
	if len(data) == 0 {
		return m, nil
	}
	var table map[string]string
	if err := unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("decode id map: %w", err)
	}

	keys := make([]string, 0, len(table))
	for n := range table {
		keys = append(keys, n)
	}
	sort.Strings(keys)

	repaired := false
	for _, key := range keys {
		n, p := contact.ID(key), contact.ID(table[key])
		if n.IsZero() || p.IsZero() {
			repaired = true
			continue
		}
		if other, taken := m.toNonprivileged[p]; taken {
			m.logger.Warn("dropping duplicate pairing from persisted map",
				"privileged", p,
				"nonprivileged", n,
				"kept_nonprivileged", other,
			)
			repaired = true
			continue
		}
		m.toPrivileged[n] = p
		m.toNonprivileged[p] = n
	}
	m.dirty = repaired
	return m, nil
}
