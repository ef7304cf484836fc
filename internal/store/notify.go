package store

import (
	"github.com/matthewvogt/contactsd/internal/contact"
)

type pendingNotes struct {
	added    []contact.ID
	changed  []contact.ID
	presence []contact.ID
	removed  []contact.ID
}

// OnChange registers fn to receive a notification after every committed
// change made through this Store. Listeners run synchronously on the
// writing goroutine and must not block.
func (s *Store) OnChange(fn func(contact.Notification)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// RequestSync signals listeners that a client wants the named external sync
// sources to run after the next reconciliation.
func (s *Store) RequestSync(names []string) {
	if len(names) == 0 {
		return
	}
	s.emit(contact.Notification{Kind: contact.NotifySyncSourcesChanged, Names: names})
}

func (s *Store) notify(n pendingNotes) {
	if len(n.added) > 0 {
		s.emit(contact.Notification{Kind: contact.NotifyAdded, IDs: n.added})
	}
	if len(n.changed) > 0 {
		s.emit(contact.Notification{Kind: contact.NotifyChanged, IDs: n.changed})
	}
	if len(n.presence) > 0 {
		s.emit(contact.Notification{Kind: contact.NotifyPresenceChanged, IDs: n.presence})
	}
	if len(n.removed) > 0 {
		s.emit(contact.Notification{Kind: contact.NotifyRemoved, IDs: n.removed})
	}
}

func (s *Store) emit(n contact.Notification) {
	s.mu.Lock()
	listeners := append([]func(contact.Notification){}, s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(n)
	}
}
