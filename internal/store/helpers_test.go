package store

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/matthewvogt/contactsd/internal/contact"
)

type tickClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTickClock() *tickClock {
	return &tickClock{now: time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *tickClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

// createTestStore opens a file-backed store with a ticking clock.
func createTestStore(t *testing.T, opts ...Option) (*Store, *tickClock) {
	t.Helper()
	clock := newTickClock()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, append([]Option{WithClock(clock.Now)}, opts...)...)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, clock
}

func phone(number string) contact.Detail {
	return contact.NewDetail(contact.TypePhoneNumber, "number", number)
}

func aggregate() contact.Detail {
	return contact.NewDetail(contact.TypeSyncTarget, contact.FieldSyncTarget, contact.SyncTargetAggregate)
}

func presence(state string) contact.Detail {
	return contact.NewDetail(contact.TypePresence, contact.FieldPresenceState, state)
}

func withoutTimestamp(r contact.Record) contact.Record {
	r = r.Clone()
	r.RemoveType(contact.TypeTimestamp)
	return r
}
