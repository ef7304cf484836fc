package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/matthewvogt/contactsd/internal/contact"
	"github.com/matthewvogt/contactsd/internal/store"
)

// Self ids used by OpenStores.
const (
	PrivilegedSelf    contact.ID = "p-self"
	NonprivilegedSelf contact.ID = "n-self"
)

// Stores bundles the three databases a reconciliation pass touches.
type Stores struct {
	Privileged    *FaultyStore
	Nonprivileged *FaultyStore
	State         *FaultyStore
	Clock         *StepClock
}

// OpenStores opens in-memory stores sharing one StepClock.
func OpenStores(t *testing.T) *Stores {
	t.Helper()
	clock := NewStepClock()
	return &Stores{
		Privileged:    NewFaultyStore(openMemory(t, clock, PrivilegedSelf)),
		Nonprivileged: NewFaultyStore(openMemory(t, clock, NonprivilegedSelf)),
		State:         NewFaultyStore(openMemory(t, clock, "state-self")),
		Clock:         clock,
	}
}

func openMemory(t *testing.T, clock *StepClock, self contact.ID) *store.Store {
	t.Helper()
	s, err := store.Open(":memory:", store.WithClock(clock.Now), store.WithSelfID(self))
	if err != nil {
		t.Fatalf("store.Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// FaultyStore wraps a store and fails chosen operations on demand. Fault
// names are the method names: "Save", "Remove", "Apply", "Find", "Fetch",
// "LocalChanges", "PutOOB", "WriteAnchor", "ReadAnchor", "GetOOB".
type FaultyStore struct {
	*store.Store

	mu     sync.Mutex
	faults map[string][]error
	calls  map[string]int
}

func NewFaultyStore(s *store.Store) *FaultyStore {
	return &FaultyStore{
		Store:  s,
		faults: make(map[string][]error),
		calls:  make(map[string]int),
	}
}

// Fail queues errs for the next calls of op, one error per call.
func (f *FaultyStore) Fail(op string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faults[op] = append(f.faults[op], errs...)
}

// Clear drops all queued faults.
func (f *FaultyStore) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faults = make(map[string][]error)
}

// Calls returns how many times op was invoked.
func (f *FaultyStore) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// ResetCalls zeroes the call counters.
func (f *FaultyStore) ResetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = make(map[string]int)
}

func (f *FaultyStore) take(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	queued := f.faults[op]
	if len(queued) == 0 {
		return nil
	}
	f.faults[op] = queued[1:]
	return queued[0]
}

func (f *FaultyStore) Find(ctx context.Context, filter contact.Filter) ([]contact.ID, error) {
	if err := f.take("Find"); err != nil {
		return nil, err
	}
	return f.Store.Find(ctx, filter)
}

func (f *FaultyStore) Fetch(ctx context.Context, ids []contact.ID) ([]contact.Record, error) {
	if err := f.take("Fetch"); err != nil {
		return nil, err
	}
	return f.Store.Fetch(ctx, ids)
}

func (f *FaultyStore) Save(ctx context.Context, records []contact.Record, mask ...contact.DetailType) error {
	if err := f.take("Save"); err != nil {
		return err
	}
	return f.Store.Save(ctx, records, mask...)
}

func (f *FaultyStore) Remove(ctx context.Context, ids []contact.ID) error {
	if err := f.take("Remove"); err != nil {
		return err
	}
	return f.Store.Remove(ctx, ids)
}

func (f *FaultyStore) Apply(ctx context.Context, removed []contact.ID, saved []contact.Record) error {
	if err := f.take("Apply"); err != nil {
		return err
	}
	return f.Store.Apply(ctx, removed, saved)
}

func (f *FaultyStore) LocalChanges(ctx context.Context, source string, since time.Time, ignorable []contact.DetailType) (contact.ChangeSet, error) {
	if err := f.take("LocalChanges"); err != nil {
		return contact.ChangeSet{}, err
	}
	return f.Store.LocalChanges(ctx, source, since, ignorable)
}

func (f *FaultyStore) ReadAnchor(ctx context.Context, source string) (contact.Anchor, error) {
	if err := f.take("ReadAnchor"); err != nil {
		return contact.Anchor{}, err
	}
	return f.Store.ReadAnchor(ctx, source)
}

func (f *FaultyStore) WriteAnchor(ctx context.Context, source string, anchor contact.Anchor) error {
	if err := f.take("WriteAnchor"); err != nil {
		return err
	}
	return f.Store.WriteAnchor(ctx, source, anchor)
}

func (f *FaultyStore) GetOOB(ctx context.Context, scope string, keys []string) (map[string][]byte, error) {
	if err := f.take("GetOOB"); err != nil {
		return nil, err
	}
	return f.Store.GetOOB(ctx, scope, keys)
}

func (f *FaultyStore) PutOOB(ctx context.Context, scope string, values map[string][]byte) error {
	if err := f.take("PutOOB"); err != nil {
		return err
	}
	return f.Store.PutOOB(ctx, scope, values)
}
