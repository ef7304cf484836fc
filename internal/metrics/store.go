package metrics

import (
	"context"
	"time"

	"github.com/matthewvogt/contactsd/internal/contact"
	"github.com/matthewvogt/contactsd/internal/reconcile"
)

// WrapStore records the latency of every call to s under the store label
// name.
func (m *Metrics) WrapStore(name string, s reconcile.RecordStore) reconcile.RecordStore {
	return &recordStore{inner: s, name: name, m: m}
}

// WrapPrivileged is WrapStore for the privileged side.
func (m *Metrics) WrapPrivileged(name string, s reconcile.PrivilegedStore) reconcile.PrivilegedStore {
	return &privilegedStore{recordStore: recordStore{inner: s, name: name, m: m}, inner: s}
}

type recordStore struct {
	inner reconcile.RecordStore
	name  string
	m     *Metrics
}

func (s *recordStore) Find(ctx context.Context, filter contact.Filter) ([]contact.ID, error) {
	defer s.m.observeStore(s.name, "find", time.Now())
	return s.inner.Find(ctx, filter)
}

func (s *recordStore) Fetch(ctx context.Context, ids []contact.ID) ([]contact.Record, error) {
	defer s.m.observeStore(s.name, "fetch", time.Now())
	return s.inner.Fetch(ctx, ids)
}

func (s *recordStore) Save(ctx context.Context, records []contact.Record, mask ...contact.DetailType) error {
	defer s.m.observeStore(s.name, "save", time.Now())
	return s.inner.Save(ctx, records, mask...)
}

func (s *recordStore) Remove(ctx context.Context, ids []contact.ID) error {
	defer s.m.observeStore(s.name, "remove", time.Now())
	return s.inner.Remove(ctx, ids)
}

func (s *recordStore) SelfID() contact.ID {
	return s.inner.SelfID()
}

type privilegedStore struct {
	recordStore
	inner reconcile.PrivilegedStore
}

func (s *privilegedStore) Apply(ctx context.Context, removed []contact.ID, saved []contact.Record) error {
	defer s.m.observeStore(s.name, "apply", time.Now())
	return s.inner.Apply(ctx, removed, saved)
}

func (s *privilegedStore) LocalChanges(ctx context.Context, source string, since time.Time, ignorable []contact.DetailType) (contact.ChangeSet, error) {
	defer s.m.observeStore(s.name, "local_changes", time.Now())
	return s.inner.LocalChanges(ctx, source, since, ignorable)
}
