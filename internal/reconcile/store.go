package reconcile

import (
	"context"
	"time"

	"github.com/matthewvogt/contactsd/internal/contact"
	"github.com/matthewvogt/contactsd/internal/syncstate"
)

// RecordStore is the part of a contact store both sides share.
//
// Save assigns ids in place to records that had none. Batched writes are
// all-or-nothing; a failing batch reports per-index errors through a
// *contact.BatchError, using contact.ErrNotExist for missing records and
// contact.ErrLocked for entries rejected because a sibling failed.
type RecordStore interface {
	Find(ctx context.Context, filter contact.Filter) ([]contact.ID, error)
	Fetch(ctx context.Context, ids []contact.ID) ([]contact.Record, error)
	Save(ctx context.Context, records []contact.Record, mask ...contact.DetailType) error
	Remove(ctx context.Context, ids []contact.ID) error
	SelfID() contact.ID
}

// PrivilegedStore is the full-fidelity side.
type PrivilegedStore interface {
	RecordStore

	// Apply removes and saves in one transaction. Removing an absent
	// record is not an error; saving one is reported like Save.
	Apply(ctx context.Context, removed []contact.ID, saved []contact.Record) error

	// LocalChanges reports records of the aggregate sync target touched at
	// or after since. A record counts as modified only when a change
	// touched a detail type outside ignorable.
	LocalChanges(ctx context.Context, source string, since time.Time, ignorable []contact.DetailType) (contact.ChangeSet, error)
}

// StateStore persists anchors and out-of-band blobs per sync source.
type StateStore interface {
	syncstate.OOB
	ReadAnchor(ctx context.Context, source string) (contact.Anchor, error)
	WriteAnchor(ctx context.Context, source string, anchor contact.Anchor) error
}
