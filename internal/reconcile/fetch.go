package reconcile

import (
	"context"

	"github.com/matthewvogt/contactsd/internal/contact"
)

// remoteChanges returns nonprivileged records added or changed since the
// remote anchor, and the ids removed since then. Both queries are limited to
// the aggregate sync target.
func (p *pass) remoteChanges(ctx context.Context) ([]contact.Record, []contact.ID, error) {
	since := p.anchor.Remote

	changedIDs, err := p.d.nonprivileged.Find(ctx, contact.Filter{
		SyncTarget: contact.SyncTargetAggregate,
		Events:     contact.EventAdded | contact.EventChanged,
		Since:      since,
	})
	if err != nil {
		return nil, nil, abort(StateImport, "find changed", err)
	}
	removed, err := p.d.nonprivileged.Find(ctx, contact.Filter{
		SyncTarget: contact.SyncTargetAggregate,
		Events:     contact.EventRemoved,
		Since:      since,
	})
	if err != nil {
		return nil, nil, abort(StateImport, "find removed", err)
	}
	if len(changedIDs) == 0 {
		return nil, removed, nil
	}

	changed, err := p.d.nonprivileged.Fetch(ctx, changedIDs)
	if err != nil {
		return nil, nil, abort(StateImport, "fetch changed", err)
	}
	return changed, removed, nil
}

// localChanges asks the privileged store what changed since the local
// anchor, ignoring changes confined to ignorable detail types.
func (p *pass) localChanges(ctx context.Context) (contact.ChangeSet, error) {
	cs, err := p.d.privileged.LocalChanges(ctx, p.d.source, p.anchor.Local, contact.IgnorableTypes())
	if err != nil {
		return contact.ChangeSet{}, abort(StateExport, "local changes", err)
	}
	return cs, nil
}
