package reconcile

import (
	"context"
	"errors"
	"slices"

	"github.com/matthewvogt/contactsd/internal/contact"
	"github.com/matthewvogt/contactsd/internal/redact"
	"github.com/matthewvogt/contactsd/internal/syncstate"
)

type exportItem struct {
	record     contact.Record
	privileged contact.ID
	added      bool

	// current is the nonprivileged record a presence-only save merges into.
	current contact.Record
}

type exportRemoval struct {
	privileged    contact.ID
	nonprivileged contact.ID
}

// exportChanges applies privileged changes to the nonprivileged store.
func (p *pass) exportChanges(ctx context.Context) error {
	cs, err := p.localChanges(ctx)
	if err != nil {
		return err
	}
	p.next.Local = cs.Next

	var removals []exportRemoval
	for _, privileged := range cs.Deleted {
		if privileged == p.privilegedSelf {
			continue
		}
		p.tables.Avatars.Drop(privileged)
		n, ok := p.tables.IDs.Nonprivileged(privileged)
		if !ok {
			continue
		}
		p.plan(Decision{Direction: DirectionExport, Op: OpRemove, Privileged: privileged, Nonprivileged: n}, nil)
		removals = append(removals, exportRemoval{privileged: privileged, nonprivileged: n})
	}

	var (
		added    []exportItem
		modified []exportItem
		self     *contact.Record
	)
	for _, rec := range slices.Concat(cs.Added, cs.Modified) {
		privileged := rec.ID
		if p.imported[privileged] {
			p.report.Export.Skipped++
			continue
		}
		rec = rec.Clone()

		if privileged == p.privilegedSelf {
			rec.ID = p.nonprivilegedSelf
			p.prepareExport(&rec, privileged)
			applyNicknameRule(&rec, p.d.nicknameRule)
			self = &rec
			p.plan(Decision{Direction: DirectionExport, Op: OpSelf, Privileged: privileged, Nonprivileged: rec.ID}, &rec)
			continue
		}

		n, paired := p.tables.IDs.Nonprivileged(privileged)
		rec.ID = n
		rec.SetSyncTarget(contact.SyncTargetAggregate)
		p.prepareExport(&rec, privileged)

		item := exportItem{record: rec, privileged: privileged, added: !paired}
		if paired {
			modified = append(modified, item)
		} else {
			added = append(added, item)
		}
	}

	presence, modified, err := p.partitionPresence(ctx, modified)
	if err != nil {
		return err
	}
	for _, item := range presence {
		p.plan(Decision{Direction: DirectionExport, Op: OpPresence, Privileged: item.privileged, Nonprivileged: item.record.ID}, &item.record)
	}
	for _, item := range modified {
		p.plan(Decision{Direction: DirectionExport, Op: OpModify, Privileged: item.privileged, Nonprivileged: item.record.ID}, &item.record)
	}
	for _, item := range added {
		p.plan(Decision{Direction: DirectionExport, Op: OpAdd, Privileged: item.privileged}, &item.record)
	}

	if len(removals) > 0 || len(presence) > 0 || len(modified) > 0 || len(added) > 0 {
		p.log.Info("exporting changes",
			"added", len(added),
			"modified", len(modified),
			"presence", len(presence),
			"removed", len(removals),
		)
	}

	if len(removals) > 0 {
		if err := p.exportRemovals(ctx, removals); err != nil {
			if len(presence) == 0 && len(modified) == 0 && len(added) == 0 && self == nil {
				return abort(StateExport, "export remove", err)
			}
			p.log.Warn("unable to remove exported records, continuing with writes", "error", err)
		}
	}

	if len(presence) > 0 {
		if err := p.savePresence(ctx, presence); err != nil {
			p.log.Warn("unable to save presence changes", "count", len(presence), "error", err)
		}
	}

	if batch := slices.Concat(modified, added); len(batch) > 0 {
		if err := p.saveExport(ctx, batch); err != nil {
			return err
		}
	}

	if self != nil {
		if err := p.d.nonprivileged.Save(ctx, []contact.Record{*self}); err != nil {
			p.log.Warn("unable to export self record changes", "error", err)
		} else {
			p.noteExported(*self)
			p.report.Export.Self++
		}
	}
	return nil
}

// prepareExport hides privileged avatar paths and strips data that is only
// meaningful in the privileged store.
func (p *pass) prepareExport(rec *contact.Record, privileged contact.ID) {
	redact.StripTimestamp(rec)
	p.tables.Avatars.Set(privileged, p.d.virtualizer.Virtualize(rec))
	redact.DemangleDetailURIs(rec)
	redact.StripProvenance(rec)
}

// partitionPresence splits off modifications confined to presence details
// of records that carry an online account.
func (p *pass) partitionPresence(ctx context.Context, modified []exportItem) (presence, rest []exportItem, err error) {
	var ids []contact.ID
	for _, item := range modified {
		if item.record.Has(contact.TypeOnlineAccount) {
			ids = append(ids, item.record.ID)
		}
	}
	if len(ids) == 0 {
		return nil, modified, nil
	}

	current, err := p.d.nonprivileged.Fetch(ctx, ids)
	if err != nil {
		return nil, nil, abort(StateExport, "fetch exported", err)
	}
	existing := make(map[contact.ID]contact.Record, len(current))
	for _, rec := range current {
		existing[rec.ID] = rec
	}

	for _, item := range modified {
		old, ok := existing[item.record.ID]
		if ok && item.record.Has(contact.TypeOnlineAccount) && PresenceOnly(old, item.record) {
			item.current = old
			presence = append(presence, item)
			continue
		}
		rest = append(rest, item)
	}
	return presence, rest, nil
}

func (p *pass) savePresence(ctx context.Context, items []exportItem) error {
	records := make([]contact.Record, len(items))
	for i := range items {
		records[i] = items[i].record
	}
	if err := p.d.nonprivileged.Save(ctx, records, contact.PresenceTypes()...); err != nil {
		return err
	}
	for _, item := range items {
		p.noteExported(presenceMerged(item.current, item.record))
	}
	p.report.Export.Presence += len(items)
	return nil
}

// exportRemovals removes exported records. Records that are already gone
// count as removed; the remaining ones are retried.
func (p *pass) exportRemovals(ctx context.Context, removals []exportRemoval) error {
	pending := removals
	for len(pending) > 0 {
		ids := make([]contact.ID, len(pending))
		for i, r := range pending {
			ids[i] = r.nonprivileged
		}

		err := p.d.nonprivileged.Remove(ctx, ids)
		if err == nil {
			p.completeRemovals(pending)
			return nil
		}

		be, ok := contact.AsBatchError(err)
		if !ok || !be.Only(contact.ErrNotExist, contact.ErrLocked) {
			return err
		}
		var retry, gone []exportRemoval
		for i, r := range pending {
			if e, failed := be.Errors[i]; failed && errors.Is(e, contact.ErrNotExist) {
				gone = append(gone, r)
				continue
			}
			retry = append(retry, r)
		}
		if len(gone) == 0 {
			return err
		}
		p.completeRemovals(gone)
		pending = retry
	}
	return nil
}

func (p *pass) completeRemovals(removals []exportRemoval) {
	for _, r := range removals {
		p.tables.IDs.Deregister(r.privileged, r.nonprivileged)
		if p.d.importEnabled {
			p.tables.Echoes.RecordRemoval(r.nonprivileged)
		}
		p.report.Export.Removed++
	}
}

// saveExport batch-saves modified and added records. When import is
// disabled, records deleted directly in the nonprivileged store are
// recreated as additions and the batch retried, at most maxSaveRetries
// times. With import enabled such a deletion reaches the privileged store
// through the import pass instead, so recreating would fight it.
func (p *pass) saveExport(ctx context.Context, batch []exportItem) error {
	for attempt := 0; ; attempt++ {
		records := make([]contact.Record, len(batch))
		for i := range batch {
			records[i] = batch[i].record
		}

		err := p.d.nonprivileged.Save(ctx, records)
		if err == nil {
			p.completeExport(batch, records)
			return nil
		}

		be, ok := contact.AsBatchError(err)
		if !ok || p.d.importEnabled || attempt >= p.d.maxSaveRetries || !be.Only(contact.ErrNotExist, contact.ErrLocked) {
			return abort(StateExport, "export save", err)
		}

		recreated := 0
		for i := range batch {
			e, failed := be.Errors[i]
			if !failed || !errors.Is(e, contact.ErrNotExist) {
				continue
			}
			item := &batch[i]
			stale := item.record.ID
			p.log.Info("recreating record deleted from nonprivileged store",
				"privileged", item.privileged,
				"nonprivileged", stale,
			)
			p.tables.IDs.Deregister(item.privileged, stale)
			item.record.ID = ""
			item.added = true
			recreated++
			p.plan(Decision{Direction: DirectionExport, Op: OpRecreate, Privileged: item.privileged, Nonprivileged: stale}, nil)
		}
		if recreated == 0 {
			return abort(StateExport, "export save", err)
		}
		p.report.Export.Recreated += recreated
	}
}

func (p *pass) completeExport(batch []exportItem, saved []contact.Record) {
	for i, item := range batch {
		p.noteExported(saved[i])
		if item.added {
			p.tables.IDs.Register(item.privileged, saved[i].ID)
			p.report.Export.Added++
		} else {
			p.report.Export.Modified++
		}
	}
}

// noteExported records the digest of content written to the nonprivileged
// store so the next import recognizes it. Without import nothing reads the
// digests.
func (p *pass) noteExported(rec contact.Record) {
	if !p.d.importEnabled {
		return
	}
	d, err := syncstate.DigestOf(rec)
	if err != nil {
		p.log.Warn("unable to digest exported record", "nonprivileged", rec.ID, "error", err)
		p.tables.Echoes.Forget(rec.ID)
		return
	}
	p.tables.Echoes.Record(rec.ID, d)
}

// presenceMerged returns what a presence-masked save of update leaves in
// the nonprivileged store.
func presenceMerged(current, update contact.Record) contact.Record {
	mask := contact.MaskOf(contact.PresenceTypes()...)
	out := contact.Record{ID: update.ID}
	for _, d := range current.Details {
		if !mask.Has(d.Type) {
			out.Details = append(out.Details, d)
		}
	}
	for _, d := range update.Details {
		if mask.Has(d.Type) {
			out.Details = append(out.Details, d)
		}
	}
	return out
}
