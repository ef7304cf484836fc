package reconcile

import (
	"context"
	"errors"

	"github.com/matthewvogt/contactsd/internal/contact"
	"github.com/matthewvogt/contactsd/internal/redact"
	"github.com/matthewvogt/contactsd/internal/syncstate"
)

type importItem struct {
	record        contact.Record
	nonprivileged contact.ID
	added         bool
}

type importRemoval struct {
	privileged    contact.ID
	nonprivileged contact.ID
}

// importChanges applies nonprivileged edits to the privileged store.
func (p *pass) importChanges(ctx context.Context) error {
	changed, removedIDs, err := p.remoteChanges(ctx)
	if err != nil {
		return err
	}

	var (
		items    []importItem
		removals []importRemoval
		self     *contact.Record
	)

	for _, rec := range changed {
		n := rec.ID
		echo, err := p.isEcho(rec)
		if err != nil {
			return err
		}
		if echo {
			p.log.Debug("skipping echo of exported record", "nonprivileged", n)
			continue
		}
		rec = rec.Clone()

		if n == p.nonprivilegedSelf {
			rec.ID = p.privilegedSelf
			p.prepareImport(&rec, p.privilegedSelf)
			self = &rec
			p.plan(Decision{Direction: DirectionImport, Op: OpSelf, Privileged: p.privilegedSelf, Nonprivileged: n}, &rec)
			continue
		}

		privileged, paired := p.tables.IDs.Privileged(n)
		rec.ID = privileged
		rec.SetSyncTarget(contact.SyncTargetAggregate)
		redact.StripGUID(&rec)
		p.prepareImport(&rec, privileged)

		op := OpModify
		if !paired {
			op = OpAdd
		}
		p.plan(Decision{Direction: DirectionImport, Op: op, Privileged: privileged, Nonprivileged: n}, &rec)
		items = append(items, importItem{record: rec, nonprivileged: n, added: !paired})
	}

	for _, n := range removedIDs {
		if p.tables.Echoes.ConsumeRemoval(n) {
			continue
		}
		if n == p.nonprivilegedSelf {
			continue
		}
		privileged, ok := p.tables.IDs.Privileged(n)
		if !ok {
			p.log.Warn("cannot import removal of unpaired record", "nonprivileged", n)
			p.report.Import.Skipped++
			continue
		}
		p.plan(Decision{Direction: DirectionImport, Op: OpRemove, Privileged: privileged, Nonprivileged: n}, nil)
		removals = append(removals, importRemoval{privileged: privileged, nonprivileged: n})
	}

	if len(items) > 0 || len(removals) > 0 {
		p.log.Info("importing changes",
			"removed", len(removals),
			"changed", len(items),
		)
		if err := p.applyImport(ctx, items, removals); err != nil {
			return err
		}
	}

	if self != nil {
		if err := p.d.privileged.Save(ctx, []contact.Record{*self}); err != nil {
			p.log.Warn("unable to import self record changes", "error", err)
		} else {
			p.imported[self.ID] = true
			p.report.Import.Self++
		}
	}
	return nil
}

// isEcho reports whether rec still holds exactly what the export last
// wrote to it. The recorded digest is consumed either way.
func (p *pass) isEcho(rec contact.Record) (bool, error) {
	d, err := syncstate.DigestOf(rec)
	if err != nil {
		return false, abort(StateImport, "digest changed", err)
	}
	return p.tables.Echoes.Consume(rec.ID, d), nil
}

// prepareImport undoes export-side rewrites and strips data that belongs to
// the nonprivileged store.
func (p *pass) prepareImport(rec *contact.Record, privileged contact.ID) {
	redact.StripTimestamp(rec)
	if !privileged.IsZero() {
		redact.ReverseAvatars(rec, p.tables.Avatars.Lookup(privileged))
	}
	redact.MangleDetailURIs(rec)
	redact.StripProvenance(rec)
}

// applyImport writes removals and changes in one transaction. Records that
// were deleted from the privileged store in the meantime are skipped; the
// export pass propagates their deletion.
func (p *pass) applyImport(ctx context.Context, items []importItem, removals []importRemoval) error {
	removed := make([]contact.ID, len(removals))
	for i, r := range removals {
		removed[i] = r.privileged
	}

	for {
		saved := make([]contact.Record, len(items))
		for i := range items {
			saved[i] = items[i].record
		}

		err := p.d.privileged.Apply(ctx, removed, saved)
		if err == nil {
			p.completeImport(items, saved, removals)
			return nil
		}

		be, ok := contact.AsBatchError(err)
		if !ok || !be.Only(contact.ErrNotExist, contact.ErrLocked) {
			return abort(StateImport, "import apply", err)
		}
		kept := items[:0:0]
		for i, item := range items {
			if e, failed := be.Errors[i]; failed && errors.Is(e, contact.ErrNotExist) {
				p.log.Warn("skipping import of locally deleted record",
					"privileged", item.record.ID,
					"nonprivileged", item.nonprivileged,
				)
				p.report.Import.Skipped++
				continue
			}
			kept = append(kept, item)
		}
		if len(kept) == len(items) {
			return abort(StateImport, "import apply", err)
		}
		items = kept
	}
}

func (p *pass) completeImport(items []importItem, saved []contact.Record, removals []importRemoval) {
	for i, item := range items {
		privileged := saved[i].ID
		p.imported[privileged] = true
		if item.added {
			p.tables.IDs.Register(privileged, item.nonprivileged)
			p.report.Import.Added++
		} else {
			p.report.Import.Modified++
		}
	}
	for _, r := range removals {
		p.tables.IDs.Deregister(r.privileged, r.nonprivileged)
		p.tables.Avatars.Drop(r.privileged)
		p.report.Import.Removed++
	}
}
