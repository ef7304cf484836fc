package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/matthewvogt/contactsd/internal/contact"
)

// presenceMask covers changes that only presence listeners care about.
var presenceMask = contact.MaskOf(contact.PresenceTypes()...) | contact.MaskOf(contact.IgnorableTypes()...)

// Save inserts or updates records in one transaction.
//
// Records with an unset id are inserted and receive a fresh UUIDv7 id in
// place once the transaction commits. With a mask, only details of the
// masked types are replaced; all other stored details are kept.
func (s *Store) Save(ctx context.Context, records []contact.Record, mask ...contact.DetailType) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	var notes pendingNotes
	ids, errs, err := s.saveTx(ctx, tx, records, contact.MaskOf(mask...), s.now(), &notes)
	if err != nil {
		return fmt.Errorf("save: %w", err)
	}
	if len(errs) > 0 {
		return batchError("save", len(records), errs)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save: commit: %w", err)
	}

	for i, id := range ids {
		if !id.IsZero() {
			records[i].ID = id
		}
	}
	s.notify(notes)
	return nil
}

// Remove deletes records in one transaction, keeping tombstones.
func (s *Store) Remove(ctx context.Context, ids []contact.ID) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("remove: begin tx: %w", err)
	}
	defer tx.Rollback()

	var notes pendingNotes
	errs, err := s.removeTx(ctx, tx, ids, false, s.now(), &notes)
	if err != nil {
		return fmt.Errorf("remove: %w", err)
	}
	if len(errs) > 0 {
		return batchError("remove", len(ids), errs)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("remove: commit: %w", err)
	}

	s.notify(notes)
	return nil
}

// Apply removes and saves in one transaction. Removing a record that is
// already gone is not an error. Batch errors index into saved.
func (s *Store) Apply(ctx context.Context, removed []contact.ID, saved []contact.Record) error {
	if len(removed) == 0 && len(saved) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("apply: begin tx: %w", err)
	}
	defer tx.Rollback()

	now := s.now()
	var notes pendingNotes
	if _, err := s.removeTx(ctx, tx, removed, true, now, &notes); err != nil {
		return fmt.Errorf("apply: %w", err)
	}
	ids, errs, err := s.saveTx(ctx, tx, saved, 0, now, &notes)
	if err != nil {
		return fmt.Errorf("apply: %w", err)
	}
	if len(errs) > 0 {
		return batchError("apply", len(saved), errs)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("apply: commit: %w", err)
	}

	for i, id := range ids {
		if !id.IsZero() {
			saved[i].ID = id
		}
	}
	s.notify(notes)
	return nil
}

// saveTx writes records inside tx. It returns the ids allocated for new
// records (by index), per-index failures, or an error for a store fault.
func (s *Store) saveTx(
	ctx context.Context,
	tx *sql.Tx,
	records []contact.Record,
	mask contact.TypeMask,
	now time.Time,
	notes *pendingNotes,
) ([]contact.ID, map[int]error, error) {
	ids := make([]contact.ID, len(records))
	errs := make(map[int]error)
	at := toNanos(now)

	for i, rec := range records {
		if rec.ID.IsZero() {
			id := contact.ID(uuid.Must(uuid.NewV7()).String())
			details := storedDetails(rec.Details)
			target := s.targetOf(details)
			data, err := marshalDetails(details)
			if err != nil {
				return nil, nil, err
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO records (id, sync_target, details, created_at, modified_at)
				VALUES (?, ?, ?, ?, ?)
			`, string(id), target, data, at, at); err != nil {
				return nil, nil, fmt.Errorf("insert record: %w", err)
			}
			if err := logChange(ctx, tx, id, contact.EventAdded, typeMask(details), target, at); err != nil {
				return nil, nil, err
			}
			ids[i] = id
			notes.added = append(notes.added, id)
			continue
		}

		var (
			oldData string
			deleted sql.NullInt64
		)
		err := tx.QueryRowContext(ctx, `
			SELECT details, deleted_at FROM records WHERE id = ?
		`, string(rec.ID)).Scan(&oldData, &deleted)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && deleted.Valid) {
			errs[i] = contact.ErrNotExist
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read record %s: %w", rec.ID, err)
		}

		old, err := unmarshalDetails(oldData)
		if err != nil {
			return nil, nil, err
		}
		merged := mergeDetails(old, storedDetails(rec.Details), mask)
		changed := contact.ChangedTypes(contact.Record{Details: old}, contact.Record{Details: merged})
		if changed == 0 {
			continue
		}

		target := s.targetOf(merged)
		data, err := marshalDetails(merged)
		if err != nil {
			return nil, nil, err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE records SET details = ?, sync_target = ?, modified_at = ? WHERE id = ?
		`, data, target, at, string(rec.ID)); err != nil {
			return nil, nil, fmt.Errorf("update record %s: %w", rec.ID, err)
		}
		if err := logChange(ctx, tx, rec.ID, contact.EventChanged, changed, target, at); err != nil {
			return nil, nil, err
		}
		if changed.Without(presenceMask) == 0 {
			notes.presence = append(notes.presence, rec.ID)
		} else {
			notes.changed = append(notes.changed, rec.ID)
		}
	}
	return ids, errs, nil
}

// removeTx tombstones ids inside tx. With tolerateMissing, absent records
// are skipped instead of reported.
func (s *Store) removeTx(
	ctx context.Context,
	tx *sql.Tx,
	ids []contact.ID,
	tolerateMissing bool,
	now time.Time,
	notes *pendingNotes,
) (map[int]error, error) {
	errs := make(map[int]error)
	at := toNanos(now)

	for i, id := range ids {
		var (
			target  string
			deleted sql.NullInt64
		)
		err := tx.QueryRowContext(ctx, `
			SELECT sync_target, deleted_at FROM records WHERE id = ?
		`, string(id)).Scan(&target, &deleted)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && deleted.Valid) {
			if !tolerateMissing {
				errs[i] = contact.ErrNotExist
			}
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read record %s: %w", id, err)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE records SET deleted_at = ?, modified_at = ? WHERE id = ?
		`, at, at, string(id)); err != nil {
			return nil, fmt.Errorf("remove record %s: %w", id, err)
		}
		if err := logChange(ctx, tx, id, contact.EventRemoved, 0, target, at); err != nil {
			return nil, err
		}
		notes.removed = append(notes.removed, id)
	}
	return errs, nil
}

func logChange(ctx context.Context, tx *sql.Tx, id contact.ID, event contact.Event, changed contact.TypeMask, target string, at int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO changes (record_id, event, changed_types, sync_target, at)
		VALUES (?, ?, ?, ?, ?)
	`, string(id), int64(event), int64(changed), target, at)
	if err != nil {
		return fmt.Errorf("log change for %s: %w", id, err)
	}
	return nil
}

// mergeDetails returns the details a save leaves behind. Without a mask the
// incoming details replace the stored ones.
func mergeDetails(old, incoming []contact.Detail, mask contact.TypeMask) []contact.Detail {
	if mask == 0 {
		return incoming
	}
	merged := make([]contact.Detail, 0, len(old)+len(incoming))
	for _, d := range old {
		if !mask.Has(d.Type) {
			merged = append(merged, d)
		}
	}
	for _, d := range incoming {
		if mask.Has(d.Type) {
			merged = append(merged, d)
		}
	}
	return merged
}

func (s *Store) targetOf(details []contact.Detail) string {
	for _, d := range details {
		if d.Type == contact.TypeSyncTarget && d.HasValue(contact.FieldSyncTarget) {
			return d.Value(contact.FieldSyncTarget)
		}
	}
	return s.syncTarget
}

func typeMask(details []contact.Detail) contact.TypeMask {
	var m contact.TypeMask
	for _, d := range details {
		m |= contact.MaskOf(d.Type)
	}
	return m
}

// batchError completes errs so that every index not already failing is
// reported as locked by its siblings.
func batchError(op string, n int, errs map[int]error) *contact.BatchError {
	for i := 0; i < n; i++ {
		if _, ok := errs[i]; !ok {
			errs[i] = contact.ErrLocked
		}
	}
	return &contact.BatchError{Op: op, Errors: errs}
}
