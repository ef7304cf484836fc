package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/matthewvogt/contactsd/internal/contact"
)

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Find returns the ids matching filter, ordered by id.
func (s *Store) Find(ctx context.Context, filter contact.Filter) ([]contact.ID, error) {
	since := toNanos(filter.Since)
	target := filter.SyncTarget

	var (
		query string
		args  []any
	)
	live := filter.Events & (contact.EventAdded | contact.EventChanged)
	switch {
	case filter.Events == 0:
		query = `
			SELECT id FROM records
			WHERE deleted_at IS NULL AND (? = '' OR sync_target = ?)`
		args = []any{target, target}
	case live != 0 && filter.Events&contact.EventRemoved != 0:
		query = `
			SELECT DISTINCT c.record_id FROM changes c
			JOIN records r ON r.id = c.record_id
			WHERE r.deleted_at IS NULL AND c.at >= ? AND (c.event & ?) != 0
			  AND (? = '' OR r.sync_target = ?)
			UNION
			SELECT id FROM records
			WHERE deleted_at IS NOT NULL AND deleted_at >= ? AND (? = '' OR sync_target = ?)`
		args = []any{since, int64(live), target, target, since, target, target}
	case live != 0:
		query = `
			SELECT DISTINCT c.record_id FROM changes c
			JOIN records r ON r.id = c.record_id
			WHERE r.deleted_at IS NULL AND c.at >= ? AND (c.event & ?) != 0
			  AND (? = '' OR r.sync_target = ?)`
		args = []any{since, int64(live), target, target}
	default:
		query = `
			SELECT id FROM records
			WHERE deleted_at IS NOT NULL AND deleted_at >= ? AND (? = '' OR sync_target = ?)`
		args = []any{since, target, target}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find: %w", err)
	}
	defer rows.Close()

	var ids []contact.ID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("find: scan: %w", err)
		}
		ids = append(ids, contact.ID(id))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find: iterate: %w", err)
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// Fetch returns the live records among ids, in the order requested. Ids of
// missing or deleted records are skipped.
func (s *Store) Fetch(ctx context.Context, ids []contact.ID) ([]contact.Record, error) {
	return fetchRecords(ctx, s.db, ids)
}

// All returns every live record ordered by id.
func (s *Store) All(ctx context.Context) ([]contact.Record, error) {
	ids, err := s.Find(ctx, contact.Filter{})
	if err != nil {
		return nil, err
	}
	return s.Fetch(ctx, ids)
}

func fetchRecords(ctx context.Context, q queryer, ids []contact.ID) ([]contact.Record, error) {
	records := make([]contact.Record, 0, len(ids))
	for _, id := range ids {
		var (
			data              string
			created, modified int64
		)
		err := q.QueryRowContext(ctx, `
			SELECT details, created_at, modified_at FROM records
			WHERE id = ? AND deleted_at IS NULL
		`, string(id)).Scan(&data, &created, &modified)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", id, err)
		}

		details, err := unmarshalDetails(data)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", id, err)
		}
		details = append(details, timestampDetail(fromNanos(created), fromNanos(modified)))
		records = append(records, contact.Record{ID: id, Details: details})
	}
	return records, nil
}

// changeSummary accumulates the change log of one record.
type changeSummary struct {
	events  contact.Event
	changed contact.TypeMask
}

// LocalChanges reports aggregate records touched at or after since. A
// record added in the window is reported as added; otherwise it is
// modified only if some change touched a type outside ignorable. Next is
// strictly after every change the query saw.
func (s *Store) LocalChanges(ctx context.Context, source string, since time.Time, ignorable []contact.DetailType) (contact.ChangeSet, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return contact.ChangeSet{}, fmt.Errorf("local changes for %s: begin tx: %w", source, err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT record_id, event, changed_types, at FROM changes
		WHERE at >= ? AND sync_target = ?
		ORDER BY seq ASC
	`, toNanos(since), contact.SyncTargetAggregate)
	if err != nil {
		return contact.ChangeSet{}, fmt.Errorf("local changes for %s: %w", source, err)
	}

	summaries := make(map[contact.ID]*changeSummary)
	var latest int64
	for rows.Next() {
		var (
			id          string
			event, mask int64
			at          int64
		)
		if err := rows.Scan(&id, &event, &mask, &at); err != nil {
			rows.Close()
			return contact.ChangeSet{}, fmt.Errorf("local changes for %s: scan: %w", source, err)
		}
		sum, ok := summaries[contact.ID(id)]
		if !ok {
			sum = &changeSummary{}
			summaries[contact.ID(id)] = sum
		}
		sum.events |= contact.Event(event)
		sum.changed |= contact.TypeMask(mask)
		latest = max(latest, at)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return contact.ChangeSet{}, fmt.Errorf("local changes for %s: iterate: %w", source, err)
	}
	rows.Close()

	ids := make([]contact.ID, 0, len(summaries))
	for id := range summaries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	skip := contact.MaskOf(ignorable...)
	var cs contact.ChangeSet
	var addedIDs, modifiedIDs []contact.ID
	for _, id := range ids {
		sum := summaries[id]
		var deleted sql.NullInt64
		err := tx.QueryRowContext(ctx, `SELECT deleted_at FROM records WHERE id = ?`, string(id)).Scan(&deleted)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return contact.ChangeSet{}, fmt.Errorf("local changes for %s: %w", source, err)
		}

		switch {
		case deleted.Valid:
			cs.Deleted = append(cs.Deleted, id)
		case sum.events&contact.EventAdded != 0:
			addedIDs = append(addedIDs, id)
		case sum.changed.Without(skip) != 0:
			modifiedIDs = append(modifiedIDs, id)
		}
	}

	if cs.Added, err = fetchRecords(ctx, tx, addedIDs); err != nil {
		return contact.ChangeSet{}, fmt.Errorf("local changes for %s: %w", source, err)
	}
	if cs.Modified, err = fetchRecords(ctx, tx, modifiedIDs); err != nil {
		return contact.ChangeSet{}, fmt.Errorf("local changes for %s: %w", source, err)
	}

	next := toNanos(s.now())
	if next <= latest {
		next = latest + 1
	}
	cs.Next = fromNanos(next)
	return cs, nil
}
