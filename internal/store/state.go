package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/matthewvogt/contactsd/internal/contact"
)

// ReadAnchor returns the anchor of source, or the zero anchor when none was
// written yet.
func (s *Store) ReadAnchor(ctx context.Context, source string) (contact.Anchor, error) {
	var remote, local int64
	err := s.db.QueryRowContext(ctx, `
		SELECT remote, local FROM anchors WHERE source = ?
	`, source).Scan(&remote, &local)
	if errors.Is(err, sql.ErrNoRows) {
		return contact.Anchor{}, nil
	}
	if err != nil {
		return contact.Anchor{}, fmt.Errorf("read anchor %s: %w", source, err)
	}
	return contact.Anchor{Remote: fromNanos(remote), Local: fromNanos(local)}, nil
}

// WriteAnchor stores the anchor of source.
func (s *Store) WriteAnchor(ctx context.Context, source string, anchor contact.Anchor) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO anchors (source, remote, local) VALUES (?, ?, ?)
		ON CONFLICT(source) DO UPDATE SET remote = excluded.remote, local = excluded.local
	`, source, toNanos(anchor.Remote), toNanos(anchor.Local))
	if err != nil {
		return fmt.Errorf("write anchor %s: %w", source, err)
	}
	return nil
}

// GetOOB returns the stored values among keys. Missing keys are absent from
// the result.
func (s *Store) GetOOB(ctx context.Context, scope string, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	for _, key := range keys {
		var value []byte
		err := s.db.QueryRowContext(ctx, `
			SELECT value FROM oob WHERE scope = ? AND key = ?
		`, scope, key).Scan(&value)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get oob %s/%s: %w", scope, key, err)
		}
		out[key] = value
	}
	return out, nil
}

// PutOOB stores values in one transaction.
func (s *Store) PutOOB(ctx context.Context, scope string, values map[string][]byte) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("put oob %s: begin tx: %w", scope, err)
	}
	defer tx.Rollback()

	for key, value := range values {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO oob (scope, key, value) VALUES (?, ?, ?)
			ON CONFLICT(scope, key) DO UPDATE SET value = excluded.value
		`, scope, key, value); err != nil {
			return fmt.Errorf("put oob %s/%s: %w", scope, key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("put oob %s: commit: %w", scope, err)
	}
	return nil
}

// OOBKeys lists the keys stored under scope.
func (s *Store) OOBKeys(ctx context.Context, scope string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key FROM oob WHERE scope = ? ORDER BY key
	`, scope)
	if err != nil {
		return nil, fmt.Errorf("list oob %s: %w", scope, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("list oob %s: scan: %w", scope, err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}
