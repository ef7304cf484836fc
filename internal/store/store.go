package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/matthewvogt/contactsd/internal/contact"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added index on records.sync_target
const currentSchemaVersion = 1

// DefaultSelfID is the id of the self record unless WithSelfID overrides it.
const DefaultSelfID contact.ID = "self"

// Store is a contact record store backed by SQLite.
type Store struct {
	db         *sql.DB
	path       string
	now        func() time.Time
	selfID     contact.ID
	syncTarget string

	mu        sync.Mutex
	listeners []func(contact.Notification)
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the time source for change timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSelfID sets the id of the self record created on first open.
func WithSelfID(id contact.ID) Option {
	return func(s *Store) {
		if !id.IsZero() {
			s.selfID = id
		}
	}
}

// WithDefaultSyncTarget sets the sync target recorded for records saved
// without a sync-target detail.
func WithDefaultSyncTarget(target string) Option {
	return func(s *Store) {
		s.syncTarget = target
	}
}

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically, and makes sure the
// self record exists.
//
// This function is idempotent - safe to call multiple times.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, and ":memory:" databases
	// live on a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	s := &Store{
		db:         db,
		path:       path,
		now:        time.Now,
		selfID:     DefaultSelfID,
		syncTarget: contact.SyncTargetAggregate,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.ensureSelf(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the path the store was opened with.
func (s *Store) Path() string { return s.path }

// SelfID returns the id of the self record.
func (s *Store) SelfID() contact.ID { return s.selfID }

// ensureSelf inserts the self record when missing. Its creation is part of
// bootstrapping and is not logged as a change.
func (s *Store) ensureSelf(ctx context.Context) error {
	now := toNanos(s.now())
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO records (id, sync_target, details, created_at, modified_at)
		VALUES (?, ?, '[]', ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, string(s.selfID), s.syncTarget, now, now)
	if err != nil {
		return fmt.Errorf("create self record: %w", err)
	}
	return nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV1 adds the sync-target index to databases created before it
// was part of schema.sql.
func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_records_sync_target ON records(sync_target)`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
