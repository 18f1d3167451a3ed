package settings

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const (
	dirPermissions    = 0750
	connectionTimeout = 5 * time.Second
	defaultKeep       = 20
)

const schema = `
CREATE TABLE IF NOT EXISTS settings_snapshots (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	saved_at TEXT NOT NULL,
	payload  TEXT NOT NULL
)`

// SQLiteStore keeps the most recent saved records in a local database so settings
// survive a Stream Deck profile reset.
type SQLiteStore struct {
	db   *sql.DB
	path string
	keep int
	now  func() time.Time
}

// OpenSQLite opens or creates the backup database at path.
func OpenSQLite(path string, keep int) (*SQLiteStore, error) {
	if keep <= 0 {
		keep = defaultKeep
	}
	if err := os.MkdirAll(filepath.Dir(path), dirPermissions); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_busy_timeout=5000", path))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close() //nolint:errcheck // best effort cleanup on error path
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &SQLiteStore{db: db, path: path, keep: keep, now: time.Now}, nil
}

func (s *SQLiteStore) Name() string { return "sqlite" }

// Store appends a record and prunes everything older than the newest keep records.
func (s *SQLiteStore) Store(ctx context.Context, payload json.RawMessage) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO settings_snapshots (saved_at, payload) VALUES (?, ?)`,
		s.now().UTC().Format(time.RFC3339Nano), string(payload)); err != nil {
		return fmt.Errorf("inserting snapshot: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM settings_snapshots WHERE id NOT IN (
			SELECT id FROM settings_snapshots ORDER BY id DESC LIMIT ?)`, s.keep); err != nil {
		return fmt.Errorf("pruning snapshots: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing snapshot: %w", err)
	}
	return nil
}

// Latest returns the newest record and when it was saved.
func (s *SQLiteStore) Latest(ctx context.Context) (json.RawMessage, time.Time, error) {
	var savedAt, payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT saved_at, payload FROM settings_snapshots ORDER BY id DESC LIMIT 1`).
		Scan(&savedAt, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, time.Time{}, ErrNoRecord
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("querying latest snapshot: %w", err)
	}

	ts, err := time.Parse(time.RFC3339Nano, savedAt)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("parsing saved_at %q: %w", savedAt, err)
	}
	return json.RawMessage(payload), ts, nil
}

// Count returns how many records are kept.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM settings_snapshots`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting snapshots: %w", err)
	}
	return n, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	return nil
}
