// Package sqlite stores town snapshots in an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/couchcryptid/town-data-etl/internal/domain"
	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const schema = `
CREATE TABLE IF NOT EXISTS town_snapshots (
	seq          INTEGER PRIMARY KEY AUTOINCREMENT,
	id           TEXT NOT NULL UNIQUE,
	name_lower   TEXT NOT NULL CHECK (name_lower <> ''),
	last_updated INTEGER NOT NULL,
	record       TEXT NOT NULL,
	created_at   TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_town_snapshots_latest
	ON town_snapshots (name_lower, last_updated DESC, seq DESC);`

// Repository implements domain.TownRepository using SQLite.
type Repository struct {
	db   *sql.DB
	path string
}

// NewRepository opens (or creates) the database at path.
func NewRepository(path string) (*Repository, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	// One writer at a time; the scheduler writes towns concurrently.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	return &Repository{db: db, path: path}, nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Path returns the database file path.
func (r *Repository) Path() string {
	return r.path
}

// EnsureSchema creates the snapshot table if it doesn't exist.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

// Put appends a snapshot row.
func (r *Repository) Put(ctx context.Context, town domain.Town) error {
	if err := town.Validate(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrTransientValidation, err)
	}
	record, err := json.Marshal(town)
	if err != nil {
		return fmt.Errorf("marshaling town: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO town_snapshots (id, name_lower, last_updated, record) VALUES (?, ?, ?, ?)`,
		uuid.New().String(), town.NameLower, town.LastUpdated, string(record),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("%w: %w", domain.ErrTransientValidation, err)
		}
		return fmt.Errorf("inserting town snapshot: %w", err)
	}
	return nil
}

// GetLatest returns the newest snapshot for the town, or nil if none exists.
func (r *Repository) GetLatest(ctx context.Context, nameLower string) (*domain.Town, error) {
	var record string
	err := r.db.QueryRowContext(ctx,
		`SELECT record FROM town_snapshots
		WHERE name_lower = ?
		ORDER BY last_updated DESC, seq DESC
		LIMIT 1`,
		domain.NormalizeKey(nameLower),
	).Scan(&record)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest snapshot: %w", err)
	}

	var town domain.Town
	if err := json.Unmarshal([]byte(record), &town); err != nil {
		return nil, fmt.Errorf("decoding town snapshot: %w", err)
	}
	return &town, nil
}

func isConstraintViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_CHECK, sqlite3.SQLITE_CONSTRAINT_NOTNULL:
			return true
		}
	}
	msg := err.Error()
	return strings.Contains(msg, "CHECK constraint failed") || strings.Contains(msg, "NOT NULL constraint failed")
}
