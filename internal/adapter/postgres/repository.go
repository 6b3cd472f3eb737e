// Package postgres stores town snapshots in Postgres.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/couchcryptid/town-data-etl/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS town_snapshots (
	seq          BIGSERIAL PRIMARY KEY,
	id           UUID NOT NULL UNIQUE,
	name_lower   TEXT NOT NULL CHECK (name_lower <> ''),
	last_updated BIGINT NOT NULL,
	record       JSONB NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const latestIndex = `
CREATE INDEX IF NOT EXISTS town_snapshots_latest_idx
	ON town_snapshots (name_lower, last_updated DESC, seq DESC)`

const insertSnapshot = `
INSERT INTO town_snapshots (id, name_lower, last_updated, record)
VALUES ($1, $2, $3, $4)`

// Ties on last_updated fall back to insertion order so the later write wins.
const selectLatest = `
SELECT record FROM town_snapshots
WHERE name_lower = $1
ORDER BY last_updated DESC, seq DESC
LIMIT 1`

// SQLSTATE classes reported as transient validation failures.
const (
	checkViolation   = "23514"
	notNullViolation = "23502"
)

type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Repository implements domain.TownRepository as an append-only snapshot table.
type Repository struct {
	pool  pool
	newID func() uuid.UUID
}

// NewRepository connects to Postgres using dsn.
func NewRepository(ctx context.Context, dsn string) (*Repository, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	p, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Repository{pool: p, newID: uuid.New}, nil
}

// NewRepositoryWithPool constructs a repository from an existing pool (primarily for testing).
func NewRepositoryWithPool(p pool) (*Repository, error) {
	if p == nil {
		return nil, errors.New("pool is required")
	}
	return &Repository{pool: p, newID: uuid.New}, nil
}

// EnsureSchema creates the snapshot table and its lookup index.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create town_snapshots: %w", err)
	}
	if _, err := r.pool.Exec(ctx, latestIndex); err != nil {
		return fmt.Errorf("create town_snapshots index: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (r *Repository) Close() {
	r.pool.Close()
}

// Put appends a snapshot row.
func (r *Repository) Put(ctx context.Context, town domain.Town) error {
	if err := town.Validate(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrTransientValidation, err)
	}
	record, err := json.Marshal(town)
	if err != nil {
		return fmt.Errorf("marshal town: %w", err)
	}

	_, err = r.pool.Exec(ctx, insertSnapshot, r.newID(), town.NameLower, town.LastUpdated, record)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && (pgErr.Code == checkViolation || pgErr.Code == notNullViolation) {
			return fmt.Errorf("%w: %w", domain.ErrTransientValidation, err)
		}
		return fmt.Errorf("insert town snapshot: %w", err)
	}
	return nil
}

// GetLatest returns the newest snapshot for the town, or nil if none exists.
func (r *Repository) GetLatest(ctx context.Context, nameLower string) (*domain.Town, error) {
	var record []byte
	err := r.pool.QueryRow(ctx, selectLatest, domain.NormalizeKey(nameLower)).Scan(&record)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select latest snapshot: %w", err)
	}

	var town domain.Town
	if err := json.Unmarshal(record, &town); err != nil {
		return nil, fmt.Errorf("decode town snapshot: %w", err)
	}
	return &town, nil
}
