package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"civic/internal/civic/models"
	"civic/internal/directory"
	"civic/internal/platform/postgres"
	"civic/pkg/domain"
	"civic/pkg/platform/sentinel"
	txcontext "civic/pkg/platform/tx"
)

// Schema creates the snapshot table. Versions are append-only per level.
const Schema = `
CREATE TABLE IF NOT EXISTS directory_snapshots (
	level        TEXT        NOT NULL,
	version      BIGINT      NOT NULL,
	published_at TIMESTAMPTZ NOT NULL,
	source       TEXT        NOT NULL DEFAULT '',
	payload      JSONB       NOT NULL,
	PRIMARY KEY (level, version)
)`

// PostgresStore persists snapshots as JSONB rows; the highest version per
// level is current.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) querier(ctx context.Context) querier {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// RunInTx runs fn in one transaction; publishes made with the context fn
// receives commit or roll back together.
func (s *PostgresStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return txcontext.Run(ctx, s.db, 0, fn)
}

// Migrate applies Schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("migrate directory_snapshots: %w", err)
	}
	return nil
}

func (s *PostgresStore) Snapshot(ctx context.Context, level domain.Level) (*directory.Snapshot, error) {
	const query = `
		SELECT version, published_at, source, payload
		FROM directory_snapshots
		WHERE level = $1
		ORDER BY version DESC
		LIMIT 1`
	var (
		snap    = directory.Snapshot{Level: level}
		payload []byte
	)
	err := s.querier(ctx).QueryRowContext(ctx, query, string(level)).
		Scan(&snap.Version, &snap.PublishedAt, &snap.Source, &payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("no %s snapshot: %w", level, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find %s snapshot: %w", level, err)
	}
	if err := json.Unmarshal(payload, &snap.Districts); err != nil {
		return nil, fmt.Errorf("decode %s snapshot v%d: %w: %v", level, snap.Version, sentinel.ErrCorrupt, err)
	}
	if snap.Districts == nil {
		snap.Districts = map[string][]models.Representative{}
	}
	snap.PublishedAt = snap.PublishedAt.UTC()
	return &snap, nil
}

// LatestVersion reads the highest version of a level from the primary key
// index, zero when nothing was published.
func (s *PostgresStore) LatestVersion(ctx context.Context, level domain.Level) (int64, error) {
	const query = `SELECT COALESCE(MAX(version), 0) FROM directory_snapshots WHERE level = $1`
	var version int64
	if err := s.querier(ctx).QueryRowContext(ctx, query, string(level)).Scan(&version); err != nil {
		return 0, fmt.Errorf("latest %s version: %w", level, err)
	}
	return version, nil
}

func (s *PostgresStore) Publish(ctx context.Context, snap *directory.Snapshot) error {
	payload, err := json.Marshal(snap.Districts)
	if err != nil {
		return fmt.Errorf("encode %s snapshot: %w", snap.Level, err)
	}
	publishedAt := snap.PublishedAt
	if publishedAt.IsZero() {
		publishedAt = time.Now()
	}

	// Inserts only when strictly newer than every stored version; a zero
	// version takes the next one.
	const query = `
		INSERT INTO directory_snapshots (level, version, published_at, source, payload)
		SELECT $1::TEXT,
		       CASE WHEN $2::BIGINT = 0 THEN COALESCE(MAX(version), 0) + 1 ELSE $2::BIGINT END,
		       $3::TIMESTAMPTZ, $4::TEXT, $5::JSONB
		FROM directory_snapshots
		WHERE level = $1::TEXT
		HAVING $2::BIGINT = 0 OR $2::BIGINT > COALESCE(MAX(version), 0)
		RETURNING version`
	var version int64
	err = s.querier(ctx).QueryRowContext(ctx, query, string(snap.Level), snap.Version, publishedAt, snap.Source, payload).Scan(&version)
	switch {
	case errors.Is(err, sql.ErrNoRows), postgres.IsUniqueViolation(err):
		return fmt.Errorf("%s version %d: %w", snap.Level, snap.Version, directory.ErrStaleVersion)
	case err != nil:
		return fmt.Errorf("publish %s snapshot: %w", snap.Level, err)
	}
	snap.Version = version
	return nil
}
