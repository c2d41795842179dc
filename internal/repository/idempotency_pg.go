package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/GoPolymarket/intentgate/internal/middleware"
	"github.com/GoPolymarket/intentgate/internal/pkg/logger"
)

// staleLockAfter is how long a key may stay in processing before another request may take it over.
const staleLockAfter = 2 * time.Minute

// PostgresIdempotencyStore keeps relayer idempotency keys in the idempotency_keys table.
type PostgresIdempotencyStore struct {
	db *sqlx.DB
}

type idempotencyRow struct {
	Status     int       `db:"status_code"`
	Body       []byte    `db:"response_body"`
	CreatedAt  time.Time `db:"created_at"`
	Processing bool      `db:"processing"`
}

func NewPostgresIdempotencyStore(ctx context.Context, db *sqlx.DB) (*PostgresIdempotencyStore, error) {
	store := &PostgresIdempotencyStore{db: db}
	if err := store.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// GetOrLock claims key for the caller, or returns the record already stored under it.
// A claim left in processing for longer than staleLockAfter is handed to the next caller.
func (s *PostgresIdempotencyStore) GetOrLock(ctx context.Context, key string) (*middleware.IdempotencyRecord, bool) {
	now := time.Now().UTC()
	var claimed string
	err := s.db.QueryRowxContext(ctx, `
		INSERT INTO idempotency_keys (key, processing, created_at)
		VALUES ($1, true, $2)
		ON CONFLICT (key) DO UPDATE
			SET processing = true, created_at = EXCLUDED.created_at, status_code = 0, response_body = NULL
			WHERE idempotency_keys.processing AND idempotency_keys.created_at < $3
		RETURNING key
	`, key, now, now.Add(-staleLockAfter)).Scan(&claimed)
	switch {
	case err == nil:
		return nil, false
	case !errors.Is(err, sql.ErrNoRows):
		logger.Warn("idempotency claim failed", "key", key, "error", err)
		return nil, false
	}

	var row idempotencyRow
	err = s.db.GetContext(ctx, &row, `
		SELECT status_code, COALESCE(response_body, ''::bytea) AS response_body, created_at, processing
		FROM idempotency_keys
		WHERE key = $1
	`, key)
	if err != nil {
		logger.Warn("idempotency lookup failed", "key", key, "error", err)
		return nil, false
	}
	return &middleware.IdempotencyRecord{
		Status:     row.Status,
		Body:       row.Body,
		CreatedAt:  row.CreatedAt.UTC(),
		Processing: row.Processing,
	}, true
}

func (s *PostgresIdempotencyStore) Save(ctx context.Context, key string, status int, body []byte) {
	_, err := s.db.ExecContext(ctx, `
		UPDATE idempotency_keys
		SET status_code = $2, response_body = $3, processing = false
		WHERE key = $1
	`, key, status, body)
	if err != nil {
		logger.Warn("idempotency save failed", "key", key, "error", err)
	}
}

func (s *PostgresIdempotencyStore) Unlock(ctx context.Context, key string) {
	_, _ = s.db.ExecContext(ctx, `DELETE FROM idempotency_keys WHERE key = $1 AND processing`, key)
}

// Cleanup drops finished keys older than olderThan.
func (s *PostgresIdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) error {
	if olderThan <= 0 {
		return nil
	}
	cutoff := time.Now().UTC().Add(-olderThan)
	_, err := s.db.ExecContext(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1 AND NOT processing`, cutoff)
	return err
}

func (s *PostgresIdempotencyStore) ensureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS idempotency_keys (
			key TEXT PRIMARY KEY,
			status_code INTEGER NOT NULL DEFAULT 0,
			response_body BYTEA,
			processing BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	return err
}
