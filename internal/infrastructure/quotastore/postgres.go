package quotastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/diysmart/productinfo/internal/domain"
)

// Schema creates the counter table
const Schema = `
CREATE TABLE IF NOT EXISTS quota_counters (
	identity_id TEXT PRIMARY KEY,
	day         TEXT NOT NULL,
	count       INTEGER NOT NULL DEFAULT 0
)`

// PostgresStore keeps one row per identity
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore wraps db
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the table when missing
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("create quota_counters: %w", err)
	}
	return nil
}

// Get returns the stored counter, or a zero counter for unknown identities
func (s *PostgresStore) Get(ctx context.Context, identityID string) (domain.QuotaCounter, error) {
	var counter domain.QuotaCounter
	err := s.db.GetContext(ctx, &counter,
		`SELECT identity_id, day, count FROM quota_counters WHERE identity_id = $1`, identityID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.QuotaCounter{IdentityID: identityID}, nil
	}
	if err != nil {
		return domain.QuotaCounter{}, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return counter, nil
}

// Set upserts the counter
func (s *PostgresStore) Set(ctx context.Context, counter domain.QuotaCounter) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO quota_counters (identity_id, day, count)
		VALUES (:identity_id, :day, :count)
		ON CONFLICT (identity_id) DO UPDATE SET day = EXCLUDED.day, count = EXCLUDED.count`,
		counter)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return nil
}

// consumeQuery inserts or charges the row in one statement. The update only
// applies when the stored day is stale or the charge fits the limit, so a
// denied charge returns no row.
const consumeQuery = `
	INSERT INTO quota_counters (identity_id, day, count)
	SELECT $1::text, $2::text, $3::integer WHERE $3::integer <= $4::integer
	ON CONFLICT (identity_id) DO UPDATE SET
		day = EXCLUDED.day,
		count = CASE WHEN quota_counters.day = EXCLUDED.day
			THEN quota_counters.count + EXCLUDED.count
			ELSE EXCLUDED.count END
	WHERE quota_counters.day <> EXCLUDED.day
		OR quota_counters.count + EXCLUDED.count <= $4::integer
	RETURNING count`

// Consume checks and charges the counter with a conditional upsert
func (s *PostgresStore) Consume(ctx context.Context, identityID, day string, cost, limit int) (domain.QuotaCounter, bool, error) {
	var count int
	err := s.db.GetContext(ctx, &count, consumeQuery, identityID, day, cost, limit)
	if err == nil {
		return domain.QuotaCounter{IdentityID: identityID, Day: day, Count: count}, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.QuotaCounter{}, false, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}

	current, err := s.Get(ctx, identityID)
	if err != nil {
		return domain.QuotaCounter{}, false, err
	}
	if current.Day != day {
		current = domain.QuotaCounter{IdentityID: identityID, Day: day}
	}
	return current, false, nil
}
