package archive

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmerrifield20/reviewledger/internal/ledger"
	"go.uber.org/zap"
)

const schema = `
CREATE TABLE IF NOT EXISTS review_records (
	id            BIGSERIAL PRIMARY KEY,
	session_id    UUID,
	policy        TEXT        NOT NULL,
	sequence      INTEGER     NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL,
	user_id       TEXT        NOT NULL,
	product_id    TEXT        NOT NULL DEFAULT '',
	review        TEXT        NOT NULL DEFAULT '',
	submitted_at  DOUBLE PRECISION NOT NULL DEFAULT 0,
	previous_seal TEXT        NOT NULL,
	seal          TEXT        NOT NULL UNIQUE,
	archived_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS review_records_session_idx ON review_records (session_id, sequence);
`

// PostgresArchive writes records to the review_records table.
type PostgresArchive struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresArchive creates a PostgresArchive backed by the given pool.
func NewPostgresArchive(pool *pgxpool.Pool, logger *zap.Logger) *PostgresArchive {
	return &PostgresArchive{pool: pool, logger: logger}
}

// EnsureSchema creates the archive table if it does not exist.
func (a *PostgresArchive) EnsureSchema(ctx context.Context) error {
	if _, err := a.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create review_records: %w", err)
	}
	return nil
}

// Store implements Archive.
func (a *PostgresArchive) Store(ctx context.Context, sessionID uuid.UUID, policy string, rec ledger.Record) error {
	var sid *uuid.UUID
	if sessionID != uuid.Nil {
		sid = &sessionID
	}
	if _, err := a.pool.Exec(ctx,
		`INSERT INTO review_records
		   (session_id, policy, sequence, created_at, user_id, product_id, review, submitted_at, previous_seal, seal)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		sid, policy, rec.Sequence, rec.CreatedAt,
		rec.Payload.UserID, rec.Payload.ProductID, rec.Payload.Review, rec.Payload.Timestamp,
		rec.PreviousSeal, rec.Seal,
	); err != nil {
		return fmt.Errorf("insert review record: %w", err)
	}

	a.logger.Debug("record archived",
		zap.Int("sequence", rec.Sequence),
		zap.String("seal", rec.Seal),
	)
	return nil
}

// Count implements Archive.
func (a *PostgresArchive) Count(ctx context.Context) (int, error) {
	var n int
	if err := a.pool.QueryRow(ctx, "SELECT COUNT(*) FROM review_records").Scan(&n); err != nil {
		return 0, fmt.Errorf("count review records: %w", err)
	}
	return n, nil
}
