package database

import (
	"context"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS price_records (
		id             UUID PRIMARY KEY,
		product_id     TEXT NOT NULL DEFAULT '',
		name           TEXT NOT NULL,
		url            TEXT NOT NULL,
		price          DOUBLE PRECISION NOT NULL,
		original_price DOUBLE PRECISION NOT NULL,
		discount       DOUBLE PRECISION NOT NULL DEFAULT 0,
		shop_name      TEXT NOT NULL,
		rating         DOUBLE PRECISION,
		is_synthetic   BOOLEAN NOT NULL DEFAULT FALSE,
		source         TEXT NOT NULL,
		recorded_at    TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_price_records_product
		ON price_records (product_id, recorded_at DESC)`,
	`CREATE TABLE IF NOT EXISTS outbox_event (
		id             UUID PRIMARY KEY,
		aggregate_type TEXT NOT NULL,
		aggregate_id   TEXT NOT NULL,
		event_type     TEXT NOT NULL,
		payload        JSONB NOT NULL,
		target_stream  TEXT NOT NULL,
		status         TEXT NOT NULL,
		retry_count    INT NOT NULL DEFAULT 0,
		error_message  TEXT,
		created_at     TIMESTAMPTZ NOT NULL,
		processed_at   TIMESTAMPTZ,
		next_retry_at  TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_outbox_event_pending
		ON outbox_event (status, next_retry_at)`,
}

// EnsureSchema creates the tables used by the tracker when they are missing.
func (db *DB) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := db.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
