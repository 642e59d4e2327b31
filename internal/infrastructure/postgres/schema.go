package postgres

import (
	"context"
	"fmt"
	"log"
)

// CompensationChannel is the NOTIFY channel raised when a compensation is parked
const CompensationChannel = "compensation_pending"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS transactions (
		id                TEXT PRIMARY KEY,
		source_product_id TEXT NOT NULL,
		target_product_id TEXT,
		type              TEXT NOT NULL,
		amount            NUMERIC(19,4) NOT NULL CHECK (amount > 0),
		fee               NUMERIC(19,4) NOT NULL DEFAULT 0 CHECK (fee >= 0),
		occurred_at       TIMESTAMPTZ NOT NULL,
		created_at        TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at        TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_source_time ON transactions (source_product_id, occurred_at)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_target_time ON transactions (target_product_id, occurred_at) WHERE target_product_id IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_time ON transactions (occurred_at)`,
	`CREATE TABLE IF NOT EXISTS pending_compensations (
		id             TEXT PRIMARY KEY,
		transaction_id TEXT NOT NULL,
		product_id     TEXT NOT NULL,
		delta          NUMERIC(19,4) NOT NULL,
		reason         TEXT NOT NULL DEFAULT '',
		attempts       INTEGER NOT NULL DEFAULT 0,
		last_error     TEXT,
		created_at     TIMESTAMPTZ NOT NULL,
		claimed_until  TIMESTAMPTZ,
		resolved_at    TIMESTAMPTZ
	)`,
	`ALTER TABLE pending_compensations ADD COLUMN IF NOT EXISTS claimed_until TIMESTAMPTZ`,
	`CREATE INDEX IF NOT EXISTS idx_pending_compensations_open ON pending_compensations (created_at) WHERE resolved_at IS NULL`,
	`CREATE OR REPLACE FUNCTION notify_compensation_pending() RETURNS trigger AS $$
	BEGIN
		PERFORM pg_notify('` + CompensationChannel + `', json_build_object(
			'id', NEW.id,
			'transaction_id', NEW.transaction_id,
			'product_id', NEW.product_id
		)::text);
		RETURN NEW;
	END;
	$$ LANGUAGE plpgsql`,
	`DROP TRIGGER IF EXISTS trg_compensation_pending ON pending_compensations`,
	`CREATE TRIGGER trg_compensation_pending
		AFTER INSERT ON pending_compensations
		FOR EACH ROW EXECUTE FUNCTION notify_compensation_pending()`,
}

// Migrate creates the ledger and outbox tables if they do not exist
func (db *DB) Migrate(ctx context.Context) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement %d: %w", i+1, err)
		}
	}
	log.Printf("Database schema up to date (%d statements)", len(schema))
	return nil
}
