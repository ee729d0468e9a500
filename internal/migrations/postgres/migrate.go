package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"roombook/pkg/logger"
)

// Statements run in order inside one transaction. Each is idempotent, so the
// job can be rerun on every deploy.
var Statements = []string{
	`CREATE EXTENSION IF NOT EXISTS btree_gist`,

	`CREATE TABLE IF NOT EXISTS bookings (
		id                UUID PRIMARY KEY,
		user_id           BIGINT NOT NULL CHECK (user_id > 0),
		room_id           BIGINT NOT NULL CHECK (room_id > 0),
		check_in          TIMESTAMPTZ NOT NULL,
		check_out         TIMESTAMPTZ NOT NULL,
		guests            INTEGER NOT NULL CHECK (guests BETWEEN 1 AND 20),
		special_requests  TEXT NOT NULL DEFAULT '',
		status            TEXT NOT NULL CHECK (status IN ('pending', 'confirmed', 'cancelled', 'completed')),
		payment_method    TEXT NOT NULL CHECK (payment_method IN ('cash', 'card', 'transfer')),
		payment_status    TEXT NOT NULL,
		total_price       NUMERIC(12, 2) NOT NULL CHECK (total_price >= 0),
		auto_confirm      BOOLEAN NOT NULL DEFAULT FALSE,
		created_at        TIMESTAMPTZ NOT NULL,
		updated_at        TIMESTAMPTZ NOT NULL,
		status_updated_at TIMESTAMPTZ,
		status_updated_by TEXT NOT NULL DEFAULT '',
		admin_note        TEXT NOT NULL DEFAULT '',
		CHECK (check_out > check_in)
	)`,

	// Two active stays on one room may touch but never overlap. This is the
	// last line of defence behind the room lock.
	`DO $$
	BEGIN
		IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'bookings_no_overlap') THEN
			ALTER TABLE bookings ADD CONSTRAINT bookings_no_overlap
				EXCLUDE USING gist (room_id WITH =, tstzrange(check_in, check_out, '[)') WITH &&)
				WHERE (status IN ('pending', 'confirmed'));
		END IF;
	END $$`,

	`CREATE INDEX IF NOT EXISTS bookings_user_created_idx ON bookings (user_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS bookings_status_created_idx ON bookings (status, created_at)`,
	`CREATE INDEX IF NOT EXISTS bookings_check_in_idx ON bookings (check_in)`,
}

func RunMigration(ctx context.Context, db *sql.DB, log *logger.Logger) error {
	log.Info("Running Postgres migrations", "statements", len(Statements))

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin migration: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for i, stmt := range Statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration statement %d failed: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}

	log.Info("Postgres migrations applied")
	return nil
}
