package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Migrations returns the schema statements in apply order. Every statement is
// idempotent.
func Migrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS ledger_entries (
			seq         BIGSERIAL UNIQUE,
			id          UUID PRIMARY KEY,
			resource_id UUID,
			amount      BIGINT NOT NULL CHECK (amount >= 0),
			direction   TEXT NOT NULL CHECK (direction IN ('credit', 'debit')),
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_direction ON ledger_entries(direction)`,

		`CREATE TABLE IF NOT EXISTS platforms (
			seq            BIGSERIAL UNIQUE,
			id             UUID PRIMARY KEY,
			platform_type  TEXT NOT NULL,
			platform_level INTEGER NOT NULL DEFAULT 0 CHECK (platform_level >= 0),
			profitability  BIGINT NOT NULL DEFAULT 0 CHECK (profitability >= 0),
			created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,

		`CREATE TABLE IF NOT EXISTS items (
			id          UUID PRIMARY KEY,
			title       TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			thumbnail   TEXT NOT NULL DEFAULT '',
			cost        BIGINT NOT NULL CHECK (cost >= 0),
			purchased   BOOLEAN NOT NULL DEFAULT false,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,

		`CREATE TABLE IF NOT EXISTS idempotency_keys (
			key        TEXT PRIMARY KEY,
			action     TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}
}

func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for i, stmt := range Migrations() {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
