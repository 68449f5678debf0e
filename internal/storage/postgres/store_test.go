package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"crudeidle/internal/game"
	"crudeidle/internal/storage/storetest"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Runs only against a disposable database: every table is truncated.
func TestStore(t *testing.T) {
	url := os.Getenv("CRUDE_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("CRUDE_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer pool.Close()
	if err := Migrate(ctx, pool); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	storetest.Run(t, func(t *testing.T) game.Store {
		if _, err := pool.Exec(ctx, `TRUNCATE ledger_entries, platforms, items, idempotency_keys`); err != nil {
			t.Fatalf("truncate: %v", err)
		}
		return New(pool)
	})
}

func TestConflictMapping(t *testing.T) {
	if isSerializationError(nil) {
		t.Fatalf("nil error reported as serialization failure")
	}
	if err := conflictOr(game.ErrNotFound); !errors.Is(err, game.ErrNotFound) || errors.Is(err, game.ErrTxConflict) {
		t.Fatalf("plain error mapped to %v", err)
	}
	wrapped := fmt.Errorf("record debit: %w", &pgconn.PgError{Code: "40001"})
	if err := conflictOr(wrapped); !errors.Is(err, game.ErrTxConflict) {
		t.Fatalf("serialization failure mapped to %v, want ErrTxConflict", err)
	}
}
