package db

import (
	"context"
	"fmt"
	"strings"

	"crudeidle/internal/game"
	"crudeidle/internal/storage/memory"
	"crudeidle/internal/storage/postgres"
	"crudeidle/internal/storage/sqlite"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	KindPostgres = "postgres"
	KindSQLite   = "sqlite"
	KindMemory   = "memory"
)

// Backend is an opened store plus whatever must be closed with it.
type Backend struct {
	Kind  string
	Store game.Store
	// Pool is set only for postgres.
	Pool *pgxpool.Pool

	close func()
}

func (b *Backend) Close() {
	if b.close != nil {
		b.close()
	}
}

// Kind reports which backend a DATABASE_URL selects.
func Kind(databaseURL string) string {
	u := strings.TrimSpace(databaseURL)
	switch {
	case u == "" || u == "memory":
		return KindMemory
	case strings.HasPrefix(u, "sqlite://"), strings.HasPrefix(u, "file:"):
		return KindSQLite
	default:
		return KindPostgres
	}
}

// Open connects to databaseURL and applies the schema. Accepted forms are a
// postgres URL, sqlite://path (or file:path) and memory.
func Open(ctx context.Context, databaseURL string) (*Backend, error) {
	u := strings.TrimSpace(databaseURL)
	switch Kind(u) {
	case KindMemory:
		return &Backend{Kind: KindMemory, Store: memory.New()}, nil
	case KindSQLite:
		path := strings.TrimPrefix(strings.TrimPrefix(u, "sqlite://"), "file:")
		if path == "" {
			return nil, fmt.Errorf("sqlite database path is empty")
		}
		st, err := sqlite.Open(ctx, path)
		if err != nil {
			return nil, err
		}
		return &Backend{Kind: KindSQLite, Store: st, close: func() { st.Close() }}, nil
	default:
		pool, err := Connect(ctx, u)
		if err != nil {
			return nil, err
		}
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		return &Backend{Kind: KindPostgres, Store: postgres.New(pool), Pool: pool, close: pool.Close}, nil
	}
}
