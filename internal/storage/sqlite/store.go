// Package sqlite stores the economy in a single SQLite file for local,
// single-player runs. The pool holds one connection, so every transaction
// is serialized behind the writer.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"crudeidle/internal/game"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db   *sql.DB
	q    querier
	inTx bool
}

// Open opens (and migrates) the database at path. ":memory:" gives a
// throwaway database that lives as long as the Store.
func Open(ctx context.Context, path string) (*Store, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create db dir: %w", err)
			}
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		`PRAGMA foreign_keys = ON`,
		`PRAGMA busy_timeout = 5000`,
	}
	if path != ":memory:" {
		pragmas = append(pragmas, `PRAGMA journal_mode = WAL`)
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}
	for i, stmt := range Migrations() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return &Store{db: db, q: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Migrations returns the schema statements. SQLite executes one at a time.
func Migrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS ledger_entries (
			id          TEXT PRIMARY KEY,
			resource_id TEXT,
			amount      INTEGER NOT NULL CHECK (amount >= 0),
			direction   TEXT NOT NULL CHECK (direction IN ('credit', 'debit')),
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS platforms (
			id             TEXT PRIMARY KEY,
			platform_type  TEXT NOT NULL,
			platform_level INTEGER NOT NULL DEFAULT 0,
			profitability  INTEGER NOT NULL DEFAULT 0,
			created_at     TEXT NOT NULL,
			updated_at     TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS items (
			id          TEXT PRIMARY KEY,
			title       TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			thumbnail   TEXT NOT NULL DEFAULT '',
			cost        INTEGER NOT NULL CHECK (cost >= 0),
			purchased   INTEGER NOT NULL DEFAULT 0,
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS idempotency_keys (
			key        TEXT PRIMARY KEY,
			action     TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
	}
}

func (s *Store) Ledger() game.LedgerStore {
	return ledgerStore{q: s.q}
}

func (s *Store) Platforms() game.PlatformStore {
	return platformStore{q: s.q}
}

func (s *Store) Items() game.ItemStore {
	return itemStore{q: s.q}
}

func (s *Store) ClaimIdempotency(ctx context.Context, key, action string) error {
	res, err := s.q.ExecContext(ctx, `
		INSERT INTO idempotency_keys (key, action, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO NOTHING
	`, key, action, now())
	if err != nil {
		return fmt.Errorf("claim idempotency key: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return game.ErrDuplicateIdempotency
	}
	return nil
}

func (s *Store) WithTx(ctx context.Context, fn func(game.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&Store{db: s.db, q: tx, inTx: true}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

type scanner interface {
	Scan(dest ...any) error
}

type ledgerStore struct {
	q querier
}

func (l ledgerStore) Append(ctx context.Context, in game.NewLedgerEntry) (game.LedgerEntry, error) {
	if in.Amount < 0 {
		return game.LedgerEntry{}, fmt.Errorf("%w: %d", game.ErrInvalidAmount, in.Amount)
	}
	dir, err := game.ParseDirection(string(in.Direction))
	if err != nil {
		return game.LedgerEntry{}, err
	}
	ts := now()
	out := game.LedgerEntry{
		ID:         uuid.New(),
		ResourceID: in.ResourceID,
		Amount:     in.Amount,
		Direction:  dir,
		CreatedAt:  parseTime(ts),
		UpdatedAt:  parseTime(ts),
	}
	if _, err := l.q.ExecContext(ctx, `
		INSERT INTO ledger_entries (id, resource_id, amount, direction, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, out.ID, in.ResourceID, in.Amount, string(dir), ts, ts); err != nil {
		return game.LedgerEntry{}, fmt.Errorf("insert ledger entry: %w", err)
	}
	return out, nil
}

func (l ledgerStore) List(ctx context.Context) ([]game.LedgerEntry, error) {
	rows, err := l.q.QueryContext(ctx, `
		SELECT id, resource_id, amount, direction, created_at, updated_at
		FROM ledger_entries
		ORDER BY rowid
	`)
	if err != nil {
		return nil, fmt.Errorf("list ledger: %w", err)
	}
	defer rows.Close()

	out := make([]game.LedgerEntry, 0, 64)
	for rows.Next() {
		var e game.LedgerEntry
		var dir, created, updated string
		if err := rows.Scan(&e.ID, &e.ResourceID, &e.Amount, &dir, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		e.Direction = game.Direction(dir)
		e.CreatedAt = parseTime(created)
		e.UpdatedAt = parseTime(updated)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (l ledgerStore) Totals(ctx context.Context) (game.LedgerTotals, error) {
	var t game.LedgerTotals
	if err := l.q.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN direction = 'credit' THEN amount ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN direction = 'debit' THEN amount ELSE 0 END), 0)
		FROM ledger_entries
	`).Scan(&t.Credit, &t.Debit); err != nil {
		return t, fmt.Errorf("ledger totals: %w", err)
	}
	return t, nil
}

type platformStore struct {
	q querier
}

const platformColumns = `id, platform_type, platform_level, profitability, created_at, updated_at`

func scanPlatform(row scanner) (game.Platform, error) {
	var p game.Platform
	var kind, created, updated string
	if err := row.Scan(&p.ID, &kind, &p.Level, &p.YieldRate, &created, &updated); err != nil {
		return p, err
	}
	p.Kind = game.PlatformKind(kind)
	p.CreatedAt = parseTime(created)
	p.UpdatedAt = parseTime(updated)
	return p, nil
}

func (p platformStore) Get(ctx context.Context, id uuid.UUID) (game.Platform, error) {
	out, err := scanPlatform(p.q.QueryRowContext(ctx, `SELECT `+platformColumns+` FROM platforms WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return out, fmt.Errorf("%w: platform %s", game.ErrNotFound, id)
		}
		return out, fmt.Errorf("get platform: %w", err)
	}
	return out, nil
}

func (p platformStore) List(ctx context.Context) ([]game.Platform, error) {
	rows, err := p.q.QueryContext(ctx, `SELECT `+platformColumns+` FROM platforms ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("list platforms: %w", err)
	}
	defer rows.Close()

	out := make([]game.Platform, 0, 16)
	for rows.Next() {
		pl, err := scanPlatform(rows)
		if err != nil {
			return nil, fmt.Errorf("scan platform: %w", err)
		}
		out = append(out, pl)
	}
	return out, rows.Err()
}

func (p platformStore) Create(ctx context.Context, kind game.PlatformKind, baseYield int64) (game.Platform, error) {
	ts := now()
	out := game.Platform{
		ID:        uuid.New(),
		Kind:      kind,
		Level:     game.BasePlatformLevel,
		YieldRate: baseYield,
		CreatedAt: parseTime(ts),
		UpdatedAt: parseTime(ts),
	}
	if _, err := p.q.ExecContext(ctx, `
		INSERT INTO platforms (id, platform_type, platform_level, profitability, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, out.ID, string(kind), out.Level, baseYield, ts, ts); err != nil {
		return game.Platform{}, fmt.Errorf("insert platform: %w", err)
	}
	return out, nil
}

func (p platformStore) Upgrade(ctx context.Context, id uuid.UUID, yieldIncrement int64, maxLevel int) (game.Platform, error) {
	res, err := p.q.ExecContext(ctx, `
		UPDATE platforms
		SET platform_level = platform_level + 1,
			profitability = profitability + ?,
			updated_at = ?
		WHERE id = ? AND platform_level < ?
	`, yieldIncrement, now(), id, maxLevel)
	if err != nil {
		return game.Platform{}, fmt.Errorf("upgrade platform: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return game.Platform{}, err
	}
	out, err := p.Get(ctx, id)
	if err != nil {
		return game.Platform{}, err
	}
	if n == 0 {
		return game.Platform{}, game.ErrMaxLevelReached
	}
	return out, nil
}

func (p platformStore) TotalYield(ctx context.Context) (int64, error) {
	var total int64
	if err := p.q.QueryRowContext(ctx, `SELECT COALESCE(SUM(profitability), 0) FROM platforms`).Scan(&total); err != nil {
		return 0, fmt.Errorf("sum profitability: %w", err)
	}
	return total, nil
}

type itemStore struct {
	q querier
}

const itemColumns = `id, title, description, thumbnail, cost, purchased, created_at, updated_at`

func scanItem(row scanner) (game.Item, error) {
	var it game.Item
	var created, updated string
	if err := row.Scan(&it.ID, &it.Title, &it.Description, &it.Thumbnail, &it.Cost, &it.Purchased, &created, &updated); err != nil {
		return it, err
	}
	it.CreatedAt = parseTime(created)
	it.UpdatedAt = parseTime(updated)
	return it, nil
}

func (i itemStore) Get(ctx context.Context, id uuid.UUID) (game.Item, error) {
	out, err := scanItem(i.q.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return out, fmt.Errorf("%w: item %s", game.ErrNotFound, id)
		}
		return out, fmt.Errorf("get item: %w", err)
	}
	return out, nil
}

func (i itemStore) List(ctx context.Context) ([]game.Item, error) {
	rows, err := i.q.QueryContext(ctx, `SELECT `+itemColumns+` FROM items ORDER BY cost, title`)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	out := make([]game.Item, 0, 8)
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (i itemStore) Create(ctx context.Context, in game.NewItem) (game.Item, error) {
	if in.Cost < 0 {
		return game.Item{}, fmt.Errorf("%w: item cost %d", game.ErrInvalidAmount, in.Cost)
	}
	ts := now()
	out := game.Item{
		ID:          uuid.New(),
		Title:       in.Title,
		Description: in.Description,
		Thumbnail:   in.Thumbnail,
		Cost:        in.Cost,
		CreatedAt:   parseTime(ts),
		UpdatedAt:   parseTime(ts),
	}
	if _, err := i.q.ExecContext(ctx, `
		INSERT INTO items (id, title, description, thumbnail, cost, purchased, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 0, ?, ?)
	`, out.ID, in.Title, in.Description, in.Thumbnail, in.Cost, ts, ts); err != nil {
		return game.Item{}, fmt.Errorf("insert item: %w", err)
	}
	return out, nil
}

func (i itemStore) MarkPurchased(ctx context.Context, id uuid.UUID) (game.Item, error) {
	res, err := i.q.ExecContext(ctx, `
		UPDATE items SET purchased = 1, updated_at = ?
		WHERE id = ? AND purchased = 0
	`, now(), id)
	if err != nil {
		return game.Item{}, fmt.Errorf("purchase item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return game.Item{}, err
	}
	out, err := i.Get(ctx, id)
	if err != nil {
		return game.Item{}, err
	}
	if n == 0 {
		return game.Item{}, game.ErrAlreadyPurchased
	}
	return out, nil
}
