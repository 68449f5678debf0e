// Package postgres stores the economy in PostgreSQL through a pgx pool.
// Mutations go through SERIALIZABLE transactions; a serialization failure is
// reported as game.ErrTxConflict so the caller can retry.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"crudeidle/internal/game"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	pool *pgxpool.Pool
	q    querier
	inTx bool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, q: pool}
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
	cmd, err := s.q.Exec(ctx, `
		INSERT INTO idempotency_keys (key, action, created_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO NOTHING
	`, key, action)
	if err != nil {
		return fmt.Errorf("claim idempotency key: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return game.ErrDuplicateIdempotency
	}
	return nil
}

// WithTx runs fn in a SERIALIZABLE transaction. Nested calls reuse the
// outer transaction.
func (s *Store) WithTx(ctx context.Context, fn func(game.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&Store{pool: s.pool, q: tx, inTx: true}); err != nil {
		return conflictOr(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return conflictOr(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}

func conflictOr(err error) error {
	if isSerializationError(err) {
		return fmt.Errorf("%w: %v", game.ErrTxConflict, err)
	}
	return err
}

func isSerializationError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && (pgErr.Code == "40001" || pgErr.Code == "40P01")
}

type ledgerStore struct {
	q querier
}

func (l ledgerStore) Append(ctx context.Context, in game.NewLedgerEntry) (game.LedgerEntry, error) {
	var out game.LedgerEntry
	if in.Amount < 0 {
		return out, fmt.Errorf("%w: %d", game.ErrInvalidAmount, in.Amount)
	}
	dir, err := game.ParseDirection(string(in.Direction))
	if err != nil {
		return out, err
	}
	out = game.LedgerEntry{
		ID:         uuid.New(),
		ResourceID: in.ResourceID,
		Amount:     in.Amount,
		Direction:  dir,
	}
	if err := l.q.QueryRow(ctx, `
		INSERT INTO ledger_entries (id, resource_id, amount, direction)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at
	`, out.ID, in.ResourceID, in.Amount, string(dir)).Scan(&out.CreatedAt, &out.UpdatedAt); err != nil {
		return game.LedgerEntry{}, fmt.Errorf("insert ledger entry: %w", err)
	}
	return out, nil
}

func (l ledgerStore) List(ctx context.Context) ([]game.LedgerEntry, error) {
	rows, err := l.q.Query(ctx, `
		SELECT id, resource_id, amount, direction, created_at, updated_at
		FROM ledger_entries
		ORDER BY seq
	`)
	if err != nil {
		return nil, fmt.Errorf("list ledger: %w", err)
	}
	defer rows.Close()

	out := make([]game.LedgerEntry, 0, 64)
	for rows.Next() {
		var e game.LedgerEntry
		var dir string
		if err := rows.Scan(&e.ID, &e.ResourceID, &e.Amount, &dir, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		e.Direction = game.Direction(dir)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (l ledgerStore) Totals(ctx context.Context) (game.LedgerTotals, error) {
	var t game.LedgerTotals
	if err := l.q.QueryRow(ctx, `
		SELECT
			COALESCE(SUM(amount) FILTER (WHERE direction = 'credit'), 0)::BIGINT,
			COALESCE(SUM(amount) FILTER (WHERE direction = 'debit'), 0)::BIGINT
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

func scanPlatform(row pgx.Row) (game.Platform, error) {
	var p game.Platform
	var kind string
	if err := row.Scan(&p.ID, &kind, &p.Level, &p.YieldRate, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return p, err
	}
	p.Kind = game.PlatformKind(kind)
	return p, nil
}

func (p platformStore) Get(ctx context.Context, id uuid.UUID) (game.Platform, error) {
	out, err := scanPlatform(p.q.QueryRow(ctx, `SELECT `+platformColumns+` FROM platforms WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return out, fmt.Errorf("%w: platform %s", game.ErrNotFound, id)
		}
		return out, fmt.Errorf("get platform: %w", err)
	}
	return out, nil
}

func (p platformStore) List(ctx context.Context) ([]game.Platform, error) {
	rows, err := p.q.Query(ctx, `SELECT `+platformColumns+` FROM platforms ORDER BY created_at, seq`)
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
	out, err := scanPlatform(p.q.QueryRow(ctx, `
		INSERT INTO platforms (id, platform_type, platform_level, profitability)
		VALUES ($1, $2, $3, $4)
		RETURNING `+platformColumns,
		uuid.New(), string(kind), game.BasePlatformLevel, baseYield))
	if err != nil {
		return out, fmt.Errorf("insert platform: %w", err)
	}
	return out, nil
}

// Upgrade bumps the level only while it is below maxLevel, so two racing
// upgrades can never push a platform past the cap.
func (p platformStore) Upgrade(ctx context.Context, id uuid.UUID, yieldIncrement int64, maxLevel int) (game.Platform, error) {
	out, err := scanPlatform(p.q.QueryRow(ctx, `
		UPDATE platforms
		SET platform_level = platform_level + 1,
			profitability = profitability + $2,
			updated_at = now()
		WHERE id = $1 AND platform_level < $3
		RETURNING `+platformColumns,
		id, yieldIncrement, maxLevel))
	if err == nil {
		return out, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return out, fmt.Errorf("upgrade platform: %w", err)
	}
	if _, err := p.Get(ctx, id); err != nil {
		return game.Platform{}, err
	}
	return game.Platform{}, game.ErrMaxLevelReached
}

func (p platformStore) TotalYield(ctx context.Context) (int64, error) {
	var total int64
	if err := p.q.QueryRow(ctx, `SELECT COALESCE(SUM(profitability), 0)::BIGINT FROM platforms`).Scan(&total); err != nil {
		return 0, fmt.Errorf("sum profitability: %w", err)
	}
	return total, nil
}

type itemStore struct {
	q querier
}

const itemColumns = `id, title, description, thumbnail, cost, purchased, created_at, updated_at`

func scanItem(row pgx.Row) (game.Item, error) {
	var it game.Item
	err := row.Scan(&it.ID, &it.Title, &it.Description, &it.Thumbnail, &it.Cost, &it.Purchased, &it.CreatedAt, &it.UpdatedAt)
	return it, err
}

func (i itemStore) Get(ctx context.Context, id uuid.UUID) (game.Item, error) {
	out, err := scanItem(i.q.QueryRow(ctx, `SELECT `+itemColumns+` FROM items WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return out, fmt.Errorf("%w: item %s", game.ErrNotFound, id)
		}
		return out, fmt.Errorf("get item: %w", err)
	}
	return out, nil
}

func (i itemStore) List(ctx context.Context) ([]game.Item, error) {
	rows, err := i.q.Query(ctx, `SELECT `+itemColumns+` FROM items ORDER BY cost, title`)
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
	out, err := scanItem(i.q.QueryRow(ctx, `
		INSERT INTO items (id, title, description, thumbnail, cost, purchased)
		VALUES ($1, $2, $3, $4, $5, false)
		RETURNING `+itemColumns,
		uuid.New(), in.Title, in.Description, in.Thumbnail, in.Cost))
	if err != nil {
		return out, fmt.Errorf("insert item: %w", err)
	}
	return out, nil
}

func (i itemStore) MarkPurchased(ctx context.Context, id uuid.UUID) (game.Item, error) {
	out, err := scanItem(i.q.QueryRow(ctx, `
		UPDATE items
		SET purchased = true, updated_at = now()
		WHERE id = $1 AND purchased = false
		RETURNING `+itemColumns, id))
	if err == nil {
		return out, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return out, fmt.Errorf("purchase item: %w", err)
	}
	if _, err := i.Get(ctx, id); err != nil {
		return game.Item{}, err
	}
	return game.Item{}, game.ErrAlreadyPurchased
}
