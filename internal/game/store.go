package game

import (
	"context"

	"github.com/google/uuid"
)

// LedgerStore is append-only: there is no way to change or remove an entry.
type LedgerStore interface {
	Append(ctx context.Context, in NewLedgerEntry) (LedgerEntry, error)
	List(ctx context.Context) ([]LedgerEntry, error)
	Totals(ctx context.Context) (LedgerTotals, error)
}

// PlatformStore implementations must make Upgrade's level check and write a
// single atomic step per id.
type PlatformStore interface {
	Get(ctx context.Context, id uuid.UUID) (Platform, error)
	List(ctx context.Context) ([]Platform, error)
	Create(ctx context.Context, kind PlatformKind, baseYield int64) (Platform, error)
	Upgrade(ctx context.Context, id uuid.UUID, yieldIncrement int64, maxLevel int) (Platform, error)
	TotalYield(ctx context.Context) (int64, error)
}

// ItemStore implementations must make MarkPurchased's check and write a single
// atomic step per id.
type ItemStore interface {
	Get(ctx context.Context, id uuid.UUID) (Item, error)
	List(ctx context.Context) ([]Item, error)
	Create(ctx context.Context, in NewItem) (Item, error)
	MarkPurchased(ctx context.Context, id uuid.UUID) (Item, error)
}

type Store interface {
	Ledger() LedgerStore
	Platforms() PlatformStore
	Items() ItemStore
	// ClaimIdempotency records key for action and fails with
	// ErrDuplicateIdempotency when it was claimed before.
	ClaimIdempotency(ctx context.Context, key, action string) error
	// WithTx runs fn against a transactional view of the store. A non-nil
	// error from fn discards every write fn made.
	WithTx(ctx context.Context, fn func(Store) error) error
}
