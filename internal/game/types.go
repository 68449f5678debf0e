package game

import (
	"time"

	"github.com/google/uuid"
)

type LedgerEntry struct {
	ID         uuid.UUID  `json:"id"`
	ResourceID *uuid.UUID `json:"resource_id,omitempty"`
	Amount     int64      `json:"amount"`
	Direction  Direction  `json:"direction"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

type NewLedgerEntry struct {
	ResourceID *uuid.UUID
	Amount     int64
	Direction  Direction
}

type LedgerTotals struct {
	Credit int64 `json:"credit"`
	Debit  int64 `json:"debit"`
}

func (t LedgerTotals) Available() int64 {
	return t.Credit - t.Debit
}

type Platform struct {
	ID        uuid.UUID    `json:"id"`
	Kind      PlatformKind `json:"platform_type"`
	Level     int          `json:"platform_level"`
	YieldRate int64        `json:"profitability"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

type Item struct {
	ID          uuid.UUID `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Thumbnail   string    `json:"thumbnail"`
	Cost        int64     `json:"cost"`
	Purchased   bool      `json:"purchased"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type NewItem struct {
	Title       string `toml:"title"`
	Description string `toml:"description"`
	Thumbnail   string `toml:"thumbnail"`
	Cost        int64  `toml:"cost"`
}

type ActionType string

const (
	ActionPurchaseItem    ActionType = "purchase_item"
	ActionCreatePlatform  ActionType = "create_platform"
	ActionUpgradePlatform ActionType = "upgrade_platform"
)

type Action struct {
	Type           ActionType
	ResourceID     uuid.UUID
	PlatformKind   PlatformKind
	IdempotencyKey string
}

type MutationResult struct {
	Platform *Platform `json:"platform,omitempty"`
	Item     *Item     `json:"item,omitempty"`
	Cost     int64     `json:"cost"`
	Balance  int64     `json:"balance"`
	Won      bool      `json:"won"`
}

// Update is one settlement tick as seen by live feed subscribers.
type Update struct {
	Balance    int64 `json:"balance"`
	JustEarned int64 `json:"just_earned"`
}

type BalanceView struct {
	Balance        int64 `json:"balance"`
	PeriodEarnings int64 `json:"period_earnings"`
}

type Summary struct {
	Platforms      []Platform `json:"platforms"`
	Earned         int64      `json:"earned"`
	Spent          int64      `json:"spent"`
	ItemsPurchased int        `json:"items_purchased"`
	ItemsTotal     int        `json:"items_total"`
	Won            bool       `json:"won"`
}
