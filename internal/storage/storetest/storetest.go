// Package storetest holds behaviour checks shared by every game.Store backend.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"

	"crudeidle/internal/game"

	"github.com/google/uuid"
)

// Run exercises a fresh, empty store returned by open.
func Run(t *testing.T, open func(t *testing.T) game.Store) {
	t.Run("LedgerAppendOnly", func(t *testing.T) { testLedger(t, open(t)) })
	t.Run("Platforms", func(t *testing.T) { testPlatforms(t, open(t)) })
	t.Run("Items", func(t *testing.T) { testItems(t, open(t)) })
	t.Run("Idempotency", func(t *testing.T) { testIdempotency(t, open(t)) })
	t.Run("TxRollback", func(t *testing.T) { testRollback(t, open(t)) })
	t.Run("ConcurrentUpgrade", func(t *testing.T) { testConcurrentUpgrade(t, open(t)) })
}

func testLedger(t *testing.T, st game.Store) {
	ctx := context.Background()
	totals, err := st.Ledger().Totals(ctx)
	if err != nil {
		t.Fatalf("totals on empty ledger: %v", err)
	}
	if totals.Available() != 0 {
		t.Fatalf("empty ledger available=%d want 0", totals.Available())
	}

	system := game.SystemResourceID
	if _, err := st.Ledger().Append(ctx, game.NewLedgerEntry{ResourceID: &system, Amount: 500, Direction: game.Credit}); err != nil {
		t.Fatalf("append credit: %v", err)
	}
	rid := uuid.New()
	if _, err := st.Ledger().Append(ctx, game.NewLedgerEntry{ResourceID: &rid, Amount: 120, Direction: game.Debit}); err != nil {
		t.Fatalf("append debit: %v", err)
	}
	if _, err := st.Ledger().Append(ctx, game.NewLedgerEntry{Amount: 0, Direction: game.Credit}); err != nil {
		t.Fatalf("append zero credit: %v", err)
	}
	_, err = st.Ledger().Append(ctx, game.NewLedgerEntry{Amount: -1, Direction: game.Credit})
	if !errors.Is(err, game.ErrInvalidAmount) {
		t.Fatalf("negative append err=%v want ErrInvalidAmount", err)
	}

	entries, err := st.Ledger().List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("entries=%d want 3", len(entries))
	}
	if entries[0].Amount != 500 || entries[1].Amount != 120 || entries[2].Amount != 0 {
		t.Fatalf("entries out of insertion order: %+v", entries)
	}
	if entries[1].ResourceID == nil || *entries[1].ResourceID != rid {
		t.Fatalf("debit resource id=%v want %s", entries[1].ResourceID, rid)
	}
	if entries[2].ResourceID != nil {
		t.Fatalf("untagged entry resource id=%v want nil", entries[2].ResourceID)
	}
	if entries[0].ID == uuid.Nil || entries[0].CreatedAt.IsZero() {
		t.Fatalf("entry missing id or timestamp: %+v", entries[0])
	}

	totals, err = st.Ledger().Totals(ctx)
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if totals.Credit != 500 || totals.Debit != 120 || totals.Available() != 380 {
		t.Fatalf("totals=%+v want credit=500 debit=120", totals)
	}
}

func testPlatforms(t *testing.T, st game.Store) {
	ctx := context.Background()
	yield, err := st.Platforms().TotalYield(ctx)
	if err != nil || yield != 0 {
		t.Fatalf("empty total yield=%d err=%v", yield, err)
	}

	rig, err := st.Platforms().Create(ctx, game.KindRig, 5)
	if err != nil {
		t.Fatalf("create rig: %v", err)
	}
	if rig.Level != game.BasePlatformLevel || rig.YieldRate != 5 || rig.Kind != game.KindRig {
		t.Fatalf("unexpected rig: %+v", rig)
	}
	if _, err := st.Platforms().Create(ctx, game.KindPump, 50); err != nil {
		t.Fatalf("create pump: %v", err)
	}

	up, err := st.Platforms().Upgrade(ctx, rig.ID, 5, 2)
	if err != nil {
		t.Fatalf("upgrade: %v", err)
	}
	if up.Level != 1 || up.YieldRate != 10 {
		t.Fatalf("after upgrade level=%d yield=%d want 1/10", up.Level, up.YieldRate)
	}
	if _, err := st.Platforms().Upgrade(ctx, rig.ID, 5, 2); err != nil {
		t.Fatalf("second upgrade: %v", err)
	}
	_, err = st.Platforms().Upgrade(ctx, rig.ID, 5, 2)
	if !errors.Is(err, game.ErrMaxLevelReached) {
		t.Fatalf("upgrade at cap err=%v want ErrMaxLevelReached", err)
	}
	got, err := st.Platforms().Get(ctx, rig.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Level != 2 || got.YieldRate != 15 {
		t.Fatalf("rejected upgrade mutated platform: %+v", got)
	}

	_, err = st.Platforms().Upgrade(ctx, uuid.New(), 5, 10)
	if !errors.Is(err, game.ErrNotFound) {
		t.Fatalf("upgrade unknown err=%v want ErrNotFound", err)
	}
	_, err = st.Platforms().Get(ctx, uuid.New())
	if !errors.Is(err, game.ErrNotFound) {
		t.Fatalf("get unknown err=%v want ErrNotFound", err)
	}

	list, err := st.Platforms().List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].ID != rig.ID {
		t.Fatalf("list not in creation order: %+v", list)
	}
	yield, err = st.Platforms().TotalYield(ctx)
	if err != nil || yield != 65 {
		t.Fatalf("total yield=%d err=%v want 65", yield, err)
	}
}

func testItems(t *testing.T, st game.Store) {
	ctx := context.Background()
	expensive, err := st.Items().Create(ctx, game.NewItem{Title: "Guiness", Cost: 500000})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	cheap, err := st.Items().Create(ctx, game.NewItem{Title: "Heineken", Description: "lager", Cost: 15000})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	list, err := st.Items().List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].ID != cheap.ID || list[1].ID != expensive.ID {
		t.Fatalf("items not ordered by cost: %+v", list)
	}

	bought, err := st.Items().MarkPurchased(ctx, cheap.ID)
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if !bought.Purchased || bought.Description != "lager" {
		t.Fatalf("unexpected purchased item: %+v", bought)
	}
	_, err = st.Items().MarkPurchased(ctx, cheap.ID)
	if !errors.Is(err, game.ErrAlreadyPurchased) {
		t.Fatalf("second purchase err=%v want ErrAlreadyPurchased", err)
	}
	_, err = st.Items().MarkPurchased(ctx, uuid.New())
	if !errors.Is(err, game.ErrNotFound) {
		t.Fatalf("purchase unknown err=%v want ErrNotFound", err)
	}
	got, err := st.Items().Get(ctx, expensive.ID)
	if err != nil || got.Purchased {
		t.Fatalf("untouched item purchased=%v err=%v", got.Purchased, err)
	}
}

func testIdempotency(t *testing.T, st game.Store) {
	ctx := context.Background()
	if err := st.ClaimIdempotency(ctx, "k-1", "create_platform"); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if err := st.ClaimIdempotency(ctx, "k-1", "create_platform"); !errors.Is(err, game.ErrDuplicateIdempotency) {
		t.Fatalf("second claim err=%v want ErrDuplicateIdempotency", err)
	}
	if err := st.ClaimIdempotency(ctx, "k-2", "purchase_item"); err != nil {
		t.Fatalf("other key: %v", err)
	}
}

func testRollback(t *testing.T, st game.Store) {
	ctx := context.Background()
	boom := errors.New("boom")
	err := st.WithTx(ctx, func(tx game.Store) error {
		if _, err := tx.Platforms().Create(ctx, game.KindRig, 5); err != nil {
			return err
		}
		if _, err := tx.Ledger().Append(ctx, game.NewLedgerEntry{Amount: 1000, Direction: game.Debit}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithTx err=%v want boom", err)
	}
	list, err := st.Platforms().List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("rolled back tx left %d platforms", len(list))
	}
	entries, err := st.Ledger().List(ctx)
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("rolled back tx left %d ledger entries", len(entries))
	}

	err = st.WithTx(ctx, func(tx game.Store) error {
		_, err := tx.Platforms().Create(ctx, game.KindGround, 15)
		return err
	})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	list, _ = st.Platforms().List(ctx)
	if len(list) != 1 {
		t.Fatalf("committed tx platforms=%d want 1", len(list))
	}
}

func testConcurrentUpgrade(t *testing.T, st game.Store) {
	ctx := context.Background()
	p, err := st.Platforms().Create(ctx, game.KindRig, 5)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	const workers = 12
	const maxLevel = 5
	var wg sync.WaitGroup
	var mu sync.Mutex
	ok := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := st.Platforms().Upgrade(ctx, p.ID, 5, maxLevel)
			if err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	got, err := st.Platforms().Get(ctx, p.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Level != maxLevel {
		t.Fatalf("level=%d want %d", got.Level, maxLevel)
	}
	if ok != maxLevel {
		t.Fatalf("successful upgrades=%d want %d", ok, maxLevel)
	}
}
