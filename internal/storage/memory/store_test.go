package memory

import (
	"context"
	"errors"
	"testing"

	"crudeidle/internal/game"
	"crudeidle/internal/storage/storetest"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) game.Store { return New() })
}

func TestFailInjection(t *testing.T) {
	ctx := context.Background()
	st := New()
	boom := errors.New("disk full")

	st.Fail(OpLedgerAppend, boom)
	_, err := st.Ledger().Append(ctx, game.NewLedgerEntry{Amount: 1, Direction: game.Credit})
	if !errors.Is(err, boom) {
		t.Fatalf("append err=%v want injected fault", err)
	}

	st.Fail(OpLedgerAppend, nil)
	if _, err := st.Ledger().Append(ctx, game.NewLedgerEntry{Amount: 1, Direction: game.Credit}); err != nil {
		t.Fatalf("append after clearing fault: %v", err)
	}
}

func TestNestedTxSharesState(t *testing.T) {
	ctx := context.Background()
	st := New()
	err := st.WithTx(ctx, func(tx game.Store) error {
		return tx.WithTx(ctx, func(inner game.Store) error {
			_, err := inner.Platforms().Create(ctx, game.KindRig, 5)
			return err
		})
	})
	if err != nil {
		t.Fatalf("nested tx: %v", err)
	}
	list, _ := st.Platforms().List(ctx)
	if len(list) != 1 {
		t.Fatalf("platforms=%d want 1", len(list))
	}
}
