package game_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"crudeidle/internal/game"
	"crudeidle/internal/storage/memory"
)

type recordingPublisher struct {
	mu      sync.Mutex
	updates []game.Update
	err     error
}

func (r *recordingPublisher) Publish(_ context.Context, u game.Update) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.updates = append(r.updates, u)
	return nil
}

func (r *recordingPublisher) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.updates)
}

func TestTickCreditsPeriodEarnings(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	system := game.SystemResourceID
	st.Ledger().Append(ctx, game.NewLedgerEntry{ResourceID: &system, Amount: 300, Direction: game.Credit})
	st.Platforms().Create(ctx, game.KindRig, 5)
	st.Platforms().Create(ctx, game.KindPump, 50)

	pub := &recordingPublisher{}
	s := game.NewSettler(st, pub, quietLogger())
	u, err := s.Tick(ctx)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	want := game.Update{Balance: 355, JustEarned: 55}
	if u != want {
		t.Fatalf("update=%+v want %+v", u, want)
	}
	if pub.count() != 1 || pub.updates[0] != want {
		t.Fatalf("published=%+v", pub.updates)
	}

	entries, _ := st.Ledger().List(ctx)
	last := entries[len(entries)-1]
	if last.Direction != game.Credit || last.Amount != 55 {
		t.Fatalf("last entry=%+v want CREDIT(55)", last)
	}
	if last.ResourceID == nil || *last.ResourceID != game.SystemResourceID {
		t.Fatalf("credit tagged %v want system id", last.ResourceID)
	}
}

func TestTickWithoutPlatformsCreditsZero(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	s := game.NewSettler(st, nil, quietLogger())

	u, err := s.Tick(ctx)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if u.Balance != 0 || u.JustEarned != 0 {
		t.Fatalf("update=%+v want zeros", u)
	}
	entries, _ := st.Ledger().List(ctx)
	if len(entries) != 1 || entries[0].Amount != 0 {
		t.Fatalf("entries=%+v want one zero credit", entries)
	}
}

func TestTickDegradesStoreErrors(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	st.Platforms().Create(ctx, game.KindRig, 5)
	st.Fail(memory.OpTotalYield, errors.New("yield down"))
	st.Fail(memory.OpLedgerTotals, errors.New("totals down"))

	pub := &recordingPublisher{}
	u, err := game.NewSettler(st, pub, quietLogger()).Tick(ctx)
	if err != nil {
		t.Fatalf("tick should not fail on store errors: %v", err)
	}
	if u.JustEarned != 0 || u.Balance != 0 {
		t.Fatalf("update=%+v want degraded zeros", u)
	}
	if pub.count() != 1 {
		t.Fatalf("published=%d want 1", pub.count())
	}

	st.Fail(memory.OpTotalYield, nil)
	st.Fail(memory.OpLedgerTotals, nil)
	st.Fail(memory.OpLedgerAppend, errors.New("append down"))
	u, err = game.NewSettler(st, pub, quietLogger()).Tick(ctx)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if u.JustEarned != 5 {
		t.Fatalf("just_earned=%d want 5 even when the credit fails", u.JustEarned)
	}
}

func TestSettlementLoopStopsOnFeedClosed(t *testing.T) {
	st := memory.New()
	pub := &recordingPublisher{err: game.ErrFeedClosed}
	h := game.StartSettlement(context.Background(), game.NewSettler(st, pub, quietLogger()), 5*time.Millisecond)

	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatalf("loop did not stop after feed closed")
	}
	if !errors.Is(h.Err(), game.ErrFeedClosed) {
		t.Fatalf("err=%v want ErrFeedClosed", h.Err())
	}
}

func TestSettlementLoopKeepsGoingOnPublishErrors(t *testing.T) {
	st := memory.New()
	st.Platforms().Create(context.Background(), game.KindGround, 15)
	pub := &recordingPublisher{err: errors.New("socket hiccup")}
	h := game.StartSettlement(context.Background(), game.NewSettler(st, pub, quietLogger()), 5*time.Millisecond)
	defer h.Stop()

	deadline := time.Now().Add(time.Second)
	for {
		entries, _ := st.Ledger().List(context.Background())
		if len(entries) >= 3 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("loop stopped after publish errors, entries=%d", len(entries))
		}
		time.Sleep(5 * time.Millisecond)
	}
	select {
	case <-h.Done():
		t.Fatalf("loop exited on a transient publish error")
	default:
	}
}

func TestSettlementStop(t *testing.T) {
	st := memory.New()
	pub := &recordingPublisher{}
	h := game.StartSettlement(context.Background(), game.NewSettler(st, pub, quietLogger()), time.Hour)
	if h.Err() != nil {
		t.Fatalf("err before done=%v", h.Err())
	}
	h.Stop()
	h.Stop()
	select {
	case <-h.Done():
	default:
		t.Fatalf("done not closed after Stop")
	}
	if h.Err() != nil {
		t.Fatalf("err after Stop=%v want nil", h.Err())
	}
	if pub.count() != 0 {
		t.Fatalf("published=%d want 0", pub.count())
	}
}

func TestHandleSubscribeRequiresSubscriber(t *testing.T) {
	h := game.StartSettlement(context.Background(), game.NewSettler(memory.New(), &recordingPublisher{}, quietLogger()), time.Hour)
	defer h.Stop()
	if _, _, err := h.Subscribe(1); err == nil {
		t.Fatalf("expected error for a publisher without subscriptions")
	}
}
