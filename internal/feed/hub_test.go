package feed

import (
	"context"
	"errors"
	"testing"
	"time"

	"crudeidle/internal/game"
	"crudeidle/internal/storage/memory"
)

func recv(t *testing.T, ch <-chan game.Update) game.Update {
	t.Helper()
	select {
	case u, ok := <-ch:
		if !ok {
			t.Fatalf("channel closed early")
		}
		return u
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for update")
	}
	return game.Update{}
}

func TestHubBroadcast(t *testing.T) {
	h := NewHub(nil)
	a, cancelA := h.Subscribe(4)
	defer cancelA()
	b, cancelB := h.Subscribe(4)
	defer cancelB()

	want := game.Update{Balance: 1005, JustEarned: 5}
	if err := h.Publish(context.Background(), want); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if got := recv(t, a); got != want {
		t.Fatalf("a got %+v want %+v", got, want)
	}
	if got := recv(t, b); got != want {
		t.Fatalf("b got %+v want %+v", got, want)
	}
	if h.Len() != 2 {
		t.Fatalf("subscribers=%d want 2", h.Len())
	}
}

func TestHubCancelDetaches(t *testing.T) {
	h := NewHub(nil)
	ch, cancel := h.Subscribe(1)
	cancel()
	cancel()

	if _, ok := <-ch; ok {
		t.Fatalf("expected closed channel after cancel")
	}
	if h.Len() != 0 {
		t.Fatalf("subscribers=%d want 0", h.Len())
	}
	if err := h.Publish(context.Background(), game.Update{Balance: 1}); err != nil {
		t.Fatalf("publish with no subscribers: %v", err)
	}
}

func TestHubSlowSubscriberDoesNotBlock(t *testing.T) {
	h := NewHub(nil)
	slow, cancel := h.Subscribe(1)
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			h.Publish(context.Background(), game.Update{Balance: int64(i)})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("publish blocked on a full subscriber")
	}
	if got := recv(t, slow); got.Balance != 0 {
		t.Fatalf("first buffered update balance=%d want 0", got.Balance)
	}
}

func TestHubClose(t *testing.T) {
	h := NewHub(nil)
	ch, cancel := h.Subscribe(1)
	defer cancel()

	h.Close()
	if _, ok := <-ch; ok {
		t.Fatalf("expected subscriber channel to close")
	}
	err := h.Publish(context.Background(), game.Update{})
	if !errors.Is(err, ErrClosed) || !errors.Is(err, game.ErrFeedClosed) {
		t.Fatalf("publish after close err=%v want ErrClosed", err)
	}

	late, lateCancel := h.Subscribe(1)
	defer lateCancel()
	if _, ok := <-late; ok {
		t.Fatalf("subscribe after close should yield a closed channel")
	}
}

func TestUpdateWireFormat(t *testing.T) {
	payload, err := encodeUpdate(game.Update{Balance: 42, JustEarned: 7})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(payload) != `{"balance":42,"just_earned":7}` {
		t.Fatalf("payload=%s", payload)
	}
	if _, err := decodeUpdate([]byte("not json")); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestSettlementThroughHub(t *testing.T) {
	st := memory.New()
	st.Platforms().Create(context.Background(), game.KindRig, 5)
	hub := NewHub(nil)
	h := game.StartSettlement(context.Background(), game.NewSettler(st, hub, nil), 10*time.Millisecond)

	updates, unsub, err := h.Subscribe(4)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer unsub()
	if got := recv(t, updates); got.JustEarned != 5 {
		t.Fatalf("just_earned=%d want 5", got.JustEarned)
	}

	hub.Close()
	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatalf("settlement kept running after hub closed")
	}
	if !errors.Is(h.Err(), ErrClosed) {
		t.Fatalf("loop err=%v want ErrClosed", h.Err())
	}
}
