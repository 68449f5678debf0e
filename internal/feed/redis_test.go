package feed

import (
	"context"
	"os"
	"testing"
	"time"

	"crudeidle/internal/game"
)

func TestRedisRelay(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := NewRedisClient(ctx, addr, os.Getenv("REDIS_PASSWORD"), 0)
	if err != nil {
		t.Fatalf("redis: %v", err)
	}
	defer client.Close()

	channel := "crudeidle_test_" + time.Now().Format("150405.000")
	hub := NewHub(nil)
	updates, unsub := hub.Subscribe(4)
	defer unsub()

	listener := NewRedisListener(client, channel, nil)
	go listener.Run(ctx, hub)

	pub := NewRedisPublisher(client, channel)
	want := game.Update{Balance: 99, JustEarned: 3}
	deadline := time.After(3 * time.Second)
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case got := <-updates:
			if got != want {
				t.Fatalf("got %+v want %+v", got, want)
			}
			return
		case <-tick.C:
			// the listener may not be subscribed yet
			if err := pub.Publish(ctx, want); err != nil {
				t.Fatalf("publish: %v", err)
			}
		case <-deadline:
			t.Fatalf("no update relayed")
		}
	}
}
