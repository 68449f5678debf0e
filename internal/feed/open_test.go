package feed

import (
	"context"
	"testing"

	"crudeidle/internal/config"
)

func TestOpenRelay(t *testing.T) {
	ctx := context.Background()

	r, err := OpenRelay(ctx, config.FeedConfig{Relay: config.RelayNone}, nil, "", nil)
	if err != nil {
		t.Fatalf("none relay: %v", err)
	}
	if r.Publisher != nil || r.Listener != nil {
		t.Fatalf("none relay should be empty: %+v", r)
	}
	r.Close()

	if _, err := OpenRelay(ctx, config.FeedConfig{Relay: config.RelayPostgres}, nil, "", nil); err == nil {
		t.Fatalf("postgres relay without a pool should fail")
	}
	if _, err := OpenRelay(ctx, config.FeedConfig{Relay: config.RelayRedis}, nil, "", nil); err == nil {
		t.Fatalf("redis relay without an address should fail")
	}
	if _, err := OpenRelay(ctx, config.FeedConfig{Relay: "carrier-pigeon"}, nil, "", nil); err == nil {
		t.Fatalf("unknown relay should fail")
	}
}
