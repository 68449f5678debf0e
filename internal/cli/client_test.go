package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"crudeidle/internal/api"
	"crudeidle/internal/config"
	"crudeidle/internal/game"
	"crudeidle/internal/storage/memory"
	"crudeidle/internal/syncq"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

func TestCreatePlatformSendsIdempotencyKey(t *testing.T) {
	var gotKey, gotPath, gotMethod string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("Idempotency-Key")
		gotPath = r.URL.Path
		gotMethod = r.Method
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"platform":{"platform_type":"Rig","platform_level":0,"profitability":5},"cost":1000,"balance":0,"won":false}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL + "/")
	out, err := c.CreatePlatform(context.Background(), "Rig", "idem-1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if gotMethod != http.MethodPost || gotPath != "/api/platforms" {
		t.Fatalf("request=%s %s", gotMethod, gotPath)
	}
	if gotKey != "idem-1" {
		t.Fatalf("idempotency key=%q", gotKey)
	}
	if gotBody["platform_type"] != "Rig" {
		t.Fatalf("body=%v", gotBody)
	}
	if out.Platform == nil || out.Platform.YieldRate != 5 || out.Cost != 1000 {
		t.Fatalf("unexpected result: %+v", out)
	}
}

func TestAPIErrorCarriesServerMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"not enough funds for purchase"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.PurchaseItem(context.Background(), uuid.New(), "k")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err=%v want *APIError", err)
	}
	if apiErr.Status != http.StatusBadRequest || apiErr.Message != "not enough funds for purchase" {
		t.Fatalf("unexpected api error: %+v", apiErr)
	}
	if !IsAPIError(err) {
		t.Fatalf("IsAPIError false for api error")
	}
}

func TestNetworkErrorIsNotAPIError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	c := NewClient(base)
	c.HTTP.Timeout = time.Second
	_, err := c.Balance(context.Background())
	if err == nil {
		t.Fatalf("expected error against closed server")
	}
	if IsAPIError(err) {
		t.Fatalf("network failure reported as api error: %v", err)
	}
}

func TestSyncReplay(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/sync/replay" {
			http.NotFound(w, r)
			return
		}
		var in struct {
			Commands []syncq.Command `json:"commands"`
		}
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		results := make([]ReplayResult, 0, len(in.Commands))
		for _, c := range in.Commands {
			status := http.StatusOK
			if c.Action != game.ActionCreatePlatform {
				status = http.StatusNotFound
			}
			results = append(results, ReplayResult{IdempotencyKey: c.IdempotencyKey, Status: status})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"results": results})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	out, err := c.SyncReplay(context.Background(), []syncq.Command{
		{Action: game.ActionCreatePlatform, PlatformType: "Rig", IdempotencyKey: "a"},
		{Action: game.ActionPurchaseItem, ResourceID: uuid.NewString(), IdempotencyKey: "b"},
	})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(out) != 2 || out[0].Status != http.StatusOK || out[1].Status != http.StatusNotFound {
		t.Fatalf("unexpected results: %+v", out)
	}
}

func TestSyncReplayAgainstServerBatchesLongQueue(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := game.NewService(memory.New(), game.DefaultCatalog(), logger)
	n := ReplayBatchSize + 1
	if err := svc.SeedDefaults(ctx, int64(n)*1000); err != nil {
		t.Fatalf("seed: %v", err)
	}
	srv := httptest.NewServer(api.New(config.APIConfig{}, logger, svc, nil).Handler())
	defer srv.Close()

	queued := time.Now().UTC().Add(-time.Hour)
	commands := make([]syncq.Command, 0, n)
	for i := 0; i < n; i++ {
		commands = append(commands, syncq.Command{
			Action:         game.ActionCreatePlatform,
			PlatformType:   "Rig",
			IdempotencyKey: fmt.Sprintf("queued-%d", i),
			QueuedAt:       queued,
		})
	}

	out, err := NewClient(srv.URL).SyncReplay(ctx, commands)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(out) != n {
		t.Fatalf("results=%d want %d", len(out), n)
	}
	for i, r := range out {
		if r.Status != http.StatusOK || r.IdempotencyKey != commands[i].IdempotencyKey {
			t.Fatalf("result %d: %+v", i, r)
		}
	}
	platforms, err := svc.ListPlatforms(ctx)
	if err != nil {
		t.Fatalf("list platforms: %v", err)
	}
	if len(platforms) != n {
		t.Fatalf("platforms=%d want %d", len(platforms), n)
	}
	balance, err := svc.AvailableBalance(ctx)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 0 {
		t.Fatalf("balance=%d want 0", balance)
	}
}

func TestWatchStreamsUntilServerCloses(t *testing.T) {
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, u := range []game.Update{{Balance: 300}, {Balance: 355, JustEarned: 55}} {
			if err := conn.WriteJSON(u); err != nil {
				return
			}
		}
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "feed closed"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var got []game.Update
	err := c.Watch(ctx, func(u game.Update) error {
		got = append(got, u)
		return nil
	})
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	if len(got) != 2 || got[1].Balance != 355 || got[1].JustEarned != 55 {
		t.Fatalf("updates=%+v", got)
	}
}

func TestWatchStopsOnCallbackError(t *testing.T) {
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for i := 0; i < 10; i++ {
			if err := conn.WriteJSON(game.Update{Balance: int64(i)}); err != nil {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}))
	defer srv.Close()

	stop := errors.New("stop")
	seen := 0
	err := NewClient(srv.URL).Watch(context.Background(), func(game.Update) error {
		seen++
		if seen == 3 {
			return stop
		}
		return nil
	})
	if !errors.Is(err, stop) || seen != 3 {
		t.Fatalf("err=%v seen=%d", err, seen)
	}
}

func TestWSURL(t *testing.T) {
	cases := map[string]string{
		"http://localhost:8080":  "ws://localhost:8080/ws/game-state",
		"https://idle.example/x": "wss://idle.example/x/ws/game-state",
	}
	for base, want := range cases {
		got, err := NewClient(base).wsURL("/ws/game-state")
		if err != nil {
			t.Fatalf("%s: %v", base, err)
		}
		if !strings.EqualFold(got, want) {
			t.Fatalf("wsURL(%s)=%s want %s", base, got, want)
		}
	}
}
