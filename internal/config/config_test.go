package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"crudeidle/internal/game"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"PORT", "CRUDE_API_ADDR", "DATABASE_URL", "CRUDE_SETTLE_EVERY", "CRUDE_SETTLE_IN_PROCESS",
		"CRUDE_STARTUP_SEED", "CRUDE_STARTER_BALANCE", "CRUDE_CATALOG_FILE", "CRUDE_FEED_RELAY",
		"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB", "ALLOWED_ORIGIN", "LOG_LEVEL", "LOG_FORMAT",
		"DISCORD_BOT_TOKEN", "DISCORD_CHANNEL_ID", "CRUDE_WORKER_RUN_ONCE", "CRD_API_BASE_URL",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadAPIDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadAPIFromEnv()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":8080" || cfg.DatabaseURL != "memory" {
		t.Fatalf("addr=%q db=%q", cfg.Addr, cfg.DatabaseURL)
	}
	if cfg.SettleEvery != 10*time.Second || !cfg.SettleInProc || !cfg.StartupSeed {
		t.Fatalf("unexpected settle defaults: %+v", cfg)
	}
	if cfg.StarterBalance != 1000 || cfg.Feed.Relay != RelayNone {
		t.Fatalf("starter=%d relay=%s", cfg.StarterBalance, cfg.Feed.Relay)
	}
	if cfg.Log.Level != "info" || !cfg.Log.JSON {
		t.Fatalf("log=%+v", cfg.Log)
	}
}

func TestLoadAPIOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("CRUDE_SETTLE_EVERY", "250ms")
	t.Setenv("CRUDE_STARTER_BALANCE", "5000")
	t.Setenv("CRUDE_FEED_RELAY", "Redis")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("LOG_FORMAT", "text")

	cfg, err := LoadAPIFromEnv()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9090" || cfg.SettleEvery != 250*time.Millisecond || cfg.StarterBalance != 5000 {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if cfg.Feed.Relay != RelayRedis || cfg.Feed.RedisDB != 2 || cfg.Log.JSON {
		t.Fatalf("feed=%+v log=%+v", cfg.Feed, cfg.Log)
	}
}

func TestLoadAPIRejectsBadCombos(t *testing.T) {
	cases := map[string]map[string]string{
		"redis without addr":  {"CRUDE_FEED_RELAY": "redis"},
		"unknown relay":       {"CRUDE_FEED_RELAY": "kafka"},
		"negative starter":    {"CRUDE_STARTER_BALANCE": "-1"},
		"half discord":        {"DISCORD_BOT_TOKEN": "abc"},
		"no loop and no feed": {"CRUDE_SETTLE_IN_PROCESS": "false"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range env {
				t.Setenv(k, v)
			}
			if _, err := LoadAPIFromEnv(); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestLoadWorker(t *testing.T) {
	clearEnv(t)
	if _, err := LoadWorkerFromEnv(); err == nil {
		t.Fatalf("expected error without DATABASE_URL")
	}
	t.Setenv("DATABASE_URL", "postgres://localhost/crude")
	t.Setenv("CRUDE_WORKER_RUN_ONCE", "true")
	cfg, err := LoadWorkerFromEnv()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.RunOnce || cfg.SettleEvery != 10*time.Second {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
}

func TestLoadCLI(t *testing.T) {
	clearEnv(t)
	if got := LoadCLIFromEnv().APIBaseURL; got != "http://localhost:8080" {
		t.Fatalf("default base=%q", got)
	}
	t.Setenv("CRD_API_BASE_URL", "https://crude.example.com/")
	if got := LoadCLIFromEnv().APIBaseURL; got != "https://crude.example.com" {
		t.Fatalf("base=%q", got)
	}
}

func TestEnvHelpersFallBackOnGarbage(t *testing.T) {
	t.Setenv("X_DUR", "soon")
	t.Setenv("X_INT", "many")
	t.Setenv("X_BOOL", "perhaps")
	if envDurationDefault("X_DUR", time.Second) != time.Second {
		t.Fatalf("duration fallback")
	}
	if envIntDefault("X_INT", 7) != 7 {
		t.Fatalf("int fallback")
	}
	if !envBoolDefault("X_BOOL", true) {
		t.Fatalf("bool fallback")
	}
}

func TestLoadCatalog(t *testing.T) {
	c, err := LoadCatalog("")
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	if c.MaxLevel != game.MaxPlatformLevel {
		t.Fatalf("max level=%d", c.MaxLevel)
	}

	path := filepath.Join(t.TempDir(), "catalog.toml")
	body := `
max_level = 3

[platforms.pump]
create_cost = 50000
upgrade_cost = 750
yield_increment = 40

[[items]]
title = "Cesu Premium"
description = "born in Cesis"
cost = 30000
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	c, err = LoadCatalog(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.MaxLevel != 3 {
		t.Fatalf("max level=%d want 3", c.MaxLevel)
	}
	pump, _ := c.Spec(game.KindPump)
	if pump.CreateCost != 50000 || pump.UpgradeCost != 750 || pump.YieldIncrement != 40 {
		t.Fatalf("pump=%+v", pump)
	}
	rig, _ := c.Spec(game.KindRig)
	if rig.CreateCost != 1000 {
		t.Fatalf("rig default lost: %+v", rig)
	}
	if len(c.Items) != 1 || c.Items[0].Title != "Cesu Premium" || c.Items[0].Cost != 30000 {
		t.Fatalf("items=%+v", c.Items)
	}
}

func TestLoadCatalogPartialPlatformKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.toml")
	if err := os.WriteFile(path, []byte("[platforms.Rig]\ncreate_cost = 2000\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	c, err := LoadCatalog(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	rig, err := c.Spec(game.KindRig)
	if err != nil {
		t.Fatalf("rig: %v", err)
	}
	if rig.CreateCost != 2000 || rig.UpgradeCost != 100 || rig.YieldIncrement != 5 {
		t.Fatalf("rig=%+v want create 2000, upgrade 100, yield 5", rig)
	}
}

func TestLoadCatalogRejectsBadFiles(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"unknown kind": "[platforms.drill]\ncreate_cost = 1\n",
		"unknown key":  "max_levels = 4\n",
		"bad syntax":   "max_level = = 4\n",
		"negative":     "[[items]]\ntitle = \"x\"\ncost = -5\n",
	}
	for name, body := range cases {
		path := filepath.Join(dir, name+".toml")
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		if _, err := LoadCatalog(path); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
	if _, err := LoadCatalog(filepath.Join(dir, "missing.toml")); err == nil {
		t.Fatalf("missing file: expected error")
	}
}
