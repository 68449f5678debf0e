package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"crudeidle/internal/config"
	"crudeidle/internal/db"
	"crudeidle/internal/feed"
	"crudeidle/internal/game"
	"crudeidle/internal/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	config.LoadDotEnv()
	cfg, err := config.LoadWorkerFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.JSON)

	backend, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("db open failed", "err", err)
		os.Exit(1)
	}
	defer backend.Close()

	relay, err := feed.OpenRelay(ctx, cfg.Feed, backend.Pool, cfg.DatabaseURL, log)
	if err != nil {
		log.Error("feed relay failed", "err", err)
		os.Exit(1)
	}
	defer relay.Close()

	settler := game.NewSettler(backend.Store, relay.Publisher, log)

	if cfg.RunOnce {
		u, err := settler.Tick(ctx)
		if err != nil {
			log.Error("tick publish failed", "err", err)
			os.Exit(1)
		}
		log.Info("worker run-once completed", "balance", u.Balance, "just_earned", u.JustEarned)
		return
	}

	log.Info("worker started", "settle_every", cfg.SettleEvery.String(), "relay", cfg.Feed.Relay, "backend", backend.Kind)
	if err := settler.Run(ctx, cfg.SettleEvery); err != nil && !errors.Is(err, game.ErrFeedClosed) {
		log.Error("settlement stopped", "err", err)
		os.Exit(1)
	}
	log.Info("worker shutdown")
}
