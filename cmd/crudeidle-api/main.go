package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crudeidle/internal/api"
	"crudeidle/internal/config"
	"crudeidle/internal/db"
	"crudeidle/internal/feed"
	"crudeidle/internal/game"
	"crudeidle/internal/logger"
	"crudeidle/internal/notify"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	config.LoadDotEnv()
	cfg, err := config.LoadAPIFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.JSON)

	catalog, err := config.LoadCatalog(cfg.CatalogFile)
	if err != nil {
		log.Error("load catalog", "err", err)
		os.Exit(1)
	}

	backend, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("db open failed", "err", err)
		os.Exit(1)
	}
	defer backend.Close()
	log.Info("store ready", "backend", backend.Kind)

	gameSvc := game.NewService(backend.Store, catalog, log)
	if cfg.StartupSeed {
		if err := gameSvc.SeedDefaults(ctx, cfg.StarterBalance); err != nil {
			log.Error("seed defaults failed", "err", err)
			os.Exit(1)
		}
	}

	discord, err := notify.NewDiscord(cfg.Discord.BotToken, cfg.Discord.ChannelID)
	if err != nil {
		log.Error("discord init failed", "err", err)
		os.Exit(1)
	}
	if discord != nil {
		gameSvc.SetNotifier(discord)
	}

	hub := feed.NewHub(log)
	defer hub.Close()

	if cfg.SettleInProc {
		settler := game.NewSettler(backend.Store, hub, log)
		handle := game.StartSettlement(ctx, settler, cfg.SettleEvery)
		defer handle.Stop()
		log.Info("settlement started", "every", cfg.SettleEvery.String())
	} else {
		relay, err := feed.OpenRelay(ctx, cfg.Feed, backend.Pool, cfg.DatabaseURL, log)
		if err != nil {
			log.Error("feed relay failed", "err", err)
			os.Exit(1)
		}
		defer relay.Close()
		go func() {
			if err := relay.Listener.Run(ctx, hub); err != nil && !errors.Is(err, feed.ErrClosed) {
				log.Error("feed relay stopped", "err", err)
			}
		}()
	}

	server := api.New(cfg, log, gameSvc, hub)
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		// close the hub first so websocket handlers return before Shutdown waits
		hub.Close()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	log.Info("crudeidle api listening", "addr", cfg.Addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server failed", "err", err)
		os.Exit(1)
	}
}
