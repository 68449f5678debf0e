package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	RelayNone     = "none"
	RelayPostgres = "postgres"
	RelayRedis    = "redis"
)

type APIConfig struct {
	Addr           string
	DatabaseURL    string
	SettleEvery    time.Duration
	SettleInProc   bool
	StartupSeed    bool
	StarterBalance int64
	CatalogFile    string
	AllowedOrigin  string
	Feed           FeedConfig
	Log            LogConfig
	Discord        DiscordConfig
}

type WorkerConfig struct {
	DatabaseURL string
	SettleEvery time.Duration
	RunOnce     bool
	Feed        FeedConfig
	Log         LogConfig
}

type FeedConfig struct {
	Relay         string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

type LogConfig struct {
	Level string
	JSON  bool
}

type DiscordConfig struct {
	BotToken  string
	ChannelID string
}

type CLIConfig struct {
	APIBaseURL string
}

// LoadDotEnv reads .env into the environment when the file exists. Variables
// already set win.
func LoadDotEnv() {
	_ = godotenv.Load()
}

func LoadAPIFromEnv() (APIConfig, error) {
	addr := os.Getenv("PORT")
	if addr != "" {
		if !strings.HasPrefix(addr, ":") {
			addr = ":" + addr
		}
	} else {
		addr = envDefault("CRUDE_API_ADDR", ":8080")
	}

	feed, err := loadFeed()
	if err != nil {
		return APIConfig{}, err
	}
	cfg := APIConfig{
		Addr:           addr,
		DatabaseURL:    envDefault("DATABASE_URL", "memory"),
		SettleEvery:    envDurationDefault("CRUDE_SETTLE_EVERY", 10*time.Second),
		SettleInProc:   envBoolDefault("CRUDE_SETTLE_IN_PROCESS", true),
		StartupSeed:    envBoolDefault("CRUDE_STARTUP_SEED", true),
		StarterBalance: envIntDefault("CRUDE_STARTER_BALANCE", 1000),
		CatalogFile:    strings.TrimSpace(os.Getenv("CRUDE_CATALOG_FILE")),
		AllowedOrigin:  strings.TrimSpace(os.Getenv("ALLOWED_ORIGIN")),
		Feed:           feed,
		Log:            loadLog(),
		Discord: DiscordConfig{
			BotToken:  strings.TrimSpace(os.Getenv("DISCORD_BOT_TOKEN")),
			ChannelID: strings.TrimSpace(os.Getenv("DISCORD_CHANNEL_ID")),
		},
	}
	if cfg.SettleEvery <= 0 {
		return cfg, fmt.Errorf("CRUDE_SETTLE_EVERY must be positive")
	}
	if cfg.StarterBalance < 0 {
		return cfg, fmt.Errorf("CRUDE_STARTER_BALANCE must be >= 0")
	}
	if (cfg.Discord.BotToken == "") != (cfg.Discord.ChannelID == "") {
		return cfg, fmt.Errorf("DISCORD_BOT_TOKEN and DISCORD_CHANNEL_ID must be set together")
	}
	if !cfg.SettleInProc && cfg.Feed.Relay == RelayNone {
		return cfg, fmt.Errorf("CRUDE_SETTLE_IN_PROCESS=false needs CRUDE_FEED_RELAY to receive worker updates")
	}
	return cfg, nil
}

func LoadWorkerFromEnv() (WorkerConfig, error) {
	feed, err := loadFeed()
	if err != nil {
		return WorkerConfig{}, err
	}
	cfg := WorkerConfig{
		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
		SettleEvery: envDurationDefault("CRUDE_SETTLE_EVERY", 10*time.Second),
		RunOnce:     envBoolDefault("CRUDE_WORKER_RUN_ONCE", false),
		Feed:        feed,
		Log:         loadLog(),
	}
	if cfg.DatabaseURL == "" || cfg.DatabaseURL == "memory" {
		return cfg, fmt.Errorf("DATABASE_URL must point at a shared database for the worker")
	}
	if cfg.SettleEvery <= 0 {
		return cfg, fmt.Errorf("CRUDE_SETTLE_EVERY must be positive")
	}
	return cfg, nil
}

func LoadCLIFromEnv() CLIConfig {
	return CLIConfig{
		APIBaseURL: strings.TrimRight(envDefault("CRD_API_BASE_URL", "http://localhost:8080"), "/"),
	}
}

func loadFeed() (FeedConfig, error) {
	cfg := FeedConfig{
		Relay:         strings.ToLower(envDefault("CRUDE_FEED_RELAY", RelayNone)),
		RedisAddr:     strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       int(envIntDefault("REDIS_DB", 0)),
	}
	switch cfg.Relay {
	case RelayNone, RelayPostgres:
	case RelayRedis:
		if cfg.RedisAddr == "" {
			return cfg, fmt.Errorf("REDIS_ADDR is required when CRUDE_FEED_RELAY=redis")
		}
	default:
		return cfg, fmt.Errorf("unknown CRUDE_FEED_RELAY %q", cfg.Relay)
	}
	return cfg, nil
}

func loadLog() LogConfig {
	return LogConfig{
		Level: envDefault("LOG_LEVEL", "info"),
		JSON:  strings.ToLower(envDefault("LOG_FORMAT", "json")) != "text",
	}
}

func envDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envDurationDefault(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envIntDefault(key string, fallback int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func envBoolDefault(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
