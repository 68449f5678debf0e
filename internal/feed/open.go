package feed

import (
	"context"
	"fmt"
	"log/slog"

	"crudeidle/internal/config"
	"crudeidle/internal/game"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// Relay carries settlement updates between a worker and the API processes.
// Publisher is what the worker's Settler sends to; Listener is what the API
// runs to feed its Hub. Both are nil for RelayNone.
type Relay struct {
	Publisher game.Publisher
	Listener  Listener

	redis *redis.Client
}

func (r *Relay) Close() {
	if r != nil && r.redis != nil {
		_ = r.redis.Close()
	}
}

// OpenRelay builds the relay selected by cfg.Relay. The postgres relay
// needs the pool (for NOTIFY) and the DSN (for the LISTEN connection).
func OpenRelay(ctx context.Context, cfg config.FeedConfig, pool *pgxpool.Pool, dsn string, logger *slog.Logger) (*Relay, error) {
	switch cfg.Relay {
	case config.RelayNone, "":
		return &Relay{}, nil
	case config.RelayPostgres:
		if pool == nil {
			return nil, fmt.Errorf("postgres feed relay requires a postgres DATABASE_URL")
		}
		return &Relay{
			Publisher: NewPGPublisher(pool, DefaultChannel),
			Listener:  NewPGListener(dsn, DefaultChannel, logger),
		}, nil
	case config.RelayRedis:
		client, err := NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, err
		}
		return &Relay{
			Publisher: NewRedisPublisher(client, DefaultChannel),
			Listener:  NewRedisListener(client, DefaultChannel, logger),
			redis:     client,
		}, nil
	default:
		return nil, fmt.Errorf("unknown feed relay %q", cfg.Relay)
	}
}
