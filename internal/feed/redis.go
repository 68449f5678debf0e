package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"crudeidle/internal/game"

	redis "github.com/redis/go-redis/v9"
)

// NewRedisClient connects and pings. A failed ping is returned rather than
// silently disabling the relay.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	if addr == "" {
		return nil, fmt.Errorf("REDIS_ADDR is required for the redis feed relay")
	}
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

type RedisPublisher struct {
	client  *redis.Client
	channel string
}

func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisPublisher{client: client, channel: channel}
}

func (p *RedisPublisher) Publish(ctx context.Context, u game.Update) error {
	payload, err := encodeUpdate(u)
	if err != nil {
		return err
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

type RedisListener struct {
	client  *redis.Client
	channel string
	log     *slog.Logger
}

func NewRedisListener(client *redis.Client, channel string, logger *slog.Logger) *RedisListener {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisListener{client: client, channel: channel, log: logger}
}

// Run blocks until ctx is done or sink is closed.
func (l *RedisListener) Run(ctx context.Context, sink game.Publisher) error {
	sub := l.client.Subscribe(ctx, l.channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", l.channel, err)
	}
	l.log.Info("feed relay listening", "relay", "redis", "channel", l.channel)

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			u, err := decodeUpdate([]byte(msg.Payload))
			if err != nil {
				l.log.Warn("dropping malformed update", "err", err)
				continue
			}
			if err := sink.Publish(ctx, u); err != nil {
				if errors.Is(err, ErrClosed) {
					return err
				}
				l.log.Warn("forward update failed", "err", err)
			}
		}
	}
}
