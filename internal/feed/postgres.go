package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"crudeidle/internal/game"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
)

// PGPublisher sends updates with pg_notify on the shared pgx pool.
type PGPublisher struct {
	pool    *pgxpool.Pool
	channel string
}

func NewPGPublisher(pool *pgxpool.Pool, channel string) *PGPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &PGPublisher{pool: pool, channel: channel}
}

func (p *PGPublisher) Publish(ctx context.Context, u game.Update) error {
	payload, err := encodeUpdate(u)
	if err != nil {
		return err
	}
	if _, err := p.pool.Exec(ctx, `SELECT pg_notify($1, $2)`, p.channel, string(payload)); err != nil {
		return fmt.Errorf("pg_notify: %w", err)
	}
	return nil
}

// PGListener LISTENs on a dedicated lib/pq connection and forwards every
// notification to a local publisher, normally the API's Hub.
type PGListener struct {
	dsn     string
	channel string
	log     *slog.Logger
}

func NewPGListener(dsn, channel string, logger *slog.Logger) *PGListener {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PGListener{dsn: dsn, channel: channel, log: logger}
}

// Run blocks until ctx is done or sink is closed.
func (l *PGListener) Run(ctx context.Context, sink game.Publisher) error {
	listener := pq.NewListener(l.dsn, time.Second, 30*time.Second, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			l.log.Warn("feed listener event", "event", int(ev), "err", err)
		}
	})
	defer listener.Close()

	if err := listener.Listen(l.channel); err != nil {
		return fmt.Errorf("listen %s: %w", l.channel, err)
	}
	l.log.Info("feed relay listening", "relay", "postgres", "channel", l.channel)

	ping := time.NewTicker(90 * time.Second)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ping.C:
			if err := listener.Ping(); err != nil {
				l.log.Warn("feed listener ping failed", "err", err)
			}
		case n := <-listener.Notify:
			// nil after a reconnect; anything sent meanwhile is lost
			if n == nil {
				continue
			}
			u, err := decodeUpdate([]byte(n.Extra))
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
