package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"crudeidle/internal/metrics"
)

const DefaultSettleEvery = 10 * time.Second

// ErrFeedClosed is returned by a Publisher that will never accept another
// update. The settlement loop stops when it sees it.
var ErrFeedClosed = errors.New("feed closed")

type Publisher interface {
	Publish(ctx context.Context, u Update) error
}

// Subscriber is implemented by publishers that can also hand out live feeds.
type Subscriber interface {
	Subscribe(buffer int) (<-chan Update, func())
}

// Settler credits one period of platform earnings per tick and publishes the
// resulting balance.
type Settler struct {
	store Store
	pub   Publisher
	log   *slog.Logger
}

func NewSettler(store Store, pub Publisher, logger *slog.Logger) *Settler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Settler{store: store, pub: pub, log: logger}
}

// Tick never fails on a store error: earnings and balance degrade to 0 and a
// failed credit is skipped. Only the publish error is returned.
func (s *Settler) Tick(ctx context.Context) (Update, error) {
	calc := NewCalculator(s.store)

	earned, err := calc.PeriodEarnings(ctx)
	if err != nil {
		s.log.Error("settlement earnings failed", "err", err)
		metrics.ObserveStepFailure("earnings")
		earned = 0
	}

	system := SystemResourceID
	if _, err := s.store.Ledger().Append(ctx, NewLedgerEntry{
		ResourceID: &system,
		Amount:     earned,
		Direction:  Credit,
	}); err != nil {
		s.log.Error("settlement credit failed", "amount", earned, "err", err)
		metrics.ObserveStepFailure("credit")
	}

	balance, err := calc.AvailableBalance(ctx)
	if err != nil {
		s.log.Error("settlement balance failed", "err", err)
		metrics.ObserveStepFailure("balance")
		balance = 0
	}

	u := Update{Balance: balance, JustEarned: earned}
	metrics.ObserveTick(earned, balance)
	s.log.Debug("settlement tick", "earned", earned, "balance", balance)

	if s.pub == nil {
		return u, nil
	}
	if err := s.pub.Publish(ctx, u); err != nil {
		return u, err
	}
	return u, nil
}

// Run ticks every interval until ctx is done or the publisher is closed.
// Other publish errors are logged and the loop keeps going.
func (s *Settler) Run(ctx context.Context, every time.Duration) error {
	if every <= 0 {
		every = DefaultSettleEvery
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	s.log.Info("settlement loop started", "every", every.String())
	for {
		select {
		case <-ctx.Done():
			s.log.Info("settlement loop stopped", "reason", ctx.Err())
			return nil
		case <-ticker.C:
			_, err := s.Tick(ctx)
			if err == nil {
				continue
			}
			if errors.Is(err, ErrFeedClosed) {
				s.log.Info("settlement loop stopped", "reason", "feed closed")
				return err
			}
			if ctx.Err() != nil {
				return nil
			}
			s.log.Warn("publish update failed", "err", err)
			metrics.ObserveStepFailure("publish")
		}
	}
}

// SettlementHandle controls a loop started by StartSettlement.
type SettlementHandle struct {
	settler *Settler
	cancel  context.CancelFunc
	done    chan struct{}

	once sync.Once
	err  error
}

// StartSettlement runs s.Run on its own goroutine. The loop ends when ctx is
// done, when Stop is called or when the publisher reports ErrFeedClosed.
func StartSettlement(ctx context.Context, s *Settler, every time.Duration) *SettlementHandle {
	ctx, cancel := context.WithCancel(ctx)
	h := &SettlementHandle{
		settler: s,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go func() {
		defer close(h.done)
		defer cancel()
		h.err = s.Run(ctx, every)
	}()
	return h
}

// Stop cancels the loop and waits for it to exit.
func (h *SettlementHandle) Stop() {
	h.once.Do(h.cancel)
	<-h.done
}

func (h *SettlementHandle) Done() <-chan struct{} {
	return h.done
}

// Err reports why the loop ended. It is only meaningful after Done is closed.
func (h *SettlementHandle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

// Subscribe attaches a live feed to the loop's publisher.
func (h *SettlementHandle) Subscribe(buffer int) (<-chan Update, func(), error) {
	sub, ok := h.settler.pub.(Subscriber)
	if !ok {
		return nil, nil, fmt.Errorf("publisher %T does not support subscriptions", h.settler.pub)
	}
	ch, cancel := sub.Subscribe(buffer)
	return ch, cancel, nil
}
