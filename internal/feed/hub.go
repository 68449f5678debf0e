// Package feed fans settlement updates out to live subscribers and relays
// them between processes.
package feed

import (
	"context"
	"log/slog"
	"sync"

	"crudeidle/internal/game"
	"crudeidle/internal/metrics"
)

// ErrClosed is returned by Publish once the hub is closed.
var ErrClosed = game.ErrFeedClosed

const DefaultBuffer = 16

type subscriber struct {
	ch   chan game.Update
	once sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.ch) })
}

// Hub broadcasts every published update to all current subscribers. A
// subscriber whose buffer is full misses that update; Publish never blocks.
type Hub struct {
	mu     sync.RWMutex
	subs   map[*subscriber]struct{}
	closed bool
	log    *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subs: make(map[*subscriber]struct{}),
		log:  logger,
	}
}

// Subscribe returns a channel of updates and a cancel func that detaches it.
// The channel is closed on cancel or when the hub closes.
func (h *Hub) Subscribe(buffer int) (<-chan game.Update, func()) {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	s := &subscriber{ch: make(chan game.Update, buffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		s.close()
		return s.ch, func() {}
	}
	h.subs[s] = struct{}{}
	n := len(h.subs)
	h.mu.Unlock()
	metrics.FeedSubscribers.Set(float64(n))

	cancel := func() {
		h.mu.Lock()
		_, ok := h.subs[s]
		delete(h.subs, s)
		n := len(h.subs)
		h.mu.Unlock()
		if ok {
			metrics.FeedSubscribers.Set(float64(n))
		}
		s.close()
	}
	return s.ch, cancel
}

func (h *Hub) Publish(_ context.Context, u game.Update) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return ErrClosed
	}
	for s := range h.subs {
		select {
		case s.ch <- u:
		default:
			metrics.FeedDropped.Inc()
		}
	}
	return nil
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close detaches every subscriber. Later publishes return ErrClosed.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	subs := h.subs
	h.subs = map[*subscriber]struct{}{}
	h.mu.Unlock()

	for s := range subs {
		s.close()
	}
	metrics.FeedSubscribers.Set(0)
	h.log.Info("feed hub closed", "subscribers", len(subs))
}
