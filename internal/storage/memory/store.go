// Package memory is an in-process store used by tests and by DATABASE_URL=memory.
// Transactions work on a copy of the state and swap it in on success.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"crudeidle/internal/game"

	"github.com/google/uuid"
)

// Fault names accepted by Store.Fail.
const (
	OpLedgerAppend  = "ledger.append"
	OpLedgerTotals  = "ledger.totals"
	OpTotalYield    = "platforms.total_yield"
	OpPlatformWrite = "platforms.write"
	OpItemWrite     = "items.write"
)

type state struct {
	ledger    []game.LedgerEntry
	platforms []game.Platform
	items     []game.Item
	keys      map[string]string
}

func (s *state) clone() *state {
	out := &state{
		ledger:    append([]game.LedgerEntry(nil), s.ledger...),
		platforms: append([]game.Platform(nil), s.platforms...),
		items:     append([]game.Item(nil), s.items...),
		keys:      make(map[string]string, len(s.keys)),
	}
	for k, v := range s.keys {
		out.keys[k] = v
	}
	return out
}

type shared struct {
	mu     sync.Mutex
	st     *state
	faults map[string]error
}

type Store struct {
	db *shared
	tx *state
}

func New() *Store {
	return &Store{db: &shared{
		st:     &state{keys: map[string]string{}},
		faults: map[string]error{},
	}}
}

// Fail makes every later call of op return err. A nil err clears the fault.
func (s *Store) Fail(op string, err error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err == nil {
		delete(s.db.faults, op)
		return
	}
	s.db.faults[op] = err
}

// do runs fn against the transaction state, or against the live state under
// the lock when s is not transactional.
func (s *Store) do(op string, fn func(st *state) error) error {
	if s.tx != nil {
		if err := s.db.faults[op]; err != nil {
			return err
		}
		return fn(s.tx)
	}
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.faults[op]; err != nil {
		return err
	}
	return fn(s.db.st)
}

func (s *Store) Ledger() game.LedgerStore {
	return ledgerStore{s}
}

func (s *Store) Platforms() game.PlatformStore {
	return platformStore{s}
}

func (s *Store) Items() game.ItemStore {
	return itemStore{s}
}

func (s *Store) ClaimIdempotency(_ context.Context, key, action string) error {
	return s.do("idempotency", func(st *state) error {
		if _, ok := st.keys[key]; ok {
			return game.ErrDuplicateIdempotency
		}
		st.keys[key] = action
		return nil
	})
}

// WithTx holds the store lock for the whole of fn, so transactions are
// serialized against each other and against plain calls.
func (s *Store) WithTx(ctx context.Context, fn func(game.Store) error) error {
	if s.tx != nil {
		return fn(s)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	work := s.db.st.clone()
	if err := fn(&Store{db: s.db, tx: work}); err != nil {
		return err
	}
	s.db.st = work
	return nil
}

type ledgerStore struct {
	s *Store
}

func (l ledgerStore) Append(_ context.Context, in game.NewLedgerEntry) (game.LedgerEntry, error) {
	var out game.LedgerEntry
	if in.Amount < 0 {
		return out, fmt.Errorf("%w: %d", game.ErrInvalidAmount, in.Amount)
	}
	dir, err := game.ParseDirection(string(in.Direction))
	if err != nil {
		return out, err
	}
	err = l.s.do(OpLedgerAppend, func(st *state) error {
		now := time.Now().UTC()
		out = game.LedgerEntry{
			ID:        uuid.New(),
			Amount:    in.Amount,
			Direction: dir,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if in.ResourceID != nil {
			id := *in.ResourceID
			out.ResourceID = &id
		}
		st.ledger = append(st.ledger, out)
		return nil
	})
	if err != nil {
		return game.LedgerEntry{}, err
	}
	return out, nil
}

func (l ledgerStore) List(_ context.Context) ([]game.LedgerEntry, error) {
	var out []game.LedgerEntry
	err := l.s.do("ledger.list", func(st *state) error {
		out = append(make([]game.LedgerEntry, 0, len(st.ledger)), st.ledger...)
		return nil
	})
	return out, err
}

func (l ledgerStore) Totals(_ context.Context) (game.LedgerTotals, error) {
	var t game.LedgerTotals
	err := l.s.do(OpLedgerTotals, func(st *state) error {
		for _, e := range st.ledger {
			switch e.Direction {
			case game.Credit:
				t.Credit += e.Amount
			case game.Debit:
				t.Debit += e.Amount
			}
		}
		return nil
	})
	return t, err
}

type platformStore struct {
	s *Store
}

func findPlatform(st *state, id uuid.UUID) int {
	for i := range st.platforms {
		if st.platforms[i].ID == id {
			return i
		}
	}
	return -1
}

func (p platformStore) Get(_ context.Context, id uuid.UUID) (game.Platform, error) {
	var out game.Platform
	err := p.s.do("platforms.get", func(st *state) error {
		i := findPlatform(st, id)
		if i < 0 {
			return fmt.Errorf("%w: platform %s", game.ErrNotFound, id)
		}
		out = st.platforms[i]
		return nil
	})
	return out, err
}

func (p platformStore) List(_ context.Context) ([]game.Platform, error) {
	var out []game.Platform
	err := p.s.do("platforms.list", func(st *state) error {
		out = append(make([]game.Platform, 0, len(st.platforms)), st.platforms...)
		return nil
	})
	return out, err
}

func (p platformStore) Create(_ context.Context, kind game.PlatformKind, baseYield int64) (game.Platform, error) {
	var out game.Platform
	err := p.s.do(OpPlatformWrite, func(st *state) error {
		now := time.Now().UTC()
		out = game.Platform{
			ID:        uuid.New(),
			Kind:      kind,
			Level:     game.BasePlatformLevel,
			YieldRate: baseYield,
			CreatedAt: now,
			UpdatedAt: now,
		}
		st.platforms = append(st.platforms, out)
		return nil
	})
	return out, err
}

func (p platformStore) Upgrade(_ context.Context, id uuid.UUID, yieldIncrement int64, maxLevel int) (game.Platform, error) {
	var out game.Platform
	err := p.s.do(OpPlatformWrite, func(st *state) error {
		i := findPlatform(st, id)
		if i < 0 {
			return fmt.Errorf("%w: platform %s", game.ErrNotFound, id)
		}
		pl := st.platforms[i]
		if pl.Level >= maxLevel {
			return game.ErrMaxLevelReached
		}
		pl.Level++
		pl.YieldRate += yieldIncrement
		pl.UpdatedAt = time.Now().UTC()
		st.platforms[i] = pl
		out = pl
		return nil
	})
	return out, err
}

func (p platformStore) TotalYield(_ context.Context) (int64, error) {
	var total int64
	err := p.s.do(OpTotalYield, func(st *state) error {
		for _, pl := range st.platforms {
			total += pl.YieldRate
		}
		return nil
	})
	return total, err
}

type itemStore struct {
	s *Store
}

func findItem(st *state, id uuid.UUID) int {
	for i := range st.items {
		if st.items[i].ID == id {
			return i
		}
	}
	return -1
}

func (it itemStore) Get(_ context.Context, id uuid.UUID) (game.Item, error) {
	var out game.Item
	err := it.s.do("items.get", func(st *state) error {
		i := findItem(st, id)
		if i < 0 {
			return fmt.Errorf("%w: item %s", game.ErrNotFound, id)
		}
		out = st.items[i]
		return nil
	})
	return out, err
}

func (it itemStore) List(_ context.Context) ([]game.Item, error) {
	var out []game.Item
	err := it.s.do("items.list", func(st *state) error {
		out = append(make([]game.Item, 0, len(st.items)), st.items...)
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Cost != out[j].Cost {
			return out[i].Cost < out[j].Cost
		}
		return out[i].Title < out[j].Title
	})
	return out, err
}

func (it itemStore) Create(_ context.Context, in game.NewItem) (game.Item, error) {
	if in.Cost < 0 {
		return game.Item{}, fmt.Errorf("%w: item cost %d", game.ErrInvalidAmount, in.Cost)
	}
	var out game.Item
	err := it.s.do(OpItemWrite, func(st *state) error {
		now := time.Now().UTC()
		out = game.Item{
			ID:          uuid.New(),
			Title:       in.Title,
			Description: in.Description,
			Thumbnail:   in.Thumbnail,
			Cost:        in.Cost,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		st.items = append(st.items, out)
		return nil
	})
	return out, err
}

func (it itemStore) MarkPurchased(_ context.Context, id uuid.UUID) (game.Item, error) {
	var out game.Item
	err := it.s.do(OpItemWrite, func(st *state) error {
		i := findItem(st, id)
		if i < 0 {
			return fmt.Errorf("%w: item %s", game.ErrNotFound, id)
		}
		item := st.items[i]
		if item.Purchased {
			return game.ErrAlreadyPurchased
		}
		item.Purchased = true
		item.UpdatedAt = time.Now().UTC()
		st.items[i] = item
		out = item
		return nil
	})
	return out, err
}
