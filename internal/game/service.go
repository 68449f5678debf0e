package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"crudeidle/internal/metrics"

	"github.com/google/uuid"
)

// WinNotifier is told once an item purchase completes the collection.
type WinNotifier interface {
	NotifyWin(ctx context.Context, summary Summary) error
}

type Service struct {
	store    Store
	catalog  Catalog
	log      *slog.Logger
	notifier WinNotifier
}

func NewService(store Store, catalog Catalog, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:   store,
		catalog: catalog,
		log:     logger,
	}
}

func (s *Service) SetNotifier(n WinNotifier) {
	s.notifier = n
}

func (s *Service) Catalog() Catalog {
	return s.catalog
}

// SeedDefaults fills an empty item table from the catalog and credits
// starterBalance to an empty ledger.
func (s *Service) SeedDefaults(ctx context.Context, starterBalance int64) error {
	if starterBalance < 0 {
		return fmt.Errorf("%w: starter balance %d", ErrInvalidAmount, starterBalance)
	}
	return s.store.WithTx(ctx, func(st Store) error {
		items, err := st.Items().List(ctx)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			for _, it := range s.catalog.Items {
				if _, err := st.Items().Create(ctx, it); err != nil {
					return fmt.Errorf("seed item %q: %w", it.Title, err)
				}
			}
			s.log.Info("seeded items", "count", len(s.catalog.Items))
		}

		entries, err := st.Ledger().List(ctx)
		if err != nil {
			return err
		}
		if len(entries) == 0 && starterBalance > 0 {
			system := SystemResourceID
			if _, err := st.Ledger().Append(ctx, NewLedgerEntry{
				ResourceID: &system,
				Amount:     starterBalance,
				Direction:  Credit,
			}); err != nil {
				return fmt.Errorf("seed starter balance: %w", err)
			}
			s.log.Info("seeded starter balance", "amount", starterBalance)
		}
		return nil
	})
}

func (s *Service) ListPlatforms(ctx context.Context) ([]Platform, error) {
	return s.store.Platforms().List(ctx)
}

func (s *Service) ListItems(ctx context.Context) ([]Item, error) {
	return s.store.Items().List(ctx)
}

func (s *Service) Ledger(ctx context.Context) ([]LedgerEntry, error) {
	return s.store.Ledger().List(ctx)
}

func (s *Service) AvailableBalance(ctx context.Context) (int64, error) {
	return NewCalculator(s.store).AvailableBalance(ctx)
}

func (s *Service) PeriodEarnings(ctx context.Context) (int64, error) {
	return NewCalculator(s.store).PeriodEarnings(ctx)
}

func (s *Service) Balance(ctx context.Context) (BalanceView, error) {
	var out BalanceView
	calc := NewCalculator(s.store)
	balance, err := calc.AvailableBalance(ctx)
	if err != nil {
		return out, err
	}
	earnings, err := calc.PeriodEarnings(ctx)
	if err != nil {
		return out, err
	}
	out.Balance = balance
	out.PeriodEarnings = earnings
	return out, nil
}

func (s *Service) Summary(ctx context.Context) (Summary, error) {
	var out Summary
	platforms, err := s.store.Platforms().List(ctx)
	if err != nil {
		return out, err
	}
	totals, err := s.store.Ledger().Totals(ctx)
	if err != nil {
		return out, err
	}
	items, err := s.store.Items().List(ctx)
	if err != nil {
		return out, err
	}
	out.Platforms = platforms
	out.Earned = totals.Credit
	out.Spent = totals.Debit
	out.ItemsTotal = len(items)
	for _, it := range items {
		if it.Purchased {
			out.ItemsPurchased++
		}
	}
	out.Won = out.ItemsTotal > 0 && out.ItemsPurchased == out.ItemsTotal
	return out, nil
}

func (s *Service) CreatePlatform(ctx context.Context, kind, idem string) (MutationResult, error) {
	k, err := ParsePlatformKind(kind)
	if err != nil {
		metrics.ObserveMutation(string(ActionCreatePlatform), outcomeOf(err))
		return MutationResult{}, err
	}
	return s.Execute(ctx, Action{Type: ActionCreatePlatform, PlatformKind: k, IdempotencyKey: idem})
}

func (s *Service) UpgradePlatform(ctx context.Context, id uuid.UUID, idem string) (MutationResult, error) {
	return s.Execute(ctx, Action{Type: ActionUpgradePlatform, ResourceID: id, IdempotencyKey: idem})
}

func (s *Service) PurchaseItem(ctx context.Context, id uuid.UUID, idem string) (MutationResult, error) {
	return s.Execute(ctx, Action{Type: ActionPurchaseItem, ResourceID: id, IdempotencyKey: idem})
}

// Execute runs one funds-gated mutation: resolve the cost, check it against the
// available balance, mutate the resource and record the debit. The balance
// check, the mutation and the debit commit together or not at all.
func (s *Service) Execute(ctx context.Context, a Action) (MutationResult, error) {
	out, err := s.execute(ctx, a)
	metrics.ObserveMutation(string(a.Type), outcomeOf(err))
	if err != nil {
		return out, err
	}
	s.log.Info("mutation applied", "action", a.Type, "cost", out.Cost, "balance", out.Balance)

	if a.Type == ActionPurchaseItem {
		won, err := s.allPurchased(ctx)
		if err != nil {
			return out, err
		}
		out.Won = won
		if won {
			s.announceWin(ctx)
		}
	}
	return out, nil
}

func (s *Service) execute(ctx context.Context, a Action) (MutationResult, error) {
	var out MutationResult
	switch a.Type {
	case ActionPurchaseItem, ActionUpgradePlatform:
		if a.ResourceID == uuid.Nil {
			return out, fmt.Errorf("%w: resource id is required", ErrNotFound)
		}
	case ActionCreatePlatform:
		if _, err := s.catalog.Spec(a.PlatformKind); err != nil {
			return out, err
		}
	default:
		return out, fmt.Errorf("%w: %q", ErrInvalidAction, a.Type)
	}
	a.IdempotencyKey = strings.TrimSpace(a.IdempotencyKey)

	const maxAttempts = 8
	retryDelay := 75 * time.Millisecond
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err := s.store.WithTx(ctx, func(st Store) error {
			out = MutationResult{}
			if a.IdempotencyKey != "" {
				if err := st.ClaimIdempotency(ctx, a.IdempotencyKey, string(a.Type)); err != nil {
					return err
				}
			}
			return s.apply(ctx, st, a, &out)
		})
		if err == nil {
			return out, nil
		}
		if !errors.Is(err, ErrTxConflict) {
			return MutationResult{}, err
		}
		if attempt == maxAttempts-1 {
			break
		}
		metrics.MutationRetries.Inc()
		if err := sleepWithContext(ctx, retryDelay); err != nil {
			return MutationResult{}, err
		}
		if retryDelay < 1200*time.Millisecond {
			retryDelay *= 2
		}
	}
	return MutationResult{}, ErrTxConflict
}

func (s *Service) apply(ctx context.Context, st Store, a Action, out *MutationResult) error {
	cost, err := s.resolveCost(ctx, st, a)
	if err != nil {
		return err
	}

	balance, err := NewCalculator(st).AvailableBalance(ctx)
	if err != nil {
		return fmt.Errorf("read balance: %w", err)
	}
	if cost > balance {
		return fmt.Errorf("%w: cost %d, balance %d", ErrInsufficientFunds, cost, balance)
	}

	var resourceID uuid.UUID
	switch a.Type {
	case ActionCreatePlatform:
		spec, _ := s.catalog.Spec(a.PlatformKind)
		p, err := st.Platforms().Create(ctx, a.PlatformKind, spec.YieldIncrement)
		if err != nil {
			return err
		}
		out.Platform = &p
		resourceID = p.ID
	case ActionUpgradePlatform:
		current, err := st.Platforms().Get(ctx, a.ResourceID)
		if err != nil {
			return err
		}
		spec, err := s.catalog.Spec(current.Kind)
		if err != nil {
			return err
		}
		p, err := st.Platforms().Upgrade(ctx, a.ResourceID, spec.YieldIncrement, s.catalog.MaxLevel)
		if err != nil {
			return err
		}
		out.Platform = &p
		resourceID = p.ID
	case ActionPurchaseItem:
		it, err := st.Items().MarkPurchased(ctx, a.ResourceID)
		if err != nil {
			return err
		}
		out.Item = &it
		resourceID = it.ID
	}

	if _, err := st.Ledger().Append(ctx, NewLedgerEntry{
		ResourceID: &resourceID,
		Amount:     cost,
		Direction:  Debit,
	}); err != nil {
		return fmt.Errorf("record debit: %w", err)
	}
	out.Cost = cost
	out.Balance = balance - cost
	return nil
}

// resolveCost only prices the action. A purchased item or a maxed platform
// is refused by the store's compare-and-swap after the funds gate, so a
// short balance is always reported first.
func (s *Service) resolveCost(ctx context.Context, st Store, a Action) (int64, error) {
	switch a.Type {
	case ActionCreatePlatform:
		spec, err := s.catalog.Spec(a.PlatformKind)
		if err != nil {
			return 0, err
		}
		return spec.CreateCost, nil
	case ActionUpgradePlatform:
		p, err := st.Platforms().Get(ctx, a.ResourceID)
		if err != nil {
			return 0, err
		}
		spec, err := s.catalog.Spec(p.Kind)
		if err != nil {
			return 0, err
		}
		return spec.UpgradeCost, nil
	case ActionPurchaseItem:
		it, err := st.Items().Get(ctx, a.ResourceID)
		if err != nil {
			return 0, err
		}
		return it.Cost, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidAction, a.Type)
}

func (s *Service) allPurchased(ctx context.Context) (bool, error) {
	items, err := s.store.Items().List(ctx)
	if err != nil {
		return false, err
	}
	if len(items) == 0 {
		return false, nil
	}
	for _, it := range items {
		if !it.Purchased {
			return false, nil
		}
	}
	return true, nil
}

func (s *Service) announceWin(ctx context.Context) {
	s.log.Info("all items purchased, game won")
	if s.notifier == nil {
		return
	}
	summary, err := s.Summary(ctx)
	if err != nil {
		s.log.Warn("win summary failed", "err", err)
		return
	}
	go func() {
		nctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.notifier.NotifyWin(nctx, summary); err != nil {
			s.log.Warn("win notification failed", "err", err)
		}
	}()
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrAlreadyPurchased), errors.Is(err, ErrMaxLevelReached):
		return "rejected"
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrInvalidKind), errors.Is(err, ErrInvalidAction):
		return "invalid"
	case errors.Is(err, ErrDuplicateIdempotency):
		return "duplicate"
	case errors.Is(err, ErrTxConflict):
		return "conflict"
	default:
		return "error"
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
