package game

import "context"

// Calculator derives balances from the stores on every call. It keeps no state.
type Calculator struct {
	ledger    LedgerStore
	platforms PlatformStore
}

func NewCalculator(st Store) Calculator {
	return Calculator{ledger: st.Ledger(), platforms: st.Platforms()}
}

func (c Calculator) AvailableBalance(ctx context.Context) (int64, error) {
	totals, err := c.ledger.Totals(ctx)
	if err != nil {
		return 0, err
	}
	return totals.Available(), nil
}

func (c Calculator) PeriodEarnings(ctx context.Context) (int64, error) {
	return c.platforms.TotalYield(ctx)
}
