package strategy

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"aitrader/internal/domain"
)

// BacktestResult holds the summary metrics produced by a backtest run.
type BacktestResult struct {
	Symbol        string
	InitialCash   decimal.Decimal
	FinalEquity   decimal.Decimal
	TotalReturn   decimal.Decimal // fraction, e.g. 0.12 for +12%
	TotalTrades   int             // completed round trips
	WinningTrades int
}

// WinRate returns the fraction of round trips closed at a profit, or zero
// when no trades completed.
func (r *BacktestResult) WinRate() decimal.Decimal {
	if r.TotalTrades == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(r.WinningTrades)).Div(decimal.NewFromInt(int64(r.TotalTrades)))
}

// Backtester replays historical bars through a strategy and tracks a simple
// long-only equity curve. Fills are simulated at the signal bar's close with
// no costs, so results are an upper bound.
type Backtester struct{}

// NewBacktester creates a Backtester.
func NewBacktester() *Backtester {
	return &Backtester{}
}

// Run replays the bar series through the strategy. Bars must be in ascending
// timestamp order.
func (bt *Backtester) Run(ctx context.Context, strat Strategy, symbol string, bars []domain.Bar, initialCash decimal.Decimal) (*BacktestResult, error) {
	if err := strat.Init(ctx); err != nil {
		return nil, fmt.Errorf("initializing strategy %s: %w", strat.Name(), err)
	}

	res := &BacktestResult{Symbol: symbol, InitialCash: initialCash}
	cash := initialCash
	var qty int64
	var entryCost decimal.Decimal

	for i := 1; i <= len(bars); i++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		sig, err := strat.OnBars(ctx, symbol, bars[:i], qty)
		if err != nil {
			return nil, fmt.Errorf("evaluating bar %d: %w", i, err)
		}
		if sig == nil {
			continue
		}

		price := bars[i-1].Close
		notional := price.Mul(decimal.NewFromInt(sig.Quantity))

		switch sig.Side {
		case domain.SideBuy:
			if notional.GreaterThan(cash) {
				continue // can't afford, skip
			}
			cash = cash.Sub(notional)
			qty += sig.Quantity
			entryCost = entryCost.Add(notional)

		case domain.SideSell:
			if sig.Quantity > qty {
				continue
			}
			cash = cash.Add(notional)
			qty -= sig.Quantity
			if qty == 0 {
				res.TotalTrades++
				if notional.GreaterThan(entryCost) {
					res.WinningTrades++
				}
				entryCost = decimal.Zero
			}
		}
	}

	res.FinalEquity = cash
	if qty > 0 && len(bars) > 0 {
		res.FinalEquity = cash.Add(bars[len(bars)-1].Close.Mul(decimal.NewFromInt(qty)))
	}
	if initialCash.IsPositive() {
		res.TotalReturn = res.FinalEquity.Sub(initialCash).Div(initialCash)
	}
	return res, nil
}
