// Package data provides historical bar access for strategy computation and
// symbol eligibility checks.
package data

import (
	"context"

	"github.com/shopspring/decimal"

	"aitrader/internal/domain"
)

// Provider serves daily OHLCV history. Implementations must return bars in
// ascending timestamp order.
type Provider interface {
	// Name returns the provider identifier (e.g. "alpaca", "static").
	Name() string

	// GetDailyBars returns up to lookbackDays of daily bars for the symbol,
	// ending at the most recent finished session.
	GetDailyBars(ctx context.Context, symbol string, lookbackDays int) ([]domain.Bar, error)
}

// AvgVolume returns the mean volume over the trailing days bars, or zero if
// no bars are given. Fewer bars than requested still produce an average over
// what exists.
func AvgVolume(bars []domain.Bar, days int) decimal.Decimal {
	if len(bars) == 0 || days <= 0 {
		return decimal.Zero
	}
	if len(bars) > days {
		bars = bars[len(bars)-days:]
	}
	var total int64
	for _, b := range bars {
		total += b.Volume
	}
	return decimal.NewFromInt(total).Div(decimal.NewFromInt(int64(len(bars))))
}
