package data

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"

	"aitrader/internal/domain"
)

// Compile-time interface check.
var _ Provider = (*StaticProvider)(nil)

// StaticProvider serves preloaded bar series from memory. It backs simulated
// runs and tests.
type StaticProvider struct {
	bars map[string][]domain.Bar
}

// NewStaticProvider creates an empty StaticProvider.
func NewStaticProvider() *StaticProvider {
	return &StaticProvider{bars: make(map[string][]domain.Bar)}
}

// Name returns "static".
func (p *StaticProvider) Name() string {
	return "static"
}

// SetBars installs the bar series for a symbol. Bars must be in ascending
// timestamp order.
func (p *StaticProvider) SetBars(symbol string, bars []domain.Bar) {
	p.bars[symbol] = bars
}

// GetDailyBars returns the trailing lookbackDays bars for the symbol. An
// unknown symbol is an error, matching the live provider's behavior for
// symbols with no history.
func (p *StaticProvider) GetDailyBars(_ context.Context, symbol string, lookbackDays int) ([]domain.Bar, error) {
	bars, ok := p.bars[symbol]
	if !ok {
		return nil, fmt.Errorf("no bars loaded for %s", symbol)
	}
	if len(bars) > lookbackDays {
		bars = bars[len(bars)-lookbackDays:]
	}
	out := make([]domain.Bar, len(bars))
	copy(out, bars)
	return out, nil
}

// SyntheticBars generates a deterministic random-walk daily bar series for
// simulated runs. The same seed always produces the same series.
func SyntheticBars(symbol string, n int, startPrice float64, seed int64) []domain.Bar {
	rng := rand.New(rand.NewSource(seed))
	bars := make([]domain.Bar, 0, n)
	price := startPrice
	day := time.Now().AddDate(0, 0, -n)

	for i := 0; i < n; i++ {
		open := price
		drift := (rng.Float64() - 0.48) * 0.02 // slight upward bias
		price = open * (1 + drift)
		high := open
		low := open
		if price > high {
			high = price
		}
		if price < low {
			low = price
		}
		bars = append(bars, domain.Bar{
			Symbol:    symbol,
			Timestamp: time.Date(day.Year(), day.Month(), day.Day(), 16, 0, 0, 0, time.UTC),
			Open:      decimal.NewFromFloat(open).Round(2),
			High:      decimal.NewFromFloat(high).Round(2),
			Low:       decimal.NewFromFloat(low).Round(2),
			Close:     decimal.NewFromFloat(price).Round(2),
			Volume:    1_000_000 + rng.Int63n(4_000_000),
		})
		day = day.AddDate(0, 0, 1)
	}
	return bars
}
