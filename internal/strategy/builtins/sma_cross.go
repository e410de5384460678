// Package builtins provides the strategy implementations that ship with the
// trading bot.
package builtins

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"aitrader/internal/domain"
	"aitrader/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*SMACross)(nil)

// SMACross compares a fast and a slow simple moving average of daily closes.
// It signals a buy when the fast SMA is above the slow SMA and the position
// is flat, and a sell of the full position when the fast SMA is below the
// slow SMA while long. With enough history the two signals are mutually
// exclusive, so a symbol is either being entered, held, or exited.
type SMACross struct {
	fastPeriod int
	slowPeriod int
	orderQty   int64
}

// NewSMACross creates an SMACross with the given periods. orderQty is the
// quantity attached to buy signals; sells always cover the whole position.
func NewSMACross(fast, slow int, orderQty int64) *SMACross {
	return &SMACross{
		fastPeriod: fast,
		slowPeriod: slow,
		orderQty:   orderQty,
	}
}

// Name returns "SMA".
func (s *SMACross) Name() string {
	return "SMA"
}

// Init validates the configured periods.
func (s *SMACross) Init(_ context.Context) error {
	if s.fastPeriod <= 0 || s.slowPeriod <= 0 {
		return fmt.Errorf("sma periods must be positive, got fast=%d slow=%d", s.fastPeriod, s.slowPeriod)
	}
	if s.fastPeriod >= s.slowPeriod {
		return fmt.Errorf("fast period %d must be shorter than slow period %d", s.fastPeriod, s.slowPeriod)
	}
	if s.orderQty <= 0 {
		return fmt.Errorf("order quantity must be positive, got %d", s.orderQty)
	}
	return nil
}

// OnBars evaluates the SMA state for one symbol. Insufficient history for
// the slow average yields no signal, never an error.
func (s *SMACross) OnBars(_ context.Context, symbol string, bars []domain.Bar, positionQty int64) (*domain.Signal, error) {
	if len(bars) < s.slowPeriod {
		return nil, nil
	}

	fast := sma(bars, s.fastPeriod)
	slow := sma(bars, s.slowPeriod)
	last := bars[len(bars)-1]

	switch {
	case fast.GreaterThan(slow) && positionQty == 0:
		return &domain.Signal{
			Symbol:    symbol,
			Side:      domain.SideBuy,
			Quantity:  s.orderQty,
			Price:     last.Close,
			Timestamp: last.Timestamp,
			Reason:    fmt.Sprintf("sma%d=%s > sma%d=%s", s.fastPeriod, fast.StringFixed(2), s.slowPeriod, slow.StringFixed(2)),
		}, nil

	case fast.LessThan(slow) && positionQty > 0:
		return &domain.Signal{
			Symbol:    symbol,
			Side:      domain.SideSell,
			Quantity:  positionQty,
			Price:     last.Close,
			Timestamp: last.Timestamp,
			Reason:    fmt.Sprintf("sma%d=%s < sma%d=%s", s.fastPeriod, fast.StringFixed(2), s.slowPeriod, slow.StringFixed(2)),
		}, nil
	}
	return nil, nil
}

// sma averages the closes of the trailing n bars. Callers guarantee
// len(bars) >= n.
func sma(bars []domain.Bar, n int) decimal.Decimal {
	window := bars[len(bars)-n:]
	sum := decimal.Zero
	for _, b := range window {
		sum = sum.Add(b.Close)
	}
	return sum.Div(decimal.NewFromInt(int64(n)))
}
