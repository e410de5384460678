package engine

import (
	"fmt"

	"github.com/shopspring/decimal"

	"aitrader/internal/config"
	"aitrader/internal/domain"
)

// RiskManager enforces the hard capital-preservation limits. It holds an
// in-memory mirror of today's realized P&L and the known positions, seeded
// from durable state at construction. Check never mutates; mutation happens
// only through RecordFill when a fill is confirmed.
type RiskManager struct {
	limits    config.Risk
	dailyPnL  decimal.Decimal
	positions map[string]domain.Position
}

// NewRiskManager creates a RiskManager seeded with today's realized P&L and
// the currently known positions.
func NewRiskManager(limits config.Risk, dailyPnL decimal.Decimal, positions map[string]domain.Position) *RiskManager {
	mirror := make(map[string]domain.Position, len(positions))
	for sym, pos := range positions {
		mirror[sym] = pos
	}
	return &RiskManager{
		limits:    limits,
		dailyPnL:  dailyPnL,
		positions: mirror,
	}
}

// DailyPnL returns the mirrored realized P&L for the current trading day.
func (rm *RiskManager) DailyPnL() decimal.Decimal {
	return rm.dailyPnL
}

// SetDailyPnL resets the mirrored daily P&L, used after a day rollover.
func (rm *RiskManager) SetDailyPnL(pnl decimal.Decimal) {
	rm.dailyPnL = pnl
}

// Position returns the held quantity for a symbol, zero when flat.
func (rm *RiskManager) Position(symbol string) int64 {
	return rm.positions[symbol].Quantity
}

// Positions returns a copy of the mirrored positions.
func (rm *RiskManager) Positions() map[string]domain.Position {
	out := make(map[string]domain.Position, len(rm.positions))
	for sym, pos := range rm.positions {
		out[sym] = pos
	}
	return out
}

// SetPosition overwrites the mirrored position for a symbol. Zero quantity
// removes it. Used by reconciliation to adopt broker ground truth.
func (rm *RiskManager) SetPosition(symbol string, qty int64, avgPrice decimal.Decimal) {
	if qty == 0 {
		delete(rm.positions, symbol)
		return
	}
	rm.positions[symbol] = domain.Position{Symbol: symbol, Quantity: qty, AvgPrice: avgPrice}
}

// Check evaluates the signal against the limits in fixed order, first
// failure wins. It never mutates state and never returns an error: a limit
// violation is a policy block, not a fault.
func (rm *RiskManager) Check(sig domain.Signal) CheckResult {
	// 1. Daily loss, boundary inclusive: reaching the limit exactly blocks.
	if rm.dailyPnL.LessThanOrEqual(rm.limits.MaxDailyLoss.Neg()) {
		return fail(fmt.Sprintf("daily_pnl=%s <= -max_daily_loss=%s",
			rm.dailyPnL, rm.limits.MaxDailyLoss.Neg()))
	}

	// 2. New-position cap: only buys opening a new symbol count.
	if sig.Side == domain.SideBuy && rm.Position(sig.Symbol) == 0 && len(rm.positions) >= rm.limits.MaxPositions {
		return fail(fmt.Sprintf("positions=%d >= max_positions=%d",
			len(rm.positions), rm.limits.MaxPositions))
	}

	// 3. Quantity cap.
	if sig.Quantity > rm.limits.MaxOrderQuantity {
		return fail(fmt.Sprintf("quantity=%d > max_order_quantity=%d",
			sig.Quantity, rm.limits.MaxOrderQuantity))
	}

	// 4. Per-order notional cap.
	if rm.limits.MaxOrderNotional.IsPositive() && sig.Side == domain.SideBuy {
		notional := sig.Price.Mul(decimal.NewFromInt(sig.Quantity))
		if notional.GreaterThan(rm.limits.MaxOrderNotional) {
			return fail(fmt.Sprintf("notional=%s > max_order_notional=%s",
				notional, rm.limits.MaxOrderNotional))
		}
	}

	// 5. Total exposure cap across all positions plus the new order.
	if rm.limits.MaxPositionsNotional.IsPositive() && sig.Side == domain.SideBuy {
		exposure := sig.Price.Mul(decimal.NewFromInt(sig.Quantity))
		for _, pos := range rm.positions {
			exposure = exposure.Add(pos.Notional())
		}
		if exposure.GreaterThan(rm.limits.MaxPositionsNotional) {
			return fail(fmt.Sprintf("exposure=%s > max_positions_notional=%s",
				exposure, rm.limits.MaxPositionsNotional))
		}
	}

	return pass
}

// RecordFill applies a confirmed fill to the mirrored positions and returns
// the realized P&L delta. Reducing or closing a long realizes P&L against
// the average entry price; opening or adding realizes nothing. The caller
// pushes the delta to durable state in the same logical transaction.
func (rm *RiskManager) RecordFill(symbol string, side domain.Side, qty int64, price decimal.Decimal) decimal.Decimal {
	pos := rm.positions[symbol]

	if side == domain.SideBuy {
		newQty := pos.Quantity + qty
		cost := pos.AvgPrice.Mul(decimal.NewFromInt(pos.Quantity)).
			Add(price.Mul(decimal.NewFromInt(qty)))
		rm.SetPosition(symbol, newQty, cost.Div(decimal.NewFromInt(newQty)))
		return decimal.Zero
	}

	// Sell: realize against average entry. Oversells clamp at flat.
	closed := qty
	if closed > pos.Quantity {
		closed = pos.Quantity
	}
	realized := price.Sub(pos.AvgPrice).Mul(decimal.NewFromInt(closed))
	rm.SetPosition(symbol, pos.Quantity-closed, pos.AvgPrice)

	rm.dailyPnL = rm.dailyPnL.Add(realized)
	return realized
}
