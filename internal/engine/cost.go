package engine

import (
	"fmt"

	"github.com/shopspring/decimal"

	"aitrader/internal/config"
	"aitrader/internal/domain"
)

// Pricing is the cost model's verdict on one order: whether it may proceed,
// and at what type and price.
type Pricing struct {
	OK     bool
	Reason string

	OrderType     domain.OrderType
	LimitPrice    decimal.Decimal // zero for market orders
	ExpectedPrice decimal.Decimal
	SpreadBps     decimal.Decimal
}

// CostModel evaluates spreads and prices orders. With limit orders enabled
// it improves on the touch by a quarter of the spread; with a minimum edge
// configured it refuses orders whose price improvement over the reference is
// too small to matter.
type CostModel struct {
	cfg config.Cost
}

// NewCostModel creates a CostModel with the given cost controls.
func NewCostModel(cfg config.Cost) *CostModel {
	return &CostModel{cfg: cfg}
}

// Price evaluates the quote for the given side and reference price. An
// invalid quote skips the spread and edge checks and prices a market order
// against the reference; eligibility has already decided whether trading
// without a quote is allowed at all.
func (m *CostModel) Price(quote domain.Quote, side domain.Side, refPrice decimal.Decimal) Pricing {
	if !quote.Valid() {
		return Pricing{OK: true, OrderType: domain.OrderTypeMarket, ExpectedPrice: refPrice}
	}

	spreadBps := quote.SpreadBps()
	if m.cfg.MaxSpreadBps.IsPositive() && spreadBps.GreaterThan(m.cfg.MaxSpreadBps) {
		return Pricing{
			Reason:    fmt.Sprintf("spread=%sbps > max_spread=%sbps", spreadBps.StringFixed(2), m.cfg.MaxSpreadBps),
			SpreadBps: spreadBps,
		}
	}

	if !m.cfg.UseLimitOrders {
		return Pricing{
			OK:            true,
			OrderType:     domain.OrderTypeMarket,
			ExpectedPrice: quote.ExpectedEntryPrice(side),
			SpreadBps:     spreadBps,
		}
	}

	limit := limitPrice(quote, side)

	// Edge: signed improvement of the limit over the reference, in bps.
	// Buys need to pay meaningfully less than the reference, sells to
	// receive meaningfully more.
	if m.cfg.MinEdgeBps.IsPositive() && refPrice.IsPositive() {
		edgeBps := limit.Sub(refPrice).Div(refPrice).Mul(decimal.NewFromInt(10000))
		insufficient := false
		if side == domain.SideBuy {
			insufficient = edgeBps.GreaterThanOrEqual(m.cfg.MinEdgeBps.Neg())
		} else {
			insufficient = edgeBps.LessThanOrEqual(m.cfg.MinEdgeBps)
		}
		if insufficient {
			return Pricing{
				Reason:    fmt.Sprintf("edge=%sbps insufficient (min_edge=%sbps)", edgeBps.StringFixed(2), m.cfg.MinEdgeBps),
				SpreadBps: spreadBps,
			}
		}
	}

	return Pricing{
		OK:            true,
		OrderType:     domain.OrderTypeLimit,
		LimitPrice:    limit,
		ExpectedPrice: limit,
		SpreadBps:     spreadBps,
	}
}

// limitPrice improves on the touch by a quarter of the spread, capped at the
// touch itself: buys never pay above the ask, sells never undercut the bid.
func limitPrice(quote domain.Quote, side domain.Side) decimal.Decimal {
	quarter := quote.Spread().Mul(decimal.RequireFromString("0.25"))
	if side == domain.SideBuy {
		improved := quote.Mid().Add(quarter)
		return decimal.Min(quote.Ask, improved)
	}
	improved := quote.Mid().Sub(quarter)
	return decimal.Max(quote.Bid, improved)
}
