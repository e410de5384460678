// Package domain defines the core types shared across the trading system:
// bars, quotes, signals, orders, positions, and ledger records.
package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Enums
// ---------------------------------------------------------------------------

// Side is the direction of an order or signal.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderType distinguishes market and limit orders.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusRejected  OrderStatus = "rejected"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Mode selects the operating mode of the bot. Simulated mode uses in-memory
// collaborators only; paper and live talk to the brokerage.
type Mode string

const (
	ModeSimulated Mode = "simulated"
	ModePaper     Mode = "paper"
	ModeLive      Mode = "live"
)

// ParseMode converts a mode string to a Mode, rejecting unknown values.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeSimulated, ModePaper, ModeLive:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown mode %q (want simulated, paper, or live)", s)
}

// ---------------------------------------------------------------------------
// Market data
// ---------------------------------------------------------------------------

// Bar is a single OHLCV bar.
type Bar struct {
	Symbol    string
	Timestamp time.Time
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    int64
}

// Quote is a bid/ask snapshot. A bid or ask of zero (or below) means no
// quote is available.
type Quote struct {
	Symbol string
	Bid    decimal.Decimal
	Ask    decimal.Decimal
	Last   decimal.Decimal
}

// Valid reports whether both sides of the quote are present.
func (q Quote) Valid() bool {
	return q.Bid.IsPositive() && q.Ask.IsPositive()
}

// Mid returns (bid+ask)/2.
func (q Quote) Mid() decimal.Decimal {
	return q.Bid.Add(q.Ask).Div(decimal.NewFromInt(2))
}

// Spread returns ask-bid.
func (q Quote) Spread() decimal.Decimal {
	return q.Ask.Sub(q.Bid)
}

// SpreadBps returns the spread in basis points of the mid price, or zero if
// the quote is invalid.
func (q Quote) SpreadBps() decimal.Decimal {
	if !q.Valid() {
		return decimal.Zero
	}
	mid := q.Mid()
	if mid.IsZero() {
		return decimal.Zero
	}
	return q.Spread().Div(mid).Mul(decimal.NewFromInt(10000))
}

// ExpectedEntryPrice is the price a marketable order is expected to fill at:
// the ask for a buy, the bid for a sell.
func (q Quote) ExpectedEntryPrice(side Side) decimal.Decimal {
	if side == SideBuy {
		return q.Ask
	}
	return q.Bid
}

// ---------------------------------------------------------------------------
// Trading
// ---------------------------------------------------------------------------

// Signal is a candidate trading decision produced by a strategy. It is
// immutable and consumed once by the order pipeline.
type Signal struct {
	Symbol    string
	Side      Side
	Quantity  int64
	Price     decimal.Decimal // reference price (latest close)
	Timestamp time.Time       // bar timestamp, not wall-clock
	Reason    string
}

// OrderRequest is a fully specified order handed to a broker. ClientOrderID
// is the caller-assigned idempotency token; the broker submits at most one
// order per token.
type OrderRequest struct {
	Symbol        string
	Side          Side
	Quantity      int64
	Type          OrderType
	LimitPrice    decimal.Decimal // zero for market orders
	TimeInForce   string
	ClientOrderID string
}

// Order is a broker-acknowledged order.
type Order struct {
	ID            string
	ClientOrderID string
	Symbol        string
	Side          Side
	Type          OrderType
	Quantity      int64
	LimitPrice    decimal.Decimal
	Status        OrderStatus
	SubmittedAt   time.Time
	FilledAt      time.Time
	FilledPrice   decimal.Decimal
}

// Position is a holding in a single symbol.
type Position struct {
	Symbol   string
	Quantity int64
	AvgPrice decimal.Decimal
}

// Notional returns |quantity| * avg price.
func (p Position) Notional() decimal.Decimal {
	qty := p.Quantity
	if qty < 0 {
		qty = -qty
	}
	return decimal.NewFromInt(qty).Mul(p.AvgPrice)
}

// ---------------------------------------------------------------------------
// Ledger records
// ---------------------------------------------------------------------------

// OrderRecord is the ledger row written after a successful submission.
type OrderRecord struct {
	Timestamp     time.Time
	Symbol        string
	Side          Side
	Quantity      int64
	OrderType     OrderType
	LimitPrice    decimal.Decimal
	ClientOrderID string
	BrokerOrderID string
	RunID         string
	Status        OrderStatus
}

// FillRecord is the ledger row written when a fill is observed, including
// the cost metrics captured at submission time.
type FillRecord struct {
	Timestamp         time.Time
	Symbol            string
	Side              Side
	Quantity          int64
	Price             decimal.Decimal
	ClientOrderID     string
	BrokerOrderID     string
	RunID             string
	ExpectedPrice     decimal.Decimal
	SlippageAbs       decimal.Decimal
	SlippageBps       decimal.Decimal
	SpreadBpsAtSubmit decimal.Decimal
}

// TradeRecord is the append-only trade ledger row.
type TradeRecord struct {
	Timestamp         time.Time
	Symbol            string
	Side              Side
	Quantity          int64
	Price             decimal.Decimal
	OrderID           string
	ClientOrderID     string
	RunID             string
	Reason            string
	ExpectedPrice     decimal.Decimal
	SlippageAbs       decimal.Decimal
	SlippageBps       decimal.Decimal
	SpreadBpsAtSubmit decimal.Decimal
}

// Slippage returns the absolute and basis-point difference between a fill
// price and the expected price.
func Slippage(fill, expected decimal.Decimal) (abs, bps decimal.Decimal) {
	abs = fill.Sub(expected)
	if expected.IsZero() {
		return abs, decimal.Zero
	}
	bps = abs.Abs().Div(expected).Mul(decimal.NewFromInt(10000))
	return abs, bps
}
