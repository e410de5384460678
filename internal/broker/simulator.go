package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"aitrader/internal/domain"
)

// Compile-time interface check.
var _ Broker = (*SimulatorBroker)(nil)

// SimulatorBroker implements the Broker interface for simulated trading and
// tests. Orders fill immediately at the limit price (or the quoted entry
// price for market orders) and positions are tracked in memory. No external
// calls are made.
type SimulatorBroker struct {
	quotes     map[string]domain.Quote
	orders     map[string]*domain.Order // broker order id -> order
	clientIDs  map[string]string        // client order id -> broker order id
	positions  map[string]domain.Position
	openOrders []string // injected believed-open client ids

	// MutatingCalls counts SubmitOrder/CancelOrder/ReplaceOrder invocations,
	// successful or not. Reconciliation must never increase it.
	MutatingCalls int
}

// NewSimulatorBroker creates an empty SimulatorBroker.
func NewSimulatorBroker() *SimulatorBroker {
	return &SimulatorBroker{
		quotes:    make(map[string]domain.Quote),
		orders:    make(map[string]*domain.Order),
		clientIDs: make(map[string]string),
		positions: make(map[string]domain.Position),
	}
}

// Name returns "simulator".
func (b *SimulatorBroker) Name() string {
	return "simulator"
}

// SetQuote installs the quote returned for a symbol.
func (b *SimulatorBroker) SetQuote(symbol string, bid, ask, last decimal.Decimal) {
	b.quotes[symbol] = domain.Quote{Symbol: symbol, Bid: bid, Ask: ask, Last: last}
}

// SetPosition seeds a broker-side position, for reconciliation against
// diverged local state.
func (b *SimulatorBroker) SetPosition(symbol string, qty int64, avgPrice decimal.Decimal) {
	if qty == 0 {
		delete(b.positions, symbol)
		return
	}
	b.positions[symbol] = domain.Position{Symbol: symbol, Quantity: qty, AvgPrice: avgPrice}
}

// AddOpenOrder seeds a broker-side open order id, for reconciliation tests.
func (b *SimulatorBroker) AddOpenOrder(clientOrderID string) {
	b.openOrders = append(b.openOrders, clientOrderID)
	if _, ok := b.clientIDs[clientOrderID]; !ok {
		b.clientIDs[clientOrderID] = uuid.NewString()
	}
}

// GetQuote returns the installed quote for the symbol. Symbols without an
// installed quote get a synthetic tight market around $100.
func (b *SimulatorBroker) GetQuote(_ context.Context, symbol string) (domain.Quote, error) {
	if q, ok := b.quotes[symbol]; ok {
		return q, nil
	}
	return domain.Quote{
		Symbol: symbol,
		Bid:    decimal.RequireFromString("99.95"),
		Ask:    decimal.RequireFromString("100.05"),
		Last:   decimal.NewFromInt(100),
	}, nil
}

// SubmitOrder fills the order immediately. Duplicate client order ids are
// rejected, preserving at-most-one-order-per-token semantics.
func (b *SimulatorBroker) SubmitOrder(ctx context.Context, req domain.OrderRequest) (*domain.Order, error) {
	b.MutatingCalls++

	if _, exists := b.clientIDs[req.ClientOrderID]; exists {
		return nil, &Error{Op: "submit order", Err: fmt.Errorf("duplicate client order id %s", req.ClientOrderID)}
	}
	if req.Quantity <= 0 {
		return nil, &Error{Op: "submit order", Err: fmt.Errorf("quantity must be positive, got %d", req.Quantity)}
	}
	if req.Type == domain.OrderTypeLimit && !req.LimitPrice.IsPositive() {
		return nil, &Error{Op: "submit order", Err: fmt.Errorf("limit order for %s has no limit price", req.Symbol)}
	}

	fillPrice := req.LimitPrice
	if !fillPrice.IsPositive() {
		quote, _ := b.GetQuote(ctx, req.Symbol)
		fillPrice = quote.ExpectedEntryPrice(req.Side)
	}

	now := time.Now()
	order := &domain.Order{
		ID:            uuid.NewString(),
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Type:          req.Type,
		Quantity:      req.Quantity,
		LimitPrice:    req.LimitPrice,
		Status:        domain.OrderStatusFilled,
		SubmittedAt:   now,
		FilledAt:      now,
		FilledPrice:   fillPrice,
	}

	b.orders[order.ID] = order
	b.clientIDs[req.ClientOrderID] = order.ID
	b.applyFill(req.Symbol, req.Side, req.Quantity, fillPrice)
	return order, nil
}

// applyFill adjusts the simulated position for a fill. Long-only: a sell
// reduces or closes; oversells are clamped at flat.
func (b *SimulatorBroker) applyFill(symbol string, side domain.Side, qty int64, price decimal.Decimal) {
	pos, held := b.positions[symbol]
	if side == domain.SideBuy {
		if !held {
			b.positions[symbol] = domain.Position{Symbol: symbol, Quantity: qty, AvgPrice: price}
			return
		}
		newQty := pos.Quantity + qty
		cost := pos.AvgPrice.Mul(decimal.NewFromInt(pos.Quantity)).Add(price.Mul(decimal.NewFromInt(qty)))
		pos.AvgPrice = cost.Div(decimal.NewFromInt(newQty))
		pos.Quantity = newQty
		b.positions[symbol] = pos
		return
	}

	if !held {
		return
	}
	pos.Quantity -= qty
	if pos.Quantity <= 0 {
		delete(b.positions, symbol)
		return
	}
	b.positions[symbol] = pos
}

// CancelOrder drops an injected open order by its client id mapping.
func (b *SimulatorBroker) CancelOrder(_ context.Context, orderID string) error {
	b.MutatingCalls++
	if o, ok := b.orders[orderID]; ok {
		o.Status = domain.OrderStatusCancelled
		return nil
	}
	for i, clientID := range b.openOrders {
		if b.clientIDs[clientID] == orderID {
			b.openOrders = append(b.openOrders[:i], b.openOrders[i+1:]...)
			return nil
		}
	}
	return &Error{Op: "cancel order", Err: fmt.Errorf("order %s not found", orderID)}
}

// ReplaceOrder is accepted for any known order and returns it with the new
// price and quantity applied.
func (b *SimulatorBroker) ReplaceOrder(_ context.Context, orderID string, limitPrice decimal.Decimal, qty int64) (*domain.Order, error) {
	b.MutatingCalls++
	o, ok := b.orders[orderID]
	if !ok {
		return nil, &Error{Op: "replace order", Err: fmt.Errorf("order %s not found", orderID)}
	}
	if limitPrice.IsPositive() {
		o.LimitPrice = limitPrice
	}
	if qty > 0 {
		o.Quantity = qty
	}
	return o, nil
}

// GetOpenOrders returns the injected believed-open client order ids.
// Simulated submissions fill instantly and are never open.
func (b *SimulatorBroker) GetOpenOrders(_ context.Context) ([]string, error) {
	out := make([]string, len(b.openOrders))
	copy(out, b.openOrders)
	return out, nil
}

// GetPositions returns a copy of the simulated positions.
func (b *SimulatorBroker) GetPositions(_ context.Context) (map[string]domain.Position, error) {
	out := make(map[string]domain.Position, len(b.positions))
	for sym, pos := range b.positions {
		out[sym] = pos
	}
	return out, nil
}

// OrderExists reports whether a client order id was ever seen.
func (b *SimulatorBroker) OrderExists(_ context.Context, clientOrderID string) (bool, error) {
	_, ok := b.clientIDs[clientOrderID]
	return ok, nil
}
