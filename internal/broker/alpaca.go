package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"

	"aitrader/internal/domain"
)

// Compile-time interface check.
var _ Broker = (*AlpacaBroker)(nil)

// AlpacaBroker implements the Broker interface using the Alpaca trading and
// market-data APIs.
type AlpacaBroker struct {
	trading *alpaca.Client
	data    *marketdata.Client
	feed    marketdata.Feed
}

// NewAlpacaBroker creates an AlpacaBroker configured with the given
// credentials and API endpoints. The paper and live environments are
// selected by baseURL.
func NewAlpacaBroker(apiKey, apiSecret, baseURL, dataURL string) *AlpacaBroker {
	dataOpts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		dataOpts.BaseURL = dataURL
	}

	return &AlpacaBroker{
		trading: alpaca.NewClient(alpaca.ClientOpts{
			APIKey:    apiKey,
			APISecret: apiSecret,
			BaseURL:   baseURL,
		}),
		data: marketdata.NewClient(dataOpts),
		// IEX is available on free/paper accounts; SIP needs a subscription.
		feed: marketdata.IEX,
	}
}

// Name returns "alpaca".
func (b *AlpacaBroker) Name() string {
	return "alpaca"
}

// GetQuote returns the latest bid/ask for the symbol.
func (b *AlpacaBroker) GetQuote(_ context.Context, symbol string) (domain.Quote, error) {
	q, err := b.data.GetLatestQuote(symbol, marketdata.GetLatestQuoteRequest{Feed: b.feed})
	if err != nil {
		return domain.Quote{}, &Error{Op: "get quote", Err: err}
	}

	quote := domain.Quote{
		Symbol: symbol,
		Bid:    decimal.NewFromFloat(q.BidPrice),
		Ask:    decimal.NewFromFloat(q.AskPrice),
	}
	if t, err := b.data.GetLatestTrade(symbol, marketdata.GetLatestTradeRequest{Feed: b.feed}); err == nil {
		quote.Last = decimal.NewFromFloat(t.Price)
	}
	return quote, nil
}

// SubmitOrder sends the order to Alpaca, carrying the client order id so the
// brokerage enforces idempotency on its side as well.
func (b *AlpacaBroker) SubmitOrder(_ context.Context, req domain.OrderRequest) (*domain.Order, error) {
	qty := decimal.NewFromInt(req.Quantity)

	placeReq := alpaca.PlaceOrderRequest{
		Symbol:        req.Symbol,
		Qty:           &qty,
		Side:          alpaca.Side(req.Side),
		Type:          alpaca.OrderType(req.Type),
		TimeInForce:   alpaca.Day,
		ClientOrderID: req.ClientOrderID,
	}
	if req.Type == domain.OrderTypeLimit {
		if !req.LimitPrice.IsPositive() {
			return nil, fmt.Errorf("limit order for %s has no limit price", req.Symbol)
		}
		limit := req.LimitPrice
		placeReq.LimitPrice = &limit
	}

	order, err := b.trading.PlaceOrder(placeReq)
	if err != nil {
		return nil, &Error{Op: "submit order", Err: err}
	}
	return convertOrder(order), nil
}

// CancelOrder requests cancellation of an open order.
func (b *AlpacaBroker) CancelOrder(_ context.Context, orderID string) error {
	if err := b.trading.CancelOrder(orderID); err != nil {
		return &Error{Op: "cancel order", Err: err}
	}
	return nil
}

// ReplaceOrder updates the limit price and/or quantity of an open order.
func (b *AlpacaBroker) ReplaceOrder(_ context.Context, orderID string, limitPrice decimal.Decimal, qty int64) (*domain.Order, error) {
	replaceReq := alpaca.ReplaceOrderRequest{}
	if limitPrice.IsPositive() {
		limit := limitPrice
		replaceReq.LimitPrice = &limit
	}
	if qty > 0 {
		q := decimal.NewFromInt(qty)
		replaceReq.Qty = &q
	}

	order, err := b.trading.ReplaceOrder(orderID, replaceReq)
	if err != nil {
		return nil, &Error{Op: "replace order", Err: err}
	}
	return convertOrder(order), nil
}

// GetOpenOrders returns the client order ids of all open orders.
func (b *AlpacaBroker) GetOpenOrders(_ context.Context) ([]string, error) {
	orders, err := b.trading.GetOrders(alpaca.GetOrdersRequest{
		Status: "open",
		Limit:  500,
	})
	if err != nil {
		return nil, &Error{Op: "get open orders", Err: err}
	}

	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		if o.ClientOrderID != "" {
			ids = append(ids, o.ClientOrderID)
		}
	}
	return ids, nil
}

// GetPositions returns all current positions keyed by symbol.
func (b *AlpacaBroker) GetPositions(_ context.Context) (map[string]domain.Position, error) {
	positions, err := b.trading.GetPositions()
	if err != nil {
		return nil, &Error{Op: "get positions", Err: err}
	}

	out := make(map[string]domain.Position, len(positions))
	for _, p := range positions {
		out[p.Symbol] = domain.Position{
			Symbol:   p.Symbol,
			Quantity: p.Qty.IntPart(),
			AvgPrice: p.AvgEntryPrice,
		}
	}
	return out, nil
}

// OrderExists reports whether an order with the client order id exists. A
// 404 from the API means no such order; other errors are reported.
func (b *AlpacaBroker) OrderExists(_ context.Context, clientOrderID string) (bool, error) {
	_, err := b.trading.GetOrderByClientOrderID(clientOrderID)
	if err == nil {
		return true, nil
	}
	var apiErr *alpaca.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == 404 {
		return false, nil
	}
	return false, &Error{Op: "lookup order", Err: err}
}

func convertOrder(o *alpaca.Order) *domain.Order {
	out := &domain.Order{
		ID:            o.ID,
		ClientOrderID: o.ClientOrderID,
		Symbol:        o.Symbol,
		Side:          domain.Side(o.Side),
		Type:          convertOrderType(o.Type),
		Status:        convertStatus(o.Status),
		SubmittedAt:   o.SubmittedAt,
	}
	if o.Qty != nil {
		out.Quantity = o.Qty.IntPart()
	}
	if o.LimitPrice != nil {
		out.LimitPrice = *o.LimitPrice
	}
	if o.FilledAvgPrice != nil {
		out.FilledPrice = *o.FilledAvgPrice
	}
	if o.FilledAt != nil {
		out.FilledAt = *o.FilledAt
	} else if out.Status == domain.OrderStatusFilled {
		out.FilledAt = time.Now()
	}
	return out
}

func convertOrderType(t alpaca.OrderType) domain.OrderType {
	if t == alpaca.Limit {
		return domain.OrderTypeLimit
	}
	return domain.OrderTypeMarket
}

func convertStatus(s string) domain.OrderStatus {
	switch s {
	case "filled":
		return domain.OrderStatusFilled
	case "canceled", "expired":
		return domain.OrderStatusCancelled
	case "rejected":
		return domain.OrderStatusRejected
	default:
		// new, accepted, pending_new, partially_filled, ...
		return domain.OrderStatusPending
	}
}
