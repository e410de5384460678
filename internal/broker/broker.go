// Package broker defines the Broker interface and provides implementations
// for executing orders and reading account state across brokerages.
package broker

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"aitrader/internal/domain"
)

// Broker abstracts brokerage operations. The order pipeline is the only
// caller of SubmitOrder; reconciliation uses only the read-side methods.
type Broker interface {
	// Name returns the broker identifier (e.g. "alpaca", "simulator").
	Name() string

	// GetQuote returns the current bid/ask for a symbol. A quote with
	// non-positive bid or ask means no quote is available.
	GetQuote(ctx context.Context, symbol string) (domain.Quote, error)

	// SubmitOrder sends an order for execution. At most one live order is
	// created per client order id; submitting a duplicate id is an error.
	SubmitOrder(ctx context.Context, req domain.OrderRequest) (*domain.Order, error)

	// CancelOrder requests cancellation of an open order by broker order id.
	CancelOrder(ctx context.Context, orderID string) error

	// ReplaceOrder updates the limit price and/or quantity of an open order.
	ReplaceOrder(ctx context.Context, orderID string, limitPrice decimal.Decimal, qty int64) (*domain.Order, error)

	// GetOpenOrders returns the client order ids of all orders currently
	// open at the broker.
	GetOpenOrders(ctx context.Context) ([]string, error)

	// GetPositions returns all current positions keyed by symbol.
	GetPositions(ctx context.Context) (map[string]domain.Position, error)

	// OrderExists reports whether an order with the given client order id
	// exists at the broker, open or not.
	OrderExists(ctx context.Context, clientOrderID string) (bool, error)
}

// Error wraps a brokerage failure with the operation that produced it. The
// caller decides severity: read-side failures degrade, submission failures
// must not be retried blindly.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("broker: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
