package engine

import (
	"context"
	"log/slog"

	"aitrader/internal/broker"
	"aitrader/internal/state"
)

// Reconciler adopts broker-reported ground truth into local state at
// startup. It only ever reads from the broker: no submit, cancel, or
// replace call is issued no matter how far local state has diverged.
type Reconciler struct {
	broker broker.Broker
	log    *slog.Logger
}

// NewReconciler creates a Reconciler for the given broker.
func NewReconciler(b broker.Broker, log *slog.Logger) *Reconciler {
	return &Reconciler{broker: b, log: log}
}

// Run synchronizes open orders and positions from the broker into the
// durable state and the risk manager's mirror. A broker error skips that
// part of the sync for this run: trading on stale-but-present state beats
// refusing to start over a connectivity blip, so this is the one place
// errors are logged and not retried. Reports whether anything changed.
func (r *Reconciler) Run(ctx context.Context, botState *state.BotState, risk *RiskManager) bool {
	changed := r.syncOpenOrders(ctx, botState)
	if r.syncPositions(ctx, botState, risk) {
		changed = true
	}
	return changed
}

// syncOpenOrders makes the believed-open set match the broker exactly: ids
// open at the broker are adopted (and recorded as submitted, preserving
// idempotency for orders placed before a crash), ids the broker no longer
// reports are dropped. The cumulative submitted record is never pruned.
func (r *Reconciler) syncOpenOrders(ctx context.Context, botState *state.BotState) bool {
	brokerOpen, err := r.broker.GetOpenOrders(ctx)
	if err != nil {
		r.log.Warn("reconciliation: fetching open orders failed, skipping order sync", "err", err)
		return false
	}

	openSet := make(map[string]struct{}, len(brokerOpen))
	changed := false

	for _, id := range brokerOpen {
		openSet[id] = struct{}{}
		if !botState.HasOpenOrder(id) {
			r.log.Info("reconciliation: adopting broker open order", "client_order_id", id)
			botState.MarkSubmitted(id)
			changed = true
		}
	}

	for _, id := range append([]string(nil), botState.OpenOrderIDs...) {
		if _, open := openSet[id]; !open {
			r.log.Info("reconciliation: dropping stale open order", "client_order_id", id)
			botState.RemoveOpenOrder(id)
			changed = true
		}
	}
	return changed
}

// syncPositions overwrites local positions with the broker's view: missing
// or diverged symbols are adopted, locally held symbols absent at the broker
// are removed.
func (r *Reconciler) syncPositions(ctx context.Context, botState *state.BotState, risk *RiskManager) bool {
	brokerPositions, err := r.broker.GetPositions(ctx)
	if err != nil {
		r.log.Warn("reconciliation: fetching positions failed, skipping position sync", "err", err)
		return false
	}

	changed := false

	for sym, bp := range brokerPositions {
		local, held := botState.Positions[sym]
		if held && local.Quantity == bp.Quantity && local.AvgPrice.Equal(bp.AvgPrice) {
			continue
		}
		r.log.Info("reconciliation: adopting broker position",
			"symbol", sym, "qty", bp.Quantity, "avg_price", bp.AvgPrice)
		botState.SetPosition(sym, bp.Quantity, bp.AvgPrice)
		risk.SetPosition(sym, bp.Quantity, bp.AvgPrice)
		changed = true
	}

	for sym := range botState.Positions {
		if _, held := brokerPositions[sym]; !held {
			r.log.Info("reconciliation: removing position absent at broker", "symbol", sym)
			botState.SetPosition(sym, 0, brokerPositions[sym].AvgPrice)
			risk.SetPosition(sym, 0, brokerPositions[sym].AvgPrice)
			changed = true
		}
	}
	return changed
}
