package engine

import (
	"context"
	"log/slog"

	"aitrader/internal/broker"
	"aitrader/internal/domain"
	"aitrader/internal/state"
)

// Pipeline turns a signal into either an authorized, cost-checked,
// idempotent submission or a refusal with the first blocking reason.
//
// Stage order is fixed: gate, idempotency, risk, eligibility, pricing,
// submission. No stage is re-entered and a failure in any stage
// short-circuits the rest, so the first blocker always names the reason.
type Pipeline struct {
	gate   *SafetyGate
	risk   *RiskManager
	elig   *EligibilityFilter
	cost   *CostModel
	broker broker.Broker

	botState *state.BotState
	store    *state.Store

	strategyName string
	log          *slog.Logger
}

// NewPipeline wires a Pipeline. The same risk manager and state instances
// must be shared with the reconciler and control loop; the pipeline is their
// only mutator during signal processing.
func NewPipeline(
	gate *SafetyGate,
	risk *RiskManager,
	elig *EligibilityFilter,
	cost *CostModel,
	b broker.Broker,
	botState *state.BotState,
	store *state.Store,
	strategyName string,
	log *slog.Logger,
) *Pipeline {
	return &Pipeline{
		gate:         gate,
		risk:         risk,
		elig:         elig,
		cost:         cost,
		broker:       b,
		botState:     botState,
		store:        store,
		strategyName: strategyName,
		log:          log,
	}
}

// Evaluate runs one signal through every stage. It never panics and never
// returns an error: every possible outcome, including broker failures, is a
// tagged Decision.
func (p *Pipeline) Evaluate(ctx context.Context, sig domain.Signal) Decision {
	// Gate first, before any I/O.
	if err := p.gate.Check(); err != nil {
		return blocked(sig, StageGate, err.Error())
	}

	// Idempotency. The client order id derives from stable signal inputs, so
	// a re-delivered signal maps to the same token. Local state is checked
	// first, then the broker, catching ids submitted before a crash that
	// never made it into local state.
	clientOrderID := state.BuildClientOrderID(p.strategyName, sig.Symbol, sig.Side, sig.Timestamp)
	if p.botState.HasSubmitted(clientOrderID) {
		return Decision{
			Signal: sig, Outcome: OutcomeDuplicate, Stage: StageIdempotency,
			Reason: "already submitted (local record)", ClientOrderID: clientOrderID,
		}
	}
	exists, err := p.broker.OrderExists(ctx, clientOrderID)
	if err != nil {
		// Read-side failure: degrade to local knowledge only.
		p.log.Warn("duplicate check against broker failed", "client_order_id", clientOrderID, "err", err)
	} else if exists {
		// The broker knows this id: record it locally so future checks
		// short-circuit without a round trip.
		p.botState.MarkSubmitted(clientOrderID)
		p.saveState()
		return Decision{
			Signal: sig, Outcome: OutcomeDuplicate, Stage: StageIdempotency,
			Reason: "already submitted (broker record)", ClientOrderID: clientOrderID,
		}
	}

	// Risk before eligibility: capacity refusals outrank quality refusals.
	if res := p.risk.Check(sig); !res.OK {
		return blocked(sig, StageRisk, res.Reason)
	}

	// One quote serves eligibility and pricing. A failed lookup degrades to
	// an invalid quote; eligibility decides whether that is acceptable.
	quote, err := p.broker.GetQuote(ctx, sig.Symbol)
	if err != nil {
		p.log.Warn("quote lookup failed", "symbol", sig.Symbol, "err", err)
		quote = domain.Quote{Symbol: sig.Symbol}
	}

	if res := p.elig.Check(ctx, sig, quote); !res.OK {
		return blocked(sig, StageEligibility, res.Reason)
	}

	pricing := p.cost.Price(quote, sig.Side, sig.Price)
	if !pricing.OK {
		return blocked(sig, StageCost, pricing.Reason)
	}

	dec := Decision{
		Signal:        sig,
		ClientOrderID: clientOrderID,
		OrderType:     pricing.OrderType,
		Quantity:      sig.Quantity,
		LimitPrice:    pricing.LimitPrice,
		ExpectedPrice: pricing.ExpectedPrice,
		SpreadBps:     pricing.SpreadBps,
	}

	if p.gate.Preview() {
		dec.Outcome = OutcomeWouldSubmit
		dec.Stage = StageSubmit
		dec.Reason = "would submit"
		return dec
	}

	order, err := p.broker.SubmitOrder(ctx, domain.OrderRequest{
		Symbol:        sig.Symbol,
		Side:          sig.Side,
		Quantity:      sig.Quantity,
		Type:          pricing.OrderType,
		LimitPrice:    pricing.LimitPrice,
		TimeInForce:   "day",
		ClientOrderID: clientOrderID,
	})
	if err != nil {
		// Not-submitted until proven otherwise. No blind retry: the next
		// iteration re-evaluates against fresh broker truth, and the
		// deterministic client order id makes an invisible success harmless.
		dec.Outcome = OutcomeError
		dec.Stage = StageSubmit
		dec.Err = err
		return dec
	}

	p.botState.MarkSubmitted(clientOrderID)
	p.botState.LastProcessed[sig.Symbol] = sig.Timestamp.Format("2006-01-02T15:04:05Z07:00")
	p.saveState()

	dec.Outcome = OutcomeSubmitted
	dec.Stage = StageSubmit
	dec.Order = order

	if order.Status == domain.OrderStatusFilled {
		p.applyFill(order)
	}
	return dec
}

// applyFill pushes a confirmed fill through the risk mirror and durable
// state as one logical transaction, so the P&L view and the file never
// diverge.
func (p *Pipeline) applyFill(order *domain.Order) {
	realized := p.risk.RecordFill(order.Symbol, order.Side, order.Quantity, order.FilledPrice)
	if !realized.IsZero() {
		p.botState.ApplyPnLDelta(realized)
	}

	qty := p.risk.Position(order.Symbol)
	avg := p.risk.Positions()[order.Symbol].AvgPrice
	p.botState.SetPosition(order.Symbol, qty, avg)
	p.botState.RemoveOpenOrder(order.ClientOrderID)
	p.saveState()

	p.log.Info("fill applied",
		"symbol", order.Symbol,
		"side", order.Side,
		"qty", order.Quantity,
		"price", order.FilledPrice,
		"realized", realized,
		"daily_pnl", p.risk.DailyPnL(),
	)
}

func (p *Pipeline) saveState() {
	if err := p.store.Save(p.botState); err != nil {
		p.log.Error("saving state failed", "err", err)
	}
}
