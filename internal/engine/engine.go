package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"aitrader/internal/broker"
	"aitrader/internal/config"
	"aitrader/internal/data"
	"aitrader/internal/domain"
	"aitrader/internal/journal"
	"aitrader/internal/metrics"
	"aitrader/internal/state"
	"aitrader/internal/strategy"
	"aitrader/internal/util"
)

// Engine drives the control loop: once per iteration it rolls the trading
// day if needed, fetches bars for every watchlist symbol, asks the strategy
// for signals, and feeds each signal through the pipeline sequentially.
// Signals are never evaluated concurrently, so the risk manager and state
// need no locking.
type Engine struct {
	cfg      *config.Config
	broker   broker.Broker
	provider data.Provider
	strat    strategy.Strategy
	pipeline *Pipeline
	risk     *RiskManager
	recon    *Reconciler
	botState *state.BotState
	store    *state.Store
	ledger   journal.Ledger
	calendar *util.TradingCalendar
	log      *slog.Logger

	summary Summary
}

// Summary is the end-of-run report written to the output directory.
type Summary struct {
	RunID      string         `json:"run_id"`
	Mode       string         `json:"mode"`
	DryRun     bool           `json:"dry_run"`
	Iterations int            `json:"iterations"`
	Decisions  map[string]int `json:"decisions"`
	Submitted  int            `json:"submitted"`
	Blocked    int            `json:"blocked"`
	DailyPnL   string         `json:"daily_pnl"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
}

// NewEngine wires an Engine from its collaborators.
func NewEngine(
	cfg *config.Config,
	b broker.Broker,
	provider data.Provider,
	strat strategy.Strategy,
	pipeline *Pipeline,
	risk *RiskManager,
	recon *Reconciler,
	botState *state.BotState,
	store *state.Store,
	ledger journal.Ledger,
	log *slog.Logger,
) *Engine {
	return &Engine{
		cfg:      cfg,
		broker:   b,
		provider: provider,
		strat:    strat,
		pipeline: pipeline,
		risk:     risk,
		recon:    recon,
		botState: botState,
		store:    store,
		ledger:   ledger,
		calendar: util.NewTradingCalendar(
			cfg.Market.OpenHour, cfg.Market.OpenMinute,
			cfg.Market.CloseHour, cfg.Market.CloseMinute,
		),
		log: log,
		summary: Summary{
			RunID:     botState.RunID,
			Mode:      cfg.Mode,
			DryRun:    cfg.DryRun,
			Decisions: make(map[string]int),
			StartedAt: time.Now(),
		},
	}
}

// Run reconciles against the broker once, then executes the configured
// number of iterations. It returns the run summary.
func (e *Engine) Run(ctx context.Context) (*Summary, error) {
	if err := e.strat.Init(ctx); err != nil {
		return nil, fmt.Errorf("initializing strategy: %w", err)
	}

	// Reconciliation runs once per process start, before any signal.
	if e.recon.Run(ctx, e.botState, e.risk) {
		if err := e.store.Save(e.botState); err != nil {
			return nil, fmt.Errorf("saving reconciled state: %w", err)
		}
	}

	for iter := 1; iter <= e.cfg.Iterations; iter++ {
		if ctx.Err() != nil {
			break
		}
		e.runIteration(ctx, iter)
		metrics.Iterations.Inc()
	}

	e.summary.Iterations = e.cfg.Iterations
	e.summary.DailyPnL = e.risk.DailyPnL().String()
	e.summary.FinishedAt = time.Now()

	if err := e.writeSummary(); err != nil {
		e.log.Error("writing run summary failed", "err", err)
	}
	return &e.summary, nil
}

func (e *Engine) runIteration(ctx context.Context, iter int) {
	now := util.ExchangeTime()
	log := e.log.With("iteration", iter)

	// Day rollover: the loss-limit window resets only on a genuine boundary
	// crossing in exchange time.
	if e.botState.RolloverIfNewDay(util.TradingDay(now)) {
		log.Info("trading day rolled over", "daily_date", e.botState.DailyDate)
		e.risk.SetDailyPnL(e.botState.TodayPnL())
		if err := e.store.Save(e.botState); err != nil {
			log.Error("saving state after rollover failed", "err", err)
		}
	}

	marketOpen := e.calendar.IsMarketOpen(now)
	if !marketOpen && !e.cfg.Market.ComputeAfterHours {
		log.Info("market closed, skipping iteration", "session", e.calendar.SessionString())
		return
	}

	lookback := volumeLookbackDays
	if e.cfg.SMA.SlowPeriod+5 > lookback {
		lookback = e.cfg.SMA.SlowPeriod + 5
	}

	for _, symbol := range e.cfg.Symbols.Watchlist {
		if ctx.Err() != nil {
			return
		}

		bars, err := e.provider.GetDailyBars(ctx, symbol, lookback)
		if err != nil {
			log.Warn("fetching bars failed", "symbol", symbol, "err", err)
			continue
		}

		sig, err := e.strat.OnBars(ctx, symbol, bars, e.risk.Position(symbol))
		if err != nil {
			log.Warn("strategy evaluation failed", "symbol", symbol, "err", err)
			continue
		}
		if sig == nil {
			continue
		}

		if !marketOpen && !e.cfg.Market.AllowAfterHoursOrders {
			log.Info("signal outside market hours, not submitted",
				"symbol", symbol, "side", sig.Side, "session", e.calendar.SessionString())
			continue
		}

		dec := e.pipeline.Evaluate(ctx, *sig)
		e.recordDecision(log, dec)
	}

	metrics.DailyPnL.Set(pnlFloat(e.risk))
	if err := e.store.Save(e.botState); err != nil {
		log.Error("saving state failed", "err", err)
	}
}

// recordDecision logs the outcome, updates metrics, and appends ledger rows
// for submissions and fills.
func (e *Engine) recordDecision(log *slog.Logger, dec Decision) {
	e.summary.Decisions[string(dec.Outcome)]++
	metrics.Decisions.WithLabelValues(string(dec.Outcome), string(dec.Stage)).Inc()

	switch dec.Outcome {
	case OutcomeBlocked, OutcomeDuplicate:
		e.summary.Blocked++
		log.Info("signal blocked",
			"symbol", dec.Signal.Symbol,
			"side", dec.Signal.Side,
			"stage", dec.Stage,
			"reason", dec.Reason,
		)
		return

	case OutcomeError:
		log.Error("submission failed",
			"symbol", dec.Signal.Symbol,
			"side", dec.Signal.Side,
			"err", dec.Err,
		)
		return

	case OutcomeWouldSubmit:
		log.Info("would submit",
			"symbol", dec.Signal.Symbol,
			"side", dec.Signal.Side,
			"qty", dec.Quantity,
			"order_type", dec.OrderType,
			"limit_price", dec.LimitPrice,
			"reason", dec.Signal.Reason,
		)
		return
	}

	// Submitted.
	e.summary.Submitted++
	metrics.Orders.WithLabelValues(e.cfg.Mode, string(dec.Signal.Side)).Inc()
	log.Info("order submitted",
		"symbol", dec.Signal.Symbol,
		"side", dec.Signal.Side,
		"qty", dec.Quantity,
		"order_type", dec.OrderType,
		"limit_price", dec.LimitPrice,
		"client_order_id", dec.ClientOrderID,
	)

	order := dec.Order
	if err := e.ledger.RecordOrder(domain.OrderRecord{
		Timestamp:     order.SubmittedAt,
		Symbol:        order.Symbol,
		Side:          order.Side,
		Quantity:      order.Quantity,
		OrderType:     order.Type,
		LimitPrice:    order.LimitPrice,
		ClientOrderID: order.ClientOrderID,
		BrokerOrderID: order.ID,
		RunID:         e.botState.RunID,
		Status:        order.Status,
	}); err != nil {
		log.Error("recording order failed", "err", err)
	}

	if order.Status != domain.OrderStatusFilled {
		return
	}

	abs, bps := domain.Slippage(order.FilledPrice, dec.ExpectedPrice)
	fill := domain.FillRecord{
		Timestamp:         order.FilledAt,
		Symbol:            order.Symbol,
		Side:              order.Side,
		Quantity:          order.Quantity,
		Price:             order.FilledPrice,
		ClientOrderID:     order.ClientOrderID,
		BrokerOrderID:     order.ID,
		RunID:             e.botState.RunID,
		ExpectedPrice:     dec.ExpectedPrice,
		SlippageAbs:       abs,
		SlippageBps:       bps,
		SpreadBpsAtSubmit: dec.SpreadBps,
	}
	if err := e.ledger.RecordFill(fill); err != nil {
		log.Error("recording fill failed", "err", err)
	}
	if err := e.ledger.RecordTrade(domain.TradeRecord{
		Timestamp:         order.FilledAt,
		Symbol:            order.Symbol,
		Side:              order.Side,
		Quantity:          order.Quantity,
		Price:             order.FilledPrice,
		OrderID:           order.ID,
		ClientOrderID:     order.ClientOrderID,
		RunID:             e.botState.RunID,
		Reason:            dec.Signal.Reason,
		ExpectedPrice:     dec.ExpectedPrice,
		SlippageAbs:       abs,
		SlippageBps:       bps,
		SpreadBpsAtSubmit: dec.SpreadBps,
	}); err != nil {
		log.Error("recording trade failed", "err", err)
	}
}

func (e *Engine) writeSummary() error {
	if err := os.MkdirAll(e.cfg.Storage.OutputDir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(&e.summary, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(e.cfg.Storage.OutputDir, fmt.Sprintf("summary_%s.json", e.botState.RunID))
	return os.WriteFile(path, data, 0o644)
}

func pnlFloat(rm *RiskManager) float64 {
	f, _ := rm.DailyPnL().Float64()
	return f
}
