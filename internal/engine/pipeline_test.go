package engine

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"aitrader/internal/broker"
	"aitrader/internal/domain"
	"aitrader/internal/state"
	"aitrader/internal/util"
)

// pipelineFixture bundles the collaborators a pipeline test needs to
// inspect after evaluating signals.
type pipelineFixture struct {
	pipeline *Pipeline
	broker   *broker.SimulatorBroker
	risk     *RiskManager
	botState *state.BotState
	store    *state.Store
}

func newFixture(t *testing.T, opts ...func(*pipelineFixture)) *pipelineFixture {
	t.Helper()

	sim := broker.NewSimulatorBroker()
	sim.SetQuote("AAPL", dec("100"), dec("100.20"), dec("100.10"))

	st := state.NewStore(filepath.Join(t.TempDir(), "state.json"))
	botState, err := st.Load("run-test")
	if err != nil {
		t.Fatal(err)
	}

	risk := NewRiskManager(testLimits(), botState.TodayPnL(), nil)

	cfg := testSymbolsConfig()
	elig := NewEligibilityFilter(cfg, liquidProvider("AAPL", "MSFT", "GOOGL"), util.NewLogger("error"))
	cost := NewCostModel(testCostConfig())
	gate := NewSafetyGate(domain.ModeSimulated, Authorization{}, false)

	f := &pipelineFixture{
		broker:   sim,
		risk:     risk,
		botState: botState,
		store:    st,
	}
	f.pipeline = NewPipeline(gate, risk, elig, cost, sim, botState, st, "SMA", util.NewLogger("error"))
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func TestPipelineSubmitsCleanSignal(t *testing.T) {
	f := newFixture(t)
	sig := buySignal("AAPL", 10, "100.30")

	decn := f.pipeline.Evaluate(context.Background(), sig)
	if decn.Outcome != OutcomeSubmitted {
		t.Fatalf("Outcome = %q (stage %s, reason %q), want submitted", decn.Outcome, decn.Stage, decn.Reason)
	}
	if decn.Order == nil {
		t.Fatal("Order is nil after submission")
	}
	// Quarter-spread improvement on bid=100/ask=100.20.
	if !decn.LimitPrice.Equal(decimal.RequireFromString("100.15")) {
		t.Errorf("LimitPrice = %s, want 100.15", decn.LimitPrice)
	}
	if !f.botState.HasSubmitted(decn.ClientOrderID) {
		t.Error("submitted id not recorded in state")
	}
}

func TestPipelineIdempotencyAcrossRetries(t *testing.T) {
	f := newFixture(t)
	sig := buySignal("AAPL", 10, "100.30")
	ctx := context.Background()

	first := f.pipeline.Evaluate(ctx, sig)
	if first.Outcome != OutcomeSubmitted {
		t.Fatalf("first Outcome = %q, want submitted", first.Outcome)
	}

	// Same signal (same bar timestamp) delivered again: recognized as a
	// duplicate, no second live order.
	second := f.pipeline.Evaluate(ctx, sig)
	if second.Outcome != OutcomeDuplicate {
		t.Fatalf("second Outcome = %q, want duplicate", second.Outcome)
	}
	if second.ClientOrderID != first.ClientOrderID {
		t.Errorf("client order ids differ: %q vs %q", first.ClientOrderID, second.ClientOrderID)
	}
	if f.broker.MutatingCalls != 1 {
		t.Errorf("MutatingCalls = %d, want exactly 1 submission", f.broker.MutatingCalls)
	}
}

func TestPipelineDuplicateKnownOnlyToBroker(t *testing.T) {
	// Simulates a crash after submission but before the local record was
	// written: the broker knows the id, local state does not.
	f := newFixture(t)
	sig := buySignal("AAPL", 10, "100.30")
	ctx := context.Background()

	id := state.BuildClientOrderID("SMA", sig.Symbol, sig.Side, sig.Timestamp)
	f.broker.AddOpenOrder(id)

	decn := f.pipeline.Evaluate(ctx, sig)
	if decn.Outcome != OutcomeDuplicate {
		t.Fatalf("Outcome = %q, want duplicate", decn.Outcome)
	}
	if !strings.Contains(decn.Reason, "broker") {
		t.Errorf("Reason = %q, want broker-record reason", decn.Reason)
	}
	// The id is adopted locally so the next check short-circuits.
	if !f.botState.HasSubmitted(id) {
		t.Error("broker-known id not adopted into local state")
	}
}

func TestPipelineFirstBlockerWins(t *testing.T) {
	// Daily loss breached AND an oversized quantity: the daily-loss refusal
	// fires first and nothing reaches the broker.
	f := newFixture(t)
	f.risk.SetDailyPnL(dec("-100"))

	decn := f.pipeline.Evaluate(context.Background(), buySignal("AAPL", 10, "100.30"))
	if decn.Outcome != OutcomeBlocked {
		t.Fatalf("Outcome = %q, want blocked", decn.Outcome)
	}
	if decn.Stage != StageRisk {
		t.Errorf("Stage = %q, want risk", decn.Stage)
	}
	if f.broker.MutatingCalls != 0 {
		t.Errorf("MutatingCalls = %d, want 0 for a blocked signal", f.broker.MutatingCalls)
	}
}

func TestPipelinePreviewTraversesAllStagesWithoutSubmitting(t *testing.T) {
	f := newFixture(t)
	f.pipeline.gate = NewSafetyGate(domain.ModeSimulated, Authorization{}, true)

	decn := f.pipeline.Evaluate(context.Background(), buySignal("AAPL", 10, "100.30"))
	if decn.Outcome != OutcomeWouldSubmit {
		t.Fatalf("Outcome = %q (reason %q), want would_submit", decn.Outcome, decn.Reason)
	}
	// The computed price is reported even though nothing was sent.
	if !decn.LimitPrice.Equal(decimal.RequireFromString("100.15")) {
		t.Errorf("LimitPrice = %s, want 100.15", decn.LimitPrice)
	}
	if f.broker.MutatingCalls != 0 {
		t.Errorf("MutatingCalls = %d, want 0 in preview", f.broker.MutatingCalls)
	}
	if f.botState.HasSubmitted(decn.ClientOrderID) {
		t.Error("preview recorded a submission")
	}
}

func TestPipelineGateBlocksBeforeAnyIO(t *testing.T) {
	f := newFixture(t)
	f.pipeline.gate = NewSafetyGate(domain.ModeLive, Authorization{}, false)

	decn := f.pipeline.Evaluate(context.Background(), buySignal("AAPL", 10, "100.30"))
	if decn.Outcome != OutcomeBlocked || decn.Stage != StageGate {
		t.Fatalf("Outcome = %q stage %q, want blocked at gate", decn.Outcome, decn.Stage)
	}
	if f.broker.MutatingCalls != 0 {
		t.Errorf("MutatingCalls = %d, want 0", f.broker.MutatingCalls)
	}
}

func TestPipelineFillRealizesPnLIntoState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Open long 10 @ ~100.15 (instant fill at the limit).
	buy := f.pipeline.Evaluate(ctx, buySignal("AAPL", 10, "100.30"))
	if buy.Outcome != OutcomeSubmitted {
		t.Fatalf("buy Outcome = %q, want submitted", buy.Outcome)
	}

	// Sell the position at a lower quote.
	f.broker.SetQuote("AAPL", dec("95"), dec("95.20"), dec("95.10"))
	sell := buySignal("AAPL", 10, "95.00")
	sell.Side = domain.SideSell
	sell.Timestamp = sell.Timestamp.Add(24 * time.Hour)

	decn := f.pipeline.Evaluate(ctx, sell)
	if decn.Outcome != OutcomeSubmitted {
		t.Fatalf("sell Outcome = %q (reason %q), want submitted", decn.Outcome, decn.Reason)
	}

	// Sell filled at max(bid, mid-quarter) = 95.05; realized = (95.05 -
	// 100.15) * 10 = -51.
	if !f.risk.DailyPnL().Equal(dec("-51")) {
		t.Errorf("DailyPnL() = %s, want -51", f.risk.DailyPnL())
	}
	if !f.botState.TodayPnL().Equal(dec("-51")) {
		t.Errorf("state TodayPnL() = %s, want -51 (state and mirror diverged)", f.botState.TodayPnL())
	}
	if f.risk.Position("AAPL") != 0 {
		t.Errorf("Position() = %d, want 0 after close", f.risk.Position("AAPL"))
	}
}

func TestPipelineStatePersistedAcrossReload(t *testing.T) {
	f := newFixture(t)
	decn := f.pipeline.Evaluate(context.Background(), buySignal("AAPL", 10, "100.30"))
	if decn.Outcome != OutcomeSubmitted {
		t.Fatalf("Outcome = %q, want submitted", decn.Outcome)
	}

	reloaded, err := f.store.Load("run-next")
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if !reloaded.HasSubmitted(decn.ClientOrderID) {
		t.Error("submitted id lost across reload")
	}
	pos, ok := reloaded.Positions["AAPL"]
	if !ok {
		t.Fatal("position lost across reload")
	}
	if pos.Quantity != 10 {
		t.Errorf("reloaded position = %d, want 10", pos.Quantity)
	}
}
