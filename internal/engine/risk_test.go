package engine

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"aitrader/internal/config"
	"aitrader/internal/domain"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testLimits() config.Risk {
	return config.Risk{
		MaxPositions:     2,
		MaxOrderQuantity: 100,
		MaxDailyLoss:     decimal.NewFromInt(100),
	}
}

func buySignal(symbol string, qty int64, price string) domain.Signal {
	return domain.Signal{
		Symbol:    symbol,
		Side:      domain.SideBuy,
		Quantity:  qty,
		Price:     dec(price),
		Timestamp: time.Date(2024, 1, 15, 16, 0, 0, 0, time.UTC),
	}
}

func TestRiskDailyLossBoundaryInclusive(t *testing.T) {
	// Exactly at the limit blocks.
	rm := NewRiskManager(testLimits(), dec("-100"), nil)
	res := rm.Check(buySignal("AAPL", 10, "100"))
	if res.OK {
		t.Error("Check() at daily_pnl=-100 passed, want blocked")
	}
	if !strings.Contains(res.Reason, "max_daily_loss") {
		t.Errorf("Reason = %q, want daily-loss reason", res.Reason)
	}

	// One cent inside the limit does not block on this rule.
	rm = NewRiskManager(testLimits(), dec("-99.99"), nil)
	if res := rm.Check(buySignal("AAPL", 10, "100")); !res.OK {
		t.Errorf("Check() at daily_pnl=-99.99 blocked: %s", res.Reason)
	}
}

func TestRiskNewPositionCap(t *testing.T) {
	held := map[string]domain.Position{
		"AAPL": {Symbol: "AAPL", Quantity: 10, AvgPrice: dec("180")},
		"MSFT": {Symbol: "MSFT", Quantity: 10, AvgPrice: dec("400")},
	}
	rm := NewRiskManager(testLimits(), decimal.Zero, held)

	// Opening a third position is blocked.
	if res := rm.Check(buySignal("GOOGL", 10, "150")); res.OK {
		t.Error("Check() opening position beyond cap passed, want blocked")
	}

	// Adding to a held position is not a new position.
	if res := rm.Check(buySignal("AAPL", 10, "180")); !res.OK {
		t.Errorf("Check() adding to held position blocked: %s", res.Reason)
	}

	// Sells never count against the position cap.
	sell := buySignal("AAPL", 10, "180")
	sell.Side = domain.SideSell
	if res := rm.Check(sell); !res.OK {
		t.Errorf("Check() for sell blocked by position cap: %s", res.Reason)
	}
}

func TestRiskQuantityCap(t *testing.T) {
	rm := NewRiskManager(testLimits(), decimal.Zero, nil)
	res := rm.Check(buySignal("AAPL", 101, "1"))
	if res.OK {
		t.Error("Check() above quantity cap passed, want blocked")
	}
	if !strings.Contains(res.Reason, "max_order_quantity") {
		t.Errorf("Reason = %q, want quantity reason", res.Reason)
	}
}

func TestRiskCheckOrderFirstFailureWins(t *testing.T) {
	// Breaching both the daily loss and the quantity cap reports the daily
	// loss, which is checked first.
	rm := NewRiskManager(testLimits(), dec("-200"), nil)
	res := rm.Check(buySignal("AAPL", 500, "100"))
	if res.OK {
		t.Fatal("Check() passed, want blocked")
	}
	if !strings.Contains(res.Reason, "max_daily_loss") {
		t.Errorf("Reason = %q, want the daily-loss reason to fire first", res.Reason)
	}
}

func TestRiskNotionalCaps(t *testing.T) {
	limits := testLimits()
	limits.MaxOrderNotional = decimal.NewFromInt(500)
	limits.MaxPositionsNotional = decimal.NewFromInt(2000)

	rm := NewRiskManager(limits, decimal.Zero, nil)
	if res := rm.Check(buySignal("AAPL", 10, "60")); res.OK {
		t.Error("Check() above order notional passed, want blocked")
	}
	if res := rm.Check(buySignal("AAPL", 5, "99")); !res.OK {
		t.Errorf("Check() within order notional blocked: %s", res.Reason)
	}

	held := map[string]domain.Position{
		"MSFT": {Symbol: "MSFT", Quantity: 4, AvgPrice: dec("450")},
	}
	rm = NewRiskManager(limits, decimal.Zero, held)
	// 1800 held + 400 new = 2200 > 2000.
	if res := rm.Check(buySignal("AAPL", 4, "100")); res.OK {
		t.Error("Check() above exposure cap passed, want blocked")
	}
}

func TestRiskCheckDoesNotMutate(t *testing.T) {
	rm := NewRiskManager(testLimits(), dec("-50"), nil)
	rm.Check(buySignal("AAPL", 10, "100"))

	if !rm.DailyPnL().Equal(dec("-50")) {
		t.Errorf("DailyPnL() after Check = %s, want -50", rm.DailyPnL())
	}
	if len(rm.Positions()) != 0 {
		t.Errorf("Positions() after Check has %d entries, want 0", len(rm.Positions()))
	}
}

func TestRecordFillRealizesOnlyOnClose(t *testing.T) {
	rm := NewRiskManager(testLimits(), decimal.Zero, nil)

	// Flat to long: nothing realized.
	if realized := rm.RecordFill("AAPL", domain.SideBuy, 10, dec("100")); !realized.IsZero() {
		t.Errorf("buy realized %s, want 0", realized)
	}
	if rm.Position("AAPL") != 10 {
		t.Errorf("Position() = %d, want 10", rm.Position("AAPL"))
	}

	// Adding to the position: still nothing realized, average moves.
	rm.RecordFill("AAPL", domain.SideBuy, 10, dec("110"))
	if avg := rm.Positions()["AAPL"].AvgPrice; !avg.Equal(dec("105")) {
		t.Errorf("AvgPrice after add = %s, want 105", avg)
	}

	// Long to flat: realize against the average entry.
	realized := rm.RecordFill("AAPL", domain.SideSell, 20, dec("95"))
	if !realized.Equal(dec("-200")) {
		t.Errorf("sell realized %s, want -200", realized)
	}
	if rm.Position("AAPL") != 0 {
		t.Errorf("Position() after close = %d, want 0", rm.Position("AAPL"))
	}
	if !rm.DailyPnL().Equal(dec("-200")) {
		t.Errorf("DailyPnL() = %s, want -200", rm.DailyPnL())
	}
}

func TestRecordFillPartialClose(t *testing.T) {
	held := map[string]domain.Position{
		"AAPL": {Symbol: "AAPL", Quantity: 10, AvgPrice: dec("100")},
	}
	rm := NewRiskManager(testLimits(), decimal.Zero, held)

	realized := rm.RecordFill("AAPL", domain.SideSell, 4, dec("110"))
	if !realized.Equal(dec("40")) {
		t.Errorf("partial close realized %s, want 40", realized)
	}
	if rm.Position("AAPL") != 6 {
		t.Errorf("Position() = %d, want 6", rm.Position("AAPL"))
	}
}
