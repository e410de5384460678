package journal

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"aitrader/internal/domain"
)

func sampleTrade(runID string) domain.TradeRecord {
	return domain.TradeRecord{
		Timestamp:         time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
		Symbol:            "AAPL",
		Side:              domain.SideBuy,
		Quantity:          10,
		Price:             decimal.RequireFromString("180.15"),
		OrderID:           "broker-1",
		ClientOrderID:     "SMA_AAPL_buy_20240115103000",
		RunID:             runID,
		Reason:            "sma10=182.31 > sma30=180.02",
		ExpectedPrice:     decimal.RequireFromString("180.15"),
		SlippageAbs:       decimal.Zero,
		SlippageBps:       decimal.Zero,
		SpreadBpsAtSubmit: decimal.RequireFromString("5.5"),
	}
}

func TestCSVLedgerWritesHeaderAndRows(t *testing.T) {
	dir := t.TempDir()
	l, err := NewCSVLedger(dir)
	if err != nil {
		t.Fatalf("NewCSVLedger() returned error: %v", err)
	}

	if err := l.RecordTrade(sampleTrade("run-1")); err != nil {
		t.Fatalf("RecordTrade() returned error: %v", err)
	}
	if err := l.RecordTrade(sampleTrade("run-1")); err != nil {
		t.Fatalf("RecordTrade() returned error: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close() returned error: %v", err)
	}

	f, err := os.Open(filepath.Join(dir, "trades.csv"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 { // header + 2 records
		t.Fatalf("trades.csv has %d rows, want 3", len(rows))
	}
	if rows[0][0] != "timestamp" {
		t.Errorf("header[0] = %q, want %q", rows[0][0], "timestamp")
	}
	if rows[1][1] != "AAPL" || rows[1][2] != "buy" {
		t.Errorf("row = %v, want AAPL buy", rows[1])
	}
}

func TestCSVLedgerAppendsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	for i := 0; i < 2; i++ {
		l, err := NewCSVLedger(dir)
		if err != nil {
			t.Fatalf("NewCSVLedger() returned error: %v", err)
		}
		if err := l.RecordTrade(sampleTrade("run-1")); err != nil {
			t.Fatalf("RecordTrade() returned error: %v", err)
		}
		if err := l.Close(); err != nil {
			t.Fatalf("Close() returned error: %v", err)
		}
	}

	f, err := os.Open(filepath.Join(dir, "trades.csv"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	// One header, two records: reopening must not duplicate the header.
	if len(rows) != 3 {
		t.Errorf("trades.csv has %d rows after reopen, want 3", len(rows))
	}
}

func TestSQLiteLedgerRoundTrip(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "ledger.db")
	l, err := NewSQLiteLedger(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteLedger() returned error: %v", err)
	}
	defer l.Close()

	if err := l.RecordTrade(sampleTrade("run-1")); err != nil {
		t.Fatalf("RecordTrade() returned error: %v", err)
	}
	if err := l.RecordTrade(sampleTrade("run-2")); err != nil {
		t.Fatalf("RecordTrade() returned error: %v", err)
	}
	if err := l.RecordOrder(domain.OrderRecord{
		Timestamp: time.Now(), Symbol: "AAPL", Side: domain.SideBuy,
		Quantity: 10, OrderType: domain.OrderTypeLimit,
		LimitPrice: decimal.RequireFromString("180.15"),
		RunID:      "run-1", Status: domain.OrderStatusFilled,
	}); err != nil {
		t.Fatalf("RecordOrder() returned error: %v", err)
	}

	n, err := l.TradeCount("run-1")
	if err != nil {
		t.Fatalf("TradeCount() returned error: %v", err)
	}
	if n != 1 {
		t.Errorf("TradeCount(run-1) = %d, want 1", n)
	}
}

func TestMultiFansOut(t *testing.T) {
	dir := t.TempDir()
	csvL, err := NewCSVLedger(dir)
	if err != nil {
		t.Fatal(err)
	}
	dbL, err := NewSQLiteLedger(filepath.Join(dir, "ledger.db"))
	if err != nil {
		t.Fatal(err)
	}

	m := NewMulti(csvL, dbL, nil)
	if err := m.RecordTrade(sampleTrade("run-1")); err != nil {
		t.Fatalf("RecordTrade() returned error: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close() returned error: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "trades.csv")); err != nil {
		t.Errorf("trades.csv missing: %v", err)
	}

	dbL2, err := NewSQLiteLedger(filepath.Join(dir, "ledger.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer dbL2.Close()
	n, err := dbL2.TradeCount("run-1")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("TradeCount(run-1) = %d, want 1", n)
	}
}
