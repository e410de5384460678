package journal

import (
	"database/sql"
	"fmt"
	"time"

	"aitrader/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ Ledger = (*SQLiteLedger)(nil)

// SQLiteLedger appends ledger records to a SQLite database shared across
// runs, so trade history survives output-directory rotation.
type SQLiteLedger struct {
	db *sql.DB
}

const ledgerSchema = `
CREATE TABLE IF NOT EXISTS orders (
	id                   INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp            TEXT NOT NULL,
	symbol               TEXT NOT NULL,
	side                 TEXT NOT NULL,
	quantity             INTEGER NOT NULL,
	order_type           TEXT NOT NULL,
	limit_price          TEXT NOT NULL,
	client_order_id      TEXT NOT NULL,
	broker_order_id      TEXT NOT NULL,
	run_id               TEXT NOT NULL,
	status               TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS fills (
	id                   INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp            TEXT NOT NULL,
	symbol               TEXT NOT NULL,
	side                 TEXT NOT NULL,
	quantity             INTEGER NOT NULL,
	price                TEXT NOT NULL,
	client_order_id      TEXT NOT NULL,
	broker_order_id      TEXT NOT NULL,
	run_id               TEXT NOT NULL,
	expected_price       TEXT NOT NULL,
	slippage_abs         TEXT NOT NULL,
	slippage_bps         TEXT NOT NULL,
	spread_bps_at_submit TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS trades (
	id                   INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp            TEXT NOT NULL,
	symbol               TEXT NOT NULL,
	side                 TEXT NOT NULL,
	quantity             INTEGER NOT NULL,
	price                TEXT NOT NULL,
	order_id             TEXT NOT NULL,
	client_order_id      TEXT NOT NULL,
	run_id               TEXT NOT NULL,
	reason               TEXT NOT NULL,
	expected_price       TEXT NOT NULL,
	slippage_abs         TEXT NOT NULL,
	slippage_bps         TEXT NOT NULL,
	spread_bps_at_submit TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol);
CREATE INDEX IF NOT EXISTS idx_trades_run ON trades(run_id);
`

// NewSQLiteLedger opens (or creates) the ledger database at dbPath and
// applies the schema.
func NewSQLiteLedger(dbPath string) (*SQLiteLedger, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening ledger db: %w", err)
	}
	if _, err := db.Exec(ledgerSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying ledger schema: %w", err)
	}
	return &SQLiteLedger{db: db}, nil
}

// RecordOrder inserts a row into the orders table.
func (l *SQLiteLedger) RecordOrder(rec domain.OrderRecord) error {
	_, err := l.db.Exec(`INSERT INTO orders
		(timestamp, symbol, side, quantity, order_type, limit_price,
		 client_order_id, broker_order_id, run_id, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Timestamp.UTC().Format(time.RFC3339),
		rec.Symbol, string(rec.Side), rec.Quantity, string(rec.OrderType),
		rec.LimitPrice.String(), rec.ClientOrderID, rec.BrokerOrderID,
		rec.RunID, string(rec.Status),
	)
	if err != nil {
		return fmt.Errorf("inserting order record: %w", err)
	}
	return nil
}

// RecordFill inserts a row into the fills table.
func (l *SQLiteLedger) RecordFill(rec domain.FillRecord) error {
	_, err := l.db.Exec(`INSERT INTO fills
		(timestamp, symbol, side, quantity, price, client_order_id,
		 broker_order_id, run_id, expected_price, slippage_abs, slippage_bps,
		 spread_bps_at_submit)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Timestamp.UTC().Format(time.RFC3339),
		rec.Symbol, string(rec.Side), rec.Quantity, rec.Price.String(),
		rec.ClientOrderID, rec.BrokerOrderID, rec.RunID,
		rec.ExpectedPrice.String(), rec.SlippageAbs.String(),
		rec.SlippageBps.String(), rec.SpreadBpsAtSubmit.String(),
	)
	if err != nil {
		return fmt.Errorf("inserting fill record: %w", err)
	}
	return nil
}

// RecordTrade inserts a row into the trades table.
func (l *SQLiteLedger) RecordTrade(rec domain.TradeRecord) error {
	_, err := l.db.Exec(`INSERT INTO trades
		(timestamp, symbol, side, quantity, price, order_id, client_order_id,
		 run_id, reason, expected_price, slippage_abs, slippage_bps,
		 spread_bps_at_submit)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Timestamp.UTC().Format(time.RFC3339),
		rec.Symbol, string(rec.Side), rec.Quantity, rec.Price.String(),
		rec.OrderID, rec.ClientOrderID, rec.RunID, rec.Reason,
		rec.ExpectedPrice.String(), rec.SlippageAbs.String(),
		rec.SlippageBps.String(), rec.SpreadBpsAtSubmit.String(),
	)
	if err != nil {
		return fmt.Errorf("inserting trade record: %w", err)
	}
	return nil
}

// TradeCount returns the number of trades recorded for a run, for summary
// reporting.
func (l *SQLiteLedger) TradeCount(runID string) (int, error) {
	var n int
	err := l.db.QueryRow(`SELECT COUNT(*) FROM trades WHERE run_id = ?`, runID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting trades: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}
