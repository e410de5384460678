package journal

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"aitrader/internal/domain"
)

// Compile-time interface check.
var _ Ledger = (*CSVLedger)(nil)

// CSVLedger writes orders.csv, fills.csv, and trades.csv under a per-run
// output directory. Files are created lazily with a header row and flushed
// after every record, so a crash loses at most the record being written.
type CSVLedger struct {
	dir string

	orders *csvFile
	fills  *csvFile
	trades *csvFile
}

type csvFile struct {
	f *os.File
	w *csv.Writer
}

// NewCSVLedger creates a CSVLedger rooted at dir, creating it if needed.
func NewCSVLedger(dir string) (*CSVLedger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating ledger dir: %w", err)
	}
	return &CSVLedger{dir: dir}, nil
}

func (l *CSVLedger) open(name string, header []string) (*csvFile, error) {
	path := filepath.Join(l.dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stating %s: %w", path, err)
	}

	cf := &csvFile{f: f, w: csv.NewWriter(f)}
	if info.Size() == 0 {
		if err := cf.write(header); err != nil {
			f.Close()
			return nil, err
		}
	}
	return cf, nil
}

func (cf *csvFile) write(record []string) error {
	if err := cf.w.Write(record); err != nil {
		return err
	}
	cf.w.Flush()
	return cf.w.Error()
}

// RecordOrder appends a row to orders.csv.
func (l *CSVLedger) RecordOrder(rec domain.OrderRecord) error {
	if l.orders == nil {
		cf, err := l.open("orders.csv", []string{
			"timestamp", "symbol", "side", "quantity", "order_type",
			"limit_price", "client_order_id", "broker_order_id", "run_id", "status",
		})
		if err != nil {
			return err
		}
		l.orders = cf
	}
	return l.orders.write([]string{
		rec.Timestamp.UTC().Format(time.RFC3339),
		rec.Symbol,
		string(rec.Side),
		strconv.FormatInt(rec.Quantity, 10),
		string(rec.OrderType),
		rec.LimitPrice.String(),
		rec.ClientOrderID,
		rec.BrokerOrderID,
		rec.RunID,
		string(rec.Status),
	})
}

// RecordFill appends a row to fills.csv.
func (l *CSVLedger) RecordFill(rec domain.FillRecord) error {
	if l.fills == nil {
		cf, err := l.open("fills.csv", []string{
			"timestamp", "symbol", "side", "quantity", "price",
			"client_order_id", "broker_order_id", "run_id",
			"expected_price", "slippage_abs", "slippage_bps", "spread_bps_at_submit",
		})
		if err != nil {
			return err
		}
		l.fills = cf
	}
	return l.fills.write([]string{
		rec.Timestamp.UTC().Format(time.RFC3339),
		rec.Symbol,
		string(rec.Side),
		strconv.FormatInt(rec.Quantity, 10),
		rec.Price.String(),
		rec.ClientOrderID,
		rec.BrokerOrderID,
		rec.RunID,
		rec.ExpectedPrice.String(),
		rec.SlippageAbs.String(),
		rec.SlippageBps.String(),
		rec.SpreadBpsAtSubmit.String(),
	})
}

// RecordTrade appends a row to trades.csv.
func (l *CSVLedger) RecordTrade(rec domain.TradeRecord) error {
	if l.trades == nil {
		cf, err := l.open("trades.csv", []string{
			"timestamp", "symbol", "side", "quantity", "price",
			"order_id", "client_order_id", "run_id", "reason",
			"expected_price", "slippage_abs", "slippage_bps", "spread_bps_at_submit",
		})
		if err != nil {
			return err
		}
		l.trades = cf
	}
	return l.trades.write([]string{
		rec.Timestamp.UTC().Format(time.RFC3339),
		rec.Symbol,
		string(rec.Side),
		strconv.FormatInt(rec.Quantity, 10),
		rec.Price.String(),
		rec.OrderID,
		rec.ClientOrderID,
		rec.RunID,
		rec.Reason,
		rec.ExpectedPrice.String(),
		rec.SlippageAbs.String(),
		rec.SlippageBps.String(),
		rec.SpreadBpsAtSubmit.String(),
	})
}

// Close flushes and closes all open files.
func (l *CSVLedger) Close() error {
	var first error
	for _, cf := range []*csvFile{l.orders, l.fills, l.trades} {
		if cf == nil {
			continue
		}
		cf.w.Flush()
		if err := cf.w.Error(); err != nil && first == nil {
			first = err
		}
		if err := cf.f.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
