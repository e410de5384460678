// Package journal persists the append-only run ledger: orders, fills, and
// trades. Records are written to per-run CSV files for human inspection and
// to a SQLite database for querying across runs.
package journal

import (
	"aitrader/internal/domain"
)

// Ledger records pipeline outcomes. Implementations are append-only; a
// record once written is never updated or deleted.
type Ledger interface {
	RecordOrder(rec domain.OrderRecord) error
	RecordFill(rec domain.FillRecord) error
	RecordTrade(rec domain.TradeRecord) error
	Close() error
}

// Multi fans every record out to several ledgers, returning the first error.
type Multi struct {
	ledgers []Ledger
}

// NewMulti combines ledgers into one. Nil entries are skipped.
func NewMulti(ledgers ...Ledger) *Multi {
	m := &Multi{}
	for _, l := range ledgers {
		if l != nil {
			m.ledgers = append(m.ledgers, l)
		}
	}
	return m
}

// Compile-time interface check.
var _ Ledger = (*Multi)(nil)

func (m *Multi) RecordOrder(rec domain.OrderRecord) error {
	for _, l := range m.ledgers {
		if err := l.RecordOrder(rec); err != nil {
			return err
		}
	}
	return nil
}

func (m *Multi) RecordFill(rec domain.FillRecord) error {
	for _, l := range m.ledgers {
		if err := l.RecordFill(rec); err != nil {
			return err
		}
	}
	return nil
}

func (m *Multi) RecordTrade(rec domain.TradeRecord) error {
	for _, l := range m.ledgers {
		if err := l.RecordTrade(rec); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every ledger, returning the first error but closing all.
func (m *Multi) Close() error {
	var first error
	for _, l := range m.ledgers {
		if err := l.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
