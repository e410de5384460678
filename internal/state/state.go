// Package state persists the bot's durable record: the trading-day marker,
// daily realized P&L history, tracked order ids, and positions. It exists so
// that a restart can never bypass the daily loss limit or resubmit an order.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"aitrader/internal/domain"
	"aitrader/internal/util"
)

// ErrCorrupt marks an unreadable or invalid state file. It is fatal at
// startup: silently resetting would erase a loss-limit boundary.
var ErrCorrupt = errors.New("state file corrupt")

// PositionState is the persisted view of a holding.
type PositionState struct {
	Quantity int64           `json:"quantity"`
	AvgPrice decimal.Decimal `json:"avg_price"`
}

// BotState is the single durable record. Exactly one entry of
// DailyRealizedPnL is "today's" (keyed by DailyDate); all other entries are
// immutable history and are never deleted.
type BotState struct {
	RunID string `json:"run_id"`

	// DailyDate is the current trading day (YYYY-MM-DD in exchange time).
	DailyDate string `json:"daily_date"`

	// DailyRealizedPnL maps trading day to realized P&L for that day.
	DailyRealizedPnL map[string]decimal.Decimal `json:"daily_realized_pnl"`

	// OpenOrderIDs are client order ids believed open at the broker. Pruned
	// by reconciliation.
	OpenOrderIDs []string `json:"open_order_ids"`

	// SubmittedOrderIDs is the cumulative idempotency record of every client
	// order id ever submitted. Never pruned.
	SubmittedOrderIDs []string `json:"submitted_order_ids"`

	// Positions maps symbol to the locally known holding.
	Positions map[string]PositionState `json:"positions"`

	// LastProcessed maps symbol to the last exchange timestamp an order was
	// submitted for (RFC 3339).
	LastProcessed map[string]string `json:"last_processed,omitempty"`
}

// NewBotState returns an empty state for the given trading day.
func NewBotState(runID, dailyDate string) *BotState {
	return &BotState{
		RunID:            runID,
		DailyDate:        dailyDate,
		DailyRealizedPnL: make(map[string]decimal.Decimal),
		Positions:        make(map[string]PositionState),
		LastProcessed:    make(map[string]string),
	}
}

// TodayPnL returns the realized P&L recorded for the current trading day,
// defaulting to zero if no entry exists yet.
func (s *BotState) TodayPnL() decimal.Decimal {
	if pnl, ok := s.DailyRealizedPnL[s.DailyDate]; ok {
		return pnl
	}
	return decimal.Zero
}

// ApplyPnLDelta adds delta to today's realized P&L, creating the entry if
// missing.
func (s *BotState) ApplyPnLDelta(delta decimal.Decimal) {
	if s.DailyRealizedPnL == nil {
		s.DailyRealizedPnL = make(map[string]decimal.Decimal)
	}
	s.DailyRealizedPnL[s.DailyDate] = s.TodayPnL().Add(delta)
}

// RolloverIfNewDay updates the trading-day marker when today differs from
// the stored day. Historical P&L entries are kept untouched; today's entry
// simply does not exist yet, so TodayPnL returns zero. Reports whether a
// rollover happened.
func (s *BotState) RolloverIfNewDay(today string) bool {
	if s.DailyDate == today {
		return false
	}
	s.DailyDate = today
	return true
}

// HasSubmitted reports whether the client order id was ever submitted.
func (s *BotState) HasSubmitted(clientOrderID string) bool {
	for _, id := range s.SubmittedOrderIDs {
		if id == clientOrderID {
			return true
		}
	}
	return false
}

// MarkSubmitted records a client order id in both the cumulative idempotency
// record and the open-order set.
func (s *BotState) MarkSubmitted(clientOrderID string) {
	if !s.HasSubmitted(clientOrderID) {
		s.SubmittedOrderIDs = append(s.SubmittedOrderIDs, clientOrderID)
	}
	s.AddOpenOrder(clientOrderID)
}

// HasOpenOrder reports whether the id is in the believed-open set.
func (s *BotState) HasOpenOrder(clientOrderID string) bool {
	for _, id := range s.OpenOrderIDs {
		if id == clientOrderID {
			return true
		}
	}
	return false
}

// AddOpenOrder adds the id to the believed-open set if absent.
func (s *BotState) AddOpenOrder(clientOrderID string) {
	if !s.HasOpenOrder(clientOrderID) {
		s.OpenOrderIDs = append(s.OpenOrderIDs, clientOrderID)
	}
}

// RemoveOpenOrder drops the id from the believed-open set. The cumulative
// submitted record is untouched.
func (s *BotState) RemoveOpenOrder(clientOrderID string) {
	for i, id := range s.OpenOrderIDs {
		if id == clientOrderID {
			s.OpenOrderIDs = append(s.OpenOrderIDs[:i], s.OpenOrderIDs[i+1:]...)
			return
		}
	}
}

// RiskPositions converts the persisted positions to domain positions, for
// seeding the risk manager's mirror.
func (s *BotState) RiskPositions() map[string]domain.Position {
	out := make(map[string]domain.Position, len(s.Positions))
	for sym, p := range s.Positions {
		out[sym] = domain.Position{Symbol: sym, Quantity: p.Quantity, AvgPrice: p.AvgPrice}
	}
	return out
}

// SetPosition records the holding for a symbol, removing it when the
// quantity is zero.
func (s *BotState) SetPosition(symbol string, qty int64, avgPrice decimal.Decimal) {
	if s.Positions == nil {
		s.Positions = make(map[string]PositionState)
	}
	if qty == 0 {
		delete(s.Positions, symbol)
		return
	}
	s.Positions[symbol] = PositionState{Quantity: qty, AvgPrice: avgPrice}
}

// ---------------------------------------------------------------------------
// Store
// ---------------------------------------------------------------------------

// Store loads and saves BotState at a fixed path. It is the single writer of
// the state file.
type Store struct {
	path string
}

// NewStore creates a Store for the given file path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the state file path.
func (st *Store) Path() string {
	return st.path
}

// Load reads the state file. A missing file yields a fresh state for the
// current trading day. An unreadable or invalid file returns ErrCorrupt;
// callers must treat that as fatal rather than reset to zero.
func (st *Store) Load(runID string) (*BotState, error) {
	today := util.TradingDay(time.Now())

	data, err := os.ReadFile(st.path)
	if errors.Is(err, os.ErrNotExist) {
		return NewBotState(runID, today), nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrCorrupt, st.path, err)
	}

	var s BotState
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %v", ErrCorrupt, st.path, err)
	}
	if s.DailyDate == "" {
		return nil, fmt.Errorf("%w: %s has no daily_date", ErrCorrupt, st.path)
	}

	if s.DailyRealizedPnL == nil {
		s.DailyRealizedPnL = make(map[string]decimal.Decimal)
	}
	if s.Positions == nil {
		s.Positions = make(map[string]PositionState)
	}
	if s.LastProcessed == nil {
		s.LastProcessed = make(map[string]string)
	}
	s.RunID = runID
	return &s, nil
}

// Save writes the state atomically: the JSON document is written to a
// temporary file in the same directory and renamed over the target, so a
// crash mid-write never corrupts the previous state.
func (st *Store) Save(s *BotState) error {
	if err := os.MkdirAll(filepath.Dir(st.path), 0o755); err != nil {
		return fmt.Errorf("creating state dir: %w", err)
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(st.path), ".state-*.json")
	if err != nil {
		return fmt.Errorf("creating temp state file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("syncing temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp state file: %w", err)
	}

	if err := os.Rename(tmpName, st.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing state file: %w", err)
	}
	return nil
}

// BuildClientOrderID builds the deterministic idempotency key for an order.
// The key depends only on stable signal inputs (strategy, symbol, side, and
// the signal bar timestamp — not wall-clock time), so the same signal always
// produces the same key across runs and restarts.
//
// Format: {strategy}_{symbol}_{side}_{yyyymmddhhmmss}
func BuildClientOrderID(strategyName, symbol string, side domain.Side, signalTime time.Time) string {
	return fmt.Sprintf("%s_%s_%s_%s", strategyName, symbol, side, signalTime.Format("20060102150405"))
}
