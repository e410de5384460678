// Package strategy defines the Strategy interface for signal generation and
// provides a Registry for managing multiple strategy implementations.
package strategy

import (
	"context"
	"sort"

	"aitrader/internal/domain"
)

// Strategy turns bar history into trading signals. Implementations are
// position-aware: the caller passes the currently held quantity so a
// strategy never signals a buy into an existing position or a sell while
// flat.
type Strategy interface {
	// Name returns the unique identifier for this strategy. It is embedded in
	// client order ids and must be stable across runs.
	Name() string

	// Init performs any one-time setup required before the strategy begins
	// processing market data.
	Init(ctx context.Context) error

	// OnBars evaluates the bar history for one symbol. bars are daily bars in
	// ascending timestamp order; positionQty is the currently held quantity.
	// It returns nil when no action is warranted.
	OnBars(ctx context.Context, symbol string, bars []domain.Bar, positionQty int64) (*domain.Signal, error)
}

// Registry holds a named collection of strategies for lookup and enumeration.
type Registry struct {
	strategies map[string]Strategy
}

// NewRegistry creates an empty strategy Registry.
func NewRegistry() *Registry {
	return &Registry{
		strategies: make(map[string]Strategy),
	}
}

// Register adds a strategy to the registry, keyed by its Name().
func (r *Registry) Register(s Strategy) {
	r.strategies[s.Name()] = s
}

// Get retrieves a strategy by name. The second return value indicates whether
// the strategy was found.
func (r *Registry) Get(name string) (Strategy, bool) {
	s, ok := r.strategies[name]
	return s, ok
}

// List returns a sorted slice of all registered strategy names.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
