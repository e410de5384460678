package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"aitrader/internal/config"
	"aitrader/internal/data"
	"aitrader/internal/domain"
)

// volumeLookbackDays is the trailing window for the average-volume check.
const volumeLookbackDays = 20

// EligibilityFilter applies symbol-level allow/deny and liquidity checks,
// independent of the order's risk profile. Checks run in fixed order, first
// failure wins; the blacklist has absolute precedence over the whitelist.
type EligibilityFilter struct {
	cfg      config.Symbols
	provider data.Provider
	log      *slog.Logger

	blacklist map[string]struct{}
	whitelist map[string]struct{}
}

// NewEligibilityFilter creates an EligibilityFilter backed by the given data
// provider for volume lookups.
func NewEligibilityFilter(cfg config.Symbols, provider data.Provider, log *slog.Logger) *EligibilityFilter {
	f := &EligibilityFilter{
		cfg:       cfg,
		provider:  provider,
		log:       log,
		blacklist: make(map[string]struct{}, len(cfg.Blacklist)),
		whitelist: make(map[string]struct{}, len(cfg.Whitelist)),
	}
	for _, sym := range cfg.Blacklist {
		f.blacklist[sym] = struct{}{}
	}
	for _, sym := range cfg.Whitelist {
		f.whitelist[sym] = struct{}{}
	}
	return f
}

// Check evaluates the symbol's eligibility. The quote may be invalid when
// none was available; the signal's reference price then stands in for the
// price-range check.
func (f *EligibilityFilter) Check(ctx context.Context, sig domain.Signal, quote domain.Quote) CheckResult {
	// 1. Blacklist blocks even whitelisted symbols.
	if _, banned := f.blacklist[sig.Symbol]; banned {
		return fail("in blacklist")
	}

	// 2. Whitelist, when non-empty, is exhaustive.
	if len(f.whitelist) > 0 {
		if _, ok := f.whitelist[sig.Symbol]; !ok {
			return fail("not in whitelist")
		}
	}

	// 3. Quote requirement.
	if f.cfg.RequireQuote && !quote.Valid() {
		return fail(fmt.Sprintf("no quote available (bid=%s ask=%s)", quote.Bid, quote.Ask))
	}

	// 4. Price range on the quote mid, falling back to the reference price.
	price := sig.Price
	if quote.Valid() {
		price = quote.Mid()
	}
	if f.cfg.MinPrice.IsPositive() && price.LessThan(f.cfg.MinPrice) {
		return fail(fmt.Sprintf("price=%s < min_price=%s", price, f.cfg.MinPrice))
	}
	if f.cfg.MaxPrice.IsPositive() && price.GreaterThan(f.cfg.MaxPrice) {
		return fail(fmt.Sprintf("price=%s > max_price=%s", price, f.cfg.MaxPrice))
	}

	// 5. Liquidity. A data-provider failure degrades to a pass: volume is a
	// quality screen, not a capital-preservation rule.
	if f.cfg.MinAvgVolume > 0 {
		bars, err := f.provider.GetDailyBars(ctx, sig.Symbol, volumeLookbackDays)
		if err != nil {
			f.log.Warn("volume lookup failed, skipping check", "symbol", sig.Symbol, "err", err)
			return pass
		}
		avg := data.AvgVolume(bars, volumeLookbackDays)
		if avg.LessThan(decimal.NewFromInt(f.cfg.MinAvgVolume)) {
			return fail(fmt.Sprintf("avg_volume=%s < min_avg_volume=%d", avg.StringFixed(0), f.cfg.MinAvgVolume))
		}
	}

	return pass
}
