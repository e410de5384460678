package engine

import (
	"context"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"aitrader/internal/config"
	"aitrader/internal/data"
	"aitrader/internal/domain"
	"aitrader/internal/util"
)

func testSymbolsConfig() config.Symbols {
	return config.Symbols{
		RequireQuote: true,
		MinPrice:     decimal.NewFromInt(2),
		MaxPrice:     decimal.NewFromInt(1000),
		MinAvgVolume: 1_000_000,
	}
}

func liquidProvider(symbols ...string) *data.StaticProvider {
	p := data.NewStaticProvider()
	for _, sym := range symbols {
		p.SetBars(sym, data.SyntheticBars(sym, 30, 100, 1))
	}
	return p
}

func validQuote(symbol string) domain.Quote {
	return domain.Quote{
		Symbol: symbol,
		Bid:    dec("100"),
		Ask:    dec("100.10"),
		Last:   dec("100.05"),
	}
}

func newFilter(cfg config.Symbols, p data.Provider) *EligibilityFilter {
	return NewEligibilityFilter(cfg, p, util.NewLogger("error"))
}

func TestEligibilityBlacklistOverridesWhitelist(t *testing.T) {
	cfg := testSymbolsConfig()
	cfg.Whitelist = []string{"AAPL"}
	cfg.Blacklist = []string{"AAPL"}
	f := newFilter(cfg, liquidProvider("AAPL"))

	res := f.Check(context.Background(), buySignal("AAPL", 10, "100"), validQuote("AAPL"))
	if res.OK {
		t.Fatal("blacklisted-and-whitelisted symbol passed, want blocked")
	}
	if res.Reason != "in blacklist" {
		t.Errorf("Reason = %q, want %q", res.Reason, "in blacklist")
	}
}

func TestEligibilityWhitelist(t *testing.T) {
	cfg := testSymbolsConfig()
	cfg.Whitelist = []string{"MSFT"}
	f := newFilter(cfg, liquidProvider("AAPL", "MSFT"))

	res := f.Check(context.Background(), buySignal("AAPL", 10, "100"), validQuote("AAPL"))
	if res.OK {
		t.Fatal("non-whitelisted symbol passed, want blocked")
	}
	if res.Reason != "not in whitelist" {
		t.Errorf("Reason = %q, want %q", res.Reason, "not in whitelist")
	}

	// Empty whitelist means no restriction.
	cfg.Whitelist = nil
	f = newFilter(cfg, liquidProvider("AAPL"))
	if res := f.Check(context.Background(), buySignal("AAPL", 10, "100"), validQuote("AAPL")); !res.OK {
		t.Errorf("empty whitelist blocked: %s", res.Reason)
	}
}

func TestEligibilityQuoteRequirement(t *testing.T) {
	f := newFilter(testSymbolsConfig(), liquidProvider("AAPL"))

	res := f.Check(context.Background(), buySignal("AAPL", 10, "100"), domain.Quote{Symbol: "AAPL"})
	if res.OK {
		t.Fatal("missing quote passed with require_quote, want blocked")
	}
	if !strings.Contains(res.Reason, "no quote") {
		t.Errorf("Reason = %q, want no-quote reason", res.Reason)
	}
}

func TestEligibilityPriceRange(t *testing.T) {
	cfg := testSymbolsConfig()
	cfg.RequireQuote = false
	f := newFilter(cfg, liquidProvider("PENNY", "PRICY"))

	// No quote: the signal's reference price stands in.
	res := f.Check(context.Background(), buySignal("PENNY", 10, "1.50"), domain.Quote{})
	if res.OK {
		t.Fatal("sub-min price passed, want blocked")
	}
	if !strings.Contains(res.Reason, "min_price") {
		t.Errorf("Reason = %q, want min_price reason", res.Reason)
	}

	res = f.Check(context.Background(), buySignal("PRICY", 10, "1500"), domain.Quote{})
	if !strings.Contains(res.Reason, "max_price") {
		t.Errorf("Reason = %q, want max_price reason", res.Reason)
	}

	// Quote mid takes precedence over the reference price.
	q := domain.Quote{Symbol: "PENNY", Bid: dec("100"), Ask: dec("100.10")}
	if res := f.Check(context.Background(), buySignal("PENNY", 10, "1.50"), q); !res.OK {
		t.Errorf("valid quote mid blocked by stale reference price: %s", res.Reason)
	}
}

func TestEligibilityVolume(t *testing.T) {
	cfg := testSymbolsConfig()
	p := data.NewStaticProvider()
	thin := data.SyntheticBars("THIN", 30, 100, 1)
	for i := range thin {
		thin[i].Volume = 1000
	}
	p.SetBars("THIN", thin)
	f := newFilter(cfg, p)

	res := f.Check(context.Background(), buySignal("THIN", 10, "100"), validQuote("THIN"))
	if res.OK {
		t.Fatal("thin symbol passed, want blocked")
	}
	if !strings.Contains(res.Reason, "min_avg_volume") {
		t.Errorf("Reason = %q, want volume reason", res.Reason)
	}
}

func TestEligibilityVolumeLookupFailureDegrades(t *testing.T) {
	// Provider has no bars for the symbol; the volume check is skipped
	// rather than blocking.
	f := newFilter(testSymbolsConfig(), data.NewStaticProvider())
	res := f.Check(context.Background(), buySignal("AAPL", 10, "100"), validQuote("AAPL"))
	if !res.OK {
		t.Errorf("volume lookup failure blocked: %s", res.Reason)
	}
}

func TestEligibilityOrderFirstFailureWins(t *testing.T) {
	// A blacklisted, non-whitelisted, quoteless symbol reports the
	// blacklist, which is checked first.
	cfg := testSymbolsConfig()
	cfg.Whitelist = []string{"MSFT"}
	cfg.Blacklist = []string{"AAPL"}
	f := newFilter(cfg, liquidProvider("AAPL"))

	res := f.Check(context.Background(), buySignal("AAPL", 10, "100"), domain.Quote{})
	if res.Reason != "in blacklist" {
		t.Errorf("Reason = %q, want the blacklist to fire first", res.Reason)
	}
}
