package data

import (
	"context"
	"fmt"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"

	"aitrader/internal/domain"
	"aitrader/internal/util"
)

// Compile-time interface check.
var _ Provider = (*AlpacaProvider)(nil)

// AlpacaProvider fetches daily bars from the Alpaca market-data API, with
// rate limiting and retries around each call.
type AlpacaProvider struct {
	client  *marketdata.Client
	feed    marketdata.Feed
	limiter *util.RateLimiter
}

// NewAlpacaProvider creates an AlpacaProvider with the given credentials.
// ratePerMin caps the request rate against the free-tier API limit.
func NewAlpacaProvider(apiKey, apiSecret, dataURL string, ratePerMin int) *AlpacaProvider {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}
	if ratePerMin <= 0 {
		ratePerMin = 200
	}

	return &AlpacaProvider{
		client:  marketdata.NewClient(opts),
		feed:    marketdata.IEX,
		limiter: util.NewRateLimiter(ratePerMin),
	}
}

// Name returns "alpaca".
func (p *AlpacaProvider) Name() string {
	return "alpaca"
}

// GetDailyBars fetches up to lookbackDays daily bars for the symbol. The
// request window is padded for weekends and holidays so the lookback count is
// reached when enough history exists.
func (p *AlpacaProvider) GetDailyBars(ctx context.Context, symbol string, lookbackDays int) ([]domain.Bar, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	end := time.Now()
	// Calendar days per trading day runs about 7/5; pad generously.
	start := end.AddDate(0, 0, -(lookbackDays*2 + 10))

	var alpacaBars []marketdata.Bar
	err := util.Retry(ctx, 3, 500*time.Millisecond, func() error {
		var err error
		alpacaBars, err = p.client.GetBars(symbol, marketdata.GetBarsRequest{
			TimeFrame: marketdata.OneDay,
			Start:     start,
			End:       end,
			Feed:      p.feed,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("fetching daily bars for %s: %w", symbol, err)
	}

	bars := make([]domain.Bar, 0, len(alpacaBars))
	for _, ab := range alpacaBars {
		bars = append(bars, domain.Bar{
			Symbol:    symbol,
			Timestamp: ab.Timestamp,
			Open:      decimal.NewFromFloat(ab.Open),
			High:      decimal.NewFromFloat(ab.High),
			Low:       decimal.NewFromFloat(ab.Low),
			Close:     decimal.NewFromFloat(ab.Close),
			Volume:    int64(ab.Volume),
		})
	}
	if len(bars) > lookbackDays {
		bars = bars[len(bars)-lookbackDays:]
	}
	return bars, nil
}
