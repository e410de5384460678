// Package config loads the bot configuration from a YAML file, a .env file,
// and environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"aitrader/internal/domain"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the trading bot.
type Config struct {
	Mode    string      `yaml:"mode"` // simulated | paper | live
	Alpaca  Alpaca      `yaml:"alpaca"`
	Risk    Risk        `yaml:"risk"`
	Symbols Symbols     `yaml:"symbols"`
	Cost    Cost        `yaml:"cost"`
	SMA     SMA         `yaml:"sma"`
	Market  MarketHours `yaml:"market"`
	Storage Storage     `yaml:"storage"`
	Logging Logging     `yaml:"logging"`
	Safety  Safety      `yaml:"safety"`

	// DryRun previews decisions without submitting orders. Settable from
	// YAML, env, or the CLI flag.
	DryRun bool `yaml:"dry_run"`

	// Iterations bounds the control loop.
	Iterations int `yaml:"iterations"`
}

// Alpaca holds credentials and endpoints for the Alpaca broker API.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url"`
	DataURL   string `yaml:"data_url"`
	// DataRateLimitPerMin throttles market-data requests.
	DataRateLimitPerMin int `yaml:"data_rate_limit_per_min"`
}

// Risk defines the hard capital-preservation limits.
type Risk struct {
	MaxPositions         int             `yaml:"max_positions"`
	MaxOrderQuantity     int64           `yaml:"max_order_quantity"`
	MaxDailyLoss         decimal.Decimal `yaml:"max_daily_loss"`
	MaxOrderNotional     decimal.Decimal `yaml:"max_order_notional"`
	MaxPositionsNotional decimal.Decimal `yaml:"max_positions_notional"`
	OrderQuantity        int64           `yaml:"order_quantity"` // shares per order
}

// Symbols defines the trading universe and per-symbol eligibility rules.
type Symbols struct {
	Watchlist    []string        `yaml:"watchlist"`
	Whitelist    []string        `yaml:"whitelist"` // empty = no restriction
	Blacklist    []string        `yaml:"blacklist"`
	RequireQuote bool            `yaml:"require_quote"`
	MinPrice     decimal.Decimal `yaml:"min_price"`
	MaxPrice     decimal.Decimal `yaml:"max_price"`
	MinAvgVolume int64           `yaml:"min_avg_volume"`
}

// Cost defines spread and edge controls for order pricing.
type Cost struct {
	UseLimitOrders bool            `yaml:"use_limit_orders"`
	MaxSpreadBps   decimal.Decimal `yaml:"max_spread_bps"`
	MinEdgeBps     decimal.Decimal `yaml:"min_edge_bps"`
}

// SMA holds the crossover strategy periods.
type SMA struct {
	FastPeriod int `yaml:"fast_period"`
	SlowPeriod int `yaml:"slow_period"`
}

// MarketHours defines the trading session in exchange-local time.
type MarketHours struct {
	OpenHour              int  `yaml:"open_hour"`
	OpenMinute            int  `yaml:"open_minute"`
	CloseHour             int  `yaml:"close_hour"`
	CloseMinute           int  `yaml:"close_minute"`
	ComputeAfterHours     bool `yaml:"compute_after_hours"`
	AllowAfterHoursOrders bool `yaml:"allow_after_hours_orders"`
}

// Storage holds paths for durable state and the trade ledger.
type Storage struct {
	StateFile  string `yaml:"state_file"`
	OutputDir  string `yaml:"output_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Logging configures the application logger.
type Logging struct {
	Level string `yaml:"level"`
}

// Safety holds the explicit live-trading authorization flags. Both must be
// true, in addition to credentials, before live mode may mutate broker
// state.
type Safety struct {
	EnableLiveTrading          bool `yaml:"enable_live_trading"`
	IUnderstandLiveTradingRisk bool `yaml:"i_understand_live_trading_risk"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Defaults returns the built-in configuration, matching a conservative paper
// setup.
func Defaults() *Config {
	return &Config{
		Mode: string(domain.ModeSimulated),
		Alpaca: Alpaca{
			BaseURL:             "https://paper-api.alpaca.markets",
			DataURL:             "https://data.alpaca.markets",
			DataRateLimitPerMin: 200,
		},
		Risk: Risk{
			MaxPositions:         5,
			MaxOrderQuantity:     100,
			MaxDailyLoss:         decimal.NewFromInt(500),
			MaxOrderNotional:     decimal.NewFromInt(500),
			MaxPositionsNotional: decimal.NewFromInt(10000),
			OrderQuantity:        10,
		},
		Symbols: Symbols{
			Watchlist:    []string{"AAPL", "MSFT", "GOOGL", "AMZN", "TSLA"},
			RequireQuote: true,
			MinPrice:     decimal.NewFromInt(2),
			MaxPrice:     decimal.NewFromInt(1000),
			MinAvgVolume: 1_000_000,
		},
		Cost: Cost{
			UseLimitOrders: true,
			MaxSpreadBps:   decimal.NewFromInt(20),
			MinEdgeBps:     decimal.Zero,
		},
		SMA: SMA{FastPeriod: 10, SlowPeriod: 30},
		Market: MarketHours{
			OpenHour:   9,
			OpenMinute: 30,
			CloseHour:  16,
		},
		Storage: Storage{
			StateFile:  "out/state.json",
			OutputDir:  "out",
			SQLitePath: "out/ledger.db",
		},
		Logging:    Logging{Level: "info"},
		Iterations: 5,
	}
}

// Load reads the YAML configuration file at path (optional — an empty path
// keeps the defaults), loads a .env file if present, and applies environment
// variable overrides. The returned config is validated.
func Load(path string) (*Config, error) {
	// .env values never override variables already set in the environment.
	_ = godotenv.Load()

	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for user errors before any I/O happens.
func (c *Config) Validate() error {
	if _, err := domain.ParseMode(c.Mode); err != nil {
		return err
	}
	if c.Risk.MaxPositions <= 0 {
		return fmt.Errorf("risk.max_positions must be positive, got %d", c.Risk.MaxPositions)
	}
	if c.Risk.MaxOrderQuantity <= 0 {
		return fmt.Errorf("risk.max_order_quantity must be positive, got %d", c.Risk.MaxOrderQuantity)
	}
	if c.Risk.MaxDailyLoss.Sign() <= 0 {
		return fmt.Errorf("risk.max_daily_loss must be positive, got %s", c.Risk.MaxDailyLoss)
	}
	if c.Cost.MinEdgeBps.Sign() > 0 && !c.Cost.UseLimitOrders {
		return fmt.Errorf("cost.min_edge_bps requires cost.use_limit_orders")
	}
	if c.SMA.FastPeriod <= 0 || c.SMA.SlowPeriod <= c.SMA.FastPeriod {
		return fmt.Errorf("sma periods invalid: fast=%d slow=%d", c.SMA.FastPeriod, c.SMA.SlowPeriod)
	}
	if c.Iterations <= 0 {
		return fmt.Errorf("iterations must be positive, got %d", c.Iterations)
	}
	return nil
}

// LiveTrading reports whether this configuration targets real money: live
// mode against a non-paper endpoint.
func (c *Config) LiveTrading() bool {
	return c.Mode == string(domain.ModeLive) &&
		!strings.Contains(strings.ToLower(c.Alpaca.BaseURL), "paper")
}

// applyEnvOverrides checks well-known environment variables and overrides
// the corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MODE"); v != "" {
		cfg.Mode = v
	}
	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v := os.Getenv("ALPACA_BASE_URL"); v != "" {
		cfg.Alpaca.BaseURL = v
	}
	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}
	if v := os.Getenv("MAX_POSITIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Risk.MaxPositions = n
		}
	}
	if v := os.Getenv("MAX_ORDER_QUANTITY"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Risk.MaxOrderQuantity = n
		}
	}
	if v := os.Getenv("MAX_DAILY_LOSS"); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			cfg.Risk.MaxDailyLoss = d
		}
	}
	if v := os.Getenv("MAX_ORDER_NOTIONAL"); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			cfg.Risk.MaxOrderNotional = d
		}
	}
	if v := os.Getenv("MAX_POSITIONS_NOTIONAL"); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			cfg.Risk.MaxPositionsNotional = d
		}
	}
	if v := os.Getenv("WATCHLIST"); v != "" {
		cfg.Symbols.Watchlist = splitSymbols(v)
	}
	if v := os.Getenv("SYMBOL_WHITELIST"); v != "" {
		cfg.Symbols.Whitelist = splitSymbols(v)
	}
	if v := os.Getenv("SYMBOL_BLACKLIST"); v != "" {
		cfg.Symbols.Blacklist = splitSymbols(v)
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("STATE_FILE"); v != "" {
		cfg.Storage.StateFile = v
	}
	if v := os.Getenv("OUTPUT_DIR"); v != "" {
		cfg.Storage.OutputDir = v
	}
	if v := os.Getenv("ENABLE_LIVE_TRADING"); v != "" {
		cfg.Safety.EnableLiveTrading = boolEnv(v)
	}
	if v := os.Getenv("I_UNDERSTAND_LIVE_TRADING_RISK"); v != "" {
		cfg.Safety.IUnderstandLiveTradingRisk = boolEnv(v)
	}
	if v := os.Getenv("DRY_RUN"); v != "" {
		cfg.DryRun = boolEnv(v)
	}

	// Standard Alpaca env vars (highest priority — canonical names used by SDK).
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}

func splitSymbols(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, strings.ToUpper(p))
		}
	}
	return out
}

func boolEnv(v string) bool {
	return strings.EqualFold(v, "true") || v == "1"
}
