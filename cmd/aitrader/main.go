// Command aitrader runs the trading bot: signal evaluation, the safety
// pipeline, order submission, and state reconciliation against the broker.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"aitrader/internal/broker"
	"aitrader/internal/config"
	"aitrader/internal/data"
	"aitrader/internal/domain"
	"aitrader/internal/engine"
	"aitrader/internal/journal"
	"aitrader/internal/metrics"
	"aitrader/internal/state"
	"aitrader/internal/strategy"
	"aitrader/internal/strategy/builtins"
	"aitrader/internal/util"
)

var (
	flagConfig      string
	flagMode        string
	flagDryRun      bool
	flagIterations  int
	flagMetricsAddr string
)

func main() {
	root := &cobra.Command{
		Use:           "aitrader",
		Short:         "Equity trading bot with hard capital-preservation limits",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "path to YAML config file")
	root.PersistentFlags().StringVar(&flagMode, "mode", "", "operating mode: simulated, paper, or live")
	root.PersistentFlags().BoolVar(&flagDryRun, "dry-run", false, "evaluate signals without submitting orders")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the trading loop",
		RunE:  runRun,
	}
	runCmd.Flags().IntVar(&flagIterations, "iterations", 0, "override the iteration budget")
	runCmd.Flags().StringVar(&flagMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9100)")

	ordersCmd := &cobra.Command{
		Use:   "orders",
		Short: "Inspect and manage open orders",
	}
	ordersCmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List open orders at the broker",
			RunE:  runOrdersList,
		},
		&cobra.Command{
			Use:   "cancel <order-id>",
			Short: "Cancel an open order",
			Args:  cobra.ExactArgs(1),
			RunE:  runOrdersCancel,
		},
		newOrdersReplaceCmd(),
	)

	backtestCmd := newBacktestCmd()

	root.AddCommand(
		runCmd,
		&cobra.Command{
			Use:   "reconcile",
			Short: "Sync local state from broker ground truth and exit",
			RunE:  runReconcile,
		},
		&cobra.Command{
			Use:   "preflight",
			Short: "Validate configuration, authorization, and broker connectivity",
			RunE:  runPreflight,
		},
		ordersCmd,
		backtestCmd,
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration and applies CLI flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	if flagMode != "" {
		cfg.Mode = flagMode
		if _, err := domain.ParseMode(cfg.Mode); err != nil {
			return nil, err
		}
	}
	if flagDryRun {
		cfg.DryRun = true
	}
	if flagIterations > 0 {
		cfg.Iterations = flagIterations
	}
	return cfg, nil
}

// runtime bundles the collaborators shared by the subcommands.
type runtime struct {
	cfg      *config.Config
	broker   broker.Broker
	provider data.Provider
	gate     *engine.SafetyGate
	store    *state.Store
	botState *state.BotState
	risk     *engine.RiskManager
}

func buildRuntime(cfg *config.Config) (*runtime, error) {
	mode := domain.Mode(cfg.Mode)
	auth := engine.Authorization{
		HasCredentials:     cfg.Alpaca.APIKey != "" && cfg.Alpaca.APISecret != "",
		LiveTradingEnabled: cfg.Safety.EnableLiveTrading,
		RiskAcknowledged:   cfg.Safety.IUnderstandLiveTradingRisk,
	}
	gate := engine.NewSafetyGate(mode, auth, cfg.DryRun)

	// Authorization before any I/O.
	if err := gate.Check(); err != nil {
		return nil, err
	}

	var (
		b        broker.Broker
		provider data.Provider
	)
	if mode == domain.ModeSimulated {
		sim := broker.NewSimulatorBroker()
		static := data.NewStaticProvider()
		for i, symbol := range cfg.Symbols.Watchlist {
			bars := data.SyntheticBars(symbol, 3*cfg.SMA.SlowPeriod, 100, int64(i+1))
			static.SetBars(symbol, bars)
			last := bars[len(bars)-1].Close
			tick := decimal.RequireFromString("0.05")
			sim.SetQuote(symbol, last.Sub(tick), last.Add(tick), last)
		}
		b, provider = sim, static
	} else {
		b = broker.NewAlpacaBroker(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.BaseURL, cfg.Alpaca.DataURL)
		provider = data.NewAlpacaProvider(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.DataURL, cfg.Alpaca.DataRateLimitPerMin)
	}

	store := state.NewStore(cfg.Storage.StateFile)
	botState, err := store.Load(uuid.NewString()[:8])
	if err != nil {
		// Corrupt state is fatal: resetting would erase a loss boundary.
		return nil, err
	}

	risk := engine.NewRiskManager(cfg.Risk, botState.TodayPnL(), botState.RiskPositions())

	return &runtime{
		cfg:      cfg,
		broker:   b,
		provider: provider,
		gate:     gate,
		store:    store,
		botState: botState,
		risk:     risk,
	}, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runRun(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := util.NewLogger(cfg.Logging.Level)
	util.SetDefault(log)

	rt, err := buildRuntime(cfg)
	if err != nil {
		return err
	}

	if cfg.LiveTrading() {
		log.Warn("LIVE TRADING ENABLED: orders will use real money")
	}
	log.Info("starting",
		"mode", cfg.Mode,
		"dry_run", cfg.DryRun,
		"run_id", rt.botState.RunID,
		"broker", rt.broker.Name(),
		"watchlist", cfg.Symbols.Watchlist,
		"iterations", cfg.Iterations,
	)

	if flagMetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			if err := http.ListenAndServe(flagMetricsAddr, mux); err != nil {
				log.Error("metrics server failed", "err", err)
			}
		}()
	}

	csvLedger, err := journal.NewCSVLedger(cfg.Storage.OutputDir)
	if err != nil {
		return err
	}
	sqlLedger, err := journal.NewSQLiteLedger(cfg.Storage.SQLitePath)
	if err != nil {
		return err
	}
	ledger := journal.NewMulti(csvLedger, sqlLedger)
	defer ledger.Close()

	strat := builtins.NewSMACross(cfg.SMA.FastPeriod, cfg.SMA.SlowPeriod, cfg.Risk.OrderQuantity)
	elig := engine.NewEligibilityFilter(cfg.Symbols, rt.provider, log)
	cost := engine.NewCostModel(cfg.Cost)
	pipeline := engine.NewPipeline(rt.gate, rt.risk, elig, cost, rt.broker, rt.botState, rt.store, strat.Name(), log)
	recon := engine.NewReconciler(rt.broker, log)
	eng := engine.NewEngine(cfg, rt.broker, rt.provider, strat, pipeline, rt.risk, recon, rt.botState, rt.store, ledger, log)

	ctx, cancel := signalContext()
	defer cancel()

	summary, err := eng.Run(ctx)
	if err != nil {
		return err
	}
	log.Info("finished",
		"submitted", summary.Submitted,
		"blocked", summary.Blocked,
		"daily_pnl", summary.DailyPnL,
	)
	return nil
}

func runReconcile(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := util.NewLogger(cfg.Logging.Level)

	rt, err := buildRuntime(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	changed := engine.NewReconciler(rt.broker, log).Run(ctx, rt.botState, rt.risk)
	if changed {
		if err := rt.store.Save(rt.botState); err != nil {
			return fmt.Errorf("saving reconciled state: %w", err)
		}
	}

	fmt.Printf("reconciled (changed=%v): %d open orders, %d positions, today_pnl=%s\n",
		changed, len(rt.botState.OpenOrderIDs), len(rt.botState.Positions), rt.botState.TodayPnL())
	return nil
}

func runPreflight(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	fmt.Printf("config: ok (mode=%s, dry_run=%v)\n", cfg.Mode, cfg.DryRun)

	rt, err := buildRuntime(cfg)
	if err != nil {
		return fmt.Errorf("authorization: %w", err)
	}
	fmt.Println("authorization: ok")
	fmt.Printf("state: ok (daily_date=%s, today_pnl=%s, %d positions)\n",
		rt.botState.DailyDate, rt.botState.TodayPnL(), len(rt.botState.Positions))

	ctx, cancel := signalContext()
	defer cancel()

	positions, err := rt.broker.GetPositions(ctx)
	if err != nil {
		return fmt.Errorf("broker connectivity: %w", err)
	}
	fmt.Printf("broker: ok (%s, %d positions)\n", rt.broker.Name(), len(positions))
	return nil
}

func runOrdersList(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	rt, err := buildRuntime(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	ids, err := rt.broker.GetOpenOrders(ctx)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Println("no open orders")
		return nil
	}
	for _, id := range ids {
		marker := " "
		if rt.botState.HasOpenOrder(id) {
			marker = "*" // tracked locally
		}
		fmt.Printf("%s %s\n", marker, id)
	}
	return nil
}

func runOrdersCancel(_ *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	rt, err := buildRuntime(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	if err := rt.broker.CancelOrder(ctx, args[0]); err != nil {
		return err
	}
	fmt.Printf("cancel requested for %s\n", args[0])
	return nil
}

func newOrdersReplaceCmd() *cobra.Command {
	var (
		priceStr string
		qty      int64
	)
	cmd := &cobra.Command{
		Use:   "replace <order-id>",
		Short: "Replace the limit price and/or quantity of an open order",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			rt, err := buildRuntime(cfg)
			if err != nil {
				return err
			}

			price := decimal.Zero
			if priceStr != "" {
				price, err = decimal.NewFromString(priceStr)
				if err != nil {
					return fmt.Errorf("parsing --price: %w", err)
				}
			}
			if price.IsZero() && qty == 0 {
				return fmt.Errorf("nothing to replace: set --price and/or --qty")
			}

			ctx, cancel := signalContext()
			defer cancel()

			order, err := rt.broker.ReplaceOrder(ctx, args[0], price, qty)
			if err != nil {
				return err
			}
			fmt.Printf("replaced %s: qty=%d limit=%s status=%s\n",
				order.ID, order.Quantity, order.LimitPrice, order.Status)
			return nil
		},
	}
	cmd.Flags().StringVar(&priceStr, "price", "", "new limit price")
	cmd.Flags().Int64Var(&qty, "qty", 0, "new quantity")
	return cmd
}

func newBacktestCmd() *cobra.Command {
	var (
		symbol  string
		cashStr string
	)
	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Replay historical bars through the SMA strategy",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			rt, err := buildRuntime(cfg)
			if err != nil {
				return err
			}

			cash, err := decimal.NewFromString(cashStr)
			if err != nil {
				return fmt.Errorf("parsing --cash: %w", err)
			}

			ctx, cancel := signalContext()
			defer cancel()

			bars, err := rt.provider.GetDailyBars(ctx, symbol, 10*cfg.SMA.SlowPeriod)
			if err != nil {
				return err
			}

			var strat strategy.Strategy = builtins.NewSMACross(cfg.SMA.FastPeriod, cfg.SMA.SlowPeriod, cfg.Risk.OrderQuantity)
			res, err := strategy.NewBacktester().Run(ctx, strat, symbol, bars, cash)
			if err != nil {
				return err
			}

			fmt.Printf("%s over %d bars: return=%s%% trades=%d win_rate=%s equity=%s\n",
				symbol, len(bars),
				res.TotalReturn.Mul(decimal.NewFromInt(100)).StringFixed(2),
				res.TotalTrades,
				res.WinRate().StringFixed(2),
				res.FinalEquity.StringFixed(2),
			)
			return nil
		},
	}
	cmd.Flags().StringVar(&symbol, "symbol", "AAPL", "symbol to backtest")
	cmd.Flags().StringVar(&cashStr, "cash", "25000", "initial cash")
	return cmd
}
