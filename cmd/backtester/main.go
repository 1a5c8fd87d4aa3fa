package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"quantlab/internal/config"
	"quantlab/internal/datasource"
	"quantlab/internal/engine"
	"quantlab/internal/export"
	"quantlab/internal/logging"
	"quantlab/internal/repository"
	"quantlab/internal/store"
	"quantlab/strategies/composite"
	"quantlab/strategies/donchian"
	"quantlab/strategies/filters"
	"quantlab/strategies/rsi"
	"quantlab/strategies/smacross"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type options struct {
	configPath string
	profile    string
	strategy   string
	symbols    string
	start      string
	end        string
	tradesCSV  string
	historyCSV string
	parquetDir string
	minPrice   float64
	progress   bool
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "path to YAML config (defaults apply when empty)")
	flag.StringVar(&opts.profile, "profile", config.DefaultProfile, "backtest profile from the config")
	flag.StringVar(&opts.strategy, "strategy", "sma", "strategy to run: sma, rsi, donchian, combo or all")
	flag.StringVar(&opts.symbols, "symbols", "AAPL,MSFT,GOOGL", "comma-separated symbols")
	flag.StringVar(&opts.start, "start", "2022-01-01", "first date, YYYY-MM-DD")
	flag.StringVar(&opts.end, "end", "2023-12-31", "last date, YYYY-MM-DD")
	flag.StringVar(&opts.tradesCSV, "trades-csv", "", "write trades to this CSV file")
	flag.StringVar(&opts.historyCSV, "history-csv", "", "write portfolio history to this CSV file")
	flag.StringVar(&opts.parquetDir, "parquet-dir", "", "write history and trades as Parquet into this directory")
	flag.Float64Var(&opts.minPrice, "min-price", 0, "skip bars closing below this price (0 disables)")
	flag.BoolVar(&opts.progress, "progress", false, "show a progress bar")
	flag.Parse()

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	log := logging.New(cfg.Logging.Level, cfg.Logging.Pretty)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg, opts, log); err != nil {
		log.Fatal().Err(err).Msg("backtest failed")
	}
}

func run(ctx context.Context, cfg *config.Config, opts options, log zerolog.Logger) error {
	start, err := time.Parse(time.DateOnly, opts.start)
	if err != nil {
		return fmt.Errorf("parse -start: %w", err)
	}
	end, err := time.Parse(time.DateOnly, opts.end)
	if err != nil {
		return fmt.Errorf("parse -end: %w", err)
	}
	symbols := splitSymbols(opts.symbols)

	engCfg, err := cfg.EngineConfig(opts.profile)
	if err != nil {
		return err
	}
	engCfg.Simulation.ShowProgress = opts.progress

	sources, err := buildSources(opts.strategy, opts.minPrice)
	if err != nil {
		return err
	}

	src, closeSource, err := openSource(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeSource()

	var runStore *store.SQLiteStore
	if cfg.Data.CachePath != "" {
		runStore, err = store.NewSQLiteStore(ctx, cfg.Data.CachePath)
		if err != nil {
			return err
		}
		defer runStore.Close()
		src = store.NewCachedSource(src, runStore, log)
	}

	eng := engine.NewEngine(src, engCfg, engine.WithLogger(log))
	log.Info().
		Str("profile", opts.profile).
		Strs("symbols", symbols).
		Time("start", start).
		Time("end", end).
		Int("strategies", len(sources)).
		Msg("starting backtest")

	var results map[string]*engine.Results
	if len(sources) == 1 {
		r, err := eng.Run(ctx, sources[0], symbols, start, end)
		if err != nil {
			return err
		}
		results = map[string]*engine.Results{r.StrategyName: r}
		r.PrintReport(os.Stdout)
	} else {
		results, err = eng.RunMany(ctx, sources, symbols, start, end)
		if err != nil {
			return err
		}
		engine.PrintComparison(os.Stdout, engine.CompareResults(results))
	}

	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)
	multi := len(results) > 1

	for _, name := range names {
		r := results[name]
		if opts.tradesCSV != "" {
			if err := engine.WriteTradesCSVFile(outputPath(opts.tradesCSV, name, multi), r.Trades); err != nil {
				return err
			}
		}
		if opts.historyCSV != "" {
			if err := engine.WriteHistoryCSVFile(outputPath(opts.historyCSV, name, multi), r.History); err != nil {
				return err
			}
		}
		if opts.parquetDir != "" {
			paths, err := export.WriteResults(opts.parquetDir, r)
			if err != nil {
				return err
			}
			log.Info().Str("history", paths.History).Str("trades", paths.Trades).Msg("parquet written")
		}
		if runStore != nil {
			if err := runStore.SaveRun(ctx, r); err != nil {
				log.Warn().Err(err).Str("strategy", name).Msg("failed to save run")
			} else {
				log.Info().Str("id", r.ID.String()).Str("strategy", name).Msg("run saved")
			}
		}
	}
	return nil
}

// openSource builds the configured candle source. The returned func releases
// whatever the source holds open.
func openSource(ctx context.Context, cfg *config.Config, log zerolog.Logger) (store.CandleSource, func(), error) {
	noop := func() {}
	switch cfg.Data.Source {
	case "postgres":
		db, err := repository.NewDatabase(ctx, cfg.Data.DatabaseURL)
		if err != nil {
			return nil, noop, err
		}
		return db, db.Close, nil
	case "alpaca":
		a, err := datasource.NewAlpacaSource(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.DataURL, cfg.Alpaca.Feed, log)
		if err != nil {
			return nil, noop, err
		}
		return a, noop, nil
	default:
		return datasource.NewCSVSource(cfg.Data.CSVDir), noop, nil
	}
}

func buildSources(name string, minPrice float64) ([]engine.SignalSource, error) {
	sma, err := smacross.New(10, 30)
	if err != nil {
		return nil, err
	}
	rsiSrc, err := rsi.New(14, 30, 70)
	if err != nil {
		return nil, err
	}
	channel, err := donchian.New(20)
	if err != nil {
		return nil, err
	}
	combo, err := composite.New("combo", composite.Majority, 0,
		composite.Member{Source: sma},
		composite.Member{Source: rsiSrc},
		composite.Member{Source: channel},
	)
	if err != nil {
		return nil, err
	}

	var picked []engine.SignalSource
	switch strings.ToLower(name) {
	case "sma":
		picked = []engine.SignalSource{sma}
	case "rsi":
		picked = []engine.SignalSource{rsiSrc}
	case "donchian":
		picked = []engine.SignalSource{channel}
	case "combo":
		picked = []engine.SignalSource{combo}
	case "all":
		picked = []engine.SignalSource{sma, rsiSrc, channel, combo}
	default:
		return nil, fmt.Errorf("unknown strategy %q", name)
	}

	if minPrice > 0 {
		for i, s := range picked {
			picked[i] = filters.Wrap(s, filters.MinPrice(decimal.NewFromFloat(minPrice)))
		}
	}
	return picked, nil
}

func splitSymbols(s string) []string {
	var out []string
	for _, sym := range strings.Split(s, ",") {
		if sym = strings.ToUpper(strings.TrimSpace(sym)); sym != "" {
			out = append(out, sym)
		}
	}
	return out
}

// outputPath inserts the strategy name before the extension when several
// runs share one output flag.
func outputPath(path, strategy string, multi bool) string {
	if !multi {
		return path
	}
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "_" + strategy + ext
}
