package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"quantlab/types"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

var NoDataErr = errors.New("no candles for any requested symbol")
var InvalidDateRangeErr = errors.New("start date must be before end date")
var NoSignalSourceErr = errors.New("no signal source given")
var DuplicateSourceErr = errors.New("signal source names must be unique")

// Engine loads price data and runs backtests against it. Every run gets its
// own Portfolio, so one Engine can run many backtests, in parallel via
// RunMany.
type Engine struct {
	store dataStore
	cfg   Config
	log   zerolog.Logger
	now   func() time.Time
}

type Option func(*Engine)

func WithLogger(log zerolog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

func NewEngine(store dataStore, cfg Config, opts ...Option) *Engine {
	e := &Engine{
		store: store,
		cfg:   cfg,
		log:   zerolog.Nop(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Config() Config { return e.cfg }

// Run fetches data for symbols over [start, end] and runs source against it.
func (e *Engine) Run(ctx context.Context, source SignalSource, symbols []string, start, end time.Time) (*Results, error) {
	if source == nil {
		return nil, NoSignalSourceErr
	}
	data, benchmark, err := e.LoadData(ctx, symbols, start, end)
	if err != nil {
		return nil, err
	}
	return e.RunDataset(source, data, benchmark, start, end)
}

// RunMany runs several sources over the same data concurrently. Results are
// keyed by source name, which must be unique. A run that fails is logged and
// left out of the result map.
func (e *Engine) RunMany(ctx context.Context, sources []SignalSource, symbols []string, start, end time.Time) (map[string]*Results, error) {
	if len(sources) == 0 {
		return nil, NoSignalSourceErr
	}
	seen := make(map[string]bool, len(sources))
	for _, src := range sources {
		if src == nil {
			return nil, NoSignalSourceErr
		}
		if seen[src.Name()] {
			return nil, fmt.Errorf("%w: %q", DuplicateSourceErr, src.Name())
		}
		seen[src.Name()] = true
	}
	data, benchmark, err := e.LoadData(ctx, symbols, start, end)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	out := make(map[string]*Results, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for _, src := range sources {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := e.RunDataset(src, data, benchmark, start, end)
			if err != nil {
				e.log.Warn().Err(err).Str("strategy", src.Name()).Msg("backtest failed")
				return nil
			}
			mu.Lock()
			out[src.Name()] = res
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// RunDataset runs source over an already materialised dataset.
func (e *Engine) RunDataset(source SignalSource, data *Dataset, benchmark []float64, start, end time.Time) (*Results, error) {
	if source == nil {
		return nil, NoSignalSourceErr
	}
	if data == nil || len(data.Dates()) == 0 {
		return nil, NoDataErr
	}

	portfolio := NewPortfolio(e.cfg.Portfolio)
	log := e.log.With().Str("strategy", source.Name()).Logger()
	bt := newBacktester(e.cfg, data, source, portfolio, log)
	history := bt.run()
	trades := portfolio.TradeHistory()

	metrics, err := CalculatePerformanceMetrics(history, trades, benchmark, e.cfg.Reporting.RiskFreeRate, start, end)
	if err != nil {
		return nil, fmt.Errorf("metrics for %s: %w", source.Name(), err)
	}

	res := &Results{
		ID:           uuid.New(),
		StrategyName: source.Name(),
		Symbols:      data.Symbols(),
		Start:        start,
		End:          end,
		Config:       e.cfg,
		History:      history,
		Trades:       trades,
		Metrics:      metrics,
		Stats:        bt.stats,
		Portfolio:    portfolio.Summary(),
		Data: DataInfo{
			Records:    data.Records(),
			Symbols:    data.Symbols(),
			Duplicates: data.Duplicates(),
			FirstDate:  data.Dates()[0],
			LastDate:   data.Dates()[len(data.Dates())-1],
		},
		CreatedAt: e.now(),
	}
	if w := e.cfg.Reporting.RollingWindow; w >= 2 && len(history) > w {
		res.Rolling, _ = RollingMetrics(history, w, e.cfg.Reporting.RiskFreeRate)
	}

	log.Info().
		Int("dates", bt.stats.Dates).
		Int("buys", bt.stats.BuysExecuted).
		Int("sells", bt.stats.SellsExecuted).
		Int("skipped_buys", bt.stats.SkippedBuys()).
		Int("signal_errors", bt.stats.SignalErrors).
		Float64("total_return", metrics.TotalReturn).
		Msg("backtest finished")
	return res, nil
}

// LoadData fetches every symbol and the benchmark before any simulation
// starts. Symbols that fail to load are skipped; a benchmark that fails to
// load leaves the run without relative metrics.
func (e *Engine) LoadData(ctx context.Context, symbols []string, start, end time.Time) (*Dataset, []float64, error) {
	if !start.Before(end) {
		return nil, nil, fmt.Errorf("%w: %s >= %s", InvalidDateRangeErr, start.Format(time.DateOnly), end.Format(time.DateOnly))
	}

	candles := make(map[string][]types.Candle, len(symbols))
	for _, sym := range dedupeSymbols(symbols) {
		cs, err := e.store.GetCandles(ctx, sym, e.cfg.Interval, start, end)
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, ctx.Err()
			}
			e.log.Warn().Err(err).Str("symbol", sym).Msg("skipping symbol, failed to load candles")
			continue
		}
		candles[sym] = cs
	}
	data := NewDataset(candles, e.cfg.Interval)
	if len(data.Symbols()) == 0 {
		return nil, nil, NoDataErr
	}
	if data.Duplicates() > 0 {
		e.log.Info().Int("duplicates", data.Duplicates()).Msg("collapsed duplicate bars")
	}

	return data, e.loadBenchmark(ctx, candles, start, end), nil
}

func (e *Engine) loadBenchmark(ctx context.Context, loaded map[string][]types.Candle, start, end time.Time) []float64 {
	sym := e.cfg.Reporting.BenchmarkSymbol
	if sym == "" {
		return nil
	}
	cs, ok := loaded[sym]
	if !ok {
		var err error
		cs, err = e.store.GetCandles(ctx, sym, e.cfg.Interval, start, end)
		if err != nil {
			e.log.Warn().Err(err).Str("benchmark", sym).Msg("benchmark unavailable")
			return nil
		}
	}
	bench := NewDataset(map[string][]types.Candle{sym: cs}, e.cfg.Interval)
	return periodReturns(bench.Closes(sym))
}

func dedupeSymbols(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if _, ok := seen[s]; ok || s == "" {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
