package engine

import (
	"fmt"
	"io"
	"os"
	"time"

	"quantlab/types"

	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"
	"github.com/shopspring/decimal"
)

// RunStats counts what the loop absorbed instead of failing on.
type RunStats struct {
	Dates                   int       `json:"dates"`
	SignalsEvaluated        int       `json:"signals_evaluated"`
	SignalErrors            int       `json:"signal_errors"`
	WarmupSkips             int       `json:"warmup_skips"`
	BuysExecuted            int       `json:"buys_executed"`
	SellsExecuted           int       `json:"sells_executed"`
	SkippedInsufficientCash int       `json:"skipped_insufficient_cash"`
	SkippedSizing           int       `json:"skipped_sizing"`
	SkippedMaxPositions     int       `json:"skipped_max_positions"`
	SkippedAlreadyHeld      int       `json:"skipped_already_held"`
	SkippedDrawdownHalt     int       `json:"skipped_drawdown_halt"`
	SkippedNoPosition       int       `json:"skipped_no_position"`
	SkippedBadPrice         int       `json:"skipped_bad_price"`
	HaltedAt                time.Time `json:"halted_at"`
}

func (s RunStats) SkippedBuys() int {
	return s.SkippedInsufficientCash + s.SkippedSizing + s.SkippedMaxPositions +
		s.SkippedAlreadyHeld + s.SkippedDrawdownHalt
}

// backtester walks the dataset one date at a time. The ledger is the only
// state carried from one date to the next.
type backtester struct {
	cfg       Config
	data      *Dataset
	source    SignalSource
	portfolio *Portfolio
	sizer     sizer
	log       zerolog.Logger

	stats   RunStats
	history []types.PortfolioView
	peak    decimal.Decimal
	halted  bool
}

func newBacktester(cfg Config, data *Dataset, source SignalSource, portfolio *Portfolio, log zerolog.Logger) *backtester {
	return &backtester{
		cfg:       cfg,
		data:      data,
		source:    source,
		portfolio: portfolio,
		sizer:     newSizer(cfg.Sizing, cfg.Portfolio),
		log:       log,
	}
}

func (b *backtester) run() []types.PortfolioView {
	dates := b.data.Dates()
	bar := initProgressBar(len(dates), b.cfg.Simulation.ShowProgress)
	b.history = make([]types.PortfolioView, 0, len(dates))

	for _, date := range dates {
		b.step(date)
		_ = bar.Add(1)
	}
	_ = bar.Finish()
	b.stats.Dates = len(dates)
	return b.history
}

func (b *backtester) step(date time.Time) {
	for _, symbol := range b.data.Symbols() {
		bar, ok := b.data.BarAt(symbol, date)
		if !ok {
			continue
		}
		window := b.data.Window(symbol, date)
		if window.Len() < b.cfg.Simulation.WarmupBars {
			b.stats.WarmupSkips++
			continue
		}

		switch b.signal(window) {
		case types.SignalBuy:
			b.buy(symbol, bar.Close, date)
		case types.SignalSell:
			b.sell(symbol, bar.Close, date)
		}
	}

	value := b.portfolio.UpdatePortfolioValue(b.data.Snapshot(date))
	b.checkDrawdown(date, value)
	b.history = append(b.history, b.portfolio.GetPortfolioSnapshot(date))
}

// signal asks the source for today's signal. Errors and panics are
// absorbed as a hold so one bad date cannot end the run.
func (b *backtester) signal(window types.Window) (sig types.Signal) {
	b.stats.SignalsEvaluated++
	defer func() {
		if r := recover(); r != nil {
			b.stats.SignalErrors++
			b.log.Debug().
				Str("source", b.source.Name()).
				Str("symbol", window.Symbol).
				Time("date", window.Time).
				Str("panic", fmt.Sprint(r)).
				Msg("signal source panicked, holding")
			sig = types.SignalHold
		}
	}()

	s, err := b.source.GenerateSignal(window)
	if err != nil {
		b.stats.SignalErrors++
		b.log.Debug().
			Err(err).
			Str("source", b.source.Name()).
			Str("symbol", window.Symbol).
			Time("date", window.Time).
			Msg("signal source failed, holding")
		return types.SignalHold
	}
	return s.Normalize()
}

func (b *backtester) buy(symbol string, price decimal.Decimal, date time.Time) {
	if b.halted {
		b.stats.SkippedDrawdownHalt++
		return
	}
	if !b.cfg.Simulation.AllowPyramiding && b.portfolio.GetPosition(symbol) > 0 {
		b.stats.SkippedAlreadyHeld++
		return
	}

	qty, reason := b.sizer.quantity(b.portfolio, symbol, price)
	switch reason {
	case skipBadPrice:
		b.stats.SkippedBadPrice++
		return
	case skipMaxPositions:
		b.stats.SkippedMaxPositions++
		return
	case skipZeroShares:
		b.stats.SkippedSizing++
		return
	}

	ok, err := b.portfolio.Buy(symbol, qty, price, date)
	switch {
	case err != nil:
		b.stats.SkippedBadPrice++
		b.log.Warn().Err(err).Str("symbol", symbol).Time("date", date).Msg("buy rejected")
	case !ok:
		b.stats.SkippedInsufficientCash++
		b.log.Debug().Str("symbol", symbol).Int64("qty", qty).Time("date", date).Msg("insufficient cash")
	default:
		b.stats.BuysExecuted++
	}
}

func (b *backtester) sell(symbol string, price decimal.Decimal, date time.Time) {
	qty := b.portfolio.GetPosition(symbol)
	if qty == 0 {
		b.stats.SkippedNoPosition++
		return
	}
	ok, err := b.portfolio.Sell(symbol, qty, price, date)
	switch {
	case err != nil:
		b.stats.SkippedBadPrice++
		b.log.Warn().Err(err).Str("symbol", symbol).Time("date", date).Msg("sell rejected")
	case ok:
		b.stats.SellsExecuted++
	}
}

func (b *backtester) checkDrawdown(date time.Time, value decimal.Decimal) {
	if value.GreaterThan(b.peak) {
		b.peak = value
	}
	limit := b.cfg.Simulation.MaxDrawdownLimit
	if b.halted || limit <= 0 || !b.peak.IsPositive() {
		return
	}
	dd := value.Sub(b.peak).Div(b.peak).InexactFloat64()
	if dd < -limit {
		b.halted = true
		b.stats.HaltedAt = date
		b.log.Info().
			Time("date", date).
			Float64("drawdown", dd).
			Float64("limit", limit).
			Msg("drawdown limit breached, blocking new buys")
	}
}

func initProgressBar(maxTicks int, visible bool) *progressbar.ProgressBar {
	var w io.Writer = io.Discard
	if visible {
		w = os.Stderr
	}
	return progressbar.NewOptions(maxTicks,
		progressbar.OptionSetWriter(w),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetElapsedTime(true),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetDescription("Backtesting in progress..."),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}))
}
