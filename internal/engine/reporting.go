package engine

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"quantlab/types"

	"github.com/shopspring/decimal"
)

var EmptyHistoryErr = errors.New("portfolio history is empty")
var InvalidHistoryErr = errors.New("portfolio history has no positive starting value")

// PerformanceMetrics is computed once from a finished run and not mutated
// afterwards. Ratios are plain floats; money amounts stay decimal.
type PerformanceMetrics struct {
	StartDate   time.Time `json:"start_date"`
	EndDate     time.Time `json:"end_date"`
	TradingDays int       `json:"trading_days"`

	InitialValue     float64 `json:"initial_value"`
	FinalValue       float64 `json:"final_value"`
	TotalReturn      float64 `json:"total_return"`
	AnnualizedReturn float64 `json:"annualized_return"`
	Volatility       float64 `json:"annualized_volatility"`

	SharpeRatio  float64 `json:"sharpe_ratio"`
	SortinoRatio float64 `json:"sortino_ratio"`
	CalmarRatio  float64 `json:"calmar_ratio"`

	MaxDrawdown         float64 `json:"max_drawdown"`
	MaxDrawdownDuration int     `json:"max_drawdown_duration"`
	VaR95               float64 `json:"var_95"`
	CVaR95              float64 `json:"cvar_95"`

	// Relative metrics. BenchmarkAvailable is false when no usable benchmark
	// series was supplied; TrackingComputed is false when the benchmark did
	// not line up one-for-one with the portfolio returns. In both cases the
	// dependent fields are 0 and mean "not computed".
	BenchmarkAvailable bool    `json:"benchmark_available"`
	TrackingComputed   bool    `json:"tracking_computed"`
	BenchmarkReturn    float64 `json:"benchmark_return"`
	Beta               float64 `json:"beta"`
	Alpha              float64 `json:"alpha"`
	TrackingError      float64 `json:"tracking_error"`
	InformationRatio   float64 `json:"information_ratio"`

	TotalTrades          int             `json:"total_trades"`
	WinningTrades        int             `json:"winning_trades"`
	LosingTrades         int             `json:"losing_trades"`
	WinRate              float64         `json:"win_rate"`
	ProfitFactor         float64         `json:"profit_factor"`
	AvgWin               decimal.Decimal `json:"avg_win"`
	AvgLoss              decimal.Decimal `json:"avg_loss"`
	MaxConsecutiveLosses int             `json:"max_consecutive_losses"`
	NetProfit            decimal.Decimal `json:"net_profit"`
	TotalFees            decimal.Decimal `json:"total_fees"`
}

type returnMetrics struct {
	total, annualized, volatility, sharpe, sortino float64
}

type benchmarkMetrics struct {
	available, tracking                              bool
	benchReturn, beta, alpha, trackingErr, infoRatio float64
}

type tradeMetrics struct {
	total, wins, losses, maxLossStreak int
	winRate, profitFactor              float64
	avgWin, avgLoss, netProfit, fees   decimal.Decimal
}

// CalculatePerformanceMetrics derives return, risk, relative and trade
// statistics from a completed run. It reads its inputs only and does no I/O;
// any benchmark fetch must already have happened.
func CalculatePerformanceMetrics(
	history []types.PortfolioView,
	trades []types.Trade,
	benchmark []float64,
	riskFreeRate float64,
	start, end time.Time,
) (*PerformanceMetrics, error) {
	values, err := historyValues(history)
	if err != nil {
		return nil, err
	}
	returns := periodReturns(values)

	m := &PerformanceMetrics{
		StartDate:    start,
		EndDate:      end,
		TradingDays:  len(returns),
		InitialValue: values[0],
		FinalValue:   values[len(values)-1],
	}

	var rm returnMetrics
	var bm benchmarkMetrics
	var tm tradeMetrics

	var wg sync.WaitGroup
	wg.Add(4)
	// Done only after each result is stored.
	go func() {
		defer wg.Done()
		rm = calcReturnMetrics(values, returns, riskFreeRate)
	}()
	go func() {
		defer wg.Done()
		m.MaxDrawdown, m.MaxDrawdownDuration = calcDrawdownMetrics(values)
	}()
	go func() {
		defer wg.Done()
		m.VaR95, m.CVaR95 = calcTailRisk(returns)
	}()
	go func() {
		defer wg.Done()
		tm = calcTradeMetrics(trades)
	}()
	wg.Wait()

	m.TotalReturn = rm.total
	m.AnnualizedReturn = rm.annualized
	m.Volatility = rm.volatility
	m.SharpeRatio = rm.sharpe
	m.SortinoRatio = rm.sortino
	if m.MaxDrawdown != 0 {
		m.CalmarRatio = rm.annualized / math.Abs(m.MaxDrawdown)
	}

	bm = calcBenchmarkMetrics(returns, benchmark, riskFreeRate, rm.annualized)
	m.BenchmarkAvailable = bm.available
	m.TrackingComputed = bm.tracking
	m.BenchmarkReturn = bm.benchReturn
	m.Beta = bm.beta
	m.Alpha = bm.alpha
	m.TrackingError = bm.trackingErr
	m.InformationRatio = bm.infoRatio

	m.TotalTrades = tm.total
	m.WinningTrades = tm.wins
	m.LosingTrades = tm.losses
	m.WinRate = tm.winRate
	m.ProfitFactor = tm.profitFactor
	m.AvgWin = tm.avgWin
	m.AvgLoss = tm.avgLoss
	m.MaxConsecutiveLosses = tm.maxLossStreak
	m.NetProfit = tm.netProfit
	m.TotalFees = tm.fees
	return m, nil
}

func historyValues(history []types.PortfolioView) ([]float64, error) {
	if len(history) == 0 {
		return nil, EmptyHistoryErr
	}
	values := make([]float64, len(history))
	for i, view := range history {
		values[i] = portfolioValue(view).InexactFloat64()
	}
	if values[0] <= 0 {
		return nil, InvalidHistoryErr
	}
	return values, nil
}

// calcReturnMetrics uses the sample deviation throughout, so Sortino is 0
// both with no negative returns and with exactly one.
func calcReturnMetrics(values, returns []float64, riskFree float64) returnMetrics {
	var rm returnMetrics
	rm.total = values[len(values)-1]/values[0] - 1

	years := float64(len(returns)) / tradingDaysPerYear
	if years > 0 {
		rm.annualized = math.Pow(1+rm.total, 1/years) - 1
	}
	rm.volatility = stddev(returns) * sqrtYear
	if rm.volatility > 0 {
		rm.sharpe = (rm.annualized - riskFree) / rm.volatility
	}

	var downside []float64
	for _, r := range returns {
		if r < 0 {
			downside = append(downside, r)
		}
	}
	if dd := stddev(downside) * sqrtYear; dd > 0 {
		rm.sortino = (rm.annualized - riskFree) / dd
	}
	return rm
}

// calcDrawdownMetrics returns the deepest drawdown from the running peak (a
// value in [-1, 0]) and the longest run of consecutive periods spent below
// the peak.
func calcDrawdownMetrics(values []float64) (float64, int) {
	dd := drawdowns(values)
	maxDD := 0.0
	longest, current := 0, 0
	for _, x := range dd {
		if x < maxDD {
			maxDD = x
		}
		if x < 0 {
			current++
			longest = max(longest, current)
		} else {
			current = 0
		}
	}
	return maxDD, longest
}

func drawdowns(values []float64) []float64 {
	out := make([]float64, len(values))
	peak := math.Inf(-1)
	for i, v := range values {
		peak = math.Max(peak, v)
		if peak > 0 {
			out[i] = (v - peak) / peak
		}
	}
	return out
}

func calcTailRisk(returns []float64) (float64, float64) {
	if len(returns) == 0 {
		return 0, 0
	}
	varLevel := percentile(returns, 0.05)
	var tail []float64
	for _, r := range returns {
		if r <= varLevel {
			tail = append(tail, r)
		}
	}
	return varLevel, mean(tail)
}

func calcBenchmarkMetrics(returns, benchmark []float64, riskFree, annualized float64) benchmarkMetrics {
	var bm benchmarkMetrics
	if len(benchmark) == 0 || len(returns) == 0 {
		return bm
	}
	bm.available = true
	bm.benchReturn = compound(benchmark)

	p, b := tailAlign(returns, benchmark)
	if len(p) >= 2 {
		if v := stddev(b); v > 0 {
			bm.beta = covariance(p, b) / (v * v)
		}
	}
	bm.alpha = annualized - (riskFree + bm.beta*(bm.benchReturn-riskFree))

	if len(returns) == len(benchmark) {
		bm.tracking = true
		excess := make([]float64, len(returns))
		for i := range returns {
			excess[i] = returns[i] - benchmark[i]
		}
		bm.trackingErr = stddev(excess) * sqrtYear
		if bm.trackingErr > 0 {
			bm.infoRatio = mean(excess) * sqrtYear / bm.trackingErr
		}
	}
	return bm
}

func calcTradeMetrics(trades []types.Trade) tradeMetrics {
	tm := tradeMetrics{
		avgWin:    decimal.Zero,
		avgLoss:   decimal.Zero,
		netProfit: decimal.Zero,
		fees:      decimal.Zero,
	}
	for _, tr := range trades {
		tm.fees = tm.fees.Add(tr.Fees())
	}

	trips := PairRoundTrips(trades)
	tm.total = len(trips)
	sumWins, sumLosses, gross := decimal.Zero, decimal.Zero, decimal.Zero
	streak := 0
	for _, rt := range trips {
		gross = gross.Add(rt.GrossPnL)
		switch {
		case rt.NetPnL.IsPositive():
			tm.wins++
			sumWins = sumWins.Add(rt.NetPnL)
			streak = 0
		case rt.NetPnL.IsNegative():
			tm.losses++
			sumLosses = sumLosses.Add(rt.NetPnL.Abs())
			streak++
			tm.maxLossStreak = max(tm.maxLossStreak, streak)
		default:
			streak = 0
		}
	}
	tm.netProfit = gross.Sub(tm.fees)

	if tm.total > 0 {
		tm.winRate = float64(tm.wins) / float64(tm.total)
	}
	if tm.wins > 0 {
		tm.avgWin = sumWins.Div(decimal.NewFromInt(int64(tm.wins)))
	}
	if tm.losses > 0 {
		tm.avgLoss = sumLosses.Div(decimal.NewFromInt(int64(tm.losses)))
		tm.profitFactor = sumWins.Div(sumLosses).InexactFloat64()
	}
	return tm
}

// RollingPoint holds trailing-window statistics ending at Time.
type RollingPoint struct {
	Time       time.Time
	Return     float64
	Volatility float64
	Sharpe     float64
	Drawdown   float64
}

// RollingMetrics computes trailing statistics over window returns. Points
// start once a full window of returns is available.
func RollingMetrics(history []types.PortfolioView, window int, riskFree float64) ([]RollingPoint, error) {
	values, err := historyValues(history)
	if err != nil {
		return nil, err
	}
	if window < 2 {
		return nil, fmt.Errorf("rolling window must be at least 2, got %d", window)
	}
	returns := periodReturns(values)
	var out []RollingPoint
	for i := window; i < len(values); i++ {
		rets := returns[i-window : i]
		pt := RollingPoint{
			Time:       history[i].Time,
			Return:     compound(rets),
			Volatility: stddev(rets) * sqrtYear,
		}
		if pt.Volatility > 0 {
			pt.Sharpe = (pt.Return*tradingDaysPerYear/float64(window) - riskFree) / pt.Volatility
		}
		peak := values[i-window+1]
		for _, v := range values[i-window+1 : i+1] {
			peak = math.Max(peak, v)
		}
		if peak > 0 {
			pt.Drawdown = (values[i] - peak) / peak
		}
		out = append(out, pt)
	}
	return out, nil
}

// portfolioValue prefers the stamped total and falls back to marking the
// positions for views built by hand.
func portfolioValue(view types.PortfolioView) decimal.Decimal {
	if !view.TotalValue.IsZero() {
		return view.TotalValue
	}
	value := view.Cash
	for _, pos := range view.Positions {
		value = value.Add(pos.LastPrice.Mul(decimal.NewFromInt(pos.Quantity)))
	}
	return value
}

func PrintReport(w io.Writer, name string, m *PerformanceMetrics, stats *RunStats) {
	fmt.Fprintf(w, "===== %s =====\n", name)
	fmt.Fprintf(w, "Period:                %s -> %s\n", m.StartDate.Format("2006-01-02"), m.EndDate.Format("2006-01-02"))
	fmt.Fprintf(w, "Trading Days:          %d\n", m.TradingDays)

	fmt.Fprintln(w, "\n-- Returns --")
	fmt.Fprintf(w, "Initial Value:         %.2f\n", m.InitialValue)
	fmt.Fprintf(w, "Final Value:           %.2f\n", m.FinalValue)
	fmt.Fprintf(w, "Total Return:          %.2f%%\n", m.TotalReturn*100)
	fmt.Fprintf(w, "Annualized Return:     %.2f%%\n", m.AnnualizedReturn*100)
	fmt.Fprintf(w, "Volatility:            %.2f%%\n", m.Volatility*100)

	fmt.Fprintln(w, "\n-- Risk-Adjusted --")
	fmt.Fprintf(w, "Sharpe Ratio:          %.3f\n", m.SharpeRatio)
	fmt.Fprintf(w, "Sortino Ratio:         %.3f\n", m.SortinoRatio)
	fmt.Fprintf(w, "Calmar Ratio:          %.3f\n", m.CalmarRatio)

	fmt.Fprintln(w, "\n-- Drawdown & Tail --")
	fmt.Fprintf(w, "Max Drawdown:          %.2f%%\n", m.MaxDrawdown*100)
	fmt.Fprintf(w, "Max DD Duration:       %d periods\n", m.MaxDrawdownDuration)
	fmt.Fprintf(w, "VaR 95%%:               %.4f\n", m.VaR95)
	fmt.Fprintf(w, "CVaR 95%%:              %.4f\n", m.CVaR95)

	fmt.Fprintln(w, "\n-- Benchmark --")
	if m.BenchmarkAvailable {
		fmt.Fprintf(w, "Benchmark Return:      %.2f%%\n", m.BenchmarkReturn*100)
		fmt.Fprintf(w, "Beta:                  %.3f\n", m.Beta)
		fmt.Fprintf(w, "Alpha:                 %.4f\n", m.Alpha)
		if m.TrackingComputed {
			fmt.Fprintf(w, "Tracking Error:        %.4f\n", m.TrackingError)
			fmt.Fprintf(w, "Information Ratio:     %.3f\n", m.InformationRatio)
		} else {
			fmt.Fprintln(w, "Tracking Error:        n/a (series lengths differ)")
		}
	} else {
		fmt.Fprintln(w, "Benchmark:             n/a")
	}

	fmt.Fprintln(w, "\n-- Trades --")
	fmt.Fprintf(w, "Round Trips:           %d\n", m.TotalTrades)
	fmt.Fprintf(w, "Win Rate:              %.2f%%\n", m.WinRate*100)
	fmt.Fprintf(w, "Profit Factor:         %.3f\n", m.ProfitFactor)
	fmt.Fprintf(w, "Avg Win:               %s\n", m.AvgWin.StringFixed(2))
	fmt.Fprintf(w, "Avg Loss:              %s\n", m.AvgLoss.StringFixed(2))
	fmt.Fprintf(w, "Max Consecutive Losses:%d\n", m.MaxConsecutiveLosses)
	fmt.Fprintf(w, "Net Profit:            %s\n", m.NetProfit.StringFixed(2))
	fmt.Fprintf(w, "Total Fees:            %s\n", m.TotalFees.StringFixed(2))

	if stats != nil {
		fmt.Fprintln(w, "\n-- Simulation --")
		fmt.Fprintf(w, "Buys / Sells:          %d / %d\n", stats.BuysExecuted, stats.SellsExecuted)
		fmt.Fprintf(w, "Skipped Buys:          %d (cash %d, sizing %d, max positions %d, held %d, halted %d)\n",
			stats.SkippedBuys(), stats.SkippedInsufficientCash, stats.SkippedSizing,
			stats.SkippedMaxPositions, stats.SkippedAlreadyHeld, stats.SkippedDrawdownHalt)
		fmt.Fprintf(w, "Signal Errors:         %d\n", stats.SignalErrors)
	}
	fmt.Fprintln(w, "==========================")
}
