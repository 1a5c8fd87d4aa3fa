package engine

import (
	"fmt"
	"io"
	"sort"
	"time"

	"quantlab/types"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type DataInfo struct {
	Records    int
	Symbols    []string
	Duplicates int
	FirstDate  time.Time
	LastDate   time.Time
}

// Results bundles everything a finished run produced.
type Results struct {
	ID           uuid.UUID
	StrategyName string
	Symbols      []string
	Start        time.Time
	End          time.Time
	Config       Config
	History      []types.PortfolioView
	Trades       []types.Trade
	Metrics      *PerformanceMetrics
	Stats        RunStats
	Portfolio    PortfolioSummary
	Data         DataInfo
	Rolling      []RollingPoint
	CreatedAt    time.Time
}

type ResultSummary struct {
	ID               string    `json:"id"`
	Strategy         string    `json:"strategy"`
	Symbols          []string  `json:"symbols"`
	Start            time.Time `json:"start"`
	End              time.Time `json:"end"`
	InitialValue     float64   `json:"initial_value"`
	FinalValue       float64   `json:"final_value"`
	TotalReturn      float64   `json:"total_return"`
	AnnualizedReturn float64   `json:"annualized_return"`
	SharpeRatio      float64   `json:"sharpe_ratio"`
	MaxDrawdown      float64   `json:"max_drawdown"`
	TotalTrades      int       `json:"total_trades"`
	WinRate          float64   `json:"win_rate"`
	CreatedAt        time.Time `json:"created_at"`
}

func (r *Results) Summary() ResultSummary {
	return ResultSummary{
		ID:               r.ID.String(),
		Strategy:         r.StrategyName,
		Symbols:          r.Symbols,
		Start:            r.Start,
		End:              r.End,
		InitialValue:     r.Metrics.InitialValue,
		FinalValue:       r.Metrics.FinalValue,
		TotalReturn:      r.Metrics.TotalReturn,
		AnnualizedReturn: r.Metrics.AnnualizedReturn,
		SharpeRatio:      r.Metrics.SharpeRatio,
		MaxDrawdown:      r.Metrics.MaxDrawdown,
		TotalTrades:      r.Metrics.TotalTrades,
		WinRate:          r.Metrics.WinRate,
		CreatedAt:        r.CreatedAt,
	}
}

func (r *Results) RoundTrips() []RoundTrip { return PairRoundTrips(r.Trades) }

type MonthlyReturn struct {
	Year   int
	Month  time.Month
	Return float64
}

// MonthlyReturns compares each calendar month's last value with the previous
// month's last value. The first month is measured from the first snapshot.
func (r *Results) MonthlyReturns() []MonthlyReturn {
	if len(r.History) == 0 {
		return nil
	}
	type monthKey struct {
		year  int
		month time.Month
	}
	var keys []monthKey
	last := make(map[monthKey]float64)
	for _, v := range r.History {
		y, m, _ := v.Time.Date()
		k := monthKey{y, m}
		if _, ok := last[k]; !ok {
			keys = append(keys, k)
		}
		last[k] = portfolioValue(v).InexactFloat64()
	}

	prev := portfolioValue(r.History[0]).InexactFloat64()
	out := make([]MonthlyReturn, 0, len(keys))
	for _, k := range keys {
		ret := 0.0
		if prev > 0 {
			ret = last[k]/prev - 1
		}
		out = append(out, MonthlyReturn{Year: k.year, Month: k.month, Return: ret})
		prev = last[k]
	}
	return out
}

type DrawdownPoint struct {
	Time     time.Time
	Value    float64
	Peak     float64
	Drawdown float64
}

func (r *Results) DrawdownSeries() []DrawdownPoint {
	values := make([]float64, len(r.History))
	for i, v := range r.History {
		values[i] = portfolioValue(v).InexactFloat64()
	}
	dd := drawdowns(values)
	out := make([]DrawdownPoint, len(values))
	peak := 0.0
	for i, v := range values {
		if i == 0 || v > peak {
			peak = v
		}
		out[i] = DrawdownPoint{Time: r.History[i].Time, Value: v, Peak: peak, Drawdown: dd[i]}
	}
	return out
}

type TradeAnalysis struct {
	TotalTrades      int
	BuyTrades        int
	SellTrades       int
	SymbolsTraded    []string
	AvgTradeSize     decimal.Decimal
	LargestTrade     decimal.Decimal
	SmallestTrade    decimal.Decimal
	TotalVolume      decimal.Decimal
	TotalFees        decimal.Decimal
	ClosedRoundTrips int
}

func (r *Results) TradeAnalysis() TradeAnalysis {
	ta := TradeAnalysis{
		TotalTrades:   len(r.Trades),
		AvgTradeSize:  decimal.Zero,
		LargestTrade:  decimal.Zero,
		SmallestTrade: decimal.Zero,
		TotalVolume:   decimal.Zero,
		TotalFees:     decimal.Zero,
	}
	symbols := make(map[string]struct{})
	for i, t := range r.Trades {
		switch t.Side {
		case types.SideTypeBuy:
			ta.BuyTrades++
		case types.SideTypeSell:
			ta.SellTrades++
		}
		symbols[t.Symbol] = struct{}{}
		gross := t.Gross()
		ta.TotalVolume = ta.TotalVolume.Add(gross)
		ta.TotalFees = ta.TotalFees.Add(t.Fees())
		if i == 0 || gross.GreaterThan(ta.LargestTrade) {
			ta.LargestTrade = gross
		}
		if i == 0 || gross.LessThan(ta.SmallestTrade) {
			ta.SmallestTrade = gross
		}
	}
	if len(r.Trades) > 0 {
		ta.AvgTradeSize = ta.TotalVolume.Div(decimal.NewFromInt(int64(len(r.Trades))))
	}
	for s := range symbols {
		ta.SymbolsTraded = append(ta.SymbolsTraded, s)
	}
	sort.Strings(ta.SymbolsTraded)
	ta.ClosedRoundTrips = len(r.RoundTrips())
	return ta
}

func (r *Results) PrintReport(w io.Writer) {
	PrintReport(w, r.StrategyName, r.Metrics, &r.Stats)
}

// CompareResults returns one summary per run, sorted by strategy name.
func CompareResults(results map[string]*Results) []ResultSummary {
	out := make([]ResultSummary, 0, len(results))
	for _, r := range results {
		if r == nil || r.Metrics == nil {
			continue
		}
		out = append(out, r.Summary())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Strategy < out[j].Strategy })
	return out
}

func PrintComparison(w io.Writer, rows []ResultSummary) {
	fmt.Fprintf(w, "%-24s %10s %10s %8s %10s %7s %8s\n",
		"Strategy", "Return", "Annual", "Sharpe", "MaxDD", "Trades", "WinRate")
	for _, row := range rows {
		fmt.Fprintf(w, "%-24s %9.2f%% %9.2f%% %8.2f %9.2f%% %7d %7.2f%%\n",
			row.Strategy,
			row.TotalReturn*100,
			row.AnnualizedReturn*100,
			row.SharpeRatio,
			row.MaxDrawdown*100,
			row.TotalTrades,
			row.WinRate*100)
	}
}
