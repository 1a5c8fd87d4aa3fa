// Package indicators computes technical indicators over candle history.
// Every function looks only at the slice it is given; callers pass the causal
// window and get the value as of its last bar.
package indicators

import (
	"quantlab/types"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// SMA is the mean of the last period values.
func SMA(values []decimal.Decimal, period int) (decimal.Decimal, bool) {
	if period <= 0 || len(values) < period {
		return decimal.Zero, false
	}
	sum := decimal.Zero
	for _, v := range values[len(values)-period:] {
		sum = sum.Add(v)
	}
	return sum.Div(decimal.NewFromInt(int64(period))), true
}

// EMA seeds with the SMA of the first period values and smooths the rest with
// alpha = 2/(period+1).
func EMA(values []decimal.Decimal, period int) (decimal.Decimal, bool) {
	if period <= 0 || len(values) < period {
		return decimal.Zero, false
	}
	ema, _ := SMA(values[:period], period)
	alpha := decimal.NewFromInt(2).Div(decimal.NewFromInt(int64(period + 1)))
	for _, v := range values[period:] {
		ema = v.Sub(ema).Mul(alpha).Add(ema)
	}
	return ema, true
}

// RSI is Wilder's relative strength index of closes over period, in [0, 100].
// A window with no movement at all reads 50.
func RSI(closes []decimal.Decimal, period int) (float64, bool) {
	if period <= 0 || len(closes) < period+1 {
		return 0, false
	}
	p := decimal.NewFromInt(int64(period))
	pm1 := decimal.NewFromInt(int64(period - 1))

	gain, loss := decimal.Zero, decimal.Zero
	for i := 1; i <= period; i++ {
		change := closes[i].Sub(closes[i-1])
		if change.IsPositive() {
			gain = gain.Add(change)
		} else {
			loss = loss.Add(change.Abs())
		}
	}
	avgGain, avgLoss := gain.Div(p), loss.Div(p)

	for i := period + 1; i < len(closes); i++ {
		change := closes[i].Sub(closes[i-1])
		g, l := decimal.Zero, decimal.Zero
		if change.IsPositive() {
			g = change
		} else {
			l = change.Abs()
		}
		avgGain = avgGain.Mul(pm1).Add(g).Div(p)
		avgLoss = avgLoss.Mul(pm1).Add(l).Div(p)
	}

	switch {
	case avgLoss.IsZero() && avgGain.IsZero():
		return 50, true
	case avgLoss.IsZero():
		return 100, true
	}
	rs := avgGain.Div(avgLoss)
	rsi := hundred.Sub(hundred.Div(decimal.NewFromInt(1).Add(rs)))
	return rsi.InexactFloat64(), true
}

// ATR is the Wilder-smoothed average true range over period. It needs
// period+1 candles since the first true range uses the previous close.
func ATR(candles []types.Candle, period int) (decimal.Decimal, bool) {
	if period <= 0 || len(candles) < period+1 {
		return decimal.Zero, false
	}

	trueRanges := make([]decimal.Decimal, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		high := candles[i].High
		low := candles[i].Low
		prevClose := candles[i-1].Close

		range1 := high.Sub(low)
		range2 := high.Sub(prevClose).Abs()
		range3 := low.Sub(prevClose).Abs()
		trueRanges = append(trueRanges, decimal.Max(range1, range2, range3))
	}

	atr := decimal.Zero
	for _, tr := range trueRanges[:period] {
		atr = atr.Add(tr)
	}
	atr = atr.Div(decimal.NewFromInt(int64(period)))

	for i := period; i < len(trueRanges); i++ {
		atr = atr.Mul(decimal.NewFromInt(int64(period - 1))).Add(trueRanges[i]).
			Div(decimal.NewFromInt(int64(period)))
	}
	return atr, true
}

// DonchianHighLow returns the highest high and lowest low of candles.
func DonchianHighLow(candles []types.Candle) (decimal.Decimal, decimal.Decimal) {
	if len(candles) == 0 {
		return decimal.Zero, decimal.Zero
	}

	highest := candles[0].High
	lowest := candles[0].Low
	for _, c := range candles[1:] {
		if c.High.GreaterThan(highest) {
			highest = c.High
		}
		if c.Low.LessThan(lowest) {
			lowest = c.Low
		}
	}
	return highest, lowest
}

// Closes extracts close prices, oldest first.
func Closes(candles []types.Candle) []decimal.Decimal {
	out := make([]decimal.Decimal, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}
