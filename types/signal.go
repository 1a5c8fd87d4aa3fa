package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Signal is the trading intent for one symbol on one date.
type Signal int8

const (
	SignalSell Signal = -1
	SignalHold Signal = 0
	SignalBuy  Signal = 1
)

func (s Signal) String() string {
	switch {
	case s > 0:
		return "BUY"
	case s < 0:
		return "SELL"
	default:
		return "HOLD"
	}
}

// Normalize folds any out-of-range value onto {-1, 0, 1} by sign.
func (s Signal) Normalize() Signal {
	switch {
	case s > 0:
		return SignalBuy
	case s < 0:
		return SignalSell
	default:
		return SignalHold
	}
}

// SignalFromScore thresholds a continuous score (for example a weighted vote
// in [-1, 1]) into a discrete signal. A non-positive threshold means sign.
func SignalFromScore(score, threshold float64) Signal {
	if threshold <= 0 {
		switch {
		case score > 0:
			return SignalBuy
		case score < 0:
			return SignalSell
		default:
			return SignalHold
		}
	}
	switch {
	case score >= threshold:
		return SignalBuy
	case score <= -threshold:
		return SignalSell
	default:
		return SignalHold
	}
}

// Window is the strictly causal slice of history handed to a signal source:
// every candle for Symbol stamped at or before Time, oldest first. The slice
// is shared with the engine and must be treated as read-only.
type Window struct {
	Symbol  string
	Time    time.Time
	Candles []Candle
}

func (w Window) Len() int { return len(w.Candles) }

// Last returns the bar for the current date.
func (w Window) Last() (Candle, bool) {
	if len(w.Candles) == 0 {
		return Candle{}, false
	}
	return w.Candles[len(w.Candles)-1], true
}

func (w Window) Closes() []decimal.Decimal {
	out := make([]decimal.Decimal, len(w.Candles))
	for i, c := range w.Candles {
		out[i] = c.Close
	}
	return out
}
