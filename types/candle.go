package types

import (
	"time"

	"github.com/shopspring/decimal"
)

type Candle struct {
	AssetId   int             `json:"id"`
	Ticker    string          `json:"ticker"`
	Open      decimal.Decimal `json:"open"`
	Close     decimal.Decimal `json:"close"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Volume    decimal.Decimal `json:"volume"`
	Interval  Interval        `json:"interval"`
	Timestamp time.Time       `json:"timestamp"`
}

// Valid reports whether the bar carries usable prices.
func (c Candle) Valid() bool {
	return c.Close.IsPositive() && c.Open.IsPositive() &&
		c.High.IsPositive() && c.Low.IsPositive() &&
		!c.Volume.IsNegative() && !c.Timestamp.IsZero()
}

// SessionKey is the simulation date a candle belongs to. Daily and coarser
// bars collapse onto the calendar date at UTC midnight so that a provider
// stamping bars at 04:00 and one stamping them at 00:00 agree.
func (c Candle) SessionKey() time.Time {
	return SessionKey(c.Timestamp, c.Interval)
}

func SessionKey(ts time.Time, interval Interval) time.Time {
	if interval.IsIntraday() {
		return ts.UTC()
	}
	y, m, d := ts.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
