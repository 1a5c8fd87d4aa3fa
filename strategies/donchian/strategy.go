package donchian

import (
	"errors"
	"fmt"

	"quantlab/internal/indicators"
	"quantlab/types"
)

var ErrInvalidLookback = errors.New("donchian lookback must be positive")

// Strategy buys a break above the highest high of the preceding Lookback
// bars and sells a break below their lowest low. The current bar is never
// part of its own channel.
type Strategy struct {
	Lookback int
}

func New(lookback int) (*Strategy, error) {
	if lookback <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLookback, lookback)
	}
	return &Strategy{Lookback: lookback}, nil
}

func (s *Strategy) Name() string {
	return fmt.Sprintf("donchian_%d", s.Lookback)
}

func (s *Strategy) GenerateSignal(w types.Window) (types.Signal, error) {
	// Need Lookback completed bars plus the current one.
	if w.Len() < s.Lookback+1 {
		return types.SignalHold, nil
	}
	hist := w.Candles
	candle := hist[len(hist)-1]
	highestHigh, lowestLow := indicators.DonchianHighLow(hist[len(hist)-1-s.Lookback : len(hist)-1])

	breakUp := candle.High.GreaterThan(highestHigh)
	breakDown := candle.Low.LessThan(lowestLow)
	switch {
	case breakUp && breakDown:
		// outside bar, no direction
		return types.SignalHold, nil
	case breakUp:
		return types.SignalBuy, nil
	case breakDown:
		return types.SignalSell, nil
	}
	return types.SignalHold, nil
}
