package rsi

import (
	"errors"
	"fmt"

	"quantlab/internal/indicators"
	"quantlab/types"
)

var ErrInvalidParams = errors.New("rsi needs period > 0 and 0 <= low < high <= 100")

// Strategy buys when RSI drops below Low and sells when it rises above High.
type Strategy struct {
	Period int
	Low    float64
	High   float64
}

func New(period int, low, high float64) (*Strategy, error) {
	if period <= 0 || low < 0 || high > 100 || low >= high {
		return nil, fmt.Errorf("%w: period=%d low=%v high=%v", ErrInvalidParams, period, low, high)
	}
	return &Strategy{Period: period, Low: low, High: high}, nil
}

func (s *Strategy) Name() string {
	return fmt.Sprintf("rsi_%d_%g_%g", s.Period, s.Low, s.High)
}

func (s *Strategy) GenerateSignal(w types.Window) (types.Signal, error) {
	value, ok := indicators.RSI(indicators.Closes(w.Candles), s.Period)
	if !ok {
		return types.SignalHold, nil
	}
	switch {
	case value < s.Low:
		return types.SignalBuy, nil
	case value > s.High:
		return types.SignalSell, nil
	}
	return types.SignalHold, nil
}
