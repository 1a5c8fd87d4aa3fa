package smacross

import (
	"errors"
	"fmt"

	"quantlab/internal/indicators"
	"quantlab/types"
)

var ErrInvalidPeriods = errors.New("sma periods must satisfy 0 < fast < slow")

// Strategy is long while the fast SMA of closes is above the slow SMA and
// signals a sell while it is below. Equal averages hold.
type Strategy struct {
	Fast int
	Slow int
}

func New(fast, slow int) (*Strategy, error) {
	if fast <= 0 || slow <= fast {
		return nil, fmt.Errorf("%w: fast=%d slow=%d", ErrInvalidPeriods, fast, slow)
	}
	return &Strategy{Fast: fast, Slow: slow}, nil
}

func (s *Strategy) Name() string {
	return fmt.Sprintf("sma_cross_%d_%d", s.Fast, s.Slow)
}

func (s *Strategy) GenerateSignal(w types.Window) (types.Signal, error) {
	closes := indicators.Closes(w.Candles)
	slow, ok := indicators.SMA(closes, s.Slow)
	if !ok {
		return types.SignalHold, nil
	}
	fast, _ := indicators.SMA(closes, s.Fast)

	switch fast.Cmp(slow) {
	case 1:
		return types.SignalBuy, nil
	case -1:
		return types.SignalSell, nil
	}
	return types.SignalHold, nil
}
