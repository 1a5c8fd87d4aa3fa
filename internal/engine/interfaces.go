package engine

import (
	"context"
	"time"

	"quantlab/types"
)

// SignalSource produces a signal from a strictly causal window of history.
// Implementations must not retain or modify the window's candles.
type SignalSource interface {
	Name() string
	GenerateSignal(window types.Window) (types.Signal, error)
}

type dataStore interface {
	GetCandles(ctx context.Context, ticker string, interval types.Interval, start, end time.Time) ([]types.Candle, error)
}
