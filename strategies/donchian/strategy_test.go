package donchian

import (
	"testing"
	"time"

	"quantlab/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bar(i int, high, low float64) types.Candle {
	return types.Candle{
		Ticker:    "AAPL",
		High:      decimal.NewFromFloat(high),
		Low:       decimal.NewFromFloat(low),
		Close:     decimal.NewFromFloat((high + low) / 2),
		Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, 7*i),
	}
}

func window(candles ...types.Candle) types.Window {
	last := candles[len(candles)-1]
	return types.Window{Symbol: "AAPL", Time: last.Timestamp, Candles: candles}
}

func TestStrategy_GenerateSignal(t *testing.T) {
	channel := []types.Candle{bar(0, 10, 8), bar(1, 11, 9), bar(2, 10.5, 8.5), bar(3, 10, 9)}

	tests := []struct {
		name    string
		current types.Candle
		want    types.Signal
	}{
		{"inside channel", bar(4, 10.9, 8.1), types.SignalHold},
		{"equal to high is not a break", bar(4, 11, 9), types.SignalHold},
		{"break above", bar(4, 11.5, 10), types.SignalBuy},
		{"break below", bar(4, 9, 7.5), types.SignalSell},
		{"outside bar", bar(4, 12, 7), types.SignalHold},
	}
	s, err := New(4)
	require.NoError(t, err)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.GenerateSignal(window(append(append([]types.Candle{}, channel...), tt.current)...))
			if err != nil {
				t.Fatalf("GenerateSignal() error = %v", err)
			}
			if got != tt.want {
				t.Fatalf("GenerateSignal() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStrategy_OnlyPrecedingBarsFormTheChannel(t *testing.T) {
	s, err := New(2)
	require.NoError(t, err)

	// the first bar's 50 high is outside the 2-bar lookback
	got, err := s.GenerateSignal(window(bar(0, 50, 1), bar(1, 10, 9), bar(2, 10, 9), bar(3, 10.5, 9.5)))
	require.NoError(t, err)
	assert.Equal(t, types.SignalBuy, got)
}

func TestStrategy_ShortWindowHolds(t *testing.T) {
	s, err := New(4)
	require.NoError(t, err)
	got, err := s.GenerateSignal(window(bar(0, 10, 8), bar(1, 20, 19)))
	require.NoError(t, err)
	assert.Equal(t, types.SignalHold, got)
}

func TestNew(t *testing.T) {
	_, err := New(0)
	assert.ErrorIs(t, err, ErrInvalidLookback)
	s, err := New(20)
	require.NoError(t, err)
	assert.Equal(t, "donchian_20", s.Name())
}
