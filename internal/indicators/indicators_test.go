package indicators

import (
	"testing"

	"quantlab/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decs(vals ...float64) []decimal.Decimal {
	out := make([]decimal.Decimal, len(vals))
	for i, v := range vals {
		out[i] = decimal.NewFromFloat(v)
	}
	return out
}

func hlc(high, low, close float64) types.Candle {
	return types.Candle{
		High:  decimal.NewFromFloat(high),
		Low:   decimal.NewFromFloat(low),
		Close: decimal.NewFromFloat(close),
	}
}

func TestSMA(t *testing.T) {
	tests := []struct {
		name   string
		values []decimal.Decimal
		period int
		want   string
		ok     bool
	}{
		{"not enough values", decs(1, 2), 3, "0", false},
		{"zero period", decs(1, 2), 0, "0", false},
		{"last period only", decs(1, 2, 3, 4, 5), 3, "4", true},
		{"whole series", decs(2, 4), 2, "3", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := SMA(tt.values, tt.period)
			if ok != tt.ok || !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Fatalf("SMA() = %s, %v; want %s, %v", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestEMA(t *testing.T) {
	// seed SMA(1,2,3)=2, alpha=0.5: 2 -> 3 -> 4
	got, ok := EMA(decs(1, 2, 3, 4, 5), 3)
	require.True(t, ok)
	assert.True(t, got.Equal(decimal.NewFromInt(4)), "ema = %s", got)

	_, ok = EMA(decs(1), 3)
	assert.False(t, ok)
}

func TestRSI(t *testing.T) {
	tests := []struct {
		name   string
		closes []decimal.Decimal
		period int
		want   float64
		ok     bool
	}{
		{"too short", decs(1, 2, 3), 3, 0, false},
		{"only gains", decs(1, 2, 3, 4), 3, 100, true},
		{"only losses", decs(4, 3, 2, 1), 3, 0, true},
		{"flat", decs(5, 5, 5, 5), 3, 50, true},
		// gains 1+1, losses 1 over 3 -> rs 2 -> 66.67
		{"mixed", decs(10, 11, 12, 11), 3, 200.0 / 3, true},
		// Wilder step: avgGain (2/3*2+0)/3=4/9, avgLoss (1/3*2+2)/3=8/9 -> rs 0.5
		{"smoothed", decs(10, 11, 12, 11, 9), 3, 100.0 / 3, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := RSI(tt.closes, tt.period)
			assert.Equal(t, tt.ok, ok)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestATR(t *testing.T) {
	candles := []types.Candle{
		hlc(10, 8, 9),
		hlc(11, 9, 10),  // tr 2
		hlc(14, 10, 13), // tr 4
		hlc(13, 12, 12), // tr 1
		hlc(12, 6, 7),   // tr 6
	}
	_, ok := ATR(candles[:2], 2)
	assert.False(t, ok)

	// seed (2+4)/2=3, then (3*1+1)/2=2, then (2*1+6)/2=4
	got, ok := ATR(candles, 2)
	require.True(t, ok)
	assert.True(t, got.Equal(decimal.NewFromInt(4)), "atr = %s", got)

	// gap down: the true range uses the previous close
	gap := []types.Candle{hlc(10, 9, 10), hlc(6, 5, 5)}
	got, ok = ATR(gap, 1)
	require.True(t, ok)
	assert.True(t, got.Equal(decimal.NewFromInt(5)))
}

func TestDonchianHighLow(t *testing.T) {
	tests := []struct {
		name     string
		candles  []types.Candle
		wantHigh string
		wantLow  string
	}{
		{"empty", nil, "0", "0"},
		{"single", []types.Candle{hlc(5, 4, 4.5)}, "5", "4"},
		{"many", []types.Candle{hlc(5, 4, 4.5), hlc(7, 4.5, 6), hlc(6, 3, 3.5)}, "7", "3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			high, low := DonchianHighLow(tt.candles)
			if !high.Equal(decimal.RequireFromString(tt.wantHigh)) || !low.Equal(decimal.RequireFromString(tt.wantLow)) {
				t.Fatalf("DonchianHighLow() = %s/%s, want %s/%s", high, low, tt.wantHigh, tt.wantLow)
			}
		})
	}
}
