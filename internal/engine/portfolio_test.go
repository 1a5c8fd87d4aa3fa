package engine

import (
	"math/rand"
	"testing"
	"time"

	"quantlab/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
var t1 = t0.AddDate(0, 0, 1)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestPortfolio(cash, commission, slippage string) *Portfolio {
	return NewPortfolio(NewPortfolioConfig(d(cash), d(commission), d(slippage)))
}

func TestPortfolio_BuyThenSellWithCosts(t *testing.T) {
	p := newTestPortfolio("100000", "0.001", "0.0005")

	ok, err := p.Buy("AAPL", 100, d("150"), t0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, p.AvailableCash().Equal(d("84977.5")), "cash = %s", p.AvailableCash())
	assert.Equal(t, int64(100), p.GetPosition("AAPL"))
	assert.True(t, p.positions["AAPL"].AvgCost.Equal(d("150")))

	ok, err = p.Sell("AAPL", 100, d("160"), t1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, p.AvailableCash().Equal(d("100953.5")), "cash = %s", p.AvailableCash())
	assert.Equal(t, int64(0), p.GetPosition("AAPL"))
	assert.NotContains(t, p.positions, "AAPL")
	assert.True(t, p.RealizedPnL().Equal(d("1000")), "realized = %s", p.RealizedPnL())

	trades := p.TradeHistory()
	require.Len(t, trades, 2)
	assert.Equal(t, types.SideTypeBuy, trades[0].Side)
	assert.True(t, trades[0].Commission.Equal(d("15")))
	assert.True(t, trades[0].Slippage.Equal(d("7.5")))
	assert.True(t, trades[0].TotalCost().Equal(d("15022.5")))
	assert.Equal(t, types.SideTypeSell, trades[1].Side)
	assert.True(t, trades[1].Commission.Equal(d("16")))
	assert.True(t, trades[1].Slippage.Equal(d("8")))
	assert.True(t, trades[1].CashFlow().Equal(d("15976")))
	assert.True(t, p.TotalCommissions().Equal(d("31")))
	assert.True(t, p.TotalSlippage().Equal(d("15.5")))
}

func TestPortfolio_SellRejections(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(p *Portfolio)
		symbol  string
		qty     int64
	}{
		{
			name:    "no position",
			prepare: func(p *Portfolio) {},
			symbol:  "MSFT",
			qty:     10,
		},
		{
			name: "more than held",
			prepare: func(p *Portfolio) {
				_, _ = p.Buy("MSFT", 5, d("50"), t0)
			},
			symbol: "MSFT",
			qty:    6,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestPortfolio("100000", "0.001", "0.0005")
			tt.prepare(p)
			before := p.GetPortfolioSnapshot(t0)
			trades := len(p.TradeHistory())

			ok, err := p.Sell(tt.symbol, tt.qty, d("50"), t1)
			require.NoError(t, err)
			assert.False(t, ok)
			assert.Equal(t, before, p.GetPortfolioSnapshot(t0))
			assert.Len(t, p.TradeHistory(), trades)
		})
	}
}

func TestPortfolio_BuyCashBoundary(t *testing.T) {
	tests := []struct {
		name   string
		cash   string
		wantOK bool
	}{
		{"exactly enough", "1015", true},
		{"one cent short", "1014.99", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestPortfolio(tt.cash, "0.01", "0.005")
			ok, err := p.Buy("XOM", 10, d("100"), t0)
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.True(t, p.AvailableCash().IsZero())
			} else {
				assert.True(t, p.AvailableCash().Equal(d(tt.cash)))
				assert.Equal(t, 0, p.NumPositions())
			}
		})
	}
}

func TestPortfolio_PreconditionErrors(t *testing.T) {
	tests := []struct {
		name    string
		side    types.Side
		qty     int64
		price   string
		wantErr error
	}{
		{"buy zero qty", types.SideTypeBuy, 0, "10", InvalidQuantityErr},
		{"buy negative qty", types.SideTypeBuy, -5, "10", InvalidQuantityErr},
		{"buy zero price", types.SideTypeBuy, 5, "0", InvalidPriceErr},
		{"sell negative price", types.SideTypeSell, 5, "-1", InvalidPriceErr},
		{"sell zero qty", types.SideTypeSell, 0, "10", InvalidQuantityErr},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestPortfolio("1000", "0", "0")
			_, _ = p.Buy("IBM", 1, d("10"), t0)
			before := p.GetPortfolioSnapshot(t0)

			var err error
			if tt.side == types.SideTypeBuy {
				_, err = p.Buy("IBM", tt.qty, d(tt.price), t1)
			} else {
				_, err = p.Sell("IBM", tt.qty, d(tt.price), t1)
			}
			require.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, before, p.GetPortfolioSnapshot(t0))
		})
	}
}

func TestPortfolio_ScaleInAndPartialSell(t *testing.T) {
	p := newTestPortfolio("10000", "0", "0")
	_, _ = p.Buy("AAPL", 10, d("100"), t0)
	_, _ = p.Buy("AAPL", 5, d("110"), t1)

	pos := p.positions["AAPL"]
	require.NotNil(t, pos)
	assert.Equal(t, int64(15), pos.Quantity)
	assert.True(t, pos.AvgCost.Equal(d("103.3333333333333333")), "avg = %s", pos.AvgCost)
	assert.True(t, p.AvailableCash().Equal(d("8450")))

	ok, err := p.Sell("AAPL", 5, d("120"), t1.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(10), p.GetPosition("AAPL"))
	// cost basis is unchanged by a partial close
	assert.True(t, pos.AvgCost.Equal(d("103.3333333333333333")))
	assert.True(t, pos.RealizedPnL.Equal(d("120").Sub(pos.AvgCost).Mul(d("5"))))
	assert.True(t, p.RealizedPnL().Equal(pos.RealizedPnL))
}

func TestPortfolio_RoundTripNeutral(t *testing.T) {
	p := newTestPortfolio("50000", "0", "0")
	_, _ = p.Buy("KO", 37, d("61.25"), t0)
	_, _ = p.Sell("KO", 37, d("61.25"), t1)

	assert.True(t, p.TotalValue().Equal(d("50000")))
	assert.True(t, p.AvailableCash().Equal(d("50000")))
	assert.Equal(t, 0, p.NumPositions())
}

func TestPortfolio_UpdatePortfolioValue(t *testing.T) {
	p := newTestPortfolio("10000", "0", "0")
	_, _ = p.Buy("AAPL", 10, d("100"), t0)
	_, _ = p.Buy("MSFT", 5, d("200"), t0)

	got := p.UpdatePortfolioValue(map[string]types.Candle{
		"AAPL": {Ticker: "AAPL", Close: d("110")},
	})
	// MSFT has no bar and keeps its previous mark of 200.
	assert.True(t, got.Equal(d("8000").Add(d("1100")).Add(d("1000"))), "value = %s", got)
	assert.True(t, p.positions["MSFT"].LastPrice.Equal(d("200")))
	assert.True(t, p.positions["AAPL"].UnrealizedPnL().Equal(d("100")))
	assert.True(t, p.UnrealizedPnL().Equal(d("100")))
	require.Len(t, p.ValueHistory(), 1)
	assert.True(t, p.ValueHistory()[0].Equal(got))
}

func TestPortfolio_SnapshotIsPure(t *testing.T) {
	p := newTestPortfolio("10000", "0.001", "0")
	_, _ = p.Buy("AAPL", 10, d("100"), t0)
	p.UpdatePortfolioValue(map[string]types.Candle{"AAPL": {Close: d("105")}})

	a := p.GetPortfolioSnapshot(t1)
	b := p.GetPortfolioSnapshot(t1)
	assert.Equal(t, a, b)
	assert.Equal(t, 1, a.NumPositions)
	assert.True(t, a.TotalValue.Equal(a.Cash.Add(a.PositionsValue)))
	assert.True(t, a.Positions["AAPL"].MarketValue.Equal(d("1050")))
	assert.Len(t, p.ValueHistory(), 1)
}

func TestPortfolio_Reset(t *testing.T) {
	p := newTestPortfolio("10000", "0.001", "0.001")
	_, _ = p.Buy("AAPL", 10, d("100"), t0)
	_, _ = p.Sell("AAPL", 5, d("120"), t1)
	p.UpdatePortfolioValue(nil)

	p.Reset(d("2500"))
	assert.True(t, p.AvailableCash().Equal(d("2500")))
	assert.Equal(t, 0, p.NumPositions())
	assert.Empty(t, p.TradeHistory())
	assert.Empty(t, p.ValueHistory())
	assert.True(t, p.RealizedPnL().IsZero())
	assert.True(t, p.TotalCommissions().IsZero())
	assert.True(t, p.Summary().TotalReturn.IsZero())
}

func TestPortfolio_CommissionBounds(t *testing.T) {
	cfg := NewPortfolioConfig(d("1000000"), d("0.0005"), d("0"))
	cfg.CommissionMin = d("1.70")
	cfg.CommissionMax = d("39")

	tests := []struct {
		name  string
		qty   int64
		price string
		want  string
	}{
		{"below minimum", 1, "100", "1.70"},
		{"inside band", 100, "100", "5"},
		{"above maximum", 1000, "100", "39"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPortfolio(cfg)
			ok, err := p.Buy("ASML", tt.qty, d(tt.price), t0)
			require.NoError(t, err)
			require.True(t, ok)
			assert.True(t, p.TradeHistory()[0].Commission.Equal(d(tt.want)))
		})
	}
}

func TestPortfolio_RandomOperationsKeepLedgerConsistent(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	symbols := []string{"AAPL", "MSFT", "NVDA", "TSLA"}
	initial := d("25000")
	p := NewPortfolio(NewPortfolioConfig(initial, d("0.001"), d("0.0005")))

	for i := 0; i < 2000; i++ {
		sym := symbols[rng.Intn(len(symbols))]
		qty := int64(rng.Intn(60) + 1)
		price := decimal.NewFromInt(int64(rng.Intn(400) + 1)).Div(decimal.NewFromInt(4))
		ts := t0.Add(time.Duration(i) * time.Hour)
		if rng.Intn(2) == 0 {
			_, err := p.Buy(sym, qty, price, ts)
			require.NoError(t, err)
		} else {
			_, err := p.Sell(sym, qty, price, ts)
			require.NoError(t, err)
		}

		require.False(t, p.AvailableCash().IsNegative(), "step %d: cash %s", i, p.AvailableCash())
		for s, pos := range p.positions {
			require.Positive(t, pos.Quantity, "step %d: %s kept a non-positive row", i, s)
		}
	}

	cash := initial
	held := map[string]int64{}
	for _, tr := range p.TradeHistory() {
		cash = cash.Add(tr.CashFlow())
		if tr.Side == types.SideTypeBuy {
			held[tr.Symbol] += tr.Quantity
		} else {
			held[tr.Symbol] -= tr.Quantity
		}
	}
	assert.True(t, cash.Equal(p.AvailableCash()), "replayed %s, ledger %s", cash, p.AvailableCash())
	for _, sym := range symbols {
		assert.Equal(t, held[sym], p.GetPosition(sym), sym)
	}
}

func TestWeightedAvgPrice(t *testing.T) {
	tests := []struct {
		name             string
		existingAvgPrice decimal.Decimal
		existingQty      decimal.Decimal
		newPrice         decimal.Decimal
		newQty           decimal.Decimal
		want             decimal.Decimal
	}{
		{
			name:             "flat position takes the fill price",
			existingAvgPrice: d("0"),
			existingQty:      d("0"),
			newPrice:         d("123.45"),
			newQty:           d("10"),
			want:             d("123.45"),
		},
		{
			name:             "scale in at a higher price",
			existingAvgPrice: d("100"),
			existingQty:      d("10"),
			newPrice:         d("110"),
			newQty:           d("5"),
			want:             d("103.3333333333333333"),
		},
		{
			name:             "scale in at the same price",
			existingAvgPrice: d("42.00"),
			existingQty:      d("7"),
			newPrice:         d("42.00"),
			newQty:           d("3"),
			want:             d("42.00"),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := weightedAvg(tc.existingAvgPrice, tc.existingQty, tc.newPrice, tc.newQty)
			if !got.Equal(tc.want) {
				t.Fatalf("got %s, want %s", got.String(), tc.want.String())
			}
		})
	}
}
