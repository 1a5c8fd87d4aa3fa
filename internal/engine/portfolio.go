package engine

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"quantlab/types"

	"github.com/shopspring/decimal"
)

var InvalidQuantityErr = errors.New("order quantity must be positive")
var InvalidPriceErr = errors.New("order price must be positive")

// Portfolio is the cash and positions ledger for a single run. It is the only
// place capital is spent or recovered and is not safe for concurrent use.
type Portfolio struct {
	cfg         PortfolioConfig
	initialCash decimal.Decimal
	cash        decimal.Decimal
	positions   map[string]*Position
	trades      []types.Trade
	realizedPnL decimal.Decimal
	commissions decimal.Decimal
	slippage    decimal.Decimal
	values      []decimal.Decimal
}

type Position struct {
	Symbol      string
	Quantity    int64
	AvgCost     decimal.Decimal
	LastPrice   decimal.Decimal
	RealizedPnL decimal.Decimal
	OpenedAt    time.Time
}

func (p *Position) MarketValue() decimal.Decimal {
	return p.LastPrice.Mul(decimal.NewFromInt(p.Quantity))
}

func (p *Position) UnrealizedPnL() decimal.Decimal {
	return p.LastPrice.Sub(p.AvgCost).Mul(decimal.NewFromInt(p.Quantity))
}

func NewPortfolio(cfg PortfolioConfig) *Portfolio {
	p := &Portfolio{cfg: cfg}
	p.Reset(cfg.InitialCash)
	return p
}

// Reset clears positions and history and funds the ledger with initialCash.
func (p *Portfolio) Reset(initialCash decimal.Decimal) {
	p.initialCash = initialCash
	p.cash = initialCash
	p.positions = make(map[string]*Position)
	p.trades = nil
	p.realizedPnL = decimal.Zero
	p.commissions = decimal.Zero
	p.slippage = decimal.Zero
	p.values = nil
}

// Buy opens or adds to a long position. It returns false without touching
// state when the total cost exceeds available cash.
func (p *Portfolio) Buy(symbol string, quantity int64, price decimal.Decimal, ts time.Time) (bool, error) {
	if err := checkOrder(quantity, price); err != nil {
		return false, fmt.Errorf("buy %s: %w", symbol, err)
	}
	qty := decimal.NewFromInt(quantity)
	gross := price.Mul(qty)
	commission, slippage := p.costs(gross)
	total := gross.Add(commission).Add(slippage)
	if total.GreaterThan(p.cash) {
		return false, nil
	}
	p.cash = p.cash.Sub(total)

	pos := p.positions[symbol]
	if pos == nil {
		pos = &Position{Symbol: symbol, AvgCost: price, OpenedAt: ts}
		p.positions[symbol] = pos
	} else {
		pos.AvgCost = weightedAvg(pos.AvgCost, decimal.NewFromInt(pos.Quantity), price, qty)
	}
	pos.Quantity += quantity
	pos.LastPrice = price

	p.record(types.Trade{
		Symbol:     symbol,
		Side:       types.SideTypeBuy,
		Quantity:   quantity,
		Price:      price,
		Timestamp:  ts,
		Commission: commission,
		Slippage:   slippage,
	})
	return true, nil
}

// Sell reduces a long position. It returns false when the symbol is not held
// or the held quantity is smaller than requested; short selling is not modelled.
func (p *Portfolio) Sell(symbol string, quantity int64, price decimal.Decimal, ts time.Time) (bool, error) {
	if err := checkOrder(quantity, price); err != nil {
		return false, fmt.Errorf("sell %s: %w", symbol, err)
	}
	pos := p.positions[symbol]
	if pos == nil || pos.Quantity < quantity {
		return false, nil
	}
	qty := decimal.NewFromInt(quantity)
	gross := price.Mul(qty)
	commission, slippage := p.costs(gross)
	p.cash = p.cash.Add(gross.Sub(commission).Sub(slippage))

	realized := price.Sub(pos.AvgCost).Mul(qty)
	pos.RealizedPnL = pos.RealizedPnL.Add(realized)
	p.realizedPnL = p.realizedPnL.Add(realized)
	pos.Quantity -= quantity
	pos.LastPrice = price
	if pos.Quantity == 0 {
		delete(p.positions, symbol)
	}

	p.record(types.Trade{
		Symbol:     symbol,
		Side:       types.SideTypeSell,
		Quantity:   quantity,
		Price:      price,
		Timestamp:  ts,
		Commission: commission,
		Slippage:   slippage,
	})
	return true, nil
}

// UpdatePortfolioValue marks every open position to the close in bars and
// returns the resulting total value. Positions without a bar keep their last
// mark. The value is also appended to the diagnostic value history.
func (p *Portfolio) UpdatePortfolioValue(bars map[string]types.Candle) decimal.Decimal {
	for sym, pos := range p.positions {
		if c, ok := bars[sym]; ok && c.Close.IsPositive() {
			pos.LastPrice = c.Close
		}
	}
	total := p.TotalValue()
	p.values = append(p.values, total)
	return total
}

func (p *Portfolio) GetPortfolioSnapshot(curTime time.Time) types.PortfolioView {
	view := types.PortfolioView{
		Time:           curTime,
		Cash:           p.cash,
		PositionsValue: decimal.Zero,
		NumPositions:   len(p.positions),
		Positions:      make(map[string]types.PositionSnapshot, len(p.positions)),
	}
	for sym, pos := range p.positions {
		mv := pos.MarketValue()
		view.PositionsValue = view.PositionsValue.Add(mv)
		view.Positions[sym] = types.PositionSnapshot{
			Symbol:        pos.Symbol,
			Quantity:      pos.Quantity,
			AvgEntryPrice: pos.AvgCost,
			LastPrice:     pos.LastPrice,
			MarketValue:   mv,
			UnrealizedPnL: pos.UnrealizedPnL(),
			RealizedPnL:   pos.RealizedPnL,
		}
	}
	view.TotalValue = view.Cash.Add(view.PositionsValue)
	return view
}

// GetPosition returns the held quantity, 0 when flat.
func (p *Portfolio) GetPosition(symbol string) int64 {
	if pos, ok := p.positions[symbol]; ok {
		return pos.Quantity
	}
	return 0
}

// PositionValue is the marked value of the holding in symbol.
func (p *Portfolio) PositionValue(symbol string) decimal.Decimal {
	if pos, ok := p.positions[symbol]; ok {
		return pos.MarketValue()
	}
	return decimal.Zero
}

func (p *Portfolio) AvailableCash() decimal.Decimal { return p.cash }

func (p *Portfolio) NumPositions() int { return len(p.positions) }

func (p *Portfolio) TotalValue() decimal.Decimal {
	value := p.cash
	for _, pos := range p.positions {
		value = value.Add(pos.MarketValue())
	}
	return value
}

// TradeHistory returns a copy of the ordered execution records.
func (p *Portfolio) TradeHistory() []types.Trade {
	return append([]types.Trade(nil), p.trades...)
}

// RealizedPnL is the running total over every sell, including positions that
// have since been closed and removed.
func (p *Portfolio) RealizedPnL() decimal.Decimal { return p.realizedPnL }

func (p *Portfolio) UnrealizedPnL() decimal.Decimal {
	total := decimal.Zero
	for _, pos := range p.positions {
		total = total.Add(pos.UnrealizedPnL())
	}
	return total
}

func (p *Portfolio) TotalCommissions() decimal.Decimal { return p.commissions }

func (p *Portfolio) TotalSlippage() decimal.Decimal { return p.slippage }

func (p *Portfolio) ValueHistory() []decimal.Decimal {
	return append([]decimal.Decimal(nil), p.values...)
}

type PortfolioSummary struct {
	InitialCapital   decimal.Decimal
	Cash             decimal.Decimal
	PositionsValue   decimal.Decimal
	TotalValue       decimal.Decimal
	TotalReturn      decimal.Decimal
	NumPositions     int
	NumTrades        int
	RealizedPnL      decimal.Decimal
	UnrealizedPnL    decimal.Decimal
	TotalCommissions decimal.Decimal
	TotalSlippage    decimal.Decimal
	Symbols          []string
}

func (p *Portfolio) Summary() PortfolioSummary {
	total := p.TotalValue()
	ret := decimal.Zero
	if p.initialCash.IsPositive() {
		ret = total.Div(p.initialCash).Sub(decimal.NewFromInt(1))
	}
	symbols := make([]string, 0, len(p.positions))
	for sym := range p.positions {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	return PortfolioSummary{
		InitialCapital:   p.initialCash,
		Cash:             p.cash,
		PositionsValue:   total.Sub(p.cash),
		TotalValue:       total,
		TotalReturn:      ret,
		NumPositions:     len(p.positions),
		NumTrades:        len(p.trades),
		RealizedPnL:      p.realizedPnL,
		UnrealizedPnL:    p.UnrealizedPnL(),
		TotalCommissions: p.commissions,
		TotalSlippage:    p.slippage,
		Symbols:          symbols,
	}
}

func (p *Portfolio) record(t types.Trade) {
	p.trades = append(p.trades, t)
	p.commissions = p.commissions.Add(t.Commission)
	p.slippage = p.slippage.Add(t.Slippage)
}

// costs applies the commission and slippage rates to the trade notional.
// Commission is clamped to the configured per-order bounds, broker style.
func (p *Portfolio) costs(gross decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	commission := gross.Mul(p.cfg.CommissionRate)
	if p.cfg.CommissionMin.IsPositive() && commission.LessThan(p.cfg.CommissionMin) {
		commission = p.cfg.CommissionMin
	}
	if p.cfg.CommissionMax.IsPositive() && commission.GreaterThan(p.cfg.CommissionMax) {
		commission = p.cfg.CommissionMax
	}
	return commission, gross.Mul(p.cfg.SlippageRate)
}

func checkOrder(quantity int64, price decimal.Decimal) error {
	if quantity <= 0 {
		return InvalidQuantityErr
	}
	if !price.IsPositive() {
		return InvalidPriceErr
	}
	return nil
}

func weightedAvg(existingAvgPrice, existingQty, newPrice, newQty decimal.Decimal) decimal.Decimal {
	if existingQty.IsZero() {
		return newPrice
	}
	return existingAvgPrice.Mul(existingQty).
		Add(newPrice.Mul(newQty)).
		Div(existingQty.Add(newQty))
}
