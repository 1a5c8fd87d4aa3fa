package engine

import (
	"github.com/shopspring/decimal"
)

type skipReason int

const (
	sized skipReason = iota
	skipBadPrice
	skipMaxPositions
	skipZeroShares
)

// sizer turns a buy signal into a share count. The budget is bounded by
// available cash and by MaxPositionSize of total value; the share count is
// floored after grossing the price up by the cost rates so the ledger can
// normally afford the order.
type sizer struct {
	cfg        SizingConfig
	costFactor decimal.Decimal
}

func newSizer(cfg SizingConfig, portfolio PortfolioConfig) sizer {
	return sizer{
		cfg:        cfg,
		costFactor: decimal.NewFromInt(1).Add(portfolio.CommissionRate).Add(portfolio.SlippageRate),
	}
}

func (s sizer) quantity(p *Portfolio, symbol string, price decimal.Decimal) (int64, skipReason) {
	if !price.IsPositive() {
		return 0, skipBadPrice
	}
	if s.cfg.MaxPositions > 0 && p.GetPosition(symbol) == 0 && p.NumPositions() >= s.cfg.MaxPositions {
		return 0, skipMaxPositions
	}

	cash := p.AvailableCash()
	total := p.TotalValue()
	var budget decimal.Decimal
	switch s.cfg.Method {
	case EqualWeight:
		slots := s.cfg.TargetPositions
		if slots <= 0 {
			slots = 1
		}
		budget = total.Div(decimal.NewFromInt(int64(slots)))
	default:
		budget = cash.Mul(s.cfg.CashFraction)
	}
	if s.cfg.MaxPositionSize.IsPositive() {
		room := total.Mul(s.cfg.MaxPositionSize).Sub(p.PositionValue(symbol))
		budget = decimal.Min(budget, room)
	}
	budget = decimal.Min(budget, cash)

	qty := getQuantityForPrice(price.Mul(s.costFactor), budget)
	if !qty.IsPositive() {
		return 0, skipZeroShares
	}
	return qty.IntPart(), sized
}

func getQuantityForPrice(stockPrice, capitalToUse decimal.Decimal) decimal.Decimal {
	if stockPrice.IsZero() {
		return decimal.Zero
	}
	return capitalToUse.Div(stockPrice).Floor()
}
