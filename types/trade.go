package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade is an immutable execution record appended by the portfolio ledger.
type Trade struct {
	Symbol     string          `json:"symbol"`
	Side       Side            `json:"side"`
	Quantity   int64           `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	Timestamp  time.Time       `json:"timestamp"`
	Commission decimal.Decimal `json:"commission"`
	Slippage   decimal.Decimal `json:"slippage"`
}

func (t Trade) Gross() decimal.Decimal {
	return t.Price.Mul(decimal.NewFromInt(t.Quantity))
}

func (t Trade) Fees() decimal.Decimal {
	return t.Commission.Add(t.Slippage)
}

// TotalCost is price*quantity plus commission and slippage.
func (t Trade) TotalCost() decimal.Decimal {
	return t.Gross().Add(t.Fees())
}

// CashFlow is the signed change in cash caused by the trade.
func (t Trade) CashFlow() decimal.Decimal {
	if t.Side == SideTypeSell {
		return t.Gross().Sub(t.Fees())
	}
	return t.TotalCost().Neg()
}
