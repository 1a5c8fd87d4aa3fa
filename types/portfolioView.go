package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// PortfolioView is a point-in-time snapshot of the ledger. The ordered list
// of views produced by a run is its portfolio history.
type PortfolioView struct {
	Time           time.Time
	Cash           decimal.Decimal
	PositionsValue decimal.Decimal
	TotalValue     decimal.Decimal
	NumPositions   int
	Positions      map[string]PositionSnapshot
}

type PositionSnapshot struct {
	Symbol        string
	Quantity      int64
	AvgEntryPrice decimal.Decimal
	LastPrice     decimal.Decimal
	MarketValue   decimal.Decimal
	UnrealizedPnL decimal.Decimal
	RealizedPnL   decimal.Decimal
}
