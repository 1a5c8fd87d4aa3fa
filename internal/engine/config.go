package engine

import (
	"quantlab/types"

	"github.com/shopspring/decimal"
)

type SizingMethod string

const (
	// FixedFraction spends a fixed fraction of available cash per buy.
	FixedFraction SizingMethod = "fixed_fraction"
	// EqualWeight targets total value / TargetPositions per holding.
	EqualWeight SizingMethod = "equal_weight"
)

type PortfolioConfig struct {
	InitialCash    decimal.Decimal
	CommissionRate decimal.Decimal
	SlippageRate   decimal.Decimal
	// Per-order commission bounds. Zero disables the bound.
	CommissionMin decimal.Decimal
	CommissionMax decimal.Decimal
}

func NewPortfolioConfig(initialCash, commissionRate, slippageRate decimal.Decimal) PortfolioConfig {
	return PortfolioConfig{
		InitialCash:    initialCash,
		CommissionRate: commissionRate,
		SlippageRate:   slippageRate,
	}
}

type SizingConfig struct {
	Method SizingMethod
	// Cap on a single position as a fraction of total portfolio value.
	MaxPositionSize decimal.Decimal
	// Fraction of available cash spent per buy under FixedFraction.
	CashFraction decimal.Decimal
	// Number of equally weighted slots under EqualWeight.
	TargetPositions int
	// Zero means no limit.
	MaxPositions int
}

func NewSizingConfig(method SizingMethod, maxPositionSize decimal.Decimal) SizingConfig {
	return SizingConfig{
		Method:          method,
		MaxPositionSize: maxPositionSize,
		CashFraction:    maxPositionSize,
		TargetPositions: 10,
	}
}

type SimulationConfig struct {
	WarmupBars      int
	AllowPyramiding bool
	// Once the drawdown from peak exceeds this fraction no new buys are
	// opened for the rest of the run. Zero disables the halt.
	MaxDrawdownLimit float64
	ShowProgress     bool
}

type ReportingConfig struct {
	RiskFreeRate    float64
	BenchmarkSymbol string
	// Sample size for rolling metrics; zero skips them.
	RollingWindow int
}

// Config is built once at start-up and passed by value to an Engine.
type Config struct {
	Interval   types.Interval
	Portfolio  PortfolioConfig
	Sizing     SizingConfig
	Simulation SimulationConfig
	Reporting  ReportingConfig
}

func DefaultConfig() Config {
	return Config{
		Interval: types.Day,
		Portfolio: NewPortfolioConfig(
			decimal.NewFromInt(100000),
			decimal.RequireFromString("0.0005"),
			decimal.RequireFromString("0.0001"),
		),
		Sizing: NewSizingConfig(EqualWeight, decimal.RequireFromString("0.25")),
		Simulation: SimulationConfig{
			WarmupBars: 50,
		},
		Reporting: ReportingConfig{
			RiskFreeRate:    0.02,
			BenchmarkSymbol: "SPY",
		},
	}
}
