package config

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"quantlab/internal/engine"
	"quantlab/types"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

var (
	ErrProfileNotFound = errors.New("backtest profile not found")
	ErrInvalidConfig   = errors.New("invalid configuration")
)

// DefaultProfile names the base profile every other profile is merged over.
const DefaultProfile = "default"

// Config is the top-level configuration, read once at start-up.
type Config struct {
	Logging  Logging  `yaml:"logging"`
	Data     Data     `yaml:"data"`
	Alpaca   Alpaca   `yaml:"alpaca"`
	Backtest Backtest `yaml:"backtest"`
}

type Logging struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Data selects where candles come from and where the SQLite cache lives.
type Data struct {
	Source      string `yaml:"source" validate:"oneof=csv postgres alpaca"`
	CSVDir      string `yaml:"csv_dir"`
	DatabaseURL string `yaml:"database_url"`
	CachePath   string `yaml:"cache_path"`
	Interval    string `yaml:"interval" validate:"required"`
}

type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	DataURL   string `yaml:"data_url"`
	Feed      string `yaml:"feed" validate:"omitempty,oneof=sip iex"`
}

// Backtest holds the default profile and named overrides. Each named
// profile is decoded on top of a copy of the default, so it only needs to
// list the keys it changes.
type Backtest struct {
	Default  BacktestProfile      `yaml:"default"`
	Profiles map[string]yaml.Node `yaml:"profiles"`
}

type BacktestProfile struct {
	InitialCapital   float64 `yaml:"initial_capital" validate:"gt=0"`
	CommissionRate   float64 `yaml:"commission_rate" validate:"gte=0,lte=0.1"`
	SlippageRate     float64 `yaml:"slippage_rate" validate:"gte=0,lte=0.1"`
	CommissionMin    float64 `yaml:"commission_min" validate:"gte=0"`
	CommissionMax    float64 `yaml:"commission_max" validate:"gte=0"`
	PositionSizing   string  `yaml:"position_sizing" validate:"oneof=fixed_fraction equal_weight"`
	MaxPositionSize  float64 `yaml:"max_position_size" validate:"gt=0,lte=1"`
	CashFraction     float64 `yaml:"cash_fraction" validate:"gte=0,lte=1"`
	TargetPositions  int     `yaml:"target_positions" validate:"gte=0"`
	MaxPositions     int     `yaml:"max_positions" validate:"gte=0"`
	WarmupBars       int     `yaml:"warmup_bars" validate:"gte=0"`
	AllowPyramiding  bool    `yaml:"allow_pyramiding"`
	MaxDrawdownLimit float64 `yaml:"max_drawdown_limit" validate:"eq=0|gte=0.05,lte=0.95"`
	RiskFreeRate     float64 `yaml:"risk_free_rate" validate:"gte=0,lte=0.2"`
	BenchmarkSymbol  string  `yaml:"benchmark_symbol"`
	RollingWindow    int     `yaml:"rolling_window" validate:"gte=0"`
}

var validate = validator.New()

// Default mirrors engine.DefaultConfig so a missing config file still runs.
func Default() *Config {
	return &Config{
		Logging: Logging{Level: "info", Pretty: true},
		Data:    Data{Source: "csv", CSVDir: "data", Interval: "1d"},
		Backtest: Backtest{Default: BacktestProfile{
			InitialCapital:  100000,
			CommissionRate:  0.0005,
			SlippageRate:    0.0001,
			PositionSizing:  string(engine.EqualWeight),
			MaxPositionSize: 0.25,
			CashFraction:    0.25,
			TargetPositions: 10,
			WarmupBars:      50,
			RiskFreeRate:    0.02,
			BenchmarkSymbol: "SPY",
			RollingWindow:   63,
		}},
	}
}

// Load reads the YAML file at path over the defaults, then applies
// environment overrides and validates the result. An empty path skips the
// file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if _, err := types.ParseInterval(cfg.Data.Interval); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("QUANTLAB_DATABASE_URL"); v != "" {
		cfg.Data.DatabaseURL = v
	}
	if v := os.Getenv("QUANTLAB_CSV_DIR"); v != "" {
		cfg.Data.CSVDir = v
	}
	if v := os.Getenv("QUANTLAB_CACHE_PATH"); v != "" {
		cfg.Data.CachePath = v
	}
	if v := os.Getenv("QUANTLAB_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Standard Alpaca env vars, the names the SDK itself reads.
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}

// Profile resolves a named profile merged over the default and validates it.
func (c *Config) Profile(name string) (BacktestProfile, error) {
	p := c.Backtest.Default
	if name != "" && name != DefaultProfile {
		node, ok := c.Backtest.Profiles[name]
		if !ok {
			return BacktestProfile{}, fmt.Errorf("%w: %q (have %v)", ErrProfileNotFound, name, c.ProfileNames())
		}
		if err := node.Decode(&p); err != nil {
			return BacktestProfile{}, fmt.Errorf("decode profile %q: %w", name, err)
		}
	}
	if err := validate.Struct(&p); err != nil {
		return BacktestProfile{}, fmt.Errorf("%w: profile %q: %v", ErrInvalidConfig, name, err)
	}
	return p, nil
}

func (c *Config) ProfileNames() []string {
	names := []string{DefaultProfile}
	for name := range c.Backtest.Profiles {
		names = append(names, name)
	}
	sort.Strings(names[1:])
	return names
}

// EngineConfig resolves profile name and converts it into the engine's
// explicit configuration.
func (c *Config) EngineConfig(name string) (engine.Config, error) {
	p, err := c.Profile(name)
	if err != nil {
		return engine.Config{}, err
	}
	interval, err := types.ParseInterval(c.Data.Interval)
	if err != nil {
		return engine.Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return p.EngineConfig(interval), nil
}

func (p BacktestProfile) EngineConfig(interval types.Interval) engine.Config {
	portfolio := engine.NewPortfolioConfig(
		decimal.NewFromFloat(p.InitialCapital),
		decimal.NewFromFloat(p.CommissionRate),
		decimal.NewFromFloat(p.SlippageRate),
	)
	portfolio.CommissionMin = decimal.NewFromFloat(p.CommissionMin)
	portfolio.CommissionMax = decimal.NewFromFloat(p.CommissionMax)

	sizing := engine.NewSizingConfig(engine.SizingMethod(p.PositionSizing), decimal.NewFromFloat(p.MaxPositionSize))
	if p.CashFraction > 0 {
		sizing.CashFraction = decimal.NewFromFloat(p.CashFraction)
	}
	if p.TargetPositions > 0 {
		sizing.TargetPositions = p.TargetPositions
	}
	sizing.MaxPositions = p.MaxPositions

	return engine.Config{
		Interval:  interval,
		Portfolio: portfolio,
		Sizing:    sizing,
		Simulation: engine.SimulationConfig{
			WarmupBars:       p.WarmupBars,
			AllowPyramiding:  p.AllowPyramiding,
			MaxDrawdownLimit: p.MaxDrawdownLimit,
		},
		Reporting: engine.ReportingConfig{
			RiskFreeRate:    p.RiskFreeRate,
			BenchmarkSymbol: p.BenchmarkSymbol,
			RollingWindow:   p.RollingWindow,
		},
	}
}
