// Package filters gates a signal source behind bar-level conditions. A
// filtered source holds on any bar a filter rejects; otherwise it defers to
// the wrapped source unchanged.
package filters

import (
	"strings"
	"time"

	"quantlab/internal/engine"
	"quantlab/internal/indicators"
	"quantlab/types"

	"github.com/shopspring/decimal"
)

// Filter decides whether the current bar of a window may trade.
type Filter interface {
	Name() string
	Allow(w types.Window) bool
}

type filtered struct {
	base    engine.SignalSource
	filters []Filter
	name    string
}

// Wrap returns base gated by fs. Wrapping an already wrapped source nests,
// so Wrap(Wrap(s, a), b) behaves like Wrap(s, a, b).
func Wrap(base engine.SignalSource, fs ...Filter) engine.SignalSource {
	if len(fs) == 0 {
		return base
	}
	names := make([]string, len(fs))
	for i, f := range fs {
		names[i] = f.Name()
	}
	return &filtered{
		base:    base,
		filters: fs,
		name:    base.Name() + "[" + strings.Join(names, ",") + "]",
	}
}

func (f *filtered) Name() string { return f.name }

func (f *filtered) GenerateSignal(w types.Window) (types.Signal, error) {
	for _, flt := range f.filters {
		if !flt.Allow(w) {
			return types.SignalHold, nil
		}
	}
	return f.base.GenerateSignal(w)
}

type priceFilter struct {
	name  string
	limit decimal.Decimal
	above bool
}

// MinPrice rejects bars closing below min.
func MinPrice(min decimal.Decimal) Filter {
	return priceFilter{name: "min_price", limit: min, above: true}
}

// MaxPrice rejects bars closing above max.
func MaxPrice(max decimal.Decimal) Filter {
	return priceFilter{name: "max_price", limit: max}
}

func (p priceFilter) Name() string { return p.name + "=" + p.limit.String() }

func (p priceFilter) Allow(w types.Window) bool {
	last, ok := w.Last()
	if !ok {
		return false
	}
	if p.above {
		return !last.Close.LessThan(p.limit)
	}
	return !last.Close.GreaterThan(p.limit)
}

type minVolume struct {
	min decimal.Decimal
}

// MinVolume rejects bars that traded fewer than min shares.
func MinVolume(min decimal.Decimal) Filter { return minVolume{min: min} }

func (m minVolume) Name() string { return "min_volume=" + m.min.String() }

func (m minVolume) Allow(w types.Window) bool {
	last, ok := w.Last()
	return ok && !last.Volume.LessThan(m.min)
}

type symbolFilter struct {
	symbols map[string]struct{}
	include bool
}

// IncludeSymbols only lets the listed symbols trade.
func IncludeSymbols(symbols ...string) Filter {
	return symbolFilter{symbols: setOf(symbols), include: true}
}

// ExcludeSymbols blocks the listed symbols.
func ExcludeSymbols(symbols ...string) Filter {
	return symbolFilter{symbols: setOf(symbols)}
}

func (s symbolFilter) Name() string {
	if s.include {
		return "include_symbols"
	}
	return "exclude_symbols"
}

func (s symbolFilter) Allow(w types.Window) bool {
	_, listed := s.symbols[strings.ToUpper(w.Symbol)]
	return listed == s.include
}

type excludeDates struct {
	dates map[time.Time]struct{}
}

// ExcludeDates blocks trading on the given calendar dates (compared in UTC).
func ExcludeDates(dates ...time.Time) Filter {
	set := make(map[time.Time]struct{}, len(dates))
	for _, d := range dates {
		set[calendarDay(d)] = struct{}{}
	}
	return excludeDates{dates: set}
}

func (e excludeDates) Name() string { return "exclude_dates" }

func (e excludeDates) Allow(w types.Window) bool {
	_, blocked := e.dates[calendarDay(w.Time)]
	return !blocked
}

type maxATR struct {
	period int
	max    decimal.Decimal
}

// MaxATR rejects bars whose ATR over period, as a fraction of the close,
// exceeds max. Windows too short to measure are rejected.
func MaxATR(period int, max decimal.Decimal) Filter { return maxATR{period: period, max: max} }

func (m maxATR) Name() string { return "max_atr=" + m.max.String() }

func (m maxATR) Allow(w types.Window) bool {
	atr, ok := indicators.ATR(w.Candles, m.period)
	if !ok {
		return false
	}
	last, _ := w.Last()
	if !last.Close.IsPositive() {
		return false
	}
	return !atr.Div(last.Close).GreaterThan(m.max)
}

type minHistory struct {
	bars int
}

// MinHistory rejects windows with fewer than bars candles.
func MinHistory(bars int) Filter { return minHistory{bars: bars} }

func (m minHistory) Name() string { return "min_history" }

func (m minHistory) Allow(w types.Window) bool { return w.Len() >= m.bars }

func setOf(items []string) map[string]struct{} {
	out := make(map[string]struct{}, len(items))
	for _, s := range items {
		out[strings.ToUpper(strings.TrimSpace(s))] = struct{}{}
	}
	return out
}

func calendarDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
