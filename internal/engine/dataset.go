package engine

import (
	"sort"
	"time"

	"quantlab/types"
)

// Dataset is the price table a run walks over: per symbol, candles sorted by
// session key with at most one bar per key. Lookups are by key, never by
// position, so a signal source can only ever see bars at or before the date
// it is asked about.
type Dataset struct {
	interval   types.Interval
	symbols    []string
	bars       map[string][]types.Candle
	keys       map[string][]time.Time
	dates      []time.Time
	duplicates int
}

// NewDataset builds the table. Rows that share a (symbol, session key) pair
// are collapsed, keeping the last occurrence in input order. Rows without a
// usable close are dropped.
func NewDataset(candles map[string][]types.Candle, interval types.Interval) *Dataset {
	ds := &Dataset{
		interval: interval,
		bars:     make(map[string][]types.Candle, len(candles)),
		keys:     make(map[string][]time.Time, len(candles)),
	}
	seenDates := make(map[time.Time]struct{})

	for symbol, cs := range candles {
		byKey := make(map[time.Time]types.Candle, len(cs))
		for _, c := range cs {
			if !c.Close.IsPositive() || c.Timestamp.IsZero() {
				continue
			}
			key := types.SessionKey(c.Timestamp, interval)
			if _, dup := byKey[key]; dup {
				ds.duplicates++
			}
			byKey[key] = c
		}
		if len(byKey) == 0 {
			continue
		}

		keys := make([]time.Time, 0, len(byKey))
		for k := range byKey {
			keys = append(keys, k)
			seenDates[k] = struct{}{}
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i].Before(keys[j]) })
		bars := make([]types.Candle, len(keys))
		for i, k := range keys {
			bars[i] = byKey[k]
		}
		ds.bars[symbol] = bars
		ds.keys[symbol] = keys
		ds.symbols = append(ds.symbols, symbol)
	}

	sort.Strings(ds.symbols)
	ds.dates = make([]time.Time, 0, len(seenDates))
	for k := range seenDates {
		ds.dates = append(ds.dates, k)
	}
	sort.Slice(ds.dates, func(i, j int) bool { return ds.dates[i].Before(ds.dates[j]) })
	return ds
}

// Dates is the ordered union of session keys across symbols.
func (ds *Dataset) Dates() []time.Time { return ds.dates }

func (ds *Dataset) Symbols() []string { return ds.symbols }

func (ds *Dataset) Len(symbol string) int { return len(ds.bars[symbol]) }

// Duplicates is the number of rows collapsed while building the table.
func (ds *Dataset) Duplicates() int { return ds.duplicates }

// Records is the number of bars kept across all symbols.
func (ds *Dataset) Records() int {
	n := 0
	for _, bars := range ds.bars {
		n += len(bars)
	}
	return n
}

// Window returns the bars for symbol keyed at or before t. The returned
// slice has its capacity clipped so appends by a caller cannot reach later
// bars.
func (ds *Dataset) Window(symbol string, t time.Time) types.Window {
	keys := ds.keys[symbol]
	n := sort.Search(len(keys), func(i int) bool { return keys[i].After(t) })
	return types.Window{
		Symbol:  symbol,
		Time:    t,
		Candles: ds.bars[symbol][:n:n],
	}
}

// BarAt returns the bar for symbol keyed exactly at t.
func (ds *Dataset) BarAt(symbol string, t time.Time) (types.Candle, bool) {
	keys := ds.keys[symbol]
	i := sort.Search(len(keys), func(i int) bool { return !keys[i].Before(t) })
	if i < len(keys) && keys[i].Equal(t) {
		return ds.bars[symbol][i], true
	}
	return types.Candle{}, false
}

// Snapshot returns the bars keyed exactly at t for every symbol that has one.
func (ds *Dataset) Snapshot(t time.Time) map[string]types.Candle {
	out := make(map[string]types.Candle, len(ds.symbols))
	for _, sym := range ds.symbols {
		if c, ok := ds.BarAt(sym, t); ok {
			out[sym] = c
		}
	}
	return out
}

// Closes returns the close series for symbol, oldest first.
func (ds *Dataset) Closes(symbol string) []float64 {
	bars := ds.bars[symbol]
	out := make([]float64, len(bars))
	for i, c := range bars {
		out[i] = c.Close.InexactFloat64()
	}
	return out
}
