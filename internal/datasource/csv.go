package datasource

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"quantlab/internal/repository"
	"quantlab/types"

	"github.com/shopspring/decimal"
)

var csvColumns = []string{"timestamp", "open", "high", "low", "close", "volume"}

var timestampLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", time.DateOnly}

// CSVSource reads candles from <Dir>/<TICKER>.csv. The header must name the
// columns timestamp, open, high, low, close and volume, in any order.
type CSVSource struct {
	Dir string
}

func NewCSVSource(dir string) *CSVSource {
	return &CSVSource{Dir: dir}
}

// GetCandles returns the rows stamped within [start, end], in file order.
// The interval is recorded on each candle; the file is assumed to hold bars
// of that interval already.
func (s *CSVSource) GetCandles(ctx context.Context, ticker string, interval types.Interval, start, end time.Time) ([]types.Candle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := filepath.Join(s.Dir, strings.ToUpper(ticker)+".csv")
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("ticker %s %w", ticker, repository.ErrAssetNotFound)
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	all, err := ReadCandlesCSV(f, ticker, interval)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	out := all[:0]
	for _, c := range all {
		if c.Timestamp.Before(start) || c.Timestamp.After(end) {
			continue
		}
		out = append(out, c)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: %w", ticker, repository.ErrNoCandles)
	}
	return out, nil
}

// ReadCandlesCSV parses every row of r.
func ReadCandlesCSV(r io.Reader, ticker string, interval types.Interval) ([]types.Candle, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, col := range csvColumns {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("missing column %q", col)
		}
	}

	var candles []types.Candle
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		c, err := parseRecord(rec, idx)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		c.Ticker = strings.ToUpper(ticker)
		c.Interval = interval
		candles = append(candles, c)
	}
	return candles, nil
}

func parseRecord(rec []string, idx map[string]int) (types.Candle, error) {
	var c types.Candle
	ts, err := parseTimestamp(rec[idx["timestamp"]])
	if err != nil {
		return c, err
	}
	c.Timestamp = ts

	fields := []*decimal.Decimal{&c.Open, &c.High, &c.Low, &c.Close, &c.Volume}
	for i, col := range csvColumns[1:] {
		v, err := decimal.NewFromString(strings.TrimSpace(rec[idx[col]]))
		if err != nil {
			return c, fmt.Errorf("%s: %w", col, err)
		}
		*fields[i] = v
	}
	return c, nil
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}
