package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"quantlab/types"

	"github.com/shopspring/decimal"
)

// LoadCandles returns the cached candles for [start, end]. ok is false when no
// earlier fetch covered the whole range.
func (s *SQLiteStore) LoadCandles(ctx context.Context, ticker string, interval types.Interval, start, end time.Time) (candles []types.Candle, ok bool, err error) {
	ticker = strings.ToUpper(ticker)
	var n int
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM cached_ranges
		 WHERE ticker = ? AND interval = ? AND start_ts <= ? AND end_ts >= ?`,
		ticker, string(interval), toMillis(start), toMillis(end),
	).Scan(&n)
	if err != nil {
		return nil, false, fmt.Errorf("lookup cached range: %w", err)
	}
	if n == 0 {
		return nil, false, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT ts, open, high, low, close, volume FROM candles
		 WHERE ticker = ? AND interval = ? AND ts BETWEEN ? AND ?
		 ORDER BY ts`,
		ticker, string(interval), toMillis(start), toMillis(end),
	)
	if err != nil {
		return nil, false, fmt.Errorf("get cached candles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			ts                             int64
			open, high, low, closePx, volume string
		)
		if err := rows.Scan(&ts, &open, &high, &low, &closePx, &volume); err != nil {
			return nil, false, fmt.Errorf("scan cached candle: %w", err)
		}
		c := types.Candle{Ticker: ticker, Interval: interval, Timestamp: fromMillis(ts)}
		for _, f := range []struct {
			dst *decimal.Decimal
			src string
		}{{&c.Open, open}, {&c.High, high}, {&c.Low, low}, {&c.Close, closePx}, {&c.Volume, volume}} {
			if *f.dst, err = decimal.NewFromString(f.src); err != nil {
				return nil, false, fmt.Errorf("decode cached candle %s@%d: %w", ticker, ts, err)
			}
		}
		candles = append(candles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}
	return candles, true, nil
}

// SaveCandles stores candles and records [start, end] as fetched for the
// ticker and interval.
func (s *SQLiteStore) SaveCandles(ctx context.Context, ticker string, interval types.Interval, start, end time.Time, candles []types.Candle) error {
	ticker = strings.ToUpper(ticker)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO candles (ticker, interval, ts, open, high, low, close, volume)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare candle insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range candles {
		if _, err := stmt.ExecContext(ctx, ticker, string(interval), toMillis(c.Timestamp),
			c.Open.String(), c.High.String(), c.Low.String(), c.Close.String(), c.Volume.String()); err != nil {
			return fmt.Errorf("insert candle %s@%s: %w", ticker, c.Timestamp.Format(time.RFC3339), err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO cached_ranges (ticker, interval, start_ts, end_ts, cached_at)
		 VALUES (?, ?, ?, ?, ?)`,
		ticker, string(interval), toMillis(start), toMillis(end), toMillis(time.Now()),
	); err != nil {
		return fmt.Errorf("insert cached range: %w", err)
	}
	return tx.Commit()
}
