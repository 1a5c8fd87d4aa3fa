package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"quantlab/types"

	"github.com/jackc/pgx/v5"
)

var bucketToInterval = map[types.Interval]string{
	types.OneMinute:      "1 minute",
	types.FiveMinutes:    "5 minutes",
	types.FifteenMinutes: "15 minutes",
	types.ThirtyMinutes:  "30 minutes",
	types.Hour:           "1 hour",
	types.FourHours:      "4 hours",
	types.Day:            "1 day",
	types.Week:           "1 week",
}

// GetCandles resolves ticker to an asset and returns its candles bucketed to
// interval over [start, end].
func (db *Database) GetCandles(ctx context.Context, ticker string, interval types.Interval, start, end time.Time) ([]types.Candle, error) {
	asset, err := db.GetAssetByTicker(ctx, ticker)
	if err != nil {
		return nil, err
	}
	return db.GetAggregates(ctx, asset.Id, ticker, interval, start, end)
}

func (db *Database) GetAggregates(ctx context.Context, assetId int, ticker string, interval types.Interval, start, end time.Time) ([]types.Candle, error) {
	bucket, ok := bucketToInterval[interval]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrIntervalNotSupported, interval)
	}
	args := getAggregatesParams{
		TimeBucket: bucket,
		AssetID:    int32(assetId),
		Start:      start,
		End:        end,
	}
	candles, err := db.candles.GetAggregates(ctx, args)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", ticker, ErrNoCandles)
		}
		return nil, err
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("%s: %w", ticker, ErrNoCandles)
	}
	return convertCandles(candles, interval, ticker), nil
}

func convertCandles(rows []aggregateRow, interval types.Interval, ticker string) []types.Candle {
	candles := make([]types.Candle, 0, len(rows))
	for _, r := range rows {
		candles = append(candles, types.Candle{
			AssetId:   int(r.AssetID),
			Ticker:    ticker,
			Open:      r.Open,
			Close:     r.Close,
			High:      r.High,
			Low:       r.Low,
			Volume:    r.Volume,
			Interval:  interval,
			Timestamp: r.Bucket,
		})
	}
	return candles
}
