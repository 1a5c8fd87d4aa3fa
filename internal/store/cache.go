package store

import (
	"context"
	"time"

	"quantlab/types"

	"github.com/rs/zerolog"
)

// CandleSource is anything that can serve candles for a ticker and range.
type CandleSource interface {
	GetCandles(ctx context.Context, ticker string, interval types.Interval, start, end time.Time) ([]types.Candle, error)
}

// CachedSource serves candles from the SQLite cache and falls back to the
// wrapped source on a miss, storing what it fetched. Cache failures are
// logged and never fail a request the source can answer.
type CachedSource struct {
	source CandleSource
	cache  *SQLiteStore
	log    zerolog.Logger
}

var _ CandleSource = (*CachedSource)(nil)

func NewCachedSource(source CandleSource, cache *SQLiteStore, log zerolog.Logger) *CachedSource {
	return &CachedSource{source: source, cache: cache, log: log}
}

func (c *CachedSource) GetCandles(ctx context.Context, ticker string, interval types.Interval, start, end time.Time) ([]types.Candle, error) {
	log := c.log.With().Str("ticker", ticker).Str("interval", string(interval)).Logger()

	candles, ok, err := c.cache.LoadCandles(ctx, ticker, interval, start, end)
	switch {
	case err != nil:
		log.Warn().Err(err).Msg("candle cache read failed")
	case ok:
		log.Debug().Int("candles", len(candles)).Msg("candle cache hit")
		return candles, nil
	}

	candles, err = c.source.GetCandles(ctx, ticker, interval, start, end)
	if err != nil {
		return nil, err
	}
	if err := c.cache.SaveCandles(ctx, ticker, interval, start, end, candles); err != nil {
		log.Warn().Err(err).Msg("candle cache write failed")
	} else {
		log.Debug().Int("candles", len(candles)).Msg("candle cache filled")
	}
	return candles, nil
}
