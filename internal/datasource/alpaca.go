package datasource

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"quantlab/internal/repository"
	"quantlab/types"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var ErrMissingCredentials = errors.New("alpaca api key and secret are required")

// DefaultFeed is the consolidated feed; free accounts need "iex".
const DefaultFeed = "sip"

var intervalToTimeFrame = map[types.Interval]marketdata.TimeFrame{
	types.OneMinute:      marketdata.OneMin,
	types.FiveMinutes:    marketdata.NewTimeFrame(5, marketdata.Min),
	types.FifteenMinutes: marketdata.NewTimeFrame(15, marketdata.Min),
	types.ThirtyMinutes:  marketdata.NewTimeFrame(30, marketdata.Min),
	types.Hour:           marketdata.OneHour,
	types.FourHours:      marketdata.NewTimeFrame(4, marketdata.Hour),
	types.Day:            marketdata.OneDay,
	types.Week:           marketdata.NewTimeFrame(1, marketdata.Week),
	types.Month:          marketdata.NewTimeFrame(1, marketdata.Month),
}

// barsClient is the slice of the Alpaca market-data client the source needs.
type barsClient interface {
	GetMultiBars(symbols []string, req marketdata.GetBarsRequest) (map[string][]marketdata.Bar, error)
}

var _ barsClient = (*marketdata.Client)(nil)

// AlpacaSource pulls historical bars from the Alpaca market-data API.
type AlpacaSource struct {
	client barsClient
	feed   string
	log    zerolog.Logger
}

// NewAlpacaSource builds a source against the Alpaca data API. dataURL
// overrides the default endpoint when set.
func NewAlpacaSource(apiKey, apiSecret, dataURL, feed string, log zerolog.Logger) (*AlpacaSource, error) {
	if apiKey == "" || apiSecret == "" {
		return nil, ErrMissingCredentials
	}
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}
	return newAlpacaSource(marketdata.NewClient(opts), feed, log), nil
}

func newAlpacaSource(client barsClient, feed string, log zerolog.Logger) *AlpacaSource {
	if feed == "" {
		feed = DefaultFeed
	}
	return &AlpacaSource{client: client, feed: feed, log: log}
}

func (s *AlpacaSource) GetCandles(ctx context.Context, ticker string, interval types.Interval, start, end time.Time) ([]types.Candle, error) {
	byTicker, err := s.GetMultiCandles(ctx, []string{ticker}, interval, start, end)
	if err != nil {
		return nil, err
	}
	candles := byTicker[strings.ToUpper(ticker)]
	if len(candles) == 0 {
		return nil, fmt.Errorf("%s: %w", ticker, repository.ErrNoCandles)
	}
	return candles, nil
}

// GetMultiCandles fetches several tickers in one request. Tickers with no
// bars are absent from the result.
func (s *AlpacaSource) GetMultiCandles(ctx context.Context, tickers []string, interval types.Interval, start, end time.Time) (map[string][]types.Candle, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	tf, ok := intervalToTimeFrame[interval]
	if !ok {
		return nil, fmt.Errorf("%w: %s", repository.ErrIntervalNotSupported, interval)
	}
	symbols := make([]string, len(tickers))
	for i, t := range tickers {
		symbols[i] = strings.ToUpper(t)
	}

	multiBars, err := s.client.GetMultiBars(symbols, marketdata.GetBarsRequest{
		TimeFrame: tf,
		Start:     start,
		End:       end,
		Feed:      marketdata.Feed(s.feed),
	})
	if err != nil {
		return nil, fmt.Errorf("GetMultiBars: %w", err)
	}

	out := make(map[string][]types.Candle, len(multiBars))
	for symbol, bars := range multiBars {
		symbol = strings.ToUpper(symbol)
		candles := make([]types.Candle, 0, len(bars))
		for _, ab := range bars {
			candles = append(candles, types.Candle{
				Ticker:    symbol,
				Open:      decimal.NewFromFloat(ab.Open),
				High:      decimal.NewFromFloat(ab.High),
				Low:       decimal.NewFromFloat(ab.Low),
				Close:     decimal.NewFromFloat(ab.Close),
				Volume:    decimal.NewFromInt(int64(ab.Volume)),
				Interval:  interval,
				Timestamp: ab.Timestamp.UTC(),
			})
		}
		out[symbol] = candles
	}
	s.log.Debug().
		Strs("symbols", symbols).
		Int("returned", len(out)).
		Str("interval", string(interval)).
		Msg("alpaca bars fetched")
	return out, nil
}
