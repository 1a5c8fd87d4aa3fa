package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"quantlab/types"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

var testInterval = types.OneMinute
var startTime = time.UnixMilli(0).UTC()
var endTime = startTime.Add(time.Minute * 5)

type mockCandlesRepository struct {
	sqlError error
	empty    bool
	lastArg  *getAggregatesParams
}

func TestDatabase_GetAggregates(t *testing.T) {
	type args struct {
		assetId  int
		interval types.Interval
		start    time.Time
		end      time.Time
	}
	tests := []struct {
		name    string
		args    args
		want    []types.Candle
		sqlErr  error
		empty   bool
		wantErr error
	}{
		{"should throw ErrNoCandles on empty result", args{999, testInterval, startTime, endTime}, nil, nil, true, ErrNoCandles},
		{"should throw ErrNoCandles on no rows", args{999, testInterval, startTime, endTime}, nil, pgx.ErrNoRows, false, ErrNoCandles},
		{"should throw ErrIntervalNotSupported", args{999, types.Month, startTime, endTime}, nil, nil, false, ErrIntervalNotSupported},
		{"should return candles", args{999, testInterval, startTime, endTime}, mockCandles(999, startTime, endTime), nil, false, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := &Database{
				candles: &mockCandlesRepository{
					sqlError: tt.sqlErr,
					empty:    tt.empty,
				},
			}
			got, err := db.GetAggregates(context.Background(), tt.args.assetId, "AAPL", tt.args.interval, tt.args.start, tt.args.end)

			if err != nil || tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("GetAggregates() error = %v, wantErr %v", err, tt.wantErr)
				}
				return
			}
			if len(got) != len(tt.want) {
				t.Fatalf("GetAggregates() returned %d candles, want %d", len(got), len(tt.want))
			}
			for i := 0; i < len(tt.want); i++ {
				if got[i].AssetId != tt.args.assetId {
					t.Errorf("GetAggregates() %s assetId got = %v, want %v", got[i].Timestamp, got[i].AssetId, tt.want[i].AssetId)
					break
				}
				if got[i].Interval != tt.args.interval {
					t.Errorf("GetAggregates() %s interval got = %v, want %v", got[i].Timestamp, got[i].Interval, tt.want[i].Interval)
					break
				}
				if got[i].Ticker != "AAPL" {
					t.Errorf("GetAggregates() ticker got = %v", got[i].Ticker)
					break
				}
				if !got[i].High.Equal(tt.want[i].High) {
					t.Errorf("GetAggregates() %s high got = %v, want %v", got[i].Timestamp, got[i].High, tt.want[i].High)
					break
				}
			}
		})
	}
}

func TestDatabase_GetCandles(t *testing.T) {
	candles := &mockCandlesRepository{}
	db := &Database{assets: mockAssetsRepository{}, candles: candles}

	got, err := db.GetCandles(context.Background(), "AAPL", types.Day, startTime, startTime.AddDate(0, 0, 3))
	if err != nil {
		t.Fatalf("GetCandles() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("GetCandles() returned %d candles, want 3", len(got))
	}
	if candles.lastArg.TimeBucket != "1 day" || candles.lastArg.AssetID != 1 {
		t.Fatalf("GetCandles() queried %+v", *candles.lastArg)
	}

	db.assets = mockAssetsRepository{sqlError: pgx.ErrNoRows}
	if _, err := db.GetCandles(context.Background(), "ZZZZ", types.Day, startTime, endTime); !errors.Is(err, ErrAssetNotFound) {
		t.Fatalf("GetCandles() error = %v, want ErrAssetNotFound", err)
	}
}

func (m *mockCandlesRepository) GetAggregates(_ context.Context, arg getAggregatesParams) ([]aggregateRow, error) {
	m.lastArg = &arg
	if m.sqlError != nil {
		return nil, m.sqlError
	}
	if m.empty {
		return nil, nil
	}
	step := time.Minute
	if arg.TimeBucket == "1 day" {
		step = 24 * time.Hour
	}
	var rows []aggregateRow
	for i := arg.Start; i.Before(arg.End); i = i.Add(step) {
		rows = append(rows, aggregateRow{
			Bucket:  i,
			AssetID: arg.AssetID,
			Open:    decimal.NewFromInt(i.UnixMilli()),
			High:    decimal.NewFromInt(i.UnixMilli()),
			Low:     decimal.NewFromInt(i.UnixMilli()),
			Close:   decimal.NewFromInt(i.UnixMilli()),
			Volume:  decimal.NewFromInt(i.UnixMilli()),
		})
	}
	return rows, nil
}

func mockCandles(assetId int, start, end time.Time) []types.Candle {
	var candles []types.Candle
	for i := start; i.Before(end); i = i.Add(types.IntervalToTime[testInterval]) {
		candles = append(candles, types.Candle{
			Timestamp: i,
			Interval:  testInterval,
			AssetId:   assetId,
			Open:      decimal.NewFromInt(i.UnixMilli()),
			High:      decimal.NewFromInt(i.UnixMilli()),
			Low:       decimal.NewFromInt(i.UnixMilli()),
			Close:     decimal.NewFromInt(i.UnixMilli()),
			Volume:    decimal.NewFromInt(i.UnixMilli()),
		})
	}
	return candles
}
