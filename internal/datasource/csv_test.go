package datasource

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"quantlab/internal/repository"
	"quantlab/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const aaplCSV = `timestamp,open,high,low,close,volume
2023-01-03,130.28,130.90,124.17,125.07,112117500
2023-01-04,126.89,128.66,125.08,126.36,89113600
2023-01-05T00:00:00Z,127.13,127.77,124.76,125.02,80962700
2023-01-06 00:00:00,126.01,130.29,124.89,129.62,87754700
`

func writeCSV(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestCSVSource_GetCandles(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, "AAPL.csv", aaplCSV)
	src := NewCSVSource(dir)

	day := func(d int) time.Time { return time.Date(2023, 1, d, 0, 0, 0, 0, time.UTC) }

	tests := []struct {
		name       string
		ticker     string
		start, end time.Time
		wantCloses []string
		wantErr    error
	}{
		{name: "full range", ticker: "AAPL", start: day(1), end: day(31), wantCloses: []string{"125.07", "126.36", "125.02", "129.62"}},
		{name: "inclusive bounds", ticker: "aapl", start: day(4), end: day(5), wantCloses: []string{"126.36", "125.02"}},
		{name: "empty range", ticker: "AAPL", start: day(20), end: day(31), wantErr: repository.ErrNoCandles},
		{name: "missing file", ticker: "MSFT", start: day(1), end: day(31), wantErr: repository.ErrAssetNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := src.GetCandles(context.Background(), tt.ticker, types.Day, tt.start, tt.end)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			closes := make([]string, len(got))
			for i, c := range got {
				closes[i] = c.Close.String()
				assert.Equal(t, "AAPL", c.Ticker)
				assert.Equal(t, types.Day, c.Interval)
			}
			assert.Equal(t, tt.wantCloses, closes)
		})
	}
}

func TestCSVSource_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewCSVSource(t.TempDir()).GetCandles(ctx, "AAPL", types.Day, time.Time{}, time.Now())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReadCandlesCSV(t *testing.T) {
	t.Run("columns in any order", func(t *testing.T) {
		body := "Close,Volume,Timestamp,Open,Low,High\n101,5,2023-02-01,100,99,102\n"
		got, err := ReadCandlesCSV(strings.NewReader(body), "spy", types.Day)
		require.NoError(t, err)
		require.Len(t, got, 1)
		c := got[0]
		assert.Equal(t, "SPY", c.Ticker)
		assert.Equal(t, "100", c.Open.String())
		assert.Equal(t, "102", c.High.String())
		assert.Equal(t, "99", c.Low.String())
		assert.Equal(t, "101", c.Close.String())
		assert.Equal(t, "5", c.Volume.String())
		assert.True(t, c.Timestamp.Equal(time.Date(2023, 2, 1, 0, 0, 0, 0, time.UTC)))
	})

	errTests := []struct {
		name string
		body string
		want string
	}{
		{name: "missing column", body: "timestamp,open,high,low,close\n", want: `missing column "volume"`},
		{name: "bad timestamp", body: "timestamp,open,high,low,close,volume\n01/02/2023,1,1,1,1,1\n", want: "line 2"},
		{name: "bad price", body: "timestamp,open,high,low,close,volume\n2023-01-02,1,x,1,1,1\n", want: "high"},
		{name: "empty input", body: "", want: "read header"},
	}
	for _, tt := range errTests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadCandlesCSV(strings.NewReader(tt.body), "AAPL", types.Day)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
