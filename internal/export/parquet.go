package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"quantlab/internal/engine"
	"quantlab/types"

	"github.com/parquet-go/parquet-go"
)

// HistoryRecord is the Parquet schema for one portfolio snapshot.
type HistoryRecord struct {
	RunID          string  `parquet:"run_id"`
	Timestamp      int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Cash           float64 `parquet:"cash"`
	PositionsValue float64 `parquet:"positions_value"`
	TotalValue     float64 `parquet:"total_value"`
	NumPositions   int64   `parquet:"num_positions"`
}

// TradeRecord is the Parquet schema for one executed trade.
type TradeRecord struct {
	RunID      string  `parquet:"run_id"`
	Symbol     string  `parquet:"symbol"`
	Side       string  `parquet:"side"`
	Timestamp  int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Quantity   int64   `parquet:"quantity"`
	Price      float64 `parquet:"price"`
	Commission float64 `parquet:"commission"`
	Slippage   float64 `parquet:"slippage"`
}

// Paths names the files written for one run.
type Paths struct {
	History string
	Trades  string
}

// WriteResults writes the run's history and trades to
//
//	<dir>/<strategy>_history.parquet
//	<dir>/<strategy>_trades.parquet
//
// The trades file is skipped when the run made no trades.
func WriteResults(dir string, r *engine.Results) (Paths, error) {
	var paths Paths
	base := filepath.Join(dir, fileStem(r.StrategyName))

	paths.History = base + "_history.parquet"
	if err := writeParquetFile(paths.History, HistoryRecords(r.ID.String(), r.History)); err != nil {
		return Paths{}, fmt.Errorf("writing history for %s: %w", r.StrategyName, err)
	}
	if len(r.Trades) > 0 {
		paths.Trades = base + "_trades.parquet"
		if err := writeParquetFile(paths.Trades, TradeRecords(r.ID.String(), r.Trades)); err != nil {
			return Paths{}, fmt.Errorf("writing trades for %s: %w", r.StrategyName, err)
		}
	}
	return paths, nil
}

func HistoryRecords(runID string, history []types.PortfolioView) []HistoryRecord {
	out := make([]HistoryRecord, len(history))
	for i, v := range history {
		out[i] = HistoryRecord{
			RunID:          runID,
			Timestamp:      v.Time.UnixMilli(),
			Cash:           v.Cash.InexactFloat64(),
			PositionsValue: v.PositionsValue.InexactFloat64(),
			TotalValue:     v.TotalValue.InexactFloat64(),
			NumPositions:   int64(v.NumPositions),
		}
	}
	return out
}

func TradeRecords(runID string, trades []types.Trade) []TradeRecord {
	out := make([]TradeRecord, len(trades))
	for i, t := range trades {
		out[i] = TradeRecord{
			RunID:      runID,
			Symbol:     t.Symbol,
			Side:       string(t.Side),
			Timestamp:  t.Timestamp.UnixMilli(),
			Quantity:   t.Quantity,
			Price:      t.Price.InexactFloat64(),
			Commission: t.Commission.InexactFloat64(),
			Slippage:   t.Slippage.InexactFloat64(),
		}
	}
	return out
}

func ReadHistory(path string) ([]HistoryRecord, error) {
	return readParquetFile[HistoryRecord](path)
}

func ReadTrades(path string) ([]TradeRecord, error) {
	return readParquetFile[TradeRecord](path)
}

func fileStem(name string) string {
	if name == "" {
		return "run"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ' ', ':', '[', ']', ',':
			return '_'
		}
		return r
	}, name)
}

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
