package engine

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"quantlab/types"
)

// WriteTradesCSVFile writes the trade history to a CSV file at path.
func WriteTradesCSVFile(path string, trades []types.Trade) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create trades file: %w", err)
	}
	defer f.Close()

	return WriteTradesCSV(f, trades)
}

// WriteTradesCSV writes one row per execution record.
func WriteTradesCSV(w io.Writer, trades []types.Trade) error {
	cw := csv.NewWriter(w)

	header := []string{
		"timestamp", // RFC3339
		"symbol",
		"side",
		"quantity",
		"price",
		"commission",
		"slippage",
		"total_cost",
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, t := range trades {
		record := []string{
			t.Timestamp.Format(time.RFC3339),
			t.Symbol,
			string(t.Side),
			strconv.FormatInt(t.Quantity, 10),
			t.Price.String(),
			t.Commission.String(),
			t.Slippage.String(),
			t.TotalCost().String(),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

func WriteHistoryCSVFile(path string, history []types.PortfolioView) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create history file: %w", err)
	}
	defer f.Close()

	return WriteHistoryCSV(f, history)
}

// WriteHistoryCSV writes one row per portfolio snapshot.
func WriteHistoryCSV(w io.Writer, history []types.PortfolioView) error {
	cw := csv.NewWriter(w)

	if err := cw.Write([]string{"date", "cash", "positions_value", "total_value", "num_positions"}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, v := range history {
		record := []string{
			v.Time.Format(time.RFC3339),
			v.Cash.StringFixed(4),
			v.PositionsValue.StringFixed(4),
			v.TotalValue.StringFixed(4),
			strconv.Itoa(v.NumPositions),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}
