package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"quantlab/internal/engine"

	json "github.com/goccy/go-json"
)

// RunRecord is a stored backtest: its summary row plus the full metrics.
type RunRecord struct {
	Summary engine.ResultSummary
	Metrics engine.PerformanceMetrics
}

// SaveRun stores the summary and metrics of a finished run under its ID.
func (s *SQLiteStore) SaveRun(ctx context.Context, r *engine.Results) error {
	if r == nil || r.Metrics == nil {
		return errors.New("save run: results carry no metrics")
	}
	summary := r.Summary()
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("encode run summary: %w", err)
	}
	metricsJSON, err := json.Marshal(r.Metrics)
	if err != nil {
		return fmt.Errorf("encode run metrics: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs (id, strategy, start_ts, end_ts, summary, metrics, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		summary.ID, summary.Strategy, toMillis(summary.Start), toMillis(summary.End),
		string(summaryJSON), string(metricsJSON), toMillis(summary.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("save run %s: %w", summary.ID, err)
	}
	return nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (RunRecord, error) {
	var rec RunRecord
	var summaryJSON, metricsJSON string
	err := s.db.QueryRowContext(ctx, `SELECT summary, metrics FROM runs WHERE id = ?`, id).
		Scan(&summaryJSON, &metricsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, fmt.Errorf("run %s: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return rec, fmt.Errorf("get run %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(summaryJSON), &rec.Summary); err != nil {
		return rec, fmt.Errorf("decode run summary: %w", err)
	}
	if err := json.Unmarshal([]byte(metricsJSON), &rec.Metrics); err != nil {
		return rec, fmt.Errorf("decode run metrics: %w", err)
	}
	return rec, nil
}

// ListRuns returns the most recent run summaries, newest first. A strategy
// of "" matches every run.
func (s *SQLiteStore) ListRuns(ctx context.Context, strategy string, limit int) ([]engine.ResultSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT summary FROM runs
		 WHERE ? = '' OR strategy = ?
		 ORDER BY created_at DESC, id
		 LIMIT ?`,
		strategy, strategy, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []engine.ResultSummary
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		var sum engine.ResultSummary
		if err := json.Unmarshal([]byte(raw), &sum); err != nil {
			return nil, fmt.Errorf("decode run summary: %w", err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}
