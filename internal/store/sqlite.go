package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

var ErrRunNotFound = errors.New("backtest run not found")

const schema = `
CREATE TABLE IF NOT EXISTS candles (
	ticker    TEXT    NOT NULL,
	interval  TEXT    NOT NULL,
	ts        INTEGER NOT NULL,
	open      TEXT    NOT NULL,
	high      TEXT    NOT NULL,
	low       TEXT    NOT NULL,
	close     TEXT    NOT NULL,
	volume    TEXT    NOT NULL,
	PRIMARY KEY (ticker, interval, ts)
);
CREATE TABLE IF NOT EXISTS cached_ranges (
	ticker    TEXT    NOT NULL,
	interval  TEXT    NOT NULL,
	start_ts  INTEGER NOT NULL,
	end_ts    INTEGER NOT NULL,
	cached_at INTEGER NOT NULL,
	PRIMARY KEY (ticker, interval, start_ts, end_ts)
);
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT    PRIMARY KEY,
	strategy   TEXT    NOT NULL,
	start_ts   INTEGER NOT NULL,
	end_ts     INTEGER NOT NULL,
	summary    TEXT    NOT NULL,
	metrics    TEXT    NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS runs_created_at ON runs (created_at);
`

// SQLiteStore keeps a local candle cache and the summaries of finished
// backtests in a single SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and creates
// its tables. ":memory:" gives a throwaway store.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	// SQLite allows one writer; a single connection also keeps ":memory:"
	// databases alive across calls.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }
