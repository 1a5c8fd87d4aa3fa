package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// dbtx is the subset of pgxpool.Pool (and pgx.Tx) the queries read through.
type dbtx interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type queries struct {
	db dbtx
}

type assetRow struct {
	ID         int32
	Ticker     string
	Name       string
	Type       string
	CreatedAt  time.Time
	ModifiedAt time.Time
}

const getAssetByTicker = `
	SELECT id, ticker, name, type, created_at, modified_at
	FROM assets
	WHERE ticker = $1
`

func (q *queries) GetAssetByTicker(ctx context.Context, ticker string) (assetRow, error) {
	var a assetRow
	err := q.db.QueryRow(ctx, getAssetByTicker, ticker).Scan(
		&a.ID, &a.Ticker, &a.Name, &a.Type, &a.CreatedAt, &a.ModifiedAt,
	)
	return a, err
}

type getAggregatesParams struct {
	TimeBucket string
	AssetID    int32
	Start      time.Time
	End        time.Time
}

type aggregateRow struct {
	Bucket  time.Time
	AssetID int32
	Open    decimal.Decimal
	High    decimal.Decimal
	Low     decimal.Decimal
	Close   decimal.Decimal
	Volume  decimal.Decimal
}

// Minute bars are rolled up into the requested bucket. The range is
// inclusive on both ends.
const getAggregates = `
	SELECT time_bucket($1::interval, timestamp) AS bucket,
	       asset_id,
	       first(open, timestamp),
	       max(high),
	       min(low),
	       last(close, timestamp),
	       sum(volume)
	FROM candles
	WHERE asset_id = $2
	  AND timestamp >= $3
	  AND timestamp <= $4
	GROUP BY bucket, asset_id
	ORDER BY bucket ASC
`

func (q *queries) GetAggregates(ctx context.Context, arg getAggregatesParams) ([]aggregateRow, error) {
	rows, err := q.db.Query(ctx, getAggregates, arg.TimeBucket, arg.AssetID, arg.Start, arg.End)
	if err != nil {
		return nil, fmt.Errorf("get aggregates: %w", err)
	}
	defer rows.Close()

	var out []aggregateRow
	for rows.Next() {
		var r aggregateRow
		if err := rows.Scan(&r.Bucket, &r.AssetID, &r.Open, &r.High, &r.Low, &r.Close, &r.Volume); err != nil {
			return nil, fmt.Errorf("scan aggregate: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate aggregates: %w", err)
	}
	return out, nil
}
