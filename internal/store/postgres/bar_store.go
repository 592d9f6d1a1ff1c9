package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/markettwin/internal/domain"
)

// BarStore implements domain.BarStore using PostgreSQL.
type BarStore struct {
	pool *pgxpool.Pool
}

// NewBarStore creates a BarStore backed by the given connection pool.
func NewBarStore(pool *pgxpool.Pool) *BarStore {
	return &BarStore{pool: pool}
}

// InsertBatch upserts historical bars. Re-ingesting the same (ticker,
// timestamp) replaces the row, so repeated loads converge.
func (s *BarStore) InsertBatch(ctx context.Context, bars []domain.Tick) error {
	if len(bars) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	const query = `
		INSERT INTO bars (ticker, timestamp, open, high, low, close, volume)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (ticker, timestamp) DO UPDATE SET
			open = EXCLUDED.open,
			high = EXCLUDED.high,
			low = EXCLUDED.low,
			close = EXCLUDED.close,
			volume = EXCLUDED.volume`

	for _, b := range bars {
		batch.Queue(query,
			b.Ticker, b.Timestamp, b.Open, b.High, b.Low, b.Close, b.Volume,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range bars {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert bar batch item %d: %w", i, err)
		}
	}
	return nil
}

// ListRecent returns the n most recent bars for a ticker in ascending
// timestamp order, matching the shape agents and the projector consume.
func (s *BarStore) ListRecent(ctx context.Context, ticker string, n int) ([]domain.Tick, error) {
	if n <= 0 {
		n = 100
	}

	rows, err := s.pool.Query(ctx, `
		SELECT ticker, timestamp, open, high, low, close, volume
		FROM bars
		WHERE ticker = $1
		ORDER BY timestamp DESC
		LIMIT $2`, ticker, n)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bars %s: %w", ticker, err)
	}
	defer rows.Close()

	bars, err := scanBars(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan bars %s: %w", ticker, err)
	}

	// Reverse DESC rows into chronological order.
	for i, j := 0, len(bars)-1; i < j; i, j = i+1, j-1 {
		bars[i], bars[j] = bars[j], bars[i]
	}
	return bars, nil
}

func scanBars(rows pgx.Rows) ([]domain.Tick, error) {
	var bars []domain.Tick
	for rows.Next() {
		var b domain.Tick
		if err := rows.Scan(
			&b.Ticker, &b.Timestamp, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume,
		); err != nil {
			return nil, err
		}
		bars = append(bars, b)
	}
	return bars, rows.Err()
}
