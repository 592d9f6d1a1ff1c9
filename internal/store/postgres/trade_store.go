package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/markettwin/internal/domain"
)

// TradeStore implements domain.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a TradeStore backed by the given connection pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

// InsertBatch appends a run's trades using a pgx Batch. Tape order is
// preserved through the serial id column.
func (s *TradeStore) InsertBatch(ctx context.Context, runID string, trades []domain.Trade) error {
	if len(trades) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	const query = `
		INSERT INTO run_trades (
			run_id, ticker, qty, price, buy_agent_id, sell_agent_id, timestamp
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	for _, t := range trades {
		batch.Queue(query,
			runID, t.Ticker, t.Qty, t.Price,
			t.BuyAgentID, t.SellAgentID, t.Timestamp,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range trades {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert trade batch item %d: %w", i, err)
		}
	}
	return nil
}

// ListByRun returns a run's trades in tape order.
func (s *TradeStore) ListByRun(ctx context.Context, runID string, opts domain.ListOpts) ([]domain.Trade, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 500
	}

	rows, err := s.pool.Query(ctx, `
		SELECT ticker, qty, price, buy_agent_id, sell_agent_id, timestamp
		FROM run_trades
		WHERE run_id = $1
		ORDER BY id
		LIMIT $2 OFFSET $3`, runID, limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades for run %s: %w", runID, err)
	}
	defer rows.Close()

	var trades []domain.Trade
	for rows.Next() {
		var t domain.Trade
		if err := rows.Scan(
			&t.Ticker, &t.Qty, &t.Price,
			&t.BuyAgentID, &t.SellAgentID, &t.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan trade: %w", err)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}
