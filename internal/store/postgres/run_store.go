package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/markettwin/internal/domain"
)

// RunStore implements domain.RunStore using PostgreSQL. Agent summaries
// travel as a JSONB column: they are read back whole, never queried into.
type RunStore struct {
	pool *pgxpool.Pool
}

// NewRunStore creates a RunStore backed by the given connection pool.
func NewRunStore(pool *pgxpool.Pool) *RunStore {
	return &RunStore{pool: pool}
}

const runSelectCols = `run_id, mode, seed, state, started_at, finished_at,
	ticks, trades, rejected, faults, agents`

// Insert stores a run summary. Re-inserting the same run id replaces the
// previous row, which covers the stopped-then-resummarized case.
func (s *RunStore) Insert(ctx context.Context, summary domain.RunSummary) error {
	agents, err := json.Marshal(summary.Agents)
	if err != nil {
		return fmt.Errorf("postgres: marshal agents for run %s: %w", summary.RunID, err)
	}

	const query = `
		INSERT INTO runs (
			run_id, mode, seed, state, started_at, finished_at,
			ticks, trades, rejected, faults, agents
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (run_id) DO UPDATE SET
			state = EXCLUDED.state,
			finished_at = EXCLUDED.finished_at,
			ticks = EXCLUDED.ticks,
			trades = EXCLUDED.trades,
			rejected = EXCLUDED.rejected,
			faults = EXCLUDED.faults,
			agents = EXCLUDED.agents`

	_, err = s.pool.Exec(ctx, query,
		summary.RunID, summary.Mode, summary.Seed, summary.State,
		summary.StartedAt, summary.FinishedAt,
		summary.Ticks, summary.Trades, summary.Rejected, summary.Faults,
		agents,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert run %s: %w", summary.RunID, err)
	}
	return nil
}

// Get returns the summary for one run, or domain.ErrNotFound.
func (s *RunStore) Get(ctx context.Context, runID string) (domain.RunSummary, error) {
	row := s.pool.QueryRow(ctx,
		"SELECT "+runSelectCols+" FROM runs WHERE run_id = $1", runID)

	summary, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.RunSummary{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.RunSummary{}, fmt.Errorf("postgres: get run %s: %w", runID, err)
	}
	return summary, nil
}

// ListRecent returns summaries ordered newest first.
func (s *RunStore) ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.RunSummary, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.pool.Query(ctx,
		"SELECT "+runSelectCols+` FROM runs
		ORDER BY started_at DESC
		LIMIT $1 OFFSET $2`, limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list runs: %w", err)
	}
	defer rows.Close()

	var out []domain.RunSummary
	for rows.Next() {
		summary, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan run: %w", err)
		}
		out = append(out, summary)
	}
	return out, rows.Err()
}

func scanRun(row pgx.Row) (domain.RunSummary, error) {
	var (
		summary domain.RunSummary
		agents  []byte
	)
	err := row.Scan(
		&summary.RunID, &summary.Mode, &summary.Seed, &summary.State,
		&summary.StartedAt, &summary.FinishedAt,
		&summary.Ticks, &summary.Trades, &summary.Rejected, &summary.Faults,
		&agents,
	)
	if err != nil {
		return domain.RunSummary{}, err
	}
	if len(agents) > 0 {
		if err := json.Unmarshal(agents, &summary.Agents); err != nil {
			return domain.RunSummary{}, fmt.Errorf("unmarshal agents: %w", err)
		}
	}
	return summary, nil
}
