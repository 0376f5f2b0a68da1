package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arbiterhq/arbiter/internal/domain"
)

// CycleStore implements domain.CycleStore using PostgreSQL.
type CycleStore struct {
	pool *pgxpool.Pool
}

// NewCycleStore creates a new CycleStore.
func NewCycleStore(pool *pgxpool.Pool) *CycleStore {
	return &CycleStore{pool: pool}
}

// Create upserts a completed cycle row. Rollover is idempotent on retries.
func (s *CycleStore) Create(ctx context.Context, state domain.CycleState) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO cycles (number, started_at, length_seconds, capital_base_usd, cumulative_profit_usd, daily_target_usd, settled_trades)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (number) DO UPDATE SET
			cumulative_profit_usd = EXCLUDED.cumulative_profit_usd,
			settled_trades = EXCLUDED.settled_trades`,
		state.Number, state.StartedAt, int64(state.Length/time.Second),
		state.CapitalBaseUSD, state.CumulativeProfitUSD, state.DailyTargetUSD,
		state.SettledTrades,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert cycle %d: %w", state.Number, err)
	}
	return nil
}

// ListRecent returns the most recently completed cycles, newest first.
func (s *CycleStore) ListRecent(ctx context.Context, limit int) ([]domain.CycleState, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, `
		SELECT number, started_at, length_seconds, capital_base_usd, cumulative_profit_usd, daily_target_usd, settled_trades
		FROM cycles ORDER BY number DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list cycles: %w", err)
	}
	defer rows.Close()

	var list []domain.CycleState
	for rows.Next() {
		var st domain.CycleState
		var lengthSec int64
		if err := rows.Scan(&st.Number, &st.StartedAt, &lengthSec,
			&st.CapitalBaseUSD, &st.CumulativeProfitUSD, &st.DailyTargetUSD,
			&st.SettledTrades); err != nil {
			return nil, err
		}
		st.Length = time.Duration(lengthSec) * time.Second
		list = append(list, st)
	}
	return list, rows.Err()
}

var _ domain.CycleStore = (*CycleStore)(nil)
