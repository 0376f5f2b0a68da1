package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arbiterhq/arbiter/internal/domain"
)

// ExecutionStore implements domain.ExecutionStore using PostgreSQL.
type ExecutionStore struct {
	pool *pgxpool.Pool
}

// NewExecutionStore creates a new ExecutionStore.
func NewExecutionStore(pool *pgxpool.Pool) *ExecutionStore {
	return &ExecutionStore{pool: pool}
}

// Create inserts a sealed execution record and its legs.
func (s *ExecutionStore) Create(ctx context.Context, rec domain.ExecutionRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO executions (id, candidate_id, strategy, reservation_id, state, size_usd, expected_pnl_usd, realized_pnl_usd, unwind_outcome, started_at, sealed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		rec.ID, rec.CandidateID, string(rec.Strategy), rec.ReservationID,
		string(rec.State), rec.SizeUSD, rec.ExpectedPnLUSD, rec.RealizedPnLUSD,
		string(rec.Unwind), rec.StartedAt, rec.SealedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert execution: %w", err)
	}

	for _, lf := range rec.Legs {
		_, err = tx.Exec(ctx, `
			INSERT INTO execution_legs (execution_id, venue_id, venue_kind, instrument_id, side, expected_price, expected_qty, token_address, chain, status, filled_price, filled_qty, slippage_bps, venue_reason, dispatched_at, resolved_at, unwind_status, unwind_price, unwind_pnl_usd)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
			rec.ID, lf.Leg.VenueID, string(lf.Leg.VenueKind), lf.Leg.InstrumentID,
			string(lf.Leg.Side), lf.Leg.Price, lf.Leg.Qty, lf.Leg.TokenAddress,
			lf.Leg.Chain, string(lf.Status), lf.FilledPrice, lf.FilledQty,
			lf.SlippageBps, lf.VenueReason, nullTime(lf.DispatchedAt), nullTime(lf.ResolvedAt),
			string(lf.UnwindStatus), lf.UnwindPrice, lf.UnwindPnLUSD,
		)
		if err != nil {
			return fmt.Errorf("postgres: insert execution_leg: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// Get returns an execution record with its legs.
func (s *ExecutionStore) Get(ctx context.Context, id string) (domain.ExecutionRecord, error) {
	rec, err := s.scanOne(ctx, id)
	if err != nil {
		return domain.ExecutionRecord{}, err
	}

	legs, err := s.legsFor(ctx, id)
	if err != nil {
		return domain.ExecutionRecord{}, err
	}
	rec.Legs = legs
	return rec, nil
}

func (s *ExecutionStore) scanOne(ctx context.Context, id string) (domain.ExecutionRecord, error) {
	var rec domain.ExecutionRecord
	var strategy, state, unwind string
	err := s.pool.QueryRow(ctx, `
		SELECT id, candidate_id, strategy, reservation_id, state, size_usd, expected_pnl_usd, realized_pnl_usd, unwind_outcome, started_at, sealed_at
		FROM executions WHERE id = $1`,
		id,
	).Scan(&rec.ID, &rec.CandidateID, &strategy, &rec.ReservationID, &state,
		&rec.SizeUSD, &rec.ExpectedPnLUSD, &rec.RealizedPnLUSD, &unwind,
		&rec.StartedAt, &rec.SealedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ExecutionRecord{}, domain.ErrNotFound
		}
		return domain.ExecutionRecord{}, fmt.Errorf("postgres: get execution %s: %w", id, err)
	}
	rec.Strategy = domain.StrategyKind(strategy)
	rec.State = domain.TradeState(state)
	rec.Unwind = domain.UnwindOutcome(unwind)
	return rec, nil
}

func (s *ExecutionStore) legsFor(ctx context.Context, id string) ([]domain.LegFill, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT venue_id, venue_kind, instrument_id, side, expected_price, expected_qty, token_address, chain, status, filled_price, filled_qty, slippage_bps, venue_reason, dispatched_at, resolved_at, unwind_status, unwind_price, unwind_pnl_usd
		FROM execution_legs WHERE execution_id = $1 ORDER BY id`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: get execution_legs: %w", err)
	}
	defer rows.Close()

	var legs []domain.LegFill
	for rows.Next() {
		var lf domain.LegFill
		var venueKind, side, status, unwindStatus string
		var dispatchedAt, resolvedAt *time.Time
		if err := rows.Scan(&lf.Leg.VenueID, &venueKind, &lf.Leg.InstrumentID, &side,
			&lf.Leg.Price, &lf.Leg.Qty, &lf.Leg.TokenAddress, &lf.Leg.Chain,
			&status, &lf.FilledPrice, &lf.FilledQty, &lf.SlippageBps, &lf.VenueReason,
			&dispatchedAt, &resolvedAt, &unwindStatus, &lf.UnwindPrice, &lf.UnwindPnLUSD,
		); err != nil {
			return nil, err
		}
		lf.Leg.VenueKind = domain.VenueKind(venueKind)
		lf.Leg.Side = domain.OrderSide(side)
		lf.Status = domain.LegStatus(status)
		lf.UnwindStatus = domain.LegStatus(unwindStatus)
		if dispatchedAt != nil {
			lf.DispatchedAt = *dispatchedAt
		}
		if resolvedAt != nil {
			lf.ResolvedAt = *resolvedAt
		}
		legs = append(legs, lf)
	}
	return legs, rows.Err()
}

// ListRecent returns the most recently sealed records, without legs.
func (s *ExecutionStore) ListRecent(ctx context.Context, limit int) ([]domain.ExecutionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.list(ctx, `
		SELECT id, candidate_id, strategy, reservation_id, state, size_usd, expected_pnl_usd, realized_pnl_usd, unwind_outcome, started_at, sealed_at
		FROM executions ORDER BY sealed_at DESC LIMIT $1`, limit)
}

// ListSealedBefore returns sealed records older than cutoff, with legs, for
// archival.
func (s *ExecutionStore) ListSealedBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.ExecutionRecord, error) {
	if limit <= 0 {
		limit = 500
	}
	recs, err := s.list(ctx, `
		SELECT id, candidate_id, strategy, reservation_id, state, size_usd, expected_pnl_usd, realized_pnl_usd, unwind_outcome, started_at, sealed_at
		FROM executions WHERE sealed_at < $1 ORDER BY sealed_at ASC LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	for i := range recs {
		legs, err := s.legsFor(ctx, recs[i].ID)
		if err != nil {
			return nil, err
		}
		recs[i].Legs = legs
	}
	return recs, nil
}

// DeleteSealedBefore prunes archived rows; legs cascade.
func (s *ExecutionStore) DeleteSealedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM executions WHERE sealed_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete executions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *ExecutionStore) list(ctx context.Context, sql string, args ...any) ([]domain.ExecutionRecord, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list executions: %w", err)
	}
	defer rows.Close()

	var list []domain.ExecutionRecord
	for rows.Next() {
		var rec domain.ExecutionRecord
		var strategy, state, unwind string
		if err := rows.Scan(&rec.ID, &rec.CandidateID, &strategy, &rec.ReservationID,
			&state, &rec.SizeUSD, &rec.ExpectedPnLUSD, &rec.RealizedPnLUSD, &unwind,
			&rec.StartedAt, &rec.SealedAt); err != nil {
			return nil, err
		}
		rec.Strategy = domain.StrategyKind(strategy)
		rec.State = domain.TradeState(state)
		rec.Unwind = domain.UnwindOutcome(unwind)
		list = append(list, rec)
	}
	return list, rows.Err()
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

var _ domain.ExecutionStore = (*ExecutionStore)(nil)
