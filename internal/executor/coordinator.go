// Package executor dispatches the legs of an admitted candidate to their
// venues and drives each trade through its state machine to a sealed record.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/arbiterhq/arbiter/internal/domain"
)

// ReservationReleaser frees the risk budget a trade was admitted under.
type ReservationReleaser interface {
	Release(reservationID string) error
}

// Config holds dispatch timing.
type Config struct {
	LegTimeout    time.Duration
	UnwindTimeout time.Duration
}

// Coordinator executes one candidate at a time per call. Calls are
// independent; the coordinator holds no cross-trade state beyond its venue
// table.
type Coordinator struct {
	cfg    Config
	venues map[string]domain.VenueExecutor
	risk   ReservationReleaser
	store  domain.ExecutionStore
	events domain.EventPublisher
	logger *slog.Logger
}

// NewCoordinator wires a Coordinator over the venue connector table.
func NewCoordinator(cfg Config, venues map[string]domain.VenueExecutor, risk ReservationReleaser, store domain.ExecutionStore, events domain.EventPublisher, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		cfg:    cfg,
		venues: venues,
		risk:   risk,
		store:  store,
		events: events,
		logger: logger.With(slog.String("component", "executor")),
	}
}

// Execute runs the candidate's legs and returns the sealed record. Legs on
// different venues dispatch concurrently, each under its own timeout; legs
// sharing a venue run in declaration order. The reservation is released
// exactly once, when the trade seals. A partial fill triggers an unwind of
// the filled legs; if the unwind itself fails the returned error wraps
// ErrUnwindFailed and the record carries a residual marker for the operator.
func (c *Coordinator) Execute(ctx context.Context, cand domain.Candidate, res domain.Reservation, sizeUSD float64) (domain.ExecutionRecord, error) {
	rec := domain.ExecutionRecord{
		ID:             uuid.NewString(),
		CandidateID:    cand.ID,
		Strategy:       cand.Strategy,
		ReservationID:  res.ID,
		State:          domain.TradePlanned,
		SizeUSD:        sizeUSD,
		ExpectedPnLUSD: cand.NetProfitUSD() * sizeRatio(cand, sizeUSD),
		StartedAt:      time.Now(),
	}
	for _, leg := range scaleLegs(cand, sizeUSD) {
		rec.Legs = append(rec.Legs, domain.LegFill{Leg: leg, Status: domain.LegPending})
	}

	released := false
	releaseOnce := func() {
		if released {
			return
		}
		released = true
		if err := c.risk.Release(res.ID); err != nil && !errors.Is(err, domain.ErrAlreadyReleased) {
			c.logger.Error("reservation release failed",
				slog.String("reservation_id", res.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	defer releaseOnce()

	rec.State = domain.TradeDispatching
	c.dispatchLegs(ctx, &rec)

	filled := len(rec.FilledLegs())
	switch {
	case filled == len(rec.Legs):
		rec.State = domain.TradeAllFilled
	case filled == 0:
		rec.State = domain.TradeAllFailed
	default:
		rec.State = domain.TradePartialFill
	}

	var execErr error
	switch rec.State {
	case domain.TradeAllFilled:
		rec.RealizedPnLUSD = rec.ExpectedPnLUSD - slippageCostUSD(rec.Legs)
		rec.State = domain.TradeSettled
		c.publish(domain.EventTradeSettled, map[string]string{
			"execution_id": rec.ID,
			"strategy":     string(rec.Strategy),
			"pnl_usd":      fmt.Sprintf("%.2f", rec.RealizedPnLUSD),
		})

	case domain.TradeAllFailed:
		// Nothing filled, nothing at risk.
		rec.RealizedPnLUSD = 0
		rec.State = domain.TradeSettled

	case domain.TradePartialFill:
		rec.State = domain.TradeUnwinding
		execErr = c.unwind(ctx, &rec)
		rec.State = domain.TradeUnwound
		if rec.Unwind == domain.UnwindClosed {
			c.publish(domain.EventTradeUnwound, map[string]string{
				"execution_id": rec.ID,
				"pnl_usd":      fmt.Sprintf("%.2f", rec.RealizedPnLUSD),
			})
		}
	}

	rec.SealedAt = time.Now()
	releaseOnce()

	if c.store != nil {
		if err := c.store.Create(ctx, rec); err != nil {
			c.logger.Error("persisting execution record failed",
				slog.String("execution_id", rec.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	return rec, execErr
}

// dispatchLegs runs every leg, parallel across venues, sequential within one.
func (c *Coordinator) dispatchLegs(ctx context.Context, rec *domain.ExecutionRecord) {
	byVenue := make(map[string][]int)
	for i, lf := range rec.Legs {
		byVenue[lf.Leg.VenueID] = append(byVenue[lf.Leg.VenueID], i)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for venueID, idxs := range byVenue {
		g.Go(func() error {
			for _, i := range idxs {
				fill := c.dispatchOne(gctx, venueID, rec.Legs[i].Leg)
				mu.Lock()
				fill.Leg = rec.Legs[i].Leg
				rec.Legs[i] = fill
				mu.Unlock()
			}
			return nil
		})
	}
	// Goroutines only report through rec.Legs.
	_ = g.Wait()
}

func (c *Coordinator) dispatchOne(ctx context.Context, venueID string, leg domain.Leg) domain.LegFill {
	fill := domain.LegFill{Leg: leg, DispatchedAt: time.Now()}

	venue, ok := c.venues[venueID]
	if !ok {
		fill.Status = domain.LegFailed
		fill.VenueReason = "venue not connected"
		fill.ResolvedAt = time.Now()
		return fill
	}

	legCtx, cancel := context.WithTimeout(ctx, c.cfg.LegTimeout)
	defer cancel()

	result, err := venue.ExecuteLeg(legCtx, leg)
	fill.ResolvedAt = time.Now()

	switch {
	case err != nil && errors.Is(err, context.DeadlineExceeded):
		fill.Status = domain.LegTimedOut
		fill.VenueReason = domain.ErrLegTimeout.Error()
	case err != nil:
		fill.Status = domain.LegFailed
		var lf *domain.LegFailedError
		if errors.As(err, &lf) {
			fill.VenueReason = lf.VenueReason
		} else {
			fill.VenueReason = err.Error()
		}
	case !result.Filled:
		fill.Status = domain.LegFailed
		fill.VenueReason = result.VenueReason
	default:
		fill.Status = domain.LegFilled
		fill.FilledPrice = result.FilledPrice
		fill.FilledQty = result.FilledQty
		if leg.Price > 0 {
			slip := (result.FilledPrice - leg.Price) / leg.Price * 10_000
			if leg.Side == domain.SideSell {
				slip = -slip
			}
			fill.SlippageBps = slip
		}
	}

	if fill.Status != domain.LegFilled {
		c.logger.Warn("leg did not fill",
			slog.String("venue", venueID),
			slog.String("instrument", leg.InstrumentID),
			slog.String("status", string(fill.Status)),
			slog.String("reason", fill.VenueReason),
		)
	}
	return fill
}

// unwind market-closes every filled leg. Unwind runs sequentially; at this
// point latency has already lost and correctness wins.
func (c *Coordinator) unwind(ctx context.Context, rec *domain.ExecutionRecord) error {
	residual := false
	var pnl float64

	for i := range rec.Legs {
		lf := &rec.Legs[i]
		if lf.Status != domain.LegFilled {
			continue
		}

		venue, ok := c.venues[lf.Leg.VenueID]
		if !ok {
			residual = true
			lf.UnwindStatus = domain.LegFailed
			continue
		}

		unwindCtx, cancel := context.WithTimeout(ctx, c.cfg.UnwindTimeout)
		result, err := venue.ClosePosition(unwindCtx, lf.Leg, lf.FilledQty)
		cancel()

		if err != nil || !result.Filled {
			residual = true
			lf.UnwindStatus = domain.LegFailed
			c.logger.Error("unwind leg failed",
				slog.String("execution_id", rec.ID),
				slog.String("venue", lf.Leg.VenueID),
				slog.String("instrument", lf.Leg.InstrumentID),
			)
			continue
		}

		lf.UnwindStatus = domain.LegFilled
		lf.UnwindPrice = result.FilledPrice
		if lf.Leg.Side == domain.SideBuy {
			lf.UnwindPnLUSD = (result.FilledPrice - lf.FilledPrice) * lf.FilledQty
		} else {
			lf.UnwindPnLUSD = (lf.FilledPrice - result.FilledPrice) * lf.FilledQty
		}
		pnl += lf.UnwindPnLUSD
	}

	rec.RealizedPnLUSD = pnl
	if residual {
		rec.Unwind = domain.UnwindResidual
		c.publish(domain.EventUnwindFailed, map[string]string{
			"execution_id": rec.ID,
			"strategy":     string(rec.Strategy),
		})
		return fmt.Errorf("execution %s: %w", rec.ID, domain.ErrUnwindFailed)
	}
	rec.Unwind = domain.UnwindClosed
	return nil
}

func (c *Coordinator) publish(t domain.EventType, fields map[string]string) {
	if c.events == nil {
		return
	}
	c.events.Publish(domain.Event{Type: t, Timestamp: time.Now(), Fields: fields})
}

// scaleLegs shrinks the candidate's legs proportionally when the sized
// position is smaller than the notional the candidate was priced at.
func scaleLegs(cand domain.Candidate, sizeUSD float64) []domain.Leg {
	notional := cand.Notional()
	scale := 1.0
	if notional > 0 && sizeUSD < notional {
		scale = sizeUSD / notional
	}
	legs := make([]domain.Leg, len(cand.Legs))
	for i, l := range cand.Legs {
		l.Qty *= scale
		legs[i] = l
	}
	return legs
}

// sizeRatio is the fraction of the candidate's priced notional actually
// traded.
func sizeRatio(cand domain.Candidate, sizeUSD float64) float64 {
	notional := cand.Notional()
	if notional <= 0 || sizeUSD >= notional {
		return 1
	}
	return sizeUSD / notional
}

// slippageCostUSD totals the adverse fill drift across the filled legs.
func slippageCostUSD(legs []domain.LegFill) float64 {
	var cost float64
	for _, lf := range legs {
		if lf.Status != domain.LegFilled {
			continue
		}
		cost += lf.SlippageBps / 10_000 * lf.FilledPrice * lf.FilledQty
	}
	return cost
}
