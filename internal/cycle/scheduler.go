// Package cycle runs the rolling compounding window: profit accrues during a
// cycle, and at rollover the capital base is recomputed, the circuit breaker
// resets, and aged records are archived.
package cycle

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/arbiterhq/arbiter/internal/domain"
)

// BreakerResetter is the one automatic reset pathway into the risk manager.
type BreakerResetter interface {
	CycleReset(newCapitalUSD float64)
}

// Config holds the cycle parameters.
type Config struct {
	LengthDays      int
	DailyTargetRate float64
}

// Scheduler owns the cycle state. RecordSettled is called per sealed trade;
// Tick is called from the engine loop and performs a rollover when the cycle
// boundary has passed.
type Scheduler struct {
	mu    sync.Mutex
	cfg   Config
	state domain.CycleState

	risk     BreakerResetter
	store    domain.CycleStore
	archiver domain.Archiver
	events   domain.EventPublisher
	logger   *slog.Logger

	now func() time.Time
}

// NewScheduler starts cycle 1 with the given capital base.
func NewScheduler(cfg Config, capitalUSD float64, risk BreakerResetter, store domain.CycleStore, archiver domain.Archiver, events domain.EventPublisher, logger *slog.Logger) *Scheduler {
	s := &Scheduler{
		cfg:      cfg,
		risk:     risk,
		store:    store,
		archiver: archiver,
		events:   events,
		logger:   logger.With(slog.String("component", "cycle")),
		now:      time.Now,
	}
	s.state = s.newCycle(1, capitalUSD, time.Now())
	return s
}

func (s *Scheduler) newCycle(number int, capitalUSD float64, startedAt time.Time) domain.CycleState {
	return domain.CycleState{
		Number:         number,
		StartedAt:      startedAt,
		Length:         time.Duration(s.cfg.LengthDays) * 24 * time.Hour,
		CapitalBaseUSD: capitalUSD,
		DailyTargetUSD: capitalUSD * s.cfg.DailyTargetRate,
	}
}

// RecordSettled accrues one sealed trade into the running cycle.
func (s *Scheduler) RecordSettled(rec domain.ExecutionRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.CumulativeProfitUSD += rec.RealizedPnLUSD
	s.state.SettledTrades++
}

// Tick rolls the cycle over if its boundary has passed. It returns true when
// a rollover happened.
func (s *Scheduler) Tick(ctx context.Context) bool {
	s.mu.Lock()
	if s.now().Before(s.state.EndsAt()) {
		s.mu.Unlock()
		return false
	}
	completed := s.state

	// Compounding: profit joins the base for the next cycle.
	newBase := completed.CapitalBaseUSD + completed.CumulativeProfitUSD
	if newBase <= 0 {
		// A cycle that wiped the base still restarts with what is left of it;
		// the breaker state carried the halt before this point.
		newBase = completed.CapitalBaseUSD
	}
	s.state = s.newCycle(completed.Number+1, newBase, s.now())
	s.mu.Unlock()

	s.logger.Info("cycle rollover",
		slog.Int("completed_cycle", completed.Number),
		slog.Float64("profit_usd", completed.CumulativeProfitUSD),
		slog.Float64("new_base_usd", newBase),
		slog.Int("settled_trades", completed.SettledTrades),
	)

	// The rollover is the only automatic breaker reset.
	if s.risk != nil {
		s.risk.CycleReset(newBase)
	}

	if s.store != nil {
		if err := s.store.Create(ctx, completed); err != nil {
			s.logger.Error("persisting completed cycle failed",
				slog.Int("cycle", completed.Number),
				slog.String("error", err.Error()),
			)
		}
	}

	if s.archiver != nil {
		cutoff := completed.StartedAt
		if n, err := s.archiver.ArchiveBefore(ctx, cutoff); err != nil {
			s.logger.Error("archival failed", slog.String("error", err.Error()))
		} else if n > 0 {
			s.logger.Info("archived execution records", slog.Int("count", n))
		}
	}

	if s.events != nil {
		s.events.Publish(domain.Event{
			Type:      domain.EventCycleRollover,
			Timestamp: s.now(),
			Fields: map[string]string{
				"completed_cycle": strconv.Itoa(completed.Number),
				"new_cycle":       strconv.Itoa(completed.Number + 1),
			},
		})
	}
	return true
}

// State returns a copy of the running cycle.
func (s *Scheduler) State() domain.CycleState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}
