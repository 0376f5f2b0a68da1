// Package engine runs the evaluation loop: snapshot view, evaluator fan-out,
// ranking, risk admission, sizing, safety screen, execution, feedback.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/arbiterhq/arbiter/internal/cycle"
	"github.com/arbiterhq/arbiter/internal/domain"
	"github.com/arbiterhq/arbiter/internal/executor"
	"github.com/arbiterhq/arbiter/internal/ranker"
	"github.com/arbiterhq/arbiter/internal/risk"
	"github.com/arbiterhq/arbiter/internal/rugpull"
	"github.com/arbiterhq/arbiter/internal/sizer"
	"github.com/arbiterhq/arbiter/internal/snapshot"
	"github.com/arbiterhq/arbiter/internal/strategy"
)

// Config holds loop timing.
type Config struct {
	PassInterval time.Duration
}

// Engine wires the pipeline stages together and drives them on a fixed
// interval. Stages own their internal locking; the engine itself only holds
// the recent-candidates window for the operator surface.
type Engine struct {
	cfg Config

	snapshots  *snapshot.Store
	registry   *strategy.Registry
	calibrator *strategy.Calibrator
	ranker     *ranker.Ranker
	risk       *risk.Manager
	sizer      *sizer.Sizer
	screen     *rugpull.Detector
	exec       *executor.Coordinator
	cycle      *cycle.Scheduler
	events     domain.EventPublisher
	logger     *slog.Logger

	mu     sync.Mutex
	recent []domain.Candidate
}

// Deps collects the pipeline stages the engine coordinates.
type Deps struct {
	Snapshots  *snapshot.Store
	Registry   *strategy.Registry
	Calibrator *strategy.Calibrator
	Ranker     *ranker.Ranker
	Risk       *risk.Manager
	Sizer      *sizer.Sizer
	Screen     *rugpull.Detector
	Executor   *executor.Coordinator
	Cycle      *cycle.Scheduler
	Events     domain.EventPublisher
	Logger     *slog.Logger
}

// New creates an Engine.
func New(cfg Config, d Deps) *Engine {
	return &Engine{
		cfg:        cfg,
		snapshots:  d.Snapshots,
		registry:   d.Registry,
		calibrator: d.Calibrator,
		ranker:     d.Ranker,
		risk:       d.Risk,
		sizer:      d.Sizer,
		screen:     d.Screen,
		exec:       d.Executor,
		cycle:      d.Cycle,
		events:     d.Events,
		logger:     d.Logger.With(slog.String("component", "engine")),
	}
}

// Run drives evaluation passes until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine started", slog.Duration("pass_interval", e.cfg.PassInterval))
	ticker := time.NewTicker(e.cfg.PassInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("engine stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := e.Pass(ctx); err != nil && !errors.Is(err, context.Canceled) {
				e.logger.Error("pass failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Pass runs one full evaluation pass. Exported so paper mode and tests can
// drive the loop manually.
func (e *Engine) Pass(ctx context.Context) error {
	e.cycle.Tick(ctx)

	view := e.snapshots.View()
	candidates, err := e.evaluate(ctx, view)
	if err != nil {
		return err
	}

	ranked := e.ranker.Rank(candidates, view.AsOf())
	e.setRecent(ranked)

	for _, cand := range ranked {
		if err := ctx.Err(); err != nil {
			return err
		}
		e.runCandidate(ctx, cand)
	}
	return nil
}

// DetectOnly runs evaluation and ranking without touching risk, sizing, or
// execution. Monitor mode drives this instead of Pass; the ranked output
// still lands in the recent-candidates window.
func (e *Engine) DetectOnly(ctx context.Context) []domain.Candidate {
	view := e.snapshots.View()
	candidates, err := e.evaluate(ctx, view)
	if err != nil {
		return nil
	}
	ranked := e.ranker.Rank(candidates, view.AsOf())
	e.setRecent(ranked)
	return ranked
}

// evaluate fans the evaluators out over one shared view.
func (e *Engine) evaluate(ctx context.Context, view *snapshot.View) ([]domain.Candidate, error) {
	evaluators := e.registry.All()

	var mu sync.Mutex
	var out []domain.Candidate

	g, gctx := errgroup.WithContext(ctx)
	for _, ev := range evaluators {
		g.Go(func() error {
			cands, err := ev.Evaluate(gctx, view)
			e.registry.RecordResult(ev.Name(), len(cands), err)
			if err != nil {
				// One broken evaluator must not starve the others.
				e.logger.Warn("evaluator failed",
					slog.String("evaluator", ev.Name()),
					slog.String("error", err.Error()),
				)
				return nil
			}
			mu.Lock()
			out = append(out, cands...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, c := range out {
		e.publish(domain.EventOpportunityFound, map[string]string{
			"candidate_id": c.ID,
			"strategy":     string(c.Strategy),
			"net_usd":      fmt.Sprintf("%.2f", c.NetProfitUSD()),
		})
	}
	return out, ctx.Err()
}

// runCandidate takes one ranked candidate through sizing, admission, the
// safety screen, and execution, then feeds the outcome back.
func (e *Engine) runCandidate(ctx context.Context, cand domain.Candidate) {
	sizeUSD, err := e.sizer.Size(cand, e.risk.CapitalUSD(), e.risk.AvailableBudgetUSD())
	if err != nil {
		e.reject(cand, "negative_edge")
		return
	}
	if sizeUSD <= 0 {
		e.reject(cand, string(domain.RejectBudgetExhausted))
		return
	}

	res, err := e.risk.CheckAndReserve(cand, sizeUSD)
	if err != nil {
		reason, _ := domain.RiskRejection(err)
		e.reject(cand, string(reason))
		return
	}

	if err := e.screen.Check(ctx, cand); err != nil {
		// The reservation was taken before the veto; hand it back.
		if relErr := e.risk.Release(res.ID); relErr != nil && !errors.Is(relErr, domain.ErrAlreadyReleased) {
			e.logger.Error("releasing vetoed reservation failed",
				slog.String("reservation_id", res.ID),
				slog.String("error", relErr.Error()),
			)
		}
		e.reject(cand, "safety_veto")
		return
	}

	rec, execErr := e.exec.Execute(ctx, cand, res, sizeUSD)
	if execErr != nil && errors.Is(execErr, domain.ErrUnwindFailed) {
		e.logger.Error("residual exposure, operator attention required",
			slog.String("execution_id", rec.ID),
			slog.String("candidate_id", cand.ID),
		)
	}

	// Feedback: accounting, calibration, cycle accrual. A trade with no
	// fills moved no money and teaches nothing. An unwound trade is a loss
	// whatever its unwind PnL came to; closing flat does not make the
	// original plan a winner.
	if rec.Sealed() && len(rec.FilledLegs()) > 0 {
		unwound := rec.State == domain.TradeUnwound
		e.risk.RecordOutcome(rec.RealizedPnLUSD, rec.SizeUSD, unwound)
		e.cycle.RecordSettled(rec)
		e.calibrator.RecordOutcome(cand.Strategy, cand.VenuePair(), !unwound && rec.RealizedPnLUSD > 0)
	}

	e.logger.Info("trade complete",
		slog.String("execution_id", rec.ID),
		slog.String("strategy", string(cand.Strategy)),
		slog.String("state", string(rec.State)),
		slog.Float64("size_usd", rec.SizeUSD),
		slog.Float64("pnl_usd", rec.RealizedPnLUSD),
	)
}

func (e *Engine) reject(cand domain.Candidate, reason string) {
	e.publish(domain.EventOpportunityRejected, map[string]string{
		"candidate_id": cand.ID,
		"strategy":     string(cand.Strategy),
		"reason":       reason,
	})
}

func (e *Engine) publish(t domain.EventType, fields map[string]string) {
	if e.events == nil {
		return
	}
	e.events.Publish(domain.Event{Type: t, Timestamp: time.Now(), Fields: fields})
}

func (e *Engine) setRecent(ranked []domain.Candidate) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recent = ranked
}

// RecentCandidates returns the ranked output of the latest pass, for the
// operator surface.
func (e *Engine) RecentCandidates() []domain.Candidate {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.Candidate, len(e.recent))
	copy(out, e.recent)
	return out
}
