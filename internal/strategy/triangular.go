package strategy

import (
	"context"
	"log/slog"
	"time"

	"github.com/arbiterhq/arbiter/internal/domain"
	"github.com/arbiterhq/arbiter/internal/snapshot"
)

// TriangularEvaluator walks configured three-instrument cycles on a single
// venue. A cycle is declared as [X/Q, Y/X, Y/Q]: start in Q, buy X, convert
// X to Y, sell Y back to Q. Both traversal directions are checked and the
// cycle only fires when the round-trip multiplier exceeds one after fees.
type TriangularEvaluator struct {
	builder
	minEdgeBps float64
	cycles     [][]string
	logger     *slog.Logger
}

// NewTriangular wires a TriangularEvaluator over the configured cycle sets.
func NewTriangular(minEdgeBps, targetUSD float64, ttl time.Duration, cycles [][]string, fees VenueFees, cal *Calibrator, logger *slog.Logger) *TriangularEvaluator {
	return &TriangularEvaluator{
		builder:    builder{fees: fees, calibrator: cal, ttl: ttl, targetUSD: targetUSD},
		minEdgeBps: minEdgeBps,
		cycles:     cycles,
		logger:     logger.With(slog.String("component", "strategy.triangular")),
	}
}

func (e *TriangularEvaluator) Name() string              { return string(domain.StrategyTriangular) }
func (e *TriangularEvaluator) Kind() domain.StrategyKind { return domain.StrategyTriangular }

func (e *TriangularEvaluator) Evaluate(ctx context.Context, view *snapshot.View) ([]domain.Candidate, error) {
	var out []domain.Candidate
	for _, cycle := range e.cycles {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if len(cycle) != 3 {
			continue
		}
		// Every leg must be fresh on the same venue. Collect the venues that
		// quote the first instrument and try each.
		for _, q0 := range view.FreshByInstrument(cycle[0]) {
			if q0.VenueKind != domain.VenueKindCEX {
				continue
			}
			q1, ok1 := view.Fresh(q0.VenueID, cycle[1])
			q2, ok2 := view.Fresh(q0.VenueID, cycle[2])
			if !ok1 || !ok2 {
				continue
			}
			if c, ok := e.walk(q0, q1, q2, view.AsOf()); ok {
				out = append(out, c)
			}
		}
	}
	return out, nil
}

// walk evaluates both directions of one cycle on one venue.
func (e *TriangularEvaluator) walk(xq, yx, yq domain.Quote, asOf time.Time) (domain.Candidate, bool) {
	if xq.Ask <= 0 || yx.Ask <= 0 || yq.Ask <= 0 || xq.Bid <= 0 || yx.Bid <= 0 || yq.Bid <= 0 {
		return domain.Candidate{}, false
	}

	// Forward: Q -> X (buy at ask X/Q), X -> Y (buy at ask Y/X), Y -> Q
	// (sell at bid Y/Q).
	fwd := yq.Bid / (xq.Ask * yx.Ask)
	// Reverse: Q -> Y (buy at ask Y/Q), Y -> X (sell at bid Y/X), X -> Q
	// (sell at bid X/Q).
	rev := yx.Bid * xq.Bid / yq.Ask

	mult := fwd
	forward := true
	if rev > fwd {
		mult = rev
		forward = false
	}

	grossBps := (mult - 1) * 10_000
	feeBps := 3 * e.fees.TakerFeeBps(xq.VenueID)
	netBps := grossBps - feeBps
	if netBps < e.minEdgeBps {
		return domain.Candidate{}, false
	}

	var legs []domain.Leg
	if forward {
		xQty := e.targetUSD / xq.Ask
		yQty := xQty / yx.Ask
		legs = []domain.Leg{
			legFromQuote(xq, domain.SideBuy, xq.Ask, xQty),
			legFromQuote(yx, domain.SideBuy, yx.Ask, yQty),
			legFromQuote(yq, domain.SideSell, yq.Bid, yQty),
		}
	} else {
		yQty := e.targetUSD / yq.Ask
		xQty := yQty * yx.Bid
		legs = []domain.Leg{
			legFromQuote(yq, domain.SideBuy, yq.Ask, yQty),
			legFromQuote(yx, domain.SideSell, yx.Bid, yQty),
			legFromQuote(xq, domain.SideSell, xq.Bid, xQty),
		}
	}

	gross := e.targetUSD * (mult - 1)
	cost := domain.CostBreakdown{
		FeesUSD:     e.targetUSD * feeBps / 10_000,
		SlippageUSD: gross * 0.10,
	}

	c := e.newCandidate(domain.StrategyTriangular, legs, gross, cost, confidenceFromEdge(netBps, e.minEdgeBps), asOf)
	e.logger.Debug("cycle candidate",
		slog.String("venue", xq.VenueID),
		slog.Bool("forward", forward),
		slog.Float64("multiplier", mult),
		slog.Float64("net_edge_bps", netBps),
	)
	return c, true
}

var _ Evaluator = (*TriangularEvaluator)(nil)
