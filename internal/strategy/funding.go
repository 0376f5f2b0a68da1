package strategy

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/arbiterhq/arbiter/internal/domain"
	"github.com/arbiterhq/arbiter/internal/snapshot"
)

// fundingIntervalsPerDay assumes the common 8-hour funding schedule.
const fundingIntervalsPerDay = 3

// FundingEvaluator captures perp funding on configured spot/perp venue pairs:
// positive funding pays shorts, so it buys spot and sells the perp; negative
// funding flips both legs. The basis between the two quotes is charged
// against the expected funding income.
type FundingEvaluator struct {
	builder
	minRateBps float64
	// pairs maps spot venue -> perp venue quoting the same instrument.
	pairs  map[string]string
	logger *slog.Logger
}

// NewFunding wires a FundingEvaluator over the configured venue pairs.
func NewFunding(minRateBps, targetUSD float64, ttl time.Duration, pairs map[string]string, fees VenueFees, cal *Calibrator, logger *slog.Logger) *FundingEvaluator {
	return &FundingEvaluator{
		builder:    builder{fees: fees, calibrator: cal, ttl: ttl, targetUSD: targetUSD},
		minRateBps: minRateBps,
		pairs:      pairs,
		logger:     logger.With(slog.String("component", "strategy.funding_rate")),
	}
}

func (e *FundingEvaluator) Name() string              { return string(domain.StrategyFunding) }
func (e *FundingEvaluator) Kind() domain.StrategyKind { return domain.StrategyFunding }

func (e *FundingEvaluator) Evaluate(ctx context.Context, view *snapshot.View) ([]domain.Candidate, error) {
	var out []domain.Candidate
	for _, instrument := range view.Instruments() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for spotVenue, perpVenue := range e.pairs {
			spot, okS := view.Fresh(spotVenue, instrument)
			perp, okP := view.Fresh(perpVenue, instrument)
			if !okS || !okP {
				continue
			}
			if math.Abs(perp.FundingRateBps) < e.minRateBps {
				continue
			}
			if c, ok := e.capture(spot, perp, view.AsOf()); ok {
				out = append(out, c)
			}
		}
	}
	return out, nil
}

func (e *FundingEvaluator) capture(spot, perp domain.Quote, asOf time.Time) (domain.Candidate, bool) {
	var legs []domain.Leg
	var basisUSD float64

	qty := sizeQty(e.targetUSD, spot.Mid(), spot.AskSize, perp.BidSize)
	if qty <= 0 {
		return domain.Candidate{}, false
	}

	if perp.FundingRateBps > 0 {
		// Longs pay shorts: long spot, short perp.
		if spot.Ask <= 0 || perp.Bid <= 0 {
			return domain.Candidate{}, false
		}
		legs = []domain.Leg{
			legFromQuote(spot, domain.SideBuy, spot.Ask, qty),
			legFromQuote(perp, domain.SideSell, perp.Bid, qty),
		}
		basisUSD = (spot.Ask - perp.Bid) * qty
	} else {
		// Shorts pay longs: short spot, long perp.
		if spot.Bid <= 0 || perp.Ask <= 0 {
			return domain.Candidate{}, false
		}
		legs = []domain.Leg{
			legFromQuote(spot, domain.SideSell, spot.Bid, qty),
			legFromQuote(perp, domain.SideBuy, perp.Ask, qty),
		}
		basisUSD = (perp.Ask - spot.Bid) * qty
	}

	notional := legs[1].Notional()
	// Expected funding income over one day of holding.
	gross := notional * math.Abs(perp.FundingRateBps) / 10_000 * fundingIntervalsPerDay
	cost := domain.CostBreakdown{
		FeesUSD:     e.feesUSD(legs),
		SlippageUSD: math.Max(basisUSD, 0),
	}
	if gross-cost.Total() <= 0 {
		return domain.Candidate{}, false
	}

	netRateBps := (gross - cost.Total()) / notional * 10_000
	c := e.newCandidate(domain.StrategyFunding, legs, gross, cost, confidenceFromEdge(netRateBps, e.minRateBps), asOf)
	e.logger.Debug("funding candidate",
		slog.String("instrument", spot.InstrumentID),
		slog.Float64("funding_bps", perp.FundingRateBps),
		slog.Float64("net_rate_bps", netRateBps),
	)
	return c, true
}

var _ Evaluator = (*FundingEvaluator)(nil)
