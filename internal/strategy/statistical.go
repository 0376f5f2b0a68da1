package strategy

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/arbiterhq/arbiter/internal/domain"
	"github.com/arbiterhq/arbiter/internal/snapshot"
)

// StatisticalEvaluator trades mean reversion on pre-scored instrument pairs.
// Each configured "instA|instB" key carries the historical price ratio and
// its standard deviation; when the live ratio's z-score breaches the entry
// threshold it sells the rich instrument and buys the cheap one.
type StatisticalEvaluator struct {
	builder
	minEdgeBps  float64
	entryZ      float64
	ratio       map[string]float64
	ratioStddev map[string]float64
	logger      *slog.Logger
}

// NewStatistical wires a StatisticalEvaluator over the configured pair table.
func NewStatistical(minEdgeBps, entryZ, targetUSD float64, ttl time.Duration, ratio, stddev map[string]float64, fees VenueFees, cal *Calibrator, logger *slog.Logger) *StatisticalEvaluator {
	return &StatisticalEvaluator{
		builder:     builder{fees: fees, calibrator: cal, ttl: ttl, targetUSD: targetUSD},
		minEdgeBps:  minEdgeBps,
		entryZ:      entryZ,
		ratio:       ratio,
		ratioStddev: stddev,
		logger:      logger.With(slog.String("component", "strategy.statistical")),
	}
}

func (e *StatisticalEvaluator) Name() string              { return string(domain.StrategyStatistical) }
func (e *StatisticalEvaluator) Kind() domain.StrategyKind { return domain.StrategyStatistical }

func (e *StatisticalEvaluator) Evaluate(ctx context.Context, view *snapshot.View) ([]domain.Candidate, error) {
	var out []domain.Candidate
	for key, mean := range e.ratio {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		stddev := e.ratioStddev[key]
		if mean <= 0 || stddev <= 0 {
			continue
		}
		instA, instB, ok := strings.Cut(key, "|")
		if !ok {
			continue
		}

		qa := bestFresh(view, instA)
		qb := bestFresh(view, instB)
		if qa.VenueID == "" || qb.VenueID == "" || qa.Mid() <= 0 || qb.Mid() <= 0 {
			continue
		}

		current := qa.Mid() / qb.Mid()
		z := (current - mean) / stddev
		if math.Abs(z) < e.entryZ {
			continue
		}

		// Ratio above mean: A is rich relative to B. Sell A, buy B, sized to
		// equal notionals so the position is ratio-neutral.
		var legA, legB domain.Leg
		if z > 0 {
			qtyA := sizeQty(e.targetUSD, qa.Bid, qa.BidSize)
			qtyB := sizeQty(e.targetUSD, qb.Ask, qb.AskSize)
			if qtyA <= 0 || qtyB <= 0 {
				continue
			}
			legA = legFromQuote(qa, domain.SideSell, qa.Bid, qtyA)
			legB = legFromQuote(qb, domain.SideBuy, qb.Ask, qtyB)
		} else {
			qtyA := sizeQty(e.targetUSD, qa.Ask, qa.AskSize)
			qtyB := sizeQty(e.targetUSD, qb.Bid, qb.BidSize)
			if qtyA <= 0 || qtyB <= 0 {
				continue
			}
			legA = legFromQuote(qa, domain.SideBuy, qa.Ask, qtyA)
			legB = legFromQuote(qb, domain.SideSell, qb.Bid, qtyB)
		}
		legs := []domain.Leg{legA, legB}

		// Expected profit if the ratio reverts to its mean.
		gross := e.targetUSD * math.Abs(current-mean) / mean
		cost := domain.CostBreakdown{
			FeesUSD:     e.feesUSD(legs),
			SlippageUSD: gross * 0.10,
		}

		netBps := (gross - cost.Total()) / e.targetUSD * 10_000
		if netBps < e.minEdgeBps {
			continue
		}

		// Confidence grows with how far past the entry threshold the z-score
		// sits.
		conf := confidenceFromEdge(math.Abs(z)*10, e.entryZ*10)
		c := e.newCandidate(domain.StrategyStatistical, legs, gross, cost, conf, view.AsOf())
		e.logger.Debug("pair divergence candidate",
			slog.String("pair", key),
			slog.Float64("z_score", z),
			slog.Float64("net_edge_bps", netBps),
		)
		out = append(out, c)
	}
	return out, nil
}

// bestFresh returns the fresh quote with the tightest spread for an
// instrument, or a zero Quote when none exists.
func bestFresh(view *snapshot.View, instrument string) domain.Quote {
	var best domain.Quote
	for _, q := range view.FreshByInstrument(instrument) {
		if q.Mid() <= 0 {
			continue
		}
		if best.VenueID == "" || q.SpreadBps() < best.SpreadBps() {
			best = q
		}
	}
	return best
}

var _ Evaluator = (*StatisticalEvaluator)(nil)
