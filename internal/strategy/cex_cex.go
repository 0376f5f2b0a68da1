package strategy

import (
	"context"
	"log/slog"
	"time"

	"github.com/arbiterhq/arbiter/internal/domain"
	"github.com/arbiterhq/arbiter/internal/snapshot"
)

// CexCexEvaluator finds the same instrument quoted cheaper on one exchange
// than another: buy at the cheap venue's ask, sell at the rich venue's bid.
type CexCexEvaluator struct {
	builder
	minEdgeBps float64
	logger     *slog.Logger
}

// NewCexCex wires a CexCexEvaluator.
func NewCexCex(minEdgeBps, targetUSD float64, ttl time.Duration, fees VenueFees, cal *Calibrator, logger *slog.Logger) *CexCexEvaluator {
	return &CexCexEvaluator{
		builder:    builder{fees: fees, calibrator: cal, ttl: ttl, targetUSD: targetUSD},
		minEdgeBps: minEdgeBps,
		logger:     logger.With(slog.String("component", "strategy.cex_cex")),
	}
}

func (e *CexCexEvaluator) Name() string              { return string(domain.StrategyCexCex) }
func (e *CexCexEvaluator) Kind() domain.StrategyKind { return domain.StrategyCexCex }

func (e *CexCexEvaluator) Evaluate(ctx context.Context, view *snapshot.View) ([]domain.Candidate, error) {
	var out []domain.Candidate
	for _, instrument := range view.Instruments() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		quotes := cexOnly(view.FreshByInstrument(instrument))
		if len(quotes) < 2 {
			continue
		}

		buy, sell, ok := bestCrossedPair(quotes)
		if !ok {
			continue
		}

		edgeBps := (sell.Bid - buy.Ask) / buy.Ask * 10_000
		qty := sizeQty(e.targetUSD, buy.Ask, buy.AskSize, sell.BidSize)
		if qty <= 0 {
			continue
		}

		legs := []domain.Leg{
			{VenueID: buy.VenueID, VenueKind: domain.VenueKindCEX, InstrumentID: instrument, Side: domain.SideBuy, Price: buy.Ask, Qty: qty},
			{VenueID: sell.VenueID, VenueKind: domain.VenueKindCEX, InstrumentID: instrument, Side: domain.SideSell, Price: sell.Bid, Qty: qty},
		}
		gross := (sell.Bid - buy.Ask) * qty
		cost := domain.CostBreakdown{
			FeesUSD:     e.feesUSD(legs),
			SlippageUSD: gross * 0.05,
		}

		netBps := edgeBps - (cost.Total()/(buy.Ask*qty))*10_000
		if netBps < e.minEdgeBps {
			continue
		}

		c := e.newCandidate(domain.StrategyCexCex, legs, gross, cost, confidenceFromEdge(netBps, e.minEdgeBps), view.AsOf())
		e.logger.Debug("spread candidate",
			slog.String("instrument", instrument),
			slog.String("buy_venue", buy.VenueID),
			slog.String("sell_venue", sell.VenueID),
			slog.Float64("net_edge_bps", netBps),
		)
		out = append(out, c)
	}
	return out, nil
}

// bestCrossedPair returns the lowest-ask and highest-bid quotes when they
// belong to different venues and actually cross.
func bestCrossedPair(quotes []domain.Quote) (buy, sell domain.Quote, ok bool) {
	for _, q := range quotes {
		if q.Ask <= 0 || q.Bid <= 0 {
			continue
		}
		if buy.Ask == 0 || q.Ask < buy.Ask {
			buy = q
		}
		if q.Bid > sell.Bid {
			sell = q
		}
	}
	if buy.VenueID == "" || sell.VenueID == "" || buy.VenueID == sell.VenueID {
		return domain.Quote{}, domain.Quote{}, false
	}
	if sell.Bid <= buy.Ask {
		return domain.Quote{}, domain.Quote{}, false
	}
	return buy, sell, true
}

func cexOnly(quotes []domain.Quote) []domain.Quote {
	out := quotes[:0:0]
	for _, q := range quotes {
		if q.VenueKind == domain.VenueKindCEX {
			out = append(out, q)
		}
	}
	return out
}

func dexOnly(quotes []domain.Quote) []domain.Quote {
	out := quotes[:0:0]
	for _, q := range quotes {
		if q.VenueKind == domain.VenueKindDEX {
			out = append(out, q)
		}
	}
	return out
}

var _ Evaluator = (*CexCexEvaluator)(nil)
