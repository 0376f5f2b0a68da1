package strategy

import (
	"context"
	"log/slog"
	"time"

	"github.com/arbiterhq/arbiter/internal/domain"
	"github.com/arbiterhq/arbiter/internal/snapshot"
)

// CexDexEvaluator crosses exchange books against on-chain pools for the same
// pair, in either direction: buy the pool and sell the book, or buy the book
// and sell the pool.
type CexDexEvaluator struct {
	builder
	minEdgeBps float64
	logger     *slog.Logger
}

// NewCexDex wires a CexDexEvaluator.
func NewCexDex(minEdgeBps, targetUSD float64, ttl time.Duration, fees VenueFees, cal *Calibrator, logger *slog.Logger) *CexDexEvaluator {
	return &CexDexEvaluator{
		builder:    builder{fees: fees, calibrator: cal, ttl: ttl, targetUSD: targetUSD},
		minEdgeBps: minEdgeBps,
		logger:     logger.With(slog.String("component", "strategy.cex_dex")),
	}
}

func (e *CexDexEvaluator) Name() string              { return string(domain.StrategyCexDex) }
func (e *CexDexEvaluator) Kind() domain.StrategyKind { return domain.StrategyCexDex }

func (e *CexDexEvaluator) Evaluate(ctx context.Context, view *snapshot.View) ([]domain.Candidate, error) {
	cexByPair := make(map[string][]domain.Quote)
	for _, instrument := range view.Instruments() {
		for _, q := range cexOnly(view.FreshByInstrument(instrument)) {
			cexByPair[instrument] = append(cexByPair[instrument], q)
		}
	}
	dexByPair := groupDexByPair(view)

	var out []domain.Candidate
	for pair, dexQuotes := range dexByPair {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cexQuotes := cexByPair[pair]
		if len(cexQuotes) == 0 {
			continue
		}

		for _, dq := range dexQuotes {
			for _, cq := range cexQuotes {
				if c, ok := e.cross(pair, dq, cq, view.AsOf()); ok {
					out = append(out, c)
				}
			}
		}
	}
	return out, nil
}

// cross evaluates both directions between one pool and one book and returns
// the better one if it clears the threshold.
func (e *CexDexEvaluator) cross(pair string, dex, cex domain.Quote, asOf time.Time) (domain.Candidate, bool) {
	type direction struct {
		buy, sell domain.Quote
	}
	best := domain.Candidate{}
	found := false

	for _, d := range []direction{{buy: dex, sell: cex}, {buy: cex, sell: dex}} {
		if d.buy.Ask <= 0 || d.sell.Bid <= d.buy.Ask {
			continue
		}
		qty := sizeQty(e.targetUSD, d.buy.Ask, d.buy.AskSize, d.sell.BidSize)
		if qty <= 0 {
			continue
		}

		legs := []domain.Leg{
			legFromQuote(d.buy, domain.SideBuy, d.buy.Ask, qty),
			legFromQuote(d.sell, domain.SideSell, d.sell.Bid, qty),
		}
		gross := (d.sell.Bid - d.buy.Ask) * qty
		cost := domain.CostBreakdown{
			FeesUSD:     e.feesUSD(legs),
			SlippageUSD: gross * 0.05,
		}
		if d.buy.VenueKind == domain.VenueKindDEX {
			cost.GasUSD += gasUSD(d.buy.Chain)
			cost.SlippageUSD += poolSlippageUSD(qty, d.buy.Ask, d.buy.ReserveBase)
		}
		if d.sell.VenueKind == domain.VenueKindDEX {
			cost.GasUSD += gasUSD(d.sell.Chain)
			cost.SlippageUSD += poolSlippageUSD(qty, d.sell.Bid, d.sell.ReserveBase)
		}

		edgeBps := (d.sell.Bid - d.buy.Ask) / d.buy.Ask * 10_000
		netBps := edgeBps - (cost.Total()/(d.buy.Ask*qty))*10_000
		if netBps < e.minEdgeBps {
			continue
		}

		c := e.newCandidate(domain.StrategyCexDex, legs, gross, cost, confidenceFromEdge(netBps, e.minEdgeBps), asOf)
		if !found || c.NetProfitUSD() > best.NetProfitUSD() {
			best = c
			found = true
		}
	}

	if found {
		e.logger.Debug("cex/dex candidate",
			slog.String("pair", pair),
			slog.Float64("net_profit_usd", best.NetProfitUSD()),
		)
	}
	return best, found
}

func legFromQuote(q domain.Quote, side domain.OrderSide, price, qty float64) domain.Leg {
	return domain.Leg{
		VenueID:      q.VenueID,
		VenueKind:    q.VenueKind,
		InstrumentID: q.InstrumentID,
		Side:         side,
		Price:        price,
		Qty:          qty,
		TokenAddress: q.TokenAddress,
		Chain:        q.Chain,
	}
}

var _ Evaluator = (*CexDexEvaluator)(nil)
