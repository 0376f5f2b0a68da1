package strategy

import (
	"context"
	"log/slog"
	"time"

	"github.com/arbiterhq/arbiter/internal/domain"
	"github.com/arbiterhq/arbiter/internal/snapshot"
)

// DexDexEvaluator finds the same token pair priced differently across
// on-chain pools on the same chain: buy from the cheap pool, sell into the
// rich one. Pool quotes are keyed by pool address, so quotes are regrouped by
// their BASE/QUOTE pair before comparison.
type DexDexEvaluator struct {
	builder
	minEdgeBps float64
	logger     *slog.Logger
}

// NewDexDex wires a DexDexEvaluator.
func NewDexDex(minEdgeBps, targetUSD float64, ttl time.Duration, fees VenueFees, cal *Calibrator, logger *slog.Logger) *DexDexEvaluator {
	return &DexDexEvaluator{
		builder:    builder{fees: fees, calibrator: cal, ttl: ttl, targetUSD: targetUSD},
		minEdgeBps: minEdgeBps,
		logger:     logger.With(slog.String("component", "strategy.dex_dex")),
	}
}

func (e *DexDexEvaluator) Name() string              { return string(domain.StrategyDexDex) }
func (e *DexDexEvaluator) Kind() domain.StrategyKind { return domain.StrategyDexDex }

func (e *DexDexEvaluator) Evaluate(ctx context.Context, view *snapshot.View) ([]domain.Candidate, error) {
	byPair := groupDexByPair(view)

	var out []domain.Candidate
	for pair, quotes := range byPair {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if len(quotes) < 2 {
			continue
		}

		buy, sell, ok := bestCrossedPair(quotes)
		if !ok || buy.Chain != sell.Chain {
			continue
		}

		qty := sizeQty(e.targetUSD, buy.Ask, buy.AskSize, sell.BidSize)
		if qty <= 0 {
			continue
		}

		legs := []domain.Leg{
			{VenueID: buy.VenueID, VenueKind: domain.VenueKindDEX, InstrumentID: buy.InstrumentID, Side: domain.SideBuy, Price: buy.Ask, Qty: qty, TokenAddress: buy.TokenAddress, Chain: buy.Chain},
			{VenueID: sell.VenueID, VenueKind: domain.VenueKindDEX, InstrumentID: sell.InstrumentID, Side: domain.SideSell, Price: sell.Bid, Qty: qty, TokenAddress: sell.TokenAddress, Chain: sell.Chain},
		}
		gross := (sell.Bid - buy.Ask) * qty
		cost := domain.CostBreakdown{
			FeesUSD: e.feesUSD(legs),
			SlippageUSD: poolSlippageUSD(qty, buy.Ask, buy.ReserveBase) +
				poolSlippageUSD(qty, sell.Bid, sell.ReserveBase),
			GasUSD: gasUSD(buy.Chain) + gasUSD(sell.Chain),
		}

		edgeBps := (sell.Bid - buy.Ask) / buy.Ask * 10_000
		netBps := edgeBps - (cost.Total()/(buy.Ask*qty))*10_000
		if netBps < e.minEdgeBps {
			continue
		}

		// A pool pair whose round trip already nets out is phantom edge from
		// inconsistent reserves; require the forward and reverse prices to
		// actually disagree.
		if sell.Ask > 0 && buy.Bid > 0 && sell.Ask <= buy.Bid {
			continue
		}

		c := e.newCandidate(domain.StrategyDexDex, legs, gross, cost, confidenceFromEdge(netBps, e.minEdgeBps), view.AsOf())
		e.logger.Debug("pool spread candidate",
			slog.String("pair", pair),
			slog.String("buy_pool", buy.VenueID),
			slog.String("sell_pool", sell.VenueID),
			slog.Float64("net_edge_bps", netBps),
		)
		out = append(out, c)
	}
	return out, nil
}

// groupDexByPair buckets fresh DEX quotes by "BASE/QUOTE" symbol.
func groupDexByPair(view *snapshot.View) map[string][]domain.Quote {
	byPair := make(map[string][]domain.Quote)
	for _, instrument := range view.Instruments() {
		for _, q := range dexOnly(view.FreshByInstrument(instrument)) {
			if q.Base == "" || q.Quote == "" {
				continue
			}
			pair := q.Base + "/" + q.Quote
			byPair[pair] = append(byPair[pair], q)
		}
	}
	return byPair
}

var _ Evaluator = (*DexDexEvaluator)(nil)
