package strategy

import (
	"context"
	"log/slog"
	"time"

	"github.com/arbiterhq/arbiter/internal/domain"
	"github.com/arbiterhq/arbiter/internal/snapshot"
)

// CrossChainEvaluator compares the same token pair priced in pools on
// different chains. The bridge fee for the chain pair is charged up front, so
// only dislocations wide enough to survive the bridge are emitted.
type CrossChainEvaluator struct {
	builder
	minEdgeBps float64
	// bridgeFeeUSD is keyed "chainA->chainB".
	bridgeFeeUSD map[string]float64
	logger       *slog.Logger
}

// NewCrossChain wires a CrossChainEvaluator over the configured bridge table.
func NewCrossChain(minEdgeBps, targetUSD float64, ttl time.Duration, bridgeFeeUSD map[string]float64, fees VenueFees, cal *Calibrator, logger *slog.Logger) *CrossChainEvaluator {
	return &CrossChainEvaluator{
		builder:      builder{fees: fees, calibrator: cal, ttl: ttl, targetUSD: targetUSD},
		minEdgeBps:   minEdgeBps,
		bridgeFeeUSD: bridgeFeeUSD,
		logger:       logger.With(slog.String("component", "strategy.cross_chain")),
	}
}

func (e *CrossChainEvaluator) Name() string              { return string(domain.StrategyCrossChain) }
func (e *CrossChainEvaluator) Kind() domain.StrategyKind { return domain.StrategyCrossChain }

func (e *CrossChainEvaluator) Evaluate(ctx context.Context, view *snapshot.View) ([]domain.Candidate, error) {
	byPair := groupDexByPair(view)

	var out []domain.Candidate
	for pair, quotes := range byPair {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for i, buy := range quotes {
			for j, sell := range quotes {
				if i == j || buy.Chain == sell.Chain {
					continue
				}
				bridgeFee, ok := e.bridgeFeeUSD[buy.Chain+"->"+sell.Chain]
				if !ok {
					// No bridge route configured for this direction.
					continue
				}
				if c, found := e.cross(pair, buy, sell, bridgeFee, view.AsOf()); found {
					out = append(out, c)
				}
			}
		}
	}
	return out, nil
}

func (e *CrossChainEvaluator) cross(pair string, buy, sell domain.Quote, bridgeFee float64, asOf time.Time) (domain.Candidate, bool) {
	if buy.Ask <= 0 || sell.Bid <= buy.Ask {
		return domain.Candidate{}, false
	}
	qty := sizeQty(e.targetUSD, buy.Ask, buy.AskSize, sell.BidSize)
	if qty <= 0 {
		return domain.Candidate{}, false
	}

	legs := []domain.Leg{
		legFromQuote(buy, domain.SideBuy, buy.Ask, qty),
		legFromQuote(sell, domain.SideSell, sell.Bid, qty),
	}
	gross := (sell.Bid - buy.Ask) * qty
	cost := domain.CostBreakdown{
		FeesUSD: e.feesUSD(legs),
		SlippageUSD: poolSlippageUSD(qty, buy.Ask, buy.ReserveBase) +
			poolSlippageUSD(qty, sell.Bid, sell.ReserveBase),
		GasUSD:    gasUSD(buy.Chain) + gasUSD(sell.Chain),
		BridgeUSD: bridgeFee,
	}

	edgeBps := (sell.Bid - buy.Ask) / buy.Ask * 10_000
	netBps := edgeBps - (cost.Total()/(buy.Ask*qty))*10_000
	if netBps < e.minEdgeBps {
		return domain.Candidate{}, false
	}

	c := e.newCandidate(domain.StrategyCrossChain, legs, gross, cost, confidenceFromEdge(netBps, e.minEdgeBps), asOf)
	e.logger.Debug("cross-chain candidate",
		slog.String("pair", pair),
		slog.String("route", buy.Chain+"->"+sell.Chain),
		slog.Float64("net_edge_bps", netBps),
	)
	return c, true
}

var _ Evaluator = (*CrossChainEvaluator)(nil)
