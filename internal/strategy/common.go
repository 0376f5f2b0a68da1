package strategy

import (
	"time"

	"github.com/google/uuid"

	"github.com/arbiterhq/arbiter/internal/domain"
)

// defaultGasUSD is the flat per-swap gas estimate used when a chain has no
// entry in gasUSDByChain.
const defaultGasUSD = 4.0

// gasUSDByChain holds rough per-swap gas cost estimates. Good enough for
// gating; the executor re-prices at dispatch time.
var gasUSDByChain = map[string]float64{
	"ethereum": 12.0,
	"arbitrum": 0.40,
	"base":     0.25,
	"polygon":  0.10,
	"bsc":      0.30,
	"solana":   0.02,
}

func gasUSD(chain string) float64 {
	if g, ok := gasUSDByChain[chain]; ok {
		return g
	}
	return defaultGasUSD
}

// builder carries the shared knobs every evaluator needs to turn a priced
// edge into a Candidate.
type builder struct {
	fees       VenueFees
	calibrator *Calibrator
	ttl        time.Duration
	targetUSD  float64
}

// newCandidate stamps identity, timing and calibrated win probability onto a
// set of legs.
func (b builder) newCandidate(kind domain.StrategyKind, legs []domain.Leg, gross float64, cost domain.CostBreakdown, confidence float64, asOf time.Time) domain.Candidate {
	c := domain.Candidate{
		ID:             uuid.NewString(),
		Strategy:       kind,
		Legs:           legs,
		GrossProfitUSD: gross,
		Cost:           cost,
		Confidence:     confidence,
		CreatedAt:      asOf,
		ExpiresAt:      asOf.Add(b.ttl),
	}
	c.WinProbability = b.calibrator.WinProbability(kind, c.VenuePair())
	return c
}

// feesUSD sums taker fees across legs at their expected notionals.
func (b builder) feesUSD(legs []domain.Leg) float64 {
	var total float64
	for _, l := range legs {
		total += l.Notional() * b.fees.TakerFeeBps(l.VenueID) / 10_000
	}
	return total
}

// sizeQty converts the target USD size into base quantity, capped by the
// displayed depth on both sides.
func sizeQty(targetUSD, price float64, depths ...float64) float64 {
	if price <= 0 {
		return 0
	}
	qty := targetUSD / price
	for _, d := range depths {
		if d > 0 && d < qty {
			qty = d
		}
	}
	return qty
}

// confidenceFromEdge maps edge headroom over the gating threshold into
// [0.5, 0.99]. An edge exactly at threshold scores 0.5; each additional
// threshold-width adds 0.125.
func confidenceFromEdge(edgeBps, minEdgeBps float64) float64 {
	if minEdgeBps <= 0 {
		minEdgeBps = 1
	}
	conf := 0.5 + (edgeBps-minEdgeBps)/minEdgeBps*0.125
	if conf < 0.5 {
		conf = 0.5
	}
	if conf > 0.99 {
		conf = 0.99
	}
	return conf
}

// poolSlippageUSD estimates constant-product slippage for a swap of qty base
// units against a pool with the given reserves. Falls back to a flat 5 bps of
// notional when reserves are unknown.
func poolSlippageUSD(qty, price, reserveBase float64) float64 {
	notional := qty * price
	if reserveBase <= 0 || qty <= 0 {
		return notional * 0.0005
	}
	// Price impact of a constant-product swap is approximately qty/reserve.
	impact := qty / reserveBase
	if impact > 1 {
		impact = 1
	}
	return notional * impact
}
