package domain

import "time"

// StrategyKind classifies the arbitrage family that produced a candidate.
type StrategyKind string

const (
	StrategyCexCex      StrategyKind = "cex_cex"
	StrategyDexDex      StrategyKind = "dex_dex"
	StrategyCexDex      StrategyKind = "cex_dex"
	StrategyTriangular  StrategyKind = "triangular"
	StrategyFunding     StrategyKind = "funding_rate"
	StrategyStatistical StrategyKind = "statistical"
	StrategyCrossChain  StrategyKind = "cross_chain"
)

// OrderSide is the direction of one leg.
type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

// Leg is one single-venue order that is part of a (possibly multi-venue)
// arbitrage trade.
type Leg struct {
	VenueID      string
	VenueKind    VenueKind
	InstrumentID string
	Side         OrderSide
	Price        float64 // expected execution price
	Qty          float64 // expected quantity in base units
	// TokenAddress is the contract address of the traded token for DEX legs,
	// empty for CEX legs.
	TokenAddress string
	// Chain names the network a DEX leg settles on.
	Chain string
}

// Notional returns the expected USD notional of the leg.
func (l Leg) Notional() float64 {
	return l.Price * l.Qty
}

// CostBreakdown itemizes the estimated cost of executing a candidate.
type CostBreakdown struct {
	FeesUSD     float64
	SlippageUSD float64
	GasUSD      float64 // gas for DEX legs
	BridgeUSD   float64 // bridge cost for cross-chain legs
}

// Total returns the summed estimated cost in USD.
func (c CostBreakdown) Total() float64 {
	return c.FeesUSD + c.SlippageUSD + c.GasUSD + c.BridgeUSD
}

// Candidate is an unexecuted, scored arbitrage opportunity. Candidates are
// immutable after creation and are discarded after one evaluation pass unless
// selected for execution.
type Candidate struct {
	ID             string
	Strategy       StrategyKind
	Legs           []Leg
	GrossProfitUSD float64
	Cost           CostBreakdown
	WinProbability float64
	Confidence     float64
	CreatedAt      time.Time
	ExpiresAt      time.Time
}

// NetProfitUSD returns the estimated profit after fees, slippage, gas and
// bridge costs.
func (c Candidate) NetProfitUSD() float64 {
	return c.GrossProfitUSD - c.Cost.Total()
}

// Notional returns the total expected notional across all legs.
func (c Candidate) Notional() float64 {
	var n float64
	for _, l := range c.Legs {
		n += l.Notional()
	}
	return n
}

// Expired reports whether the candidate's time-to-live has elapsed.
func (c Candidate) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

// DexLegs returns the legs that settle on-chain, in order.
func (c Candidate) DexLegs() []Leg {
	var out []Leg
	for _, l := range c.Legs {
		if l.VenueKind == VenueKindDEX {
			out = append(out, l)
		}
	}
	return out
}

// VenuePair is a compact "venueA->venueB" label used as the key for
// per-venue-pair hit-rate calibration. Single-venue candidates repeat the
// venue on both sides.
func (c Candidate) VenuePair() string {
	if len(c.Legs) == 0 {
		return ""
	}
	first := c.Legs[0].VenueID
	last := c.Legs[len(c.Legs)-1].VenueID
	return first + "->" + last
}
