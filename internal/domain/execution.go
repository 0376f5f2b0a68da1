package domain

import "time"

// TradeState is the execution coordinator's per-trade state machine.
type TradeState string

const (
	TradePlanned     TradeState = "planned"
	TradeDispatching TradeState = "dispatching"
	TradeAllFilled   TradeState = "all_filled"
	TradePartialFill TradeState = "partial_fill"
	TradeAllFailed   TradeState = "all_failed"
	TradeSettled     TradeState = "settled"
	TradeUnwinding   TradeState = "unwinding"
	TradeUnwound     TradeState = "unwound"
)

// Terminal reports whether the state seals the execution record.
func (s TradeState) Terminal() bool {
	return s == TradeSettled || s == TradeUnwound
}

// LegStatus is the per-leg fill state.
type LegStatus string

const (
	LegPending   LegStatus = "pending"
	LegFilled    LegStatus = "filled"
	LegFailed    LegStatus = "failed"
	LegTimedOut  LegStatus = "timed_out"
	LegCancelled LegStatus = "cancelled"
)

// LegFill records the outcome of dispatching one leg.
type LegFill struct {
	Leg           Leg
	Status        LegStatus
	FilledPrice   float64
	FilledQty     float64
	SlippageBps   float64
	VenueReason   string // venue-supplied failure reason, when failed
	DispatchedAt  time.Time
	ResolvedAt    time.Time
	UnwindStatus  LegStatus // set when the leg was market-closed during unwind
	UnwindPrice   float64
	UnwindPnLUSD  float64
}

// UnwindOutcome summarizes how a partial-fill unwind ended.
type UnwindOutcome string

const (
	UnwindNone     UnwindOutcome = ""
	UnwindClosed   UnwindOutcome = "closed"   // all filled legs flattened
	UnwindResidual UnwindOutcome = "residual" // exposure remains, operator required
)

// ExecutionRecord tracks one multi-leg trade from dispatch to seal. It is
// created when the coordinator dispatches the first leg, updated as fills and
// failures arrive, and sealed when all legs resolve or the unwind completes.
// Sealed records feed the risk manager and cycle scheduler and are then
// archived.
type ExecutionRecord struct {
	ID             string
	CandidateID    string
	Strategy       StrategyKind
	ReservationID  string
	State          TradeState
	Legs           []LegFill
	SizeUSD        float64
	ExpectedPnLUSD float64
	RealizedPnLUSD float64
	Unwind         UnwindOutcome
	StartedAt      time.Time
	SealedAt       time.Time
}

// Sealed reports whether the record has reached a terminal state.
func (r ExecutionRecord) Sealed() bool {
	return r.State.Terminal()
}

// FilledLegs returns the fills that actually executed.
func (r ExecutionRecord) FilledLegs() []LegFill {
	var out []LegFill
	for _, lf := range r.Legs {
		if lf.Status == LegFilled {
			out = append(out, lf)
		}
	}
	return out
}
