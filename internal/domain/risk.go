package domain

import "time"

// BreakerState is the circuit breaker's position.
type BreakerState string

const (
	BreakerNormal  BreakerState = "normal"
	BreakerWarning BreakerState = "warning"
	BreakerTripped BreakerState = "tripped"
)

// TripCause names which threshold tripped the breaker.
type TripCause string

const (
	TripNone             TripCause = ""
	TripDailyLoss        TripCause = "daily_loss"
	TripConsecutiveLoss  TripCause = "consecutive_losses"
	TripVolatilitySpike  TripCause = "volatility_spike"
	TripCorrelation      TripCause = "correlation"
	TripManualHalt       TripCause = "manual_halt"
)

// RejectionReason is the specific cause returned when check-and-reserve
// refuses a candidate.
type RejectionReason string

const (
	RejectBreakerTripped RejectionReason = "breaker_tripped"
	RejectBudgetExhausted RejectionReason = "budget_exhausted"
	RejectPositionCount  RejectionReason = "position_count_exceeded"
	RejectSizeExceeded   RejectionReason = "size_exceeded"
)

// RiskState is a point-in-time copy of the risk manager's accounting. The
// manager owns the mutable state; this snapshot is what the operator surface
// and observability sink see.
type RiskState struct {
	Breaker           BreakerState
	TripCause         TripCause
	TrippedAt         time.Time
	DayPnLUSD         float64
	ConsecutiveLosses int
	Volatility        float64 // rolling stddev of settled-trade returns
	Correlation       float64 // concentration of open positions, 0..1
	ReservedUSD       float64
	CapitalUSD        float64
	PeakCapitalUSD    float64
	OpenReservations  int
}

// DrawdownPct returns the decline from peak capital as a fraction.
func (s RiskState) DrawdownPct() float64 {
	if s.PeakCapitalUSD <= 0 {
		return 0
	}
	dd := (s.PeakCapitalUSD - s.CapitalUSD) / s.PeakCapitalUSD
	if dd < 0 {
		return 0
	}
	return dd
}
