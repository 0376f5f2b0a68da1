package domain

import "time"

// Reservation is an exclusive claim on a slice of the risk budget for one
// in-flight candidate. It is created atomically inside the risk manager's
// check-and-reserve gate and released exactly once when the trade reaches a
// terminal state. A candidate without a live reservation must never reach the
// execution coordinator.
type Reservation struct {
	ID          string
	CandidateID string
	Strategy    StrategyKind
	AmountUSD   float64
	// Instruments the reservation touches, used for concentration tracking.
	Instruments []string
	CreatedAt   time.Time
}
