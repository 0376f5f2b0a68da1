package domain

import "time"

// CycleState tracks one rolling compounding window. Owned by the cycle
// scheduler; mutated once per settled trade and once per rollover.
type CycleState struct {
	Number             int
	StartedAt          time.Time
	Length             time.Duration
	CapitalBaseUSD     float64
	CumulativeProfitUSD float64
	DailyTargetUSD     float64
	SettledTrades      int
}

// EndsAt returns the cycle boundary time.
func (s CycleState) EndsAt() time.Time {
	return s.StartedAt.Add(s.Length)
}

// ProgressPct returns cumulative profit as a fraction of the capital base.
func (s CycleState) ProgressPct() float64 {
	if s.CapitalBaseUSD <= 0 {
		return 0
	}
	return s.CumulativeProfitUSD / s.CapitalBaseUSD
}
