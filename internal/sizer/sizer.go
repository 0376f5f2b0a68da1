// Package sizer converts an admitted candidate into a position size using a
// fractional Kelly criterion.
package sizer

import (
	"fmt"

	"github.com/arbiterhq/arbiter/internal/domain"
)

// Sizer computes position sizes. The Kelly fraction is deliberately below
// one; edge estimates in this domain are noisy and full Kelly over-bets on
// estimation error.
type Sizer struct {
	kellyFraction       float64
	maxPositionFraction float64
}

// New creates a Sizer. kellyFraction scales the raw Kelly bet,
// maxPositionFraction caps the result as a share of capital.
func New(kellyFraction, maxPositionFraction float64) *Sizer {
	return &Sizer{
		kellyFraction:       kellyFraction,
		maxPositionFraction: maxPositionFraction,
	}
}

// Size returns the USD position for a candidate against the current capital
// base. The Kelly bet is f = k * (p*b - q) / b where p is the win
// probability, q = 1-p, and b is the profit-to-loss ratio of the trade. A
// non-positive f means the candidate has no positive expectancy at its
// estimated odds and is rejected with ErrNegativeEdge. The result is clamped
// to availableUSD, the risk budget not already held by open reservations, so
// a partially consumed budget shrinks the position instead of rejecting it.
func (s *Sizer) Size(c domain.Candidate, capitalUSD, availableUSD float64) (float64, error) {
	if capitalUSD <= 0 {
		return 0, fmt.Errorf("sizing %s: %w", c.ID, domain.ErrNegativeEdge)
	}

	p := c.WinProbability
	if p <= 0 || p >= 1 {
		return 0, fmt.Errorf("sizing %s: win probability %v out of range: %w", c.ID, p, domain.ErrNegativeEdge)
	}

	b := s.payoffRatio(c)
	if b <= 0 {
		return 0, fmt.Errorf("sizing %s: %w", c.ID, domain.ErrNegativeEdge)
	}

	q := 1 - p
	f := s.kellyFraction * (p*b - q) / b
	if f <= 0 {
		return 0, fmt.Errorf("sizing %s: %w", c.ID, domain.ErrNegativeEdge)
	}

	if f > s.maxPositionFraction {
		f = s.maxPositionFraction
	}

	size := capitalUSD * f
	if notional := c.Notional(); notional > 0 && size > notional {
		// Never size past the liquidity the candidate was priced against.
		size = notional
	}
	if size > availableUSD {
		size = availableUSD
	}
	return size, nil
}

// payoffRatio estimates b, the win/loss ratio. The win pays the net profit;
// the loss case assumes adverse fills consume the gross edge plus the costs
// again.
func (s *Sizer) payoffRatio(c domain.Candidate) float64 {
	win := c.NetProfitUSD()
	loss := c.GrossProfitUSD + c.Cost.Total() - win
	if win <= 0 {
		return 0
	}
	if loss <= 0 {
		// Cost-free candidate: treat as even odds rather than infinite.
		return 1
	}
	return win / loss
}

// SizeWithOdds is the bare Kelly formula used when the payoff ratio is known
// directly rather than derived from a candidate.
func (s *Sizer) SizeWithOdds(p, b, capitalUSD float64) (float64, error) {
	if p <= 0 || p >= 1 || b <= 0 || capitalUSD <= 0 {
		return 0, domain.ErrNegativeEdge
	}
	q := 1 - p
	f := s.kellyFraction * (p*b - q) / b
	if f <= 0 {
		return 0, domain.ErrNegativeEdge
	}
	if f > s.maxPositionFraction {
		f = s.maxPositionFraction
	}
	return capitalUSD * f, nil
}
