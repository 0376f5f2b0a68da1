package sizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbiterhq/arbiter/internal/domain"
)

func TestSizeWithOddsHalfKelly(t *testing.T) {
	s := New(0.5, 1.0)

	// f = 0.5 * (0.95*2 - 0.05) / 2 = 0.4625
	size, err := s.SizeWithOdds(0.95, 2.0, 100_000)
	require.NoError(t, err)
	assert.InDelta(t, 46_250.0, size, 1e-6)
}

func TestSizeWithOddsCapped(t *testing.T) {
	s := New(0.5, 0.12)

	size, err := s.SizeWithOdds(0.95, 2.0, 100_000)
	require.NoError(t, err)
	assert.InDelta(t, 12_000.0, size, 1e-6)
}

func TestSizeWithOddsNegativeEdge(t *testing.T) {
	s := New(0.5, 1.0)

	// p*b - q = 0.4*1 - 0.6 < 0.
	_, err := s.SizeWithOdds(0.40, 1.0, 100_000)
	assert.ErrorIs(t, err, domain.ErrNegativeEdge)
}

func TestSizeRejectsDegenerateProbabilities(t *testing.T) {
	s := New(0.5, 1.0)

	for _, p := range []float64{0, 1, -0.1, 1.1} {
		_, err := s.SizeWithOdds(p, 2.0, 100_000)
		assert.ErrorIs(t, err, domain.ErrNegativeEdge, "p=%v", p)
	}
}

func TestSizeFromCandidate(t *testing.T) {
	s := New(0.5, 0.12)

	c := domain.Candidate{
		ID:             "c1",
		WinProbability: 0.90,
		GrossProfitUSD: 100,
		Cost:           domain.CostBreakdown{FeesUSD: 20},
		Legs: []domain.Leg{
			{Price: 100, Qty: 500, Side: domain.SideBuy},
		},
	}

	size, err := s.Size(c, 100_000, 40_000)
	require.NoError(t, err)
	assert.Greater(t, size, 0.0)
	assert.LessOrEqual(t, size, 12_000.0, "per-trade cap binds")
}

func TestSizeClampsToRemainingBudget(t *testing.T) {
	s := New(0.5, 0.12)

	c := domain.Candidate{
		ID:             "c1",
		WinProbability: 0.90,
		GrossProfitUSD: 100,
		Cost:           domain.CostBreakdown{FeesUSD: 20},
		Legs: []domain.Leg{
			{Price: 100, Qty: 500, Side: domain.SideBuy},
		},
	}

	unclamped, err := s.Size(c, 100_000, 40_000)
	require.NoError(t, err)
	require.Greater(t, unclamped, 3_000.0)

	// Open reservations have eaten most of the budget; the same candidate
	// shrinks to what is left instead of being rejected downstream.
	size, err := s.Size(c, 100_000, 3_000)
	require.NoError(t, err)
	assert.Equal(t, 3_000.0, size)
}

func TestSizeNeverExceedsCandidateNotional(t *testing.T) {
	s := New(0.5, 0.50)

	c := domain.Candidate{
		ID:             "c1",
		WinProbability: 0.95,
		GrossProfitUSD: 50,
		Legs: []domain.Leg{
			{Price: 100, Qty: 10, Side: domain.SideBuy}, // 1k notional
		},
	}

	size, err := s.Size(c, 1_000_000, 500_000)
	require.NoError(t, err)
	assert.LessOrEqual(t, size, 1_000.0)
}

func TestSizeLosingCandidateRejected(t *testing.T) {
	s := New(0.5, 0.12)

	c := domain.Candidate{
		ID:             "c1",
		WinProbability: 0.90,
		GrossProfitUSD: 10,
		Cost:           domain.CostBreakdown{FeesUSD: 20}, // net negative
		Legs:           []domain.Leg{{Price: 100, Qty: 10}},
	}

	_, err := s.Size(c, 100_000, 40_000)
	assert.ErrorIs(t, err, domain.ErrNegativeEdge)
}
