// Package venue holds venue connector implementations. The simulated
// connector backs paper mode and tests; live connectors are expected to
// satisfy the same interface.
package venue

import (
	"context"
	"sync"
	"time"

	"github.com/arbiterhq/arbiter/internal/domain"
)

// SimConfig shapes the simulated venue's fill behavior.
type SimConfig struct {
	// SlippageBps is applied adversely to every fill.
	SlippageBps float64
	// Latency delays each call, subject to ctx cancellation.
	Latency time.Duration
	// FillRate in [0,1]: fraction of legs that fill. 1 fills everything.
	FillRate float64
}

// Sim is a paper venue: every leg fills at its expected price shifted by the
// configured slippage. Deterministic fill/reject sequencing (via FillRate)
// keeps paper runs reproducible.
type Sim struct {
	id  string
	cfg SimConfig

	mu       sync.Mutex
	dispatch int
}

// NewSim creates a simulated venue connector.
func NewSim(id string, cfg SimConfig) *Sim {
	if cfg.FillRate <= 0 {
		cfg.FillRate = 1
	}
	return &Sim{id: id, cfg: cfg}
}

func (s *Sim) VenueID() string { return s.id }

// ExecuteLeg fills at the leg's expected price moved against the taker by
// the configured slippage.
func (s *Sim) ExecuteLeg(ctx context.Context, leg domain.Leg) (domain.LegResult, error) {
	if err := s.wait(ctx); err != nil {
		return domain.LegResult{}, err
	}

	s.mu.Lock()
	s.dispatch++
	n := s.dispatch
	s.mu.Unlock()

	// Every k-th dispatch is rejected to approximate the configured fill rate.
	if s.cfg.FillRate < 1 {
		period := int(1 / (1 - s.cfg.FillRate))
		if period > 0 && n%period == 0 {
			return domain.LegResult{VenueReason: "simulated reject"}, nil
		}
	}

	return domain.LegResult{
		Filled:      true,
		FilledPrice: s.slip(leg.Side, leg.Price),
		FilledQty:   leg.Qty,
	}, nil
}

// ClosePosition flattens a filled leg at its price moved adversely, same as
// a market order crossing the spread.
func (s *Sim) ClosePosition(ctx context.Context, leg domain.Leg, qty float64) (domain.LegResult, error) {
	if err := s.wait(ctx); err != nil {
		return domain.LegResult{}, err
	}
	closeSide := domain.SideSell
	if leg.Side == domain.SideSell {
		closeSide = domain.SideBuy
	}
	return domain.LegResult{
		Filled:      true,
		FilledPrice: s.slip(closeSide, leg.Price),
		FilledQty:   qty,
	}, nil
}

func (s *Sim) slip(side domain.OrderSide, price float64) float64 {
	adj := price * s.cfg.SlippageBps / 10_000
	if side == domain.SideBuy {
		return price + adj
	}
	return price - adj
}

func (s *Sim) wait(ctx context.Context) error {
	if s.cfg.Latency <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(s.cfg.Latency)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

var _ domain.VenueExecutor = (*Sim)(nil)

// SimInspector answers token screens with a fixed safe profile, for paper
// mode where no chain-data collaborator is wired.
type SimInspector struct{}

func (SimInspector) TokenReport(_ context.Context, _, address string) (domain.TokenReport, error) {
	return domain.TokenReport{
		Address:            address,
		OwnershipRenounced: true,
		LiquidityLockedUSD: 1_000_000,
		TopHolderPct:       0.02,
		AgeDays:            365,
		HolderCount:        10_000,
	}, nil
}

var _ domain.TokenInspector = (SimInspector{})
