// Package strategy holds the opportunity evaluators: one per arbitrage
// family, all run in parallel against the same quote view each pass.
package strategy

import (
	"context"

	"github.com/arbiterhq/arbiter/internal/domain"
	"github.com/arbiterhq/arbiter/internal/snapshot"
)

// Evaluator defines the contract for opportunity evaluators. Evaluate is
// read-only over the view and must be safe to run concurrently with other
// evaluators; returning an empty slice means no opportunity this pass.
type Evaluator interface {
	Name() string
	Kind() domain.StrategyKind
	Evaluate(ctx context.Context, view *snapshot.View) ([]domain.Candidate, error)
}

// VenueFees resolves per-venue taker fees. Evaluators use it to price legs
// conservatively (buy at ask, sell at bid, fees on both legs).
type VenueFees interface {
	TakerFeeBps(venueID string) float64
}

// StaticFees is a VenueFees backed by the venue config table.
type StaticFees struct {
	ByVenue    map[string]float64
	DefaultBps float64
}

func (f StaticFees) TakerFeeBps(venueID string) float64 {
	if bps, ok := f.ByVenue[venueID]; ok {
		return bps
	}
	return f.DefaultBps
}
