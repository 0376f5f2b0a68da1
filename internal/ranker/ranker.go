// Package ranker filters and orders the candidates produced by one
// evaluation pass before they reach the risk gate.
package ranker

import (
	"log/slog"
	"sort"
	"time"

	"github.com/arbiterhq/arbiter/internal/domain"
)

// Ranker applies the admission thresholds, removes candidates whose legs
// collide over the same (venue, instrument) slot, and orders the survivors
// by confidence then net profit.
type Ranker struct {
	minWinRate    float64
	minConfidence float64
	logger        *slog.Logger
}

// New creates a Ranker with the configured admission thresholds.
func New(minWinRate, minConfidence float64, logger *slog.Logger) *Ranker {
	return &Ranker{
		minWinRate:    minWinRate,
		minConfidence: minConfidence,
		logger:        logger.With(slog.String("component", "ranker")),
	}
}

// Rank returns the admitted candidates in execution-priority order. It never
// mutates its input.
func (r *Ranker) Rank(candidates []domain.Candidate, now time.Time) []domain.Candidate {
	admitted := make([]domain.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if reason, ok := r.admit(c, now); !ok {
			r.logger.Debug("candidate rejected",
				slog.String("candidate_id", c.ID),
				slog.String("strategy", string(c.Strategy)),
				slog.String("reason", reason),
			)
			continue
		}
		admitted = append(admitted, c)
	}

	admitted = dedupeLegConflicts(admitted)

	sort.SliceStable(admitted, func(i, j int) bool {
		if admitted[i].Confidence != admitted[j].Confidence {
			return admitted[i].Confidence > admitted[j].Confidence
		}
		return admitted[i].NetProfitUSD() > admitted[j].NetProfitUSD()
	})
	return admitted
}

func (r *Ranker) admit(c domain.Candidate, now time.Time) (string, bool) {
	switch {
	case c.Expired(now):
		return "expired", false
	case c.NetProfitUSD() <= 0:
		return "negative_net_profit", false
	case c.WinProbability < r.minWinRate:
		return "win_probability_below_floor", false
	case c.Confidence < r.minConfidence:
		return "confidence_below_floor", false
	case len(c.Legs) == 0:
		return "no_legs", false
	}
	return "", true
}

// dedupeLegConflicts drops any candidate that shares a (venue, instrument)
// slot with a more profitable candidate. Two trades hitting the same book
// slot would each consume the liquidity the other was priced against.
func dedupeLegConflicts(candidates []domain.Candidate) []domain.Candidate {
	ordered := make([]domain.Candidate, len(candidates))
	copy(ordered, candidates)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].NetProfitUSD() > ordered[j].NetProfitUSD()
	})

	type slot struct{ venue, instrument string }
	taken := make(map[slot]bool)
	keptIDs := make(map[string]bool)

	for _, c := range ordered {
		conflict := false
		for _, l := range c.Legs {
			if taken[slot{l.VenueID, l.InstrumentID}] {
				conflict = true
				break
			}
		}
		if conflict {
			continue
		}
		for _, l := range c.Legs {
			taken[slot{l.VenueID, l.InstrumentID}] = true
		}
		keptIDs[c.ID] = true
	}

	// Preserve the caller's relative order for the survivors.
	out := make([]domain.Candidate, 0, len(keptIDs))
	for _, c := range candidates {
		if keptIDs[c.ID] {
			out = append(out, c)
		}
	}
	return out
}
