package strategy

import (
	"sync"

	"github.com/arbiterhq/arbiter/internal/domain"
)

// Calibrator estimates per-(strategy, venue-pair) win probabilities from the
// historical hit rate of settled trades. Below a minimum sample count it
// returns a configured prior instead, so a cold bucket neither inflates nor
// starves its family.
type Calibrator struct {
	mu      sync.RWMutex
	buckets map[bucketKey]*bucket

	prior     float64
	minSample int
}

type bucketKey struct {
	strategy  domain.StrategyKind
	venuePair string
}

type bucket struct {
	wins  int
	total int
}

// NewCalibrator creates a Calibrator that answers prior until a bucket has at
// least minSample settled outcomes.
func NewCalibrator(prior float64, minSample int) *Calibrator {
	return &Calibrator{
		buckets:   make(map[bucketKey]*bucket),
		prior:     prior,
		minSample: minSample,
	}
}

// WinProbability returns the calibrated win probability for a strategy on a
// venue pair.
func (c *Calibrator) WinProbability(strategy domain.StrategyKind, venuePair string) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	b, ok := c.buckets[bucketKey{strategy: strategy, venuePair: venuePair}]
	if !ok || b.total < c.minSample {
		return c.prior
	}
	return float64(b.wins) / float64(b.total)
}

// RecordOutcome feeds one settled trade back into the hit-rate table. A trade
// counts as a win when its realized profit is positive.
func (c *Calibrator) RecordOutcome(strategy domain.StrategyKind, venuePair string, won bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := bucketKey{strategy: strategy, venuePair: venuePair}
	b, ok := c.buckets[k]
	if !ok {
		b = &bucket{}
		c.buckets[k] = b
	}
	b.total++
	if won {
		b.wins++
	}
}

// Samples returns the number of recorded outcomes for a bucket.
func (c *Calibrator) Samples(strategy domain.StrategyKind, venuePair string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	b, ok := c.buckets[bucketKey{strategy: strategy, venuePair: venuePair}]
	if !ok {
		return 0
	}
	return b.total
}
