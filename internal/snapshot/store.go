// Package snapshot maintains the latest market quote per (venue, instrument)
// and hands out consistent read-only views to the evaluation pass.
package snapshot

import (
	"log/slog"
	"sync"
	"time"

	"github.com/arbiterhq/arbiter/internal/domain"
)

// Store is the single writer-owned quote table. Venue collectors call Upsert
// concurrently; the engine calls View once per pass. Quotes never expire out
// of the store, they only go stale.
type Store struct {
	mu         sync.RWMutex
	quotes     map[key]domain.Quote
	staleAfter time.Duration
	logger     *slog.Logger

	now func() time.Time
}

type key struct {
	venue      string
	instrument string
}

// NewStore creates a Store that marks quotes stale once they are older than
// staleAfter.
func NewStore(staleAfter time.Duration, logger *slog.Logger) *Store {
	return &Store{
		quotes:     make(map[key]domain.Quote),
		staleAfter: staleAfter,
		logger:     logger.With(slog.String("component", "snapshot")),
		now:        time.Now,
	}
}

// Upsert replaces the stored quote for the quote's (venue, instrument) slot.
// Out-of-order updates are dropped: a quote older than the one already stored
// never overwrites it.
func (s *Store) Upsert(q domain.Quote) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key{venue: q.VenueID, instrument: q.InstrumentID}
	if prev, ok := s.quotes[k]; ok && q.Timestamp.Before(prev.Timestamp) {
		s.logger.Debug("dropping out-of-order quote",
			slog.String("venue", q.VenueID),
			slog.String("instrument", q.InstrumentID),
			slog.Time("quote_ts", q.Timestamp),
			slog.Time("stored_ts", prev.Timestamp),
		)
		return
	}
	s.quotes[k] = q
}

// Len returns the number of (venue, instrument) slots currently held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.quotes)
}

// View returns an immutable copy of the current quote table with staleness
// evaluated as of a single instant, so every evaluator in a pass sees the
// same data.
func (s *Store) View() *View {
	s.mu.RLock()
	defer s.mu.RUnlock()

	asOf := s.now()
	quotes := make(map[key]domain.Quote, len(s.quotes))
	byInstrument := make(map[string][]domain.Quote)
	for k, q := range s.quotes {
		q.Stale = asOf.Sub(q.Timestamp) > s.staleAfter
		quotes[k] = q
		byInstrument[k.instrument] = append(byInstrument[k.instrument], q)
	}

	return &View{
		asOf:         asOf,
		quotes:       quotes,
		byInstrument: byInstrument,
	}
}

// View is a point-in-time, read-only copy of the quote table. Safe for
// concurrent use by all evaluators in a pass.
type View struct {
	asOf         time.Time
	quotes       map[key]domain.Quote
	byInstrument map[string][]domain.Quote
}

// AsOf returns the instant staleness was evaluated at.
func (v *View) AsOf() time.Time { return v.asOf }

// Quote looks up the quote for (venue, instrument). The second return is
// false when the slot has never been populated.
func (v *View) Quote(venueID, instrumentID string) (domain.Quote, bool) {
	q, ok := v.quotes[key{venue: venueID, instrument: instrumentID}]
	return q, ok
}

// Fresh is like Quote but also reports false for stale quotes. Evaluators use
// this so stale data can only suppress candidates, never create them.
func (v *View) Fresh(venueID, instrumentID string) (domain.Quote, bool) {
	q, ok := v.Quote(venueID, instrumentID)
	if !ok || q.Stale {
		return domain.Quote{}, false
	}
	return q, true
}

// Instrument returns every venue's quote for instrumentID, stale ones
// included.
func (v *View) Instrument(instrumentID string) []domain.Quote {
	return v.byInstrument[instrumentID]
}

// FreshByInstrument returns the non-stale quotes for instrumentID.
func (v *View) FreshByInstrument(instrumentID string) []domain.Quote {
	all := v.byInstrument[instrumentID]
	fresh := make([]domain.Quote, 0, len(all))
	for _, q := range all {
		if !q.Stale {
			fresh = append(fresh, q)
		}
	}
	return fresh
}

// Instruments returns the distinct instrument IDs present in the view.
func (v *View) Instruments() []string {
	out := make([]string, 0, len(v.byInstrument))
	for id := range v.byInstrument {
		out = append(out, id)
	}
	return out
}
