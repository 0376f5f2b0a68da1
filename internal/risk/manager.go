// Package risk owns the circuit breaker and the capital reservation budget.
// Every candidate passes through CheckAndReserve, the single serialized gate
// between opportunity detection and execution.
package risk

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arbiterhq/arbiter/internal/domain"
)

// volatilityWindow is how many settled-trade returns feed the rolling stddev.
const volatilityWindow = 50

// budgetSlackUSD is a cent of tolerance on the budget check, so a size
// clamped to exactly the remaining budget is not rejected on float noise.
const budgetSlackUSD = 0.01

// Config holds the manager's thresholds, taken from the risk section of the
// main configuration.
type Config struct {
	CapitalAtRiskFraction   float64
	MaxPositionFraction     float64
	MaxPositions            int
	DailyLossLimitUSD       float64
	MaxConsecutiveLosses    int
	VolatilitySpikeMultiple float64
	CorrelationThreshold    float64
	WarningFraction         float64
}

// Manager is the risk gate. All mutable state is guarded by one mutex;
// CheckAndReserve either reserves budget and returns a reservation or
// rejects with a typed reason, atomically.
type Manager struct {
	mu  sync.Mutex
	cfg Config

	capitalUSD     float64
	peakCapitalUSD float64
	dayPnLUSD      float64
	dayStart       time.Time

	breaker   domain.BreakerState
	tripCause domain.TripCause
	trippedAt time.Time

	consecutiveLosses int
	returns           []float64 // rolling settled-trade returns
	baselineVol       float64

	reservations map[string]domain.Reservation
	reservedUSD  float64

	events domain.EventPublisher
	logger *slog.Logger

	now func() time.Time
}

// NewManager creates a Manager with the full capital base available and the
// breaker in its normal state.
func NewManager(cfg Config, capitalUSD float64, events domain.EventPublisher, logger *slog.Logger) *Manager {
	return &Manager{
		cfg:            cfg,
		capitalUSD:     capitalUSD,
		peakCapitalUSD: capitalUSD,
		dayStart:       time.Now().Truncate(24 * time.Hour),
		breaker:        domain.BreakerNormal,
		reservations:   make(map[string]domain.Reservation),
		events:         events,
		logger:         logger.With(slog.String("component", "risk")),
		now:            time.Now,
	}
}

// CheckAndReserve admits a candidate against every limit and, on success,
// atomically reserves sizeUSD of budget. The returned reservation must be
// released exactly once.
func (m *Manager) CheckAndReserve(c domain.Candidate, sizeUSD float64) (domain.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rollDayLocked()

	if m.breaker == domain.BreakerTripped {
		return domain.Reservation{}, &domain.RiskRejectionError{
			Reason: domain.RejectBreakerTripped,
			Detail: string(m.tripCause),
		}
	}

	maxPosition := m.capitalUSD * m.cfg.MaxPositionFraction
	if sizeUSD > maxPosition {
		return domain.Reservation{}, &domain.RiskRejectionError{
			Reason: domain.RejectSizeExceeded,
			Detail: "position exceeds per-trade cap",
		}
	}

	if len(m.reservations) >= m.cfg.MaxPositions {
		return domain.Reservation{}, &domain.RiskRejectionError{
			Reason: domain.RejectPositionCount,
			Detail: "concurrent position limit reached",
		}
	}

	budget := m.capitalUSD * m.cfg.CapitalAtRiskFraction
	if m.reservedUSD+sizeUSD > budget+budgetSlackUSD {
		return domain.Reservation{}, &domain.RiskRejectionError{
			Reason: domain.RejectBudgetExhausted,
			Detail: "capital-at-risk budget exhausted",
		}
	}

	instruments := make([]string, 0, len(c.Legs))
	for _, l := range c.Legs {
		instruments = append(instruments, l.InstrumentID)
	}
	res := domain.Reservation{
		ID:          uuid.NewString(),
		CandidateID: c.ID,
		Strategy:    c.Strategy,
		AmountUSD:   sizeUSD,
		Instruments: instruments,
		CreatedAt:   m.now(),
	}
	m.reservations[res.ID] = res
	m.reservedUSD += sizeUSD

	m.checkCorrelationLocked()
	m.publishLocked(domain.EventReservationCreated, map[string]string{
		"reservation_id": res.ID,
		"candidate_id":   c.ID,
		"strategy":       string(c.Strategy),
	})
	return res, nil
}

// Release frees a reservation's budget. Releasing an unknown or already
// released reservation returns ErrAlreadyReleased and changes nothing, so a
// double release is loud but harmless.
func (m *Manager) Release(reservationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	res, ok := m.reservations[reservationID]
	if !ok {
		return domain.ErrAlreadyReleased
	}
	delete(m.reservations, reservationID)
	m.reservedUSD -= res.AmountUSD
	if m.reservedUSD < 0 {
		m.reservedUSD = 0
	}

	m.publishLocked(domain.EventReservationReleased, map[string]string{
		"reservation_id": reservationID,
	})
	return nil
}

// RecordOutcome feeds one terminal trade back into the accounting: realized
// PnL moves capital and the day counter, losses advance the consecutive-loss
// streak, and every trip threshold is re-checked. loss marks the trade a
// loss independent of PnL sign; an unwound trade that flattened at breakeven
// still broke its plan and still extends the streak.
func (m *Manager) RecordOutcome(pnlUSD, sizeUSD float64, loss bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rollDayLocked()

	m.capitalUSD += pnlUSD
	m.dayPnLUSD += pnlUSD
	if m.capitalUSD > m.peakCapitalUSD {
		m.peakCapitalUSD = m.capitalUSD
	}

	if loss || pnlUSD < 0 {
		m.consecutiveLosses++
	} else {
		m.consecutiveLosses = 0
	}

	if sizeUSD > 0 {
		m.returns = append(m.returns, pnlUSD/sizeUSD)
		if len(m.returns) > volatilityWindow {
			m.returns = m.returns[len(m.returns)-volatilityWindow:]
		}
	}

	m.evaluateBreakerLocked()
}

// Halt trips the breaker immediately on operator request.
func (m *Manager) Halt() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tripLocked(domain.TripManualHalt)
}

// ManualReset clears a tripped breaker on operator request. This and the
// cycle boundary are the only reset pathways.
func (m *Manager) ManualReset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetBreakerLocked("manual_reset")
}

// CycleReset is invoked by the cycle scheduler at rollover: it clears the
// breaker, zeroes the loss streak, and rebases capital to the new cycle base.
func (m *Manager) CycleReset(newCapitalUSD float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.capitalUSD = newCapitalUSD
	m.peakCapitalUSD = newCapitalUSD
	m.consecutiveLosses = 0
	m.dayPnLUSD = 0
	m.baselineVol = m.currentVolLocked()
	m.resetBreakerLocked("cycle_rollover")
}

// State returns a copy of the current accounting.
func (m *Manager) State() domain.RiskState {
	m.mu.Lock()
	defer m.mu.Unlock()

	return domain.RiskState{
		Breaker:           m.breaker,
		TripCause:         m.tripCause,
		TrippedAt:         m.trippedAt,
		DayPnLUSD:         m.dayPnLUSD,
		ConsecutiveLosses: m.consecutiveLosses,
		Volatility:        m.currentVolLocked(),
		Correlation:       m.correlationLocked(),
		ReservedUSD:       m.reservedUSD,
		CapitalUSD:        m.capitalUSD,
		PeakCapitalUSD:    m.peakCapitalUSD,
		OpenReservations:  len(m.reservations),
	}
}

// CapitalUSD returns the current capital base.
func (m *Manager) CapitalUSD() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.capitalUSD
}

// AvailableBudgetUSD returns the unreserved portion of the capital-at-risk
// budget. The sizer clamps to this before admission; CheckAndReserve stays
// the atomic guard, so a concurrent reservation can still reject.
func (m *Manager) AvailableBudgetUSD() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	avail := m.capitalUSD*m.cfg.CapitalAtRiskFraction - m.reservedUSD
	if avail < 0 {
		return 0
	}
	return avail
}

// --- internals, all require m.mu held ---

func (m *Manager) rollDayLocked() {
	day := m.now().Truncate(24 * time.Hour)
	if day.After(m.dayStart) {
		m.dayStart = day
		m.dayPnLUSD = 0
	}
}

func (m *Manager) evaluateBreakerLocked() {
	if m.breaker == domain.BreakerTripped {
		return
	}

	switch {
	case -m.dayPnLUSD >= m.cfg.DailyLossLimitUSD:
		m.tripLocked(domain.TripDailyLoss)
		return
	case m.consecutiveLosses >= m.cfg.MaxConsecutiveLosses:
		m.tripLocked(domain.TripConsecutiveLoss)
		return
	case m.volSpikeLocked():
		m.tripLocked(domain.TripVolatilitySpike)
		return
	}

	// Warning band: approaching the daily loss limit slows admission via the
	// operator surface but does not block trades.
	warnAt := m.cfg.DailyLossLimitUSD * m.cfg.WarningFraction
	if warnAt > 0 && -m.dayPnLUSD >= warnAt {
		m.transitionLocked(domain.BreakerWarning, domain.TripNone)
	} else if m.breaker == domain.BreakerWarning {
		m.transitionLocked(domain.BreakerNormal, domain.TripNone)
	}
}

func (m *Manager) checkCorrelationLocked() {
	if m.breaker == domain.BreakerTripped || m.cfg.CorrelationThreshold <= 0 {
		return
	}
	if m.correlationLocked() >= m.cfg.CorrelationThreshold {
		m.tripLocked(domain.TripCorrelation)
	}
}

// correlationLocked measures concentration of open reservations: the budget
// share of the single most reserved instrument. A single open reservation is
// trivially concentrated, so concentration only counts from two positions up.
func (m *Manager) correlationLocked() float64 {
	if m.reservedUSD <= 0 || len(m.reservations) < 2 {
		return 0
	}
	perInstrument := make(map[string]float64)
	for _, res := range m.reservations {
		if len(res.Instruments) == 0 {
			continue
		}
		share := res.AmountUSD / float64(len(res.Instruments))
		for _, inst := range res.Instruments {
			perInstrument[inst] += share
		}
	}
	var maxShare float64
	for _, usd := range perInstrument {
		if usd > maxShare {
			maxShare = usd
		}
	}
	return maxShare / m.reservedUSD
}

func (m *Manager) volSpikeLocked() bool {
	if m.cfg.VolatilitySpikeMultiple <= 0 || m.baselineVol <= 0 {
		return false
	}
	if len(m.returns) < volatilityWindow/2 {
		return false
	}
	return m.currentVolLocked() >= m.baselineVol*m.cfg.VolatilitySpikeMultiple
}

func (m *Manager) currentVolLocked() float64 {
	n := len(m.returns)
	if n < 2 {
		return 0
	}
	var sum float64
	for _, r := range m.returns {
		sum += r
	}
	mean := sum / float64(n)
	var sq float64
	for _, r := range m.returns {
		d := r - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(n-1))
}

func (m *Manager) tripLocked(cause domain.TripCause) {
	if m.breaker == domain.BreakerTripped {
		return
	}
	m.trippedAt = m.now()
	m.transitionLocked(domain.BreakerTripped, cause)
	m.logger.Warn("circuit breaker tripped", slog.String("cause", string(cause)))
}

func (m *Manager) resetBreakerLocked(via string) {
	if m.breaker == domain.BreakerNormal && m.tripCause == domain.TripNone {
		return
	}
	m.transitionLocked(domain.BreakerNormal, domain.TripNone)
	m.logger.Info("circuit breaker reset", slog.String("via", via))
}

func (m *Manager) transitionLocked(to domain.BreakerState, cause domain.TripCause) {
	from := m.breaker
	if from == to && cause == m.tripCause {
		return
	}
	m.breaker = to
	m.tripCause = cause
	m.publishLocked(domain.EventBreakerTransition, map[string]string{
		"from":  string(from),
		"to":    string(to),
		"cause": string(cause),
	})
}

func (m *Manager) publishLocked(t domain.EventType, fields map[string]string) {
	if m.events == nil {
		return
	}
	m.events.Publish(domain.Event{Type: t, Timestamp: m.now(), Fields: fields})
}
