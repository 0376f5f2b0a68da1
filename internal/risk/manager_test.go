package risk

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbiterhq/arbiter/internal/domain"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func testConfig() Config {
	return Config{
		CapitalAtRiskFraction:   0.40,
		MaxPositionFraction:     0.12,
		MaxPositions:            5,
		DailyLossLimitUSD:       5_000,
		MaxConsecutiveLosses:    3,
		VolatilitySpikeMultiple: 3.0,
		CorrelationThreshold:    0.70,
		WarningFraction:         0.80,
	}
}

func testCandidate(id string, instruments ...string) domain.Candidate {
	legs := make([]domain.Leg, 0, len(instruments))
	for _, inst := range instruments {
		legs = append(legs, domain.Leg{
			VenueID:      "venue",
			InstrumentID: inst,
			Side:         domain.SideBuy,
			Price:        100,
			Qty:          10,
		})
	}
	return domain.Candidate{ID: id, Strategy: domain.StrategyCexCex, Legs: legs}
}

func newTestManager() *Manager {
	return NewManager(testConfig(), 100_000, nil, testLogger)
}

func TestCheckAndReserveHappyPath(t *testing.T) {
	m := newTestManager()

	res, err := m.CheckAndReserve(testCandidate("c1", "BTC/USDT"), 5_000)
	require.NoError(t, err)
	assert.NotEmpty(t, res.ID)
	assert.Equal(t, "c1", res.CandidateID)
	assert.Equal(t, 5_000.0, res.AmountUSD)

	st := m.State()
	assert.Equal(t, 5_000.0, st.ReservedUSD)
	assert.Equal(t, 1, st.OpenReservations)
}

func TestCheckAndReserveRejectsOversizedPosition(t *testing.T) {
	m := newTestManager()

	// 12% of 100k is the per-trade cap.
	_, err := m.CheckAndReserve(testCandidate("c1", "BTC/USDT"), 13_000)
	require.Error(t, err)
	reason, ok := domain.RiskRejection(err)
	require.True(t, ok)
	assert.Equal(t, domain.RejectSizeExceeded, reason)
}

func TestCheckAndReserveRejectsWhenBudgetExhausted(t *testing.T) {
	m := newTestManager()

	// Budget is 40% of 100k = 40k. Four 10k reservations fill it.
	for _, inst := range []string{"A", "B", "C", "D"} {
		_, err := m.CheckAndReserve(testCandidate("c", inst), 10_000)
		require.NoError(t, err)
	}

	_, err := m.CheckAndReserve(testCandidate("c5", "E"), 10_000)
	require.Error(t, err)
	reason, _ := domain.RiskRejection(err)
	assert.Equal(t, domain.RejectBudgetExhausted, reason)
}

func TestCheckAndReserveRejectsPositionCount(t *testing.T) {
	m := newTestManager()

	for _, inst := range []string{"A", "B", "C", "D", "E"} {
		_, err := m.CheckAndReserve(testCandidate("c", inst), 1_000)
		require.NoError(t, err)
	}

	_, err := m.CheckAndReserve(testCandidate("c6", "F"), 1_000)
	require.Error(t, err)
	reason, _ := domain.RiskRejection(err)
	assert.Equal(t, domain.RejectPositionCount, reason)
}

func TestReleaseIsIdempotent(t *testing.T) {
	m := newTestManager()

	res, err := m.CheckAndReserve(testCandidate("c1", "X"), 5_000)
	require.NoError(t, err)

	require.NoError(t, m.Release(res.ID))
	assert.Equal(t, 0.0, m.State().ReservedUSD)

	err = m.Release(res.ID)
	assert.ErrorIs(t, err, domain.ErrAlreadyReleased)
	assert.Equal(t, 0.0, m.State().ReservedUSD, "double release must not change budget")
}

func TestConsecutiveLossesTripBreaker(t *testing.T) {
	m := newTestManager()

	m.RecordOutcome(-100, 5_000, true)
	m.RecordOutcome(-100, 5_000, true)
	assert.Equal(t, domain.BreakerNormal, m.State().Breaker)

	m.RecordOutcome(-100, 5_000, true)
	st := m.State()
	assert.Equal(t, domain.BreakerTripped, st.Breaker)
	assert.Equal(t, domain.TripConsecutiveLoss, st.TripCause)

	_, err := m.CheckAndReserve(testCandidate("c1", "X"), 1_000)
	require.Error(t, err)
	reason, _ := domain.RiskRejection(err)
	assert.Equal(t, domain.RejectBreakerTripped, reason)
}

func TestWinResetsLossStreak(t *testing.T) {
	m := newTestManager()

	m.RecordOutcome(-100, 5_000, true)
	m.RecordOutcome(-100, 5_000, true)
	m.RecordOutcome(50, 5_000, false)
	m.RecordOutcome(-100, 5_000, true)
	m.RecordOutcome(-100, 5_000, true)

	assert.Equal(t, domain.BreakerNormal, m.State().Breaker)
	assert.Equal(t, 2, m.State().ConsecutiveLosses)
}

func TestFlatUnwindStillCountsAsLoss(t *testing.T) {
	m := newTestManager()

	// Three unwinds closing at breakeven or slightly better: no PnL damage,
	// but each one is a failed trade and the streak must trip the breaker.
	m.RecordOutcome(0, 5_000, true)
	m.RecordOutcome(0, 5_000, true)
	assert.Equal(t, 2, m.State().ConsecutiveLosses)

	m.RecordOutcome(10, 5_000, true)
	st := m.State()
	assert.Equal(t, 3, st.ConsecutiveLosses)
	assert.Equal(t, domain.BreakerTripped, st.Breaker)
	assert.Equal(t, domain.TripConsecutiveLoss, st.TripCause)
}

func TestAvailableBudgetTracksReservations(t *testing.T) {
	m := newTestManager()

	// Budget is 40% of 100k.
	assert.Equal(t, 40_000.0, m.AvailableBudgetUSD())

	res, err := m.CheckAndReserve(testCandidate("c1", "BTC/USDT"), 10_000)
	require.NoError(t, err)
	assert.Equal(t, 30_000.0, m.AvailableBudgetUSD())

	require.NoError(t, m.Release(res.ID))
	assert.Equal(t, 40_000.0, m.AvailableBudgetUSD())
}

func TestDailyLossTripsBreaker(t *testing.T) {
	m := newTestManager()

	m.RecordOutcome(-5_100, 50_000, true)
	st := m.State()
	assert.Equal(t, domain.BreakerTripped, st.Breaker)
	assert.Equal(t, domain.TripDailyLoss, st.TripCause)
}

func TestWarningBandBeforeDailyLimit(t *testing.T) {
	m := newTestManager()

	// 80% of the 5k daily limit.
	m.RecordOutcome(-4_100, 50_000, true)
	st := m.State()
	assert.Equal(t, domain.BreakerWarning, st.Breaker)

	// Recovery drops back to normal.
	m.RecordOutcome(3_000, 50_000, false)
	assert.Equal(t, domain.BreakerNormal, m.State().Breaker)
}

func TestManualHaltAndReset(t *testing.T) {
	m := newTestManager()

	m.Halt()
	st := m.State()
	assert.Equal(t, domain.BreakerTripped, st.Breaker)
	assert.Equal(t, domain.TripManualHalt, st.TripCause)

	m.ManualReset()
	st = m.State()
	assert.Equal(t, domain.BreakerNormal, st.Breaker)
	assert.Equal(t, domain.TripNone, st.TripCause)
}

func TestTrippedBreakerStaysTrippedUntilReset(t *testing.T) {
	m := newTestManager()

	m.RecordOutcome(-100, 5_000, true)
	m.RecordOutcome(-100, 5_000, true)
	m.RecordOutcome(-100, 5_000, true)
	require.Equal(t, domain.BreakerTripped, m.State().Breaker)

	// Wins after the trip must not clear it.
	m.RecordOutcome(500, 5_000, false)
	m.RecordOutcome(500, 5_000, false)
	assert.Equal(t, domain.BreakerTripped, m.State().Breaker)
}

func TestCycleResetRebasesCapitalAndClearsBreaker(t *testing.T) {
	m := newTestManager()

	m.RecordOutcome(-100, 5_000, true)
	m.RecordOutcome(-100, 5_000, true)
	m.RecordOutcome(-100, 5_000, true)
	require.Equal(t, domain.BreakerTripped, m.State().Breaker)

	m.CycleReset(105_000)

	st := m.State()
	assert.Equal(t, domain.BreakerNormal, st.Breaker)
	assert.Equal(t, 0, st.ConsecutiveLosses)
	assert.Equal(t, 105_000.0, st.CapitalUSD)
	assert.Equal(t, 105_000.0, st.PeakCapitalUSD)
	assert.Equal(t, 0.0, st.DayPnLUSD)
}

func TestCorrelationTripOnConcentration(t *testing.T) {
	m := newTestManager()

	// Two reservations both on BTC/USDT push single-instrument share to 1.0.
	_, err := m.CheckAndReserve(testCandidate("c1", "BTC/USDT"), 5_000)
	require.NoError(t, err)
	_, err = m.CheckAndReserve(testCandidate("c2", "BTC/USDT"), 5_000)
	require.NoError(t, err)

	st := m.State()
	assert.Equal(t, domain.BreakerTripped, st.Breaker)
	assert.Equal(t, domain.TripCorrelation, st.TripCause)
}

func TestConcurrentReservationsNeverOverCommit(t *testing.T) {
	m := newTestManager()
	// Budget 40k; 1k per reservation but only 5 position slots.

	var wg sync.WaitGroup
	granted := make(chan domain.Reservation, 64)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			inst := string(rune('A' + n))
			if res, err := m.CheckAndReserve(testCandidate("c", inst), 1_000); err == nil {
				granted <- res
			}
		}(i)
	}
	wg.Wait()
	close(granted)

	var ids []string
	for res := range granted {
		ids = append(ids, res.ID)
	}
	assert.Len(t, ids, 5, "only MaxPositions reservations may be granted")
	assert.Equal(t, 5_000.0, m.State().ReservedUSD)

	for _, id := range ids {
		require.NoError(t, m.Release(id))
	}
	assert.Equal(t, 0.0, m.State().ReservedUSD)
}

func TestDayBoundaryResetsDailyPnL(t *testing.T) {
	m := newTestManager()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return base }

	m.RecordOutcome(-3_000, 50_000, true)
	assert.Equal(t, -3_000.0, m.State().DayPnLUSD)

	m.now = func() time.Time { return base.Add(24 * time.Hour) }
	m.RecordOutcome(-1_000, 50_000, true)
	assert.Equal(t, -1_000.0, m.State().DayPnLUSD, "new day starts a fresh loss counter")
	assert.Equal(t, domain.BreakerNormal, m.State().Breaker)
}
