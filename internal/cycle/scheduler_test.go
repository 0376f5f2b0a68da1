package cycle

import (
	"context"
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

type mockResetter struct {
	mu     sync.Mutex
	resets []float64
}

func (m *mockResetter) CycleReset(newCapitalUSD float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets = append(m.resets, newCapitalUSD)
}

type mockCycleStore struct {
	mu      sync.Mutex
	created []domain.CycleState
}

func (s *mockCycleStore) Create(_ context.Context, state domain.CycleState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, state)
	return nil
}
func (s *mockCycleStore) ListRecent(context.Context, int) ([]domain.CycleState, error) {
	return nil, nil
}

type mockArchiver struct {
	mu      sync.Mutex
	cutoffs []time.Time
}

func (a *mockArchiver) ArchiveBefore(_ context.Context, cutoff time.Time) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cutoffs = append(a.cutoffs, cutoff)
	return 3, nil
}

func settled(pnl float64) domain.ExecutionRecord {
	return domain.ExecutionRecord{State: domain.TradeSettled, RealizedPnLUSD: pnl}
}

func TestNewSchedulerStartsCycleOne(t *testing.T) {
	s := NewScheduler(Config{LengthDays: 7, DailyTargetRate: 0.015}, 100_000, nil, nil, nil, nil, testLogger)

	st := s.State()
	assert.Equal(t, 1, st.Number)
	assert.Equal(t, 100_000.0, st.CapitalBaseUSD)
	assert.Equal(t, 1_500.0, st.DailyTargetUSD)
	assert.Equal(t, 7*24*time.Hour, st.Length)
}

func TestRecordSettledAccrues(t *testing.T) {
	s := NewScheduler(Config{LengthDays: 7, DailyTargetRate: 0.015}, 100_000, nil, nil, nil, nil, testLogger)

	s.RecordSettled(settled(250))
	s.RecordSettled(settled(-50))

	st := s.State()
	assert.Equal(t, 200.0, st.CumulativeProfitUSD)
	assert.Equal(t, 2, st.SettledTrades)
	assert.InDelta(t, 0.002, st.ProgressPct(), 1e-9)
}

func TestTickBeforeBoundaryDoesNothing(t *testing.T) {
	resetter := &mockResetter{}
	s := NewScheduler(Config{LengthDays: 7, DailyTargetRate: 0.015}, 100_000, resetter, nil, nil, nil, testLogger)

	assert.False(t, s.Tick(context.Background()))
	assert.Equal(t, 1, s.State().Number)
	assert.Empty(t, resetter.resets)
}

func TestRolloverCompoundsAndResetsBreaker(t *testing.T) {
	resetter := &mockResetter{}
	store := &mockCycleStore{}
	archiver := &mockArchiver{}
	s := NewScheduler(Config{LengthDays: 7, DailyTargetRate: 0.015}, 100_000, resetter, store, archiver, nil, testLogger)

	s.RecordSettled(settled(5_000))

	start := s.State().StartedAt
	s.now = func() time.Time { return start.Add(7*24*time.Hour + time.Minute) }

	require.True(t, s.Tick(context.Background()))

	st := s.State()
	assert.Equal(t, 2, st.Number)
	assert.Equal(t, 105_000.0, st.CapitalBaseUSD, "profit compounds into the next base")
	assert.Equal(t, 1_575.0, st.DailyTargetUSD, "daily target recomputes off the new base")
	assert.Zero(t, st.CumulativeProfitUSD)
	assert.Zero(t, st.SettledTrades)

	require.Len(t, resetter.resets, 1)
	assert.Equal(t, 105_000.0, resetter.resets[0])

	require.Len(t, store.created, 1)
	assert.Equal(t, 1, store.created[0].Number)
	assert.Equal(t, 5_000.0, store.created[0].CumulativeProfitUSD)

	require.Len(t, archiver.cutoffs, 1)
	assert.Equal(t, start, archiver.cutoffs[0])
}

func TestRolloverOnLosingCycleShrinksBase(t *testing.T) {
	resetter := &mockResetter{}
	s := NewScheduler(Config{LengthDays: 7, DailyTargetRate: 0.015}, 100_000, resetter, nil, nil, nil, testLogger)

	s.RecordSettled(settled(-8_000))

	start := s.State().StartedAt
	s.now = func() time.Time { return start.Add(8 * 24 * time.Hour) }

	require.True(t, s.Tick(context.Background()))
	assert.Equal(t, 92_000.0, s.State().CapitalBaseUSD)
	require.Len(t, resetter.resets, 1)
	assert.Equal(t, 92_000.0, resetter.resets[0])
}

func TestSecondTickAfterRolloverIsQuiet(t *testing.T) {
	s := NewScheduler(Config{LengthDays: 7, DailyTargetRate: 0.015}, 100_000, nil, nil, nil, nil, testLogger)

	start := s.State().StartedAt
	now := start.Add(7*24*time.Hour + time.Minute)
	s.now = func() time.Time { return now }

	require.True(t, s.Tick(context.Background()))
	assert.False(t, s.Tick(context.Background()), "new cycle boundary is days away")
	assert.Equal(t, 2, s.State().Number)
}
