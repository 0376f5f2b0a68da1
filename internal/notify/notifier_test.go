package notify

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

type senderRecorder struct {
	mu     sync.Mutex
	titles []string
	bodies []string
}

func (s *senderRecorder) Send(_ context.Context, title, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.titles = append(s.titles, title)
	s.bodies = append(s.bodies, message)
	return nil
}

func (s *senderRecorder) Name() string { return "recorder" }

func (s *senderRecorder) sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.titles...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestAlerterForwardsAllowedEvents(t *testing.T) {
	rec := &senderRecorder{}
	a := NewAlerter(context.Background(), []Sender{rec},
		[]string{"breaker_transition", "unwind_failed"}, testLogger)

	a.Publish(domain.Event{
		Type:      domain.EventBreakerTransition,
		Timestamp: time.Now(),
		Fields:    map[string]string{"from": "normal", "to": "tripped", "cause": "daily_loss"},
	})

	waitFor(t, func() bool { return len(rec.sent()) == 1 })
	titles := rec.sent()
	assert.Equal(t, "Circuit breaker: normal -> tripped", titles[0])
}

func TestAlerterFiltersUnlistedEvents(t *testing.T) {
	rec := &senderRecorder{}
	a := NewAlerter(context.Background(), []Sender{rec},
		[]string{"unwind_failed"}, testLogger)

	a.Publish(domain.Event{Type: domain.EventTradeSettled, Timestamp: time.Now()})
	a.Publish(domain.Event{Type: domain.EventUnwindFailed, Timestamp: time.Now()})

	waitFor(t, func() bool { return len(rec.sent()) == 1 })
	time.Sleep(20 * time.Millisecond)
	require.Len(t, rec.sent(), 1)
	assert.Contains(t, rec.sent()[0], "Unwind FAILED")
}

func TestAlerterEmptyFilterAllowsEverything(t *testing.T) {
	rec := &senderRecorder{}
	a := NewAlerter(context.Background(), []Sender{rec}, nil, testLogger)

	a.Publish(domain.Event{Type: domain.EventCycleRollover, Timestamp: time.Now(),
		Fields: map[string]string{"new_cycle": "3"}})

	waitFor(t, func() bool { return len(rec.sent()) == 1 })
	assert.Equal(t, "Cycle 3 started", rec.sent()[0])
}

func TestFormatEventSortsFields(t *testing.T) {
	_, body := formatEvent(domain.Event{
		Type:      domain.EventTradeSettled,
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Fields:    map[string]string{"pnl_usd": "12.50", "id": "abc"},
	})
	assert.Contains(t, body, "id: abc\npnl_usd: 12.50")
}
