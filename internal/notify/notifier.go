// Package notify bridges pipeline events to operator alert channels
// (Telegram, Discord). Alerts are filtered by event type so operators
// receive only what they asked for, and delivery happens off the hot path.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"github.com/arbiterhq/arbiter/internal/domain"
)

// Sender is the interface that each alert channel must implement.
type Sender interface {
	// Send delivers an alert with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a human-readable identifier for the sender (e.g. "telegram").
	Name() string
}

// Alerter implements domain.EventPublisher by forwarding selected events to
// one or more Senders. Publish never blocks: events are queued and delivered
// by a background goroutine; under pressure, events are dropped.
type Alerter struct {
	senders []Sender
	allowed map[domain.EventType]bool
	queue   chan domain.Event
	logger  *slog.Logger
}

// NewAlerter creates an Alerter that delivers to the given senders and
// starts its delivery goroutine, which stops when ctx is cancelled. Only
// events whose type appears in the events slice are forwarded; if events is
// empty, all types pass.
func NewAlerter(ctx context.Context, senders []Sender, events []string, logger *slog.Logger) *Alerter {
	allowed := make(map[domain.EventType]bool, len(events))
	for _, e := range events {
		allowed[domain.EventType(strings.TrimSpace(e))] = true
	}
	a := &Alerter{
		senders: senders,
		allowed: allowed,
		queue:   make(chan domain.Event, 64),
		logger:  logger.With(slog.String("component", "alerter")),
	}
	go a.run(ctx)
	return a
}

// Publish enqueues an event for delivery. Never blocks.
func (a *Alerter) Publish(ev domain.Event) {
	if len(a.senders) == 0 {
		return
	}
	if len(a.allowed) > 0 && !a.allowed[ev.Type] {
		return
	}
	select {
	case a.queue <- ev:
	default:
		a.logger.Warn("alert queue full, dropping event",
			slog.String("type", string(ev.Type)),
		)
	}
}

func (a *Alerter) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-a.queue:
			title, message := formatEvent(ev)
			a.dispatch(ctx, title, message)
		}
	}
}

// dispatch sends the alert to every sender. A single sender failure does not
// prevent delivery to the remaining senders.
func (a *Alerter) dispatch(ctx context.Context, title, message string) {
	for _, s := range a.senders {
		if err := s.Send(ctx, title, message); err != nil {
			a.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
		}
	}
}

// formatEvent renders a pipeline event as an operator-readable alert.
func formatEvent(ev domain.Event) (title, message string) {
	switch ev.Type {
	case domain.EventBreakerTransition:
		title = fmt.Sprintf("Circuit breaker: %s -> %s", ev.Fields["from"], ev.Fields["to"])
	case domain.EventUnwindFailed:
		title = "Unwind FAILED: residual exposure, manual intervention required"
	case domain.EventTradeUnwound:
		title = "Partial fill unwound"
	case domain.EventTradeSettled:
		title = "Trade settled"
	case domain.EventCycleRollover:
		title = fmt.Sprintf("Cycle %s started", ev.Fields["new_cycle"])
	default:
		title = string(ev.Type)
	}

	keys := make([]string, 0, len(ev.Fields))
	for k := range ev.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\n", k, ev.Fields[k])
	}
	fmt.Fprintf(&b, "at: %s", ev.Timestamp.Format("2006-01-02 15:04:05 MST"))
	return title, b.String()
}

var _ domain.EventPublisher = (*Alerter)(nil)

// postJSON POSTs a JSON payload and treats any non-2xx response as an error,
// quoting up to 1 KiB of the response body.
func postJSON(ctx context.Context, client *http.Client, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
