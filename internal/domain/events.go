package domain

import "time"

// EventType enumerates the structured events the core emits to the
// observability sink. The core does not format or persist them.
type EventType string

const (
	EventOpportunityFound    EventType = "opportunity_found"
	EventOpportunityRejected EventType = "opportunity_rejected"
	EventReservationCreated  EventType = "reservation_created"
	EventReservationReleased EventType = "reservation_released"
	EventBreakerTransition   EventType = "breaker_transition"
	EventTradeSettled        EventType = "trade_settled"
	EventTradeUnwound        EventType = "trade_unwound"
	EventUnwindFailed        EventType = "unwind_failed"
	EventCycleRollover       EventType = "cycle_rollover"
)

// Event is one structured observability record.
type Event struct {
	Type      EventType         `json:"type"`
	Timestamp time.Time         `json:"ts"`
	Fields    map[string]string `json:"fields,omitempty"`
}

// EventPublisher is the observability sink boundary. Publish must not block
// the pipeline; implementations drop or buffer under pressure.
type EventPublisher interface {
	Publish(ev Event)
}
