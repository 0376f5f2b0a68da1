package events

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/arbiterhq/arbiter/internal/cache/redis"
	"github.com/arbiterhq/arbiter/internal/domain"
)

// ChannelPrefix namespaces the Pub/Sub channels the engine publishes to; the
// per-type channel is ChannelPrefix + the event type.
const ChannelPrefix = "arbiter:events:"

// StreamName is the capped replay stream every event is appended to.
const StreamName = "arbiter:stream:events"

// RedisPublisher fans events out over Redis Pub/Sub (one channel per event
// type, for live websocket bridging) and appends them to a capped stream.
// Publish hands the event to a background writer and returns immediately;
// under sustained backpressure events are dropped, not queued unboundedly.
type RedisPublisher struct {
	bus    *redis.Bus
	queue  chan domain.Event
	logger *slog.Logger
}

// NewRedisPublisher starts the background writer. Cancel ctx to stop it.
func NewRedisPublisher(ctx context.Context, bus *redis.Bus, logger *slog.Logger) *RedisPublisher {
	p := &RedisPublisher{
		bus:    bus,
		queue:  make(chan domain.Event, 512),
		logger: logger.With(slog.String("component", "events.redis")),
	}
	go p.run(ctx)
	return p
}

// Publish enqueues the event without blocking the pipeline.
func (p *RedisPublisher) Publish(ev domain.Event) {
	select {
	case p.queue <- ev:
	default:
		p.logger.Warn("event dropped, publish queue full", slog.String("type", string(ev.Type)))
	}
}

func (p *RedisPublisher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-p.queue:
			payload, err := json.Marshal(ev)
			if err != nil {
				p.logger.Error("marshaling event failed", slog.String("error", err.Error()))
				continue
			}
			if err := p.bus.Publish(ctx, ChannelPrefix+string(ev.Type), payload); err != nil {
				p.logger.Warn("publishing event failed", slog.String("error", err.Error()))
			}
			if err := p.bus.StreamAppend(ctx, StreamName, payload); err != nil {
				p.logger.Warn("appending event to stream failed", slog.String("error", err.Error()))
			}
		}
	}
}

var _ domain.EventPublisher = (*RedisPublisher)(nil)
