package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/jai-bhardwaj/trading-backend-sub001/internal/model"
)

// RedisTransient publishes events to a Redis Pub/Sub channel and keeps a
// TTL-bound copy under a per-event key so recent events can be inspected
// and replayed. Nothing here is durable: expired copies are gone.
type RedisTransient struct {
	client  *redis.Client
	channel string
	ttl     time.Duration
	logger  *zap.Logger
}

// NewRedisTransient creates the transient channel on the given client.
func NewRedisTransient(client *redis.Client, channel string, ttl time.Duration, logger *zap.Logger) *RedisTransient {
	return &RedisTransient{client: client, channel: channel, ttl: ttl, logger: logger}
}

// PublishTransient sends the event to the pub/sub channel and stores a
// TTL'd copy.
func (t *RedisTransient) PublishTransient(ctx context.Context, event model.NotificationEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	if err := t.client.Publish(ctx, t.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", t.channel, err)
	}

	key := fmt.Sprintf("%s:%s", t.channel, event.EventID)
	if err := t.client.Set(ctx, key, data, t.ttl).Err(); err != nil {
		// The pub/sub publish already succeeded; the TTL copy is best effort.
		t.logger.Warn("failed to store transient copy",
			zap.String("event_id", event.EventID.String()),
			zap.Error(err))
	}
	return nil
}

// Events subscribes to the pub/sub channel and decodes incoming events
// until ctx is cancelled. Used by the external delivery fan-out stage.
func (t *RedisTransient) Events(ctx context.Context) (<-chan model.NotificationEvent, error) {
	pubsub := t.client.Subscribe(ctx, t.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", t.channel, err)
	}

	out := make(chan model.NotificationEvent, 64)
	go func() {
		defer close(out)
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-pubsub.Channel():
				if !ok {
					return
				}
				var event model.NotificationEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					t.logger.Error("failed to decode notification", zap.Error(err))
					continue
				}
				select {
				case out <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// MemoryTransient is an in-process transient channel used by tests and
// single-process runs without Redis. TTL expiry is simulated on read.
type MemoryTransient struct {
	mu     sync.Mutex
	events []storedEvent
	ttl    time.Duration
	subs   []chan model.NotificationEvent
}

type storedEvent struct {
	event    model.NotificationEvent
	expireAt time.Time
}

// NewMemoryTransient creates an in-memory transient channel.
func NewMemoryTransient(ttl time.Duration) *MemoryTransient {
	return &MemoryTransient{ttl: ttl}
}

// PublishTransient records the event and forwards it to subscribers.
func (t *MemoryTransient) PublishTransient(ctx context.Context, event model.NotificationEvent) error {
	t.mu.Lock()
	t.events = append(t.events, storedEvent{event: event, expireAt: time.Now().Add(t.ttl)})
	subs := make([]chan model.NotificationEvent, len(t.subs))
	copy(subs, t.subs)
	t.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}

// Events returns a stream of future events.
func (t *MemoryTransient) Events(ctx context.Context) (<-chan model.NotificationEvent, error) {
	ch := make(chan model.NotificationEvent, 64)
	t.mu.Lock()
	t.subs = append(t.subs, ch)
	t.mu.Unlock()
	return ch, nil
}

// Live returns the unexpired stored events.
func (t *MemoryTransient) Live(now time.Time) []model.NotificationEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	var live []model.NotificationEvent
	for _, se := range t.events {
		if now.Before(se.expireAt) {
			live = append(live, se.event)
		}
	}
	return live
}
