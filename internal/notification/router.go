// Package notification implements the hybrid event dispatcher: every event
// is published fire-and-forget to a low-latency transient channel, and
// CRITICAL/COMPLIANCE events are additionally persisted to durable storage.
// A durable-write failure never blocks or fails the transient publish.
package notification

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jai-bhardwaj/trading-backend-sub001/internal/model"
)

// TransientPublisher is the low-latency, non-durable channel.
type TransientPublisher interface {
	PublishTransient(ctx context.Context, event model.NotificationEvent) error
}

// Persister is the durable side of the hybrid dispatch.
type Persister interface {
	Save(ctx context.Context, event model.NotificationEvent) error
}

// Router fans one event out to the transient channel, the durable store and
// local subscribers.
type Router struct {
	transient TransientPublisher
	durable   Persister
	prefs     *Preferences
	logger    *zap.Logger

	events chan model.NotificationEvent

	mu          sync.Mutex
	subscribers map[int]*subscription
	nextSubID   int
	retries     []model.NotificationEvent // durable writes awaiting retry

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

type subscription struct {
	userID string
	filter Filter
	ch     chan model.NotificationEvent
}

// Filter selects which events a subscriber receives. Nil matches all.
type Filter func(event model.NotificationEvent) bool

// NewRouter creates a router. durable may be nil when no durable store is
// configured; transient must not be nil.
func NewRouter(transient TransientPublisher, durable Persister, prefs *Preferences, bufferSize int, logger *zap.Logger) *Router {
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	return &Router{
		transient:   transient,
		durable:     durable,
		prefs:       prefs,
		logger:      logger,
		events:      make(chan model.NotificationEvent, bufferSize),
		subscribers: make(map[int]*subscription),
		stopCh:      make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// Start launches the dispatch loop and the out-of-band durable retry loop.
func (r *Router) Start(ctx context.Context) {
	go func() {
		defer close(r.done)
		retryTicker := time.NewTicker(5 * time.Second)
		defer retryTicker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-r.stopCh:
				return
			case event := <-r.events:
				r.dispatch(ctx, event)
			case <-retryTicker.C:
				r.retryDurable(ctx)
			}
		}
	}()
}

// Publish hands the event off without blocking the caller. When the buffer
// is full the event is dropped with a log line; callers on the order hot
// path must never stall on notification delivery.
func (r *Router) Publish(event model.NotificationEvent) {
	select {
	case r.events <- event:
	default:
		r.logger.Warn("notification buffer full, dropping event",
			zap.String("event_id", event.EventID.String()),
			zap.String("type", event.Type),
			zap.String("severity", string(event.Severity)))
	}
}

func (r *Router) dispatch(ctx context.Context, event model.NotificationEvent) {
	if err := r.transient.PublishTransient(ctx, event); err != nil {
		r.logger.Error("transient publish failed",
			zap.String("event_id", event.EventID.String()),
			zap.Error(err))
	}

	if event.Severity.Durable() && r.durable != nil {
		if err := r.durable.Save(ctx, event); err != nil {
			r.logger.Error("durable notification write failed, queued for retry",
				zap.String("event_id", event.EventID.String()),
				zap.Error(err))
			r.mu.Lock()
			r.retries = append(r.retries, event)
			r.mu.Unlock()
		}
	}

	r.fanOutLocal(event)
}

func (r *Router) retryDurable(ctx context.Context) {
	r.mu.Lock()
	pending := r.retries
	r.retries = nil
	r.mu.Unlock()

	for _, event := range pending {
		if err := r.durable.Save(ctx, event); err != nil {
			r.mu.Lock()
			r.retries = append(r.retries, event)
			r.mu.Unlock()
			r.logger.Warn("durable notification retry failed",
				zap.String("event_id", event.EventID.String()),
				zap.Error(err))
			return
		}
	}
}

func (r *Router) fanOutLocal(event model.NotificationEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sub := range r.subscribers {
		if sub.userID != "" && sub.userID != event.UserID {
			continue
		}
		if sub.filter != nil && !sub.filter(event) {
			continue
		}
		if r.prefs != nil && !r.prefs.Allowed(sub.userID, event, time.Now()) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			// Slow subscribers lose events rather than backing up the router.
		}
	}
}

// Subscribe returns a stream of events for the user (empty userID matches
// all users) plus a cancel func. The stream honors the user's notification
// preferences.
func (r *Router) Subscribe(userID string, filter Filter) (<-chan model.NotificationEvent, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextSubID
	r.nextSubID++
	sub := &subscription{
		userID: userID,
		filter: filter,
		ch:     make(chan model.NotificationEvent, 64),
	}
	r.subscribers[id] = sub

	cancel := func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if s, ok := r.subscribers[id]; ok {
			delete(r.subscribers, id)
			close(s.ch)
		}
	}
	return sub.ch, cancel
}

// Stop halts the dispatch loop.
func (r *Router) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	<-r.done
}
