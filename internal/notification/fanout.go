package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/jai-bhardwaj/trading-backend-sub001/internal/model"
)

// Subscriber is the source the fan-out stage consumes from, normally the
// transient channel.
type Subscriber interface {
	Events(ctx context.Context) (<-chan model.NotificationEvent, error)
}

// Deliverer pushes an event to one external channel (email, SMS, webhook,
// downstream broker).
type Deliverer interface {
	Name() string
	Deliver(ctx context.Context, event model.NotificationEvent) error
}

// Fanout consumes the transient channel and forwards events to external
// delivery adapters. Delivery retries are bounded and independent of the
// order path: a failing adapter never touches dispatch latency.
type Fanout struct {
	source     Subscriber
	deliverers []Deliverer
	prefs      *Preferences
	retries    int
	backoff    time.Duration
	logger     *zap.Logger
	wg         sync.WaitGroup
}

// NewFanout creates the external delivery stage.
func NewFanout(source Subscriber, deliverers []Deliverer, prefs *Preferences, retries int, backoff time.Duration, logger *zap.Logger) *Fanout {
	return &Fanout{
		source:     source,
		deliverers: deliverers,
		prefs:      prefs,
		retries:    retries,
		backoff:    backoff,
		logger:     logger,
	}
}

// Start begins consuming until ctx is cancelled.
func (f *Fanout) Start(ctx context.Context) error {
	events, err := f.source.Events(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe fan-out source: %w", err)
	}

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-events:
				if !ok {
					return
				}
				f.deliver(ctx, event)
			}
		}
	}()
	return nil
}

// Wait blocks until the consume loop exits.
func (f *Fanout) Wait() { f.wg.Wait() }

func (f *Fanout) deliver(ctx context.Context, event model.NotificationEvent) {
	for _, d := range f.deliverers {
		if f.prefs != nil && !f.prefs.ChannelEnabled(event.UserID, d.Name(), event.Severity) {
			continue
		}

		var err error
		for attempt := 0; attempt <= f.retries; attempt++ {
			if err = d.Deliver(ctx, event); err == nil {
				break
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(f.backoff * time.Duration(attempt+1)):
			}
		}
		if err != nil {
			f.logger.Error("external delivery failed after retries",
				zap.String("adapter", d.Name()),
				zap.String("event_id", event.EventID.String()),
				zap.Error(err))
		}
	}
}

// KafkaDeliverer forwards events to a Kafka topic for downstream systems.
type KafkaDeliverer struct {
	writer *kafka.Writer
}

// NewKafkaDeliverer creates a Kafka egress adapter.
func NewKafkaDeliverer(brokers []string, topic string) *KafkaDeliverer {
	return &KafkaDeliverer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.CRC32Balancer{},
			BatchSize:    100,
			BatchTimeout: 10 * time.Millisecond,
			RequiredAcks: kafka.RequireOne,
			MaxAttempts:  3,
		},
	}
}

func (k *KafkaDeliverer) Name() string { return "kafka" }

// Deliver writes the event keyed by user so per-user ordering survives
// partitioning.
func (k *KafkaDeliverer) Deliver(ctx context.Context, event model.NotificationEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	key := event.UserID
	if key == "" {
		key = "system"
	}
	return k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: data,
		Time:  event.CreatedAt,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(event.Type)},
			{Key: "severity", Value: []byte(event.Severity)},
		},
	})
}

// Close flushes and closes the writer.
func (k *KafkaDeliverer) Close() error { return k.writer.Close() }

// WebhookDeliverer POSTs events to a configured URL.
type WebhookDeliverer struct {
	url    string
	client *http.Client
}

// NewWebhookDeliverer creates a webhook adapter.
func NewWebhookDeliverer(url string) *WebhookDeliverer {
	return &WebhookDeliverer{
		url:    url,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (w *WebhookDeliverer) Name() string { return "webhook" }

// Deliver POSTs the event as JSON.
func (w *WebhookDeliverer) Deliver(ctx context.Context, event model.NotificationEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewBuffer(data))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Type", event.Type)
	req.Header.Set("X-Severity", string(event.Severity))

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// LogDeliverer stands in for email/SMS providers in local runs: it logs the
// delivery instead of calling a provider API.
type LogDeliverer struct {
	name   string
	logger *zap.Logger
}

// NewLogDeliverer creates a logging stand-in for the named channel.
func NewLogDeliverer(name string, logger *zap.Logger) *LogDeliverer {
	return &LogDeliverer{name: name, logger: logger}
}

func (l *LogDeliverer) Name() string { return l.name }

// Deliver logs the event.
func (l *LogDeliverer) Deliver(ctx context.Context, event model.NotificationEvent) error {
	l.logger.Info("notification delivered",
		zap.String("channel", l.name),
		zap.String("event_id", event.EventID.String()),
		zap.String("user_id", event.UserID),
		zap.String("type", event.Type),
		zap.String("severity", string(event.Severity)))
	return nil
}
