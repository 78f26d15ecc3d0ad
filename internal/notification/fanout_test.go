package notification

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jai-bhardwaj/trading-backend-sub001/internal/model"
)

type countingDeliverer struct {
	name string

	mu        sync.Mutex
	delivered []model.NotificationEvent
	failN     int
	failures  int
}

func (d *countingDeliverer) Name() string { return d.name }

func (d *countingDeliverer) Deliver(ctx context.Context, event model.NotificationEvent) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failures < d.failN {
		d.failures++
		return context.DeadlineExceeded
	}
	d.delivered = append(d.delivered, event)
	return nil
}

func (d *countingDeliverer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.delivered)
}

func TestFanoutDeliversToAllAdapters(t *testing.T) {
	transient := NewMemoryTransient(time.Minute)
	email := &countingDeliverer{name: "email"}
	sms := &countingDeliverer{name: "sms"}

	fanout := NewFanout(transient, []Deliverer{email, sms}, NewPreferences(), 0, time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, fanout.Start(ctx))

	require.NoError(t, transient.PublishTransient(ctx,
		model.NewNotification("user-1", "order.filled", model.SeverityNormal, nil)))

	require.Eventually(t, func() bool {
		return email.count() == 1 && sms.count() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestFanoutHonorsChannelOptOut(t *testing.T) {
	transient := NewMemoryTransient(time.Minute)
	email := &countingDeliverer{name: "email"}
	sms := &countingDeliverer{name: "sms"}

	prefs := NewPreferences()
	prefs.Set("user-1", UserPreference{Channels: map[string]bool{"sms": false}})

	fanout := NewFanout(transient, []Deliverer{email, sms}, prefs, 0, time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, fanout.Start(ctx))

	require.NoError(t, transient.PublishTransient(ctx,
		model.NewNotification("user-1", "order.filled", model.SeverityNormal, nil)))

	require.Eventually(t, func() bool {
		return email.count() == 1
	}, time.Second, 5*time.Millisecond)
	assert.Zero(t, sms.count(), "opted-out channel skipped")
}

func TestFanoutCriticalOverridesOptOut(t *testing.T) {
	transient := NewMemoryTransient(time.Minute)
	sms := &countingDeliverer{name: "sms"}

	prefs := NewPreferences()
	prefs.Set("user-1", UserPreference{Channels: map[string]bool{"sms": false}})

	fanout := NewFanout(transient, []Deliverer{sms}, prefs, 0, time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, fanout.Start(ctx))

	require.NoError(t, transient.PublishTransient(ctx,
		model.NewNotification("user-1", "order.error", model.SeverityCritical, nil)))

	require.Eventually(t, func() bool {
		return sms.count() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestFanoutRetriesFailedDelivery(t *testing.T) {
	transient := NewMemoryTransient(time.Minute)
	flaky := &countingDeliverer{name: "email", failN: 2}

	fanout := NewFanout(transient, []Deliverer{flaky}, NewPreferences(), 3, time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, fanout.Start(ctx))

	require.NoError(t, transient.PublishTransient(ctx,
		model.NewNotification("user-1", "order.filled", model.SeverityNormal, nil)))

	require.Eventually(t, func() bool {
		return flaky.count() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestWebhookDelivererPosts(t *testing.T) {
	var mu sync.Mutex
	var gotType, gotSeverity string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		gotType = r.Header.Get("X-Event-Type")
		gotSeverity = r.Header.Get("X-Severity")
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewWebhookDeliverer(srv.URL)
	event := model.NewNotification("user-1", "order.filled", model.SeverityNormal, nil)
	require.NoError(t, d.Deliver(context.Background(), event))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "order.filled", gotType)
	assert.Equal(t, "NORMAL", gotSeverity)
}

func TestWebhookDelivererRejectsNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	d := NewWebhookDeliverer(srv.URL)
	err := d.Deliver(context.Background(), model.NewNotification("user-1", "order.filled", model.SeverityNormal, nil))
	assert.Error(t, err)
}
