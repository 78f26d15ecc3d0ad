package signal

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jai-bhardwaj/trading-backend-sub001/internal/config"
	"github.com/jai-bhardwaj/trading-backend-sub001/internal/model"
	"github.com/jai-bhardwaj/trading-backend-sub001/internal/queue"
)

func testIngestor(t *testing.T) (*Ingestor, *queue.Manager) {
	t.Helper()
	manager := queue.NewManager(config.QueueConfig{
		MaxAttempts:            5,
		VisibilityTimeout:      30 * time.Second,
		RetryBackoffMax:        time.Second,
		WatchdogInterval:       time.Second,
		RebalanceInterval:      time.Second,
		PriorityDrainThreshold: 100,
	}, nil, nil, zap.NewNop())

	cfg := config.EngineConfig{
		CriticalConfidence: 0.95,
		HighConfidence:     0.8,
		DefaultUserID:      "system",
		StopLossDeadline:   2 * time.Second,
	}
	return NewIngestor(manager, cfg, zap.NewNop()), manager
}

func testSignal(confidence float64) model.Signal {
	return model.Signal{
		StrategyID: "momentum-1",
		Symbol:     "RELIANCE",
		SignalType: model.SignalBuy,
		Confidence: confidence,
		Price:      decimal.NewFromInt(2500),
		Quantity:   decimal.NewFromInt(10),
		Timestamp:  time.Now(),
	}
}

func TestHandleEnqueuesConvertedOrder(t *testing.T) {
	ing, manager := testIngestor(t)

	require.NoError(t, ing.Handle(context.Background(), testSignal(0.5), "1-0"))

	item := manager.Dequeue("w1")
	require.NotNil(t, item)
	assert.Equal(t, model.WorkExecute, item.Kind)
	assert.Equal(t, "RELIANCE", item.Order.Symbol)
	assert.Equal(t, model.PriorityNormal, item.Order.Priority)
	assert.Equal(t, "system", item.Order.UserID, "missing user mapping falls back to the default")
	assert.Equal(t, "1-0", item.Order.SignalID)
	assert.Nil(t, item.Deadline)
}

func TestHandleMapsConfidenceToPriority(t *testing.T) {
	ing, manager := testIngestor(t)

	require.NoError(t, ing.Handle(context.Background(), testSignal(0.85), "1-0"))
	require.NoError(t, ing.Handle(context.Background(), testSignal(0.99), "1-1"))

	first := manager.Dequeue("w1")
	require.NotNil(t, first)
	assert.Equal(t, model.PriorityCritical, first.Order.Priority)

	second := manager.Dequeue("w1")
	require.NotNil(t, second)
	assert.Equal(t, model.PriorityHigh, second.Order.Priority)
}

func TestHandleStopLossGetsUrgencyDeadline(t *testing.T) {
	ing, manager := testIngestor(t)

	sig := testSignal(0.1)
	sig.SignalType = model.SignalSell
	sig.Metadata = map[string]string{"stop_loss": "true"}

	before := time.Now()
	require.NoError(t, ing.Handle(context.Background(), sig, "1-0"))

	item := manager.Dequeue("w1")
	require.NotNil(t, item)
	assert.Equal(t, model.PriorityCritical, item.Order.Priority)
	assert.Equal(t, model.OrderTypeStopLoss, item.Order.OrderType)
	require.NotNil(t, item.Deadline)
	assert.WithinDuration(t, before.Add(2*time.Second), *item.Deadline, time.Second)
}

func TestHandleRespectsUserMetadata(t *testing.T) {
	ing, manager := testIngestor(t)

	sig := testSignal(0.5)
	sig.Metadata = map[string]string{"user_id": "user-42"}
	require.NoError(t, ing.Handle(context.Background(), sig, "1-0"))

	item := manager.Dequeue("w1")
	require.NotNil(t, item)
	assert.Equal(t, "user-42", item.Order.UserID)
}

func TestHandleDropsNonPositiveQuantity(t *testing.T) {
	ing, manager := testIngestor(t)

	zero := testSignal(0.5)
	zero.Quantity = decimal.Zero
	require.NoError(t, ing.Handle(context.Background(), zero, "1-0"), "malformed signals are acked and dropped")

	negative := testSignal(0.5)
	negative.Quantity = decimal.NewFromInt(-5)
	require.NoError(t, ing.Handle(context.Background(), negative, "1-1"))

	assert.Nil(t, manager.Dequeue("w1"), "nothing enqueued for dropped signals")
}
