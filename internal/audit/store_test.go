package audit

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/jai-bhardwaj/trading-backend-sub001/internal/model"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(t.TempDir()+"/audit.db"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	store, err := NewStore(db, zap.NewNop())
	require.NoError(t, err)
	return store
}

func auditOrder() *model.Order {
	now := time.Now()
	return &model.Order{
		ID:             uuid.New(),
		UserID:         "user-1",
		StrategyID:     "strat-1",
		SignalID:       "1-0",
		Symbol:         "TCS",
		Side:           model.SideBuy,
		OrderType:      model.OrderTypeLimit,
		Quantity:       decimal.NewFromInt(10),
		Price:          decimal.RequireFromString("3500.25"),
		Priority:       model.PriorityHigh,
		Status:         model.StatusPending,
		FilledQuantity: decimal.Zero,
		FilledPrice:    decimal.Zero,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestAppendAndQueryLatestSnapshot(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	order := auditOrder()

	require.NoError(t, store.Append(ctx, order))

	require.NoError(t, order.Transition(model.StatusSubmitted))
	brokerID := "paper-1"
	order.BrokerOrderID = &brokerID
	require.NoError(t, store.Append(ctx, order))

	got, err := store.QueryByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSubmitted, got.Status)
	require.NotNil(t, got.BrokerOrderID)
	assert.Equal(t, "paper-1", *got.BrokerOrderID)
	assert.True(t, got.Price.Equal(order.Price), "decimal survives the string round-trip")
}

func TestHistoryIsAppendOnlyAndOrdered(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	order := auditOrder()

	require.NoError(t, store.Append(ctx, order))
	require.NoError(t, order.Transition(model.StatusSubmitted))
	require.NoError(t, store.Append(ctx, order))
	require.NoError(t, order.ApplyFill(decimal.NewFromInt(10), decimal.NewFromInt(3500)))
	require.NoError(t, store.Append(ctx, order))

	history, err := store.History(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, string(model.StatusPending), history[0].Status)
	assert.Equal(t, string(model.StatusSubmitted), history[1].Status)
	assert.Equal(t, string(model.StatusFilled), history[2].Status)
}

func TestQueryUnknownOrder(t *testing.T) {
	store := testStore(t)
	_, err := store.QueryByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestWriterPersistsAsynchronously(t *testing.T) {
	store := testStore(t)
	writer := NewWriter(store, 16, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	writer.Start(ctx)

	order := auditOrder()
	writer.Record(order)

	require.Eventually(t, func() bool {
		history, err := store.History(context.Background(), order.ID)
		return err == nil && len(history) == 1
	}, time.Second, 10*time.Millisecond)

	writer.Stop()
}

func TestWriterFlushesOnStop(t *testing.T) {
	store := testStore(t)
	writer := NewWriter(store, 16, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	writer.Start(ctx)

	order := auditOrder()
	writer.Record(order)
	require.NoError(t, order.Transition(model.StatusSubmitted))
	writer.Record(order)
	writer.Stop()

	history, err := store.History(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestRecordSnapshotsAtCallTime(t *testing.T) {
	store := testStore(t)
	writer := NewWriter(store, 16, zap.NewNop())

	order := auditOrder()
	writer.Record(order)
	// Mutate after recording; the buffered snapshot must keep PENDING.
	require.NoError(t, order.Transition(model.StatusSubmitted))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	writer.Start(ctx)
	writer.Stop()

	history, err := store.History(context.Background(), order.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, string(model.StatusPending), history[0].Status)
}
